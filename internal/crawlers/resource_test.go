package crawlers

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"
)

func TestHostLimiter(t *testing.T) {
	t.Run("不限速时立即返回", func(t *testing.T) {
		hl := NewHostLimiter(RateConfig{})
		for i := 0; i < 100; i++ {
			if err := hl.Wait(context.Background(), "https://a.com/x"); err != nil {
				t.Fatalf("不应出错: %v", err)
			}
		}
	})

	t.Run("按主机划分", func(t *testing.T) {
		hl := NewHostLimiter(RateConfig{PerSecond: 1000, Burst: 1})
		_ = hl.Wait(context.Background(), "https://a.com/1")
		_ = hl.Wait(context.Background(), "https://A.com/2")
		_ = hl.Wait(context.Background(), "https://b.com/1")
		if len(hl.limiters) != 2 {
			t.Errorf("期望2个主机, 得到 %d", len(hl.limiters))
		}
	})

	t.Run("ctx取消", func(t *testing.T) {
		hl := NewHostLimiter(RateConfig{PerSecond: 0.001, Burst: 1})
		_ = hl.Wait(context.Background(), "https://a.com/")

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := hl.Wait(ctx, "https://a.com/"); err == nil {
			t.Errorf("令牌耗尽且ctx结束时应返回错误")
		}
	})

	t.Run("nil安全", func(t *testing.T) {
		var hl *HostLimiter
		if err := hl.Wait(context.Background(), "https://a.com/"); err != nil {
			t.Errorf("nil限速器不应出错: %v", err)
		}
	})
}

func newTestMonitor(avail uint64, cfg ResourceMonitorConfig) *ResourceMonitor {
	rm := NewResourceMonitor(cfg)
	rm.sampleMemory = func() (uint64, error) { return avail, nil }
	rm.sampleCPU = func() (float64, error) { return 10, nil }
	rm.sample()
	return rm
}

func TestResourceMonitor_MaxPages(t *testing.T) {
	const mb = 1024 * 1024
	cfg := ResourceMonitorConfig{SafetyReserveMemory: 500 * mb, PageMemoryUsage: 100 * mb, MaxPages: 4}

	tests := []struct {
		name  string
		avail uint64
		want  int
	}{
		{"内存充足时受配置和CPU限制", 8192 * mb, min(4, runtime.NumCPU())},
		{"内存只够2页", 720 * mb, min(2, runtime.NumCPU())},
		{"内存不足时至少1页", 100 * mb, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := newTestMonitor(tt.avail, cfg)
			if got := rm.MaxPages(); got != tt.want {
				t.Errorf("期望 %d, 得到 %d", tt.want, got)
			}
		})
	}
}

func TestResourceMonitor_Availability(t *testing.T) {
	const mb = 1024 * 1024
	cfg := ResourceMonitorConfig{SafetyReserveMemory: 500 * mb, PageMemoryUsage: 100 * mb, MaxPages: 4}

	if ok, reason := newTestMonitor(4096*mb, cfg).CheckResourceAvailability(); !ok {
		t.Errorf("内存充足时应允许创建: %s", reason)
	}
	if ok, _ := newTestMonitor(550*mb, cfg).CheckResourceAvailability(); ok {
		t.Errorf("内存不足时应拒绝创建")
	}

	cfg.CPULoadThreshold = 5
	if ok, _ := newTestMonitor(4096*mb, cfg).CheckResourceAvailability(); ok {
		t.Errorf("CPU超过阈值时应拒绝创建")
	}
}

func TestResourceMonitor_SampleFailure(t *testing.T) {
	rm := NewResourceMonitor(ResourceMonitorConfig{MaxPages: 2})
	rm.sampleMemory = func() (uint64, error) { return 0, errors.New("boom") }
	rm.sample()
	if rm.MaxPages() < 1 {
		t.Errorf("采样失败时仍应至少返回1")
	}
}
