package crawlers

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceMonitorConfig 资源监控配置
type ResourceMonitorConfig struct {
	SafetyReserveMemory uint64  // 给系统保留的内存(字节)
	PageMemoryUsage     uint64  // 单个标签页的平均内存消耗(字节)
	CPULoadThreshold    float64 // CPU使用率上限(%), <= 0 表示不检查
	MaxPages            int     // 标签页数的绝对上限
}

// ResourceMonitor 根据可用内存和CPU计算渲染池大小
type ResourceMonitor struct {
	config ResourceMonitorConfig

	mu          sync.RWMutex
	available   uint64
	cpuUsage    float64
	cachedMax   int
	cachedAt    time.Time
	cancelFunc  context.CancelFunc
	isMonitored bool

	// 测试中替换
	sampleMemory func() (uint64, error)
	sampleCPU    func() (float64, error)
}

// NewResourceMonitor 创建资源监控器并立即采样一次
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	if config.PageMemoryUsage == 0 {
		config.PageMemoryUsage = 150 * 1024 * 1024
	}
	if config.SafetyReserveMemory == 0 {
		config.SafetyReserveMemory = 512 * 1024 * 1024
	}
	if config.MaxPages < 1 {
		config.MaxPages = 1
	}

	rm := &ResourceMonitor{
		config:       config,
		sampleMemory: availableMemory,
		sampleCPU:    cpuPercent,
	}
	rm.sample()

	rm.mu.RLock()
	log.Debug().Msgf("可用内存: %.2f GB, 标签页上限: %d", float64(rm.available)/(1<<30), config.MaxPages)
	rm.mu.RUnlock()
	return rm
}

func availableMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

func cpuPercent() (float64, error) {
	// perCPU=false 返回所有核心的平均值
	p, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, fmt.Errorf("CPU使用率数据为空")
	}
	return p[0], nil
}

// sample 采样一次内存和CPU
func (rm *ResourceMonitor) sample() {
	avail, err := rm.sampleMemory()
	if err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败, 按4GB估算")
		avail = 4 << 30
	}

	usage := 0.0
	if rm.config.CPULoadThreshold > 0 {
		if usage, err = rm.sampleCPU(); err != nil {
			log.Warn().Err(err).Msg("获取CPU使用率失败")
		}
	}

	rm.mu.Lock()
	rm.available = avail
	rm.cpuUsage = usage
	rm.cachedAt = time.Time{}
	rm.mu.Unlock()
}

// StartMonitoring 后台周期采样, 重复调用无副作用
func (rm *ResourceMonitor) StartMonitoring(interval time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.isMonitored {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rm.cancelFunc = cancel
	rm.isMonitored = true

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rm.sample()
			}
		}
	}()
}

// StopMonitoring 停止后台采样
func (rm *ResourceMonitor) StopMonitoring() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.isMonitored && rm.cancelFunc != nil {
		rm.cancelFunc()
	}
	rm.isMonitored = false
	rm.cancelFunc = nil
}

// MaxPages 当前允许的最大标签页数
// min(内存可容纳数, CPU核数, 配置上限), 至少为1, 结果缓存1秒
func (rm *ResourceMonitor) MaxPages() int {
	rm.mu.RLock()
	if rm.cachedMax > 0 && time.Since(rm.cachedAt) < time.Second {
		cached := rm.cachedMax
		rm.mu.RUnlock()
		return cached
	}
	avail := rm.available
	rm.mu.RUnlock()

	byMemory := 1
	if avail > rm.config.SafetyReserveMemory {
		byMemory = int((avail - rm.config.SafetyReserveMemory) / rm.config.PageMemoryUsage)
	}
	result := min(byMemory, runtime.NumCPU(), rm.config.MaxPages)
	if result < 1 {
		result = 1
	}

	rm.mu.Lock()
	rm.cachedMax = result
	rm.cachedAt = time.Now()
	rm.mu.Unlock()
	return result
}

// CheckResourceAvailability 是否允许再打开一个标签页, 不允许时给出原因
func (rm *ResourceMonitor) CheckResourceAvailability() (bool, string) {
	rm.mu.RLock()
	avail, usage := rm.available, rm.cpuUsage
	rm.mu.RUnlock()

	if avail < rm.config.SafetyReserveMemory+rm.config.PageMemoryUsage {
		log.Warn().Msgf("可用内存不足(当前%dMB), 标签页创建受限", avail/(1024*1024))
		return false, fmt.Sprintf("内存不足(当前%dMB)", avail/(1024*1024))
	}
	if rm.config.CPULoadThreshold > 0 && usage > rm.config.CPULoadThreshold {
		return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", usage)
	}
	return true, ""
}
