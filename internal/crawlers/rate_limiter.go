package crawlers

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// RateConfig 每个主机的请求速率
// PerSecond <= 0 表示不限速
type RateConfig struct {
	PerSecond float64 `mapstructure:"per_second" validate:"gte=0"`
	Burst     int     `mapstructure:"burst" validate:"gte=0"`
}

// HostLimiter 按主机名划分的令牌桶集合
type HostLimiter struct {
	cfg      RateConfig
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

// NewHostLimiter 创建限速器
func NewHostLimiter(cfg RateConfig) *HostLimiter {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &HostLimiter{
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait 等待目标URL所在主机的令牌, ctx 结束时返回其错误
func (hl *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	if hl == nil || hl.cfg.PerSecond <= 0 {
		return ctx.Err()
	}
	return hl.get(hostOf(rawURL)).Wait(ctx)
}

func (hl *HostLimiter) get(host string) *rate.Limiter {
	hl.mu.RLock()
	l, ok := hl.limiters[host]
	hl.mu.RUnlock()
	if ok {
		return l
	}

	hl.mu.Lock()
	defer hl.mu.Unlock()
	if l, ok = hl.limiters[host]; ok {
		return l
	}
	l = rate.NewLimiter(rate.Limit(hl.cfg.PerSecond), hl.cfg.Burst)
	hl.limiters[host] = l
	return l
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
