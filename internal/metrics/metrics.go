// Package metrics 流水线的 Prometheus 指标
//
// 所有方法对 nil 接收者安全, 未启用指标时传 nil 即可.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "pagechunker"

// 抓取路径
const (
	PathStatic = "static"
	PathRender = "render"
)

// Metrics 指标集合, 使用独立的 Registry
type Metrics struct {
	registry *prometheus.Registry

	pages         *prometheus.CounterVec
	fetchAttempts *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	chunks        *prometheus.CounterVec
	renderPages   prometheus.Gauge
}

// New 创建并注册全部指标
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Processed pages by final status.",
		}, []string{"status"}),
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Fetch attempts by path and outcome.",
		}, []string{"path", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of single fetch attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"path"}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Chunks produced by method.",
		}, []string{"method"}),
		renderPages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "render_pages",
			Help:      "Browser pages currently open in the render pool.",
		}),
	}

	m.registry.MustRegister(
		m.pages,
		m.fetchAttempts,
		m.fetchDuration,
		m.chunks,
		m.renderPages,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Registry 返回底层 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObservePage 记录一个页面的最终状态
func (m *Metrics) ObservePage(status string) {
	if m == nil {
		return
	}
	m.pages.WithLabelValues(status).Inc()
}

// ObserveFetch 记录一次抓取尝试
func (m *Metrics) ObserveFetch(path, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchAttempts.WithLabelValues(path, outcome).Inc()
	m.fetchDuration.WithLabelValues(path).Observe(d.Seconds())
}

// AddChunks 累加分块数量
func (m *Metrics) AddChunks(method string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.chunks.WithLabelValues(method).Add(float64(n))
}

// SetRenderPages 设置当前打开的浏览器标签页数
func (m *Metrics) SetRenderPages(n int) {
	if m == nil {
		return
	}
	m.renderPages.Set(float64(n))
}

// Serve 在 addr 上提供 /metrics, ctx 结束时关闭
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("📈 指标服务已启动")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
