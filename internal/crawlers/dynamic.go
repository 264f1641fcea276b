package crawlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/RecoveryAshes/PageChunker/internal/metrics"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/rs/zerolog/log"
)

// RenderConfig 浏览器渲染配置
type RenderConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Headless        bool          `mapstructure:"headless"`
	BrowserPath     string        `mapstructure:"browser_path"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"gt=0"`
	WaitTime        time.Duration `mapstructure:"wait_time" validate:"gte=0"`
	Retries         int           `mapstructure:"retries" validate:"gte=0,lte=5"`
	MinTextChars    int           `mapstructure:"min_text_chars" validate:"gte=0"`
	MaxContentBytes int           `mapstructure:"max_content_bytes" validate:"gt=0"`
	MaxPages        int           `mapstructure:"max_pages" validate:"gte=1"`
	MaxRelaunches   int           `mapstructure:"max_relaunches" validate:"gte=0"`
	AcceptConsent   bool          `mapstructure:"accept_consent"`
	Scroll          bool          `mapstructure:"scroll"`
}

// DefaultRenderConfig 默认渲染配置
func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		Enabled:         true,
		Headless:        true,
		Timeout:         60 * time.Second,
		WaitTime:        2 * time.Second,
		Retries:         1,
		MinTextChars:    100,
		MaxContentBytes: 5 * 1024 * 1024,
		MaxPages:        4,
		MaxRelaunches:   3,
		AcceptConsent:   true,
		Scroll:          true,
	}
}

// 浏览器自行管理的请求头, 不通过 SetExtraHeaders 覆盖
var browserManagedHeaders = map[string]bool{
	"Accept-Encoding": true,
	"Host":            true,
	"Connection":      true,
	"Content-Length":  true,
}

const consentJS = `() => {
	const words = ["accept all", "accept", "agree", "allow all", "i agree", "got it", "ok"];
	const buttons = Array.from(document.querySelectorAll("button, [role=button], a.button, input[type=submit]"));
	for (const b of buttons) {
		const t = (b.innerText || b.value || "").trim().toLowerCase();
		if (words.includes(t)) { try { b.click(); return true; } catch (e) {} }
	}
	return false;
}`

const scrollJS = `() => new Promise((resolve) => {
	let n = 0;
	const step = () => {
		window.scrollBy(0, window.innerHeight);
		n++;
		if (n >= 10 || window.innerHeight + window.scrollY >= document.body.scrollHeight) {
			window.scrollTo(0, 0);
			resolve(true);
		} else {
			setTimeout(step, 150);
		}
	};
	step();
})`

// RodRenderer 基于 go-rod 的渲染器
// 浏览器在第一次渲染时启动; 崩溃后下次渲染时重启, 最多 MaxRelaunches 次
type RodRenderer struct {
	cfg     RenderConfig
	monitor *ResourceMonitor
	metrics *metrics.Metrics

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	pool     *PagePool
	launches int
	closed   bool
}

// NewRodRenderer 创建渲染器, 此时不启动浏览器
func NewRodRenderer(cfg RenderConfig, m *metrics.Metrics) *RodRenderer {
	monitor := NewResourceMonitor(ResourceMonitorConfig{
		MaxPages:         cfg.MaxPages,
		CPULoadThreshold: 0,
	})
	return &RodRenderer{cfg: cfg, monitor: monitor, metrics: m}
}

// ensurePool 返回可用的标签页池, 必要时启动浏览器
func (r *RodRenderer) ensurePool() (*PagePool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("%w: 渲染器已关闭", ErrRendererUnavailable)
	}
	if r.pool != nil {
		return r.pool, nil
	}
	if r.launches > r.cfg.MaxRelaunches {
		return nil, fmt.Errorf("%w: 浏览器已重启 %d 次", ErrRendererUnavailable, r.cfg.MaxRelaunches)
	}

	l := launcher.New().Headless(r.cfg.Headless)
	// 允许访问自签名、过期或主机名不匹配的HTTPS站点
	l = l.Set("ignore-certificate-errors")
	if r.cfg.BrowserPath != "" {
		l = l.Bin(r.cfg.BrowserPath)
	}
	r.launches++

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: 启动浏览器失败: %v", ErrRendererUnavailable, err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("%w: 连接浏览器失败: %v", ErrRendererUnavailable, err)
	}

	r.browser = browser
	r.launcher = l
	r.pool = NewPagePool(browser, r.monitor, r.metrics)
	r.monitor.StartMonitoring(2 * time.Second)

	log.Info().Msgf("🌐 浏览器已启动 (第%d次)", r.launches)
	return r.pool, nil
}

// Render 渲染页面并返回HTML
func (r *RodRenderer) Render(ctx context.Context, rawURL string, headers http.Header) (result *RenderResult, err error) {
	pool, err := r.ensurePool()
	if err != nil {
		return nil, err
	}

	page, err := pool.AcquirePage(ctx)
	if err != nil {
		if errors.Is(err, ErrBrowserCrashed) {
			r.handleCrash(pool)
		}
		return nil, err
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("渲染panic: %v", p)
			log.Error().Str("url", rawURL).Msgf("捕获panic: %v", p)
		}
		if err != nil && ctx.Err() == nil && !r.browserAlive() {
			pool.DiscardPage(page)
			r.handleCrash(pool)
			err = fmt.Errorf("%w: %v", ErrBrowserCrashed, err)
			return
		}
		pool.ReleasePage(page)
	}()

	return r.renderOn(ctx, page, rawURL, headers)
}

func (r *RodRenderer) renderOn(ctx context.Context, page *rod.Page, rawURL string, headers http.Header) (*RenderResult, error) {
	p := page.Context(ctx).Timeout(r.cfg.Timeout)
	defer p.CancelTimeout()

	dict := make([]string, 0, len(headers)*2)
	for name, values := range headers {
		if len(values) == 0 || browserManagedHeaders[http.CanonicalHeaderKey(name)] {
			continue
		}
		dict = append(dict, name, values[0])
	}
	if len(dict) > 0 {
		cleanup, err := p.SetExtraHeaders(dict)
		if err != nil {
			return nil, fmt.Errorf("设置请求头失败: %w", err)
		}
		defer cleanup()
	}

	if err := p.Navigate(rawURL); err != nil {
		return nil, fmt.Errorf("导航失败: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, fmt.Errorf("等待页面加载失败: %w", err)
	}

	if r.cfg.WaitTime > 0 {
		if err := sleepCtx(ctx, r.cfg.WaitTime); err != nil {
			return nil, err
		}
	}

	if r.cfg.AcceptConsent {
		if _, err := p.Evaluate(rod.Eval(consentJS)); err != nil {
			log.Debug().Str("url", rawURL).Err(err).Msg("点击同意按钮失败")
		}
	}
	if r.cfg.Scroll {
		if _, err := p.Evaluate(&rod.EvalOptions{JS: scrollJS, ByValue: true, AwaitPromise: true}); err != nil {
			log.Debug().Str("url", rawURL).Err(err).Msg("滚动页面失败")
		}
	}

	finalURL := rawURL
	if info, err := p.Info(); err == nil && info.URL != "" {
		finalURL = info.URL
	}
	if u, err := url.Parse(finalURL); err == nil && finalURL != rawURL && isLoginPath(u) {
		return nil, fmt.Errorf("%w: %s", errLoginRedirect, finalURL)
	}

	html, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("读取页面HTML失败: %w", err)
	}
	html = truncateUTF8(html, r.cfg.MaxContentBytes)

	return &RenderResult{HTML: html, FinalURL: finalURL}, nil
}

// truncateUTF8 截断到不超过 max 字节, 不拆开多字节字符; max<=0 不截断
func truncateUTF8(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	i := max
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i]
}

// browserAlive 浏览器连接是否正常
func (r *RodRenderer) browserAlive() bool {
	r.mu.Lock()
	browser := r.browser
	r.mu.Unlock()
	if browser == nil {
		return false
	}
	_, err := browser.Timeout(3 * time.Second).Version()
	return err == nil
}

// handleCrash 丢弃崩溃的浏览器, 下次渲染时重启
func (r *RodRenderer) handleCrash(pool *PagePool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pool != pool {
		return
	}

	log.Warn().Msgf("💥 浏览器崩溃, 将在下次渲染时重启 (已启动%d次, 上限%d次重启)", r.launches, r.cfg.MaxRelaunches)
	r.teardownLocked()
}

func (r *RodRenderer) teardownLocked() {
	if r.pool != nil {
		r.pool.Close()
		r.pool = nil
	}
	if r.browser != nil {
		_ = r.browser.Close()
		r.browser = nil
	}
	if r.launcher != nil {
		r.launcher.Kill()
		r.launcher = nil
	}
}

// Close 关闭浏览器
func (r *RodRenderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.monitor.StopMonitoring()
	r.teardownLocked()
	if r.launches > 0 {
		log.Debug().Msg("浏览器已关闭")
	}
}
