package crawlers

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"slices"
	"time"

	"github.com/RecoveryAshes/PageChunker/internal/metrics"
	"github.com/RecoveryAshes/PageChunker/internal/models"
	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog/log"
)

var (
	// ErrBrowserCrashed 浏览器进程崩溃或连接断开
	ErrBrowserCrashed = errors.New("浏览器已崩溃")
	// ErrRendererUnavailable 渲染被禁用或浏览器无法启动
	ErrRendererUnavailable = errors.New("渲染器不可用")
)

// RenderResult 浏览器渲染结果
type RenderResult struct {
	HTML     string
	FinalURL string
}

// Renderer 浏览器渲染回退
type Renderer interface {
	Render(ctx context.Context, url string, headers http.Header) (*RenderResult, error)
}

// 快速路径单次尝试的分类
type attemptKind string

const (
	attemptSufficient   attemptKind = "ok"
	attemptInsufficient attemptKind = "insufficient"
	attemptPermanent    attemptKind = "permanent"
	attemptTransient    attemptKind = "transient"
	attemptClientError  attemptKind = "client_error"
	attemptCanceled     attemptKind = "canceled"
)

// fastOutcome 快速路径的最终结论
type fastOutcome struct {
	kind     attemptKind
	status   int
	body     string
	finalURL string
	attempts int
	err      error
	// tooShort 仅因文本过短而不足
	tooShort bool
}

// FetcherOptions 抓取器依赖
// Renderer 为 nil 时渲染回退被禁用
type FetcherOptions struct {
	Fetch       FetchConfig
	Sufficiency SufficiencyConfig
	Render      RenderConfig
	Headers     models.HeaderProvider
	Renderer    Renderer
	Metrics     *metrics.Metrics
}

// Fetcher 两阶段抓取: 快速HTTP路径, 内容不足时浏览器渲染
// 可被多个goroutine并发使用
type Fetcher struct {
	cfg       FetchConfig
	suff      SufficiencyConfig
	renderCfg RenderConfig
	static    *StaticFetcher
	limiter   *HostLimiter
	headers   models.HeaderProvider
	renderer  Renderer
	metrics   *metrics.Metrics

	// sleep 可在测试中替换
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetcher 创建抓取器
func NewFetcher(opts FetcherOptions) *Fetcher {
	headers := opts.Headers
	if headers == nil {
		headers = models.StaticHeaders{}
	}
	return &Fetcher{
		cfg:       opts.Fetch,
		suff:      opts.Sufficiency,
		renderCfg: opts.Render,
		static:    NewStaticFetcher(opts.Fetch),
		limiter:   NewHostLimiter(opts.Fetch.Rate),
		headers:   headers,
		renderer:  opts.Renderer,
		metrics:   opts.Metrics,
		sleep:     sleepCtx,
	}
}

// Fetch 抓取单个URL, 失败信息写在结果中而不是返回错误
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) models.FetchResult {
	res := models.FetchResult{URL: rawURL, Status: models.FetchFailed}

	if err := models.ValidateURL(rawURL); err != nil {
		res.Error = err.Error()
		return res
	}
	if models.HasExtension(rawURL, f.cfg.SkipExtensions) {
		res.Error = (&models.FetchError{URL: rawURL, Permanent: true, Cause: errors.New("非HTML资源")}).Error()
		return res
	}

	headers, err := f.headers.GetHeaders()
	if err != nil {
		res.Error = fmt.Sprintf("获取请求头失败: %v", err)
		return res
	}

	fast := f.fastPath(ctx, rawURL, headers)
	res.Attempts = fast.attempts
	res.HTTPStatus = fast.status
	res.FinalURL = fast.finalURL

	switch fast.kind {
	case attemptSufficient:
		res.Status = models.FetchOK
		res.RawContent = fast.body
		return res
	case attemptPermanent, attemptCanceled:
		res.Error = f.fetchError(rawURL, fast).Error()
		return res
	}

	log.Debug().Str("url", rawURL).Str("reason", reasonOf(fast)).Msg("🌐 快速路径不足, 尝试浏览器渲染")

	rendered, renderErr := f.renderPath(ctx, rawURL, headers)
	if renderErr == nil {
		res.Status = models.FetchRenderedFallbackUsed
		res.RawContent = rendered.HTML
		if rendered.FinalURL != "" && rendered.FinalURL != rawURL {
			res.FinalURL = rendered.FinalURL
		}
		return res
	}

	if ctx.Err() != nil {
		res.Error = f.fetchError(rawURL, fastOutcome{status: fast.status, err: ctx.Err()}).Error()
		return res
	}

	// 渲染失败时可选保留文本较少的静态页面, 拦截页和空壳页不保留
	if f.suff.KeepStaticOnRenderFailure && fast.kind == attemptInsufficient && fast.tooShort {
		log.Warn().Str("url", rawURL).Err(renderErr).Msgf("⚠️  渲染失败, 使用快速路径内容(%s)", fast.err)
		res.Status = models.FetchOK
		res.RawContent = fast.body
		return res
	}

	res.Error = f.fetchError(rawURL, fastOutcome{
		status: fast.status,
		err:    fmt.Errorf("快速路径: %v; 渲染: %w", fast.err, renderErr),
	}).Error()
	return res
}

// fastPath 执行快速路径, 对瞬时错误按指数退避重试
func (f *Fetcher) fastPath(ctx context.Context, rawURL string, headers http.Header) fastOutcome {
	var out fastOutcome

	for attempt := 1; attempt <= f.cfg.Retries+1; attempt++ {
		if attempt > 1 {
			delay := f.backoff(attempt - 1)
			log.Debug().Str("url", rawURL).Msgf("🔄 第%d次重试, 等待 %v", attempt-1, delay.Round(time.Millisecond))
			if err := f.sleep(ctx, delay); err != nil {
				out.kind, out.err = attemptCanceled, err
				return out
			}
		}
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			out.kind, out.err = attemptCanceled, err
			return out
		}

		out.attempts = attempt
		start := time.Now()
		resp, err := f.static.Get(ctx, rawURL, headers)
		out.status = resp.StatusCode
		if resp.FinalURL != "" {
			out.finalURL = resp.FinalURL
		}

		if ctx.Err() != nil {
			out.kind, out.err = attemptCanceled, ctx.Err()
			f.metrics.ObserveFetch(metrics.PathStatic, string(out.kind), time.Since(start))
			return out
		}

		out.kind = f.classify(resp.StatusCode, err)
		out.err = err
		if out.kind == attemptSufficient {
			a := Assess(resp.Body, f.suff)
			out.body = resp.Body
			if !a.Sufficient {
				out.kind = attemptInsufficient
				out.err = errors.New(a.Reason)
				out.tooShort = a.TooShort
			}
		}
		f.metrics.ObserveFetch(metrics.PathStatic, string(out.kind), time.Since(start))

		if out.kind != attemptTransient {
			return out
		}
		log.Debug().Str("url", rawURL).Int("status", resp.StatusCode).Err(err).Msgf("快速路径瞬时错误(第%d次)", attempt)
	}
	return out
}

// classify 对单次请求分类; attemptSufficient 仅表示拿到了2xx响应体
func (f *Fetcher) classify(status int, err error) attemptKind {
	switch {
	case status >= 200 && status < 300:
		return attemptSufficient
	case slices.Contains(f.cfg.PermanentStatuses, status):
		return attemptPermanent
	case errors.Is(err, errLoginRedirect), errors.Is(err, colly.ErrRobotsTxtBlocked):
		return attemptPermanent
	case status >= 500, status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return attemptTransient
	case status == 0 && errors.Is(err, errTooManyRedirects):
		return attemptClientError
	case status == 0:
		return attemptTransient
	default:
		return attemptClientError
	}
}

// renderPath 浏览器渲染, 可见文本达到阈值才算成功
func (f *Fetcher) renderPath(ctx context.Context, rawURL string, headers http.Header) (*RenderResult, error) {
	if f.renderer == nil || !f.renderCfg.Enabled {
		return nil, ErrRendererUnavailable
	}

	var lastErr error
	for attempt := 1; attempt <= f.renderCfg.Retries+1; attempt++ {
		start := time.Now()
		r, err := f.renderer.Render(ctx, rawURL, headers)
		if err == nil {
			if n := VisibleTextChars(r.HTML); n < f.renderCfg.MinTextChars {
				err = fmt.Errorf("渲染后可见文本过短(%d < %d)", n, f.renderCfg.MinTextChars)
			}
		}

		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		f.metrics.ObserveFetch(metrics.PathRender, outcome, time.Since(start))

		if err == nil {
			return r, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrRendererUnavailable) || errors.Is(err, errLoginRedirect) {
			break
		}
		log.Debug().Str("url", rawURL).Err(err).Msgf("渲染失败(第%d次)", attempt)
	}
	return nil, lastErr
}

// backoff base·2^(n-1)·(0.5+rand)
func (f *Fetcher) backoff(n int) time.Duration {
	d := float64(f.cfg.BackoffBase) * float64(uint(1)<<(n-1))
	return time.Duration(d * (0.5 + rand.Float64()))
}

func (f *Fetcher) fetchError(rawURL string, out fastOutcome) *models.FetchError {
	return &models.FetchError{
		URL:        rawURL,
		HTTPStatus: out.status,
		Permanent:  out.kind == attemptPermanent,
		Cause:      out.err,
	}
}

func reasonOf(out fastOutcome) string {
	if out.err != nil {
		return out.err.Error()
	}
	return string(out.kind)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
