package crawlers

import (
	"bufio"
	"compress/flate"
	"compress/zlib"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
)

// FetchConfig 快速路径配置
type FetchConfig struct {
	Timeout           time.Duration     `mapstructure:"timeout" validate:"gt=0"`
	Retries           int               `mapstructure:"retries" validate:"gte=0,lte=10"`
	BackoffBase       time.Duration     `mapstructure:"backoff_base" validate:"gte=0"`
	MaxBodyBytes      int               `mapstructure:"max_body_bytes" validate:"gt=0"`
	MaxRedirects      int               `mapstructure:"max_redirects" validate:"gte=0"`
	PermanentStatuses []int             `mapstructure:"permanent_statuses"`
	SkipExtensions    []string          `mapstructure:"skip_extensions"`
	RespectRobots     bool              `mapstructure:"respect_robots"`
	InsecureTLS       bool              `mapstructure:"insecure_tls"`
	Headers           map[string]string `mapstructure:"headers"`
	Rate              RateConfig        `mapstructure:"rate"`
}

// DefaultFetchConfig 默认快速路径配置
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		Timeout:           30 * time.Second,
		Retries:           2,
		BackoffBase:       500 * time.Millisecond,
		MaxBodyBytes:      5 * 1024 * 1024,
		MaxRedirects:      10,
		PermanentStatuses: []int{http.StatusNotFound, http.StatusGone},
		SkipExtensions: []string{
			".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg", ".pdf",
			".mp4", ".mp3", ".avi", ".mov", ".wmv", ".zip", ".tar", ".gz",
			".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".xml",
		},
		Rate: RateConfig{PerSecond: 0, Burst: 1},
	}
}

var (
	errLoginRedirect     = errors.New("重定向到登录页")
	errTooManyRedirects  = errors.New("重定向次数过多")
	loginPathSegments    = map[string]bool{"login": true, "signin": true, "sign-in": true, "sso": true, "auth": true}
	defaultAcceptEncoder = "gzip, deflate, br"
)

// StaticResponse 快速路径一次请求的结果
// StatusCode 为 0 表示没有收到HTTP响应
type StaticResponse struct {
	StatusCode int
	Body       string
	FinalURL   string
}

// StaticFetcher 基于Colly的HTTP抓取器
// 每次请求创建独立的collector, 底层 Transport 在请求间共享以复用连接
type StaticFetcher struct {
	cfg       FetchConfig
	transport http.RoundTripper
}

// NewStaticFetcher 创建快速路径抓取器
func NewStaticFetcher(cfg FetchConfig) *StaticFetcher {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureTLS {
		// 允许访问自签名、过期或主机名不匹配的HTTPS站点
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &StaticFetcher{
		cfg:       cfg,
		transport: &decodingTransport{base: base},
	}
}

// Get 发起一次GET请求
// 非2xx响应也会返回状态码; 错误为网络错误、重定向错误或HTTP状态错误
func (sf *StaticFetcher) Get(ctx context.Context, rawURL string, headers http.Header) (StaticResponse, error) {
	out := StaticResponse{}

	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(sf.cfg.MaxBodyBytes),
	)
	c.IgnoreRobotsTxt = !sf.cfg.RespectRobots
	c.SetRequestTimeout(sf.cfg.Timeout)
	c.WithTransport(sf.transport)

	c.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		if len(via) >= sf.cfg.MaxRedirects {
			return fmt.Errorf("%w (上限 %d)", errTooManyRedirects, sf.cfg.MaxRedirects)
		}
		if isLoginPath(req.URL) {
			return fmt.Errorf("%w: %s", errLoginRedirect, req.URL)
		}
		out.FinalURL = req.URL.String()
		if last := via[len(via)-1]; req.URL.Host != last.URL.Host {
			req.Header.Del("Authorization")
		}
		return nil
	})

	c.OnResponse(func(r *colly.Response) {
		out.StatusCode = r.StatusCode
		out.Body = string(r.Body)
	})

	var statusErr error
	c.OnError(func(r *colly.Response, err error) {
		out.StatusCode = r.StatusCode
		// Colly 把 203-299 也当作错误, 这里按正常响应处理
		if r.StatusCode >= 200 && r.StatusCode < 300 {
			out.Body = string(r.Body)
			return
		}
		statusErr = err
	})

	hdr := headers.Clone()
	if hdr == nil {
		hdr = http.Header{}
	}
	if hdr.Get("Accept-Encoding") == "" {
		hdr.Set("Accept-Encoding", defaultAcceptEncoder)
	}

	err := c.Request(http.MethodGet, rawURL, nil, nil, hdr)
	if out.StatusCode >= 200 && out.StatusCode < 300 {
		return out, nil
	}
	if err == nil {
		err = statusErr
	}
	if err == nil && out.StatusCode == 0 {
		err = errors.New("没有收到响应")
	}
	return out, err
}

// isLoginPath 路径中是否有登录类的段
func isLoginPath(u *url.URL) bool {
	for _, seg := range strings.Split(strings.ToLower(u.Path), "/") {
		if loginPathSegments[seg] {
			return true
		}
	}
	return false
}

// decodingTransport 在Colly读取响应体之前解开 br 和 deflate 编码
// gzip 由 Colly 自行处理
type decodingTransport struct {
	base http.RoundTripper
}

func (t *decodingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	body, decoded, err := decompressResponse(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	if decoded {
		resp.Body = body
		resp.Header.Del("Content-Encoding")
		resp.Header.Del("Content-Length")
		resp.ContentLength = -1
		resp.Uncompressed = true
	}
	return resp, nil
}

// decompressResponse 根据 Content-Encoding 包装响应体
// 返回值 decoded 表示是否做了解码
func decompressResponse(contentEncoding string, body io.ReadCloser) (io.ReadCloser, bool, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "br":
		return &readCloser{Reader: brotli.NewReader(body), closers: []io.Closer{body}}, true, nil
	case "deflate":
		return inflate(body)
	default:
		return body, false, nil
	}
}

// inflate 解开 HTTP deflate 响应体
// 标准格式是 zlib 封装 (RFC 9110), 部分服务器发送裸 DEFLATE 流
func inflate(body io.ReadCloser) (io.ReadCloser, bool, error) {
	br := bufio.NewReader(body)
	head, _ := br.Peek(2)
	if len(head) == 0 {
		return &readCloser{Reader: br, closers: []io.Closer{body}}, true, nil
	}
	if isZlibHeader(head) {
		zr, err := zlib.NewReader(br)
		if err != nil {
			return nil, false, fmt.Errorf("解析zlib头失败: %w", err)
		}
		return &readCloser{Reader: zr, closers: []io.Closer{zr, body}}, true, nil
	}
	fr := flate.NewReader(br)
	return &readCloser{Reader: fr, closers: []io.Closer{fr, body}}, true, nil
}

// isZlibHeader CM=8 且 CMF/FLG 校验和被31整除
func isZlibHeader(b []byte) bool {
	return len(b) >= 2 && b[0]&0x0f == 8 && (uint16(b[0])<<8|uint16(b[1]))%31 == 0
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (rc *readCloser) Close() error {
	var errs []error
	for _, c := range rc.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
