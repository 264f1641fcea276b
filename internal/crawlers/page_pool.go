package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RecoveryAshes/PageChunker/internal/metrics"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

var errPoolClosed = errors.New("标签页池已关闭")

// pageHealth 标签页健康状态
type pageHealth struct {
	cleanFailures int
	lastSuccess   time.Time
}

// 清理连续失败达到该次数的标签页会被销毁
const maxCleanFailures = 3

// PagePool 浏览器标签页池
// 容量由 ResourceMonitor 决定, 满时 AcquirePage 阻塞直到有页归还或 ctx 结束
type PagePool struct {
	browser *rod.Browser
	monitor *ResourceMonitor
	metrics *metrics.Metrics

	available chan *rod.Page

	mu     sync.Mutex
	pages  []*rod.Page
	health map[*rod.Page]*pageHealth
	closed bool
}

// NewPagePool 创建标签页池
func NewPagePool(browser *rod.Browser, monitor *ResourceMonitor, m *metrics.Metrics) *PagePool {
	return &PagePool{
		browser:   browser,
		monitor:   monitor,
		metrics:   m,
		available: make(chan *rod.Page, 64),
		health:    make(map[*rod.Page]*pageHealth),
	}
}

// AcquirePage 取得一个标签页, 用完必须 ReleasePage 或 DiscardPage
func (pp *PagePool) AcquirePage(ctx context.Context) (*rod.Page, error) {
	retry := time.NewTicker(200 * time.Millisecond)
	defer retry.Stop()

	for {
		pp.mu.Lock()
		if pp.closed {
			pp.mu.Unlock()
			return nil, errPoolClosed
		}
		pp.mu.Unlock()

		select {
		case page := <-pp.available:
			return page, nil
		default:
		}

		page, err := pp.tryCreate()
		if err != nil {
			return nil, err
		}
		if page != nil {
			return page, nil
		}

		// 已满, 等待归还; 定时重试以感知被销毁的标签页
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case page := <-pp.available:
			return page, nil
		case <-retry.C:
		}
	}
}

// tryCreate 容量和资源允许时新建标签页, 否则返回 nil
func (pp *PagePool) tryCreate() (*rod.Page, error) {
	maxSize := pp.monitor.MaxPages()

	pp.mu.Lock()
	defer pp.mu.Unlock()

	if len(pp.pages) >= maxSize {
		return nil, nil
	}
	if len(pp.pages) > 0 {
		if ok, reason := pp.monitor.CheckResourceAvailability(); !ok {
			log.Debug().Msgf("资源不足, 暂不创建标签页: %s", reason)
			return nil, nil
		}
	}

	page, err := pp.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("%w: 创建标签页失败: %v", ErrBrowserCrashed, err)
	}
	pp.pages = append(pp.pages, page)
	pp.health[page] = &pageHealth{lastSuccess: time.Now()}
	pp.metrics.SetRenderPages(len(pp.pages))

	log.Debug().Msgf("创建新标签页, 当前标签页数: %d, 最大限制: %d", len(pp.pages), maxSize)
	return page, nil
}

// ReleasePage 清理标签页状态后归还
// 清理连续失败、池已超出当前容量或缓冲已满时销毁
func (pp *PagePool) ReleasePage(page *rod.Page) {
	if page == nil {
		return
	}

	pp.mu.Lock()
	health, ok := pp.health[page]
	closed := pp.closed
	pp.mu.Unlock()
	if !ok || closed {
		pp.DiscardPage(page)
		return
	}

	err := pp.cleanPage(page)
	if err != nil {
		// 失败立即重试一次
		err = pp.cleanPage(page)
	}

	pp.mu.Lock()
	if err != nil {
		health.cleanFailures++
	} else {
		health.cleanFailures = 0
		health.lastSuccess = time.Now()
	}
	failures := health.cleanFailures
	pp.mu.Unlock()

	if err != nil {
		log.Warn().Err(err).Msgf("清理标签页状态失败 (连续第%d次)", failures)
		if failures >= maxCleanFailures {
			pp.DiscardPage(page)
			return
		}
	}

	pp.mu.Lock()
	oversize := len(pp.pages) > pp.monitor.MaxPages()
	pp.mu.Unlock()
	if oversize {
		pp.DiscardPage(page)
		return
	}

	select {
	case pp.available <- page:
	default:
		pp.DiscardPage(page)
	}
}

// cleanPage 清空 localStorage、sessionStorage 和 cookie
func (pp *PagePool) cleanPage(page *rod.Page) error {
	_, err := page.Timeout(5 * time.Second).Evaluate(&rod.EvalOptions{
		JS: `() => {
			try { if (window.localStorage) localStorage.clear(); } catch (e) {}
			try { if (window.sessionStorage) sessionStorage.clear(); } catch (e) {}
			try {
				document.cookie.split(";").forEach(function (c) {
					var name = c.split("=")[0].trim();
					if (name) document.cookie = name + "=;expires=Thu, 01 Jan 1970 00:00:00 UTC;path=/";
				});
			} catch (e) {}
			return true;
		}`,
	})
	if err != nil {
		return fmt.Errorf("清理标签页状态失败: %w", err)
	}
	return nil
}

// DiscardPage 关闭并移除标签页
func (pp *PagePool) DiscardPage(page *rod.Page) {
	pp.mu.Lock()
	for i, p := range pp.pages {
		if p == page {
			pp.pages = append(pp.pages[:i], pp.pages[i+1:]...)
			break
		}
	}
	delete(pp.health, page)
	size := len(pp.pages)
	pp.mu.Unlock()

	pp.metrics.SetRenderPages(size)
	if err := page.Close(); err != nil {
		log.Debug().Err(err).Msg("关闭标签页失败")
	}
	log.Debug().Msgf("销毁标签页, 当前标签页数: %d", size)
}

// CurrentSize 当前打开的标签页数
func (pp *PagePool) CurrentSize() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return len(pp.pages)
}

// Close 关闭全部标签页, 之后 AcquirePage 返回错误
func (pp *PagePool) Close() {
	pp.mu.Lock()
	if pp.closed {
		pp.mu.Unlock()
		return
	}
	pp.closed = true
	pages := pp.pages
	pp.pages = nil
	pp.health = make(map[*rod.Page]*pageHealth)
	pp.mu.Unlock()

	for _, page := range pages {
		if err := page.Close(); err != nil {
			log.Debug().Err(err).Msg("关闭标签页失败")
		}
	}
	pp.metrics.SetRenderPages(0)
	log.Debug().Msg("标签页池已关闭")
}
