// Package crawlers 负责抓取单个页面的原始HTML
//
// # 概述
//
// Fetcher 是一个两阶段状态机: 先走基于Colly的快速HTTP路径, 响应内容不足时
// 回退到基于go-rod的浏览器渲染。两条路径共用同一份请求头。
//
// # 核心组件
//
// ## Fetcher
//
//	f := NewFetcher(FetcherOptions{
//	    Fetch:       DefaultFetchConfig(),
//	    Sufficiency: DefaultSufficiencyConfig(),
//	    Render:      DefaultRenderConfig(),
//	    Headers:     headerManager,
//	    Renderer:    NewRodRenderer(DefaultRenderConfig(), nil),
//	})
//	result := f.Fetch(ctx, "https://example.com/docs")
//
// 结果分类:
//   - ok: 快速路径内容充分, 或开启 keep_static_on_render_failure 后渲染失败时保留的短文本静态页面
//   - rendered_fallback_used: 使用了渲染结果
//   - fetch_failed: 404/410、登录重定向等永久错误, 或两条路径都失败
//
// 瞬时错误(超时、5xx、408、429、网络错误)按 base·2^(n-1)·(0.5+rand) 退避重试,
// 其他4xx不重试, 直接进入渲染路径。
//
// ## Assess
//
// 判断快速路径的HTML是否足以跳过渲染: 可见文本长度、结构节点数、拦截短语、
// 可选的 <noscript> 检查。
//
// ## PagePool / ResourceMonitor
//
// 渲染器共享一个标签页池。ResourceMonitor 用 gopsutil 读取可用内存,
// 池容量为 min(内存可容纳数, CPU核数, render.max_pages)。
// AcquirePage 在池满时阻塞, ReleasePage 清理 localStorage、sessionStorage
// 和 cookie 后归还, 连续清理失败的标签页被销毁。
//
// ## HostLimiter
//
// 每个主机一个令牌桶, 每次快速路径请求前等待。
//
// # 错误
//
// ErrBrowserCrashed 和 ErrRendererUnavailable 可用 errors.Is 判断。
// 单个URL的失败不会以 error 返回, 而是写入 models.FetchResult。
package crawlers
