package crawlers

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// SufficiencyConfig 快速路径内容充分性判定参数
type SufficiencyConfig struct {
	MinTextChars       int      `mapstructure:"min_text_chars" validate:"gte=0"`
	MinStructuralNodes int      `mapstructure:"min_structural_nodes" validate:"gte=0"`
	BlockPhrases       []string `mapstructure:"block_phrases"`
	NoscriptTriggers   bool     `mapstructure:"noscript_triggers"`
	// 渲染失败时是否保留仅因文本过短而不足的静态页面
	// 命中拦截短语或结构不足的页面始终判为失败
	KeepStaticOnRenderFailure bool `mapstructure:"keep_static_on_render_failure"`
}

// DefaultSufficiencyConfig 默认判定参数
func DefaultSufficiencyConfig() SufficiencyConfig {
	return SufficiencyConfig{
		MinTextChars:       200,
		MinStructuralNodes: 1,
		BlockPhrases:       []string{"javascript required", "enable javascript", "access denied"},
		NoscriptTriggers:   false,
	}
}

// Assessment 判定结果, Reason 仅在不充分时非空
// TooShort 表示唯一的问题是可见文本不足阈值
type Assessment struct {
	Sufficient      bool
	TooShort        bool
	Reason          string
	TextChars       int
	StructuralNodes int
}

var structuralTags = map[string]bool{
	"p": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "article": true, "section": true, "td": true, "blockquote": true, "pre": true,
}

// 可见文本统计时跳过的元素
var invisibleTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true, "head": true, "svg": true,
}

// Assess 判断快速路径返回的HTML是否足以跳过浏览器渲染
func Assess(body string, cfg SufficiencyConfig) Assessment {
	if strings.TrimSpace(body) == "" {
		return Assessment{Reason: "响应体为空"}
	}

	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return Assessment{Reason: fmt.Sprintf("HTML解析失败: %v", err)}
	}

	text, nodes, hasNoscript := scan(doc)
	a := Assessment{TextChars: len([]rune(text)), StructuralNodes: nodes}

	switch {
	case a.TextChars < cfg.MinTextChars:
		a.Reason = fmt.Sprintf("可见文本过短(%d < %d)", a.TextChars, cfg.MinTextChars)
		a.TooShort = a.TextChars > 0 && nodes >= cfg.MinStructuralNodes && blocked(text, cfg.BlockPhrases) == ""
	case nodes < cfg.MinStructuralNodes:
		a.Reason = fmt.Sprintf("结构节点不足(%d < %d)", nodes, cfg.MinStructuralNodes)
	case cfg.NoscriptTriggers && hasNoscript:
		a.Reason = "页面包含 <noscript>"
	default:
		if phrase := blocked(text, cfg.BlockPhrases); phrase != "" {
			a.Reason = fmt.Sprintf("命中拦截短语 %q", phrase)
			return a
		}
		a.Sufficient = true
	}
	return a
}

// blocked 返回文本中命中的第一个拦截短语
func blocked(text string, phrases []string) string {
	lower := strings.ToLower(text)
	for _, phrase := range phrases {
		if phrase = strings.ToLower(strings.TrimSpace(phrase)); phrase != "" && strings.Contains(lower, phrase) {
			return phrase
		}
	}
	return ""
}

// VisibleTextChars 可见文本的字符数, 渲染结果验收使用
func VisibleTextChars(body string) int {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return 0
	}
	text, _, _ := scan(doc)
	return len([]rune(text))
}

// scan 返回折叠空白后的可见文本、带文本的结构节点数, 以及是否存在 noscript
func scan(root *html.Node) (string, int, bool) {
	var (
		sb          strings.Builder
		nodes       int
		hasNoscript bool
	)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if n.Data == "noscript" {
				hasNoscript = true
			}
			if invisibleTags[n.Data] {
				return
			}
			if structuralTags[n.Data] {
				before := sb.Len()
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					walk(c)
				}
				if strings.TrimSpace(sb.String()[before:]) != "" {
					nodes++
				}
				return
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return strings.Join(strings.Fields(sb.String()), " "), nodes, hasNoscript
}
