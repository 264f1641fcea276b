// Package cleaner 把原始HTML清洗为纯文本和结构标记
package cleaner

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/PageChunker/internal/models"
	"golang.org/x/net/html"
)

// 无论配置如何都会移除的元素
var (
	removeTags = []string{
		"script", "style", "noscript", "template", "iframe", "svg", "canvas",
		"nav", "header", "footer", "aside", "form", "button",
	}
	removeRoles = []string{
		"navigation", "banner", "contentinfo", "complementary", "search",
	}
	hiddenSelector = "[hidden], [aria-hidden=true]"
)

// blockTags 块级元素, 进入和离开时都会切断当前块
var blockTags = map[string]bool{
	"p": true, "div": true, "li": true, "ul": true, "ol": true, "dl": true, "dt": true, "dd": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"table": true, "thead": true, "tbody": true, "tr": true, "td": true, "th": true, "caption": true,
	"pre": true, "blockquote": true, "section": true, "article": true, "main": true,
	"figure": true, "figcaption": true, "address": true, "hr": true, "body": true, "details": true, "summary": true,
}

// Config 清洗配置
type Config struct {
	RemoveSelectors  []string `mapstructure:"remove_selectors"`   // 额外移除的CSS选择器, 如cookie横幅
	DetectErrorPages bool     `mapstructure:"detect_error_pages"` // 识别登录页和404页
	DefaultLanguage  string   `mapstructure:"default_language"`
}

// DefaultConfig 默认清洗配置
func DefaultConfig() Config {
	return Config{
		RemoveSelectors: []string{
			"#cookie-banner", ".cookie-banner", ".cookie-consent", "#onetrust-banner-sdk",
			"[class*=cookie-notice]", "[id*=cookie-consent]",
		},
		DetectErrorPages: true,
		DefaultLanguage:  "en",
	}
}

// Cleaner 无状态清洗器, 可并发使用
type Cleaner struct {
	cfg Config
}

// New 创建清洗器
func New(cfg Config) *Cleaner {
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	return &Cleaner{cfg: cfg}
}

type textBlock struct {
	text  string
	level int // 0 为段落, 1-6 为标题
}

// Clean 清洗原始HTML
// 没有可见文本, 或被识别为登录页/404页时返回 EmptyContentError
func (c *Cleaner) Clean(url, raw string) (models.CleanedPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return models.CleanedPage{}, fmt.Errorf("解析HTML失败: %w", err)
	}

	title := collapse(doc.Find("title").First().Text())
	language := DetectLanguage(doc, c.cfg.DefaultLanguage)

	hasPassword := doc.Find("input[type=password]").Length() > 0
	c.strip(doc)

	if c.cfg.DetectErrorPages {
		if reason := DetectErrorPage(doc, title, hasPassword); reason != "" {
			return models.CleanedPage{}, &models.EmptyContentError{URL: url, Reason: reason}
		}
	}

	root := doc.Find("main, [role=main]").First()
	if root.Length() == 0 {
		root = doc.Find("body").First()
	}
	if root.Length() == 0 {
		root = doc.Selection
	}

	var blocks []textBlock
	for _, n := range root.Nodes {
		blocks = extractBlocks(n, blocks)
	}
	if len(blocks) == 0 {
		return models.CleanedPage{}, &models.EmptyContentError{URL: url, Reason: "页面没有可见文本"}
	}

	var (
		sb      strings.Builder
		markers = make([]models.StructuralMarker, 0, len(blocks))
		offset  int
	)
	for i, b := range blocks {
		if i > 0 {
			sb.WriteByte('\n')
			offset++
		}
		m := models.StructuralMarker{Type: models.MarkerParagraph, Offset: offset}
		if b.level > 0 {
			m.Type = models.MarkerHeading
			m.Level = b.level
		}
		markers = append(markers, m)
		sb.WriteString(b.text)
		offset += models.CharCount(b.text)
	}

	return models.CleanedPage{
		URL:               url,
		FullText:          sb.String(),
		StructuralMarkers: markers,
		Title:             title,
		Language:          language,
	}, nil
}

// strip 移除模板元素、导航类角色、隐藏元素和配置的选择器
func (c *Cleaner) strip(doc *goquery.Document) {
	doc.Find(strings.Join(removeTags, ", ")).Remove()

	roles := make([]string, len(removeRoles))
	for i, r := range removeRoles {
		roles[i] = fmt.Sprintf("[role=%s]", r)
	}
	doc.Find(strings.Join(roles, ", ")).Remove()
	doc.Find(hiddenSelector).Remove()

	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		style = strings.ToLower(strings.Join(strings.Fields(style), ""))
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			s.Remove()
		}
	})

	for _, sel := range c.cfg.RemoveSelectors {
		if sel = strings.TrimSpace(sel); sel != "" {
			doc.Find(sel).Remove()
		}
	}
}

// extractBlocks 深度优先遍历, 在块级元素和 <br> 处切分文本
func extractBlocks(root *html.Node, blocks []textBlock) []textBlock {
	var (
		buf     strings.Builder
		heading int
	)
	flush := func() {
		text := collapse(buf.String())
		buf.Reset()
		if text != "" {
			blocks = append(blocks, textBlock{text: text, level: heading})
		}
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			buf.WriteString(n.Data)
			return
		case html.CommentNode, html.DoctypeNode:
			return
		case html.ElementNode:
			if n.Data == "head" {
				return
			}
			if n.Data == "br" {
				flush()
				return
			}
			if blockTags[n.Data] {
				flush()
				saved := heading
				if lvl := headingLevel(n.Data); lvl > 0 && heading == 0 {
					heading = lvl
				}
				for child := n.FirstChild; child != nil; child = child.NextSibling {
					walk(child)
				}
				flush()
				heading = saved
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}

	walk(root)
	flush()
	return blocks
}

func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

// collapse 把连续空白折叠为单个空格
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
