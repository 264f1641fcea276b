package cleaner

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	loginPattern    = regexp.MustCompile(`(?i)\b(log\s*in|sign\s*in)\b`)
	notFoundPattern = regexp.MustCompile(`(?i)(page not found|\b404\b|\bnot found\b)`)
)

// 标题或标题元素超过这个长度时不参与错误页判断, 避免正文标题误判
const maxErrorHeadingChars = 80

// 可见正文超过这个长度的页面不按404判断, 真实的404页面都很短
const maxNotFoundPageChars = 600

// DetectErrorPage 识别登录页和404页, 返回原因; 普通页面返回空串
// 应在移除导航和页脚之后调用; hasPassword 需在移除表单之前取得.
// 规则保守: 登录页必须同时有密码输入框和登录字样的标题,
// 404页必须正文较短且标题命中
func DetectErrorPage(doc *goquery.Document, title string, hasPassword bool) string {
	headings := make([]string, 0, 4)
	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		if text := collapse(s.Text()); text != "" && len([]rune(text)) <= maxErrorHeadingChars {
			headings = append(headings, text)
		}
	})
	if len([]rune(title)) <= maxErrorHeadingChars && title != "" {
		headings = append(headings, title)
	}

	if hasPassword {
		for _, h := range headings {
			if loginPattern.MatchString(h) {
				return "登录页面: " + h
			}
		}
	}

	if len([]rune(collapse(doc.Find("body").Text()))) > maxNotFoundPageChars {
		return ""
	}
	for _, h := range headings {
		if notFoundPattern.MatchString(h) {
			return "页面不存在: " + h
		}
	}
	return ""
}

// DetectLanguage 依次读取 html[lang], xml:lang, Content-Language 和 og:locale
// 归一化为两位小写字母, 都没有时返回 fallback
func DetectLanguage(doc *goquery.Document, fallback string) string {
	htmlEl := doc.Find("html").First()
	candidates := []string{
		htmlEl.AttrOr("lang", ""),
		htmlEl.AttrOr("xml:lang", ""),
	}

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		if strings.EqualFold(s.AttrOr("http-equiv", ""), "content-language") {
			candidates = append(candidates, s.AttrOr("content", ""))
		}
	})
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		if strings.EqualFold(s.AttrOr("property", ""), "og:locale") {
			candidates = append(candidates, s.AttrOr("content", ""))
		}
	})

	for _, c := range candidates {
		if lang := normalizeLanguage(c); lang != "" {
			return lang
		}
	}
	return fallback
}

// normalizeLanguage "en-US" / "de_DE" / " FR " -> "en" / "de" / "fr"
func normalizeLanguage(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if i := strings.IndexAny(raw, "-_,;"); i >= 0 {
		raw = raw[:i]
	}
	if len(raw) != 2 || raw[0] < 'a' || raw[0] > 'z' || raw[1] < 'a' || raw[1] > 'z' {
		return ""
	}
	return raw
}
