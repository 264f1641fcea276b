package crawlers

import (
	"strings"
	"testing"
)

// richPage 返回足以通过判定的HTML
func richPage(title string) string {
	para := strings.Repeat("The storage ring delivers brilliant x-ray light to many beamlines. ", 4)
	return "<html><head><title>" + title + "</title></head><body><main><h1>" + title + "</h1>" +
		"<p>" + para + "</p><p>" + para + "</p></main></body></html>"
}

func TestAssess(t *testing.T) {
	cfg := DefaultSufficiencyConfig()

	tests := []struct {
		name       string
		body       string
		sufficient bool
		reason     string
	}{
		{"内容充分", richPage("Docs"), true, ""},
		{"空响应", "   ", false, "为空"},
		{"文本过短", "<html><body><p>Loading...</p></body></html>", false, "过短"},
		{
			"脚本不计入可见文本",
			"<html><body><div id=app></div><script>" + strings.Repeat("var x = 1;", 100) + "</script></body></html>",
			false, "过短",
		},
		{
			"没有结构节点",
			"<html><body><div>" + strings.Repeat("word ", 60) + "</div></body></html>",
			false, "结构节点",
		},
		{
			"拦截短语",
			"<html><body><p>" + strings.Repeat("filler text ", 30) + "Please ENABLE JavaScript to continue.</p></body></html>",
			false, "enable javascript",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Assess(tt.body, cfg)
			if a.Sufficient != tt.sufficient {
				t.Fatalf("期望充分=%v, 得到 %+v", tt.sufficient, a)
			}
			if tt.reason != "" && !strings.Contains(a.Reason, tt.reason) {
				t.Errorf("原因应包含 %q, 得到 %q", tt.reason, a.Reason)
			}
			if a.Sufficient && a.Reason != "" {
				t.Errorf("充分时原因应为空, 得到 %q", a.Reason)
			}
		})
	}
}

func TestAssess_Noscript(t *testing.T) {
	body := strings.Replace(richPage("Docs"), "</main>", "</main><noscript>Please enable scripts</noscript>", 1)

	if a := Assess(body, DefaultSufficiencyConfig()); !a.Sufficient {
		t.Errorf("默认不因 noscript 判定不足: %s", a.Reason)
	}

	cfg := DefaultSufficiencyConfig()
	cfg.NoscriptTriggers = true
	if a := Assess(body, cfg); a.Sufficient {
		t.Errorf("开启后 noscript 应判定不足")
	}
}

func TestAssess_Counts(t *testing.T) {
	a := Assess(`<body><h2>Title</h2><ul><li>One</li><li></li></ul><p>  </p></body>`, SufficiencyConfig{})
	if a.StructuralNodes != 2 {
		t.Errorf("期望2个结构节点, 得到 %d", a.StructuralNodes)
	}
	if a.TextChars != len("Title One") {
		t.Errorf("期望可见文本 %d, 得到 %d", len("Title One"), a.TextChars)
	}
}

func TestVisibleTextChars(t *testing.T) {
	got := VisibleTextChars(`<html><head><style>p{}</style></head><body><p>héllo   wörld</p><script>x()</script></body></html>`)
	if got != 11 {
		t.Errorf("期望 11, 得到 %d", got)
	}
}

func TestAssess_TooShort(t *testing.T) {
	cfg := DefaultSufficiencyConfig()
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"仅文本过短", `<body><h1>Beamline 7</h1><p>Closed for maintenance.</p></body>`, true},
		{"短页面命中拦截短语", `<body><h1>Access Denied</h1><p>Blocked.</p></body>`, false},
		{"没有结构节点", `<body><div>Loading</div></body>`, false},
		{"空壳页面", `<body><div id="root"></div></body>`, false},
		{"空响应体", ``, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Assess(tt.body, cfg)
			if a.Sufficient {
				t.Fatalf("期望不充分, 得到 %+v", a)
			}
			if a.TooShort != tt.want {
				t.Errorf("期望 TooShort=%v, 得到 %+v", tt.want, a)
			}
		})
	}
}
