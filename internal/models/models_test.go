package models

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"有效的HTTP URL", "http://example.com", false},
		{"有效的HTTPS URL", "https://example.com", false},
		{"带路径的URL", "https://example.com/path/to/resource", false},
		{"无效的协议", "ftp://example.com", true},
		{"无效的URL", "not a url", true},
		{"空URL", "", true},
		{"无协议", "example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHasExtension(t *testing.T) {
	exts := []string{".pdf", ".PNG", ".zip"}
	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"PDF文件", "https://example.com/doc/report.pdf", true},
		{"大小写不敏感", "https://example.com/a/IMAGE.png", true},
		{"查询参数不影响", "https://example.com/file.zip?v=2", true},
		{"HTML页面", "https://example.com/index.html", false},
		{"无扩展名", "https://example.com/docs/intro", false},
		{"根路径", "https://example.com/", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasExtension(tt.url, exts); got != tt.want {
				t.Errorf("HasExtension(%q) = %v, 期望 %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestParseURLMap_DepthKeyed(t *testing.T) {
	data := []byte(`{"urls_by_depth": {"0": ["https://a.com/"], "1": ["https://a.com/x", "https://a.com/y"], "3": []}}`)

	m, err := ParseURLMap(data)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if m.Shape != ShapeDepthKeyed {
		t.Errorf("期望深度形态, 得到 %v", m.Shape)
	}
	if got := m.Depths(); !reflect.DeepEqual(got, []int{0, 1, 3}) {
		t.Errorf("期望深度 [0 1 3], 得到 %v", got)
	}
	if m.Len() != 3 {
		t.Errorf("期望3个URL, 得到 %d", m.Len())
	}
	if m.ByDepth[1][1] != "https://a.com/y" {
		t.Errorf("深度内顺序错误: %v", m.ByDepth[1])
	}
}

func TestParseURLMap_Flat(t *testing.T) {
	data := []byte(`{
		"https://z.com/": {"title": "Z"},
		"https://a.com/": null,
		"https://m.com/": "note"
	}`)

	m, err := ParseURLMap(data)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if m.Shape != ShapeFlat {
		t.Fatalf("期望扁平形态, 得到 %v", m.Shape)
	}

	wantOrder := []string{"https://z.com/", "https://a.com/", "https://m.com/"}
	for i, e := range m.Flat {
		if e.URL != wantOrder[i] {
			t.Errorf("位置 %d: 期望 %s, 得到 %s", i, wantOrder[i], e.URL)
		}
	}
	if m.Flat[0].Metadata["title"] != "Z" {
		t.Errorf("元数据丢失: %v", m.Flat[0].Metadata)
	}
	if m.Flat[1].Metadata == nil || len(m.Flat[1].Metadata) != 0 {
		t.Errorf("null 元数据应为空对象, 得到 %v", m.Flat[1].Metadata)
	}
	if m.Flat[2].Metadata["value"] != "note" {
		t.Errorf("非对象元数据应包装为 value, 得到 %v", m.Flat[2].Metadata)
	}
}

func TestParseURLMap_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"顶层为数组", `["https://a.com"]`},
		{"非JSON", `not json`},
		{"urls_by_depth不是对象", `{"urls_by_depth": [1, 2]}`},
		{"深度键非数字", `{"urls_by_depth": {"one": ["https://a.com"]}}`},
		{"负深度", `{"urls_by_depth": {"-1": ["https://a.com"]}}`},
		{"值不是字符串数组", `{"urls_by_depth": {"0": "https://a.com"}}`},
		{"空URL", `{"urls_by_depth": {"0": [""]}}`},
		{"扁平映射空键", `{"": {}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseURLMap([]byte(tt.data))
			var invalid *InvalidURLMapError
			if !errors.As(err, &invalid) {
				t.Errorf("期望 InvalidURLMapError, 得到 %v", err)
			}
		})
	}
}

func TestMergeURLMaps(t *testing.T) {
	first := &URLMap{Shape: ShapeDepthKeyed, ByDepth: map[int][]string{
		0: {"https://a.com/"},
		2: {"https://a.com/deep", "https://b.com/"},
	}}
	second := &URLMap{Shape: ShapeFlat, Flat: []FlatEntry{
		{URL: "https://b.com/", Metadata: map[string]any{"k": 1}},
		{URL: "https://c.com/"},
	}}

	merged := MergeURLMaps(first, second)
	if merged.Shape != ShapeDepthKeyed {
		t.Fatalf("合并结果应为深度形态")
	}

	want := map[int][]string{
		0: {"https://a.com/", "https://b.com/", "https://c.com/"},
		2: {"https://a.com/deep"},
	}
	if !reflect.DeepEqual(merged.ByDepth, want) {
		t.Errorf("期望 %v, 得到 %v", want, merged.ByDepth)
	}
}

func TestMergeURLMaps_Single(t *testing.T) {
	m := &URLMap{Shape: ShapeFlat, Flat: []FlatEntry{{URL: "https://a.com/"}, {URL: "https://a.com/"}}}
	if got := MergeURLMaps(m); got != m {
		t.Errorf("单个映射应原样返回")
	}
}

func TestCliHeaders_Parse(t *testing.T) {
	tests := []struct {
		name    string
		input   CliHeaders
		want    map[string]string
		wantErr bool
	}{
		{"单个头部", CliHeaders{"Authorization: Bearer x"}, map[string]string{"Authorization": "Bearer x"}, false},
		{"值中含冒号", CliHeaders{"Referer: https://a.com/"}, map[string]string{"Referer": "https://a.com/"}, false},
		{"后者覆盖前者", CliHeaders{"X-A: 1", "x-a: 2"}, map[string]string{"X-A": "2"}, false},
		{"缺少冒号", CliHeaders{"NoColon"}, nil, true},
		{"名称为空", CliHeaders{": value"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.input.Parse()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			for k, v := range tt.want {
				if got.Get(k) != v {
					t.Errorf("头部 %s: 期望 %q, 得到 %q", k, v, got.Get(k))
				}
			}
		})
	}
}

func TestStaticHeaders_ReturnsCopy(t *testing.T) {
	s := StaticHeaders{"User-Agent": {"test"}}
	h, _ := s.GetHeaders()
	h.Set("User-Agent", "changed")
	if s["User-Agent"][0] != "test" {
		t.Errorf("GetHeaders 应返回副本")
	}
}

func TestCharCount(t *testing.T) {
	if got := CharCount("héllo 世界"); got != 8 {
		t.Errorf("期望 8, 得到 %d", got)
	}
}

func TestNewFailedRecord(t *testing.T) {
	rec := URLRecord{URL: "https://a.com/", Depth: 1, Metadata: map[string]any{"k": "v"}}
	r := NewFailedRecord(rec, PageFetchFailed, "boom")

	if r.FullText != "" || r.CharCount != 0 {
		t.Errorf("失败记录不应有文本")
	}
	if r.StructuralChunks == nil || len(r.StructuralChunks) != 0 || r.FixedChunks == nil {
		t.Errorf("失败记录的分块应为空切片")
	}
	if !r.Status.Failed() {
		t.Errorf("状态应为失败")
	}
}

func TestBuildCharCountReport(t *testing.T) {
	records := []PageRecord{
		{URL: "https://a.com/", CharCount: 100, WordCount: 20, Language: "en", Status: PageOK},
		{URL: "https://b.com/", CharCount: 51, WordCount: 9, Language: "en", Status: PageRenderedFallbackUsed},
		{URL: "https://c.com/", CharCount: 40, WordCount: 4, Language: "de", Status: PageOK},
		{URL: "https://d.com/", Status: PageFetchFailed},
	}

	report := BuildCharCountReport(records, time.Now())
	s := report.Summary

	if s.TotalPages != 3 {
		t.Errorf("期望3个成功页面, 得到 %d", s.TotalPages)
	}
	if s.TotalCharacters != 191 {
		t.Errorf("期望总字符 191, 得到 %d", s.TotalCharacters)
	}
	if s.AverageCharacters != 63.67 {
		t.Errorf("期望平均 63.67, 得到 %v", s.AverageCharacters)
	}
	if s.LanguageBreakdown["en"].Pages != 2 || s.LanguageBreakdown["de"].Characters != 40 {
		t.Errorf("语言统计错误: %v", s.LanguageBreakdown)
	}
	if s.StatusBreakdown[PageFetchFailed] != 1 {
		t.Errorf("状态统计错误: %v", s.StatusBreakdown)
	}
	if len(report.Pages) != 4 {
		t.Errorf("页面列表应覆盖全部URL, 得到 %d", len(report.Pages))
	}
}
