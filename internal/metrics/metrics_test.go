package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObservePage("ok")
	m.ObservePage("ok")
	m.ObservePage("fetch_failed")
	m.ObserveFetch(PathStatic, "ok", 120*time.Millisecond)
	m.ObserveFetch(PathRender, "error", time.Second)
	m.AddChunks("fixed", 7)
	m.AddChunks("structural", 0)
	m.SetRenderPages(3)

	if got := testutil.ToFloat64(m.pages.WithLabelValues("ok")); got != 2 {
		t.Errorf("期望 ok 页面 2, 得到 %v", got)
	}
	if got := testutil.ToFloat64(m.fetchAttempts.WithLabelValues(PathRender, "error")); got != 1 {
		t.Errorf("期望渲染失败 1, 得到 %v", got)
	}
	if got := testutil.ToFloat64(m.chunks.WithLabelValues("fixed")); got != 7 {
		t.Errorf("期望分块 7, 得到 %v", got)
	}
	if got := testutil.ToFloat64(m.renderPages); got != 3 {
		t.Errorf("期望标签页 3, 得到 %v", got)
	}
}

func TestMetrics_Exposition(t *testing.T) {
	m := New()
	m.ObservePage("clean_failed")

	expected := `
# HELP pagechunker_pages_total Processed pages by final status.
# TYPE pagechunker_pages_total counter
pagechunker_pages_total{status="clean_failed"} 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "pagechunker_pages_total"); err != nil {
		t.Errorf("指标输出不符: %v", err)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObservePage("ok")
	m.ObserveFetch(PathStatic, "ok", time.Millisecond)
	m.AddChunks("fixed", 1)
	m.SetRenderPages(1)
	if m.Registry() != nil {
		t.Error("nil 指标的 Registry 应为 nil")
	}
}
