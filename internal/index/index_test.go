package index

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RecoveryAshes/PageChunker/internal/models"
)

func chunk(url string, method models.ChunkMethod, i int, heading, text string) models.Chunk {
	return models.Chunk{URL: url, ChunkIndex: i, Method: method, Heading: heading, Text: text, CharCount: len(text)}
}

func sampleRecords() []models.PageRecord {
	return []models.PageRecord{
		{
			URL: "https://a.com/ring", Depth: 0, Language: "en", Status: models.PageOK,
			StructuralChunks: []models.Chunk{
				chunk("https://a.com/ring", models.ChunkStructural, 0, "Storage ring", "The storage ring keeps electrons circulating."),
				chunk("https://a.com/ring", models.ChunkStructural, 1, "Beamlines", "Beamlines deliver x-ray light to experiments."),
			},
			FixedChunks: []models.Chunk{
				chunk("https://a.com/ring", models.ChunkFixed, 0, "", "The storage ring keeps electrons circulating. Beamlines deliver"),
			},
		},
		{
			URL: "https://a.com/safety", Depth: 1, Language: "en", Status: models.PageRenderedFallbackUsed,
			StructuralChunks: []models.Chunk{
				chunk("https://a.com/safety", models.ChunkStructural, 0, "Safety", "Radiation safety training is mandatory."),
			},
			FixedChunks: []models.Chunk{},
		},
		{
			URL: "https://a.com/gone", Status: models.PageFetchFailed,
			StructuralChunks: []models.Chunk{chunk("https://a.com/gone", models.ChunkStructural, 0, "", "storage should not be indexed")},
			FixedChunks:      []models.Chunk{},
		},
	}
}

func newIndexed(t *testing.T) *ChunkIndex {
	t.Helper()
	ci, err := NewMemOnly()
	if err != nil {
		t.Fatalf("创建内存索引失败: %v", err)
	}
	t.Cleanup(func() { _ = ci.Close() })

	n, err := ci.IndexRecords(sampleRecords())
	if err != nil {
		t.Fatalf("索引失败: %v", err)
	}
	if n != 4 {
		t.Fatalf("期望索引4个分块(跳过失败页面), 得到 %d", n)
	}
	return ci
}

func TestIndexRecords_DocCount(t *testing.T) {
	ci := newIndexed(t)
	count, err := ci.DocCount()
	if err != nil || count != 4 {
		t.Errorf("期望4个文档, 得到 %d (%v)", count, err)
	}
}

func TestSearch(t *testing.T) {
	ci := newIndexed(t)

	tests := []struct {
		name    string
		query   string
		method  string
		wantIDs []string
	}{
		{"两种分块都命中", "storage", "", []string{"https://a.com/ring#structural-0", "https://a.com/ring#fixed-0"}},
		{"按分块方式过滤", "storage", "fixed", []string{"https://a.com/ring#fixed-0"}},
		{"标题命中", "safety", "structural", []string{"https://a.com/safety#structural-0"}},
		{"无结果", "cryogenics", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := ci.Search(tt.query, tt.method, 10)
			if err != nil {
				t.Fatalf("检索失败: %v", err)
			}
			got := make(map[string]bool, len(hits))
			for _, h := range hits {
				got[h.ID] = true
				if h.Score <= 0 {
					t.Errorf("得分应为正数: %+v", h)
				}
			}
			if len(hits) != len(tt.wantIDs) {
				t.Fatalf("期望 %d 条结果, 得到 %d: %v", len(tt.wantIDs), len(hits), hits)
			}
			for _, id := range tt.wantIDs {
				if !got[id] {
					t.Errorf("缺少结果 %s", id)
				}
			}
		})
	}
}

func TestSearch_HitFields(t *testing.T) {
	ci := newIndexed(t)
	hits, err := ci.Search("beamlines", "structural", 5)
	if err != nil || len(hits) != 1 {
		t.Fatalf("期望1条结果, 得到 %v (%v)", hits, err)
	}
	h := hits[0]
	if h.URL != "https://a.com/ring" || h.Method != "structural" || h.ChunkIndex != 1 || h.Heading != "Beamlines" {
		t.Errorf("结果字段不正确: %+v", h)
	}
	if !strings.Contains(strings.ToLower(h.Fragment), "beamlines") {
		t.Errorf("片段应包含查询词, 得到 %q", h.Fragment)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	ci := newIndexed(t)
	if _, err := ci.Search("  ", "", 5); err == nil {
		t.Error("空查询应返回错误")
	}
}

func TestIndexRecords_ManyBatches(t *testing.T) {
	ci, err := NewMemOnly()
	if err != nil {
		t.Fatalf("创建内存索引失败: %v", err)
	}
	defer ci.Close()

	rec := models.PageRecord{URL: "https://a.com/big", Status: models.PageOK, FixedChunks: []models.Chunk{}}
	for i := 0; i < 1203; i++ {
		rec.StructuralChunks = append(rec.StructuralChunks, chunk(rec.URL, models.ChunkStructural, i, "", fmt.Sprintf("paragraph number %d", i)))
	}

	n, err := ci.IndexRecords([]models.PageRecord{rec})
	if err != nil || n != 1203 {
		t.Fatalf("期望索引1203个分块, 得到 %d (%v)", n, err)
	}
	if count, _ := ci.DocCount(); count != 1203 {
		t.Errorf("期望1203个文档, 得到 %d", count)
	}
}

func TestCreateAndOpen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "chunks.bleve")

	ci, err := Create(dir)
	if err != nil {
		t.Fatalf("创建索引失败: %v", err)
	}
	if _, err := ci.IndexRecords(sampleRecords()); err != nil {
		t.Fatalf("索引失败: %v", err)
	}
	if err := ci.Close(); err != nil {
		t.Fatalf("关闭索引失败: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("打开索引失败: %v", err)
	}
	defer reopened.Close()
	if count, _ := reopened.DocCount(); count != 4 {
		t.Errorf("重新打开后期望4个文档, 得到 %d", count)
	}

	if _, err := Open(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("打开不存在的索引应返回错误")
	}
}

func TestDocumentID(t *testing.T) {
	if got := DocumentID("https://a.com/x", models.ChunkFixed, 3); got != "https://a.com/x#fixed-3" {
		t.Errorf("期望 https://a.com/x#fixed-3, 得到 %s", got)
	}
}
