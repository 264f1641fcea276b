package utils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RecoveryAshes/PageChunker/internal/models"
)

func sampleRecords() []models.PageRecord {
	ok := models.PageRecord{
		URL:       "https://a.com/",
		Depth:     0,
		FullText:  "Intro\nBody text",
		CharCount: 15,
		WordCount: 3,
		Title:     "A",
		Language:  "en",
		Status:    models.PageOK,
		FinalURL:  "https://a.com/home",
		StructuralChunks: []models.Chunk{
			{URL: "https://a.com/", ChunkIndex: 0, Method: models.ChunkStructural, Text: "Intro\nBody text", CharCount: 15},
		},
		FixedChunks: []models.Chunk{
			{URL: "https://a.com/", ChunkIndex: 0, Method: models.ChunkFixed, Text: "Intro\nBody text", CharCount: 15},
		},
	}
	failed := models.NewFailedRecord(models.URLRecord{URL: "https://b.com/", Depth: 1}, models.PageFetchFailed, "HTTP 404")
	return []models.PageRecord{ok, failed}
}

func TestReporter_WriteAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	reporter := NewReporter(dir)

	start := time.Now().Add(-2 * time.Second)
	err := reporter.WriteAll(sampleRecords(), RunInfo{RunID: "run-1", StartTime: start, EndTime: time.Now()})
	if err != nil {
		t.Fatalf("写入失败: %v", err)
	}

	for _, name := range []string{FullTextFile, StructuralChunksFile, FixedChunksFile, CharCountsFile, RedirectsFile, RunReportFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("缺少输出文件 %s: %v", name, err)
		}
	}

	var fullText []FullTextEntry
	readJSON(t, filepath.Join(dir, FullTextFile), &fullText)
	if len(fullText) != 2 {
		t.Fatalf("每个URL都应出现在 full_text.json 中, 得到 %d", len(fullText))
	}
	if fullText[0].URL != "https://a.com/" || fullText[1].Status != models.PageFetchFailed {
		t.Errorf("顺序或状态错误: %+v", fullText)
	}

	var structural []map[string]any
	readJSON(t, filepath.Join(dir, StructuralChunksFile), &structural)
	if chunks, ok := structural[1]["chunks"].([]any); !ok || len(chunks) != 0 {
		t.Errorf("失败页面的分块应为空数组, 得到 %v", structural[1]["chunks"])
	}

	var redirects map[string]string
	readJSON(t, filepath.Join(dir, RedirectsFile), &redirects)
	if redirects["https://a.com/"] != "https://a.com/home" {
		t.Errorf("重定向记录错误: %v", redirects)
	}

	var report models.RunReport
	readJSON(t, filepath.Join(dir, RunReportFile), &report)
	if report.RunID != "run-1" || report.TotalURLs != 2 {
		t.Errorf("运行报告错误: %+v", report)
	}
	if report.StatusCount[models.PageOK] != 1 || report.StatusCount[models.PageFetchFailed] != 1 {
		t.Errorf("状态计数错误: %v", report.StatusCount)
	}
}

func TestReporter_NoRedirectsFile(t *testing.T) {
	dir := t.TempDir()
	records := sampleRecords()
	records[0].FinalURL = records[0].URL

	if err := NewReporter(dir).WriteAll(records, RunInfo{StartTime: time.Now()}); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, RedirectsFile)); !os.IsNotExist(err) {
		t.Errorf("没有重定向时不应生成 %s", RedirectsFile)
	}
}

func TestReporter_EmptyRun(t *testing.T) {
	dir := t.TempDir()
	if err := NewReporter(dir).WriteAll(nil, RunInfo{StartTime: time.Now(), Interrupted: true}); err != nil {
		t.Fatalf("写入失败: %v", err)
	}

	var fullText []FullTextEntry
	readJSON(t, filepath.Join(dir, FullTextFile), &fullText)
	if fullText == nil || len(fullText) != 0 {
		t.Errorf("空运行应写出空数组")
	}
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取 %s 失败: %v", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("解析 %s 失败: %v", path, err)
	}
}
