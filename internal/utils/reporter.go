package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/PageChunker/internal/models"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// 输出文件名
const (
	FullTextFile         = "full_text.json"
	StructuralChunksFile = "structural_chunks.json"
	FixedChunksFile      = "fixed_chunks.json"
	CharCountsFile       = "page_character_counts.json"
	RedirectsFile        = "redirected_urls.json"
	RunReportFile        = "run_report.json"
)

// RunInfo 运行信息, 写入 run_report.json
type RunInfo struct {
	RunID       string
	StartTime   time.Time
	EndTime     time.Time
	Interrupted bool
	Config      any
}

// FullTextEntry full_text.json 中的一项
type FullTextEntry struct {
	URL        string            `json:"url"`
	Depth      int               `json:"depth"`
	Status     models.PageStatus `json:"status"`
	Title      string            `json:"title"`
	Language   string            `json:"language"`
	FullText   string            `json:"full_text"`
	CharCount  int               `json:"char_count"`
	WordCount  int               `json:"word_count"`
	HTTPStatus int               `json:"http_status,omitempty"`
	FinalURL   string            `json:"final_url,omitempty"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]any    `json:"metadata"`
}

// ChunkEntry structural_chunks.json / fixed_chunks.json 中的一项
type ChunkEntry struct {
	URL    string            `json:"url"`
	Depth  int               `json:"depth"`
	Status models.PageStatus `json:"status"`
	Chunks []models.Chunk    `json:"chunks"`
}

// Reporter 结果聚合器: 把有序的页面记录写成输出文件
type Reporter struct {
	outputDir string
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string) *Reporter {
	return &Reporter{outputDir: outputDir}
}

// OutputDir 输出目录
func (r *Reporter) OutputDir() string {
	return r.outputDir
}

// WriteAll 一次性写出全部输出文件, 各文件并发写入
// 失败的URL同样出现在每个文件中
func (r *Reporter) WriteAll(records []models.PageRecord, info RunInfo) error {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}

	fullText := make([]FullTextEntry, 0, len(records))
	structural := make([]ChunkEntry, 0, len(records))
	fixed := make([]ChunkEntry, 0, len(records))
	redirects := make(map[string]string)
	statusCount := make(map[models.PageStatus]int)

	for _, rec := range records {
		metadata := rec.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		fullText = append(fullText, FullTextEntry{
			URL:        rec.URL,
			Depth:      rec.Depth,
			Status:     rec.Status,
			Title:      rec.Title,
			Language:   rec.Language,
			FullText:   rec.FullText,
			CharCount:  rec.CharCount,
			WordCount:  rec.WordCount,
			HTTPStatus: rec.HTTPStatus,
			FinalURL:   rec.FinalURL,
			Error:      rec.Error,
			Metadata:   metadata,
		})
		structural = append(structural, ChunkEntry{URL: rec.URL, Depth: rec.Depth, Status: rec.Status, Chunks: nonNil(rec.StructuralChunks)})
		fixed = append(fixed, ChunkEntry{URL: rec.URL, Depth: rec.Depth, Status: rec.Status, Chunks: nonNil(rec.FixedChunks)})

		if rec.FinalURL != "" && rec.FinalURL != rec.URL {
			redirects[rec.URL] = rec.FinalURL
		}
		statusCount[rec.Status]++
	}

	end := info.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	runReport := models.RunReport{
		RunID:       info.RunID,
		StartTime:   info.StartTime,
		EndTime:     end,
		Duration:    end.Sub(info.StartTime).Seconds(),
		Interrupted: info.Interrupted,
		TotalURLs:   len(records),
		StatusCount: statusCount,
		Redirects:   len(redirects),
		Config:      info.Config,
	}
	charCounts := models.BuildCharCountReport(records, end)

	var g errgroup.Group
	write := func(name string, data any) {
		g.Go(func() error { return r.saveJSON(name, data) })
	}
	write(FullTextFile, fullText)
	write(StructuralChunksFile, structural)
	write(FixedChunksFile, fixed)
	write(CharCountsFile, charCounts)
	write(RunReportFile, runReport)
	if len(redirects) > 0 {
		write(RedirectsFile, redirects)
	}

	if err := g.Wait(); err != nil {
		return err
	}

	Infof("✅ 结果已写入: %s (%d 个URL, %d 个重定向)", r.outputDir, len(records), len(redirects))
	return nil
}

func nonNil(chunks []models.Chunk) []models.Chunk {
	if chunks == nil {
		return []models.Chunk{}
	}
	return chunks
}

// saveJSON 先写临时文件再重命名, 中断时不会留下半个文件
func (r *Reporter) saveJSON(filename string, data any) error {
	path := filepath.Join(r.outputDir, filename)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化 %s 失败: %w", filename, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, jsonData, 0644); err != nil {
		return fmt.Errorf("写入 %s 失败: %w", filename, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("写入 %s 失败: %w", filename, err)
	}

	Debugf("保存结果: %s", path)
	return nil
}

// NewProgressBar 创建进度条
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
