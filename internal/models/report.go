package models

import (
	"encoding/json"
	"time"
)

// RunReport 一次完整运行的报告(run_report.json)
type RunReport struct {
	RunID       string             `json:"run_id"`
	StartTime   time.Time          `json:"start_time"`
	EndTime     time.Time          `json:"end_time"`
	Duration    float64            `json:"duration"` // 秒
	Interrupted bool               `json:"interrupted"`
	TotalURLs   int                `json:"total_urls"`
	StatusCount map[PageStatus]int `json:"status_count"`
	Redirects   int                `json:"redirects"`
	Config      any                `json:"config,omitempty"` // 配置快照
}

// PageCharCount 单页字符统计
type PageCharCount struct {
	URL            string     `json:"url"`
	Title          string     `json:"title"`
	CharacterCount int        `json:"character_count"`
	WordCount      int        `json:"word_count"`
	Language       string     `json:"language"`
	Depth          int        `json:"depth"`
	Status         PageStatus `json:"status"`
}

// LanguageStats 按语言汇总
type LanguageStats struct {
	Pages      int `json:"pages"`
	Characters int `json:"characters"`
	Words      int `json:"words"`
}

// CharCountSummary 字符统计汇总
type CharCountSummary struct {
	TotalPages        int                      `json:"total_pages"`
	TotalCharacters   int                      `json:"total_characters"`
	TotalWords        int                      `json:"total_words"`
	AverageCharacters float64                  `json:"average_characters_per_page"`
	LanguageBreakdown map[string]LanguageStats `json:"language_breakdown"`
	StatusBreakdown   map[PageStatus]int       `json:"status_breakdown"`
}

// CharCountReport page_character_counts.json
type CharCountReport struct {
	Timestamp time.Time        `json:"timestamp"`
	Summary   CharCountSummary `json:"summary"`
	Pages     []PageCharCount  `json:"pages"`
}

// BuildCharCountReport 由页面记录生成字符统计
// 汇总只计入成功页面, 页面列表覆盖全部URL
func BuildCharCountReport(records []PageRecord, now time.Time) CharCountReport {
	report := CharCountReport{
		Timestamp: now,
		Summary: CharCountSummary{
			LanguageBreakdown: make(map[string]LanguageStats),
			StatusBreakdown:   make(map[PageStatus]int),
		},
		Pages: make([]PageCharCount, 0, len(records)),
	}

	for _, r := range records {
		report.Summary.StatusBreakdown[r.Status]++
		report.Pages = append(report.Pages, PageCharCount{
			URL:            r.URL,
			Title:          r.Title,
			CharacterCount: r.CharCount,
			WordCount:      r.WordCount,
			Language:       r.Language,
			Depth:          r.Depth,
			Status:         r.Status,
		})
		if r.Status.Failed() {
			continue
		}

		report.Summary.TotalPages++
		report.Summary.TotalCharacters += r.CharCount
		report.Summary.TotalWords += r.WordCount
		lang := report.Summary.LanguageBreakdown[r.Language]
		lang.Pages++
		lang.Characters += r.CharCount
		lang.Words += r.WordCount
		report.Summary.LanguageBreakdown[r.Language] = lang
	}

	if report.Summary.TotalPages > 0 {
		avg := float64(report.Summary.TotalCharacters) / float64(report.Summary.TotalPages)
		report.Summary.AverageCharacters = float64(int(avg*100+0.5)) / 100
	}
	return report
}

// ToJSON 序列化为JSON
func (r *RunReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
