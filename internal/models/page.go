package models

import (
	"strings"
	"unicode/utf8"
)

// FetchStatus 抓取结果状态
type FetchStatus string

const (
	FetchOK                   FetchStatus = "ok"                     // 快速路径内容充分
	FetchFailed               FetchStatus = "fetch_failed"           // 永久错误或两条路径均失败
	FetchRenderedFallbackUsed FetchStatus = "rendered_fallback_used" // 使用了浏览器渲染回退
)

// PageStatus 页面记录的最终状态
type PageStatus string

const (
	PageOK                   PageStatus = "ok"
	PageRenderedFallbackUsed PageStatus = "rendered_fallback_used"
	PageFetchFailed          PageStatus = "fetch_failed"
	PageCleanFailed          PageStatus = "clean_failed"
)

// Failed 是否为失败状态
func (s PageStatus) Failed() bool {
	return s == PageFetchFailed || s == PageCleanFailed
}

// MarkerType 结构标记类型
type MarkerType string

const (
	MarkerHeading   MarkerType = "heading"
	MarkerParagraph MarkerType = "paragraph"
)

// ChunkMethod 分块方式
type ChunkMethod string

const (
	ChunkStructural ChunkMethod = "structural"
	ChunkFixed      ChunkMethod = "fixed"
)

// URLRecord 选择器产出的URL记录,创建后不再修改
type URLRecord struct {
	URL      string         `json:"url"`
	Depth    int            `json:"depth"`
	Metadata map[string]any `json:"metadata"`
}

// FetchResult 单个URL的抓取结果,仅由清洗器消费
type FetchResult struct {
	URL        string      `json:"url"`
	Status     FetchStatus `json:"status"`
	RawContent string      `json:"raw_content"`
	HTTPStatus int         `json:"http_status,omitempty"` // 0 表示没有HTTP响应
	Error      string      `json:"error,omitempty"`
	FinalURL   string      `json:"final_url,omitempty"` // 重定向后的URL
	Attempts   int         `json:"attempts"`            // 快速路径尝试次数
}

// StructuralMarker 结构边界事件
// Offset 为 FullText 中的字符(rune)偏移
type StructuralMarker struct {
	Type   MarkerType `json:"type"`
	Offset int        `json:"offset"`
	Level  int        `json:"level,omitempty"` // 仅标题: 1-6
}

// CleanedPage 清洗后的页面
type CleanedPage struct {
	URL               string             `json:"url"`
	FullText          string             `json:"full_text"`
	StructuralMarkers []StructuralMarker `json:"structural_markers"`
	Title             string             `json:"title,omitempty"`
	Language          string             `json:"language,omitempty"`
}

// Chunk 文本块
type Chunk struct {
	URL        string      `json:"url"`
	ChunkIndex int         `json:"chunk_index"`
	Method     ChunkMethod `json:"method"`
	Text       string      `json:"text"`
	CharCount  int         `json:"char_count"`
	Offset     int         `json:"offset"`
	Heading    string      `json:"heading,omitempty"`
	TokenCount int         `json:"token_count,omitempty"`
}

// PageRecord 单个URL的聚合记录,交给聚合器后不可变
type PageRecord struct {
	URL              string         `json:"url"`
	Depth            int            `json:"depth"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	FullText         string         `json:"full_text"`
	StructuralChunks []Chunk        `json:"structural_chunks"`
	FixedChunks      []Chunk        `json:"fixed_chunks"`
	CharCount        int            `json:"char_count"`
	WordCount        int            `json:"word_count"`
	Title            string         `json:"title,omitempty"`
	Language         string         `json:"language,omitempty"`
	Status           PageStatus     `json:"status"`
	HTTPStatus       int            `json:"http_status,omitempty"`
	FinalURL         string         `json:"final_url,omitempty"`
	Error            string         `json:"error,omitempty"`
}

// CharCount 按字符计数(与 Python len 语义一致)
func CharCount(s string) int {
	return utf8.RuneCountInString(s)
}

// WordCount 按空白切分的单词数
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// NewFailedRecord 构造失败记录: 空文本、空分块
func NewFailedRecord(rec URLRecord, status PageStatus, errMsg string) PageRecord {
	return PageRecord{
		URL:              rec.URL,
		Depth:            rec.Depth,
		Metadata:         rec.Metadata,
		StructuralChunks: []Chunk{},
		FixedChunks:      []Chunk{},
		Status:           status,
		Error:            errMsg,
	}
}
