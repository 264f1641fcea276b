package core

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/RecoveryAshes/PageChunker/internal/chunker"
	"github.com/RecoveryAshes/PageChunker/internal/cleaner"
	"github.com/RecoveryAshes/PageChunker/internal/metrics"
	"github.com/RecoveryAshes/PageChunker/internal/models"
	"github.com/RecoveryAshes/PageChunker/internal/utils"
)

// PageFetcher 抓取单个URL, crawlers.Fetcher 实现此接口
type PageFetcher interface {
	Fetch(ctx context.Context, url string) models.FetchResult
}

// Processor 把一个URL记录处理为页面记录
type Processor interface {
	Process(ctx context.Context, rec models.URLRecord) models.PageRecord
}

// PageProcessor 单个URL的处理流程: 抓取 → 清洗 → 分块
// 失败写入返回的记录, 不向上传播
type PageProcessor struct {
	fetcher PageFetcher
	cleaner *cleaner.Cleaner
	chunker *chunker.Chunker
	metrics *metrics.Metrics
}

// NewPageProcessor 创建页面处理器
func NewPageProcessor(f PageFetcher, cl *cleaner.Cleaner, ch *chunker.Chunker, m *metrics.Metrics) *PageProcessor {
	return &PageProcessor{fetcher: f, cleaner: cl, chunker: ch, metrics: m}
}

// Process 处理单个URL
func (p *PageProcessor) Process(ctx context.Context, rec models.URLRecord) (record models.PageRecord) {
	stage := models.PageFetchFailed

	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("💥 处理 %s 时发生panic: %v\n%s", rec.URL, r, debug.Stack())
			record = models.NewFailedRecord(rec, stage, fmt.Sprintf("处理panic: %v", r))
		}
		p.metrics.ObservePage(string(record.Status))
	}()

	fr := p.fetcher.Fetch(ctx, rec.URL)
	if fr.Status == models.FetchFailed {
		utils.Debugf("❌ 抓取失败 %s: %s", rec.URL, fr.Error)
		record = models.NewFailedRecord(rec, models.PageFetchFailed, fr.Error)
		record.HTTPStatus = fr.HTTPStatus
		record.FinalURL = fr.FinalURL
		return record
	}

	stage = models.PageCleanFailed
	page, err := p.cleaner.Clean(rec.URL, fr.RawContent)
	if err != nil {
		utils.Debugf("❌ 清洗失败 %s: %v", rec.URL, err)
		record = models.NewFailedRecord(rec, models.PageCleanFailed, err.Error())
		record.HTTPStatus = fr.HTTPStatus
		record.FinalURL = fr.FinalURL
		return record
	}

	structural, fixed := p.chunker.Chunk(page)
	p.metrics.AddChunks(string(models.ChunkStructural), len(structural))
	p.metrics.AddChunks(string(models.ChunkFixed), len(fixed))

	status := models.PageOK
	if fr.Status == models.FetchRenderedFallbackUsed {
		status = models.PageRenderedFallbackUsed
	}

	return models.PageRecord{
		URL:              rec.URL,
		Depth:            rec.Depth,
		Metadata:         rec.Metadata,
		FullText:         page.FullText,
		StructuralChunks: nonNilChunks(structural),
		FixedChunks:      nonNilChunks(fixed),
		CharCount:        models.CharCount(page.FullText),
		WordCount:        models.WordCount(page.FullText),
		Title:            page.Title,
		Language:         page.Language,
		Status:           status,
		HTTPStatus:       fr.HTTPStatus,
		FinalURL:         fr.FinalURL,
	}
}

func nonNilChunks(chunks []models.Chunk) []models.Chunk {
	if chunks == nil {
		return []models.Chunk{}
	}
	return chunks
}
