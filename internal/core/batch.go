package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/RecoveryAshes/PageChunker/internal/models"
	"github.com/RecoveryAshes/PageChunker/internal/utils"
	"github.com/schollz/progressbar/v3"
)

// BatchCoordinator 批次协调器
// 批次之间严格顺序执行, 批次内部由工作池并发处理, 结果按输入顺序返回
type BatchCoordinator struct {
	processor    Processor
	size         int
	timeout      time.Duration
	showProgress bool
}

// BatchSummary 批量处理摘要
type BatchSummary struct {
	TotalURLs     int
	Processed     int
	StatusCounts  map[models.PageStatus]int
	TotalChars    int
	TotalDuration float64
	Interrupted   bool
}

// NewBatchCoordinator 创建批次协调器
func NewBatchCoordinator(p Processor, cfg BatchConfig, showProgress bool) *BatchCoordinator {
	size := cfg.Size
	if size < 1 {
		size = 1
	}
	return &BatchCoordinator{processor: p, size: size, timeout: cfg.Timeout, showProgress: showProgress}
}

// Run 处理全部URL记录
// ctx 结束时不再启动新批次, 返回已产出的记录和 ctx.Err();
// 当前批次中未完成的URL记为 fetch_failed
func (bc *BatchCoordinator) Run(ctx context.Context, records []models.URLRecord) ([]models.PageRecord, error) {
	results := make([]models.PageRecord, 0, len(records))
	if len(records) == 0 {
		return results, nil
	}

	totalBatches := (len(records) + bc.size - 1) / bc.size
	utils.Infof("🚀 开始处理: %d个URL, %d个批次 (每批%d)", len(records), totalBatches, bc.size)

	var bar *progressbar.ProgressBar
	if bc.showProgress {
		bar = utils.NewProgressBar(len(records), "处理页面")
		defer func() { _ = bar.Finish() }()
	}

	startTime := time.Now()
	for n, start := 1, 0; start < len(records); n, start = n+1, start+bc.size {
		if ctx.Err() != nil {
			utils.Warnf("⚠️  运行已取消, 跳过剩余 %d 个URL", len(records)-start)
			break
		}

		end := min(start+bc.size, len(records))
		batchStart := time.Now()
		out := bc.runBatch(ctx, records[start:end], bar)
		results = append(results, out...)

		ok, failed := countOutcomes(out)
		utils.Infof("📦 批次 %d/%d 完成: ✅ %d, ❌ %d, 耗时 %.2f秒", n, totalBatches, ok, failed, time.Since(batchStart).Seconds())
	}

	summary := summarize(records, results, time.Since(startTime), ctx.Err() != nil)
	bc.printSummary(summary)

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// runBatch 处理一个批次, 每个结果写入对应槽位
func (bc *BatchCoordinator) runBatch(ctx context.Context, batch []models.URLRecord, bar *progressbar.ProgressBar) []models.PageRecord {
	bctx := ctx
	if bc.timeout > 0 {
		var cancel context.CancelFunc
		bctx, cancel = context.WithTimeout(ctx, bc.timeout)
		defer cancel()
	}

	slots := make([]models.PageRecord, len(batch))
	done := make([]bool, len(batch))
	queue := NewWorkQueue(batch)

	var wg sync.WaitGroup
	for range min(bc.size, len(batch)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				j, ok := queue.Pop(bctx)
				if !ok {
					return
				}
				slots[j.index] = bc.process(bctx, j.record)
				done[j.index] = true
				if bar != nil {
					_ = bar.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	// 被放弃的URL
	for i := range slots {
		if done[i] {
			continue
		}
		cause := bctx.Err()
		if cause == nil {
			cause = context.Canceled
		}
		if errors.Is(cause, context.DeadlineExceeded) && ctx.Err() == nil {
			utils.Warnf("⏱️  批次超时, 未处理: %s", batch[i].URL)
		}
		slots[i] = models.NewFailedRecord(batch[i], models.PageFetchFailed, cause.Error())
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	return slots
}

// process 调用处理器, 处理器之外的panic同样转为失败记录
func (bc *BatchCoordinator) process(ctx context.Context, rec models.URLRecord) (record models.PageRecord) {
	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("💥 处理 %s 时发生panic: %v", rec.URL, r)
			record = models.NewFailedRecord(rec, models.PageFetchFailed, "处理panic")
		}
	}()
	return bc.processor.Process(ctx, rec)
}

func countOutcomes(records []models.PageRecord) (ok, failed int) {
	for _, r := range records {
		if r.Status.Failed() {
			failed++
		} else {
			ok++
		}
	}
	return ok, failed
}

func summarize(input []models.URLRecord, results []models.PageRecord, d time.Duration, interrupted bool) BatchSummary {
	s := BatchSummary{
		TotalURLs:     len(input),
		Processed:     len(results),
		StatusCounts:  make(map[models.PageStatus]int),
		TotalDuration: d.Seconds(),
		Interrupted:   interrupted,
	}
	for _, r := range results {
		s.StatusCounts[r.Status]++
		s.TotalChars += r.CharCount
	}
	return s
}

// printSummary 打印处理摘要
func (bc *BatchCoordinator) printSummary(summary BatchSummary) {
	utils.Info("==================================================")
	utils.Info("📊 处理摘要")
	utils.Info("==================================================")
	utils.Infof("总URL数: %d (已处理 %d)", summary.TotalURLs, summary.Processed)
	utils.Infof("✅ 成功: %d", summary.StatusCounts[models.PageOK])
	utils.Infof("🌐 渲染回退: %d", summary.StatusCounts[models.PageRenderedFallbackUsed])
	utils.Infof("❌ 抓取失败: %d", summary.StatusCounts[models.PageFetchFailed])
	utils.Infof("❌ 清洗失败: %d", summary.StatusCounts[models.PageCleanFailed])
	utils.Infof("📝 总字符数: %d", summary.TotalChars)
	utils.Infof("⏱️  总耗时: %.2f秒", summary.TotalDuration)
	if summary.Interrupted {
		utils.Warn("⚠️  运行被中断, 结果不完整")
	}
	utils.Info("==================================================")
}
