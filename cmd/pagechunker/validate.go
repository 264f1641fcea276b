package main

import (
	"fmt"

	"github.com/RecoveryAshes/PageChunker/internal/core"
	"github.com/RecoveryAshes/PageChunker/internal/models"
)

// 批次大小上限, 超过后并发的浏览器和连接数不可控
const maxBatchSize = 1000

// ValidateFlags 在任何抓取之前校验运行参数
// 分块参数错误原样返回 *models.InvalidChunkConfigError
func ValidateFlags(cfg *core.Config) error {
	if cfg.Select.MaxDepth < 0 {
		return fmt.Errorf("最大深度不能为负数,当前值: %d", cfg.Select.MaxDepth)
	}
	if cfg.Batch.Size < 1 || cfg.Batch.Size > maxBatchSize {
		return fmt.Errorf("批次大小必须在1-%d之间,当前值: %d", maxBatchSize, cfg.Batch.Size)
	}
	if cfg.Select.Limit < 0 {
		return fmt.Errorf("limit 不能为负数,当前值: %d", cfg.Select.Limit)
	}
	return cfg.Validate()
}

// ValidateSearchFlags 校验 search 子命令参数
func ValidateSearchFlags(indexDir, method string, limit int) error {
	if indexDir == "" {
		return fmt.Errorf("必须通过 --index 指定索引目录")
	}
	switch models.ChunkMethod(method) {
	case "", models.ChunkStructural, models.ChunkFixed:
	default:
		return fmt.Errorf("无效的分块方式: %s (有效值: structural, fixed)", method)
	}
	if limit < 1 || limit > 1000 {
		return fmt.Errorf("结果数必须在1-1000之间,当前值: %d", limit)
	}
	return nil
}
