package core

import (
	"fmt"

	"github.com/RecoveryAshes/PageChunker/internal/models"
)

// Select 把URL映射转为有序的URL记录序列
// 深度升序, 同一深度内保持首次出现顺序; 只保留 depth <= maxDepth 的记录;
// limit > 0 时截断为前 limit 条。重复的URL各自保留。
func Select(m *models.URLMap, maxDepth, limit int) ([]models.URLRecord, error) {
	if m == nil {
		return nil, &models.InvalidURLMapError{Reason: "URL映射为空"}
	}
	if maxDepth < 0 {
		return nil, fmt.Errorf("max_depth 不能为负数: %d", maxDepth)
	}

	var records []models.URLRecord

	switch m.Shape {
	case models.ShapeFlat:
		records = make([]models.URLRecord, 0, len(m.Flat))
		for _, e := range m.Flat {
			if e.URL == "" {
				return nil, &models.InvalidURLMapError{Reason: "扁平映射包含空URL"}
			}
			records = append(records, models.URLRecord{URL: e.URL, Depth: 0, Metadata: e.Metadata})
		}
	case models.ShapeDepthKeyed:
		for _, depth := range m.Depths() {
			if depth < 0 {
				return nil, &models.InvalidURLMapError{Reason: fmt.Sprintf("深度不能为负数: %d", depth)}
			}
			if depth > maxDepth {
				break
			}
			for _, u := range m.ByDepth[depth] {
				if u == "" {
					return nil, &models.InvalidURLMapError{Reason: fmt.Sprintf("深度 %d 包含空URL", depth)}
				}
				records = append(records, models.URLRecord{URL: u, Depth: depth, Metadata: map[string]any{}})
			}
		}
	default:
		return nil, &models.InvalidURLMapError{Reason: fmt.Sprintf("未知的映射形态: %d", m.Shape)}
	}

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	if records == nil {
		records = []models.URLRecord{}
	}
	return records, nil
}
