package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/RecoveryAshes/PageChunker/internal/models"
	"github.com/bmatcuk/doublestar/v4"
)

// LoadURLMaps 从一个或多个文件(支持 ** 通配)加载URL映射
// 单个文件原样返回, 多个文件按给定顺序合并; 缺失的文件跳过并告警
func LoadURLMaps(patterns ...string) (*models.URLMap, error) {
	paths, err := expandPatterns(patterns)
	if err != nil {
		return nil, err
	}

	maps := make([]*models.URLMap, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				Warnf("⚠️  URL映射文件不存在, 已跳过: %s", p)
				continue
			}
			return nil, fmt.Errorf("读取URL映射文件失败: %w", err)
		}

		m, err := models.ParseURLMap(data)
		if err != nil {
			return nil, fmt.Errorf("解析 %s 失败: %w", p, err)
		}
		Debugf("加载URL映射: %s (%d 个URL)", p, m.Len())
		maps = append(maps, m)
	}

	if len(maps) == 0 {
		return nil, &models.InvalidURLMapError{Reason: "没有找到可用的URL映射文件"}
	}

	merged := models.MergeURLMaps(maps...)
	if merged.Len() == 0 {
		return nil, &models.InvalidURLMapError{Reason: "URL映射中没有任何URL"}
	}

	Infof("📂 从 %d 个文件加载了 %d 个URL", len(maps), merged.Len())
	return merged, nil
}

// expandPatterns 展开通配符, 保持参数顺序并去重
// 普通路径原样保留, 由调用方处理不存在的情况
func expandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, pattern := range patterns {
		if !doublestar.ValidatePathPattern(pattern) {
			return nil, fmt.Errorf("无效的文件匹配模式: %s", pattern)
		}
		if !hasMeta(pattern) {
			add(pattern)
			continue
		}

		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("展开文件匹配模式失败: %w", err)
		}
		if len(matches) == 0 {
			Warnf("⚠️  模式未匹配任何文件: %s", pattern)
		}
		for _, m := range matches {
			add(m)
		}
	}
	return out, nil
}

func hasMeta(pattern string) bool {
	for _, c := range pattern {
		switch c {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}
