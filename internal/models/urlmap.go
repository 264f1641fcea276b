package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// URLMapShape URL映射的两种形态
type URLMapShape int

const (
	ShapeDepthKeyed URLMapShape = iota // {"urls_by_depth": {"0": [...], ...}}
	ShapeFlat                          // {url: metadata},全部视为深度0
)

// FlatEntry 扁平映射中的一项(保留文件中的键顺序)
type FlatEntry struct {
	URL      string
	Metadata map[string]any
}

// URLMap 已解析的URL映射
type URLMap struct {
	Shape   URLMapShape
	ByDepth map[int][]string
	Flat    []FlatEntry
}

// Depths 升序返回所有深度
func (m *URLMap) Depths() []int {
	depths := make([]int, 0, len(m.ByDepth))
	for d := range m.ByDepth {
		depths = append(depths, d)
	}
	sort.Ints(depths)
	return depths
}

// Len URL总数(含重复)
func (m *URLMap) Len() int {
	if m.Shape == ShapeFlat {
		return len(m.Flat)
	}
	n := 0
	for _, urls := range m.ByDepth {
		n += len(urls)
	}
	return n
}

// ParseURLMap 解析URL映射JSON
// 含 urls_by_depth 键时按深度形态解析, 否则按扁平形态解析(保持键顺序)
func ParseURLMap(data []byte) (*URLMap, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, &InvalidURLMapError{Reason: fmt.Sprintf("顶层必须是JSON对象: %v", err)}
	}

	if raw, ok := top["urls_by_depth"]; ok {
		return parseDepthKeyed(raw)
	}
	return parseFlat(data)
}

func parseDepthKeyed(raw json.RawMessage) (*URLMap, error) {
	var byDepth map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byDepth); err != nil {
		return nil, &InvalidURLMapError{Reason: fmt.Sprintf("urls_by_depth 必须是对象: %v", err)}
	}

	m := &URLMap{Shape: ShapeDepthKeyed, ByDepth: make(map[int][]string, len(byDepth))}
	for key, list := range byDepth {
		depth, err := strconv.Atoi(key)
		if err != nil || depth < 0 {
			return nil, &InvalidURLMapError{Reason: fmt.Sprintf("深度键必须是非负整数: %q", key)}
		}
		var urls []string
		if err := json.Unmarshal(list, &urls); err != nil {
			return nil, &InvalidURLMapError{Reason: fmt.Sprintf("深度 %s 的值必须是字符串数组: %v", key, err)}
		}
		for _, u := range urls {
			if u == "" {
				return nil, &InvalidURLMapError{Reason: fmt.Sprintf("深度 %s 包含空URL", key)}
			}
		}
		m.ByDepth[depth] = append(m.ByDepth[depth], urls...)
	}
	return m, nil
}

// parseFlat 用Token流读取顶层对象, 以保留键的出现顺序
func parseFlat(data []byte) (*URLMap, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, &InvalidURLMapError{Reason: err.Error()}
	}

	m := &URLMap{Shape: ShapeFlat}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, &InvalidURLMapError{Reason: err.Error()}
		}
		key, ok := tok.(string)
		if !ok || key == "" {
			return nil, &InvalidURLMapError{Reason: fmt.Sprintf("扁平映射的键必须是非空URL字符串: %v", tok)}
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, &InvalidURLMapError{Reason: fmt.Sprintf("解析 %s 的元数据失败: %v", key, err)}
		}
		m.Flat = append(m.Flat, FlatEntry{URL: key, Metadata: toMetadata(value)})
	}
	return m, nil
}

func toMetadata(v any) map[string]any {
	switch val := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return val
	default:
		return map[string]any{"value": val}
	}
}

// MergeURLMaps 按优先级合并多个映射为深度形态
// 每个URL只保留一次, 取最浅深度, 顺序按首次出现; 扁平映射的元数据在合并后丢弃
// 单个映射原样返回(保留重复与元数据)
func MergeURLMaps(maps ...*URLMap) *URLMap {
	if len(maps) == 1 {
		return maps[0]
	}

	type placed struct {
		depth int
		order int
	}
	seen := make(map[string]placed)
	order := 0
	for _, m := range maps {
		visit := func(u string, depth int) {
			p, ok := seen[u]
			if !ok {
				seen[u] = placed{depth: depth, order: order}
				order++
				return
			}
			if depth < p.depth {
				seen[u] = placed{depth: depth, order: p.order}
			}
		}
		if m.Shape == ShapeFlat {
			for _, e := range m.Flat {
				visit(e.URL, 0)
			}
			continue
		}
		for _, d := range m.Depths() {
			for _, u := range m.ByDepth[d] {
				visit(u, d)
			}
		}
	}

	urls := make([]string, 0, len(seen))
	for u := range seen {
		urls = append(urls, u)
	}
	sort.Slice(urls, func(i, j int) bool { return seen[urls[i]].order < seen[urls[j]].order })

	merged := &URLMap{Shape: ShapeDepthKeyed, ByDepth: make(map[int][]string)}
	for _, u := range urls {
		d := seen[u].depth
		merged.ByDepth[d] = append(merged.ByDepth[d], u)
	}
	return merged
}
