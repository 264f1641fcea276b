package chunker

import (
	"sort"
	"strings"

	"github.com/RecoveryAshes/PageChunker/internal/models"
)

// block 全文中的一个块, [start, end) 为字符偏移, 不含块间的换行
type block struct {
	start, end int
	heading    bool
	level      int
}

// span 一个结构分块覆盖的连续区间
type span struct {
	start, end int
	heading    string
}

func (s span) size() int { return s.end - s.start }

// Structural 按标题层级切分
//
// 一个段落从标题开始, 直到下一个同级或更高级的标题; 第一个标题之前的文本单独成段.
// 过短的段落并入下一段, 末尾过短的段落并入上一段. 块永远不会被切开,
// 因此按顺序用 "\n" 连接所有分块即可还原全文.
func (c *Chunker) Structural(page models.CleanedPage) []models.Chunk {
	r := []rune(page.FullText)
	chunks := []models.Chunk{}
	if len(r) == 0 {
		return chunks
	}

	blocks := buildBlocks(r, page.StructuralMarkers)
	spans := c.sections(r, blocks)
	if c.cfg.MaxSectionChars > 0 {
		spans = c.splitLong(spans, blocks)
	}
	spans = mergeShort(spans, c.cfg.MinStructuralChars)

	for _, s := range spans {
		chunk := c.newChunk(page.URL, models.ChunkStructural, len(chunks), string(r[s.start:s.end]), s.start)
		chunk.Heading = s.heading
		chunks = append(chunks, chunk)
	}
	return chunks
}

// buildBlocks 由标记推出块边界
// 每个标记是一个块的起点, 块在下一个标记前的换行处结束
func buildBlocks(r []rune, markers []models.StructuralMarker) []block {
	n := len(r)
	ms := make([]models.StructuralMarker, 0, len(markers)+1)
	for _, m := range markers {
		if m.Offset >= 0 && m.Offset < n {
			ms = append(ms, m)
		}
	}
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].Offset < ms[j].Offset })

	// 同一偏移只保留一个标记, 标题优先
	dedup := ms[:0]
	for _, m := range ms {
		if k := len(dedup); k > 0 && dedup[k-1].Offset == m.Offset {
			if m.Type == models.MarkerHeading {
				dedup[k-1] = m
			}
			continue
		}
		dedup = append(dedup, m)
	}
	ms = dedup

	if len(ms) == 0 || ms[0].Offset > 0 {
		ms = append([]models.StructuralMarker{{Type: models.MarkerParagraph, Offset: 0}}, ms...)
	}

	blocks := make([]block, 0, len(ms))
	for i, m := range ms {
		end := n
		if i+1 < len(ms) {
			end = ms[i+1].Offset
			if end > m.Offset && r[end-1] == '\n' {
				end--
			}
		}
		blocks = append(blocks, block{
			start:   m.Offset,
			end:     end,
			heading: m.Type == models.MarkerHeading,
			level:   m.Level,
		})
	}
	return blocks
}

// sections 线性扫描块列表, 按标题层级划分段落
func (c *Chunker) sections(r []rune, blocks []block) []span {
	var (
		spans   []span
		current *span
		level   int // 0 表示前言
	)

	for i, b := range blocks {
		if b.heading {
			lvl := b.level
			if lvl < 1 || lvl > 6 {
				lvl = 1
			}
			if current == nil || level == 0 || lvl <= level {
				if current != nil {
					current.end = blocks[i-1].end
					spans = append(spans, *current)
				}
				current = &span{start: b.start, heading: strings.TrimSpace(string(r[b.start:b.end]))}
				level = lvl
				continue
			}
		}
		if current == nil {
			current = &span{start: b.start}
			level = 0
		}
	}
	current.end = blocks[len(blocks)-1].end
	spans = append(spans, *current)
	return spans
}

// splitLong 超过 MaxSectionChars 的段落在块边界处切开
func (c *Chunker) splitLong(spans []span, blocks []block) []span {
	limit := c.cfg.MaxSectionChars
	out := make([]span, 0, len(spans))
	bi := 0
	for _, s := range spans {
		if s.size() <= limit {
			out = append(out, s)
			continue
		}
		for bi < len(blocks) && blocks[bi].start < s.start {
			bi++
		}
		piece := span{start: s.start, heading: s.heading}
		for ; bi < len(blocks) && blocks[bi].end <= s.end; bi++ {
			b := blocks[bi]
			if b.end-piece.start > limit && b.start > piece.start {
				out = append(out, piece)
				piece = span{start: b.start, heading: s.heading}
			}
			piece.end = b.end
		}
		out = append(out, piece)
	}
	return out
}

// mergeShort 短于 minChars 的段落并入下一段, 末尾的短段落并入上一段
func mergeShort(spans []span, minChars int) []span {
	if minChars <= 0 || len(spans) <= 1 {
		return spans
	}
	out := make([]span, 0, len(spans))
	var pending *span
	for _, s := range spans {
		if pending != nil {
			s.start = pending.start
			if pending.heading != "" {
				s.heading = pending.heading
			}
			pending = nil
		}
		if s.size() < minChars {
			p := s
			pending = &p
			continue
		}
		out = append(out, s)
	}
	if pending != nil {
		if len(out) > 0 {
			out[len(out)-1].end = pending.end
		} else {
			out = append(out, *pending)
		}
	}
	return out
}
