package chunker

import (
	"unicode"

	"github.com/RecoveryAshes/PageChunker/internal/models"
)

// Fixed 定长滑动窗口分块
//
// 窗口宽 Window 个字符, 下一个窗口从 end-Overlap 开始.
// 窗口结尾落在单词中间时回退到最近的空白(回退后仍须越过 start+Overlap);
// 下一个起点落在单词中间时回退到该词开头(仍须在上一个起点之后).
// 相邻块因此最多重叠 Overlap 加一个单词, 且覆盖全文不留空隙.
func (c *Chunker) Fixed(page models.CleanedPage) []models.Chunk {
	r := []rune(page.FullText)
	n := len(r)
	chunks := []models.Chunk{}
	if n == 0 {
		return chunks
	}

	window, overlap := c.cfg.Window, c.cfg.Overlap
	start := 0
	for {
		end := start + window
		if end >= n {
			chunks = append(chunks, c.newChunk(page.URL, models.ChunkFixed, len(chunks), string(r[start:]), start))
			break
		}

		if midWord(r, end) {
			for k := end - 1; k > start+overlap; k-- {
				if unicode.IsSpace(r[k]) {
					end = k
					break
				}
			}
		}
		chunks = append(chunks, c.newChunk(page.URL, models.ChunkFixed, len(chunks), string(r[start:end]), start))

		next := end - overlap
		if midWord(r, next) {
			ws := next
			for ws > 0 && !unicode.IsSpace(r[ws-1]) {
				ws--
			}
			if ws > start {
				next = ws
			}
		}
		start = next
	}
	return chunks
}

// midWord 位置 i 是否切在一个单词内部
func midWord(r []rune, i int) bool {
	return i > 0 && i < len(r) && !unicode.IsSpace(r[i]) && !unicode.IsSpace(r[i-1])
}
