// Package index 把分块写入 bleve 全文索引并提供检索
package index

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/RecoveryAshes/PageChunker/internal/models"
	"github.com/RecoveryAshes/PageChunker/internal/utils"
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// batchSize 每个bleve批次的文档数
const batchSize = 500

// fragmentRunes 没有高亮片段时截取的正文长度
const fragmentRunes = 200

// Document 索引中的一个分块
type Document struct {
	URL        string `json:"url"`
	Method     string `json:"method"`
	ChunkIndex int    `json:"chunk_index"`
	Heading    string `json:"heading"`
	Text       string `json:"text"`
	Depth      int    `json:"depth"`
	Language   string `json:"language"`
}

// DocumentID 文档ID: url#method-index
func DocumentID(url string, method models.ChunkMethod, index int) string {
	return fmt.Sprintf("%s#%s-%d", url, method, index)
}

// Hit 一条检索结果
type Hit struct {
	ID         string  `json:"id"`
	URL        string  `json:"url"`
	Method     string  `json:"method"`
	ChunkIndex int     `json:"chunk_index"`
	Heading    string  `json:"heading,omitempty"`
	Score      float64 `json:"score"`
	Fragment   string  `json:"fragment"`
}

// ChunkIndex 分块索引
type ChunkIndex struct {
	index bleve.Index
}

// Create 在 dir 新建索引, 已存在的索引会被删除
func Create(dir string) (*ChunkIndex, error) {
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("删除旧索引失败: %w", err)
	}
	idx, err := bleve.New(dir, buildMapping())
	if err != nil {
		return nil, fmt.Errorf("创建索引失败: %w", err)
	}
	return &ChunkIndex{index: idx}, nil
}

// Open 打开已有索引
func Open(dir string) (*ChunkIndex, error) {
	idx, err := bleve.Open(dir)
	if err != nil {
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			return nil, fmt.Errorf("索引不存在: %s", dir)
		}
		return nil, fmt.Errorf("打开索引失败: %w", err)
	}
	return &ChunkIndex{index: idx}, nil
}

// NewMemOnly 创建内存索引
func NewMemOnly() (*ChunkIndex, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("创建内存索引失败: %w", err)
	}
	return &ChunkIndex{index: idx}, nil
}

// buildMapping url/method/language 作为关键字精确匹配, heading/text 全文检索
func buildMapping() mapping.IndexMapping {
	keyword := bleve.NewKeywordFieldMapping()
	text := bleve.NewTextFieldMapping()
	numeric := bleve.NewNumericFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("url", keyword)
	doc.AddFieldMappingsAt("method", keyword)
	doc.AddFieldMappingsAt("language", keyword)
	doc.AddFieldMappingsAt("heading", text)
	doc.AddFieldMappingsAt("text", text)
	doc.AddFieldMappingsAt("chunk_index", numeric)
	doc.AddFieldMappingsAt("depth", numeric)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	return im
}

// IndexRecords 索引所有未失败页面的分块, 返回写入的文档数
func (ci *ChunkIndex) IndexRecords(records []models.PageRecord) (int, error) {
	batch := ci.index.NewBatch()
	total := 0

	flush := func() error {
		if batch.Size() == 0 {
			return nil
		}
		if err := ci.index.Batch(batch); err != nil {
			return fmt.Errorf("写入索引批次失败: %w", err)
		}
		batch = ci.index.NewBatch()
		return nil
	}

	for _, rec := range records {
		if rec.Status.Failed() {
			continue
		}
		for _, chunks := range [][]models.Chunk{rec.StructuralChunks, rec.FixedChunks} {
			for _, c := range chunks {
				doc := Document{
					URL:        rec.URL,
					Method:     string(c.Method),
					ChunkIndex: c.ChunkIndex,
					Heading:    c.Heading,
					Text:       c.Text,
					Depth:      rec.Depth,
					Language:   rec.Language,
				}
				if err := batch.Index(DocumentID(rec.URL, c.Method, c.ChunkIndex), doc); err != nil {
					return total, fmt.Errorf("添加文档失败: %w", err)
				}
				total++
				if batch.Size() >= batchSize {
					if err := flush(); err != nil {
						return total, err
					}
					utils.Debugf("已索引 %d 个分块", total)
				}
			}
		}
	}

	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

// Search 全文检索, method 为空时检索两种分块
func (ci *ChunkIndex) Search(q, method string, limit int) ([]Hit, error) {
	if strings.TrimSpace(q) == "" {
		return nil, errors.New("查询不能为空")
	}
	if limit <= 0 {
		limit = 10
	}

	textQuery := bleve.NewMatchQuery(q)
	textQuery.SetField("text")
	headingQuery := bleve.NewMatchQuery(q)
	headingQuery.SetField("heading")
	var qry query.Query = bleve.NewDisjunctionQuery(textQuery, headingQuery)

	if method != "" {
		methodQuery := bleve.NewTermQuery(method)
		methodQuery.SetField("method")
		qry = bleve.NewConjunctionQuery(qry, methodQuery)
	}

	req := bleve.NewSearchRequestOptions(qry, limit, 0, false)
	req.Fields = []string{"url", "method", "chunk_index", "heading", "text"}
	req.Highlight = bleve.NewHighlight()
	req.Highlight.AddField("text")

	res, err := ci.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("检索失败: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{ID: h.ID, Score: h.Score}
		if v, ok := h.Fields["url"].(string); ok {
			hit.URL = v
		}
		if v, ok := h.Fields["method"].(string); ok {
			hit.Method = v
		}
		if v, ok := h.Fields["chunk_index"].(float64); ok {
			hit.ChunkIndex = int(v)
		}
		if v, ok := h.Fields["heading"].(string); ok {
			hit.Heading = v
		}
		if frags := h.Fragments["text"]; len(frags) > 0 {
			hit.Fragment = markReplacer.Replace(frags[0])
		} else if v, ok := h.Fields["text"].(string); ok {
			hit.Fragment = truncateRunes(v, fragmentRunes)
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// 把HTML高亮标签换成终端可读的括号
var markReplacer = strings.NewReplacer("<mark>", "[", "</mark>", "]")

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// DocCount 文档总数
func (ci *ChunkIndex) DocCount() (uint64, error) {
	return ci.index.DocCount()
}

// Close 关闭索引
func (ci *ChunkIndex) Close() error {
	return ci.index.Close()
}
