// Package chunker 把清洗后的页面切分为结构分块和定长分块
package chunker

import (
	"github.com/RecoveryAshes/PageChunker/internal/models"
)

// Config 分块配置
type Config struct {
	Window             int    `mapstructure:"window"`               // 定长窗口(字符)
	Overlap            int    `mapstructure:"overlap"`              // 相邻窗口重叠(字符)
	MinStructuralChars int    `mapstructure:"min_structural_chars"` // 结构分块下限, 过短的段落合并
	MaxSectionChars    int    `mapstructure:"max_section_chars"`    // 结构分块上限, 0 表示不限
	TokenEncoding      string `mapstructure:"token_encoding"`       // 如 cl100k_base, 为空不统计token
}

// DefaultConfig 默认分块配置
func DefaultConfig() Config {
	return Config{
		Window:             500,
		Overlap:            75,
		MinStructuralChars: 30,
	}
}

// Validate 校验窗口与重叠
func (c Config) Validate() error {
	switch {
	case c.Window <= 0:
		return &models.InvalidChunkConfigError{Window: c.Window, Overlap: c.Overlap, Reason: "window 必须大于 0"}
	case c.Overlap < 0:
		return &models.InvalidChunkConfigError{Window: c.Window, Overlap: c.Overlap, Reason: "overlap 不能为负数"}
	case c.Overlap >= c.Window:
		return &models.InvalidChunkConfigError{Window: c.Window, Overlap: c.Overlap, Reason: "overlap 必须小于 window"}
	case c.MinStructuralChars < 0 || c.MaxSectionChars < 0:
		return &models.InvalidChunkConfigError{Window: c.Window, Overlap: c.Overlap, Reason: "结构分块上下限不能为负数"}
	}
	return nil
}

// Chunker 分块器, 创建后只读, 可被多个goroutine共享
type Chunker struct {
	cfg    Config
	tokens *tokenCounter
}

// New 校验配置并创建分块器
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{cfg: cfg, tokens: newTokenCounter(cfg.TokenEncoding)}, nil
}

// Config 返回分块配置
func (c *Chunker) Config() Config {
	return c.cfg
}

// Chunk 同时执行两种分块
func (c *Chunker) Chunk(page models.CleanedPage) (structural, fixed []models.Chunk) {
	return c.Structural(page), c.Fixed(page)
}

func (c *Chunker) newChunk(url string, method models.ChunkMethod, index int, text string, offset int) models.Chunk {
	return models.Chunk{
		URL:        url,
		ChunkIndex: index,
		Method:     method,
		Text:       text,
		CharCount:  models.CharCount(text),
		Offset:     offset,
		TokenCount: c.tokens.Count(text),
	}
}
