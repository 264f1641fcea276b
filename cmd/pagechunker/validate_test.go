package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/RecoveryAshes/PageChunker/internal/core"
	"github.com/RecoveryAshes/PageChunker/internal/models"
)

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *core.Config)
		wantErr string
	}{
		{"默认配置", func(c *core.Config) {}, ""},
		{"负数深度", func(c *core.Config) { c.Select.MaxDepth = -1 }, "最大深度"},
		{"批次大小为0", func(c *core.Config) { c.Batch.Size = 0 }, "批次大小"},
		{"批次过大", func(c *core.Config) { c.Batch.Size = maxBatchSize + 1 }, "批次大小"},
		{"负数limit", func(c *core.Config) { c.Select.Limit = -3 }, "limit"},
		{"深度0合法", func(c *core.Config) { c.Select.MaxDepth = 0 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := core.DefaultConfig()
			tt.mutate(cfg)
			err := ValidateFlags(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("期望通过, 得到 %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("期望包含 %q 的错误, 得到 %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateFlags_ChunkConfig(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Chunk.Window, cfg.Chunk.Overlap = 200, 300

	var target *models.InvalidChunkConfigError
	if err := ValidateFlags(cfg); !errors.As(err, &target) {
		t.Errorf("期望 InvalidChunkConfigError, 得到 %v", err)
	}
}

func TestValidateSearchFlags(t *testing.T) {
	tests := []struct {
		name    string
		index   string
		method  string
		limit   int
		wantErr bool
	}{
		{"合法", "idx", "", 10, false},
		{"结构分块", "idx", "structural", 5, false},
		{"定长分块", "idx", "fixed", 5, false},
		{"缺少索引", "", "", 10, true},
		{"未知方式", "idx", "semantic", 10, true},
		{"limit为0", "idx", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSearchFlags(tt.index, tt.method, tt.limit)
			if (err != nil) != tt.wantErr {
				t.Errorf("期望出错=%v, 得到 %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigSnapshot_RedactsHeaders(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Fetch.Headers = map[string]string{"authorization": "Bearer secret-value", "x-team": "docs"}

	snap := configSnapshot(cfg)
	if snap.Fetch.Headers["Authorization"] != "Bearer ***" {
		t.Errorf("期望脱敏, 得到 %v", snap.Fetch.Headers)
	}
	if snap.Fetch.Headers["X-Team"] != "docs" {
		t.Errorf("普通头部应保留, 得到 %v", snap.Fetch.Headers)
	}
	if cfg.Fetch.Headers["authorization"] != "Bearer secret-value" {
		t.Error("不应修改原配置")
	}
}
