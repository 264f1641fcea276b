package models

import (
	"fmt"
)

// InvalidURLMapError URL映射格式错误(致命,任何抓取前终止)
type InvalidURLMapError struct {
	Reason string
}

func (e *InvalidURLMapError) Error() string {
	return fmt.Sprintf("无效的URL映射: %s", e.Reason)
}

// InvalidChunkConfigError 分块配置错误(致命)
type InvalidChunkConfigError struct {
	Window  int
	Overlap int
	Reason  string
}

func (e *InvalidChunkConfigError) Error() string {
	return fmt.Sprintf("无效的分块配置 (window=%d, overlap=%d): %s", e.Window, e.Overlap, e.Reason)
}

// FetchError 单个URL的抓取失败
type FetchError struct {
	URL        string
	HTTPStatus int
	Permanent  bool // 永久错误(如404/410),不触发渲染回退
	Cause      error
}

func (e *FetchError) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("抓取失败 [%s] HTTP %d: %v", e.URL, e.HTTPStatus, e.Cause)
	}
	return fmt.Sprintf("抓取失败 [%s]: %v", e.URL, e.Cause)
}

// Unwrap 支持errors.Is/As
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// EmptyContentError 清洗后无可用文本
type EmptyContentError struct {
	URL    string
	Reason string
}

func (e *EmptyContentError) Error() string {
	return fmt.Sprintf("清洗后无内容 [%s]: %s", e.URL, e.Reason)
}

// ConfigError 配置文件错误
type ConfigError struct {
	FilePath string
	Cause    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置文件错误 [%s]: %v", e.FilePath, e.Cause)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}
