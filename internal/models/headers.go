package models

import (
	"fmt"
	"net/http"
	"strings"
)

// HeaderProvider 请求头提供者
// 快速抓取与浏览器渲染共用同一份已合并、已校验的请求头
type HeaderProvider interface {
	GetHeaders() (http.Header, error)
}

// StaticHeaders 固定请求头,测试和无配置场景使用
type StaticHeaders http.Header

// GetHeaders 实现 HeaderProvider
func (s StaticHeaders) GetHeaders() (http.Header, error) {
	return http.Header(s).Clone(), nil
}

// CliHeaders 命令行 -H 参数, 每项形如 "Name: Value"
type CliHeaders []string

// Parse 解析为 http.Header, 同名头部后者覆盖前者
func (ch CliHeaders) Parse() (http.Header, error) {
	out := make(http.Header, len(ch))
	for i, raw := range ch {
		name, value, ok := strings.Cut(raw, ":")
		if !ok {
			return nil, fmt.Errorf("参数 --header 第%d项缺少冒号, 应为 'Name: Value': %q", i+1, raw)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("参数 --header 第%d项头部名称为空", i+1)
		}
		out.Set(name, strings.TrimSpace(value))
	}
	return out, nil
}

// ValidationError 请求头校验失败
type ValidationError struct {
	Field      string // "name" 或 "value"
	HeaderName string
	Reason     string
	Suggestion string
}

func (e *ValidationError) Error() string {
	if e.Suggestion == "" {
		return fmt.Sprintf("头部验证失败 [%s]: %s", e.HeaderName, e.Reason)
	}
	return fmt.Sprintf("头部验证失败 [%s]: %s (建议: %s)", e.HeaderName, e.Reason, e.Suggestion)
}
