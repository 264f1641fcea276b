package models

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ValidateURL 验证URL: 必须是带主机名的HTTP/HTTPS地址
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("无效的URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL必须是HTTP或HTTPS协议: %s", urlStr)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL必须包含主机名: %s", urlStr)
	}
	return nil
}

// HasExtension 判断URL路径是否以给定扩展名之一结尾(不区分大小写)
func HasExtension(urlStr string, exts []string) bool {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	if ext == "" {
		return false
	}
	for _, e := range exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// NewRunID 生成运行ID
func NewRunID() string {
	return uuid.New().String()
}
