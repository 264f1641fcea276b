package utils

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/RecoveryAshes/PageChunker/internal/models"
)

func TestHeaderValidator_ValidateName(t *testing.T) {
	validator := NewHeaderValidator()

	tests := []struct {
		name        string
		headerName  string
		expectError bool
	}{
		{"合法名称-字母", "User-Agent", false},
		{"合法名称-数字", "X-Request-ID-123", false},
		{"合法名称-下划线", "X_Trace", false},
		{"非法名称-空格", "User Agent", true},
		{"非法名称-特殊字符", "User@Agent", true},
		{"非法名称-冒号", "X:Y", true},
		{"非法名称-空字符串", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateName(tt.headerName)
			if (err != nil) != tt.expectError {
				t.Errorf("期望错误=%v, 实际错误=%v", tt.expectError, err)
			}
		})
	}
}

func TestHeaderValidator_ValidateValue(t *testing.T) {
	validator := NewHeaderValidator()

	tests := []struct {
		name        string
		headerValue string
		expectError bool
	}{
		{"合法值-ASCII", "Mozilla/5.0", false},
		{"合法值-空字符串", "", false},
		{"合法值-长字符串", strings.Repeat(" ", 8000), false},
		{"非法值-超长", strings.Repeat("a", MaxHeaderValueLength+1), true},
		{"非法值-控制字符", "value\x00with\x01null", true},
		{"非法值-非ASCII", "中文", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateValue("X-Test", tt.headerValue)
			if (err != nil) != tt.expectError {
				t.Errorf("期望错误=%v, 实际错误=%v", tt.expectError, err)
			}
		})
	}
}

func TestHeaderValidator_Forbidden(t *testing.T) {
	validator := NewHeaderValidator()

	for _, name := range []string{"Host", "host", "Content-Length", "Connection"} {
		err := validator.ValidateHeader(name, "x")
		var vErr *models.ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("%s 应被禁止, 得到 %v", name, err)
		}
	}
	if validator.IsForbidden("X-Custom") {
		t.Error("X-Custom 不应被禁止")
	}
}

func TestHeaderValidator_Validate(t *testing.T) {
	validator := NewHeaderValidator()

	t.Run("合法的http.Header", func(t *testing.T) {
		headers := http.Header{
			"User-Agent": {"Mozilla/5.0"},
			"Accept":     {"text/html"},
		}
		if err := validator.Validate(headers); err != nil {
			t.Errorf("期望无错误, 实际错误=%v", err)
		}
	})

	t.Run("包含禁止头部", func(t *testing.T) {
		headers := http.Header{
			"User-Agent": {"Mozilla/5.0"},
			"Host":       {"example.com"},
		}
		if err := validator.Validate(headers); err == nil {
			t.Error("期望返回错误, 但无错误")
		}
	})
}

func TestHeaderRedactor(t *testing.T) {
	redactor := NewHeaderRedactor()

	tests := []struct {
		name   string
		header string
		value  string
		want   string
	}{
		{"Bearer令牌", "Authorization", "Bearer abcdefghijklmnop", "Bearer ***"},
		{"长密钥保留首尾", "X-Api-Key", "abcd1234567890wxyz", "abcd***wxyz"},
		{"短密钥完全隐藏", "X-Token", "short", "***"},
		{"Cookie", "Cookie", "sid=1", "***"},
		{"非敏感头部", "User-Agent", "Mozilla/5.0", "Mozilla/5.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := redactor.RedactHeaderValue(tt.header, tt.value); got != tt.want {
				t.Errorf("期望 %q, 得到 %q", tt.want, got)
			}
		})
	}
}

func TestHeaderRedactor_RedactToString(t *testing.T) {
	redactor := NewHeaderRedactor()
	headers := http.Header{
		"User-Agent":    {"ua"},
		"Authorization": {"Bearer secret-token"},
	}

	got := redactor.RedactToString(headers)
	want := "Authorization: Bearer ***, User-Agent: ua"
	if got != want {
		t.Errorf("期望 %q, 得到 %q", want, got)
	}
}
