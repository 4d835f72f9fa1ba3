package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// BaseConfig 基础配置
type BaseConfig struct {
	// API配置
	APIKey      string `json:"api_key,omitempty"`
	APIEndpoint string `json:"api_endpoint,omitempty"`

	// 超时和重试
	Timeout    time.Duration `json:"timeout"`
	MaxRetries int           `json:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay"`

	// 代理设置
	ProxyURL string `json:"proxy_url,omitempty"`

	// 自定义头部
	Headers map[string]string `json:"headers,omitempty"`
}

// DefaultConfig 返回默认配置。界面文本翻译对延迟敏感，超时取得较短。
func DefaultConfig() BaseConfig {
	return BaseConfig{
		Timeout:    10 * time.Second,
		MaxRetries: 3,
		RetryDelay: 200 * time.Millisecond,
		Headers:    make(map[string]string),
	}
}

// HTTPClient 根据配置创建 HTTP 客户端
func (c BaseConfig) HTTPClient() (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if c.ProxyURL != "" {
		proxy, err := parseProxy(c.ProxyURL)
		if err != nil {
			return nil, err
		}
		transport.Proxy = http.ProxyURL(proxy)
	}
	return &http.Client{Timeout: c.Timeout, Transport: transport}, nil
}

// ApplyHeaders 写入自定义头部
func (c BaseConfig) ApplyHeaders(req *http.Request) {
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}
}

// TranslationProvider 翻译后端的统一能力接口
type TranslationProvider interface {
	// Translate 执行翻译
	Translate(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error)

	// GetName 获取提供商名称
	GetName() string
}

// Provider 提供商接口（扩展 TranslationProvider）
type Provider interface {
	TranslationProvider

	// GetCapabilities 获取提供商能力
	GetCapabilities() Capabilities

	// HealthCheck 健康检查
	HealthCheck(ctx context.Context) error
}

// Capabilities 提供商能力
type Capabilities struct {
	// 最大文本长度，0 表示不限
	MaxTextLength int `json:"max_text_length"`

	// 是否支持批量翻译
	SupportsBatch bool `json:"supports_batch"`

	// 是否能保证方括号注释原样保留
	PreservesBrackets bool `json:"preserves_brackets"`

	// 是否需要API密钥
	RequiresAPIKey bool `json:"requires_api_key"`

	// 是否为本机后端
	Local bool `json:"local"`
}

// CapabilitiesOf 返回提供商声明的能力，未实现 Provider 时返回零值
func CapabilitiesOf(p TranslationProvider) Capabilities {
	if full, ok := p.(Provider); ok {
		return full.GetCapabilities()
	}
	return Capabilities{}
}

// Error 提供商错误
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsRetryable 判断错误是否可重试
func (e *Error) IsRetryable() bool {
	switch e.Code {
	case ErrCodeRateLimit, ErrCodeTimeout, ErrCodeServer, ErrCodeAuthExpired:
		return true
	default:
		return false
	}
}

// 错误代码
const (
	ErrCodeRateLimit   = "rate_limit"
	ErrCodeTimeout     = "timeout"
	ErrCodeServer      = "server_error"
	ErrCodeAuth        = "auth_error"
	ErrCodeAuthExpired = "auth_expired"
	ErrCodeBadRequest  = "bad_request"
	ErrCodeBadResponse = "bad_response"
	ErrCodeUnsupported = "unsupported"
)

// NewError 创建提供商错误
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// StatusError 按 HTTP 状态码构造错误
func StatusError(status int, body []byte) *Error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 256 {
		msg = msg[:256]
	}
	e := &Error{Message: msg, StatusCode: status}
	switch {
	case status == http.StatusTooManyRequests:
		e.Code = ErrCodeRateLimit
	case status == http.StatusUnauthorized:
		e.Code = ErrCodeAuthExpired
	case status == http.StatusForbidden:
		e.Code = ErrCodeAuth
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		e.Code = ErrCodeTimeout
	case status >= 500:
		e.Code = ErrCodeServer
	default:
		e.Code = ErrCodeBadRequest
	}
	return e
}

// ProviderRequest 提供商请求
type ProviderRequest struct {
	Text           string         `json:"text"`
	SourceLanguage string         `json:"source_language,omitempty"`
	TargetLanguage string         `json:"target_language,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// ProviderResponse 提供商响应
type ProviderResponse struct {
	Text       string         `json:"text"`
	SourceLang string         `json:"source_lang,omitempty"`
	TargetLang string         `json:"target_lang,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// IsAutoSource 源语言是否为自动检测
func IsAutoSource(lang string) bool {
	return lang == "" || strings.EqualFold(lang, "auto")
}
