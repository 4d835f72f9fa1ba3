package libretranslate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/xptranslate/pkg/langtag"
	"github.com/nerdneilsfield/xptranslate/pkg/providers"
	"github.com/nerdneilsfield/xptranslate/pkg/providers/retry"
)

const defaultEndpoint = "https://libretranslate.com"

// Config LibreTranslate配置
type Config struct {
	providers.BaseConfig
	RequiresAPIKey bool `json:"requires_api_key"` // 服务器是否需要API密钥
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	config := Config{
		BaseConfig: providers.DefaultConfig(),
	}
	config.APIEndpoint = defaultEndpoint
	return config
}

// Provider LibreTranslate提供商
type Provider struct {
	config     Config
	httpClient *http.Client
	retrier    *retry.NetworkRetrier
	logger     *zap.Logger

	mu        sync.RWMutex
	languages map[string]bool // 服务端支持的语言代码
}

var _ providers.Provider = (*Provider)(nil)

// New 创建新的LibreTranslate提供商
func New(config Config, logger *zap.Logger) (*Provider, error) {
	if config.APIEndpoint == "" {
		config.APIEndpoint = defaultEndpoint
	}
	config.APIEndpoint = strings.TrimRight(config.APIEndpoint, "/")
	client, err := config.HTTPClient()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	rc := retry.DefaultRetryConfig()
	rc.MaxAttempts = config.MaxRetries + 1
	rc.InitialDelay = config.RetryDelay
	return &Provider{
		config:     config,
		httpClient: client,
		retrier:    retry.NewNetworkRetrier(rc, logger),
		logger:     logger,
	}, nil
}

// Translate 执行翻译
func (p *Provider) Translate(ctx context.Context, req *providers.ProviderRequest) (*providers.ProviderResponse, error) {
	if p.knownLanguages() == nil {
		if err := p.fetchLanguages(ctx); err != nil {
			p.logger.Debug("获取语言列表失败，使用默认代码", zap.Error(err))
		}
	}

	target, err := p.languageCode(req.TargetLanguage)
	if err != nil {
		return nil, err
	}
	source := "auto"
	if !providers.IsAutoSource(req.SourceLanguage) {
		if source, err = p.languageCode(req.SourceLanguage); err != nil {
			return nil, err
		}
	}

	translateReq := TranslateRequest{
		Q:      req.Text,
		Source: source,
		Target: target,
		Format: "text",
	}
	if p.config.RequiresAPIKey && p.config.APIKey != "" {
		translateReq.APIKey = p.config.APIKey
	}
	if format, ok := req.Metadata["format"].(string); ok && format == "html" {
		translateReq.Format = "html"
	}

	body, err := json.Marshal(translateReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var result *TranslateResponse
	err = p.retrier.Do(ctx, "libretranslate.translate", func(ctx context.Context, _ int) error {
		result, err = p.translate(ctx, body)
		return err
	})
	if err != nil {
		return nil, err
	}

	resp := &providers.ProviderResponse{
		Text:       result.TranslatedText,
		TargetLang: target,
	}
	if result.DetectedLanguage != nil {
		resp.SourceLang = result.DetectedLanguage.Language
		resp.Metadata = map[string]any{"confidence": result.DetectedLanguage.Confidence}
	}
	return resp, nil
}

// GetName 获取提供商名称
func (p *Provider) GetName() string {
	return "libretranslate"
}

// GetCapabilities 获取提供商能力
func (p *Provider) GetCapabilities() providers.Capabilities {
	return providers.Capabilities{
		MaxTextLength:  5000,
		RequiresAPIKey: p.config.RequiresAPIKey,
	}
}

// HealthCheck 获取语言列表作为健康检查
func (p *Provider) HealthCheck(ctx context.Context) error {
	return p.fetchLanguages(ctx)
}

func (p *Provider) translate(ctx context.Context, body []byte) (*TranslateResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.APIEndpoint+"/translate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	p.config.ApplyHeaders(httpReq)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errorResp ErrorResponse
		if json.Unmarshal(respBody, &errorResp) == nil && errorResp.Error != "" {
			respBody = []byte(errorResp.Error)
		}
		return nil, providers.StatusError(resp.StatusCode, respBody)
	}

	var translateResp TranslateResponse
	if err := json.Unmarshal(respBody, &translateResp); err != nil {
		return nil, providers.NewError(providers.ErrCodeBadResponse, "failed to decode response: "+err.Error())
	}
	return &translateResp, nil
}

func (p *Provider) fetchLanguages(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.APIEndpoint+"/languages", nil)
	if err != nil {
		return err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch languages: %s", resp.Status)
	}

	var languages []Language
	if err := json.NewDecoder(resp.Body).Decode(&languages); err != nil {
		return err
	}

	known := make(map[string]bool, len(languages))
	for _, l := range languages {
		known[l.Code] = true
	}
	p.mu.Lock()
	p.languages = known
	p.mu.Unlock()
	return nil
}

func (p *Provider) knownLanguages() map[string]bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.languages
}

// languageCode 新版服务端使用 zh-Hans/zh-Hant，旧版使用 zh/zt
func (p *Provider) languageCode(tag string) (string, error) {
	known := p.knownLanguages()
	if langtag.IsChinese(tag) {
		traditional := langtag.IsTraditionalChinese(tag)
		if known["zh-Hans"] || known["zh-Hant"] {
			if traditional {
				return "zh-Hant", nil
			}
			return "zh-Hans", nil
		}
		if traditional {
			return "zt", nil
		}
		return "zh", nil
	}
	base, err := langtag.Base(tag)
	if err != nil {
		return "", providers.NewError(providers.ErrCodeUnsupported, fmt.Sprintf("unsupported language %q", tag))
	}
	if known != nil && !known[base] {
		return "", providers.NewError(providers.ErrCodeUnsupported, fmt.Sprintf("unsupported language %q", tag))
	}
	return base, nil
}

// Language 语言信息
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// TranslateRequest 翻译请求
type TranslateRequest struct {
	Q      string `json:"q"`                 // 要翻译的文本
	Source string `json:"source"`            // 源语言
	Target string `json:"target"`            // 目标语言
	Format string `json:"format"`            // 文本格式
	APIKey string `json:"api_key,omitempty"` // API密钥（如果需要）
}

// TranslateResponse 翻译响应
type TranslateResponse struct {
	TranslatedText   string `json:"translatedText"`
	DetectedLanguage *struct {
		Confidence float64 `json:"confidence"`
		Language   string  `json:"language"`
	} `json:"detectedLanguage,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error string `json:"error"`
}
