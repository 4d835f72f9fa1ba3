package deeplx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/xptranslate/pkg/langtag"
	"github.com/nerdneilsfield/xptranslate/pkg/providers"
	"github.com/nerdneilsfield/xptranslate/pkg/providers/retry"
)

const defaultEndpoint = "http://localhost:1188/translate"

// Config DeepLX配置
type Config struct {
	providers.BaseConfig
	AccessToken string `json:"access_token,omitempty"` // 可选的访问令牌
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	config := Config{
		BaseConfig: providers.DefaultConfig(),
	}
	config.APIEndpoint = defaultEndpoint
	return config
}

// Provider DeepLX提供商
type Provider struct {
	config     Config
	httpClient *http.Client
	retrier    *retry.NetworkRetrier
}

var _ providers.Provider = (*Provider)(nil)

// New 创建新的DeepLX提供商
func New(config Config, logger *zap.Logger) (*Provider, error) {
	if config.APIEndpoint == "" {
		config.APIEndpoint = defaultEndpoint
	}
	client, err := config.HTTPClient()
	if err != nil {
		return nil, err
	}
	rc := retry.DefaultRetryConfig()
	rc.MaxAttempts = config.MaxRetries + 1
	rc.InitialDelay = config.RetryDelay
	return &Provider{
		config:     config,
		httpClient: client,
		retrier:    retry.NewNetworkRetrier(rc, logger),
	}, nil
}

// Translate 执行翻译
func (p *Provider) Translate(ctx context.Context, req *providers.ProviderRequest) (*providers.ProviderResponse, error) {
	target, err := languageCode(req.TargetLanguage)
	if err != nil {
		return nil, err
	}
	source := "auto"
	if !providers.IsAutoSource(req.SourceLanguage) {
		if source, err = languageCode(req.SourceLanguage); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(TranslateRequest{
		Text:       req.Text,
		SourceLang: source,
		TargetLang: target,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var result *TranslateResponse
	err = p.retrier.Do(ctx, "deeplx.translate", func(ctx context.Context, _ int) error {
		result, err = p.translate(ctx, body)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &providers.ProviderResponse{
		Text:       result.Data,
		SourceLang: strings.ToLower(result.SourceLang),
		TargetLang: strings.ToLower(target),
	}, nil
}

// GetName 获取提供商名称
func (p *Provider) GetName() string {
	return "deeplx"
}

// GetCapabilities 获取提供商能力
func (p *Provider) GetCapabilities() providers.Capabilities {
	return providers.Capabilities{
		MaxTextLength: 5000,
	}
}

// HealthCheck 健康检查
func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.Translate(ctx, &providers.ProviderRequest{
		Text:           "Hello",
		SourceLanguage: "en",
		TargetLanguage: "zh",
	})
	return err
}

func (p *Provider) translate(ctx context.Context, body []byte) (*TranslateResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.APIEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.config.AccessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.config.AccessToken)
	}
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
	if resp.StatusCode != http.StatusOK {
		return nil, providers.StatusError(resp.StatusCode, respBody)
	}

	var translateResp TranslateResponse
	if err := json.Unmarshal(respBody, &translateResp); err != nil {
		return nil, providers.NewError(providers.ErrCodeBadResponse, "failed to decode response: "+err.Error())
	}
	// 业务错误码与 HTTP 状态码语义一致
	if translateResp.Code != http.StatusOK {
		return nil, providers.StatusError(translateResp.Code, []byte(translateResp.Message))
	}
	return &translateResp, nil
}

// languageCode DeepLX 使用大写代码，繁体中文写作 ZH-HANT
func languageCode(tag string) (string, error) {
	if langtag.IsTraditionalChinese(tag) {
		return "ZH-HANT", nil
	}
	base, err := langtag.Base(tag)
	if err != nil {
		return "", providers.NewError(providers.ErrCodeUnsupported, fmt.Sprintf("unsupported language %q", tag))
	}
	return strings.ToUpper(base), nil
}

// TranslateRequest 翻译请求
type TranslateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

// TranslateResponse 翻译响应
type TranslateResponse struct {
	Code       int    `json:"code"`
	Message    string `json:"message,omitempty"`
	Data       string `json:"data"`
	SourceLang string `json:"source_lang,omitempty"`
}
