// Package microsoft 使用 Edge 浏览器内置翻译所用的微软翻译接口。
package microsoft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/xptranslate/pkg/langtag"
	"github.com/nerdneilsfield/xptranslate/pkg/providers"
	"github.com/nerdneilsfield/xptranslate/pkg/providers/retry"
)

const (
	defaultAuthURL   = "https://edge.microsoft.com/translate/auth"
	defaultEndpoint  = "https://api-edge.cognitive.microsofttranslator.com/translate"
	defaultUserAgent = "Mozilla/5.0 (Linux; Android 14) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Mobile Safari/537.36"
)

// Config 微软翻译配置
type Config struct {
	providers.BaseConfig
	AuthURL   string `json:"auth_url"`
	UserAgent string `json:"user_agent"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	cfg := Config{
		BaseConfig: providers.DefaultConfig(),
		AuthURL:    defaultAuthURL,
		UserAgent:  defaultUserAgent,
	}
	cfg.APIEndpoint = defaultEndpoint
	return cfg
}

// Provider 微软翻译提供商
type Provider struct {
	config     Config
	httpClient *http.Client
	retrier    *retry.NetworkRetrier
	logger     *zap.Logger

	mu    sync.Mutex
	token string
}

var _ providers.Provider = (*Provider)(nil)

// New 创建微软翻译提供商
func New(config Config, logger *zap.Logger) (*Provider, error) {
	if config.AuthURL == "" {
		config.AuthURL = defaultAuthURL
	}
	if config.APIEndpoint == "" {
		config.APIEndpoint = defaultEndpoint
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	client, err := config.HTTPClient()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	rc := retry.DefaultRetryConfig()
	rc.MaxAttempts = max(config.MaxRetries, 1)
	rc.InitialDelay = config.RetryDelay
	return &Provider{
		config:     config,
		httpClient: client,
		retrier:    retry.NewNetworkRetrier(rc, logger),
		logger:     logger,
	}, nil
}

type translateItem struct {
	Text string `json:"Text"`
}

type translateResult struct {
	Translations []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
	DetectedLanguage *struct {
		Language string  `json:"language"`
		Score    float64 `json:"score"`
	} `json:"detectedLanguage,omitempty"`
}

// Translate 按行拆分为多个条目一次请求，结果按行拼回
func (p *Provider) Translate(ctx context.Context, req *providers.ProviderRequest) (*providers.ProviderResponse, error) {
	to, err := languageCode(req.TargetLanguage)
	if err != nil {
		return nil, err
	}
	from := ""
	if !providers.IsAutoSource(req.SourceLanguage) {
		if from, err = languageCode(req.SourceLanguage); err != nil {
			return nil, err
		}
	}

	lines := strings.Split(req.Text, "\n")
	items := make([]translateItem, len(lines))
	for i, line := range lines {
		items[i] = translateItem{Text: line}
	}
	body, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var results []translateResult
	err = p.retrier.Do(ctx, "microsoft.translate", func(ctx context.Context, attempt int) error {
		token, err := p.authToken(ctx)
		if err != nil {
			return err
		}
		results, err = p.post(ctx, token, from, to, body)
		if err != nil {
			// 令牌可能已过期，下一次尝试重新获取
			p.clearToken()
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(results) != len(lines) {
		return nil, providers.NewError(providers.ErrCodeBadResponse,
			fmt.Sprintf("expected %d results, got %d", len(lines), len(results)))
	}
	out := make([]string, len(results))
	for i, r := range results {
		if len(r.Translations) == 0 {
			return nil, providers.NewError(providers.ErrCodeBadResponse, "empty translations")
		}
		out[i] = r.Translations[0].Text
	}

	resp := &providers.ProviderResponse{
		Text:       strings.Join(out, "\n"),
		TargetLang: to,
	}
	if d := results[0].DetectedLanguage; d != nil {
		resp.SourceLang = d.Language
	}
	return resp, nil
}

func (p *Provider) post(ctx context.Context, token, from, to string, body []byte) ([]translateResult, error) {
	q := url.Values{}
	q.Set("api-version", "3.0")
	q.Set("to", to)
	if from != "" {
		q.Set("from", from)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.APIEndpoint+"?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("User-Agent", p.config.UserAgent)
	p.config.ApplyHeaders(httpReq)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, providers.StatusError(resp.StatusCode, data)
	}

	var results []translateResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, providers.NewError(providers.ErrCodeBadResponse, "failed to decode response: "+err.Error())
	}
	return results, nil
}

func (p *Provider) authToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	token := p.token
	p.mu.Unlock()
	if token != "" {
		return token, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.AuthURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create auth request: %w", err)
	}
	httpReq.Header.Set("User-Agent", p.config.UserAgent)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read auth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", providers.StatusError(resp.StatusCode, data)
	}
	token = strings.TrimSpace(string(data))
	if token == "" {
		return "", providers.NewError(providers.ErrCodeAuthExpired, "empty auth token")
	}

	p.mu.Lock()
	p.token = token
	p.mu.Unlock()
	p.logger.Debug("获取微软翻译令牌成功")
	return token, nil
}

func (p *Provider) clearToken() {
	p.mu.Lock()
	p.token = ""
	p.mu.Unlock()
}

// languageCode 转换为微软翻译的语言代码，中文区分简繁
func languageCode(tag string) (string, error) {
	if langtag.IsChinese(tag) {
		if langtag.IsTraditionalChinese(tag) {
			return "zh-Hant", nil
		}
		return "zh-Hans", nil
	}
	base, err := langtag.Base(tag)
	if err != nil {
		return "", providers.NewError(providers.ErrCodeUnsupported, fmt.Sprintf("unsupported language %q", tag))
	}
	return base, nil
}

// GetName 获取提供商名称
func (p *Provider) GetName() string {
	return "microsoft"
}

// GetCapabilities 获取提供商能力
func (p *Provider) GetCapabilities() providers.Capabilities {
	return providers.Capabilities{
		MaxTextLength: 50000,
		SupportsBatch: true,
	}
}

// HealthCheck 健康检查
func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.authToken(ctx)
	return err
}
