// Package googlefree 调用无需密钥的 translate.googleapis.com 网页接口。
package googlefree

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/xptranslate/pkg/langtag"
	"github.com/nerdneilsfield/xptranslate/pkg/providers"
	"github.com/nerdneilsfield/xptranslate/pkg/providers/retry"
)

const defaultEndpoint = "https://translate.googleapis.com/translate_a/single"

// Config 免费 Google 翻译配置
type Config struct {
	providers.BaseConfig
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	config := Config{
		BaseConfig: providers.DefaultConfig(),
	}
	config.APIEndpoint = defaultEndpoint
	return config
}

// Provider 免费 Google 翻译提供商
type Provider struct {
	config     Config
	httpClient *http.Client
	retrier    *retry.NetworkRetrier
}

var _ providers.Provider = (*Provider)(nil)

// New 创建提供商
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

	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", source)
	q.Set("tl", target)
	q.Set("dt", "t")
	q.Set("q", req.Text)
	endpoint := p.config.APIEndpoint + "?" + q.Encode()

	var text, detected string
	err = p.retrier.Do(ctx, "googlefree.translate", func(ctx context.Context, _ int) error {
		data, err := p.get(ctx, endpoint)
		if err != nil {
			return err
		}
		text, detected, err = parseResponse(data)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &providers.ProviderResponse{
		Text:       text,
		SourceLang: detected,
		TargetLang: target,
	}, nil
}

func (p *Provider) get(ctx context.Context, endpoint string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
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
	return data, nil
}

// parseResponse 解析嵌套数组：[[["译文","原文",...],...],null,"en",...]
func parseResponse(data []byte) (string, string, error) {
	var root []json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil || len(root) == 0 {
		return "", "", providers.NewError(providers.ErrCodeBadResponse, "unexpected response shape")
	}

	var sentences [][]any
	if err := json.Unmarshal(root[0], &sentences); err != nil {
		return "", "", providers.NewError(providers.ErrCodeBadResponse, "unexpected sentence list")
	}

	var sb strings.Builder
	for _, s := range sentences {
		if len(s) == 0 {
			continue
		}
		if part, ok := s[0].(string); ok {
			sb.WriteString(part)
		}
	}

	var detected string
	if len(root) > 2 {
		json.Unmarshal(root[2], &detected)
	}
	return sb.String(), detected, nil
}

// languageCode Google 对中文区分 zh-CN 与 zh-TW
func languageCode(tag string) (string, error) {
	if langtag.IsChinese(tag) {
		if langtag.IsTraditionalChinese(tag) {
			return "zh-TW", nil
		}
		return "zh-CN", nil
	}
	base, err := langtag.Base(tag)
	if err != nil {
		return "", providers.NewError(providers.ErrCodeUnsupported, fmt.Sprintf("unsupported language %q", tag))
	}
	return base, nil
}

// GetName 获取提供商名称
func (p *Provider) GetName() string {
	return "googlefree"
}

// GetCapabilities 获取提供商能力
func (p *Provider) GetCapabilities() providers.Capabilities {
	return providers.Capabilities{
		MaxTextLength: 5000,
	}
}

// HealthCheck 健康检查
func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.Translate(ctx, &providers.ProviderRequest{Text: "Hello", TargetLanguage: "zh"})
	return err
}
