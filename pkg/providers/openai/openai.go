// Package openai 通过 OpenAI 兼容的 chat/completions 接口调用大模型翻译，
// Gemini 的 OpenAI 兼容端点也走这里。
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/xptranslate/pkg/langtag"
	"github.com/nerdneilsfield/xptranslate/pkg/providers"
)

// GeminiBaseURL Gemini 的 OpenAI 兼容端点
const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

const systemPrompt = "You are a translation engine for user interface text. " +
	"Translate the user's message from %s to %s. " +
	"Reply with the translation only, keep line breaks, and keep every [bracketed] token unchanged."

// Config OpenAI配置
type Config struct {
	providers.BaseConfig
	Name        string  `json:"name"`
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	OrgID       string  `json:"org_id,omitempty"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		BaseConfig:  providers.DefaultConfig(),
		Name:        "openai",
		Model:       "gpt-4o-mini",
		Temperature: 0.3,
		MaxTokens:   2048,
	}
}

// GeminiConfig 返回走 Gemini 兼容端点的配置
func GeminiConfig() Config {
	cfg := DefaultConfig()
	cfg.Name = "gemini"
	cfg.Model = "gemini-2.0-flash"
	cfg.APIEndpoint = GeminiBaseURL
	return cfg
}

// Provider 大模型翻译提供商
type Provider struct {
	config Config
	client openai.Client
	logger *zap.Logger
}

var _ providers.Provider = (*Provider)(nil)

// New 创建提供商
func New(config Config, logger *zap.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, providers.NewError(providers.ErrCodeAuth, config.Name+": api key required")
	}
	if config.Name == "" {
		config.Name = "openai"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}
	if config.APIEndpoint != "" {
		opts = append(opts, option.WithBaseURL(config.APIEndpoint))
	}
	if config.OrgID != "" {
		opts = append(opts, option.WithOrganization(config.OrgID))
	}
	for k, v := range config.Headers {
		opts = append(opts, option.WithHeader(k, v))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(config.Timeout))
	}
	opts = append(opts, option.WithMaxRetries(max(config.MaxRetries, 0)))
	if config.ProxyURL != "" {
		client, err := config.HTTPClient()
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithHTTPClient(client))
	}

	return &Provider{
		config: config,
		client: openai.NewClient(opts...),
		logger: logger,
	}, nil
}

// Translate 执行翻译
func (p *Provider) Translate(ctx context.Context, req *providers.ProviderRequest) (*providers.ProviderResponse, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf(systemPrompt, languageName(req.SourceLanguage), languageName(req.TargetLanguage))),
			openai.UserMessage(req.Text),
		},
		Model: openai.ChatModel(p.config.Model),
	}
	if p.config.Temperature > 0 {
		params.Temperature = openai.Float(float64(p.config.Temperature))
	}
	if p.config.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.config.MaxTokens))
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, mapError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, providers.NewError(providers.ErrCodeBadResponse, "no choices returned")
	}

	text := stripReasoning(completion.Choices[0].Message.Content)
	if text == "" {
		return nil, providers.NewError(providers.ErrCodeBadResponse, "empty completion")
	}

	p.logger.Debug("大模型翻译完成",
		zap.String("model", completion.Model),
		zap.Int64("tokens_in", completion.Usage.PromptTokens),
		zap.Int64("tokens_out", completion.Usage.CompletionTokens))

	return &providers.ProviderResponse{
		Text:       text,
		SourceLang: req.SourceLanguage,
		TargetLang: req.TargetLanguage,
		Metadata: map[string]any{
			"model":         completion.Model,
			"finish_reason": completion.Choices[0].FinishReason,
		},
	}, nil
}

// mapError 把 SDK 的状态码错误映射为统一错误，便于重试分类
func mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		perr := providers.StatusError(apiErr.StatusCode, []byte(apiErr.Message))
		return fmt.Errorf("chat completion: %w", perr)
	}
	return fmt.Errorf("chat completion: %w", err)
}

// languageName 提示词里使用的语言描述
func languageName(tag string) string {
	switch {
	case langtag.IsAuto(tag):
		return "the detected language"
	case langtag.IsTraditionalChinese(tag):
		return "Traditional Chinese"
	case langtag.IsChinese(tag):
		return "Simplified Chinese"
	}
	if t, err := langtag.Parse(tag); err == nil {
		return t.String()
	}
	return tag
}

// GetName 获取提供商名称
func (p *Provider) GetName() string {
	return p.config.Name
}

// GetCapabilities 获取提供商能力
func (p *Provider) GetCapabilities() providers.Capabilities {
	return providers.Capabilities{
		MaxTextLength:  8000,
		RequiresAPIKey: true,
	}
}

// HealthCheck 健康检查
func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:  []openai.ChatCompletionMessageParamUnion{openai.UserMessage("Hello")},
		Model:     openai.ChatModel(p.config.Model),
		MaxTokens: openai.Int(10),
	})
	if err != nil {
		return mapError(err)
	}
	return nil
}
