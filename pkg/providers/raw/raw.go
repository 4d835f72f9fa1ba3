// Package raw 提供不做任何翻译的直通后端，用于调试和离线运行。
package raw

import (
	"context"

	"github.com/nerdneilsfield/xptranslate/pkg/providers"
)

// Provider 直接返回原文
type Provider struct{}

var _ providers.Provider = (*Provider)(nil)

// New 创建 Raw 提供商
func New() *Provider {
	return &Provider{}
}

// Translate 直接返回原文
func (p *Provider) Translate(_ context.Context, req *providers.ProviderRequest) (*providers.ProviderResponse, error) {
	return &providers.ProviderResponse{
		Text:       req.Text,
		SourceLang: req.SourceLanguage,
		TargetLang: req.TargetLanguage,
	}, nil
}

// GetName 获取提供商名称
func (p *Provider) GetName() string {
	return "raw"
}

// GetCapabilities 获取提供商能力
func (p *Provider) GetCapabilities() providers.Capabilities {
	return providers.Capabilities{
		MaxTextLength:     1000000,
		SupportsBatch:     true,
		PreservesBrackets: true,
		Local:             true,
	}
}

// HealthCheck 始终健康
func (p *Provider) HealthCheck(context.Context) error {
	return nil
}
