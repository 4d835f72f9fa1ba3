package localservice

import (
	"context"
	"errors"
	"strings"

	"github.com/nerdneilsfield/xptranslate/pkg/providers"
)

// ErrEmptyTranslation 后端返回空结果
var ErrEmptyTranslation = errors.New("translate failed")

// Engine 服务内部使用的翻译能力
type Engine interface {
	Translate(ctx context.Context, text, src, dst string) (string, error)
}

// ProviderEngine 把翻译后端适配为 Engine
type ProviderEngine struct {
	provider providers.TranslationProvider
}

// NewProviderEngine 创建适配器
func NewProviderEngine(p providers.TranslationProvider) *ProviderEngine {
	return &ProviderEngine{provider: p}
}

// Translate 实现 Engine
func (e *ProviderEngine) Translate(ctx context.Context, text, src, dst string) (string, error) {
	resp, err := e.provider.Translate(ctx, &providers.ProviderRequest{
		Text:           text,
		SourceLanguage: src,
		TargetLanguage: dst,
	})
	if err != nil {
		return "", err
	}
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return "", ErrEmptyTranslation
	}
	return resp.Text, nil
}

// Name 后端名称
func (e *ProviderEngine) Name() string {
	return e.provider.GetName()
}
