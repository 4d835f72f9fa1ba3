// Package chain 按配置顺序依次尝试多个翻译后端。
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/xptranslate/pkg/providers"
)

// ErrEmpty 链中没有后端
var ErrEmpty = errors.New("chain has no providers")

// Provider 依次尝试的后端链，第一个成功的结果即为最终结果
type Provider struct {
	members []providers.TranslationProvider
	logger  *zap.Logger
}

var _ providers.Provider = (*Provider)(nil)

// New 创建后端链
func New(logger *zap.Logger, members ...providers.TranslationProvider) (*Provider, error) {
	if len(members) == 0 {
		return nil, ErrEmpty
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{members: members, logger: logger}, nil
}

// Members 链中的后端，按尝试顺序
func (p *Provider) Members() []providers.TranslationProvider {
	return append([]providers.TranslationProvider(nil), p.members...)
}

// Translate 依次尝试，全部失败时返回合并后的错误
func (p *Provider) Translate(ctx context.Context, req *providers.ProviderRequest) (*providers.ProviderResponse, error) {
	var errs []error
	for i, m := range p.members {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		resp, err := m.Translate(ctx, req)
		if err == nil && resp != nil && strings.TrimSpace(resp.Text) != "" {
			if i > 0 {
				p.logger.Debug("使用备用后端完成翻译", zap.String("provider", m.GetName()))
			}
			return resp, nil
		}
		if err == nil {
			err = providers.NewError(providers.ErrCodeBadResponse, "empty result")
		}
		p.logger.Debug("后端翻译失败，尝试下一个",
			zap.String("provider", m.GetName()),
			zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", m.GetName(), err))
	}
	return nil, errors.Join(errs...)
}

// GetName 形如 chain(microsoft,gemini)
func (p *Provider) GetName() string {
	names := make([]string, len(p.members))
	for i, m := range p.members {
		names[i] = m.GetName()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// GetCapabilities 只有所有成员都保留方括号时才声明保留
func (p *Provider) GetCapabilities() providers.Capabilities {
	caps := providers.CapabilitiesOf(p.members[0])
	for _, m := range p.members[1:] {
		c := providers.CapabilitiesOf(m)
		caps.PreservesBrackets = caps.PreservesBrackets && c.PreservesBrackets
		caps.RequiresAPIKey = caps.RequiresAPIKey || c.RequiresAPIKey
		if c.MaxTextLength > 0 && (caps.MaxTextLength == 0 || c.MaxTextLength < caps.MaxTextLength) {
			caps.MaxTextLength = c.MaxTextLength
		}
	}
	return caps
}

// HealthCheck 任一成员健康即可
func (p *Provider) HealthCheck(ctx context.Context) error {
	var errs []error
	for _, m := range p.members {
		hc, ok := m.(providers.Provider)
		if !ok {
			return nil
		}
		err := hc.HealthCheck(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.GetName(), err))
	}
	return errors.Join(errs...)
}
