package factory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/xptranslate/internal/config"
	"github.com/nerdneilsfield/xptranslate/pkg/providers"
	"github.com/nerdneilsfield/xptranslate/pkg/providers/chain"
	"github.com/nerdneilsfield/xptranslate/pkg/providers/deeplx"
	"github.com/nerdneilsfield/xptranslate/pkg/providers/googlefree"
	"github.com/nerdneilsfield/xptranslate/pkg/providers/libretranslate"
	"github.com/nerdneilsfield/xptranslate/pkg/providers/local"
	"github.com/nerdneilsfield/xptranslate/pkg/providers/microsoft"
	"github.com/nerdneilsfield/xptranslate/pkg/providers/openai"
	"github.com/nerdneilsfield/xptranslate/pkg/providers/raw"
	"github.com/nerdneilsfield/xptranslate/pkg/providers/stats"
)

// ErrUnsupported 未知的提供商类型
var ErrUnsupported = errors.New("unsupported provider type")

// ProviderFactory 根据配置创建提供商，同名实例只创建一次
type ProviderFactory struct {
	cfg    *config.Config
	logger *zap.Logger
	stats  *stats.StatsManager

	mu      sync.Mutex
	created map[string]providers.TranslationProvider
}

// Option 工厂选项
type Option func(*ProviderFactory)

// WithStats 为创建出的每个后端加上统计中间件
func WithStats(sm *stats.StatsManager) Option {
	return func(f *ProviderFactory) { f.stats = sm }
}

// New 创建新的提供商工厂
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *ProviderFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &ProviderFactory{
		cfg:     cfg,
		logger:  logger,
		created: make(map[string]providers.TranslationProvider),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Created 按名称排序返回已创建的提供商
func (f *ProviderFactory) Created() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.created))
	for name := range f.created {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateProvider 按名称创建提供商，同名只创建一次
func (f *ProviderFactory) CreateProvider(name string) (providers.TranslationProvider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.created[name]; ok {
		return p, nil
	}

	p, err := f.build(name)
	if err != nil {
		return nil, err
	}
	if f.stats != nil {
		p = stats.NewStatisticsMiddleware(p, f.stats)
	}
	f.created[name] = p
	return p, nil
}

func (f *ProviderFactory) build(name string) (providers.TranslationProvider, error) {
	logger := f.logger.Named("provider." + name)
	settings := f.cfg.ProviderSettings(name)

	switch name {
	case "microsoft":
		cfg := microsoft.DefaultConfig()
		applySettings(&cfg.BaseConfig, settings)
		if settings.AuthURL != "" {
			cfg.AuthURL = settings.AuthURL
		}
		return microsoft.New(cfg, logger)
	case "googlefree":
		cfg := googlefree.DefaultConfig()
		applySettings(&cfg.BaseConfig, settings)
		return googlefree.New(cfg, logger)
	case "gemini", "openai":
		cfg := openai.DefaultConfig()
		envKey := "OPENAI_API_KEY"
		if name == "gemini" {
			cfg = openai.GeminiConfig()
			envKey = "GEMINI_API_KEY"
		}
		applySettings(&cfg.BaseConfig, settings)
		if settings.Model != "" {
			cfg.Model = settings.Model
		}
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv(envKey)
		}
		return openai.New(cfg, logger)
	case "deeplx":
		cfg := deeplx.DefaultConfig()
		applySettings(&cfg.BaseConfig, settings)
		cfg.AccessToken = settings.APIKey
		return deeplx.New(cfg, logger)
	case "libretranslate":
		cfg := libretranslate.DefaultConfig()
		applySettings(&cfg.BaseConfig, settings)
		cfg.RequiresAPIKey = settings.APIKey != ""
		return libretranslate.New(cfg, logger)
	case "local":
		cfg := local.DefaultConfig()
		applySettings(&cfg.BaseConfig, settings)
		if f.cfg.LocalClient.Endpoint != "" {
			cfg.APIEndpoint = f.cfg.LocalClient.Endpoint
		}
		if f.cfg.LocalClient.Timeout > 0 {
			cfg.Timeout = f.cfg.LocalClient.Timeout
		}
		cfg.CertFile = f.cfg.LocalClient.CertFile
		if cfg.CertFile == "" {
			cfg.CertFile = filepath.Join(f.cfg.Server.AssetsDir, f.cfg.Server.CertFile)
		}
		return local.New(cfg, logger)
	case "raw", "none":
		return raw.New(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
	}
}

func applySettings(base *providers.BaseConfig, s config.ProviderConfig) {
	if s.APIKey != "" {
		base.APIKey = s.APIKey
	}
	if s.BaseURL != "" {
		base.APIEndpoint = s.BaseURL
	}
	if s.Timeout > 0 {
		base.Timeout = s.Timeout
	}
	if s.MaxRetries > 0 {
		base.MaxRetries = s.MaxRetries
	}
	if s.ProxyURL != "" {
		base.ProxyURL = s.ProxyURL
	}
	for k, v := range s.Headers {
		base.Headers[k] = v
	}
}

// Primary 按配置组装主后端：本地服务（可选）、主提供商、Gemini 与免费 Google 备用
func (f *ProviderFactory) Primary() (providers.TranslationProvider, error) {
	var names []string
	if f.cfg.UseLocalService {
		names = append(names, "local")
	}
	names = append(names, f.cfg.Provider)
	if f.cfg.FallbackGemini {
		names = append(names, "gemini")
	}
	if f.cfg.FallbackFreeGAPI {
		names = append(names, "googlefree")
	}

	seen := make(map[string]bool)
	var members []providers.TranslationProvider
	var errs []error
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		p, err := f.CreateProvider(name)
		if err != nil {
			f.logger.Warn("创建翻译后端失败，已跳过", zap.String("provider", name), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		members = append(members, p)
	}

	switch len(members) {
	case 0:
		return nil, errors.Join(errs...)
	case 1:
		return members[0], nil
	}
	return chain.New(f.logger.Named("provider.chain"), members...)
}

// Quick 同步快速路径使用的后端，只有启用本地服务时才有
func (f *ProviderFactory) Quick() (providers.TranslationProvider, bool) {
	if !f.cfg.UseLocalService {
		return nil, false
	}
	p, err := f.CreateProvider("local")
	if err != nil {
		return nil, false
	}
	return p, true
}

// GetSupportedProviders 获取支持的提供商列表
func GetSupportedProviders() []string {
	return []string{
		"microsoft",
		"googlefree",
		"gemini",
		"openai",
		"deeplx",
		"libretranslate",
		"local",
		"raw",
		"none",
	}
}
