package cli

import (
	"errors"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/xptranslate/internal/config"
	"github.com/nerdneilsfield/xptranslate/pkg/orchestrator"
	"github.com/nerdneilsfield/xptranslate/pkg/providers/factory"
	"github.com/nerdneilsfield/xptranslate/pkg/providers/stats"
	"github.com/nerdneilsfield/xptranslate/pkg/translation"
)

// app 一次命令执行所需的翻译组件
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	stats      *stats.StatsManager
	factory    *factory.ProviderFactory
	cache      translation.Cache
	rules      *translation.Rules
	translator *translation.Translator
}

// statsPath 后端统计与缓存放在同一目录
func statsPath(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.Cache.Path), "provider_stats.json")
}

// newApp 组装缓存、规则、后端链与翻译器
func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	sm := stats.NewStatsManager(statsPath(cfg), logger.Named("stats"))
	if err := sm.LoadFromDB(); err != nil {
		logger.Warn("加载后端统计失败", zap.Error(err))
	}

	cache, err := translation.NewCache(cfg.Cache.Enabled, cfg.Cache.Path)
	if err != nil {
		return nil, err
	}

	var rules *translation.Rules
	if cfg.RulesFile != "" {
		if rules, err = translation.LoadRules(cfg.RulesFile); err != nil {
			closeCache(cache)
			return nil, err
		}
	}

	f := factory.New(cfg, logger, factory.WithStats(sm))
	primary, err := f.Primary()
	if err != nil {
		closeCache(cache)
		return nil, err
	}

	tr := translation.NewTranslator(primary,
		translation.WithCache(cache),
		translation.WithRules(rules),
		translation.WithBracketProtection(cfg.ProtectBrackets),
		translation.WithLogger(logger.Named("translator")),
	)
	logger.Debug("翻译组件已就绪", zap.String("provider", primary.GetName()))
	return &app{cfg: cfg, logger: logger, stats: sm, factory: f, cache: cache, rules: rules, translator: tr}, nil
}

// orchestratorConfig 编排器参数取自配置
func orchestratorConfig(cfg *config.Config) orchestrator.Config {
	return orchestrator.Config{
		SourceLang:   cfg.SourceLang,
		TargetLang:   cfg.TargetLang,
		HostPackage:  cfg.HostPackage,
		Workers:      cfg.Orchestrator.Workers,
		QueueSize:    cfg.Orchestrator.QueueSize,
		QuickTimeout: cfg.Orchestrator.QuickTimeout,
	}
}

// newOrchestrator 在翻译器之上创建异步编排器。启用本地服务时它同时作为同步快速路径。
func (a *app) newOrchestrator() *orchestrator.Orchestrator {
	opts := []orchestrator.Option{orchestrator.WithLogger(a.logger.Named("orchestrator"))}
	if a.rules != nil {
		opts = append(opts, orchestrator.WithClassRules(a.rules))
	}
	if quick, ok := a.factory.Quick(); ok {
		opts = append(opts, orchestrator.WithQuickResolver(translation.NewTranslator(quick,
			translation.WithCache(a.cache),
			translation.WithRules(a.rules),
			translation.WithBracketProtection(a.cfg.ProtectBrackets),
			translation.WithLogger(a.logger.Named("quick")),
		)))
	}
	return orchestrator.New(a.translator, orchestratorConfig(a.cfg), opts...)
}

// Close 保存统计并关闭缓存
func (a *app) Close() error {
	return errors.Join(a.stats.SaveToDB(), closeCache(a.cache))
}

func closeCache(c translation.Cache) error {
	if closer, ok := c.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// providerNames 便于在帮助中列出后端
func providerNames() []string {
	return factory.GetSupportedProviders()
}
