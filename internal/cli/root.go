// Package cli 实现 xptranslate 命令行。
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/xptranslate/internal/config"
	"github.com/nerdneilsfield/xptranslate/internal/logger"
)

// globalOptions 所有子命令共享的标志
type globalOptions struct {
	cfgFile    string
	sourceLang string
	targetLang string
	provider   string
	debug      bool
	verbose    bool
}

// NewRootCommand 创建根命令
func NewRootCommand(version, commit, buildDate string) *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "xptranslate",
		Short: "界面文本实时翻译工具",
		Long: `xptranslate 把界面上显示的文本按片段翻译后原样回填，保留原有的格式区间。

支持的翻译后端:
  - microsoft: Edge 内置的微软翻译
  - googlefree: 免费的 Google 翻译接口
  - gemini / openai: OpenAI 兼容的大模型接口
  - deeplx: DeepLX
  - libretranslate: LibreTranslate
  - local: 本机 TLS 翻译服务`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.cfgFile, "config", "c", "", "配置文件路径 (默认 $HOME/.xptranslate.yaml)")
	flags.StringVarP(&opts.sourceLang, "source", "s", "", "源语言，auto 表示自动检测")
	flags.StringVarP(&opts.targetLang, "target", "t", "", "目标语言")
	flags.StringVarP(&opts.provider, "provider", "p", "", "翻译后端")
	flags.BoolVar(&opts.debug, "debug", false, "调试日志")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "详细日志")

	rootCmd.AddCommand(
		newTranslateCommand(opts),
		newServeCommand(opts),
		newWebpageCommand(opts),
		newRenderCommand(opts),
		newCacheCommand(opts),
		newConfigCommand(opts),
		newVersionCommand(version, commit, buildDate),
	)
	return rootCmd
}

// load 读取配置并应用命令行覆盖
func (o *globalOptions) load(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(o.cfgFile)
	if err != nil {
		return nil, nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.SourceLang = o.sourceLang
	}
	if flags.Changed("target") {
		cfg.TargetLang = o.targetLang
	}
	if flags.Changed("provider") {
		cfg.Provider = o.provider
	}
	cfg.Debug = cfg.Debug || o.debug
	cfg.Verbose = cfg.Verbose || o.verbose

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, logger.NewLoggerWithVerbose(cfg.Debug, cfg.Verbose), nil
}

func newVersionCommand(version, commit, buildDate string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "xptranslate %s (commit %s, built %s)\n", version, commit, buildDate)
		},
	}
}
