package cli

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/xptranslate/internal/localservice"
	"github.com/nerdneilsfield/xptranslate/pkg/providers/factory"
	"github.com/nerdneilsfield/xptranslate/pkg/providers/stats"
)

func newServeCommand(g *globalOptions) *cobra.Command {
	var (
		engine    string
		assetsDir string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "在 127.0.0.1 上启动本地 HTTPS 翻译服务",
		Long: `启动只监听回环地址的 HTTPS 翻译服务，接口:
  GET /health
  GET /translate?q=文本&src=auto&dst=zh-TW

私钥 (PKCS#8) 与证书从资源目录读取，缺失或损坏时拒绝启动，不会退回明文 HTTP。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if engine != "" {
				cfg.Server.Engine = engine
			}
			if assetsDir != "" {
				cfg.Server.AssetsDir = assetsDir
			}

			sm := stats.NewStatsManager(statsPath(cfg), logger.Named("stats"))
			if err := sm.LoadFromDB(); err != nil {
				logger.Warn("加载后端统计失败", zap.Error(err))
			}
			backend, err := factory.New(cfg, logger, factory.WithStats(sm)).CreateProvider(cfg.Server.Engine)
			if err != nil {
				return err
			}

			srv, err := localservice.NewFromConfig(cfg.Server,
				localservice.NewProviderEngine(backend),
				localservice.NewLinguaIdentifier(cfg.Server.DetectLanguages),
				logger.Named("localservice"))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				sm.AutoSaveRoutine(ctx, time.Minute)
			}()

			logger.Info("使用翻译后端", zap.String("engine", backend.GetName()))
			err = srv.ListenAndServe(ctx)
			stop()
			srv.Close()
			wg.Wait()
			return err
		},
	}
	cmd.Flags().StringVar(&engine, "engine", "", "服务内部使用的翻译后端，默认取 server.engine")
	cmd.Flags().StringVar(&assetsDir, "assets", "", "私钥与证书所在目录，默认取 server.assets_dir")
	return cmd
}
