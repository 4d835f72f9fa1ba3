package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/xptranslate/internal/cli"
	"github.com/nerdneilsfield/xptranslate/internal/logger"
)

// Version information
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	log := logger.NewLogger(false)
	defer func() {
		_ = log.Sync()
	}()

	rootCmd := cli.NewRootCommand(Version, Commit, BuildDate)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Error("执行命令失败", zap.Error(err))
		os.Exit(1)
	}
}
