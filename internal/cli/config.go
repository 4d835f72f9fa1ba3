package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/nerdneilsfield/xptranslate/internal/config"
)

func newConfigCommand(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "生成或检查配置文件",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "写入默认配置",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := g.cfgFile
			if len(args) == 1 {
				path = args[0]
			}
			if path != "" && !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s 已存在，使用 --force 覆盖", path)
				} else if !errors.Is(err, os.ErrNotExist) {
					return err
				}
			}
			if err := config.SaveConfig(config.NewDefaultConfig(), path); err != nil {
				return err
			}
			okColor.Fprintln(cmd.OutOrStdout(), "配置已写入", displayPath(path))
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "覆盖已有文件")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "显示生效的主要配置",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := g.load(cmd)
			if err != nil {
				errColor.Fprintln(cmd.ErrOrStderr(), "配置无效:", err)
				return err
			}
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"配置项", "值"})
			t.AppendRows([]table.Row{
				{"source_lang", cfg.SourceLang},
				{"target_lang", cfg.TargetLang},
				{"provider", cfg.Provider},
				{"fallback_gemini", cfg.FallbackGemini},
				{"fallback_free_gapi", cfg.FallbackFreeGAPI},
				{"use_local_service", cfg.UseLocalService},
				{"protect_brackets", cfg.ProtectBrackets},
				{"cache.enabled", cfg.Cache.Enabled},
				{"cache.path", cfg.Cache.Path},
				{"server.addr", cfg.Server.Addr()},
				{"server.engine", cfg.Server.Engine},
			})
			t.Render()
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func displayPath(path string) string {
	if path == "" {
		return "$HOME/.xptranslate.yaml"
	}
	return path
}
