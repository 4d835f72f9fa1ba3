package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/xptranslate/internal/webpage"
)

func newWebpageCommand(g *globalOptions) *cobra.Command {
	var (
		output    string
		minLength int
	)
	cmd := &cobra.Command{
		Use:   "webpage <input.html>",
		Short: "翻译 HTML 页面中的文本节点",
		Long: `翻译页面中长度不少于 --min-length 的文本节点，脚本、样式、SVG、Canvas、
iframe 以及 head 中的内容保持不变。输入为 - 时读取标准输入。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Warn("关闭翻译组件失败", zap.Error(err))
				}
			}()

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}

			wp := webpage.New(a.translator, webpage.Options{
				SourceLang:           cfg.SourceLang,
				TargetLang:           cfg.TargetLang,
				MinLength:            minLength,
				Concurrency:          cfg.Orchestrator.Workers,
				RespectTranslateAttr: true,
			}, logger.Named("webpage"))
			result, err := wp.TranslateHTML(cmd.Context(), in, out)
			if err != nil {
				return err
			}

			summary := okColor
			if result.Failed > 0 {
				summary = warnColor
			}
			summary.Fprintf(cmd.ErrOrStderr(), "文本节点 %d，已翻译 %d，失败 %d\n",
				result.Nodes, result.Translated, result.Failed)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "输出文件，默认标准输出")
	cmd.Flags().IntVar(&minLength, "min-length", webpage.DefaultOptions().MinLength, "翻译的最短文本长度")
	return cmd
}
