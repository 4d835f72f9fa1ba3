package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type translateOptions struct {
	input     string
	output    string
	showStats bool
	progress  bool
}

func newTranslateCommand(g *globalOptions) *cobra.Command {
	opts := &translateOptions{}
	cmd := &cobra.Command{
		Use:   "translate [text...]",
		Short: "翻译命令行文本或文件中的每一行",
		Long: fmt.Sprintf(`翻译命令行参数拼接成的文本，或用 --input 逐行翻译文件（- 表示标准输入）。

可用后端: %s`, strings.Join(providerNames(), ", ")),
		Example: `  xptranslate translate "Hello world" -t zh-TW
  xptranslate translate --input strings.txt --output strings.zh.txt --progress`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.input == "" && len(args) == 0 {
				return fmt.Errorf("需要待翻译的文本或 --input 文件")
			}
			cfg, logger, err := g.load(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

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
			if opts.output != "" {
				f, err := os.Create(opts.output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}

			if opts.input != "" {
				err = translateLines(cmd, a, opts, out)
			} else {
				var text string
				text, err = a.translator.Translate(cmd.Context(), strings.Join(args, " "), cfg.SourceLang, cfg.TargetLang)
				if err == nil {
					fmt.Fprintln(out, text)
				}
			}
			if err != nil {
				return err
			}

			if opts.showStats {
				renderProviderStats(cmd.ErrOrStderr(), a.stats.GetAllStats())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "逐行翻译的输入文件，- 表示标准输入")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "输出文件，默认标准输出")
	cmd.Flags().BoolVar(&opts.showStats, "stats", false, "完成后显示后端统计")
	cmd.Flags().BoolVar(&opts.progress, "progress", false, "在标准错误上显示进度")
	return cmd
}

// translateLines 并发翻译每一行，输出保持原有顺序。失败的行保留原文。
func translateLines(cmd *cobra.Command, a *app, opts *translateOptions, out io.Writer) error {
	var in io.Reader = cmd.InOrStdin()
	if opts.input != "-" {
		f, err := os.Open(opts.input)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	lines, err := readLines(in)
	if err != nil {
		return err
	}

	var tracker *progress.Tracker
	if opts.progress {
		pw, t := newProgress(cmd.ErrOrStderr(), int64(len(lines)))
		tracker = t
		defer pw.Stop()
	}

	results := make([]string, len(lines))
	eg, ctx := errgroup.WithContext(cmd.Context())
	eg.SetLimit(a.cfg.Orchestrator.Workers)
	for i, line := range lines {
		eg.Go(func() error {
			results[i] = a.translator.TranslateText(ctx, line, a.cfg.SourceLang, a.cfg.TargetLang)
			if tracker != nil {
				tracker.Increment(1)
			}
			return ctx.Err()
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	if tracker != nil {
		tracker.MarkAsDone()
	}

	w := bufio.NewWriter(out)
	for _, r := range results {
		fmt.Fprintln(w, r)
	}
	a.logger.Info("文件翻译完成", zap.Int("lines", len(lines)))
	return w.Flush()
}

// readLines 读取全部行，单行最长 1MiB
func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func newProgress(w io.Writer, total int64) (progress.Writer, *progress.Tracker) {
	pw := progress.NewWriter()
	pw.SetOutputWriter(w)
	pw.SetStyle(progress.StyleDefault)
	pw.SetUpdateFrequency(200 * time.Millisecond)
	pw.SetTrackerLength(40)
	pw.SetMessageLength(12)
	pw.Style().Visibility.ETA = true
	pw.Style().Visibility.Value = true

	tracker := &progress.Tracker{Message: "翻译行数", Total: total, Units: progress.UnitsDefault}
	pw.AppendTracker(tracker)
	go pw.Render()
	return pw, tracker
}
