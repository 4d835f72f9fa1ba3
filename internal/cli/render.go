package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/xptranslate/pkg/orchestrator"
	"github.com/nerdneilsfield/xptranslate/pkg/segment"
)

type renderOptions struct {
	class     string
	sync      bool
	showStats bool
	timeout   time.Duration
}

// lineTarget 把一行文本当作界面上的一个文本组件
type lineTarget struct {
	id    orchestrator.TargetID
	loop  *orchestrator.EventLoop
	class string
	shown string // 只在事件循环中读写
}

func (t *lineTarget) ID() orchestrator.TargetID         { return t.id }
func (t *lineTarget) Scheduler() orchestrator.Scheduler { return t.loop }
func (t *lineTarget) ClassName() string                 { return t.class }

func (t *lineTarget) Apply(text *segment.Spanned) error {
	t.shown = text.String()
	return nil
}

func newRenderCommand(g *globalOptions) *cobra.Command {
	opts := &renderOptions{}
	cmd := &cobra.Command{
		Use:   "render [file]",
		Short: "以界面渲染的方式翻译：每行是一个文本组件，由异步编排器派发并回填",
		Long: `把输入的每一行当作一个文本组件，依次在同一个事件循环中触发渲染，
由编排器命中缓存、派发后台翻译并把译文应用回组件，全部完成后按行输出组件最终显示的文本。

--sync 使用布局同步路径：先查缓存，启用本地服务时在 orchestrator.quick_timeout 内尝试快速翻译，
否则原样显示并在后台预取，预取结果只写入缓存。`,
		Example: `  xptranslate render strings.txt -t zh-TW
  xptranslate render --class org.telegram.ui.Cells.ChatMessageCell --stats < strings.txt`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
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

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.Warn("关闭翻译组件失败", zap.Error(err))
				}
			}()

			shown, st, err := renderLines(cmd.Context(), a, lines, opts)
			if err != nil {
				return err
			}

			w := bufio.NewWriter(cmd.OutOrStdout())
			for _, s := range shown {
				fmt.Fprintln(w, s)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if opts.showStats {
				renderOrchestratorStats(cmd.ErrOrStderr(), st)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.class, "class", "", "组件类名，配合规则文件中 host_package 的类跳过规则")
	cmd.Flags().BoolVar(&opts.sync, "sync", false, "使用布局同步路径")
	cmd.Flags().BoolVar(&opts.showStats, "stats", false, "完成后显示编排器统计")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "等待后台翻译完成的最长时间")
	return cmd
}

// renderLines 在同一个事件循环中渲染每一行，等待派发的任务全部结束后返回各行的最终显示文本
func renderLines(ctx context.Context, a *app, lines []string, opts *renderOptions) ([]string, orchestrator.Stats, error) {
	loop := orchestrator.NewEventLoop(len(lines)+1, a.logger.Named("loop"))
	defer loop.Close()

	o := a.newOrchestrator()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.Shutdown(sctx); err != nil {
			a.logger.Warn("编排器未能及时停止", zap.Error(err))
		}
	}()

	targets := make([]*lineTarget, len(lines))
	for i, line := range lines {
		tg := &lineTarget{id: orchestrator.TargetID(fmt.Sprintf("line-%d", i+1)), loop: loop, class: opts.class}
		targets[i] = tg
		text := segment.Plain(line)
		ok := loop.Sync(func() {
			var out *segment.Spanned
			if opts.sync {
				out = o.ResolveSync(tg, text)
			} else {
				out, _ = o.OnBeforeRender(tg, text)
			}
			tg.shown = out.String()
		})
		if !ok {
			return nil, orchestrator.Stats{}, errors.New("event loop closed")
		}
	}

	wctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	if err := o.Flush(wctx); err != nil {
		a.logger.Warn("部分文本未能在期限内完成翻译，保留原文", zap.Error(err))
	}

	shown := make([]string, len(targets))
	loop.Sync(func() {
		for i, tg := range targets {
			shown[i] = tg.shown
		}
	})
	return shown, o.Stats(), nil
}

func renderOrchestratorStats(w io.Writer, st orchestrator.Stats) {
	titleColor.Fprintln(w, "编排器统计")
	t := newTable(w)
	t.AppendHeader(table.Row{"派发", "已应用", "缓存解析", "过期丢弃", "失败", "重复", "拒绝"})
	t.AppendRow(table.Row{st.Dispatched, st.Applied, st.Resolved, st.Stale, st.Failed, st.Duplicates, st.Rejected})
	t.Render()
}
