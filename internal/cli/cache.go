package cli

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/spf13/cobra"

	"github.com/nerdneilsfield/xptranslate/pkg/translation"
)

func newCacheCommand(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "查看或清理持久化翻译缓存",
	}
	cmd.AddCommand(newCacheStatsCommand(g), newCacheListCommand(g), newCacheClearCommand(g))
	return cmd
}

// openCache 打开配置中的 SQLite 缓存，不论 cache.enabled 是否开启
func openCache(g *globalOptions, cmd *cobra.Command) (*translation.SQLiteCache, string, error) {
	cfg, _, err := g.load(cmd)
	if err != nil {
		return nil, "", err
	}
	c, err := translation.NewSQLiteCache(cfg.Cache.Path)
	if err != nil {
		return nil, "", err
	}
	return c, cfg.Cache.Path, nil
}

func newCacheStatsCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "显示缓存条目数与文件大小",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, path, err := openCache(g, cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			w := cmd.OutOrStdout()
			titleColor.Fprintln(w, "翻译缓存")
			t := newTable(w)
			t.AppendRow(table.Row{"路径", path})
			t.AppendRow(table.Row{"条目", c.Stats().Size})
			if info, err := os.Stat(path); err == nil {
				t.AppendRow(table.Row{"大小", fmt.Sprintf("%.1f KB", float64(info.Size())/1024)})
				t.AppendRow(table.Row{"修改时间", formatTime(info.ModTime())})
			}
			t.Render()
			return nil
		},
	}
}

func newCacheListCommand(g *globalOptions) *cobra.Command {
	var (
		limit  int
		filter string
		width  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "列出最近的缓存条目",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := openCache(g, cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			fetch := limit
			if filter != "" {
				fetch = 0
			}
			entries, err := c.List(fetch)
			if err != nil {
				return err
			}
			if filter != "" {
				entries = filterEntries(entries, filter)
				if limit > 0 && len(entries) > limit {
					entries = entries[:limit]
				}
			}

			w := cmd.OutOrStdout()
			if len(entries) == 0 {
				warnColor.Fprintln(w, "没有匹配的缓存条目")
				return nil
			}
			t := newTable(w)
			t.AppendHeader(table.Row{"#", "语言", "原文", "译文", "时间"})
			for i, e := range entries {
				t.AppendRow(table.Row{
					i + 1,
					e.Key.Source + "→" + e.Key.Target,
					truncate(e.Key.Text, width),
					truncate(e.Translated, width),
					formatTime(e.CreatedAt),
				})
			}
			t.AppendFooter(table.Row{"", "", "", "共", len(entries)})
			t.Render()
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "最多显示的条目数，0 表示全部")
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "按原文或译文模糊过滤")
	cmd.Flags().IntVarP(&width, "width", "w", 40, "每列最大显示宽度")
	return cmd
}

// filterEntries 模糊匹配原文或译文，原文匹配更近的排在前面
func filterEntries(entries []translation.Entry, q string) []translation.Entry {
	type ranked struct {
		entry    translation.Entry
		distance int
	}
	var matched []ranked
	for _, e := range entries {
		d := fuzzy.RankMatchFold(q, e.Key.Text)
		if d < 0 {
			if !fuzzy.MatchFold(q, e.Translated) {
				continue
			}
			d = len(e.Key.Text) + fuzzy.RankMatchFold(q, e.Translated)
		}
		matched = append(matched, ranked{entry: e, distance: d})
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].distance < matched[j].distance
	})
	out := make([]translation.Entry, len(matched))
	for i, m := range matched {
		out[i] = m.entry
	}
	return out
}

func newCacheClearCommand(g *globalOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "清空持久化缓存",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("清空缓存需要 --yes 确认")
			}
			c, _, err := openCache(g, cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			n := c.Stats().Size
			if err := c.Clear(); err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "已清除 %d 条缓存\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "确认清空")
	return cmd
}
