package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/nerdneilsfield/xptranslate/pkg/providers/stats"
)

// renderProviderStats 输出每个后端的请求统计
func renderProviderStats(w io.Writer, snapshots []stats.Snapshot) {
	titleColor.Fprintln(w, "后端统计")
	if len(snapshots) == 0 {
		fmt.Fprintln(w, "暂无统计数据")
		return
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"后端", "请求", "成功率", "平均延迟", "最大延迟", "注释丢失", "错误类型", "最近请求"})
	for _, s := range snapshots {
		t.AppendRow(table.Row{
			s.ProviderName,
			s.TotalRequests,
			formatRate(s.SuccessRate),
			formatDuration(s.AverageLatency),
			formatDuration(s.MaxLatency),
			fmt.Sprintf("%d/%d", s.BracketLost, s.BracketRequests),
			formatErrorTypes(s.ErrorTypes),
			formatTime(s.LastRequestTime),
		})
	}
	t.Render()
}

func formatErrorTypes(m map[string]int64) string {
	if len(m) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, m[k])
	}
	return strings.Join(parts, " ")
}
