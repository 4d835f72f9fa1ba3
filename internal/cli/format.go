package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-runewidth"
)

var (
	titleColor = color.New(color.FgCyan, color.Bold)
	okColor    = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	errColor   = color.New(color.FgRed, color.Bold)
)

// newTable 创建输出到 w 的表格
func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

// truncate 按显示宽度截断，换行显示为 ⏎
func truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", "⏎")
	if width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return d.Round(10 * time.Millisecond).String()
	}
}

// rateColor 成功率着色：≥95% 绿色，≥70% 黄色，其余红色
func rateColor(rate float64) *color.Color {
	switch {
	case rate >= 0.95:
		return okColor
	case rate >= 0.7:
		return warnColor
	default:
		return errColor
	}
}

func formatRate(rate float64) string {
	return rateColor(rate).Sprintf("%.1f%%", rate*100)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
