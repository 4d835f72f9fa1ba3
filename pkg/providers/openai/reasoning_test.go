package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripReasoning(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "設定", "設定"},
		{"think block", "<think>\nThe user wants Traditional Chinese.\n</think>\n\n設定", "設定"},
		{"thinking block", "<thinking>hmm</thinking>取消", "取消"},
		{"bracket tags", "[THINKING]x[/THINKING] 確定", "確定"},
		{"fenced", "```thinking\nreason\n```\n儲存", "儲存"},
		{"unterminated", "開啟 <think> still thinking", "開啟"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripReasoning(tt.in))
		})
	}
}
