package translation

import (
	"fmt"
	"regexp"
	"strings"
)

// PreserveConfig 保护块配置
type PreserveConfig struct {
	// 是否启用保护块
	Enabled bool
	// 保护块前缀
	Prefix string
	// 保护块后缀
	Suffix string
}

// DefaultPreserveConfig 默认保护块配置
var DefaultPreserveConfig = PreserveConfig{
	Enabled: true,
	Prefix:  "@@PRESERVE_",
	Suffix:  "@@",
}

// bracketPattern 行内方括号注释，如 [icon]、[1]
var bracketPattern = regexp.MustCompile(`\[[^\[\]\r\n]*\]`)

// PreserveManager 保护块管理器，单次翻译使用，非并发安全
type PreserveManager struct {
	config       PreserveConfig
	counter      int
	placeholders []string
	replacements map[string]string
}

// NewPreserveManager 创建保护块管理器
func NewPreserveManager(config PreserveConfig) *PreserveManager {
	return &PreserveManager{
		config:       config,
		replacements: make(map[string]string),
	}
}

// GeneratePlaceholder 生成占位符
func (pm *PreserveManager) GeneratePlaceholder() string {
	placeholder := fmt.Sprintf("%s%d%s", pm.config.Prefix, pm.counter, pm.config.Suffix)
	pm.counter++
	return placeholder
}

// Protect 保护指定内容，返回占位符
func (pm *PreserveManager) Protect(content string) string {
	placeholder := pm.GeneratePlaceholder()
	pm.replacements[placeholder] = content
	pm.placeholders = append(pm.placeholders, placeholder)
	return placeholder
}

// Len 已保护的块数
func (pm *PreserveManager) Len() int {
	return len(pm.placeholders)
}

// ProtectBrackets 把文本中的方括号注释替换为占位符
func (pm *PreserveManager) ProtectBrackets(text string) string {
	if !pm.config.Enabled {
		return text
	}
	return bracketPattern.ReplaceAllStringFunc(text, pm.Protect)
}

// Restore 还原所有占位符。每个占位符必须在译文中恰好出现一次，否则返回 ErrPlaceholderLost。
func (pm *PreserveManager) Restore(text string) (string, error) {
	for _, ph := range pm.placeholders {
		if n := strings.Count(text, ph); n != 1 {
			return "", fmt.Errorf("%w: %s appears %d times", ErrPlaceholderLost, ph, n)
		}
	}
	// 从后往前还原，避免 _1 与 _10 这类前缀冲突
	for i := len(pm.placeholders) - 1; i >= 0; i-- {
		ph := pm.placeholders[i]
		text = strings.Replace(text, ph, pm.replacements[ph], 1)
	}
	return text, nil
}

// HasBrackets 文本中是否有需要保护的方括号注释
func HasBrackets(text string) bool {
	return bracketPattern.MatchString(text)
}

// Piece 按方括号注释切分后的文本片段
type Piece struct {
	Text    string
	Bracket bool
}

// SplitBrackets 把文本切分为方括号注释与普通文本交替的片段
func SplitBrackets(text string) []Piece {
	locs := bracketPattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []Piece{{Text: text}}
	}
	pieces := make([]Piece, 0, len(locs)*2+1)
	last := 0
	for _, loc := range locs {
		if loc[0] > last {
			pieces = append(pieces, Piece{Text: text[last:loc[0]]})
		}
		pieces = append(pieces, Piece{Text: text[loc[0]:loc[1]], Bracket: true})
		last = loc[1]
	}
	if last < len(text) {
		pieces = append(pieces, Piece{Text: text[last:]})
	}
	return pieces
}
