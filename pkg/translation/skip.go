package translation

import (
	"regexp"
	"strings"
	"unicode"
)

// SentinelPrefix 以此字符开头的文本只翻译剩余部分，前缀原样保留
const SentinelPrefix = "@"

var (
	numericPattern     = regexp.MustCompile(`^\d+([.:\-]\d+)*$`)
	bracketOnlyPattern = regexp.MustCompile(`(?s)^\[.*\]$`)
	bareURLPattern     = regexp.MustCompile(`(?i)^(https?|ftp)://\S+$|^www\.\S+$`)
)

// IsTranslationNeeded 判断文本是否需要送往后端翻译。
// 纯数字（可含 . : - 分隔）、整段方括号注释、裸 URL、以及不含任何文字的符号串都直接放行。
func IsTranslationNeeded(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	if numericPattern.MatchString(t) || bracketOnlyPattern.MatchString(t) || bareURLPattern.MatchString(t) {
		return false
	}
	return containsLetter(t)
}

// SplitSentinel 拆出哨兵前缀
func SplitSentinel(text string) (prefix, rest string) {
	if strings.HasPrefix(text, SentinelPrefix) {
		return SentinelPrefix, text[len(SentinelPrefix):]
	}
	return "", text
}

func containsLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
