package translation

import "strings"

// DetectLineBreak 返回文本使用的换行符，优先 \r\n，其次 \n、\r；单行文本返回空串
func DetectLineBreak(text string) string {
	switch {
	case strings.Contains(text, "\r\n"):
		return "\r\n"
	case strings.Contains(text, "\n"):
		return "\n"
	case strings.Contains(text, "\r"):
		return "\r"
	default:
		return ""
	}
}

// SplitLines 按检测到的换行符切分，返回各行与换行符
func SplitLines(text string) ([]string, string) {
	sep := DetectLineBreak(text)
	if sep == "" {
		return []string{text}, ""
	}
	return strings.Split(text, sep), sep
}

// JoinLines 用原换行符拼回
func JoinLines(lines []string, sep string) string {
	return strings.Join(lines, sep)
}
