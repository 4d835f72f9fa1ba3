package openai

import (
	"regexp"
	"strings"
)

// 推理模型在译文前输出的思考过程
var reasoningBlocks = func() []*regexp.Regexp {
	pairs := [][2]string{
		{"<think>", "</think>"},
		{"<thinking>", "</thinking>"},
		{"<thought>", "</thought>"},
		{"<reasoning>", "</reasoning>"},
		{"[THINKING]", "[/THINKING]"},
		{"[REASONING]", "[/REASONING]"},
	}
	res := make([]*regexp.Regexp, 0, len(pairs)+1)
	for _, p := range pairs {
		res = append(res, regexp.MustCompile(regexp.QuoteMeta(p[0])+`(?s:.*?)`+regexp.QuoteMeta(p[1])))
	}
	res = append(res, regexp.MustCompile("(?ms)^```(?:thinking|reasoning)[^\n]*\n.*?^```[^\n]*$"))
	return res
}()

// 只有开始标记没有结束标记时，开始标记之前的内容才是译文
var danglingOpen = regexp.MustCompile(`(?s)<think(?:ing)?>.*$`)

// stripReasoning 去掉思考过程，只保留译文
func stripReasoning(content string) string {
	for _, re := range reasoningBlocks {
		content = re.ReplaceAllString(content, "")
	}
	content = danglingOpen.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}
