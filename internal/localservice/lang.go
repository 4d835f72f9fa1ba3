package localservice

import (
	"github.com/nerdneilsfield/xptranslate/pkg/langtag"
)

// chineseCode 所有中文变体在后端使用的统一代码
const chineseCode = "zh"

// NormalizeCode 把语言标签归一到后端代码空间：中文统一为 zh，其它取基础语言
func NormalizeCode(tag string) (string, error) {
	if langtag.IsChinese(tag) {
		return chineseCode, nil
	}
	return langtag.Base(tag)
}
