// Package langtag 统一处理语言标签：解析、取基础语言、判断繁体中文。
package langtag

import (
	"errors"
	"strings"

	"golang.org/x/text/language"
)

// Auto 自动检测源语言
const Auto = "auto"

// ErrUnsupported 无法识别的语言标签
var ErrUnsupported = errors.New("unsupported language")

var hant = language.MustParseScript("Hant")

// Clean 小写并把下划线换成连字符
func Clean(tag string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(tag)), "_", "-")
}

// IsAuto 是否为自动检测
func IsAuto(tag string) bool {
	t := Clean(tag)
	return t == "" || t == Auto
}

// Parse 解析语言标签
func Parse(tag string) (language.Tag, error) {
	t, err := language.Parse(Clean(tag))
	if err != nil {
		return language.Und, errors.Join(ErrUnsupported, err)
	}
	if t == language.Und {
		return language.Und, ErrUnsupported
	}
	return t, nil
}

// Base 返回小写的基础语言代码，如 zh-TW → zh，en-US → en
func Base(tag string) (string, error) {
	t, err := Parse(tag)
	if err != nil {
		return "", err
	}
	base, _ := t.Base()
	return base.String(), nil
}

// IsChinese 是否为任意中文变体
func IsChinese(tag string) bool {
	return strings.HasPrefix(Clean(tag), "zh")
}

// IsTraditionalChinese 标签是否表示繁体中文（zh-TW、zh-HK、zh-MO、zh-Hant 等）
func IsTraditionalChinese(tag string) bool {
	if !IsChinese(tag) {
		return false
	}
	t, err := Parse(tag)
	if err != nil {
		return false
	}
	script, _ := t.Script()
	return script == hant
}

// Region 返回大写的地区代码，没有明确地区时返回空串
func Region(tag string) string {
	t, err := Parse(tag)
	if err != nil {
		return ""
	}
	region, conf := t.Region()
	if conf != language.Exact {
		return ""
	}
	return region.String()
}
