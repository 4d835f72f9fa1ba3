package translation

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dlclark/regexp2"
)

// RulesFile 规则文件结构
//
//	never_translate = ["OK", "Wi-Fi"]
//	patterns = ['^v\d+(\.\d+)*$']
//
//	[translations]
//	"Settings" = "設定"
//
//	[[app]]
//	package = "org.telegram.messenger"
//	skip_classes = ["org.telegram.ui.Components.EditTextCaption"]
//	skip_class_prefixes = ["org.telegram.ui.Components.Paint."]
type RulesFile struct {
	SourceLang     string            `toml:"source_lang"`
	TargetLang     string            `toml:"target_lang"`
	NeverTranslate []string          `toml:"never_translate"`
	Patterns       []string          `toml:"patterns"`
	Translations   map[string]string `toml:"translations"`
	Apps           []AppRule         `toml:"app"`
}

// AppRule 某个宿主应用下不应翻译的组件类
type AppRule struct {
	Package           string   `toml:"package"`
	SkipClasses       []string `toml:"skip_classes"`
	SkipClassPrefixes []string `toml:"skip_class_prefixes"`
}

// Rules 编译后的规则表。nil 表示没有任何规则。
type Rules struct {
	sourceLang   string
	targetLang   string
	never        map[string]struct{}
	patterns     []*regexp2.Regexp
	translations map[string]string
	apps         map[string]AppRule
}

const patternTimeout = 50 * time.Millisecond

// NewRules 编译规则
func NewRules(file RulesFile) (*Rules, error) {
	r := &Rules{
		sourceLang:   file.SourceLang,
		targetLang:   file.TargetLang,
		never:        make(map[string]struct{}, len(file.NeverTranslate)),
		translations: file.Translations,
		apps:         make(map[string]AppRule, len(file.Apps)),
	}
	for _, s := range file.NeverTranslate {
		r.never[strings.TrimSpace(s)] = struct{}{}
	}
	for _, p := range file.Patterns {
		re, err := regexp2.Compile(p, regexp2.None)
		if err != nil {
			return nil, fmt.Errorf("invalid skip pattern %q: %w", p, err)
		}
		re.MatchTimeout = patternTimeout
		r.patterns = append(r.patterns, re)
	}
	for _, app := range file.Apps {
		if app.Package == "" {
			return nil, fmt.Errorf("rules file: app entry without package")
		}
		r.apps[app.Package] = app
	}
	return r, nil
}

// ParseRules 从 TOML 文本解析规则
func ParseRules(content string) (*Rules, error) {
	var file RulesFile
	if _, err := toml.Decode(content, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rules: %w", err)
	}
	return NewRules(file)
}

// LoadRules 从文件加载规则
func LoadRules(path string) (*Rules, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(string(content))
}

// SkipText 文本是否命中不翻译规则
func (r *Rules) SkipText(text string) bool {
	if r == nil {
		return false
	}
	t := strings.TrimSpace(text)
	if _, ok := r.never[t]; ok {
		return true
	}
	for _, re := range r.patterns {
		// 匹配超时按未命中处理
		if ok, err := re.MatchString(t); err == nil && ok {
			return true
		}
	}
	return false
}

// Predefined 返回固定译文。规则文件声明了语言对时只对该语言对生效。
func (r *Rules) Predefined(src, dst, text string) (string, bool) {
	if r == nil || len(r.translations) == 0 {
		return "", false
	}
	if r.targetLang != "" && !strings.EqualFold(r.targetLang, dst) {
		return "", false
	}
	if r.sourceLang != "" && src != "auto" && !strings.EqualFold(r.sourceLang, src) {
		return "", false
	}
	v, ok := r.translations[text]
	return v, ok
}

// SkipClass 宿主应用 pkg 中的组件类 class 是否应跳过翻译
func (r *Rules) SkipClass(pkg, class string) bool {
	if r == nil {
		return false
	}
	app, ok := r.apps[pkg]
	if !ok {
		return false
	}
	for _, c := range app.SkipClasses {
		if c == class {
			return true
		}
	}
	for _, p := range app.SkipClassPrefixes {
		if strings.HasPrefix(class, p) {
			return true
		}
	}
	return false
}
