package localservice

import (
	"fmt"
	"sync"

	"github.com/longbridgeapp/opencc"

	"github.com/nerdneilsfield/xptranslate/pkg/langtag"
)

// ScriptConverter 简体转繁体，按目标地区选择台湾、香港或通用繁体词库
type ScriptConverter struct {
	mu         sync.Mutex
	converters map[string]*opencc.OpenCC
}

// NewScriptConverter 创建转换器，词库在首次使用时加载
func NewScriptConverter() *ScriptConverter {
	return &ScriptConverter{converters: make(map[string]*opencc.OpenCC)}
}

// ConvertFor 当 dst 表示繁体中文时把 text 转为繁体，否则原样返回
func (s *ScriptConverter) ConvertFor(dst, text string) (string, error) {
	if text == "" || !langtag.IsTraditionalChinese(dst) {
		return text, nil
	}
	cc, err := s.converter(profileFor(dst))
	if err != nil {
		return text, err
	}
	return cc.Convert(text)
}

func profileFor(dst string) string {
	switch langtag.Region(dst) {
	case "TW":
		return "s2tw"
	case "HK", "MO":
		return "s2hk"
	default:
		return "s2t"
	}
}

func (s *ScriptConverter) converter(profile string) (*opencc.OpenCC, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cc, ok := s.converters[profile]; ok {
		return cc, nil
	}
	cc, err := opencc.New(profile)
	if err != nil {
		return nil, fmt.Errorf("load opencc %s: %w", profile, err)
	}
	s.converters[profile] = cc
	return cc, nil
}
