package localservice

import (
	"strings"

	"github.com/pemistahl/lingua-go"
)

// Identifier 语言识别能力
type Identifier interface {
	// Identify 返回最可能的语言代码及置信度，无法识别时 ok 为 false
	Identify(text string) (code string, confidence float64, ok bool)
}

// LinguaIdentifier 基于 lingua 的离线语言识别
type LinguaIdentifier struct {
	detector lingua.LanguageDetector
}

// NewLinguaIdentifier 只加载给定 ISO 639-1 代码的语言模型，codes 为空时加载全部语言
func NewLinguaIdentifier(codes []string) *LinguaIdentifier {
	var languages []lingua.Language
	for _, c := range codes {
		iso := lingua.GetIsoCode639_1FromValue(strings.TrimSpace(c))
		lang := lingua.GetLanguageFromIsoCode639_1(iso)
		if lang != lingua.Unknown {
			languages = append(languages, lang)
		}
	}

	builder := lingua.NewLanguageDetectorBuilder()
	var detector lingua.LanguageDetector
	if len(languages) >= 2 {
		detector = builder.FromLanguages(languages...).Build()
	} else {
		detector = builder.FromAllLanguages().Build()
	}
	return &LinguaIdentifier{detector: detector}
}

// Identify 实现 Identifier
func (l *LinguaIdentifier) Identify(text string) (string, float64, bool) {
	values := l.detector.ComputeLanguageConfidenceValues(text)
	if len(values) == 0 {
		return "", 0, false
	}
	top := values[0]
	if top.Language() == lingua.Unknown || top.Value() <= 0 {
		return "", 0, false
	}
	return strings.ToLower(top.Language().IsoCode639_1().String()), top.Value(), true
}

// resolveSource 识别置信度低于阈值或失败时返回 fallback
func resolveSource(id Identifier, text string, threshold float64, fallback string) string {
	if id == nil {
		return fallback
	}
	code, confidence, ok := id.Identify(text)
	if !ok || code == "" || confidence < threshold {
		return fallback
	}
	return code
}
