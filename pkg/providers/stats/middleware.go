package stats

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/nerdneilsfield/xptranslate/pkg/providers"
)

var bracketPattern = regexp.MustCompile(`\[[^\[\]\r\n]*\]`)

// StatisticsMiddleware 统计中间件，包装任意后端
type StatisticsMiddleware struct {
	next         providers.TranslationProvider
	statsManager *StatsManager
}

var _ providers.Provider = (*StatisticsMiddleware)(nil)

// NewStatisticsMiddleware 创建统计中间件
func NewStatisticsMiddleware(next providers.TranslationProvider, statsManager *StatsManager) *StatisticsMiddleware {
	return &StatisticsMiddleware{next: next, statsManager: statsManager}
}

// Unwrap 返回被包装的后端
func (sm *StatisticsMiddleware) Unwrap() providers.TranslationProvider {
	return sm.next
}

// Translate 带统计的翻译
func (sm *StatisticsMiddleware) Translate(ctx context.Context, req *providers.ProviderRequest) (*providers.ProviderResponse, error) {
	start := time.Now()
	resp, err := sm.next.Translate(ctx, req)

	result := RequestResult{
		Success: err == nil,
		Latency: time.Since(start),
	}
	if err != nil {
		result.ErrorType = classifyError(err)
	}
	if brackets := bracketPattern.FindAllString(req.Text, -1); len(brackets) > 0 {
		result.HasBrackets = true
		if err == nil && resp != nil {
			result.BracketLost = !containsAll(resp.Text, brackets)
		}
	}
	sm.statsManager.RecordRequest(sm.next.GetName(), result)
	return resp, err
}

func containsAll(text string, tokens []string) bool {
	found := make(map[string]int)
	for _, m := range bracketPattern.FindAllString(text, -1) {
		found[m]++
	}
	for _, t := range tokens {
		if found[t] == 0 {
			return false
		}
		found[t]--
	}
	return true
}

func classifyError(err error) string {
	var perr *providers.Error
	switch {
	case errors.As(err, &perr):
		return perr.Code
	case errors.Is(err, context.DeadlineExceeded):
		return providers.ErrCodeTimeout
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unknown"
	}
}

// GetName 获取提供商名称
func (sm *StatisticsMiddleware) GetName() string {
	return sm.next.GetName()
}

// GetCapabilities 透传能力
func (sm *StatisticsMiddleware) GetCapabilities() providers.Capabilities {
	return providers.CapabilitiesOf(sm.next)
}

// HealthCheck 透传健康检查
func (sm *StatisticsMiddleware) HealthCheck(ctx context.Context) error {
	if hc, ok := sm.next.(providers.Provider); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
