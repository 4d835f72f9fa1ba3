package translation

import (
	"context"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/nerdneilsfield/xptranslate/pkg/providers"
	"github.com/nerdneilsfield/xptranslate/pkg/segment"
)

// DefaultCallTimeout 单次合并翻译的上限，与等待它的调用方各自的期限无关
const DefaultCallTimeout = 2 * time.Minute

// Option 翻译器选项
type Option func(*Translator)

// WithCache 指定缓存，默认使用内存缓存
func WithCache(c Cache) Option {
	return func(t *Translator) {
		if c != nil {
			t.cache = c
		}
	}
}

// WithRules 指定不翻译规则与固定译文
func WithRules(r *Rules) Option {
	return func(t *Translator) { t.rules = r }
}

// WithBracketProtection 是否在调用后端前用占位符保护方括号注释
func WithBracketProtection(enabled bool) Option {
	return func(t *Translator) { t.protect = enabled }
}

// WithCallTimeout 指定单次合并翻译的上限
func WithCallTimeout(d time.Duration) Option {
	return func(t *Translator) {
		if d > 0 {
			t.callTimeout = d
		}
	}
}

// WithLogger 指定日志记录器
func WithLogger(l *zap.Logger) Option {
	return func(t *Translator) {
		if l != nil {
			t.logger = l
		}
	}
}

// Stats 翻译器统计
type Stats struct {
	BackendCalls int64
	Failures     int64
	Cache        CacheStats
}

// Translator 带缓存的文本翻译器。所有方法可并发调用。
type Translator struct {
	provider providers.TranslationProvider
	cache    Cache
	rules    *Rules
	protect  bool
	logger   *zap.Logger

	callTimeout time.Duration

	group    singleflight.Group
	calls    atomic.Int64
	failures atomic.Int64
}

// NewTranslator 创建翻译器
func NewTranslator(provider providers.TranslationProvider, opts ...Option) *Translator {
	t := &Translator{
		provider: provider,
		cache:    NewMemoryCache(),
		protect:  true,
		logger:   zap.NewNop(),

		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	if provider != nil && providers.CapabilitiesOf(provider).PreservesBrackets {
		t.protect = false
	}
	return t
}

// Cache 返回底层缓存
func (t *Translator) Cache() Cache {
	return t.cache
}

// Stats 返回统计信息
func (t *Translator) Stats() Stats {
	return Stats{
		BackendCalls: t.calls.Load(),
		Failures:     t.failures.Load(),
		Cache:        t.cache.Stats(),
	}
}

// NeedsTranslation 文本是否需要送往后端
func (t *Translator) NeedsTranslation(text string) bool {
	return IsTranslationNeeded(text) && !t.rules.SkipText(text)
}

// Translate 翻译文本。失败时返回原文以及错误。
func (t *Translator) Translate(ctx context.Context, text, src, dst string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	if prefix, rest := SplitSentinel(text); prefix != "" {
		out, err := t.Translate(ctx, rest, src, dst)
		if err != nil {
			return text, err
		}
		return prefix + out, nil
	}
	if v, ok := t.lookup(text, src, dst); ok {
		return v, nil
	}

	if err := ctx.Err(); err != nil {
		return text, err
	}

	// 合并后的调用不继承任何一个调用方的期限，每个调用方只按自己的 ctx 放弃等待
	key := Key{Source: src, Target: dst, Text: text}
	ch := t.group.DoChan(flightKey(key), func() (any, error) {
		if v, ok := t.cache.Get(key); ok {
			return v, nil
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.callTimeout)
		defer cancel()
		out, err := t.translateLines(fctx, text, src, dst)
		if err != nil {
			return nil, err
		}
		t.store(key, out)
		return out, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			t.failures.Add(1)
			return text, res.Err
		}
		if res.Shared {
			t.logger.Debug("合并了相同的翻译请求", zap.String("key", key.String()))
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		t.failures.Add(1)
		return text, ctx.Err()
	}
}

// TranslateText 翻译文本，任何失败都回退为原文
func (t *Translator) TranslateText(ctx context.Context, text, src, dst string) string {
	out, err := t.Translate(ctx, text, src, dst)
	if err != nil {
		t.logger.Debug("翻译失败，保留原文", zap.String("text", text), zap.Error(err))
		return text
	}
	return out
}

// TranslateSegments 翻译所有尚未翻译的片段，失败的片段以原文作为译文
func (t *Translator) TranslateSegments(ctx context.Context, segs []*segment.Segment, src, dst string) {
	for _, seg := range segs {
		if _, done := seg.Translation(); done {
			continue
		}
		seg.SetTranslation(t.TranslateText(ctx, seg.Text, src, dst))
	}
}

// ResolveSegments 尝试翻译所有尚未翻译的片段，仅在全部成功时返回 true。
// 失败的片段保持未翻译状态。
func (t *Translator) ResolveSegments(ctx context.Context, segs []*segment.Segment, src, dst string) bool {
	all := true
	for _, seg := range segs {
		if _, done := seg.Translation(); done {
			continue
		}
		out, err := t.Translate(ctx, seg.Text, src, dst)
		if err != nil {
			all = false
			continue
		}
		seg.SetTranslation(out)
	}
	return all
}

// FillFromCache 只用缓存和规则填充片段，不调用后端。全部填充时返回 true。
func (t *Translator) FillFromCache(segs []*segment.Segment, src, dst string) bool {
	all := true
	for _, seg := range segs {
		if _, done := seg.Translation(); done {
			continue
		}
		if v, ok := t.Lookup(seg.Text, src, dst); ok {
			seg.SetTranslation(v)
			continue
		}
		all = false
	}
	return all
}

// Lookup 不调用后端的解析：空白、缓存命中、固定译文或无需翻译的文本
func (t *Translator) Lookup(text, src, dst string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return text, true
	}
	if prefix, rest := SplitSentinel(text); prefix != "" {
		if v, ok := t.Lookup(rest, src, dst); ok {
			return prefix + v, true
		}
		return "", false
	}
	if v, ok := t.lookup(text, src, dst); ok {
		return v, true
	}

	lines, sep := SplitLines(text)
	if sep == "" {
		return "", false
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			out[i] = line
			continue
		}
		v, ok := t.lookup(line, src, dst)
		if !ok {
			return "", false
		}
		out[i] = v
	}
	return JoinLines(out, sep), true
}

func (t *Translator) lookup(text, src, dst string) (string, bool) {
	if v, ok := t.cache.Get(Key{Source: src, Target: dst, Text: text}); ok {
		return v, true
	}
	if v, ok := t.rules.Predefined(src, dst, text); ok {
		return v, true
	}
	if !t.NeedsTranslation(text) {
		return text, true
	}
	return "", false
}

// translateLines 按原换行风格逐行翻译，空行不调用后端
func (t *Translator) translateLines(ctx context.Context, text, src, dst string) (string, error) {
	lines, sep := SplitLines(text)
	if sep == "" {
		return t.translateLine(ctx, text, src, dst)
	}

	out := make([]string, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			out[i] = line
			continue
		}
		if v, ok := t.lookup(line, src, dst); ok {
			out[i] = v
			continue
		}
		r, err := t.translateLine(ctx, line, src, dst)
		if err != nil {
			return "", err
		}
		t.store(Key{Source: src, Target: dst, Text: line}, r)
		out[i] = r
	}
	return JoinLines(out, sep), nil
}

func (t *Translator) translateLine(ctx context.Context, line, src, dst string) (string, error) {
	if t.protect && HasBrackets(line) {
		return t.translateProtected(ctx, line, src, dst)
	}
	return t.call(ctx, line, src, dst)
}

// translateProtected 用占位符保护方括号注释后翻译；占位符被后端破坏时退回逐段翻译
func (t *Translator) translateProtected(ctx context.Context, line, src, dst string) (string, error) {
	pieces := SplitBrackets(line)
	needed := false
	for _, p := range pieces {
		if !p.Bracket && t.NeedsTranslation(p.Text) {
			needed = true
			break
		}
	}
	if !needed {
		return line, nil
	}

	pm := NewPreserveManager(DefaultPreserveConfig)
	protected := pm.ProtectBrackets(line)
	out, err := t.call(ctx, protected, src, dst)
	if err != nil {
		return "", err
	}
	restored, err := pm.Restore(out)
	if err == nil {
		return restored, nil
	}

	t.logger.Debug("占位符未能还原，改为逐段翻译", zap.String("line", line), zap.Error(err))
	var b strings.Builder
	for _, p := range pieces {
		if p.Bracket || !t.NeedsTranslation(p.Text) {
			b.WriteString(p.Text)
			continue
		}
		lead, core, trail := splitSpace(p.Text)
		r, err := t.call(ctx, core, src, dst)
		if err != nil {
			return "", err
		}
		b.WriteString(lead)
		b.WriteString(r)
		b.WriteString(trail)
	}
	return b.String(), nil
}

func (t *Translator) call(ctx context.Context, text, src, dst string) (string, error) {
	if t.provider == nil {
		return "", ErrNoProvider
	}
	t.calls.Add(1)
	resp, err := t.provider.Translate(ctx, &providers.ProviderRequest{
		Text:           text,
		SourceLanguage: src,
		TargetLanguage: dst,
	})
	if err != nil {
		return "", WrapError(err, ErrCodeBackend, t.provider.GetName()+" 翻译失败")
	}
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return "", ErrEmptyResult
	}
	return resp.Text, nil
}

func (t *Translator) store(key Key, value string) {
	if err := t.cache.Set(key, value); err != nil {
		t.logger.Warn("写入缓存失败", zap.String("key", key.String()), zap.Error(err))
	}
}

func flightKey(k Key) string {
	return k.Source + "\x00" + k.Target + "\x00" + k.Text
}

func splitSpace(s string) (lead, core, trail string) {
	core = strings.TrimLeftFunc(s, unicode.IsSpace)
	lead = s[:len(s)-len(core)]
	trimmed := strings.TrimRightFunc(core, unicode.IsSpace)
	trail = core[len(trimmed):]
	return lead, trimmed, trail
}
