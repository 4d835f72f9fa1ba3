package test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"github.com/nerdneilsfield/xptranslate/pkg/providers"
)

// MockProvider 是一个基于 testify/mock 的翻译后端
type MockProvider struct {
	mock.Mock
}

// Translate 实现 providers.TranslationProvider
func (m *MockProvider) Translate(ctx context.Context, req *providers.ProviderRequest) (*providers.ProviderResponse, error) {
	args := m.Called(ctx, req)
	if resp, ok := args.Get(0).(*providers.ProviderResponse); ok {
		return resp, args.Error(1)
	}
	return nil, args.Error(1)
}

// GetName 返回提供商名称
func (m *MockProvider) GetName() string {
	return "mock"
}

// FuncProvider 用函数实现翻译并统计调用次数
type FuncProvider struct {
	Name string
	Fn   func(text, src, dst string) (string, error)

	calls atomic.Int64
	mu    sync.Mutex
	texts []string
}

// NewFuncProvider 创建函数后端
func NewFuncProvider(fn func(text, src, dst string) (string, error)) *FuncProvider {
	return &FuncProvider{Name: "func", Fn: fn}
}

// UpperProvider 把文本转为大写的后端，便于断言译文
func UpperProvider() *FuncProvider {
	return NewFuncProvider(func(text, _, _ string) (string, error) {
		return strings.ToUpper(text), nil
	})
}

// Translate 实现 providers.TranslationProvider
func (p *FuncProvider) Translate(_ context.Context, req *providers.ProviderRequest) (*providers.ProviderResponse, error) {
	p.calls.Add(1)
	p.mu.Lock()
	p.texts = append(p.texts, req.Text)
	p.mu.Unlock()

	out, err := p.Fn(req.Text, req.SourceLanguage, req.TargetLanguage)
	if err != nil {
		return nil, err
	}
	return &providers.ProviderResponse{Text: out}, nil
}

// GetName 返回提供商名称
func (p *FuncProvider) GetName() string {
	return p.Name
}

// Calls 调用次数
func (p *FuncProvider) Calls() int64 {
	return p.calls.Load()
}

// Texts 按调用顺序返回收到的文本
func (p *FuncProvider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.texts))
	copy(out, p.texts)
	return out
}

// BlockingProvider 在 Release 之前阻塞所有调用，用于构造并发场景
type BlockingProvider struct {
	*FuncProvider

	mu      sync.Mutex
	gates   map[string]chan struct{}
	started chan string
}

// NewBlockingProvider 创建阻塞后端，started 缓冲足够多的开始通知
func NewBlockingProvider(fn func(text, src, dst string) (string, error)) *BlockingProvider {
	return &BlockingProvider{
		FuncProvider: NewFuncProvider(fn),
		gates:        make(map[string]chan struct{}),
		started:      make(chan string, 64),
	}
}

func (p *BlockingProvider) gate(text string) chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.gates[text]
	if !ok {
		g = make(chan struct{})
		p.gates[text] = g
	}
	return g
}

// Translate 等待对应文本被放行后再翻译
func (p *BlockingProvider) Translate(ctx context.Context, req *providers.ProviderRequest) (*providers.ProviderResponse, error) {
	p.started <- req.Text
	select {
	case <-p.gate(req.Text):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return p.FuncProvider.Translate(ctx, req)
}

// Started 后端开始处理某个文本时发出通知
func (p *BlockingProvider) Started() <-chan string {
	return p.started
}

// Release 放行指定文本的调用
func (p *BlockingProvider) Release(text string) {
	close(p.gate(text))
}
