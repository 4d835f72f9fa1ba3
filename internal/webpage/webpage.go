// Package webpage 翻译 HTML 页面中的文本节点，保持文档结构不变。
package webpage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

// TextTranslator 文本翻译能力，*translation.Translator 满足此接口
type TextTranslator interface {
	Translate(ctx context.Context, text, src, dst string) (string, error)
}

type needsChecker interface {
	NeedsTranslation(text string) bool
}

// Options 页面翻译选项
type Options struct {
	SourceLang           string
	TargetLang           string
	MinLength            int      // 去掉首尾空白后的最少字符数
	Concurrency          int      // 同时进行的翻译请求数
	SkipElements         []string // 这些元素内部的文本不翻译
	RespectTranslateAttr bool     // translate="no" 的元素不翻译
}

// DefaultOptions 默认选项
func DefaultOptions() Options {
	return Options{
		SourceLang:  "auto",
		TargetLang:  "zh-TW",
		MinLength:   20,
		Concurrency: 8,
		SkipElements: []string{
			"script", "style", "noscript", "iframe", "svg", "canvas", "head", "meta", "link",
		},
		RespectTranslateAttr: true,
	}
}

// TextNode 待翻译的文本节点
type TextNode struct {
	Node     *html.Node
	Text     string // 去掉首尾空白的文本
	Leading  string
	Trailing string
}

// Result 翻译统计
type Result struct {
	Nodes      int
	Translated int
	Failed     int
}

// Translator 页面翻译器
type Translator struct {
	tr     TextTranslator
	opts   Options
	skip   map[string]bool
	logger *zap.Logger
}

// New 创建页面翻译器
func New(tr TextTranslator, opts Options, logger *zap.Logger) *Translator {
	def := DefaultOptions()
	if opts.MinLength <= 0 {
		opts.MinLength = def.MinLength
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.SkipElements == nil {
		opts.SkipElements = def.SkipElements
	}
	if opts.SourceLang == "" {
		opts.SourceLang = def.SourceLang
	}
	if opts.TargetLang == "" {
		opts.TargetLang = def.TargetLang
	}
	skip := make(map[string]bool, len(opts.SkipElements))
	for _, e := range opts.SkipElements {
		skip[strings.ToLower(e)] = true
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Translator{tr: tr, opts: opts, skip: skip, logger: logger}
}

// Extract 按文档顺序收集需要翻译的文本节点
func (t *Translator) Extract(doc *goquery.Document) []*TextNode {
	var nodes []*TextNode
	checker, _ := t.tr.(needsChecker)

	doc.Find("*").Contents().Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		if node.Type != html.TextNode || t.skipped(node) {
			return
		}
		core := strings.TrimSpace(node.Data)
		if utf8.RuneCountInString(core) < t.opts.MinLength {
			return
		}
		if checker != nil && !checker.NeedsTranslation(core) {
			return
		}
		start := strings.Index(node.Data, core)
		nodes = append(nodes, &TextNode{
			Node:     node,
			Text:     core,
			Leading:  node.Data[:start],
			Trailing: node.Data[start+len(core):],
		})
	})
	return nodes
}

// skipped 文本节点的任一祖先在跳过列表中或标记了 translate="no"
func (t *Translator) skipped(node *html.Node) bool {
	for p := node.Parent; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		if t.skip[strings.ToLower(p.Data)] {
			return true
		}
		if t.opts.RespectTranslateAttr {
			for _, a := range p.Attr {
				if strings.EqualFold(a.Key, "translate") && strings.EqualFold(a.Val, "no") {
					return true
				}
			}
		}
	}
	return false
}

// TranslateDocument 并发翻译文档中的文本节点并就地替换。单个节点失败时保留原文。
func (t *Translator) TranslateDocument(ctx context.Context, doc *goquery.Document) (Result, error) {
	nodes := t.Extract(doc)
	result := Result{Nodes: len(nodes)}
	if len(nodes) == 0 {
		return result, nil
	}

	out := make([]string, len(nodes))
	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.opts.Concurrency)
	for i, n := range nodes {
		g.Go(func() error {
			text, err := t.tr.Translate(gctx, n.Text, t.opts.SourceLang, t.opts.TargetLang)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failed.Add(1)
				t.logger.Debug("文本节点翻译失败，保留原文", zap.String("text", n.Text), zap.Error(err))
				return nil
			}
			out[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	for i, n := range nodes {
		if out[i] == "" || out[i] == n.Text {
			continue
		}
		n.Node.Data = n.Leading + out[i] + n.Trailing
		result.Translated++
	}
	result.Failed = int(failed.Load())
	t.logger.Info("页面翻译完成",
		zap.Int("nodes", result.Nodes),
		zap.Int("translated", result.Translated),
		zap.Int("failed", result.Failed))
	return result, nil
}

// TranslateHTML 读取 HTML，翻译后写出
func (t *Translator) TranslateHTML(ctx context.Context, r io.Reader, w io.Writer) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Result{}, fmt.Errorf("parse html: %w", err)
	}
	result, err := t.TranslateDocument(ctx, doc)
	if err != nil {
		return result, err
	}
	if err := html.Render(w, doc.Get(0)); err != nil {
		return result, fmt.Errorf("render html: %w", err)
	}
	return result, nil
}
