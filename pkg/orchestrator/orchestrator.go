// Package orchestrator 负责界面目标级别的异步翻译编排：
// 为每个请求分配递增标识，在后台翻译，完成后回到目标所属的执行上下文，
// 仅当标识仍是目标的当前标识时才应用译文。
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/xptranslate/pkg/segment"
)

// Target 需要翻译的界面目标
type Target interface {
	// ID 目标的稳定标识
	ID() TargetID
	// Scheduler 目标所属的执行上下文
	Scheduler() Scheduler
	// Apply 在所属上下文中写入译文
	Apply(text *segment.Spanned) error
}

// Classified 可选接口，提供宿主组件类名以便匹配类跳过规则
type Classified interface {
	ClassName() string
}

// EditableTarget 可选接口，可编辑的目标其内容不做翻译
type EditableTarget interface {
	IsEditable() bool
}

// SegmentTranslator 片段翻译能力
type SegmentTranslator interface {
	// TranslateSegments 翻译全部片段，失败的片段以原文作为译文
	TranslateSegments(ctx context.Context, segs []*segment.Segment, src, dst string)
	// FillFromCache 仅用缓存填充，全部填充时返回 true
	FillFromCache(segs []*segment.Segment, src, dst string) bool
}

// SegmentResolver 快速路径使用的解析能力，全部成功时返回 true
type SegmentResolver interface {
	ResolveSegments(ctx context.Context, segs []*segment.Segment, src, dst string) bool
}

// ClassSkipper 组件类跳过规则
type ClassSkipper interface {
	SkipClass(pkg, class string) bool
}

// Outcome OnBeforeRender 的处理结果
type Outcome int

const (
	// OutcomeSkipped 原样放行（空文本、可编辑内容、被规则跳过）
	OutcomeSkipped Outcome = iota
	// OutcomeDuplicate 相同文本已在处理中，请求被丢弃
	OutcomeDuplicate
	// OutcomeResolved 已由缓存同步解析，返回值即译文
	OutcomeResolved
	// OutcomeDispatched 已派发到后台翻译
	OutcomeDispatched
	// OutcomeRejected 队列已满或已关闭，原样放行
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeResolved:
		return "resolved"
	case OutcomeDispatched:
		return "dispatched"
	case OutcomeRejected:
		return "rejected"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ErrClosed 编排器已关闭
var ErrClosed = errors.New("orchestrator closed")

// Config 编排器配置
type Config struct {
	SourceLang   string
	TargetLang   string
	HostPackage  string
	Workers      int
	QueueSize    int
	QuickTimeout time.Duration
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		SourceLang:   "auto",
		TargetLang:   "zh-TW",
		Workers:      20,
		QueueSize:    1024,
		QuickTimeout: time.Second,
	}
}

// Stats 编排器计数
type Stats struct {
	Dispatched int64
	Applied    int64
	Stale      int64
	Failed     int64
	Duplicates int64
	Rejected   int64
	Resolved   int64
}

// Option 编排器选项
type Option func(*Orchestrator)

// WithQuickResolver 设置快速路径使用的解析器（通常是本机服务后端）
func WithQuickResolver(r SegmentResolver) Option {
	return func(o *Orchestrator) { o.quick = r }
}

// WithClassRules 设置组件类跳过规则
func WithClassRules(r ClassSkipper) Option {
	return func(o *Orchestrator) { o.classes = r }
}

// WithLogger 设置日志记录器
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithIDGenerator 使用独立的请求标识序列
func WithIDGenerator(g *IDGenerator) Option {
	return func(o *Orchestrator) { o.ids = g }
}

type task struct {
	target   Target
	reqID    uint64
	original *segment.Spanned
	segments []*segment.Segment
	prefetch bool
}

// Orchestrator 异步翻译编排器
type Orchestrator struct {
	cfg        Config
	translator SegmentTranslator
	quick      SegmentResolver
	classes    ClassSkipper
	ids        *IDGenerator
	table      *sideTable
	queue      chan task
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	pendingMu sync.Mutex
	pending   int
	idle      []chan struct{}

	dispatched atomic.Int64
	applied    atomic.Int64
	stale      atomic.Int64
	failed     atomic.Int64
	duplicates atomic.Int64
	rejected   atomic.Int64
	resolved   atomic.Int64
}

// New 创建编排器并启动后台工作协程
func New(translator SegmentTranslator, cfg Config, opts ...Option) *Orchestrator {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.QuickTimeout <= 0 {
		cfg.QuickTimeout = def.QuickTimeout
	}
	if cfg.SourceLang == "" {
		cfg.SourceLang = def.SourceLang
	}
	if cfg.TargetLang == "" {
		cfg.TargetLang = def.TargetLang
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:        cfg,
		translator: translator,
		ids:        &processIDs,
		table:      newSideTable(),
		queue:      make(chan task, cfg.QueueSize),
		logger:     zap.NewNop(),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(o)
	}

	for i := 0; i < cfg.Workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}
	o.logger.Debug("翻译编排器已启动",
		zap.Int("workers", cfg.Workers),
		zap.Int("queue_size", cfg.QueueSize))
	return o
}

// OnBeforeRender 目标即将显示 text 时调用，必须在目标所属上下文中调用。
// 返回当前应显示的文本：缓存命中时为译文，否则为原文，译文稍后通过 Target.Apply 写入。
func (o *Orchestrator) OnBeforeRender(target Target, text *segment.Spanned) (out *segment.Spanned, outcome Outcome) {
	out, outcome = text, OutcomeSkipped
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("处理渲染请求时崩溃，原样放行", zap.Any("panic", r))
			out, outcome = text, OutcomeSkipped
		}
	}()

	if target == nil || text == nil {
		return text, OutcomeSkipped
	}
	id := target.ID()
	plain := text.String()

	if o.table.isDuplicate(id, plain) {
		o.duplicates.Add(1)
		o.logger.Debug("相同文本正在翻译，忽略重复请求", zap.String("target", string(id)))
		return text, OutcomeDuplicate
	}

	reqID := o.ids.Next()
	o.table.retarget(id, reqID)

	if o.shouldSkip(target, text) {
		return text, OutcomeSkipped
	}

	segs := segment.ParseAllSegments(text)
	if o.translator.FillFromCache(segs, o.cfg.SourceLang, o.cfg.TargetLang) {
		o.resolved.Add(1)
		return segment.BuildSpannedFromSegments(segs), OutcomeResolved
	}

	o.table.mark(id, plain, reqID)
	if err := o.enqueue(task{target: target, reqID: reqID, original: text, segments: segs}); err != nil {
		o.table.clearMarker(id, reqID)
		o.rejected.Add(1)
		o.logger.Warn("翻译任务无法派发，原样放行", zap.String("target", string(id)), zap.Error(err))
		return text, OutcomeRejected
	}
	o.dispatched.Add(1)
	o.logger.Debug("已派发翻译任务",
		zap.String("target", string(id)),
		zap.Uint64("request_id", reqID),
		zap.Int("segments", len(segs)))
	return text, OutcomeDispatched
}

// ResolveSync 需要立即得到结果的同步路径：先查缓存，再在限定时间内尝试快速解析器，
// 仍未解析则在后台预取以填充缓存，并返回原文。
func (o *Orchestrator) ResolveSync(target Target, text *segment.Spanned) (out *segment.Spanned) {
	out = text
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("同步解析时崩溃，原样放行", zap.Any("panic", r))
			out = text
		}
	}()

	if target == nil || text == nil {
		return text
	}
	id := target.ID()
	plain := text.String()
	if o.table.isDuplicate(id, plain) {
		o.duplicates.Add(1)
		return text
	}

	reqID := o.ids.Next()
	o.table.retarget(id, reqID)
	if o.shouldSkip(target, text) {
		return text
	}

	segs := segment.ParseAllSegments(text)
	if o.translator.FillFromCache(segs, o.cfg.SourceLang, o.cfg.TargetLang) {
		o.resolved.Add(1)
		return segment.BuildSpannedFromSegments(segs)
	}

	if o.quick != nil {
		o.table.mark(id, plain, reqID)
		ctx, cancel := context.WithTimeout(o.ctx, o.cfg.QuickTimeout)
		ok := o.quick.ResolveSegments(ctx, segs, o.cfg.SourceLang, o.cfg.TargetLang)
		cancel()
		o.table.clearMarker(id, reqID)
		if ok {
			o.resolved.Add(1)
			return segment.BuildSpannedFromSegments(segs)
		}
		o.logger.Debug("快速翻译未能及时完成，转为后台预取", zap.String("target", string(id)))
	}

	if err := o.enqueue(task{target: target, reqID: reqID, original: text, segments: segs, prefetch: true}); err != nil {
		o.logger.Debug("预取任务未能派发", zap.Error(err))
	}
	return text
}

// Release 目标销毁时释放其状态
func (o *Orchestrator) Release(id TargetID) {
	o.table.release(id)
}

// CurrentRequest 返回目标当前的请求标识
func (o *Orchestrator) CurrentRequest(id TargetID) (uint64, bool) {
	return o.table.current(id)
}

// InProgress 返回目标进行中的文本
func (o *Orchestrator) InProgress(id TargetID) (string, bool) {
	return o.table.inProgress(id)
}

// Tracked 当前登记的目标数量
func (o *Orchestrator) Tracked() int {
	return o.table.size()
}

// Stats 返回计数
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Dispatched: o.dispatched.Load(),
		Applied:    o.applied.Load(),
		Stale:      o.stale.Load(),
		Failed:     o.failed.Load(),
		Duplicates: o.duplicates.Load(),
		Rejected:   o.rejected.Load(),
		Resolved:   o.resolved.Load(),
	}
}

// Shutdown 停止接收任务并等待工作协程退出。进行中的后端调用收到取消信号，其结果不再应用。
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.cancel()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		o.logger.Debug("翻译编排器已停止")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) shouldSkip(target Target, text *segment.Spanned) bool {
	if text.Len() == 0 || text.IsEditable() {
		return true
	}
	if e, ok := target.(EditableTarget); ok && e.IsEditable() {
		return true
	}
	if c, ok := target.(Classified); ok && o.classes != nil && o.classes.SkipClass(o.cfg.HostPackage, c.ClassName()) {
		o.logger.Debug("组件类命中跳过规则", zap.String("class", c.ClassName()))
		return true
	}
	return false
}

func (o *Orchestrator) enqueue(t task) error {
	if o.ctx.Err() != nil {
		return ErrClosed
	}
	o.begin()
	select {
	case o.queue <- t:
		return nil
	default:
		o.finish()
		return fmt.Errorf("translation queue full (%d)", cap(o.queue))
	}
}

func (o *Orchestrator) begin() {
	o.pendingMu.Lock()
	o.pending++
	o.pendingMu.Unlock()
}

// finish 一个已接受的任务结束，计数归零时唤醒 Flush
func (o *Orchestrator) finish() {
	o.pendingMu.Lock()
	defer o.pendingMu.Unlock()
	o.pending--
	if o.pending > 0 {
		return
	}
	for _, ch := range o.idle {
		close(ch)
	}
	o.idle = nil
}

// Flush 等待所有已接受的任务结束，包括在目标上下文中应用译文。
// 不能在目标所属的执行上下文中调用。
func (o *Orchestrator) Flush(ctx context.Context) error {
	o.pendingMu.Lock()
	if o.pending == 0 {
		o.pendingMu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	o.idle = append(o.idle, ch)
	o.pendingMu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-o.ctx.Done():
		return ErrClosed
	}
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for {
		select {
		case <-o.ctx.Done():
			return
		case t := <-o.queue:
			o.process(t)
		}
	}
}

func (o *Orchestrator) process(t task) {
	id := t.target.ID()
	failed := o.translate(t)
	if t.prefetch {
		o.finish()
		return
	}
	if o.ctx.Err() != nil {
		o.table.clearMarker(id, t.reqID)
		o.finish()
		return
	}

	sched := t.target.Scheduler()
	if sched == nil || !sched.Post(func() {
		defer o.finish()
		o.complete(t, failed)
	}) {
		o.finish()
		o.table.clearMarker(id, t.reqID)
		o.failed.Add(1)
		o.logger.Debug("目标执行上下文不可用，放弃应用", zap.String("target", string(id)))
	}
}

// translate 在后台翻译片段，崩溃视为失败
func (o *Orchestrator) translate(t task) (failed bool) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("翻译任务崩溃", zap.Uint64("request_id", t.reqID), zap.Any("panic", r))
			failed = true
		}
	}()
	o.translator.TranslateSegments(o.ctx, t.segments, o.cfg.SourceLang, o.cfg.TargetLang)
	return false
}

// complete 在目标所属上下文中执行
func (o *Orchestrator) complete(t task, failed bool) {
	id := t.target.ID()
	defer func() {
		if r := recover(); r != nil {
			o.table.clearMarker(id, t.reqID)
			o.failed.Add(1)
			o.logger.Error("应用译文时崩溃，保留原文", zap.String("target", string(id)), zap.Any("panic", r))
		}
	}()

	if failed {
		o.table.clearMarker(id, t.reqID)
		o.failed.Add(1)
		return
	}
	if !o.table.isCurrent(id, t.reqID) {
		o.table.clearMarker(id, t.reqID)
		o.stale.Add(1)
		o.logger.Debug("过期的翻译结果被丢弃", zap.String("target", string(id)), zap.Uint64("request_id", t.reqID))
		return
	}

	out := segment.BuildSpannedFromSegments(t.segments)
	if out.String() == t.original.String() {
		o.table.clearMarker(id, t.reqID)
		return
	}

	// 应用期间标记持有译文，setter 重入时被识别为重复请求
	o.table.mark(id, out.String(), t.reqID)
	err := t.target.Apply(out)
	o.table.clearMarker(id, t.reqID)
	if err != nil {
		o.failed.Add(1)
		o.logger.Debug("目标已不可用，保留原文", zap.String("target", string(id)), zap.Error(err))
		return
	}
	o.applied.Add(1)
}
