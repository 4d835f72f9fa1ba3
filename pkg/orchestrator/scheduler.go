package orchestrator

import (
	"sync"

	"go.uber.org/zap"
)

// Scheduler 目标所属的单线程执行上下文。
// 对目标的读写与译文应用只允许通过 Post 投递到这里执行。
type Scheduler interface {
	// Post 投递任务，上下文已关闭时返回 false
	Post(fn func()) bool
}

// EventLoop 用单个 goroutine 串行执行投递任务的 Scheduler 实现
type EventLoop struct {
	tasks  chan func()
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewEventLoop 创建并启动事件循环
func NewEventLoop(buffer int, logger *zap.Logger) *EventLoop {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &EventLoop{
		tasks:  make(chan func(), buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	l.wg.Add(1)
	go l.run()
	return l
}

// Post 投递任务
func (l *EventLoop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Sync 投递任务并等待其执行完毕
func (l *EventLoop) Sync(fn func()) bool {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-l.done:
		return false
	}
}

// Close 停止事件循环，已投递但未执行的任务被丢弃
func (l *EventLoop) Close() {
	l.once.Do(func() { close(l.done) })
	l.wg.Wait()
}

func (l *EventLoop) run() {
	defer l.wg.Done()
	for {
		select {
		case fn := <-l.tasks:
			l.exec(fn)
		case <-l.done:
			return
		}
	}
}

func (l *EventLoop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("事件循环任务崩溃", zap.Any("panic", r))
		}
	}()
	fn()
}
