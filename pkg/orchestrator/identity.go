package orchestrator

import "sync/atomic"

// IDGenerator 单调递增的请求标识生成器
type IDGenerator struct {
	last atomic.Uint64
}

// Next 返回下一个标识，从 1 开始
func (g *IDGenerator) Next() uint64 {
	return g.last.Add(1)
}

// processIDs 进程内共享的请求标识序列
var processIDs IDGenerator
