package orchestrator

import "sync"

// TargetID 目标的稳定标识，由宿主提供
type TargetID string

// targetState 每个目标的标记：当前请求标识与进行中标记
type targetState struct {
	current    uint64
	inProgress bool
	lastText   string
	owner      uint64
}

// sideTable 以目标标识为键的状态表，替代在宿主对象上附加字段
type sideTable struct {
	mu sync.Mutex
	m  map[TargetID]*targetState
}

func newSideTable() *sideTable {
	return &sideTable{m: make(map[TargetID]*targetState)}
}

func (t *sideTable) state(id TargetID) *targetState {
	st, ok := t.m[id]
	if !ok {
		st = &targetState{}
		t.m[id] = st
	}
	return st
}

// isDuplicate 目标正在处理完全相同的文本
func (t *sideTable) isDuplicate(id TargetID, text string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.m[id]
	return ok && st.inProgress && st.lastText == text
}

// retarget 把目标的当前请求标识改为 reqID，旧请求的进行中标记随之失效
func (t *sideTable) retarget(id TargetID, reqID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.state(id)
	st.current = reqID
	st.inProgress = false
	st.lastText = ""
	st.owner = 0
}

// mark 设置进行中标记，owner 为持有者的请求标识
func (t *sideTable) mark(id TargetID, text string, owner uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.state(id)
	st.inProgress = true
	st.lastText = text
	st.owner = owner
}

// clearMarker 仅当标记仍归 owner 所有时清除
func (t *sideTable) clearMarker(id TargetID, owner uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.m[id]
	if !ok || st.owner != owner {
		return
	}
	st.inProgress = false
	st.lastText = ""
	st.owner = 0
}

func (t *sideTable) isCurrent(id TargetID, reqID uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.m[id]
	return ok && st.current == reqID
}

func (t *sideTable) current(id TargetID) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.m[id]
	if !ok {
		return 0, false
	}
	return st.current, true
}

func (t *sideTable) inProgress(id TargetID) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.m[id]
	if !ok || !st.inProgress {
		return "", false
	}
	return st.lastText, true
}

func (t *sideTable) release(id TargetID) {
	t.mu.Lock()
	delete(t.m, id)
	t.mu.Unlock()
}

func (t *sideTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}
