package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdneilsfield/xptranslate/internal/test"
	"github.com/nerdneilsfield/xptranslate/pkg/segment"
	"github.com/nerdneilsfield/xptranslate/pkg/translation"
)

type fakeTarget struct {
	id      TargetID
	loop    *EventLoop
	class   string
	onApply func(*segment.Spanned)

	mu      sync.Mutex
	applied []string
}

func (f *fakeTarget) ID() TargetID         { return f.id }
func (f *fakeTarget) Scheduler() Scheduler { return f.loop }
func (f *fakeTarget) ClassName() string    { return f.class }

func (f *fakeTarget) Apply(text *segment.Spanned) error {
	f.mu.Lock()
	f.applied = append(f.applied, text.String())
	f.mu.Unlock()
	if f.onApply != nil {
		f.onApply(text)
	}
	return nil
}

func (f *fakeTarget) Applied() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.applied...)
}

type harness struct {
	t    *testing.T
	o    *Orchestrator
	loop *EventLoop
}

func newHarness(t *testing.T, tr SegmentTranslator, cfg Config, opts ...Option) *harness {
	t.Helper()
	if cfg.SourceLang == "" {
		cfg.SourceLang = "en"
	}
	if cfg.TargetLang == "" {
		cfg.TargetLang = "zh"
	}
	if cfg.Workers == 0 {
		cfg.Workers = 4
	}
	opts = append([]Option{WithIDGenerator(&IDGenerator{})}, opts...)
	h := &harness{t: t, o: New(tr, cfg, opts...), loop: NewEventLoop(16, nil)}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.o.Shutdown(ctx)
		h.loop.Close()
	})
	return h
}

func (h *harness) target(id string) *fakeTarget {
	return &fakeTarget{id: TargetID(id), loop: h.loop}
}

// render 在目标所属的事件循环中调用 OnBeforeRender
func (h *harness) render(target Target, text *segment.Spanned) (string, Outcome) {
	var (
		out     *segment.Spanned
		outcome Outcome
	)
	require.True(h.t, h.loop.Sync(func() { out, outcome = h.o.OnBeforeRender(target, text) }))
	return out.String(), outcome
}

func (h *harness) flush() {
	require.True(h.t, h.loop.Sync(func() {}))
}

func waitStarted(t *testing.T, p *test.BlockingProvider, n int) []string {
	t.Helper()
	var got []string
	for i := 0; i < n; i++ {
		select {
		case s := <-p.Started():
			got = append(got, s)
		case <-time.After(2 * time.Second):
			t.Fatalf("backend call %d did not start", i+1)
		}
	}
	return got
}

func prefixer(text, _, _ string) (string, error) {
	return "译:" + text, nil
}

func TestOnlyLatestRequestIsApplied(t *testing.T) {
	for _, order := range [][2]string{{"Beta", "Alpha"}, {"Alpha", "Beta"}} {
		t.Run("先完成 "+order[0], func(t *testing.T) {
			backend := test.NewBlockingProvider(prefixer)
			h := newHarness(t, translation.NewTranslator(backend), Config{})
			target := h.target("tv")

			_, oc := h.render(target, segment.Plain("Alpha"))
			require.Equal(t, OutcomeDispatched, oc)
			_, oc = h.render(target, segment.Plain("Beta"))
			require.Equal(t, OutcomeDispatched, oc)
			assert.ElementsMatch(t, []string{"Alpha", "Beta"}, waitStarted(t, backend, 2))

			backend.Release(order[0])
			backend.Release(order[1])
			require.Eventually(t, func() bool {
				s := h.o.Stats()
				return s.Applied+s.Stale == 2
			}, 2*time.Second, 5*time.Millisecond)
			h.flush()

			assert.Equal(t, []string{"译:Beta"}, target.Applied())
			assert.Equal(t, int64(1), h.o.Stats().Stale)
			_, busy := h.o.InProgress("tv")
			assert.False(t, busy)
		})
	}
}

func TestDuplicateRequestIsDropped(t *testing.T) {
	backend := test.NewBlockingProvider(prefixer)
	tr := translation.NewTranslator(backend)
	h := newHarness(t, tr, Config{})
	target := h.target("tv")

	_, oc := h.render(target, segment.Plain("Loading..."))
	require.Equal(t, OutcomeDispatched, oc)
	_, oc = h.render(target, segment.Plain("Loading..."))
	assert.Equal(t, OutcomeDuplicate, oc)

	waitStarted(t, backend, 1)
	backend.Release("Loading...")
	require.Eventually(t, func() bool { return h.o.Stats().Applied == 1 }, 2*time.Second, 5*time.Millisecond)
	h.flush()

	assert.Equal(t, int64(1), backend.Calls())
	assert.Equal(t, []string{"译:Loading..."}, target.Applied())

	// 之后相同文本直接由缓存解析
	out, oc := h.render(target, segment.Plain("Loading..."))
	assert.Equal(t, OutcomeResolved, oc)
	assert.Equal(t, "译:Loading...", out)
}

func TestDifferentTargetsAreIndependent(t *testing.T) {
	backend := test.NewFuncProvider(prefixer)
	h := newHarness(t, translation.NewTranslator(backend), Config{})
	a, b := h.target("a"), h.target("b")

	_, oc := h.render(a, segment.Plain("Hello"))
	require.Equal(t, OutcomeDispatched, oc)
	_, oc = h.render(b, segment.Plain("World"))
	require.Equal(t, OutcomeDispatched, oc)

	require.Eventually(t, func() bool { return h.o.Stats().Applied == 2 }, 2*time.Second, 5*time.Millisecond)
	h.flush()
	assert.Equal(t, []string{"译:Hello"}, a.Applied())
	assert.Equal(t, []string{"译:World"}, b.Applied())
}

func TestFormattingSurvivesTranslation(t *testing.T) {
	backend := test.UpperProvider()
	h := newHarness(t, translation.NewTranslator(backend), Config{})
	target := h.target("tv")

	var got *segment.Spanned
	target.onApply = func(s *segment.Spanned) { got = s }

	text, err := segment.NewSpanned("hi bob", segment.Span{Object: "bold", Start: 3, End: 6})
	require.NoError(t, err)
	h.render(target, text)
	require.Eventually(t, func() bool { return h.o.Stats().Applied == 1 }, 2*time.Second, 5*time.Millisecond)
	h.flush()

	require.NotNil(t, got)
	assert.Equal(t, "HI BOB", got.String())
	spans := got.Spans()
	require.Len(t, spans, 1)
	assert.Equal(t, 3, spans[0].Start)
	assert.Equal(t, 6, spans[0].End)
}

type panicTranslator struct{}

func (panicTranslator) TranslateSegments(context.Context, []*segment.Segment, string, string) {
	panic("boom")
}

func (panicTranslator) FillFromCache([]*segment.Segment, string, string) bool { return false }

func TestFailedPassthrough(t *testing.T) {
	t.Run("翻译崩溃", func(t *testing.T) {
		h := newHarness(t, panicTranslator{}, Config{})
		target := h.target("tv")

		_, oc := h.render(target, segment.Plain("Hello"))
		require.Equal(t, OutcomeDispatched, oc)
		require.Eventually(t, func() bool { return h.o.Stats().Failed == 1 }, 2*time.Second, 5*time.Millisecond)
		h.flush()

		assert.Empty(t, target.Applied())
		_, busy := h.o.InProgress("tv")
		assert.False(t, busy)

		_, oc = h.render(target, segment.Plain("Hello"))
		assert.Equal(t, OutcomeDispatched, oc, "标记已清除，可以再次派发")
	})

	t.Run("后端失败", func(t *testing.T) {
		backend := test.NewFuncProvider(func(string, string, string) (string, error) {
			return "", errors.New("network down")
		})
		h := newHarness(t, translation.NewTranslator(backend), Config{})
		target := h.target("tv")

		_, oc := h.render(target, segment.Plain("Hello"))
		require.Equal(t, OutcomeDispatched, oc)
		require.Eventually(t, func() bool {
			_, busy := h.o.InProgress("tv")
			return !busy && backend.Calls() > 0
		}, 2*time.Second, 5*time.Millisecond)
		h.flush()
		assert.Empty(t, target.Applied())
	})
}

func TestReentrantApplyIsDropped(t *testing.T) {
	backend := test.NewFuncProvider(prefixer)
	h := newHarness(t, translation.NewTranslator(backend), Config{})
	target := h.target("tv")

	var reentrant Outcome = -1
	target.onApply = func(s *segment.Spanned) {
		// setter 在应用译文时再次触发渲染回调
		_, reentrant = h.o.OnBeforeRender(target, s)
	}

	h.render(target, segment.Plain("Hello"))
	require.Eventually(t, func() bool { return h.o.Stats().Applied == 1 }, 2*time.Second, 5*time.Millisecond)

	var got Outcome
	require.True(t, h.loop.Sync(func() { got = reentrant }))
	assert.Equal(t, OutcomeDuplicate, got)
	assert.Equal(t, int64(1), backend.Calls())
	assert.Equal(t, []string{"译:Hello"}, target.Applied())
}

type editableTarget struct{ *fakeTarget }

func (editableTarget) IsEditable() bool { return true }

func TestSkippedTexts(t *testing.T) {
	backend := test.UpperProvider()
	rules, err := translation.ParseRules(`
[[app]]
package = "org.telegram.messenger"
skip_classes = ["ChatMessageCell"]
`)
	require.NoError(t, err)
	h := newHarness(t, translation.NewTranslator(backend), Config{HostPackage: "org.telegram.messenger"}, WithClassRules(rules))

	editable, err := segment.Editable("draft text")
	require.NoError(t, err)
	_, oc := h.render(h.target("a"), editable)
	assert.Equal(t, OutcomeSkipped, oc)

	_, oc = h.render(editableTarget{h.target("b")}, segment.Plain("Hello"))
	assert.Equal(t, OutcomeSkipped, oc)

	cell := h.target("c")
	cell.class = "ChatMessageCell"
	_, oc = h.render(cell, segment.Plain("Hello"))
	assert.Equal(t, OutcomeSkipped, oc)

	_, oc = h.render(h.target("d"), segment.Plain(""))
	assert.Equal(t, OutcomeSkipped, oc)

	out, oc := h.render(h.target("e"), segment.Plain("42"))
	assert.Equal(t, OutcomeResolved, oc)
	assert.Equal(t, "42", out)

	assert.Zero(t, backend.Calls())
}

func TestSkippedRequestSupersedesInFlight(t *testing.T) {
	backend := test.NewBlockingProvider(prefixer)
	h := newHarness(t, translation.NewTranslator(backend), Config{})
	target := h.target("tv")

	h.render(target, segment.Plain("Alpha"))
	waitStarted(t, backend, 1)
	_, oc := h.render(target, segment.Plain("42"))
	require.Equal(t, OutcomeResolved, oc)

	backend.Release("Alpha")
	require.Eventually(t, func() bool { return h.o.Stats().Stale == 1 }, 2*time.Second, 5*time.Millisecond)
	h.flush()
	assert.Empty(t, target.Applied())
}

func TestResolveSync(t *testing.T) {
	t.Run("缓存命中", func(t *testing.T) {
		tr := translation.NewTranslator(test.UpperProvider())
		require.NoError(t, tr.Cache().Set(translation.Key{Source: "en", Target: "zh", Text: "Hello"}, "你好"))
		h := newHarness(t, tr, Config{})

		out := h.o.ResolveSync(h.target("layout"), segment.Plain("Hello"))
		assert.Equal(t, "你好", out.String())
	})

	t.Run("快速后端", func(t *testing.T) {
		cache := translation.NewMemoryCache()
		slow := test.NewBlockingProvider(prefixer)
		quick := translation.NewTranslator(test.UpperProvider(), translation.WithCache(cache))
		h := newHarness(t, translation.NewTranslator(slow, translation.WithCache(cache)), Config{}, WithQuickResolver(quick))

		out := h.o.ResolveSync(h.target("layout"), segment.Plain("Hello"))
		assert.Equal(t, "HELLO", out.String())
		assert.Zero(t, slow.Calls())
	})

	t.Run("快速后端超时后预取", func(t *testing.T) {
		cache := translation.NewMemoryCache()
		stuck := test.NewBlockingProvider(prefixer)
		main := test.NewFuncProvider(prefixer)
		quick := translation.NewTranslator(stuck, translation.WithCache(cache))
		h := newHarness(t, translation.NewTranslator(main, translation.WithCache(cache)),
			Config{QuickTimeout: 50 * time.Millisecond}, WithQuickResolver(quick))

		out := h.o.ResolveSync(h.target("layout"), segment.Plain("Hello"))
		assert.Equal(t, "Hello", out.String())

		require.Eventually(t, func() bool {
			v, ok := cache.Get(translation.Key{Source: "en", Target: "zh", Text: "Hello"})
			return ok && v == "译:Hello"
		}, 2*time.Second, 5*time.Millisecond)

		out = h.o.ResolveSync(h.target("layout"), segment.Plain("Hello"))
		assert.Equal(t, "译:Hello", out.String())
	})
}

func TestQueueFullIsRejected(t *testing.T) {
	backend := test.NewBlockingProvider(prefixer)
	h := newHarness(t, translation.NewTranslator(backend), Config{Workers: 1, QueueSize: 1})

	_, oc := h.render(h.target("a"), segment.Plain("first"))
	require.Equal(t, OutcomeDispatched, oc)
	waitStarted(t, backend, 1)

	_, oc = h.render(h.target("b"), segment.Plain("second"))
	require.Equal(t, OutcomeDispatched, oc)

	_, oc = h.render(h.target("c"), segment.Plain("third"))
	assert.Equal(t, OutcomeRejected, oc)
	_, busy := h.o.InProgress("c")
	assert.False(t, busy)

	backend.Release("first")
	backend.Release("second")
}

func TestReleaseForgetsTarget(t *testing.T) {
	h := newHarness(t, translation.NewTranslator(test.UpperProvider()), Config{})
	h.render(h.target("tv"), segment.Plain("42"))
	assert.Equal(t, 1, h.o.Tracked())

	h.o.Release("tv")
	assert.Equal(t, 0, h.o.Tracked())
	_, ok := h.o.CurrentRequest("tv")
	assert.False(t, ok)
}

func TestShutdownRejectsNewWork(t *testing.T) {
	h := newHarness(t, translation.NewTranslator(test.UpperProvider()), Config{})
	require.NoError(t, h.o.Shutdown(context.Background()))

	_, oc := h.render(h.target("tv"), segment.Plain("Hello"))
	assert.Equal(t, OutcomeRejected, oc)
}

func TestFlushWaitsForApply(t *testing.T) {
	backend := test.NewBlockingProvider(prefixer)
	h := newHarness(t, translation.NewTranslator(backend), Config{})
	require.NoError(t, h.o.Flush(context.Background()))

	a, b := h.target("a"), h.target("b")
	_, oc := h.render(a, segment.Plain("Open"))
	require.Equal(t, OutcomeDispatched, oc)
	_, oc = h.render(b, segment.Plain("42"))
	require.Equal(t, OutcomeResolved, oc)
	waitStarted(t, backend, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	assert.ErrorIs(t, h.o.Flush(ctx), context.DeadlineExceeded)
	cancel()

	backend.Release("Open")
	ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.o.Flush(ctx))
	// Flush 返回时译文已经在目标上下文中应用
	assert.Equal(t, []string{"译:Open"}, a.Applied())
	assert.Empty(t, b.Applied())
}

func TestFlushCoversPrefetch(t *testing.T) {
	cache := translation.NewMemoryCache()
	h := newHarness(t, translation.NewTranslator(test.NewFuncProvider(prefixer), translation.WithCache(cache)), Config{})

	out := h.o.ResolveSync(h.target("layout"), segment.Plain("Hello"))
	assert.Equal(t, "Hello", out.String())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.o.Flush(ctx))
	v, ok := cache.Get(translation.Key{Source: "en", Target: "zh", Text: "Hello"})
	assert.True(t, ok)
	assert.Equal(t, "译:Hello", v)
}

func TestEventLoop(t *testing.T) {
	loop := NewEventLoop(4, nil)
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		require.True(t, loop.Post(func() { order = append(order, i) }))
	}
	require.True(t, loop.Sync(func() { panic("recovered") }))
	require.True(t, loop.Sync(func() {}))
	assert.Equal(t, []int{0, 1, 2}, order)

	loop.Close()
	assert.False(t, loop.Post(func() {}))
}

func TestSideTableOwnership(t *testing.T) {
	tbl := newSideTable()
	tbl.retarget("x", 1)
	tbl.mark("x", "A", 1)
	tbl.retarget("x", 2)
	tbl.mark("x", "B", 2)

	tbl.clearMarker("x", 1)
	text, busy := tbl.inProgress("x")
	assert.True(t, busy, "旧请求不能清除新请求的标记")
	assert.Equal(t, "B", text)

	tbl.clearMarker("x", 2)
	_, busy = tbl.inProgress("x")
	assert.False(t, busy)
	assert.True(t, tbl.isCurrent("x", 2))
	assert.False(t, tbl.isCurrent("x", 1))
}
