package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jesspatton/testexplorer/adapter"
	"github.com/jesspatton/testexplorer/collection"
	"github.com/jesspatton/testexplorer/config"
	"github.com/jesspatton/testexplorer/state"
	"github.com/jesspatton/testexplorer/tree"
)

type testLoop struct {
	ch   chan func()
	stop chan struct{}
}

func newTestLoop(t *testing.T) *testLoop {
	l := &testLoop{ch: make(chan func(), 1024), stop: make(chan struct{})}
	go func() {
		for {
			select {
			case fn := <-l.ch:
				fn()
			case <-l.stop:
				return
			}
		}
	}()
	t.Cleanup(func() { close(l.stop) })
	return l
}

func (l *testLoop) Post(fn func()) { l.ch <- fn }

func (l *testLoop) Do(fn func()) {
	done := make(chan struct{})
	l.ch <- func() {
		fn()
		close(done)
	}
	<-done
}

type host struct {
	s *Scheduler
}

func (h *host) ScheduleReload(c *collection.Collection, autorun bool) { h.s.ScheduleReload(c, autorun) }
func (h *host) Run(c *collection.Collection, nodes []*tree.Node) { h.s.ScheduleRun(c, nodes) }
func (h *host) NodesChanged(bool) {}
func (h *host) TreeReplaced() {}
func (h *host) LocationsChanged(*collection.Collection) {}

type fixture struct {
	loop *testLoop
	s    *Scheduler
	fake *adapter.Fake
	c    *collection.Collection

	mu     sync.Mutex
	errors []error
}

func testTree() *adapter.NodeInfo {
	return adapter.Suite("root", "Root",
		adapter.Suite("S", "Suite",
			adapter.Test("T1", "one"),
			adapter.Test("T2", "two"),
		),
		adapter.Test("T3", "three"),
	)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{loop: newTestLoop(t)}
	f.s = New(f.loop, Hooks{
		OnError: func(_ *collection.Collection, _ Kind, err error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.errors = append(f.errors, err)
		},
	})
	f.fake = adapter.NewFake("fake", testTree())
	f.c = collection.New("fake", f.fake, config.Default().For("fake"), &host{s: f.s})
	f.fake.Subscribe(func(ev adapter.Event) {
		f.loop.Post(func() { f.c.HandleEvent(ev) })
	})

	f.loop.Do(func() { f.s.ScheduleReload(f.c, false) })
	f.waitIdle(t)
	return f
}

func (f *fixture) waitIdle(t *testing.T) {
	t.Helper()
	var idle <-chan struct{}
	f.loop.Do(func() { idle = f.s.WhenIdle() })
	select {
	case <-idle:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not become idle")
	}
}

func (f *fixture) node(t *testing.T, id string) *tree.Node {
	t.Helper()
	var n *tree.Node
	var ok bool
	f.loop.Do(func() { n, ok = f.c.Node(id) })
	require.True(t, ok, "node %q", id)
	return n
}

func (f *fixture) current(t *testing.T, id string) state.Current {
	t.Helper()
	n := f.node(t, id)
	var c state.Current
	f.loop.Do(func() { c = n.State().Current })
	return c
}

func (f *fixture) run(t *testing.T, ids ...string) {
	t.Helper()
	var nodes []*tree.Node
	for _, id := range ids {
		nodes = append(nodes, f.node(t, id))
	}
	f.loop.Do(func() { f.s.ScheduleRun(f.c, nodes) })
}

// blockingRun reports RunStarted and then waits for release or
// cancellation.
func blockingRun(release <-chan struct{}) adapter.RunFunc {
	return func(ctx context.Context, f *adapter.Fake, tests []string) error {
		f.Emit(adapter.RunStarted{Tests: tests})
		defer f.Emit(adapter.RunFinished{})
		select {
		case <-release:
			for _, id := range tests {
				f.Emit(adapter.TestEvent{ID: id, State: adapter.TestPassed})
			}
			return nil
		case <-ctx.Done():
			return adapter.ErrCanceled
		}
	}
}

func TestReload(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, 1, f.fake.Loads())
	assert.Equal(t, state.Pending, f.current(t, "T1"))
}

func TestRunsAreSerialized(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	f.fake.OnRun(blockingRun(release))

	f.run(t, "T1")
	f.run(t, "T3")

	require.Eventually(t, func() bool { return len(f.fake.Runs()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, f.fake.Runs(), 1, "second run must wait for the first")

	var st Status
	f.loop.Do(func() { st = f.s.Status() })
	assert.Equal(t, Status{Running: true, Queued: 1, Collection: "fake"}, st)

	release <- struct{}{}
	require.Eventually(t, func() bool { return len(f.fake.Runs()) == 2 }, time.Second, 5*time.Millisecond)
	close(release)
	f.waitIdle(t)

	assert.Equal(t, [][]string{{"T1"}, {"T3"}}, f.fake.Runs())
	assert.Equal(t, state.Passed, f.current(t, "T1"))
	assert.Equal(t, state.Passed, f.current(t, "T3"))
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	f.fake.OnRun(blockingRun(make(chan struct{})))

	f.run(t, "S")
	require.Eventually(t, func() bool { return len(f.fake.Runs()) == 1 }, time.Second, 5*time.Millisecond)
	f.run(t, "T3")
	f.run(t, "root")
	assert.Equal(t, state.Scheduled, f.current(t, "T3"))

	var done <-chan struct{}
	f.loop.Do(func() { done = f.s.Cancel() })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight run did not finish")
	}
	f.waitIdle(t)

	var st Status
	f.loop.Do(func() { st = f.s.Status() })
	assert.Zero(t, st.Queued)
	assert.Equal(t, 1, f.fake.Cancels())
	assert.Len(t, f.fake.Runs(), 1, "queued runs are dropped")
	for _, id := range []string{"T1", "T2", "T3"} {
		assert.Equal(t, state.Pending, f.current(t, id), id)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Empty(t, f.errors, "cancellation is not an error")
}

func TestCancelWhenIdle(t *testing.T) {
	f := newFixture(t)
	var done <-chan struct{}
	f.loop.Do(func() { done = f.s.Cancel() })
	select {
	case <-done:
	default:
		t.Fatal("cancel with nothing running must not block")
	}
	assert.Zero(t, f.fake.Cancels())
}

func TestRunErrorContinues(t *testing.T) {
	f := newFixture(t)
	first := true
	f.fake.OnRun(func(ctx context.Context, fake *adapter.Fake, tests []string) error {
		if first {
			first = false
			fake.Emit(adapter.RunStarted{Tests: tests})
			fake.Emit(adapter.TestEvent{ID: "T1", State: adapter.TestRunning})
			return errors.New("worker crashed")
		}
		return fake.DefaultRun(ctx, tests)
	})

	f.run(t, "S")
	f.run(t, "T3")
	f.waitIdle(t)

	assert.Len(t, f.fake.Runs(), 2)
	assert.Equal(t, state.Pending, f.current(t, "T1"))
	assert.Equal(t, state.Pending, f.current(t, "T2"))
	assert.Equal(t, state.Passed, f.current(t, "T3"))

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.errors, 1)
	assert.EqualError(t, f.errors[0], "worker crashed")
}

func TestAutorunAfterReload(t *testing.T) {
	f := newFixture(t)

	s := f.node(t, "S")
	f.loop.Do(func() { f.c.SetAutorun(s) })

	f.loop.Do(func() { f.s.ScheduleReload(f.c, false) })
	f.waitIdle(t)
	assert.Empty(t, f.fake.Runs())

	f.loop.Do(func() { f.s.ScheduleReload(f.c, true) })
	f.waitIdle(t)
	assert.Equal(t, [][]string{{"S"}}, f.fake.Runs())
	assert.Equal(t, state.Passed, f.current(t, "T2"))
}

func TestReloadRequestedByAdapter(t *testing.T) {
	f := newFixture(t)
	t3 := f.node(t, "T3")
	f.loop.Do(func() { f.c.SetAutorun(t3) })

	f.fake.Emit(adapter.ReloadRequested{})
	require.Eventually(t, func() bool { return len(f.fake.Runs()) == 1 }, time.Second, 5*time.Millisecond)
	f.waitIdle(t)
	assert.Equal(t, 2, f.fake.Loads())
	assert.Equal(t, [][]string{{"T3"}}, f.fake.Runs())
}

func TestStaleNodesAreResolved(t *testing.T) {
	f := newFixture(t)
	old := f.node(t, "T2")

	release := make(chan struct{})
	f.fake.OnRun(blockingRun(release))
	f.run(t, "T1")
	require.Eventually(t, func() bool { return len(f.fake.Runs()) == 1 }, time.Second, 5*time.Millisecond)

	f.loop.Do(func() {
		f.s.ScheduleReload(f.c, false)
		f.s.ScheduleRun(f.c, []*tree.Node{old})
	})
	close(release)
	f.waitIdle(t)

	assert.Equal(t, [][]string{{"T1"}, {"T2"}}, f.fake.Runs())
	assert.NotSame(t, old, f.node(t, "T2"))
	assert.Equal(t, state.Passed, f.current(t, "T2"))
}

func TestDebug(t *testing.T) {
	f := newFixture(t)
	nodes := []*tree.Node{f.node(t, "T1"), f.node(t, "S")}
	f.loop.Do(func() { f.s.ScheduleDebug(f.c, nodes) })
	f.waitIdle(t)

	assert.Empty(t, f.fake.Runs())
	assert.Equal(t, [][]string{{"T1", "S"}}, f.fake.Debugs())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "reload", KindReload.String())
	assert.Equal(t, "run", KindRun.String())
	assert.Equal(t, "debug", KindDebug.String())
}
