package debouncer

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jesspatton/testexplorer/adapter"
	"github.com/jesspatton/testexplorer/state"
	"github.com/jesspatton/testexplorer/tree"
)

type testLoop struct {
	ch   chan func()
	stop chan struct{}
}

func newTestLoop(t *testing.T) *testLoop {
	l := &testLoop{ch: make(chan func(), 256), stop: make(chan struct{})}
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

type recorder struct {
	mu          sync.Mutex
	replaced    int
	changed     []*tree.Node
	decorations []string
}

func (r *recorder) TreeReplaced() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaced++
}

func (r *recorder) NodeChanged(n *tree.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, n)
}

func (r *recorder) DecorationsChanged(file string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decorations = append(r.decorations, file)
}

func (r *recorder) snapshot() (int, []*tree.Node, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replaced, append([]*tree.Node(nil), r.changed...), append([]string(nil), r.decorations...)
}

// siblingTree has a suite with ten tests and a failed test next to it, so
// passing the ten tests never changes the root.
func siblingTree() (*tree.Node, []*tree.Node) {
	var tests []*adapter.NodeInfo
	for i := 0; i < 10; i++ {
		tests = append(tests, adapter.Test(fmt.Sprintf("t%d", i), fmt.Sprintf("test %d", i)).At("s_test.go", i+1))
	}
	info := adapter.Suite("root", "Root",
		adapter.Suite("S", "Suite", tests...),
		adapter.Test("X", "failing"),
	)
	root := tree.Build(info, nil, tree.Options{})
	root.Children()[1].SetCurrentState(state.Failed, tree.Update{})
	root.RecalcState()
	root.ClearSendNeeded()
	return root, root.Children()[0].Children()
}

func TestDebounceCoalescing(t *testing.T) {
	loop := newTestLoop(t)
	root, tests := siblingTree()
	rec := &recorder{}
	d := New(loop, 30*time.Millisecond, func() []*tree.Node { return []*tree.Node{root} }, rec)

	loop.Do(func() {
		for _, n := range tests {
			n.SetCurrentState(state.Passed, tree.Update{})
			d.ScheduleNotify(false)
		}
		assert.True(t, d.Pending())
	})

	require.Eventually(t, func() bool {
		_, changed, _ := rec.snapshot()
		return len(changed) > 0
	}, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	_, changed, decorations := rec.snapshot()
	require.Len(t, changed, 1, "one notification for the common ancestor")
	assert.Equal(t, "S", changed[0].ID())
	assert.Equal(t, []string{"s_test.go"}, decorations)

	var flushes int
	loop.Do(func() { flushes = d.Flushes() })
	assert.Equal(t, 1, flushes)
}

func TestImmediateFlush(t *testing.T) {
	loop := newTestLoop(t)
	root, tests := siblingTree()
	rec := &recorder{}
	d := New(loop, time.Hour, func() []*tree.Node { return []*tree.Node{root} }, rec)

	loop.Do(func() {
		tests[0].SetCurrentState(state.Passed, tree.Update{})
		d.ScheduleNotify(false)
		d.ScheduleNotify(true)
		assert.False(t, d.Pending())
	})

	_, changed, _ := rec.snapshot()
	require.Len(t, changed, 1)
	assert.Equal(t, "S", changed[0].ID())
	assert.Equal(t, state.Passed, changed[0].State().Current)
}

func TestRootChangeCollapses(t *testing.T) {
	loop := newTestLoop(t)
	root, _ := siblingTree()
	rec := &recorder{}
	d := New(loop, time.Hour, func() []*tree.Node { return []*tree.Node{root} }, rec)

	loop.Do(func() {
		root.Children()[1].SetCurrentState(state.Passed, tree.Update{})
		d.ScheduleNotify(true)
	})

	_, changed, _ := rec.snapshot()
	assert.Equal(t, []*tree.Node{nil}, changed)
}

func TestStructuralChange(t *testing.T) {
	loop := newTestLoop(t)
	root, tests := siblingTree()
	rec := &recorder{}
	d := New(loop, 20*time.Millisecond, func() []*tree.Node { return []*tree.Node{root} }, rec)

	loop.Do(func() {
		tests[0].SetCurrentState(state.Passed, tree.Update{})
		d.ScheduleNotify(false)
		d.NotifyStructuralChange()
		assert.False(t, d.Pending())
	})
	time.Sleep(60 * time.Millisecond)

	replaced, changed, _ := rec.snapshot()
	assert.Equal(t, 1, replaced)
	assert.Empty(t, changed, "the pending batch is dropped")
	assert.False(t, tests[0].SendNeeded())
}

func TestFlushWithoutChanges(t *testing.T) {
	loop := newTestLoop(t)
	root, _ := siblingTree()
	rec := &recorder{}
	d := New(loop, 0, func() []*tree.Node { return []*tree.Node{root} }, rec)

	loop.Do(func() { d.Flush() })
	_, changed, decorations := rec.snapshot()
	assert.Empty(t, changed)
	assert.Empty(t, decorations)
	assert.Equal(t, DefaultDelay, d.delay)
}
