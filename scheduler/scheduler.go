// Package scheduler serializes reloads and test runs across all collections.
//
// At most one item runs at a time. The adapter call itself happens on its own
// goroutine; its completion is posted back to the executor, so every method
// of the Scheduler must be called from the executor.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jesspatton/testexplorer/adapter"
	"github.com/jesspatton/testexplorer/collection"
	"github.com/jesspatton/testexplorer/logging"
	"github.com/jesspatton/testexplorer/tree"
)

// Executor runs functions on the engine's single goroutine.
type Executor interface {
	Post(fn func())
}

// Kind is the type of a work item.
type Kind int

const (
	KindReload Kind = iota
	KindRun
	KindDebug
)

func (k Kind) String() string {
	switch k {
	case KindReload:
		return "reload"
	case KindRun:
		return "run"
	case KindDebug:
		return "debug"
	}
	return "unknown"
}

// Hooks are optional callbacks, invoked on the executor.
type Hooks struct {
	// OnChange is called whenever the in-flight item changes.
	OnChange func()
	// OnError receives load and run failures.
	OnError func(c *collection.Collection, kind Kind, err error)
}

type item struct {
	id      string
	kind    Kind
	c       *collection.Collection
	autorun bool
	nodes   []*tree.Node
	// scheduled are the tests marked when the item was queued.
	scheduled []*tree.Node
}

// Status describes what the scheduler is doing.
type Status struct {
	Loading bool
	Running bool
	Queued  int
	// Collection is the id of the collection of the in-flight item.
	Collection string
}

type Scheduler struct {
	exec  Executor
	hooks Hooks

	queue   []*item
	current *item
	cancel  context.CancelFunc
	done    chan struct{}
	idle    []chan struct{}
}

func New(exec Executor, hooks Hooks) *Scheduler {
	return &Scheduler{exec: exec, hooks: hooks}
}

// ScheduleReload queues a reload of c. With autorunAfterReload set, the
// collection's autorun target is run once the reload has finished.
func (s *Scheduler) ScheduleReload(c *collection.Collection, autorunAfterReload bool) {
	s.enqueue(&item{kind: KindReload, c: c, autorun: autorunAfterReload})
}

// ScheduleRun queues a run of nodes. Their tests are marked scheduled right
// away.
func (s *Scheduler) ScheduleRun(c *collection.Collection, nodes []*tree.Node) {
	s.scheduleRun(KindRun, c, nodes)
}

// ScheduleDebug queues a debug session of nodes.
func (s *Scheduler) ScheduleDebug(c *collection.Collection, nodes []*tree.Node) {
	s.scheduleRun(KindDebug, c, nodes)
}

func (s *Scheduler) scheduleRun(kind Kind, c *collection.Collection, nodes []*tree.Node) {
	if len(nodes) == 0 {
		return
	}
	it := &item{kind: kind, c: c, nodes: nodes}
	it.scheduled = c.Schedule(nodes)
	s.enqueue(it)
}

func (s *Scheduler) enqueue(it *item) {
	it.id = uuid.NewString()
	logging.Debug("Scheduler", "Queued %s %s of %s", it.kind, it.id, it.c.ID())
	s.queue = append(s.queue, it)
	s.next()
}

// Cancel drops every queued item and asks the adapter of an in-flight run to
// stop. The returned channel is closed once the in-flight item has finished;
// wait on it outside the executor.
func (s *Scheduler) Cancel() <-chan struct{} {
	for _, it := range s.queue {
		if it.kind != KindReload {
			it.c.Unschedule(it.scheduled)
		}
	}
	if len(s.queue) > 0 {
		logging.Info("Scheduler", "Dropped %d queued item(s)", len(s.queue))
	}
	s.queue = nil

	if s.current == nil {
		s.notifyIdle()
		return closed()
	}
	if s.current.kind != KindReload {
		logging.Info("Scheduler", "Canceling %s %s of %s", s.current.kind, s.current.id, s.current.c.ID())
		s.current.c.Adapter().Cancel()
		s.cancel()
	}
	return s.done
}

// Forget drops the queued items of a collection that is going away and
// cancels its in-flight item.
func (s *Scheduler) Forget(c *collection.Collection) {
	kept := s.queue[:0]
	for _, it := range s.queue {
		if it.c != c {
			kept = append(kept, it)
		}
	}
	for i := len(kept); i < len(s.queue); i++ {
		s.queue[i] = nil
	}
	s.queue = kept

	if s.current != nil && s.current.c == c {
		c.Adapter().Cancel()
		s.cancel()
	}
}

// Status reports the in-flight and queued work.
func (s *Scheduler) Status() Status {
	st := Status{Queued: len(s.queue)}
	if s.current != nil {
		st.Loading = s.current.kind == KindReload
		st.Running = !st.Loading
		st.Collection = s.current.c.ID()
	}
	return st
}

// Idle reports whether nothing is running or queued.
func (s *Scheduler) Idle() bool {
	return s.current == nil && len(s.queue) == 0
}

// WhenIdle returns a channel that is closed once nothing is running or
// queued.
func (s *Scheduler) WhenIdle() <-chan struct{} {
	if s.Idle() {
		return closed()
	}
	ch := make(chan struct{})
	s.idle = append(s.idle, ch)
	return ch
}

func (s *Scheduler) next() {
	if s.current != nil {
		return
	}
	if len(s.queue) == 0 {
		s.notifyIdle()
		return
	}

	it := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]

	var ids []string
	if it.kind != KindReload {
		it.nodes = it.c.Resolve(it.nodes)
		ids = adapterIDs(it.nodes)
		if len(ids) == 0 {
			logging.Debug("Scheduler", "Skipping %s %s: nothing left to run", it.kind, it.id)
			it.c.Unschedule(it.scheduled)
			s.next()
			return
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.current = it
	s.cancel = cancel
	s.done = make(chan struct{})
	s.changed()

	logging.Debug("Scheduler", "Starting %s %s of %s", it.kind, it.id, it.c.ID())
	a := it.c.Adapter()
	go func() {
		err := execute(ctx, a, it.kind, ids)
		s.exec.Post(func() { s.finish(it, err) })
	}()
}

func execute(ctx context.Context, a adapter.Adapter, kind Kind, ids []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter %s panicked: %v", a.Name(), r)
		}
	}()

	switch kind {
	case KindReload:
		return a.Load(ctx)
	case KindDebug:
		return a.Debug(ctx, ids)
	default:
		return a.Run(ctx, ids)
	}
}

func (s *Scheduler) finish(it *item, err error) {
	if s.current != it {
		return
	}
	s.cancel()

	canceled := errors.Is(err, adapter.ErrCanceled) || errors.Is(err, context.Canceled)
	switch {
	case err != nil && !canceled:
		logging.Error("Scheduler", err, "%s %s of %s failed", it.kind, it.id, it.c.ID())
		if s.hooks.OnError != nil {
			s.hooks.OnError(it.c, it.kind, err)
		}
		if it.kind != KindReload {
			it.c.RevertInFlight()
		}
	case canceled:
		logging.Info("Scheduler", "%s %s of %s canceled", it.kind, it.id, it.c.ID())
		it.c.RevertInFlight()
	case it.kind != KindReload:
		it.c.RevertTests(it.nodes)
	}

	close(s.done)
	s.current = nil
	s.cancel = nil
	s.changed()

	if it.kind == KindReload && it.autorun && err == nil {
		if target := it.c.Autorun(); target != nil {
			s.ScheduleRun(it.c, []*tree.Node{target})
		}
	}
	s.next()
}

func (s *Scheduler) changed() {
	if s.hooks.OnChange != nil {
		s.hooks.OnChange()
	}
}

func (s *Scheduler) notifyIdle() {
	if !s.Idle() {
		return
	}
	for _, ch := range s.idle {
		close(ch)
	}
	s.idle = nil
}

func adapterIDs(nodes []*tree.Node) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, n := range nodes {
		for _, id := range n.AdapterIDs() {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

func closed() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
