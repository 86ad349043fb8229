// Package engine is the test explorer core. It owns the collections, the
// scheduler and the debouncer and funnels every mutation through one Loop.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/jesspatton/testexplorer/adapter"
	"github.com/jesspatton/testexplorer/collection"
	"github.com/jesspatton/testexplorer/config"
	"github.com/jesspatton/testexplorer/debouncer"
	"github.com/jesspatton/testexplorer/logging"
	"github.com/jesspatton/testexplorer/scheduler"
	"github.com/jesspatton/testexplorer/tree"
)

// Notifier is the presentation layer. It is called from the engine loop and
// must not block on the engine.
type Notifier interface {
	// TreeReplaced means every node reference is stale; re-read from the root.
	TreeReplaced()
	// NodeChanged reports a changed subtree; nil means the whole tree.
	NodeChanged(n *tree.Node)
	CodeLensesChanged()
	DecorationsChanged(file string)
	StatusChanged()
	// Message surfaces an error or notice to the user.
	Message(level logging.LogLevel, text string)
}

// NopNotifier ignores every notification.
type NopNotifier struct{}

func (NopNotifier) TreeReplaced() {}
func (NopNotifier) NodeChanged(*tree.Node) {}
func (NopNotifier) CodeLensesChanged() {}
func (NopNotifier) DecorationsChanged(string) {}
func (NopNotifier) StatusChanged() {}
func (NopNotifier) Message(logging.LogLevel, string) {}

type entry struct {
	c           *collection.Collection
	unsubscribe func()
	// files are the located files last reported for the collection.
	files []string
}

// Engine manages the collections of all registered adapters.
type Engine struct {
	loop      *Loop
	cfg       config.Config
	notifier  Notifier
	scheduler *scheduler.Scheduler
	debouncer *debouncer.Debouncer

	entries []*entry
}

// New creates an engine. Nothing happens until Serve is started.
func New(cfg config.Config, notifier Notifier) *Engine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	e := &Engine{
		loop:     NewLoop(),
		cfg:      cfg,
		notifier: notifier,
	}
	e.scheduler = scheduler.New(e.loop, scheduler.Hooks{
		OnChange: notifier.StatusChanged,
		OnError:  e.reportError,
	})
	e.debouncer = debouncer.New(e.loop, cfg.DebounceDelay(), e.roots, notifier)
	return e
}

// Serve processes engine work until ctx is done.
func (e *Engine) Serve(ctx context.Context) error {
	defer e.debouncer.Stop()
	return e.loop.Run(ctx)
}

// Done is closed when Serve has returned.
func (e *Engine) Done() <-chan struct{} { return e.loop.Done() }

func (e *Engine) reportError(c *collection.Collection, kind scheduler.Kind, err error) {
	verb := "running"
	switch kind {
	case scheduler.KindReload:
		verb = "loading"
	case scheduler.KindDebug:
		verb = "debugging"
	}
	e.notifier.Message(logging.LevelError, fmt.Sprintf("Error while %s tests of %s: %v", verb, c.ID(), err))
}

// Register adds an adapter and schedules its first load. It returns the
// collection id.
func (e *Engine) Register(a adapter.Adapter) string {
	var id string
	e.loop.Do(func() {
		id = e.uniqueID(a.Name())
		c := collection.New(id, a, e.cfg.For(a.Name()), (*host)(e))
		ent := &entry{c: c}
		ent.unsubscribe = a.Subscribe(func(ev adapter.Event) {
			e.loop.Post(func() {
				if e.find(c) != nil {
					c.HandleEvent(ev)
				}
			})
		})
		e.entries = append(e.entries, ent)
		logging.Info("Engine", "Registered adapter %s as %s", a.Name(), id)
		e.scheduler.ScheduleReload(c, false)
	})
	return id
}

// Unregister removes the collection with id.
func (e *Engine) Unregister(id string) {
	e.loop.Do(func() {
		for i, ent := range e.entries {
			if ent.c.ID() != id {
				continue
			}
			ent.unsubscribe()
			e.scheduler.Forget(ent.c)
			e.entries = append(e.entries[:i], e.entries[i+1:]...)
			for _, file := range ent.files {
				e.notifier.DecorationsChanged(file)
			}
			e.notifier.CodeLensesChanged()
			e.debouncer.NotifyStructuralChange()
			logging.Info("Engine", "Unregistered %s", id)
			return
		}
	})
}

// SetConfig applies new settings to every collection.
func (e *Engine) SetConfig(cfg config.Config) {
	e.loop.Do(func() {
		e.cfg = cfg
		for _, ent := range e.entries {
			ent.c.SetScope(cfg.For(ent.c.Adapter().Name()))
		}
		e.debouncer.NotifyStructuralChange()
	})
}

func (e *Engine) uniqueID(name string) string {
	id := name
	for n := 2; e.byID(id) != nil; n++ {
		id = fmt.Sprintf("%s#%d", name, n)
	}
	return id
}

func (e *Engine) byID(id string) *entry {
	for _, ent := range e.entries {
		if ent.c.ID() == id {
			return ent
		}
	}
	return nil
}

func (e *Engine) find(c *collection.Collection) *entry {
	for _, ent := range e.entries {
		if ent.c == c {
			return ent
		}
	}
	return nil
}

// owner returns the collection n belongs to.
func (e *Engine) owner(n *tree.Node) *collection.Collection {
	for _, ent := range e.entries {
		if ent.c.Owns(n) {
			return ent.c
		}
	}
	return nil
}

func (e *Engine) roots() []*tree.Node {
	var out []*tree.Node
	for _, ent := range e.entries {
		if root := ent.c.Root(); root != nil {
			out = append(out, root)
		}
	}
	return out
}

// Reload schedules a reload of the collection owning n, or of every
// collection when n is nil.
func (e *Engine) Reload(n *tree.Node) {
	e.loop.Do(func() {
		if n == nil {
			for _, ent := range e.entries {
				e.scheduler.ScheduleReload(ent.c, false)
			}
			return
		}
		if c := e.owner(n); c != nil {
			e.scheduler.ScheduleReload(c, false)
		}
	})
}

// ReloadCollection schedules a reload of the collection with id.
func (e *Engine) ReloadCollection(id string) {
	e.loop.Do(func() {
		if ent := e.byID(id); ent != nil {
			e.scheduler.ScheduleReload(ent.c, true)
		}
	})
}

// Run schedules a run of nodes, or of every collection when none is given.
func (e *Engine) Run(nodes ...*tree.Node) {
	e.loop.Do(func() { e.schedule(scheduler.KindRun, nodes) })
}

// Debug cancels everything and then schedules a debug session of nodes.
func (e *Engine) Debug(ctx context.Context, nodes ...*tree.Node) error {
	if err := e.Cancel(ctx); err != nil {
		return err
	}
	e.loop.Do(func() { e.schedule(scheduler.KindDebug, nodes) })
	return nil
}

func (e *Engine) schedule(kind scheduler.Kind, nodes []*tree.Node) {
	if len(nodes) == 0 {
		for _, ent := range e.entries {
			if root := ent.c.Root(); root != nil {
				e.scheduleOn(kind, ent.c, []*tree.Node{root})
			}
		}
		return
	}

	// Keep one request per collection, in first-seen order
	var order []*collection.Collection
	groups := make(map[*collection.Collection][]*tree.Node)
	for _, n := range nodes {
		c := e.owner(n)
		if c == nil || n.Kind() == tree.KindError {
			continue
		}
		if _, ok := groups[c]; !ok {
			order = append(order, c)
		}
		groups[c] = append(groups[c], n)
	}
	for _, c := range order {
		e.scheduleOn(kind, c, groups[c])
	}
}

func (e *Engine) scheduleOn(kind scheduler.Kind, c *collection.Collection, nodes []*tree.Node) {
	if kind == scheduler.KindDebug {
		e.scheduler.ScheduleDebug(c, nodes)
		return
	}
	e.scheduler.ScheduleRun(c, nodes)
}

// Cancel drops queued work and waits for the in-flight run to stop.
func (e *Engine) Cancel(ctx context.Context) error {
	var done <-chan struct{}
	if !e.loop.Do(func() { done = e.scheduler.Cancel() }) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.loop.Done():
		return ErrStopped
	}
}

// WaitIdle blocks until nothing is running or queued and pending
// notifications have been flushed.
func (e *Engine) WaitIdle(ctx context.Context) error {
	var idle <-chan struct{}
	if !e.loop.Do(func() { idle = e.scheduler.WhenIdle() }) {
		return ErrStopped
	}
	select {
	case <-idle:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.loop.Done():
		return ErrStopped
	}
	if !e.loop.Do(e.debouncer.Flush) {
		return ErrStopped
	}
	return nil
}

// SetAutorun makes n the autorun target of its collection. A nil n turns
// autorun on for every collection root.
func (e *Engine) SetAutorun(n *tree.Node) {
	e.loop.Do(func() {
		if n == nil {
			for _, ent := range e.entries {
				if root := ent.c.Root(); root != nil {
					ent.c.SetAutorun(root)
				}
			}
			return
		}
		if c := e.owner(n); c != nil && n.Kind() != tree.KindError {
			c.SetAutorun(n)
		}
	})
}

// ClearAutorun clears the autorun target of n's collection, or of every
// collection when n is nil.
func (e *Engine) ClearAutorun(n *tree.Node) {
	e.loop.Do(func() {
		for _, ent := range e.entries {
			if n == nil || ent.c.Owns(n) {
				ent.c.SetAutorun(nil)
			}
		}
	})
}

// Retire marks the results below n as stale; nil retires everything.
func (e *Engine) Retire(n *tree.Node) {
	e.loop.Do(func() {
		for _, ent := range e.entries {
			if n == nil {
				ent.c.RetireNode(nil)
			} else if ent.c.Owns(n) {
				ent.c.RetireNode(n)
			}
		}
	})
}

// Reset clears results and history below n; nil resets everything.
func (e *Engine) Reset(n *tree.Node) {
	e.loop.Do(func() {
		for _, ent := range e.entries {
			if n == nil {
				ent.c.ResetNode(nil)
			} else if ent.c.Owns(n) {
				ent.c.ResetNode(n)
			}
		}
	})
}

// FileChanged retires every node located in path and lets the autorun
// targets pick up the change.
func (e *Engine) FileChanged(path string) {
	path = filepath.Clean(path)
	e.loop.Do(func() {
		for _, ent := range e.entries {
			nodes := ent.c.NodesInFile(path)
			if len(nodes) == 0 {
				continue
			}
			seen := make(map[string]struct{})
			var ids []string
			for _, n := range nodes {
				if _, ok := seen[n.ID()]; !ok {
					seen[n.ID()] = struct{}{}
					ids = append(ids, n.ID())
				}
			}
			logging.Debug("Engine", "%s changed, retiring %d node(s) of %s", path, len(ids), ent.c.ID())
			ent.c.Retire(ids)
		}
	})
}

// RunTestsInFile runs the topmost node of the first collection whose file
// is file, which is normally the suite of that file.
func (e *Engine) RunTestsInFile(file string) bool {
	var found bool
	e.loop.Do(func() {
		for _, ent := range e.entries {
			if n, ok := ent.c.FileNode(file); ok {
				e.scheduler.ScheduleRun(ent.c, []*tree.Node{n})
				found = true
				return
			}
		}
	})
	return found
}

// collectionFiles returns the located files of every collection, sorted.
func (e *Engine) collectionFiles() []string {
	seen := make(map[string]struct{})
	for _, ent := range e.entries {
		for _, file := range ent.c.Files() {
			seen[file] = struct{}{}
		}
	}
	files := make([]string, 0, len(seen))
	for file := range seen {
		files = append(files, file)
	}
	sort.Strings(files)
	return files
}

// host adapts the engine to collection.Host. It only runs on the loop.
type host Engine

func (h *host) ScheduleReload(c *collection.Collection, autorunAfterReload bool) {
	h.scheduler.ScheduleReload(c, autorunAfterReload)
}

func (h *host) Run(c *collection.Collection, nodes []*tree.Node) {
	h.scheduler.ScheduleRun(c, nodes)
}

func (h *host) NodesChanged(immediate bool) {
	h.debouncer.ScheduleNotify(immediate)
}

func (h *host) TreeReplaced() {
	h.debouncer.NotifyStructuralChange()
}

func (h *host) LocationsChanged(c *collection.Collection) {
	e := (*Engine)(h)
	ent := e.find(c)
	if ent == nil {
		return
	}

	files := c.Files()
	changed := make(map[string]struct{})
	for _, file := range ent.files {
		changed[file] = struct{}{}
	}
	for _, file := range files {
		changed[file] = struct{}{}
	}
	ent.files = files

	e.notifier.CodeLensesChanged()
	for _, file := range sortedKeys(changed) {
		e.notifier.DecorationsChanged(file)
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
