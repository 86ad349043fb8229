// Package collection reconciles the events of one adapter into a tree.
//
// A Collection is not safe for concurrent use. Every method, including
// HandleEvent, must be called from the engine's loop.
package collection

import (
	"github.com/jesspatton/testexplorer/adapter"
	"github.com/jesspatton/testexplorer/config"
	"github.com/jesspatton/testexplorer/logging"
	"github.com/jesspatton/testexplorer/state"
	"github.com/jesspatton/testexplorer/tree"
)

// Host is the part of the engine a collection calls back into.
type Host interface {
	ScheduleReload(c *Collection, autorunAfterReload bool)
	Run(c *Collection, nodes []*tree.Node)
	// NodesChanged asks for the dirty flags to be flushed, now when
	// immediate is set or after the debounce window otherwise.
	NodesChanged(immediate bool)
	TreeReplaced()
	LocationsChanged(c *Collection)
}

type Collection struct {
	id      string
	adapter adapter.Adapter
	scope   config.Scope
	host    Host

	root    *tree.Node
	errNode *tree.Node
	loading bool

	nodesByID    map[string]*tree.Node
	idCounts     map[string]int
	duplicateIDs map[string]struct{}
	located      map[string]map[int][]*tree.Node

	runningSuites []*tree.Node
	runNodes      []*tree.Node
	changedInRun  bool

	autorun *tree.Node
}

// New creates an empty collection for a. The first tree arrives with the
// adapter's first LoadFinished event.
func New(id string, a adapter.Adapter, scope config.Scope, host Host) *Collection {
	return &Collection{
		id:           id,
		adapter:      a,
		scope:        scope,
		host:         host,
		nodesByID:    make(map[string]*tree.Node),
		idCounts:     make(map[string]int),
		duplicateIDs: make(map[string]struct{}),
		located:      make(map[string]map[int][]*tree.Node),
	}
}

func (c *Collection) ID() string { return c.id }
func (c *Collection) Adapter() adapter.Adapter { return c.adapter }
func (c *Collection) Scope() config.Scope { return c.scope }
func (c *Collection) Loading() bool { return c.loading }

// Root is the collection's root suite, nil before the first successful load.
func (c *Collection) Root() *tree.Node { return c.root }

// Error is the placeholder of the last failed load, if any.
func (c *Collection) Error() *tree.Node { return c.errNode }

// Autorun is the current autorun target.
func (c *Collection) Autorun() *tree.Node { return c.autorun }

// SetScope replaces the collection's settings. Location derived data is
// recomputed since code lenses and decorations may have been toggled.
func (c *Collection) SetScope(scope config.Scope) {
	c.scope = scope
	c.host.LocationsChanged(c)
}

// Node returns the node registered under the adapter id. Colliding ids are
// never resolvable.
func (c *Collection) Node(id string) (*tree.Node, bool) {
	n, ok := c.nodesByID[id]
	return n, ok
}

// Owns reports whether n belongs to the current tree of this collection.
func (c *Collection) Owns(n *tree.Node) bool {
	if n == nil {
		return false
	}
	root := n.Root()
	return root == c.root || (c.errNode != nil && root == c.errNode)
}

// HandleEvent applies one adapter event.
func (c *Collection) HandleEvent(ev adapter.Event) {
	switch ev := ev.(type) {
	case adapter.LoadStarted:
		c.loading = true
	case adapter.LoadFinished:
		c.loadFinished(ev.Suite, ev.ErrorMessage)
	case adapter.RunStarted:
		c.runStarted(ev.Tests)
	case adapter.SuiteEvent:
		c.suiteEvent(ev)
	case adapter.TestEvent:
		c.testEvent(ev)
	case adapter.RunFinished:
		c.runFinished()
	case adapter.RetireRequested:
		c.Retire(ev.Tests)
	case adapter.AutorunRequested:
		c.Retire(nil)
	case adapter.ReloadRequested:
		c.host.ScheduleReload(c, true)
	default:
		logging.Warn("Collection", "Ignoring unknown event %T from %s", ev, c.id)
	}
}

// Retire marks the results of the nodes with the given ids as stale, all of
// them when ids is nil, and runs the part of the autorun target they touch.
func (c *Collection) Retire(ids []string) {
	if c.root == nil {
		return
	}

	var retired []*tree.Node
	if ids == nil {
		c.root.RetireState()
		retired = append(retired, c.root)
	} else {
		for _, id := range ids {
			if n, ok := c.nodesByID[id]; ok {
				n.RetireState()
				retired = append(retired, n)
			}
		}
	}
	c.host.NodesChanged(false)

	if targets := c.autorunTargets(retired); len(targets) > 0 {
		logging.Debug("Collection", "Autorun of %d node(s) in %s", len(targets), c.id)
		c.host.Run(c, targets)
	}
}

// autorunTargets intersects the autorun subtree with the retired nodes. A
// retired ancestor of the target runs the target itself; otherwise only the
// retired descendants run.
func (c *Collection) autorunTargets(retired []*tree.Node) []*tree.Node {
	if c.autorun == nil {
		return nil
	}

	var targets []*tree.Node
	for _, n := range retired {
		if n.IsAncestorOf(c.autorun) {
			return []*tree.Node{c.autorun}
		}
		if c.autorun.IsAncestorOf(n) {
			targets = append(targets, n)
		}
	}
	return targets
}

// RetireNode retires n, or the whole tree when n is nil, without triggering
// an autorun.
func (c *Collection) RetireNode(n *tree.Node) {
	if n == nil {
		n = c.root
	}
	if n == nil {
		return
	}
	n.RetireState()
	c.host.NodesChanged(false)
}

// ResetNode resets n, or the whole tree when n is nil.
func (c *Collection) ResetNode(n *tree.Node) {
	if n == nil {
		n = c.root
	}
	if n == nil {
		return
	}
	n.ResetState()
	c.host.NodesChanged(false)
}

// SetAutorun moves the autorun flag to n. A nil n clears it.
func (c *Collection) SetAutorun(n *tree.Node) {
	if c.autorun != nil {
		c.autorun.SetAutorun(false)
		c.autorun = nil
	}
	if n != nil && c.root != nil && c.Owns(n) {
		n.SetAutorun(true)
		c.autorun = n
	}
	c.host.NodesChanged(true)
}

// Schedule marks the tests below nodes as scheduled ahead of their run and
// returns them so the mark can be undone.
func (c *Collection) Schedule(nodes []*tree.Node) []*tree.Node {
	var tests []*tree.Node
	for _, n := range nodes {
		for _, t := range n.Tests() {
			if t.IsDuplicate() {
				continue
			}
			t.SetCurrentState(state.Scheduled, tree.Update{})
			tests = append(tests, t)
		}
	}
	c.host.NodesChanged(false)
	return tests
}

// Unschedule reverts tests that are still scheduled back to pending.
func (c *Collection) Unschedule(tests []*tree.Node) {
	for _, t := range tests {
		if t.State().Current == state.Scheduled {
			t.SetCurrentState(state.Pending, tree.Update{})
		}
	}
	c.host.NodesChanged(false)
}

// RevertInFlight returns every scheduled or running test to pending. It is
// used after a run failed or was canceled.
func (c *Collection) RevertInFlight() {
	if c.root == nil {
		return
	}
	revertInFlight(c.root.Tests())
	c.runNodes = nil
	c.runningSuites = nil
	c.host.NodesChanged(false)
}

// RevertTests returns the scheduled or running tests below nodes to pending.
func (c *Collection) RevertTests(nodes []*tree.Node) {
	for _, n := range nodes {
		revertInFlight(n.Tests())
	}
	c.host.NodesChanged(false)
}

// Resolve maps nodes that may belong to a replaced tree onto the current one
// by adapter id. Nodes that no longer exist are dropped.
func (c *Collection) Resolve(nodes []*tree.Node) []*tree.Node {
	out := make([]*tree.Node, 0, len(nodes))
	for _, n := range nodes {
		if c.Owns(n) {
			out = append(out, n)
			continue
		}
		if current, ok := c.nodesByID[n.ID()]; ok {
			out = append(out, current)
		}
	}
	return out
}
