package collection

import (
	"github.com/jesspatton/testexplorer/adapter"
	"github.com/jesspatton/testexplorer/config"
	"github.com/jesspatton/testexplorer/logging"
	"github.com/jesspatton/testexplorer/state"
	"github.com/jesspatton/testexplorer/tree"
)

func (c *Collection) runStarted(ids []string) {
	if c.root == nil {
		return
	}

	switch c.scope.OnStart {
	case config.PolicyRetire:
		c.root.RetireState()
	case config.PolicyReset:
		c.root.ResetState()
	}

	c.runningSuites = nil
	c.runNodes = nil
	c.changedInRun = false

	for _, id := range ids {
		n, ok := c.nodesByID[id]
		if !ok {
			continue
		}
		for _, t := range n.Tests() {
			if t.IsDuplicate() {
				continue
			}
			t.SetCurrentState(state.Scheduled, tree.Update{})
			c.runNodes = append(c.runNodes, t)
		}
	}
	c.host.NodesChanged(false)
}

func (c *Collection) suiteEvent(ev adapter.SuiteEvent) {
	if c.root == nil {
		return
	}
	id := ev.NodeID()
	if c.isDuplicate(id) {
		return
	}

	n, ok := c.nodesByID[id]
	if ok && !n.IsSuite() {
		return
	}

	upd := tree.Update{Description: ev.Description, Tooltip: ev.Tooltip, File: ev.File, Line: ev.Line}

	switch ev.State {
	case adapter.SuiteRunning:
		if !ok {
			if ev.Info == nil || !ev.Info.IsSuite() {
				return
			}
			n = c.synthesize(ev.Info)
		}
		if hasDetails(upd) {
			n.SetDetails(upd)
			c.locationsTouched(upd)
		}
		c.runningSuites = append(c.runningSuites, n)

	case adapter.SuiteCompleted:
		if !ok {
			return
		}
		revertInFlight(n.Tests())
		if hasDetails(upd) {
			n.SetDetails(upd)
			c.locationsTouched(upd)
		}
		c.popSuite(n)
	}

	c.host.NodesChanged(false)
}

func (c *Collection) testEvent(ev adapter.TestEvent) {
	if c.root == nil {
		return
	}
	id := ev.NodeID()
	if c.isDuplicate(id) {
		return
	}

	next, known := testState(ev.State)
	if !known {
		logging.Warn("Collection", "Ignoring test %q with unknown state %q", id, ev.State)
		return
	}

	n, ok := c.nodesByID[id]
	if !ok {
		if ev.Info == nil || ev.Info.IsSuite() {
			return
		}
		n = c.synthesize(ev.Info)
	}
	if !n.IsTest() {
		return
	}

	upd := tree.Update{
		Message:     ev.Message,
		Decorations: ev.Decorations,
		Description: ev.Description,
		Tooltip:     ev.Tooltip,
		File:        ev.File,
		Line:        ev.Line,
	}
	n.SetCurrentState(next, upd)
	c.locationsTouched(upd)

	c.host.NodesChanged(false)
}

func (c *Collection) runFinished() {
	revertInFlight(c.runNodes)
	c.runNodes = nil
	c.runningSuites = nil

	if c.changedInRun {
		c.changedInRun = false
		c.computeLocations()
		c.host.LocationsChanged(c)
	}
	c.host.NodesChanged(false)
}

// synthesize appends a node disclosed during a run below the innermost
// running suite, or the root when no suite is open.
func (c *Collection) synthesize(info *adapter.NodeInfo) *tree.Node {
	parent := c.root
	if len(c.runningSuites) > 0 {
		parent = c.runningSuites[len(c.runningSuites)-1]
	}

	n := parent.AddChild(info)
	c.register(n)
	c.changedInRun = true
	logging.Debug("Collection", "Discovered %s %q below %q in %s", n.Kind(), n.ID(), parent.ID(), c.id)
	return n
}

func (c *Collection) popSuite(n *tree.Node) {
	for i := len(c.runningSuites) - 1; i >= 0; i-- {
		if c.runningSuites[i] == n {
			c.runningSuites = c.runningSuites[:i]
			return
		}
	}
}

func (c *Collection) locationsTouched(u tree.Update) {
	if u.File != nil || u.Line != nil {
		c.changedInRun = true
	}
}

func hasDetails(u tree.Update) bool {
	return u.Description != nil || u.Tooltip != nil || u.File != nil || u.Line != nil
}

func revertInFlight(tests []*tree.Node) {
	for _, t := range tests {
		if t.State().Current.InFlight() {
			t.SetCurrentState(state.Pending, tree.Update{})
		}
	}
}

func testState(s adapter.TestState) (state.Current, bool) {
	switch s {
	case adapter.TestRunning:
		return state.Running, true
	case adapter.TestPassed:
		return state.Passed, true
	case adapter.TestFailed:
		return state.Failed, true
	case adapter.TestSkipped:
		return state.Skipped, true
	case adapter.TestErrored:
		return state.Errored, true
	}
	return "", false
}
