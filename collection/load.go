package collection

import (
	"fmt"

	"github.com/jesspatton/testexplorer/adapter"
	"github.com/jesspatton/testexplorer/config"
	"github.com/jesspatton/testexplorer/logging"
	"github.com/jesspatton/testexplorer/tree"
)

func (c *Collection) loadFinished(suite *adapter.NodeInfo, errorMessage string) {
	c.loading = false
	old := c.nodesByID

	switch {
	case suite != nil:
		c.root = tree.Build(suite, old, tree.Options{MergeSuites: c.scope.MergeSuites})
		c.errNode = nil
	case errorMessage != "":
		logging.Warn("Collection", "Loading %s failed: %s", c.id, errorMessage)
		c.root = nil
		c.errNode = tree.NewError(errorMessage)
	default:
		c.root = nil
		c.errNode = nil
	}

	c.reindex()

	if c.root != nil {
		switch c.scope.OnReload {
		case config.PolicyRetire:
			c.root.RetireState()
		case config.PolicyReset:
			c.root.ResetState()
		}
	}

	if c.autorun != nil {
		id := c.autorun.ID()
		c.autorun = nil
		if n, ok := c.nodesByID[id]; ok {
			n.SetAutorun(true)
			c.autorun = n
		}
	}

	c.runningSuites = nil
	c.runNodes = nil
	c.changedInRun = false

	c.computeLocations()
	c.host.LocationsChanged(c)
	c.host.TreeReplaced()
}

// reindex rebuilds the id registry of the whole tree.
func (c *Collection) reindex() {
	c.nodesByID = make(map[string]*tree.Node)
	c.idCounts = make(map[string]int)
	c.duplicateIDs = make(map[string]struct{})
	if c.root != nil {
		c.register(c.root)
	}
}

// register assigns unique ids to the subtree at n and adds it to the
// registry. Every node sharing an id with another node becomes a duplicate
// and the id is removed from the registry.
func (c *Collection) register(n *tree.Node) {
	n.Walk(func(node *tree.Node) bool {
		id := node.ID()
		c.idCounts[id]++
		count := c.idCounts[id]
		node.SetUniqueID(fmt.Sprintf("%s:%s_%d", c.id, id, count))

		if count == 1 {
			c.nodesByID[id] = node
			return true
		}

		msg := fmt.Sprintf("There are multiple nodes with the id %q in %s; none of them can be run until the ids are unique.", id, c.id)
		if first, ok := c.nodesByID[id]; ok {
			first.MarkDuplicate(msg)
			delete(c.nodesByID, id)
		}
		node.MarkDuplicate(msg)
		c.duplicateIDs[id] = struct{}{}
		logging.Warn("Collection", "Duplicate id %q in %s", id, c.id)
		return true
	})
}

func (c *Collection) isDuplicate(id string) bool {
	_, ok := c.duplicateIDs[id]
	return ok
}
