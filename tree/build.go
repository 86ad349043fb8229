package tree

import (
	"encoding/json"
	"sort"

	"github.com/jesspatton/testexplorer/adapter"
	"github.com/jesspatton/testexplorer/state"
)

// Options control how a tree is built from adapter infos.
type Options struct {
	// MergeSuites collapses sibling suites sharing a label under one merged
	// suite.
	MergeSuites bool
}

// Build creates a tree from root. State, log and decorations are carried
// over from old, keyed by adapter id.
func Build(root *adapter.NodeInfo, old map[string]*Node, opts Options) *Node {
	b := builder{old: old, merge: opts.MergeSuites}
	return b.build(root, nil)
}

func build(info *adapter.NodeInfo, parent *Node, old map[string]*Node) *Node {
	b := builder{old: old}
	return b.build(info, parent)
}

type builder struct {
	old   map[string]*Node
	merge bool
}

func (b *builder) build(info *adapter.NodeInfo, parent *Node) *Node {
	n := &Node{
		info:        info,
		parent:      parent,
		uniqueID:    info.ID,
		file:        normalizeFile(info.File),
		description: info.Description,
		tooltip:     info.Tooltip,
	}
	if info.Line != nil {
		line := *info.Line
		n.line = &line
	}

	var prev *Node
	if b.old != nil {
		prev = b.old[info.ID]
	}

	if info.IsSuite() {
		n.kind = KindSuite
		n.children = b.children(info.Children, n)
		n.state = suiteState(n)
	} else {
		n.kind = KindTest
		n.state = carryState(info, prev)
	}

	if prev != nil && prev.kind == n.kind {
		n.log = prev.log
		n.decorations = append([]adapter.Decoration(nil), prev.decorations...)
	}
	return n
}

func (b *builder) children(infos []*adapter.NodeInfo, parent *Node) []*Node {
	var byLabel map[string][]*adapter.NodeInfo
	if b.merge {
		byLabel = make(map[string][]*adapter.NodeInfo)
		for _, info := range infos {
			if info.IsSuite() {
				byLabel[info.Label] = append(byLabel[info.Label], info)
			}
		}
	}

	out := make([]*Node, 0, len(infos))
	merged := make(map[string]bool)
	for _, info := range infos {
		if group := byLabel[info.Label]; info.IsSuite() && len(group) > 1 {
			if merged[info.Label] {
				continue
			}
			merged[info.Label] = true
			out = append(out, b.mergedSuite(group, parent))
			continue
		}
		out = append(out, b.build(info, parent))
	}
	return out
}

// mergedSuite creates the synthetic parent of same-labeled sibling suites.
// Its id is the JSON array of the sorted member ids.
func (b *builder) mergedSuite(group []*adapter.NodeInfo, parent *Node) *Node {
	ids := make([]string, len(group))
	for i, info := range group {
		ids[i] = info.ID
	}
	sort.Strings(ids)
	id, _ := json.Marshal(ids)

	first := group[0]
	info := &adapter.NodeInfo{
		Type:  adapter.KindSuite,
		ID:    string(id),
		Label: first.Label,
		File:  first.File,
		Line:  first.Line,
	}

	n := &Node{
		kind:     KindSuite,
		info:     info,
		parent:   parent,
		uniqueID: info.ID,
		file:     normalizeFile(info.File),
		members:  ids,
	}
	if info.Line != nil {
		line := *info.Line
		n.line = &line
	}
	for _, member := range group {
		n.children = append(n.children, b.build(member, n))
	}
	n.state = suiteState(n)
	return n
}

func suiteState(n *Node) state.NodeState {
	states := make([]state.NodeState, len(n.children))
	for i, child := range n.children {
		states[i] = child.state
	}
	s := state.Parent(states)
	s.Autorun = false
	return s
}

// carryState derives a test's initial state from its previous incarnation.
// Frozen states are dropped once the new info no longer asks for them and
// in-flight states never survive.
func carryState(info *adapter.NodeInfo, prev *Node) state.NodeState {
	if prev == nil || prev.kind != KindTest {
		return state.Default(info.Skipped, info.Errored)
	}

	s := prev.state
	s.Autorun = false

	switch {
	case s.Current == state.AlwaysSkipped && !info.Skipped, s.Current == state.Duplicate:
		s.Current = state.Pending
		if s.Previous == state.PrevAlwaysSkipped || s.Previous == state.PrevDuplicate {
			s.Previous = state.PrevPending
		}
	case s.Current.InFlight():
		// The run that scheduled it reports against the old tree
		s.Current = state.Pending
	}
	return s
}
