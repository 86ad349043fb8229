// Package tree is the runtime model of one collection's suites and tests.
//
// A Node wraps the adapter's NodeInfo and carries the live state, the
// accumulated log and the dirty flags the debouncer reads. Nodes own their
// children; the parent pointer is only used to walk upwards.
package tree

import (
	"path/filepath"

	"github.com/jesspatton/testexplorer/adapter"
	"github.com/jesspatton/testexplorer/state"
)

// Kind discriminates the node variants.
type Kind int

const (
	KindSuite Kind = iota
	KindTest
	// KindError is the placeholder shown when a load failed.
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindSuite:
		return "suite"
	case KindTest:
		return "test"
	case KindError:
		return "error"
	}
	return "unknown"
}

// Update carries the optional fields of a run event.
type Update struct {
	Message     string
	Decorations []adapter.Decoration
	Description *string
	Tooltip     *string
	File        *string
	Line        *int
}

type Node struct {
	kind     Kind
	info     *adapter.NodeInfo
	parent   *Node
	children []*Node

	uniqueID    string
	state       state.NodeState
	log         string
	decorations []adapter.Decoration

	recalcNeeded bool
	sendNeeded   bool

	file        string
	line        *int
	description string
	tooltip     string

	duplicate bool
	members   []string
}

// NewError creates the placeholder for a failed load.
func NewError(message string) *Node {
	return &Node{
		kind:  KindError,
		info:  &adapter.NodeInfo{ID: "error", Label: "Error while loading tests"},
		state: state.Default(false, true),
		log:   message,
	}
}

func (n *Node) Kind() Kind { return n.kind }
func (n *Node) Info() *adapter.NodeInfo { return n.info }
func (n *Node) Parent() *Node { return n.parent }
func (n *Node) Children() []*Node { return n.children }
func (n *Node) ID() string { return n.info.ID }
func (n *Node) Label() string { return n.info.Label }
func (n *Node) UniqueID() string { return n.uniqueID }
func (n *Node) State() state.NodeState { return n.state }
func (n *Node) Log() string { return n.log }
func (n *Node) IsDuplicate() bool { return n.duplicate }
func (n *Node) IsMerged() bool { return n.members != nil }
func (n *Node) Description() string { return n.description }
func (n *Node) Tooltip() string { return n.tooltip }
func (n *Node) SendNeeded() bool { return n.sendNeeded }
func (n *Node) RecalcNeeded() bool { return n.recalcNeeded }
func (n *Node) SetUniqueID(id string) { n.uniqueID = id }
func (n *Node) IsSuite() bool { return n.kind == KindSuite }
func (n *Node) IsTest() bool { return n.kind == KindTest }
func (n *Node) Decorations() []adapter.Decoration {
	return n.decorations
}

// File is the normalized file the node is located in, or "".
func (n *Node) File() string { return n.file }

// Line reports the node's line when it has a file location.
func (n *Node) Line() (int, bool) {
	if n.file == "" || n.line == nil {
		return 0, false
	}
	return *n.line, true
}

// Located reports whether the node has both a file and a line.
func (n *Node) Located() bool {
	_, ok := n.Line()
	return ok
}

// AdapterIDs are the ids to pass to the adapter to run this node. A merged
// suite expands to the ids of all its members.
func (n *Node) AdapterIDs() []string {
	switch {
	case n.kind == KindError:
		return nil
	case n.members != nil:
		return append([]string(nil), n.members...)
	default:
		return []string{n.info.ID}
	}
}

// Root returns the topmost ancestor.
func (n *Node) Root() *Node {
	for n.parent != nil {
		n = n.parent
	}
	return n
}

// IsAncestorOf reports whether n is other or one of its ancestors.
func (n *Node) IsAncestorOf(other *Node) bool {
	for p := other; p != nil; p = p.parent {
		if p == n {
			return true
		}
	}
	return false
}

// Walk visits n and its descendants depth first. Returning false from fn
// skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.children {
		child.Walk(fn)
	}
}

// Tests returns every test in the subtree, n included.
func (n *Node) Tests() []*Node {
	var out []*Node
	n.Walk(func(node *Node) bool {
		if node.kind == KindTest {
			out = append(out, node)
		}
		return true
	})
	return out
}

func (n *Node) markAncestorsForRecalc() {
	for p := n.parent; p != nil; p = p.parent {
		p.recalcNeeded = true
	}
}

// RetireState demotes settled results in the subtree back to pending while
// keeping them as the previous state.
func (n *Node) RetireState() {
	switch n.kind {
	case KindTest:
		switch n.state.Current {
		case state.Passed, state.Failed, state.Skipped, state.Errored:
			if p, ok := n.state.Current.AsPrevious(); ok {
				n.state.Previous = p
			}
			n.state.Current = state.Pending
			if n.info.Errored {
				n.state.Current = state.Errored
			}
			n.sendNeeded = true
			n.markAncestorsForRecalc()
		}
	case KindSuite:
		for _, child := range n.children {
			child.RetireState()
		}
		n.recalcNeeded = true
		n.markAncestorsForRecalc()
	}
}

// ResetState clears results, history, log and decorations in the subtree.
// Permanently skipped, duplicate and in-flight tests keep their state.
func (n *Node) ResetState() {
	switch n.kind {
	case KindTest:
		switch n.state.Current {
		case state.AlwaysSkipped, state.Duplicate, state.Scheduled, state.Running:
		default:
			n.state.Current = state.Pending
			n.state.Previous = state.PrevPending
		}
		n.log = ""
		n.decorations = nil
		n.sendNeeded = true
		n.markAncestorsForRecalc()
	case KindSuite:
		n.log = ""
		n.decorations = nil
		for _, child := range n.children {
			child.ResetState()
		}
		n.recalcNeeded = true
		n.markAncestorsForRecalc()
	}
}

// SetCurrentState applies a run event to a test.
func (n *Node) SetCurrentState(next state.Current, u Update) {
	n.state.Current = next
	if p, ok := next.AsPrevious(); ok {
		n.state.Previous = p
	}

	if next == state.Scheduled {
		n.log = ""
		n.decorations = nil
	}
	if u.Message != "" {
		n.log += u.Message + "\n"
	}
	if len(u.Decorations) > 0 {
		n.decorations = append(n.decorations, u.Decorations...)
	}
	n.SetDetails(u)
}

// SetDetails applies the description, tooltip and location of an event
// without touching the state.
func (n *Node) SetDetails(u Update) {
	if u.Description != nil {
		n.description = *u.Description
	}
	if u.Tooltip != nil {
		n.tooltip = *u.Tooltip
	}
	if u.File != nil {
		n.file = normalizeFile(*u.File)
	}
	if u.Line != nil {
		line := *u.Line
		n.line = &line
	}
	n.sendNeeded = true
	n.markAncestorsForRecalc()
}

// RecalcState recomputes suite states bottom-up. Tests are left untouched.
func (n *Node) RecalcState() {
	if n.kind != KindSuite {
		n.recalcNeeded = false
		return
	}

	states := make([]state.NodeState, 0, len(n.children))
	for _, child := range n.children {
		child.RecalcState()
		states = append(states, child.state)
	}

	next := state.Parent(states)
	if len(n.children) == 0 {
		next.Autorun = n.state.Autorun
	}
	if n.duplicate {
		next.Current = state.Duplicate
		next.Previous = state.PrevDuplicate
	}

	if next != n.state {
		n.state = next
		n.sendNeeded = true
		if n.parent != nil {
			n.parent.recalcNeeded = true
		}
	}
	n.recalcNeeded = false
}

// SetAutorun sets the autorun flag on the whole subtree.
func (n *Node) SetAutorun(autorun bool) {
	n.Walk(func(node *Node) bool {
		node.state.Autorun = autorun
		if node.kind == KindSuite {
			node.recalcNeeded = true
		}
		return true
	})
	n.sendNeeded = true
	n.markAncestorsForRecalc()
}

// MarkDuplicate forces the node into the duplicate state and replaces its log
// with msg.
func (n *Node) MarkDuplicate(msg string) {
	n.duplicate = true
	n.state.Current = state.Duplicate
	n.state.Previous = state.PrevDuplicate
	n.log = msg + "\n"
	n.sendNeeded = true
	n.markAncestorsForRecalc()
}

// ClearSendNeeded clears the send flag in the whole subtree.
func (n *Node) ClearSendNeeded() {
	n.Walk(func(node *Node) bool {
		node.sendNeeded = false
		return true
	})
}

// Changed collects the topmost nodes under n that need to be sent, clearing
// the flags of every node in the collected subtrees.
func (n *Node) Changed() []*Node {
	var out []*Node
	n.Walk(func(node *Node) bool {
		if node.sendNeeded {
			out = append(out, node)
			node.ClearSendNeeded()
			return false
		}
		return true
	})
	return out
}

// Files returns the distinct files located in the subtree.
func (n *Node) Files() []string {
	seen := make(map[string]struct{})
	var out []string
	n.Walk(func(node *Node) bool {
		if node.file != "" {
			if _, ok := seen[node.file]; !ok {
				seen[node.file] = struct{}{}
				out = append(out, node.file)
			}
		}
		return true
	})
	return out
}

// AddChild synthesizes a node for info below n. It is used for suites and
// tests disclosed while a run is in progress.
func (n *Node) AddChild(info *adapter.NodeInfo) *Node {
	child := build(info, n, nil)
	n.children = append(n.children, child)
	n.recalcNeeded = true
	n.sendNeeded = true
	n.markAncestorsForRecalc()
	return child
}

func normalizeFile(file string) string {
	if file == "" {
		return ""
	}
	return filepath.Clean(file)
}
