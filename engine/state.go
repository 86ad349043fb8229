package engine

import (
	"errors"
	"path/filepath"

	"github.com/jesspatton/testexplorer/adapter"
	"github.com/jesspatton/testexplorer/collection"
	"github.com/jesspatton/testexplorer/state"
	"github.com/jesspatton/testexplorer/tree"
)

// ErrStopped is returned by blocking calls once the engine loop has exited.
var ErrStopped = errors.New("engine stopped")

// Status summarizes what the engine is doing.
type Status struct {
	Loading bool
	Running bool
	// Queued is the number of reloads and runs waiting for their turn.
	Queued int
	// Active is the collection of the in-flight item.
	Active      string
	Collections int
	// Tests counts the tests of every collection by current state.
	Tests map[state.Current]int
}

// Status returns the current status.
func (e *Engine) Status() Status {
	var st Status
	e.loop.Do(func() {
		sched := e.scheduler.Status()
		st = Status{
			Loading:     sched.Loading,
			Running:     sched.Running,
			Queued:      sched.Queued,
			Active:      sched.Collection,
			Collections: len(e.entries),
			Tests:       make(map[state.Current]int),
		}
		for _, root := range e.roots() {
			for _, t := range root.Tests() {
				st.Tests[t.State().Current]++
			}
		}
	})
	return st
}

// Children returns the display children of n. For a nil n these are the
// top-level entries: the children of the only non-empty collection, or one
// entry per collection.
func (e *Engine) Children(n *tree.Node) []*tree.Node {
	var out []*tree.Node
	e.loop.Do(func() {
		if n != nil {
			if c := e.owner(n); c != nil {
				out = tree.Sorted(n.Children(), c.Scope().Sort)
			}
			return
		}
		out = e.topLevel()
	})
	return out
}

func (e *Engine) topLevel() []*tree.Node {
	var shown []*collection.Collection
	for _, ent := range e.entries {
		if ent.c.Root() != nil || ent.c.Error() != nil {
			shown = append(shown, ent.c)
		}
	}

	if len(shown) == 1 {
		c := shown[0]
		if c.Root() == nil {
			return []*tree.Node{c.Error()}
		}
		return tree.Sorted(c.Root().Children(), c.Scope().Sort)
	}

	out := make([]*tree.Node, 0, len(shown))
	for _, c := range shown {
		if c.Root() != nil {
			out = append(out, c.Root())
		} else {
			out = append(out, c.Error())
		}
	}
	return out
}

// DisplayItem returns the rendering data of n.
func (e *Engine) DisplayItem(n *tree.Node) tree.DisplayItem {
	var item tree.DisplayItem
	e.loop.Do(func() {
		isRoot := n.Parent() == nil && n.Kind() == tree.KindSuite
		item = n.Display(isRoot)
		if c := e.owner(n); c != nil && isRoot && item.Label == "" {
			item.Label = c.ID()
		}
	})
	return item
}

// Log returns the accumulated output of n.
func (e *Engine) Log(n *tree.Node) string {
	var log string
	e.loop.Do(func() { log = n.Log() })
	return log
}

// CodeLenses returns the code lenses of file across collections.
func (e *Engine) CodeLenses(file string) []collection.CodeLens {
	var out []collection.CodeLens
	e.loop.Do(func() {
		for _, ent := range e.entries {
			out = append(out, ent.c.CodeLenses(file)...)
		}
	})
	return out
}

// Decorations returns the gutter icons and error annotations of file.
func (e *Engine) Decorations(file string) collection.FileDecorations {
	var out collection.FileDecorations
	e.loop.Do(func() {
		for _, ent := range e.entries {
			d := ent.c.Decorations(file)
			out.Gutters = append(out.Gutters, d.Gutters...)
			out.Errors = append(out.Errors, d.Errors...)
		}
	})
	return out
}

// NodesAt returns the nodes located on the nearest line at or above line in
// file, across collections.
func (e *Engine) NodesAt(file string, line int) []*tree.Node {
	file = filepath.Clean(file)
	var out []*tree.Node
	e.loop.Do(func() {
		for _, ent := range e.entries {
			out = append(out, ent.c.NodesAt(file, line)...)
		}
	})
	return out
}

// Files returns every located file, sorted.
func (e *Engine) Files() []string {
	var out []string
	e.loop.Do(func() { out = e.collectionFiles() })
	return out
}

// Autorun returns the autorun targets of all collections.
func (e *Engine) Autorun() []*tree.Node {
	var out []*tree.Node
	e.loop.Do(func() {
		for _, ent := range e.entries {
			if n := ent.c.Autorun(); n != nil {
				out = append(out, n)
			}
		}
	})
	return out
}

// Snapshot is a read-only copy of a node and its descendants.
type Snapshot struct {
	Item     tree.DisplayItem
	Kind     tree.Kind
	State    state.NodeState
	File     string
	Line     int
	Located  bool
	Log      string
	Errors   []adapter.Decoration
	Children []Snapshot
}

// Snapshot copies the display tree starting at the top-level entries.
func (e *Engine) Snapshot() []Snapshot {
	var out []Snapshot
	e.loop.Do(func() {
		for _, n := range e.topLevel() {
			out = append(out, e.snapshot(n))
		}
	})
	return out
}

func (e *Engine) snapshot(n *tree.Node) Snapshot {
	line, located := n.Line()
	s := Snapshot{
		Item:    n.Display(n.Parent() == nil && n.Kind() == tree.KindSuite),
		Kind:    n.Kind(),
		State:   n.State(),
		File:    n.File(),
		Line:    line,
		Located: located,
		Log:     n.Log(),
		Errors:  append([]adapter.Decoration(nil), n.Decorations()...),
	}
	children := n.Children()
	if c := e.owner(n); c != nil {
		children = tree.Sorted(children, c.Scope().Sort)
	}
	for _, child := range children {
		s.Children = append(s.Children, e.snapshot(child))
	}
	return s
}
