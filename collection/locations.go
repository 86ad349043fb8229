package collection

import (
	"path/filepath"
	"sort"

	"github.com/jesspatton/testexplorer/adapter"
	"github.com/jesspatton/testexplorer/state"
	"github.com/jesspatton/testexplorer/tree"
)

// CodeLens is a Run or Debug action shown above a line.
type CodeLens struct {
	Line  int
	Title string
	Debug bool
	Nodes []*tree.Node
}

// Gutter is the state icon shown next to a line.
type Gutter struct {
	Line int
	Icon state.IconType
}

// FileDecorations are the annotations of one file.
type FileDecorations struct {
	Gutters []Gutter
	Errors  []adapter.Decoration
}

func (c *Collection) computeLocations() {
	c.located = make(map[string]map[int][]*tree.Node)
	if c.root == nil {
		return
	}

	c.root.Walk(func(n *tree.Node) bool {
		line, ok := n.Line()
		if !ok {
			return true
		}
		lines, ok := c.located[n.File()]
		if !ok {
			lines = make(map[int][]*tree.Node)
			c.located[n.File()] = lines
		}
		lines[line] = append(lines[line], n)
		return true
	})
}

// Files returns the located files in lexical order.
func (c *Collection) Files() []string {
	files := make([]string, 0, len(c.located))
	for file := range c.located {
		files = append(files, file)
	}
	sort.Strings(files)
	return files
}

// Located returns the nodes located in file, keyed by line.
func (c *Collection) Located(file string) map[int][]*tree.Node {
	return c.located[filepath.Clean(file)]
}

// NodesInFile returns every node located in file, ordered by line.
func (c *Collection) NodesInFile(file string) []*tree.Node {
	lines := c.Located(file)
	var out []*tree.Node
	for _, line := range sortedLines(lines) {
		out = append(out, lines[line]...)
	}
	return out
}

// FileNode returns the topmost node whose file is file, located or not.
func (c *Collection) FileNode(file string) (*tree.Node, bool) {
	if c.root == nil {
		return nil, false
	}
	file = filepath.Clean(file)

	queue := []*tree.Node{c.root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n.File() == file {
			return n, true
		}
		queue = append(queue, n.Children()...)
	}
	return nil, false
}

// NodesAt returns the nodes on the nearest located line at or above line.
func (c *Collection) NodesAt(file string, line int) []*tree.Node {
	lines := c.Located(file)
	best, found := -1, false
	for l := range lines {
		if l <= line && l > best {
			best, found = l, true
		}
	}
	if !found {
		return nil
	}
	return lines[best]
}

// CodeLenses returns a Run and a Debug lens for every located line in file.
func (c *Collection) CodeLenses(file string) []CodeLens {
	if !c.scope.CodeLens {
		return nil
	}
	lines := c.Located(file)
	lenses := make([]CodeLens, 0, 2*len(lines))
	for _, line := range sortedLines(lines) {
		nodes := lines[line]
		lenses = append(lenses,
			CodeLens{Line: line, Title: "Run", Nodes: nodes},
			CodeLens{Line: line, Title: "Debug", Debug: true, Nodes: nodes},
		)
	}
	return lenses
}

// Decorations returns the gutter icons and error annotations for file.
func (c *Collection) Decorations(file string) FileDecorations {
	var out FileDecorations
	lines := c.Located(file)

	for _, line := range sortedLines(lines) {
		for _, n := range lines[line] {
			if !n.IsTest() {
				continue
			}
			if c.scope.GutterDecoration {
				out.Gutters = append(out.Gutters, Gutter{Line: line, Icon: state.Icon(n.State())})
			}
			break
		}
	}

	if c.scope.ErrorDecoration {
		for _, line := range sortedLines(lines) {
			for _, n := range lines[line] {
				out.Errors = append(out.Errors, n.Decorations()...)
			}
		}
	}
	return out
}

func sortedLines(lines map[int][]*tree.Node) []int {
	out := make([]int, 0, len(lines))
	for line := range lines {
		out = append(out, line)
	}
	sort.Ints(out)
	return out
}
