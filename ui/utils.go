package ui

import (
	"github.com/jesspatton/testexplorer/state"
	"github.com/jesspatton/testexplorer/tree"
)

// TreeSource is the read side of the explorer the flattener walks.
type TreeSource interface {
	Children(n *tree.Node) []*tree.Node
	DisplayItem(n *tree.Node) tree.DisplayItem
}

// DisplayNode is one visible row of the explorer.
type DisplayNode struct {
	Node        *tree.Node
	Item        tree.DisplayItem
	DisplayName string
	Depth       int
}

// flattenNodes performs a depth-first traversal of the visible tree. Suites
// whose only child is another suite are merged into one row to save
// vertical space, and the children of collapsed rows are skipped.
func flattenNodes(src TreeSource, collapsed map[string]bool) []DisplayNode {
	nodes := []DisplayNode{}
	if src == nil {
		return nodes
	}

	var traverse func(n *tree.Node, depth int)
	traverse = func(n *tree.Node, depth int) {
		item := src.DisplayItem(n)
		name := item.Label
		children := src.Children(n)

		// Compact chains of single-suite suites
		for len(children) == 1 && children[0].IsSuite() && !collapsed[item.ID] {
			n = children[0]
			item = src.DisplayItem(n)
			name += "/" + item.Label
			children = src.Children(n)
		}

		nodes = append(nodes, DisplayNode{
			Node:        n,
			Item:        item,
			DisplayName: name,
			Depth:       depth,
		})

		if collapsed[item.ID] {
			return
		}
		for _, child := range children {
			traverse(child, depth+1)
		}
	}

	for _, n := range src.Children(nil) {
		traverse(n, 0)
	}
	return nodes
}

// iconGlyph maps an icon selector to the glyph shown in the terminal.
func iconGlyph(icon state.IconType) string {
	switch icon {
	case state.IconScheduled:
		return "◷"
	case state.IconRunning:
		return "⏳"
	case state.IconRunningFailed:
		return "⌛"
	case state.IconPassed:
		return "✔"
	case state.IconPassedAutorun:
		return "✔↻"
	case state.IconFailed:
		return "✘"
	case state.IconFailedAutorun:
		return "✘↻"
	case state.IconSkipped:
		return "⊘"
	case state.IconPassedFaint:
		return "✓"
	case state.IconPassedFaintAutorun:
		return "✓↻"
	case state.IconFailedFaint:
		return "✗"
	case state.IconFailedFaintAutorun:
		return "✗↻"
	case state.IconDuplicate:
		return "⧉"
	case state.IconErrored:
		return "⚠"
	case state.IconErroredFaint:
		return "△"
	case state.IconPendingAutorun:
		return "○↻"
	default:
		return "○"
	}
}
