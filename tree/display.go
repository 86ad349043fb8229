package tree

import (
	"github.com/jesspatton/testexplorer/state"
)

// DisplayItem is what a presentation layer needs to render one node.
type DisplayItem struct {
	ID           string
	Label        string
	Description  string
	Tooltip      string
	Icon         state.IconType
	ContextValue string
	// Collapsible is false for leaves.
	Collapsible bool
	Expanded    bool
}

// Display builds the display item for n. collectionRoot marks the root suite
// of a collection, which never shows a faint previous result.
func (n *Node) Display(collectionRoot bool) DisplayItem {
	item := DisplayItem{
		ID:          n.uniqueID,
		Label:       n.info.Label,
		Description: n.description,
		Tooltip:     n.tooltip,
	}

	s := n.state
	if collectionRoot {
		s.Previous = state.PrevPending
	}
	item.Icon = state.Icon(s)

	switch n.kind {
	case KindError:
		item.ContextValue = "error"
		item.Tooltip = n.log
	case KindTest:
		item.ContextValue = "test"
	case KindSuite:
		item.ContextValue = "suite"
		if collectionRoot {
			item.ContextValue = "collection"
		}
		item.Collapsible = len(n.children) > 0
		item.Expanded = item.Collapsible
	}

	if n.info.Debuggable && n.kind != KindError {
		item.ContextValue = "debuggable" + capitalize(item.ContextValue)
	}
	return item
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
