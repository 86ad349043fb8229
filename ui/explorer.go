package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func (m Model) renderExplorer(paneWidth, paneHeight int) string {
	var explorerView strings.Builder

	// Render Tabs
	activeTabStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(highlight).
		Padding(0, 1).
		Foreground(highlight)

	inactiveTabStyle := lipgloss.NewStyle().
		Border(lipgloss.HiddenBorder()).
		BorderForeground(subtle).
		Padding(0, 1).
		Foreground(subtle)

	autorunLabel := fmt.Sprintf("Autorun (%d)", len(m.autorunNodes))
	var testsTab, autorunTab string
	if m.activeTab == TabTests {
		testsTab = activeTabStyle.Render("Tests")
		autorunTab = inactiveTabStyle.Render(autorunLabel)
	} else {
		testsTab = inactiveTabStyle.Render("Tests")
		autorunTab = activeTabStyle.Render(autorunLabel)
	}

	tabs := lipgloss.JoinHorizontal(lipgloss.Bottom, testsTab, autorunTab)
	explorerView.WriteString(tabs + "\n\n")

	// Tabs take 4 lines
	treeHeight := paneHeight - 4
	if m.searchMode && m.activeTab == TabTests {
		treeHeight -= 3 // 1 line text + 2 lines border
	}

	if m.activeTab == TabTests {
		switch {
		case len(m.flatNodes) > 0:
			start, end := visibleRange(m.cursor, len(m.flatNodes), treeHeight)
			for i := start; i < end; i++ {
				m.renderNode(&explorerView, m.flatNodes[i], i)
			}
		case m.status.Loading:
			explorerView.WriteString("Loading tests...")
		default:
			explorerView.WriteString("No tests found.")
		}
	} else {
		if len(m.autorunNodes) == 0 {
			explorerView.WriteString("No autorun targets.\nPress 'w' on a test or suite to rerun it on change.")
		} else {
			start, end := visibleRange(m.autorunCursor, len(m.autorunNodes), treeHeight)
			for i := start; i < end; i++ {
				node := m.autorunNodes[i]
				item := m.explorer.DisplayItem(node)

				cursor := " "
				if m.autorunCursor == i {
					cursor = ">"
				}
				line := fmt.Sprintf("%s %s %s", cursor, iconStyle(item.Icon).Render(iconGlyph(item.Icon)), item.Label)
				if file := node.File(); file != "" {
					line += lipgloss.NewStyle().Foreground(muted).Render("  " + file)
				}
				if m.autorunCursor == i {
					explorerView.WriteString(lipgloss.NewStyle().Foreground(highlight).Render(line) + "\n")
				} else {
					explorerView.WriteString(line + "\n")
				}
			}
		}
	}

	currentView := explorerView.String()

	if m.searchMode && m.activeTab == TabTests {
		// Fill remaining space to push search bar to bottom
		if currentHeight := lipgloss.Height(currentView); currentHeight < paneHeight-3 {
			currentView += strings.Repeat("\n", paneHeight-3-currentHeight)
		}

		searchStyle := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlight).
			Width(paneWidth - 4) // Account for border width

		searchContent := m.searchInput.View()
		if !m.searchFocus {
			hints := fmt.Sprintf("%d matches • n: next • N: prev • Esc: exit", len(m.searchMatches))
			hintsStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

			availableWidth := paneWidth - 6 // -4 for outer margin, -2 for border
			contentWidth := lipgloss.Width(searchContent)
			hintsWidth := lipgloss.Width(hints)

			if contentWidth+hintsWidth+1 < availableWidth {
				padding := strings.Repeat(" ", availableWidth-contentWidth-hintsWidth)
				searchContent += padding + hintsStyle.Render(hints)
			}
		}
		currentView += searchStyle.Render(searchContent)
	}

	explorerStyle := paneStyle
	if m.activePane == PaneExplorer {
		explorerStyle = activePaneStyle
	}

	return explorerStyle.
		Width(paneWidth).
		Height(paneHeight).
		Render(currentView)
}

// visibleRange returns the window of at most height rows that keeps cursor
// roughly centered.
func visibleRange(cursor, total, height int) (int, int) {
	if height <= 0 {
		return 0, 0
	}
	if total <= height {
		return 0, total
	}
	switch {
	case cursor < height/2:
		return 0, height
	case cursor >= total-height/2:
		return total - height, total
	default:
		start := cursor - height/2
		return start, start + height
	}
}

func (m Model) renderNode(b *strings.Builder, row DisplayNode, index int) {
	cursor := " "
	if m.cursor == index {
		cursor = ">"
	}

	indent := strings.Repeat("  ", row.Depth)

	fold := "  "
	if row.Item.Collapsible {
		if m.collapsed[row.Item.ID] {
			fold = "▸ "
		} else {
			fold = "▾ "
		}
	}

	icon := iconStyle(row.Item.Icon).Render(iconGlyph(row.Item.Icon))
	name := row.DisplayName
	// Highlight search matches
	if m.searchMode && m.searchInput.Value() != "" {
		name = highlightMatches(name, m.searchInput.Value())
	}

	line := fmt.Sprintf("%s %s%s%s %s", cursor, indent, fold, icon, name)
	if row.Item.Description != "" {
		line += lipgloss.NewStyle().Foreground(muted).Render("  " + row.Item.Description)
	}

	if m.cursor == index {
		b.WriteString(lipgloss.NewStyle().Foreground(highlight).Render(line) + "\n")
	} else {
		b.WriteString(line + "\n")
	}
}

// highlightMatches marks every case-insensitive occurrence of query in name.
func highlightMatches(name, query string) string {
	lowerName := strings.ToLower(name)
	lowerQuery := strings.ToLower(query)
	if lowerQuery == "" || len(lowerName) != len(name) || !strings.Contains(lowerName, lowerQuery) {
		return name
	}

	matchStyle := lipgloss.NewStyle().Background(lipgloss.Color("212")).Foreground(lipgloss.Color("0"))
	var sb strings.Builder
	lastIdx := 0
	for {
		idx := strings.Index(lowerName[lastIdx:], lowerQuery)
		if idx == -1 {
			sb.WriteString(name[lastIdx:])
			break
		}
		idx += lastIdx
		sb.WriteString(name[lastIdx:idx])
		sb.WriteString(matchStyle.Render(name[idx : idx+len(lowerQuery)]))
		lastIdx = idx + len(lowerQuery)
	}
	return sb.String()
}
