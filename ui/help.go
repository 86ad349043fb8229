package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jesspatton/testexplorer/engine"
	"github.com/jesspatton/testexplorer/logging"
	"github.com/jesspatton/testexplorer/state"
)

func (m Model) renderHelp() string {
	title := titleStyle.Render("HELP")
	helpView := m.help.View(m.keys)

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		paneStyle.Render(fmt.Sprintf("%s\n\n%s", title, helpView)),
	)
}

func (m Model) renderFooter() string {
	status := statusStyle.Render(statusLine(m.status))
	if m.notice.Text != "" {
		style := statusStyle
		if m.notice.Level >= logging.LevelWarn {
			style = errorStyle.Padding(0, 1)
		}
		status = lipgloss.JoinHorizontal(lipgloss.Top, status, style.Render(m.notice.Text))
	}
	return lipgloss.JoinVertical(lipgloss.Left, status, m.help.View(m.keys))
}

// statusLine summarizes what the engine is doing and the test counts.
func statusLine(st engine.Status) string {
	var parts []string
	switch {
	case st.Loading:
		parts = append(parts, "loading "+st.Active)
	case st.Running:
		parts = append(parts, "running "+st.Active)
	default:
		parts = append(parts, "idle")
	}
	if st.Queued > 0 {
		parts = append(parts, fmt.Sprintf("%d queued", st.Queued))
	}

	counts := []struct {
		label string
		state state.Current
	}{
		{"passed", state.Passed},
		{"failed", state.Failed},
		{"errored", state.Errored},
		{"skipped", state.Skipped},
		{"pending", state.Pending},
	}
	for _, c := range counts {
		if n := st.Tests[c.state]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, c.label))
		}
	}
	return strings.Join(parts, " • ")
}
