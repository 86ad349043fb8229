package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jesspatton/testexplorer/state"
)

var (
	// Colors
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#626262"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	warning   = lipgloss.AdaptiveColor{Light: "#F25D94", Dark: "#F55081"}
	muted     = lipgloss.AdaptiveColor{Light: "#909090", Dark: "#7A7A7A"}
	running   = lipgloss.AdaptiveColor{Light: "#C48A00", Dark: "#F2C94C"}

	// Borders
	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(subtle).
			Padding(0, 1)

	activePaneStyle = paneStyle.
			BorderForeground(highlight)

	// Text
	titleStyle = lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true).
			Padding(0, 1)

	statusStyle = lipgloss.NewStyle().
			Foreground(subtle).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().Foreground(warning)
)

// iconStyle colors an icon glyph by the state it stands for.
func iconStyle(icon state.IconType) lipgloss.Style {
	switch icon {
	case state.IconPassed, state.IconPassedAutorun:
		return lipgloss.NewStyle().Foreground(special)
	case state.IconFailed, state.IconFailedAutorun, state.IconErrored, state.IconDuplicate:
		return lipgloss.NewStyle().Foreground(warning)
	case state.IconScheduled, state.IconRunning, state.IconRunningFailed:
		return lipgloss.NewStyle().Foreground(running)
	default:
		return lipgloss.NewStyle().Foreground(muted)
	}
}
