package ui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings for the application.
type KeyMap struct {
	Up         key.Binding
	Down       key.Binding
	Toggle     key.Binding
	Enter      key.Binding
	RunAll     key.Binding
	Debug      key.Binding
	Cancel     key.Binding
	Autorun    key.Binding
	Retire     key.Binding
	Reset      key.Binding
	Reload     key.Binding
	Tab        key.Binding
	NextTab    key.Binding
	PrevTab    key.Binding
	Logs       key.Binding
	Search     key.Binding
	NextMatch  key.Binding
	PrevMatch  key.Binding
	ExitSearch key.Binding
	Help       key.Binding
	Quit       key.Binding
}

// NewKeyMap returns a set of default keybindings.
func NewKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "move down"),
		),
		Toggle: key.NewBinding(
			key.WithKeys(" ", "h", "l", "left", "right"),
			key.WithHelp("space", "expand/collapse"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "run selected"),
		),
		RunAll: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "run all"),
		),
		Debug: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "debug selected"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "cancel"),
		),
		Autorun: key.NewBinding(
			key.WithKeys("w"),
			key.WithHelp("w", "toggle autorun"),
		),
		Retire: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "retire"),
		),
		Reset: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "reset"),
		),
		Reload: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "reload"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "switch pane"),
		),
		NextTab: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "next tab"),
		),
		PrevTab: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "previous tab"),
		),
		Logs: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "output/logs"),
		),
		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search"),
		),
		NextMatch: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "next match"),
		),
		PrevMatch: key.NewBinding(
			key.WithKeys("N"),
			key.WithHelp("N", "previous match"),
		),
		ExitSearch: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "exit search"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp returns keybindings to be shown in the mini-help view. It's part of the help.KeyMap interface.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Enter, k.RunAll, k.Autorun, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view. It's part of the help.KeyMap interface.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Toggle, k.Tab, k.NextTab, k.Logs},
		{k.Enter, k.RunAll, k.Debug, k.Cancel, k.Reload},
		{k.Autorun, k.Retire, k.Reset, k.Search, k.Help, k.Quit},
	}
}
