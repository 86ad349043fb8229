package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jesspatton/testexplorer/engine"
	"github.com/jesspatton/testexplorer/logging"
	"github.com/jesspatton/testexplorer/tree"
)

// Pane represents a distinct section of the UI.
type Pane int

const (
	// PaneExplorer is the test tree pane.
	PaneExplorer Pane = iota
	// PaneOutput is the output pane.
	PaneOutput
)

// LeftTab represents the active tab in the left pane.
type LeftTab int

const (
	// TabTests is the test tree tab.
	TabTests LeftTab = iota
	// TabAutorun lists the autorun targets.
	TabAutorun
)

// OutputMode selects what the output pane shows.
type OutputMode int

const (
	// OutputNode shows the log of the selected node.
	OutputNode OutputMode = iota
	// OutputLogs shows the application log.
	OutputLogs
)

const (
	maxLogLines   = 500
	actionTimeout = 30 * time.Second
)

// Explorer is the part of the engine the TUI drives.
type Explorer interface {
	TreeSource
	Log(n *tree.Node) string
	Status() engine.Status
	Autorun() []*tree.Node
	Run(nodes ...*tree.Node)
	Debug(ctx context.Context, nodes ...*tree.Node) error
	Cancel(ctx context.Context) error
	Reload(n *tree.Node)
	SetAutorun(n *tree.Node)
	ClearAutorun(n *tree.Node)
	Retire(n *tree.Node)
	Reset(n *tree.Node)
}

// Model represents the application state for the Bubbletea program.
type Model struct {
	// UI State
	activePane Pane
	width      int
	height     int
	ready      bool
	showHelp   bool
	cursor     int
	viewport   viewport.Model
	outputMode OutputMode

	// Tab State
	activeTab     LeftTab
	autorunNodes  []*tree.Node
	autorunCursor int

	// Search State
	searchMode        bool
	searchFocus       bool
	searchInput       textinput.Model
	searchMatches     []int
	currentMatchIndex int

	// Components
	keys KeyMap
	help help.Model

	// Data / Dependencies
	explorer  Explorer
	flatNodes []DisplayNode
	collapsed map[string]bool
	// selectedID keeps the cursor on the same node across refreshes.
	selectedID string

	// Application State
	status engine.Status
	notice NoticeMsg
	logs   []string
}

// actionDoneMsg reports the result of a command sent to the explorer.
type actionDoneMsg struct{ err error }

// NewModel creates and initializes a new Model.
func NewModel(explorer Explorer) Model {
	h := help.New()
	h.Styles.ShortKey = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#909090", Dark: "#A0A0A0"})
	h.Styles.ShortDesc = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B0B0B0", Dark: "#808080"})
	h.Styles.ShortSeparator = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#D0D0D0", Dark: "#606060"})
	h.Styles.FullKey = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#909090", Dark: "#A0A0A0"})
	h.Styles.FullDesc = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B0B0B0", Dark: "#808080"})
	h.Styles.FullSeparator = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#D0D0D0", Dark: "#606060"})
	ti := textinput.New()
	ti.Placeholder = "Search..."
	ti.Prompt = "/"
	ti.CharLimit = 156
	ti.Width = 20

	return Model{
		activePane:  PaneExplorer,
		explorer:    explorer,
		collapsed:   make(map[string]bool),
		keys:        NewKeyMap(),
		help:        h,
		searchInput: ti,
	}
}

// Init initializes the Bubbletea program.
func (m Model) Init() tea.Cmd {
	return func() tea.Msg { return RefreshMsg{} }
}

// Update handles incoming messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.searchMode {
			switch {
			case key.Matches(msg, m.keys.Quit):
				return m, tea.Quit
			case key.Matches(msg, m.keys.Help):
				m.showHelp = !m.showHelp
				return m, nil
			case key.Matches(msg, m.keys.Tab):
				if m.activePane == PaneExplorer {
					m.activePane = PaneOutput
				} else {
					m.activePane = PaneExplorer
				}
				return m, nil
			case key.Matches(msg, m.keys.Logs):
				if m.outputMode == OutputNode {
					m.outputMode = OutputLogs
				} else {
					m.outputMode = OutputNode
				}
				m.updateOutput()
				return m, nil
			case key.Matches(msg, m.keys.NextTab), key.Matches(msg, m.keys.PrevTab):
				if m.activePane == PaneExplorer {
					if m.activeTab == TabTests {
						m.activeTab = TabAutorun
					} else {
						m.activeTab = TabTests
					}
					m.updateOutput()
				}
				return m, nil
			case key.Matches(msg, m.keys.RunAll):
				return m, m.action(func(context.Context) error {
					m.explorer.Run()
					return nil
				})
			case key.Matches(msg, m.keys.Cancel):
				return m, m.action(m.explorer.Cancel)
			case key.Matches(msg, m.keys.Reload):
				node := m.selected()
				return m, m.action(func(context.Context) error {
					m.explorer.Reload(node)
					return nil
				})
			}
		}

		if m.activePane == PaneOutput {
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)
			break
		}

		if m.activeTab == TabAutorun {
			return m.updateAutorunTab(msg)
		}

		if m.searchMode {
			return m.updateSearch(msg)
		}

		switch {
		case key.Matches(msg, m.keys.Search):
			m.searchMode = true
			m.searchFocus = true
			m.searchInput.Focus()
			return m, textinput.Blink
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.moveTo(m.cursor - 1)
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.flatNodes)-1 {
				m.moveTo(m.cursor + 1)
			}
		case key.Matches(msg, m.keys.Toggle):
			if m.cursor < len(m.flatNodes) {
				row := m.flatNodes[m.cursor]
				if row.Item.Collapsible {
					m.collapsed[row.Item.ID] = !m.collapsed[row.Item.ID]
					m.refresh()
				}
			}
		default:
			return m, m.nodeAction(msg, m.selected())
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

		// Width: (Total / 2) - Border(2) - Padding(2) = Total/2 - 4
		paneWidth := (m.width / 2) - 4
		// Height: Total - Footer(2) - Border(2), plus a line of margin
		paneHeight := m.height - 5

		// The "OUTPUT" header takes 2 lines
		viewportHeight := paneHeight - 2

		if !m.ready {
			m.viewport = viewport.New(paneWidth, viewportHeight)
			m.ready = true
		} else {
			m.viewport.Width = paneWidth
			m.viewport.Height = viewportHeight
		}
		m.updateOutput()

	case RefreshMsg:
		m.refresh()

	case StatusMsg:
		m.status = m.explorer.Status()

	case NoticeMsg:
		m.notice = msg
		m.appendLog(fmt.Sprintf("%s %s", msg.Level, msg.Text))

	case LogMsg:
		line := fmt.Sprintf("%s %-5s [%s] %s", msg.Timestamp.Format("15:04:05"), msg.Level, msg.Subsystem, msg.Message)
		if msg.Err != nil {
			line += ": " + msg.Err.Error()
		}
		m.appendLog(line)

	case actionDoneMsg:
		if msg.err != nil {
			m.notice = NoticeMsg{Level: logging.LevelError, Text: msg.err.Error()}
		}
	}

	return m, tea.Batch(cmds...)
}

// nodeAction handles the keys that act on one node.
func (m Model) nodeAction(msg tea.KeyMsg, node *tree.Node) tea.Cmd {
	if node == nil {
		return nil
	}
	switch {
	case key.Matches(msg, m.keys.Enter):
		return m.action(func(context.Context) error {
			m.explorer.Run(node)
			return nil
		})
	case key.Matches(msg, m.keys.Debug):
		return m.action(func(ctx context.Context) error {
			return m.explorer.Debug(ctx, node)
		})
	case key.Matches(msg, m.keys.Autorun):
		autorun := m.isAutorun(node)
		return m.action(func(context.Context) error {
			if autorun {
				m.explorer.ClearAutorun(node)
			} else {
				m.explorer.SetAutorun(node)
			}
			return nil
		})
	case key.Matches(msg, m.keys.Retire):
		return m.action(func(context.Context) error {
			m.explorer.Retire(node)
			return nil
		})
	case key.Matches(msg, m.keys.Reset):
		return m.action(func(context.Context) error {
			m.explorer.Reset(node)
			return nil
		})
	}
	return nil
}

func (m Model) updateAutorunTab(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.autorunCursor > 0 {
			m.autorunCursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.autorunCursor < len(m.autorunNodes)-1 {
			m.autorunCursor++
		}
	default:
		if m.autorunCursor < len(m.autorunNodes) {
			return m, m.nodeAction(msg, m.autorunNodes[m.autorunCursor])
		}
	}
	m.updateOutput()
	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searchFocus {
		// Typing Mode
		switch {
		case key.Matches(msg, m.keys.ExitSearch):
			m.exitSearch()
			return m, nil
		case key.Matches(msg, m.keys.Enter):
			// Switch to Navigation Mode
			m.searchFocus = false
			m.searchInput.Blur()
			if len(m.searchMatches) > 0 {
				m.currentMatchIndex = 0
				m.moveTo(m.searchMatches[0])
			}
			return m, nil
		default:
			var cmd tea.Cmd
			m.searchInput, cmd = m.searchInput.Update(msg)
			m.updateMatches()
			return m, cmd
		}
	}

	// Navigation Mode
	switch {
	case key.Matches(msg, m.keys.ExitSearch):
		m.exitSearch()
	case key.Matches(msg, m.keys.Search):
		m.searchFocus = true
		m.searchInput.Focus()
		return m, textinput.Blink
	case key.Matches(msg, m.keys.NextMatch):
		if len(m.searchMatches) > 0 {
			m.currentMatchIndex = (m.currentMatchIndex + 1) % len(m.searchMatches)
			m.moveTo(m.searchMatches[m.currentMatchIndex])
		}
	case key.Matches(msg, m.keys.PrevMatch):
		if len(m.searchMatches) > 0 {
			m.currentMatchIndex = (m.currentMatchIndex - 1 + len(m.searchMatches)) % len(m.searchMatches)
			m.moveTo(m.searchMatches[m.currentMatchIndex])
		}
	case key.Matches(msg, m.keys.Enter):
		m.exitSearch()
		return m, m.nodeAction(msg, m.selected())
	}
	return m, nil
}

func (m *Model) exitSearch() {
	m.searchMode = false
	m.searchFocus = false
	m.searchInput.Blur()
	m.searchInput.Reset()
	m.searchMatches = nil
}

func (m *Model) updateMatches() {
	m.searchMatches = []int{}
	query := strings.ToLower(m.searchInput.Value())
	if query == "" {
		return
	}
	for i, row := range m.flatNodes {
		if strings.Contains(strings.ToLower(row.DisplayName), query) {
			m.searchMatches = append(m.searchMatches, i)
		}
	}
}

// action runs fn off the update goroutine; some explorer calls wait for a
// run to stop.
func (m Model) action(fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionDoneMsg{err: fn(ctx)}
	}
}

func (m *Model) refresh() {
	m.flatNodes = flattenNodes(m.explorer, m.collapsed)
	m.autorunNodes = m.explorer.Autorun()
	m.status = m.explorer.Status()

	m.cursor = min(m.cursor, max(len(m.flatNodes)-1, 0))
	for i, row := range m.flatNodes {
		if row.Item.ID != "" && row.Item.ID == m.selectedID {
			m.cursor = i
			break
		}
	}
	if m.cursor < len(m.flatNodes) {
		m.selectedID = m.flatNodes[m.cursor].Item.ID
	}
	m.autorunCursor = min(m.autorunCursor, max(len(m.autorunNodes)-1, 0))

	if m.searchMode {
		m.updateMatches()
	}
	m.updateOutput()
}

func (m *Model) moveTo(i int) {
	m.cursor = i
	if i < len(m.flatNodes) {
		m.selectedID = m.flatNodes[i].Item.ID
	}
	m.updateOutput()
}

func (m Model) selected() *tree.Node {
	if m.activeTab == TabAutorun {
		if m.autorunCursor < len(m.autorunNodes) {
			return m.autorunNodes[m.autorunCursor]
		}
		return nil
	}
	if m.cursor < len(m.flatNodes) {
		return m.flatNodes[m.cursor].Node
	}
	return nil
}

func (m Model) isAutorun(n *tree.Node) bool {
	for _, target := range m.autorunNodes {
		if target == n {
			return true
		}
	}
	return false
}

func (m *Model) appendLog(line string) {
	m.logs = append(m.logs, line)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
	if m.outputMode == OutputLogs {
		m.updateOutput()
	}
}

// outputContent is the text of the output pane.
func (m Model) outputContent() string {
	if m.outputMode == OutputLogs {
		return strings.Join(m.logs, "\n")
	}

	node := m.selected()
	if node == nil {
		return "Nothing selected."
	}
	item := m.explorer.DisplayItem(node)

	var b strings.Builder
	b.WriteString(item.Label + "\n")
	if item.Description != "" {
		b.WriteString(item.Description + "\n")
	}
	if item.Tooltip != "" && node.Kind() != tree.KindError {
		b.WriteString(item.Tooltip + "\n")
	}
	b.WriteString("\n")
	if log := m.explorer.Log(node); log != "" {
		b.WriteString(log)
	} else {
		b.WriteString("No output.")
	}
	return b.String()
}

func (m *Model) updateOutput() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.wrapOutput(m.viewport.Width, m.outputContent()))
	if m.outputMode == OutputLogs && atBottom {
		m.viewport.GotoBottom()
	}
}

func (m Model) wrapOutput(width int, content string) string {
	if width <= 0 {
		return content
	}
	return lipgloss.NewStyle().Width(width).Render(content)
}

// View renders the UI based on the current state.
func (m Model) View() string {
	if m.showHelp {
		return m.renderHelp()
	}

	if m.width == 0 {
		return "Loading..."
	}

	paneWidth := (m.width / 2) - 2
	paneHeight := m.height - 4

	explorerRender := m.renderExplorer(paneWidth, paneHeight)

	var outputView strings.Builder
	title := "OUTPUT"
	if m.outputMode == OutputLogs {
		title = "LOGS"
	}
	outputView.WriteString(titleStyle.Render(title) + "\n\n")

	if !m.ready {
		outputView.WriteString("Initializing...")
	} else {
		outputView.WriteString(m.viewport.View())
	}

	outputStyle := paneStyle
	if m.activePane == PaneOutput {
		outputStyle = activePaneStyle
	}
	outputRender := outputStyle.
		Width(paneWidth).
		Height(paneHeight).
		Render(outputView.String())

	panes := lipgloss.JoinHorizontal(lipgloss.Top, explorerRender, outputRender)
	footer := m.renderFooter()

	return lipgloss.JoinVertical(lipgloss.Left, panes, footer)
}
