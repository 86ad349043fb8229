package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jesspatton/testexplorer/logging"
	"github.com/jesspatton/testexplorer/tree"
)

// Messages

// RefreshMsg asks the model to re-read the tree from the explorer.
type RefreshMsg struct{}

// StatusMsg signals a change of the loading/running status.
type StatusMsg struct{}

// NoticeMsg is a user-facing message from the engine.
type NoticeMsg struct {
	Level logging.LogLevel
	Text  string
}

// LogMsg carries an application log entry for the log pane.
type LogMsg logging.LogEntry

// Notifier implements engine.Notifier by queueing tea messages. It never
// blocks: when the queue is full, refreshes are dropped since any later
// refresh covers them.
type Notifier struct {
	msgs chan tea.Msg
}

// NewNotifier creates a Notifier with room for size pending messages.
func NewNotifier(size int) *Notifier {
	if size <= 0 {
		size = 256
	}
	return &Notifier{msgs: make(chan tea.Msg, size)}
}

func (n *Notifier) send(msg tea.Msg) {
	select {
	case n.msgs <- msg:
	default:
		if notice, ok := msg.(NoticeMsg); ok {
			logging.Warn("CLI", "Dropped notice: %s", notice.Text)
		}
	}
}

func (n *Notifier) TreeReplaced() { n.send(RefreshMsg{}) }
func (n *Notifier) NodeChanged(*tree.Node) { n.send(RefreshMsg{}) }
func (n *Notifier) CodeLensesChanged() {}
func (n *Notifier) DecorationsChanged(string) {}
func (n *Notifier) StatusChanged() { n.send(StatusMsg{}) }

func (n *Notifier) Message(level logging.LogLevel, text string) {
	n.send(NoticeMsg{Level: level, Text: text})
}

// Sender is implemented by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// Pump forwards queued messages and log entries to p until ctx is done.
// A nil logs channel is ignored.
func (n *Notifier) Pump(ctx context.Context, p Sender, logs <-chan logging.LogEntry) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-n.msgs:
			p.Send(msg)
		case entry, ok := <-logs:
			if !ok {
				logs = nil
				continue
			}
			p.Send(LogMsg(entry))
		}
	}
}
