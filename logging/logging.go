// Package logging is the subsystem-tagged logger shared by the engine, the
// CLI and the TUI. In CLI mode entries go to a slog text handler; in TUI mode
// they are pushed onto a buffered channel that the TUI drains into its log
// pane, since writing to the terminal would corrupt the alt screen.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel defines the severity of the log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String makes LogLevel satisfy the fmt.Stringer interface.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps a config or flag value to a LogLevel. Empty means info.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// LogEntry is the structured log entry passed to the TUI.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Subsystem string
	Message   string
	Err       error
}

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
	tuiLogChannel chan LogEntry
	tuiLevel      LogLevel
	isTuiMode     bool
)

const tuiChannelBufferSize = 2048

func initCommon(mode string, level LogLevel, output io.Writer, channelBufferSize int) <-chan LogEntry {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{Level: level.SlogLevel()}

	var handler slog.Handler
	if mode == "tui" {
		isTuiMode = true
		tuiLevel = level
		if channelBufferSize <= 0 {
			channelBufferSize = tuiChannelBufferSize
		}
		tuiLogChannel = make(chan LogEntry, channelBufferSize)
		handler = slog.NewTextHandler(io.Discard, opts)
	} else {
		isTuiMode = false
		handler = slog.NewTextHandler(output, opts)
	}
	defaultLogger = slog.New(handler)

	if isTuiMode {
		return tuiLogChannel
	}
	return nil
}

// InitForTUI initializes logging for TUI mode and returns the entry channel.
// Entries below filterLevel are not sent.
func InitForTUI(filterLevel LogLevel) <-chan LogEntry {
	return initCommon("tui", filterLevel, io.Discard, tuiChannelBufferSize)
}

// InitForCLI initializes logging for CLI mode.
func InitForCLI(filterLevel LogLevel, output io.Writer) {
	initCommon("cli", filterLevel, output, 0)
}

func logInternal(level LogLevel, subsystem string, err error, messageFmt string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()

	if isTuiMode {
		if level < tuiLevel {
			return
		}
	} else if defaultLogger == nil || !defaultLogger.Enabled(context.Background(), level.SlogLevel()) {
		return
	}

	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}
	now := time.Now()

	if isTuiMode {
		if tuiLogChannel == nil {
			fmt.Fprintf(os.Stderr, "[LOGGING_CRITICAL] TUI mode active but channel is closed. Log: %s [%s] %s\n", now.Format(time.RFC3339), level, msg)
			return
		}
		entry := LogEntry{
			Timestamp: now,
			Level:     level,
			Subsystem: subsystem,
			Message:   msg,
			Err:       err,
		}
		select {
		case tuiLogChannel <- entry:
		default:
			fmt.Fprintf(os.Stderr, "[LOGGING_CRITICAL] TUI log channel full. Dropping: %s [%s] %s\n", now.Format(time.RFC3339), level, msg)
		}
		return
	}

	attrs := []slog.Attr{slog.String("subsystem", subsystem)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	defaultLogger.LogAttrs(context.Background(), level.SlogLevel(), msg, attrs...)
}

// Debug logs a debug message.
func Debug(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelDebug, subsystem, nil, messageFmt, args...)
}

// Info logs an informational message.
func Info(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelInfo, subsystem, nil, messageFmt, args...)
}

// Warn logs a warning message.
func Warn(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelWarn, subsystem, nil, messageFmt, args...)
}

// Error logs an error message.
func Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	logInternal(LevelError, subsystem, err, messageFmt, args...)
}

// CloseTUIChannel closes the TUI log channel. Call once on shutdown.
func CloseTUIChannel() {
	mu.Lock()
	defer mu.Unlock()
	if tuiLogChannel != nil {
		close(tuiLogChannel)
		tuiLogChannel = nil
	}
}
