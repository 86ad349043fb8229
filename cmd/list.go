package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jesspatton/testexplorer/engine"
	"github.com/jesspatton/testexplorer/filesystem"
	"github.com/jesspatton/testexplorer/logging"
	"github.com/jesspatton/testexplorer/state"
	"github.com/jesspatton/testexplorer/tree"
)

var (
	listRun     bool
	listChanged bool
	listTimeout time.Duration
	listNoColor bool
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the test tree and its states",
		Long: `Loads every adapter, optionally runs the tests, and prints the resulting
tree as a table. With --run the exit code is 2 when a test failed or errored.`,
		Args: cobra.NoArgs,
		RunE: runList,
	}

	cmd.Flags().BoolVar(&listRun, "run", false, "run all tests before printing")
	cmd.Flags().BoolVar(&listChanged, "changed", false, "run the tests located in files git reports as changed")
	cmd.Flags().DurationVar(&listTimeout, "timeout", 5*time.Minute, "give up waiting for loads and runs after this long")
	cmd.Flags().BoolVar(&listNoColor, "no-color", false, "disable colored output")
	return cmd
}

// cliNotifier prints user-facing messages to stderr.
type cliNotifier struct {
	engine.NopNotifier
	w io.Writer
}

func (n cliNotifier) Message(level logging.LogLevel, msg string) {
	fmt.Fprintf(n.w, "%s: %s\n", strings.ToLower(level.String()), msg)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), listTimeout)
	defer cancel()

	ws, err := loadWorkspace(ctx)
	if err != nil {
		return err
	}
	logging.InitForCLI(ws.level, cmd.ErrOrStderr())
	if listNoColor {
		text.DisableColors()
	}

	eng := engine.New(ws.cfg, cliNotifier{w: cmd.ErrOrStderr()})
	g, gctx := errgroup.WithContext(ctx)
	loopCtx, stopLoop := context.WithCancel(gctx)
	g.Go(func() error {
		err := eng.Serve(loopCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	var snaps []engine.Snapshot
	g.Go(func() error {
		defer stopLoop()
		ws.register(eng)
		if err := eng.WaitIdle(ctx); err != nil {
			return fmt.Errorf("load tests: %w", err)
		}

		switch {
		case listChanged:
			files, err := filesystem.ChangedFiles(ctx, ws.root)
			if err != nil {
				return err
			}
			for _, file := range files {
				if eng.RunTestsInFile(file) {
					logging.Debug("CLI", "Running tests in %s", file)
				}
			}
		case listRun:
			eng.Run()
		}
		if err := eng.WaitIdle(ctx); err != nil {
			return fmt.Errorf("run tests: %w", err)
		}
		snaps = eng.Snapshot()
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	counts := renderSnapshot(cmd.OutOrStdout(), ws.root, snaps)
	if (listRun || listChanged) && counts[state.Failed]+counts[state.Errored] > 0 {
		return errTestsFailed
	}
	return nil
}

// renderSnapshot prints snaps as an indented table and returns the test
// counts by state.
func renderSnapshot(w io.Writer, root string, snaps []engine.Snapshot) map[state.Current]int {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("STATE"),
		text.FgHiCyan.Sprint("TEST"),
		text.FgHiCyan.Sprint("LOCATION"),
		text.FgHiCyan.Sprint("MESSAGE"),
	})

	counts := make(map[state.Current]int)
	var add func(s engine.Snapshot, depth int)
	add = func(s engine.Snapshot, depth int) {
		if s.Kind == tree.KindTest {
			counts[s.State.Current]++
		}
		t.AppendRow(table.Row{
			stateColor(s.State.Current).Sprint(stateLabel(s)),
			strings.Repeat("  ", depth) + s.Item.Label,
			location(root, s),
			firstLine(s.Log),
		})
		for _, child := range s.Children {
			add(child, depth+1)
		}
	}
	for _, s := range snaps {
		add(s, 0)
	}

	t.AppendFooter(table.Row{"", summary(counts), "", ""})
	t.Render()
	return counts
}

func stateLabel(s engine.Snapshot) string {
	label := string(s.State.Current)
	if s.State.Current == state.Pending && s.State.Previous != state.PrevPending && s.Kind != tree.KindError {
		label += " (was " + string(s.State.Previous) + ")"
	}
	if s.State.Autorun {
		label += " ↻"
	}
	return label
}

func stateColor(c state.Current) text.Colors {
	switch c {
	case state.Passed:
		return text.Colors{text.FgGreen}
	case state.Failed, state.Errored, state.Duplicate:
		return text.Colors{text.FgRed}
	case state.Scheduled, state.Running, state.RunningFailed:
		return text.Colors{text.FgYellow}
	default:
		return text.Colors{text.FgHiBlack}
	}
}

func location(root string, s engine.Snapshot) string {
	if s.File == "" {
		return ""
	}
	file := s.File
	if rel, err := filepath.Rel(root, file); err == nil && isBelow(root, file) {
		file = rel
	}
	if s.Located {
		return fmt.Sprintf("%s:%d", file, s.Line)
	}
	return file
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}

func summary(counts map[state.Current]int) string {
	order := []state.Current{state.Passed, state.Failed, state.Errored, state.Skipped, state.Pending}
	var parts []string
	for _, c := range order {
		if n := counts[c]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, c))
		}
	}
	if len(parts) == 0 {
		return "no tests"
	}
	return strings.Join(parts, ", ")
}
