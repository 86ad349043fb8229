package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jesspatton/testexplorer/adapter"
	"github.com/jesspatton/testexplorer/config"
	"github.com/jesspatton/testexplorer/engine"
	"github.com/jesspatton/testexplorer/filesystem"
	"github.com/jesspatton/testexplorer/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (invalid config, no fixtures).
	ExitCodeError = 1
	// ExitCodeTestsFailed indicates a headless run finished with failures.
	ExitCodeTestsFailed = 2
)

// errTestsFailed is returned by commands whose run reported failures.
var errTestsFailed = errors.New("some tests failed")

var (
	rootDir    string
	configPath string
	logLevel   string
	fixtures   []string
)

// rootCmd opens the interactive explorer when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "testexplorer",
	Short: "Browse, run and watch the tests of a workspace",
	Long: `testexplorer loads the test trees reported by its adapters, runs them on
demand and keeps their results up to date as files change.

Without --fixture, every *.fixture.yaml file below the workspace root is
loaded as an adapter.`,
	SilenceUsage: true,
	RunE:         runExplorer,
}

// Execute is the main entry point for the CLI application. It is called by
// main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

func getExitCode(err error) int {
	if errors.Is(err, errTestsFailed) {
		return ExitCodeTestsFailed
	}
	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "workspace root")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is the nearest .testexplorer.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error (overrides the config)")
	rootCmd.PersistentFlags().StringArrayVar(&fixtures, "fixture", nil, "fixture file to load as an adapter (repeatable)")

	rootCmd.AddCommand(newListCmd())
}

// workspace is what every command sets up before starting the engine.
type workspace struct {
	root     string
	cfg      config.Config
	level    logging.LogLevel
	fixtures []*adapter.Fixture
}

func loadWorkspace(ctx context.Context) (*workspace, error) {
	root, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	var cfg config.Config
	if configPath != "" {
		path, absErr := filepath.Abs(configPath)
		if absErr != nil {
			return nil, fmt.Errorf("resolve config: %w", absErr)
		}
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load(root)
	}
	if err != nil {
		return nil, err
	}

	levelName := cfg.LogLevel
	if logLevel != "" {
		levelName = logLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}

	paths := fixtures
	if len(paths) == 0 {
		paths, err = filesystem.FindFixtures(ctx, root)
		if err != nil {
			return nil, fmt.Errorf("find fixtures: %w", err)
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no fixtures found below %s; pass --fixture", root)
	}

	ws := &workspace{root: root, cfg: cfg, level: level}
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve fixture %s: %w", path, err)
		}
		ws.fixtures = append(ws.fixtures, adapter.NewFixture(abs))
	}
	return ws, nil
}

// register adds every fixture to e and returns the collection id per
// fixture path.
func (ws *workspace) register(e *engine.Engine) map[string]string {
	ids := make(map[string]string, len(ws.fixtures))
	for _, f := range ws.fixtures {
		ids[f.Path()] = e.Register(f)
	}
	return ids
}
