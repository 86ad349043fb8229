package cmd

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jesspatton/testexplorer/config"
	"github.com/jesspatton/testexplorer/engine"
	"github.com/jesspatton/testexplorer/filesystem"
	"github.com/jesspatton/testexplorer/logging"
	"github.com/jesspatton/testexplorer/ui"
)

func runExplorer(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	ws, err := loadWorkspace(ctx)
	if err != nil {
		return err
	}

	logs := logging.InitForTUI(ws.level)
	defer logging.CloseTUIChannel()

	notifier := ui.NewNotifier(0)
	eng := engine.New(ws.cfg, notifier)

	watcher, err := filesystem.NewWatcher(ws.root, nil, 0)
	if err != nil {
		return err
	}
	defer watcher.Close()
	extra := []string{ws.cfg.Path}
	for _, f := range ws.fixtures {
		extra = append(extra, f.Path())
	}
	for _, path := range extra {
		if path == "" || isBelow(ws.root, path) {
			continue
		}
		if err := watcher.Add(path); err != nil {
			logging.Warn("CLI", "Cannot watch %s: %v", path, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := eng.Serve(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	ids := ws.register(eng)

	program := tea.NewProgram(ui.NewModel(eng), tea.WithAltScreen(), tea.WithContext(ctx))
	g.Go(func() error { return notifier.Pump(ctx, program, logs) })
	g.Go(func() error { return watchChanges(ctx, watcher, eng, ws, ids) })
	g.Go(func() error {
		defer cancel()
		_, err := program.Run()
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	})

	return g.Wait()
}

// watchChanges feeds file changes into the engine: fixture edits reload
// their collection, config edits are applied and every change retires the
// nodes located in the file.
func watchChanges(ctx context.Context, w *filesystem.Watcher, eng *engine.Engine, ws *workspace, ids map[string]string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case path := <-w.Events:
			if id, ok := ids[path]; ok {
				logging.Info("CLI", "Fixture %s changed, reloading", filepath.Base(path))
				eng.ReloadCollection(id)
				continue
			}
			if ws.cfg.Path != "" && path == ws.cfg.Path {
				cfg, err := config.LoadFile(path)
				if err != nil {
					logging.Warn("CLI", "Ignoring invalid config %s: %v", path, err)
					continue
				}
				logging.Info("CLI", "Config %s changed", path)
				ws.cfg = cfg
				eng.SetConfig(cfg)
				continue
			}
			eng.FileChanged(path)
		}
	}
}

func isBelow(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
