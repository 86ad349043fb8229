package filesystem

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/boyter/gocodewalker"

	"github.com/jesspatton/testexplorer/logging"
)

// FixtureSuffixes name the files FindFixtures picks up.
var FixtureSuffixes = []string{".fixture.yaml", ".fixture.yml"}

// IsFixture reports whether name looks like a fixture file.
func IsFixture(name string) bool {
	base := filepath.Base(name)
	for _, suffix := range FixtureSuffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}

// FindFixtures walks root, honoring .gitignore and .ignore files, and
// returns every fixture file in lexical order.
func FindFixtures(ctx context.Context, root string) ([]string, error) {
	queue := make(chan *gocodewalker.File, 100)
	walker := gocodewalker.NewFileWalker(root, queue)
	walker.ExcludeDirectory = []string{"vendor", "node_modules"}

	walker.SetErrorHandler(func(err error) bool {
		logging.Warn("Watcher", "Skipping unreadable path: %v", err)
		return true
	})

	done := make(chan error, 1)
	go func() { done <- walker.Start() }()

	var found []string
	for f := range queue {
		if ctx.Err() != nil {
			walker.Terminate()
			continue
		}
		if IsFixture(f.Filename) {
			found = append(found, f.Location)
		}
	}
	walkErr := <-done

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if walkErr != nil {
		return nil, walkErr
	}
	sort.Strings(found)
	return found, nil
}
