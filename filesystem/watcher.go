package filesystem

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jesspatton/testexplorer/logging"
)

// DefaultSettle is how long the watcher waits for a burst of writes to end.
const DefaultSettle = 100 * time.Millisecond

// Watcher monitors a directory tree and reports changed files.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	root      string
	ignorer   *Ignorer
	settle    time.Duration

	// Events carries the changed file paths, each at most once per burst.
	Events chan string

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer

	done chan struct{}
	once sync.Once
}

// NewWatcher watches root and all of its directories that ign does not
// ignore. A nil ign uses NewIgnorer(root).
func NewWatcher(root string, ign *Ignorer, settle time.Duration) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if ign == nil {
		ign = NewIgnorer(root)
	}
	if settle <= 0 {
		settle = DefaultSettle
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		root:      filepath.Clean(root),
		ignorer:   ign,
		settle:    settle,
		Events:    make(chan string, 64),
		pending:   make(map[string]struct{}),
		done:      make(chan struct{}),
	}

	// fsnotify is not recursive, so every directory is added explicitly
	if err := w.addTree(w.root); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	go w.loop()
	return w, nil
}

// Add watches one more file or directory outside the root, such as a
// fixture file living elsewhere.
func (w *Watcher) Add(path string) error {
	return w.fsWatcher.Add(path)
}

// Close stops the watcher and releases resources. Events is not closed.
func (w *Watcher) Close() {
	w.once.Do(func() {
		close(w.done)
		w.fsWatcher.Close()
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	})
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.shouldIgnore(path, true) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *Watcher) shouldIgnore(path string, isDir bool) bool {
	return w.ignorer.Ignored(path, isDir)
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logging.Warn("Watcher", "Watch error: %v", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	// Chmod events are noisy and never change test results
	if event.Op == fsnotify.Chmod {
		return
	}

	isDir := false
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			isDir = true
		}
	}
	if w.shouldIgnore(event.Name, isDir) {
		return
	}

	if isDir {
		if err := w.addTree(event.Name); err != nil {
			logging.Warn("Watcher", "Failed to watch %s: %v", event.Name, err)
		}
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[filepath.Clean(event.Name)] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.settle, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	sort.Strings(paths)
	for _, path := range paths {
		logging.Debug("Watcher", "Changed: %s", path)
		select {
		case w.Events <- path:
		case <-w.done:
			return
		}
	}
}
