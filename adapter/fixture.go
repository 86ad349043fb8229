package adapter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jesspatton/testexplorer/logging"
)

// FixtureResult is the scripted outcome of one test.
type FixtureResult struct {
	State       TestState    `yaml:"state"`
	Message     string       `yaml:"message,omitempty"`
	Decorations []Decoration `yaml:"decorations,omitempty"`
}

// FixtureFile is the on-disk format read by Fixture.
type FixtureFile struct {
	Name    string                   `yaml:"name"`
	Delay   string                   `yaml:"delay,omitempty"`
	Tests   *NodeInfo                `yaml:"tests"`
	Results map[string]FixtureResult `yaml:"results,omitempty"`
	// Dynamic lists nodes that are only disclosed while the suite with the
	// given id is running.
	Dynamic map[string][]*NodeInfo `yaml:"dynamic,omitempty"`
}

// Fixture is an adapter backed by a YAML file describing a test tree and the
// result of every test. The file is re-read on each load so edits are picked
// up by a reload.
type Fixture struct {
	Emitter

	path string

	mu     sync.Mutex
	file   *FixtureFile
	delay  time.Duration
	cancel context.CancelFunc
}

// NewFixture creates a fixture adapter for the file at path.
func NewFixture(path string) *Fixture {
	return &Fixture{path: path}
}

// Name is the fixture's declared name, or the file name without its
// extensions before the first load.
func (f *Fixture) Name() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file != nil && f.file.Name != "" {
		return f.file.Name
	}
	name := strings.TrimSuffix(filepath.Base(f.path), filepath.Ext(f.path))
	return strings.TrimSuffix(name, ".fixture")
}

// Path returns the fixture file path.
func (f *Fixture) Path() string { return f.path }

// ParseFixture decodes a fixture document.
func ParseFixture(data []byte) (*FixtureFile, time.Duration, error) {
	var file FixtureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, 0, fmt.Errorf("parse fixture: %w", err)
	}
	if file.Tests == nil {
		return nil, 0, errors.New("fixture has no tests")
	}
	if file.Tests.Type == "" {
		file.Tests.Type = KindSuite
	}
	normalizeKinds(file.Tests)
	for _, infos := range file.Dynamic {
		for _, info := range infos {
			normalizeKinds(info)
		}
	}

	var delay time.Duration
	if file.Delay != "" {
		d, err := time.ParseDuration(file.Delay)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid delay %q: %w", file.Delay, err)
		}
		delay = d
	}
	return &file, delay, nil
}

func normalizeKinds(info *NodeInfo) {
	if info.Type == "" {
		if len(info.Children) > 0 {
			info.Type = KindSuite
		} else {
			info.Type = KindTest
		}
	}
	for _, child := range info.Children {
		normalizeKinds(child)
	}
}

// resolveFiles makes relative file locations relative to dir.
func resolveFiles(info *NodeInfo, dir string) {
	if info.File != "" && !filepath.IsAbs(info.File) {
		info.File = filepath.Join(dir, info.File)
	}
	for _, child := range info.Children {
		resolveFiles(child, dir)
	}
}

func (f *Fixture) Load(ctx context.Context) error {
	f.Emit(LoadStarted{})

	data, err := os.ReadFile(f.path)
	if err != nil {
		f.Emit(LoadFinished{ErrorMessage: err.Error()})
		return nil
	}

	file, delay, err := ParseFixture(data)
	if err != nil {
		logging.Warn("Fixture", "Failed to load %s: %v", f.path, err)
		f.Emit(LoadFinished{ErrorMessage: err.Error()})
		return nil
	}

	resolveFiles(file.Tests, filepath.Dir(f.path))
	for _, infos := range file.Dynamic {
		for _, info := range infos {
			resolveFiles(info, filepath.Dir(f.path))
		}
	}

	f.mu.Lock()
	f.file = file
	f.delay = delay
	f.mu.Unlock()

	f.Emit(LoadFinished{Suite: file.Tests})
	return nil
}

func (f *Fixture) Run(ctx context.Context, tests []string) error {
	return f.run(ctx, tests)
}

// Debug behaves like Run; a fixture has nothing to attach a debugger to.
func (f *Fixture) Debug(ctx context.Context, tests []string) error {
	return f.run(ctx, tests)
}

func (f *Fixture) run(ctx context.Context, tests []string) error {
	f.mu.Lock()
	file, delay := f.file, f.delay
	// Cancel any previous run that is still reporting
	if f.cancel != nil {
		f.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.cancel = nil
		f.mu.Unlock()
		cancel()
	}()

	if file == nil {
		return errors.New("fixture not loaded")
	}

	f.Emit(RunStarted{Tests: tests})
	defer f.Emit(RunFinished{})

	for _, id := range tests {
		info := Find(file.Tests, id)
		if info == nil {
			continue
		}
		if err := f.report(ctx, file, info, delay); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fixture) report(ctx context.Context, file *FixtureFile, info *NodeInfo, delay time.Duration) error {
	if ctx.Err() != nil {
		return ErrCanceled
	}

	if info.IsSuite() {
		f.Emit(SuiteEvent{ID: info.ID, State: SuiteRunning})
		for _, child := range info.Children {
			if err := f.report(ctx, file, child, delay); err != nil {
				return err
			}
		}
		for _, extra := range file.Dynamic[info.ID] {
			if err := f.reportDynamic(ctx, file, extra, delay); err != nil {
				return err
			}
		}
		f.Emit(SuiteEvent{ID: info.ID, State: SuiteCompleted})
		return nil
	}

	f.Emit(TestEvent{ID: info.ID, State: TestRunning})
	if err := sleep(ctx, delay); err != nil {
		return err
	}
	f.emitResult(file, info, TestEvent{ID: info.ID})
	return nil
}

// reportDynamic discloses a node the engine has not seen yet by sending its
// full info.
func (f *Fixture) reportDynamic(ctx context.Context, file *FixtureFile, info *NodeInfo, delay time.Duration) error {
	if ctx.Err() != nil {
		return ErrCanceled
	}

	if info.IsSuite() {
		f.Emit(SuiteEvent{Info: info, State: SuiteRunning})
		for _, child := range info.Children {
			if err := f.reportDynamic(ctx, file, child, delay); err != nil {
				return err
			}
		}
		f.Emit(SuiteEvent{Info: info, State: SuiteCompleted})
		return nil
	}

	f.Emit(TestEvent{Info: info, State: TestRunning})
	if err := sleep(ctx, delay); err != nil {
		return err
	}
	f.emitResult(file, info, TestEvent{Info: info})
	return nil
}

func (f *Fixture) emitResult(file *FixtureFile, info *NodeInfo, ev TestEvent) {
	result, ok := file.Results[info.ID]
	switch {
	case !ok:
		ev.State = TestPassed
	case result.State == "":
		ev.State = TestPassed
	default:
		ev.State = result.State
	}
	if info.Skipped {
		ev.State = TestSkipped
	}
	ev.Message = result.Message
	ev.Decorations = result.Decorations
	f.Emit(ev)
}

func (f *Fixture) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ErrCanceled
	case <-timer.C:
		return nil
	}
}
