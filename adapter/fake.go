package adapter

import (
	"context"
	"sync"
)

// RunFunc replaces the default run behavior of a Fake.
type RunFunc func(ctx context.Context, f *Fake, tests []string) error

// Fake is an in-memory adapter. By default Load reports the configured tree
// and Run reports every selected test with the configured result (passed
// when unset). It records every call for assertions.
type Fake struct {
	Emitter

	mu      sync.Mutex
	name    string
	tree    *NodeInfo
	loadErr string
	results map[string]TestState

	runFunc   RunFunc
	debugFunc RunFunc
	loadFunc  func(ctx context.Context, f *Fake) error

	loads   int
	runs    [][]string
	debugs  [][]string
	cancels int
}

// NewFake creates a Fake that reports tree on load.
func NewFake(name string, tree *NodeInfo) *Fake {
	return &Fake{
		name:    name,
		tree:    tree,
		results: make(map[string]TestState),
	}
}

func (f *Fake) Name() string { return f.name }

// SetTree replaces the tree reported by the next load.
func (f *Fake) SetTree(tree *NodeInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tree = tree
	f.loadErr = ""
}

// SetLoadError makes the next loads report no tree and msg.
func (f *Fake) SetLoadError(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tree = nil
	f.loadErr = msg
}

// SetResult sets the state reported for test id by the default run.
func (f *Fake) SetResult(id string, s TestState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[id] = s
}

// OnRun installs a custom run behavior.
func (f *Fake) OnRun(fn RunFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runFunc = fn
}

// OnDebug installs a custom debug behavior.
func (f *Fake) OnDebug(fn RunFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.debugFunc = fn
}

// OnLoad installs a custom load behavior.
func (f *Fake) OnLoad(fn func(ctx context.Context, f *Fake) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadFunc = fn
}

func (f *Fake) Load(ctx context.Context) error {
	f.mu.Lock()
	f.loads++
	fn := f.loadFunc
	tree, loadErr := f.tree, f.loadErr
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, f)
	}

	f.Emit(LoadStarted{})
	f.Emit(LoadFinished{Suite: tree, ErrorMessage: loadErr})
	return nil
}

func (f *Fake) Run(ctx context.Context, tests []string) error {
	f.mu.Lock()
	f.runs = append(f.runs, append([]string(nil), tests...))
	fn := f.runFunc
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, f, tests)
	}
	return f.DefaultRun(ctx, tests)
}

func (f *Fake) Debug(ctx context.Context, tests []string) error {
	f.mu.Lock()
	f.debugs = append(f.debugs, append([]string(nil), tests...))
	fn := f.debugFunc
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, f, tests)
	}
	return f.DefaultRun(ctx, tests)
}

func (f *Fake) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
}

// DefaultRun reports a run of tests against the current tree: suites are
// opened and closed around their children and every test gets its result.
func (f *Fake) DefaultRun(ctx context.Context, tests []string) error {
	f.mu.Lock()
	tree := f.tree
	results := make(map[string]TestState, len(f.results))
	for k, v := range f.results {
		results[k] = v
	}
	f.mu.Unlock()

	f.Emit(RunStarted{Tests: tests})
	defer f.Emit(RunFinished{})

	for _, id := range tests {
		info := Find(tree, id)
		if info == nil {
			continue
		}
		if err := f.report(ctx, info, results); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fake) report(ctx context.Context, info *NodeInfo, results map[string]TestState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if info.IsSuite() {
		f.Emit(SuiteEvent{ID: info.ID, State: SuiteRunning})
		for _, child := range info.Children {
			if err := f.report(ctx, child, results); err != nil {
				return err
			}
		}
		f.Emit(SuiteEvent{ID: info.ID, State: SuiteCompleted})
		return nil
	}

	result, ok := results[info.ID]
	if !ok {
		result = TestPassed
	}
	f.Emit(TestEvent{ID: info.ID, State: TestRunning})
	f.Emit(TestEvent{ID: info.ID, State: result})
	return nil
}

// Loads returns how many times Load was called.
func (f *Fake) Loads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

// Runs returns the id lists of every Run call.
func (f *Fake) Runs() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.runs...)
}

// Debugs returns the id lists of every Debug call.
func (f *Fake) Debugs() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.debugs...)
}

// Cancels returns how many times Cancel was called.
func (f *Fake) Cancels() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels
}

// Find returns the info with id in the tree rooted at root.
func Find(root *NodeInfo, id string) *NodeInfo {
	if root == nil {
		return nil
	}
	if root.ID == id {
		return root
	}
	for _, child := range root.Children {
		if found := Find(child, id); found != nil {
			return found
		}
	}
	return nil
}
