// Package adapter defines the contract between the engine and the test
// adapters that discover and execute tests for one project.
package adapter

import (
	"context"
	"errors"
)

// ErrCanceled is returned by adapters whose run stopped because Cancel was
// called.
var ErrCanceled = errors.New("test run canceled")

// Kind discriminates suite and test infos.
type Kind string

const (
	KindSuite Kind = "suite"
	KindTest  Kind = "test"
)

// NodeInfo is an adapter-supplied description of a suite or a test. IDs are
// adapter-local and may collide.
type NodeInfo struct {
	Type        Kind        `yaml:"type" json:"type"`
	ID          string      `yaml:"id" json:"id"`
	Label       string      `yaml:"label" json:"label"`
	File        string      `yaml:"file,omitempty" json:"file,omitempty"`
	Line        *int        `yaml:"line,omitempty" json:"line,omitempty"`
	Children    []*NodeInfo `yaml:"children,omitempty" json:"children,omitempty"`
	Skipped     bool        `yaml:"skipped,omitempty" json:"skipped,omitempty"`
	Errored     bool        `yaml:"errored,omitempty" json:"errored,omitempty"`
	Debuggable  bool        `yaml:"debuggable,omitempty" json:"debuggable,omitempty"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Tooltip     string      `yaml:"tooltip,omitempty" json:"tooltip,omitempty"`
}

// IsSuite reports whether the info describes a suite. An empty type with
// children is treated as a suite.
func (i *NodeInfo) IsSuite() bool {
	return i.Type == KindSuite || (i.Type == "" && len(i.Children) > 0)
}

// Suite is a convenience constructor for tests and fixtures.
func Suite(id, label string, children ...*NodeInfo) *NodeInfo {
	return &NodeInfo{Type: KindSuite, ID: id, Label: label, Children: children}
}

// Test is a convenience constructor for tests and fixtures.
func Test(id, label string) *NodeInfo {
	return &NodeInfo{Type: KindTest, ID: id, Label: label}
}

// At sets the file location and returns the info.
func (i *NodeInfo) At(file string, line int) *NodeInfo {
	i.File = file
	i.Line = &line
	return i
}

// Decoration is a line annotation attached to a test by a run event.
type Decoration struct {
	Line    int    `yaml:"line" json:"line"`
	Message string `yaml:"message" json:"message"`
	Hover   string `yaml:"hover,omitempty" json:"hover,omitempty"`
}

// SuiteState is the state carried by a suite event.
type SuiteState string

const (
	SuiteRunning   SuiteState = "running"
	SuiteCompleted SuiteState = "completed"
)

// TestState is the state carried by a test event.
type TestState string

const (
	TestRunning TestState = "running"
	TestPassed  TestState = "passed"
	TestFailed  TestState = "failed"
	TestSkipped TestState = "skipped"
	TestErrored TestState = "errored"
)

// Event is one of the concrete event types below.
type Event interface {
	event()
}

// LoadStarted marks the beginning of a discovery.
type LoadStarted struct{}

// LoadFinished carries the discovered root suite, or nil and an error
// message when discovery failed.
type LoadFinished struct {
	Suite        *NodeInfo
	ErrorMessage string
}

// RunStarted lists the ids the adapter is about to run.
type RunStarted struct {
	Tests []string
}

// SuiteEvent reports a suite starting or completing. Info is set when the
// suite may be unknown to the engine (dynamic discovery); otherwise ID alone
// identifies it.
type SuiteEvent struct {
	ID          string
	Info        *NodeInfo
	State       SuiteState
	Description *string
	Tooltip     *string
	File        *string
	Line        *int
}

// TestEvent reports a test state change.
type TestEvent struct {
	ID          string
	Info        *NodeInfo
	State       TestState
	Message     string
	Decorations []Decoration
	Description *string
	Tooltip     *string
	File        *string
	Line        *int
}

// RunFinished marks the end of a run.
type RunFinished struct{}

// RetireRequested tells the engine that results for Tests (all when nil) are
// stale.
type RetireRequested struct {
	Tests []string
}

// AutorunRequested is the legacy form of an unscoped retire.
type AutorunRequested struct{}

// ReloadRequested asks the engine to schedule a reload of this adapter.
type ReloadRequested struct{}

func (LoadStarted) event()      {}
func (LoadFinished) event()     {}
func (RunStarted) event()       {}
func (SuiteEvent) event()       {}
func (TestEvent) event()        {}
func (RunFinished) event()      {}
func (RetireRequested) event()  {}
func (AutorunRequested) event() {}
func (ReloadRequested) event()  {}

// NodeID returns the id an event refers to, preferring Info.
func (e SuiteEvent) NodeID() string {
	if e.Info != nil {
		return e.Info.ID
	}
	return e.ID
}

// NodeID returns the id an event refers to, preferring Info.
func (e TestEvent) NodeID() string {
	if e.Info != nil {
		return e.Info.ID
	}
	return e.ID
}

// Handler receives adapter events. Calls for one adapter must be made in
// emission order.
type Handler func(Event)

// Adapter discovers and runs tests. Load, Run and Debug block until the
// operation has finished; progress is reported through the subscribed
// handlers, which must be called before the blocking call returns.
type Adapter interface {
	Name() string
	Load(ctx context.Context) error
	Run(ctx context.Context, tests []string) error
	Debug(ctx context.Context, tests []string) error
	Cancel()
	Subscribe(h Handler) (unsubscribe func())
}
