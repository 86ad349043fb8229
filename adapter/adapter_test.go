package adapter

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func record(a Adapter) *recorder {
	r := &recorder{}
	a.Subscribe(func(ev Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, ev)
	})
	return r
}

func (r *recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// testStates returns the last non-running state reported per test id.
func (r *recorder) testStates() map[string]TestState {
	out := make(map[string]TestState)
	for _, ev := range r.Events() {
		if te, ok := ev.(TestEvent); ok && te.State != TestRunning {
			out[te.NodeID()] = te.State
		}
	}
	return out
}

func TestEmitterOrderAndUnsubscribe(t *testing.T) {
	var e Emitter
	var got []string
	e.Subscribe(func(Event) { got = append(got, "a") })
	unsubscribe := e.Subscribe(func(Event) { got = append(got, "b") })
	e.Subscribe(func(Event) { got = append(got, "c") })

	e.Emit(LoadStarted{})
	unsubscribe()
	e.Emit(LoadStarted{})

	assert.Equal(t, []string{"a", "b", "c", "a", "c"}, got)
}

func TestNodeInfoIsSuite(t *testing.T) {
	assert.True(t, Suite("s", "S").IsSuite())
	assert.False(t, Test("t", "T").IsSuite())
	assert.True(t, (&NodeInfo{Children: []*NodeInfo{Test("t", "T")}}).IsSuite())

	info := Test("t", "T").At("a_test.go", 4)
	require.NotNil(t, info.Line)
	assert.Equal(t, 4, *info.Line)
	assert.Equal(t, "a_test.go", info.File)
}

func TestEventNodeID(t *testing.T) {
	assert.Equal(t, "x", SuiteEvent{ID: "x"}.NodeID())
	assert.Equal(t, "y", SuiteEvent{ID: "x", Info: Suite("y", "Y")}.NodeID())
	assert.Equal(t, "z", TestEvent{Info: Test("z", "Z")}.NodeID())
}

func TestFakeDefaultRun(t *testing.T) {
	f := NewFake("go", Suite("root", "Root",
		Suite("s", "S", Test("a", "A"), Test("b", "B")),
		Test("c", "C"),
	))
	f.SetResult("b", TestFailed)
	r := record(f)

	require.NoError(t, f.Run(context.Background(), []string{"s", "missing"}))

	events := r.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, RunStarted{Tests: []string{"s", "missing"}}, events[0])
	assert.Equal(t, SuiteEvent{ID: "s", State: SuiteRunning}, events[1])
	assert.Equal(t, SuiteEvent{ID: "s", State: SuiteCompleted}, events[len(events)-2])
	assert.Equal(t, RunFinished{}, events[len(events)-1])
	assert.Equal(t, map[string]TestState{"a": TestPassed, "b": TestFailed}, r.testStates())
	assert.Equal(t, [][]string{{"s", "missing"}}, f.Runs())
}

func TestFakeLoad(t *testing.T) {
	f := NewFake("go", Suite("root", "Root"))
	r := record(f)

	require.NoError(t, f.Load(context.Background()))
	f.SetLoadError("boom")
	require.NoError(t, f.Load(context.Background()))

	events := r.Events()
	require.Len(t, events, 4)
	assert.Equal(t, "root", events[1].(LoadFinished).Suite.ID)
	assert.Nil(t, events[3].(LoadFinished).Suite)
	assert.Equal(t, "boom", events[3].(LoadFinished).ErrorMessage)
	assert.Equal(t, 2, f.Loads())
}

func TestFind(t *testing.T) {
	root := Suite("root", "Root", Suite("s", "S", Test("a", "A")))
	assert.Equal(t, "A", Find(root, "a").Label)
	assert.Nil(t, Find(root, "nope"))
	assert.Nil(t, Find(nil, "a"))
}

const fixtureDoc = `
name: demo
tests:
  id: root
  label: Root
  children:
    - id: math
      label: math
      file: math_test.go
      line: 1
      children:
        - id: add
          label: adds
          line: 3
        - id: sub
          label: subtracts
        - id: todo
          label: later
          skipped: true
results:
  sub:
    state: failed
    message: "expected 1, got 2"
    decorations:
      - line: 12
        message: "expected 1"
dynamic:
  math:
    - id: gen
      label: generated
`

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "demo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseFixture(t *testing.T) {
	file, delay, err := ParseFixture([]byte(fixtureDoc))
	require.NoError(t, err)

	assert.Equal(t, time.Duration(0), delay)
	assert.Equal(t, "demo", file.Name)
	assert.Equal(t, KindSuite, file.Tests.Type)
	math := file.Tests.Children[0]
	assert.Equal(t, KindSuite, math.Type)
	assert.Equal(t, KindTest, math.Children[0].Type)
	assert.Equal(t, KindTest, file.Dynamic["math"][0].Type)
	assert.Equal(t, TestFailed, file.Results["sub"].State)
	assert.Equal(t, 12, file.Results["sub"].Decorations[0].Line)
}

func TestParseFixtureErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no tests", "name: empty\n"},
		{"bad yaml", "tests: [\n"},
		{"bad delay", "delay: soon\ntests:\n  id: root\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseFixture([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestFixtureName(t *testing.T) {
	f := NewFixture(filepath.Join("testdata", "unit.yaml"))
	assert.Equal(t, "unit", f.Name())
	assert.Equal(t, "api", NewFixture("api.fixture.yml").Name())

	path := writeFixture(t, fixtureDoc)
	f = NewFixture(path)
	r := record(f)
	require.NoError(t, f.Load(context.Background()))
	assert.Equal(t, "demo", f.Name())

	// Locations are resolved against the fixture's directory
	suite := r.Events()[1].(LoadFinished).Suite
	assert.Equal(t, filepath.Join(filepath.Dir(path), "math_test.go"), suite.Children[0].File)
	assert.Empty(t, suite.Children[0].Children[1].File)
}

func TestFixtureLoadError(t *testing.T) {
	f := NewFixture(writeFixture(t, "name: broken\n"))
	r := record(f)

	require.NoError(t, f.Load(context.Background()))

	events := r.Events()
	require.Len(t, events, 2)
	assert.Equal(t, LoadStarted{}, events[0])
	finished := events[1].(LoadFinished)
	assert.Nil(t, finished.Suite)
	assert.Contains(t, finished.ErrorMessage, "no tests")

	missing := NewFixture(filepath.Join(t.TempDir(), "missing.yaml"))
	r = record(missing)
	require.NoError(t, missing.Load(context.Background()))
	assert.NotEmpty(t, r.Events()[1].(LoadFinished).ErrorMessage)
}

func TestFixtureRun(t *testing.T) {
	f := NewFixture(writeFixture(t, fixtureDoc))
	require.NoError(t, f.Load(context.Background()))
	r := record(f)

	require.NoError(t, f.Run(context.Background(), []string{"root"}))

	states := r.testStates()
	assert.Equal(t, map[string]TestState{
		"add":  TestPassed,
		"sub":  TestFailed,
		"todo": TestSkipped,
		"gen":  TestPassed,
	}, states)

	var failed TestEvent
	var dynamic []Event
	for _, ev := range r.Events() {
		if te, ok := ev.(TestEvent); ok && te.NodeID() == "sub" && te.State == TestFailed {
			failed = te
		}
		if te, ok := ev.(TestEvent); ok && te.Info != nil {
			dynamic = append(dynamic, te)
		}
	}
	assert.Equal(t, "expected 1, got 2", failed.Message)
	require.Len(t, failed.Decorations, 1)
	assert.Len(t, dynamic, 2, "dynamic tests carry their info")

	events := r.Events()
	assert.Equal(t, RunFinished{}, events[len(events)-1])
}

func TestFixtureRunBeforeLoad(t *testing.T) {
	f := NewFixture(writeFixture(t, fixtureDoc))
	assert.Error(t, f.Run(context.Background(), []string{"root"}))
}

func TestFixtureCancel(t *testing.T) {
	f := NewFixture(writeFixture(t, "delay: 1h\n"+fixtureDoc))
	require.NoError(t, f.Load(context.Background()))
	r := record(f)

	errc := make(chan error, 1)
	go func() { errc <- f.Run(context.Background(), []string{"add"}) }()

	require.Eventually(t, func() bool {
		for _, ev := range r.Events() {
			if te, ok := ev.(TestEvent); ok && te.State == TestRunning {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	f.Cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrCanceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after Cancel")
	}
	events := r.Events()
	assert.Equal(t, RunFinished{}, events[len(events)-1])
}
