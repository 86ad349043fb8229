package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jesspatton/testexplorer/engine"
	"github.com/jesspatton/testexplorer/state"
	"github.com/jesspatton/testexplorer/tree"
)

const unitFixture = `
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
          file: math_test.go
          line: 3
        - id: sub
          label: subtracts
          file: math_test.go
          line: 10
results:
  sub:
    state: failed
    message: |
      expected 1
      got 2
`

func resetFlags() {
	rootDir = "."
	configPath = ""
	logLevel = ""
	fixtures = nil
	listRun = false
	listChanged = false
	listNoColor = false
}

func executeList(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	t.Cleanup(resetFlags)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"list", "--no-color"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func writeUnitFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unit.fixture.yaml"), []byte(unitFixture), 0644))
	return dir
}

func TestListLoadsDiscoveredFixtures(t *testing.T) {
	dir := writeUnitFixture(t)

	out, err := executeList(t, "--root", dir)
	require.NoError(t, err)

	assert.Contains(t, out, "adds")
	assert.Contains(t, out, "math_test.go:10")
	assert.Contains(t, out, "2 pending")
	assert.NotContains(t, out, "failed")
}

func TestListRun(t *testing.T) {
	dir := writeUnitFixture(t)

	out, err := executeList(t, "--root", dir, "--run")
	require.ErrorIs(t, err, errTestsFailed)
	assert.Equal(t, ExitCodeTestsFailed, getExitCode(err))

	assert.Contains(t, out, "1 passed, 1 failed")
	assert.Contains(t, out, "expected 1 …")
}

func TestListExplicitFixture(t *testing.T) {
	dir := writeUnitFixture(t)
	other := t.TempDir()

	out, err := executeList(t, "--root", other, "--fixture", filepath.Join(dir, "unit.fixture.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "subtracts")
	// Locations outside the root stay absolute
	assert.Contains(t, out, filepath.Join(dir, "math_test.go"))
}

func TestListWithoutFixtures(t *testing.T) {
	_, err := executeList(t, "--root", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fixtures found")
	assert.Equal(t, ExitCodeError, getExitCode(err))
}

func TestListInvalidConfig(t *testing.T) {
	dir := writeUnitFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".testexplorer.yaml"), []byte("onStart: sometimes\n"), 0644))

	_, err := executeList(t, "--root", dir)
	require.Error(t, err)
}

func TestRenderSnapshot(t *testing.T) {
	text.DisableColors()
	root := t.TempDir()

	snaps := []engine.Snapshot{{
		Item:  tree.DisplayItem{Label: "math"},
		Kind:  tree.KindSuite,
		State: state.NodeState{Current: state.Failed},
		Children: []engine.Snapshot{
			{
				Item:    tree.DisplayItem{Label: "adds"},
				Kind:    tree.KindTest,
				State:   state.NodeState{Current: state.Pending, Previous: state.PrevPassed, Autorun: true},
				File:    filepath.Join(root, "math_test.go"),
				Line:    0,
				Located: true,
			},
			{
				Item:  tree.DisplayItem{Label: "subtracts"},
				Kind:  tree.KindTest,
				State: state.NodeState{Current: state.Failed},
				Log:   "boom\ntrace",
			},
		},
	}}

	var out bytes.Buffer
	counts := renderSnapshot(&out, root, snaps)

	assert.Equal(t, map[state.Current]int{state.Pending: 1, state.Failed: 1}, counts)
	assert.Contains(t, out.String(), "pending (was passed) ↻")
	assert.Contains(t, out.String(), "math_test.go:0")
	assert.Contains(t, out.String(), "subtracts")
	assert.Contains(t, out.String(), "boom …")
	assert.Contains(t, out.String(), "1 failed, 1 pending")
}

func TestIsBelow(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "work")
	tests := []struct {
		path string
		want bool
	}{
		{filepath.Join(root, "a.go"), true},
		{filepath.Join(root, "pkg", "b.go"), true},
		{filepath.Join(root, "..", "other", "c.go"), false},
		{filepath.Join(string(filepath.Separator), "workspace", "d.go"), false},
		{filepath.Join(root, "..foo", "e.go"), true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, isBelow(root, tt.path))
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCodeTestsFailed, getExitCode(fmt.Errorf("list: %w", errTestsFailed)))
	assert.Equal(t, ExitCodeError, getExitCode(errors.New("boom")))
}

func TestSummaryAndFirstLine(t *testing.T) {
	assert.Equal(t, "no tests", summary(nil))
	assert.Equal(t, "2 passed, 1 skipped", summary(map[state.Current]int{state.Passed: 2, state.Skipped: 1}))
	assert.Equal(t, "one", firstLine("  one  "))
	assert.Equal(t, "one …", firstLine("one\ntwo"))
}
