// Package state holds the node state values and the pure functions that
// aggregate a suite's state from the states of its children.
package state

import "strings"

// Current is the live state of a node.
type Current string

const (
	Pending       Current = "pending"
	Scheduled     Current = "scheduled"
	Running       Current = "running"
	RunningFailed Current = "running-failed"
	Passed        Current = "passed"
	Failed        Current = "failed"
	Skipped       Current = "skipped"
	AlwaysSkipped Current = "always-skipped"
	Duplicate     Current = "duplicate"
	Errored       Current = "errored"
)

// Previous is the last settled state of a node. It never holds a transient
// value (scheduled, running, running-failed).
type Previous string

const (
	PrevPending       Previous = "pending"
	PrevPassed        Previous = "passed"
	PrevFailed        Previous = "failed"
	PrevSkipped       Previous = "skipped"
	PrevAlwaysSkipped Previous = "always-skipped"
	PrevDuplicate     Previous = "duplicate"
	PrevErrored       Previous = "errored"
)

// NodeState is the state triple carried by every tree node.
type NodeState struct {
	Current  Current
	Previous Previous
	Autorun  bool
}

// Default returns the state of a freshly discovered node.
func Default(skipped, errored bool) NodeState {
	switch {
	case skipped:
		return NodeState{Current: AlwaysSkipped, Previous: PrevAlwaysSkipped}
	case errored:
		return NodeState{Current: Errored, Previous: PrevErrored}
	default:
		return NodeState{Current: Pending, Previous: PrevPending}
	}
}

// Settled reports whether c is a result that may be recorded as Previous.
func (c Current) Settled() bool {
	switch c {
	case Passed, Failed, Skipped, AlwaysSkipped, Duplicate, Errored:
		return true
	}
	return false
}

// InFlight reports whether c is scheduled or running.
func (c Current) InFlight() bool {
	return c == Scheduled || c == Running
}

// AsPrevious converts a settled Current into its Previous counterpart. The
// second result is false for transient states.
func (c Current) AsPrevious() (Previous, bool) {
	if !c.Settled() {
		return PrevPending, false
	}
	return Previous(c), true
}

func (c Current) isSkipped() bool {
	return strings.HasSuffix(string(c), "skipped")
}

func (c Current) isFailed() bool {
	return strings.HasSuffix(string(c), "failed") || c == Errored
}

func (p Previous) isSkipped() bool {
	return strings.HasSuffix(string(p), "skipped")
}

// ParentCurrent computes a suite's current state from its children. The most
// alarming result wins, but an in-flight child always dominates settled ones.
func ParentCurrent(children []NodeState) Current {
	if len(children) == 0 {
		return Pending
	}

	allSkipped := true
	var anySkipped, anyRunning, anyScheduled, anyRunningFailed, anyFailedFlavor, anyErrored, anyFailed, anyPassed bool
	for _, child := range children {
		c := child.Current
		if c.isSkipped() {
			if c == Skipped {
				anySkipped = true
			}
		} else {
			allSkipped = false
		}
		if c.isFailed() {
			anyFailedFlavor = true
		}
		switch c {
		case Running:
			anyRunning = true
		case Scheduled:
			anyScheduled = true
		case RunningFailed:
			anyRunningFailed = true
		case Errored:
			anyErrored = true
		case Failed:
			anyFailed = true
		case Passed:
			anyPassed = true
		}
	}

	switch {
	case allSkipped:
		if anySkipped {
			return Skipped
		}
		return AlwaysSkipped
	case anyRunning:
		if anyFailedFlavor {
			return RunningFailed
		}
		return Running
	case anyScheduled:
		if anyFailedFlavor {
			return RunningFailed
		}
		if anyPassed {
			return Running
		}
		return Scheduled
	case anyRunningFailed:
		return RunningFailed
	case anyErrored:
		return Errored
	case anyFailed:
		return Failed
	case anyPassed:
		return Passed
	default:
		return Pending
	}
}

// ParentPrevious computes a suite's previous state from its children.
func ParentPrevious(children []NodeState) Previous {
	if len(children) == 0 {
		return PrevPending
	}

	allSkipped := true
	var anySkipped, anyErrored, anyFailed, anyPassed bool
	for _, child := range children {
		p := child.Previous
		if p.isSkipped() {
			if p == PrevSkipped {
				anySkipped = true
			}
		} else {
			allSkipped = false
		}
		switch p {
		case PrevErrored:
			anyErrored = true
		case PrevFailed:
			anyFailed = true
		case PrevPassed:
			anyPassed = true
		}
	}

	switch {
	case allSkipped:
		if anySkipped {
			return PrevSkipped
		}
		return PrevAlwaysSkipped
	case anyErrored:
		return PrevErrored
	case anyFailed:
		return PrevFailed
	case anyPassed:
		return PrevPassed
	default:
		return PrevPending
	}
}

// ParentAutorun is true iff any child has the autorun flag.
func ParentAutorun(children []NodeState) bool {
	for _, child := range children {
		if child.Autorun {
			return true
		}
	}
	return false
}

// Parent combines the three aggregation functions.
func Parent(children []NodeState) NodeState {
	return NodeState{
		Current:  ParentCurrent(children),
		Previous: ParentPrevious(children),
		Autorun:  ParentAutorun(children),
	}
}
