// Package debouncer batches node change notifications.
package debouncer

import (
	"time"

	"github.com/jesspatton/testexplorer/logging"
	"github.com/jesspatton/testexplorer/tree"
)

// DefaultDelay is the debounce window used when none is configured.
const DefaultDelay = 200 * time.Millisecond

// Executor runs functions on the engine's single goroutine.
type Executor interface {
	Post(fn func())
}

// Sink receives the batched notifications.
type Sink interface {
	TreeReplaced()
	// NodeChanged reports a changed subtree; nil means the whole tree.
	NodeChanged(n *tree.Node)
	DecorationsChanged(file string)
}

// Debouncer owns the debounce timer. Its methods must be called from the
// executor; the timer posts its fire back to it.
type Debouncer struct {
	exec  Executor
	delay time.Duration
	roots func() []*tree.Node
	sink  Sink

	timer *time.Timer
	// gen invalidates fires of timers that were stopped too late.
	gen uint64

	flushes int
}

// New creates a debouncer flushing the trees returned by roots into sink.
func New(exec Executor, delay time.Duration, roots func() []*tree.Node, sink Sink) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{exec: exec, delay: delay, roots: roots, sink: sink}
}

// ScheduleNotify flushes now when immediate is set, or arms the timer if it
// is not already pending.
func (d *Debouncer) ScheduleNotify(immediate bool) {
	if immediate {
		d.stopTimer()
		d.Flush()
		return
	}
	if d.timer != nil {
		return
	}

	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() {
		d.exec.Post(func() {
			if gen != d.gen {
				return
			}
			d.timer = nil
			d.gen++
			d.Flush()
		})
	})
}

// NotifyStructuralChange drops any pending batch and reports the whole tree
// as replaced.
func (d *Debouncer) NotifyStructuralChange() {
	d.stopTimer()
	for _, root := range d.roots() {
		root.RecalcState()
		root.ClearSendNeeded()
	}
	d.sink.TreeReplaced()
}

// Flush recalculates every tree and reports the topmost changed nodes.
func (d *Debouncer) Flush() {
	d.flushes++

	var changed []*tree.Node
	for _, root := range d.roots() {
		root.RecalcState()
		changed = append(changed, root.Changed()...)
	}
	if len(changed) == 0 {
		return
	}

	files := make(map[string]struct{})
	var order []string
	wholeTree := false
	for _, n := range changed {
		if n.Parent() == nil {
			wholeTree = true
		}
		for _, file := range n.Files() {
			if _, ok := files[file]; !ok {
				files[file] = struct{}{}
				order = append(order, file)
			}
		}
	}

	logging.Debug("Debouncer", "Flushing %d changed node(s), %d file(s)", len(changed), len(order))
	if wholeTree {
		d.sink.NodeChanged(nil)
	} else {
		for _, n := range changed {
			d.sink.NodeChanged(n)
		}
	}
	for _, file := range order {
		d.sink.DecorationsChanged(file)
	}
}

// Flushes counts the flushes performed so far.
func (d *Debouncer) Flushes() int { return d.flushes }

// Pending reports whether the timer is armed.
func (d *Debouncer) Pending() bool { return d.timer != nil }

// Stop cancels a pending timer.
func (d *Debouncer) Stop() {
	d.stopTimer()
}

func (d *Debouncer) stopTimer() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}
