package engine

import (
	"context"
	"sync"
)

// Loop runs posted functions one at a time on a single goroutine. Every
// mutation of collections, the scheduler and the debouncer goes through it.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	stopped bool

	wake chan struct{}
	done chan struct{}
}

// NewLoop creates a loop. Call Run to start processing.
func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post enqueues fn. It never blocks and is safe to call from any goroutine,
// including the loop itself. Functions posted after the loop stopped are
// dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs fn on the loop and waits for it to return. It reports false when
// the loop stopped before fn could run. Do must not be called from the loop.
func (l *Loop) Do(fn func()) bool {
	ran := make(chan struct{})
	l.Post(func() {
		defer close(ran)
		fn()
	})

	select {
	case <-ran:
		return true
	case <-l.done:
		return false
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Run processes posted functions until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
		close(l.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			fn()

			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}
