package replica

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State of a readiness wait
type State int

const (
	Pending  State = 0
	Ready    State = 1
	TimedOut State = 2
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case TimedOut:
		return "timed out"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Readiness waits for a condition with a deadline. It leaves Pending exactly
// once, for Ready or TimedOut.
type Readiness struct {
	cond     func() bool
	timeout  time.Duration
	interval time.Duration

	mu    sync.Mutex
	state State
	done  chan struct{}
	once  sync.Once
}

// NewReadiness polls cond every interval for at most timeout
func NewReadiness(cond func() bool, timeout, interval time.Duration) *Readiness {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &Readiness{
		cond:     cond,
		timeout:  timeout,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start runs the poll task in its own goroutine
func (r *Readiness) Start(ctx context.Context) {
	r.once.Do(func() { go r.poll(ctx) })
}

func (r *Readiness) poll(ctx context.Context) {
	if r.cond() {
		r.finish(Ready)
		return
	}
	deadline := time.NewTimer(r.timeout)
	defer deadline.Stop()
	tick := time.NewTicker(r.interval)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			if r.cond() {
				r.finish(Ready)
				return
			}
		case <-deadline.C:
			if r.cond() {
				r.finish(Ready)
			} else {
				r.finish(TimedOut)
			}
			return
		case <-ctx.Done():
			r.finish(TimedOut)
			return
		}
	}
}

// Signal re-checks the condition right away, for callers that know it may
// have just become true
func (r *Readiness) Signal() {
	if r.cond() {
		r.finish(Ready)
	}
}

func (r *Readiness) finish(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Pending {
		return
	}
	r.state = s
	close(r.done)
}

// State returns the current state
func (r *Readiness) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Done is closed when the state leaves Pending
func (r *Readiness) Done() <-chan struct{} {
	return r.done
}

// Wait starts the task if needed and blocks until it settles
func (r *Readiness) Wait(ctx context.Context) State {
	r.Start(ctx)
	select {
	case <-r.done:
	case <-ctx.Done():
		r.finish(TimedOut)
	}
	return r.State()
}
