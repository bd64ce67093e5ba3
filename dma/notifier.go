package dma

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// A CompletionNotifier wakes retirers blocked on device progress. One
// notifier serves the whole ring: the wake is a broadcast, since several
// retirers may be blocked at once, and the interrupt path does nothing but
// signal it.
//
// The notifier is either idle (nobody waiting, broadcasts are cheap no-ops
// for the waiters that come later re-check their condition first) or
// waiting (one or more goroutines parked on the current generation
// channel). Broadcast closes the generation and installs a fresh one.
type CompletionNotifier struct {
	mu  sync.Mutex
	gen chan struct{}
}

// NewCompletionNotifier creates an idle notifier.
func NewCompletionNotifier() *CompletionNotifier {
	return &CompletionNotifier{
		gen: make(chan struct{}),
	}
}

// Broadcast wakes every goroutine blocked in Wait. It is safe to call from
// the device's interrupt context: it does not block and touches no ring
// state.
func (n *CompletionNotifier) Broadcast() {
	n.mu.Lock()
	close(n.gen)
	n.gen = make(chan struct{})
	n.mu.Unlock()
}

func (n *CompletionNotifier) generation() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.gen
}

// Wait blocks until progressed reports true, the budget elapses
// (ErrTimeout), or ctx is cancelled (ErrInterrupted). The condition is
// re-checked after arming each generation so a broadcast between the check
// and the park cannot be lost.
func (n *CompletionNotifier) Wait(
	ctx context.Context,
	budget time.Duration,
	progressed func() bool,
) error {
	timer := time.NewTimer(budget)
	defer timer.Stop()

	for {
		if progressed() {
			return nil
		}

		gen := n.generation()

		if progressed() {
			return nil
		}

		select {
		case <-gen:
		case <-timer.C:
			// A broadcast can race the timer; progress that is already
			// visible must win over the timeout.
			if progressed() {
				return nil
			}
			return fmt.Errorf("%w after %v", ErrTimeout, budget)
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
		}
	}
}
