package session

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Guard bounds blocking device calls with a deadline.
//
// The device primitives expose no cancellation hook, so a call that misses
// its deadline cannot be stopped. Guard runs each call on its own goroutine
// and stops waiting when the deadline fires; the goroutine is abandoned and
// finishes (or leaks) on its own. The caller must treat the Handle as
// unusable afterwards.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Guard struct {
	abandoned atomic.Int64
	logger    Logger
}

// NewGuard creates a Guard. A nil logger disables logging.
func NewGuard(logger Logger) *Guard {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Guard{logger: logger}
}

// Abandoned returns how many workers have been left running after a timeout.
func (g *Guard) Abandoned() int64 {
	return g.abandoned.Load()
}

// Do runs fn on a worker goroutine and waits at most timeout for it.
//
// Parameters:
//   - ctx: Cancelling ctx also stops the wait and abandons the worker
//   - g: Guard that accounts for abandoned workers
//   - op: Operation name used in the timeout error
//   - timeout: Deadline for the call; must be positive
//   - fn: The blocking call
//
// Returns:
//   - T: fn's result when it finished in time
//   - error: fn's error, an error wrapping ErrTimeout, or ctx.Err()
func Do[T any](ctx context.Context, g *Guard, op string, timeout time.Duration, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}

	// Buffered so an abandoned worker can still deliver and exit.
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{val: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case r := <-done:
		return r.val, r.err
	case <-timer.C:
		g.abandoned.Add(1)
		g.logger.Warn("device call timed out, abandoning worker", "op", op, "timeout", timeout)
		return zero, fmt.Errorf("%w: %s timed out after %s", ErrTimeout, op, timeout)
	case <-ctx.Done():
		g.abandoned.Add(1)
		return zero, ctx.Err()
	}
}
