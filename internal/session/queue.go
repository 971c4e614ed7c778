package session

import (
	"context"
	"sync"
	"time"
)

// DefaultQueueCapacity is the queue size used when none is configured.
const DefaultQueueCapacity = 100

// request is one queued command and its single-use reply slot.
type request struct {
	cmd        Command
	enqueuedAt time.Time
	reply      chan reply
	once       sync.Once
}

type reply struct {
	resp Response
	err  error
}

// complete fulfils the reply slot. Only the first call has an effect.
func (r *request) complete(resp Response, err error) {
	r.once.Do(func() {
		r.reply <- reply{resp: resp, err: err}
	})
}

// Queue is a bounded FIFO of commands waiting for the device.
//
// Submit blocks while the queue is full, then blocks again until the command
// has executed. The queue outlives individual sessions: commands submitted
// while the device is disconnected wait for the next session.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Queue struct {
	pending   chan *request
	closed    chan struct{}
	closeOnce sync.Once
}

// NewQueue creates a queue holding at most capacity pending commands.
// A capacity below 1 uses DefaultQueueCapacity.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		pending: make(chan *request, capacity),
		closed:  make(chan struct{}),
	}
}

// Submit enqueues cmd and waits for its result.
//
// Parameters:
//   - ctx: Bounds the wait; on cancellation ctx.Err() is returned. A command
//     already taken by the session still runs
//   - cmd: The command to execute
//
// Returns:
//   - Response: The command's payload
//   - error: The command's error, ErrCancelled after Shutdown, or ctx.Err().
//     A command that completed wins over a concurrent Shutdown
func (q *Queue) Submit(ctx context.Context, cmd Command) (Response, error) {
	select {
	case <-q.closed:
		return Response{}, ErrCancelled
	default:
	}

	req := &request{
		cmd:        cmd,
		enqueuedAt: time.Now(),
		reply:      make(chan reply, 1),
	}

	select {
	case q.pending <- req:
	case <-q.closed:
		return Response{}, ErrCancelled
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	select {
	case r := <-req.reply:
		return r.resp, r.err
	case <-q.closed:
		// complete is a no-op if the command already finished, so the slot
		// holds either its real reply or ErrCancelled.
		req.complete(Response{}, ErrCancelled)
		r := <-req.reply
		return r.resp, r.err
	case <-ctx.Done():
		select {
		case r := <-req.reply:
			return r.resp, r.err
		default:
		}
		return Response{}, ctx.Err()
	}
}

// next blocks until a command is available, the queue is shut down, or
// ctx is done. The second result is false in the latter two cases.
func (q *Queue) next(ctx context.Context) (*request, bool) {
	select {
	case <-q.closed:
		return nil, false
	default:
	}

	select {
	case req := <-q.pending:
		return req, true
	case <-q.closed:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// FailPending completes every command currently waiting in the queue with
// err and returns how many were failed.
func (q *Queue) FailPending(err error) int {
	n := 0
	for {
		select {
		case req := <-q.pending:
			req.complete(Response{}, err)
			n++
		default:
			return n
		}
	}
}

// Shutdown closes the queue. Every waiter, queued or in flight, returns
// ErrCancelled, and later Submit calls fail immediately. Safe to call more
// than once.
func (q *Queue) Shutdown() {
	q.closeOnce.Do(func() {
		close(q.closed)
		q.FailPending(ErrCancelled)
	})
}

// Closed reports whether Shutdown has been called.
func (q *Queue) Closed() bool {
	select {
	case <-q.closed:
		return true
	default:
		return false
	}
}

// Len returns the number of commands waiting to execute.
func (q *Queue) Len() int {
	return len(q.pending)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.pending)
}
