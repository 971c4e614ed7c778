package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/tapline/internal/session"
	"github.com/nerrad567/tapline/internal/supervisor"
)

// DefaultBuffer is the number of entries a Recorder holds before dropping.
const DefaultBuffer = 256

// writeTimeout bounds a single history insert.
const writeTimeout = 5 * time.Second

// Logger is the logging interface used by the recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder writes history asynchronously. It implements session.Recorder
// and observes supervisor snapshots.
//
// Thread Safety:
//   - RecordCommand and ObserveConnection never block and are safe for
//     concurrent use.
type Recorder struct {
	repo   Repository
	logger Logger
	source string

	entries chan any
	dropped atomic.Int64
	written atomic.Int64

	mu        sync.Mutex
	lastState supervisor.State
	closed    bool
	done      chan struct{}
}

// NewRecorder creates a recorder. Source labels every command entry.
func NewRecorder(repo Repository, source string, buffer int, logger Logger) *Recorder {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = noopLogger{}
	}
	if source == "" {
		source = "session"
	}
	return &Recorder{
		repo:      repo,
		logger:    logger,
		source:    source,
		entries:   make(chan any, buffer),
		lastState: supervisor.StateDisconnected,
		done:      make(chan struct{}),
	}
}

// RecordCommand queues a command entry.
func (r *Recorder) RecordCommand(rec session.Record) {
	e := &CommandEntry{
		Kind:       string(rec.Command.Kind()),
		Source:     r.source,
		Outcome:    "ok",
		Class:      rec.Class.String(),
		DurationMS: rec.Duration.Milliseconds(),
		Details:    map[string]any{"command": rec.Command.String()},
		CreatedAt:  rec.At,
	}
	if rec.Err != nil {
		e.Outcome = "error"
		e.Error = rec.Err.Error()
	}
	r.enqueue(e)
}

// ObserveConnection queues a connection entry when the state changes.
// Observer refreshes with an unchanged state are ignored.
func (r *Recorder) ObserveConnection(s supervisor.Snapshot) {
	r.mu.Lock()
	from := r.lastState
	if from == s.State {
		r.mu.Unlock()
		return
	}
	r.lastState = s.State
	r.mu.Unlock()

	e := &ConnectionEntry{
		From:        string(from),
		To:          string(s.State),
		Attempt:     s.Backoff.Attempt,
		NextDelayMS: s.Backoff.NextDelay.Milliseconds(),
		Error:       s.LastError,
		CreatedAt:   s.Since,
	}
	if s.Device != nil {
		e.Serial = s.Device.Serial
	}
	r.enqueue(e)
}

func (r *Recorder) enqueue(e any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.entries <- e:
	default:
		if r.dropped.Add(1) == 1 {
			r.logger.Warn("history buffer full, dropping entries")
		}
	}
}

// Run writes queued entries until ctx is done or Close is called, then
// drains what is left.
func (r *Recorder) Run(ctx context.Context) error {
	defer close(r.done)
	for {
		select {
		case e, ok := <-r.entries:
			if !ok {
				return nil
			}
			r.write(e)
		case <-ctx.Done():
			r.Close()
			for e := range r.entries {
				r.write(e)
			}
			return nil
		}
	}
}

// Close stops accepting entries. Run drains the buffer and returns.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.entries)
}

// Done is closed when Run has returned.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

// Stats returns how many entries were written and dropped.
func (r *Recorder) Stats() (written, dropped int64) {
	return r.written.Load(), r.dropped.Load()
}

func (r *Recorder) write(e any) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	switch v := e.(type) {
	case *CommandEntry:
		err = r.repo.CreateCommand(ctx, v)
	case *ConnectionEntry:
		err = r.repo.CreateConnection(ctx, v)
	}
	if err != nil {
		r.logger.Error("writing history entry", "error", err)
		return
	}
	r.written.Add(1)
}
