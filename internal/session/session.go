package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// Default per-command deadlines.
const (
	DefaultTapTimeout     = 5 * time.Second
	DefaultSwipeTimeout   = 5 * time.Second
	DefaultCaptureTimeout = 10 * time.Second
	DefaultShellTimeout   = 5 * time.Second

	// DefaultSwipeDuration is used for swipes submitted without a duration.
	DefaultSwipeDuration = 300 * time.Millisecond
)

// Timeouts holds the deadline applied to each command kind.
type Timeouts struct {
	Tap     time.Duration
	Swipe   time.Duration
	Capture time.Duration
	Shell   time.Duration
}

// DefaultTimeouts returns the built-in deadlines.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Tap:     DefaultTapTimeout,
		Swipe:   DefaultSwipeTimeout,
		Capture: DefaultCaptureTimeout,
		Shell:   DefaultShellTimeout,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Tap <= 0 {
		t.Tap = d.Tap
	}
	if t.Swipe <= 0 {
		t.Swipe = d.Swipe
	}
	if t.Capture <= 0 {
		t.Capture = d.Capture
	}
	if t.Shell <= 0 {
		t.Shell = d.Shell
	}
	return t
}

// Options configures a Session.
type Options struct {
	// Handle is the device link. Required. The session takes ownership but
	// does not close it; the supervisor that opened it does.
	Handle Handle

	// Queue is drained by the session. Required.
	Queue *Queue

	// Width and Height are the screen bounds used to validate coordinates.
	// Zero disables the upper bound check.
	Width, Height int

	Timeouts      Timeouts
	SwipeDuration time.Duration

	// Guard accounts for abandoned calls. A nil Guard gets a private one.
	Guard *Guard

	Logger   Logger
	Recorder Recorder
}

// Session drains the queue against one device handle, one command at a time.
//
// Thread Safety:
//   - Run must be called once. Accessors are safe for concurrent use.
type Session struct {
	handle        Handle
	queue         *Queue
	width, height int
	timeouts      Timeouts
	swipeDuration time.Duration
	guard         *Guard
	logger        Logger
	recorder      Recorder

	started  atomic.Bool
	poisoned atomic.Bool
	executed atomic.Int64
	done     chan struct{}
}

// New creates a session. It does not start draining until Run is called.
func New(opts Options) (*Session, error) {
	if opts.Handle == nil {
		return nil, errors.New("session: handle is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("session: queue is required")
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Recorder == nil {
		opts.Recorder = noopRecorder{}
	}
	if opts.Guard == nil {
		opts.Guard = NewGuard(opts.Logger)
	}
	if opts.SwipeDuration <= 0 {
		opts.SwipeDuration = DefaultSwipeDuration
	}

	return &Session{
		handle:        opts.Handle,
		queue:         opts.Queue,
		width:         opts.Width,
		height:        opts.Height,
		timeouts:      opts.Timeouts.withDefaults(),
		swipeDuration: opts.SwipeDuration,
		guard:         opts.Guard,
		logger:        opts.Logger,
		recorder:      opts.Recorder,
		done:          make(chan struct{}),
	}, nil
}

// Run drains the queue until the link is lost, ctx is done, or the queue is
// shut down.
//
// Returns:
//   - error wrapping ErrDisconnected when a call was classified as a
//     disconnect or timed out; every queued command has been failed
//   - ctx.Err() when ctx was cancelled
//   - ErrCancelled when the queue was shut down
//   - ErrSessionClosed when Run was already called
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrSessionClosed
	}
	defer close(s.done)

	s.logger.Debug("session drain loop started", "width", s.width, "height", s.height)

	for {
		req, ok := s.queue.next(ctx)
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			return ErrCancelled
		}

		if err := s.execute(ctx, req); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.poisoned.Store(true)
			failed := s.queue.FailPending(err)
			s.logger.Warn("session ended by disconnect",
				"error", err,
				"failed_pending", failed,
				"executed", s.executed.Load(),
			)
			return err
		}
	}
}

// execute runs one command and fulfils its reply. It returns a non-nil
// error only when the session must end.
func (s *Session) execute(ctx context.Context, req *request) error {
	cmd := req.cmd
	start := time.Now()

	if err := s.validate(cmd); err != nil {
		req.complete(Response{}, err)
		s.record(cmd, err, 0, start)
		s.logger.Debug("command rejected", "command", cmd.String(), "error", err)
		return nil
	}

	resp, err := s.call(ctx, cmd)
	elapsed := time.Since(start)
	resp.Duration = elapsed
	s.executed.Add(1)

	if err != nil && ctx.Err() != nil {
		cerr := fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		req.complete(Response{}, cerr)
		s.record(cmd, cerr, elapsed, start)
		return cerr
	}

	s.record(cmd, err, elapsed, start)

	switch Classify(err) {
	case ClassNone:
		req.complete(resp, nil)
		s.logger.Debug("command executed", "command", cmd.String(), "duration", elapsed)
		return nil
	case ClassDisconnect:
		derr := fmt.Errorf("%w: %w", ErrDisconnected, err)
		req.complete(Response{}, derr)
		return derr
	default:
		req.complete(Response{}, err)
		s.logger.Warn("command failed", "command", cmd.String(), "error", err)
		return nil
	}
}

func (s *Session) record(cmd Command, err error, d time.Duration, at time.Time) {
	s.recorder.RecordCommand(Record{
		Command:  cmd,
		Class:    Classify(err),
		Err:      err,
		Duration: d,
		At:       at,
	})
}

// validate rejects commands that must never reach the transport.
func (s *Session) validate(cmd Command) error {
	switch c := cmd.(type) {
	case Tap:
		return s.checkPoint("tap", c.X, c.Y)
	case Swipe:
		if err := s.checkPoint("swipe start", c.X1, c.Y1); err != nil {
			return err
		}
		if err := s.checkPoint("swipe end", c.X2, c.Y2); err != nil {
			return err
		}
		if c.Duration < 0 {
			return fmt.Errorf("%w: negative swipe duration %s", ErrInvalidInput, c.Duration)
		}
	case ShellExec:
		if len(c.Args) == 0 {
			return fmt.Errorf("%w: empty shell command", ErrInvalidInput)
		}
	case CaptureFrame:
	default:
		return fmt.Errorf("%w: unsupported command %T", ErrInvalidInput, cmd)
	}
	return nil
}

func (s *Session) checkPoint(what string, x, y int) error {
	if x < 0 || y < 0 {
		return fmt.Errorf("%w: %s (%d,%d) out of bounds", ErrInvalidInput, what, x, y)
	}
	if s.width > 0 && x > s.width {
		return fmt.Errorf("%w: %s x=%d out of bounds for width %d", ErrInvalidInput, what, x, s.width)
	}
	if s.height > 0 && y > s.height {
		return fmt.Errorf("%w: %s y=%d out of bounds for height %d", ErrInvalidInput, what, y, s.height)
	}
	return nil
}

// call performs the guarded transport call for cmd.
func (s *Session) call(ctx context.Context, cmd Command) (Response, error) {
	switch c := cmd.(type) {
	case Tap:
		return Do(ctx, s.guard, "tap", s.timeouts.Tap, func() (Response, error) {
			return Response{}, s.handle.Tap(c.X, c.Y)
		})
	case Swipe:
		d := c.Duration
		if d == 0 {
			d = s.swipeDuration
		}
		return Do(ctx, s.guard, "swipe", s.timeouts.Swipe, func() (Response, error) {
			return Response{}, s.handle.Swipe(c.X1, c.Y1, c.X2, c.Y2, d)
		})
	case CaptureFrame:
		return Do(ctx, s.guard, "capture", s.timeouts.Capture, func() (Response, error) {
			frame, err := s.handle.CaptureFrame()
			return Response{Frame: frame}, err
		})
	case ShellExec:
		return Do(ctx, s.guard, "shell", s.timeouts.Shell, func() (Response, error) {
			out, err := s.handle.Shell(c.Args...)
			return Response{Output: out}, err
		})
	}
	return Response{}, fmt.Errorf("%w: unsupported command %T", ErrInvalidInput, cmd)
}

// Poisoned reports whether the session ended because the link is unusable.
func (s *Session) Poisoned() bool {
	return s.poisoned.Load()
}

// Executed returns how many commands reached the transport.
func (s *Session) Executed() int64 {
	return s.executed.Load()
}

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// ScreenSize returns the bounds used for coordinate validation.
func (s *Session) ScreenSize() (width, height int) {
	return s.width, s.height
}
