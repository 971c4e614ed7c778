package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/tapline/internal/device"
	"github.com/nerrad567/tapline/internal/session"
)

// State is a connection state.
type State string

// Connection states.
const (
	StateDisconnected   State = "disconnected"
	StateConnecting     State = "connecting"
	StateAuthenticating State = "authenticating"
	StateConnected      State = "connected"
)

// Defaults applied when Options leave a field zero.
const (
	defaultTick            = time.Second
	defaultDiscoverTimeout = 5 * time.Second
	defaultConnectTimeout  = 30 * time.Second
	defaultCloseTimeout    = 5 * time.Second
)

// Connector finds and opens the device. Both calls may block; the supervisor
// bounds them with a deadline.
type Connector interface {
	// Discover returns the device to connect to, or ErrNoDevice.
	Discover(ctx context.Context) (device.Info, error)

	// Authenticate performs the handshake and returns an owned handle plus
	// the device info completed with its screen size.
	Authenticate(ctx context.Context, info device.Info) (session.Handle, device.Info, error)
}

// Snapshot is a read-only view of the supervisor.
type Snapshot struct {
	State     State        `json:"state"`
	Device    *device.Info `json:"device,omitempty"`
	Backoff   BackoffState `json:"backoff"`
	RetryAt   time.Time    `json:"retry_at,omitempty"`
	LastError string       `json:"last_error,omitempty"`
	Since     time.Time    `json:"since"`
}

// Connected reports whether commands are being drained.
func (s Snapshot) Connected() bool {
	return s.State == StateConnected
}

// StatusText renders the snapshot as a one-line connection status.
func (s Snapshot) StatusText(now time.Time) string {
	switch s.State {
	case StateConnected:
		if s.Device != nil {
			return fmt.Sprintf("Connected to %s, screen %s", s.Device.Label(), s.Device.Screen)
		}
		return "Connected"
	case StateConnecting:
		return "Searching for device..."
	case StateAuthenticating:
		if s.Device != nil {
			return fmt.Sprintf("Authenticating with %s...", s.Device.Label())
		}
		return "Authenticating..."
	default:
		if s.RetryAt.IsZero() {
			return "Disconnected"
		}
		wait := s.RetryAt.Sub(now).Round(time.Second)
		if wait < 0 {
			wait = 0
		}
		if s.Backoff.Attempt == 0 {
			return fmt.Sprintf("Disconnected, reconnecting in %s", wait)
		}
		return fmt.Sprintf("Disconnected, reconnecting in %s (attempt %d)", wait, s.Backoff.Attempt)
	}
}

// Options configures a Supervisor.
type Options struct {
	Connector Connector
	Queue     *session.Queue

	// Backoff is the reconnect schedule. Empty uses DefaultSchedule.
	Backoff []time.Duration

	// Tick is how often observers are refreshed while a reconnect is pending.
	Tick time.Duration

	DiscoverTimeout time.Duration
	ConnectTimeout  time.Duration

	// Session is the template for every session. Handle, Queue, Width and
	// Height are filled in per connection.
	Session session.Options

	Logger session.Logger
}

// Supervisor owns the connection state machine.
//
// Thread Safety:
//   - Run must only be active once at a time.
//   - State, OnChange and Reconnect are safe for concurrent use.
type Supervisor struct {
	connector       Connector
	queue           *session.Queue
	backoff         *Backoff
	tick            time.Duration
	discoverTimeout time.Duration
	connectTimeout  time.Duration
	sessionOpts     session.Options
	guard           *session.Guard
	logger          session.Logger

	mu        sync.RWMutex
	snap      Snapshot
	observers []func(Snapshot)

	reconnect chan struct{}
	running   atomic.Bool
	sessions  atomic.Int64
}

// New creates a supervisor in the disconnected state.
func New(opts Options) (*Supervisor, error) {
	if opts.Connector == nil {
		return nil, errors.New("supervisor: connector is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("supervisor: queue is required")
	}
	if opts.Logger == nil {
		opts.Logger = opts.Session.Logger
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Tick <= 0 {
		opts.Tick = defaultTick
	}
	if opts.DiscoverTimeout <= 0 {
		opts.DiscoverTimeout = defaultDiscoverTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}

	guard := opts.Session.Guard
	if guard == nil {
		guard = session.NewGuard(opts.Logger)
		opts.Session.Guard = guard
	}

	return &Supervisor{
		connector:       opts.Connector,
		queue:           opts.Queue,
		backoff:         NewBackoff(opts.Backoff),
		tick:            opts.Tick,
		discoverTimeout: opts.DiscoverTimeout,
		connectTimeout:  opts.ConnectTimeout,
		sessionOpts:     opts.Session,
		guard:           guard,
		logger:          opts.Logger,
		snap:            Snapshot{State: StateDisconnected, Since: time.Now()},
		reconnect:       make(chan struct{}, 1),
	}, nil
}

// OnChange registers fn to receive every snapshot change. fn is called from
// the supervisor goroutine and must not block.
func (s *Supervisor) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// State returns the current snapshot.
func (s *Supervisor) State() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Connected reports whether the device is connected.
func (s *Supervisor) Connected() bool {
	return s.State().Connected()
}

// Sessions returns how many sessions have been started.
func (s *Supervisor) Sessions() int64 {
	return s.sessions.Load()
}

// Reconnect asks the loop to skip the remaining backoff wait.
func (s *Supervisor) Reconnect() {
	select {
	case s.reconnect <- struct{}{}:
	default:
	}
}

// Run drives the state machine until ctx is done or the queue is shut down.
// It returns nil on a clean stop.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.logger.Info("connection supervisor started")
	defer s.logger.Info("connection supervisor stopped")

	for {
		if ctx.Err() != nil || s.queue.Closed() {
			s.setDisconnected(nil, time.Time{})
			return nil
		}

		handle, info, err := s.establish(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.setDisconnected(nil, time.Time{})
				return nil
			}
			delay := s.backoff.Fail()
			s.logger.Warn("device connection failed",
				"error", err,
				"attempt", s.backoff.State().Attempt,
				"retry_in", delay,
			)
			s.setDisconnected(err, time.Now().Add(delay))
			if !s.wait(ctx, delay) {
				s.setDisconnected(nil, time.Time{})
				return nil
			}
			continue
		}

		runErr := s.runSession(ctx, handle, info)
		if ctx.Err() != nil || errors.Is(runErr, session.ErrCancelled) {
			s.setDisconnected(nil, time.Time{})
			return nil
		}

		// A lost link is not a connection failure; the attempt count stays
		// at zero so the next failure waits the first delay.
		delay := s.backoff.First()
		s.logger.Warn("device disconnected",
			"serial", info.Serial,
			"error", runErr,
			"retry_in", delay,
		)
		s.setDisconnected(runErr, time.Now().Add(delay))
		if !s.wait(ctx, delay) {
			s.setDisconnected(nil, time.Time{})
			return nil
		}
	}
}

// establish runs discovery and handshake, moving through connecting and
// authenticating.
func (s *Supervisor) establish(ctx context.Context) (session.Handle, device.Info, error) {
	s.setState(StateConnecting, nil, "")

	info, err := session.Do(ctx, s.guard, "discover", s.discoverTimeout, func() (device.Info, error) {
		return s.connector.Discover(ctx)
	})
	if err != nil {
		return nil, device.Info{}, fmt.Errorf("discovery: %w", err)
	}

	s.setState(StateAuthenticating, &info, "")

	type opened struct {
		handle session.Handle
		info   device.Info
	}
	res, err := session.Do(ctx, s.guard, "authenticate", s.connectTimeout, func() (opened, error) {
		h, i, err := s.connector.Authenticate(ctx, info)
		return opened{handle: h, info: i}, err
	})
	if err != nil {
		return nil, device.Info{}, fmt.Errorf("%w: %s: %w", ErrHandshakeFailed, info.Serial, err)
	}
	return res.handle, res.info, nil
}

// runSession builds a session around handle, publishes connected and blocks
// until the session ends. The handle is closed afterwards.
func (s *Supervisor) runSession(ctx context.Context, handle session.Handle, info device.Info) error {
	defer s.closeHandle(handle)

	opts := s.sessionOpts
	opts.Handle = handle
	opts.Queue = s.queue
	opts.Width = info.Screen.Width
	opts.Height = info.Screen.Height

	sess, err := session.New(opts)
	if err != nil {
		return err
	}

	s.backoff.Reset()
	s.sessions.Add(1)
	s.setState(StateConnected, &info, "")
	s.logger.Info("device connected",
		"serial", info.Serial,
		"model", info.Model,
		"screen", info.Screen.String(),
	)

	return sess.Run(ctx)
}

// closeHandle closes in the background; a wedged link may never return.
func (s *Supervisor) closeHandle(h session.Handle) {
	go func() {
		_, err := session.Do(context.Background(), s.guard, "close", defaultCloseTimeout, func() (struct{}, error) {
			return struct{}{}, h.Close()
		})
		if err != nil {
			s.logger.Debug("closing device handle", "error", err)
		}
	}()
}

// wait sleeps for delay, refreshing observers every tick. It returns false
// when ctx is done.
func (s *Supervisor) wait(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-timer.C:
			return true
		case <-s.reconnect:
			s.logger.Info("reconnect requested")
			return true
		case <-ticker.C:
			s.notify(s.State())
		case <-ctx.Done():
			return false
		}
	}
}

func (s *Supervisor) setDisconnected(err error, retryAt time.Time) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.mu.Lock()
	s.snap = Snapshot{
		State:     StateDisconnected,
		Backoff:   s.backoff.State(),
		RetryAt:   retryAt,
		LastError: msg,
		Since:     time.Now(),
	}
	snap := s.snap
	s.mu.Unlock()
	s.notify(snap)
}

func (s *Supervisor) setState(state State, info *device.Info, lastErr string) {
	s.mu.Lock()
	var dev *device.Info
	if info != nil {
		d := *info
		dev = &d
	}
	s.snap = Snapshot{
		State:     state,
		Device:    dev,
		Backoff:   s.backoff.State(),
		LastError: lastErr,
		Since:     time.Now(),
	}
	snap := s.snap
	s.mu.Unlock()
	s.notify(snap)
}

func (s *Supervisor) notify(snap Snapshot) {
	s.mu.RLock()
	observers := make([]func(Snapshot), len(s.observers))
	copy(observers, s.observers)
	s.mu.RUnlock()

	for _, fn := range observers {
		fn(snap)
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
