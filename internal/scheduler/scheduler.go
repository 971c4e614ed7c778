package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/tapline/internal/session"
)

// DefaultTick is the scheduler evaluation interval.
const DefaultTick = 100 * time.Millisecond

// Submitter executes device commands. *session.Queue satisfies it.
type Submitter interface {
	Submit(ctx context.Context, cmd session.Command) (session.Response, error)
}

// ConnectionGate reports whether the device is connected.
type ConnectionGate interface {
	Connected() bool
}

// TouchGate reports whether a human is using the device.
type TouchGate interface {
	IsActive() bool
}

// Logger is the logging interface used by the scheduler.
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

// Options configures a Scheduler.
type Options struct {
	Submitter  Submitter
	Connection ConnectionGate
	Touch      TouchGate
	Tick       time.Duration
	Logger     Logger
}

// Stats counts scheduler activity.
type Stats struct {
	Fired    int64 `json:"fired"`
	Deferred int64 `json:"deferred"`
	Failed   int64 `json:"failed"`
}

// Scheduler owns the timed events and the automation run state.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Observers are called without the lock held and must not block.
type Scheduler struct {
	submitter  Submitter
	connection ConnectionGate
	touch      TouchGate
	tick       time.Duration
	logger     Logger

	mu       sync.RWMutex
	events   map[string]*TimedEvent
	seq      uint64
	runState RunState
	stats    Stats

	onFire     []func(FireResult)
	onRunState []func(RunState)
}

// New creates an idle scheduler with no events.
func New(opts Options) (*Scheduler, error) {
	if opts.Submitter == nil {
		return nil, errors.New("scheduler: submitter is required")
	}
	if opts.Connection == nil {
		return nil, errors.New("scheduler: connection gate is required")
	}
	if opts.Touch == nil {
		opts.Touch = neverTouched{}
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Scheduler{
		submitter:  opts.Submitter,
		connection: opts.Connection,
		touch:      opts.Touch,
		tick:       opts.Tick,
		logger:     opts.Logger,
		events:     make(map[string]*TimedEvent),
		runState:   RunIdle,
	}, nil
}

type neverTouched struct{}

func (neverTouched) IsActive() bool { return false }

// OnFire registers fn to receive every firing result.
func (s *Scheduler) OnFire(fn func(FireResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFire = append(s.onFire, fn)
}

// OnRunState registers fn to receive run state changes.
func (s *Scheduler) OnRunState(fn func(RunState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRunState = append(s.onRunState, fn)
}

// Add registers a new timed event. Its first interval starts now.
func (s *Scheduler) Add(spec Spec) (TimedEvent, error) {
	if err := spec.Validate(); err != nil {
		return TimedEvent{}, err
	}
	kind, _ := ParseKind(string(spec.Kind))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[spec.ID]; ok {
		return TimedEvent{}, fmt.Errorf("%w: %s", ErrEventExists, spec.ID)
	}
	s.seq++
	ev := &TimedEvent{
		ID:       spec.ID,
		Kind:     kind,
		Interval: spec.Interval,
		Enabled:  spec.Enabled,
		X:        spec.X,
		Y:        spec.Y,
		X2:       spec.X2,
		Y2:       spec.Y2,
		Duration: spec.Duration,
		anchor:   time.Now(),
		seq:      s.seq,
	}
	s.events[ev.ID] = ev
	s.logger.Info("timed event added", "id", ev.ID, "kind", ev.Kind, "interval", ev.Interval)
	return *ev, nil
}

// Remove deletes a timed event.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	delete(s.events, id)
	s.logger.Info("timed event removed", "id", id)
	return nil
}

// Enable turns an event on. Its interval restarts from now.
func (s *Scheduler) Enable(id string) error {
	return s.update(id, func(ev *TimedEvent) error {
		if !ev.Enabled {
			ev.Enabled = true
			ev.anchor = time.Now()
		}
		return nil
	})
}

// Disable turns an event off. It keeps its configuration.
func (s *Scheduler) Disable(id string) error {
	return s.update(id, func(ev *TimedEvent) error {
		ev.Enabled = false
		return nil
	})
}

// AdjustInterval changes an event's interval. Time already elapsed in the
// current interval counts toward the new one.
func (s *Scheduler) AdjustInterval(id string, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidEvent)
	}
	return s.update(id, func(ev *TimedEvent) error {
		ev.Interval = interval
		return nil
	})
}

func (s *Scheduler) update(id string, fn func(*TimedEvent) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return fn(ev)
}

// Get returns a copy of one event.
func (s *Scheduler) Get(id string) (TimedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return TimedEvent{}, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return *ev, nil
}

// List returns copies of all events in insertion order.
func (s *Scheduler) List() []TimedEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked(func(*TimedEvent) bool { return true })
}

func (s *Scheduler) sortedLocked(keep func(*TimedEvent) bool) []TimedEvent {
	out := make([]TimedEvent, 0, len(s.events))
	for _, ev := range s.events {
		if keep(ev) {
			out = append(out, *ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Countdowns returns the time until each event next fires, in insertion
// order.
func (s *Scheduler) Countdowns(now time.Time) []Countdown {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.sortedLocked(func(*TimedEvent) bool { return true })
	out := make([]Countdown, 0, len(events))
	for _, ev := range events {
		rem := ev.anchor.Add(ev.Interval).Sub(now)
		if rem < 0 {
			rem = 0
		}
		out = append(out, Countdown{
			ID:        ev.ID,
			Kind:      ev.Kind,
			Enabled:   ev.Enabled,
			Remaining: rem,
			Due:       ev.Enabled && rem == 0,
		})
	}
	return out
}

// RunState returns the automation run state.
func (s *Scheduler) RunState() RunState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runState
}

// Stats returns activity counters.
func (s *Scheduler) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Start begins automation. From idle every interval restarts now; from
// paused the current intervals are kept.
func (s *Scheduler) Start() {
	s.mu.Lock()
	prev := s.runState
	if prev == RunIdle {
		now := time.Now()
		for _, ev := range s.events {
			ev.anchor = now
		}
	}
	s.runState = RunRunning
	s.mu.Unlock()

	if prev != RunRunning {
		s.logger.Info("automation started", "from", prev)
		s.notifyRunState(RunRunning)
	}
}

// Stop ends automation.
func (s *Scheduler) Stop() {
	s.setRunState(RunIdle)
}

// Pause suspends automation without resetting intervals.
func (s *Scheduler) Pause() error {
	s.mu.Lock()
	if s.runState != RunRunning {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.runState = RunPaused
	s.mu.Unlock()

	s.logger.Info("automation paused")
	s.notifyRunState(RunPaused)
	return nil
}

// Resume continues paused automation. Events that came due while paused
// fire on the next tick.
func (s *Scheduler) Resume() error {
	s.mu.Lock()
	if s.runState != RunPaused {
		s.mu.Unlock()
		return ErrNotPaused
	}
	s.runState = RunRunning
	s.mu.Unlock()

	s.logger.Info("automation resumed")
	s.notifyRunState(RunRunning)
	return nil
}

func (s *Scheduler) setRunState(rs RunState) {
	s.mu.Lock()
	prev := s.runState
	s.runState = rs
	s.mu.Unlock()

	if prev != rs {
		s.logger.Info("automation state changed", "from", prev, "to", rs)
		s.notifyRunState(rs)
	}
}

// Run evaluates due events every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Tick fires every due event, in insertion order, and returns how many
// fired. It stops early when the gate closes or the device disconnects;
// events not reached stay due.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	if s.runState != RunRunning {
		s.mu.Unlock()
		return 0
	}
	due := s.sortedLocked(func(ev *TimedEvent) bool {
		return ev.Enabled && !ev.inFlight && !now.Before(ev.anchor.Add(ev.Interval))
	})
	s.mu.Unlock()

	fired := 0
	for _, ev := range due {
		if ctx.Err() != nil || s.RunState() != RunRunning {
			return fired
		}
		if reason := s.gateClosed(); reason != "" {
			s.mu.Lock()
			s.stats.Deferred++
			s.mu.Unlock()
			s.logger.Debug("timed event deferred", "id", ev.ID, "reason", reason)
			return fired
		}

		res, ok := s.fire(ctx, ev.ID, now, false)
		if !ok {
			continue
		}
		fired++
		if res.Class == session.ClassDisconnect || res.Class == session.ClassCancelled {
			return fired
		}
	}
	return fired
}

func (s *Scheduler) gateClosed() string {
	if !s.connection.Connected() {
		return "disconnected"
	}
	if s.touch.IsActive() {
		return "touch active"
	}
	return ""
}

// Trigger fires one event immediately, regardless of run state, interval
// or touch activity. The device must be connected.
func (s *Scheduler) Trigger(ctx context.Context, id string) (FireResult, error) {
	if _, err := s.Get(id); err != nil {
		return FireResult{}, err
	}
	if !s.connection.Connected() {
		return FireResult{}, ErrNotConnected
	}
	res, ok := s.fire(ctx, id, time.Now(), true)
	if !ok {
		return FireResult{}, fmt.Errorf("%w: %s", ErrEventBusy, id)
	}
	return res, res.Err
}

// fire submits one event. ok is false when the event vanished or is
// already in flight.
func (s *Scheduler) fire(ctx context.Context, id string, now time.Time, manual bool) (FireResult, bool) {
	s.mu.Lock()
	ev, exists := s.events[id]
	if !exists || ev.inFlight {
		s.mu.Unlock()
		return FireResult{}, false
	}
	ev.inFlight = true
	cmd := ev.Command()
	kind := ev.Kind
	s.mu.Unlock()

	res := FireResult{EventID: id, Kind: kind, At: now, Manual: manual}
	if cmd != nil {
		res.Response, res.Err = s.submitter.Submit(ctx, cmd)
		res.Class = session.Classify(res.Err)
	}

	// A cancelled submission never reached the device; the event stays due.
	cancelled := res.Class == session.ClassCancelled || (res.Err != nil && ctx.Err() != nil)

	s.mu.Lock()
	if ev, ok := s.events[id]; ok {
		ev.inFlight = false
		if !cancelled {
			ev.anchor = now
			ev.LastFired = now
			ev.Fires++
		}
	}
	if res.Err != nil {
		s.stats.Failed++
	} else {
		s.stats.Fired++
	}
	observers := make([]func(FireResult), len(s.onFire))
	copy(observers, s.onFire)
	s.mu.Unlock()

	switch {
	case res.Err == nil:
		s.logger.Debug("timed event fired", "id", id, "kind", kind, "manual", manual)
	case res.Class == session.ClassDisconnect:
		s.logger.Warn("timed event hit a disconnect", "id", id, "error", res.Err)
	default:
		s.logger.Warn("timed event failed", "id", id, "class", res.Class.String(), "error", res.Err)
	}

	for _, fn := range observers {
		fn(res)
	}
	return res, true
}

func (s *Scheduler) notifyRunState(rs RunState) {
	s.mu.RLock()
	observers := make([]func(RunState), len(s.onRunState))
	copy(observers, s.onRunState)
	s.mu.RUnlock()

	for _, fn := range observers {
		fn(rs)
	}
}
