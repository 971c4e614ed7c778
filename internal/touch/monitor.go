package touch

import (
	"sync"
	"time"
)

// DefaultTimeout is how long automation stays suspended after a touch.
const DefaultTimeout = 30 * time.Second

// State is a snapshot of touch activity.
type State struct {
	Active      bool          `json:"active"`
	LastEventAt time.Time     `json:"last_event_at,omitempty"`
	Timeout     time.Duration `json:"timeout"`
	Remaining   time.Duration `json:"remaining"`
}

// Monitor tracks whether a human is interacting with the device.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Monitor struct {
	timeout time.Duration
	now     func() time.Time

	mu          sync.Mutex
	active      bool
	lastEventAt time.Time
	timer       *time.Timer
	gen         uint64
	events      uint64
	observers   []func(State)

	// deliverMu orders observer calls; delivered is the newest generation
	// handed to observers.
	deliverMu sync.Mutex
	delivered uint64
}

// NewMonitor creates an inactive monitor. A non-positive timeout uses
// DefaultTimeout.
func NewMonitor(timeout time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Monitor{
		timeout: timeout,
		now:     time.Now,
	}
}

// OnChange registers fn to be called whenever the active flag flips.
// fn runs outside the monitor lock and must not block or call back into
// the monitor. Changes arrive in the order they happened; a change that
// lost a race to a newer one is not delivered.
func (m *Monitor) OnChange(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// RecordActivity marks the device as in use and restarts the countdown.
func (m *Monitor) RecordActivity() {
	m.mu.Lock()
	wasActive := m.active
	m.active = true
	m.lastEventAt = m.now()
	m.events++
	m.gen++
	gen := m.gen
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.timeout, func() { m.expire(gen) })
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if !wasActive {
		m.notify(gen, snap)
	}
}

// Clear drops the active flag immediately.
func (m *Monitor) Clear() {
	m.mu.Lock()
	wasActive := m.active
	m.active = false
	m.gen++
	gen := m.gen
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if wasActive {
		m.notify(gen, snap)
	}
}

// expire is the timer callback. It only acts if no newer touch or Clear
// happened since the timer was armed.
func (m *Monitor) expire(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || !m.active {
		m.mu.Unlock()
		return
	}
	m.active = false
	m.timer = nil
	m.gen++
	gen = m.gen
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(gen, snap)
}

// IsActive reports whether automation should stay suspended.
func (m *Monitor) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Remaining returns the time left before the device is considered idle.
// The second result is false when no touch is active.
func (m *Monitor) Remaining() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return 0, false
	}
	return m.remainingLocked(), true
}

// Snapshot returns the current state.
func (m *Monitor) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Events returns how many touch events have been recorded.
func (m *Monitor) Events() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events
}

// Timeout returns the configured inactivity timeout.
func (m *Monitor) Timeout() time.Duration {
	return m.timeout
}

func (m *Monitor) remainingLocked() time.Duration {
	rem := m.timeout - m.now().Sub(m.lastEventAt)
	if rem < 0 {
		return 0
	}
	return rem
}

func (m *Monitor) snapshotLocked() State {
	s := State{
		Active:      m.active,
		LastEventAt: m.lastEventAt,
		Timeout:     m.timeout,
	}
	if m.active {
		s.Remaining = m.remainingLocked()
	}
	return s
}

func (m *Monitor) notify(gen uint64, s State) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()
	if gen < m.delivered {
		return
	}
	m.delivered = gen

	m.mu.Lock()
	observers := make([]func(State), len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	for _, fn := range observers {
		fn(s)
	}
}
