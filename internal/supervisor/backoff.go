package supervisor

import "time"

// DefaultSchedule is the reconnect delay sequence. The last entry repeats.
var DefaultSchedule = []time.Duration{
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	30 * time.Second,
}

// BackoffState is a read-only view of the reconnect backoff.
type BackoffState struct {
	// Attempt counts consecutive failures since the last success.
	Attempt int `json:"attempt"`

	// NextDelay is the wait armed by the most recent failure.
	NextDelay time.Duration `json:"next_delay"`
}

// Backoff yields the reconnect delay schedule.
//
// Thread Safety:
//   - Not safe for concurrent use; owned by the supervisor loop.
type Backoff struct {
	schedule []time.Duration
	state    BackoffState
}

// NewBackoff creates a Backoff over schedule. An empty schedule uses
// DefaultSchedule.
func NewBackoff(schedule []time.Duration) *Backoff {
	if len(schedule) == 0 {
		schedule = DefaultSchedule
	}
	s := make([]time.Duration, len(schedule))
	copy(s, schedule)
	return &Backoff{schedule: s}
}

// Fail records a failure and returns the delay before the next attempt.
func (b *Backoff) Fail() time.Duration {
	idx := b.state.Attempt
	if idx >= len(b.schedule) {
		idx = len(b.schedule) - 1
	}
	b.state.Attempt++
	b.state.NextDelay = b.schedule[idx]
	return b.state.NextDelay
}

// First returns the opening delay of the schedule without counting a
// failure. It is armed after a connected session ends.
func (b *Backoff) First() time.Duration {
	b.state.NextDelay = b.schedule[0]
	return b.state.NextDelay
}

// Reset clears the failure count after a successful connect.
func (b *Backoff) Reset() {
	b.state = BackoffState{}
}

// State returns the current backoff state.
func (b *Backoff) State() BackoffState {
	return b.state
}
