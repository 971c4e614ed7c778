package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/tapline/internal/session"
)

// Kind is what a timed event does when it fires.
type Kind string

// Event kinds.
const (
	KindTap       Kind = "tap"
	KindSwipe     Kind = "swipe"
	KindCapture   Kind = "capture"
	KindCountdown Kind = "countdown_tick"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindTap, KindSwipe, KindCapture, KindCountdown:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, s)
}

// RunState is the automation run state.
type RunState string

// Run states.
const (
	RunIdle    RunState = "idle"
	RunRunning RunState = "running"
	RunPaused  RunState = "paused"
)

// TimedEvent is a recurring action.
type TimedEvent struct {
	ID       string        `json:"id"`
	Kind     Kind          `json:"kind"`
	Interval time.Duration `json:"interval"`
	Enabled  bool          `json:"enabled"`

	// LastFired is zero until the event has fired once.
	LastFired time.Time `json:"last_fired,omitempty"`
	Fires     int       `json:"fires"`

	// Target for tap and swipe events.
	X        int           `json:"x,omitempty"`
	Y        int           `json:"y,omitempty"`
	X2       int           `json:"x2,omitempty"`
	Y2       int           `json:"y2,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`

	// anchor is when the current interval started: the last fire, or the
	// moment the event was added, enabled or automation started.
	anchor   time.Time
	seq      uint64
	inFlight bool
}

// Spec defines a new timed event.
type Spec struct {
	ID       string        `json:"id"`
	Kind     Kind          `json:"kind"`
	Interval time.Duration `json:"interval"`
	Enabled  bool          `json:"enabled"`
	X        int           `json:"x,omitempty"`
	Y        int           `json:"y,omitempty"`
	X2       int           `json:"x2,omitempty"`
	Y2       int           `json:"y2,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Validate checks the event definition.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidEvent)
	}
	if _, err := ParseKind(string(s.Kind)); err != nil {
		return err
	}
	if s.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidEvent)
	}
	if s.Duration < 0 {
		return fmt.Errorf("%w: duration must not be negative", ErrInvalidEvent)
	}
	return nil
}

// Command returns the device command for this event, or nil for events that
// do not touch the device.
func (e *TimedEvent) Command() session.Command {
	switch e.Kind {
	case KindTap:
		return session.Tap{X: e.X, Y: e.Y}
	case KindSwipe:
		return session.Swipe{X1: e.X, Y1: e.Y, X2: e.X2, Y2: e.Y2, Duration: e.Duration}
	case KindCapture:
		return session.CaptureFrame{}
	default:
		return nil
	}
}

// Countdown is the time until an event next fires.
type Countdown struct {
	ID        string        `json:"id"`
	Kind      Kind          `json:"kind"`
	Enabled   bool          `json:"enabled"`
	Remaining time.Duration `json:"remaining"`
	Due       bool          `json:"due"`
}

// FireResult describes one firing.
type FireResult struct {
	EventID  string           `json:"event_id"`
	Kind     Kind             `json:"kind"`
	At       time.Time        `json:"at"`
	Manual   bool             `json:"manual"`
	Response session.Response `json:"-"`
	Err      error            `json:"-"`
	Class    session.Class    `json:"-"`
}
