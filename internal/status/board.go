package status

import (
	"sync"
	"time"

	"github.com/nerrad567/tapline/internal/device"
	"github.com/nerrad567/tapline/internal/scheduler"
	"github.com/nerrad567/tapline/internal/supervisor"
	"github.com/nerrad567/tapline/internal/touch"
)

// HistoryLimit bounds the status message history.
const HistoryLimit = 50

// Section names one part of the snapshot.
type Section string

// Snapshot sections.
const (
	SectionConnection Section = "connection"
	SectionAutomation Section = "automation"
	SectionTouch      Section = "touch"
	SectionTimers     Section = "timers"
	SectionStatus     Section = "status"
	SectionScreenshot Section = "screenshot"
)

// Message is one status line.
type Message struct {
	Text     string    `json:"text"`
	IsResult bool      `json:"is_result"`
	At       time.Time `json:"at"`
}

// Connection is the connection part of the snapshot.
type Connection struct {
	State   supervisor.State `json:"state"`
	Text    string           `json:"text"`
	Device  *device.Info     `json:"device,omitempty"`
	Attempt int              `json:"attempt,omitempty"`
	RetryAt time.Time        `json:"retry_at,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// equal compares by value: the device by its fields and RetryAt by instant.
func (c Connection) equal(o Connection) bool {
	if c.State != o.State || c.Text != o.Text || c.Attempt != o.Attempt || c.Error != o.Error {
		return false
	}
	if !c.RetryAt.Equal(o.RetryAt) {
		return false
	}
	switch {
	case c.Device == nil || o.Device == nil:
		return c.Device == o.Device
	default:
		return *c.Device == *o.Device
	}
}

// Touch is the touch pause part of the snapshot.
type Touch struct {
	PausedByTouch bool          `json:"paused_by_touch"`
	Remaining     time.Duration `json:"remaining"`
}

// Screenshot describes the latest frame. The bytes are served separately.
type Screenshot struct {
	Count int64     `json:"count"`
	Size  int       `json:"size"`
	At    time.Time `json:"at,omitempty"`
}

// Snapshot is the complete observable state.
type Snapshot struct {
	Connection Connection            `json:"connection"`
	RunState   scheduler.RunState    `json:"run_state"`
	Touch      Touch                 `json:"touch"`
	Timers     []scheduler.Countdown `json:"timers"`
	Status     Message               `json:"status"`
	Screenshot Screenshot            `json:"screenshot"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// Update is one change pushed to sinks. Frame is set only for
// SectionScreenshot.
type Update struct {
	Section  Section
	Snapshot Snapshot
	Frame    []byte
}

// Sink receives board updates. Publish must not block.
type Sink interface {
	Publish(u Update)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Update)

// Publish calls f(u).
func (f SinkFunc) Publish(u Update) { f(u) }

// Board is the authoritative observable state.
type Board struct {
	mu      sync.RWMutex
	snap    Snapshot
	frame   []byte
	history []Message
	sinks   []Sink
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{
		snap: Snapshot{
			Connection: Connection{State: supervisor.StateDisconnected, Text: "Disconnected"},
			RunState:   scheduler.RunIdle,
			Timers:     []scheduler.Countdown{},
			UpdatedAt:  time.Now(),
		},
	}
}

// AddSink registers a sink.
func (b *Board) AddSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Snapshot returns a copy of the current state.
func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.copyLocked()
}

// Frame returns the latest screenshot bytes, or nil after a disconnect.
func (b *Board) Frame() ([]byte, time.Time) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.frame, b.snap.Screenshot.At
}

// History returns status messages, oldest first.
func (b *Board) History() []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Message, len(b.history))
	copy(out, b.history)
	return out
}

// SetConnection records a supervisor snapshot. Leaving the connected state
// clears the device identity and the displayed frame.
func (b *Board) SetConnection(s supervisor.Snapshot, now time.Time) {
	conn := Connection{
		State:   s.State,
		Text:    s.StatusText(now),
		Device:  s.Device,
		Attempt: s.Backoff.Attempt,
		RetryAt: s.RetryAt,
		Error:   s.LastError,
	}

	b.mu.Lock()
	if b.snap.Connection.equal(conn) {
		b.mu.Unlock()
		return
	}
	wasConnected := b.snap.Connection.State == supervisor.StateConnected
	b.snap.Connection = conn
	clearFrame := s.State != supervisor.StateConnected && b.frame != nil
	if clearFrame {
		b.frame = nil
		b.snap.Screenshot.Size = 0
	}
	b.mu.Unlock()

	b.publish(SectionConnection, nil)
	if clearFrame {
		b.publish(SectionScreenshot, nil)
	}
	if wasConnected && s.State == supervisor.StateDisconnected {
		b.SetStatus("Device disconnected, reconnecting", false)
	}
}

// SetRunState records the automation run state.
func (b *Board) SetRunState(rs scheduler.RunState) {
	b.mu.Lock()
	if b.snap.RunState == rs {
		b.mu.Unlock()
		return
	}
	b.snap.RunState = rs
	b.mu.Unlock()
	b.publish(SectionAutomation, nil)
}

// SetTouch records the touch pause state.
func (b *Board) SetTouch(s touch.State) {
	t := Touch{PausedByTouch: s.Active, Remaining: s.Remaining.Round(time.Second)}

	b.mu.Lock()
	if b.snap.Touch == t {
		b.mu.Unlock()
		return
	}
	b.snap.Touch = t
	b.mu.Unlock()
	b.publish(SectionTouch, nil)
}

// SetTimers records per-event countdowns.
func (b *Board) SetTimers(cds []scheduler.Countdown) {
	timers := make([]scheduler.Countdown, len(cds))
	for i, c := range cds {
		c.Remaining = c.Remaining.Round(time.Second)
		timers[i] = c
	}

	b.mu.Lock()
	if equalTimers(b.snap.Timers, timers) {
		b.mu.Unlock()
		return
	}
	b.snap.Timers = timers
	b.mu.Unlock()
	b.publish(SectionTimers, nil)
}

// SetStatus records a status message and appends it to the history.
func (b *Board) SetStatus(text string, isResult bool) {
	msg := Message{Text: text, IsResult: isResult, At: time.Now()}

	b.mu.Lock()
	b.snap.Status = msg
	b.history = append(b.history, msg)
	if len(b.history) > HistoryLimit {
		b.history = append([]Message(nil), b.history[len(b.history)-HistoryLimit:]...)
	}
	b.mu.Unlock()
	b.publish(SectionStatus, nil)
}

// SetFrame stores a new screenshot and bumps the counter.
func (b *Board) SetFrame(frame []byte, at time.Time) {
	b.mu.Lock()
	b.frame = frame
	b.snap.Screenshot.Count++
	b.snap.Screenshot.Size = len(frame)
	b.snap.Screenshot.At = at
	b.mu.Unlock()
	b.publish(SectionScreenshot, frame)
}

func (b *Board) copyLocked() Snapshot {
	s := b.snap
	s.Timers = make([]scheduler.Countdown, len(b.snap.Timers))
	copy(s.Timers, b.snap.Timers)
	if b.snap.Connection.Device != nil {
		d := *b.snap.Connection.Device
		s.Connection.Device = &d
	}
	return s
}

func (b *Board) publish(section Section, frame []byte) {
	b.mu.Lock()
	b.snap.UpdatedAt = time.Now()
	snap := b.copyLocked()
	sinks := make([]Sink, len(b.sinks))
	copy(sinks, b.sinks)
	b.mu.Unlock()

	u := Update{Section: section, Snapshot: snap, Frame: frame}
	for _, s := range sinks {
		s.Publish(u)
	}
}

func equalTimers(a, b []scheduler.Countdown) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Part returns the piece of the snapshot a section describes. Unknown
// sections return the whole snapshot.
func (s Snapshot) Part(section Section) any {
	switch section {
	case SectionConnection:
		return s.Connection
	case SectionAutomation:
		return struct {
			RunState scheduler.RunState `json:"run_state"`
		}{s.RunState}
	case SectionTouch:
		return s.Touch
	case SectionTimers:
		return s.Timers
	case SectionStatus:
		return s.Status
	case SectionScreenshot:
		return s.Screenshot
	default:
		return s
	}
}

// Sections lists every section in publication order.
func Sections() []Section {
	return []Section{
		SectionConnection, SectionAutomation, SectionTouch,
		SectionTimers, SectionStatus, SectionScreenshot,
	}
}
