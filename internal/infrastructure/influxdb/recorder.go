package influxdb

import (
	"sync"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/tapline/internal/session"
	"github.com/nerrad567/tapline/internal/supervisor"
	"github.com/nerrad567/tapline/internal/touch"
)

// PointWriter accepts points without blocking. *Client satisfies it.
type PointWriter interface {
	WritePoint(p *write.Point)
}

// Recorder turns session activity into points. It implements
// session.Recorder and observes supervisor and touch state changes.
type Recorder struct {
	w PointWriter

	mu          sync.Mutex
	lastState   supervisor.State
	touchActive bool
}

// NewRecorder creates a recorder writing to w.
func NewRecorder(w PointWriter) *Recorder {
	return &Recorder{w: w, lastState: supervisor.StateDisconnected}
}

// RecordCommand writes one command point.
func (r *Recorder) RecordCommand(rec session.Record) {
	r.w.WritePoint(CommandPoint(rec))
}

// ObserveConnection writes a point per state transition.
func (r *Recorder) ObserveConnection(s supervisor.Snapshot) {
	r.mu.Lock()
	from := r.lastState
	if from == s.State {
		r.mu.Unlock()
		return
	}
	r.lastState = s.State
	r.mu.Unlock()

	r.w.WritePoint(ConnectionPoint(from, s))
}

// ObserveTouch writes a point when the touch pause starts or ends.
func (r *Recorder) ObserveTouch(s touch.State) {
	r.mu.Lock()
	if r.touchActive == s.Active {
		r.mu.Unlock()
		return
	}
	r.touchActive = s.Active
	r.mu.Unlock()

	r.w.WritePoint(TouchPoint(s.Active, time.Now()))
}
