package app

import (
	"sync"
	"testing"

	"github.com/nerrad567/tapline/internal/session"
)

type countingRecorder struct {
	mu    sync.Mutex
	count int
}

func (c *countingRecorder) RecordCommand(session.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
}

func TestRecorders_FanOut(t *testing.T) {
	var r recorders
	r.RecordCommand(session.Record{})

	a, b := &countingRecorder{}, &countingRecorder{}
	r.Add(a)
	r.RecordCommand(session.Record{Command: session.Tap{X: 1, Y: 1}})
	r.Add(b)
	r.RecordCommand(session.Record{Command: session.CaptureFrame{}})

	if a.count != 2 || b.count != 1 {
		t.Errorf("counts = %d, %d, want 2, 1", a.count, b.count)
	}
}
