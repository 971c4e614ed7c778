package session

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// MockHandle is a Handle that records calls and returns scripted errors.
type MockHandle struct {
	mu    sync.Mutex
	calls []string

	// errs maps a command kind to the error returned for it.
	errs map[Kind]error

	// block, when non-nil, makes every call wait until it is closed.
	block chan struct{}

	// active counts calls currently inside the handle.
	active    int
	maxActive int

	frame  []byte
	closed bool
}

func NewMockHandle() *MockHandle {
	return &MockHandle{
		errs:  make(map[Kind]error),
		frame: []byte("\x89PNG-frame"),
	}
}

func (m *MockHandle) SetError(kind Kind, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[kind] = err
}

func (m *MockHandle) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockHandle) MaxActive() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxActive
}

func (m *MockHandle) enter(kind Kind, desc string) error {
	m.mu.Lock()
	m.calls = append(m.calls, desc)
	m.active++
	if m.active > m.maxActive {
		m.maxActive = m.active
	}
	block := m.block
	err := m.errs[kind]
	m.mu.Unlock()

	if block != nil {
		<-block
	} else {
		// Give overlapping calls a chance to show up in maxActive.
		time.Sleep(time.Millisecond)
	}

	m.mu.Lock()
	m.active--
	m.mu.Unlock()
	return err
}

func (m *MockHandle) Tap(x, y int) error {
	return m.enter(KindTap, fmt.Sprintf("tap %d %d", x, y))
}

func (m *MockHandle) Swipe(x1, y1, x2, y2 int, d time.Duration) error {
	return m.enter(KindSwipe, fmt.Sprintf("swipe %d %d %d %d %d", x1, y1, x2, y2, d.Milliseconds()))
}

func (m *MockHandle) CaptureFrame() ([]byte, error) {
	if err := m.enter(KindCapture, "capture"); err != nil {
		return nil, err
	}
	return m.frame, nil
}

func (m *MockHandle) Shell(args ...string) (string, error) {
	if err := m.enter(KindShell, fmt.Sprint("shell ", args)); err != nil {
		return "", err
	}
	return "ok", nil
}

func (m *MockHandle) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// MockRecorder collects command records.
type MockRecorder struct {
	mu      sync.Mutex
	records []Record
}

func (r *MockRecorder) RecordCommand(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *MockRecorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

var errDeviceOffline = errors.New("error: device offline")
