package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestSession(t *testing.T, h *MockHandle, q *Queue, opts Options) *Session {
	t.Helper()
	opts.Handle = h
	opts.Queue = q
	if opts.Width == 0 {
		opts.Width = 1080
	}
	if opts.Height == 0 {
		opts.Height = 2400
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func runSession(t *testing.T, s *Session) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestNew_RequiresHandleAndQueue(t *testing.T) {
	if _, err := New(Options{Queue: NewQueue(1)}); err == nil {
		t.Error("New() without handle: expected error")
	}
	if _, err := New(Options{Handle: NewMockHandle()}); err == nil {
		t.Error("New() without queue: expected error")
	}
}

// Commands reach the device in submission order and never overlap.
func TestSession_StrictFIFO(t *testing.T) {
	h := NewMockHandle()
	q := NewQueue(10)
	s := newTestSession(t, h, q, Options{})

	// Fill the queue before the session starts so order is fixed.
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := q.Submit(context.Background(), Tap{X: i * 10, Y: i}); err != nil {
				t.Errorf("Submit(%d) error = %v", i, err)
			}
		}(i)
		waitForLen(t, q, i+1)
	}

	runSession(t, s)
	wg.Wait()

	want := []string{"tap 0 0", "tap 10 1", "tap 20 2", "tap 30 3", "tap 40 4"}
	got := h.Calls()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if h.MaxActive() != 1 {
		t.Errorf("MaxActive() = %d, want 1", h.MaxActive())
	}
}

func TestSession_NoOverlapUnderConcurrentSubmit(t *testing.T) {
	h := NewMockHandle()
	q := NewQueue(100)
	s := newTestSession(t, h, q, Options{})
	runSession(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var cmd Command = Tap{X: i, Y: i}
			if i%3 == 0 {
				cmd = CaptureFrame{}
			}
			if _, err := q.Submit(context.Background(), cmd); err != nil {
				t.Errorf("Submit() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if n := len(h.Calls()); n != 20 {
		t.Errorf("calls = %d, want 20", n)
	}
	if h.MaxActive() != 1 {
		t.Errorf("MaxActive() = %d, want 1", h.MaxActive())
	}
}

func TestSession_BoundsValidation(t *testing.T) {
	tests := []struct {
		name    string
		cmd     Command
		wantErr bool
	}{
		{"tap inside", Tap{X: 540, Y: 1200}, false},
		{"tap on edge", Tap{X: 1080, Y: 2400}, false},
		{"tap past width", Tap{X: 1081, Y: 10}, true},
		{"tap past height", Tap{X: 10, Y: 2401}, true},
		{"tap negative", Tap{X: -1, Y: 10}, true},
		{"swipe inside", Swipe{X1: 0, Y1: 0, X2: 1000, Y2: 2000}, false},
		{"swipe end outside", Swipe{X1: 0, Y1: 0, X2: 1200, Y2: 100}, true},
		{"swipe negative duration", Swipe{Duration: -time.Second}, true},
		{"empty shell", ShellExec{}, true},
		{"capture", CaptureFrame{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewMockHandle()
			q := NewQueue(1)
			s := newTestSession(t, h, q, Options{})
			runSession(t, s)

			_, err := q.Submit(context.Background(), tt.cmd)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("Submit() error = %v, want ErrInvalidInput", err)
				}
				if calls := h.Calls(); len(calls) != 0 {
					t.Errorf("transport called for invalid command: %v", calls)
				}
				return
			}
			if err != nil {
				t.Fatalf("Submit() error = %v", err)
			}
			if len(h.Calls()) != 1 {
				t.Errorf("calls = %v, want one", h.Calls())
			}
		})
	}
}

func TestSession_CaptureReturnsFrame(t *testing.T) {
	h := NewMockHandle()
	q := NewQueue(1)
	rec := &MockRecorder{}
	s := newTestSession(t, h, q, Options{Recorder: rec})
	runSession(t, s)

	resp, err := q.Submit(context.Background(), CaptureFrame{})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if string(resp.Frame) != string(h.frame) {
		t.Errorf("Frame = %q, want %q", resp.Frame, h.frame)
	}

	records := rec.Records()
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].Class != ClassNone {
		t.Errorf("record class = %v, want ok", records[0].Class)
	}
}

func TestSession_DefaultSwipeDuration(t *testing.T) {
	h := NewMockHandle()
	q := NewQueue(1)
	s := newTestSession(t, h, q, Options{})
	runSession(t, s)

	if _, err := q.Submit(context.Background(), Swipe{X1: 1, Y1: 2, X2: 3, Y2: 4}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if got := h.Calls()[0]; got != "swipe 1 2 3 4 300" {
		t.Errorf("call = %q, want %q", got, "swipe 1 2 3 4 300")
	}
}

func TestSession_TransientErrorKeepsSession(t *testing.T) {
	h := NewMockHandle()
	h.SetError(KindCapture, errors.New("screencap: exit status 1"))
	q := NewQueue(2)
	s := newTestSession(t, h, q, Options{})
	_, done := runSession(t, s)

	if _, err := q.Submit(context.Background(), CaptureFrame{}); err == nil {
		t.Fatal("Submit(capture) expected error")
	}
	if _, err := q.Submit(context.Background(), Tap{X: 1, Y: 1}); err != nil {
		t.Errorf("Submit(tap) after transient error = %v", err)
	}

	select {
	case err := <-done:
		t.Fatalf("session ended on transient error: %v", err)
	default:
	}
	if s.Poisoned() {
		t.Error("Poisoned() = true after transient error")
	}
}

// A disconnect error fails the offending command and every queued command.
func TestSession_DisconnectDrainsQueue(t *testing.T) {
	h := NewMockHandle()
	h.block = make(chan struct{})
	h.SetError(KindTap, errDeviceOffline)
	q := NewQueue(10)
	s := newTestSession(t, h, q, Options{})
	_, done := runSession(t, s)

	errs := make(chan error, 4)
	go func() {
		_, err := q.Submit(context.Background(), Tap{X: 1, Y: 1})
		errs <- err
	}()
	// Wait until the first tap is inside the handle.
	deadline := time.Now().Add(time.Second)
	for len(h.Calls()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first command never reached the handle")
		}
		time.Sleep(time.Millisecond)
	}
	for i := 0; i < 3; i++ {
		go func() {
			_, err := q.Submit(context.Background(), CaptureFrame{})
			errs <- err
		}()
	}
	waitForLen(t, q, 3)
	close(h.block)

	for i := 0; i < 4; i++ {
		if err := <-errs; !errors.Is(err, ErrDisconnected) {
			t.Errorf("Submit() error = %v, want ErrDisconnected", err)
		}
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrDisconnected) {
			t.Errorf("Run() = %v, want ErrDisconnected", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after disconnect")
	}
	if !s.Poisoned() {
		t.Error("Poisoned() = false after disconnect")
	}
	if len(h.Calls()) != 1 {
		t.Errorf("calls = %v, queued commands reached the device", h.Calls())
	}
}

// A hung call poisons the session within the deadline plus tolerance.
func TestSession_TimeoutPoisonsSession(t *testing.T) {
	h := NewMockHandle()
	h.block = make(chan struct{})
	t.Cleanup(func() { close(h.block) })

	q := NewQueue(1)
	s := newTestSession(t, h, q, Options{Timeouts: Timeouts{Capture: 50 * time.Millisecond}})
	_, done := runSession(t, s)

	start := time.Now()
	_, err := q.Submit(context.Background(), CaptureFrame{})
	if !errors.Is(err, ErrDisconnected) || !errors.Is(err, ErrTimeout) {
		t.Errorf("Submit() error = %v, want ErrDisconnected wrapping ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("timeout surfaced after %v", elapsed)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after timeout")
	}
	if !s.Poisoned() {
		t.Error("Poisoned() = false after timeout")
	}
}

func TestSession_RunTwice(t *testing.T) {
	h := NewMockHandle()
	q := NewQueue(1)
	s := newTestSession(t, h, q, Options{})
	cancel, done := runSession(t, s)
	cancel()
	<-done

	if err := s.Run(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("second Run() = %v, want ErrSessionClosed", err)
	}
}

func TestSession_QueueShutdownEndsRun(t *testing.T) {
	h := NewMockHandle()
	q := NewQueue(1)
	s := newTestSession(t, h, q, Options{})
	_, done := runSession(t, s)

	q.Shutdown()
	select {
	case err := <-done:
		if !errors.Is(err, ErrCancelled) {
			t.Errorf("Run() = %v, want ErrCancelled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after Shutdown")
	}
}
