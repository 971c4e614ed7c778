package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/tapline/internal/device"
	"github.com/nerrad567/tapline/internal/infrastructure/config"
	"github.com/nerrad567/tapline/internal/infrastructure/logging"
	"github.com/nerrad567/tapline/internal/session"
	"github.com/nerrad567/tapline/internal/supervisor"
)

var testPNG = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0}

// MockConnector hands out MockHandles for one fake device.
type MockConnector struct {
	mu          sync.Mutex
	discoverErr error
	handles     []*MockHandle
}

func (m *MockConnector) Discover(context.Context) (device.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.discoverErr != nil {
		return device.Info{}, m.discoverErr
	}
	return device.Info{Serial: "fake-1", State: device.StateDevice, Model: "Pixel_7"}, nil
}

func (m *MockConnector) Authenticate(_ context.Context, info device.Info) (session.Handle, device.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := &MockHandle{}
	m.handles = append(m.handles, h)
	info.Screen = device.Screen{Width: 1080, Height: 2400}
	return h, info, nil
}

func (m *MockConnector) Last() *MockHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.handles) == 0 {
		return nil
	}
	return m.handles[len(m.handles)-1]
}

// MockHandle records device calls.
type MockHandle struct {
	mu      sync.Mutex
	calls   []string
	tapErr  error
	closed  bool
	capture func() ([]byte, error)
}

func (h *MockHandle) add(call string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, call)
}

func (h *MockHandle) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *MockHandle) Tap(x, y int) error {
	h.add(fmt.Sprintf("tap %d,%d", x, y))
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tapErr
}

func (h *MockHandle) Swipe(x1, y1, x2, y2 int, d time.Duration) error {
	h.add(fmt.Sprintf("swipe %d,%d->%d,%d %v", x1, y1, x2, y2, d))
	return nil
}

func (h *MockHandle) CaptureFrame() ([]byte, error) {
	h.add("capture")
	h.mu.Lock()
	fn := h.capture
	h.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return testPNG, nil
}

func (h *MockHandle) Shell(args ...string) (string, error) {
	h.add(fmt.Sprintf("shell %v", args))
	return "", nil
}

func (h *MockHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.API.Enabled = false
	cfg.Touch.Enabled = false
	cfg.Supervisor.Tick = 10 * time.Millisecond
	cfg.Supervisor.Backoff = []time.Duration{20 * time.Millisecond}
	cfg.Scheduler.Tick = 10 * time.Millisecond
	cfg.Logging.Output = "discard"
	return cfg
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "discard"}, "test")
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// startRuntime runs a runtime until the test ends and waits for the fake
// device to connect.
func startRuntime(t *testing.T, cfg *config.Config, conn *MockConnector) *Runtime {
	t.Helper()
	rt, err := New(Options{Config: cfg, Logger: testLogger(), Connector: conn, Version: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- rt.Run(context.Background()) }()
	t.Cleanup(func() {
		rt.Shutdown()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run() did not return after Shutdown")
		}
	})

	waitFor(t, "connected", func() bool {
		return rt.Board().Snapshot().Connection.State == supervisor.StateConnected
	})
	return rt
}
