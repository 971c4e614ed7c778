package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/tapline/internal/device"
	"github.com/nerrad567/tapline/internal/session"
)

// MockConnector returns scripted discovery results.
type MockConnector struct {
	mu sync.Mutex

	// discoverErrs are returned by successive Discover calls; once
	// exhausted, Discover succeeds.
	discoverErrs []error
	authErr      error

	// failAfterConnects makes Discover fail once this many handles have
	// been opened. Zero disables it.
	failAfterConnects int

	discoverCalls int
	handles       []*mockHandle
	tapErr        error
}

func (m *MockConnector) Discover(ctx context.Context) (device.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discoverCalls++
	if len(m.discoverErrs) > 0 {
		err := m.discoverErrs[0]
		m.discoverErrs = m.discoverErrs[1:]
		return device.Info{}, err
	}
	if m.failAfterConnects > 0 && len(m.handles) >= m.failAfterConnects {
		return device.Info{}, ErrNoDevice
	}
	return device.Info{Serial: "emulator-5554", State: device.StateDevice, Model: "sdk_phone"}, nil
}

func (m *MockConnector) Authenticate(ctx context.Context, info device.Info) (session.Handle, device.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.authErr != nil {
		return nil, device.Info{}, m.authErr
	}
	h := &mockHandle{tapErr: m.tapErr}
	m.handles = append(m.handles, h)
	info.Screen = device.Screen{Width: 1080, Height: 1920}
	return h, info, nil
}

func (m *MockConnector) DiscoverCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.discoverCalls
}

func (m *MockConnector) Handles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

type mockHandle struct {
	mu     sync.Mutex
	tapErr error
	closed bool
}

func (h *mockHandle) Tap(x, y int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tapErr
}
func (h *mockHandle) Swipe(int, int, int, int, time.Duration) error { return nil }
func (h *mockHandle) CaptureFrame() ([]byte, error)                 { return []byte("png"), nil }
func (h *mockHandle) Shell(...string) (string, error)               { return "", nil }
func (h *mockHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// stateRecorder collects every observed snapshot.
type stateRecorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *stateRecorder) observe(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *stateRecorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []State
	for _, s := range r.snaps {
		if len(out) == 0 || out[len(out)-1] != s.State {
			out = append(out, s.State)
		}
	}
	return out
}

func (r *stateRecorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, len(r.snaps))
	copy(out, r.snaps)
	return out
}

func (r *stateRecorder) delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []time.Duration
	lastAttempt := 0
	for _, s := range r.snaps {
		if s.State == StateDisconnected && s.Backoff.Attempt > lastAttempt {
			out = append(out, s.Backoff.NextDelay)
		}
		lastAttempt = s.Backoff.Attempt
	}
	return out
}

var fastSchedule = []time.Duration{
	2 * time.Millisecond,
	4 * time.Millisecond,
	8 * time.Millisecond,
	16 * time.Millisecond,
	30 * time.Millisecond,
}

func newTestSupervisor(t *testing.T, conn Connector, q *session.Queue) (*Supervisor, *stateRecorder) {
	t.Helper()
	sup, err := New(Options{
		Connector: conn,
		Queue:     q,
		Backoff:   fastSchedule,
		Tick:      5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	rec := &stateRecorder{}
	sup.OnChange(rec.observe)
	return sup, rec
}

func startSupervisor(t *testing.T, sup *Supervisor) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return done
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{Queue: session.NewQueue(1)}); err == nil {
		t.Error("New() without connector: expected error")
	}
	if _, err := New(Options{Connector: &MockConnector{}}); err == nil {
		t.Error("New() without queue: expected error")
	}
}

func TestSupervisor_InitialState(t *testing.T) {
	sup, _ := newTestSupervisor(t, &MockConnector{}, session.NewQueue(1))
	if got := sup.State().State; got != StateDisconnected {
		t.Errorf("initial State = %q, want %q", got, StateDisconnected)
	}
	if sup.Connected() {
		t.Error("Connected() = true before Run")
	}
}

func TestSupervisor_ConnectTransitions(t *testing.T) {
	conn := &MockConnector{}
	sup, rec := newTestSupervisor(t, conn, session.NewQueue(1))
	startSupervisor(t, sup)

	waitFor(t, "connected", sup.Connected)

	want := []State{StateConnecting, StateAuthenticating, StateConnected}
	got := rec.states()
	if len(got) != len(want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("state[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	snap := sup.State()
	if snap.Device == nil || snap.Device.Screen.Width != 1080 {
		t.Errorf("Device = %+v, want screen width 1080", snap.Device)
	}
}

// Consecutive failures follow the schedule, holding the last delay, and the
// backoff resets once connected.
func TestSupervisor_BackoffSequence(t *testing.T) {
	errNone := ErrNoDevice
	conn := &MockConnector{discoverErrs: []error{errNone, errNone, errNone, errNone, errNone, errNone}}
	sup, rec := newTestSupervisor(t, conn, session.NewQueue(1))
	startSupervisor(t, sup)

	waitFor(t, "connected", sup.Connected)

	want := []time.Duration{
		2 * time.Millisecond,
		4 * time.Millisecond,
		8 * time.Millisecond,
		16 * time.Millisecond,
		30 * time.Millisecond,
		30 * time.Millisecond,
	}
	got := rec.delays()
	if len(got) != len(want) {
		t.Fatalf("delays = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if st := sup.State().Backoff; st.Attempt != 0 {
		t.Errorf("Backoff.Attempt after connect = %d, want 0", st.Attempt)
	}
}

func TestSupervisor_HandshakeFailureArmsBackoff(t *testing.T) {
	conn := &MockConnector{authErr: errors.New("device unauthorized")}
	sup, rec := newTestSupervisor(t, conn, session.NewQueue(1))
	startSupervisor(t, sup)

	waitFor(t, "two discovery attempts", func() bool { return conn.DiscoverCalls() >= 2 })

	snaps := rec.states()
	if len(snaps) < 3 || snaps[1] != StateAuthenticating || snaps[2] != StateDisconnected {
		t.Errorf("states = %v, want connecting, authenticating, disconnected...", snaps)
	}
	if sup.Connected() {
		t.Error("Connected() = true with failing handshake")
	}
}

// A disconnect error fails queued work and leads to a fresh session.
func TestSupervisor_DisconnectReconnects(t *testing.T) {
	conn := &MockConnector{tapErr: errors.New("error: device offline")}
	q := session.NewQueue(4)
	sup, rec := newTestSupervisor(t, conn, q)
	startSupervisor(t, sup)

	waitFor(t, "connected", sup.Connected)

	_, err := q.Submit(context.Background(), session.Tap{X: 10, Y: 10})
	if !errors.Is(err, session.ErrDisconnected) {
		t.Fatalf("Submit() error = %v, want ErrDisconnected", err)
	}

	waitFor(t, "second session", func() bool { return sup.Sessions() >= 2 })

	states := rec.states()
	sawDisconnect := false
	for i := 1; i < len(states); i++ {
		if states[i-1] == StateConnected && states[i] == StateDisconnected {
			sawDisconnect = true
		}
	}
	if !sawDisconnect {
		t.Errorf("states = %v, want connected -> disconnected", states)
	}
	if conn.Handles() < 2 {
		t.Errorf("Handles() = %d, want a fresh handle per session", conn.Handles())
	}
}

// Losing a connected device waits the first delay without counting a
// failure, so the first failed reconnect still starts the schedule.
func TestSupervisor_DisconnectKeepsBackoffAtStart(t *testing.T) {
	conn := &MockConnector{
		tapErr:            errors.New("error: device offline"),
		failAfterConnects: 1,
	}
	q := session.NewQueue(4)
	sup, rec := newTestSupervisor(t, conn, q)
	startSupervisor(t, sup)

	waitFor(t, "connected", sup.Connected)
	if _, err := q.Submit(context.Background(), session.Tap{X: 10, Y: 10}); !errors.Is(err, session.ErrDisconnected) {
		t.Fatalf("Submit() error = %v, want ErrDisconnected", err)
	}
	var lost, failed *Snapshot
	find := func() bool {
		lost, failed = nil, nil
		prev := StateDisconnected
		for _, snap := range rec.all() {
			switch {
			case snap.State == StateDisconnected && prev == StateConnected && lost == nil:
				lost = &snap
			case snap.State == StateDisconnected && prev == StateConnecting && lost != nil && failed == nil:
				failed = &snap
			}
			prev = snap.State
		}
		return failed != nil
	}
	waitFor(t, "failed reconnect", find)

	if lost.Backoff.Attempt != 0 || lost.Backoff.NextDelay != fastSchedule[0] {
		t.Errorf("after disconnect Backoff = %+v, want attempt 0 with %v", lost.Backoff, fastSchedule[0])
	}
	if failed.Backoff.Attempt != 1 || failed.Backoff.NextDelay != fastSchedule[0] {
		t.Errorf("first failure Backoff = %+v, want attempt 1 with %v", failed.Backoff, fastSchedule[0])
	}
}

func TestSupervisor_ReconnectSkipsWait(t *testing.T) {
	conn := &MockConnector{discoverErrs: []error{ErrNoDevice}}
	sup, err := New(Options{
		Connector: conn,
		Queue:     session.NewQueue(1),
		Backoff:   []time.Duration{time.Hour},
		Tick:      5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	startSupervisor(t, sup)

	waitFor(t, "first failure", func() bool { return sup.State().Backoff.Attempt == 1 })
	sup.Reconnect()
	waitFor(t, "connected after reconnect", sup.Connected)
}

func TestSupervisor_StopsOnQueueShutdown(t *testing.T) {
	q := session.NewQueue(1)
	sup, _ := newTestSupervisor(t, &MockConnector{}, q)

	done := make(chan error, 1)
	go func() { done <- sup.Run(context.Background()) }()
	waitFor(t, "connected", sup.Connected)

	q.Shutdown()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after queue shutdown")
	}
	if sup.State().State != StateDisconnected {
		t.Errorf("State = %q after stop, want disconnected", sup.State().State)
	}
}

func TestSupervisor_RunTwice(t *testing.T) {
	sup, _ := newTestSupervisor(t, &MockConnector{}, session.NewQueue(1))
	startSupervisor(t, sup)
	waitFor(t, "connected", sup.Connected)

	if err := sup.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() = %v, want ErrAlreadyRunning", err)
	}
}

func TestSnapshot_StatusText(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		snap Snapshot
		want string
	}{
		{
			name: "connected",
			snap: Snapshot{State: StateConnected, Device: &device.Info{
				Serial: "abc", Model: "Pixel_7", Screen: device.Screen{Width: 1080, Height: 2400},
			}},
			want: "Connected to Pixel_7 (abc), screen 1080x2400",
		},
		{
			name: "connecting",
			snap: Snapshot{State: StateConnecting},
			want: "Searching for device...",
		},
		{
			name: "reconnecting",
			snap: Snapshot{
				State:   StateDisconnected,
				Backoff: BackoffState{Attempt: 2, NextDelay: 4 * time.Second},
				RetryAt: now.Add(4 * time.Second),
			},
			want: "Disconnected, reconnecting in 4s (attempt 2)",
		},
		{
			name: "link lost",
			snap: Snapshot{
				State:   StateDisconnected,
				Backoff: BackoffState{NextDelay: 2 * time.Second},
				RetryAt: now.Add(2 * time.Second),
			},
			want: "Disconnected, reconnecting in 2s",
		},
		{
			name: "stopped",
			snap: Snapshot{State: StateDisconnected},
			want: "Disconnected",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.snap.StatusText(now); got != tt.want {
				t.Errorf("StatusText() = %q, want %q", got, tt.want)
			}
		})
	}
}
