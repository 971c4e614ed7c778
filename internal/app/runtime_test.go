package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/tapline/internal/audit"
	"github.com/nerrad567/tapline/internal/infrastructure/config"
	"github.com/nerrad567/tapline/internal/infrastructure/database"
	"github.com/nerrad567/tapline/internal/scheduler"
	"github.com/nerrad567/tapline/internal/supervisor"
)

func TestNew_RequiresConfig(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("New() without config error = nil")
	}
}

func TestNew_ConfiguredEvents(t *testing.T) {
	cfg := testConfig()
	disabled := false
	cfg.Scheduler.Events = []config.TimedEventConfig{
		{ID: "tap", Kind: "tap", Interval: 5 * time.Second, X: 10, Y: 10},
		{ID: "snap", Kind: "capture", Interval: time.Minute, Enabled: &disabled},
	}

	rt, err := New(Options{Config: cfg, Logger: testLogger(), Connector: &MockConnector{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	events := rt.Scheduler().List()
	if len(events) != 2 {
		t.Fatalf("List() = %d events, want 2", len(events))
	}
	if events[0].ID != "tap" || !events[0].Enabled {
		t.Errorf("events[0] = %+v", events[0])
	}
	if events[1].ID != "snap" || events[1].Enabled {
		t.Errorf("events[1] = %+v", events[1])
	}
}

func TestNew_InvalidEvent(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.Events = []config.TimedEventConfig{
		{ID: "bad", Kind: "dance", Interval: time.Second},
	}
	if _, err := New(Options{Config: cfg, Logger: testLogger(), Connector: &MockConnector{}}); err == nil {
		t.Error("New() with an unknown event kind error = nil")
	}
}

func TestRuntime_RunTwice(t *testing.T) {
	rt := startRuntime(t, testConfig(), &MockConnector{})
	if err := rt.Run(context.Background()); err == nil {
		t.Error("second Run() error = nil")
	}
}

func TestRuntime_ContextCancelStops(t *testing.T) {
	rt, err := New(Options{Config: testConfig(), Logger: testLogger(), Connector: &MockConnector{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	waitFor(t, "connected", func() bool {
		return rt.Board().Snapshot().Connection.State == supervisor.StateConnected
	})
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	// Commands after shutdown fail fast.
	if err := rt.Controller().Tap(context.Background(), 1, 1); err == nil {
		t.Error("Tap() after shutdown error = nil")
	}
}

func TestRuntime_Autostart(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.Autostart = true
	cfg.Scheduler.Events = []config.TimedEventConfig{
		{ID: "tap", Kind: "tap", Interval: 20 * time.Millisecond, X: 5, Y: 5},
	}
	conn := &MockConnector{}
	rt := startRuntime(t, cfg, conn)

	if rs := rt.Scheduler().RunState(); rs != scheduler.RunRunning {
		t.Fatalf("RunState() = %q, want running", rs)
	}
	waitFor(t, "timed tap", func() bool {
		h := conn.Last()
		return h != nil && len(h.Calls()) > 0
	})
}

func TestRuntime_ReconnectsAfterDisconnect(t *testing.T) {
	conn := &MockConnector{}
	rt := startRuntime(t, testConfig(), conn)
	first := conn.Last()

	first.mu.Lock()
	first.tapErr = errors.New("error: device offline")
	first.mu.Unlock()

	if err := rt.Controller().Tap(context.Background(), 1, 1); err == nil {
		t.Fatal("Tap() on an offline device error = nil")
	}

	waitFor(t, "second handle", func() bool {
		return conn.Last() != first &&
			rt.Board().Snapshot().Connection.State == supervisor.StateConnected
	})
	if err := rt.Controller().Tap(context.Background(), 2, 2); err != nil {
		t.Errorf("Tap() after reconnect error = %v", err)
	}

	first.mu.Lock()
	closed := first.closed
	first.mu.Unlock()
	if !closed {
		t.Error("old handle not closed")
	}
}

func TestRuntime_History(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Enabled = true
	cfg.Database.Path = filepath.Join(t.TempDir(), "history.db")

	rt, err := New(Options{Config: cfg, Logger: testLogger(), Connector: &MockConnector{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- rt.Run(context.Background()) }()

	waitFor(t, "connected", func() bool {
		return rt.Board().Snapshot().Connection.State == supervisor.StateConnected
	})
	if err := rt.Controller().Tap(context.Background(), 3, 3); err != nil {
		t.Fatalf("Tap() error = %v", err)
	}
	if _, err := rt.Controller().TakeScreenshot(context.Background()); err != nil {
		t.Fatalf("TakeScreenshot() error = %v", err)
	}

	rt.Shutdown()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return")
	}

	db, err := database.Open(database.Config{Path: cfg.Database.Path, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("reopening database: %v", err)
	}
	defer db.Close()
	repo := audit.NewSQLiteRepository(db.DB)

	ctx := context.Background()
	res, err := repo.ListCommands(ctx, audit.Filter{})
	if err != nil {
		t.Fatalf("ListCommands() error = %v", err)
	}
	if res.Total != 2 {
		t.Errorf("Total = %d, want 2", res.Total)
	}
	for _, e := range res.Entries {
		if e.Source != "session" || e.Outcome != "ok" {
			t.Errorf("entry = %+v", e)
		}
	}

	conns, err := repo.ListConnections(ctx, 10)
	if err != nil {
		t.Fatalf("ListConnections() error = %v", err)
	}
	if len(conns) == 0 {
		t.Error("no connection transitions recorded")
	}
}
