package influxdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/tapline/internal/infrastructure/config"
	"github.com/nerrad567/tapline/internal/session"
)

// fakeInflux answers /ping and records /api/v2/write bodies.
type fakeInflux struct {
	mu     sync.Mutex
	bodies []string
	query  string
}

func (f *fakeInflux) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/v2/write", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
		f.mu.Lock()
		f.bodies = append(f.bodies, string(body))
		f.query = r.URL.RawQuery
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (f *fakeInflux) written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.bodies, "\n")
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "tapline",
		Bucket:        "session",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false
	if _, err := Connect(cfg); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := Connect(testConfig(url)); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClient_WriteAndFlush(t *testing.T) {
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client, err := Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Fatal("IsConnected() = false after Connect")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	rec := NewRecorder(client)
	rec.RecordCommand(session.Record{
		Command:  session.Tap{X: 1, Y: 2},
		Duration: 25 * time.Millisecond,
		At:       time.Now(),
	})
	client.Flush()

	deadline := time.Now().Add(2 * time.Second)
	for fake.written() == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	got := fake.written()
	if !strings.Contains(got, "command,class=ok,kind=tap,outcome=ok duration_ms=25") {
		t.Errorf("written = %q", got)
	}
	if !strings.Contains(fake.query, "bucket=session") || !strings.Contains(fake.query, "org=tapline") {
		t.Errorf("query = %q", fake.query)
	}
}

func TestClient_Close(t *testing.T) {
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client, err := Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close = %v, want ErrNotConnected", err)
	}

	// Writes and a second Close are harmless.
	client.WritePoint(TouchPoint(true, time.Now()))
	client.Flush()
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("nil Close() = %v", err)
	}
}
