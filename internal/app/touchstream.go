package app

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/tapline/internal/adb"
	"github.com/nerrad567/tapline/internal/infrastructure/config"
	"github.com/nerrad567/tapline/internal/process"
	"github.com/nerrad567/tapline/internal/session"
	"github.com/nerrad567/tapline/internal/supervisor"
	"github.com/nerrad567/tapline/internal/touch"
)

const probeTimeout = 5 * time.Second

// streamRunner is the part of process.Runner the touch stream drives.
type streamRunner interface {
	Start(ctx context.Context) error
	Stop() error
}

// touchStream keeps "adb shell getevent -lt" running while a device is
// connected and feeds its lines to the touch listener.
type touchStream struct {
	cfg      config.TouchConfig
	adbPath  string
	queue    *session.Queue
	listener *touch.Listener
	logger   Logger

	newRunner func(process.Config) streamRunner
	probe     func(ctx context.Context, q *session.Queue) (touch.Candidate, error)

	mu     sync.Mutex
	latest supervisor.Snapshot
	notify chan struct{}
}

func newTouchStream(cfg config.TouchConfig, adbPath string, q *session.Queue, l *touch.Listener, logger Logger) *touchStream {
	return &touchStream{
		cfg:      cfg,
		adbPath:  adbPath,
		queue:    q,
		listener: l,
		logger:   logger,
		newRunner: func(pc process.Config) streamRunner {
			r := process.NewRunner(pc)
			r.SetLogger(logger)
			return r
		},
		probe:  adb.ProbeTouchDevice,
		notify: make(chan struct{}, 1),
	}
}

// Observe records a supervisor snapshot. It never blocks.
func (t *touchStream) Observe(s supervisor.Snapshot) {
	t.mu.Lock()
	t.latest = s
	t.mu.Unlock()
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// Run starts the stream on connect and stops it on disconnect.
func (t *touchStream) Run(ctx context.Context) error {
	var (
		runner streamRunner
		serial string
	)
	stop := func() {
		if runner == nil {
			return
		}
		if err := runner.Stop(); err != nil {
			t.logger.Warn("stopping touch stream", "error", err)
		}
		runner, serial = nil, ""
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.notify:
		}

		t.mu.Lock()
		snap := t.latest
		t.mu.Unlock()

		if !snap.Connected() || snap.Device == nil {
			stop()
			continue
		}
		if runner != nil && serial == snap.Device.Serial {
			continue
		}
		stop()

		devicePath := t.devicePath(ctx)
		pc := process.DefaultConfig("getevent", t.adbPath, adb.EventArgs(snap.Device.Serial, devicePath))
		pc.RestartDelay = t.cfg.RestartDelay
		pc.OnLine = t.listener.HandleLine

		r := t.newRunner(pc)
		if err := r.Start(ctx); err != nil {
			t.logger.Warn("touch stream failed to start", "error", err)
			continue
		}
		runner, serial = r, snap.Device.Serial
		t.logger.Info("touch stream started", "serial", serial, "device", devicePath)
	}
}

// devicePath returns the configured input node, or probes for the
// touchscreen. An empty result streams every input device.
func (t *touchStream) devicePath(ctx context.Context) string {
	if t.cfg.Device != "" {
		return t.cfg.Device
	}
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	c, err := t.probe(pctx, t.queue)
	if err != nil {
		t.logger.Warn("touch device probe failed, streaming all input devices", "error", err)
		return ""
	}
	return c.Path
}
