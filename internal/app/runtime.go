package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/tapline/internal/adb"
	"github.com/nerrad567/tapline/internal/api"
	"github.com/nerrad567/tapline/internal/audit"
	"github.com/nerrad567/tapline/internal/infrastructure/config"
	"github.com/nerrad567/tapline/internal/infrastructure/database"
	"github.com/nerrad567/tapline/internal/infrastructure/influxdb"
	"github.com/nerrad567/tapline/internal/infrastructure/logging"
	"github.com/nerrad567/tapline/internal/infrastructure/mqtt"
	"github.com/nerrad567/tapline/internal/scheduler"
	"github.com/nerrad567/tapline/internal/session"
	"github.com/nerrad567/tapline/internal/status"
	"github.com/nerrad567/tapline/internal/supervisor"
	"github.com/nerrad567/tapline/internal/touch"
	"github.com/nerrad567/tapline/migrations"
)

// refreshInterval paces countdown updates on the status board.
const refreshInterval = time.Second

// Options configures a Runtime.
type Options struct {
	Config  *config.Config
	Logger  *logging.Logger
	Version string

	// Connector overrides the adb connector, for tests.
	Connector supervisor.Connector
}

// Runtime owns every long-lived component.
type Runtime struct {
	cfg     *config.Config
	logger  *logging.Logger
	version string

	queue      *session.Queue
	supervisor *supervisor.Supervisor
	monitor    *touch.Monitor
	listener   *touch.Listener
	scheduler  *scheduler.Scheduler
	board      *status.Board
	controller *Controller
	recorders  *recorders
	stream     *touchStream

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// New builds the core components. Nothing touches the device or the
// network until Run.
func New(opts Options) (*Runtime, error) {
	if opts.Config == nil {
		return nil, errors.New("app: config is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	cfg, log := opts.Config, opts.Logger

	connector := opts.Connector
	if connector == nil {
		connector = adb.NewConnector(adb.ConnectorOptions{
			Path:   cfg.Device.ADBPath,
			Serial: cfg.Device.Serial,
			Logger: log.Component("adb"),
		})
	}

	r := &Runtime{
		cfg:       cfg,
		logger:    log,
		version:   opts.Version,
		queue:     session.NewQueue(cfg.Session.QueueCapacity),
		monitor:   touch.NewMonitor(cfg.Touch.Timeout),
		board:     status.NewBoard(),
		recorders: &recorders{},
	}
	r.listener = touch.NewListener(r.monitor)

	sup, err := supervisor.New(supervisor.Options{
		Connector:       connector,
		Queue:           r.queue,
		Backoff:         cfg.Supervisor.Backoff,
		Tick:            cfg.Supervisor.Tick,
		DiscoverTimeout: cfg.Device.DiscoverTimeout,
		ConnectTimeout:  cfg.Device.ConnectTimeout,
		Session: session.Options{
			Timeouts: session.Timeouts{
				Tap:     cfg.Session.TapTimeout,
				Swipe:   cfg.Session.SwipeTimeout,
				Capture: cfg.Session.CaptureTimeout,
				Shell:   cfg.Session.ShellTimeout,
			},
			SwipeDuration: cfg.Session.SwipeDefaultDuration,
			Logger:        log.Component("session"),
			Recorder:      r.recorders,
		},
		Logger: log.Component("supervisor"),
	})
	if err != nil {
		return nil, err
	}
	r.supervisor = sup

	// The monitor gates automation even without the getevent stream, so
	// recordTouch still pauses it.
	sched, err := scheduler.New(scheduler.Options{
		Submitter:  r.queue,
		Connection: sup,
		Touch:      r.monitor,
		Tick:       cfg.Scheduler.Tick,
		Logger:     log.Component("scheduler"),
	})
	if err != nil {
		return nil, err
	}
	r.scheduler = sched

	for _, ev := range cfg.Scheduler.Events {
		if _, err := sched.Add(scheduler.Spec{
			ID:       ev.ID,
			Kind:     scheduler.Kind(ev.Kind),
			Interval: ev.Interval,
			Enabled:  ev.IsEnabled(),
			X:        ev.X,
			Y:        ev.Y,
			X2:       ev.X2,
			Y2:       ev.Y2,
			Duration: ev.Duration,
		}); err != nil {
			return nil, fmt.Errorf("adding timed event %s: %w", ev.ID, err)
		}
	}

	r.controller = NewController(ControllerDeps{
		Queue:      r.queue,
		Scheduler:  sched,
		Touch:      r.monitor,
		Supervisor: sup,
		Board:      r.board,
		Shutdown:   r.Shutdown,
		Logger:     log.Component("controller"),
	})

	if cfg.Touch.Enabled {
		r.stream = newTouchStream(cfg.Touch, cfg.Device.ADBPath, r.queue, r.listener, log.Component("touch"))
	}

	r.wireBoard()
	return r, nil
}

// wireBoard forwards component changes to the status board.
func (r *Runtime) wireBoard() {
	r.supervisor.OnChange(func(s supervisor.Snapshot) {
		r.board.SetConnection(s, time.Now())
	})
	r.scheduler.OnRunState(r.board.SetRunState)
	r.monitor.OnChange(func(s touch.State) {
		r.board.SetTouch(s)
		if s.Active {
			r.board.SetStatus("Touch detected, automation suspended", false)
		}
	})
	r.scheduler.OnFire(func(res scheduler.FireResult) {
		switch {
		case res.Err != nil:
			r.board.SetStatus(fmt.Sprintf("%s failed: %v", res.EventID, res.Err), true)
		case res.Kind == scheduler.KindCapture && res.Response.Frame != nil:
			r.board.SetFrame(res.Response.Frame, res.At)
		}
	})
	if r.stream != nil {
		r.supervisor.OnChange(r.stream.Observe)
	}
}

// Controller returns the command surface.
func (r *Runtime) Controller() *Controller {
	return r.controller
}

// Board returns the status board.
func (r *Runtime) Board() *status.Board {
	return r.board
}

// Scheduler returns the automation scheduler.
func (r *Runtime) Scheduler() *scheduler.Scheduler {
	return r.scheduler
}

// Shutdown asks a running Run to return. It is safe to call at any time.
func (r *Runtime) Shutdown() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run opens the enabled outer surfaces, starts every loop and blocks until
// ctx ends, Shutdown is called or a loop fails.
//
// Returns:
//   - nil on a requested stop
//   - error if an outer surface fails to open or a loop fails
func (r *Runtime) Run(ctx context.Context) (err error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("app: runtime already running")
	}
	r.running = true
	ctx, r.cancel = context.WithCancel(ctx)
	cancel := r.cancel
	r.mu.Unlock()
	defer cancel()

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	// The errgroup context ends when any loop fails or ctx is cancelled.
	g, gctx := errgroup.WithContext(ctx)

	// Loops already started must finish before closers run.
	fail := func(err error) error {
		cancel()
		_ = g.Wait() //nolint:errcheck // reporting the setup error instead
		return err
	}

	history, err := r.openHistory(gctx, g, &closers)
	if err != nil {
		return fail(err)
	}
	if err := r.openTelemetry(&closers); err != nil {
		return fail(err)
	}
	if err := r.openAPI(gctx, history, &closers); err != nil {
		return fail(err)
	}
	if err := r.openMQTT(gctx, g, &closers); err != nil {
		return fail(err)
	}

	if r.cfg.Scheduler.Autostart {
		r.scheduler.Start()
	}

	g.Go(func() error { return r.supervisor.Run(gctx) })
	g.Go(func() error { return r.scheduler.Run(gctx) })
	g.Go(func() error { return r.refresh(gctx) })
	if r.stream != nil {
		g.Go(func() error { return r.stream.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		r.queue.Shutdown()
		return nil
	})

	r.logger.Info("runtime started",
		"version", r.version,
		"events", len(r.scheduler.List()),
		"touch", r.cfg.Touch.Enabled,
	)

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	r.logger.Info("runtime stopped", "error", err)
	return err
}

// refresh keeps countdown text current between state changes.
func (r *Runtime) refresh(ctx context.Context) error {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			r.board.SetTimers(r.scheduler.Countdowns(now))
			r.board.SetTouch(r.monitor.Snapshot())
			if snap := r.supervisor.State(); !snap.Connected() {
				r.board.SetConnection(snap, now)
			}
		}
	}
}

// openHistory opens SQLite command history when enabled.
func (r *Runtime) openHistory(ctx context.Context, g *errgroup.Group, closers *[]func()) (audit.Repository, error) {
	if !r.cfg.Database.Enabled {
		return nil, nil
	}

	db, err := database.Open(database.Config{
		Path:        r.cfg.Database.Path,
		WALMode:     r.cfg.Database.WALMode,
		BusyTimeout: r.cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	*closers = append(*closers, func() {
		if err := db.Close(); err != nil {
			r.logger.Error("error closing database", "error", err)
		}
	})

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	repo := audit.NewSQLiteRepository(db.DB)
	rec := audit.NewRecorder(repo, "session", 0, r.logger.Component("audit"))
	r.recorders.Add(rec)
	r.supervisor.OnChange(rec.ObserveConnection)
	g.Go(func() error { return rec.Run(ctx) })

	r.logger.Info("command history enabled", "path", db.Path())
	return repo, nil
}

// openTelemetry connects to InfluxDB when enabled.
func (r *Runtime) openTelemetry(closers *[]func()) error {
	if !r.cfg.InfluxDB.Enabled {
		return nil
	}

	client, err := influxdb.Connect(r.cfg.InfluxDB)
	if err != nil {
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		r.logger.Error("InfluxDB write error", "error", err)
	})
	*closers = append(*closers, func() {
		if err := client.Close(); err != nil {
			r.logger.Error("error closing InfluxDB", "error", err)
		}
	})

	rec := influxdb.NewRecorder(client)
	r.recorders.Add(rec)
	r.supervisor.OnChange(rec.ObserveConnection)
	r.monitor.OnChange(rec.ObserveTouch)

	r.logger.Info("InfluxDB connected", "url", r.cfg.InfluxDB.URL, "bucket", r.cfg.InfluxDB.Bucket)
	return nil
}

// openAPI starts the HTTP API when enabled.
func (r *Runtime) openAPI(ctx context.Context, history audit.Repository, closers *[]func()) error {
	if !r.cfg.API.Enabled {
		return nil
	}

	srv, err := api.New(api.Deps{
		Config:     r.cfg.API,
		WS:         r.cfg.WebSocket,
		Logger:     r.logger.Component("api"),
		Controller: r.controller,
		Board:      r.board,
		History:    history,
		Version:    r.version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	*closers = append(*closers, func() {
		if err := srv.Close(); err != nil {
			r.logger.Error("error closing API server", "error", err)
		}
	})
	return nil
}

// openMQTT connects the MQTT bridge when enabled.
func (r *Runtime) openMQTT(ctx context.Context, g *errgroup.Group, closers *[]func()) error {
	if !r.cfg.MQTT.Enabled {
		return nil
	}

	client, err := mqtt.Connect(r.cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttLog := r.logger.Component("mqtt")
	client.SetLogger(mqttLog)
	*closers = append(*closers, func() {
		if err := client.Close(); err != nil {
			r.logger.Error("error closing MQTT", "error", err)
		}
	})

	bridge := mqtt.NewBridge(client, r.controller, mqttLog)
	r.board.AddSink(bridge)
	resync := func() {
		frame, _ := r.board.Frame()
		bridge.Resync(r.board.Snapshot(), frame)
	}
	client.SetOnConnect(func() {
		r.logger.Info("MQTT reconnected")
		resync()
	})
	resync()
	g.Go(func() error { return bridge.Run(ctx) })

	r.logger.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", r.cfg.MQTT.Broker.Host, r.cfg.MQTT.Broker.Port),
		"client_id", r.cfg.MQTT.Broker.ClientID,
	)
	return nil
}
