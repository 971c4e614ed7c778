package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Status represents the current state of a supervised process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

// maxLineSize bounds a single stdout line. getevent lines are short; this
// only guards against a runaway child.
const maxLineSize = 64 * 1024

// Config holds configuration for a supervised process.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string

	// RestartOnExit reopens the process whenever it exits, cleanly or not,
	// until Stop is called or the context is cancelled.
	RestartOnExit bool

	// RestartDelay is the time to wait before reopening.
	RestartDelay time.Duration

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// OnLine receives every stdout line, without the trailing newline.
	// It is called from a single goroutine per process instance.
	OnLine func(line string)

	// OnStart is called when the process starts successfully.
	OnStart func()

	// OnStop is called when the process exits (err is nil on requested stop).
	OnStop func(err error)

	// OnRestart is called before each restart attempt.
	OnRestart func(attempt int)
}

// DefaultConfig returns a Config that restarts forever every two seconds.
func DefaultConfig(name, binary string, args []string) Config {
	return Config{
		Name:            name,
		Binary:          binary,
		Args:            args,
		RestartOnExit:   true,
		RestartDelay:    2 * time.Second,
		GracefulTimeout: 3 * time.Second,
	}
}

// Logger defines the logging interface for the runner.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Runner supervises one child process and streams its output.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Runner struct {
	config Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	readers       *sync.WaitGroup
	status        Status
	restartCount  int
	lastError     error
	startTime     time.Time
	stopRequested bool

	lines atomic.Int64

	done chan struct{}
}

// NewRunner creates a runner with the given configuration.
func NewRunner(cfg Config) *Runner {
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = 2 * time.Second
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = 3 * time.Second
	}

	return &Runner{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the runner.
func (r *Runner) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

func (r *Runner) log() Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.logger
}

// Start launches the process and begins supervising it.
// Returns an error if the first launch fails.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.status == StatusRunning || r.status == StatusStarting {
		r.mu.Unlock()
		return fmt.Errorf("process %s is already running", r.config.Name)
	}
	r.status = StatusStarting
	r.stopRequested = false
	r.done = make(chan struct{})
	r.mu.Unlock()

	if err := r.startProcess(ctx); err != nil {
		r.mu.Lock()
		r.status = StatusFailed
		r.lastError = err
		close(r.done)
		r.mu.Unlock()
		return err
	}

	go r.monitor(ctx)

	return nil
}

// startProcess launches one instance of the child.
func (r *Runner) startProcess(ctx context.Context) error {
	logger := r.log()
	logger.Debug("starting process",
		"name", r.config.Name,
		"binary", r.config.Binary,
		"args", r.config.Args,
	)

	cmd := exec.CommandContext(ctx, r.config.Binary, r.config.Args...) //nolint:gosec // binary comes from validated config

	// Own process group so Stop reaches adb's children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if r.config.Env != nil {
		cmd.Env = append(os.Environ(), r.config.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", r.config.Name, err)
	}

	readers := &sync.WaitGroup{}
	readers.Add(2)
	go func() {
		defer readers.Done()
		r.readLines(stdout)
	}()
	go func() {
		defer readers.Done()
		r.logStderr(stderr)
	}()

	r.mu.Lock()
	r.cmd = cmd
	r.readers = readers
	r.status = StatusRunning
	r.startTime = time.Now()
	r.mu.Unlock()

	logger.Info("process started",
		"name", r.config.Name,
		"pid", cmd.Process.Pid,
	)

	if r.config.OnStart != nil {
		r.config.OnStart()
	}

	return nil
}

// readLines delivers stdout to OnLine one line at a time.
func (r *Runner) readLines(rd io.Reader) {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	for scanner.Scan() {
		r.lines.Add(1)
		if r.config.OnLine != nil {
			r.config.OnLine(scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil {
		r.log().Debug("stdout stream closed", "name", r.config.Name, "error", err)
	}
}

// logStderr forwards stderr lines to the debug log.
func (r *Runner) logStderr(rd io.Reader) {
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		r.log().Debug("process stderr", "name", r.config.Name, "output", scanner.Text())
	}
}

// wait blocks until the current instance exits. Pipes must be fully read
// before cmd.Wait closes them.
func (r *Runner) wait() error {
	r.mu.RLock()
	cmd := r.cmd
	readers := r.readers
	r.mu.RUnlock()

	if cmd == nil {
		return nil
	}
	readers.Wait()
	return cmd.Wait()
}

// monitor watches the process and handles restarts.
func (r *Runner) monitor(ctx context.Context) {
	r.mu.RLock()
	done := r.done
	r.mu.RUnlock()
	defer close(done)

	for {
		err := r.wait()

		r.mu.Lock()
		stopRequested := r.stopRequested
		r.mu.Unlock()

		if stopRequested || ctx.Err() != nil {
			r.log().Info("process stopped", "name", r.config.Name)
			r.mu.Lock()
			r.status = StatusStopped
			r.mu.Unlock()
			if r.config.OnStop != nil {
				r.config.OnStop(nil)
			}
			return
		}

		if err == nil {
			err = errors.New("process exited")
		}
		r.log().Warn("process exited", "name", r.config.Name, "error", err)

		r.mu.Lock()
		r.lastError = err
		r.status = StatusFailed
		r.mu.Unlock()

		if r.config.OnStop != nil {
			r.config.OnStop(err)
		}

		if !r.config.RestartOnExit {
			return
		}

		r.mu.Lock()
		r.restartCount++
		attempt := r.restartCount
		r.mu.Unlock()

		if r.config.MaxRestartAttempts > 0 && attempt > r.config.MaxRestartAttempts {
			r.log().Error("max restart attempts reached",
				"name", r.config.Name,
				"attempts", attempt,
			)
			return
		}

		if r.config.OnRestart != nil {
			r.config.OnRestart(attempt)
		}

		// Retry until a launch succeeds or the runner is stopped.
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.config.RestartDelay):
			}

			r.mu.RLock()
			stopRequested = r.stopRequested
			r.mu.RUnlock()
			if stopRequested {
				r.mu.Lock()
				r.status = StatusStopped
				r.mu.Unlock()
				return
			}

			if err := r.startProcess(ctx); err != nil {
				r.log().Error("failed to restart process", "name", r.config.Name, "error", err)
				r.mu.Lock()
				r.lastError = err
				r.mu.Unlock()
				continue
			}
			break
		}
	}
}

// Stop terminates the process group and waits for the monitor to finish.
// It sends SIGTERM, then SIGKILL after GracefulTimeout.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if r.done == nil {
		r.mu.Unlock()
		return nil
	}
	r.stopRequested = true
	cmd := r.cmd
	status := r.status
	done := r.done
	r.mu.Unlock()

	if status != StatusRunning || cmd == nil || cmd.Process == nil {
		// Either never started or waiting between restarts.
		<-done
		return nil
	}

	pid := cmd.Process.Pid
	r.log().Debug("stopping process", "name", r.config.Name, "pid", pid)

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		r.log().Warn("failed to send SIGTERM to process group", "name", r.config.Name, "error", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(r.config.GracefulTimeout):
		r.log().Warn("graceful shutdown timeout, sending SIGKILL",
			"name", r.config.Name,
			"timeout", r.config.GracefulTimeout,
		)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing process group %s: %w", r.config.Name, err)
	}

	<-done
	return nil
}

// Status returns the current status of the process.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// IsRunning returns true if the process is currently running.
func (r *Runner) IsRunning() bool {
	return r.Status() == StatusRunning
}

// RestartCount returns the number of times the process has been restarted.
func (r *Runner) RestartCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.restartCount
}

// Lines returns how many stdout lines have been delivered.
func (r *Runner) Lines() int64 {
	return r.lines.Load()
}

// Stats describes a supervised process.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	Lines        int64         `json:"lines"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the process.
func (r *Runner) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Name:         r.config.Name,
		Status:       r.status,
		RestartCount: r.restartCount,
		Lines:        r.lines.Load(),
	}
	if r.cmd != nil && r.cmd.Process != nil && r.status == StatusRunning {
		stats.PID = r.cmd.Process.Pid
		stats.Uptime = time.Since(r.startTime)
	}
	if r.lastError != nil {
		stats.LastError = r.lastError.Error()
	}
	return stats
}
