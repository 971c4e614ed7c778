package adb

import (
	"context"
	"fmt"
	"strings"

	"github.com/nerrad567/tapline/internal/device"
	"github.com/nerrad567/tapline/internal/session"
	"github.com/nerrad567/tapline/internal/supervisor"
	"github.com/nerrad567/tapline/internal/touch"
)

// DefaultPath is the adb binary looked up on PATH.
const DefaultPath = "adb"

// Logger is the logging interface used by the connector.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ConnectorOptions configures a Connector.
type ConnectorOptions struct {
	// Path is the adb binary. Empty uses DefaultPath.
	Path string

	// Serial pins one device. Empty picks the first online device.
	Serial string

	// Executor runs adb. Nil uses ExecExecutor.
	Executor Executor

	Logger Logger
}

// Connector finds devices and opens handles. It implements
// supervisor.Connector.
type Connector struct {
	path   string
	serial string
	exec   Executor
	logger Logger
}

// NewConnector creates a connector.
func NewConnector(opts ConnectorOptions) *Connector {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Executor == nil {
		opts.Executor = ExecExecutor{}
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Connector{
		path:   opts.Path,
		serial: opts.Serial,
		exec:   opts.Executor,
		logger: opts.Logger,
	}
}

// Path returns the adb binary path.
func (c *Connector) Path() string {
	return c.path
}

// Devices lists attached devices.
func (c *Connector) Devices(ctx context.Context) ([]device.Info, error) {
	out, err := c.exec.Output(ctx, c.path, "devices", "-l")
	if err != nil {
		return nil, err
	}
	return ParseDevices(string(out)), nil
}

// Discover returns the device to connect to.
func (c *Connector) Discover(ctx context.Context) (device.Info, error) {
	devices, err := c.Devices(ctx)
	if err != nil {
		return device.Info{}, err
	}

	info, ok := SelectDevice(devices, c.serial)
	if !ok {
		if c.serial != "" {
			return device.Info{}, fmt.Errorf("%w: serial %s", supervisor.ErrNoDevice, c.serial)
		}
		return device.Info{}, supervisor.ErrNoDevice
	}

	c.logger.Debug("device discovered",
		"serial", info.Serial,
		"state", info.State,
		"model", info.Model,
	)
	return info, nil
}

// Authenticate validates the link with "echo ok", reads the screen size and
// returns an open handle.
func (c *Connector) Authenticate(ctx context.Context, info device.Info) (session.Handle, device.Info, error) {
	switch {
	case info.State == device.StateUnauthorized:
		return nil, info, fmt.Errorf("%w: accept the USB debugging prompt on %s", ErrUnauthorized, info.Serial)
	case !info.State.Online():
		return nil, info, fmt.Errorf("%w: %s is %s", ErrHandshake, info.Serial, info.State)
	}

	out, err := c.exec.Output(ctx, c.path, "-s", info.Serial, "shell", "echo", "ok")
	if err != nil {
		return nil, info, err
	}
	if strings.TrimSpace(string(out)) != "ok" {
		return nil, info, fmt.Errorf("%w: unexpected reply %q", ErrHandshake, strings.TrimSpace(string(out)))
	}

	out, err = c.exec.Output(ctx, c.path, "-s", info.Serial, "shell", "wm", "size")
	if err != nil {
		return nil, info, err
	}
	screen, err := ParseScreenSize(string(out))
	if err != nil {
		return nil, info, err
	}
	info.Screen = screen

	return newHandle(c.exec, c.path, info.Serial), info, nil
}

// ProbeTouchDevice asks the device for its input devices and picks the
// touchscreen. The returned path is passed to EventArgs.
func ProbeTouchDevice(ctx context.Context, q *session.Queue) (touch.Candidate, error) {
	resp, err := q.Submit(ctx, session.ShellExec{Args: []string{"getevent", "-p"}})
	if err != nil {
		return touch.Candidate{}, err
	}
	return touch.SelectDevice(resp.Output)
}

// EventArgs returns the adb arguments that stream labelled input events
// with timestamps. An empty devicePath streams every input device.
func EventArgs(serial, devicePath string) []string {
	args := []string{}
	if serial != "" {
		args = append(args, "-s", serial)
	}
	args = append(args, "shell", "getevent", "-lt")
	if devicePath != "" {
		args = append(args, devicePath)
	}
	return args
}
