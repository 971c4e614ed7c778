package session

import (
	"fmt"
	"strings"
	"time"
)

// Handle is the blocking device primitive a Session drives.
//
// Implementations may block indefinitely (a hung USB link never returns);
// callers bound every call with a Guard. A Handle is owned by exactly one
// Session and is never shared.
type Handle interface {
	Tap(x, y int) error
	Swipe(x1, y1, x2, y2 int, duration time.Duration) error
	CaptureFrame() ([]byte, error)
	Shell(args ...string) (string, error)
	Close() error
}

// Kind identifies a command variant.
type Kind string

// Command kinds.
const (
	KindTap     Kind = "tap"
	KindSwipe   Kind = "swipe"
	KindCapture Kind = "capture"
	KindShell   Kind = "shell"
)

// Command is a device operation. The set of variants is closed:
// Tap, Swipe, CaptureFrame and ShellExec.
type Command interface {
	Kind() Kind
	String() string
	command()
}

// Tap touches a single point.
type Tap struct {
	X, Y int
}

// Swipe drags from (X1,Y1) to (X2,Y2) over Duration.
// A zero Duration uses the session's default swipe duration.
type Swipe struct {
	X1, Y1   int
	X2, Y2   int
	Duration time.Duration
}

// CaptureFrame grabs a PNG screenshot.
type CaptureFrame struct{}

// ShellExec runs a shell command on the device and returns its output.
type ShellExec struct {
	Args []string
}

func (Tap) Kind() Kind          { return KindTap }
func (Swipe) Kind() Kind        { return KindSwipe }
func (CaptureFrame) Kind() Kind { return KindCapture }
func (ShellExec) Kind() Kind    { return KindShell }

func (c Tap) String() string { return fmt.Sprintf("tap(%d,%d)", c.X, c.Y) }
func (c Swipe) String() string {
	return fmt.Sprintf("swipe(%d,%d -> %d,%d, %s)", c.X1, c.Y1, c.X2, c.Y2, c.Duration)
}
func (CaptureFrame) String() string { return "capture" }
func (c ShellExec) String() string  { return "shell(" + strings.Join(c.Args, " ") + ")" }

func (Tap) command()          {}
func (Swipe) command()        {}
func (CaptureFrame) command() {}
func (ShellExec) command()    {}

// Response carries the payload of a completed command.
// Frame is set for CaptureFrame, Output for ShellExec.
type Response struct {
	Frame    []byte
	Output   string
	Duration time.Duration
}

// Record describes one executed command, reported to a Recorder.
type Record struct {
	Command  Command
	Class    Class
	Err      error
	Duration time.Duration
	At       time.Time
}

// Recorder receives a Record for every command the session executes.
// Implementations must not block.
type Recorder interface {
	RecordCommand(rec Record)
}

// Logger is the logging interface used by this package.
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

type noopRecorder struct{}

func (noopRecorder) RecordCommand(Record) {}
