package adb

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Handle is an open device. It implements session.Handle.
//
// Calls block until adb returns; callers bound them with a session.Guard.
// Close cancels the handle context, which kills every child still running.
//
// Thread Safety:
//   - Safe for concurrent use, though a session issues one call at a time.
type Handle struct {
	exec   Executor
	path   string
	serial string

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

func newHandle(exec Executor, path, serial string) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	return &Handle{
		exec:   exec,
		path:   path,
		serial: serial,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Serial returns the device serial this handle talks to.
func (h *Handle) Serial() string {
	return h.serial
}

func (h *Handle) run(args ...string) ([]byte, error) {
	if h.ctx.Err() != nil {
		return nil, fmt.Errorf("%w: device not connected", ErrHandleClosed)
	}
	return h.exec.Output(h.ctx, h.path, append([]string{"-s", h.serial}, args...)...)
}

// Tap sends "input tap X Y".
func (h *Handle) Tap(x, y int) error {
	out, err := h.run("shell", "input", "tap", strconv.Itoa(x), strconv.Itoa(y))
	if err != nil {
		return err
	}
	return inputError(out)
}

// Swipe sends "input swipe X1 Y1 X2 Y2 MS".
func (h *Handle) Swipe(x1, y1, x2, y2 int, duration time.Duration) error {
	out, err := h.run("shell", "input", "swipe",
		strconv.Itoa(x1), strconv.Itoa(y1),
		strconv.Itoa(x2), strconv.Itoa(y2),
		strconv.FormatInt(duration.Milliseconds(), 10),
	)
	if err != nil {
		return err
	}
	return inputError(out)
}

// CaptureFrame returns a PNG screenshot from "exec-out screencap -p".
func (h *Handle) CaptureFrame() ([]byte, error) {
	out, err := h.run("exec-out", "screencap", "-p")
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(out, pngSignature) {
		return nil, fmt.Errorf("%w: %d bytes without PNG signature", ErrInvalidFrame, len(out))
	}
	return out, nil
}

// Shell runs a device shell command and returns its trimmed output.
func (h *Handle) Shell(args ...string) (string, error) {
	out, err := h.run(append([]string{"shell"}, args...)...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Close kills in-flight children. It is idempotent.
func (h *Handle) Close() error {
	h.closeOnce.Do(h.cancel)
	return nil
}

// inputError surfaces failures that "input" prints with a zero exit status.
func inputError(out []byte) error {
	msg := strings.TrimSpace(string(out))
	if msg == "" {
		return nil
	}
	if strings.Contains(msg, "Exception") || strings.HasPrefix(strings.ToLower(msg), "error") {
		return fmt.Errorf("adb input: %s", firstLine(msg))
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
