package supervisor

import "errors"

// Domain errors for the supervisor package.
var (
	// ErrNoDevice is returned by discovery when no usable device is attached.
	ErrNoDevice = errors.New("supervisor: no device found")

	// ErrHandshakeFailed wraps authentication failures.
	ErrHandshakeFailed = errors.New("supervisor: handshake failed")

	// ErrAlreadyRunning is returned when Run is called while a loop is active.
	ErrAlreadyRunning = errors.New("supervisor: already running")
)
