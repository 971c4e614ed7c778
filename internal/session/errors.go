package session

import "errors"

// Domain errors for the session package.
var (
	// ErrInvalidInput is returned when a command fails validation before it
	// reaches the device, for example coordinates outside the screen.
	ErrInvalidInput = errors.New("session: invalid input")

	// ErrTimeout is returned when a device call exceeds its deadline.
	// The worker running the call is abandoned and the session is poisoned.
	ErrTimeout = errors.New("session: device call timed out")

	// ErrDisconnected completes every command that was queued or in flight
	// when the device link was lost.
	ErrDisconnected = errors.New("session: device disconnected")

	// ErrCancelled is returned to every waiter once the queue is shut down.
	ErrCancelled = errors.New("session: cancelled")

	// ErrSessionClosed is returned by Run on a session that already finished.
	ErrSessionClosed = errors.New("session: session already closed")
)
