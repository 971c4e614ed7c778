package session

import (
	"errors"
	"strings"
)

// Class is the outcome category of a failed device call.
type Class int

// Error classes. ClassNone means the call succeeded.
const (
	ClassNone Class = iota
	ClassTransient
	ClassInvalidInput
	ClassDisconnect
	ClassCancelled
)

// String returns the lower-case class name used in logs and telemetry.
func (c Class) String() string {
	switch c {
	case ClassNone:
		return "ok"
	case ClassTransient:
		return "transient"
	case ClassInvalidInput:
		return "invalid_input"
	case ClassDisconnect:
		return "disconnect"
	case ClassCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// disconnectPatterns mark a dead or unusable link. "timeout" is included:
// a device that stops answering is treated the same as one that is gone.
var disconnectPatterns = []string{
	"device offline",
	"device not found",
	"emulator not found",
	"no devices/emulators found",
	"connection refused",
	"broken pipe",
	"connection reset",
	"transport error",
	"connection closed",
	"not connected",
	"i/o error",
	"input/output error",
	"timeout",
	"timed out",
}

var invalidInputPatterns = []string{
	"out of bounds",
	"invalid argument",
	"malformed",
}

// ClassifyMessage maps an error message to a class by case-insensitive
// substring match. It never returns ClassNone or ClassCancelled.
func ClassifyMessage(msg string) Class {
	lower := strings.ToLower(msg)

	for _, p := range disconnectPatterns {
		if strings.Contains(lower, p) {
			return ClassDisconnect
		}
	}
	// adb reports a vanished serial as: error: device 'R58M123' not found
	if strings.Contains(lower, "device '") && strings.Contains(lower, "' not found") {
		return ClassDisconnect
	}

	for _, p := range invalidInputPatterns {
		if strings.Contains(lower, p) {
			return ClassInvalidInput
		}
	}

	return ClassTransient
}

// Classify maps an error to a class. Sentinel errors from this package are
// matched first; anything else falls through to ClassifyMessage.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrCancelled):
		return ClassCancelled
	case errors.Is(err, ErrInvalidInput):
		return ClassInvalidInput
	case errors.Is(err, ErrDisconnected), errors.Is(err, ErrTimeout):
		return ClassDisconnect
	}
	return ClassifyMessage(err.Error())
}

// IsDisconnect reports whether err signals a lost device link.
func IsDisconnect(err error) bool {
	return Classify(err) == ClassDisconnect
}
