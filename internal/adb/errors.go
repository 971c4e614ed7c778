package adb

import "errors"

// Domain errors for the adb package.
var (
	// ErrUnauthorized is returned when the device has not accepted this
	// host's RSA key.
	ErrUnauthorized = errors.New("adb: device unauthorized")

	// ErrHandshake is returned when the device does not answer the
	// validation command.
	ErrHandshake = errors.New("adb: handshake failed")

	// ErrScreenSize is returned when "wm size" output cannot be parsed.
	ErrScreenSize = errors.New("adb: cannot determine screen size")

	// ErrInvalidFrame is returned when screencap output is not a PNG.
	ErrInvalidFrame = errors.New("adb: invalid frame")

	// ErrHandleClosed is returned by calls on a closed Handle.
	ErrHandleClosed = errors.New("adb: handle closed")
)
