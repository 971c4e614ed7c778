package scheduler

import "errors"

// Domain errors for the scheduler package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, scheduler.ErrEventNotFound) {
//	    // respond 404
//	}
var (
	// ErrEventNotFound is returned when a timed event ID does not exist.
	ErrEventNotFound = errors.New("scheduler: event not found")

	// ErrEventExists is returned when adding an event whose ID is taken.
	ErrEventExists = errors.New("scheduler: event already exists")

	// ErrInvalidEvent is returned when an event definition fails validation.
	ErrInvalidEvent = errors.New("scheduler: invalid event")

	// ErrNotConnected is returned by Trigger while the device is offline.
	ErrNotConnected = errors.New("scheduler: device not connected")

	// ErrEventBusy is returned by Trigger while the event is already firing.
	ErrEventBusy = errors.New("scheduler: event already firing")

	// ErrNotRunning is returned by Pause when automation is not running.
	ErrNotRunning = errors.New("scheduler: automation not running")

	// ErrNotPaused is returned by Resume when automation is not paused.
	ErrNotPaused = errors.New("scheduler: automation not paused")
)
