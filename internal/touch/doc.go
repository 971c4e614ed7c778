// Package touch detects a human using the device and tells automation to
// stand back.
//
// Monitor holds the activity flag. Every touch event restarts an inactivity
// countdown (30 seconds by default); when it runs out, or Clear is called,
// the flag drops and the scheduler may resume. The monitor is the only
// writer of its state: the expiry timer carries a generation number and a
// stale timer that fires after a newer touch or a Clear does nothing.
//
// Listener turns raw "getevent -lt" output into RecordActivity calls. Only
// touchscreen lines count; hardware keys such as volume or power are
// ignored.
package touch
