// Package scheduler fires timed automation events against the device.
//
// Each TimedEvent has an interval. On every tick, events whose interval has
// elapsed are submitted to the command queue in the order they were added.
// Submission is gated: while the device is not connected, or a human is
// touching it, due events are deferred. A deferred event stays due and fires
// once on the first tick after the gate opens; it is never dropped and never
// fired twice for the same interval.
//
// Automation has a run state (idle, running, paused). Events only fire while
// running; Trigger fires a single event on demand regardless of run state.
package scheduler
