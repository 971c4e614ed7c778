// Package session owns the single device link and everything that touches it.
//
// # Components
//
//   - Queue: bounded FIFO of pending commands with blocking backpressure.
//     Producers (scheduler, API, vision requests) call Submit and wait for
//     the result.
//   - Session: the drain loop. Exactly one command executes at a time against
//     the Handle it exclusively owns.
//   - Guard: runs each blocking Handle call on a worker goroutine and races it
//     against a deadline. Calls that miss the deadline are abandoned.
//   - Classify: maps transport failures to Disconnect, InvalidInput or
//     Transient.
//
// # Lifecycle
//
// A Session lives for exactly one connection. When a call is classified as
// a disconnect, or a call times out, the session completes the offending
// command and every queued command with ErrDisconnected and Run returns.
// The connection supervisor then builds a new Session around a new Handle;
// the Queue outlives individual sessions.
//
// # Thread Safety
//
// Queue.Submit is safe for concurrent use. A Session must only be run once.
package session
