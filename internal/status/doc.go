// Package status holds the observable state surface: the single place the
// front ends read from.
//
// Components push changes into a Board (connection, run state, touch pause,
// timer countdowns, screenshots, status messages). The Board keeps the
// latest snapshot and forwards each change to its sinks, such as the
// WebSocket hub and the MQTT publisher.
//
// Thread Safety:
//   - All Board methods are safe for concurrent use.
//   - Sinks are called without the lock held, in registration order.
package status
