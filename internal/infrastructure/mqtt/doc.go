// Package mqtt connects tapline to an MQTT broker.
//
// This package manages:
//   - The broker connection with auto-reconnect and subscription restore
//   - Last Will and Testament on tapline/system/status
//   - The Bridge: retained state publication and command intake
//
// # Topics
//
//	tapline/state/{section}          retained JSON per status board section
//	tapline/state/screenshot/frame   retained raw PNG of the latest frame
//	tapline/command/{name}           JSON commands from automation peers
//	tapline/ack/{name}               command results
//	tapline/system/status            online/offline, with LWT
//
// # Security Considerations
//
//   - Enable TLS (broker.tls) when the broker is not on localhost
//   - Payloads are capped at 1 MiB
package mqtt
