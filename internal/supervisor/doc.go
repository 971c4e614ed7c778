// Package supervisor keeps a device session alive across disconnects.
//
// The supervisor runs the connection state machine:
//
//	disconnected ──tick/reconnect──▶ connecting ──device found──▶ authenticating
//	      ▲                              │                              │
//	      │ backoff                      │ discovery failed             │ handshake ok
//	      └──────────────────────────────┴──────────────◀──────┐        ▼
//	                                                           └── connected
//	                                                 session ended (disconnect)
//
// Only the connected state drains the command queue. Every failure arms an
// exponential backoff (2s, 4s, 8s, 16s, then 30s indefinitely) that resets on
// the next successful handshake. There is no maximum attempt count: an
// unattended rig must recover whenever the cable comes back.
//
// Observers registered with OnChange receive a Snapshot on every transition
// and once per tick while a reconnect is pending, so countdowns stay live.
package supervisor
