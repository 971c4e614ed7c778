// Package api provides the HTTP REST API and WebSocket server for tapline.
//
// It exposes the command surface (automation run state, timed events,
// device actions, touch overrides) and the observable state surface to
// local front ends. State changes are pushed to WebSocket clients from the
// status board.
//
// The server follows the same lifecycle as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// # Routes
//
// All routes live under /api/v1. Errors are JSON:
//
//	{"status": 409, "code": "conflict", "message": "scheduler: automation not paused"}
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
