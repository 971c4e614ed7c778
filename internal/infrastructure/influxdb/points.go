package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/tapline/internal/session"
	"github.com/nerrad567/tapline/internal/supervisor"
)

// Measurement names.
const (
	MeasurementCommand    = "command"
	MeasurementConnection = "connection"
	MeasurementTouch      = "touch"
)

// CommandPoint converts an executed command.
func CommandPoint(rec session.Record) *write.Point {
	outcome := "ok"
	if rec.Err != nil {
		outcome = "error"
	}
	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(
		MeasurementCommand,
		map[string]string{
			"kind":    string(rec.Command.Kind()),
			"outcome": outcome,
			"class":   rec.Class.String(),
		},
		map[string]any{
			"duration_ms": float64(rec.Duration.Microseconds()) / 1000,
		},
		at,
	)
}

// ConnectionPoint converts a connection transition.
func ConnectionPoint(from supervisor.State, s supervisor.Snapshot) *write.Point {
	at := s.Since
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(
		MeasurementConnection,
		map[string]string{
			"from": string(from),
			"to":   string(s.State),
		},
		map[string]any{
			"attempt":       int64(s.Backoff.Attempt),
			"next_delay_ms": s.Backoff.NextDelay.Milliseconds(),
		},
		at,
	)
}

// TouchPoint records a touch pause starting or ending.
func TouchPoint(active bool, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementTouch,
		nil,
		map[string]any{"active": active},
		at,
	)
}
