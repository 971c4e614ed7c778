// Package influxdb exports session telemetry to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Points are written
// through the non-blocking batched write API, so a slow or absent server
// never delays a device command.
//
// Measurements:
//   - command: tags kind, outcome, class; field duration_ms
//   - connection: tags from, to; fields attempt, next_delay_ms
//   - touch: field active
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	rec := influxdb.NewRecorder(client)
//	sessionOpts.Recorder = rec
//	sup.OnChange(rec.ObserveConnection)
//
// Write errors arrive asynchronously through SetOnError.
package influxdb
