// Package app wires tapline together.
//
// A Runtime owns the command queue, connection supervisor, touch monitor,
// automation scheduler and status board, plus the optional outer surfaces
// (HTTP API, MQTT bridge, InfluxDB telemetry, SQLite command history). Run
// starts every loop under one errgroup and tears them down in reverse
// order when the context ends or Shutdown is requested.
//
// The Controller is the command surface shared by the API and the MQTT
// bridge.
package app
