// Package logging provides structured logging for Tapline.
//
// This package wraps Go's standard log/slog package so every component
// logs through the same handler with the same default fields.
//
//   - JSON output for unattended runs
//   - Text output for a terminal
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("device connected", "serial", info.Serial)
//	logger.Error("capture failed", "error", err)
package logging
