// Package database provides the SQLite store behind the command history.
//
// This package manages:
//   - The connection, with WAL mode so history reads do not block writes
//   - Schema migrations applied from an fs.FS (see the migrations package)
//   - Health checks for the /health endpoint
//
// The store is append-only from tapline's point of view. Nothing is read
// back at startup; the history exists for operators and the /history API.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: "./data/tapline.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
