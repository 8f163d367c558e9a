// Package database provides SQLite storage for the node's local state.
//
// This package manages:
//   - Database connection with optional WAL mode
//   - Forward-only schema migrations read from an fs.FS
//   - Health checks for the diagnostics endpoint
//
// The node keeps very little on disk: persisted settings and a short
// history of update attempts. Both are wiped by a factory erase.
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files are named NNNN_description.up.sql with an optional
// matching .down.sql; NNNN orders them.
package database
