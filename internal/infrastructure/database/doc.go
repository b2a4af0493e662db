// Package database provides the SQLite store behind the mapper's
// property history.
//
// This package manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Schema migrations from an fs.FS (embedded by the migrations package)
//   - Connection lifecycle and health checks
//
// The database file is created with 0600 permissions. All queries use
// parameterised statements.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: each YYYYMMDD_HHMMSS_name.up.sql should have a
// matching .down.sql, and new columns must be nullable or have defaults.
package database
