// Package database provides the SQLite connection used by the local
// directory store.
//
// This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - A single-connection pool matching SQLite's single-writer model
//   - Versioned schema migrations read from an fs.FS
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is restricted to 0600
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Store.SQLite)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files live at the root of the supplied filesystem and are named
// YYYYMMDD_HHMMSS_description.up.sql with an optional .down.sql partner.
package database
