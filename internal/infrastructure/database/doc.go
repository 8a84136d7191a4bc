// Package database provides SQLite database connectivity for VoltHome Core.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Embedded schema migrations with a schema_migrations table
//   - Connection pool pinned to the single SQLite writer
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration Strategy:
//
// Sync tables never physically delete rows (tombstones only), and
// migrations are additive-only to match:
//   - New columns must be NULLABLE or have DEFAULT values
//   - Never DROP or RENAME columns
//   - Each migration file has both .up.sql and .down.sql
package database
