// Package database provides SQLite connection management and schema
// migrations for fieldtrace.
//
// The database is opened in WAL mode with foreign keys enforced and a
// single writer connection, which serialises writes without busy-loop
// contention. Schema changes are embedded SQL migrations applied in
// version order, each inside its own transaction, tracked in the
// schema_migrations table.
package database
