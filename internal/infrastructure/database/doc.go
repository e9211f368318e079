// Package database provides SQLite connection management and schema
// migrations for fleet-core.
//
// The database is the authoritative store for device state. It is opened
// with WAL mode and foreign keys enforced, and restricted to a single
// writer connection so that transactions serialise naturally. The
// heartbeat pipeline and staleness sweeper both rely on this to resolve
// races through conditional SQL rather than in-process locks.
//
// Migrations are embedded SQL files registered by the top-level
// migrations package via MigrationsFS. Each migration applies in its own
// transaction and is recorded in schema_migrations.
package database
