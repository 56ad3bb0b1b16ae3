// Package store provides a bun-based SQLite storage implementation of
// the gridjob state model: jobs, array tasks and dependency edges.
//
// # Overview
//
// The store backend provides:
//
//   - durable persistence of jobs, array tasks and dependencies
//   - atomic state transitions, serialized through an exclusive Session
//   - crash-safe recovery via Session.Refresh
//
// It is built on github.com/uptrace/bun over modernc.org/sqlite, the
// same stack the gqs teacher project uses for its own SQL backend.
//
// # Session discipline
//
// All mutating operations require a live Session, obtained with
// Store.Lock. Re-entrant acquisition returns ErrDeadlock. A Session
// wraps a single database transaction; callers must Commit or Rollback
// it and must always defer Release, which is a guaranteed, idempotent
// safety net that rolls back and frees the store-wide lock if Commit or
// Rollback was never reached (including on signal-driven shutdown).
//
// # Schema
//
// InitDB creates the jobs, array_tasks and dependencies tables (if not
// already present) plus the indexes required for efficient filtering by
// status and lookups by external id. InitDB is idempotent and runs
// inside a single transaction; it never performs destructive migrations.
// An older database file missing a column added by a later schema
// version is expected to fail at first query with a clear SQLite error
// naming the missing column — this package does not attempt silent
// schema upgrades.
package store
