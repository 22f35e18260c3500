// Package store provides SQLite-backed durable storage for the boarding core.
//
// Three tables hold all committed state:
//   - queue_entries: subject_id, dense position, joined_at, lease_expires_at
//   - resources: fixed capacities and the reserved_count counter
//   - reservations: at most one row per subject, referencing a resource
//
// # Atomicity
//
// Every structural mutation runs inside one transaction obtained through
// WithTx. Transactions begin IMMEDIATE (the _txlock DSN option) so two
// processes sharing the database file serialize at BEGIN rather than failing
// at COMMIT. SQLITE_BUSY and SQLITE_LOCKED are retried with linear backoff;
// when retries run out the caller receives a CONCURRENT_CONFLICT error.
//
// Position compaction after a removal is a single negate-then-flip statement
// pair, so the UNIQUE(position) index never observes a transient duplicate
// and no reader can observe a gap.
//
// Capacity checks are a single conditional UPDATE guarded by
// reserved_count < capacity, backed by a CHECK constraint.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000 (WithBusyTimeout)
//   - foreign_keys=ON
//
// All timestamps are stored as Unix milliseconds.
package store
