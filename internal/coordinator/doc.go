// Package coordinator is the serialization point of the boarding core.
//
// Every structural mutation (join, leave, forced eviction, reservation
// create/change/cancel, directory sync) acquires the coordinator mutex and
// then runs inside one immediate SQLite transaction. The mutex linearizes
// callers in this process; the immediate transaction serializes against
// other processes sharing the database file. Reads bypass the mutex and
// see the latest committed state.
//
// After every committed removal the entries that shifted into the
// admission window receive a lease in the same transaction, so these
// invariants hold between any two operations:
//
//   - positions are exactly 1..N
//   - a subject is queued or holds a reservation, never both
//   - an entry holds a lease iff its position is <= K
//   - reserved_count <= capacity for every resource
//
// The Sweeper evicts expired leases through the same path as LeaveQueue.
package coordinator
