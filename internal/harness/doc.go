// Package harness runs YAML scenarios against a fresh coordinator and
// compares the resulting trace with golden snapshots.
//
// Each scenario runs on a private in-memory store with a fake clock that
// starts at a fixed epoch and only moves on "advance" steps, and with
// sequential reservation ids, so the same scenario always produces a
// byte-identical snapshot.
//
// Scenario format:
//
//	name: window_admission
//	description: The window slides after the head books.
//	window: 2
//	lease_timeout: 5m
//	resources:
//	  - {id: bus-1, capacity: 1}
//	steps:
//	  - {op: join, subject: A}
//	  - {op: advance, duration: 20s}
//	  - {op: reserve, subject: A, resource: bus-1}
//	  - {op: reserve, subject: B, resource: bus-1, expect: RESOURCE_FULL}
//	assertions:
//	  - {type: queue_order, subjects: [B]}
//	  - {type: invariants}
//
// Golden files live in testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
