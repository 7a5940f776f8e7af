// Package store provides an SQLite-backed archive of simulation runs.
//
// The archive is append-only and holds:
//   - Runs: one record per cluster run, keyed by a UUIDv7 run id
//   - Machines: the configuration each machine in a run was started with
//   - Events: every event-log entry, in the order each machine wrote it
//
// Events are ordered per machine by seq, the position of the entry in that
// machine's log. Wall-clock timestamps are stored for analysis but never used
// for ordering; two machines' timestamps are not comparable.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
