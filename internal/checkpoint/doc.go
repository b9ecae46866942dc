// Package checkpoint provides SQLite-backed durable storage for sync
// progress.
//
// Three tables hold the synchronizer's whole state:
//   - sent_checks: the delivered set, one row per confirmed record
//   - terminal_parking_associations: static terminal -> facility lookup
//   - last_processed_operation: the singleton checkpoint cursor
//
// # Invariants
//
//   - The cursor never decreases: every advance is guarded by
//     mysql_id < new value, across the process lifetime and restarts.
//   - Delivered-set inserts are idempotent (INSERT OR IGNORE on the
//     record ID), so resumption after a crash cannot duplicate entries.
//   - MarkDelivered is atomic per record: the set insert and the
//     conditional cursor advance commit as one transaction, so a crash
//     cannot leave a delivered-but-unrecorded record.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package checkpoint
