// Package engine owns the live Document of one device and keeps it durable.
//
// ARCHITECTURE:
//
// Mutation Guard:
// Every read or replacement of the live Document happens under one mutex.
// Local changes (Apply, Change) and inbound merges (Merge) are therefore
// strictly ordered on a single logical timeline.
//
// Flush Guard:
// A second mutex admits at most one flush at a time. Sync blocks for it;
// scheduler ticks use TryLock and are dropped while a flush runs. The
// mutation guard is held only to capture the current Document, never
// across hashing or I/O, so mutations proceed while a flush writes.
//
// Pending Tracking:
// Each effective mutation advances a generation Clock. A flush records the
// generation it serialized; the engine is pending while the current
// generation is ahead of the last flushed one. A mutation that lands during
// a flush's I/O stays pending for the next tick.
//
// Flush Sequence:
//  1. capture Document and generation under the mutation guard
//  2. serialize (crdt.Save) and hash (ir.DocumentToken)
//  3. token equals SyncState.SyncToken: clear pending, report no change
//  4. otherwise write document and syncState in one batch, then record the
//     new SyncState
//
// Flushes are strictly ordered, and each serializes the newest Document, so
// a flush never persists bytes causally older than an earlier flush.
//
// Scheduler:
// Scheduler ticks at a fixed interval and flushes when pending. Failed
// flushes arm capped exponential backoff; the next retry waits for the
// backoff deadline. Stop waits for an in-flight flush to finish.
package engine
