// Package store provides the durable key-value persistence the sync engine
// writes through.
//
// The engine persists two records:
//   - "document": the serialized Document (crdt.Save bytes)
//   - "syncState": canonical JSON {deviceId, lastSynced, syncToken}
//
// # Adapter Contract
//
//   - Connect must succeed before Get or Set; both fail with ErrNotConnected
//     otherwise rather than blocking.
//   - Set is durable before it returns.
//   - Writes are all-or-nothing: a failed Set or SetBatch leaves the previous
//     value of every key in place.
//
// # Database Configuration
//
// The SQLite adapter keeps records in a single kv table:
//   - WAL mode: readers never block the writer
//   - synchronous=FULL: a committed write survives power loss
//   - busy_timeout=5000: wait for locks up to 5 seconds
//
// Memory is an in-process adapter for tests and ephemeral sessions.
package store
