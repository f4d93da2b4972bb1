// Package harness runs multi-device convergence scenarios.
//
// A scenario names a set of devices, a sequence of steps performed on them
// and assertions about the final state. Every device is a full stack: an
// in-memory store, an engine, a state container and a bridge. Local edits
// go through the container exactly as an application would make them, and
// merges go through the bridge, so scenarios exercise the same paths as
// production.
//
// # Scenario Format
//
//	name: concurrent_edit
//	description: "Both devices edit one task; the later stamp wins everywhere"
//	devices: [laptop, phone]
//	steps:
//	  - device: laptop
//	    set: { field: tasks, items: [{ id: t1, title: Draft v1 }] }
//	  - device: phone
//	    merge: { from: laptop }
//	    expect: { changed: true }
//	  - device: phone
//	    upsert: { field: tasks, item: { id: t1, title: Draft v3 } }
//	  - device: laptop
//	    remove: { field: tasks, id: t1 }
//	  - device: laptop
//	    flush: true
//	assertions:
//	  - type: converged
//	  - type: items
//	    device: phone
//	    field: tasks
//	    ids: [t1]
//
// # Step Types
//
// Each step carries exactly one operation:
//
//   - set: replace a list in the device's container
//   - upsert: replace the item with the same id, or append it
//   - remove: drop the item with the given id
//   - merge: merge another device's current document (from) or raw bytes (raw)
//   - flush: force a sync of the device's engine
//   - restart: close the device and reopen it on the same store
//   - fail_writes: make the device's store fail (true) or recover (false)
//   - advance: move the shared wall clock forward by a duration
//
// # Assertion Types
//
//   - converged: the devices (default: all) hold identical document bytes
//     and identical container snapshots
//   - items: the ids of a list, in order
//   - item: a subset match on one item's members
//   - pending: whether the device has unflushed changes
//   - persisted: the stored document equals the live one
//
// # Determinism
//
// Device ids are the device names and the wall clock starts at
// testutil.Epoch, so a scenario always produces the same documents and can
// be compared against golden files.
package harness
