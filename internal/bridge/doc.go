// Package bridge connects the domain state container to the sync engine.
//
// The Bridge is the only code that writes the container on behalf of sync.
// Local edits arrive as container notifications, are queued as ChangeEvents
// and folded into the Document by Run or Drain. Remote documents arrive
// through Merge, which writes the merged snapshot back in one replace and
// flushes immediately.
//
// MERGE WRITE-BACK:
// Merge writes the merged snapshot back with a compare-and-swap on the
// container version. The write's own notification carries a version the
// Bridge has already recorded, so a merge never comes back as a local
// change. If a local write landed in between, it is applied first and the
// write-back retried.
//
// REBASING:
// A local event is a whole-snapshot replacement computed from the
// container, which may lag behind the Document during a merge. The Bridge
// keeps the projection it last applied and replays only the items an event
// changed on top of the Document's current snapshot.
//
// STALE EVENTS:
// Events carry the container version of the write that produced them.
// Concurrent writers may deliver notifications out of order; an event older
// than one already applied is dropped.
package bridge
