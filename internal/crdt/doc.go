// Package crdt implements the Document: an immutable, mergeable container for
// the domain snapshot.
//
// Model
//
// A Document holds one map per synchronizable field (ir.Fields). Each map is
// keyed by item identity (see ItemKey) and every entry carries two
// last-writer-wins registers:
//
//	value register     {stamp, data | deleted}   edits and deletions
//	position register  {stamp, index}           the item's place in its list
//
// A stamp is a (counter, actor) pair. Change stamps every register it touches
// with (clock+1, actor), where clock is the highest counter the Document has
// seen, so one change is one counter tick.
//
// Merge
//
// Merge takes the union of keys per field. When both sides hold a key, each
// register keeps the greater stamp: higher counter wins, equal counters are
// broken by the lexicographically greater actor. Equal stamps with different
// content only occur for forged input; the register with the byte-wise
// greater canonical encoding wins so Merge stays commutative. Merge is
// commutative, associative and idempotent.
//
// Deleted items stay behind as tombstones so that a deletion and a concurrent
// edit resolve by stamp like any other pair of writes.
//
// Encoding
//
// Save produces canonical JSON (see ir.MarshalCanonical): the same Document
// always yields the same bytes. Load is strict and reports every problem as a
// *DecodeError without touching any existing Document.
package crdt
