package crdt

import (
	"bytes"
	"slices"
	"strings"

	"github.com/roach88/nexus/internal/ir"
)

// valueReg is the value register of an entry. data is nil when deleted.
type valueReg struct {
	stamp   Stamp
	data    ir.IRObject
	deleted bool
}

// posReg is the position register of an entry.
type posReg struct {
	stamp Stamp
	index int64
}

type entry struct {
	val valueReg
	pos posReg
}

func (e entry) live() bool {
	return !e.val.deleted
}

// fieldMap maps item keys to entries. A fieldMap is never modified once it
// belongs to a Document, so Documents share them freely.
type fieldMap map[string]entry

// Document is an immutable replica of the synchronized state.
// The zero value is not usable; start from Empty or Load.
type Document struct {
	clock  int64
	fields map[ir.Field]fieldMap
}

// Empty returns a Document with every field present and no items.
func Empty() *Document {
	d := &Document{fields: make(map[ir.Field]fieldMap, len(ir.Fields))}
	for _, f := range ir.Fields {
		d.fields[f] = fieldMap{}
	}
	return d
}

// Clock returns the highest counter recorded in the Document.
func (d *Document) Clock() int64 {
	return d.clock
}

// Snapshot projects the Document into plain lists. Live items of each field
// are ordered by (position index, key); tombstones are omitted. The returned
// items are copies.
func (d *Document) Snapshot() ir.Snapshot {
	s := ir.EmptySnapshot()
	for _, f := range ir.Fields {
		keys := d.fields[f].liveKeys()
		items := make([]ir.IRObject, len(keys))
		for i, k := range keys {
			items[i] = ir.CloneObject(d.fields[f][k].val.data)
		}
		s.SetList(f, items)
	}
	return s
}

// liveKeys returns the keys of live entries in snapshot order.
func (m fieldMap) liveKeys() []string {
	keys := make([]string, 0, len(m))
	for k, e := range m {
		if e.live() {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, func(a, b string) int {
		ia, ib := m[a].pos.index, m[b].pos.index
		switch {
		case ia < ib:
			return -1
		case ia > ib:
			return 1
		}
		return strings.Compare(a, b)
	})
	return keys
}

// Len returns the number of live items in f.
func (d *Document) Len(f ir.Field) int {
	n := 0
	for _, e := range d.fields[f] {
		if e.live() {
			n++
		}
	}
	return n
}

// Entry describes one keyed entry, live or tombstoned.
type Entry struct {
	Key      string
	Data     ir.IRObject
	Deleted  bool
	Stamp    Stamp
	Index    int64
	PosStamp Stamp
}

// Entry returns the entry stored under key in f.
func (d *Document) Entry(f ir.Field, key string) (Entry, bool) {
	e, ok := d.fields[f][key]
	if !ok {
		return Entry{}, false
	}
	return Entry{
		Key:      key,
		Data:     ir.CloneObject(e.val.data),
		Deleted:  e.val.deleted,
		Stamp:    e.val.stamp,
		Index:    e.pos.index,
		PosStamp: e.pos.stamp,
	}, true
}

// Keys returns every key of f, tombstones included, in byte order.
func (d *Document) Keys(f ir.Field) []string {
	keys := make([]string, 0, len(d.fields[f]))
	for k := range d.fields[f] {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Equal reports whether two Documents encode to the same bytes.
func (d *Document) Equal(o *Document) bool {
	return bytes.Equal(Save(d), Save(o))
}
