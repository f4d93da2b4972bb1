package crdt

import (
	"fmt"

	"github.com/roach88/nexus/internal/ir"
)

// Draft collects the edits of one Change. Every register a Draft writes is
// stamped with the same stamp.
type Draft struct {
	base    *Document
	stamp   Stamp
	fields  map[ir.Field]fieldMap
	changed bool
}

// Change applies fn to a draft of d and returns the resulting Document.
//
// The input Document is never modified. When fn makes no effective edit,
// Change returns d itself with changed == false; callers use that to skip
// persistence. When fn fails, d is returned with its error and every edit
// is discarded.
func Change(d *Document, actor string, fn func(*Draft) error) (next *Document, changed bool, err error) {
	if actor == "" {
		return d, false, ErrEmptyActor
	}
	if d == nil {
		d = Empty()
	}

	dr := &Draft{
		base:   d,
		stamp:  Stamp{Counter: d.clock + 1, Actor: actor},
		fields: make(map[ir.Field]fieldMap),
	}
	if err := fn(dr); err != nil {
		return d, false, err
	}
	if !dr.changed {
		return d, false, nil
	}
	return dr.commit(), true, nil
}

// Stamp returns the stamp this draft writes with.
func (dr *Draft) Stamp() Stamp {
	return dr.stamp
}

// view returns the current state of f as seen by the draft.
func (dr *Draft) view(f ir.Field) fieldMap {
	if m, ok := dr.fields[f]; ok {
		return m
	}
	return dr.base.fields[f]
}

// writable returns a private copy of f owned by the draft.
func (dr *Draft) writable(f ir.Field) fieldMap {
	if m, ok := dr.fields[f]; ok {
		return m
	}
	src := dr.base.fields[f]
	m := make(fieldMap, len(src)+1)
	for k, e := range src {
		m[k] = e
	}
	dr.fields[f] = m
	return m
}

func (dr *Draft) commit() *Document {
	next := &Document{
		clock:  dr.stamp.Counter,
		fields: make(map[ir.Field]fieldMap, len(ir.Fields)),
	}
	for _, f := range ir.Fields {
		next.fields[f] = dr.view(f)
	}
	return next
}

type keyedItem struct {
	key  string
	item ir.IRObject
}

// prepare normalizes items and resolves their keys. When a key repeats, the
// last occurrence wins and takes that occurrence's place in the order.
func prepare(items []ir.IRObject) ([]keyedItem, error) {
	last := make(map[string]int, len(items))
	keyed := make([]keyedItem, len(items))
	for i, item := range items {
		if item == nil {
			return nil, fmt.Errorf("item %d: nil object", i)
		}
		n, err := ir.NormalizeObject(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		key, err := ItemKey(n)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		keyed[i] = keyedItem{key: key, item: n}
		last[key] = i
	}

	out := make([]keyedItem, 0, len(last))
	for i, ki := range keyed {
		if last[ki.key] == i {
			out = append(out, ki)
		}
	}
	return out, nil
}

// Set replaces the list of f with items.
//
// Items whose content is unchanged keep their value register. Items absent
// from the new list are tombstoned. Positions are rewritten only when the
// order of the list changes, so re-setting the current list is a no-op.
func (dr *Draft) Set(f ir.Field, items []ir.IRObject) error {
	if !f.Valid() {
		return fmt.Errorf("set %s: unknown field", f)
	}
	keyed, err := prepare(items)
	if err != nil {
		return fmt.Errorf("set %s: %w", f, err)
	}

	cur := dr.view(f)
	current := cur.liveKeys()
	sameOrder := len(current) == len(keyed)
	if sameOrder {
		for i, ki := range keyed {
			if current[i] != ki.key {
				sameOrder = false
				break
			}
		}
	}

	seen := make(map[string]bool, len(keyed))
	for i, ki := range keyed {
		seen[ki.key] = true
		e, exists := cur[ki.key]
		dirty := false
		if !exists || e.val.deleted || !ir.CanonicalEqual(e.val.data, ki.item) {
			e.val = valueReg{stamp: dr.stamp, data: ki.item}
			dirty = true
		}
		if !exists || (!sameOrder && e.pos.index != int64(i)) {
			e.pos = posReg{stamp: dr.stamp, index: int64(i)}
			dirty = true
		}
		if dirty {
			dr.put(f, ki.key, e)
		}
	}

	for k, e := range cur {
		if seen[k] || !e.live() {
			continue
		}
		e.val = valueReg{stamp: dr.stamp, deleted: true}
		dr.put(f, k, e)
	}
	return nil
}

// SetSnapshot replaces every field with the lists of s.
func (dr *Draft) SetSnapshot(s ir.Snapshot) error {
	for _, f := range ir.Fields {
		if err := dr.Set(f, s.List(f)); err != nil {
			return err
		}
	}
	return nil
}

// Upsert writes one item into f. A new item is placed after every live
// item; an existing one keeps its position.
func (dr *Draft) Upsert(f ir.Field, item ir.IRObject) (string, error) {
	if !f.Valid() {
		return "", fmt.Errorf("upsert %s: unknown field", f)
	}
	keyed, err := prepare([]ir.IRObject{item})
	if err != nil {
		return "", fmt.Errorf("upsert %s: %w", f, err)
	}
	ki := keyed[0]

	cur := dr.view(f)
	e, exists := cur[ki.key]
	if exists && e.live() && ir.CanonicalEqual(e.val.data, ki.item) {
		return ki.key, nil
	}

	next := e
	next.val = valueReg{stamp: dr.stamp, data: ki.item}
	if !exists || !e.live() {
		next.pos = posReg{stamp: dr.stamp, index: nextIndex(cur)}
	}
	dr.put(f, ki.key, next)
	return ki.key, nil
}

// Remove tombstones the item stored under key in f. It reports whether a
// live item was removed.
func (dr *Draft) Remove(f ir.Field, key string) bool {
	e, ok := dr.view(f)[key]
	if !ok || !e.live() {
		return false
	}
	e.val = valueReg{stamp: dr.stamp, deleted: true}
	dr.put(f, key, e)
	return true
}

// List returns the live items of f as the draft currently sees them.
func (dr *Draft) List(f ir.Field) []ir.IRObject {
	m := dr.view(f)
	keys := m.liveKeys()
	items := make([]ir.IRObject, len(keys))
	for i, k := range keys {
		items[i] = ir.CloneObject(m[k].val.data)
	}
	return items
}

func (dr *Draft) put(f ir.Field, key string, e entry) {
	dr.writable(f)[key] = e
	dr.changed = true
}

func nextIndex(m fieldMap) int64 {
	var next int64
	for _, e := range m {
		if e.live() && e.pos.index >= next {
			next = e.pos.index + 1
		}
	}
	return next
}
