package bridge

import (
	"github.com/roach88/nexus/internal/crdt"
	"github.com/roach88/nexus/internal/ir"
)

// rebase replays the local edit base -> local on top of current.
//
// When current equals base the result is local. Otherwise each list is
// rebuilt item by item: items the edit touched take the local version,
// untouched items take the current version (or stay gone if current
// dropped them) and items only current has are appended.
func rebase(base, local, current ir.Snapshot) ir.Snapshot {
	out := ir.EmptySnapshot()
	for _, f := range ir.Fields {
		out.SetList(f, rebaseList(base.List(f), local.List(f), current.List(f)))
	}
	return out
}

func rebaseList(base, local, current []ir.IRObject) []ir.IRObject {
	if listsEqual(base, local) {
		return current
	}
	if listsEqual(base, current) {
		return local
	}

	baseBy, ok := byKey(base)
	if !ok {
		return local
	}
	localBy, ok := byKey(local)
	if !ok {
		return local
	}
	currentBy, ok := byKey(current)
	if !ok {
		return local
	}

	out := make([]ir.IRObject, 0, len(local)+len(current))
	for _, item := range local {
		k := mustKey(item)
		prev, inBase := baseBy[k]
		cur, inCurrent := currentBy[k]
		switch {
		case !inBase || !ir.CanonicalEqual(prev, item):
			out = append(out, item)
		case inCurrent:
			out = append(out, cur)
		}
	}
	for _, item := range current {
		k := mustKey(item)
		_, inBase := baseBy[k]
		_, inLocal := localBy[k]
		if !inBase && !inLocal {
			out = append(out, item)
		}
	}
	return out
}

func listsEqual(a, b []ir.IRObject) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !ir.CanonicalEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// byKey indexes items by crdt.ItemKey. It reports false when an item has
// no key.
func byKey(items []ir.IRObject) (map[string]ir.IRObject, bool) {
	m := make(map[string]ir.IRObject, len(items))
	for _, item := range items {
		k, err := crdt.ItemKey(item)
		if err != nil {
			return nil, false
		}
		m[k] = item
	}
	return m, true
}

// mustKey is only called on items byKey accepted.
func mustKey(item ir.IRObject) string {
	k, _ := crdt.ItemKey(item)
	return k
}
