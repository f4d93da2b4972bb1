package crdt

import (
	"bytes"

	"github.com/roach88/nexus/internal/ir"
)

// Merge combines two replicas into one that reflects every write of both.
// Neither input is modified. Merge(a, b) and Merge(b, a) encode to the same
// bytes, and Merge(a, a) equals a.
func Merge(a, b *Document) *Document {
	if a == nil {
		a = Empty()
	}
	if b == nil {
		b = Empty()
	}

	out := &Document{
		clock:  max(a.clock, b.clock),
		fields: make(map[ir.Field]fieldMap, len(ir.Fields)),
	}
	for _, f := range ir.Fields {
		out.fields[f] = mergeField(a.fields[f], b.fields[f])
	}
	return out
}

func mergeField(a, b fieldMap) fieldMap {
	switch {
	case len(b) == 0 && a != nil:
		return a
	case len(a) == 0 && b != nil:
		return b
	}

	out := make(fieldMap, max(len(a), len(b)))
	for k, e := range a {
		out[k] = e
	}
	for k, eb := range b {
		ea, ok := out[k]
		if !ok {
			out[k] = eb
			continue
		}
		out[k] = entry{
			val: winningValue(ea.val, eb.val),
			pos: winningPos(ea.pos, eb.pos),
		}
	}
	return out
}

func winningValue(a, b valueReg) valueReg {
	if c := a.stamp.Compare(b.stamp); c != 0 {
		if c > 0 {
			return a
		}
		return b
	}
	if bytes.Compare(ir.MustMarshalCanonical(encodeValue(a)), ir.MustMarshalCanonical(encodeValue(b))) >= 0 {
		return a
	}
	return b
}

func winningPos(a, b posReg) posReg {
	if c := a.stamp.Compare(b.stamp); c != 0 {
		if c > 0 {
			return a
		}
		return b
	}
	if a.index >= b.index {
		return a
	}
	return b
}
