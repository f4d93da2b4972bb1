package crdt

import (
	"fmt"

	"github.com/roach88/nexus/internal/ir"
)

// Wire member names.
const (
	wireVersion = "version"
	wireClock   = "clock"
	wireFields  = "fields"
	wireVal     = "val"
	wirePos     = "pos"
	wireActor   = "actor"
	wireCounter = "counter"
	wireData    = "data"
	wireDeleted = "deleted"
	wireIndex   = "index"
)

// Save encodes d as canonical JSON:
//
//	{"clock":N,"fields":{"<field>":{"<key>":{"pos":{...},"val":{...}}}},"version":1}
//
// Every field is present, tombstones included. Equal Documents always
// produce equal bytes.
func Save(d *Document) []byte {
	if d == nil {
		d = Empty()
	}
	return ir.MustMarshalCanonical(d.toIR())
}

func (d *Document) toIR() ir.IRObject {
	fields := make(ir.IRObject, len(ir.Fields))
	for _, f := range ir.Fields {
		entries := make(ir.IRObject, len(d.fields[f]))
		for k, e := range d.fields[f] {
			entries[k] = ir.IRObject{
				wireVal: encodeValue(e.val),
				wirePos: ir.IRObject{
					wireActor:   ir.IRString(e.pos.stamp.Actor),
					wireCounter: ir.IRInt(e.pos.stamp.Counter),
					wireIndex:   ir.IRInt(e.pos.index),
				},
			}
		}
		fields[string(f)] = entries
	}
	return ir.IRObject{
		wireVersion: ir.IRInt(ir.FormatVersion),
		wireClock:   ir.IRInt(d.clock),
		wireFields:  fields,
	}
}

func encodeValue(v valueReg) ir.IRObject {
	obj := ir.IRObject{
		wireActor:   ir.IRString(v.stamp.Actor),
		wireCounter: ir.IRInt(v.stamp.Counter),
	}
	if v.deleted {
		obj[wireDeleted] = ir.IRBool(true)
	} else {
		obj[wireData] = v.data
	}
	return obj
}

// Load decodes bytes produced by Save on any replica. Input that is not a
// well-formed document yields a *DecodeError. Fields missing from the input
// load as empty.
func Load(data []byte) (*Document, error) {
	raw, err := ir.ParseValue(data)
	if err != nil {
		return nil, &DecodeError{Reason: "invalid JSON", Err: err}
	}
	v, err := ir.Normalize(raw)
	if err != nil {
		return nil, &DecodeError{Reason: "invalid value", Err: err}
	}
	root, ok := v.(ir.IRObject)
	if !ok {
		return nil, decodeErrorf("expected object, got %s", ir.TypeName(v))
	}
	for k := range root {
		switch k {
		case wireVersion, wireClock, wireFields:
		default:
			return nil, decodeErrorf("unknown member %q", k)
		}
	}

	version, ok := root[wireVersion].(ir.IRInt)
	if !ok {
		return nil, decodeErrorf("version: expected integer, got %s", ir.TypeName(root[wireVersion]))
	}
	if int64(version) != ir.FormatVersion {
		return nil, decodeErrorf("unsupported version %d", version)
	}

	clock, ok := root[wireClock].(ir.IRInt)
	if !ok {
		return nil, decodeErrorf("clock: expected integer, got %s", ir.TypeName(root[wireClock]))
	}
	if clock < 0 {
		return nil, decodeErrorf("clock: negative value %d", clock)
	}

	fields, ok := root[wireFields].(ir.IRObject)
	if !ok {
		return nil, decodeErrorf("fields: expected object, got %s", ir.TypeName(root[wireFields]))
	}

	d := Empty()
	d.clock = int64(clock)
	for name, rawField := range fields {
		f := ir.Field(name)
		if !f.Valid() {
			return nil, decodeErrorf("fields: unknown field %q", name)
		}
		entries, ok := rawField.(ir.IRObject)
		if !ok {
			return nil, decodeErrorf("%s: expected object, got %s", f, ir.TypeName(rawField))
		}
		m := make(fieldMap, len(entries))
		for key, rawEntry := range entries {
			e, err := decodeEntry(rawEntry)
			if err != nil {
				return nil, decodeErrorf("%s[%q]: %s", f, key, err.Error())
			}
			if e.val.stamp.Counter > d.clock || e.pos.stamp.Counter > d.clock {
				return nil, decodeErrorf("%s[%q]: counter exceeds clock %d", f, key, d.clock)
			}
			if e.live() {
				want, err := ItemKey(e.val.data)
				if err != nil {
					return nil, decodeErrorf("%s[%q]: %s", f, key, err.Error())
				}
				if want != key {
					return nil, decodeErrorf("%s[%q]: key does not match item identity %q", f, key, want)
				}
			}
			m[key] = e
		}
		d.fields[f] = m
	}
	return d, nil
}

func decodeEntry(v ir.IRValue) (entry, error) {
	obj, ok := v.(ir.IRObject)
	if !ok {
		return entry{}, fmt.Errorf("expected object, got %s", ir.TypeName(v))
	}
	if len(obj) != 2 {
		return entry{}, fmt.Errorf("expected exactly %q and %q", wireVal, wirePos)
	}

	valObj, ok := obj[wireVal].(ir.IRObject)
	if !ok {
		return entry{}, fmt.Errorf("val: expected object, got %s", ir.TypeName(obj[wireVal]))
	}
	posObj, ok := obj[wirePos].(ir.IRObject)
	if !ok {
		return entry{}, fmt.Errorf("pos: expected object, got %s", ir.TypeName(obj[wirePos]))
	}

	valStamp, err := decodeStamp(valObj)
	if err != nil {
		return entry{}, fmt.Errorf("val: %w", err)
	}
	posStamp, err := decodeStamp(posObj)
	if err != nil {
		return entry{}, fmt.Errorf("pos: %w", err)
	}

	var e entry
	e.val.stamp = valStamp
	if len(valObj) != 3 {
		return entry{}, fmt.Errorf("val: unexpected members")
	}
	if raw, ok := valObj[wireDeleted]; ok {
		if b, ok := raw.(ir.IRBool); !ok || !bool(b) {
			return entry{}, fmt.Errorf("val: deleted must be true")
		}
		e.val.deleted = true
	} else {
		data, ok := valObj[wireData].(ir.IRObject)
		if !ok {
			return entry{}, fmt.Errorf("val: data: expected object, got %s", ir.TypeName(valObj[wireData]))
		}
		e.val.data = data
	}

	if len(posObj) != 3 {
		return entry{}, fmt.Errorf("pos: unexpected members")
	}
	index, ok := posObj[wireIndex].(ir.IRInt)
	if !ok {
		return entry{}, fmt.Errorf("pos: index: expected integer, got %s", ir.TypeName(posObj[wireIndex]))
	}
	if index < 0 {
		return entry{}, fmt.Errorf("pos: negative index %d", index)
	}
	e.pos = posReg{stamp: posStamp, index: int64(index)}
	return e, nil
}

func decodeStamp(obj ir.IRObject) (Stamp, error) {
	actor, ok := obj[wireActor].(ir.IRString)
	if !ok {
		return Stamp{}, fmt.Errorf("actor: expected string, got %s", ir.TypeName(obj[wireActor]))
	}
	if actor == "" {
		return Stamp{}, fmt.Errorf("actor: empty")
	}
	counter, ok := obj[wireCounter].(ir.IRInt)
	if !ok {
		return Stamp{}, fmt.Errorf("counter: expected integer, got %s", ir.TypeName(obj[wireCounter]))
	}
	if counter < 1 {
		return Stamp{}, fmt.Errorf("counter: must be positive, got %d", counter)
	}
	return Stamp{Counter: int64(counter), Actor: string(actor)}, nil
}
