package ir

import (
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidUTF8 is returned by Normalize for strings and object keys that
// are not valid UTF-8. The canonical encoding would replace the bad bytes,
// so two distinct values could encode the same.
var ErrInvalidUTF8 = errors.New("invalid UTF-8")

// Normalize returns a deep copy of v with every string and object key in NFC
// form. It fails on values the canonical encoding cannot represent, so a
// normalized value always encodes without error and decodes back unchanged.
//
// When two keys of one object collapse to the same NFC form, the key that
// sorts last in canonical order wins.
func Normalize(v IRValue) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRNull, IRInt, IRBool:
		return val, nil
	case IRString:
		if !utf8.ValidString(string(val)) {
			return nil, fmt.Errorf("string %q: %w", string(val), ErrInvalidUTF8)
		}
		return IRString(norm.NFC.String(string(val))), nil
	case IRNumber:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("non-finite number %v", f)
		}
		return val, nil
	case IRArray:
		out := make(IRArray, len(val))
		for i, elem := range val {
			n, err := Normalize(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case IRObject:
		out := make(IRObject, len(val))
		for _, k := range val.SortedKeys() {
			if !utf8.ValidString(k) {
				return nil, fmt.Errorf("object key %q: %w", k, ErrInvalidUTF8)
			}
			n, err := Normalize(val[k])
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			out[norm.NFC.String(k)] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported IRValue type: %T", v)
	}
}

// NormalizeObject is Normalize for objects.
func NormalizeObject(obj IRObject) (IRObject, error) {
	n, err := Normalize(obj)
	if err != nil {
		return nil, err
	}
	return n.(IRObject), nil
}

// Clone returns a deep copy of v. Scalars are returned as is.
func Clone(v IRValue) IRValue {
	switch val := v.(type) {
	case IRArray:
		out := make(IRArray, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	case IRObject:
		return CloneObject(val)
	default:
		return val
	}
}

// CloneObject returns a deep copy of obj. A nil object stays nil.
func CloneObject(obj IRObject) IRObject {
	if obj == nil {
		return nil
	}
	out := make(IRObject, len(obj))
	for k, elem := range obj {
		out[k] = Clone(elem)
	}
	return out
}
