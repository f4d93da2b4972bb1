package harness

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/nexus/internal/ir"
	"github.com/roach88/nexus/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string       // assertion type for categorization
	Device   string       // device inspected, empty for converged
	Expected string       // human-readable expected outcome
	Actual   string       // human-readable actual outcome
	Trace    []TraceEvent // full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Device != "" {
		fmt.Fprintf(&buf, " on %s", e.Device)
	}
	buf.WriteByte('\n')

	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s clock=%d changed=%v", event.Seq, event.Device, event.Op, event.Clock, event.Changed)
		if event.Error != "" {
			fmt.Fprintf(&buf, " error=%q", event.Error)
		}
		buf.WriteByte('\n')
	}

	return buf.String()
}

// assertConverged checks that every listed device holds the same document
// bytes and the same container snapshot.
func assertConverged(result *Result, assertion Assertion, all []string) error {
	names := assertion.Devices
	if len(names) == 0 {
		names = all
	}
	if len(names) < 2 {
		return nil
	}

	first := names[0]
	for _, name := range names[1:] {
		if !bytes.Equal(result.Documents[first], result.Documents[name]) {
			return &AssertionError{
				Type:     AssertConverged,
				Expected: fmt.Sprintf("identical documents on %s", strings.Join(names, ", ")),
				Actual:   fmt.Sprintf("%s and %s differ:\n    %s\n    %s", first, name, result.Documents[first], result.Documents[name]),
				Trace:    result.Trace,
			}
		}
		a := ir.MustSnapshotToken(result.Snapshots[first])
		b := ir.MustSnapshotToken(result.Snapshots[name])
		if a != b {
			return &AssertionError{
				Type:     AssertConverged,
				Expected: fmt.Sprintf("identical snapshots on %s", strings.Join(names, ", ")),
				Actual:   fmt.Sprintf("%s and %s hold different container snapshots", first, name),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

// assertItems checks the ids of a list in order.
func assertItems(result *Result, assertion Assertion) error {
	items := result.Snapshots[assertion.Device].List(ir.Field(assertion.Field))
	got := make([]string, len(items))
	for i, item := range items {
		got[i] = itemID(item)
	}

	want := assertion.IDs
	if want == nil {
		want = []string{}
	}
	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertItems,
			Device:   assertion.Device,
			Expected: fmt.Sprintf("%s ids %v", assertion.Field, want),
			Actual:   fmt.Sprintf("%s ids %v", assertion.Field, got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertItem checks a subset of one item's members.
func assertItem(result *Result, assertion Assertion) error {
	items := result.Snapshots[assertion.Device].List(ir.Field(assertion.Field))

	var found ir.IRObject
	for _, item := range items {
		if itemID(item) == assertion.ID {
			found = item
			break
		}
	}
	if found == nil {
		return &AssertionError{
			Type:     AssertItem,
			Device:   assertion.Device,
			Expected: fmt.Sprintf("%s item %q", assertion.Field, assertion.ID),
			Actual:   "not found",
			Trace:    result.Trace,
		}
	}

	want, err := convertItem(assertion.Expect)
	if err != nil {
		return fmt.Errorf("item %q: expect: %w", assertion.ID, err)
	}
	for _, k := range want.SortedKeys() {
		if !ir.CanonicalEqual(found[k], want[k]) {
			return &AssertionError{
				Type:     AssertItem,
				Device:   assertion.Device,
				Expected: fmt.Sprintf("%s item %q member %s = %s", assertion.Field, assertion.ID, k, ir.MustMarshalCanonical(want[k])),
				Actual:   fmt.Sprintf("item %s", ir.MustMarshalCanonical(found)),
				Trace:    result.Trace,
			}
		}
	}
	return nil
}

func itemID(item ir.IRObject) string {
	switch id := item["id"].(type) {
	case ir.IRString:
		return string(id)
	case nil:
		return ""
	default:
		return string(ir.MustMarshalCanonical(id))
	}
}

// EvaluateAssertions evaluates all assertions against the result and the
// harness's live devices. Returns a message per failed assertion.
func EvaluateAssertions(h *Harness, result *Result, assertions []Assertion) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertConverged:
			err = assertConverged(result, assertion, h.order)
		case AssertItems:
			err = assertItems(result, assertion)
		case AssertItem:
			err = assertItem(result, assertion)
		case AssertPending:
			got := h.devices[assertion.Device].engine.Pending()
			if got != *assertion.Value {
				err = &AssertionError{
					Type:     AssertPending,
					Device:   assertion.Device,
					Expected: fmt.Sprintf("pending=%v", *assertion.Value),
					Actual:   fmt.Sprintf("pending=%v", got),
					Trace:    result.Trace,
				}
			}
		case AssertPersisted:
			d := h.devices[assertion.Device]
			stored, ok := d.mem.Value(store.KeyDocument)
			if !ok || !bytes.Equal(stored, result.Documents[assertion.Device]) {
				err = &AssertionError{
					Type:     AssertPersisted,
					Device:   assertion.Device,
					Expected: "stored document equals live document",
					Actual:   fmt.Sprintf("stored %d bytes (present=%v), live %d bytes", len(stored), ok, len(result.Documents[assertion.Device])),
					Trace:    result.Trace,
				}
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}
