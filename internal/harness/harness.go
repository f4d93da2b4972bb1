package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/nexus/internal/bridge"
	"github.com/roach88/nexus/internal/engine"
	"github.com/roach88/nexus/internal/ir"
	"github.com/roach88/nexus/internal/state"
	"github.com/roach88/nexus/internal/store"
	"github.com/roach88/nexus/internal/testutil"
)

// errInjected is what a store with fail_writes set returns.
var errInjected = errors.New("injected write failure")

// device is one replica under test.
type device struct {
	name      string
	mem       *store.Memory
	engine    *engine.Engine
	container *state.Container
	bridge    *bridge.Bridge
}

// Harness executes scenarios with a shared deterministic clock.
type Harness struct {
	clock   *testutil.WallClock
	logger  *slog.Logger
	devices map[string]*device
	order   []string
}

// Run executes a scenario and returns the result. Errors are returned only
// when the harness itself cannot run; failed expectations and assertions
// are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	h := &Harness{
		clock:   testutil.NewWallClock(testutil.Epoch),
		logger:  testutil.DiscardLogger(),
		devices: make(map[string]*device, len(scenario.Devices)),
	}
	defer h.close()

	ctx := context.Background()
	for _, name := range scenario.Devices {
		d := &device{name: name, mem: store.NewMemory()}
		if err := h.open(ctx, d); err != nil {
			return nil, fmt.Errorf("open device %s: %w", name, err)
		}
		h.devices[name] = d
		h.order = append(h.order, name)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	for _, name := range h.order {
		d := h.devices[name]
		result.Snapshots[name] = d.container.GetSnapshot()
		result.Documents[name] = d.engine.CurrentDocumentBytes()
	}

	for _, msg := range EvaluateAssertions(h, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) open(ctx context.Context, d *device) error {
	d.engine = engine.New(d.mem,
		engine.WithLogger(h.logger.With("device", d.name)),
		engine.WithNow(h.clock.Now),
		engine.WithDeviceIDGenerator(testutil.FixedDeviceID(d.name)),
	)
	if err := d.engine.Open(ctx); err != nil {
		return err
	}
	d.container = state.NewContainer()
	b, err := bridge.New(d.engine, d.container, bridge.WithLogger(h.logger.With("device", d.name)))
	if err != nil {
		_ = d.engine.Close()
		return err
	}
	d.bridge = b
	return nil
}

func (d *device) close() {
	if d.bridge != nil {
		_ = d.bridge.Close()
	}
	if d.engine != nil {
		_ = d.engine.Close()
	}
}

func (h *Harness) close() {
	for _, d := range h.devices {
		d.close()
	}
}

// executeStep runs one step and checks its expectation. Returned errors
// abort the scenario; step failures are recorded in result.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	op := step.Op()
	ev := TraceEvent{Device: step.Device, Op: op}

	var changed bool
	var stepErr error

	switch op {
	case OpAdvance:
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return err
		}
		h.clock.Advance(d)
		result.AddTrace(ev)
		return nil

	case OpSet, OpUpsert, OpRemove:
		changed, stepErr = h.edit(step)

	case OpMerge:
		data := []byte(step.Merge.Raw)
		if step.Merge.From != "" {
			data = h.devices[step.Merge.From].engine.CurrentDocumentBytes()
		}
		changed, stepErr = h.devices[step.Device].bridge.Merge(ctx, data)

	case OpFlush:
		changed, stepErr = h.devices[step.Device].engine.Sync(ctx)

	case OpRestart:
		d := h.devices[step.Device]
		d.close()
		if err := h.open(ctx, d); err != nil {
			return fmt.Errorf("restart %s: %w", d.name, err)
		}

	case OpFailWrites:
		var err error
		if *step.FailWrites {
			err = errInjected
		}
		h.devices[step.Device].mem.FailWrites(err)

	default:
		return fmt.Errorf("no operation")
	}

	ev.Changed = changed
	ev.Clock = h.devices[step.Device].engine.Document().Clock()
	if stepErr != nil {
		ev.Error = stepErr.Error()
	}
	result.AddTrace(ev)

	h.checkExpect(i, step, changed, stepErr, result)
	return nil
}

func (h *Harness) checkExpect(i int, step Step, changed bool, err error, result *Result) {
	want := step.Expect
	if want == nil {
		want = &StepExpect{}
	}

	switch {
	case want.Error == "" && err != nil:
		result.AddError(fmt.Sprintf("steps[%d] %s on %s: unexpected error: %v", i, step.Op(), step.Device, err))
		return
	case want.Error != "" && err == nil:
		result.AddError(fmt.Sprintf("steps[%d] %s on %s: expected error containing %q, got none", i, step.Op(), step.Device, want.Error))
		return
	case want.Error != "" && !strings.Contains(err.Error(), want.Error):
		result.AddError(fmt.Sprintf("steps[%d] %s on %s: expected error containing %q, got %v", i, step.Op(), step.Device, want.Error, err))
		return
	}

	if want.Changed != nil && *want.Changed != changed {
		result.AddError(fmt.Sprintf("steps[%d] %s on %s: expected changed=%v, got %v", i, step.Op(), step.Device, *want.Changed, changed))
	}
}

// edit applies a local change through the container and folds it into the
// engine. It reports whether the engine's document changed.
func (h *Harness) edit(step Step) (bool, error) {
	d := h.devices[step.Device]
	before := d.engine.Document().Clock()

	var field ir.Field
	var mutate func([]ir.IRObject) ([]ir.IRObject, error)

	switch {
	case step.Set != nil:
		field = ir.Field(step.Set.Field)
		mutate = func([]ir.IRObject) ([]ir.IRObject, error) {
			return convertItems(step.Set.Items)
		}
	case step.Upsert != nil:
		field = ir.Field(step.Upsert.Field)
		mutate = func(items []ir.IRObject) ([]ir.IRObject, error) {
			item, err := convertItem(step.Upsert.Item)
			if err != nil {
				return nil, err
			}
			id := item["id"]
			for i, existing := range items {
				if id != nil && ir.CanonicalEqual(existing["id"], id) {
					items[i] = item
					return items, nil
				}
			}
			return append(items, item), nil
		}
	case step.Remove != nil:
		field = ir.Field(step.Remove.Field)
		mutate = func(items []ir.IRObject) ([]ir.IRObject, error) {
			out := items[:0]
			for _, item := range items {
				if id, ok := item["id"].(ir.IRString); ok && string(id) == step.Remove.ID {
					continue
				}
				out = append(out, item)
			}
			return out, nil
		}
	}

	_, err := d.container.Update(func(s *state.State) error {
		items, err := mutate(s.Data.List(field))
		if err != nil {
			return err
		}
		s.Data.SetList(field, items)
		return nil
	})
	if err != nil {
		return false, err
	}
	if err := d.bridge.Drain(); err != nil {
		return false, err
	}
	return d.engine.Document().Clock() != before, nil
}

func convertItems(raw []map[string]any) ([]ir.IRObject, error) {
	items := make([]ir.IRObject, 0, len(raw))
	for i, r := range raw {
		item, err := convertItem(r)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// convertItem converts a YAML mapping into an IRObject.
func convertItem(raw map[string]any) (ir.IRObject, error) {
	v, err := ir.FromGo(normalizeYAML(raw))
	if err != nil {
		return nil, err
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("expected object, got %s", ir.TypeName(v))
	}
	return obj, nil
}

// normalizeYAML rewrites YAML-only node types into values FromGo accepts.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = normalizeYAML(elem)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[fmt.Sprint(k)] = normalizeYAML(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalizeYAML(elem)
		}
		return out
	case time.Time:
		// unquoted dates decode as timestamps
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return val
	}
}
