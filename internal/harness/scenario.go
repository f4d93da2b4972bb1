package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/nexus/internal/ir"
)

// Scenario defines a convergence test.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Devices lists the device names. Names double as device ids.
	Devices []string `yaml:"devices"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one operation on one device. Exactly one operation field is set.
type Step struct {
	Device string `yaml:"device,omitempty"`

	Set        *SetOp    `yaml:"set,omitempty"`
	Upsert     *UpsertOp `yaml:"upsert,omitempty"`
	Remove     *RemoveOp `yaml:"remove,omitempty"`
	Merge      *MergeOp  `yaml:"merge,omitempty"`
	Flush      bool      `yaml:"flush,omitempty"`
	Restart    bool      `yaml:"restart,omitempty"`
	FailWrites *bool     `yaml:"fail_writes,omitempty"`
	Advance    string    `yaml:"advance,omitempty"`

	// Expect validates the outcome of the step.
	Expect *StepExpect `yaml:"expect,omitempty"`
}

// SetOp replaces one list.
type SetOp struct {
	Field string           `yaml:"field"`
	Items []map[string]any `yaml:"items"`
}

// UpsertOp writes one item.
type UpsertOp struct {
	Field string         `yaml:"field"`
	Item  map[string]any `yaml:"item"`
}

// RemoveOp drops the item whose id member equals ID.
type RemoveOp struct {
	Field string `yaml:"field"`
	ID    string `yaml:"id"`
}

// MergeOp merges the current document of device From, or Raw bytes.
type MergeOp struct {
	From string `yaml:"from,omitempty"`
	Raw  string `yaml:"raw,omitempty"`
}

// StepExpect validates a step. Changed applies to merge and flush steps.
// Error is a substring of the expected error; empty means success.
type StepExpect struct {
	Changed *bool  `yaml:"changed,omitempty"`
	Error   string `yaml:"error,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Device the assertion inspects (all but converged).
	Device string `yaml:"device,omitempty"`

	// Devices compared by converged. Empty means all.
	Devices []string `yaml:"devices,omitempty"`

	// Field of the list (items, item).
	Field string `yaml:"field,omitempty"`

	// IDs expected in order (items).
	IDs []string `yaml:"ids,omitempty"`

	// ID of the item (item).
	ID string `yaml:"id,omitempty"`

	// Expect is a subset of the item's members (item).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Value is the expected flag (pending).
	Value *bool `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertConverged = "converged"
	AssertItems     = "items"
	AssertItem      = "item"
	AssertPending   = "pending"
	AssertPersisted = "persisted"
)

// Step operation names, as they appear in traces.
const (
	OpSet        = "set"
	OpUpsert     = "upsert"
	OpRemove     = "remove"
	OpMerge      = "merge"
	OpFlush      = "flush"
	OpRestart    = "restart"
	OpFailWrites = "fail_writes"
	OpAdvance    = "advance"
)

// Op returns the name of the step's operation, or "" when none or more
// than one is set.
func (s Step) Op() string {
	var ops []string
	if s.Set != nil {
		ops = append(ops, OpSet)
	}
	if s.Upsert != nil {
		ops = append(ops, OpUpsert)
	}
	if s.Remove != nil {
		ops = append(ops, OpRemove)
	}
	if s.Merge != nil {
		ops = append(ops, OpMerge)
	}
	if s.Flush {
		ops = append(ops, OpFlush)
	}
	if s.Restart {
		ops = append(ops, OpRestart)
	}
	if s.FailWrites != nil {
		ops = append(ops, OpFailWrites)
	}
	if s.Advance != "" {
		ops = append(ops, OpAdvance)
	}
	if len(ops) != 1 {
		return ""
	}
	return ops[0]
}

// LoadScenario reads and parses a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML. Unknown fields are rejected so typos
// like "assertion:" fail loudly.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Devices) == 0 {
		return fmt.Errorf("devices list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	devices := make(map[string]bool, len(s.Devices))
	for _, d := range s.Devices {
		if d == "" {
			return fmt.Errorf("device names must not be empty")
		}
		if devices[d] {
			return fmt.Errorf("duplicate device %q", d)
		}
		devices[d] = true
	}
	known := func(d string) bool { return devices[d] }

	for i, step := range s.Steps {
		if err := validateStep(step, known); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a, known); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step, known func(string) bool) error {
	op := step.Op()
	if op == "" {
		return fmt.Errorf("exactly one operation is required")
	}

	if op == OpAdvance {
		d, err := time.ParseDuration(step.Advance)
		if err != nil || d < 0 {
			return fmt.Errorf("advance: invalid duration %q", step.Advance)
		}
		return nil
	}
	if !known(step.Device) {
		return fmt.Errorf("unknown device %q", step.Device)
	}

	switch op {
	case OpSet:
		return validField(step.Set.Field)
	case OpUpsert:
		if step.Upsert.Item == nil {
			return fmt.Errorf("upsert: item is required")
		}
		return validField(step.Upsert.Field)
	case OpRemove:
		if step.Remove.ID == "" {
			return fmt.Errorf("remove: id is required")
		}
		return validField(step.Remove.Field)
	case OpMerge:
		if (step.Merge.From == "") == (step.Merge.Raw == "") {
			return fmt.Errorf("merge: exactly one of from and raw is required")
		}
		if step.Merge.From != "" && !known(step.Merge.From) {
			return fmt.Errorf("merge: unknown device %q", step.Merge.From)
		}
	}
	return nil
}

func validateAssertion(a Assertion, known func(string) bool) error {
	switch a.Type {
	case AssertConverged:
		for _, d := range a.Devices {
			if !known(d) {
				return fmt.Errorf("converged: unknown device %q", d)
			}
		}
		return nil
	case AssertItems, AssertItem, AssertPending, AssertPersisted:
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}

	if !known(a.Device) {
		return fmt.Errorf("%s: unknown device %q", a.Type, a.Device)
	}
	switch a.Type {
	case AssertItems:
		return validField(a.Field)
	case AssertItem:
		if a.ID == "" {
			return fmt.Errorf("item: id is required")
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("item: expect is required")
		}
		return validField(a.Field)
	case AssertPending:
		if a.Value == nil {
			return fmt.Errorf("pending: value is required")
		}
	}
	return nil
}

func validField(name string) error {
	if !ir.Field(name).Valid() {
		return fmt.Errorf("unknown field %q", name)
	}
	return nil
}
