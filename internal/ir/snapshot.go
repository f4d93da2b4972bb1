package ir

import (
	"fmt"
)

// Field names one synchronizable list of the domain snapshot.
// Finance lists use a dotted path below "finances".
type Field string

// Synchronizable fields in snapshot order.
const (
	FieldTasks    Field = "tasks"
	FieldEvents   Field = "events"
	FieldGoals    Field = "goals"
	FieldNotes    Field = "notes"
	FieldHabits   Field = "habits"
	FieldContacts Field = "contacts"
	FieldIncome   Field = "finances.income"
	FieldExpenses Field = "finances.expenses"
	FieldBudgets  Field = "finances.budgets"
)

// Fields lists every synchronizable field. The order never changes.
var Fields = []Field{
	FieldTasks,
	FieldEvents,
	FieldGoals,
	FieldNotes,
	FieldHabits,
	FieldContacts,
	FieldIncome,
	FieldExpenses,
	FieldBudgets,
}

// Valid reports whether f is one of Fields.
func (f Field) Valid() bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// Finances groups the three finance lists.
type Finances struct {
	Income   []IRObject `json:"income"`
	Expenses []IRObject `json:"expenses"`
	Budgets  []IRObject `json:"budgets"`
}

// Snapshot is the flat, application-visible projection of a Document.
// Items are opaque objects; only their "id" member has meaning to sync.
type Snapshot struct {
	Tasks    []IRObject `json:"tasks"`
	Events   []IRObject `json:"events"`
	Goals    []IRObject `json:"goals"`
	Notes    []IRObject `json:"notes"`
	Habits   []IRObject `json:"habits"`
	Contacts []IRObject `json:"contacts"`
	Finances Finances   `json:"finances"`
}

// EmptySnapshot returns a snapshot whose lists are all empty and non-nil.
func EmptySnapshot() Snapshot {
	var s Snapshot
	for _, f := range Fields {
		s.SetList(f, []IRObject{})
	}
	return s
}

// List returns the items of field f. Unknown fields return nil.
func (s Snapshot) List(f Field) []IRObject {
	switch f {
	case FieldTasks:
		return s.Tasks
	case FieldEvents:
		return s.Events
	case FieldGoals:
		return s.Goals
	case FieldNotes:
		return s.Notes
	case FieldHabits:
		return s.Habits
	case FieldContacts:
		return s.Contacts
	case FieldIncome:
		return s.Finances.Income
	case FieldExpenses:
		return s.Finances.Expenses
	case FieldBudgets:
		return s.Finances.Budgets
	}
	return nil
}

// SetList replaces the items of field f. Unknown fields are ignored.
func (s *Snapshot) SetList(f Field, items []IRObject) {
	switch f {
	case FieldTasks:
		s.Tasks = items
	case FieldEvents:
		s.Events = items
	case FieldGoals:
		s.Goals = items
	case FieldNotes:
		s.Notes = items
	case FieldHabits:
		s.Habits = items
	case FieldContacts:
		s.Contacts = items
	case FieldIncome:
		s.Finances.Income = items
	case FieldExpenses:
		s.Finances.Expenses = items
	case FieldBudgets:
		s.Finances.Budgets = items
	}
}

// Clone returns a deep copy with every list non-nil.
func (s Snapshot) Clone() Snapshot {
	var out Snapshot
	for _, f := range Fields {
		items := s.List(f)
		cp := make([]IRObject, len(items))
		for i, item := range items {
			cp[i] = CloneObject(item)
		}
		out.SetList(f, cp)
	}
	return out
}

// Counts returns the number of items per field.
func (s Snapshot) Counts() map[Field]int {
	counts := make(map[Field]int, len(Fields))
	for _, f := range Fields {
		counts[f] = len(s.List(f))
	}
	return counts
}

// ToIR converts the snapshot into its JSON object shape:
// {"tasks":[...],...,"finances":{"income":[...],"expenses":[...],"budgets":[...]}}
func (s Snapshot) ToIR() IRObject {
	list := func(items []IRObject) IRArray {
		arr := make(IRArray, len(items))
		for i, item := range items {
			arr[i] = item
		}
		return arr
	}
	return IRObject{
		"tasks":    list(s.Tasks),
		"events":   list(s.Events),
		"goals":    list(s.Goals),
		"notes":    list(s.Notes),
		"habits":   list(s.Habits),
		"contacts": list(s.Contacts),
		"finances": IRObject{
			"income":   list(s.Finances.Income),
			"expenses": list(s.Finances.Expenses),
			"budgets":  list(s.Finances.Budgets),
		},
	}
}

// MarshalJSON encodes the snapshot canonically with empty lists as [].
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(s.ToIR())
}

// UnmarshalJSON decodes the snapshot shape. Missing lists decode as empty.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	v, err := ParseValue(data)
	if err != nil {
		return err
	}
	snap, err := SnapshotFromIR(v)
	if err != nil {
		return err
	}
	*s = snap
	return nil
}

// ParseSnapshot decodes snapshot JSON.
func ParseSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := s.UnmarshalJSON(data); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// SnapshotFromIR converts a decoded snapshot object. Unknown top-level
// members are ignored; missing lists become empty.
func SnapshotFromIR(v IRValue) (Snapshot, error) {
	root, ok := v.(IRObject)
	if !ok {
		return Snapshot{}, fmt.Errorf("snapshot: expected object, got %s", TypeName(v))
	}

	s := EmptySnapshot()
	var fin IRObject
	if raw, ok := root["finances"]; ok {
		switch f := raw.(type) {
		case IRObject:
			fin = f
		case IRNull:
		default:
			return Snapshot{}, fmt.Errorf("snapshot: finances: expected object, got %s", TypeName(raw))
		}
	}

	for _, f := range Fields {
		var raw IRValue
		var ok bool
		switch f {
		case FieldIncome:
			raw, ok = fin["income"]
		case FieldExpenses:
			raw, ok = fin["expenses"]
		case FieldBudgets:
			raw, ok = fin["budgets"]
		default:
			raw, ok = root[string(f)]
		}
		if !ok {
			continue
		}
		items, err := objectList(raw)
		if err != nil {
			return Snapshot{}, fmt.Errorf("snapshot: %s: %w", f, err)
		}
		s.SetList(f, items)
	}
	return s, nil
}

func objectList(v IRValue) ([]IRObject, error) {
	switch arr := v.(type) {
	case IRNull:
		return []IRObject{}, nil
	case IRArray:
		items := make([]IRObject, len(arr))
		for i, elem := range arr {
			obj, ok := elem.(IRObject)
			if !ok {
				return nil, fmt.Errorf("item %d: expected object, got %s", i, TypeName(elem))
			}
			items[i] = obj
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected array, got %s", TypeName(v))
	}
}
