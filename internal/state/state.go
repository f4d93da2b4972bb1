package state

import (
	"github.com/roach88/nexus/internal/ir"
)

// Module names the area of the application a device is focused on.
type Module string

// Known modules.
const (
	ModuleDashboard Module = "dashboard"
	ModuleRhythm    Module = "rhythm"
	ModuleTasks     Module = "tasks"
	ModuleGoals     Module = "goals"
	ModuleFinance   Module = "finance"
	ModuleKnowledge Module = "knowledge"
	ModuleHabits    Module = "habits"
	ModuleRelations Module = "relations"
)

// View is device-local state. It is never synchronized.
type View struct {
	CurrentModule Module
	EnergyLevel   int // 1-5
	FocusMode     bool
	Theme         string
}

// DefaultView is the view of a fresh device.
func DefaultView() View {
	return View{
		CurrentModule: ModuleDashboard,
		EnergyLevel:   3,
		Theme:         "dark",
	}
}

// State is the complete domain state.
type State struct {
	// Version increases by one with every write to the container.
	Version uint64

	Data ir.Snapshot
	View View
}

// Clone returns a deep copy.
func (s State) Clone() State {
	s.Data = s.Data.Clone()
	return s
}

// Selector projects the part of State a subscriber observes.
type Selector func(State) ir.Snapshot

// SyncSelector selects the synchronizable fields: tasks, events, goals,
// notes, habits, contacts and finances.
func SyncSelector(s State) ir.Snapshot {
	return s.Data
}
