package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/nexus/internal/ir"
)

// FinalSnapshot is the golden form of a scenario's outcome: each device's
// container snapshot after the last step.
type FinalSnapshot struct {
	ScenarioName string
	Snapshots    map[string]ir.Snapshot
}

// toIR converts the snapshot for canonical serialization.
func (s *FinalSnapshot) toIR() ir.IRObject {
	devices := make(ir.IRObject, len(s.Snapshots))
	for name, snap := range s.Snapshots {
		devices[name] = snap.ToIR()
	}
	return ir.IRObject{
		"scenario":  ir.IRString(s.ScenarioName),
		"snapshots": devices,
	}
}

// MarshalGolden renders a result's snapshots as canonical JSON.
func MarshalGolden(scenarioName string, result *Result) ([]byte, error) {
	snapshot := FinalSnapshot{ScenarioName: scenarioName, Snapshots: result.Snapshots}
	return ir.MarshalCanonical(snapshot.toIR())
}

// RunWithGolden executes a scenario and compares the final snapshots
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already computed result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalGolden(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
