package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func requirePass(t *testing.T, result *Result) {
	t.Helper()
	if !result.Pass {
		for _, msg := range result.Errors {
			t.Log(msg)
		}
		t.FailNow()
	}
}

func TestScenarios(t *testing.T) {
	names := []string{
		"divergent_adds",
		"concurrent_edit",
		"delete_vs_edit",
		"three_way_finances",
		"flaky_disk",
		"rejected_merge",
	}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			result, err := Run(loadScenario(t, name))
			require.NoError(t, err)
			requirePass(t, result)
		})
	}
}

func TestScenarios_Golden(t *testing.T) {
	for _, name := range []string{"divergent_adds", "concurrent_edit", "three_way_finances"} {
		t.Run(name, func(t *testing.T) {
			result, err := RunWithGolden(t, loadScenario(t, name))
			require.NoError(t, err)
			requirePass(t, result)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	s := loadScenario(t, "concurrent_edit")

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, first.Documents, second.Documents)
	assert.Equal(t, first.Trace, second.Trace)
}

func TestRun_Trace(t *testing.T) {
	result, err := Run(loadScenario(t, "concurrent_edit"))
	require.NoError(t, err)

	want := []TraceEvent{
		{Seq: 1, Device: "laptop", Op: OpSet, Changed: true, Clock: 1},
		{Seq: 2, Device: "phone", Op: OpMerge, Changed: true, Clock: 1},
		{Seq: 3, Device: "laptop", Op: OpUpsert, Changed: true, Clock: 2},
		{Seq: 4, Device: "phone", Op: OpUpsert, Changed: true, Clock: 2},
		{Seq: 5, Device: "laptop", Op: OpMerge, Changed: true, Clock: 2},
		{Seq: 6, Device: "phone", Op: OpMerge, Changed: false, Clock: 2},
	}
	assert.Equal(t, want, result.Trace)
}

func TestRun_FailedExpectationIsReported(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong_expectation
description: "merging an identical document reports no change"
devices: [a, b]
steps:
  - device: b
    merge: { from: a }
    expect: { changed: true }
assertions:
  - type: converged
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected changed=true")
}

func TestRun_FailedAssertionIsReported(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: not_converged
description: "devices that never merge do not converge"
devices: [a, b]
steps:
  - device: a
    set: { field: goals, items: [{ id: g1, title: Run 5k }] }
assertions:
  - type: converged
  - type: items
    device: b
    field: goals
    ids: [g1]
  - type: item
    device: a
    field: goals
    id: g1
    expect: { title: Run 10k }
  - type: pending
    device: b
    value: true
  - type: persisted
    device: a
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "Assertion failed: converged")
	assert.Contains(t, result.Errors[1], "Assertion failed: items on b")
	assert.Contains(t, result.Errors[2], "member title")
	assert.Contains(t, result.Errors[3], "pending=true")
	assert.Contains(t, result.Errors[4], "Assertion failed: persisted on a")
}

func TestRun_UpsertWithoutIDAppends(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: id_less
description: "items without ids are keyed by content"
devices: [a]
steps:
  - device: a
    upsert: { field: notes, item: { content: first } }
  - device: a
    upsert: { field: notes, item: { content: second } }
  - device: a
    remove: { field: notes, id: missing }
    expect: { changed: false }
assertions:
  - type: items
    device: a
    field: notes
    ids: ["", ""]
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	requirePass(t, result)
	assert.Len(t, result.Snapshots["a"].Notes, 2)
}
