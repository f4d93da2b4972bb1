package harness

import (
	"github.com/roach88/nexus/internal/ir"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq     int    `json:"seq"`
	Device  string `json:"device,omitempty"`
	Op      string `json:"op"`
	Changed bool   `json:"changed"`
	Clock   int64  `json:"clock"` // document clock after the step
	Error   string `json:"error,omitempty"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace lists the executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Snapshots holds each device's final container snapshot.
	Snapshots map[string]ir.Snapshot `json:"snapshots"`

	// Documents holds each device's final serialized document.
	Documents map[string][]byte `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Errors:    []string{},
		Snapshots: make(map[string]ir.Snapshot),
		Documents: make(map[string][]byte),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	ev.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
}
