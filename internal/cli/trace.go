package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/nexus/internal/harness"
)

// TraceResult is the step-by-step record of one scenario run.
type TraceResult struct {
	Scenario string               `json:"scenario"`
	Pass     bool                 `json:"pass"`
	Trace    []harness.TraceEvent `json:"trace"`
	Errors   []string             `json:"errors,omitempty"`
}

func (r TraceResult) renderText(w io.Writer) {
	fmt.Fprintf(w, "Scenario: %s\n\n", r.Scenario)
	for _, ev := range r.Trace {
		device := ev.Device
		if device == "" {
			device = "-"
		}
		changed := " "
		if ev.Changed {
			changed = "*"
		}
		fmt.Fprintf(w, "%3d %s %-10s %-12s clock=%d", ev.Seq, changed, device, ev.Op, ev.Clock)
		if ev.Error != "" {
			fmt.Fprintf(w, " error=%q", ev.Error)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
	if r.Pass {
		fmt.Fprintln(w, "✓ passed")
		return
	}
	fmt.Fprintln(w, "✗ failed")
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trace <scenario.yaml>",
		Short: "Show the step trace of a scenario",
		Long: `Run one scenario and print every step: the device, the operation,
whether the device's document changed (*) and its clock afterwards.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(rootOpts, args[0], cmd)
		},
	}
}

func runTrace(opts *RootOptions, file string, cmd *cobra.Command) error {
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	result, err := harness.Run(scenario)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}

	return opts.formatter(cmd).Success(TraceResult{
		Scenario: scenario.Name,
		Pass:     result.Pass,
		Trace:    result.Trace,
		Errors:   result.Errors,
	})
}
