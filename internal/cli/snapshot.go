package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/nexus/internal/ir"
)

// snapshotOutput renders a snapshot as canonical JSON in text mode.
type snapshotOutput struct {
	ir.Snapshot
}

func (s snapshotOutput) renderText(w io.Writer) {
	fmt.Fprintf(w, "%s\n", ir.MustMarshalCanonical(s.Snapshot.ToIR()))
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Print the current snapshot",
		Long: `Print the application-visible snapshot of the document: live items of
every list in document order, without merge metadata.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(rootOpts, cmd)
		},
	}
}

func runSnapshot(opts *RootOptions, cmd *cobra.Command) error {
	s, err := openSession(cmd.Context(), cmd, opts, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	snap := s.container.GetSnapshot()
	if err := s.finish(); err != nil {
		return err
	}
	return opts.formatter(cmd).Success(snapshotOutput{snap})
}
