package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// SyncResult reports the outcome of a forced flush.
type SyncResult struct {
	Persisted bool   `json:"persisted"`
	SyncToken string `json:"sync_token"`
}

func (r SyncResult) renderText(w io.Writer) {
	if r.Persisted {
		fmt.Fprintf(w, "Persisted document %s\n", r.SyncToken)
		return
	}
	fmt.Fprintf(w, "Already up to date (%s)\n", r.SyncToken)
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Flush the document now",
		Long: `Write the current document and sync state to the database unless the
stored copy is already identical.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, cmd)
		},
	}
}

func runSync(opts *RootOptions, cmd *cobra.Command) error {
	s, err := openSession(cmd.Context(), cmd, opts, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	formatter := opts.formatter(cmd)
	persisted, err := s.engine.Sync(cmd.Context())
	if err != nil {
		_ = formatter.Error(ErrCodeSync, err.Error(), nil)
		return WrapExitError(ExitFailure, "sync failed", err)
	}

	result := SyncResult{
		Persisted: persisted,
		SyncToken: s.engine.SyncState().SyncToken,
	}
	if err := s.finish(); err != nil {
		return err
	}
	return formatter.Success(result)
}
