package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/nexus/internal/crdt"
)

// MergeResult reports the outcome of merging a remote document.
type MergeResult struct {
	File      string `json:"file"`
	Changed   bool   `json:"changed"`
	Persisted bool   `json:"persisted"`
	SyncToken string `json:"sync_token"`
}

func (r MergeResult) renderText(w io.Writer) {
	if !r.Changed {
		fmt.Fprintf(w, "%s: nothing new\n", r.File)
		return
	}
	fmt.Fprintf(w, "%s: merged\n", r.File)
	if r.Persisted {
		fmt.Fprintf(w, "Persisted document %s\n", r.SyncToken)
	}
}

// NewMergeCommand creates the merge command.
func NewMergeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "merge <document>",
		Short: "Merge a document exported on another device",
		Long: `Merge a serialized document, as written by "nexus export", into the local
one and persist the result. Merging is commutative and idempotent: merging
the same file twice changes nothing the second time.

Exit codes:
  0 - Merged (or nothing new)
  1 - The file is not a valid document
  2 - Command error (unreadable file, database not openable)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(rootOpts, args[0], cmd)
		},
	}
}

func runMerge(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	data, err := os.ReadFile(path)
	if err != nil {
		_ = formatter.Error(ErrCodeRead, err.Error(), nil)
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read %s", path), err)
	}

	s, err := openSession(cmd.Context(), cmd, opts, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	tokenBefore := s.engine.SyncState().SyncToken
	changed, err := s.bridge.Merge(cmd.Context(), data)
	if err != nil {
		if crdt.IsDecodeError(err) {
			_ = formatter.Error(ErrCodeMergeRejected, err.Error(), nil)
			return WrapExitError(ExitFailure, fmt.Sprintf("%s rejected", path), err)
		}
		return WrapExitError(ExitFailure, "merge failed", err)
	}

	// Merge already flushed; a failed flush there is only logged.
	if _, err := s.engine.Sync(cmd.Context()); err != nil {
		_ = formatter.Error(ErrCodeSync, err.Error(), nil)
		return WrapExitError(ExitFailure, "sync failed", err)
	}

	token := s.engine.SyncState().SyncToken
	if err := s.finish(); err != nil {
		return err
	}
	return formatter.Success(MergeResult{
		File:      path,
		Changed:   changed,
		Persisted: token != tokenBefore,
		SyncToken: token,
	})
}
