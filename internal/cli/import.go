package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/nexus/internal/schema"
	"github.com/roach88/nexus/internal/state"
)

// ImportResult reports the outcome of importing a snapshot file.
type ImportResult struct {
	File      string         `json:"file"`
	Changed   bool           `json:"changed"`
	Persisted bool           `json:"persisted"`
	Counts    map[string]int `json:"counts"`
}

func (r ImportResult) renderText(w io.Writer) {
	if !r.Changed {
		fmt.Fprintf(w, "%s: already up to date\n", r.File)
		return
	}
	fmt.Fprintf(w, "%s: imported\n", r.File)
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <snapshot.json>",
		Short: "Replace the data with a snapshot file",
		Long: `Validate a snapshot file against the snapshot schema and apply it as a
local edit: every list takes the file's items in the file's order, and
items missing from the file are deleted. The result is synced.

Exit codes:
  0 - Imported
  1 - The file does not match the schema
  2 - Command error (unreadable file, database not openable)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, args[0], cmd)
		},
	}
}

func runImport(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	data, err := os.ReadFile(path)
	if err != nil {
		_ = formatter.Error(ErrCodeRead, err.Error(), nil)
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read %s", path), err)
	}

	validator, err := schema.NewValidator()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load schema", err)
	}
	snap, err := validator.Decode(path, data)
	if err != nil {
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			_ = formatter.Error(ErrCodeInvalid, fmt.Sprintf("%s does not match the snapshot schema", path), violationStrings(verr))
		}
		return WrapExitError(ExitFailure, fmt.Sprintf("%s rejected", path), err)
	}

	s, err := openSession(cmd.Context(), cmd, opts, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	before := s.engine.Document().Clock()
	if _, err := s.container.Update(func(st *state.State) error {
		st.Data = snap
		return nil
	}); err != nil {
		return WrapExitError(ExitFailure, "import failed", err)
	}
	if err := s.bridge.Drain(); err != nil {
		return WrapExitError(ExitFailure, "import failed", err)
	}

	persisted, err := s.engine.Sync(cmd.Context())
	if err != nil {
		_ = formatter.Error(ErrCodeSync, err.Error(), nil)
		return WrapExitError(ExitFailure, "sync failed", err)
	}

	counts := make(map[string]int)
	for f, n := range s.engine.Snapshot().Counts() {
		counts[string(f)] = n
	}
	result := ImportResult{
		File:      path,
		Changed:   s.engine.Document().Clock() != before,
		Persisted: persisted,
		Counts:    counts,
	}
	if err := s.finish(); err != nil {
		return err
	}
	return formatter.Success(result)
}

func violationStrings(err *schema.ValidationError) []string {
	out := make([]string, len(err.Violations))
	for i, v := range err.Violations {
		out[i] = v.String()
	}
	return out
}
