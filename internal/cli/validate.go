package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/nexus/internal/schema"
)

// FileValidation is the result for one snapshot file.
type FileValidation struct {
	File       string             `json:"file"`
	Valid      bool               `json:"valid"`
	Violations []schema.Violation `json:"violations,omitempty"`
}

// ValidationResult holds validation results for every file.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

func (r ValidationResult) renderText(w io.Writer) {
	for _, f := range r.Files {
		if f.Valid {
			fmt.Fprintf(w, "✓ %s\n", f.File)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", f.File)
		for _, v := range f.Violations {
			fmt.Fprintf(w, "  %s\n", v)
		}
	}
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <snapshot.json>...",
		Short: "Check snapshot files against the schema",
		Long: `Check snapshot files against the snapshot schema without touching the
database. Every violation is reported with its path and position.

Exit codes:
  0 - All files are valid
  1 - At least one file is invalid
  2 - Command error (unreadable file)`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
}

func runValidate(opts *RootOptions, files []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	validator, err := schema.NewValidator()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load schema", err)
	}

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(files))}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			_ = formatter.Error(ErrCodeRead, err.Error(), nil)
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read %s", file), err)
		}
		formatter.VerboseLog("Validating %s (%d bytes)", file, len(data))

		fv := FileValidation{File: file, Valid: true}
		if err := validator.Validate(file, data); err != nil {
			var verr *schema.ValidationError
			if !errors.As(err, &verr) {
				return WrapExitError(ExitCommandError, fmt.Sprintf("failed to validate %s", file), err)
			}
			fv.Valid = false
			fv.Violations = verr.Violations
			result.Valid = false
		}
		result.Files = append(result.Files, fv)
	}

	if err := formatter.Success(result); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}
