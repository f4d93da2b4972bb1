package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Out string
}

// ExportResult is reported when the document was written to a file.
type ExportResult struct {
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
}

func (r ExportResult) renderText(w io.Writer) {
	fmt.Fprintf(w, "Wrote %d bytes to %s\n", r.Bytes, r.Path)
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the serialized document",
		Long: `Write the current serialized document. Copy the file to another device
and run "nexus merge" there to combine both devices' data.

Without --out the raw document is written to stdout regardless of --format.

Example:
  nexus export --out laptop.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output file (default: stdout)")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	s, err := openSession(cmd.Context(), cmd, opts.RootOptions, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	data := s.engine.CurrentDocumentBytes()
	if err := s.finish(); err != nil {
		return err
	}
	if opts.Out == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}

	if err := os.WriteFile(opts.Out, data, 0o644); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to write %s", opts.Out), err)
	}
	return opts.formatter(cmd).Success(ExportResult{Path: opts.Out, Bytes: len(data)})
}
