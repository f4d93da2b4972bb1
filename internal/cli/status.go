package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/nexus/internal/ir"
	"github.com/roach88/nexus/internal/store"
)

// StatusResult describes the persisted sync state of a database.
type StatusResult struct {
	DB         string         `json:"db"`
	DeviceID   string         `json:"device_id"`
	LastSynced string         `json:"last_synced,omitempty"` // RFC 3339, empty if never
	SyncToken  string         `json:"sync_token,omitempty"`
	Pending    bool           `json:"pending"`
	Clock      int64          `json:"clock"`
	Writes     int64          `json:"writes"` // times the document record was written
	Counts     map[string]int `json:"counts"`
}

func (r StatusResult) renderText(w io.Writer) {
	lastSynced := r.LastSynced
	if lastSynced == "" {
		lastSynced = "never"
	}
	token := r.SyncToken
	if token == "" {
		token = "-"
	}

	fmt.Fprintf(w, "Database:    %s\n", r.DB)
	fmt.Fprintf(w, "Device:      %s\n", r.DeviceID)
	fmt.Fprintf(w, "Last synced: %s\n", lastSynced)
	fmt.Fprintf(w, "Sync token:  %s\n", token)
	fmt.Fprintf(w, "Pending:     %v\n", r.Pending)
	fmt.Fprintf(w, "Clock:       %d\n", r.Clock)
	fmt.Fprintf(w, "Writes:      %d\n", r.Writes)

	parts := make([]string, 0, len(ir.Fields))
	for _, f := range ir.Fields {
		parts = append(parts, fmt.Sprintf("%s=%d", f, r.Counts[string(f)]))
	}
	fmt.Fprintf(w, "Items:       %s\n", strings.Join(parts, " "))
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync state and item counts",
		Long: `Show the device id, when the document was last persisted, its sync
token, whether unflushed changes exist, how often the document record was
written and how many items each list holds.

Example:
  nexus status --db ./nexus.db
  nexus status --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	s, err := openSession(cmd.Context(), cmd, opts, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	st := s.engine.SyncState()
	result := StatusResult{
		DB:        s.cfg.DB,
		DeviceID:  st.DeviceID,
		SyncToken: st.SyncToken,
		Pending:   s.engine.Pending(),
		Clock:     s.engine.Document().Clock(),
		Counts:    make(map[string]int, len(ir.Fields)),
	}
	if !st.LastSynced.IsZero() {
		result.LastSynced = st.LastSynced.UTC().Format(time.RFC3339)
	}
	for f, n := range s.engine.Snapshot().Counts() {
		result.Counts[string(f)] = n
	}
	result.Writes, err = s.db.Revision(cmd.Context(), store.KeyDocument)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read document revision", err)
	}

	if err := s.finish(); err != nil {
		return err
	}
	return opts.formatter(cmd).Success(result)
}
