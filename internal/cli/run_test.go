package cli

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startRun executes the root command with args, which must select
// "run", until the returned stop is called.
func startRun(t *testing.T, stderr io.Writer, args ...string) (stdout *syncBuffer, stop func() error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		select {
		case err := <-done:
			done <- err
			return true
		default:
		}
		return strings.Contains(out.String(), "Press Ctrl-C to stop.")
	}, 5*time.Second, 10*time.Millisecond)

	var stopped bool
	stop = func() error {
		if stopped {
			return nil
		}
		stopped = true
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(10 * time.Second):
			t.Fatal("run did not stop")
			return nil
		}
	}
	t.Cleanup(func() { _ = stop() })
	return out, stop
}

func TestRun_StartsAndStops(t *testing.T) {
	isolate(t)

	out, stop := startRun(t, io.Discard, "--db", "run.db", "run")
	assert.Regexp(t, regexp.MustCompile(`nexus running \(device [0-9a-f-]{36}, db run\.db\)`), out.String())
	require.NoError(t, stop())

	// the final sync persisted the document
	var status StatusResult
	executeJSON(t, &status, "--db", "run.db", "status")
	assert.NotEmpty(t, status.SyncToken)
}

func TestRun_InboxMergesDroppedDocuments(t *testing.T) {
	dir := isolate(t)
	inbox := filepath.Join(dir, "inbox")

	executeJSON(t, nil, "--db", "phone.db", "import", writeFile(t, "work.json", workSnapshot))
	executeJSON(t, nil, "--db", "phone.db", "export", "--out", "phone.doc")
	doc, err := os.ReadFile("phone.doc")
	require.NoError(t, err)

	_, stop := startRun(t, io.Discard, "--db", "laptop.db", "run", "--inbox", inbox, "--interval", "50ms")
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "phone.json"), doc, 0o644))

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(inbox, "phone.json"))
		return os.IsNotExist(err)
	}, 5*time.Second, 20*time.Millisecond, "merged file is removed")

	require.NoError(t, stop())

	stdout, _, err := execute(t, "--db", "laptop.db", "snapshot")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Ship release")
}

func TestRun_ServesMetrics(t *testing.T) {
	isolate(t)
	logs := &syncBuffer{}

	_, stop := startRun(t, logs, "--db", "m.db", "run", "--metrics-addr", "127.0.0.1:0")

	var addr string
	require.Eventually(t, func() bool {
		m := regexp.MustCompile(`msg="serving metrics" addr=(\S+)`).FindStringSubmatch(logs.String())
		if m == nil {
			return false
		}
		addr = m[1]
		return true
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")

	require.NoError(t, stop())
}

func TestRun_UnopenableDatabase(t *testing.T) {
	isolate(t)
	require.NoError(t, os.Mkdir("dir.db", 0o755))

	_, _, err := execute(t, "--db", filepath.Join("dir.db", "missing", "x.db"), "run")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
