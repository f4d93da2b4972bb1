package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty working directory with an empty HOME
// so no config or .env file leaks in.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", dir)
	return dir
}

// execute runs the root command with args.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

// executeJSON runs the root command with --format json and decodes the
// response data into data.
func executeJSON(t *testing.T, data any, args ...string) CLIResponse {
	t.Helper()
	stdout, _, err := execute(t, append([]string{"--format", "json"}, args...)...)
	require.NoError(t, err, stdout)

	var resp struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp), stdout)
	if data != nil {
		require.NoError(t, json.Unmarshal(resp.Data, data))
	}
	return resp.CLIResponse
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path, err := filepath.Abs(name)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// syncBuffer is a bytes.Buffer safe for one writer and concurrent readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

const (
	groceriesSnapshot = `{"tasks":[{"id":"t1","title":"Buy milk"},{"id":"t2","title":"Buy eggs"}]}`
	workSnapshot      = `{"tasks":[{"id":"w1","title":"Ship release"}],"finances":{"budgets":[{"id":"b1","category":"food","limit":300}]}}`
)
