package cli

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCloser struct{ err error }

func (c failingCloser) Close() error { return c.err }

func openTestSession(t *testing.T) *session {
	t.Helper()
	cmd := &cobra.Command{}
	s, err := openSession(context.Background(), cmd, &RootOptions{}, nil)
	require.NoError(t, err)
	return s
}

func TestSession_FinishReportsCloseFailure(t *testing.T) {
	isolate(t)
	s := openTestSession(t)
	s.logCloser = failingCloser{err: errors.New("disk gone")}

	err := s.finish()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to close database")
	assert.Contains(t, err.Error(), "disk gone")

	// the deferred Close of a command is a no-op afterwards
	assert.NoError(t, s.Close())
}

func TestSession_FinishClosesEngine(t *testing.T) {
	isolate(t)
	s := openTestSession(t)

	require.NoError(t, s.finish())
	assert.False(t, s.engine.IsOpen())
	assert.NoError(t, s.Close())
}
