package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServe runs "serve" in the background and returns a stop function
// that cancels it and returns its output and error.
func (f *cliFixture) startServe(t *testing.T) func() (string, error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	out := &bytes.Buffer{}

	cmd := NewRootCommandWithOptions(&RootOptions{Clock: f.clock, IDs: f.ids})
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", f.config, "--db", f.db, "--directory", f.directory, "serve"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	var stopped bool
	stop := func() (string, error) {
		if !stopped {
			stopped = true
			cancel()
		}
		select {
		case err := <-done:
			return out.String(), err
		case <-time.After(5 * time.Second):
			t.Fatal("serve did not stop within timeout")
			return "", nil
		}
	}
	t.Cleanup(func() {
		if !stopped {
			_, _ = stop()
		}
	})
	return stop
}

func TestServe_StopsOnContextCancel(t *testing.T) {
	f := newCLIFixture(t)
	stop := f.startServe(t)

	require.Eventually(t, func() bool { return f.clock.HasWaiters() },
		2*time.Second, 5*time.Millisecond, "sweeper ticker never registered")

	out, err := stop()
	require.NoError(t, err)
	assert.Contains(t, out, "Sweeper started")
}

func TestServe_InitialSweepEvictsStaleLeases(t *testing.T) {
	f := newCLIFixture(t)
	for _, s := range []string{"alice", "bob", "carol"} {
		f.mustRun(t, "join", s)
	}
	f.clock.Step(301 * time.Second)

	stop := f.startServe(t)

	require.Eventually(t, func() bool {
		out, err := f.run(t, "position", "carol")
		return err == nil && out == "carol is at position 1\n"
	}, 5*time.Second, 20*time.Millisecond)

	_, err := stop()
	require.NoError(t, err)

	out := f.mustRun(t, "timeout", "carol")
	assert.Equal(t, "carol: 5:00 remaining\n", out)
	f.mustRun(t, "check")
}

func TestServe_TickerEvictsExpiredLease(t *testing.T) {
	f := newCLIFixture(t)
	f.mustRun(t, "join", "alice")

	stop := f.startServe(t)
	require.Eventually(t, func() bool { return f.clock.HasWaiters() },
		2*time.Second, 5*time.Millisecond, "sweeper ticker never registered")

	f.clock.Step(310 * time.Second)

	require.Eventually(t, func() bool {
		_, err := f.run(t, "position", "alice")
		return err != nil && GetExitCode(err) == ExitFailure
	}, 5*time.Second, 20*time.Millisecond)

	_, err := stop()
	require.NoError(t, err)
}
