package manager

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReadNewLinesHoldsBackPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\npart"), 0o644))

	lines, offset, err := readNewLines(path, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two"}, lines)

	more, offset2, err := readNewLines(path, offset)
	require.NoError(t, err)
	require.Empty(t, more)
	require.Equal(t, offset, offset2)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("ial\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	lines, _, err = readNewLines(path, offset)
	require.NoError(t, err)
	require.Equal(t, []string{"partial"}, lines)
}

func TestReadNewLinesToleratesMissingFile(t *testing.T) {
	lines, offset, err := readNewLines(filepath.Join(t.TempDir(), "nope"), 0)
	require.NoError(t, err)
	require.Nil(t, lines)
	require.Equal(t, int64(0), offset)
}

func TestWatchLogsDeliversLinesFromBothStreams(t *testing.T) {
	dir := t.TempDir()
	stdoutPath := filepath.Join(dir, "out.log")
	stderrPath := filepath.Join(dir, "err.log")
	require.NoError(t, os.WriteFile(stdoutPath, []byte("{\"type\":\"Running\"}\n"), 0o644))
	require.NoError(t, os.WriteFile(stderrPath, []byte("booting\n"), 0o644))

	w := watchLogs(stdoutPath, stderrPath, 2*time.Second, 10*time.Millisecond)
	defer w.Cancel()

	seenStdout, seenStderr := false, false
	deadline := time.After(time.Second)
	for !seenStdout || !seenStderr {
		select {
		case line := <-w.lines:
			if line.Stream == streamStdout {
				seenStdout = true
			} else {
				seenStderr = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for log lines")
		}
	}
}

func TestWatchLogsTimesOutWithNoActivity(t *testing.T) {
	dir := t.TempDir()
	stdoutPath := filepath.Join(dir, "out.log")
	stderrPath := filepath.Join(dir, "err.log")

	w := watchLogs(stdoutPath, stderrPath, 30*time.Millisecond, 5*time.Millisecond)
	defer w.Cancel()

	select {
	case err := <-w.errs:
		require.True(t, err.TimedOut)
	case <-time.After(time.Second):
		t.Fatal("expected a timeout error")
	}
}
