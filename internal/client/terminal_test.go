package client

import (
	"os"
	"os/exec"
	"testing"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
	"golang.org/x/term"
)

func TestEnterRawTerminalNoopsOnNonTTY(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "notty")
	require.NoError(t, err)
	defer f.Close()

	raw, err := enterRawTerminal(f)
	require.NoError(t, err)
	raw.restore() // must not panic even though state is nil
}

func TestEnterRawTerminalPutsRealTTYIntoRawModeAndRestores(t *testing.T) {
	cmd := exec.Command("cat")
	ptmx, err := pty.Start(cmd)
	require.NoError(t, err)
	defer func() {
		_ = cmd.Process.Kill()
		_ = ptmx.Close()
	}()

	require.True(t, term.IsTerminal(int(ptmx.Fd())))

	raw, err := enterRawTerminal(ptmx)
	require.NoError(t, err)
	require.NotNil(t, raw.state)

	raw.restore()
}
