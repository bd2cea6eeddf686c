package client

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bentobox/bentobox/internal/control"
)

// fakeDaemon starts a control-socket listener that answers exactly
// one open_service request with the given response sequence, then
// closes. Returns the socket path.
func fakeDaemon(t *testing.T, responses []control.Response, onOpened func(conn net.Conn)) string {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "id.sock")
	ln, err := net.Listen("unix", sockPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReaderSize(conn, control.MaxLineBytes+1)
		line, err := r.ReadBytes('\n')
		if err != nil {
			return
		}
		var req control.Request
		if err := json.Unmarshal(line, &req); err != nil {
			return
		}

		for _, resp := range responses {
			resp.ID = req.ID
			if err := control.WriteResponse(conn, resp); err != nil {
				return
			}
		}

		opened := false
		for _, resp := range responses {
			if resp.Status == control.StatusOpened {
				opened = true
			}
		}
		if opened && onOpened != nil {
			onOpened(conn)
		}
	}()

	return sockPath
}

func TestOpenServiceSucceedsOnOpened(t *testing.T) {
	sock := fakeDaemon(t, []control.Response{control.Opened("")}, nil)

	conn, err := dial(sock)
	require.NoError(t, err)
	defer conn.Close()

	err = openService(conn, control.ServiceSSH, nil, nil)
	require.NoError(t, err)
}

func TestOpenServiceReportsStartingThenOpens(t *testing.T) {
	sock := fakeDaemon(t, []control.Response{
		control.Starting("", 1, 3, 1),
		control.Opened(""),
	}, nil)

	conn, err := dial(sock)
	require.NoError(t, err)
	defer conn.Close()

	var seen []int
	err = openService(conn, control.ServiceSerial, &control.OpenServiceOptions{Access: control.SerialAccessInteractive}, func(attempt, max, retry int) {
		seen = append(seen, attempt)
	})
	require.NoError(t, err)
	require.Equal(t, []int{1}, seen)
}

func TestOpenServiceSurfacesErrorResponse(t *testing.T) {
	sock := fakeDaemon(t, []control.Response{
		control.ErrorResponse("", control.ErrServiceUnavailable, "no guest service"),
	}, nil)

	conn, err := dial(sock)
	require.NoError(t, err)
	defer conn.Close()

	err = openService(conn, control.ServiceSSH, nil, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no guest service")
}

func TestDialMissingSocketReportsUnreachable(t *testing.T) {
	_, err := dial(filepath.Join(t.TempDir(), "nope.sock"))
	require.ErrorIs(t, err, ErrInstancedUnreachable)
}

func TestShellQuoteEscapesEmbeddedQuotes(t *testing.T) {
	require.Equal(t, `'it'"'"'s'`, shellQuote("it's"))
	require.Equal(t, `'plain'`, shellQuote("plain"))
}

func TestOpenServiceThenRawRelayWorks(t *testing.T) {
	received := make(chan []byte, 1)
	sock := fakeDaemon(t, []control.Response{control.Opened("")}, func(conn net.Conn) {
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		received <- buf[:n]
		_, _ = conn.Write([]byte("pong"))
	})

	conn, err := dial(sock)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, openService(conn, control.ServiceSSH, nil, nil))
	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)

	select {
	case got := <-received:
		require.Equal(t, "ping", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relayed bytes")
	}
}
