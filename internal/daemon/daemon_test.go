package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bentobox/bentobox/internal/control"
	_ "github.com/bentobox/bentobox/internal/driver/fakedriver"
	"github.com/bentobox/bentobox/internal/instance"
	"github.com/bentobox/bentobox/internal/paths"
)

func newTestInstance(t *testing.T) *instance.Instance {
	t.Helper()
	dataHome := t.TempDir()
	p := paths.New(dataHome)
	require.NoError(t, os.MkdirAll(p.InstanceDir("vm1"), 0o755))

	cfg := instance.NewConfig()
	cfg.Engine = "fake"
	return instance.New(p, "vm1", cfg)
}

// dialDaemon polls the daemon's control socket until it accepts.
func dialDaemon(t *testing.T, sockPath string) net.Conn {
	t.Helper()
	var conn net.Conn
	var err error
	for i := 0; i < 100; i++ {
		conn, err = net.Dial("unix", sockPath)
		if err == nil {
			return conn
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, err)
	return nil
}

func TestDaemonRunAcceptsListServices(t *testing.T) {
	inst := newTestInstance(t)
	d := New(inst, nil)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- d.Run(ctx) }()

	sockPath := inst.File(instance.FileSocket)
	conn := dialDaemon(t, sockPath)
	defer conn.Close()

	req := control.Request{ID: "r1", Op: control.OpListServices}
	require.NoError(t, control.WriteRequest(conn, req))

	r := bufio.NewReaderSize(conn, control.MaxLineBytes+1)
	line, err := control.ReadLine(r)
	require.NoError(t, err)

	var resp control.Response
	require.NoError(t, json.Unmarshal(line, &resp))
	require.Equal(t, control.StatusServices, resp.Status)
	require.Len(t, resp.Services, 2)

	cancel()
	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not shut down after cancel")
	}

	_, err = os.Stat(sockPath)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(inst.File(instance.FilePID))
	require.True(t, os.IsNotExist(err))
}

func TestDaemonRejectsVersionMismatch(t *testing.T) {
	inst := newTestInstance(t)
	d := New(inst, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- d.Run(ctx) }()

	conn := dialDaemon(t, inst.File(instance.FileSocket))
	defer conn.Close()

	// WriteRequest pins the version, so send the frame by hand.
	_, err := conn.Write([]byte(`{"version":7,"id":"x","op":"list_services"}` + "\n"))
	require.NoError(t, err)

	r := bufio.NewReaderSize(conn, control.MaxLineBytes+1)
	line, err := control.ReadLine(r)
	require.NoError(t, err)

	var resp control.Response
	require.NoError(t, json.Unmarshal(line, &resp))
	require.Equal(t, control.StatusError, resp.Status)
	require.Equal(t, control.ErrUnsupportedVersion, resp.Code)

	// The daemon closes the connection after the terminal error frame.
	_, err = control.ReadLine(r)
	require.Error(t, err)

	cancel()
	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not shut down after cancel")
	}
}

func TestDaemonRejectsUnknownService(t *testing.T) {
	inst := newTestInstance(t)
	d := New(inst, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- d.Run(ctx) }()

	conn := dialDaemon(t, inst.File(instance.FileSocket))
	defer conn.Close()

	req := control.Request{ID: "r2", Op: control.OpOpenService, Service: "telnet"}
	require.NoError(t, control.WriteRequest(conn, req))

	r := bufio.NewReaderSize(conn, control.MaxLineBytes+1)
	line, err := control.ReadLine(r)
	require.NoError(t, err)

	var resp control.Response
	require.NoError(t, json.Unmarshal(line, &resp))
	require.Equal(t, control.StatusError, resp.Status)
	require.Equal(t, control.ErrUnknownService, resp.Code)

	cancel()
	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not shut down after cancel")
	}
}
