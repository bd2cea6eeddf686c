// Package client implements the CLI-side half of the control
// protocol: dialing an instance's control socket, issuing
// open_service requests, and relaying stdio once a service is opened.
package client

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/bentobox/bentobox/internal/control"
)

const handshakeTimeout = 5 * time.Second

// ErrInstancedUnreachable reports that an instance's control socket
// does not exist, almost always meaning the instance isn't running.
var ErrInstancedUnreachable = fmt.Errorf("control socket missing, make sure the instance is running")

// dial connects to the control socket at path, failing fast with
// ErrInstancedUnreachable if it doesn't exist.
func dial(path string) (net.Conn, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrInstancedUnreachable, path)
		}
		if ne, ok := err.(*net.OpError); ok && os.IsNotExist(ne.Err) {
			return nil, fmt.Errorf("%w: %s", ErrInstancedUnreachable, path)
		}
		return nil, fmt.Errorf("connect %s: %w", path, err)
	}
	return conn, nil
}

// renderControlError turns a wire error frame into a message prefixed
// with its code, matching the CLI's rendered diagnostics.
func renderControlError(code control.ErrCode, message string) error {
	return fmt.Errorf("%s: %s. %s", code, message, code.Remediation())
}

type deadlineConn interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

func clearDeadlines(conn deadlineConn) {
	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})
}

func setHandshakeDeadlines(conn deadlineConn) {
	deadline := time.Now().Add(handshakeTimeout)
	_ = conn.SetReadDeadline(deadline)
	_ = conn.SetWriteDeadline(deadline)
}
