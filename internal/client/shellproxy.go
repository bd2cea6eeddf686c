package client

import (
	"io"
	"os"

	"github.com/bentobox/bentobox/internal/control"
)

// RunShellProxy dials the instance's control socket, opens the ssh
// service, and relays raw bytes between the socket and the calling
// process's stdio until either side closes. It is meant to run as an
// ssh ProxyCommand child: ssh itself speaks the wire protocol over
// this process's stdin/stdout.
func RunShellProxy(socketPath string) error {
	conn, err := dial(socketPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := openService(conn, control.ServiceSSH, nil, nil); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = io.Copy(conn, os.Stdin)
		if c, ok := conn.(interface{ CloseWrite() error }); ok {
			_ = c.CloseWrite()
		}
	}()

	_, _ = io.Copy(os.Stdout, conn)
	<-done
	return nil
}
