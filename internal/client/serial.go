package client

import (
	"fmt"
	"io"
	"os"

	"github.com/bentobox/bentobox/internal/control"
)

const serialEscapeByte = 0x1D

// AttachSerial opens an interactive serial console on the instance
// whose control socket lives at socketPath, puts the calling
// process's stdin into raw mode for the duration, and relays bytes
// until the guest output side closes or the user sends the escape
// byte (ctrl-]).
func AttachSerial(socketPath string) error {
	conn, err := dial(socketPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	err = openService(conn, control.ServiceSerial, &control.OpenServiceOptions{Access: control.SerialAccessInteractive}, func(attempt, maxAttempts, retryAfterSecs int) {
		fmt.Fprintf(os.Stderr, "waiting for serial console (attempt %d/%d)...\n", attempt, maxAttempts)
	})
	if err != nil {
		return err
	}

	raw, err := enterRawTerminal(os.Stdin)
	if err != nil {
		return fmt.Errorf("enter raw terminal mode: %w", err)
	}
	defer raw.restore()

	outputDone := make(chan struct{})
	go func() {
		defer close(outputDone)
		_, _ = io.Copy(os.Stdout, conn)
	}()

	buf := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			escaped := false
			if idx := bytesIndexByte(chunk, serialEscapeByte); idx >= 0 {
				chunk = chunk[:idx]
				escaped = true
			}
			if len(chunk) > 0 {
				if _, werr := conn.Write(chunk); werr != nil {
					break
				}
			}
			if escaped {
				if c, ok := conn.(interface{ CloseWrite() error }); ok {
					_ = c.CloseWrite()
				}
				break
			}
		}
		if err != nil {
			break
		}
	}

	<-outputDone
	return nil
}

func bytesIndexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
