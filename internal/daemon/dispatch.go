package daemon

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/bentobox/bentobox/internal/control"
	"github.com/bentobox/bentobox/internal/driver"
)

// handleConn services exactly one control-protocol request on conn:
// it reads one request line, dispatches it, and for open_service
// hands the connection off to a byte relay after the "opened" frame.
func (d *Daemon) handleConn(ctx context.Context, conn net.Conn, drv driver.Driver, hub *SerialHub, serialInput io.Writer) {
	defer conn.Close()

	r := control.NewLineReader(conn)
	line, err := control.ReadLine(r)
	if err != nil {
		return
	}

	req, err := control.DecodeRequest(line)
	if err != nil {
		_ = control.WriteResponse(conn, control.ErrorResponse("", control.ErrInternal, err.Error()))
		return
	}

	if req.Version != control.ProtocolVersion {
		_ = control.WriteResponse(conn, control.ErrorResponse(req.ID, control.ErrUnsupportedVersion, "unsupported protocol version"))
		return
	}

	switch req.Op {
	case control.OpListServices:
		_ = control.WriteResponse(conn, control.ServicesResponse(req.ID, []control.ServiceDescriptor{
			{Name: control.ServiceSSH},
			{Name: control.ServiceSerial},
		}))
	case control.OpOpenService:
		d.dispatchOpenService(ctx, conn, req, drv, hub, serialInput)
	default:
		_ = control.WriteResponse(conn, control.ErrorResponse(req.ID, control.ErrUnsupportedRequest, "unknown op"))
	}
}

func (d *Daemon) dispatchOpenService(ctx context.Context, conn net.Conn, req control.Request, drv driver.Driver, hub *SerialHub, serialInput io.Writer) {
	switch req.Service {
	case control.ServiceSSH:
		if len(req.Options) > 0 {
			_ = control.WriteResponse(conn, control.ErrorResponse(req.ID, control.ErrUnsupportedRequest, "ssh accepts no options"))
			return
		}
		d.openSSH(ctx, conn, req.ID, drv)
	case control.ServiceSerial:
		opts, err := control.DecodeOpenServiceOptions(req.Options)
		if err != nil {
			_ = control.WriteResponse(conn, control.ErrorResponse(req.ID, control.ErrUnsupportedRequest, err.Error()))
			return
		}
		d.openSerial(conn, req.ID, hub, opts, serialInput)
	default:
		_ = control.WriteResponse(conn, control.ErrorResponse(req.ID, control.ErrUnknownService, "no such service"))
	}
}

func (d *Daemon) openSSH(ctx context.Context, conn net.Conn, id string, drv driver.Driver) {
	for attempt := 1; attempt <= vsockOpenAttempts; attempt++ {
		_, vsockDev, err := drv.OpenDevice(ctx, driver.DeviceRequest{Kind: driver.DeviceVsock, Port: vsockServicePort})
		if err == nil {
			_ = control.WriteResponse(conn, control.Opened(id))
			relayVsock(conn, vsockDev.Conn)
			return
		}

		if attempt == vsockOpenAttempts {
			break
		}
		_ = control.WriteResponse(conn, control.Starting(id, attempt, vsockOpenAttempts, int(vsockOpenRetryDelay.Seconds())))
		select {
		case <-ctx.Done():
			return
		case <-time.After(vsockOpenRetryDelay):
		}
	}

	_ = control.WriteResponse(conn, control.ErrorResponse(id, control.ErrServiceUnavailable, control.ErrServiceUnavailable.Remediation()))
}

// relayVsock implements the vsock relay: one goroutine copies
// client->guest then half-closes the guest write side, the caller's
// goroutine copies guest->client then half-closes the client write
// side. The relay ends when either direction closes.
func relayVsock(conn net.Conn, guest io.ReadWriteCloser) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = io.Copy(guest, conn)
		if c, ok := guest.(interface{ CloseWrite() error }); ok {
			_ = c.CloseWrite()
		}
	}()

	_, _ = io.Copy(conn, guest)
	if c, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = c.CloseWrite()
	}
	<-done
	_ = guest.Close()
}

const serialEscapeByte = 0x1D

// openSerial attaches to the hub and relays bytes per the access role:
// output always flows to the client; input flows from the client to
// guest input only while the subscriber still holds the interactive
// role, and a chunk containing the escape byte ends the input side.
func (d *Daemon) openSerial(conn net.Conn, id string, hub *SerialHub, opts control.OpenServiceOptions, serialInput io.Writer) {
	access := AccessWatch
	if opts.Access == control.SerialAccessInteractive {
		access = AccessInteractive
	}

	subID, ch, err := hub.Attach(access)
	if err != nil {
		_ = control.WriteResponse(conn, control.ErrorResponse(id, control.ErrServiceUnavailable, err.Error()))
		return
	}
	defer hub.Detach(subID)

	_ = control.WriteResponse(conn, control.Opened(id))

	outputDone := make(chan struct{})
	go func() {
		defer close(outputDone)
		for chunk := range ch {
			if _, err := conn.Write(chunk); err != nil {
				return
			}
		}
	}()

	if access == AccessInteractive {
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if n > 0 && hub.CanWriteInput(subID) {
				chunk := buf[:n]
				escaped := false
				if idx := indexByte(chunk, serialEscapeByte); idx >= 0 {
					chunk = chunk[:idx]
					escaped = true
				}
				if len(chunk) > 0 && serialInput != nil {
					_, _ = serialInput.Write(chunk)
				}
				if escaped {
					break
				}
			}
			if err != nil {
				break
			}
		}
		// Detaching closes ch, which ends the output goroutine.
		hub.Detach(subID)
	}

	<-outputDone
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
