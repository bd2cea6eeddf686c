// Package daemon implements the per-instance supervisor process: it
// owns the hypervisor driver handle for the instance's lifetime, fans
// out the guest serial port to control-socket subscribers, and accepts
// control-protocol connections until signaled to stop.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bentobox/bentobox/internal/driver"
	"github.com/bentobox/bentobox/internal/instance"
)

const (
	acceptPollInterval  = 50 * time.Millisecond
	acceptErrorInterval = 250 * time.Millisecond
	vsockServicePort    = 2222
	vsockOpenAttempts   = 5
	vsockOpenRetryDelay = 2 * time.Second
)

// readinessEvent is the single JSON line the daemon emits on stdout
// once it is ready to accept control connections. The instance
// manager's start() tails stdout looking for this line; it is not a
// structured log record and must never be mixed with slog output.
type readinessEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
}

// Daemon supervises one running instance.
type Daemon struct {
	inst   *instance.Instance
	log    *slog.Logger
	engine string
}

// New constructs a Daemon for inst.
func New(inst *instance.Instance, log *slog.Logger) *Daemon {
	return &Daemon{inst: inst, log: log, engine: string(inst.Engine())}
}

// Run performs the full daemon lifecycle in order: acquire the PID
// guard, bind the control socket, start the driver, open the serial
// device, emit the readiness event on stdout, install signal handlers,
// and run the accept loop until SIGINT/SIGTERM or a fatal error. On
// return, the driver has been stopped and both guards released.
func (d *Daemon) Run(ctx context.Context) error {
	pidGuard, err := acquirePIDGuard(d.inst.File(instance.FilePID))
	if err != nil {
		return fmt.Errorf("acquire pid guard: %w", err)
	}
	defer func() { _ = pidGuard.Close() }()

	sockGuard, err := bindSocketGuard(d.inst.File(instance.FileSocket))
	if err != nil {
		return fmt.Errorf("bind control socket: %w", err)
	}
	defer func() { _ = sockGuard.Close() }()

	drv, err := d.buildDriver()
	if err != nil {
		return fmt.Errorf("build driver: %w", err)
	}
	if err := drv.Start(ctx); err != nil {
		return fmt.Errorf("start driver: %w", err)
	}
	defer func() { _ = drv.Stop(context.Background()) }()

	serialDev, _, err := drv.OpenDevice(ctx, driver.DeviceRequest{Kind: driver.DeviceSerial})
	if err != nil {
		return fmt.Errorf("open serial device: %w", err)
	}

	serialLog, err := os.OpenFile(d.inst.File(instance.FileSerialLog), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open serial log: %w", err)
	}
	defer func() { _ = serialLog.Close() }()

	hub := NewSerialHub(serialLog)
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		if err := hub.Pump(serialDev.Output); err != nil && d.log != nil {
			d.log.Debug("serial pump stopped", "error", err)
		}
	}()

	if err := d.emitReadiness("Running"); err != nil {
		return fmt.Errorf("emit readiness event: %w", err)
	}

	sigCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	d.acceptLoop(sigCtx, sockGuard.Listener, drv, hub, serialDev.Input)

	_ = d.emitReadiness("Exiting")
	return nil
}

func (d *Daemon) emitReadiness(eventType string) error {
	evt := readinessEvent{Timestamp: time.Now().UTC(), Type: eventType}
	buf, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	buf = append(buf, '\n')
	_, err = os.Stdout.Write(buf)
	return err
}

func (d *Daemon) buildDriver() (driver.Driver, error) {
	cfg, err := d.inst.DriverConfig()
	if err != nil {
		return nil, err
	}
	drv, err := driver.New(d.engine, cfg)
	if err != nil {
		return nil, err
	}
	if err := drv.Validate(context.Background()); err != nil {
		return nil, err
	}
	if err := drv.Create(context.Background()); err != nil {
		return nil, err
	}
	return drv, nil
}

// acceptLoop polls for incoming control connections until ctx is
// canceled. A 50ms accept deadline stands in for the non-blocking
// accept + sleep pattern the wire-level daemon uses; a deadline
// timeout is this loop's WouldBlock.
func (d *Daemon) acceptLoop(ctx context.Context, ln *net.UnixListener, drv driver.Driver, hub *SerialHub, serialInput io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = ln.SetDeadline(time.Now().Add(acceptPollInterval))
		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if d.log != nil {
				d.log.Warn("accept failed", "error", err)
			}
			time.Sleep(acceptErrorInterval)
			continue
		}

		go d.handleConn(ctx, conn, drv, hub, serialInput)
	}
}
