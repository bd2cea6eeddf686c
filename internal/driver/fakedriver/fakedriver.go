// Package fakedriver provides an in-memory driver.Driver used by tests
// that exercise the daemon and manager without a real hypervisor. It
// registers itself under the "fake" engine name.
package fakedriver

import (
	"context"
	"io"
	"sync"

	"github.com/bentobox/bentobox/internal/driver"
)

const engineName = "fake"

func init() {
	driver.Register(engineName, New)
}

// Driver is a no-op driver.Driver that records the calls made against it.
type Driver struct {
	mu sync.Mutex

	Cfg       driver.Config
	Validated bool
	Created   bool
	Started   bool
	Stopped   bool

	// ValidateErr, CreateErr, StartErr, StopErr let tests force a
	// failure at a specific lifecycle step.
	ValidateErr error
	CreateErr   error
	StartErr    error
	StopErr     error

	serialR *io.PipeReader
	serialW *io.PipeWriter
}

// New constructs a fake Driver. Matches driver.Factory.
func New(cfg driver.Config) (driver.Driver, error) {
	r, w := io.Pipe()
	return &Driver{Cfg: cfg, serialR: r, serialW: w}, nil
}

func (d *Driver) Validate(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Validated = true
	return d.ValidateErr
}

func (d *Driver) Create(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Created = true
	return d.CreateErr
}

func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.StartErr != nil {
		return d.StartErr
	}
	d.Started = true
	return nil
}

func (d *Driver) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.StopErr != nil {
		return d.StopErr
	}
	_ = d.serialW.Close()
	d.Started = false
	d.Stopped = true
	return nil
}

// OpenDevice returns a pipe-backed serial handle for DeviceSerial and a
// closed, empty connection for DeviceVsock: enough for callers that
// only need a handle shape to relay bytes through in tests.
func (d *Driver) OpenDevice(ctx context.Context, req driver.DeviceRequest) (*driver.SerialDevice, *driver.VsockDevice, error) {
	switch req.Kind {
	case driver.DeviceSerial:
		return &driver.SerialDevice{Input: d.serialW, Output: d.serialR}, nil, nil
	case driver.DeviceVsock:
		return nil, &driver.VsockDevice{Conn: &loopConn{}}, nil
	default:
		return nil, nil, driver.Backend("fakedriver: unknown device kind", nil)
	}
}

// loopConn is a minimal io.ReadWriteCloser that returns EOF on read and
// discards writes, standing in for a vsock connection in tests that
// only need OpenDevice to succeed.
type loopConn struct{}

func (loopConn) Read(p []byte) (int, error)  { return 0, io.EOF }
func (loopConn) Write(p []byte) (int, error) { return len(p), nil }
func (loopConn) Close() error                { return nil }
