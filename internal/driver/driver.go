// Package driver defines the abstract hypervisor control surface
// consumed by the instance daemon. Concrete engines register themselves
// by name; the daemon never imports a concrete engine package directly.
package driver

import (
	"context"
	"fmt"
	"io"
)

// DeviceKind selects which guest device OpenDevice returns a handle for.
type DeviceKind int

const (
	// DeviceSerial returns the guest's virtual serial port as a
	// bidirectional byte stream.
	DeviceSerial DeviceKind = iota
	// DeviceVsock returns a connection to a guest vsock port.
	DeviceVsock
)

// DeviceRequest parameterizes OpenDevice. Port is only meaningful for
// DeviceVsock.
type DeviceRequest struct {
	Kind DeviceKind
	Port uint32
}

// SerialDevice is the bidirectional serial port handle returned by
// OpenDevice(DeviceSerial).
type SerialDevice struct {
	Input  io.WriteCloser
	Output io.ReadCloser
}

// VsockDevice is the connection handle returned by
// OpenDevice(DeviceVsock).
type VsockDevice struct {
	Conn io.ReadWriteCloser
}

// Config is the engine-agnostic VM configuration a Driver is
// constructed from. It is deliberately narrow: only what every engine
// needs to answer validate/create/start.
type Config struct {
	Name                 string
	VCPUs                int
	MemoryMiB            int
	KernelPath           string
	InitramfsPath        string
	KernelArgs           string
	NestedVirtualization bool
	Disks                []Disk
	Mounts               []Mount
	SerialLogPath        string
	VsockCID             uint32
}

// Disk is a resolved disk attachment.
type Disk struct {
	Path     string
	ReadOnly bool
}

// Mount is a resolved virtiofs share.
type Mount struct {
	Tag      string
	Location string
	Writable bool
}

// BackendError wraps an engine-specific failure. Every Driver method
// that can fail returns one of these so callers can distinguish "the
// hypervisor SDK rejected this" from structural/IO errors.
type BackendError struct {
	Msg string
	Err error
}

func (e *BackendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("driver backend error: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("driver backend error: %s", e.Msg)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Backend constructs a BackendError.
func Backend(msg string, err error) error {
	return &BackendError{Msg: msg, Err: err}
}

// Driver is the hypervisor control surface owned exclusively by the
// daemon for the lifetime of one instance run.
//
// Implementations must serialize all VM-touching calls onto a single
// goroutine/queue internally (many hypervisor SDKs require calls from
// one thread) and must never block OpenDevice callers on that queue
// for longer than the device handshake itself.
type Driver interface {
	// Validate checks the Config is acceptable to this engine without
	// allocating any guest resources.
	Validate(ctx context.Context) error

	// Create allocates whatever on-disk/engine state is needed before
	// Start can run (e.g. a VM definition file). Idempotent: calling it
	// again after a successful Create is a no-op for most engines.
	Create(ctx context.Context) error

	// Start boots the VM. Must not return until the VM is runnable.
	Start(ctx context.Context) error

	// Stop requests a graceful shutdown and releases engine resources.
	// Safe to call on a VM that never started.
	Stop(ctx context.Context) error

	// OpenDevice returns a handle to a guest device. The returned
	// handle's lifetime is owned by the caller.
	OpenDevice(ctx context.Context, req DeviceRequest) (*SerialDevice, *VsockDevice, error)
}

// Factory constructs a Driver for a named engine from a Config.
type Factory func(cfg Config) (Driver, error)

var registry = map[string]Factory{}

// Register adds a Factory for an engine name. Called from each engine
// package's init().
func Register(engine string, factory Factory) {
	registry[engine] = factory
}

// New constructs a Driver for the named engine.
func New(engine string, cfg Config) (Driver, error) {
	factory, ok := registry[engine]
	if !ok {
		return nil, fmt.Errorf("no driver registered for engine %q", engine)
	}
	return factory(cfg)
}

// Registered reports whether an engine has a registered Factory.
func Registered(engine string) bool {
	_, ok := registry[engine]
	return ok
}
