// Package qemu implements the driver.Driver capability for QEMU/KVM,
// serving as the reference engine this repo ships: process lifecycle
// via os/exec, control via QMP through github.com/digitalocean/go-qemu.
//
// A real "vz" engine (macOS Virtualization.framework) is the external
// collaborator left out of this repo: nothing here configures guest
// device internals beyond what QEMU's command line exposes. This engine
// exists so the daemon, control protocol, and client have a concrete,
// testable Driver to run against.
package qemu

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/digitalocean/go-qemu/qmp"
	"github.com/digitalocean/go-qemu/qmp/raw"
	"github.com/mdlayher/vsock"

	"github.com/bentobox/bentobox/internal/driver"
)

const engineName = "qemu"

func init() {
	driver.Register(engineName, New)
}

const (
	qmpConnectTimeout  = 1 * time.Second
	socketWaitTimeout  = 10 * time.Second
	socketPollInterval = 50 * time.Millisecond
)

// vm is the QEMU-backed driver.Driver implementation.
type vm struct {
	cfg driver.Config

	mu         sync.Mutex
	cmd        *exec.Cmd
	qmpSocket  string
	serialSock string
	mon        *qmp.SocketMonitor
}

// New constructs a QEMU driver.Driver for cfg. Matches driver.Factory.
func New(cfg driver.Config) (driver.Driver, error) {
	return &vm{cfg: cfg}, nil
}

func (v *vm) Validate(ctx context.Context) error {
	if _, err := binaryPath(); err != nil {
		return driver.Backend("qemu binary not found", err)
	}
	if v.cfg.VCPUs <= 0 {
		return driver.Backend("vcpus must be positive", nil)
	}
	if v.cfg.MemoryMiB <= 0 {
		return driver.Backend("memory must be positive", nil)
	}
	return nil
}

// Create is a no-op for QEMU: there is no separate "define the VM"
// step, everything is passed on the command line at Start.
func (v *vm) Create(ctx context.Context) error {
	return nil
}

func (v *vm) Start(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	binary, err := binaryPath()
	if err != nil {
		return driver.Backend("qemu binary not found", err)
	}

	runDir, err := os.MkdirTemp("", "bento-qemu-")
	if err != nil {
		return driver.Backend("create run dir", err)
	}
	v.qmpSocket = filepath.Join(runDir, "qmp.sock")
	v.serialSock = filepath.Join(runDir, "serial.sock")

	args := v.buildArgs()
	cmd := exec.CommandContext(context.Background(), binary, args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return driver.Backend("start qemu process", err)
	}
	v.cmd = cmd

	mon, err := v.dialQMP(ctx)
	if err != nil {
		_ = cmd.Process.Kill()
		return driver.Backend("connect qmp", err)
	}
	v.mon = mon

	return nil
}

func (v *vm) dialQMP(ctx context.Context) (*qmp.SocketMonitor, error) {
	deadline := time.Now().Add(socketWaitTimeout)
	var lastErr error
	for time.Now().Before(deadline) {
		mon, err := qmp.NewSocketMonitor("unix", v.qmpSocket, qmpConnectTimeout)
		if err == nil {
			if err := mon.Connect(); err == nil {
				return mon, nil
			}
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(socketPollInterval):
		}
	}
	return nil, fmt.Errorf("qmp socket did not become ready: %w", lastErr)
}

func (v *vm) Stop(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.mon != nil {
		m := raw.NewMonitor(v.mon)
		_ = m.Quit()
		v.mon.Disconnect()
		v.mon = nil
	}
	if v.cmd != nil && v.cmd.Process != nil {
		_ = v.cmd.Process.Kill()
		_, _ = v.cmd.Process.Wait()
	}
	return nil
}

func (v *vm) OpenDevice(ctx context.Context, req driver.DeviceRequest) (*driver.SerialDevice, *driver.VsockDevice, error) {
	switch req.Kind {
	case driver.DeviceSerial:
		conn, err := dialUnixWithRetry(v.serialSock, socketWaitTimeout)
		if err != nil {
			return nil, nil, driver.Backend("open serial device", err)
		}
		return &driver.SerialDevice{Input: conn, Output: conn}, nil, nil
	case driver.DeviceVsock:
		conn, err := vsock.Dial(v.cfg.VsockCID, req.Port, nil)
		if err != nil {
			return nil, nil, driver.Backend("dial vsock", err)
		}
		return nil, &driver.VsockDevice{Conn: conn}, nil
	default:
		return nil, nil, driver.Backend("unknown device kind", nil)
	}
}

func dialUnixWithRetry(path string, timeout time.Duration) (net.Conn, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.Dial("unix", path)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		time.Sleep(socketPollInterval)
	}
	return nil, lastErr
}

func (v *vm) buildArgs() []string {
	args := []string{
		"-machine", "q35,accel=kvm",
		"-m", strconv.Itoa(v.cfg.MemoryMiB),
		"-smp", strconv.Itoa(v.cfg.VCPUs),
		"-qmp", "unix:" + v.qmpSocket + ",server,nowait",
		"-chardev", "socket,id=serial0,path=" + v.serialSock + ",server=on,wait=off",
		"-serial", "chardev:serial0",
		"-display", "none",
		"-no-reboot",
		"-nodefaults",
	}

	if v.cfg.KernelPath != "" {
		args = append(args, "-kernel", v.cfg.KernelPath)
	}
	if v.cfg.InitramfsPath != "" {
		args = append(args, "-initrd", v.cfg.InitramfsPath)
	}
	if v.cfg.KernelArgs != "" {
		args = append(args, "-append", v.cfg.KernelArgs)
	}
	if v.cfg.NestedVirtualization {
		args = append(args, "-cpu", "host,+vmx")
	}
	if v.cfg.VsockCID != 0 {
		args = append(args, "-device", fmt.Sprintf("vhost-vsock-pci,guest-cid=%d", v.cfg.VsockCID))
	}

	for idx, d := range v.cfg.Disks {
		mode := "writeback"
		if d.ReadOnly {
			mode = "none,readonly=on"
		}
		args = append(args, "-drive", fmt.Sprintf("file=%s,if=virtio,cache=%s,id=disk%d", d.Path, mode, idx))
	}

	for idx, m := range v.cfg.Mounts {
		args = append(args, "-virtfs",
			fmt.Sprintf("local,path=%s,mount_tag=%s,security_model=mapped-xattr,id=mount%d%s",
				m.Location, m.Tag, idx, readOnlySuffix(!m.Writable)))
	}

	return args
}

func readOnlySuffix(ro bool) string {
	if ro {
		return ",readonly=on"
	}
	return ""
}

func binaryPath() (string, error) {
	name := "qemu-system-x86_64"
	if runtime.GOARCH == "arm64" {
		name = "qemu-system-aarch64"
	}
	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("%s not found in PATH", name)
}
