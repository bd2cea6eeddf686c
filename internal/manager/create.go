package manager

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bentobox/bentobox/internal/driver"
	"github.com/bentobox/bentobox/internal/images"
	"github.com/bentobox/bentobox/internal/instance"
)

// MountOption is one requested virtiofs share before normalization.
// Location may be relative, absolute, or tilde-prefixed; Writable
// selects rw,nofail vs ro,nofail in the rendered cloud-init mounts
// block and the driver's own mount table.
type MountOption struct {
	Location string
	Writable bool
}

// CreateOptions is everything create() needs beyond the instance
// name.
type CreateOptions struct {
	CPUs                 *int
	Memory               *int
	Engine               instance.EngineType
	Image                string // tag or source_ref resolved through the image store; empty means no base image
	KernelPath           string
	InitramfsPath        string
	NestedVirtualization bool
	Disks                []instance.DiskConfig
	Mounts               []MountOption
	Network              instance.NetworkConfig
	Capabilities         instance.Capabilities
	UserdataPath         string
}

// Create validates name, materializes the instance directory and
// config.yaml, clones the chosen base image (if any) into the default
// root disk slot, and, when cloud-init is called for, builds the
// seed ISO. The driver is asked to validate and create its on-disk
// state before anything is considered durable; a failure at any step
// leaves no instance directory behind.
func (m *Manager) Create(name string, opts CreateOptions) (*instance.Instance, error) {
	if err := instance.ValidateName(name); err != nil {
		return nil, err
	}

	dir := m.paths.InstanceDir(name)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("%w: %s", instance.ErrInstanceAlreadyCreated, name)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat instance directory: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create instance directory: %w", err)
	}

	inst, err := m.applyCreateOptions(name, opts)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	if err := inst.Save(); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	if err := ensureMachineIdentity(inst); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	if err := m.validateAndCreateDriver(inst); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	if err := m.maybeBuildCidata(inst, opts); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	return inst, nil
}

func (m *Manager) applyCreateOptions(name string, opts CreateOptions) (*instance.Instance, error) {
	cfg := instance.NewConfig()
	cfg.CPUs = opts.CPUs
	cfg.Memory = opts.Memory
	cfg.Engine = opts.Engine
	cfg.KernelPath = opts.KernelPath
	cfg.InitramfsPath = opts.InitramfsPath
	cfg.NestedVirtualization = opts.NestedVirtualization
	cfg.Network = opts.Network
	cfg.Capabilities = opts.Capabilities
	cfg.UserdataPath = opts.UserdataPath
	cfg.Disks = append([]instance.DiskConfig{}, opts.Disks...)

	mounts, err := normalizeMounts(opts.Mounts)
	if err != nil {
		return nil, err
	}
	cfg.Mounts = mounts

	inst := instance.New(m.paths, name, cfg)

	if opts.Image != "" {
		img, ok := m.images.Resolve(opts.Image)
		if !ok {
			return nil, fmt.Errorf("%w: %s", images.ErrNotFound, opts.Image)
		}
		if err := m.images.CloneBaseImage(opts.Image, inst.File(instance.FileRootDisk)); err != nil {
			return nil, fmt.Errorf("clone base image %s: %w", opts.Image, err)
		}
		if img.CloudInitCapable() {
			cfg.Capabilities.CloudInit = true
		}
		if img.SSHCapable() {
			cfg.Capabilities.SSH = true
		}
	}

	return inst, nil
}

// ensureMachineIdentity writes the instance's machine identity blob on
// first create. An existing non-empty blob is left untouched so the
// guest keeps a stable identity across restarts.
func ensureMachineIdentity(inst *instance.Instance) error {
	path := inst.File(instance.FileMachineID)
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return nil
	} else if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("stat machine identity: %w", err)
	}

	blob := make([]byte, 16)
	if _, err := rand.Read(blob); err != nil {
		return fmt.Errorf("generate machine identity: %w", err)
	}
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return fmt.Errorf("write machine identity: %w", err)
	}
	return nil
}

func (m *Manager) validateAndCreateDriver(inst *instance.Instance) error {
	dcfg, err := inst.DriverConfig()
	if err != nil {
		return err
	}
	drv, err := driver.New(string(inst.Engine()), dcfg)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := drv.Validate(ctx); err != nil {
		return err
	}
	return drv.Create(ctx)
}

func (m *Manager) maybeBuildCidata(inst *instance.Instance, opts CreateOptions) error {
	if !inst.Config.Capabilities.CloudInit && opts.UserdataPath == "" {
		return nil
	}
	return buildCidataISO(inst)
}

// normalizeMounts resolves every requested mount against CWD if
// relative, canonicalizes it, requires it to be a directory, and
// rejects a canonical path already seen in this same set. A location
// that was written as "~" or "~/..." is persisted in that literal
// form; every other location is persisted canonicalized.
func normalizeMounts(opts []MountOption) ([]instance.MountConfig, error) {
	if len(opts) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool, len(opts))
	out := make([]instance.MountConfig, 0, len(opts))

	for _, o := range opts {
		resolved, err := instance.ResolveMountLocation(o.Location)
		if err != nil {
			return nil, err
		}

		abs := resolved
		if !filepath.IsAbs(abs) {
			cwd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("resolve cwd for mount %q: %w", o.Location, err)
			}
			abs = filepath.Join(cwd, abs)
		}

		canon, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return nil, fmt.Errorf("canonicalize mount %q: %w", o.Location, err)
		}

		info, err := os.Stat(canon)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("%w: %s", ErrMountNotADirectory, canon)
		}

		if seen[canon] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateMount, canon)
		}
		seen[canon] = true

		persisted := canon
		if isTildeMountPath(o.Location) {
			persisted = o.Location
		}
		out = append(out, instance.MountConfig{Location: persisted, Writable: o.Writable})
	}

	return out, nil
}

func isTildeMountPath(raw string) bool {
	return raw == "~" || strings.HasPrefix(raw, "~/")
}
