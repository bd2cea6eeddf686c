package instance

import (
	"errors"
	"fmt"

	"github.com/bentobox/bentobox/internal/driver"
)

// DriverConfig translates the instance's persisted config into the
// engine-agnostic shape a Driver is constructed from. It is pure and
// side-effect-free so both create() (validating right after
// config.yaml is written, and rolling back on failure) and the daemon
// (actually booting) can call it
// independently without racing each other.
func (i *Instance) DriverConfig() (driver.Config, error) {
	cfg := i.Config
	vcpus := 1
	if cfg.CPUs != nil {
		vcpus = *cfg.CPUs
	}
	memory := 512
	if cfg.Memory != nil {
		memory = *cfg.Memory
	}

	root, err := i.RootDisk()
	if err != nil {
		return driver.Config{}, err
	}
	dataDisks, err := i.DataDisks()
	if err != nil {
		return driver.Config{}, err
	}

	var disks []driver.Disk
	if root != nil {
		disks = append(disks, driver.Disk{Path: root.Path, ReadOnly: root.ReadOnly})
	}
	for _, dd := range dataDisks {
		disks = append(disks, driver.Disk{Path: dd.Path, ReadOnly: dd.ReadOnly})
	}

	var mounts []driver.Mount
	for idx, m := range cfg.Mounts {
		// Tilde locations are persisted literally; resolve them here,
		// at the point of consumption.
		location, err := ResolveMountLocation(m.Location)
		if err != nil {
			return driver.Config{}, err
		}
		mounts = append(mounts, driver.Mount{
			Tag:      fmt.Sprintf("mount%d", idx),
			Location: location,
			Writable: m.Writable,
		})
	}

	var boot *BootAssets
	if cfg.KernelPath != "" || cfg.InitramfsPath != "" {
		boot, err = i.BootAssets(func() (string, error) {
			return "", errors.New("no default bundle configured")
		})
		if err != nil {
			return driver.Config{}, err
		}
	}

	dcfg := driver.Config{
		Name:                 i.Name,
		VCPUs:                vcpus,
		MemoryMiB:            memory,
		NestedVirtualization: cfg.NestedVirtualization,
		Disks:                disks,
		Mounts:               mounts,
		SerialLogPath:        i.File(FileSerialLog),
	}
	if boot != nil {
		dcfg.KernelPath = boot.Kernel
		dcfg.InitramfsPath = boot.Initramfs
	}
	return dcfg, nil
}
