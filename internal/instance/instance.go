// Package instance models a single bentobox instance: its on-disk
// directory, persisted config, disk/boot resolution, and derived status.
package instance

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/ghodss/yaml"

	"github.com/bentobox/bentobox/internal/paths"
)

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateName checks a candidate instance name against the allowed grammar.
func ValidateName(name string) error {
	if name == "" || !nameRe.MatchString(name) {
		return fmt.Errorf("%w: %q (must match [A-Za-z0-9_-]+)", ErrInvalidName, name)
	}
	return nil
}

// Instance is a named, directory-backed VM definition.
type Instance struct {
	Name   string
	Config *Config

	paths *paths.Paths
}

// New constructs an in-memory Instance wrapper; it does not touch disk.
func New(p *paths.Paths, name string, cfg *Config) *Instance {
	return &Instance{Name: name, Config: cfg, paths: p}
}

// Dir returns the instance's on-disk directory.
func (i *Instance) Dir() string {
	return i.paths.InstanceDir(i.Name)
}

// File returns the absolute path of one of the fixed per-instance files.
func (i *Instance) File(f File) string {
	switch f {
	case FileConfig:
		return i.paths.InstanceConfig(i.Name)
	case FilePID:
		return i.paths.InstancePID(i.Name)
	case FileSocket:
		return i.paths.InstanceSocket(i.Name)
	case FileStdoutLog:
		return i.paths.InstanceStdoutLog(i.Name)
	case FileStderrLog:
		return i.paths.InstanceStderrLog(i.Name)
	case FileMachineID:
		return i.paths.InstanceMachineID(i.Name)
	case FileSerialLog:
		return i.paths.InstanceSerialLog(i.Name)
	case FileRootDisk:
		return i.paths.InstanceRootDisk(i.Name)
	case FileCidataISO:
		return i.paths.InstanceCidataISO(i.Name)
	default:
		panic("instance: unknown file kind")
	}
}

// Load reads an existing instance's config.yaml from disk.
func Load(p *paths.Paths, name string) (*Instance, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	dir := p.InstanceDir(name)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, name)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrInstancePathNotADirectory, dir)
	}

	raw, err := os.ReadFile(p.InstanceConfig(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigLoadFailed, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigLoadFailed, err)
	}

	return New(p, name, cfg), nil
}

// Save serializes the instance's config to config.yaml.
func (i *Instance) Save() error {
	out, err := yaml.Marshal(i.Config)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigSerializeFailed, err)
	}
	if err := os.WriteFile(i.File(FileConfig), out, 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigSerializeFailed, err)
	}
	return nil
}

// Engine returns the configured hypervisor engine tag, defaulting to
// DefaultEngine when unset.
func (i *Instance) Engine() EngineType {
	if i.Config.Engine != "" {
		return i.Config.Engine
	}
	return DefaultEngine
}

// resolveConfigPath resolves a config-relative path against the instance
// directory. Absolute paths are returned unchanged.
func (i *Instance) resolveConfigPath(p string) string {
	if p == "" {
		return p
	}
	if strings.HasPrefix(p, "/") {
		return p
	}
	resolved, err := securejoin.SecureJoin(i.Dir(), p)
	if err != nil {
		// SecureJoin only fails on pathological inputs (e.g. symlink
		// loops); fall back to a plain join so callers still get a
		// deterministic, if unvalidated, path.
		return i.Dir() + "/" + p
	}
	return resolved
}

// RootDisk resolves the instance's boot disk per the configured precedence:
// the configured role=root disk, else the default rootfs.img if
// present, else none. More than one role=root entry is a fatal
// configuration error.
func (i *Instance) RootDisk() (*Disk, error) {
	root, _, err := i.partitionDisks()
	if err != nil {
		return nil, err
	}

	if root != nil {
		d := i.resolveConfigDisk(*root)
		return &d, nil
	}

	defaultRoot := i.File(FileRootDisk)
	info, err := os.Stat(defaultRoot)
	if err == nil && info.Mode().IsRegular() {
		return &Disk{Path: defaultRoot, ReadOnly: false}, nil
	}
	return nil, nil
}

// DataDisks resolves every non-root disk plus the cloud-init ISO, if
// present, as read-only.
func (i *Instance) DataDisks() ([]Disk, error) {
	_, rest, err := i.partitionDisks()
	if err != nil {
		return nil, err
	}

	disks := make([]Disk, 0, len(rest)+1)
	for _, d := range rest {
		disks = append(disks, i.resolveConfigDisk(d))
	}

	cidataISO := i.File(FileCidataISO)
	if info, err := os.Stat(cidataISO); err == nil && info.Mode().IsRegular() {
		disks = append(disks, Disk{Path: cidataISO, ReadOnly: true})
	}

	return disks, nil
}

func (i *Instance) partitionDisks() (root *DiskConfig, rest []DiskConfig, err error) {
	count := 0
	for idx := range i.Config.Disks {
		d := i.Config.Disks[idx]
		// An unset role means root.
		if d.Role == DiskRoleRoot || d.Role == "" {
			count++
			root = &d
		} else {
			rest = append(rest, d)
		}
	}
	if count > 1 {
		return nil, nil, &MultipleRootDisksError{Count: count}
	}
	return root, rest, nil
}

func (i *Instance) resolveConfigDisk(d DiskConfig) Disk {
	return Disk{Path: i.resolveConfigPath(d.Path), ReadOnly: d.ReadOnly}
}

// BootAssets resolves the kernel/initramfs paths, falling back to the
// default bundle under the data home when config.yaml omits them.
func (i *Instance) BootAssets(defaultBundleDir func() (string, error)) (*BootAssets, error) {
	resolveDefault := func(filename string) (string, error) {
		dir, err := defaultBundleDir()
		if err != nil {
			return "", ErrDefaultBundleRootUnavailable
		}
		return dir + "/" + filename, nil
	}

	var kernel string
	if i.Config.KernelPath != "" {
		kernel = i.resolveConfigPath(i.Config.KernelPath)
	} else {
		k, err := resolveDefault("kernel")
		if err != nil {
			return nil, err
		}
		kernel = k
	}

	var initramfs string
	if i.Config.InitramfsPath != "" {
		initramfs = i.resolveConfigPath(i.Config.InitramfsPath)
	} else {
		f, err := resolveDefault("initramfs")
		if err != nil {
			return nil, err
		}
		initramfs = f
	}

	if info, err := os.Stat(kernel); err != nil || !info.Mode().IsRegular() {
		return nil, &KernelNotAFileError{Path: kernel}
	}
	if info, err := os.Stat(initramfs); err != nil || !info.Mode().IsRegular() {
		return nil, &InitramfsNotAFileError{Path: initramfs}
	}

	return &BootAssets{Kernel: kernel, Initramfs: initramfs}, nil
}

// ResolveMountLocation implements the tilde-resolution rule: "~" and
// "~/..." resolve against $HOME; any other leading "~" is rejected.
func ResolveMountLocation(raw string) (string, error) {
	if raw == "~" {
		home := os.Getenv("HOME")
		if home == "" {
			return "", fmt.Errorf("resolve mount location %q: HOME is not set", raw)
		}
		return home, nil
	}

	if rest, ok := strings.CutPrefix(raw, "~/"); ok {
		home := os.Getenv("HOME")
		if home == "" {
			return "", fmt.Errorf("resolve mount location %q: HOME is not set", raw)
		}
		if rest == "" {
			return home, nil
		}
		return home + "/" + rest, nil
	}

	if strings.HasPrefix(raw, "~") {
		return "", fmt.Errorf("invalid mount path %q: only '~' and '~/...' are supported", raw)
	}

	return raw, nil
}
