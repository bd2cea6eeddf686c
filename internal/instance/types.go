package instance

// GuestOS identifies the guest operating system family. Informational
// only; the daemon does not currently branch on it.
type GuestOS string

const (
	GuestOSLinux GuestOS = "linux"
	GuestOSMacOS GuestOS = "macos"
)

// EngineType names the hypervisor engine tag persisted in config.yaml.
// The Driver capability (internal/driver) is resolved from this tag.
type EngineType string

// DefaultEngine is the engine assumed when config.yaml omits one.
// Always default to VZ for now; no other engine is selected implicitly.
const DefaultEngine EngineType = "vz"

// DiskRole distinguishes the single bootable root disk from auxiliary
// data disks.
type DiskRole string

const (
	DiskRoleRoot DiskRole = "root"
	DiskRoleData DiskRole = "data"
)

// NetworkMode selects the guest network backend.
type NetworkMode string

const (
	NetworkModeVZNat   NetworkMode = "vznat"
	NetworkModeNone    NetworkMode = "none"
	NetworkModeBridged NetworkMode = "bridged"
	NetworkModeCNI     NetworkMode = "cni"
)

// DiskConfig is a single disk entry in config.yaml.
type DiskConfig struct {
	Path     string   `json:"path"`
	Role     DiskRole `json:"role,omitempty"`
	ReadOnly bool     `json:"read_only,omitempty"`
}

// MountConfig is a single virtiofs mount entry in config.yaml. Location
// is persisted literally as written (tilde-prefixed locations are kept
// literal; see ResolveMountLocation for how they are consumed).
type MountConfig struct {
	Location string `json:"location"`
	Writable bool   `json:"writable"`
}

// NetworkConfig is the guest networking configuration.
type NetworkConfig struct {
	Mode NetworkMode `json:"mode,omitempty"`
}

// Capabilities are guest-side feature toggles that influence what the
// instance manager prepares at create time (e.g. whether a cloud-init
// seed ISO is built).
type Capabilities struct {
	CloudInit bool `json:"cloud_init,omitempty"`
	SSH       bool `json:"ssh,omitempty"`
}

// Config is the persisted YAML instance configuration.
type Config struct {
	Version              string        `json:"version"`
	OS                   GuestOS       `json:"os,omitempty"`
	CPUs                 *int          `json:"cpus,omitempty"`
	Memory               *int          `json:"memory,omitempty"`
	Engine               EngineType    `json:"engine,omitempty"`
	KernelPath           string        `json:"kernel_path,omitempty"`
	InitramfsPath        string        `json:"initramfs_path,omitempty"`
	NestedVirtualization bool          `json:"nested_virtualization,omitempty"`
	Disks                []DiskConfig  `json:"disks,omitempty"`
	Mounts               []MountConfig `json:"mounts,omitempty"`
	Network              NetworkConfig `json:"network,omitempty"`
	Capabilities         Capabilities  `json:"capabilities,omitempty"`
	UserdataPath         string        `json:"userdata_path,omitempty"`
}

// NewConfig returns a zero-value config stamped with the current config
// schema version.
func NewConfig() *Config {
	return &Config{Version: "1.0.0"}
}

// Status is the derived running state of an instance.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// Disk is a resolved, absolute-path disk attachment ready to be handed
// to a Driver.
type Disk struct {
	Path     string
	ReadOnly bool
}

// BootAssets are the resolved, absolute kernel/initramfs paths used to
// boot an instance.
type BootAssets struct {
	Kernel    string
	Initramfs string
}

// File identifies one of the fixed per-instance filenames.
type File int

const (
	FileConfig File = iota
	FilePID
	FileSocket
	FileStdoutLog
	FileStderrLog
	FileMachineID
	FileSerialLog
	FileRootDisk
	FileCidataISO
)
