package instance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bentobox/bentobox/internal/paths"
)

func TestValidateName(t *testing.T) {
	require.NoError(t, ValidateName("vm1"))
	require.NoError(t, ValidateName("my-vm_2"))
	require.Error(t, ValidateName(""))
	require.Error(t, ValidateName("has a space"))
	require.Error(t, ValidateName("has/slash"))
}

func TestRootDiskMultipleRoots(t *testing.T) {
	dataHome := t.TempDir()
	p := paths.New(dataHome)
	require.NoError(t, os.MkdirAll(p.InstanceDir("vm1"), 0o755))

	cfg := NewConfig()
	cfg.Disks = []DiskConfig{
		{Path: "a.img", Role: DiskRoleRoot},
		{Path: "b.img", Role: DiskRoleRoot},
	}
	inst := New(p, "vm1", cfg)

	_, err := inst.RootDisk()
	require.Error(t, err)
	var merr *MultipleRootDisksError
	require.ErrorAs(t, err, &merr)
	require.Equal(t, 2, merr.Count)
}

func TestRootDiskDefaultsToRootfsImg(t *testing.T) {
	dataHome := t.TempDir()
	p := paths.New(dataHome)
	require.NoError(t, os.MkdirAll(p.InstanceDir("vm2"), 0o755))
	require.NoError(t, os.WriteFile(p.InstanceRootDisk("vm2"), []byte("disk"), 0o644))

	inst := New(p, "vm2", NewConfig())
	disk, err := inst.RootDisk()
	require.NoError(t, err)
	require.NotNil(t, disk)
	require.Equal(t, p.InstanceRootDisk("vm2"), disk.Path)
	require.False(t, disk.ReadOnly)
}

func TestRootDiskFallsBackToRootfsImgWhenDisksConfiguredWithoutRoot(t *testing.T) {
	dataHome := t.TempDir()
	p := paths.New(dataHome)
	require.NoError(t, os.MkdirAll(p.InstanceDir("vm3"), 0o755))
	require.NoError(t, os.WriteFile(p.InstanceRootDisk("vm3"), []byte("disk"), 0o644))

	cfg := NewConfig()
	cfg.Disks = []DiskConfig{{Path: "data.img", Role: DiskRoleData}}
	inst := New(p, "vm3", cfg)

	disk, err := inst.RootDisk()
	require.NoError(t, err)
	require.NotNil(t, disk)
	require.Equal(t, p.InstanceRootDisk("vm3"), disk.Path)
}

func TestResolveMountLocation(t *testing.T) {
	t.Setenv("HOME", "/home/nickvd")

	loc, err := ResolveMountLocation("~")
	require.NoError(t, err)
	require.Equal(t, "/home/nickvd", loc)

	loc, err = ResolveMountLocation("~/code")
	require.NoError(t, err)
	require.Equal(t, "/home/nickvd/code", loc)

	loc, err = ResolveMountLocation("/tmp/lima")
	require.NoError(t, err)
	require.Equal(t, "/tmp/lima", loc)

	_, err = ResolveMountLocation("~nickvd")
	require.Error(t, err)
}

func TestSaveAndLoadRoundtrip(t *testing.T) {
	dataHome := t.TempDir()
	p := paths.New(dataHome)
	require.NoError(t, os.MkdirAll(p.InstanceDir("vm4"), 0o755))

	cfg := NewConfig()
	cpus := 2
	cfg.CPUs = &cpus
	inst := New(p, "vm4", cfg)
	require.NoError(t, inst.Save())

	raw, err := os.ReadFile(filepath.Join(p.InstanceDir("vm4"), "config.yaml"))
	require.NoError(t, err)
	require.Contains(t, string(raw), "version: 1.0.0")
	require.Contains(t, string(raw), "cpus: 2")

	loaded, err := Load(p, "vm4")
	require.NoError(t, err)
	require.Equal(t, 2, *loaded.Config.CPUs)
}

func TestStatusStoppedWithNoPIDFile(t *testing.T) {
	dataHome := t.TempDir()
	p := paths.New(dataHome)
	require.NoError(t, os.MkdirAll(p.InstanceDir("vm5"), 0o755))

	inst := New(p, "vm5", NewConfig())
	status, err := inst.Status()
	require.NoError(t, err)
	require.Equal(t, StatusStopped, status)
}

func TestStatusRemovesStalePIDFile(t *testing.T) {
	dataHome := t.TempDir()
	p := paths.New(dataHome)
	require.NoError(t, os.MkdirAll(p.InstanceDir("vm6"), 0o755))
	// PID very unlikely to be alive.
	require.NoError(t, os.WriteFile(p.InstancePID("vm6"), []byte("999999"), 0o644))

	inst := New(p, "vm6", NewConfig())
	status, err := inst.Status()
	require.NoError(t, err)
	require.Equal(t, StatusStopped, status)

	_, err = os.Stat(p.InstancePID("vm6"))
	require.True(t, os.IsNotExist(err))
}
