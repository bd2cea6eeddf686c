package manager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/bentobox/bentobox/internal/driver/fakedriver"
	"github.com/bentobox/bentobox/internal/instance"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dataHome := t.TempDir()
	m, err := New(dataHome)
	require.NoError(t, err)
	return m
}

func cpus(n int) *int { return &n }
func mem(n int) *int  { return &n }

func TestCreateWithoutImageWritesConfig(t *testing.T) {
	m := newTestManager(t)

	inst, err := m.Create("vm1", CreateOptions{
		CPUs:   cpus(1),
		Memory: mem(512),
		Engine: "fake",
	})
	require.NoError(t, err)
	require.Equal(t, "vm1", inst.Name)

	raw, err := os.ReadFile(m.Paths().InstanceConfig("vm1"))
	require.NoError(t, err)
	require.Contains(t, string(raw), "version: 1.0.0")
	require.Contains(t, string(raw), "cpus: 1")
	require.Contains(t, string(raw), "memory: 512")

	blob, err := os.ReadFile(m.Paths().InstanceMachineID("vm1"))
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	status, err := m.Status("vm1")
	require.NoError(t, err)
	require.Equal(t, instance.StatusStopped, status)
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Create("vm1", CreateOptions{Engine: "fake"})
	require.NoError(t, err)

	_, err = m.Create("vm1", CreateOptions{Engine: "fake"})
	require.ErrorIs(t, err, instance.ErrInstanceAlreadyCreated)
}

func TestCreateRejectsInvalidName(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Create("not a valid name", CreateOptions{Engine: "fake"})
	require.ErrorIs(t, err, instance.ErrInvalidName)
}

func TestCreateCleansUpOnDriverFailure(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Create("bad-kernel", CreateOptions{
		Engine:     "fake",
		KernelPath: filepath.Join(t.TempDir(), "missing-kernel"),
	})
	require.Error(t, err)

	_, err = os.Stat(m.Paths().InstanceDir("bad-kernel"))
	require.True(t, os.IsNotExist(err))
}

func TestListSkipsImagesDirectoryAndSortsByName(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Create("zeta", CreateOptions{Engine: "fake"})
	require.NoError(t, err)
	_, err = m.Create("alpha", CreateOptions{Engine: "fake"})
	require.NoError(t, err)

	listed, err := m.List()
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, "alpha", listed[0].Name)
	require.Equal(t, "zeta", listed[1].Name)
	for _, l := range listed {
		require.NoError(t, l.Err)
	}
}

func TestListOnMissingDataHomeReturnsEmpty(t *testing.T) {
	m, err := New(filepath.Join(t.TempDir(), "does-not-exist-yet"))
	require.NoError(t, err)

	listed, err := m.List()
	require.NoError(t, err)
	require.Empty(t, listed)
}

func TestDeleteRemovesStoppedInstance(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create("vm1", CreateOptions{Engine: "fake"})
	require.NoError(t, err)

	require.NoError(t, m.Delete("vm1"))

	_, err = os.Stat(m.Paths().InstanceDir("vm1"))
	require.True(t, os.IsNotExist(err))
}

func TestDeleteRefusesRunningInstance(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create("vm1", CreateOptions{Engine: "fake"})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(m.Paths().InstancePID("vm1"), []byte("1"), 0o644))

	err = m.Delete("vm1")
	require.ErrorIs(t, err, instance.ErrInstanceAlreadyRunning)
}

func TestStopFailsWhenNotRunning(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create("vm1", CreateOptions{Engine: "fake"})
	require.NoError(t, err)

	err = m.Stop("vm1")
	require.ErrorIs(t, err, instance.ErrInstanceNotRunning)
}

func TestCreateWithMountsAppliesThem(t *testing.T) {
	m := newTestManager(t)
	mountDir := t.TempDir()

	inst, err := m.Create("vm1", CreateOptions{
		Engine: "fake",
		Mounts: []MountOption{{Location: mountDir, Writable: true}},
	})
	require.NoError(t, err)
	require.Len(t, inst.Config.Mounts, 1)

	resolved, err := filepath.EvalSymlinks(mountDir)
	require.NoError(t, err)
	require.Equal(t, resolved, inst.Config.Mounts[0].Location)
	require.True(t, inst.Config.Mounts[0].Writable)
}
