package manager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeMountsResolvesRelativeAgainstCWD(t *testing.T) {
	cwd, err := os.Getwd()
	require.NoError(t, err)
	dir, err := os.MkdirTemp(cwd, "mountdir")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	rel := filepath.Base(dir)
	out, err := normalizeMounts([]MountOption{{Location: rel}})
	require.NoError(t, err)
	require.Len(t, out, 1)

	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	require.Equal(t, want, out[0].Location)
}

func TestNormalizeMountsRejectsNonDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := normalizeMounts([]MountOption{{Location: file}})
	require.ErrorIs(t, err, ErrMountNotADirectory)
}

func TestNormalizeMountsRejectsDuplicateCanonicalPaths(t *testing.T) {
	dir := t.TempDir()

	_, err := normalizeMounts([]MountOption{
		{Location: dir},
		{Location: dir + string(filepath.Separator)},
	})
	require.ErrorIs(t, err, ErrDuplicateMount)
}

func TestNormalizeMountsPreservesTildeForm(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	out, err := normalizeMounts([]MountOption{{Location: "~", Writable: true}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "~", out[0].Location)
	require.True(t, out[0].Writable)
}

func TestNormalizeMountsPreservesTildeSlashForm(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, "proj"), 0o755))
	t.Setenv("HOME", home)

	out, err := normalizeMounts([]MountOption{{Location: "~/proj"}})
	require.NoError(t, err)
	require.Equal(t, "~/proj", out[0].Location)
}

func TestNormalizeMountsEmptyReturnsNil(t *testing.T) {
	out, err := normalizeMounts(nil)
	require.NoError(t, err)
	require.Nil(t, out)
}
