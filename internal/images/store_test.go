package images

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenCreatesEmptyRegistry(t *testing.T) {
	root := t.TempDir()

	s, err := Open(root)
	require.NoError(t, err)
	require.Empty(t, s.List())

	raw, err := os.ReadFile(filepath.Join(root, "registry.json"))
	require.NoError(t, err)
	require.Contains(t, string(raw), `"version": 1`)
}

func TestOpenRejectsVersionMismatch(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "registry.json"), []byte(`{"version":99,"images":{},"tags":{}}`), 0o644))

	_, err := Open(root)
	require.ErrorIs(t, err, ErrRegistryVersionMismatch)
}

func TestUpsertListResolveRoundTrip(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)

	rec := ImageRecord{
		ID:            "abc123",
		SourceRef:     "registry.example.com/alpine:latest",
		RootfsRelpath: "rootfs.img",
	}
	require.NoError(t, s.upsert(rec, "alpine"))

	list := s.List()
	require.Len(t, list, 1)
	require.Equal(t, "alpine", list[0].Tag)
	require.False(t, list[0].CreatedAt.IsZero())
	require.Equal(t, list[0].CreatedAt, list[0].UpdatedAt)

	byTag, ok := s.Resolve("alpine")
	require.True(t, ok)
	require.Equal(t, "abc123", byTag.ID)

	byRef, ok := s.Resolve("registry.example.com/alpine:latest")
	require.True(t, ok)
	require.Equal(t, "abc123", byRef.ID)

	_, ok = s.Resolve("does-not-exist")
	require.False(t, ok)

	s2, err := Open(root)
	require.NoError(t, err)
	reopened, ok := s2.Resolve("alpine")
	require.True(t, ok)
	require.Equal(t, "abc123", reopened.ID)
}

func TestUpsertPreservesCreatedAtOnUpdate(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)

	rec := ImageRecord{ID: "dup", SourceRef: "r1"}
	require.NoError(t, s.upsert(rec, "tag1"))
	first, _ := s.Resolve("tag1")

	rec.SourceRef = "r1-updated"
	require.NoError(t, s.upsert(rec, "tag1"))
	second, _ := s.Resolve("tag1")

	require.Equal(t, first.CreatedAt, second.CreatedAt)
	require.Equal(t, "r1-updated", second.SourceRef)
}

func TestRemoveImageDeletesDirOnlyWhenUnreferenced(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)

	rec := ImageRecord{ID: "shared", SourceRef: "r"}
	require.NoError(t, s.upsert(rec, "tag-a"))
	require.NoError(t, s.upsert(rec, "tag-b"))

	imageDir := s.ImageDir("shared")
	require.NoError(t, os.MkdirAll(imageDir, 0o755))

	require.NoError(t, s.RemoveImage("tag-a"))
	_, err = os.Stat(imageDir)
	require.NoError(t, err, "directory must survive while tag-b still references it")

	require.NoError(t, s.RemoveImage("tag-b"))
	_, err = os.Stat(imageDir)
	require.True(t, os.IsNotExist(err), "directory must be removed once no tag references it")

	require.ErrorIs(t, s.RemoveImage("tag-b"), ErrTagNotFound)
}
