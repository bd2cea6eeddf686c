package images

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

func TestDecompressSparsePreservesHoles(t *testing.T) {
	logical := make([]byte, 4*sparseChunkSize)
	copy(logical[0:100], bytes.Repeat([]byte{0xAB}, 100))
	copy(logical[2*sparseChunkSize:2*sparseChunkSize+100], bytes.Repeat([]byte{0xCD}, 100))

	var compressed bytes.Buffer
	zw, err := zstd.NewWriter(&compressed)
	require.NoError(t, err)
	_, err = zw.Write(logical)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	dst, err := os.Create(filepath.Join(t.TempDir(), "rootfs.img"))
	require.NoError(t, err)
	defer dst.Close()

	require.NoError(t, decompressSparse(dst, bytes.NewReader(compressed.Bytes()), CompressionZstd))

	info, err := dst.Stat()
	require.NoError(t, err)
	require.Equal(t, int64(len(logical)), info.Size())

	got := make([]byte, len(logical))
	_, err = dst.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, logical, got)
}

func TestDecompressSparseGzip(t *testing.T) {
	logical := bytes.Repeat([]byte{0x42}, sparseChunkSize/2)

	var compressed bytes.Buffer
	gw := gzip.NewWriter(&compressed)
	_, err := gw.Write(logical)
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	dst, err := os.Create(filepath.Join(t.TempDir(), "rootfs.img"))
	require.NoError(t, err)
	defer dst.Close()

	require.NoError(t, decompressSparse(dst, bytes.NewReader(compressed.Bytes()), CompressionGzip))

	got := make([]byte, len(logical))
	_, err = dst.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, logical, got)
}

func TestDecompressSparseRejectsUnknownCodec(t *testing.T) {
	dst, err := os.Create(filepath.Join(t.TempDir(), "rootfs.img"))
	require.NoError(t, err)
	defer dst.Close()

	err = decompressSparse(dst, bytes.NewReader(nil), Compression("lz4"))
	require.Error(t, err)
}

func TestIsAllZero(t *testing.T) {
	require.True(t, isAllZero(make([]byte, 1024)))
	require.False(t, isAllZero([]byte{0, 0, 0, 1}))
	require.True(t, isAllZero(nil))
}
