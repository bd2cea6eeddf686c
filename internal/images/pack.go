package images

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	digest "github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/image-spec/specs-go"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// PackOCIArchive compresses disk into a blob, writes a minimal OCI
// layout declaring the bentobox base-image artifact type with that
// blob as its sole layer, indexes the manifest, and emits a tar
// archive of the layout directory at out.
func PackOCIArchive(diskPath, imageName, out, goos, arch string, compression Compression) error {
	layoutDir, err := os.MkdirTemp("", "bento-pack-")
	if err != nil {
		return fmt.Errorf("create layout dir: %w", err)
	}
	defer os.RemoveAll(layoutDir)

	if err := writeOCILayoutFile(layoutDir); err != nil {
		return err
	}

	layerDigest, layerSize, layerMediaType, err := writeCompressedLayerBlob(layoutDir, diskPath, compression)
	if err != nil {
		return err
	}

	configDigest, configSize, err := writeConfigBlob(layoutDir, goos, arch)
	if err != nil {
		return err
	}

	manifest := v1.Manifest{
		Versioned:    specs.Versioned{SchemaVersion: 2},
		MediaType:    ManifestMediaType,
		ArtifactType: ArtifactType,
		Config: v1.Descriptor{
			MediaType: ConfigMediaType,
			Digest:    digest.Digest(configDigest),
			Size:      configSize,
		},
		Layers: []v1.Descriptor{
			{MediaType: layerMediaType, Digest: digest.Digest(layerDigest), Size: layerSize},
		},
		Annotations: map[string]string{
			AnnotationImageName: imageName,
			AnnotationImageOS:   goos,
			AnnotationImageArch: arch,
		},
	}
	manifestDigest, manifestSize, err := writeJSONBlob(layoutDir, manifest)
	if err != nil {
		return err
	}

	index := v1.Index{
		Versioned: specs.Versioned{SchemaVersion: 2},
		Manifests: []v1.Descriptor{
			{MediaType: ManifestMediaType, Digest: digest.Digest(manifestDigest), Size: manifestSize},
		},
	}
	if err := writeJSONFile(filepath.Join(layoutDir, "index.json"), index); err != nil {
		return err
	}

	return tarDirectory(layoutDir, out)
}

func writeOCILayoutFile(layoutDir string) error {
	return writeJSONFile(filepath.Join(layoutDir, "oci-layout"), ociLayoutFile{ImageLayoutVersion: ociLayoutVersion})
}

func writeConfigBlob(layoutDir, goos, arch string) (digestStr string, size int64, err error) {
	cfg := v1.Image{
		Platform: v1.Platform{OS: goos, Architecture: arch},
		Created:  timePtr(time.Now().UTC()),
	}
	return writeJSONBlob(layoutDir, cfg)
}

func timePtr(t time.Time) *time.Time { return &t }

func writeJSONBlob(layoutDir string, v any) (digestStr string, size int64, err error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return "", 0, fmt.Errorf("marshal blob: %w", err)
	}
	return writeBlob(layoutDir, buf)
}

func writeBlob(layoutDir string, buf []byte) (digestStr string, size int64, err error) {
	sum := sha256.Sum256(buf)
	hex := hex.EncodeToString(sum[:])
	blobDir := filepath.Join(layoutDir, "blobs", "sha256")
	if err := os.MkdirAll(blobDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create blob directory: %w", err)
	}
	blobPath := filepath.Join(blobDir, hex)
	if err := os.WriteFile(blobPath, buf, 0o644); err != nil {
		return "", 0, fmt.Errorf("write blob: %w", err)
	}
	return "sha256:" + hex, int64(len(buf)), nil
}

// writeCompressedLayerBlob compresses diskPath with compression and
// writes the result as a content-addressed blob, returning its
// digest, size, and bentobox layer media type.
func writeCompressedLayerBlob(layoutDir, diskPath string, compression Compression) (digestStr string, size int64, mediaType string, err error) {
	src, err := os.Open(diskPath)
	if err != nil {
		return "", 0, "", fmt.Errorf("open disk: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(layoutDir, "layer-*.tmp")
	if err != nil {
		return "", 0, "", fmt.Errorf("create temp layer file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	hasher := sha256.New()
	mw := io.MultiWriter(tmp, hasher)

	var n int64
	switch compression {
	case CompressionZstd:
		zw, err := zstd.NewWriter(mw)
		if err != nil {
			tmp.Close()
			return "", 0, "", fmt.Errorf("open zstd writer: %w", err)
		}
		n, err = io.Copy(zw, src)
		if err != nil {
			zw.Close()
			tmp.Close()
			return "", 0, "", fmt.Errorf("compress disk: %w", err)
		}
		if err := zw.Close(); err != nil {
			tmp.Close()
			return "", 0, "", fmt.Errorf("close zstd writer: %w", err)
		}
		mediaType = LayerMediaTypeZstd
	case CompressionGzip:
		gw := gzip.NewWriter(mw)
		n, err = io.Copy(gw, src)
		if err != nil {
			gw.Close()
			tmp.Close()
			return "", 0, "", fmt.Errorf("compress disk: %w", err)
		}
		if err := gw.Close(); err != nil {
			tmp.Close()
			return "", 0, "", fmt.Errorf("close gzip writer: %w", err)
		}
		mediaType = LayerMediaTypeGzip
	default:
		tmp.Close()
		return "", 0, "", fmt.Errorf("pack: unsupported compression %q", compression)
	}
	_ = n

	info, err := tmp.Stat()
	if err != nil {
		tmp.Close()
		return "", 0, "", fmt.Errorf("stat compressed layer: %w", err)
	}
	compressedSize := info.Size()
	if err := tmp.Close(); err != nil {
		return "", 0, "", fmt.Errorf("close temp layer file: %w", err)
	}

	hex := hex.EncodeToString(hasher.Sum(nil))
	blobDir := filepath.Join(layoutDir, "blobs", "sha256")
	if err := os.MkdirAll(blobDir, 0o755); err != nil {
		return "", 0, "", fmt.Errorf("create blob directory: %w", err)
	}
	blobPath := filepath.Join(blobDir, hex)
	if err := os.Rename(tmpPath, blobPath); err != nil {
		return "", 0, "", fmt.Errorf("place layer blob: %w", err)
	}

	return "sha256:" + hex, compressedSize, mediaType, nil
}

func writeJSONFile(path string, v any) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func tarDirectory(srcDir, out string) error {
	outFile, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer outFile.Close()

	tw := tar.NewWriter(outFile)
	defer tw.Close()

	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}
