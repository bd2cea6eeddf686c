package images

import (
	"archive/tar"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/opencontainers/umoci/oci/cas/dir"
	"github.com/opencontainers/umoci/oci/casext"
)

const ociLayoutVersion = "1.0.0"

type ociLayoutFile struct {
	ImageLayoutVersion string `json:"imageLayoutVersion"`
}

// Import accepts a directory already in OCI layout, or a tar archive of
// one, and records its manifest's image as a new store entry tagged
// alias (or the manifest's name annotation, or the source basename).
func (s *Store) Import(ctx context.Context, srcPath string, alias string) (ImageRecord, error) {
	layoutDir, cleanup, err := resolveLayoutDir(srcPath)
	if err != nil {
		return ImageRecord{}, err
	}
	defer cleanup()

	if err := validateOCILayout(layoutDir); err != nil {
		return ImageRecord{}, err
	}

	casEngine, err := dir.Open(layoutDir)
	if err != nil {
		return ImageRecord{}, importErr(ErrOCIIndexMissing, err)
	}
	defer casEngine.Close()

	index, err := casEngine.GetIndex(ctx)
	if err != nil {
		return ImageRecord{}, importErr(ErrOCIIndexMissing, err)
	}
	if len(index.Manifests) == 0 {
		return ImageRecord{}, ErrOCIIndexEmpty
	}
	manifestDesc := index.Manifests[0]

	engine := casext.NewEngine(casEngine)
	manifestBlob, err := engine.FromDescriptor(ctx, manifestDesc)
	if err != nil {
		return ImageRecord{}, importErr(ErrMissingBlob, err)
	}
	manifest, ok := manifestBlob.Data.(v1.Manifest)
	if !ok {
		return ImageRecord{}, importErr(ErrOCIManifestInvalid, fmt.Errorf("descriptor resolved to %T", manifestBlob.Data))
	}

	if manifest.ArtifactType != ArtifactType {
		return ImageRecord{}, fmt.Errorf("%w: got %q", ErrUnsupportedArtifactType, manifest.ArtifactType)
	}
	if len(manifest.Layers) == 0 {
		return ImageRecord{}, ErrNoLayers
	}

	layerDesc := manifest.Layers[0]
	compression, err := layerCompression(layerDesc.MediaType)
	if err != nil {
		return ImageRecord{}, err
	}

	layerBlob, err := casEngine.GetBlob(ctx, layerDesc.Digest)
	if err != nil {
		return ImageRecord{}, importErr(ErrMissingBlob, err)
	}
	defer layerBlob.Close()

	id := strings.TrimPrefix(manifestDesc.Digest.String(), "sha256:")
	imageDir := s.ImageDir(id)
	if err := os.MkdirAll(imageDir, 0o755); err != nil {
		return ImageRecord{}, fmt.Errorf("create image directory: %w", err)
	}

	rootfsPath := filepath.Join(imageDir, "rootfs.img")
	dst, err := os.Create(rootfsPath)
	if err != nil {
		return ImageRecord{}, fmt.Errorf("create rootfs file: %w", err)
	}
	defer dst.Close()

	if err := decompressSparse(dst, layerBlob, compression); err != nil {
		return ImageRecord{}, fmt.Errorf("decompress layer: %w", err)
	}

	tag := alias
	if tag == "" {
		tag = manifest.Annotations[AnnotationImageName]
	}
	if tag == "" {
		tag = filepath.Base(strings.TrimSuffix(srcPath, filepath.Ext(srcPath)))
	}

	rec := ImageRecord{
		ID:             id,
		SourceRef:      srcPath,
		ManifestDigest: manifestDesc.Digest.String(),
		ArtifactType:   manifest.ArtifactType,
		Compression:    compression,
		OS:             manifest.Annotations[AnnotationImageOS],
		Arch:           manifest.Annotations[AnnotationImageArch],
		RootfsRelpath:  "rootfs.img",
		Annotations:    manifest.Annotations,
	}

	if err := s.upsert(rec, tag); err != nil {
		return ImageRecord{}, err
	}
	return rec, nil
}

// resolveLayoutDir returns a directory containing an OCI layout: src
// itself if it is already a directory, or a temporary extraction of
// src if it is a tar archive. cleanup removes any temporary directory
// created.
func resolveLayoutDir(src string) (dirPath string, cleanup func(), err error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", nil, fmt.Errorf("stat import source: %w", err)
	}
	if info.IsDir() {
		return src, func() {}, nil
	}

	tmp, err := os.MkdirTemp("", "bento-import-")
	if err != nil {
		return "", nil, fmt.Errorf("create extraction dir: %w", err)
	}
	cleanup = func() { _ = os.RemoveAll(tmp) }

	f, err := os.Open(src)
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("open tar source: %w", err)
	}
	defer f.Close()

	if err := extractTar(f, tmp); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("extract tar source: %w", err)
	}
	return tmp, cleanup, nil
}

func extractTar(r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(dest, filepath.Clean(hdr.Name))
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("tar entry escapes destination: %s", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			_, err = io.Copy(out, tr)
			closeErr := out.Close()
			if err != nil {
				return err
			}
			if closeErr != nil {
				return closeErr
			}
		}
	}
}

func validateOCILayout(layoutDir string) error {
	raw, err := os.ReadFile(filepath.Join(layoutDir, "oci-layout"))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrOCILayoutMissing
		}
		return importErr(ErrOCILayoutMissing, err)
	}

	var layout ociLayoutFile
	if err := json.Unmarshal(raw, &layout); err != nil {
		return importErr(ErrOCILayoutMissing, err)
	}
	if layout.ImageLayoutVersion != ociLayoutVersion {
		return fmt.Errorf("%w: got %q", ErrOCILayoutVersion, layout.ImageLayoutVersion)
	}
	return nil
}
