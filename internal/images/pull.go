package images

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// pullTimeout bounds the manifest fetch and the blob stream; the image
// store's registry client is the one place in this repo that does
// network I/O, and it must never leak its async transport into the
// control plane.
const pullTimeout = 5 * time.Minute

// Pull fetches the manifest for reference, validates it declares the
// bentobox base-image artifact type, streams and decompresses its
// first layer into this image's directory, and upserts the registry.
//
// The tag recorded is, in precedence order: alias if non-empty, the
// manifest's io.bentobox.image.name annotation, else the last path
// segment of reference.
func (s *Store) Pull(ctx context.Context, reference string, alias string) (ImageRecord, error) {
	ref, err := name.ParseReference(reference)
	if err != nil {
		return ImageRecord{}, fmt.Errorf("parse reference %q: %w", reference, err)
	}

	ctx, cancel := context.WithTimeout(ctx, pullTimeout)
	defer cancel()

	manifest, manifestDigest, err := fetchManifest(ctx, ref)
	if err != nil {
		return ImageRecord{}, err
	}
	if manifest.ArtifactType != ArtifactType {
		return ImageRecord{}, fmt.Errorf("%w: got %q", ErrUnsupportedArtifactType, manifest.ArtifactType)
	}
	if len(manifest.Layers) == 0 {
		return ImageRecord{}, ErrNoLayers
	}

	layer := manifest.Layers[0]
	compression, err := layerCompression(layer.MediaType)
	if err != nil {
		return ImageRecord{}, err
	}

	id := strings.TrimPrefix(manifestDigest, "sha256:")
	imageDir := s.ImageDir(id)
	if err := os.MkdirAll(imageDir, 0o755); err != nil {
		return ImageRecord{}, fmt.Errorf("create image directory: %w", err)
	}

	blobBody, err := fetchBlob(ctx, ref, layer.Digest.String())
	if err != nil {
		return ImageRecord{}, err
	}
	defer blobBody.Close()

	rootfsPath := filepath.Join(imageDir, "rootfs.img")
	dst, err := os.Create(rootfsPath)
	if err != nil {
		return ImageRecord{}, fmt.Errorf("create rootfs file: %w", err)
	}
	defer dst.Close()

	if err := decompressSparse(dst, blobBody, compression); err != nil {
		return ImageRecord{}, fmt.Errorf("decompress layer: %w", err)
	}

	tag := alias
	if tag == "" {
		tag = manifest.Annotations[AnnotationImageName]
	}
	if tag == "" {
		tag = lastPathSegment(reference)
	}

	rec := ImageRecord{
		ID:             id,
		SourceRef:      reference,
		ManifestDigest: manifestDigest,
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

func layerCompression(mediaType string) (Compression, error) {
	switch mediaType {
	case LayerMediaTypeZstd:
		return CompressionZstd, nil
	case LayerMediaTypeGzip:
		return CompressionGzip, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLayerType, mediaType)
	}
}

func lastPathSegment(reference string) string {
	ref := reference
	if i := strings.LastIndex(ref, "@"); i >= 0 {
		ref = ref[:i]
	}
	if i := strings.LastIndex(ref, ":"); i >= 0 && i > strings.LastIndex(ref, "/") {
		ref = ref[:i]
	}
	segs := strings.Split(ref, "/")
	return segs[len(segs)-1]
}

// fetchManifest resolves ref through the registry's bearer-token/
// keychain auth flow and returns the decoded manifest plus its digest.
// remote.Get handles the WWW-Authenticate challenge itself, so this
// works against real registries (ghcr.io, docker.io) and not just an
// anonymous v2 endpoint.
func fetchManifest(ctx context.Context, ref name.Reference) (v1.Manifest, string, error) {
	desc, err := remote.Get(ref, remote.WithContext(ctx), remote.WithAuthFromKeychain(authn.DefaultKeychain))
	if err != nil {
		return v1.Manifest{}, "", fmt.Errorf("fetch manifest: %w", err)
	}

	var manifest v1.Manifest
	if err := json.Unmarshal(desc.Manifest, &manifest); err != nil {
		return v1.Manifest{}, "", fmt.Errorf("%w: %w", ErrUnsupportedMediaType, err)
	}

	return manifest, desc.Digest.String(), nil
}

// fetchBlob resolves digest within ref's repository as a content-
// addressed layer and returns its raw (still layer-compressed)
// stream, reusing the same authenticated transport remote.Get used
// for the manifest.
func fetchBlob(ctx context.Context, ref name.Reference, digest string) (io.ReadCloser, error) {
	layerRef := ref.Context().Digest(digest)
	layer, err := remote.Layer(layerRef, remote.WithContext(ctx), remote.WithAuthFromKeychain(authn.DefaultKeychain))
	if err != nil {
		return nil, fmt.Errorf("resolve blob %s: %w", digest, err)
	}

	rc, err := layer.Compressed()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingBlob, digest, err)
	}
	return rc, nil
}
