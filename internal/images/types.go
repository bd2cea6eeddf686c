// Package images implements the content-addressed local OCI image
// store: pull/import/pack/clone/remove, with registry.json as the
// single source of truth for tag-to-image mappings. Images live in one
// directory per manifest digest, each holding the decompressed
// rootfs.img its instances clone from.
package images

import "time"

// RegistryVersion is the only registry.json schema version this store
// reads and writes.
const RegistryVersion = 1

// Compression identifies a rootfs layer's compression codec.
type Compression string

const (
	CompressionZstd Compression = "zstd"
	CompressionGzip Compression = "gzip"
)

// Annotation keys recognized on a pulled/imported manifest.
const (
	AnnotationImageName = "io.bentobox.image.name"
	AnnotationImageOS   = "io.bentobox.image.os"
	AnnotationImageArch = "io.bentobox.image.arch"
	AnnotationCloudInit = "sh.nvd.bento.cap.cloud_init"
	AnnotationSSH       = "sh.nvd.bento.cap.ssh"
)

// ArtifactType is the bentobox-specific OCI artifactType this store
// requires on every manifest it consumes or produces.
const ArtifactType = "application/vnd.bentobox.base-image.v1"

// ConfigMediaType is the media type of a bentobox base-image config blob.
const ConfigMediaType = "application/vnd.bentobox.base-image.config.v1+json"

const (
	LayerMediaTypeZstd = "application/vnd.bentobox.disk.raw.v1+zstd"
	LayerMediaTypeGzip = "application/vnd.bentobox.disk.raw.v1+gzip"
)

// ManifestMediaType is the expected media type of a base-image manifest.
const ManifestMediaType = "application/vnd.oci.image.manifest.v1+json"

// ImageRecord is the persisted, content-addressed record for one image.
type ImageRecord struct {
	ID             string            `json:"id"`
	SourceRef      string            `json:"source_ref"`
	ManifestDigest string            `json:"manifest_digest"`
	ArtifactType   string            `json:"artifact_type"`
	Compression    Compression       `json:"compression"`
	OS             string            `json:"os,omitempty"`
	Arch           string            `json:"arch,omitempty"`
	RootfsRelpath  string            `json:"rootfs_relpath"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Annotations    map[string]string `json:"annotations,omitempty"`
}

// CloudInitCapable reports whether this image declares the cloud-init
// capability marker.
func (r ImageRecord) CloudInitCapable() bool {
	return r.Annotations[AnnotationCloudInit] == "true"
}

// SSHCapable reports whether this image declares the ssh capability marker.
func (r ImageRecord) SSHCapable() bool {
	return r.Annotations[AnnotationSSH] == "true"
}

// registryFile is the on-disk shape of registry.json.
type registryFile struct {
	Version int                    `json:"version"`
	Images  map[string]ImageRecord `json:"images"`
	Tags    map[string]string      `json:"tags"`
}

func newRegistryFile() *registryFile {
	return &registryFile{
		Version: RegistryVersion,
		Images:  make(map[string]ImageRecord),
		Tags:    make(map[string]string),
	}
}

// Image is the resolved view list()/resolve() return: a tag joined
// with the image record it references.
type Image struct {
	Tag string
	ImageRecord
}
