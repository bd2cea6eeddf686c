package images

import "errors"

var (
	ErrNotFound                = errors.New("image not found")
	ErrTagNotFound             = errors.New("tag not found")
	ErrRegistryVersionMismatch = errors.New("registry.json version mismatch")
	ErrRegistryLoadFailed      = errors.New("load registry.json failed")
	ErrRegistrySaveFailed      = errors.New("save registry.json failed")

	ErrUnsupportedArtifactType = errors.New("manifest artifactType is not a bentobox base image")
	ErrUnsupportedMediaType    = errors.New("unsupported manifest media type")
	ErrUnsupportedLayerType    = errors.New("unsupported layer media type")
	ErrNoLayers                = errors.New("manifest has no layers")
	ErrMissingBlob             = errors.New("referenced blob is missing")

	ErrOCILayoutMissing   = errors.New("oci-layout file missing")
	ErrOCILayoutVersion   = errors.New("unsupported oci-layout imageLayoutVersion")
	ErrOCIIndexMissing    = errors.New("index.json missing")
	ErrOCIIndexEmpty      = errors.New("index.json has no manifests")
	ErrOCIManifestInvalid = errors.New("manifest blob is not a valid OCI image manifest")

	ErrCloneUnsupported = errors.New("copy-on-write cloning is not supported on this filesystem")
)

// ImportError wraps a specific import-validation failure with the
// underlying cause, so callers can report which of the many import
// checks failed.
type ImportError struct {
	Kind error
	Err  error
}

func (e *ImportError) Error() string {
	if e.Err != nil {
		return e.Kind.Error() + ": " + e.Err.Error()
	}
	return e.Kind.Error()
}

func (e *ImportError) Unwrap() error { return e.Kind }

func importErr(kind error, err error) error {
	return &ImportError{Kind: kind, Err: err}
}
