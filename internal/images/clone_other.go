//go:build !linux

package images

// tryReflink always fails on non-Linux hosts; CloneBaseImage falls back
// to a plain copy.
func tryReflink(dst, src string) error {
	return ErrCloneUnsupported
}
