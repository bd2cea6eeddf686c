package images

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CloneBaseImage resolves nameOrRef and copies its rootfs to dst. Hosts
// that support copy-on-write reflinks get one via tryReflink; any other
// host, or a filesystem that rejects the reflink (different device, no
// CoW support), falls back to a full byte-for-byte copy.
func (s *Store) CloneBaseImage(nameOrRef, dst string) error {
	img, ok := s.Resolve(nameOrRef)
	if !ok {
		return ErrNotFound
	}

	src := filepath.Join(s.ImageDir(img.ID), img.RootfsRelpath)
	if err := tryReflink(dst, src); err == nil {
		return nil
	}
	return copyFile(dst, src)
}

func copyFile(dst, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source rootfs: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create clone target: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy rootfs: %w", err)
	}
	return out.Close()
}
