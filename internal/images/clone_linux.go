//go:build linux

package images

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// tryReflink attempts an FICLONE ioctl, which shares the source file's
// extents with dst on filesystems that support it (btrfs, xfs with
// reflink=1, overlayfs backed by either). It fails immediately on
// filesystems without CoW support or across devices, which the caller
// treats as a signal to fall back to a plain copy.
func tryReflink(dst, src string) error {
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

	if err := unix.IoctlFileClone(int(out.Fd()), int(in.Fd())); err != nil {
		os.Remove(dst)
		return fmt.Errorf("ficlone: %w", err)
	}
	return nil
}
