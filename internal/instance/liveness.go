package instance

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Status derives the instance's running state: Running iff a
// daemon PID file exists and the referenced process answers signal
// probe 0 (or EPERM, meaning it's alive but owned by another user).
// ESRCH means the process is gone; the stale PID file is removed and
// the instance reports Stopped.
func (i *Instance) Status() (Status, error) {
	pidPath := i.File(FilePID)
	raw, err := os.ReadFile(pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return StatusStopped, nil
		}
		return "", err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		// An unparsable PID file is as good as absent: remove it and
		// report Stopped rather than erroring the whole status check.
		_ = os.Remove(pidPath)
		return StatusStopped, nil
	}

	if err := unix.Kill(pid, 0); err != nil {
		if errors.Is(err, unix.ESRCH) {
			_ = os.Remove(pidPath)
			return StatusStopped, nil
		}
		if errors.Is(err, unix.EPERM) {
			return StatusRunning, nil
		}
		return "", fmt.Errorf("probe daemon pid %d: %w", pid, err)
	}

	return StatusRunning, nil
}

// PID returns the daemon PID if the instance has a PID file, without
// performing a liveness probe.
func (i *Instance) PID() (int, bool, error) {
	raw, err := os.ReadFile(i.File(FilePID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, false, fmt.Errorf("parse pid file: %w", err)
	}
	return pid, true, nil
}
