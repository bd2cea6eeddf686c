package manager

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/bentobox/bentobox/internal/instance"
)

// stopInstance signals the daemon's PID with SIGINT and returns
// immediately; it does not wait for the process to exit.
func stopInstance(inst *instance.Instance) error {
	pid, ok, err := inst.PID()
	if err != nil {
		return fmt.Errorf("read daemon pid: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", instance.ErrInstanceNotRunning, inst.Name)
	}

	if err := unix.Kill(pid, unix.SIGINT); err != nil {
		return fmt.Errorf("signal daemon pid %d: %w", pid, err)
	}
	return nil
}
