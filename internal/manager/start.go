package manager

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/bentobox/bentobox/internal/instance"
)

const (
	pidWaitTimeout    = 5 * time.Second
	pidWaitPoll       = 50 * time.Millisecond
	daemonTailTimeout = 10 * time.Minute
	daemonTailPoll    = 50 * time.Millisecond
)

// Start spawns the instance's daemon as a detached process, waits for
// its PID file to appear, then tails its logs until it reports itself
// running (or exits early, or the overall wait times out).
func (m *Manager) Start(name string) error {
	inst, err := instance.Load(m.paths, name)
	if err != nil {
		return err
	}

	status, err := inst.Status()
	if err != nil {
		return err
	}
	if status == instance.StatusRunning {
		return fmt.Errorf("%w: %s", instance.ErrInstanceAlreadyRunning, name)
	}

	stdoutLog, err := os.OpenFile(inst.File(instance.FileStdoutLog), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open stdout log: %w", err)
	}
	defer stdoutLog.Close()

	stderrLog, err := os.OpenFile(inst.File(instance.FileStderrLog), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open stderr log: %w", err)
	}
	defer stderrLog.Close()

	if err := spawnDaemon(name, stdoutLog, stderrLog); err != nil {
		return err
	}

	if err := waitForPIDFile(inst); err != nil {
		return err
	}

	return tailUntilRunning(inst, stdoutLog.Name(), stderrLog.Name())
}

// spawnDaemon re-invokes the current executable in "instanced" mode,
// detached into its own session so it survives the CLI process
// exiting.
func spawnDaemon(name string, stdoutLog, stderrLog *os.File) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve daemon executable: %w", err)
	}

	devnull, err := os.Open(os.DevNull)
	if err != nil {
		return fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devnull.Close()

	cmd := exec.Command(exe, "instanced", "--name", name)
	cmd.Stdin = devnull
	cmd.Stdout = stdoutLog
	cmd.Stderr = stderrLog
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn daemon: %w", err)
	}
	// Deliberately not waited on: the daemon outlives this process. The
	// OS reparents it to init once the CLI process exits.
	return nil
}

func waitForPIDFile(inst *instance.Instance) error {
	deadline := time.Now().Add(pidWaitTimeout)
	for {
		if _, ok, err := inst.PID(); err != nil {
			return fmt.Errorf("read daemon pid: %w", err)
		} else if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", ErrDaemonStartTimedOut, inst.Name)
		}
		time.Sleep(pidWaitPoll)
	}
}

// tailUntilRunning echoes stderr lines with a "[instanced]" prefix and
// inspects stdout lines as JSON readiness events: type "Running" is
// success, type "Exiting" is a fatal early exit. Any other line is
// ignored.
func tailUntilRunning(inst *instance.Instance, stdoutPath, stderrPath string) error {
	w := watchLogs(stdoutPath, stderrPath, daemonTailTimeout, daemonTailPoll)
	defer w.Cancel()

	for {
		select {
		case line := <-w.lines:
			switch line.Stream {
			case streamStderr:
				fmt.Fprintf(os.Stderr, "[instanced] %s\n", line.Text)
			case streamStdout:
				var evt struct {
					Type string `json:"type"`
				}
				if err := json.Unmarshal([]byte(line.Text), &evt); err != nil {
					continue
				}
				switch evt.Type {
				case "Running":
					return nil
				case "Exiting":
					return fmt.Errorf("%w: %s", ErrDaemonExitedEarly, inst.Name)
				}
			}
		case werr := <-w.errs:
			if werr.TimedOut {
				return fmt.Errorf("%w: %s", ErrDaemonStartTimedOut, inst.Name)
			}
			return fmt.Errorf("tail daemon logs: %w", werr.Err)
		}
	}
}
