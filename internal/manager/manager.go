// Package manager implements the instance lifecycle operations the CLI
// drives: create, start, stop, delete, and list. It owns nothing while
// an instance runs; the daemon (internal/daemon) is a separate process
// the manager only spawns and polls for readiness.
package manager

import (
	"fmt"
	"os"
	"sort"

	"github.com/bentobox/bentobox/internal/images"
	"github.com/bentobox/bentobox/internal/instance"
	"github.com/bentobox/bentobox/internal/paths"
)

// imagesDirName is the one reserved child of the data home's root that
// list() must never mistake for an instance directory.
const imagesDirName = "images"

// Manager resolves instance directories under a single data home and
// consults the image store when create() clones a base image.
type Manager struct {
	paths  *paths.Paths
	images *images.Store
}

// New constructs a Manager rooted at dataHome, opening (or initializing)
// the image store alongside it.
func New(dataHome string) (*Manager, error) {
	p := paths.New(dataHome)
	store, err := images.Open(p.ImagesDir())
	if err != nil {
		return nil, fmt.Errorf("open image store: %w", err)
	}
	return &Manager{paths: p, images: store}, nil
}

// Paths exposes the manager's path resolver, e.g. for the CLI to locate
// an instance's control socket directly.
func (m *Manager) Paths() *paths.Paths { return m.paths }

// Images exposes the manager's image store.
func (m *Manager) Images() *images.Store { return m.images }

// Inspect loads an existing instance by name.
func (m *Manager) Inspect(name string) (*instance.Instance, error) {
	return instance.Load(m.paths, name)
}

// ListedInstance is one row of List's result: either a cleanly loaded
// instance, or a name whose directory exists but failed to inspect.
type ListedInstance struct {
	Name string
	Inst *instance.Instance
	Err  error
}

// List enumerates every top-level child directory under the data home,
// sorted by name. An entry that fails to inspect (e.g. an unparsable
// config.yaml) is still reported, with Err set, rather than failing the
// whole call.
func (m *Manager) List() ([]ListedInstance, error) {
	entries, err := os.ReadDir(m.paths.Root())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read data home: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && e.Name() != imagesDirName {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]ListedInstance, 0, len(names))
	for _, name := range names {
		inst, err := instance.Load(m.paths, name)
		out = append(out, ListedInstance{Name: name, Inst: inst, Err: err})
	}
	return out, nil
}

// Status reports an instance's derived running state.
func (m *Manager) Status(name string) (instance.Status, error) {
	inst, err := instance.Load(m.paths, name)
	if err != nil {
		return "", err
	}
	return inst.Status()
}

// Delete refuses to remove a running instance, otherwise recursively
// removes its directory, tolerating one that is already gone.
func (m *Manager) Delete(name string) error {
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

	if err := os.RemoveAll(inst.Dir()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove instance directory: %w", err)
	}
	return nil
}

// Stop resolves the daemon PID and sends SIGINT without waiting for
// exit; there is no SIGKILL escalation, the daemon owns its own
// graceful shutdown.
func (m *Manager) Stop(name string) error {
	inst, err := instance.Load(m.paths, name)
	if err != nil {
		return err
	}
	return stopInstance(inst)
}
