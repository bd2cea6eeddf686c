package manager

import "errors"

// Sentinel errors for manager-level failures that don't already have a
// home in the instance package's own error taxonomy.
var (
	ErrDataHomeUnavailable   = errors.New("data home could not be resolved from $XDG_DATA_HOME or $HOME")
	ErrConfigHomeUnavailable = errors.New("config home could not be resolved from $XDG_CONFIG_HOME or $HOME")
	ErrDaemonExitedEarly     = errors.New("instanced exited before reporting running")
	ErrDaemonStartTimedOut   = errors.New("timed out waiting for instanced to report running")
	ErrDuplicateMount        = errors.New("duplicate mount location")
	ErrMountNotADirectory    = errors.New("mount location is not a directory")
)
