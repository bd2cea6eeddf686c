package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bentobox/bentobox/internal/instance"
	"github.com/bentobox/bentobox/internal/manager"
)

// repeatedFlag collects every occurrence of a repeatable flag, e.g.
// --disk a --disk b, in the order given.
type repeatedFlag []string

func (r *repeatedFlag) String() string { return strings.Join(*r, ",") }
func (r *repeatedFlag) Set(v string) error {
	*r = append(*r, v)
	return nil
}

// parseMountArg parses "PATH:ro|rw" into a MountOption, splitting on
// the last colon so a path that itself contains one still parses.
func parseMountArg(input string) (manager.MountOption, error) {
	idx := strings.LastIndexByte(input, ':')
	if idx < 0 {
		return manager.MountOption{}, fmt.Errorf("invalid mount %q, expected PATH:ro|rw", input)
	}
	location, mode := input[:idx], input[idx+1:]
	if location == "" {
		return manager.MountOption{}, fmt.Errorf("invalid mount %q, path cannot be empty", input)
	}
	switch mode {
	case "rw":
		return manager.MountOption{Location: location, Writable: true}, nil
	case "ro":
		return manager.MountOption{Location: location, Writable: false}, nil
	default:
		return manager.MountOption{}, fmt.Errorf("invalid mount mode %q, expected 'ro' or 'rw'", mode)
	}
}

func parseNetworkMode(input string) (instance.NetworkMode, error) {
	switch input {
	case "vznat":
		return instance.NetworkModeVZNat, nil
	case "none":
		return instance.NetworkModeNone, nil
	case "bridged":
		return instance.NetworkModeBridged, nil
	case "cni":
		return instance.NetworkModeCNI, nil
	default:
		return "", fmt.Errorf("invalid network mode %q, expected one of: vznat, none, bridged, cni", input)
	}
}

// resolveExistingPath makes path absolute against cwd if relative, then
// requires it to exist.
func resolveExistingPath(path, kind string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve cwd: %w", err)
		}
		abs = filepath.Join(cwd, abs)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("%s path does not exist: %s", kind, abs)
	}
	return resolved, nil
}

func mountOptionsFromFlags(raw []string) ([]manager.MountOption, error) {
	var out []manager.MountOption
	for _, m := range raw {
		opt, err := parseMountArg(m)
		if err != nil {
			return nil, err
		}
		out = append(out, opt)
	}
	return out, nil
}

func diskConfigsFromFlags(raw []string) ([]instance.DiskConfig, error) {
	var out []instance.DiskConfig
	for _, d := range raw {
		abs, err := resolveExistingPath(d, "disk")
		if err != nil {
			return nil, err
		}
		out = append(out, instance.DiskConfig{Path: abs, Role: instance.DiskRoleData})
	}
	return out, nil
}
