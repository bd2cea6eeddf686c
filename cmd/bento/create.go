package main

import (
	"flag"
	"fmt"

	"github.com/samber/lo"

	"github.com/bentobox/bentobox/internal/instance"
	"github.com/bentobox/bentobox/internal/manager"
)

func cmdCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	cpus := fs.Int("cpus", 1, "number of virtual CPUs")
	memory := fs.Int("memory", 512, "virtual machine RAM size in mibibytes")
	engine := fs.String("engine", "", "hypervisor engine (defaults to vz)")
	image := fs.String("image", "", "base image name or OCI reference")
	kernel := fs.String("kernel", "", "path to a custom kernel")
	initramfs := fs.String("initramfs", "", "path to a custom initramfs image")
	nested := fs.Bool("nested-virtualization", false, "enable nested virtualization")
	network := fs.String("network", "", "network mode: vznat, none, bridged, cni")
	userdata := fs.String("userdata", "", "path to a userdata file")
	var disks, mounts repeatedFlag
	fs.Var(&disks, "disk", "path to an existing disk image (repeatable)")
	fs.Var(&mounts, "mount", "PATH:ro|rw virtiofs share (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: bento create <name> [flags]")
	}
	name := fs.Arg(0)

	opts, err := buildCreateOptions(*cpus, *memory, *engine, *image, *kernel, *initramfs, *nested, *network, *userdata, disks, mounts)
	if err != nil {
		return err
	}

	m, err := newManager()
	if err != nil {
		return err
	}

	inst, err := m.Create(name, opts)
	if err != nil {
		return err
	}

	fmt.Printf("created %s\n", inst.Name)
	return nil
}

func buildCreateOptions(cpus, memory int, engine, image, kernel, initramfs string, nested bool, network, userdata string, rawDisks, rawMounts []string) (manager.CreateOptions, error) {
	opts := manager.CreateOptions{
		CPUs:                 lo.ToPtr(cpus),
		Memory:               lo.ToPtr(memory),
		Engine:               instance.EngineType(engine),
		Image:                image,
		NestedVirtualization: nested,
		UserdataPath:         userdata,
	}

	if kernel != "" {
		abs, err := resolveExistingPath(kernel, "kernel")
		if err != nil {
			return manager.CreateOptions{}, err
		}
		opts.KernelPath = abs
	}
	if initramfs != "" {
		abs, err := resolveExistingPath(initramfs, "initramfs")
		if err != nil {
			return manager.CreateOptions{}, err
		}
		opts.InitramfsPath = abs
	}
	if userdata != "" {
		abs, err := resolveExistingPath(userdata, "userdata")
		if err != nil {
			return manager.CreateOptions{}, err
		}
		opts.UserdataPath = abs
	}
	if network != "" {
		mode, err := parseNetworkMode(network)
		if err != nil {
			return manager.CreateOptions{}, err
		}
		opts.Network = instance.NetworkConfig{Mode: mode}
	}

	disks, err := diskConfigsFromFlags(rawDisks)
	if err != nil {
		return manager.CreateOptions{}, err
	}
	opts.Disks = disks

	mounts, err := mountOptionsFromFlags(rawMounts)
	if err != nil {
		return manager.CreateOptions{}, err
	}
	opts.Mounts = mounts

	return opts, nil
}
