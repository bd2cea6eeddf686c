package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/bentobox/bentobox/internal/client"
	"github.com/bentobox/bentobox/internal/instance"
	"github.com/bentobox/bentobox/internal/manager"
)

// cmdRun creates an instance, starts it, attaches an interactive
// session (ssh by default, serial on --attach serial), then tears the
// instance back down unless --keep is set. Folds
// create+start+attach+cleanup into one step for throwaway dev VMs.
func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	attach := fs.String("attach", "ssh", "attach mode: ssh or serial")
	user := fs.String("user", "root", "guest user to attach as")
	keep := fs.Bool("keep", false, "keep the instance after the session ends")
	cpus := fs.Int("cpus", 1, "number of virtual CPUs")
	memory := fs.Int("memory", 512, "virtual machine RAM size in mibibytes")
	image := fs.String("image", "", "base image name or OCI reference")
	kernel := fs.String("kernel", "", "path to a custom kernel")
	initramfs := fs.String("initramfs", "", "path to a custom initramfs image")
	network := fs.String("network", "", "network mode: vznat, none, bridged, cni")
	userdata := fs.String("userdata", "", "path to a userdata file")
	var disks, mounts repeatedFlag
	fs.Var(&disks, "disk", "path to an existing disk image (repeatable)")
	fs.Var(&mounts, "mount", "PATH:ro|rw virtiofs share (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: bento run <name> [flags]")
	}
	name := fs.Arg(0)
	if *attach != "ssh" && *attach != "serial" {
		return fmt.Errorf("invalid --attach %q, expected ssh or serial", *attach)
	}

	opts, err := buildCreateOptions(*cpus, *memory, "", *image, *kernel, *initramfs, false, *network, *userdata, disks, mounts)
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
	created := true
	started := false

	runErr := func() error {
		if err := m.Start(name); err != nil {
			return err
		}
		started = true

		if *attach == "serial" {
			return client.AttachSerial(inst.File(instance.FileSocket))
		}
		return attachSSH(inst.Dir(), name, *user)
	}()

	var cleanupErr error
	if !*keep {
		cleanupErr = cleanupRunInstance(m, name, created, started)
	}

	if runErr != nil {
		if cleanupErr != nil {
			return fmt.Errorf("%w (cleanup also failed: %v)", runErr, cleanupErr)
		}
		return runErr
	}
	return cleanupErr
}

func cleanupRunInstance(m *manager.Manager, name string, created, started bool) error {
	if !created {
		return nil
	}

	inst, err := m.Inspect(name)
	if err != nil {
		return err
	}

	if started {
		status, err := inst.Status()
		if err != nil {
			return err
		}
		if status == instance.StatusRunning {
			if err := m.Stop(name); err != nil {
				return err
			}
		}
	}

	time.Sleep(200 * time.Millisecond)
	return m.Delete(name)
}
