package main

import (
	"flag"
	"fmt"

	"github.com/bentobox/bentobox/internal/client"
	"github.com/bentobox/bentobox/internal/instance"
)

// cmdShell attaches an interactive ssh session to a running instance.
func cmdShell(args []string) error {
	fs := flag.NewFlagSet("shell", flag.ContinueOnError)
	user := fs.String("user", "root", "guest user to attach as")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: bento shell <name> [--user <u>]")
	}
	name := fs.Arg(0)

	m, err := newManager()
	if err != nil {
		return err
	}
	inst, err := m.Inspect(name)
	if err != nil {
		return err
	}
	status, err := inst.Status()
	if err != nil {
		return err
	}
	if status != instance.StatusRunning {
		return fmt.Errorf("instance %s is not running", name)
	}

	return attachSSH(inst.Dir(), name, *user)
}

func attachSSH(instanceDir, name, user string) error {
	cmd, err := client.BuildSSHCommand(instanceDir, name, user)
	if err != nil {
		return err
	}
	if err := cmd.Run(); err != nil {
		if exit, ok := err.(interface{ ExitCode() int }); ok && exit.ExitCode() >= 0 {
			return fmt.Errorf("ssh exited with status code %d", exit.ExitCode())
		}
		return fmt.Errorf("run ssh client: %w", err)
	}
	return nil
}

// cmdShellProxy is the hidden subcommand ssh invokes as its
// ProxyCommand: it dials the instance's control socket, opens the ssh
// service, and relays stdio.
func cmdShellProxy(args []string) error {
	fs := flag.NewFlagSet("shell-proxy", flag.ContinueOnError)
	name := fs.String("name", "", "instance name")
	fs.String("service", "ssh", "service to open (ignored; always ssh)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("usage: bento shell-proxy --name <name>")
	}

	m, err := newManager()
	if err != nil {
		return err
	}
	inst, err := m.Inspect(*name)
	if err != nil {
		return err
	}

	return client.RunShellProxy(inst.File(instance.FileSocket))
}
