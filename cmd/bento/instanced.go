package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/bentobox/bentobox/internal/daemon"
	"github.com/bentobox/bentobox/internal/logger"
)

// cmdInstanced is the internal daemon entrypoint, spawned by start()
// with exactly --name <n>. It never returns until the daemon itself
// decides to exit.
func cmdInstanced(args []string) error {
	fs := flag.NewFlagSet("instanced", flag.ContinueOnError)
	name := fs.String("name", "", "instance name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("usage: bento instanced --name <name>")
	}

	m, err := newManager()
	if err != nil {
		return err
	}
	inst, err := m.Inspect(*name)
	if err != nil {
		return err
	}

	log := logger.New(logger.SubsystemDaemon, logger.NewConfig())
	d := daemon.New(inst, log)
	return d.Run(context.Background())
}
