package main

import (
	"fmt"
	"os"
	"text/tabwriter"
)

func cmdStart(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: bento start <name>")
	}
	m, err := newManager()
	if err != nil {
		return err
	}
	return m.Start(args[0])
}

func cmdStop(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: bento stop <name>")
	}
	m, err := newManager()
	if err != nil {
		return err
	}
	return m.Stop(args[0])
}

func cmdDelete(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: bento delete <name>")
	}
	m, err := newManager()
	if err != nil {
		return err
	}
	if err := m.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", args[0])
	return nil
}

func cmdStatus(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: bento status <name>")
	}
	m, err := newManager()
	if err != nil {
		return err
	}
	status, err := m.Status(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("status: %s\n", status)
	return nil
}

func cmdList(args []string) error {
	m, err := newManager()
	if err != nil {
		return err
	}
	rows, err := m.List()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tCPUS\tMEMORY")
	for _, row := range rows {
		if row.Err != nil {
			fmt.Fprintf(w, "%s\tbroken\t-\t-\n", row.Name)
			continue
		}
		status, err := row.Inst.Status()
		if err != nil {
			fmt.Fprintf(w, "%s\tunknown\t-\t-\n", row.Name)
			continue
		}
		cpus, memory := "-", "-"
		if row.Inst.Config.CPUs != nil {
			cpus = fmt.Sprintf("%d", *row.Inst.Config.CPUs)
		}
		if row.Inst.Config.Memory != nil {
			memory = fmt.Sprintf("%d", *row.Inst.Config.Memory)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", row.Name, status, cpus, memory)
	}
	return w.Flush()
}
