// Command bento is the bentobox CLI: instance lifecycle control plus
// two internal subcommands (instanced, shell-proxy) that only ever run
// re-invoked by this same binary. Flag parsing is deliberately plain
// os.Args/flag.FlagSet dispatch, no CLI framework, matching every entry
// point in this repo.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	_ "github.com/bentobox/bentobox/internal/driver/fakedriver"
	_ "github.com/bentobox/bentobox/internal/driver/qemu"
	"github.com/bentobox/bentobox/internal/manager"
)

func main() {
	// Fails silently if no .env is present.
	_ = godotenv.Load()

	verbose, args := splitVerbose(os.Args[1:])
	if err := run(args); err != nil {
		printError(err, verbose)
		os.Exit(1)
	}
}

// splitVerbose pulls every "-v"/"--verbose" occurrence out of args,
// counting them, and returns the remaining arguments untouched. Unlike
// a flag.FlagSet, this has to run before subcommand dispatch since -v
// is accepted anywhere on the line, not just before the subcommand.
func splitVerbose(args []string) (int, []string) {
	count := 0
	rest := make([]string, 0, len(args))
	for _, a := range args {
		if a == "-v" || a == "--verbose" {
			count++
			continue
		}
		rest = append(rest, a)
	}
	return count, rest
}

func printError(err error, verbose int) {
	fmt.Fprintf(os.Stderr, "\x1b[31merror:\x1b[0m %s\n", err)
	if verbose == 0 {
		if errorChainDepth(err) > 1 {
			fmt.Fprintln(os.Stderr, "hint: run with -v to see the full error chain")
		}
		return
	}

	idx := 0
	last := err.Error()
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		msg := cause.Error()
		if msg == last {
			continue
		}
		idx++
		fmt.Fprintf(os.Stderr, "  %d. %s\n", idx, msg)
		last = msg
	}
}

func errorChainDepth(err error) int {
	depth := 0
	for err != nil {
		depth++
		err = errors.Unwrap(err)
	}
	return depth
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: bento <create|start|stop|delete|status|list|run|shell|shell-proxy|instanced|images> [flags]")
	}

	sub, rest := args[0], args[1:]
	switch sub {
	case "create":
		return cmdCreate(rest)
	case "start":
		return cmdStart(rest)
	case "stop":
		return cmdStop(rest)
	case "delete":
		return cmdDelete(rest)
	case "status":
		return cmdStatus(rest)
	case "list":
		return cmdList(rest)
	case "run":
		return cmdRun(rest)
	case "shell":
		return cmdShell(rest)
	case "shell-proxy":
		return cmdShellProxy(rest)
	case "instanced":
		return cmdInstanced(rest)
	case "images", "image":
		return cmdImages(rest)
	default:
		return fmt.Errorf("unknown subcommand %q", sub)
	}
}

// newManager resolves the data home the same way every subcommand
// needs it and opens a Manager rooted there.
func newManager() (*manager.Manager, error) {
	dataHome, err := resolveDataHome()
	if err != nil {
		return nil, err
	}
	return manager.New(dataHome)
}

// resolveDataHome implements XDG_DATA_HOME discovery: the absolute
// value of $XDG_DATA_HOME if set, else $HOME/.local/share. This lives
// at the CLI layer rather than in internal/manager since directory
// discovery is the one piece of environment plumbing every subcommand
// needs before a Manager can even be constructed.
func resolveDataHome() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); filepath.IsAbs(xdg) {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "", manager.ErrDataHomeUnavailable
	}
	return filepath.Join(home, ".local", "share"), nil
}
