// Package main is markerctl, a command-line client for the Change Observer
// marker store. Its job is wiring: every command goes through the same store
// client, forms and views a UI would use.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

const usage = `Usage: markerctl <command> [flags]

Commands:
  list                         list every marker
  get <id>                     show one marker
  create -name N -lat LAT -lng LNG [-email E]...
                               add a marker
  update <id> [-name N] [-lat LAT -lng LNG] [-email E]... [-remove-email I]...
                               edit a marker
  delete <id>                  delete a marker
  watch [-interval D] [-metrics-addr A]
                               print the marker list whenever it changes

Configuration is read from observer.yaml and OBSERVER_* environment variables.
`

// Exit statuses.
const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n\n%s", args[0], usage)
		return exitUsage
	}

	a, err := newApp(stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFail
	}
	defer a.Close()

	return cmd(ctx, a, args[1:], stdout, stderr)
}
