// Package main is the entry point for the stagehand CLI.
//
// stagehand decides at deploy time whether an application upgrade needs a
// migration run and submits the run's stage chain as Kubernetes Jobs. The same
// binary is the entrypoint of every stage pod.
//
// Commands: launch, status, cancel, render, stage run, version.
//
// For detailed usage information, run:
//
//	stagehand --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/imamik/stagehand/cmd/stagehand/commands"
	"github.com/imamik/stagehand/cmd/stagehand/handlers"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Root().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(handlers.ExitCode(err))
	}
}
