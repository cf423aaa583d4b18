// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Command keyfold is the client CLI for the keyfoldd daemon. It manages
// accounts and vault items over the daemon's Unix socket, follows live
// vault snapshots, and exports portable bundles.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/keyfold/keyfold/cmd/keyfold/commands"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own diagnostics, like item import,
		// return a bare exit code.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return commands.Root().Execute(ctx, os.Args[1:])
}
