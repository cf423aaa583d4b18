// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete keyfold CLI command tree.
package commands

import (
	"context"
	"fmt"

	accountcmd "github.com/keyfold/keyfold/cmd/keyfold/account"
	"github.com/keyfold/keyfold/cmd/keyfold/cli"
	daemoncmd "github.com/keyfold/keyfold/cmd/keyfold/daemon"
	itemcmd "github.com/keyfold/keyfold/cmd/keyfold/item"
	"github.com/keyfold/keyfold/lib/version"
)

// Root returns the top-level keyfold command with all groups attached.
func Root() *cli.Command {
	return &cli.Command{
		Name: "keyfold",
		Description: `Keyfold: self-hosted secrets manager client.

Manage vault accounts and sealed items through the keyfoldd daemon,
follow live vault snapshots, and export portable bundles.`,
		Examples: []cli.Example{
			{
				Description: "Check the daemon",
				Command:     "keyfold status",
			},
			{
				Description: "Register an account and make it active",
				Command:     "keyfold account add personal --server-url https://vault.example.net",
			},
			{
				Description: "Store a sealed item",
				Command:     "keyfold item put forge/deploy-key --kind keypair --payload-file sealed.bin",
			},
			{
				Description: "Follow vault snapshots as they change",
				Command:     "keyfold watch",
			},
			{
				Description: "Export the active vault to a bundle",
				Command:     "keyfold export --output backup.kfb",
			},
		},
		Subcommands: []*cli.Command{
			daemoncmd.StatusCommand(),
			accountcmd.Command(),
			itemcmd.Command(),
			daemoncmd.WatchCommand(),
			daemoncmd.ExportCommand(),
			{
				Name:    "version",
				Summary: "Print the keyfold version",
				Usage:   "keyfold version",
				Run: func(_ context.Context, _ []string) error {
					fmt.Printf("keyfold %s\n", version.Full())
					return nil
				},
			},
		},
	}
}
