// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package account holds the "keyfold account" command group.
package account

import "github.com/keyfold/keyfold/cmd/keyfold/cli"

// Command returns the "account" subcommand group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "account",
		Summary: "Manage vault accounts",
		Description: `Add, list, switch, deactivate, and remove vault accounts.

The daemon keeps at most one account active. Watch streams and item
commands operate on the active account: switching retargets them to
the new account's vault, deactivating leaves them idle until an
account is active again.`,
		Subcommands: []*cli.Command{
			addCommand(),
			listCommand(),
			switchCommand(),
			deactivateCommand(),
			removeCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Register an account and make it active",
				Command:     "keyfold account add personal --server-url https://vault.example.com",
			},
			{
				Description: "Switch the active account by label",
				Command:     "keyfold account switch work",
			},
			{
				Description: "Remove an account and purge its items",
				Command:     "keyfold account remove personal",
			},
		},
	}
}
