// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package item holds the "keyfold item" command group.
package item

import "github.com/keyfold/keyfold/cmd/keyfold/cli"

// Command returns the "item" subcommand group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "item",
		Summary: "Manage vault items",
		Description: `Store, fetch, list, delete, and import items in the active
account's vault.

Item payloads are sealed ciphertext; the daemon stores them without
inspecting them. Every write advances the vault revision and pushes
a fresh snapshot to watchers.`,
		Subcommands: []*cli.Command{
			putCommand(),
			getCommand(),
			listCommand(),
			deleteCommand(),
			importCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Store a sealed payload under a name",
				Command:     "keyfold item put forge/deploy-key --payload-file sealed.bin",
			},
			{
				Description: "Fetch the payload back, raw",
				Command:     "keyfold item get forge/deploy-key --raw > sealed.bin",
			},
			{
				Description: "Import item definitions from JSONC files",
				Command:     "keyfold item import secrets/*.jsonc",
			},
		},
	}
}
