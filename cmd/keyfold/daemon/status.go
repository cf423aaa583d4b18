// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package daemon holds the top-level commands that talk to keyfoldd
// directly: status, watch, and export.
package daemon

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/keyfold/keyfold/cmd/keyfold/cli"
	"github.com/keyfold/keyfold/lib/protocol"
)

type statusParams struct {
	cli.DaemonConnection
	cli.JSONOutput
}

// StatusCommand returns the "status" command.
func StatusCommand() *cli.Command {
	var params statusParams

	return &cli.Command{
		Name:    "status",
		Summary: "Show daemon health and gate statistics",
		Description: `Display the daemon's operational state: version, uptime, account
and item counts, connected watchers, and the observation gate's
counters.

The gate block describes the snapshot pipeline. Live means at least
one watcher holds demand; Observing means an account is active and
its vault is being followed. Activations counts vault observations
started over the daemon's lifetime, Failures counts observations
that ended in an error, and Dropped counts snapshots discarded for
watchers that read too slowly.`,
		Usage: "keyfold status [flags]",
		Examples: []cli.Example{
			{
				Description: "Show daemon status",
				Command:     "keyfold status",
			},
			{
				Description: "JSON output for scripting",
				Command:     "keyfold status --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("status", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			client, err := params.Connect()
			if err != nil {
				return err
			}

			ctx, cancel := cli.CallContext(ctx)
			defer cancel()

			var status protocol.Status
			if err := client.Call(ctx, "status", nil, &status); err != nil {
				return err
			}

			if done, err := params.EmitJSON(status); done {
				return err
			}

			fmt.Printf("Version:        %s\n", status.Version)
			fmt.Printf("Uptime:         %s\n", formatUptime(status.UptimeSeconds))
			fmt.Printf("Accounts:       %d\n", status.Accounts)
			if status.ActiveAccount != "" {
				fmt.Printf("Active account: %s\n", status.ActiveAccount)
				fmt.Printf("Items:          %d\n", status.Items)
			}
			fmt.Printf("Watchers:       %d\n", status.Watchers)
			fmt.Printf("Exports served: %d\n", status.ExportsServed)

			gate := status.Gate
			fmt.Printf("\nGate\n")
			fmt.Printf("  Live:        %v\n", gate.Live)
			fmt.Printf("  Identity:    %v\n", gate.IdentityPresent)
			fmt.Printf("  Observing:   %v\n", gate.Observing)
			fmt.Printf("  Subscribers: %d\n", gate.Subscribers)
			fmt.Printf("  Activations: %d\n", gate.Activations)
			fmt.Printf("  Failures:    %d\n", gate.Failures)
			fmt.Printf("  Completions: %d\n", gate.Completions)
			fmt.Printf("  Dropped:     %d\n", gate.DroppedEvents)

			return nil
		},
	}
}
