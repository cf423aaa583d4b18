// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/keyfold/keyfold/cmd/keyfold/cli"
	"github.com/keyfold/keyfold/lib/protocol"
	"github.com/keyfold/keyfold/lib/socket"
	"github.com/keyfold/keyfold/session"
)

type addParams struct {
	cli.DaemonConnection
	cli.JSONOutput
	ServerURL string `flag:"server-url" desc:"URL of the server this account syncs with"`
}

func addCommand() *cli.Command {
	var params addParams

	return &cli.Command{
		Name:    "add",
		Summary: "Register an account and make it active",
		Description: `Register a new account under a label. The account becomes active
immediately; watchers switch to its (empty) vault.`,
		Usage: "keyfold account add <label> [flags]",
		Examples: []cli.Example{
			{
				Description: "A local-only account",
				Command:     "keyfold account add personal",
			},
			{
				Description: "An account tied to a sync server",
				Command:     "keyfold account add work --server-url https://vault.example.com",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("add", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one label argument")
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}

			ctx, cancel := cli.CallContext(ctx)
			defer cancel()

			fields := map[string]any{"label": args[0]}
			if params.ServerURL != "" {
				fields["server_url"] = params.ServerURL
			}

			var account session.Account
			if err := client.Call(ctx, "account.add", fields, &account); err != nil {
				return err
			}

			if done, err := params.EmitJSON(account); done {
				return err
			}
			fmt.Printf("added account %s (%s), now active\n", account.Label, account.ID)
			return nil
		},
	}
}

type switchParams struct {
	cli.DaemonConnection
	cli.JSONOutput
}

func switchCommand() *cli.Command {
	var params switchParams

	return &cli.Command{
		Name:    "switch",
		Summary: "Make a different account active",
		Description: `Make the named account active. Watch streams tear down the old
account's observation and receive the new account's snapshot.

The account may be named by ID or by label. A label shared by
several accounts is rejected; use the ID then.`,
		Usage: "keyfold account switch <id-or-label> [flags]",
		Examples: []cli.Example{
			{
				Description: "Switch by label",
				Command:     "keyfold account switch work",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("switch", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one account argument (ID or label)")
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}

			ctx, cancel := cli.CallContext(ctx)
			defer cancel()

			account, err := resolveAccount(ctx, client, args[0])
			if err != nil {
				return err
			}

			var switched session.Account
			err = client.Call(ctx, "account.switch", map[string]any{"id": string(account.ID)}, &switched)
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(switched); done {
				return err
			}
			fmt.Printf("switched to %s (%s)\n", switched.Label, switched.ID)
			return nil
		},
	}
}

type deactivateParams struct {
	cli.DaemonConnection
}

func deactivateCommand() *cli.Command {
	var params deactivateParams

	return &cli.Command{
		Name:    "deactivate",
		Summary: "Clear the active account",
		Description: `Clear the active account without removing it. Watch streams go
idle; item commands fail until an account is active again.`,
		Usage: "keyfold account deactivate [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("deactivate", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			client, err := params.Connect()
			if err != nil {
				return err
			}

			ctx, cancel := cli.CallContext(ctx)
			defer cancel()

			if err := client.Call(ctx, "account.deactivate", nil, nil); err != nil {
				return err
			}
			fmt.Println("active account cleared")
			return nil
		},
	}
}

type removeParams struct {
	cli.DaemonConnection
	cli.JSONOutput
}

func removeCommand() *cli.Command {
	var params removeParams

	return &cli.Command{
		Name:    "remove",
		Summary: "Remove an account and purge its items",
		Description: `Remove an account from the daemon and delete every item stored
under it. If the account was active, watchers see it go absent
before the purge runs. This cannot be undone.`,
		Usage: "keyfold account remove <id-or-label> [flags]",
		Examples: []cli.Example{
			{
				Description: "Remove by label",
				Command:     "keyfold account remove personal",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("remove", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one account argument (ID or label)")
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}

			ctx, cancel := cli.CallContext(ctx)
			defer cancel()

			account, err := resolveAccount(ctx, client, args[0])
			if err != nil {
				return err
			}

			var removed protocol.AccountRemoved
			err = client.Call(ctx, "account.remove", map[string]any{"id": string(account.ID)}, &removed)
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(removed); done {
				return err
			}
			fmt.Printf("removed account %s (%s), purged %d items\n", account.Label, removed.ID, removed.Purged)
			return nil
		},
	}
}

// resolveAccount turns an ID-or-label argument into the account it
// names. IDs win over labels; a label shared by several accounts is
// an error rather than a guess.
func resolveAccount(ctx context.Context, client *socket.Client, arg string) (session.Account, error) {
	var list protocol.AccountList
	if err := client.Call(ctx, "account.list", nil, &list); err != nil {
		return session.Account{}, err
	}

	for _, account := range list.Accounts {
		if string(account.ID) == arg {
			return account, nil
		}
	}

	var matches []session.Account
	for _, account := range list.Accounts {
		if account.Label == arg {
			matches = append(matches, account)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return session.Account{}, fmt.Errorf("no account with ID or label %q", arg)
	default:
		return session.Account{}, fmt.Errorf("label %q names %d accounts, use the ID", arg, len(matches))
	}
}
