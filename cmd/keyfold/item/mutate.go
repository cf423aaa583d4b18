// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package item

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/keyfold/keyfold/cmd/keyfold/cli"
	"github.com/keyfold/keyfold/lib/protocol"
	"github.com/keyfold/keyfold/vault"
)

type putParams struct {
	cli.DaemonConnection
	cli.JSONOutput
	Kind        string `flag:"kind,k" default:"password" desc:"item kind: password, note, keypair, or token"`
	PayloadFile string `flag:"payload-file,f" desc:"file holding the sealed payload, - for stdin"`
	ID          string `flag:"id" desc:"existing item ID to update in place"`
}

func putCommand() *cli.Command {
	var params putParams

	return &cli.Command{
		Name:    "put",
		Summary: "Store or update an item",
		Description: `Store an item in the active account's vault. The payload is read
from --payload-file and stored as-is; the daemon never inspects it.
Without --id a new item is created, with --id the named item is
updated in place. Either way the vault revision advances and every
watcher receives the new snapshot.`,
		Usage: "keyfold item put <name> --payload-file <path> [flags]",
		Examples: []cli.Example{
			{
				Description: "Store a sealed payload from a file",
				Command:     "keyfold item put forge/deploy-key --kind keypair --payload-file sealed.bin",
			},
			{
				Description: "Pipe the payload through stdin",
				Command:     "seal-tool < key.pem | keyfold item put forge/deploy-key -k keypair -f -",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("put", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one item name")
			}
			if params.PayloadFile == "" {
				return fmt.Errorf("--payload-file is required (use - for stdin)")
			}

			payload, err := readPayload(params.PayloadFile)
			if err != nil {
				return err
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}

			ctx, cancel := cli.CallContext(ctx)
			defer cancel()

			fields := map[string]any{
				"kind":    params.Kind,
				"name":    args[0],
				"payload": payload,
			}
			if params.ID != "" {
				fields["id"] = params.ID
			}

			var item vault.Item
			if err := client.Call(ctx, "item.put", fields, &item); err != nil {
				return err
			}

			if done, err := params.EmitJSON(item); done {
				return err
			}
			fmt.Printf("stored %s (%s)\n", item.Name, item.ID)
			return nil
		},
	}
}

func readPayload(path string) ([]byte, error) {
	if path == "-" {
		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading payload from stdin: %w", err)
		}
		return payload, nil
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	return payload, nil
}

type deleteParams struct {
	cli.DaemonConnection
	cli.JSONOutput
}

func deleteCommand() *cli.Command {
	var params deleteParams

	return &cli.Command{
		Name:    "delete",
		Summary: "Delete an item by name",
		Description: `Delete an item from the active account's vault. The vault revision
advances and watchers receive a snapshot without the item.`,
		Usage: "keyfold item delete <name> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("delete", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one item name")
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}

			ctx, cancel := cli.CallContext(ctx)
			defer cancel()

			var deleted protocol.ItemDeleted
			if err := client.Call(ctx, "item.delete", map[string]any{"name": args[0]}, &deleted); err != nil {
				return err
			}

			if done, err := params.EmitJSON(deleted); done {
				return err
			}
			fmt.Printf("deleted %s (%s)\n", deleted.Name, deleted.ID)
			return nil
		},
	}
}
