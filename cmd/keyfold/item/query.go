// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package item

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/keyfold/keyfold/cmd/keyfold/cli"
	"github.com/keyfold/keyfold/lib/protocol"
	"github.com/keyfold/keyfold/vault"
)

type getParams struct {
	cli.DaemonConnection
	cli.JSONOutput
	Raw bool `flag:"raw" desc:"write only the sealed payload bytes to stdout"`
}

func getCommand() *cli.Command {
	var params getParams

	return &cli.Command{
		Name:    "get",
		Summary: "Fetch one item by name",
		Description: `Fetch a single item from the active account's vault. The default
output describes the item; --raw writes only the sealed payload
bytes, for piping into whatever opens them.`,
		Usage: "keyfold item get <name> [flags]",
		Examples: []cli.Example{
			{
				Description: "Describe an item",
				Command:     "keyfold item get forge/deploy-key",
			},
			{
				Description: "Extract the sealed payload",
				Command:     "keyfold item get forge/deploy-key --raw > sealed.bin",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("get", &params)
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

			var item vault.Item
			if err := client.Call(ctx, "item.get", map[string]any{"name": args[0]}, &item); err != nil {
				return err
			}

			if params.Raw {
				_, err := os.Stdout.Write(item.Payload)
				return err
			}

			if done, err := params.EmitJSON(item); done {
				return err
			}

			fmt.Printf("Name:    %s\n", item.Name)
			fmt.Printf("ID:      %s\n", item.ID)
			fmt.Printf("Kind:    %s\n", item.Kind)
			fmt.Printf("Payload: %d bytes, sealed\n", len(item.Payload))
			fmt.Printf("Created: %s\n", item.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			fmt.Printf("Updated: %s\n", item.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

type listParams struct {
	cli.DaemonConnection
	cli.JSONOutput
}

func listCommand() *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "list",
		Summary: "List the active account's items",
		Description: `List every item in the active account's vault, with the vault
revision the listing was taken at.`,
		Usage: "keyfold item list [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("list", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			client, err := params.Connect()
			if err != nil {
				return err
			}

			ctx, cancel := cli.CallContext(ctx)
			defer cancel()

			var list protocol.ItemList
			if err := client.Call(ctx, "item.list", nil, &list); err != nil {
				return err
			}

			if done, err := params.EmitJSON(list); done {
				return err
			}

			if len(list.Items) == 0 {
				fmt.Println("vault is empty")
				return nil
			}

			writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(writer, "NAME\tKIND\tSIZE\tUPDATED\n")
			for _, item := range list.Items {
				fmt.Fprintf(writer, "%s\t%s\t%d\t%s\n",
					item.Name,
					item.Kind,
					len(item.Payload),
					item.UpdatedAt.Local().Format("2006-01-02 15:04"),
				)
			}
			if err := writer.Flush(); err != nil {
				return err
			}

			fmt.Printf("\n%d items at revision %s\n", len(list.Items), list.Revision.Short())
			return nil
		},
	}
}
