// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/keyfold/keyfold/cmd/keyfold/cli"
	"github.com/keyfold/keyfold/lib/protocol"
)

type listParams struct {
	cli.DaemonConnection
	cli.JSONOutput
}

func listCommand() *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "list",
		Summary: "List registered accounts",
		Description: `List every registered account. The active account, if any, is
marked with *.`,
		Usage: "keyfold account list [flags]",
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

			var list protocol.AccountList
			if err := client.Call(ctx, "account.list", nil, &list); err != nil {
				return err
			}

			if done, err := params.EmitJSON(list); done {
				return err
			}

			if len(list.Accounts) == 0 {
				fmt.Println("no accounts registered")
				return nil
			}

			writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(writer, " \tLABEL\tID\tSERVER\tLAST ACTIVE\n")
			for _, account := range list.Accounts {
				marker := " "
				if string(account.ID) == list.Active {
					marker = "*"
				}
				server := account.ServerURL
				if server == "" {
					server = "-"
				}
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
					marker,
					account.Label,
					account.ID,
					server,
					account.LastActiveAt.Local().Format("2006-01-02 15:04"),
				)
			}
			return writer.Flush()
		},
	}
}
