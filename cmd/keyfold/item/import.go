// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package item

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/keyfold/keyfold/cmd/keyfold/cli"
	"github.com/keyfold/keyfold/lib/itemdef"
	"github.com/keyfold/keyfold/lib/socket"
	"github.com/keyfold/keyfold/vault"
)

type importParams struct {
	cli.DaemonConnection
}

func importCommand() *cli.Command {
	var params importParams

	return &cli.Command{
		Name:    "import",
		Summary: "Import items from definition files",
		Description: `Import item definition files into the active account's vault. Each
file is processed independently: a file that fails to parse,
validate, or store is reported and skipped, and the remaining files
are still imported. The command exits non-zero if any file failed.

Definition files are JSONC with "kind", "payload" (base64 of the
sealed bytes), and an optional "name"; when "name" is omitted it is
derived from the file path.`,
		Usage: "keyfold item import <file>... [flags]",
		Examples: []cli.Example{
			{
				Description: "Import a directory of definitions",
				Command:     "keyfold item import secrets/*.jsonc",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("import", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("expected at least one definition file")
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}

			failures := 0
			for _, path := range args {
				if err := importFile(ctx, client, path); err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
					failures++
				}
			}

			if failures > 0 {
				fmt.Fprintf(os.Stderr, "%d of %d files failed\n", failures, len(args))
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

func importFile(ctx context.Context, client *socket.Client, path string) error {
	definition, err := itemdef.ReadFile(path)
	if err != nil {
		return err
	}
	if problems := itemdef.Validate(definition); len(problems) > 0 {
		return fmt.Errorf("%s: %s", path, strings.Join(problems, "; "))
	}
	payload, err := definition.PayloadBytes()
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	ctx, cancel := cli.CallContext(ctx)
	defer cancel()

	fields := map[string]any{
		"kind":    definition.Kind,
		"name":    definition.Name,
		"payload": payload,
	}
	var item vault.Item
	if err := client.Call(ctx, "item.put", fields, &item); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	fmt.Printf("imported %s (%s)\n", item.Name, item.ID)
	return nil
}
