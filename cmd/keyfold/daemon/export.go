// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/keyfold/keyfold/cmd/keyfold/cli"
	"github.com/keyfold/keyfold/lib/codec"
	"github.com/keyfold/keyfold/lib/protocol"
)

type exportParams struct {
	cli.DaemonConnection
	Output      string `flag:"output,o" desc:"write the bundle to this file instead of stdout"`
	Compression string `flag:"compression" desc:"bundle compression: none, lz4, or zstd (default: the daemon's configured choice)"`
}

// ExportCommand returns the "export" command.
func ExportCommand() *cli.Command {
	var params exportParams

	return &cli.Command{
		Name:    "export",
		Summary: "Export the active account's vault as a portable bundle",
		Description: `Download the active account's items as a single bundle taken at one
consistent revision. The bundle is a compressed CBOR document whose
revision ties it to the exact vault state it captured, which makes
bundles comparable across machines.

Without --output the raw bundle goes to stdout and the summary to
stderr, so the bundle can be piped. With --output the bundle is
written to the file (created mode 0600) and the summary to stdout.`,
		Usage: "keyfold export [flags]",
		Examples: []cli.Example{
			{
				Description: "Export to a backup file",
				Command:     "keyfold export --output backup.kfb",
			},
			{
				Description: "Uncompressed bundle piped to another tool",
				Command:     "keyfold export --compression none | inspect-bundle",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("export", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			client, err := params.Connect()
			if err != nil {
				return err
			}

			var fields map[string]any
			if params.Compression != "" {
				fields = map[string]any{"compression": params.Compression}
			}

			conn, err := client.Stream(ctx, "export", fields)
			if err != nil {
				return err
			}
			defer conn.Close()

			// Close the connection on interrupt so the blocked decode
			// returns.
			exportDone := make(chan struct{})
			defer close(exportDone)
			go func() {
				select {
				case <-ctx.Done():
					conn.Close()
				case <-exportDone:
				}
			}()

			destination := io.Writer(os.Stdout)
			report := io.Writer(os.Stderr)
			toFile := params.Output != "" && params.Output != "-"

			var file *os.File
			if toFile {
				file, err = os.OpenFile(params.Output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
				if err != nil {
					return fmt.Errorf("creating %s: %w", params.Output, err)
				}
				defer file.Close()
				destination = file
				report = os.Stdout
			}

			decoder := codec.NewDecoder(conn)
			received := 0

			var summary *protocol.ExportSummary
			for summary == nil {
				var frame protocol.ExportFrame
				if err := decoder.Decode(&frame); err != nil {
					return fmt.Errorf("export stream closed early: %w", err)
				}

				switch {
				case frame.Type == protocol.FrameChunk:
					if _, err := destination.Write(frame.Data); err != nil {
						return fmt.Errorf("writing bundle: %w", err)
					}
					received += len(frame.Data)
				case frame.Type == protocol.FrameDone && frame.Done != nil:
					summary = frame.Done
				default:
					return fmt.Errorf("unexpected export frame %q", frame.Type)
				}
			}

			if received != summary.Size {
				return fmt.Errorf("bundle truncated: received %d of %d bytes", received, summary.Size)
			}
			if toFile {
				if err := file.Close(); err != nil {
					return fmt.Errorf("closing %s: %w", params.Output, err)
				}
			}

			location := ""
			if toFile {
				location = " to " + params.Output
			}
			fmt.Fprintf(report, "exported %d items (%s) at revision %s%s\n",
				summary.Items,
				formatBytes(int64(summary.Size)),
				summary.Revision.Short(),
				location,
			)
			return nil
		},
	}
}
