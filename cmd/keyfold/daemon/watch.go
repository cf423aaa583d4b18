// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/keyfold/keyfold/cmd/keyfold/cli"
	"github.com/keyfold/keyfold/lib/codec"
	"github.com/keyfold/keyfold/lib/protocol"
)

type watchParams struct {
	cli.DaemonConnection
	cli.JSONOutput
}

// WatchCommand returns the "watch" command.
func WatchCommand() *cli.Command {
	var params watchParams

	return &cli.Command{
		Name:    "watch",
		Summary: "Follow live vault snapshots",
		Description: `Stream vault snapshots from the daemon as they happen. A snapshot
arrives when the watch starts (if an account is active), after every
item write, and after every account switch. The stream stays open
while no account is active and resumes when one becomes active.

Each snapshot prints as one line. With --json, every data frame is
printed as a compact JSON object per line, including observation
error frames, for piping into line-oriented tools. Interrupt with
Ctrl-C to stop.`,
		Usage: "keyfold watch [flags]",
		Examples: []cli.Example{
			{
				Description: "Follow the active account's vault",
				Command:     "keyfold watch",
			},
			{
				Description: "Machine-readable snapshot stream",
				Command:     "keyfold watch --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("watch", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			client, err := params.Connect()
			if err != nil {
				return err
			}

			conn, err := client.Stream(ctx, "watch", nil)
			if err != nil {
				return err
			}
			defer conn.Close()

			// Close the connection on interrupt so the blocked decode
			// returns.
			watchDone := make(chan struct{})
			defer close(watchDone)
			go func() {
				select {
				case <-ctx.Done():
					conn.Close()
				case <-watchDone:
				}
			}()

			decoder := codec.NewDecoder(conn)
			jsonLines := json.NewEncoder(os.Stdout)

			for {
				var frame protocol.WatchFrame
				if err := decoder.Decode(&frame); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("watch stream closed: %w", err)
				}

				switch frame.Type {
				case protocol.FrameSnapshot:
					if frame.Snapshot == nil {
						continue
					}
					if params.OutputJSON {
						if err := jsonLines.Encode(frame); err != nil {
							return err
						}
						continue
					}
					snapshot := frame.Snapshot
					fmt.Printf("%s account=%s items=%d revision=%s\n",
						formatTime(snapshot.TakenAt),
						snapshot.AccountID,
						len(snapshot.Items),
						snapshot.Revision.Short(),
					)

				case protocol.FrameError:
					if params.OutputJSON {
						if err := jsonLines.Encode(frame); err != nil {
							return err
						}
						continue
					}
					fmt.Fprintf(os.Stderr, "observation error: %s\n", frame.Message)

				case protocol.FrameHeartbeat:
					// Liveness signal only; nothing to print.
				}
			}
		},
	}
}
