// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"time"

	"github.com/spf13/pflag"

	"github.com/keyfold/keyfold/lib/config"
	"github.com/keyfold/keyfold/lib/socket"
)

// DaemonConnection carries the socket path shared by every command
// that talks to keyfoldd. Embedding it in a params struct registers
// the --socket flag; Connect resolves the effective path and returns
// a client.
type DaemonConnection struct {
	SocketPath string
}

// AddFlags registers the connection flags, satisfying [FlagBinder].
func (c *DaemonConnection) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.SocketPath, "socket", "",
		"keyfoldd socket path (default: from configuration)")
}

// Connect builds a client for the daemon socket. An explicit --socket
// wins; otherwise the path comes from the same configuration keyfoldd
// loads, so both sides agree without extra wiring. No connection is
// made here; the client dials per call.
func (c *DaemonConnection) Connect() (*socket.Client, error) {
	path := c.SocketPath
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		path = cfg.Daemon.SocketPath
	}
	return socket.NewClient(path), nil
}

// CallContext bounds a unary daemon call, derived from parent. Calls
// are local socket round trips; anything slower than this is a hung
// daemon.
func CallContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, 30*time.Second)
}
