// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"net"

	"github.com/keyfold/keyfold/lib/codec"
	"github.com/keyfold/keyfold/lib/protocol"
	"github.com/keyfold/keyfold/lib/socket"
	"github.com/keyfold/keyfold/vault"
)

// exportChunkSize is how much bundle data each chunk frame carries.
// Bundles are usually a handful of chunks; the size keeps any single
// CBOR frame well under the client's response limit.
const exportChunkSize = 64 * 1024

// exportRequest selects the bundle compression. An empty value uses
// the daemon's configured default.
type exportRequest struct {
	Compression string `cbor:"compression,omitempty"`
}

// handleExport is the streaming handler for the "export" action. It
// snapshots the active account's vault, encodes it as a bundle, and
// streams the bundle in chunks. The snapshot is taken before the ack,
// so a client that sees the ack knows the export is of a single
// consistent revision.
func (d *Daemon) handleExport(ctx context.Context, raw []byte, conn net.Conn) {
	encoder := codec.NewEncoder(conn)

	var request exportRequest
	if err := decodeRequest(raw, &request); err != nil {
		encoder.Encode(socket.Response{Error: err.Error()})
		return
	}

	account, err := d.activeAccount()
	if err != nil {
		encoder.Encode(socket.Response{Error: err.Error()})
		return
	}

	compression := request.Compression
	if compression == "" {
		compression = d.config.Vault.ExportCompression
	}
	tag, err := vault.ParseCompressionTag(compression)
	if err != nil {
		encoder.Encode(socket.Response{Error: err.Error()})
		return
	}

	snapshot, err := d.store.Snapshot(ctx, account.ID)
	if err != nil {
		encoder.Encode(socket.Response{Error: err.Error()})
		return
	}
	bundle, err := vault.ExportBundle(snapshot, tag)
	if err != nil {
		encoder.Encode(socket.Response{Error: err.Error()})
		return
	}

	if err := encoder.Encode(socket.Response{OK: true}); err != nil {
		d.logger.Debug("export: failed to write ready signal", "error", err)
		return
	}

	// Close the connection on context cancellation so a stalled
	// write cannot pin shutdown.
	handlerDone := make(chan struct{})
	defer close(handlerDone)

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-handlerDone:
		}
	}()

	for offset := 0; offset < len(bundle); offset += exportChunkSize {
		end := min(offset+exportChunkSize, len(bundle))
		frame := protocol.ExportFrame{Type: protocol.FrameChunk, Data: bundle[offset:end]}
		if err := encoder.Encode(frame); err != nil {
			d.logger.Debug("export: failed to write chunk", "error", err)
			return
		}
	}

	summary := &protocol.ExportSummary{
		Size:     len(bundle),
		Items:    len(snapshot.Items),
		Revision: snapshot.Revision,
	}
	if err := encoder.Encode(protocol.ExportFrame{Type: protocol.FrameDone, Done: summary}); err != nil {
		d.logger.Debug("export: failed to write summary", "error", err)
		return
	}

	d.exportsServed.Add(1)
	d.logger.Info("export served",
		"account", account.ID,
		"items", len(snapshot.Items),
		"bytes", len(bundle),
		"compression", tag.String(),
	)
}
