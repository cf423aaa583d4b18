// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/keyfold/keyfold/lib/codec"
	"github.com/keyfold/keyfold/lib/protocol"
	"github.com/keyfold/keyfold/lib/socket"
)

// handleWatch is the streaming handler for the "watch" action. Each
// connection subscribes to the gate, and the subscription holds
// demand for its lifetime: the first watcher is what makes the gate
// live, and the last watcher disconnecting is what lets it go idle.
//
// The stream stays open until the client disconnects or the daemon
// shuts down. While no account is active the stream is silent except
// for heartbeats. An error frame ends the current observation but not
// the stream: the daemon opens a fresh observation on the next
// account transition and snapshots resume on the same connection.
// Clients detect dropped snapshots by revision discontinuity and
// re-list to resync.
func (d *Daemon) handleWatch(ctx context.Context, _ []byte, conn net.Conn) {
	// Subscribe BEFORE sending the ack. This guarantees no snapshots
	// are missed between the client receiving the ack and the
	// subscription being active: by the time the client sees the ack,
	// the gate is already live and forwarding to this subscriber.
	subscription := d.gate.Subscribe()
	defer subscription.Cancel()

	d.watcherMu.Lock()
	d.watchers++
	d.watcherMu.Unlock()

	defer func() {
		d.watcherMu.Lock()
		d.watchers--
		d.watcherMu.Unlock()

		if dropped := subscription.Dropped(); dropped > 0 {
			d.logger.Warn("watch stream ended with dropped snapshots", "dropped", dropped)
		} else {
			d.logger.Info("watch stream ended")
		}
	}()

	encoder := codec.NewEncoder(conn)
	if err := encoder.Encode(socket.Response{OK: true}); err != nil {
		d.logger.Debug("watch: failed to write ready signal", "error", err)
		return
	}

	d.logger.Info("watch stream started")

	// Close the connection on context cancellation to unblock the
	// reader goroutine's blocking decode.
	handlerDone := make(chan struct{})
	defer close(handlerDone)

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-handlerDone:
		}
	}()

	// Watch clients send nothing after the request; the reader exists
	// to detect disconnection while the handler blocks on gate events.
	readerDone := make(chan error, 1)
	go func() {
		readerDone <- drainUntilClose(conn)
	}()

	heartbeatTicker := d.clock.NewTicker(d.config.Heartbeat())
	defer heartbeatTicker.Stop()

	for {
		select {
		case event := <-subscription.Events():
			frame := protocol.WatchFrame{Type: protocol.FrameSnapshot, Snapshot: &event.Value}
			if event.Err != nil {
				frame = protocol.WatchFrame{Type: protocol.FrameError, Message: event.Err.Error()}
			}
			if err := encoder.Encode(frame); err != nil {
				d.logger.Debug("watch: failed to write frame", "error", err)
				return
			}

		case <-heartbeatTicker.C:
			if err := encoder.Encode(protocol.WatchFrame{Type: protocol.FrameHeartbeat}); err != nil {
				d.logger.Debug("watch: failed to write heartbeat", "error", err)
				return
			}

		case err := <-readerDone:
			if err != nil && ctx.Err() == nil {
				d.logger.Debug("watch: client read error", "error", err)
			}
			return

		case <-ctx.Done():
			return
		}
	}
}

// drainUntilClose reads and discards client bytes until the
// connection closes. Returns nil when the connection is closed
// cleanly (EOF or closed socket); returns the error for any other
// decode failure.
func drainUntilClose(conn net.Conn) error {
	decoder := codec.NewDecoder(conn)
	for {
		var discard codec.RawMessage
		if err := decoder.Decode(&discard); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if opError := (*net.OpError)(nil); errors.As(err, &opError) && opError.Err.Error() == "use of closed network connection" {
				return nil
			}
			return err
		}
	}
}
