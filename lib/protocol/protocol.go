// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the CBOR shapes exchanged between keyfoldd
// and its clients. The daemon encodes these as action responses and
// stream frames; the CLI decodes them. Requests travel as flat CBOR
// maps (see lib/socket), so only responses and frames need shared
// types.
//
// Types carry both cbor and json tags: cbor is the wire encoding,
// json serves --json CLI output and matches the wire field names.
package protocol

import (
	"github.com/keyfold/keyfold/session"
	"github.com/keyfold/keyfold/stream"
	"github.com/keyfold/keyfold/vault"
)

// Frame type discriminators for the "watch" and "export" streams.
const (
	// FrameSnapshot carries a vault snapshot on a watch stream.
	FrameSnapshot = "snapshot"

	// FrameHeartbeat is a keepalive on a watch stream. Lets clients
	// detect a dead daemon while the vault is quiet.
	FrameHeartbeat = "heartbeat"

	// FrameError reports an observation failure on a watch stream.
	// The stream itself stays open; snapshots resume after the next
	// account transition.
	FrameError = "error"

	// FrameChunk carries a slice of bundle bytes on an export stream.
	FrameChunk = "chunk"

	// FrameDone ends an export stream with the bundle summary.
	FrameDone = "done"
)

// Status is the response to the "status" action. Items and
// ActiveAccount are zero while no account is active.
type Status struct {
	Version       string  `cbor:"version" json:"version"`
	UptimeSeconds float64 `cbor:"uptime_seconds" json:"uptime_seconds"`

	Accounts      int    `cbor:"accounts" json:"accounts"`
	ActiveAccount string `cbor:"active_account,omitempty" json:"active_account,omitempty"`
	Items         int    `cbor:"items" json:"items"`

	Watchers      int    `cbor:"watchers" json:"watchers"`
	ExportsServed uint64 `cbor:"exports_served" json:"exports_served"`

	Gate stream.GateStats `cbor:"gate" json:"gate"`
}

// AccountList is the response to the "account.list" action.
type AccountList struct {
	Accounts []session.Account `cbor:"accounts" json:"accounts"`
	Active   string            `cbor:"active,omitempty" json:"active,omitempty"`
}

// AccountRemoved is the response to the "account.remove" action.
// Purged is the number of vault items deleted with the account.
type AccountRemoved struct {
	ID     string `cbor:"id" json:"id"`
	Purged int    `cbor:"purged" json:"purged"`
}

// ItemList is the response to the "item.list" action. Revision
// identifies the exact item set; two clients holding the same
// revision hold the same items.
type ItemList struct {
	Revision vault.Revision `cbor:"revision" json:"revision"`
	Items    []vault.Item   `cbor:"items" json:"items"`
}

// ItemDeleted is the response to the "item.delete" action.
type ItemDeleted struct {
	ID   string `cbor:"id" json:"id"`
	Name string `cbor:"name" json:"name"`
}

// WatchFrame is one frame on a "watch" stream. Type selects which of
// the remaining fields is meaningful: FrameSnapshot fills Snapshot,
// FrameError fills Message, FrameHeartbeat fills neither.
type WatchFrame struct {
	Type     string          `cbor:"type" json:"type"`
	Snapshot *vault.Snapshot `cbor:"snapshot,omitempty" json:"snapshot,omitempty"`
	Message  string          `cbor:"message,omitempty" json:"message,omitempty"`
}

// ExportFrame is one frame on an "export" stream: FrameChunk frames
// carry bundle bytes in order, and the final FrameDone frame carries
// the summary the client verifies the reassembled bundle against.
type ExportFrame struct {
	Type string         `cbor:"type" json:"type"`
	Data []byte         `cbor:"data,omitempty" json:"data,omitempty"`
	Done *ExportSummary `cbor:"done,omitempty" json:"done,omitempty"`
}

// ExportSummary describes a complete export bundle.
type ExportSummary struct {
	Size     int            `cbor:"size" json:"size"`
	Items    int            `cbor:"items" json:"items"`
	Revision vault.Revision `cbor:"revision" json:"revision"`
}
