// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package socket implements the CBOR-over-Unix-socket protocol spoken
// between the keyfold daemon and its clients.
//
// Requests are single CBOR maps carrying an "action" field plus
// action-specific fields. Plain actions are one request-response per
// connection: the server decodes the request, dispatches to the
// registered handler, writes a Response envelope, and closes. Stream
// actions keep the connection open: after the request, the handler
// writes an acknowledgment envelope followed by CBOR frames until the
// client disconnects or the daemon shuts down.
//
// CBOR is self-delimiting, so neither direction needs a framing
// protocol. The protocol carries no authentication: the socket file's
// permissions are the access boundary, which for a per-user daemon
// under ~/.keyfold means the owning user.
package socket
