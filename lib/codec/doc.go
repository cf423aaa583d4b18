// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides keyfold's standard CBOR encoding configuration.
//
// Keyfold uses two serialization formats with a clear boundary:
//
//   - CBOR for the daemon socket protocol and export bundles.
//   - JSON for human-facing surfaces: CLI --json output and the
//     hand-authored item definition files (JSONC, see lib/itemdef).
//
// This package holds the shared CBOR modes so every package encodes
// identically. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. The same logical value always produces the
// same bytes, which matters because vault digests are computed over
// encoded items.
//
// Buffer-oriented use:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Stream-oriented use (socket connections):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Protocol types carry `json` struct tags only. fxamacker/cbor reads
// `json` tags when `cbor` tags are absent, so one tag controls field
// naming and omitempty for both formats, and every socket type stays
// printable by the CLI without a second tag set.
package codec
