// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package vault stores encrypted secret items and publishes a live
// revision per account.
//
// Items are opaque ciphertext blobs with a small amount of plaintext
// metadata (kind, name, timestamps). The store never sees item
// plaintext; encryption happens in the client SDK before items reach
// this package. Each account's item set folds into a 32-byte revision
// that changes exactly when the set changes, and the store exposes
// that revision as a stream.Value so observers follow mutations
// without polling. Feed adapts the revision cell into the snapshot
// stream factory that the daemon's gate activates per account.
package vault
