// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package session tracks the set of signed-in accounts and which one
// is active. The active account is published as a
// stream.Value[stream.Option[AccountID]], which the daemon wires into
// its vault gate as the identity input: switching accounts restarts
// the vault observation, deactivating idles it.
//
// The registry holds metadata only. Credentials and vault contents
// live elsewhere; an Account here is an identity the daemon may
// observe, nothing more.
package session
