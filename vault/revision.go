// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
)

// Revision identifies the exact state of one account's item set. Two
// vaults hold the same items if and only if their revisions match, so
// clients compare revisions to decide whether a sync is needed. The
// zero Revision is the revision of an account with no items.
type Revision [32]byte

// ComputeRevision folds a set of item digests into an account
// revision. Digests are sorted before hashing, so the revision does
// not depend on the order items were read from storage.
func ComputeRevision(digests []Digest) Revision {
	if len(digests) == 0 {
		return Revision{}
	}

	sorted := make([]Digest, len(digests))
	copy(sorted, digests)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})

	payload := make([]byte, 0, len(sorted)*32)
	for _, digest := range sorted {
		payload = append(payload, digest[:]...)
	}
	return Revision(keyedHash(revisionDomainKey, payload))
}

// IsZero reports whether the revision is the empty-account revision.
func (r Revision) IsZero() bool {
	return r == Revision{}
}

// String returns the revision as lowercase hex.
func (r Revision) String() string {
	return hex.EncodeToString(r[:])
}

// Short returns the first 12 hex characters of the revision, enough
// to tell revisions apart in command output.
func (r Revision) Short() string {
	return r.String()[:12]
}

// MarshalText encodes the revision as hex. Revisions travel inside
// CBOR snapshots and protocol responses as text.
func (r Revision) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes a hex revision.
func (r *Revision) UnmarshalText(text []byte) error {
	parsed, err := ParseRevision(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRevision parses a revision from its hex form.
func ParseRevision(s string) (Revision, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Revision{}, fmt.Errorf("vault: invalid revision %q: %w", s, err)
	}
	if len(raw) != len(Revision{}) {
		return Revision{}, fmt.Errorf("vault: invalid revision length: %d bytes", len(raw))
	}
	return Revision(raw), nil
}
