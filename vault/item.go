// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/zeebo/blake3"

	"github.com/keyfold/keyfold/lib/codec"
	"github.com/keyfold/keyfold/session"
)

// Kind classifies what an item's payload decrypts to. Kinds affect
// how clients render and validate an item; the store treats all kinds
// identically.
type Kind string

const (
	KindPassword Kind = "password"
	KindNote     Kind = "note"
	KindKeyPair  Kind = "keypair"
	KindToken    Kind = "token"
)

// ParseKind parses a kind from its string form.
func ParseKind(name string) (Kind, error) {
	kind := Kind(name)
	if !kind.Valid() {
		return "", fmt.Errorf("vault: unknown item kind: %q", name)
	}
	return kind, nil
}

// Valid reports whether the kind is one of the defined constants.
func (k Kind) Valid() bool {
	switch k {
	case KindPassword, KindNote, KindKeyPair, KindToken:
		return true
	}
	return false
}

// Item is one stored secret. Payload is ciphertext produced by the
// client SDK; the store persists it byte for byte and never inspects
// it. ID is assigned by the store on first Put. Name is the lookup
// key clients use and is unique within an account.
type Item struct {
	ID        string            `json:"id"`
	AccountID session.AccountID `json:"account_id"`
	Kind      Kind              `json:"kind"`
	Name      string            `json:"name"`
	Payload   []byte            `json:"payload"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (item Item) validate() error {
	if item.AccountID == "" {
		return fmt.Errorf("vault: item account is required")
	}
	if !item.Kind.Valid() {
		return fmt.Errorf("vault: unknown item kind: %q", item.Kind)
	}
	if item.Name == "" {
		return fmt.Errorf("vault: item name is required")
	}
	if len(item.Payload) == 0 {
		return fmt.Errorf("vault: item payload is required")
	}
	return nil
}

// Digest is a 32-byte BLAKE3 keyed digest of an item's canonical
// encoding. Digests are stored next to items so account revisions can
// be recomputed without decoding payloads.
type Digest [32]byte

// String returns the digest as lowercase hex.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// domainKey is a 32-byte key for BLAKE3 keyed hashing. Separate keys
// per context keep item digests and account revisions from ever
// colliding even over identical input bytes. The byte values are the
// ASCII encoding of the domain name, zero-padded to 32 bytes, so the
// keys stay readable in hex dumps.
type domainKey [32]byte

// Domain separation keys. Fixed format constants; changing one
// invalidates every digest in its domain.
var (
	itemDomainKey = domainKey{
		'k', 'e', 'y', 'f', 'o', 'l', 'd', '.', 'v', 'a', 'u', 'l', 't', '.',
		'i', 't', 'e', 'm', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	revisionDomainKey = domainKey{
		'k', 'e', 'y', 'f', 'o', 'l', 'd', '.', 'v', 'a', 'u', 'l', 't', '.',
		'r', 'e', 'v', 'i', 's', 'i', 'o', 'n', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// ItemDigest computes the item-domain digest over the item's
// canonical encoding. Every field participates, so any change to an
// item (including a metadata touch that only moves UpdatedAt)
// produces a new digest and therefore a new account revision.
func ItemDigest(item Item) (Digest, error) {
	encoded, err := codec.Marshal(item)
	if err != nil {
		return Digest{}, fmt.Errorf("vault: encoding item %s: %w", item.ID, err)
	}
	return Digest(keyedHash(itemDomainKey, encoded)), nil
}

func keyedHash(key domainKey, data []byte) [32]byte {
	// NewKeyed only fails for a wrong key length, which domainKey's
	// fixed size rules out.
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("vault: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)

	var digest [32]byte
	copy(digest[:], hasher.Sum(nil))
	return digest
}
