// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"
)

func exportTestSnapshot(t *testing.T, payload []byte, count int) Snapshot {
	t.Helper()

	items := make([]Item, 0, count)
	digests := make([]Digest, 0, count)
	for i := 0; i < count; i++ {
		item := testItem()
		item.ID = fmt.Sprintf("0d1f7b0a-9c44-4b7e-8a2d-5f6e3c1b9d%02d", i)
		item.Name = fmt.Sprintf("bundle/item-%02d", i)
		item.Payload = payload

		digest, err := ItemDigest(item)
		if err != nil {
			t.Fatalf("ItemDigest: %v", err)
		}
		items = append(items, item)
		digests = append(digests, digest)
	}

	return Snapshot{
		AccountID: items[0].AccountID,
		Revision:  ComputeRevision(digests),
		Items:     items,
		TakenAt:   itemTestEpoch,
	}
}

func TestBundleRoundtrip(t *testing.T) {
	compressible := bytes.Repeat([]byte("rotate-me-"), 200)

	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			snapshot := exportTestSnapshot(t, compressible, 3)

			bundle, err := ExportBundle(snapshot, tag)
			if err != nil {
				t.Fatalf("ExportBundle: %v", err)
			}
			if got := CompressionTag(bundle[4]); got != tag {
				t.Fatalf("header tag = %s, want %s", got, tag)
			}

			decoded, err := DecodeBundle(bundle)
			if err != nil {
				t.Fatalf("DecodeBundle: %v", err)
			}
			if decoded.AccountID != snapshot.AccountID {
				t.Fatalf("account = %s, want %s", decoded.AccountID, snapshot.AccountID)
			}
			if decoded.Revision != snapshot.Revision {
				t.Fatalf("revision = %s, want %s", decoded.Revision, snapshot.Revision)
			}
			if !decoded.TakenAt.Equal(snapshot.TakenAt) {
				t.Fatalf("taken_at = %v, want %v", decoded.TakenAt, snapshot.TakenAt)
			}
			if len(decoded.Items) != len(snapshot.Items) {
				t.Fatalf("item count = %d, want %d", len(decoded.Items), len(snapshot.Items))
			}
			for i, item := range decoded.Items {
				want := snapshot.Items[i]
				if item.ID != want.ID || item.Name != want.Name || item.Kind != want.Kind {
					t.Fatalf("items[%d] = %+v, want %+v", i, item, want)
				}
				if !bytes.Equal(item.Payload, want.Payload) {
					t.Fatalf("items[%d] payload mismatch", i)
				}
				if !item.CreatedAt.Equal(want.CreatedAt) || !item.UpdatedAt.Equal(want.UpdatedAt) {
					t.Fatalf("items[%d] timestamps drifted: %+v vs %+v", i, item, want)
				}
			}
		})
	}
}

func TestBundleCompressionShrinks(t *testing.T) {
	compressible := bytes.Repeat([]byte("rotate-me-"), 200)
	snapshot := exportTestSnapshot(t, compressible, 3)

	plain, err := ExportBundle(snapshot, CompressionNone)
	if err != nil {
		t.Fatalf("ExportBundle (none): %v", err)
	}
	compressed, err := ExportBundle(snapshot, CompressionZstd)
	if err != nil {
		t.Fatalf("ExportBundle (zstd): %v", err)
	}
	if len(compressed) >= len(plain) {
		t.Fatalf("zstd bundle (%d bytes) not smaller than plain bundle (%d bytes)",
			len(compressed), len(plain))
	}
}

func TestBundleFallsBackWhenIncompressible(t *testing.T) {
	// Ciphertext-like payload: seeded random bytes dominate the
	// encoding, so block compression cannot shrink it.
	payload := make([]byte, 4096)
	rand.New(rand.NewSource(42)).Read(payload)
	snapshot := exportTestSnapshot(t, payload, 1)

	bundle, err := ExportBundle(snapshot, CompressionLZ4)
	if err != nil {
		t.Fatalf("ExportBundle: %v", err)
	}
	if got := CompressionTag(bundle[4]); got != CompressionNone {
		t.Fatalf("header tag = %s, want fallback to none", got)
	}

	decoded, err := DecodeBundle(bundle)
	if err != nil {
		t.Fatalf("DecodeBundle: %v", err)
	}
	if !bytes.Equal(decoded.Items[0].Payload, payload) {
		t.Fatal("payload mismatch after fallback roundtrip")
	}
}

func TestDecodeBundleRejectsMalformed(t *testing.T) {
	snapshot := exportTestSnapshot(t, []byte("sealed:tiny"), 1)
	valid, err := ExportBundle(snapshot, CompressionNone)
	if err != nil {
		t.Fatalf("ExportBundle: %v", err)
	}

	wrongMagic := bytes.Clone(valid)
	wrongMagic[0] = 'x'

	unknownTag := bytes.Clone(valid)
	unknownTag[4] = 9

	wrongSize := bytes.Clone(valid)
	wrongSize[8] ^= 0xff

	truncated := valid[:len(valid)-10]

	cases := []struct {
		name   string
		bundle []byte
	}{
		{"empty", nil},
		{"short header", valid[:5]},
		{"wrong magic", wrongMagic},
		{"unknown tag", unknownTag},
		{"size mismatch", wrongSize},
		{"truncated body", truncated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeBundle(tc.bundle); err == nil {
				t.Fatal("malformed bundle accepted")
			}
		})
	}
}

func TestParseCompressionTag(t *testing.T) {
	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		parsed, err := ParseCompressionTag(tag.String())
		if err != nil {
			t.Fatalf("ParseCompressionTag(%s): %v", tag, err)
		}
		if parsed != tag {
			t.Fatalf("ParseCompressionTag(%s) = %s", tag, parsed)
		}
	}

	if _, err := ParseCompressionTag("brotli"); err == nil {
		t.Fatal("expected error for unknown tag name")
	}
	if got := CompressionTag(7).String(); got != "unknown(7)" {
		t.Fatalf("String of unknown tag = %q", got)
	}
}
