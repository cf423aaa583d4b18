// Copyright 2026 The Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/keyfold/keyfold/lib/codec"
)

// CompressionTag identifies the compression applied to a bundle body.
// The tag is stored in the bundle header (1 byte), so these values
// are format constants.
type CompressionTag uint8

const (
	// CompressionNone stores the body uncompressed. Also the
	// fallback when the requested algorithm does not shrink the body.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 applies LZ4 block compression. Fast with a
	// modest ratio; a good default for mostly-ciphertext vaults.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd applies zstd at its default level. Better
	// ratio when item metadata dominates the bundle.
	CompressionZstd CompressionTag = 2
)

// String returns the tag's name.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseCompressionTag parses a tag from its name.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("vault: unknown compression tag: %q", name)
	}
}

// Bundle layout: 4-byte magic, 1-byte compression tag, 4-byte
// big-endian uncompressed body size, then the body.
var bundleMagic = [4]byte{'k', 'f', 'b', '1'}

const bundleHeaderSize = 9

// ExportBundle serializes a snapshot into a portable bundle: a fixed
// header followed by the CBOR-encoded snapshot, compressed per tag.
// If the requested compression does not shrink the encoding, the
// bundle falls back to CompressionNone and the header records that.
func ExportBundle(snapshot Snapshot, tag CompressionTag) ([]byte, error) {
	encoded, err := codec.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("vault: encoding snapshot: %w", err)
	}
	if len(encoded) > math.MaxUint32 {
		return nil, fmt.Errorf("vault: snapshot too large to bundle: %d bytes", len(encoded))
	}

	body, err := compressBody(encoded, tag)
	if isIncompressible(err) {
		body, tag = encoded, CompressionNone
	} else if err != nil {
		return nil, err
	}

	bundle := make([]byte, 0, bundleHeaderSize+len(body))
	bundle = append(bundle, bundleMagic[:]...)
	bundle = append(bundle, byte(tag))
	bundle = binary.BigEndian.AppendUint32(bundle, uint32(len(encoded)))
	return append(bundle, body...), nil
}

// DecodeBundle parses a bundle back into a snapshot. The header's
// uncompressed size must match the decompressed body exactly.
func DecodeBundle(bundle []byte) (Snapshot, error) {
	if len(bundle) < bundleHeaderSize {
		return Snapshot{}, fmt.Errorf("vault: bundle too short: %d bytes", len(bundle))
	}
	if !bytes.Equal(bundle[:4], bundleMagic[:]) {
		return Snapshot{}, fmt.Errorf("vault: not a keyfold bundle")
	}

	tag := CompressionTag(bundle[4])
	size := int(binary.BigEndian.Uint32(bundle[5:9]))
	body := bundle[bundleHeaderSize:]

	encoded, err := decompressBody(body, tag, size)
	if err != nil {
		return Snapshot{}, err
	}

	var snapshot Snapshot
	if err := codec.Unmarshal(encoded, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("vault: decoding snapshot: %w", err)
	}
	return snapshot, nil
}

func compressBody(data []byte, tag CompressionTag) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		return compressLZ4(data)
	case CompressionZstd:
		return compressZstd(data)
	default:
		return nil, fmt.Errorf("vault: unsupported compression tag: %d", tag)
	}
}

func decompressBody(body []byte, tag CompressionTag, uncompressedSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(body) != uncompressedSize {
			return nil, fmt.Errorf("vault: uncompressed body: size %d does not match expected %d",
				len(body), uncompressedSize)
		}
		return body, nil
	case CompressionLZ4:
		return decompressLZ4(body, uncompressedSize)
	case CompressionZstd:
		return decompressZstd(body, uncompressedSize)
	default:
		return nil, fmt.Errorf("vault: unsupported compression tag: %d", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	destination := make([]byte, bound)

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("vault: lz4 compress: %w", err)
	}

	// CompressBlock returns 0 when it decides the data is
	// incompressible. The size check also catches output that
	// technically compressed but grew.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}

	return destination[:written], nil
}

func decompressLZ4(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, uncompressedSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("vault: lz4 decompress: %w", err)
	}
	if read != uncompressedSize {
		return nil, fmt.Errorf("vault: lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
	}
	return destination, nil
}

// zstdEncoder and zstdDecoder are reused across calls. Both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("vault: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("vault: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, 0, uncompressedSize)
	result, err := zstdDecoder.DecodeAll(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("vault: zstd decompress: %w", err)
	}
	if len(result) != uncompressedSize {
		return nil, fmt.Errorf("vault: zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
	}
	return result, nil
}

// errIncompressible signals that compression would not shrink the
// body. ExportBundle falls back to CompressionNone.
var errIncompressible = fmt.Errorf("vault: data is incompressible")

func isIncompressible(err error) bool {
	return err == errIncompressible
}
