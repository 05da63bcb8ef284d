// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package integrity provides the hashing primitives for parx: BLAKE3
// chunk hashes and the Merkle root over the dataset's chunk hash
// sequence.
//
// Chunk hashes are computed over the zero-padded chunk_size bytes, so
// the hash of a short final chunk is identical at encode time and at
// verify time regardless of how the tail was read. Parity shards use
// the same function over the shard bytes alone, with no stripe-id
// mixing, so a shard can be verified straight from a volume index
// entry.
package integrity

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest. All parx hashes (chunk, parity
// shard, Merkle node) are this size.
type Hash [32]byte

// Merkle node domain tags. A leaf is hashed as tag 0x00 followed by
// the chunk hash; an internal node as tag 0x01 followed by the two
// child hashes. The tags keep a leaf from ever colliding with an
// internal node over the same bytes.
const (
	tagLeaf     = 0x00
	tagInternal = 0x01
)

// ChunkHash computes the BLAKE3 hash of a chunk. The caller passes
// the full padded chunk_size buffer for data chunks, or the shard
// bytes for parity chunks.
func ChunkHash(padded []byte) Hash {
	return Hash(blake3.Sum256(padded))
}

// MerkleRoot computes the dataset Merkle root over the ordered
// per-chunk hashes. Leaves are hashed with the leaf tag, pairs with
// the internal tag; when a level has an odd number of nodes the last
// node is duplicated. An empty dataset hashes to the leaf-tagged
// empty string, a stable sentinel.
func MerkleRoot(leaves []Hash) Hash {
	if len(leaves) == 0 {
		return Hash(blake3.Sum256([]byte{tagLeaf}))
	}

	level := make([]Hash, len(leaves))
	for i, leaf := range leaves {
		var buf [33]byte
		buf[0] = tagLeaf
		copy(buf[1:], leaf[:])
		level[i] = Hash(blake3.Sum256(buf[:]))
	}

	var buf [65]byte
	buf[0] = tagInternal
	for len(level) > 1 {
		next := make([]Hash, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			copy(buf[1:33], left[:])
			copy(buf[33:], right[:])
			next[i/2] = Hash(blake3.Sum256(buf[:]))
		}
		level = next
	}
	return level[0]
}

// Format returns the canonical lowercase hex representation.
func Format(h Hash) string {
	return hex.EncodeToString(h[:])
}

// Parse decodes a 64-character hex string into a Hash.
func Parse(s string) (Hash, error) {
	var h Hash
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parsing hash: %w", err)
	}
	if len(decoded) != 32 {
		return h, fmt.Errorf("hash is %d bytes, want 32", len(decoded))
	}
	copy(h[:], decoded)
	return h, nil
}
