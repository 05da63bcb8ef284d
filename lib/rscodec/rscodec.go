// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rscodec wraps the systematic Reed-Solomon codec used for
// stripe parity. Each stripe is a flat shard set: K data shards
// followed by M parity shards, all exactly chunk_size bytes. Any K
// surviving shards reconstruct the rest.
package rscodec

import (
	"fmt"

	"github.com/klauspost/reedsolomon"

	"github.com/bureau-foundation/parx/lib/parxerr"
)

// MaxShards bounds K+M. GF(2^8) supports 255 usable shard positions.
const MaxShards = 255

// Codec encodes and reconstructs one stripe geometry. A Codec is
// immutable and safe for concurrent use; encode buffers are owned by
// the caller.
type Codec struct {
	k     int
	m     int
	inner reedsolomon.Encoder
}

// New validates the stripe geometry and builds the codec. M may be
// zero (parity disabled), in which case Encode returns no shards and
// Reconstruct requires all data shards present.
func New(k, m int) (*Codec, error) {
	if k < 1 || k > MaxShards {
		return nil, parxerr.Errorf(parxerr.KindConfig, "stripe k must be in [1, %d], got %d", MaxShards, k)
	}
	if m < 0 || k+m > MaxShards {
		return nil, parxerr.Errorf(parxerr.KindConfig, "k+m must be in [1, %d], got k=%d m=%d", MaxShards, k, m)
	}

	c := &Codec{k: k, m: m}
	if m > 0 {
		inner, err := reedsolomon.New(k, m)
		if err != nil {
			return nil, parxerr.E(parxerr.KindInternal, fmt.Errorf("reedsolomon init (k=%d, m=%d): %w", k, m, err))
		}
		c.inner = inner
	}
	return c, nil
}

// K returns the data shard count.
func (c *Codec) K() int { return c.k }

// M returns the parity shard count.
func (c *Codec) M() int { return c.m }

// Encode computes the M parity shards for one stripe. data must hold
// exactly K shards of equal length. The returned parity shards are
// newly allocated and the same length as the data shards.
func (c *Codec) Encode(data [][]byte) ([][]byte, error) {
	if len(data) != c.k {
		return nil, parxerr.Errorf(parxerr.KindInternal, "encode: got %d data shards, want %d", len(data), c.k)
	}
	if c.m == 0 {
		return nil, nil
	}

	shardSize := len(data[0])
	shards := make([][]byte, c.k+c.m)
	copy(shards, data)
	for i := c.k; i < c.k+c.m; i++ {
		shards[i] = make([]byte, shardSize)
	}

	if err := c.inner.Encode(shards); err != nil {
		return nil, parxerr.E(parxerr.KindInternal, fmt.Errorf("rs encode: %w", err))
	}
	return shards[c.k:], nil
}

// Reconstruct fills in the missing (nil) shards of a stripe in
// place. shards must hold K+M entries; present shards must all be
// the same length. Fails with parxerr.ErrInsufficientShards when
// fewer than K shards are present.
func (c *Codec) Reconstruct(shards [][]byte) error {
	if len(shards) != c.k+c.m {
		return parxerr.Errorf(parxerr.KindInternal, "reconstruct: got %d shards, want %d", len(shards), c.k+c.m)
	}

	present := 0
	for _, s := range shards {
		if s != nil {
			present++
		}
	}
	if present < c.k {
		return parxerr.E(parxerr.KindCodec,
			fmt.Errorf("%d of %d shards present, need %d: %w", present, c.k+c.m, c.k, parxerr.ErrInsufficientShards))
	}

	if c.m == 0 {
		// All K data shards are present by the check above; nothing
		// to rebuild.
		return nil
	}

	if err := c.inner.Reconstruct(shards); err != nil {
		return parxerr.E(parxerr.KindCodec, fmt.Errorf("rs reconstruct: %w", err))
	}
	return nil
}

// Verify re-encodes the data shards and checks the parity shards
// match. All K+M shards must be present.
func (c *Codec) Verify(shards [][]byte) (bool, error) {
	if c.m == 0 {
		return true, nil
	}
	ok, err := c.inner.Verify(shards)
	if err != nil {
		return false, parxerr.E(parxerr.KindCodec, fmt.Errorf("rs verify: %w", err))
	}
	return ok, nil
}

// ParityCount returns M for a given K and parity percentage:
// ceil(K * pct / 100). A zero percentage disables parity.
func ParityCount(k int, parityPct int) int {
	if parityPct <= 0 {
		return 0
	}
	return (k*parityPct + 99) / 100
}
