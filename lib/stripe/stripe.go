// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package stripe plans the grouping of data chunks into Reed-Solomon
// stripes and the placement of parity chunks across volumes.
//
// A stripe is a flat shard set: K data slots followed by M parity
// slots. The last stripe may hold fewer than K real chunks; the empty
// slots are treated as all-zero chunks for the RS math, so every
// stripe is encoded and decoded with the same (K, M) geometry.
package stripe

import (
	"github.com/bureau-foundation/parx/lib/dataset"
	"github.com/bureau-foundation/parx/lib/parxerr"
	"github.com/bureau-foundation/parx/lib/rscodec"
)

// Layout is the full stripe plan for a dataset.
type Layout struct {
	// K is the data shard count per stripe.
	K int

	// M is the parity shard count per stripe, ceil(K*parity_pct/100).
	M int

	// TotalChunks is N, the dataset's global chunk count.
	TotalChunks int64

	// StripeCount is ceil(N/K).
	StripeCount int64

	// Permutation maps stripe-order position p to the global chunk
	// index occupying it. Nil in sequential mode (identity).
	Permutation []int64

	// inverse maps global chunk index to stripe-order position.
	// Built by SetPermutation together with Permutation.
	inverse []int64
}

// New builds a sequential layout. Interleave (or SetPermutation on
// the load path) switches it to interleaved mode, where the
// permutation draws chunks round-robin across the file table so one
// stripe's data chunks span many files; the permutation is recorded
// in the manifest and inverted by SetPermutation for verify/repair.
func New(files []dataset.File, k, parityPct int) (*Layout, error) {
	if k < 1 || k > rscodec.MaxShards {
		return nil, parxerr.Errorf(parxerr.KindConfig, "stripe k must be in [1, %d], got %d", rscodec.MaxShards, k)
	}
	m := rscodec.ParityCount(k, parityPct)
	if k+m > rscodec.MaxShards {
		return nil, parxerr.Errorf(parxerr.KindConfig,
			"k=%d with parity %d%% needs %d shards per stripe, max is %d", k, parityPct, k+m, rscodec.MaxShards)
	}

	total := dataset.TotalChunks(files)
	return &Layout{
		K:           k,
		M:           m,
		TotalChunks: total,
		StripeCount: (total + int64(k) - 1) / int64(k),
	}, nil
}

// Interleave installs the round-robin permutation over the file
// table: pass 0 takes chunk 0 of every file in table order, pass 1
// takes chunk 1, and so on. Files shorter than the current pass drop
// out; the result is a bijection over [0, N).
func (l *Layout) Interleave(files []dataset.File) {
	perm := make([]int64, 0, l.TotalChunks)
	for pass := int64(0); int64(len(perm)) < l.TotalChunks; pass++ {
		for _, f := range files {
			if pass < f.ChunkCount {
				perm = append(perm, f.FirstChunk+pass)
			}
		}
	}
	l.SetPermutation(perm)
}

// SetPermutation installs a recorded permutation (manifest load
// path) and builds its inverse.
func (l *Layout) SetPermutation(perm []int64) {
	if perm == nil {
		l.Permutation = nil
		l.inverse = nil
		return
	}
	l.Permutation = perm
	l.inverse = make([]int64, len(perm))
	for position, global := range perm {
		l.inverse[global] = int64(position)
	}
}

// ChunkAt returns the global chunk index at stripe-order position p,
// or -1 when p is past the dataset (an all-zero slot in the final
// stripe).
func (l *Layout) ChunkAt(position int64) int64 {
	if position >= l.TotalChunks {
		return -1
	}
	if l.Permutation == nil {
		return position
	}
	return l.Permutation[position]
}

// PositionOf returns the stripe-order position of a global chunk.
func (l *Layout) PositionOf(global int64) int64 {
	if l.Permutation == nil {
		return global
	}
	return l.inverse[global]
}

// StripeOf returns the stripe id and data-slot index of a global
// chunk.
func (l *Layout) StripeOf(global int64) (stripeID int64, slot int) {
	position := l.PositionOf(global)
	return position / int64(l.K), int(position % int64(l.K))
}

// DataChunks returns the global chunk indices of stripe s, one per
// occupied slot (the final stripe may return fewer than K).
func (l *Layout) DataChunks(s int64) []int64 {
	start := s * int64(l.K)
	end := min(start+int64(l.K), l.TotalChunks)
	if start >= end {
		return nil
	}
	chunks := make([]int64, 0, end-start)
	for p := start; p < end; p++ {
		chunks = append(chunks, l.ChunkAt(p))
	}
	return chunks
}

// SlotCount returns k_s, the number of occupied data slots in
// stripe s.
func (l *Layout) SlotCount(s int64) int {
	start := s * int64(l.K)
	end := min(start+int64(l.K), l.TotalChunks)
	if end <= start {
		return 0
	}
	return int(end - start)
}

// AssignVolumes places every parity chunk (stripe s, parity index j)
// into a volume. With no size targets the round-robin rule applies:
// volume (s*M + j) mod V, which spreads each stripe's
// parity so losing one volume costs at most ceil(M/V) parity chunks
// per stripe. With size targets, placement walks (s, j) in order and
// rolls to the next volume when the current one would exceed its
// target after the next chunk; targets are upper bounds and the last
// volume absorbs overflow.
//
// The result is indexed assignment[s][j] = volume id and is recorded
// in the manifest: readers always consult the recorded assignment,
// never the formula.
func (l *Layout) AssignVolumes(volumes int, targets []int64, chunkSize int) ([][]int, error) {
	if volumes < 1 {
		return nil, parxerr.Errorf(parxerr.KindConfig, "volume count must be ≥ 1, got %d", volumes)
	}
	if len(targets) > 0 && len(targets) != volumes {
		return nil, parxerr.Errorf(parxerr.KindConfig,
			"%d volume size targets for %d volumes", len(targets), volumes)
	}

	assignment := make([][]int, l.StripeCount)
	if l.M == 0 {
		for s := range assignment {
			assignment[s] = []int{}
		}
		return assignment, nil
	}

	if len(targets) == 0 {
		for s := int64(0); s < l.StripeCount; s++ {
			row := make([]int, l.M)
			for j := 0; j < l.M; j++ {
				row[j] = int((s*int64(l.M) + int64(j)) % int64(volumes))
			}
			assignment[s] = row
		}
		return assignment, nil
	}

	volume := 0
	var used int64
	for s := int64(0); s < l.StripeCount; s++ {
		row := make([]int, l.M)
		for j := 0; j < l.M; j++ {
			if volume < volumes-1 && used+int64(chunkSize) > targets[volume] {
				volume++
				used = 0
			}
			row[j] = volume
			used += int64(chunkSize)
		}
		assignment[s] = row
	}
	return assignment, nil
}
