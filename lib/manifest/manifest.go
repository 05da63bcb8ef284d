// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest defines the dataset descriptor written alongside
// the parity volumes. The manifest is self-sufficient for verify and
// repair planning: file table, per-chunk hashes, Merkle root, stripe
// layout, and the interleave permutation all live here, so no volume
// needs to be opened until shards are actually read.
//
// The format is versioned JSON, written atomically and immutable
// thereafter: repair rewrites dataset files, never the manifest.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/bureau-foundation/parx/lib/atomicfile"
	"github.com/bureau-foundation/parx/lib/dataset"
	"github.com/bureau-foundation/parx/lib/integrity"
	"github.com/bureau-foundation/parx/lib/parxerr"
	"github.com/bureau-foundation/parx/lib/stripe"
)

// Version is the manifest schema version this build reads and
// writes.
const Version = 1

// FileName is the manifest's name within the parity directory.
const FileName = "manifest.json"

// StripeInfo records one stripe's geometry and parity placement.
type StripeInfo struct {
	// Slots is k_s, the number of occupied data slots (< K only in
	// the final stripe).
	Slots int `json:"slots"`

	// Parity is m_s, the parity chunk count.
	Parity int `json:"parity"`

	// Volumes maps parity index j to the volume id holding that
	// chunk. Readers always use this recorded assignment.
	Volumes []int `json:"volumes"`
}

// Manifest is the global dataset descriptor.
type Manifest struct {
	Version     int            `json:"version"`
	Created     string         `json:"created"`
	ChunkSize   int            `json:"chunk_size"`
	StripeK     int            `json:"stripe_k"`
	ParityPct   int            `json:"parity_pct"`
	Interleave  bool           `json:"interleave"`
	TotalBytes  int64          `json:"total_bytes"`
	TotalChunks int64          `json:"total_chunks"`
	Files       []dataset.File `json:"files"`

	// ChunkHashes holds the hex BLAKE3 of every chunk's padded
	// bytes, indexed by global chunk index.
	ChunkHashes []string `json:"chunk_hashes"`

	// MerkleRoot is the hex root over ChunkHashes.
	MerkleRoot string `json:"merkle_root"`

	// Volumes is the volume count V.
	Volumes int `json:"volumes"`

	// Stripes is indexed by stripe id.
	Stripes []StripeInfo `json:"stripes"`

	// Permutation is the interleave permutation (stripe-order
	// position to global chunk index). Present only when Interleave
	// is set.
	Permutation []int64 `json:"permutation,omitempty"`
}

// New assembles a manifest from the encode pipeline's outputs.
func New(files []dataset.File, layout *stripe.Layout, assignment [][]int, chunkSize, parityPct, volumes int, hashes []integrity.Hash, root integrity.Hash) *Manifest {
	m := &Manifest{
		Version:     Version,
		Created:     time.Now().UTC().Format(time.RFC3339),
		ChunkSize:   chunkSize,
		StripeK:     layout.K,
		ParityPct:   parityPct,
		Interleave:  layout.Permutation != nil,
		TotalBytes:  dataset.TotalBytes(files),
		TotalChunks: layout.TotalChunks,
		Files:       files,
		MerkleRoot:  integrity.Format(root),
		Volumes:     volumes,
		Permutation: layout.Permutation,
	}
	m.ChunkHashes = make([]string, len(hashes))
	for i, h := range hashes {
		m.ChunkHashes[i] = integrity.Format(h)
	}
	m.Stripes = make([]StripeInfo, layout.StripeCount)
	for s := int64(0); s < layout.StripeCount; s++ {
		m.Stripes[s] = StripeInfo{
			Slots:   layout.SlotCount(s),
			Parity:  layout.M,
			Volumes: assignment[s],
		}
	}
	return m
}

// Write serializes the manifest atomically to path.
func (m *Manifest) Write(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return parxerr.E(parxerr.KindInternal, err).WithOp("encode-manifest")
	}
	return atomicfile.WriteFile(path, append(data, '\n'), 0o644)
}

// Load reads and validates a manifest.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, parxerr.E(parxerr.KindInput, err).WithOp("read-manifest").WithPath(path)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, parxerr.E(parxerr.KindData, fmt.Errorf("manifest parse: %w", err)).WithPath(path)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest's internal invariants.
func (m *Manifest) Validate() error {
	if m.Version != Version {
		return parxerr.Errorf(parxerr.KindData, "manifest version %d not supported (want %d)", m.Version, Version)
	}
	if m.ChunkSize <= 0 {
		return parxerr.Errorf(parxerr.KindData, "invalid chunk size %d", m.ChunkSize)
	}
	if m.StripeK < 1 {
		return parxerr.Errorf(parxerr.KindData, "invalid stripe k %d", m.StripeK)
	}
	if m.Volumes < 1 {
		return parxerr.Errorf(parxerr.KindData, "invalid volume count %d", m.Volumes)
	}

	var totalBytes, totalChunks int64
	next := int64(0)
	for i, f := range m.Files {
		if f.FirstChunk != next {
			return parxerr.Errorf(parxerr.KindData,
				"file %d (%s): first chunk %d, expected %d", i, f.Path, f.FirstChunk, next)
		}
		want := (f.Length + int64(m.ChunkSize) - 1) / int64(m.ChunkSize)
		if f.ChunkCount != want {
			return parxerr.Errorf(parxerr.KindData,
				"file %d (%s): chunk count %d, expected %d", i, f.Path, f.ChunkCount, want)
		}
		totalBytes += f.Length
		totalChunks += f.ChunkCount
		next += f.ChunkCount
	}
	if totalBytes != m.TotalBytes {
		return parxerr.Errorf(parxerr.KindData, "total bytes %d, files sum to %d", m.TotalBytes, totalBytes)
	}
	if totalChunks != m.TotalChunks {
		return parxerr.Errorf(parxerr.KindData, "total chunks %d, files sum to %d", m.TotalChunks, totalChunks)
	}
	if int64(len(m.ChunkHashes)) != m.TotalChunks {
		return parxerr.Errorf(parxerr.KindData,
			"%d chunk hashes for %d chunks", len(m.ChunkHashes), m.TotalChunks)
	}

	wantStripes := (m.TotalChunks + int64(m.StripeK) - 1) / int64(m.StripeK)
	if int64(len(m.Stripes)) != wantStripes {
		return parxerr.Errorf(parxerr.KindData, "%d stripes, expected %d", len(m.Stripes), wantStripes)
	}
	for s, info := range m.Stripes {
		if len(info.Volumes) != info.Parity {
			return parxerr.Errorf(parxerr.KindData,
				"stripe %d: %d volume assignments for %d parity chunks", s, len(info.Volumes), info.Parity)
		}
		for j, v := range info.Volumes {
			if v < 0 || v >= m.Volumes {
				return parxerr.Errorf(parxerr.KindData,
					"stripe %d parity %d: volume %d out of range", s, j, v)
			}
		}
	}

	if m.Interleave {
		if int64(len(m.Permutation)) != m.TotalChunks {
			return parxerr.Errorf(parxerr.KindData,
				"permutation length %d for %d chunks", len(m.Permutation), m.TotalChunks)
		}
		seen := make([]bool, m.TotalChunks)
		for _, g := range m.Permutation {
			if g < 0 || g >= m.TotalChunks || seen[g] {
				return parxerr.Errorf(parxerr.KindData, "permutation is not a bijection")
			}
			seen[g] = true
		}
	} else if m.Permutation != nil {
		return parxerr.Errorf(parxerr.KindData, "permutation present without interleave flag")
	}

	return nil
}

// Layout rebuilds the stripe layout described by the manifest.
func (m *Manifest) Layout() (*stripe.Layout, error) {
	layout, err := stripe.New(m.Files, m.StripeK, m.ParityPct)
	if err != nil {
		return nil, err
	}
	if m.Interleave {
		layout.SetPermutation(m.Permutation)
	}
	return layout, nil
}

// Hash returns the parsed expected hash of a global chunk.
func (m *Manifest) Hash(global int64) (integrity.Hash, error) {
	if global < 0 || global >= int64(len(m.ChunkHashes)) {
		return integrity.Hash{}, parxerr.Errorf(parxerr.KindInternal, "chunk %d outside hash table", global)
	}
	h, err := integrity.Parse(m.ChunkHashes[global])
	if err != nil {
		return integrity.Hash{}, parxerr.E(parxerr.KindData, err)
	}
	return h, nil
}

// ParsedHashes decodes the full hash column.
func (m *Manifest) ParsedHashes() ([]integrity.Hash, error) {
	hashes := make([]integrity.Hash, len(m.ChunkHashes))
	for i, s := range m.ChunkHashes {
		h, err := integrity.Parse(s)
		if err != nil {
			return nil, parxerr.E(parxerr.KindData, fmt.Errorf("chunk %d: %w", i, err))
		}
		hashes[i] = h
	}
	return hashes, nil
}
