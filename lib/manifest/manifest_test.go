// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/parx/lib/dataset"
	"github.com/bureau-foundation/parx/lib/integrity"
	"github.com/bureau-foundation/parx/lib/parxerr"
	"github.com/bureau-foundation/parx/lib/stripe"
)

// buildManifest assembles a consistent 10-chunk manifest: two files,
// K=4, 50% parity, 2 volumes.
func buildManifest(t *testing.T, interleave bool) *Manifest {
	t.Helper()
	const chunkSize = 256
	files := []dataset.File{
		{Path: "a.bin", Length: 6*chunkSize - 10, FirstChunk: 0, ChunkCount: 6},
		{Path: "b.bin", Length: 4 * chunkSize, FirstChunk: 6, ChunkCount: 4},
	}
	layout, err := stripe.New(files, 4, 50)
	if err != nil {
		t.Fatal(err)
	}
	if interleave {
		layout.Interleave(files)
	}
	assignment, err := layout.AssignVolumes(2, nil, chunkSize)
	if err != nil {
		t.Fatal(err)
	}

	hashes := make([]integrity.Hash, 10)
	for i := range hashes {
		hashes[i] = integrity.ChunkHash([]byte{byte(i)})
	}
	root := integrity.MerkleRoot(hashes)
	return New(files, layout, assignment, chunkSize, 50, 2, hashes, root)
}

func TestWriteLoadRoundTrip(t *testing.T) {
	m := buildManifest(t, false)
	path := filepath.Join(t.TempDir(), FileName)
	if err := m.Write(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.TotalChunks != 10 || loaded.StripeK != 4 || loaded.ParityPct != 50 {
		t.Errorf("fields lost: %+v", loaded)
	}
	if loaded.MerkleRoot != m.MerkleRoot {
		t.Error("merkle root mismatch after round trip")
	}
	if len(loaded.Stripes) != 3 {
		t.Errorf("stripes: %d, want 3", len(loaded.Stripes))
	}
	if loaded.Stripes[2].Slots != 2 {
		t.Errorf("final stripe slots: %d, want 2", loaded.Stripes[2].Slots)
	}
}

func TestInterleavePermutationRoundTrip(t *testing.T) {
	m := buildManifest(t, true)
	path := filepath.Join(t.TempDir(), FileName)
	if err := m.Write(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.Interleave || len(loaded.Permutation) != 10 {
		t.Fatalf("permutation lost: %+v", loaded)
	}

	layout, err := loaded.Layout()
	if err != nil {
		t.Fatal(err)
	}
	// Inverting the permutation recovers the original order.
	for p := int64(0); p < 10; p++ {
		if layout.PositionOf(layout.ChunkAt(p)) != p {
			t.Fatalf("permutation inverse broken at position %d", p)
		}
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); parxerr.KindOf(err) != parxerr.KindData {
		t.Errorf("garbage manifest: %v", err)
	}

	if _, err := Load(filepath.Join(dir, "absent.json")); parxerr.KindOf(err) != parxerr.KindInput {
		t.Error("missing manifest must be an input error")
	}
}

func TestValidateCatchesInconsistencies(t *testing.T) {
	mutations := []struct {
		name   string
		mutate func(*Manifest)
	}{
		{"version", func(m *Manifest) { m.Version = 99 }},
		{"total-bytes", func(m *Manifest) { m.TotalBytes++ }},
		{"total-chunks", func(m *Manifest) { m.TotalChunks++ }},
		{"hash-count", func(m *Manifest) { m.ChunkHashes = m.ChunkHashes[:5] }},
		{"stripe-count", func(m *Manifest) { m.Stripes = m.Stripes[:1] }},
		{"volume-range", func(m *Manifest) { m.Stripes[0].Volumes[0] = 7 }},
		{"first-chunk", func(m *Manifest) { m.Files[1].FirstChunk = 9 }},
		{"orphan-permutation", func(m *Manifest) { m.Permutation = []int64{0} }},
	}
	for _, tc := range mutations {
		m := buildManifest(t, false)
		tc.mutate(m)
		if err := m.Validate(); parxerr.KindOf(err) != parxerr.KindData {
			t.Errorf("%s: validation missed the mutation (err=%v)", tc.name, err)
		}
	}
}

func TestValidateRejectsBrokenPermutation(t *testing.T) {
	m := buildManifest(t, true)
	m.Permutation[3] = m.Permutation[4] // duplicate
	if err := m.Validate(); parxerr.KindOf(err) != parxerr.KindData {
		t.Errorf("duplicate permutation entry accepted: %v", err)
	}
}

func TestHashAccessors(t *testing.T) {
	m := buildManifest(t, false)
	h, err := m.Hash(3)
	if err != nil {
		t.Fatal(err)
	}
	if integrity.Format(h) != m.ChunkHashes[3] {
		t.Error("Hash(3) mismatch")
	}
	if _, err := m.Hash(99); err == nil {
		t.Error("out-of-range hash access accepted")
	}

	all, err := m.ParsedHashes()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 10 {
		t.Errorf("parsed %d hashes", len(all))
	}
}
