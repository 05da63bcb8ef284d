// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verify_test

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/parx/lib/config"
	"github.com/bureau-foundation/parx/lib/encode"
	"github.com/bureau-foundation/parx/lib/verify"
)

// fixture encodes a small three-file dataset and returns (root,
// result).
func fixture(t *testing.T) (string, *encode.Result) {
	t.Helper()
	root := t.TempDir()
	for i, name := range []string{"a.bin", "b.bin", "c.bin"} {
		data := make([]byte, 40*1024+i*777)
		rand.New(rand.NewSource(int64(i + 1))).Read(data)
		if err := os.WriteFile(filepath.Join(root, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfg := config.Default()
	cfg.ChunkSize = 4096
	cfg.StripeK = 8
	cfg.ParityPct = 35
	cfg.Volumes = 2
	result, err := encode.Create(context.Background(), root, filepath.Join(root, ".parx"), cfg)
	if err != nil {
		t.Fatal(err)
	}
	return root, result
}

func TestCleanDatasetVerifies(t *testing.T) {
	root, result := fixture(t)
	report, err := verify.Run(context.Background(), result.Manifest, root, verify.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !report.Clean() || !report.MerkleOK {
		t.Errorf("clean dataset: %+v", report)
	}
	if report.ChunksOK != result.Manifest.TotalChunks {
		t.Errorf("ok=%d, want %d", report.ChunksOK, result.Manifest.TotalChunks)
	}
}

func TestCorruptChunkReported(t *testing.T) {
	root, result := fixture(t)

	// Flip bytes in the middle of b.bin's second chunk.
	path := filepath.Join(root, "b.bin")
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteAt([]byte{0xDE, 0xAD}, 4096+100); err != nil {
		t.Fatal(err)
	}
	f.Close()

	report, err := verify.Run(context.Background(), result.Manifest, root, verify.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if report.ChunksCorrupt != 1 {
		t.Fatalf("corrupt=%d, want 1 (%+v)", report.ChunksCorrupt, report)
	}
	if report.Clean() {
		t.Error("corrupted dataset reported clean")
	}

	// The corrupt chunk is b.bin's chunk 1.
	var bFirst int64
	for _, fe := range result.Manifest.Files {
		if fe.Path == "b.bin" {
			bFirst = fe.FirstChunk
		}
	}
	if report.Present[bFirst+1] != verify.Corrupt {
		t.Errorf("chunk %d status %s, want corrupt", bFirst+1, report.Present[bFirst+1])
	}
}

func TestMissingFileReported(t *testing.T) {
	root, result := fixture(t)
	if err := os.Remove(filepath.Join(root, "c.bin")); err != nil {
		t.Fatal(err)
	}

	report, err := verify.Run(context.Background(), result.Manifest, root, verify.Options{})
	if err != nil {
		t.Fatal(err)
	}

	var cChunks int64
	for _, fe := range result.Manifest.Files {
		if fe.Path == "c.bin" {
			cChunks = fe.ChunkCount
		}
	}
	if report.ChunksMissing != cChunks {
		t.Errorf("missing=%d, want %d", report.ChunksMissing, cChunks)
	}
}

func TestTruncatedFileLosesTailChunks(t *testing.T) {
	root, result := fixture(t)
	path := filepath.Join(root, "a.bin")
	// Cut a.bin to one and a half chunks: chunk 0 intact, chunk 1
	// short (missing), the rest gone.
	if err := os.Truncate(path, 4096+2048); err != nil {
		t.Fatal(err)
	}

	report, err := verify.Run(context.Background(), result.Manifest, root, verify.Options{})
	if err != nil {
		t.Fatal(err)
	}

	var aFirst, aCount int64
	for _, fe := range result.Manifest.Files {
		if fe.Path == "a.bin" {
			aFirst, aCount = fe.FirstChunk, fe.ChunkCount
		}
	}
	if report.Present[aFirst] != verify.OK {
		t.Error("chunk 0 should survive truncation")
	}
	for g := aFirst + 1; g < aFirst+aCount; g++ {
		if report.Present[g] != verify.Missing {
			t.Errorf("chunk %d status %s, want missing", g, report.Present[g])
		}
	}
}

func TestStatusString(t *testing.T) {
	if verify.OK.String() != "ok" || verify.Corrupt.String() != "corrupt" || verify.Missing.String() != "missing" {
		t.Error("status names drifted")
	}
}
