// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package repair reconstructs damaged or missing data chunks from
// surviving shards and writes them back atomically.
//
// The orchestrator verifies, audits, decodes repairable stripes in
// parallel, then groups recovered chunks per file and rewrites each
// affected file through a temp-and-rename replacement with a
// .parx.bak sibling. Unrecoverable stripes are reported and skipped;
// an I/O failure on one file never touches another. The manifest and
// volumes are read-only throughout.
package repair

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bureau-foundation/parx/lib/atomicfile"
	"github.com/bureau-foundation/parx/lib/dataset"
	"github.com/bureau-foundation/parx/lib/integrity"
	"github.com/bureau-foundation/parx/lib/lockfile"
	"github.com/bureau-foundation/parx/lib/manifest"
	"github.com/bureau-foundation/parx/lib/parxerr"
	"github.com/bureau-foundation/parx/lib/rscodec"
	"github.com/bureau-foundation/parx/lib/stripe"
	"github.com/bureau-foundation/parx/lib/verify"
	"github.com/bureau-foundation/parx/lib/volume"
	"github.com/bureau-foundation/parx/lib/workpool"
)

// BackupSuffix is appended to the original file before replacement.
const BackupSuffix = ".parx.bak"

// LockFileName is the global repair lock under the parity directory.
const LockFileName = ".parx.lock"

// Options tune a repair run.
type Options struct {
	// ParityDir is the directory holding volumes (and the global
	// lock).
	ParityDir string

	// Threads bounds the worker pool; zero means the CPU count.
	Threads int

	// FollowSymlinks mirrors the encode-time setting.
	FollowSymlinks bool

	// NoBackup suppresses the .parx.bak sibling.
	NoBackup bool
}

// Report is the repair outcome.
type Report struct {
	// RepairedChunks is the count of chunks restored and re-verified.
	RepairedChunks int64 `json:"repaired_chunks"`

	// FailedChunks counts chunks that could not be restored, either
	// because their stripe was unrecoverable or because write-back
	// failed.
	FailedChunks int64 `json:"failed_chunks"`

	// UnrepairedStripes lists stripes left broken.
	UnrepairedStripes []int64 `json:"unrepaired_stripes"`

	// FailedFiles lists files whose write-back failed.
	FailedFiles []string `json:"failed_files"`

	// Partial is true when anything remains broken.
	Partial bool `json:"partial"`
}

// edit is one recovered chunk pending write-back.
type edit struct {
	global int64
	offset int64
	data   []byte // true length, no padding
}

// Run repairs the dataset under root against m. The global advisory
// lock under the parity directory is held for the duration.
func Run(ctx context.Context, m *manifest.Manifest, root string, opts Options) (*Report, error) {
	lock, err := lockfile.TryAcquire(filepath.Join(opts.ParityDir, LockFileName))
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	verifyReport, err := verify.Run(ctx, m, root, verify.Options{
		Threads:        opts.Threads,
		FollowSymlinks: opts.FollowSymlinks,
	})
	if err != nil {
		return nil, err
	}

	report := &Report{}
	if verifyReport.ChunksCorrupt == 0 && verifyReport.ChunksMissing == 0 {
		return report, nil
	}

	layout, err := m.Layout()
	if err != nil {
		return nil, err
	}
	codec, err := rscodec.New(layout.K, layout.M)
	if err != nil {
		return nil, err
	}

	volumes := openVolumes(opts.ParityDir)
	defer closeVolumes(volumes)

	// Damaged stripes, in stripe order.
	damaged := damagedStripes(m, layout, verifyReport)
	slog.Debug("repair plan",
		"damaged_stripes", len(damaged),
		"chunks_corrupt", verifyReport.ChunksCorrupt,
		"chunks_missing", verifyReport.ChunksMissing,
		"volumes", len(volumes))

	edits, unrepaired, failedChunks := reconstruct(ctx, m, root, layout, codec, volumes, verifyReport, damaged, opts)
	report.UnrepairedStripes = unrepaired
	report.FailedChunks = failedChunks

	repaired, failedFiles, writeFailed := writeBack(ctx, m, root, edits, opts)
	report.RepairedChunks = repaired
	report.FailedChunks += writeFailed
	report.FailedFiles = failedFiles
	report.Partial = len(report.UnrepairedStripes) > 0 || len(report.FailedFiles) > 0

	return report, nil
}

// damagedStripes returns the ids of stripes containing at least one
// non-OK data chunk.
func damagedStripes(m *manifest.Manifest, layout *stripe.Layout, verifyReport *verify.Report) []int64 {
	seen := make(map[int64]bool)
	var damaged []int64
	for g := int64(0); g < m.TotalChunks; g++ {
		if verifyReport.Present[g] == verify.OK {
			continue
		}
		s, _ := layout.StripeOf(g)
		if !seen[s] {
			seen[s] = true
			damaged = append(damaged, s)
		}
	}
	sort.Slice(damaged, func(i, j int) bool { return damaged[i] < damaged[j] })
	return damaged
}

// openVolumes opens every readable volume in the parity directory,
// keyed by nothing in particular: lookups scan for the entry. Broken
// volumes are skipped; their shards count as missing.
func openVolumes(parityDir string) []*volume.Volume {
	paths, err := volume.List(parityDir)
	if err != nil {
		return nil
	}
	var volumes []*volume.Volume
	for _, path := range paths {
		v, err := volume.Open(path)
		if err != nil {
			slog.Warn("skipping unreadable volume", "path", path, "error", err)
			continue
		}
		volumes = append(volumes, v)
	}
	return volumes
}

func closeVolumes(volumes []*volume.Volume) {
	for _, v := range volumes {
		v.Close()
	}
}

// readParity fetches one parity shard from whichever open volume
// indexes it. The manifest records the intended volume, but repair
// accepts the shard from any volume whose index claims it; the
// index entry's hash gates correctness either way.
func readParity(volumes []*volume.Volume, stripeID int64, parityIndex int) []byte {
	for _, v := range volumes {
		if _, ok := v.Lookup(stripeID, parityIndex); ok {
			data, err := v.ReadParity(stripeID, parityIndex)
			if err == nil {
				return data
			}
		}
	}
	return nil
}

// reconstruct decodes every repairable damaged stripe in parallel
// and returns the recovered edits grouped per file index.
func reconstruct(ctx context.Context, m *manifest.Manifest, root string, layout *stripe.Layout, codec *rscodec.Codec, volumes []*volume.Volume, verifyReport *verify.Report, damaged []int64, opts Options) (map[int][]edit, []int64, int64) {
	var mu sync.Mutex
	edits := make(map[int][]edit)
	var unrepaired []int64
	var failedChunks int64

	pool, poolCtx := workpool.New(ctx, opts.Threads)
	for _, stripeID := range damaged {
		pool.Go(func() error {
			if pool.Cancelled() {
				return poolCtx.Err()
			}

			stripeEdits, badCount, err := reconstructStripe(m, root, layout, codec, volumes, verifyReport, stripeID, opts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Unrecoverable stripes are a reported outcome, not
				// a run failure: other stripes continue.
				unrepaired = append(unrepaired, stripeID)
				failedChunks += int64(badCount)
				return nil
			}
			for _, e := range stripeEdits {
				fileIndex, _, _, locErr := dataset.Locate(m.Files, m.ChunkSize, e.global)
				if locErr != nil {
					return locErr
				}
				edits[fileIndex] = append(edits[fileIndex], e)
			}
			return nil
		})
	}
	// Wait fails only on cancellation or an internal error; either
	// way the edits gathered so far are still valid, so partial
	// progress is returned rather than discarded.
	if err := pool.Wait(); err != nil {
		return edits, unrepaired, failedChunks
	}

	sort.Slice(unrepaired, func(i, j int) bool { return unrepaired[i] < unrepaired[j] })
	return edits, unrepaired, failedChunks
}

// reconstructStripe assembles shards for one stripe, decodes, and
// returns the edits for its bad data chunks. badCount is returned
// for accounting even on failure.
func reconstructStripe(m *manifest.Manifest, root string, layout *stripe.Layout, codec *rscodec.Codec, volumes []*volume.Volume, verifyReport *verify.Report, stripeID int64, opts Options) ([]edit, int, error) {
	k, mShards := layout.K, layout.M
	shards := make([][]byte, k+mShards)

	type badSlot struct {
		slot   int
		global int64
	}
	var bad []badSlot

	for slot := 0; slot < k; slot++ {
		global := layout.ChunkAt(stripeID*int64(k) + int64(slot))
		if global < 0 {
			// Implicit zero chunk past the end of the dataset.
			shards[slot] = make([]byte, m.ChunkSize)
			continue
		}
		if verifyReport.Present[global] != verify.OK {
			bad = append(bad, badSlot{slot, global})
			continue
		}
		buf, err := dataset.ReadChunkPadded(root, m.Files, m.ChunkSize, global, opts.FollowSymlinks)
		if err != nil {
			// Verified OK moments ago but unreadable now: treat as
			// lost and let the decoder absorb it if budget allows.
			bad = append(bad, badSlot{slot, global})
			continue
		}
		shards[slot] = buf
	}

	for j := 0; j < mShards; j++ {
		shards[k+j] = readParity(volumes, stripeID, j)
	}

	if err := codec.Reconstruct(shards); err != nil {
		return nil, len(bad), err
	}

	edits := make([]edit, 0, len(bad))
	for _, b := range bad {
		_, offset, length, err := dataset.Locate(m.Files, m.ChunkSize, b.global)
		if err != nil {
			return nil, len(bad), err
		}
		expected, err := m.Hash(b.global)
		if err != nil {
			return nil, len(bad), err
		}
		if integrity.ChunkHash(shards[b.slot]) != expected {
			// The decode succeeded algebraically but produced wrong
			// bytes: some "intact" shard lied. Refuse the stripe
			// rather than write corrupt data.
			return nil, len(bad), parxerr.Errorf(parxerr.KindData,
				"stripe %d: reconstructed chunk %d failed hash check", stripeID, b.global)
		}
		edits = append(edits, edit{
			global: b.global,
			offset: offset,
			data:   append([]byte(nil), shards[b.slot][:length]...),
		})
	}
	return edits, len(bad), nil
}

// writeBack applies recovered chunks file by file, parallel across
// files. Each file is replaced atomically: stream-copy the original
// (or zeros when missing) to a temp sized by the manifest, overlay
// the recovered chunks, fsync, rename, fsync the directory. Failures
// are per-file: the file is reported and others proceed.
func writeBack(ctx context.Context, m *manifest.Manifest, root string, edits map[int][]edit, opts Options) (int64, []string, int64) {
	var mu sync.Mutex
	var repaired, failed int64
	var failedFiles []string

	pool, poolCtx := workpool.New(ctx, opts.Threads)
	for fileIndex, fileEdits := range edits {
		pool.Go(func() error {
			if pool.Cancelled() {
				return poolCtx.Err()
			}
			err := repairFile(m, root, fileIndex, fileEdits, opts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failedFiles = append(failedFiles, m.Files[fileIndex].Path)
				failed += int64(len(fileEdits))
				return nil
			}
			repaired += int64(len(fileEdits))
			return nil
		})
	}
	if err := pool.Wait(); err != nil {
		return repaired, failedFiles, failed
	}

	sort.Strings(failedFiles)
	return repaired, failedFiles, failed
}

// repairFile rebuilds one file with its edits applied.
func repairFile(m *manifest.Manifest, root string, fileIndex int, fileEdits []edit, opts Options) error {
	entry := m.Files[fileIndex]
	absolute, err := dataset.ValidatePath(root, entry.Path, opts.FollowSymlinks)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(absolute), 0o755); err != nil {
		return parxerr.E(parxerr.KindIO, err).WithPath(entry.Path)
	}

	// Per-file advisory lock, sibling to the file so a missing
	// original can still be locked.
	lock, err := lockfile.TryAcquire(absolute + ".parx.lock")
	if err != nil {
		return err
	}
	defer func() {
		lock.Release()
		os.Remove(absolute + ".parx.lock")
	}()

	original, err := os.Open(absolute)
	missing := false
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return parxerr.E(parxerr.KindIO, err).WithPath(entry.Path)
		}
		missing = true
	}

	if !missing && !opts.NoBackup {
		if err := copyFile(absolute, absolute+BackupSuffix); err != nil {
			original.Close()
			return err
		}
	}

	pending, err := atomicfile.Create(absolute)
	if err != nil {
		if original != nil {
			original.Close()
		}
		return err
	}
	defer pending.Cleanup()

	// Seed the temp with the surviving content, bounded by the
	// manifest's file length (a grown file is cut back, a shrunken
	// or missing one is zero-extended).
	if !missing {
		_, copyErr := io.Copy(pending, io.LimitReader(original, entry.Length))
		original.Close()
		if copyErr != nil {
			return parxerr.E(parxerr.KindIO, copyErr).WithPath(entry.Path)
		}
	}
	if err := pending.File().Truncate(entry.Length); err != nil {
		return parxerr.E(parxerr.KindIO, err).WithPath(entry.Path)
	}

	// Overlay the recovered chunks. Edits never extend past the
	// manifest length: the final chunk's data carries its true
	// (unpadded) length.
	for _, e := range fileEdits {
		if e.offset+int64(len(e.data)) > entry.Length {
			return parxerr.Errorf(parxerr.KindInternal,
				"edit at %d+%d exceeds file length %d", e.offset, len(e.data), entry.Length)
		}
		if _, err := pending.File().WriteAt(e.data, e.offset); err != nil {
			return parxerr.E(parxerr.KindIO, err).WithPath(entry.Path)
		}
	}

	if err := pending.Commit(); err != nil {
		return err
	}

	// Post-write verification: every repaired chunk must hash clean
	// from disk.
	for _, e := range fileEdits {
		buf, err := dataset.ReadChunkPadded(root, m.Files, m.ChunkSize, e.global, opts.FollowSymlinks)
		if err != nil {
			return err
		}
		expected, err := m.Hash(e.global)
		if err != nil {
			return err
		}
		if integrity.ChunkHash(buf) != expected {
			return parxerr.Errorf(parxerr.KindData,
				"chunk %d still corrupt after repair", e.global).WithPath(entry.Path)
		}
	}
	return nil
}

// copyFile copies src to dst (plain write; backups need no rename
// dance, they are best-effort recovery aids).
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return parxerr.E(parxerr.KindIO, err).WithPath(src)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return parxerr.E(parxerr.KindIO, err).WithPath(dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return parxerr.E(parxerr.KindIO, err).WithPath(dst)
	}
	if err := out.Close(); err != nil {
		return parxerr.E(parxerr.KindIO, err).WithPath(dst)
	}
	return nil
}
