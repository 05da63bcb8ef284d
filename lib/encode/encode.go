// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package encode implements parity creation: walk the dataset, hash
// every chunk, compute Reed-Solomon parity per stripe, stream parity
// chunks to per-volume writers, and write the manifest.
//
// Stripe encoding fans out over the worker pool; each volume has
// exactly one writer
// goroutine fed by a bounded channel, so appends are serialized per
// volume and a slow disk applies backpressure to the encoders. All
// payload is flushed before any index trailer is composed (the
// writers drain their channels to completion first), and every
// volume reaches its final name only by rename. The manifest is
// written last and acts as the commit point of the whole parity set:
// a cancelled or failed encode leaves no manifest and no visible
// volumes.
package encode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bureau-foundation/parx/lib/config"
	"github.com/bureau-foundation/parx/lib/dataset"
	"github.com/bureau-foundation/parx/lib/integrity"
	"github.com/bureau-foundation/parx/lib/manifest"
	"github.com/bureau-foundation/parx/lib/parxerr"
	"github.com/bureau-foundation/parx/lib/rscodec"
	"github.com/bureau-foundation/parx/lib/stripe"
	"github.com/bureau-foundation/parx/lib/volume"
	"github.com/bureau-foundation/parx/lib/workpool"
)

// Result summarizes a completed encode.
type Result struct {
	// Manifest is the written manifest.
	Manifest *manifest.Manifest

	// ManifestPath is its location under the parity directory.
	ManifestPath string

	// VolumePaths are the written volumes, indexed by volume id.
	VolumePaths []string

	// ParityChunks is the total parity chunk count.
	ParityChunks int64

	// ParityBytes is the total parity payload written.
	ParityBytes int64
}

// parityChunk is one encoded shard in flight to a volume writer.
type parityChunk struct {
	stripeID    int64
	parityIndex int
	data        []byte
}

// writerQueueDepth bounds each volume writer's channel. Deep enough
// to keep the disk busy, shallow enough that encoders feel a slow
// writer quickly.
const writerQueueDepth = 4

// Create builds the parity set for the dataset under root, writing
// volumes and manifest into outDir.
func Create(ctx context.Context, root, outDir string, cfg config.Encode) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	files, err := dataset.Walk(root, cfg.ChunkSize, dataset.WalkOptions{
		FollowSymlinks: cfg.FollowSymlinks,
		Include:        cfg.Include,
		Exclude:        cfg.Exclude,
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, parxerr.Errorf(parxerr.KindInput, "dataset is empty").WithPath(root)
	}

	layout, err := stripe.New(files, cfg.StripeK, cfg.ParityPct)
	if err != nil {
		return nil, err
	}
	if cfg.Interleave {
		layout.Interleave(files)
	}
	assignment, err := layout.AssignVolumes(cfg.Volumes, cfg.VolumeSizes, cfg.ChunkSize)
	if err != nil {
		return nil, err
	}

	hashes, err := hashDataset(ctx, root, files, cfg)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, parxerr.E(parxerr.KindIO, err).WithOp("create-output-dir").WithPath(outDir)
	}

	writers := make([]*volume.Writer, cfg.Volumes)
	for v := range writers {
		w, err := volume.NewWriter(outDir, v, cfg.ChunkSize, volume.IndexZstd)
		if err != nil {
			abortAll(writers)
			return nil, err
		}
		writers[v] = w
	}

	result, err := encodeStripes(ctx, root, files, layout, assignment, writers, cfg)
	if err != nil {
		abortAll(writers)
		return nil, err
	}

	root32 := integrity.MerkleRoot(hashes)
	m := manifest.New(files, layout, assignment, cfg.ChunkSize, cfg.ParityPct, cfg.Volumes, hashes, root32)

	// Embed a manifest copy in volume 0 before finalizing, so a lost
	// manifest.json is recoverable from any intact first volume.
	backup, err := manifestJSON(m)
	if err != nil {
		abortAll(writers)
		return nil, err
	}
	writers[0].SetManifestBackup(backup)

	paths := make([]string, len(writers))
	for v, w := range writers {
		if err := w.Finalize(); err != nil {
			abortAll(writers[v:])
			for _, p := range paths[:v] {
				os.Remove(p)
			}
			return nil, err
		}
		paths[v] = w.Path()
	}

	manifestPath := filepath.Join(outDir, manifest.FileName)
	if err := m.Write(manifestPath); err != nil {
		for _, p := range paths {
			os.Remove(p)
		}
		return nil, err
	}
	slog.Debug("encode complete",
		"files", len(files),
		"chunks", layout.TotalChunks,
		"stripes", layout.StripeCount,
		"parity_bytes", result.ParityBytes)

	result.Manifest = m
	result.ManifestPath = manifestPath
	result.VolumePaths = paths
	return result, nil
}

// hashDataset computes every chunk's padded BLAKE3, parallel across
// files and sequential within each (sequential I/O per file).
func hashDataset(ctx context.Context, root string, files []dataset.File, cfg config.Encode) ([]integrity.Hash, error) {
	hashes := make([]integrity.Hash, dataset.TotalChunks(files))
	pool, _ := workpool.New(ctx, cfg.Threads)

	for i := range files {
		pool.Go(func() error {
			if pool.Cancelled() {
				return ctx.Err()
			}
			single := files[i : i+1]
			chunker := dataset.NewChunker(root, single, cfg.ChunkSize, cfg.FollowSymlinks)
			defer chunker.Close()
			base := files[i].FirstChunk
			for {
				chunk, err := chunker.Next()
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}
				hashes[base+chunk.Global] = integrity.ChunkHash(chunk.Data)
			}
		})
	}
	if err := pool.Wait(); err != nil {
		return nil, err
	}
	return hashes, nil
}

// encodeStripes runs the stripe fan-out and volume writer goroutines,
// returning aggregate counters. Writers are fully drained (payload
// flushed) before this returns.
func encodeStripes(ctx context.Context, root string, files []dataset.File, layout *stripe.Layout, assignment [][]int, writers []*volume.Writer, cfg config.Encode) (*Result, error) {
	queues := make([]chan parityChunk, len(writers))
	writerErrs := make([]error, len(writers))
	var writerGroup sync.WaitGroup
	for v, w := range writers {
		queues[v] = make(chan parityChunk, writerQueueDepth)
		writerGroup.Add(1)
		go func() {
			defer writerGroup.Done()
			for chunk := range queues[v] {
				if writerErrs[v] != nil {
					continue // drain after failure
				}
				writerErrs[v] = w.Append(chunk.stripeID, chunk.parityIndex, chunk.data)
			}
		}()
	}

	codec, err := rscodec.New(layout.K, layout.M)
	if err != nil {
		closeAll(queues)
		writerGroup.Wait()
		return nil, err
	}

	pool, poolCtx := workpool.New(ctx, cfg.Threads)
	for s := int64(0); s < layout.StripeCount; s++ {
		pool.Go(func() error {
			if pool.Cancelled() {
				return poolCtx.Err()
			}
			if layout.M == 0 {
				return nil
			}

			data := make([][]byte, layout.K)
			for slot := 0; slot < layout.K; slot++ {
				global := layout.ChunkAt(s*int64(layout.K) + int64(slot))
				if global < 0 {
					// Empty slot in the final stripe: all-zero chunk.
					data[slot] = make([]byte, cfg.ChunkSize)
					continue
				}
				buf, err := dataset.ReadChunkPadded(root, files, cfg.ChunkSize, global, cfg.FollowSymlinks)
				if err != nil {
					return err
				}
				data[slot] = buf
			}

			parity, err := codec.Encode(data)
			if err != nil {
				return err
			}
			for j, shard := range parity {
				select {
				case queues[assignment[s][j]] <- parityChunk{stripeID: s, parityIndex: j, data: shard}:
				case <-poolCtx.Done():
					return poolCtx.Err()
				}
			}
			return nil
		})
	}

	encodeErr := pool.Wait()
	closeAll(queues)
	writerGroup.Wait()

	if encodeErr != nil {
		return nil, encodeErr
	}
	for v, werr := range writerErrs {
		if werr != nil {
			return nil, parxerr.E(parxerr.KindIO, fmt.Errorf("volume %d writer: %w", v, werr))
		}
	}

	result := &Result{}
	for _, w := range writers {
		result.ParityBytes += w.PayloadBytes()
		result.ParityChunks += w.PayloadBytes() / int64(cfg.ChunkSize)
	}
	return result, nil
}

func closeAll(queues []chan parityChunk) {
	for _, q := range queues {
		close(q)
	}
}

func abortAll(writers []*volume.Writer) {
	for _, w := range writers {
		if w != nil {
			w.Abort()
		}
	}
}

func manifestJSON(m *manifest.Manifest) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, parxerr.E(parxerr.KindInternal, err)
	}
	return data, nil
}
