// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package workpool provides the bounded worker pool shared by the
// encode, verify, and repair pipelines. Tasks are CPU-bound (RS,
// BLAKE3) with interleaved blocking I/O; the pool caps concurrency
// at a configurable width and propagates the first error while
// cancelling the remaining tasks cooperatively at task boundaries.
package workpool

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers returns the default pool width: the logical CPU
// count.
func DefaultWorkers() int {
	return runtime.NumCPU()
}

// Pool is a bounded task group. The zero value is not usable; create
// one with New.
type Pool struct {
	group *errgroup.Group
	ctx   context.Context
}

// New creates a pool of the given width bound to ctx. A width below
// one falls back to DefaultWorkers. The returned context is
// cancelled when any task fails; tasks should check it between work
// items.
func New(ctx context.Context, workers int) (*Pool, context.Context) {
	if workers < 1 {
		workers = DefaultWorkers()
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	return &Pool{group: group, ctx: groupCtx}, groupCtx
}

// Go submits a task, blocking while the pool is saturated. Submission
// after a failure still runs the task; tasks observe cancellation via
// the pool context instead.
func (p *Pool) Go(task func() error) {
	p.group.Go(task)
}

// Wait blocks until all submitted tasks finish and returns the first
// error.
func (p *Pool) Wait() error {
	return p.group.Wait()
}

// Cancelled reports whether the pool context is done; pipelines call
// this between stripes or chunks for cooperative cancellation.
func (p *Pool) Cancelled() bool {
	select {
	case <-p.ctx.Done():
		return true
	default:
		return false
	}
}
