// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package atomicfile writes files atomically: content goes to a
// temporary file in the destination directory, is fsynced, renamed
// over the final name, and the parent directory is fsynced. A crash
// at any point leaves either the old file or the new file, never a
// torn write. Rename is the commit point for every externally
// visible parx artefact (manifest, volumes, repaired dataset files).
package atomicfile

import (
	"os"
	"path/filepath"

	"github.com/google/renameio"

	"github.com/bureau-foundation/parx/lib/parxerr"
)

// WriteFile atomically replaces path with data.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	if err := renameio.WriteFile(path, data, perm); err != nil {
		return parxerr.E(parxerr.KindIO, err).WithOp("atomic-write").WithPath(path)
	}
	return SyncDir(filepath.Dir(path))
}

// Pending is an open temporary file that will replace its target on
// Commit. Abandoning a Pending (Cleanup) leaves the target untouched.
type Pending struct {
	inner  *renameio.PendingFile
	target string
}

// Create opens a pending file targeting path. The temporary lives in
// path's directory so the final rename never crosses filesystems.
func Create(path string) (*Pending, error) {
	inner, err := renameio.TempFile(filepath.Dir(path), path)
	if err != nil {
		return nil, parxerr.E(parxerr.KindIO, err).WithOp("create-temp").WithPath(path)
	}
	return &Pending{inner: inner, target: path}, nil
}

// Write appends to the pending file.
func (p *Pending) Write(data []byte) (int, error) {
	return p.inner.Write(data)
}

// File exposes the underlying *os.File for positioned writes.
func (p *Pending) File() *os.File {
	return p.inner.File
}

// Commit fsyncs the temporary, renames it over the target, and
// fsyncs the directory.
func (p *Pending) Commit() error {
	if err := p.inner.CloseAtomicallyReplace(); err != nil {
		return parxerr.E(parxerr.KindIO, err).WithOp("commit").WithPath(p.target)
	}
	return SyncDir(filepath.Dir(p.target))
}

// Cleanup discards the temporary without touching the target. Safe
// to call after Commit (it becomes a no-op).
func (p *Pending) Cleanup() {
	_ = p.inner.Cleanup()
}

// SyncDir fsyncs a directory so a preceding rename is durable.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return parxerr.E(parxerr.KindIO, err).WithOp("sync-dir").WithPath(dir)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return parxerr.E(parxerr.KindIO, err).WithOp("sync-dir").WithPath(dir)
	}
	return nil
}
