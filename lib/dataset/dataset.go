// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dataset walks a dataset root into a deterministic file
// table and streams its contents as fixed-size chunks.
//
// The file table is sorted by normalized relative path (forward
// slashes), which fixes the global chunk numbering: chunks are
// ordered by file-table position, then by intra-file offset. The
// final chunk of each file may be shorter than chunk_size; it is
// zero-padded for hashing and Reed-Solomon math while its true byte
// length is tracked for write-back.
package dataset

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bureau-foundation/parx/lib/parxerr"
)

// ParityDirName is the directory component excluded from dataset
// walks. Parity sets are conventionally written to <root>/.parx and
// must never protect themselves.
const ParityDirName = ".parx"

// File is one dataset file in the table.
type File struct {
	// Path is the dataset-relative path, forward-slashed.
	Path string `json:"path"`

	// Length is the file size in bytes.
	Length int64 `json:"length"`

	// FirstChunk is the global index of the file's first chunk.
	FirstChunk int64 `json:"first_chunk"`

	// ChunkCount is the number of chunks the file occupies.
	ChunkCount int64 `json:"chunk_count"`
}

// WalkOptions control dataset discovery.
type WalkOptions struct {
	// FollowSymlinks permits symlinks whose resolved target stays
	// under the dataset root. When false (the default), any symlink
	// in a walked path is rejected.
	FollowSymlinks bool

	// Include restricts the walk to paths matching at least one
	// pattern (path.Match against the relative path or its base
	// name). Empty means everything.
	Include []string

	// Exclude removes matching paths after Include filtering.
	Exclude []string
}

// Walk discovers the dataset under root: regular files only, the
// parity directory excluded, sorted by normalized relative path,
// with chunk coordinates assigned for the given chunk size.
func Walk(root string, chunkSize int, opts WalkOptions) ([]File, error) {
	if chunkSize <= 0 {
		return nil, parxerr.Errorf(parxerr.KindConfig, "chunk size must be positive, got %d", chunkSize)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, parxerr.E(parxerr.KindInput, err).WithPath(root)
	}
	if !info.IsDir() {
		return nil, parxerr.Errorf(parxerr.KindInput, "dataset root is not a directory").WithPath(root)
	}

	var files []File
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return parxerr.E(parxerr.KindInput, err).WithPath(p)
		}

		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return parxerr.E(parxerr.KindInternal, relErr).WithPath(p)
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if d.Name() == ParityDirName {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			if !opts.FollowSymlinks {
				return parxerr.Errorf(parxerr.KindInput, "symlink not allowed (use --follow-symlinks)").WithPath(rel)
			}
			resolved, resolveErr := containedTarget(root, p)
			if resolveErr != nil {
				return resolveErr
			}
			targetInfo, statErr := os.Stat(resolved)
			if statErr != nil {
				return parxerr.E(parxerr.KindInput, statErr).WithPath(rel)
			}
			if !targetInfo.Mode().IsRegular() {
				// Symlinked directories are not followed even in
				// follow mode; only file links are admitted.
				return nil
			}
			if !matches(rel, opts) {
				return nil
			}
			files = append(files, File{Path: rel, Length: targetInfo.Size()})
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if !matches(rel, opts) {
			return nil
		}

		fileInfo, infoErr := d.Info()
		if infoErr != nil {
			return parxerr.E(parxerr.KindInput, infoErr).WithPath(rel)
		}
		files = append(files, File{Path: rel, Length: fileInfo.Size()})
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	var nextChunk int64
	for i := range files {
		files[i].FirstChunk = nextChunk
		files[i].ChunkCount = chunkCount(files[i].Length, chunkSize)
		nextChunk += files[i].ChunkCount
	}
	return files, nil
}

// TotalChunks returns the global chunk count of a file table.
func TotalChunks(files []File) int64 {
	if len(files) == 0 {
		return 0
	}
	last := files[len(files)-1]
	return last.FirstChunk + last.ChunkCount
}

// TotalBytes sums the file lengths.
func TotalBytes(files []File) int64 {
	var total int64
	for _, f := range files {
		total += f.Length
	}
	return total
}

// ValidatePath checks a manifest-relative path before any filesystem
// use: it must be relative, forward-slashed, and free of parent
// traversal. Returns the absolute path under root. With
// followSymlinks, an existing path is additionally resolved and its
// target checked for containment; otherwise any symlink component is
// rejected.
func ValidatePath(root, rel string, followSymlinks bool) (string, error) {
	if rel == "" {
		return "", parxerr.Errorf(parxerr.KindInput, "empty path")
	}
	if path.IsAbs(rel) || filepath.IsAbs(filepath.FromSlash(rel)) {
		return "", parxerr.Errorf(parxerr.KindInput, "absolute path not allowed").WithPath(rel)
	}
	for _, component := range strings.Split(rel, "/") {
		if component == ".." {
			return "", parxerr.Errorf(parxerr.KindInput, "parent traversal not allowed").WithPath(rel)
		}
	}

	absolute := filepath.Join(root, filepath.FromSlash(rel))

	if followSymlinks {
		if _, err := os.Lstat(absolute); err == nil {
			resolved, resolveErr := containedTarget(root, absolute)
			if resolveErr != nil {
				return "", resolveErr
			}
			return resolved, nil
		}
		return absolute, nil
	}

	// Reject symlinks anywhere along the relative path, ancestors
	// included, matching the restrictive default.
	current := root
	for _, component := range strings.Split(rel, "/") {
		current = filepath.Join(current, component)
		info, err := os.Lstat(current)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Missing files are legal here: verify reports them
				// as MISSING, repair recreates them.
				return absolute, nil
			}
			return "", parxerr.E(parxerr.KindInput, err).WithPath(rel)
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return "", parxerr.Errorf(parxerr.KindInput, "symlink in path (not following)").WithPath(rel)
		}
	}
	return absolute, nil
}

// containedTarget resolves p and enforces that the resolution stays
// under root.
func containedTarget(root, p string) (string, error) {
	rootResolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", parxerr.E(parxerr.KindInput, err).WithPath(root)
	}
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", parxerr.E(parxerr.KindInput, err).WithPath(p)
	}
	relToRoot, err := filepath.Rel(rootResolved, resolved)
	if err != nil || relToRoot == ".." || strings.HasPrefix(relToRoot, ".."+string(filepath.Separator)) {
		return "", parxerr.Errorf(parxerr.KindInput, "symlink target escapes dataset root").WithPath(p)
	}
	return resolved, nil
}

// matches applies the include/exclude patterns to a relative path.
func matches(rel string, opts WalkOptions) bool {
	if strings.Contains(rel, "/"+ParityDirName+"/") || strings.HasPrefix(rel, ParityDirName+"/") {
		return false
	}
	if len(opts.Include) > 0 {
		included := false
		for _, pattern := range opts.Include {
			if matchPattern(pattern, rel) {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}
	for _, pattern := range opts.Exclude {
		if matchPattern(pattern, rel) {
			return false
		}
	}
	return true
}

// matchPattern matches against the full relative path and, for
// convenience, the base name (so "*.log" excludes logs anywhere).
func matchPattern(pattern, rel string) bool {
	if ok, err := path.Match(pattern, rel); err == nil && ok {
		return true
	}
	if ok, err := path.Match(pattern, path.Base(rel)); err == nil && ok {
		return true
	}
	return false
}

func chunkCount(length int64, chunkSize int) int64 {
	return (length + int64(chunkSize) - 1) / int64(chunkSize)
}

// Locate maps a global chunk index to its owning file, intra-file
// offset, and true (unpadded) byte length.
func Locate(files []File, chunkSize int, global int64) (fileIndex int, offset int64, length int, err error) {
	// Binary search over FirstChunk.
	i := sort.Search(len(files), func(i int) bool {
		return files[i].FirstChunk+files[i].ChunkCount > global
	})
	if i == len(files) || global < files[i].FirstChunk {
		return 0, 0, 0, parxerr.Errorf(parxerr.KindInternal, "chunk %d outside file table", global)
	}
	f := files[i]
	local := global - f.FirstChunk
	offset = local * int64(chunkSize)
	remaining := f.Length - offset
	if remaining <= 0 {
		return 0, 0, 0, parxerr.Errorf(parxerr.KindInternal, "chunk %d beyond end of %s", global, f.Path)
	}
	length = chunkSize
	if remaining < int64(chunkSize) {
		length = int(remaining)
	}
	return i, offset, length, nil
}

// readFull reads exactly len(buf) bytes at offset, tolerating short
// files by returning io errors unchanged for the caller to classify.
func readFull(f *os.File, offset int64, buf []byte) error {
	n, err := f.ReadAt(buf, offset)
	if n == len(buf) {
		return nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// ReadChunkPadded reads the chunk at the given coordinates into a
// freshly allocated chunk_size buffer, zero-padded past the true
// length. The file is opened and closed per call; callers on a hot
// path should use a Chunker instead.
func ReadChunkPadded(root string, files []File, chunkSize int, global int64, followSymlinks bool) ([]byte, error) {
	fileIndex, offset, length, err := Locate(files, chunkSize, global)
	if err != nil {
		return nil, err
	}
	absolute, err := ValidatePath(root, files[fileIndex].Path, followSymlinks)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(absolute)
	if err != nil {
		return nil, parxerr.E(parxerr.KindInput, err).WithPath(files[fileIndex].Path)
	}
	defer f.Close()

	buf := make([]byte, chunkSize)
	if err := readFull(f, offset, buf[:length]); err != nil {
		return nil, parxerr.E(parxerr.KindInput, fmt.Errorf("reading chunk %d: %w", global, err)).WithPath(files[fileIndex].Path)
	}
	return buf, nil
}
