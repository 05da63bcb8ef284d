// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"fmt"
	"io"
	"os"

	"github.com/bureau-foundation/parx/lib/parxerr"
)

// Chunk is one fixed-size unit of protection.
type Chunk struct {
	// Global is the chunk index counted across the chunker's file
	// table: dataset-wide when the chunker covers the whole table,
	// relative to the first file otherwise.
	Global int64

	// FileIndex is the position of the owning file in the table.
	FileIndex int

	// Offset is the chunk's byte offset within its file.
	Offset int64

	// Length is the true byte length (≤ chunk_size). Write-back is
	// governed by this, never by the padded length.
	Length int

	// Data is the padded chunk_size buffer. Bytes past Length are
	// zero. The buffer is only valid until the next Chunker.Next
	// call.
	Data []byte
}

// Chunker streams a dataset's files in table order, yielding padded
// chunks lazily. The internal buffer is reused between chunks.
type Chunker struct {
	root           string
	files          []File
	chunkSize      int
	followSymlinks bool

	fileIndex int
	offset    int64
	global    int64
	current   *os.File
	buf       []byte
}

// NewChunker creates a chunker over a walked file table.
func NewChunker(root string, files []File, chunkSize int, followSymlinks bool) *Chunker {
	return &Chunker{
		root:           root,
		files:          files,
		chunkSize:      chunkSize,
		followSymlinks: followSymlinks,
		buf:            make([]byte, chunkSize),
	}
}

// Next returns the next chunk, or io.EOF after the final chunk.
// Errors mid-stream (a file shrinking or becoming unreadable while
// being chunked) surface as input errors.
func (c *Chunker) Next() (Chunk, error) {
	for {
		if c.fileIndex >= len(c.files) {
			c.closeCurrent()
			return Chunk{}, io.EOF
		}
		entry := c.files[c.fileIndex]

		if c.offset >= entry.Length {
			// Zero-length files and exhausted files advance the
			// table; they own no chunks.
			c.closeCurrent()
			c.fileIndex++
			c.offset = 0
			continue
		}

		if c.current == nil {
			absolute, err := ValidatePath(c.root, entry.Path, c.followSymlinks)
			if err != nil {
				return Chunk{}, err
			}
			f, err := os.Open(absolute)
			if err != nil {
				return Chunk{}, parxerr.E(parxerr.KindInput, err).WithPath(entry.Path)
			}
			c.current = f
		}

		length := c.chunkSize
		if remaining := entry.Length - c.offset; remaining < int64(length) {
			length = int(remaining)
		}

		if err := readFull(c.current, c.offset, c.buf[:length]); err != nil {
			path := entry.Path
			c.closeCurrent()
			return Chunk{}, parxerr.E(parxerr.KindInput,
				fmt.Errorf("file changed or became unreadable mid-stream: %w", err)).WithPath(path)
		}
		for i := length; i < c.chunkSize; i++ {
			c.buf[i] = 0
		}

		chunk := Chunk{
			Global:    c.global,
			FileIndex: c.fileIndex,
			Offset:    c.offset,
			Length:    length,
			Data:      c.buf,
		}
		c.global++
		c.offset += int64(length)
		return chunk, nil
	}
}

// Close releases the currently open file. Safe to call at any point.
func (c *Chunker) Close() {
	c.closeCurrent()
}

func (c *Chunker) closeCurrent() {
	if c.current != nil {
		c.current.Close()
		c.current = nil
	}
}
