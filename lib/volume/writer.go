// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package volume

import (
	"encoding/binary"
	"hash/crc32"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"github.com/bureau-foundation/parx/lib/atomicfile"
	"github.com/bureau-foundation/parx/lib/integrity"
	"github.com/bureau-foundation/parx/lib/parxerr"
)

// Writer produces one volume file. Appends are strictly sequential;
// the index is buffered in memory and written by Finalize together
// with the trailer. The file reaches its final name only through
// Finalize's rename, so an aborted or crashed encode leaves no
// visible volume.
//
// A Writer is single-goroutine: the encode pipeline dedicates one
// writer goroutine per volume and feeds it over a channel.
type Writer struct {
	pending   *atomicfile.Pending
	path      string
	id        int
	chunkSize int
	codec     IndexCompression
	offset    int64
	entries   []Entry
	backup    []byte
}

// NewWriter creates the volume's temporary file and writes the
// header. The final path is dir/vol-NNN.parxv.
func NewWriter(dir string, id int, chunkSize int, codec IndexCompression) (*Writer, error) {
	path := filepath.Join(dir, Name(id))
	pending, err := atomicfile.Create(path)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		pending:   pending,
		path:      path,
		id:        id,
		chunkSize: chunkSize,
		codec:     codec,
	}

	header := make([]byte, HeaderSize)
	copy(header, headerMagic[:])
	binary.LittleEndian.PutUint32(header[8:], uint32(id))
	// Flags may change before Finalize (backup presence is decided
	// late); Finalize rewrites the header with the final word before
	// the commit rename.
	binary.LittleEndian.PutUint32(header[12:], w.headerFlags())
	binary.LittleEndian.PutUint32(header[16:], uint32(chunkSize))

	if _, err := pending.Write(header); err != nil {
		pending.Cleanup()
		return nil, parxerr.E(parxerr.KindIO, err).WithOp("write-header").WithPath(path)
	}
	w.offset = HeaderSize
	return w, nil
}

func (w *Writer) headerFlags() uint32 {
	var flags uint32
	if w.codec == IndexLZ4 {
		flags |= FlagIndexLZ4
	}
	if w.backup != nil {
		flags |= FlagManifestBackup
	}
	return flags
}

// ID returns the volume id.
func (w *Writer) ID() int { return w.id }

// Path returns the final (post-rename) path.
func (w *Writer) Path() string { return w.path }

// PayloadBytes returns the payload size written so far.
func (w *Writer) PayloadBytes() int64 { return w.offset - HeaderSize }

// Append writes one parity chunk and records its index entry. data
// must be exactly chunk_size bytes.
func (w *Writer) Append(stripeID int64, parityIndex int, data []byte) error {
	if len(data) != w.chunkSize {
		return parxerr.Errorf(parxerr.KindInternal,
			"parity chunk is %d bytes, want %d", len(data), w.chunkSize)
	}
	if _, err := w.pending.Write(data); err != nil {
		return parxerr.E(parxerr.KindIO, err).WithOp("write-parity").WithPath(w.path)
	}
	w.entries = append(w.entries, Entry{
		Stripe:      stripeID,
		ParityIndex: parityIndex,
		Offset:      w.offset,
		Length:      int64(len(data)),
		Hash:        integrity.ChunkHash(data),
	})
	w.offset += int64(len(data))
	return nil
}

// SetManifestBackup schedules a compressed copy of the manifest to
// be embedded between payload and index. Must be called before
// Finalize; conventionally only volume 0 carries a backup.
func (w *Writer) SetManifestBackup(manifestJSON []byte) {
	w.backup = manifestJSON
}

// Finalize writes the optional manifest backup, the compressed
// index, and the trailer, then fsyncs and renames the temporary to
// its final name. After Finalize the volume is visible and
// immutable.
func (w *Writer) Finalize() error {
	doc := indexDoc{Entries: w.entries}

	if w.backup != nil {
		compressed := zstdEncoder.EncodeAll(w.backup, nil)
		doc.ManifestBackup = &backupRef{
			Offset: w.offset,
			Length: int64(len(compressed)),
			CRC32:  crc32.ChecksumIEEE(compressed),
		}
		if _, err := w.pending.Write(compressed); err != nil {
			return parxerr.E(parxerr.KindIO, err).WithOp("write-backup").WithPath(w.path)
		}
		w.offset += int64(len(compressed))
	}

	raw, err := cbor.Marshal(&doc)
	if err != nil {
		return parxerr.E(parxerr.KindInternal, err).WithOp("encode-index").WithPath(w.path)
	}
	compressed, err := compressIndex(raw, w.codec)
	if err != nil {
		return parxerr.E(parxerr.KindInternal, err).WithOp("compress-index").WithPath(w.path)
	}

	indexOffset := w.offset
	if _, err := w.pending.Write(compressed); err != nil {
		return parxerr.E(parxerr.KindIO, err).WithOp("write-index").WithPath(w.path)
	}
	w.offset += int64(len(compressed))

	trailer := make([]byte, TrailerSize)
	binary.LittleEndian.PutUint64(trailer[0:], uint64(indexOffset))
	binary.LittleEndian.PutUint64(trailer[8:], uint64(len(compressed)))
	binary.LittleEndian.PutUint32(trailer[16:], crc32.ChecksumIEEE(compressed))
	copy(trailer[20:], footerMagic[:])
	if _, err := w.pending.Write(trailer); err != nil {
		return parxerr.E(parxerr.KindIO, err).WithOp("write-trailer").WithPath(w.path)
	}

	// Rewrite the header so the flags reflect the backup decision.
	header := make([]byte, HeaderSize)
	copy(header, headerMagic[:])
	binary.LittleEndian.PutUint32(header[8:], uint32(w.id))
	binary.LittleEndian.PutUint32(header[12:], w.headerFlags())
	binary.LittleEndian.PutUint32(header[16:], uint32(w.chunkSize))
	if _, err := w.pending.File().WriteAt(header, 0); err != nil {
		return parxerr.E(parxerr.KindIO, err).WithOp("rewrite-header").WithPath(w.path)
	}

	return w.pending.Commit()
}

// Abort discards the temporary file; the final name never appears.
func (w *Writer) Abort() {
	w.pending.Cleanup()
}
