// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package volume implements the on-disk parity volume container.
//
// Layout of one volume file (vol-NNN.parxv):
//
//	HEADER   (32 bytes)  magic+version | volume id | flags | chunk size | reserved
//	PAYLOAD  (append)    concatenated parity chunks, chunk_size bytes each
//	BACKUP   (optional)  zstd-compressed manifest copy (volume 0 only)
//	INDEX    (trailer)   compressed CBOR index document
//	TRAILER  (29 bytes)  index offset (u64 LE) | index length (u64 LE) |
//	                     crc32 of compressed index (u32 LE) | footer magic
//
// The reader discovers the index from the fixed-size trailer at the
// file tail, so a volume is readable without the manifest. Any file
// with the correct footer magic and CRC has a consistent index:
// writers produce the final name only by renaming a fully written,
// fsynced temporary.
package volume

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bureau-foundation/parx/lib/integrity"
	"github.com/bureau-foundation/parx/lib/parxerr"
)

// Format constants. These are protocol values: changing any of them
// breaks volume compatibility.
const (
	// formatVersion is embedded in the header magic's final byte.
	formatVersion = 1

	// HeaderSize is the fixed header length.
	HeaderSize = 32

	// TrailerSize is the fixed trailer length: 8 + 8 + 4 + 9.
	TrailerSize = 29

	// maxIndexBytes bounds the decompressed index, guarding readers
	// against corrupt or hostile trailers.
	maxIndexBytes = 32 * 1024 * 1024

	// maxIndexEntries bounds the entry count for the same reason.
	maxIndexEntries = 5_000_000
)

// headerMagic is the 8-byte volume signature: "PARXVOL" + version.
var headerMagic = [8]byte{'P', 'A', 'R', 'X', 'V', 'O', 'L', formatVersion}

// footerMagic terminates every volume file.
var footerMagic = [9]byte{'P', 'A', 'R', 'X', 'I', 'N', 'D', 'E', 'X'}

// Header flag bits.
const (
	// FlagIndexLZ4 marks the index as LZ4-frame compressed instead
	// of the default zstd.
	FlagIndexLZ4 uint32 = 1 << 0

	// FlagManifestBackup marks the presence of a manifest backup
	// blob between payload and index.
	FlagManifestBackup uint32 = 1 << 1
)

// IndexCompression selects the index trailer codec.
type IndexCompression uint8

const (
	// IndexZstd is the default index codec.
	IndexZstd IndexCompression = iota

	// IndexLZ4 trades ratio for decode speed on very large indexes.
	IndexLZ4
)

// Entry describes one parity chunk in a volume.
type Entry struct {
	// Stripe is the stripe id the parity chunk belongs to.
	Stripe int64 `json:"stripe"`

	// ParityIndex is the parity slot within the stripe, [0, M).
	ParityIndex int `json:"parity_index"`

	// Offset is the absolute file offset of the chunk bytes.
	Offset int64 `json:"offset"`

	// Length is the chunk byte length. Always chunk_size: short
	// stripes still store full-size shards (their empty data slots
	// are all-zero for the RS math).
	Length int64 `json:"length"`

	// Hash is the BLAKE3 of the parity chunk bytes alone, with no
	// stripe-id mixing, so a shard verifies straight from its
	// index entry.
	Hash integrity.Hash `json:"hash"`
}

// backupRef locates the optional manifest backup blob.
type backupRef struct {
	Offset int64  `json:"offset"`
	Length int64  `json:"length"`
	CRC32  uint32 `json:"crc32"`
}

// indexDoc is the CBOR document stored compressed in the trailer
// region.
type indexDoc struct {
	Entries        []Entry    `json:"entries"`
	ManifestBackup *backupRef `json:"manifest_backup,omitempty"`
}

// Sentinel errors, wrapped in volume-kind parxerr errors.
var (
	// ErrTrailerCorrupt covers footer magic mismatch and index CRC
	// failure.
	ErrTrailerCorrupt = errors.New("volume trailer corrupt")

	// ErrTruncated covers payload offsets past the file size.
	ErrTruncated = errors.New("volume truncated")
)

// Name returns the conventional volume file name, vol-NNN.parxv.
func Name(id int) string {
	return fmt.Sprintf("vol-%03d.parxv", id)
}

// List returns the sorted *.parxv paths in a parity directory. A
// missing directory yields an empty list: its volumes are all
// absent, which callers already account for shard by shard.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, parxerr.E(parxerr.KindInput, err).WithPath(dir)
	}
	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && filepath.Ext(e.Name()) == ".parxv" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Shared zstd codec state, reused across volumes. Both are safe for
// concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("volume: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxIndexBytes))
	if err != nil {
		panic("volume: zstd decoder initialization failed: " + err.Error())
	}
}

func compressIndex(raw []byte, codec IndexCompression) ([]byte, error) {
	switch codec {
	case IndexZstd:
		return zstdEncoder.EncodeAll(raw, nil), nil
	case IndexLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return nil, fmt.Errorf("lz4 compress index: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compress index: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown index compression %d", codec)
	}
}

func decompressIndex(compressed []byte, lz4Flag bool) ([]byte, error) {
	if lz4Flag {
		r := lz4.NewReader(bytes.NewReader(compressed))
		raw, err := io.ReadAll(io.LimitReader(r, maxIndexBytes+1))
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress index: %w", err)
		}
		if len(raw) > maxIndexBytes {
			return nil, fmt.Errorf("index exceeds %d bytes", maxIndexBytes)
		}
		return raw, nil
	}
	raw, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress index: %w", err)
	}
	if len(raw) > maxIndexBytes {
		return nil, fmt.Errorf("index exceeds %d bytes", maxIndexBytes)
	}
	return raw, nil
}
