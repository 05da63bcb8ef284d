// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package volume

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/bureau-foundation/parx/lib/integrity"
	"github.com/bureau-foundation/parx/lib/parxerr"
)

// Volume is an opened, validated volume file with random access to
// its parity chunks. Volumes are read-only; the file handle is held
// until Close.
type Volume struct {
	// Path is the volume file path.
	Path string

	// ID is the volume id from the header.
	ID int

	// ChunkSize is the parity chunk size from the header.
	ChunkSize int

	// Flags is the raw header flag word.
	Flags uint32

	// Entries is the parsed index, in payload order.
	Entries []Entry

	file   *os.File
	size   int64
	backup *backupRef
	byKey  map[parityKey]int
}

type parityKey struct {
	stripe      int64
	parityIndex int
}

// Open reads and validates a volume: header magic, trailer magic,
// index CRC, index decompression within limits, and payload bounds
// of every entry. Trailer, index and bounds failures are volume-kind
// errors wrapping ErrTrailerCorrupt or ErrTruncated; a bad header
// magic or an over-limit entry count is a volume-kind error without
// a sentinel, and read failures are io-kind.
func Open(path string) (*Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, parxerr.E(parxerr.KindIO, err).WithOp("open-volume").WithPath(path)
	}
	v, err := open(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return v, nil
}

func open(f *os.File, path string) (*Volume, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, parxerr.E(parxerr.KindIO, err).WithOp("stat-volume").WithPath(path)
	}
	size := info.Size()
	if size < HeaderSize+TrailerSize {
		return nil, parxerr.E(parxerr.KindVolume,
			fmt.Errorf("file is %d bytes, smaller than header+trailer: %w", size, ErrTruncated)).WithPath(path)
	}

	var header [HeaderSize]byte
	if _, err := f.ReadAt(header[:], 0); err != nil {
		return nil, parxerr.E(parxerr.KindIO, err).WithOp("read-header").WithPath(path)
	}
	if [8]byte(header[:8]) != headerMagic {
		if string(header[:7]) == "PARXVOL" {
			return nil, parxerr.Errorf(parxerr.KindVolume,
				"volume format version %d not supported (this build reads version %d)",
				header[7], formatVersion).WithPath(path)
		}
		return nil, parxerr.Errorf(parxerr.KindVolume, "not a parx volume (bad header magic)").WithPath(path)
	}

	v := &Volume{
		Path:      path,
		ID:        int(binary.LittleEndian.Uint32(header[8:])),
		Flags:     binary.LittleEndian.Uint32(header[12:]),
		ChunkSize: int(binary.LittleEndian.Uint32(header[16:])),
		file:      f,
		size:      size,
	}

	var trailer [TrailerSize]byte
	if _, err := f.ReadAt(trailer[:], size-TrailerSize); err != nil {
		return nil, parxerr.E(parxerr.KindIO, err).WithOp("read-trailer").WithPath(path)
	}
	if [9]byte(trailer[20:]) != footerMagic {
		return nil, parxerr.E(parxerr.KindVolume,
			fmt.Errorf("bad footer magic: %w", ErrTrailerCorrupt)).WithPath(path)
	}

	indexOffset := int64(binary.LittleEndian.Uint64(trailer[0:]))
	indexLength := int64(binary.LittleEndian.Uint64(trailer[8:]))
	indexCRC := binary.LittleEndian.Uint32(trailer[16:])

	if indexOffset < HeaderSize || indexLength < 0 || indexOffset+indexLength > size-TrailerSize {
		return nil, parxerr.E(parxerr.KindVolume,
			fmt.Errorf("index region [%d, %d) outside file: %w", indexOffset, indexOffset+indexLength, ErrTrailerCorrupt)).WithPath(path)
	}

	compressed := make([]byte, indexLength)
	if _, err := f.ReadAt(compressed, indexOffset); err != nil {
		return nil, parxerr.E(parxerr.KindIO, err).WithOp("read-index").WithPath(path)
	}
	if crc32.ChecksumIEEE(compressed) != indexCRC {
		return nil, parxerr.E(parxerr.KindVolume,
			fmt.Errorf("index CRC mismatch: %w", ErrTrailerCorrupt)).WithPath(path)
	}

	raw, err := decompressIndex(compressed, v.Flags&FlagIndexLZ4 != 0)
	if err != nil {
		return nil, parxerr.E(parxerr.KindVolume,
			fmt.Errorf("%v: %w", err, ErrTrailerCorrupt)).WithPath(path)
	}

	var doc indexDoc
	if err := cbor.Unmarshal(raw, &doc); err != nil {
		return nil, parxerr.E(parxerr.KindVolume,
			fmt.Errorf("index decode: %v: %w", err, ErrTrailerCorrupt)).WithPath(path)
	}
	if len(doc.Entries) > maxIndexEntries {
		return nil, parxerr.Errorf(parxerr.KindVolume,
			"index has %d entries, limit %d", len(doc.Entries), maxIndexEntries).WithPath(path)
	}

	// Every entry must lie fully within the payload region.
	payloadEnd := indexOffset
	if doc.ManifestBackup != nil {
		payloadEnd = doc.ManifestBackup.Offset
	}
	v.byKey = make(map[parityKey]int, len(doc.Entries))
	for i, entry := range doc.Entries {
		if entry.Offset < HeaderSize || entry.Length < 0 || entry.Offset+entry.Length > payloadEnd {
			return nil, parxerr.E(parxerr.KindVolume,
				fmt.Errorf("entry %d region [%d, %d) outside payload: %w",
					i, entry.Offset, entry.Offset+entry.Length, ErrTruncated)).WithPath(path)
		}
		v.byKey[parityKey{entry.Stripe, entry.ParityIndex}] = i
	}
	v.Entries = doc.Entries
	v.backup = doc.ManifestBackup
	return v, nil
}

// Lookup finds the index entry for (stripe, parity index).
func (v *Volume) Lookup(stripeID int64, parityIndex int) (Entry, bool) {
	i, ok := v.byKey[parityKey{stripeID, parityIndex}]
	if !ok {
		return Entry{}, false
	}
	return v.Entries[i], true
}

// ReadParity reads the parity chunk for (stripe, parity index) and
// verifies it against the index entry's hash. A hash mismatch is a
// volume error: the chunk is present but rotted, and callers treat
// it like a missing shard.
func (v *Volume) ReadParity(stripeID int64, parityIndex int) ([]byte, error) {
	entry, ok := v.Lookup(stripeID, parityIndex)
	if !ok {
		return nil, parxerr.Errorf(parxerr.KindVolume,
			"no parity chunk for stripe %d index %d", stripeID, parityIndex).WithPath(v.Path)
	}
	data := make([]byte, entry.Length)
	if _, err := v.file.ReadAt(data, entry.Offset); err != nil {
		return nil, parxerr.E(parxerr.KindIO, err).WithOp("read-parity").WithPath(v.Path)
	}
	if integrity.ChunkHash(data) != entry.Hash {
		return nil, parxerr.Errorf(parxerr.KindVolume,
			"parity chunk stripe %d index %d failed hash check", stripeID, parityIndex).WithPath(v.Path)
	}
	return data, nil
}

// HasManifestBackup reports whether this volume embeds a manifest
// copy.
func (v *Volume) HasManifestBackup() bool {
	return v.backup != nil
}

// ManifestBackup extracts and decompresses the embedded manifest
// copy.
func (v *Volume) ManifestBackup() ([]byte, error) {
	if v.backup == nil {
		return nil, parxerr.Errorf(parxerr.KindVolume, "volume carries no manifest backup").WithPath(v.Path)
	}
	compressed := make([]byte, v.backup.Length)
	if _, err := v.file.ReadAt(compressed, v.backup.Offset); err != nil {
		return nil, parxerr.E(parxerr.KindIO, err).WithOp("read-backup").WithPath(v.Path)
	}
	if crc32.ChecksumIEEE(compressed) != v.backup.CRC32 {
		return nil, parxerr.Errorf(parxerr.KindVolume, "manifest backup CRC mismatch").WithPath(v.Path)
	}
	raw, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, parxerr.E(parxerr.KindVolume, fmt.Errorf("manifest backup decompress: %w", err)).WithPath(v.Path)
	}
	return raw, nil
}

// Close releases the file handle.
func (v *Volume) Close() error {
	if v.file == nil {
		return nil
	}
	err := v.file.Close()
	v.file = nil
	if err != nil {
		return parxerr.E(parxerr.KindIO, err).WithPath(v.Path)
	}
	return nil
}
