// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/parx/lib/parxerr"
)

func writeFile(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWalkDeterministicOrder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b/two.bin", bytes.Repeat([]byte{2}, 300))
	writeFile(t, root, "a/one.bin", bytes.Repeat([]byte{1}, 100))
	writeFile(t, root, "zero.bin", nil)

	files, err := Walk(root, 256, WalkOptions{})
	if err != nil {
		t.Fatal(err)
	}

	wantPaths := []string{"a/one.bin", "b/two.bin", "zero.bin"}
	if len(files) != len(wantPaths) {
		t.Fatalf("got %d files, want %d", len(files), len(wantPaths))
	}
	for i, want := range wantPaths {
		if files[i].Path != want {
			t.Errorf("file %d: path %q, want %q", i, files[i].Path, want)
		}
	}

	// a/one.bin: 100 bytes → 1 chunk. b/two.bin: 300 bytes → 2 chunks.
	// zero.bin: 0 chunks.
	if files[0].FirstChunk != 0 || files[0].ChunkCount != 1 {
		t.Errorf("a/one.bin coordinates: %+v", files[0])
	}
	if files[1].FirstChunk != 1 || files[1].ChunkCount != 2 {
		t.Errorf("b/two.bin coordinates: %+v", files[1])
	}
	if files[2].ChunkCount != 0 {
		t.Errorf("zero.bin must own no chunks: %+v", files[2])
	}
	if TotalChunks(files) != 3 {
		t.Errorf("total chunks %d, want 3", TotalChunks(files))
	}
	if TotalBytes(files) != 400 {
		t.Errorf("total bytes %d, want 400", TotalBytes(files))
	}
}

func TestWalkExcludesParityDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "data.bin", []byte("data"))
	writeFile(t, root, ".parx/vol-000.parxv", []byte("parity"))

	files, err := Walk(root, 64, WalkOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Path != "data.bin" {
		t.Errorf("parity dir not excluded: %+v", files)
	}
}

func TestWalkIncludeExclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.dat", []byte("k"))
	writeFile(t, root, "skip.log", []byte("s"))
	writeFile(t, root, "sub/also.dat", []byte("a"))

	files, err := Walk(root, 64, WalkOptions{Include: []string{"*.dat"}})
	if err != nil {
		t.Fatal(err)
	}
	// Base-name matching admits sub/also.dat too.
	if len(files) != 2 {
		t.Fatalf("include filter: got %+v", files)
	}

	files, err = Walk(root, 64, WalkOptions{Exclude: []string{"*.log"}})
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range files {
		if f.Path == "skip.log" {
			t.Error("exclude filter did not drop skip.log")
		}
	}
}

func TestWalkRejectsSymlinkByDefault(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "real.bin", []byte("real"))
	if err := os.Symlink(filepath.Join(root, "real.bin"), filepath.Join(root, "link.bin")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := Walk(root, 64, WalkOptions{})
	if parxerr.KindOf(err) != parxerr.KindInput {
		t.Errorf("expected input error for symlink, got %v", err)
	}

	// Follow mode admits it: the target is inside the root.
	files, err := Walk(root, 64, WalkOptions{FollowSymlinks: true})
	if err != nil {
		t.Fatalf("follow mode: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("follow mode: got %+v", files)
	}
}

func TestWalkRejectsEscapingSymlink(t *testing.T) {
	outside := t.TempDir()
	writeFile(t, outside, "secret.bin", []byte("secret"))
	root := t.TempDir()
	if err := os.Symlink(filepath.Join(outside, "secret.bin"), filepath.Join(root, "leak.bin")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := Walk(root, 64, WalkOptions{FollowSymlinks: true})
	if parxerr.KindOf(err) != parxerr.KindInput {
		t.Errorf("expected input error for escaping symlink, got %v", err)
	}
}

func TestValidatePathRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"../escape", "a/../../escape", "/absolute"} {
		if _, err := ValidatePath(root, rel, false); parxerr.KindOf(err) != parxerr.KindInput {
			t.Errorf("ValidatePath(%q) = %v, want input error", rel, err)
		}
	}
	if _, err := ValidatePath(root, "ok/inside.bin", false); err != nil {
		t.Errorf("ValidatePath rejected a clean missing path: %v", err)
	}
}

func TestChunkerStreamsAndPads(t *testing.T) {
	root := t.TempDir()
	const chunkSize = 128
	// 200 bytes: one full chunk + one 72-byte tail.
	content := bytes.Repeat([]byte{0x5A}, 200)
	writeFile(t, root, "f.bin", content)

	files, err := Walk(root, chunkSize, WalkOptions{})
	if err != nil {
		t.Fatal(err)
	}

	chunker := NewChunker(root, files, chunkSize, false)
	defer chunker.Close()

	first, err := chunker.Next()
	if err != nil {
		t.Fatal(err)
	}
	if first.Global != 0 || first.Length != chunkSize || first.Offset != 0 {
		t.Errorf("first chunk: %+v", first)
	}
	if !bytes.Equal(first.Data, content[:chunkSize]) {
		t.Error("first chunk data mismatch")
	}

	second, err := chunker.Next()
	if err != nil {
		t.Fatal(err)
	}
	if second.Global != 1 || second.Length != 72 || second.Offset != chunkSize {
		t.Errorf("second chunk: %+v", second)
	}
	if !bytes.Equal(second.Data[:72], content[chunkSize:]) {
		t.Error("tail bytes mismatch")
	}
	for i := 72; i < chunkSize; i++ {
		if second.Data[i] != 0 {
			t.Fatalf("padding byte %d is %#x, want 0", i, second.Data[i])
		}
	}

	if _, err := chunker.Next(); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestLocate(t *testing.T) {
	files := []File{
		{Path: "a", Length: 300, FirstChunk: 0, ChunkCount: 2},
		{Path: "b", Length: 128, FirstChunk: 2, ChunkCount: 1},
	}
	const chunkSize = 256

	fi, off, length, err := Locate(files, chunkSize, 1)
	if err != nil || fi != 0 || off != 256 || length != 44 {
		t.Errorf("Locate(1) = (%d, %d, %d, %v)", fi, off, length, err)
	}

	fi, off, length, err = Locate(files, chunkSize, 2)
	if err != nil || fi != 1 || off != 0 || length != 128 {
		t.Errorf("Locate(2) = (%d, %d, %d, %v)", fi, off, length, err)
	}

	if _, _, _, err := Locate(files, chunkSize, 3); err == nil {
		t.Error("Locate past the table must fail")
	}
}

func TestReadChunkPadded(t *testing.T) {
	root := t.TempDir()
	content := []byte("short tail content")
	writeFile(t, root, "t.bin", content)

	files, err := Walk(root, 64, WalkOptions{})
	if err != nil {
		t.Fatal(err)
	}
	buf, err := ReadChunkPadded(root, files, 64, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf) != 64 || !bytes.Equal(buf[:len(content)], content) {
		t.Error("padded read mismatch")
	}
	for _, b := range buf[len(content):] {
		if b != 0 {
			t.Fatal("padding not zeroed")
		}
	}
}
