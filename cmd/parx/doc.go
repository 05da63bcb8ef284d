// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// The parx binary protects directory trees with Reed-Solomon parity.
//
// Core commands:
//
//	parx create  --parity 35 --stripe-k 64 <root>   write a parity set
//	parx verify  <manifest> <root>                  re-hash against the manifest
//	parx audit   <manifest> <root>                  per-stripe recoverability
//	parx repair  <manifest> <root>                  reconstruct damaged chunks
//
// Parity-set maintenance:
//
//	parx quickcheck  <parity-dir>                   header/trailer/CRC validation
//	parx paritycheck <parity-dir>                   per-stripe parity presence
//
// Helpers:
//
//	parx hashcat <root>                             per-file BLAKE3 catalogue
//	parx split   <file>                             cut a file into pieces
//	parx outer-decode                               reserved (exits 69)
//
// Exit codes follow the sysexits convention: 0 success, 64 usage, 65
// invalid or corrupt data, 66 missing input, 69 feature unavailable,
// 70 internal error, 71 OS error (including held locks), 73 cannot
// create output, 74 I/O error, 77 permission denied, 78 bad
// configuration. With --json every command emits machine-readable
// results, and failures carry {code, kind, message, path?, op?}.
package main
