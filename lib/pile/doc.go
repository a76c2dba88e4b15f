// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pile implements the durable, content-addressed storage
// engine that backs a versioned triple-store repository. A pile is a
// single file holding two kinds of 64-byte-aligned records: immutable
// blobs, addressed by the BLAKE3 hash of their payload, and mutable
// branch-head pointers, addressed by a 128-bit branch identifier.
//
// The package is organized leaves-first:
//
//   - record.go: the bit-exact codec for both record layouts. Encodes
//     write headers; parses read them back, recognizing a truncated
//     tail as the ordinary end-of-file case rather than an error.
//
//   - device.go: the memory-mapped file, its advisory lock, and its
//     vectored append. Growth never remaps in place — each growth
//     creates a fresh, independent mapping and keeps every prior one
//     alive until Close, so a byte slice handed to a caller stays
//     valid no matter how many times the file has grown since.
//
//   - index.go: the in-memory blob index, branch index, and the two
//     per-process sets (pending appends, validated hashes) that
//     support deduplication and lazy content verification. None of
//     this is persisted; every Open reconstructs it from a scan.
//
//   - scanner.go: walks bytes beyond the applied-length watermark,
//     applying well-formed records to the indices. A file that
//     shrinks below the watermark between two scans means
//     already-validated byte handles have vanished underneath a live
//     reader — that state aborts the process rather than attempting
//     recovery.
//
//   - pile.go: the public Pile type — Open, Restore, Refresh, Put,
//     Update, Head, Branches, Reader, Close.
//
//   - reader.go: PileReader, the lock-free snapshot returned by
//     Pile.Reader.
//
// Content hashing treats BLAKE3 as an opaque collision-resistant
// function; no caller observes the algorithm directly, only the 256-
// bit Hash type. Multiple goroutines may share one Pile; multiple
// processes may share one pile file, provided the filesystem
// guarantees atomic appending writes — Open heuristically rejects
// filesystems known not to.
package pile
