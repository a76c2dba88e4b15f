// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pile

import "encoding/binary"

// recordHeaderSize is the fixed 64-byte header shared by both record
// kinds. Blob payloads follow the header; branch records have none.
const recordHeaderSize = 64

// recordAlignment is the grid every record begins on.
const recordAlignment = 64

// Magic markers. Neither is a prefix of the other, and both are
// unlikely to occur by chance in payload bytes — not that payload
// bytes are ever scanned for markers; markers are only parsed at
// expected record boundaries (offset 0 and every offset a prior
// record's NextOffset names).
var (
	magicBlob   = [16]byte{'t', 'r', 'b', 'l', 'p', 'i', 'l', 'e', '.', 'b', 'l', 'o', 'b', 0, 0, 1}
	magicBranch = [16]byte{'t', 'r', 'b', 'l', 'p', 'i', 'l', 'e', '.', 'b', 'r', 'n', 'c', 'h', 0, 1}
)

// RecordKind discriminates the two record layouts.
type RecordKind int

const (
	// RecordBlob is a content-addressed payload record.
	RecordBlob RecordKind = iota
	// RecordBranch is a mutable branch-head pointer record.
	RecordBranch
)

// Record is the parsed view of a single on-disk record. Which fields
// are meaningful depends on Kind: blob fields for RecordBlob, branch
// fields for RecordBranch. NextOffset is valid for either kind and
// names where the following record (if any) begins.
type Record struct {
	Kind RecordKind

	// Blob fields.
	Hash          Hash
	Timestamp     int64
	Length        int64
	PayloadOffset int64

	// Branch fields.
	BranchID BranchID
	Head     Hash

	NextOffset int64
}

// align64 rounds n up to the next multiple of 64.
func align64(n int64) int64 {
	return (n + recordAlignment - 1) &^ (recordAlignment - 1)
}

// encodeBlob serializes a blob record header for payload, stamped
// with timestampMillis (milliseconds since the Unix epoch). It
// returns the 64-byte header, the payload's content hash, and the
// number of zero padding bytes required after the payload to reach
// the next 64-byte boundary. The codec does not write the payload or
// padding bytes themselves — callers assemble the full vectored write
// from header, payload, and a zero buffer of the returned length.
func encodeBlob(payload []byte, timestampMillis int64) (header [recordHeaderSize]byte, paddingLen int, hash Hash) {
	hash = ComputeHash(payload)

	copy(header[0:16], magicBlob[:])
	binary.LittleEndian.PutUint64(header[16:24], uint64(timestampMillis))
	binary.LittleEndian.PutUint64(header[24:32], uint64(len(payload)))
	copy(header[32:64], hash[:])

	paddingLen = int(align64(int64(len(payload))) - int64(len(payload)))
	return header, paddingLen, hash
}

// encodeBranch serializes a complete 64-byte branch record.
func encodeBranch(branchID BranchID, head Hash) [recordHeaderSize]byte {
	var header [recordHeaderSize]byte
	copy(header[0:16], magicBranch[:])
	copy(header[16:32], branchID[:])
	copy(header[32:64], head[:])
	return header
}

// parseRecord inspects the record beginning at offset within data,
// which must be the full mapped byte range from file offset 0. It
// returns the parsed Record, or errTruncatedRecord if insufficient
// bytes remain for a well-formed record at offset (the ordinary case
// at the current tail of the file), or errUnknownMarker if the bytes
// at offset do not match either magic marker (structural corruption).
//
// parseRecord never hashes the payload; content validation is the
// reader's responsibility, performed lazily.
func parseRecord(data []byte, offset int64) (Record, error) {
	remaining := int64(len(data)) - offset
	if remaining < 16 {
		return Record{}, errTruncatedRecord
	}

	switch {
	case isMagic(data[offset:offset+16], magicBlob):
		if remaining < recordHeaderSize {
			return Record{}, errTruncatedRecord
		}

		lengthU64 := binary.LittleEndian.Uint64(data[offset+24 : offset+32])
		available := uint64(remaining - recordHeaderSize)
		if lengthU64 > available {
			return Record{}, errTruncatedRecord
		}
		length := int64(lengthU64)

		paddedLength := align64(length)
		if paddedLength > int64(available) {
			return Record{}, errTruncatedRecord
		}

		var hash Hash
		copy(hash[:], data[offset+32:offset+64])

		return Record{
			Kind:          RecordBlob,
			Hash:          hash,
			Timestamp:     int64(binary.LittleEndian.Uint64(data[offset+16 : offset+24])),
			Length:        length,
			PayloadOffset: offset + recordHeaderSize,
			NextOffset:    offset + recordHeaderSize + paddedLength,
		}, nil

	case isMagic(data[offset:offset+16], magicBranch):
		if remaining < recordHeaderSize {
			return Record{}, errTruncatedRecord
		}

		var branchID BranchID
		copy(branchID[:], data[offset+16:offset+32])
		var head Hash
		copy(head[:], data[offset+32:offset+64])

		return Record{
			Kind:       RecordBranch,
			BranchID:   branchID,
			Head:       head,
			NextOffset: offset + recordHeaderSize,
		}, nil

	default:
		return Record{}, errUnknownMarker
	}
}

func isMagic(candidate []byte, marker [16]byte) bool {
	for i := range marker {
		if candidate[i] != marker[i] {
			return false
		}
	}
	return true
}
