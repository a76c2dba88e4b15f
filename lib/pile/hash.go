// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pile

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is the 256-bit content digest used to address blobs. The pile
// treats hashing as an opaque collision-resistant function; the
// choice of algorithm is an implementation detail of this package,
// not a property external callers may depend on.
type Hash [32]byte

// BranchID is the 128-bit identifier naming a branch's mutable head
// pointer.
type BranchID [16]byte

// blobDomainKey is a 32-byte key for BLAKE3 keyed hashing. Domain
// separation means the pile's content hashes can never collide with a
// hash computed for an unrelated purpose elsewhere in the process,
// even over identical bytes.
var blobDomainKey = [32]byte{
	't', 'r', 'i', 'b', 'l', 'e', 's', '.', 'p', 'i', 'l', 'e', '.',
	'b', 'l', 'o', 'b', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// ComputeHash returns the keyed BLAKE3 digest of payload under the
// pile's blob domain.
func ComputeHash(payload []byte) Hash {
	hasher, err := blake3.NewKeyed(blobDomainKey[:])
	if err != nil {
		panic("pile: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(payload)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// FormatHash returns the hex encoding of a hash, the canonical form
// used in CLI output and log records.
func FormatHash(hash Hash) string {
	return hex.EncodeToString(hash[:])
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing pile hash: %w", err)
	}
	if len(decoded) != len(hash) {
		return hash, fmt.Errorf("pile hash is %d bytes, want %d", len(decoded), len(hash))
	}
	copy(hash[:], decoded)
	return hash, nil
}

// FormatBranchID returns the hex encoding of a branch identifier.
func FormatBranchID(id BranchID) string {
	return hex.EncodeToString(id[:])
}

// ParseBranchID parses a 32-character hex string into a BranchID.
func ParseBranchID(hexString string) (BranchID, error) {
	var id BranchID
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return id, fmt.Errorf("parsing branch id: %w", err)
	}
	if len(decoded) != len(id) {
		return id, fmt.Errorf("branch id is %d bytes, want %d", len(decoded), len(id))
	}
	copy(id[:], decoded)
	return id, nil
}
