// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pile

import "iter"

// PileReader is a frozen snapshot of a pile: a byte range, a copy of
// the blob index, and a copy of the branch index as of the moment it
// was produced by Pile.Reader. It serves lookups without acquiring
// any lock — later writes to the pile are simply invisible to an
// already-constructed reader, by design (§3.3, §5 of the scheme this
// package implements).
type PileReader struct {
	data []byte

	blobs     map[Hash]blobEntry
	branches  map[BranchID]Hash
	validated *validatedSet
}

// Get resolves handle to its payload bytes. Returns nil, false if the
// handle is not present in this snapshot. The first time a given
// handle is resolved by any reader sharing this pile's validated set,
// the payload is re-hashed and compared against handle; on mismatch,
// Get returns nil, false and does not cache the negative result (the
// hash mismatch is not expected to ever resolve itself, since records
// are immutable, but the discipline avoids permanently caching a
// false negative from a transient read).
func (r *PileReader) Get(handle Hash) ([]byte, bool) {
	entry, ok := r.blobs[handle]
	if !ok {
		return nil, false
	}

	payload := r.data[entry.offset : entry.offset+entry.length]

	if !r.validated.has(handle) {
		if ComputeHash(payload) != handle {
			return nil, false
		}
		r.validated.mark(handle)
	}

	return payload, true
}

// Metadata returns the timestamp and length recorded for handle,
// applying the same lazy content-validation discipline as Get.
func (r *PileReader) Metadata(handle Hash) (BlobMetadata, bool) {
	entry, ok := r.blobs[handle]
	if !ok {
		return BlobMetadata{}, false
	}

	if !r.validated.has(handle) {
		payload := r.data[entry.offset : entry.offset+entry.length]
		if ComputeHash(payload) != handle {
			return BlobMetadata{}, false
		}
		r.validated.mark(handle)
	}

	return BlobMetadata{Timestamp: entry.timestamp, Length: entry.length}, true
}

// All iterates every (handle, metadata) pair in the snapshot, applying
// the same lazy validation as Get and Metadata. Blobs that fail
// validation are skipped rather than surfaced as an error, matching
// the per-blob localization of hash mismatches elsewhere in this
// package.
func (r *PileReader) All() iter.Seq2[Hash, BlobMetadata] {
	return func(yield func(Hash, BlobMetadata) bool) {
		for handle, entry := range r.blobs {
			if !r.validated.has(handle) {
				payload := r.data[entry.offset : entry.offset+entry.length]
				if ComputeHash(payload) != handle {
					continue
				}
				r.validated.mark(handle)
			}

			if !yield(handle, BlobMetadata{Timestamp: entry.timestamp, Length: entry.length}) {
				return
			}
		}
	}
}

// Head returns the head hash of branchID as observed in this
// snapshot.
func (r *PileReader) Head(branchID BranchID) (Hash, bool) {
	head, ok := r.branches[branchID]
	return head, ok
}

// Branches returns every branch ID present in this snapshot. Order is
// unspecified.
func (r *PileReader) Branches() []BranchID {
	ids := make([]BranchID, 0, len(r.branches))
	for id := range r.branches {
		ids = append(ids, id)
	}
	return ids
}
