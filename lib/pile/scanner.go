// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pile

import "errors"

// applyNext walks data (the full mapped byte range from offset 0)
// starting at appliedLength, parsing and applying records one at a
// time, until it either runs out of well-formed bytes (the ordinary
// case at the current tail) or encounters a structurally invalid
// record.
//
// It returns the new applied length on success. Reaching the tail
// (errTruncatedRecord from parseRecord) is not an error: it simply
// means there is nothing more to apply yet, and the returned length
// is the offset of that tail. An unrecognized marker is reported as
// *CorruptPileError with ValidBytes set to the offset of the first bad
// record; applyNext never modifies the file itself.
func applyNext(data []byte, appliedLength int64, blobs *blobIndex, branches *branchIndex, pending *pendingSet) (int64, error) {
	offset := appliedLength

	for {
		record, err := parseRecord(data, offset)
		if err != nil {
			if errors.Is(err, errTruncatedRecord) {
				return offset, nil
			}
			if errors.Is(err, errUnknownMarker) {
				return offset, &CorruptPileError{ValidBytes: offset}
			}
			return offset, err
		}

		switch record.Kind {
		case RecordBlob:
			blobs.insertIfAbsent(record.Hash, blobEntry{
				offset:    record.PayloadOffset,
				timestamp: record.Timestamp,
				length:    record.Length,
			})
			pending.remove(record.Hash)

		case RecordBranch:
			branches.set(record.BranchID, record.Head)
		}

		offset = record.NextOffset
	}
}
