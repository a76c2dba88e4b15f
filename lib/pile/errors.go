// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pile

import "fmt"

// CorruptPileError reports that the scanner encountered bytes beyond
// the watermark that do not parse as a valid record: an unrecognized
// magic marker. A blob whose declared length runs past the end of the
// file is not reported here; it is treated as a truncated tail.
// ValidBytes is the offset of the first byte that failed to parse —
// everything before it is a well-formed run of records.
//
// Recoverable via Restore, which truncates the file to ValidBytes.
type CorruptPileError struct {
	ValidBytes int64
}

func (e *CorruptPileError) Error() string {
	return fmt.Sprintf("corrupt pile: valid bytes end at offset %d", e.ValidBytes)
}

// ErrUnsupportedFilesystem is returned from Open when the target
// filesystem is heuristically detected as one that cannot guarantee
// atomic appending writes (certain networked or FUSE-backed
// filesystems). The pile does not promise correctness there.
var ErrUnsupportedFilesystem = fmt.Errorf("pile: filesystem does not support atomic appending writes")

// errTruncatedRecord is the internal structural error for "not enough
// bytes remain to parse a full record at this offset." It is the
// expected outcome when a scan reaches the current tail of the file
// and is not itself an error condition at the apply_next level — the
// scanner treats it as "stop here, this is the new watermark."
var errTruncatedRecord = fmt.Errorf("pile: truncated record")

// errUnknownMarker is the internal structural error for "the 16 bytes
// at this offset do not match either magic marker." Surfaced to
// callers as CorruptPileError.
var errUnknownMarker = fmt.Errorf("pile: unknown record marker")
