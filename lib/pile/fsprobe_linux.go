// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package pile

import "golang.org/x/sys/unix"

// Filesystem magic numbers (see statfs(2)) for filesystems known not
// to guarantee atomic appending writes: NFS (both versions share a
// magic), CIFS/SMB2, and FUSE-backed mounts (which may or may not be
// atomic depending on the backing implementation — treated
// conservatively as unsupported).
const (
	magicNFS  = 0x6969
	magicCIFS = 0xff534d42
	magicSMB2 = 0xfe534d42
	magicFUSE = 0x65735546
)

// unsupportedFilesystem heuristically reports whether the open file
// descriptor fd lives on a filesystem that cannot be relied on for
// atomic appending writes.
func unsupportedFilesystem(fd int) (bool, error) {
	var st unix.Statfs_t
	if err := unix.Fstatfs(fd, &st); err != nil {
		return false, err
	}

	switch int64(st.Type) {
	case magicNFS, magicCIFS, magicSMB2, magicFUSE:
		return true, nil
	default:
		return false, nil
	}
}
