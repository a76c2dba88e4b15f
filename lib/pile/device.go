// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package pile

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// mappedFile owns the pile's file descriptor, its memory mappings,
// and its advisory lock. Reads go through a memory map for
// zero-syscall overhead once pages are resident; appends use a single
// vectored write relying on O_APPEND for atomicity.
//
// Growing the file never remaps in place: each growth creates a fresh
// mapping covering [0, length) and appends it to regions. Prior
// mappings are kept alive — never unmapped — until Close. Go's
// garbage collector has no hook into munmap timing, so this is the
// safe substitute for reference-counting individual byte slices: a
// slice handed out from an earlier mapping stays valid for the life
// of the mappedFile no matter how many times the file has grown
// since. The cost is that stale mappings outlive their last reader,
// which is acceptable for a single-process-lifetime cache.
type mappedFile struct {
	fd int

	mu      sync.Mutex
	regions [][]byte
}

// openMappedFile creates the pile file if absent and maps its current
// contents (zero-length files map to an empty region).
func openMappedFile(path string) (*mappedFile, error) {
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening pile file %s: %w", path, err)
	}

	mf := &mappedFile{fd: fd}

	size, err := mf.Len()
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stating pile file %s: %w", path, err)
	}

	if _, err := mf.grow(size); err != nil {
		unix.Close(fd)
		return nil, err
	}

	return mf, nil
}

// Len returns the current file length from the OS, not from any
// mapping (a mapping may lag behind concurrent appends by other
// processes).
func (mf *mappedFile) Len() (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(mf.fd, &st); err != nil {
		return 0, fmt.Errorf("fstat: %w", err)
	}
	return st.Size, nil
}

// Bytes returns a byte slice covering [0, length) of the file,
// growing the mapping first if the current mapping is smaller. The
// returned slice remains valid for the life of the mappedFile.
func (mf *mappedFile) Bytes(length int64) ([]byte, error) {
	data, err := mf.grow(length)
	if err != nil {
		return nil, err
	}
	return data[:length], nil
}

func (mf *mappedFile) grow(length int64) ([]byte, error) {
	mf.mu.Lock()
	defer mf.mu.Unlock()

	if n := len(mf.regions); n > 0 {
		current := mf.regions[n-1]
		if int64(len(current)) >= length {
			return current, nil
		}
	}
	return mf.mapLocked(length)
}

func (mf *mappedFile) mapLocked(length int64) ([]byte, error) {
	if length == 0 {
		region := []byte{}
		mf.regions = append(mf.regions, region)
		return region, nil
	}

	data, err := unix.Mmap(mf.fd, 0, int(length), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("memory-mapping pile file (%d bytes): %w", length, err)
	}
	mf.regions = append(mf.regions, data)
	return data, nil
}

// Append issues a single vectored appending write (header, payload,
// and zero padding as separate iovecs, avoiding an intermediate
// concatenation buffer). The file descriptor was opened with
// O_APPEND, so the kernel guarantees the write lands atomically at
// the current end of file even if another process appends
// concurrently. The returned offset is best-effort — resolved
// authoritatively by the next scan.
func (mf *mappedFile) Append(buffers ...[]byte) (int64, error) {
	offset, err := mf.Len()
	if err != nil {
		return 0, fmt.Errorf("statting pile file before append: %w", err)
	}

	iovecs := make([][]byte, 0, len(buffers))
	for _, b := range buffers {
		if len(b) > 0 {
			iovecs = append(iovecs, b)
		}
	}
	if len(iovecs) > 0 {
		if _, err := unix.Writev(mf.fd, iovecs); err != nil {
			return 0, fmt.Errorf("appending to pile file: %w", err)
		}
	}
	return offset, nil
}

// LockShared acquires the advisory shared lock, blocking until
// available. Shared locks serialize with exclusive locks but not with
// each other.
func (mf *mappedFile) LockShared() error {
	return flockRetry(mf.fd, unix.LOCK_SH)
}

// LockExclusive acquires the advisory exclusive lock, blocking until
// available.
func (mf *mappedFile) LockExclusive() error {
	return flockRetry(mf.fd, unix.LOCK_EX)
}

// Unlock releases whichever advisory lock is held.
//
// Callers must never call LockShared while already holding the
// exclusive lock (or vice versa) on the same descriptor: flock(2)
// converts an already-held lock to the newly requested mode rather
// than stacking, which would silently downgrade a critical section
// mid-flight. Acquire Unlock before requesting the other mode.
func (mf *mappedFile) Unlock() error {
	return flockRetry(mf.fd, unix.LOCK_UN)
}

func flockRetry(fd int, how int) error {
	for {
		err := unix.Flock(fd, how)
		if err != unix.EINTR {
			if err != nil {
				return fmt.Errorf("flock: %w", err)
			}
			return nil
		}
	}
}

// Truncate shrinks the file to newLen and unconditionally establishes
// a fresh mapping at the new size. Unlike ordinary growth, truncation
// never reuses the existing mapping: the prior mapping's pages beyond
// newLen now refer to bytes the file no longer has, and touching them
// would fault. The prior mapping is still kept in regions (per the
// never-unmap-until-Close policy) but nothing will read past newLen
// through it: Restore truncates only to the applied watermark, and no
// index entry points at bytes beyond that watermark.
func (mf *mappedFile) Truncate(newLen int64) error {
	if err := unix.Ftruncate(mf.fd, newLen); err != nil {
		return fmt.Errorf("truncating pile file to %d bytes: %w", newLen, err)
	}

	mf.mu.Lock()
	defer mf.mu.Unlock()
	_, err := mf.mapLocked(newLen)
	return err
}

// Close unmaps every mapping ever created for this file and closes
// the descriptor.
func (mf *mappedFile) Close() error {
	mf.mu.Lock()
	defer mf.mu.Unlock()

	var firstErr error
	for _, region := range mf.regions {
		if len(region) == 0 {
			continue
		}
		if err := unix.Munmap(region); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("unmapping pile file: %w", err)
		}
	}
	mf.regions = nil

	if err := unix.Close(mf.fd); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing pile file: %w", err)
	}
	return firstErr
}
