// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pile

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Pile is the public handle to an open pile file: the durable,
// content-addressed blob and branch store described by this package.
// A Pile is safe for concurrent use by multiple goroutines. Restore
// should be called once per process immediately after Open; Update,
// Head, Branches and Reader perform an implicit refresh before
// servicing the request, and Put refreshes right after its append.
type Pile struct {
	path   string
	device *mappedFile

	blobs     *blobIndex
	branches  *branchIndex
	pending   *pendingSet
	validated *validatedSet

	mu            sync.Mutex
	appliedLength int64
}

// Open creates the pile file at path if it does not already exist and
// maps its current contents. It does not scan the file — call Restore
// immediately afterward to reconstruct the in-memory indices and
// repair any torn tail left by a prior crash.
//
// Returns ErrUnsupportedFilesystem if path lives on a filesystem that
// cannot guarantee atomic appending writes.
func Open(path string) (*Pile, error) {
	device, err := openMappedFile(path)
	if err != nil {
		return nil, err
	}

	unsupported, err := unsupportedFilesystem(device.fd)
	if err != nil {
		device.Close()
		return nil, fmt.Errorf("probing filesystem for %s: %w", path, err)
	}
	if unsupported {
		device.Close()
		return nil, ErrUnsupportedFilesystem
	}

	return &Pile{
		path:      path,
		device:    device,
		blobs:     newBlobIndex(),
		branches:  newBranchIndex(),
		pending:   newPendingSet(),
		validated: newValidatedSet(),
	}, nil
}

// scanOnce runs one structural scan pass over bytes beyond the
// current applied length and advances it. It acquires no lock of its
// own — callers must already hold the shared or exclusive advisory
// lock appropriate to their operation. Restore and Refresh take their
// lock and then call scanOnce; Update takes the exclusive lock itself
// and calls scanOnce directly for its in-critical-section scans because
// calling Refresh there would flock(LOCK_SH) on a descriptor already
// holding LOCK_EX, which converts the lock to shared instead of
// nesting it.
func (p *Pile) scanOnce() error {
	fileLen, err := p.device.Len()
	if err != nil {
		return fmt.Errorf("reading pile length: %w", err)
	}

	p.mu.Lock()
	appliedLength := p.appliedLength
	p.mu.Unlock()

	if fileLen < appliedLength {
		panic(fmt.Sprintf(
			"pile: file shrank below applied watermark (file is %d bytes, %d bytes were already applied); already-validated byte handles would dangle",
			fileLen, appliedLength,
		))
	}

	data, err := p.device.Bytes(fileLen)
	if err != nil {
		return err
	}

	newLength, scanErr := applyNext(data, appliedLength, p.blobs, p.branches, p.pending)

	p.mu.Lock()
	p.appliedLength = newLength
	p.mu.Unlock()

	return scanErr
}

// Restore acquires the exclusive lock, scans, and truncates the file
// back to the applied watermark if any bytes beyond it failed to
// apply — whether because they are an incomplete tail record left by
// a torn append (the ordinary crash case) or because they are
// structurally invalid (CorruptPileError). Either way, truncating to
// the watermark is what keeps the file aligned to recordAlignment for
// the next append. Intended to be called once per process at startup,
// before Put, Update, Head, Branches, or Reader.
func (p *Pile) Restore() error {
	if err := p.device.LockExclusive(); err != nil {
		return err
	}
	defer p.device.Unlock()

	err := p.scanOnce()

	var corrupt *CorruptPileError
	if err != nil && !errors.As(err, &corrupt) {
		return err
	}

	p.mu.Lock()
	appliedLength := p.appliedLength
	p.mu.Unlock()

	fileLen, lenErr := p.device.Len()
	if lenErr != nil {
		return lenErr
	}

	if fileLen > appliedLength {
		if truncErr := p.device.Truncate(appliedLength); truncErr != nil {
			return fmt.Errorf("truncating torn tail at offset %d: %w", appliedLength, truncErr)
		}
	}

	p.pending.clear()
	return nil
}

// Refresh acquires the shared lock and scans. Unlike Restore, a
// corrupt tail is reported to the caller without truncation —
// truncating requires the exclusive lock Restore holds. Update, Head,
// Branches and Reader call Refresh implicitly before doing their own
// work; Put calls it after its append.
func (p *Pile) Refresh() error {
	if err := p.device.LockShared(); err != nil {
		return err
	}
	defer p.device.Unlock()

	return p.scanOnce()
}

// Put appends payload as a new blob record and returns its content
// hash as the handle. Idempotent: if the hash is already present in
// the blob index or is pending from a concurrent or very recent Put,
// the payload is not written again.
func (p *Pile) Put(payload []byte) (Hash, error) {
	hash := ComputeHash(payload)

	if p.blobs.has(hash) {
		return hash, nil
	}
	if !p.pending.addIfAbsent(hash) {
		// Another goroutine in this process is already writing this
		// payload. Returning here without appending again is always
		// safe: first-wins dedup means a redundant append would
		// merely waste bytes, never corrupt state.
		return hash, nil
	}
	// A concurrent Put may have appended and applied this hash between
	// the blob-index check above and addIfAbsent. The scanner inserts
	// into the blob index before it clears pending, so this re-check
	// catches that case.
	if p.blobs.has(hash) {
		p.pending.remove(hash)
		return hash, nil
	}

	header, paddingLen, _ := encodeBlob(payload, time.Now().UnixMilli())
	padding := make([]byte, paddingLen)

	if _, err := p.device.Append(header[:], payload, padding); err != nil {
		p.pending.remove(hash)
		return Hash{}, fmt.Errorf("appending blob record: %w", err)
	}

	if err := p.Refresh(); err != nil {
		return Hash{}, err
	}

	return hash, nil
}

// Update is the branch compare-and-set primitive. expected is the
// caller's belief about the branch's current head; nil means "I
// believe the branch does not exist yet." If the branch's actually
// observed head does not match expected, Update returns
// committed=false and observed set to the actual head (nil if the
// branch is absent) — a Conflict. Otherwise it appends a branch
// record pointing branchID at newHead, applies it, and returns
// committed=true.
//
// The branch record is written even though Update never confirms
// newHead names a blob present in this pile: heads-only deployments,
// which fetch blob contents from a remote store, are supported
// deliberately.
func (p *Pile) Update(branchID BranchID, expected *Hash, newHead Hash) (committed bool, observed *Hash, err error) {
	// Step 1: flush pending observations under the shared lock before
	// even attempting the exclusive section, so an uncontended Update
	// doesn't pay for a rescan it could have avoided by being current.
	if err := p.Refresh(); err != nil {
		return false, nil, err
	}

	if err := p.device.LockExclusive(); err != nil {
		return false, nil, err
	}
	defer p.device.Unlock()

	// Step 3: rescan inside the critical section to observe any writer
	// that committed between the refresh above and acquiring the
	// exclusive lock. scanOnce, not Refresh: Refresh would attempt a
	// second flock() call on an fd that already holds the exclusive
	// lock, which downgrades it instead of nesting.
	if scanErr := p.scanOnce(); scanErr != nil {
		return false, nil, scanErr
	}

	current, exists := p.branches.get(branchID)

	matches := (expected == nil && !exists) || (expected != nil && exists && *expected == current)
	if !matches {
		if !exists {
			return false, nil, nil
		}
		observedCopy := current
		return false, &observedCopy, nil
	}

	header := encodeBranch(branchID, newHead)
	if _, err := p.device.Append(header[:]); err != nil {
		return false, nil, fmt.Errorf("appending branch record: %w", err)
	}

	// Rescan rather than hand-advancing the watermark past this
	// record's best-effort offset: Put appends without any advisory
	// lock (blob writes are lock-free by design), so a blob may have
	// landed in [appliedLength, offset) between the scanOnce above and
	// this Append. scanOnce picks up the branch record just written
	// together with any such interleaved blob, instead of silently
	// skipping past it and leaving its hash stuck in pending forever.
	if scanErr := p.scanOnce(); scanErr != nil {
		return false, nil, scanErr
	}

	return true, nil, nil
}

// Head refreshes and returns the current head for branchID, or nil if
// the branch has never been set.
func (p *Pile) Head(branchID BranchID) (*Hash, error) {
	if err := p.Refresh(); err != nil {
		return nil, err
	}

	head, ok := p.branches.get(branchID)
	if !ok {
		return nil, nil
	}
	return &head, nil
}

// Branches refreshes and returns a snapshot of every branch ID known
// to the pile. Order is unspecified.
func (p *Pile) Branches() ([]BranchID, error) {
	if err := p.Refresh(); err != nil {
		return nil, err
	}

	snapshot := p.branches.snapshot()
	ids := make([]BranchID, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	return ids, nil
}

// Reader refreshes and returns a frozen snapshot that serves reads
// without acquiring any lock.
func (p *Pile) Reader() (*PileReader, error) {
	if err := p.Refresh(); err != nil {
		return nil, err
	}

	fileLen, err := p.device.Len()
	if err != nil {
		return nil, err
	}
	data, err := p.device.Bytes(fileLen)
	if err != nil {
		return nil, err
	}

	return &PileReader{
		data:      data,
		blobs:     p.blobs.snapshot(),
		branches:  p.branches.snapshot(),
		validated: p.validated,
	}, nil
}

// Close unmaps every mapping this pile ever created and closes the
// file descriptor. Callers must not use any PileReader obtained from
// this Pile after calling Close.
func (p *Pile) Close() error {
	return p.device.Close()
}
