// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pile

import "testing"

func TestBlobIndexFirstWins(t *testing.T) {
	idx := newBlobIndex()
	hash := ComputeHash([]byte("x"))

	if !idx.insertIfAbsent(hash, blobEntry{offset: 10, length: 1}) {
		t.Fatal("first insert should report true")
	}
	if idx.insertIfAbsent(hash, blobEntry{offset: 999, length: 1}) {
		t.Fatal("second insert for the same hash should report false")
	}

	entry, ok := idx.get(hash)
	if !ok {
		t.Fatal("entry missing after insert")
	}
	if entry.offset != 10 {
		t.Errorf("offset = %d, want 10 (first-wins)", entry.offset)
	}
}

func TestBlobIndexSnapshotIsIndependent(t *testing.T) {
	idx := newBlobIndex()
	hash := ComputeHash([]byte("y"))
	idx.insertIfAbsent(hash, blobEntry{offset: 1, length: 1})

	snap := idx.snapshot()
	idx.insertIfAbsent(ComputeHash([]byte("z")), blobEntry{offset: 2, length: 1})

	if len(snap) != 1 {
		t.Errorf("snapshot mutated by later insert: len = %d, want 1", len(snap))
	}
}

func TestBranchIndexOverwrites(t *testing.T) {
	idx := newBranchIndex()
	var id BranchID
	copy(id[:], []byte("branch-a"))

	h1 := ComputeHash([]byte("head1"))
	h2 := ComputeHash([]byte("head2"))

	idx.set(id, h1)
	idx.set(id, h2)

	got, ok := idx.get(id)
	if !ok || got != h2 {
		t.Errorf("get() = (%v, %v), want (%v, true)", got, ok, h2)
	}
}

func TestPendingSetAddIfAbsent(t *testing.T) {
	p := newPendingSet()
	hash := ComputeHash([]byte("pending"))

	if !p.addIfAbsent(hash) {
		t.Fatal("first addIfAbsent should report true")
	}
	if p.addIfAbsent(hash) {
		t.Fatal("second addIfAbsent for the same hash should report false")
	}
	if !p.has(hash) {
		t.Fatal("has() should report true while pending")
	}

	p.remove(hash)
	if p.has(hash) {
		t.Fatal("has() should report false after remove")
	}
}

func TestValidatedSetMarksOnce(t *testing.T) {
	v := newValidatedSet()
	hash := ComputeHash([]byte("validated"))

	if v.has(hash) {
		t.Fatal("has() should report false before mark")
	}
	v.mark(hash)
	if !v.has(hash) {
		t.Fatal("has() should report true after mark")
	}
}
