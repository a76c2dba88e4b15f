// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package pile

import "testing"

func TestReaderGetMissingHandle(t *testing.T) {
	p := openTestPile(t)

	reader, err := p.Reader()
	if err != nil {
		t.Fatalf("Reader: %v", err)
	}

	missing := ComputeHash([]byte("never written"))
	if _, ok := reader.Get(missing); ok {
		t.Fatal("Get reported a handle that was never put")
	}
	if _, ok := reader.Metadata(missing); ok {
		t.Fatal("Metadata reported a handle that was never put")
	}
}

func TestReaderGetDetectsHashMismatch(t *testing.T) {
	p := openTestPile(t)

	handle, err := p.Put([]byte("original"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	reader, err := p.Reader()
	if err != nil {
		t.Fatalf("Reader: %v", err)
	}

	// Corrupt the blob index entry in this snapshot directly (the
	// on-disk bytes are untouched) to simulate a payload that no
	// longer hashes to its recorded handle, and confirm Get reports it
	// as absent rather than returning the wrong bytes.
	entry := reader.blobs[handle]
	entry.length = entry.length - 1
	reader.blobs[handle] = entry

	if _, ok := reader.Get(handle); ok {
		t.Error("Get returned a payload whose bytes do not hash to the handle")
	}
}

func TestReaderAllSkipsNothingWhenAllValid(t *testing.T) {
	p := openTestPile(t)

	want := map[Hash]bool{}
	for _, payload := range [][]byte{[]byte("one"), []byte("two"), []byte("three")} {
		h, err := p.Put(payload)
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		want[h] = true
	}

	reader, err := p.Reader()
	if err != nil {
		t.Fatalf("Reader: %v", err)
	}

	got := map[Hash]bool{}
	for handle := range reader.All() {
		got[handle] = true
	}

	if len(got) != len(want) {
		t.Fatalf("All() yielded %d handles, want %d", len(got), len(want))
	}
	for h := range want {
		if !got[h] {
			t.Errorf("All() did not yield handle %x", h)
		}
	}
}

func TestReaderAllStopsOnFalseReturnFromYield(t *testing.T) {
	p := openTestPile(t)

	for _, payload := range [][]byte{[]byte("a"), []byte("b"), []byte("c")} {
		if _, err := p.Put(payload); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	reader, err := p.Reader()
	if err != nil {
		t.Fatalf("Reader: %v", err)
	}

	count := 0
	for range reader.All() {
		count++
		if count == 1 {
			break
		}
	}
	if count != 1 {
		t.Errorf("iteration continued past the break: count = %d", count)
	}
}

func TestReaderBranchesAndHead(t *testing.T) {
	p := openTestPile(t)

	var idA, idB BranchID
	copy(idA[:], []byte("branch-a"))
	copy(idB[:], []byte("branch-b"))

	headA, _ := p.Put([]byte("a-head"))
	if _, _, err := p.Update(idA, nil, headA); err != nil {
		t.Fatalf("Update: %v", err)
	}
	headB, _ := p.Put([]byte("b-head"))
	if _, _, err := p.Update(idB, nil, headB); err != nil {
		t.Fatalf("Update: %v", err)
	}

	reader, err := p.Reader()
	if err != nil {
		t.Fatalf("Reader: %v", err)
	}

	branches := reader.Branches()
	if len(branches) != 2 {
		t.Fatalf("Branches() returned %d entries, want 2", len(branches))
	}

	got, ok := reader.Head(idA)
	if !ok || got != headA {
		t.Errorf("Head(idA) = (%v, %v), want (%v, true)", got, ok, headA)
	}
}
