// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestEncodeBlobHeaderLayout(t *testing.T) {
	payload := []byte("hello")
	header, paddingLen, hash := encodeBlob(payload, 1234)

	if !bytes.Equal(header[0:16], magicBlob[:]) {
		t.Error("blob header does not start with magicBlob")
	}
	if got := binary.LittleEndian.Uint64(header[16:24]); got != 1234 {
		t.Errorf("timestamp = %d, want 1234", got)
	}
	if !bytes.Equal(header[32:64], hash[:]) {
		t.Error("header does not embed the payload hash at bytes 32:64")
	}

	// "hello" is 5 bytes; padded to 64.
	if paddingLen != 59 {
		t.Errorf("paddingLen = %d, want 59", paddingLen)
	}
}

func TestEncodeBranchHeaderLayout(t *testing.T) {
	var branchID BranchID
	copy(branchID[:], []byte("0123456789abcdef"))
	var head Hash
	copy(head[:], bytes.Repeat([]byte{0xAB}, 32))

	header := encodeBranch(branchID, head)

	if !bytes.Equal(header[0:16], magicBranch[:]) {
		t.Error("branch header does not start with magicBranch")
	}
	if !bytes.Equal(header[16:32], branchID[:]) {
		t.Error("branch header does not embed branch id at bytes 16:32")
	}
	if !bytes.Equal(header[32:64], head[:]) {
		t.Error("branch header does not embed head hash at bytes 32:64")
	}
}

func TestMagicMarkersAreDistinctAndNonPrefixing(t *testing.T) {
	if magicBlob == magicBranch {
		t.Fatal("magicBlob and magicBranch are identical")
	}
	if bytes.Equal(magicBlob[:1], magicBranch[:1]) && bytes.Equal(magicBlob[:], magicBranch[:]) {
		t.Fatal("markers must not be prefixes of one another")
	}
}

func TestParseRecordBlobRoundTrip(t *testing.T) {
	payload := []byte("round trip payload")
	header, paddingLen, hash := encodeBlob(payload, 42)

	buf := append(append(append([]byte{}, header[:]...), payload...), make([]byte, paddingLen)...)

	record, err := parseRecord(buf, 0)
	if err != nil {
		t.Fatalf("parseRecord: %v", err)
	}
	if record.Kind != RecordBlob {
		t.Fatalf("Kind = %v, want RecordBlob", record.Kind)
	}
	if record.Hash != hash {
		t.Error("parsed hash does not match encoded hash")
	}
	if record.Timestamp != 42 {
		t.Errorf("Timestamp = %d, want 42", record.Timestamp)
	}
	if record.Length != int64(len(payload)) {
		t.Errorf("Length = %d, want %d", record.Length, len(payload))
	}
	if record.PayloadOffset != recordHeaderSize {
		t.Errorf("PayloadOffset = %d, want %d", record.PayloadOffset, recordHeaderSize)
	}
	if record.NextOffset != int64(len(buf)) {
		t.Errorf("NextOffset = %d, want %d", record.NextOffset, len(buf))
	}
}

func TestParseRecordBranchRoundTrip(t *testing.T) {
	var branchID BranchID
	copy(branchID[:], []byte("branch-identifier"))
	var head Hash
	copy(head[:], bytes.Repeat([]byte{0x11}, 32))

	header := encodeBranch(branchID, head)

	record, err := parseRecord(header[:], 0)
	if err != nil {
		t.Fatalf("parseRecord: %v", err)
	}
	if record.Kind != RecordBranch {
		t.Fatalf("Kind = %v, want RecordBranch", record.Kind)
	}
	if record.BranchID != branchID {
		t.Error("parsed branch id does not match")
	}
	if record.Head != head {
		t.Error("parsed head does not match")
	}
	if record.NextOffset != recordHeaderSize {
		t.Errorf("NextOffset = %d, want %d", record.NextOffset, recordHeaderSize)
	}
}

func TestParseRecordTruncatedHeader(t *testing.T) {
	// Fewer than 16 bytes: can't even read the marker.
	_, err := parseRecord([]byte{1, 2, 3}, 0)
	if !errors.Is(err, errTruncatedRecord) {
		t.Fatalf("err = %v, want errTruncatedRecord", err)
	}

	// A full marker but fewer than 64 header bytes.
	short := append([]byte{}, magicBlob[:]...)
	short = append(short, make([]byte, 10)...)
	_, err = parseRecord(short, 0)
	if !errors.Is(err, errTruncatedRecord) {
		t.Fatalf("err = %v, want errTruncatedRecord", err)
	}
}

func TestParseRecordTruncatedPayload(t *testing.T) {
	payload := []byte("this payload is longer than what follows")
	header, _, _ := encodeBlob(payload, 1)

	// Header claims len(payload) bytes follow, but we only provide 3.
	buf := append(append([]byte{}, header[:]...), payload[:3]...)

	_, err := parseRecord(buf, 0)
	if !errors.Is(err, errTruncatedRecord) {
		t.Fatalf("err = %v, want errTruncatedRecord", err)
	}
}

func TestParseRecordUnknownMarker(t *testing.T) {
	garbage := bytes.Repeat([]byte{0xFF}, recordHeaderSize)
	_, err := parseRecord(garbage, 0)
	if !errors.Is(err, errUnknownMarker) {
		t.Fatalf("err = %v, want errUnknownMarker", err)
	}
}

func TestAlign64(t *testing.T) {
	tests := []struct{ in, want int64 }{
		{0, 0},
		{1, 64},
		{63, 64},
		{64, 64},
		{65, 128},
		{128, 128},
	}
	for _, tt := range tests {
		if got := align64(tt.in); got != tt.want {
			t.Errorf("align64(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
