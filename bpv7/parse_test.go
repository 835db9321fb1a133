// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"testing"

	"github.com/dtn7x/bpa/eid"
)

func testBundle(t *testing.T) Bundle {
	t.Helper()

	dest := eid.MustParse("dtn://desty/")
	source := eid.MustParse("dtn://gumo/")
	creationTs := NewCreationTimestamp(DtnTimeNow(), 0)

	primary := NewPrimaryBlock(StatusRequestDelivery, dest, source, creationTs, 42000000)

	payload := NewCanonicalBlock(1, 0, NewPayloadBlock([]byte("GuMo meine Kernel")))

	b, err := NewBundle(primary, []CanonicalBlock{payload})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestParseValidRoundTrip(t *testing.T) {
	b := testBundle(t)

	var buf bytes.Buffer
	if err := b.WriteBundle(&buf); err != nil {
		t.Fatal(err)
	}

	result := Parse(buf.Bytes())
	if result.Verdict != Valid {
		t.Fatalf("expected Valid, got %v (%v)", result.Verdict, result.Err)
	}

	// parse(emit(B)) = Valid(B): re-emitting the parsed bundle must match byte-for-byte.
	var buf2 bytes.Buffer
	if err := result.Bundle.WriteBundle(&buf2); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), buf2.Bytes()) {
		t.Fatalf("canonical re-emission mismatch")
	}
}

func TestParseRewrittenIndefiniteArray(t *testing.T) {
	b := testBundle(t)

	// Build the legacy RFC 9171 wire form: indefinite-length outer array.
	var buf bytes.Buffer
	buf.WriteByte(0x9f) // cboring.IndefiniteArray
	if err := b.PrimaryBlock.MarshalCbor(&buf); err != nil {
		t.Fatal(err)
	}
	for i := range b.CanonicalBlocks {
		if err := b.CanonicalBlocks[i].MarshalCbor(&buf); err != nil {
			t.Fatal(err)
		}
	}
	buf.WriteByte(0xff) // cboring.BreakCode

	result := Parse(buf.Bytes())
	if result.Verdict != Rewritten {
		t.Fatalf("expected Rewritten, got %v (%v)", result.Verdict, result.Err)
	}

	reparsed := Parse(result.Rewrite)
	if reparsed.Verdict != Valid {
		t.Fatalf("rewrite must reparse as Valid, got %v (%v)", reparsed.Verdict, reparsed.Err)
	}
}

func TestParseInvalidGarbage(t *testing.T) {
	result := Parse([]byte{0xff, 0xff, 0xff})
	if result.Verdict != Invalid {
		t.Fatalf("expected Invalid, got %v", result.Verdict)
	}
}

func TestParseInvalidBrokenBundle(t *testing.T) {
	b := testBundle(t)
	b.CanonicalBlocks = nil // no payload block: fails CheckValid

	var buf bytes.Buffer
	if err := b.WriteBundle(&buf); err != nil {
		t.Fatal(err)
	}

	result := Parse(buf.Bytes())
	if result.Verdict != Invalid {
		t.Fatalf("expected Invalid for a bundle missing its payload block, got %v", result.Verdict)
	}
}
