// SPDX-License-Identifier: GPL-3.0-or-later

package editor

import (
	"bytes"
	"testing"

	"github.com/dtn7x/bpa/bpsec"
	"github.com/dtn7x/bpa/bpv7"
	"github.com/dtn7x/bpa/eid"
)

func testBundle(t *testing.T) bpv7.Bundle {
	t.Helper()

	dest := eid.MustParse("dtn://desty/")
	source := eid.MustParse("dtn://gumo/")
	ts := bpv7.NewCreationTimestamp(bpv7.DtnTimeNow(), 0)
	primary := bpv7.NewPrimaryBlock(0, dest, source, ts, 42000000)
	payload := bpv7.NewCanonicalBlock(1, 0, bpv7.NewPayloadBlock([]byte("top secret plaintext")))

	b, err := bpv7.NewBundle(primary, []bpv7.CanonicalBlock{payload})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestNoOpEditIsNoOp(t *testing.T) {
	b := testBundle(t)

	var want bytes.Buffer
	if err := b.WriteBundle(&want); err != nil {
		t.Fatal(err)
	}

	got, err := New(b).Rebuild()
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	if !bytes.Equal(want.Bytes(), got) {
		t.Fatal("expected a no-op edit to round-trip to the original bytes")
	}
}

func TestAddAndRemoveExtensionBlock(t *testing.T) {
	b := testBundle(t)

	ed, err := New(b).AddExtensionBlock(bpv7.NewHopCountBlock(16), 0)
	if err != nil {
		t.Fatalf("AddExtensionBlock failed: %v", err)
	}

	var addedNo uint64
	for _, cb := range ed.Bundle.CanonicalBlocks {
		if cb.TypeCode() == bpv7.ExtBlockTypeHopCountBlock {
			addedNo = cb.BlockNumber
		}
	}
	if addedNo == 0 {
		t.Fatal("expected a HopCountBlock to have been added")
	}

	ed, err = ed.RemoveExtensionBlock(addedNo)
	if err != nil {
		t.Fatalf("RemoveExtensionBlock failed: %v", err)
	}
	if _, err := ed.Bundle.ExtensionBlockByNumber(addedNo); err == nil {
		t.Fatal("expected the block to be gone after removal")
	}
}

func TestRemoveExtensionBlockRejectsPayload(t *testing.T) {
	b := testBundle(t)
	if _, err := New(b).RemoveExtensionBlock(1); err == nil {
		t.Fatal("expected removing the payload block to fail")
	}
}

func TestSignThenRemoveIntegrity(t *testing.T) {
	b := testBundle(t)
	source := eid.MustParse("dtn://gumo/")
	ks := bpsec.StaticKeySource{{ID: "k1", Secret: []byte("a shared hmac secret")}}

	ed, err := New(b).Sign([]uint64{1}, source, ks)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	bundled := ed.Bundle
	if err := bpsec.Verify(&bundled, 1, ks); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	ed, err = New(bundled).RemoveIntegrity(1)
	if err != nil {
		t.Fatalf("RemoveIntegrity failed: %v", err)
	}
	if len(ed.Bundle.CanonicalBlocks) != 1 {
		t.Fatalf("expected the BIB to be removed, got %d blocks", len(ed.Bundle.CanonicalBlocks))
	}
}

func TestEncryptThenRemoveEncryptionRestoresPlaintext(t *testing.T) {
	b := testBundle(t)
	source := eid.MustParse("dtn://gumo/")
	ks := bpsec.StaticKeySource{{ID: "k1", Secret: make([]byte, 32)}}

	ed, err := New(b).Encrypt(1, source, ks)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	ed, err = New(ed.Bundle).RemoveEncryption(1, ks)
	if err != nil {
		t.Fatalf("RemoveEncryption failed: %v", err)
	}

	payload, err := ed.Bundle.PayloadBlock()
	if err != nil {
		t.Fatal(err)
	}
	if string(payload.Value.(*bpv7.PayloadBlock).Data()) != "top secret plaintext" {
		t.Fatal("expected the payload to be restored to plaintext")
	}
}

func TestMutatorLeavesEditorUnchangedOnError(t *testing.T) {
	b := testBundle(t)
	ed := New(b)

	failed, err := ed.RemoveExtensionBlock(99)
	if err == nil {
		t.Fatal("expected removing an unknown block number to fail")
	}
	if len(failed.Bundle.CanonicalBlocks) != len(ed.Bundle.CanonicalBlocks) {
		t.Fatal("expected the editor to be returned unchanged on error")
	}
}
