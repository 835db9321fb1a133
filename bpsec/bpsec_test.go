// SPDX-License-Identifier: GPL-3.0-or-later

package bpsec

import (
	"testing"

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

func TestSignVerifyRoundTrip(t *testing.T) {
	b := testBundle(t)
	source := eid.MustParse("dtn://gumo/")
	ks := StaticKeySource{{ID: "k1", Secret: []byte("a shared hmac secret")}}

	if err := Sign(&b, []uint64{1}, source, ks); err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if _, _, ok := bibFor(&b, 1); !ok {
		t.Fatal("expected a BIB covering block 1")
	}

	if err := Verify(&b, 1, ks); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
}

func TestVerifyDetectsTamper(t *testing.T) {
	b := testBundle(t)
	source := eid.MustParse("dtn://gumo/")
	ks := StaticKeySource{{ID: "k1", Secret: []byte("a shared hmac secret")}}

	if err := Sign(&b, []uint64{1}, source, ks); err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	payload, err := b.PayloadBlock()
	if err != nil {
		t.Fatal(err)
	}
	payload.Value = bpv7.NewPayloadBlock([]byte("tampered plaintext!!"))

	if err := Verify(&b, 1, ks); err == nil {
		t.Fatal("expected Verify to fail after payload tampering")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	b := testBundle(t)
	source := eid.MustParse("dtn://gumo/")
	ks := StaticKeySource{{ID: "k1", Secret: make([]byte, 32)}}

	if err := Encrypt(&b, 1, source, ks); err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	payload, err := b.PayloadBlock()
	if err != nil {
		t.Fatal(err)
	}
	if string(payload.Value.(*bpv7.PayloadBlock).Data()) == "top secret plaintext" {
		t.Fatal("expected payload to be replaced by ciphertext")
	}

	if err := Decrypt(&b, 1, ks); err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if string(payload.Value.(*bpv7.PayloadBlock).Data()) != "top secret plaintext" {
		t.Fatal("expected payload to be restored to plaintext")
	}
}

func TestRemoveEncryptionRestoresPlaintextAndDeletesBCB(t *testing.T) {
	b := testBundle(t)
	source := eid.MustParse("dtn://gumo/")
	ks := StaticKeySource{{ID: "k1", Secret: make([]byte, 32)}}

	if err := Encrypt(&b, 1, source, ks); err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if err := RemoveEncryption(&b, 1, ks); err != nil {
		t.Fatalf("RemoveEncryption failed: %v", err)
	}

	if _, _, ok := bcbFor(&b, 1); ok {
		t.Fatal("expected the BCB to be deleted once its target list emptied")
	}

	payload, err := b.PayloadBlock()
	if err != nil {
		t.Fatal(err)
	}
	if string(payload.Value.(*bpv7.PayloadBlock).Data()) != "top secret plaintext" {
		t.Fatal("expected payload to be restored to plaintext")
	}
}

func TestSignRejectsDuplicateBIBTarget(t *testing.T) {
	b := testBundle(t)
	source := eid.MustParse("dtn://gumo/")
	ks := StaticKeySource{{ID: "k1", Secret: []byte("a shared hmac secret")}}

	if err := Sign(&b, []uint64{1}, source, ks); err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if err := Sign(&b, []uint64{1}, source, ks); err == nil {
		t.Fatal("expected a second Sign over the same target to fail")
	}
}
