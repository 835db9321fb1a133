// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"errors"
	"testing"

	"github.com/dtn7x/bpa/bpsec"
	"github.com/dtn7x/bpa/bpv7"
	"github.com/dtn7x/bpa/bpv7/admin"
	"github.com/dtn7x/bpa/eid"
)

func securityTestBundle(t *testing.T, payloadFlags bpv7.BlockControlFlags) bpv7.Bundle {
	t.Helper()

	dest := eid.MustParse("dtn://desty/")
	source := eid.MustParse("dtn://gumo/")
	ts := bpv7.NewCreationTimestamp(bpv7.DtnTimeNow(), 0)
	primary := bpv7.NewPrimaryBlock(0, dest, source, ts, 3_600_000)
	payload := bpv7.NewCanonicalBlock(1, payloadFlags, bpv7.NewPayloadBlock([]byte("top secret plaintext")))

	b, err := bpv7.NewBundle(primary, []bpv7.CanonicalBlock{payload})
	if err != nil {
		t.Fatalf("NewBundle failed: %v", err)
	}
	return b
}

func tamperPayload(t *testing.T, b *bpv7.Bundle) {
	t.Helper()
	payload, err := b.PayloadBlock()
	if err != nil {
		t.Fatal(err)
	}
	payload.Value = bpv7.NewPayloadBlock([]byte("tampered plaintext!!"))
}

// scenario (c): ingest a bundle with a BIB-HMAC-SHA2 over block 1; with the
// key absent, verifySecurity must still report success and leave the BIB
// in place, covering its target, rather than treating the missing key as a
// failure (spec §4.D).
func TestVerifySecurityLeavesBlockOpaqueWithoutKey(t *testing.T) {
	b := securityTestBundle(t, 0)
	source := eid.MustParse("dtn://gumo/")
	signingKeys := bpsec.StaticKeySource{{ID: "k1", Secret: []byte("a shared hmac secret")}}
	if err := bpsec.Sign(&b, []uint64{1}, source, signingKeys); err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	d := &Dispatcher{keys: bpsec.StaticKeySource(nil)}
	if err := d.verifySecurity(&b); err != nil {
		t.Fatalf("expected success with the key absent, got: %v", err)
	}

	if _, err := b.ExtensionBlockByNumber(1); err != nil {
		t.Fatal("expected the target block to remain in the bundle")
	}
	if _, ok := bibBlock(b); !ok {
		t.Fatal("expected the BIB to remain in place, covering its target opaquely")
	}
}

// A bad MAC on a block whose DeleteBundleOnFailure flag is set must
// invalidate the whole bundle, reported as *errDropBundle so ingest can
// drop it and emit a status report.
func TestVerifySecurityDropsBundleOnBadMacWithDeleteBundleOnFailure(t *testing.T) {
	b := securityTestBundle(t, bpv7.DeleteBundleOnFailure)
	source := eid.MustParse("dtn://gumo/")
	ks := bpsec.StaticKeySource{{ID: "k1", Secret: []byte("a shared hmac secret")}}
	if err := bpsec.Sign(&b, []uint64{1}, source, ks); err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	tamperPayload(t, &b)

	d := &Dispatcher{keys: ks}
	err := d.verifySecurity(&b)
	if err == nil {
		t.Fatal("expected a security failure")
	}
	var drop *errDropBundle
	if !errors.As(err, &drop) {
		t.Fatalf("expected *errDropBundle, got: %v", err)
	}
	if drop.reason != admin.SecurityIntegrityFailed {
		t.Fatalf("expected SecurityIntegrityFailed, got %v", drop.reason)
	}
}

// A bad MAC on a block whose DeleteBlockOnFailure (but not
// DeleteBundleOnFailure) flag is set drops just that block; the bundle
// stays valid and verifySecurity reports no error.
func TestVerifySecurityDropsJustBlockWithDeleteBlockOnFailure(t *testing.T) {
	b := securityTestBundle(t, bpv7.DeleteBlockOnFailure)
	source := eid.MustParse("dtn://gumo/")
	ks := bpsec.StaticKeySource{{ID: "k1", Secret: []byte("a shared hmac secret")}}
	if err := bpsec.Sign(&b, []uint64{1}, source, ks); err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	tamperPayload(t, &b)

	d := &Dispatcher{keys: ks}
	if err := d.verifySecurity(&b); err != nil {
		t.Fatalf("expected the bundle to remain valid, got: %v", err)
	}

	if _, err := b.ExtensionBlockByNumber(1); err == nil {
		t.Fatal("expected the target block to have been dropped")
	}
}

// A bad MAC on a block carrying neither failure flag is left opaque:
// neither the block nor the bundle is dropped.
func TestVerifySecurityLeavesBlockOpaqueOnBadMacWithoutFlags(t *testing.T) {
	b := securityTestBundle(t, 0)
	source := eid.MustParse("dtn://gumo/")
	ks := bpsec.StaticKeySource{{ID: "k1", Secret: []byte("a shared hmac secret")}}
	if err := bpsec.Sign(&b, []uint64{1}, source, ks); err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	tamperPayload(t, &b)

	d := &Dispatcher{keys: ks}
	if err := d.verifySecurity(&b); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if _, err := b.ExtensionBlockByNumber(1); err != nil {
		t.Fatal("expected the target block to remain in the bundle")
	}
}

func bibBlock(b bpv7.Bundle) (*bpv7.CanonicalBlock, bool) {
	for i := range b.CanonicalBlocks {
		if b.CanonicalBlocks[i].TypeCode() == bpv7.ExtBlockTypeBlockIntegrityBlock {
			return &b.CanonicalBlocks[i], true
		}
	}
	return nil, false
}
