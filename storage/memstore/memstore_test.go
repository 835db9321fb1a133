// SPDX-License-Identifier: GPL-3.0-or-later

package memstore

import (
	"testing"
	"time"

	"github.com/dtn7x/bpa/bpv7"
	"github.com/dtn7x/bpa/eid"
	"github.com/dtn7x/bpa/storage"
)

func testBundleID(t *testing.T) bpv7.BundleID {
	t.Helper()

	source := eid.MustParse("dtn://gumo/")
	ts := bpv7.NewCreationTimestamp(bpv7.DtnTimeNow(), 0)
	primary := bpv7.NewPrimaryBlock(0, eid.MustParse("dtn://desty/"), source, ts, 1000)
	payload := bpv7.NewCanonicalBlock(1, 0, bpv7.NewPayloadBlock([]byte("hi")))

	b, err := bpv7.NewBundle(primary, []bpv7.CanonicalBlock{payload})
	if err != nil {
		t.Fatal(err)
	}
	return b.ID()
}

func TestMetadataStoreLifecycle(t *testing.T) {
	ms := NewMetadataStore()
	id := testBundleID(t)

	if ms.ConfirmExists(id) {
		t.Fatal("expected a fresh store not to know this bundle-id")
	}

	meta := storage.NewMetadata(id, []byte("payload bytes"), time.Now())
	if err := ms.Store(meta); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if !ms.ConfirmExists(id) {
		t.Fatal("expected ConfirmExists to be true after Store")
	}

	status, err := ms.GetStatus(id)
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if status != storage.IngressPending {
		t.Fatalf("expected IngressPending, got %v", status)
	}

	if err := ms.SetStatus(id, storage.DispatchPending); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if status, _ := ms.GetStatus(id); status != storage.DispatchPending {
		t.Fatalf("expected DispatchPending, got %v", status)
	}

	var seen []bpv7.BundleID
	if err := ms.GetUnconfirmedBundles(func(bid bpv7.BundleID) bool {
		seen = append(seen, bid)
		return true
	}); err != nil {
		t.Fatalf("GetUnconfirmedBundles failed: %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("expected one unconfirmed bundle, got %d", len(seen))
	}

	if err := ms.SetStatus(id, storage.Tombstone); err != nil {
		t.Fatal(err)
	}
	seen = nil
	if err := ms.GetUnconfirmedBundles(func(bid bpv7.BundleID) bool {
		seen = append(seen, bid)
		return true
	}); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 0 {
		t.Fatalf("expected a tombstoned bundle to no longer be unconfirmed, got %d", len(seen))
	}

	if err := ms.Remove(id); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if ms.ConfirmExists(id) {
		t.Fatal("expected ConfirmExists to be false after Remove")
	}
}

func TestMetadataStoreLoadUnknown(t *testing.T) {
	ms := NewMetadataStore()
	if _, err := ms.Load(testBundleID(t)); err != storage.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBundleStoreIdempotentContent(t *testing.T) {
	bs := NewBundleStore()
	data := []byte("canonical bundle bytes")

	name1, err := bs.Store(data)
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	name2, err := bs.Store(append([]byte(nil), data...))
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if name1 != name2 {
		t.Fatalf("expected Store to be idempotent at the content level, got %q and %q", name1, name2)
	}

	var names []string
	if err := bs.List(func(n string) bool { names = append(names, n); return true }); err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 {
		t.Fatalf("expected exactly one stored entry, got %d", len(names))
	}

	got, err := bs.Load(name1)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(got) != string(data) {
		t.Fatal("loaded bytes did not match stored bytes")
	}

	if err := bs.Remove(name1); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := bs.Load(name1); err != storage.ErrNotFound {
		t.Fatalf("expected ErrNotFound after Remove, got %v", err)
	}
}
