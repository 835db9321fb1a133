// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/dtn7x/bpa/bpsec"
	"github.com/dtn7x/bpa/bpv7"
	"github.com/dtn7x/bpa/bpv7/admin"
	"github.com/dtn7x/bpa/cla"
	"github.com/dtn7x/bpa/eid"
	"github.com/dtn7x/bpa/service"
	"github.com/dtn7x/bpa/storage"
	"github.com/dtn7x/bpa/storage/memstore"
)

type recordingService struct {
	mu       sync.Mutex
	received []bpv7.Bundle
}

func (r *recordingService) OnReceive(b bpv7.Bundle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, b)
}

func (r *recordingService) OnStatusNotify(bpv7.BundleID, service.StatusKind, admin.StatusReportReason, bpv7.DtnTime) {
}

func (r *recordingService) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.received)
}

type fakeCla struct {
	mu        sync.Mutex
	forwarded [][]byte
	result    cla.ForwardResult
	mtu       uint64
	err       error
}

func (c *fakeCla) OnConnect(eid.ID, cla.Sink) {}
func (c *fakeCla) OnDisconnect()              {}

func (c *fakeCla) Forward(_ eid.ID, bytes []byte) (cla.ForwardResult, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forwarded = append(c.forwarded, bytes)
	return c.result, c.mtu, c.err
}

func (c *fakeCla) forwardCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.forwarded)
}

// testHarness wires a Dispatcher against in-memory storage plus one
// registered CLA and one registered local service, mirroring the setup
// cla/registry_test.go and service/service_test.go use independently.
type testHarness struct {
	t    *testing.T
	disp *Dispatcher
	fib  *FIB
	cla  *fakeCla
	svc  *recordingService
	node eid.ID
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	node := eid.MustParse("dtn://gumo/")
	fib := NewFIB(node)
	disp, clas, svcs := NewDispatcherRegistries(
		node,
		DefaultConfig(),
		memstore.NewMetadataStore(),
		memstore.NewBundleStore(),
		fib,
		bpsec.StaticKeySource(nil),
	)
	disp.now = time.Now

	c := &fakeCla{result: cla.Sent}
	if _, err := clas.Register("clax", c, eid.MustParse("dtn://clax/"), []eid.Pattern{eid.MustCompilePattern("dtn://desty/*")}, nil); err != nil {
		t.Fatalf("Register CLA failed: %v", err)
	}

	svc := &recordingService{}
	if _, err := svcs.Register(eid.MustCompilePattern("dtn://gumo/*"), node, svc); err != nil {
		t.Fatalf("Register service failed: %v", err)
	}

	return &testHarness{t: t, disp: disp, fib: fib, cla: c, svc: svc, node: node}
}

func testBundle(t *testing.T, source, dest eid.ID, payload []byte) bpv7.Bundle {
	t.Helper()

	ts := bpv7.NewCreationTimestamp(bpv7.DtnTimeNow(), 0)
	primary := bpv7.NewPrimaryBlock(0, dest, source, ts, 3_600_000)
	payloadBlock := bpv7.NewCanonicalBlock(1, 0, bpv7.NewPayloadBlock(payload))

	b, err := bpv7.NewBundle(primary, []bpv7.CanonicalBlock{payloadBlock})
	if err != nil {
		t.Fatalf("NewBundle failed: %v", err)
	}
	return b
}

func encode(t *testing.T, b bpv7.Bundle) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := b.WriteBundle(&buf); err != nil {
		t.Fatalf("WriteBundle failed: %v", err)
	}
	return buf.Bytes()
}

func TestIngestLocalDelivery(t *testing.T) {
	h := newTestHarness(t)
	b := testBundle(t, eid.MustParse("dtn://other/"), eid.MustParse("dtn://gumo/inbox"), []byte("hi"))

	h.disp.Ingest(encode(t, b), "clax")

	if h.svc.count() != 1 {
		t.Fatalf("expected local delivery, got %d deliveries", h.svc.count())
	}

	meta, err := h.disp.meta.Load(b.ID())
	if err != nil {
		t.Fatalf("Load metadata failed: %v", err)
	}
	if meta.Status != storage.Tombstone {
		t.Fatalf("expected Tombstone after local delivery, got %v", meta.Status)
	}
}

func TestIngestForwardsViaFIB(t *testing.T) {
	h := newTestHarness(t)
	h.fib.Insert(Route{Pattern: eid.MustCompilePattern("dtn://desty/*"), NextHop: eid.MustParse("dtn://desty/"), Priority: 0})

	b := testBundle(t, eid.MustParse("dtn://other/"), eid.MustParse("dtn://desty/inbox"), []byte("hi"))
	h.disp.Ingest(encode(t, b), "clax")

	if h.cla.forwardCount() != 1 {
		t.Fatalf("expected one forward attempt, got %d", h.cla.forwardCount())
	}

	meta, err := h.disp.meta.Load(b.ID())
	if err != nil {
		t.Fatalf("Load metadata failed: %v", err)
	}
	if meta.Status != storage.ForwardAckPending {
		t.Fatalf("expected ForwardAckPending, got %v", meta.Status)
	}
}

func TestIngestDropsWithoutRoute(t *testing.T) {
	h := newTestHarness(t)
	b := testBundle(t, eid.MustParse("dtn://other/"), eid.MustParse("dtn://nowhere/inbox"), []byte("hi"))

	h.disp.Ingest(encode(t, b), "clax")

	meta, err := h.disp.meta.Load(b.ID())
	if err != nil {
		t.Fatalf("Load metadata failed: %v", err)
	}
	if meta.Status != storage.Tombstone {
		t.Fatalf("expected Tombstone for an undeliverable bundle, got %v", meta.Status)
	}
}

func TestIngestDeduplicatesByContentHash(t *testing.T) {
	h := newTestHarness(t)
	b := testBundle(t, eid.MustParse("dtn://other/"), eid.MustParse("dtn://gumo/inbox"), []byte("hi"))
	data := encode(t, b)

	h.disp.Ingest(data, "clax")
	h.disp.Ingest(data, "clax")

	if h.svc.count() != 1 {
		t.Fatalf("expected exactly one delivery despite duplicate ingest, got %d", h.svc.count())
	}
}

func TestIngestDropsInvalidBytes(t *testing.T) {
	h := newTestHarness(t)
	h.disp.Ingest([]byte("not a bundle"), "clax")

	if h.svc.count() != 0 || h.cla.forwardCount() != 0 {
		t.Fatal("expected invalid bytes to be silently dropped")
	}
}

func TestResolveActionDetectsCycle(t *testing.T) {
	h := newTestHarness(t)
	a := eid.MustParse("dtn://a/")
	b := eid.MustParse("dtn://b/")

	h.fib.Insert(Route{Pattern: eid.MustCompilePattern("dtn://a/*"), NextHop: b, Priority: 0})
	h.fib.Insert(Route{Pattern: eid.MustCompilePattern("dtn://b/*"), NextHop: a, Priority: 0})

	action := h.disp.resolveAction(eid.MustParse("dtn://a/inbox"))
	if action.Kind != ActionDrop {
		t.Fatalf("expected a routing cycle to resolve to Drop, got %v", action)
	}
}

func TestFIBPrecedenceSpecificityThenPriority(t *testing.T) {
	fib := NewFIB(eid.MustParse("dtn://gumo/"))
	broad := eid.MustParse("dtn://broad/")
	narrow := eid.MustParse("dtn://narrow/")
	lowPrio := eid.MustParse("dtn://lowprio/")

	fib.Insert(Route{Pattern: eid.MustCompilePattern("dtn://desty/*"), NextHop: broad, Priority: 0})
	fib.Insert(Route{Pattern: eid.MustCompilePattern("dtn://desty/inbox"), NextHop: narrow, Priority: 5})
	fib.Insert(Route{Pattern: eid.MustCompilePattern("dtn://desty/*"), NextHop: lowPrio, Priority: 10})

	action := fib.Resolve(eid.MustParse("dtn://desty/inbox"), time.Now())
	if action.Kind != ActionVia || action.NextHop != narrow {
		t.Fatalf("expected the most specific route to win regardless of priority, got %v", action)
	}
}

func TestFIBContactWindowStore(t *testing.T) {
	fib := NewFIB(eid.MustParse("dtn://gumo/"))
	now := time.Now()
	future := now.Add(time.Hour)

	fib.Insert(Route{
		Pattern:  eid.MustCompilePattern("dtn://desty/*"),
		NextHop:  eid.MustParse("dtn://desty/"),
		Priority: 0,
		From:     future,
	})

	action := fib.Resolve(eid.MustParse("dtn://desty/inbox"), now)
	if action.Kind != ActionStore {
		t.Fatalf("expected Store while outside the contact window, got %v", action)
	}
	if !action.Until.Equal(future) {
		t.Fatalf("expected Store.Until to be the contact window's opening, got %v", action.Until)
	}
}

func TestFragmentAndReassemble(t *testing.T) {
	payload := make([]byte, 10_000)
	for i := range payload {
		payload[i] = byte(i % 256)
	}
	b := testBundle(t, eid.MustParse("dtn://other/"), eid.MustParse("dtn://desty/inbox"), payload)

	pieces, err := fragment(b, 4_000)
	if err != nil {
		t.Fatalf("fragment failed: %v", err)
	}
	if len(pieces) != 3 {
		t.Fatalf("expected 3 fragments for a 10000-byte payload at MTU 4000, got %d", len(pieces))
	}

	reasm := newReassembler()
	var whole bpv7.Bundle
	var complete bool
	var contributed []bpv7.Bundle
	for _, piece := range pieces {
		whole, complete, contributed, err = reasm.add(piece)
		if err != nil {
			t.Fatalf("reassembler.add failed: %v", err)
		}
	}
	if !complete {
		t.Fatal("expected reassembly to complete after the last fragment")
	}
	if len(contributed) != len(pieces) {
		t.Fatalf("expected %d contributing fragments, got %d", len(pieces), len(contributed))
	}

	pb, err := whole.PayloadBlock()
	if err != nil {
		t.Fatalf("PayloadBlock failed: %v", err)
	}
	got := pb.Value.(*bpv7.PayloadBlock).Data()
	if len(got) != len(payload) {
		t.Fatalf("expected reassembled payload of length %d, got %d", len(payload), len(got))
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("reassembled payload differs at byte %d", i)
		}
	}
}
