// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"testing"

	"github.com/dtn7x/bpa/bpv7"
	"github.com/dtn7x/bpa/bpv7/admin"
	"github.com/dtn7x/bpa/eid"
)

type recordingService struct {
	received []bpv7.Bundle
	notified []admin.StatusReportReason
}

func (r *recordingService) OnReceive(b bpv7.Bundle) { r.received = append(r.received, b) }

func (r *recordingService) OnStatusNotify(_ bpv7.BundleID, _ StatusKind, reason admin.StatusReportReason, _ bpv7.DtnTime) {
	r.notified = append(r.notified, reason)
}

type fakeSink struct{ source eid.ID }

func (s fakeSink) Send(_ []byte, _ eid.ID, _ uint64) (bpv7.BundleID, error) {
	return bpv7.BundleID{SourceNode: s.source}, nil
}

type fakeSinkFactory struct{}

func (fakeSinkFactory) NewSink(source eid.ID) Sink { return fakeSink{source: source} }

func testBundle(t *testing.T, dest eid.ID) bpv7.Bundle {
	t.Helper()

	source := eid.MustParse("dtn://gumo/")
	ts := bpv7.NewCreationTimestamp(bpv7.DtnTimeNow(), 0)
	primary := bpv7.NewPrimaryBlock(0, dest, source, ts, 1000)
	payload := bpv7.NewCanonicalBlock(1, 0, bpv7.NewPayloadBlock([]byte("hi")))

	b, err := bpv7.NewBundle(primary, []bpv7.CanonicalBlock{payload})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestRegisterAndDeliver(t *testing.T) {
	reg := NewRegistry(fakeSinkFactory{})
	svc := &recordingService{}
	source := eid.MustParse("dtn://gumo/")
	pattern := eid.MustCompilePattern("dtn://desty/*")

	sink, err := reg.Register(pattern, source, svc)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if sink == nil {
		t.Fatal("expected a non-nil Sink")
	}

	b := testBundle(t, eid.MustParse("dtn://desty/"))
	if !reg.Deliver(b) {
		t.Fatal("expected the bundle to be delivered")
	}
	if len(svc.received) != 1 {
		t.Fatalf("expected one delivered bundle, got %d", len(svc.received))
	}
}

func TestDeliverNoMatchingPattern(t *testing.T) {
	reg := NewRegistry(fakeSinkFactory{})
	svc := &recordingService{}
	pattern := eid.MustCompilePattern("dtn://elsewhere/*")

	if _, err := reg.Register(pattern, eid.MustParse("dtn://gumo/"), svc); err != nil {
		t.Fatal(err)
	}

	b := testBundle(t, eid.MustParse("dtn://desty/"))
	if reg.Deliver(b) {
		t.Fatal("expected no delivery for a non-matching destination")
	}
}

func TestRegisterRejectsDuplicatePattern(t *testing.T) {
	reg := NewRegistry(fakeSinkFactory{})
	pattern := eid.MustCompilePattern("dtn://desty/*")
	source := eid.MustParse("dtn://gumo/")

	if _, err := reg.Register(pattern, source, &recordingService{}); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Register(pattern, source, &recordingService{}); err == nil {
		t.Fatal("expected a duplicate pattern registration to fail")
	}
}

func TestNotifyStatusRoutesBySource(t *testing.T) {
	reg := NewRegistry(fakeSinkFactory{})
	svc := &recordingService{}
	source := eid.MustParse("dtn://gumo/")
	pattern := eid.MustCompilePattern("dtn://desty/*")

	if _, err := reg.Register(pattern, source, svc); err != nil {
		t.Fatal(err)
	}

	reg.NotifyStatus(source, bpv7.BundleID{}, StatusDelivered, admin.NoInformation, bpv7.DtnTimeNow())
	if len(svc.notified) != 1 {
		t.Fatalf("expected one status notification, got %d", len(svc.notified))
	}

	reg.NotifyStatus(eid.MustParse("dtn://someoneelse/"), bpv7.BundleID{}, StatusDelivered, admin.NoInformation, bpv7.DtnTimeNow())
	if len(svc.notified) != 1 {
		t.Fatal("expected no additional notification for an unrelated source")
	}
}

func TestUnregisterStopsDelivery(t *testing.T) {
	reg := NewRegistry(fakeSinkFactory{})
	svc := &recordingService{}
	pattern := eid.MustCompilePattern("dtn://desty/*")

	if _, err := reg.Register(pattern, eid.MustParse("dtn://gumo/"), svc); err != nil {
		t.Fatal(err)
	}
	reg.Unregister(pattern)

	b := testBundle(t, eid.MustParse("dtn://desty/"))
	if reg.Deliver(b) {
		t.Fatal("expected no delivery after Unregister")
	}
}
