// SPDX-License-Identifier: GPL-3.0-or-later

package admin

import (
	"bytes"
	"testing"

	"github.com/dtn7x/bpa/bpv7"
	"github.com/dtn7x/bpa/eid"
)

func testBundle(t *testing.T) bpv7.Bundle {
	t.Helper()

	dest := eid.MustParse("dtn://desty/")
	source := eid.MustParse("dtn://gumo/")
	ts := bpv7.NewCreationTimestamp(bpv7.DtnTimeNow(), 0)
	primary := bpv7.NewPrimaryBlock(bpv7.RequestStatusTime, dest, source, ts, 42000000)
	payload := bpv7.NewCanonicalBlock(1, 0, bpv7.NewPayloadBlock([]byte("hello")))

	b, err := bpv7.NewBundle(primary, []bpv7.CanonicalBlock{payload})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestStatusReportRoundTrip(t *testing.T) {
	b := testBundle(t)
	now := bpv7.DtnTimeNow()

	sr := NewStatusReport(b, DeliveredBundle, NoInformation, now)

	var buf bytes.Buffer
	if err := GetManager().Write(sr, &buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	record, err := GetManager().Read(&buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	got, ok := record.(*StatusReport)
	if !ok {
		t.Fatalf("expected *StatusReport, got %T", record)
	}

	sips := got.StatusInformations()
	if len(sips) != 1 || sips[0] != DeliveredBundle {
		t.Fatalf("expected only DeliveredBundle asserted, got %v", sips)
	}
	if !got.StatusInformation[DeliveredBundle].StatusRequested {
		t.Fatal("expected the delivered item to carry a requested status time")
	}
	if got.StatusInformation[DeliveredBundle].Time != now {
		t.Fatalf("expected status time %v, got %v", now, got.StatusInformation[DeliveredBundle].Time)
	}
	if got.ReportReason != NoInformation {
		t.Fatalf("expected reason NoInformation, got %v", got.ReportReason)
	}
	if got.RefBundle.String() != b.ID().String() {
		t.Fatalf("expected RefBundle %v, got %v", b.ID(), got.RefBundle)
	}
}

func TestStatusReportNoTimeRequested(t *testing.T) {
	dest := eid.MustParse("dtn://desty/")
	source := eid.MustParse("dtn://gumo/")
	ts := bpv7.NewCreationTimestamp(bpv7.DtnTimeNow(), 0)
	primary := bpv7.NewPrimaryBlock(0, dest, source, ts, 42000000)
	payload := bpv7.NewCanonicalBlock(1, 0, bpv7.NewPayloadBlock([]byte("hello")))
	b, err := bpv7.NewBundle(primary, []bpv7.CanonicalBlock{payload})
	if err != nil {
		t.Fatal(err)
	}

	sr := NewStatusReport(b, ReceivedBundle, LifetimeExpired, bpv7.DtnTimeNow())
	if sr.StatusInformation[ReceivedBundle].StatusRequested {
		t.Fatal("expected no status time request since the bundle didn't ask for one")
	}
	if sr.StatusInformation[ReceivedBundle].Time != bpv7.DtnTimeEpoch {
		t.Fatal("expected the epoch time when no status time was requested")
	}
}

func TestToCanonicalBlockRoundTrip(t *testing.T) {
	b := testBundle(t)
	sr := NewStatusReport(b, DeletedBundle, BlockUnsupported, bpv7.DtnTimeNow())

	cb, err := ToCanonicalBlock(sr)
	if err != nil {
		t.Fatalf("ToCanonicalBlock failed: %v", err)
	}
	if cb.BlockNumber != 1 {
		t.Fatalf("expected block number 1, got %d", cb.BlockNumber)
	}

	payload, ok := cb.Value.(*bpv7.PayloadBlock)
	if !ok {
		t.Fatalf("expected a PayloadBlock, got %T", cb.Value)
	}

	record, err := Parse(payload.Data())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	got, ok := record.(*StatusReport)
	if !ok {
		t.Fatalf("expected *StatusReport, got %T", record)
	}
	if got.ReportReason != BlockUnsupported {
		t.Fatalf("expected reason BlockUnsupported, got %v", got.ReportReason)
	}
}

func TestManagerRejectsUnknownTypeCode(t *testing.T) {
	m := NewManager()
	if m.IsKnown(RecordTypeStatusReport) {
		t.Fatal("expected a freshly created Manager not to know any record types")
	}
}

func TestReasonStringCoversBPSecCodes(t *testing.T) {
	for _, r := range []StatusReportReason{
		SecurityPolicyViolated, SecurityContextUnsupported, SecurityMissingKey,
		SecurityIntegrityFailed, SecurityConfidentialityFailed, SecurityBlockUnintelligible,
	} {
		if r.String() == "unknown" {
			t.Fatalf("expected reason %d to have a description", r)
		}
	}
}
