// SPDX-License-Identifier: GPL-3.0-or-later

package admin

import (
	"fmt"
	"io"
	"strings"

	"github.com/dtn7/cboring"

	"github.com/dtn7x/bpa/bpv7"
)

// BundleStatusItem is one element of a status report's bundle status
// information array.
type BundleStatusItem struct {
	Asserted        bool
	Time            bpv7.DtnTime
	StatusRequested bool
}

// NewBundleStatusItem returns a BundleStatusItem with no status time
// request.
func NewBundleStatusItem(asserted bool) BundleStatusItem {
	return BundleStatusItem{Asserted: asserted, Time: bpv7.DtnTimeEpoch}
}

// NewTimeReportingBundleStatusItem returns an asserted BundleStatusItem
// carrying a status time.
func NewTimeReportingBundleStatusItem(time bpv7.DtnTime) BundleStatusItem {
	return BundleStatusItem{Asserted: true, Time: time, StatusRequested: true}
}

func (bsi *BundleStatusItem) MarshalCbor(w io.Writer) error {
	arrLen := uint64(1)
	if bsi.Asserted && bsi.StatusRequested {
		arrLen = 2
	}

	if err := cboring.WriteArrayLength(arrLen, w); err != nil {
		return err
	}
	if err := cboring.WriteBoolean(bsi.Asserted, w); err != nil {
		return err
	}
	if arrLen == 2 {
		if err := cboring.WriteUInt(uint64(bsi.Time), w); err != nil {
			return err
		}
	}
	return nil
}

func (bsi *BundleStatusItem) UnmarshalCbor(r io.Reader) error {
	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	} else if n != 1 && n != 2 {
		return fmt.Errorf("BundleStatusItem: array length is %d, not 1 or 2", n)
	}

	asserted, err := cboring.ReadBoolean(r)
	if err != nil {
		return err
	}
	bsi.Asserted = asserted

	if n == 2 {
		t, err := cboring.ReadUInt(r)
		if err != nil {
			return err
		}
		bsi.Time = bpv7.DtnTime(t)
		bsi.StatusRequested = true
	}
	return nil
}

func (bsi BundleStatusItem) String() string {
	if !bsi.Asserted {
		return fmt.Sprintf("BundleStatusItem(%t)", bsi.Asserted)
	}
	return fmt.Sprintf("BundleStatusItem(%t, %v)", bsi.Asserted, bsi.Time)
}

// StatusReportReason is the bundle status report reason code (RFC 9171
// §6.1.1, extended by the six BPSec-specific codes below).
type StatusReportReason uint64

const (
	NoInformation              StatusReportReason = 0
	LifetimeExpired            StatusReportReason = 1
	ForwardUnidirectionalLink  StatusReportReason = 2
	TransmissionCanceled       StatusReportReason = 3
	DepletedStorage            StatusReportReason = 4
	DestEndpointUnintelligible StatusReportReason = 5
	NoRouteToDestination       StatusReportReason = 6
	NoNextNodeContact          StatusReportReason = 7
	BlockUnintelligible        StatusReportReason = 8
	HopLimitExceeded           StatusReportReason = 9
	TrafficPared               StatusReportReason = 10
	BlockUnsupported           StatusReportReason = 11

	// SecurityPolicyViolated through SecurityBlockUnintelligible are the
	// six BPSec-specific reason codes (spec §6); RFC 9171 stops at 11
	// (BlockUnsupported), so these continue the sequence at 12.
	SecurityPolicyViolated        StatusReportReason = 12
	SecurityContextUnsupported    StatusReportReason = 13
	SecurityMissingKey            StatusReportReason = 14
	SecurityIntegrityFailed       StatusReportReason = 15
	SecurityConfidentialityFailed StatusReportReason = 16
	SecurityBlockUnintelligible   StatusReportReason = 17
)

func (srr StatusReportReason) String() string {
	switch srr {
	case NoInformation:
		return "No additional information"
	case LifetimeExpired:
		return "Lifetime expired"
	case ForwardUnidirectionalLink:
		return "Forwarded over unidirectional link"
	case TransmissionCanceled:
		return "Transmission canceled"
	case DepletedStorage:
		return "Depleted storage"
	case DestEndpointUnintelligible:
		return "Destination endpoint ID unintelligible"
	case NoRouteToDestination:
		return "No known route to destination from here"
	case NoNextNodeContact:
		return "No timely contact with next node on route"
	case BlockUnintelligible:
		return "Block unintelligible"
	case HopLimitExceeded:
		return "Hop limit exceeded"
	case TrafficPared:
		return "Traffic pared"
	case BlockUnsupported:
		return "Block unsupported"
	case SecurityPolicyViolated:
		return "Security policy violated"
	case SecurityContextUnsupported:
		return "Security context unsupported"
	case SecurityMissingKey:
		return "Security key unavailable"
	case SecurityIntegrityFailed:
		return "Security integrity check failed"
	case SecurityConfidentialityFailed:
		return "Security confidentiality check failed"
	case SecurityBlockUnintelligible:
		return "Security block unintelligible"
	default:
		return "unknown"
	}
}

// StatusInformationPos indexes a status report's bundle status information
// array: every status report carries exactly these four entries.
type StatusInformationPos int

const (
	maxStatusInformationPos = 4

	ReceivedBundle   StatusInformationPos = 0
	ForwardedBundle  StatusInformationPos = 1
	DeliveredBundle  StatusInformationPos = 2
	DeletedBundle    StatusInformationPos = 3
)

func (sip StatusInformationPos) String() string {
	switch sip {
	case ReceivedBundle:
		return "received bundle"
	case ForwardedBundle:
		return "forwarded bundle"
	case DeliveredBundle:
		return "delivered bundle"
	case DeletedBundle:
		return "deleted bundle"
	default:
		return "unknown"
	}
}

// StatusReport is the bundle status report administrative record.
type StatusReport struct {
	StatusInformation []BundleStatusItem
	ReportReason      StatusReportReason
	RefBundle         bpv7.BundleID
}

// NewStatusReport builds a StatusReport for bndl, asserting statusItem and
// attaching time if the bundle requested status time reporting.
func NewStatusReport(bndl bpv7.Bundle, statusItem StatusInformationPos, reason StatusReportReason, time bpv7.DtnTime) *StatusReport {
	report := &StatusReport{
		StatusInformation: make([]BundleStatusItem, maxStatusInformationPos),
		ReportReason:      reason,
		RefBundle:         bndl.ID(),
	}

	for i := 0; i < maxStatusInformationPos; i++ {
		sip := StatusInformationPos(i)
		switch {
		case sip == statusItem && bndl.PrimaryBlock.BundleControlFlags.Has(bpv7.RequestStatusTime):
			report.StatusInformation[i] = NewTimeReportingBundleStatusItem(time)
		case sip == statusItem:
			report.StatusInformation[i] = NewBundleStatusItem(true)
		default:
			report.StatusInformation[i] = NewBundleStatusItem(false)
		}
	}
	return report
}

// StatusInformations returns the asserted StatusInformationPos entries.
func (sr StatusReport) StatusInformations() (sips []StatusInformationPos) {
	for i, si := range sr.StatusInformation {
		if si.Asserted {
			sips = append(sips, StatusInformationPos(i))
		}
	}
	return
}

func (sr *StatusReport) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2+sr.RefBundle.Len(), w); err != nil {
		return err
	}

	if err := cboring.WriteArrayLength(uint64(len(sr.StatusInformation)), w); err != nil {
		return err
	}
	for i := range sr.StatusInformation {
		if err := cboring.Marshal(&sr.StatusInformation[i], w); err != nil {
			return fmt.Errorf("marshalling BundleStatusItem failed: %v", err)
		}
	}

	if err := cboring.WriteUInt(uint64(sr.ReportReason), w); err != nil {
		return err
	}

	if err := cboring.Marshal(&sr.RefBundle, w); err != nil {
		return fmt.Errorf("marshalling BundleID failed: %v", err)
	}

	return nil
}

func (sr *StatusReport) UnmarshalCbor(r io.Reader) error {
	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}
	switch n {
	case 4:
		sr.RefBundle.IsFragment = false
	case 6:
		sr.RefBundle.IsFragment = true
	default:
		return fmt.Errorf("StatusReport: expected array of length 4 or 6, got %d", n)
	}

	siCount, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}
	sr.StatusInformation = make([]BundleStatusItem, int(siCount))
	for i := range sr.StatusInformation {
		if err := cboring.Unmarshal(&sr.StatusInformation[i], r); err != nil {
			return fmt.Errorf("unmarshalling BundleStatusItem failed: %v", err)
		}
	}

	reason, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	sr.ReportReason = StatusReportReason(reason)

	if err := cboring.Unmarshal(&sr.RefBundle, r); err != nil {
		return fmt.Errorf("unmarshalling BundleID failed: %v", err)
	}

	return nil
}

func (sr *StatusReport) RecordTypeCode() uint64 { return RecordTypeStatusReport }

func (sr StatusReport) String() string {
	var b strings.Builder
	fmt.Fprint(&b, "StatusReport([")
	for i, si := range sr.StatusInformation {
		if !si.Asserted {
			continue
		}
		sip := StatusInformationPos(i)
		if si.Time == bpv7.DtnTimeEpoch {
			fmt.Fprintf(&b, "%v,", sip)
		} else {
			fmt.Fprintf(&b, "%v %v,", sip, si.Time)
		}
	}
	fmt.Fprintf(&b, "], %v, %v", sr.ReportReason, sr.RefBundle)
	return b.String()
}
