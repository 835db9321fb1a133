// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import "github.com/hashicorp/go-multierror"

// BundleControlFlags is the Bundle Processing Control Flags field from
// RFC 9171 §4.2.3.
type BundleControlFlags uint16

const (
	StatusRequestDeletion  BundleControlFlags = 0x1000
	StatusRequestDelivery  BundleControlFlags = 0x0800
	StatusRequestForward   BundleControlFlags = 0x0400
	StatusRequestReception BundleControlFlags = 0x0100

	ContainsManifest          BundleControlFlags = 0x0080
	RequestStatusTime         BundleControlFlags = 0x0040
	RequestUserApplicationAck BundleControlFlags = 0x0020
	MustNotFragmented         BundleControlFlags = 0x0004

	AdministrativeRecordPayload BundleControlFlags = 0x0002
	IsFragment                  BundleControlFlags = 0x0001

	bundleCFReservedFields BundleControlFlags = 0xE218
)

func (bcf BundleControlFlags) Has(flag BundleControlFlags) bool { return bcf&flag != 0 }

// CheckValid enforces the MUST/MUST NOT constraints RFC 9171 places on this
// field.
func (bcf BundleControlFlags) CheckValid() (errs error) {
	if bcf.Has(bundleCFReservedFields) {
		errs = multierror.Append(errs, protoErrf("BundleControlFlags: reserved bits set"))
	}
	if bcf.Has(IsFragment) && bcf.Has(MustNotFragmented) {
		errs = multierror.Append(errs, protoErrf(
			"BundleControlFlags: both IsFragment and MustNotFragmented are set"))
	}
	adminOk := !bcf.Has(AdministrativeRecordPayload) ||
		(!bcf.Has(StatusRequestReception) && !bcf.Has(StatusRequestForward) &&
			!bcf.Has(StatusRequestDelivery) && !bcf.Has(StatusRequestDeletion))
	if !adminOk {
		errs = multierror.Append(errs, protoErrf(
			"BundleControlFlags: administrative record payload must not request status reports"))
	}
	return
}

// BlockControlFlags is the Block Processing Control Flags field from
// RFC 9171 §4.2.4.
type BlockControlFlags uint8

const (
	// DeleteBundleOnFailure marks a block whose failed processing must
	// invalidate the whole bundle (spec §4.D).
	DeleteBundleOnFailure BlockControlFlags = 0x08
	// StatusReportOnFailure requests a status report if this block
	// cannot be processed.
	StatusReportOnFailure BlockControlFlags = 0x04
	// DeleteBlockOnFailure marks a block to be dropped (not the whole
	// bundle) if it cannot be processed (spec §4.D).
	DeleteBlockOnFailure BlockControlFlags = 0x02
	// ReplicateInEveryFragment marks a block that must be copied into
	// every fragment produced from this bundle.
	ReplicateInEveryFragment BlockControlFlags = 0x01

	blockCFReservedFields BlockControlFlags = 0xF0
)

func (bcf BlockControlFlags) Has(flag BlockControlFlags) bool { return bcf&flag != 0 }

func (bcf BlockControlFlags) CheckValid() error {
	if bcf.Has(blockCFReservedFields) {
		return protoErrf("BlockControlFlags: reserved bits set")
	}
	return nil
}
