// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"errors"
	"fmt"

	"github.com/dtn7x/bpa/bpsec"
	"github.com/dtn7x/bpa/bpv7"
	"github.com/dtn7x/bpa/bpv7/admin"
)

// errDropBundle signals that a target block's DeleteBundleOnFailure flag
// was set when its BPSec processing failed (spec §4.D/§7): the whole
// bundle must be dropped, not just that block.
type errDropBundle struct {
	reason admin.StatusReportReason
	cause  error
}

func (e *errDropBundle) Error() string {
	return fmt.Sprintf("routing: security failure on a DeleteBundleOnFailure block: %v", e.cause)
}

func (e *errDropBundle) Unwrap() error { return e.cause }

// verifySecurity runs the ingest-time BPSec pass (spec §4.E/§4.H): every
// BCB target is decrypted before every BIB target is verified, since a BIB
// added over already-confidential bytes (RFC 9172 §3.6's "BCB-then-BIB"
// composite ordering) authenticates ciphertext, not plaintext.
//
// A missing key (bpsec.ErrNoKey) is not a processing failure: the target
// block is left exactly as received and the pass continues (spec §4.D:
// "missing keys are NOT a failure: the block stays opaque and the bundle
// remains forwardable"). A genuine verification/decryption failure is
// instead policed by the target block's own BlockControlFlags: a block
// with DeleteBundleOnFailure set invalidates the whole bundle (signaled as
// *errDropBundle); otherwise the block is left opaque, additionally
// removed outright when DeleteBlockOnFailure is set, and the pass
// continues.
func (d *Dispatcher) verifySecurity(b *bpv7.Bundle) error {
	for i := range b.CanonicalBlocks {
		bcb, ok := b.CanonicalBlocks[i].Value.(*bpsec.BCBAESGCM)
		if !ok {
			continue
		}
		for _, target := range bcb.Asb.SecurityTargets {
			err := bpsec.Decrypt(b, target, d.keys)
			if err == nil || errors.Is(err, bpsec.ErrNoKey) {
				continue
			}
			if dropErr := d.handleSecurityFailure(b, target, err); dropErr != nil {
				return dropErr
			}
		}
	}

	for i := range b.CanonicalBlocks {
		bib, ok := b.CanonicalBlocks[i].Value.(*bpsec.BIBHMACSHA2)
		if !ok {
			continue
		}
		for _, target := range bib.Asb.SecurityTargets {
			err := bpsec.Verify(b, target, d.keys)
			if err == nil || errors.Is(err, bpsec.ErrNoKey) {
				continue
			}
			if dropErr := d.handleSecurityFailure(b, target, err); dropErr != nil {
				return dropErr
			}
		}
	}

	return nil
}

// handleSecurityFailure applies the target block's DeleteBundleOnFailure/
// DeleteBlockOnFailure policy (spec §4.D/§7) to a genuine, non-ErrNoKey
// BPSec failure. A non-nil return means the whole bundle must be dropped;
// nil means the failure was fully handled in place (block dropped, or
// left opaque) and the pass should continue.
func (d *Dispatcher) handleSecurityFailure(b *bpv7.Bundle, target uint64, cause error) error {
	targetBlock, err := b.ExtensionBlockByNumber(target)
	if err != nil {
		return nil
	}

	if targetBlock.BlockControlFlags.Has(bpv7.DeleteBundleOnFailure) {
		return &errDropBundle{reason: securityFailureReason(cause), cause: cause}
	}

	if targetBlock.BlockControlFlags.Has(bpv7.DeleteBlockOnFailure) {
		b.RemoveExtensionBlockByNumber(target)
	}

	return nil
}

// securityFailureReason maps a bpsec failure sentinel to the RFC 9171 §6
// status-report reason code spec §6 defines for it.
func securityFailureReason(cause error) admin.StatusReportReason {
	switch {
	case errors.Is(cause, bpsec.ErrBadMac):
		return admin.SecurityIntegrityFailed
	case errors.Is(cause, bpsec.ErrAeadFailure):
		return admin.SecurityConfidentialityFailed
	case errors.Is(cause, bpsec.ErrUnknownContext):
		return admin.SecurityContextUnsupported
	default:
		return admin.SecurityPolicyViolated
	}
}
