// SPDX-License-Identifier: GPL-3.0-or-later

package bpsec

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"hash"
	"io"

	"github.com/dtn7/cboring"

	"github.com/dtn7x/bpa/bpv7"
	"github.com/dtn7x/bpa/eid"
)

// BIBHMACSHA2 implements the BPSec Block Integrity Block security context
// (RFC 9173 §3), wired as a bpv7.ExtensionBlock under block type code
// bpv7.ExtBlockTypeBlockIntegrityBlock.
type BIBHMACSHA2 struct {
	Asb AbstractSecurityBlock
}

func (bib *BIBHMACSHA2) BlockTypeCode() uint64 { return bpv7.ExtBlockTypeBlockIntegrityBlock }
func (bib *BIBHMACSHA2) BlockTypeName() string  { return contextName(ContextBIBHMACSHA2) }

func (bib *BIBHMACSHA2) MarshalCbor(w io.Writer) error { return bib.Asb.MarshalCbor(w) }

func (bib *BIBHMACSHA2) UnmarshalCbor(r io.Reader) error { return bib.Asb.UnmarshalCbor(r) }

// NewBIBHMACSHA2 creates a BIB covering the given target block numbers,
// with the default SHA-256 variant and integrity scope flags unless
// shaVariant/integrityScopeFlags override them.
func NewBIBHMACSHA2(targets []uint64, source eid.ID, shaVariant *uint64, integrityScopeFlags *uint16) *BIBHMACSHA2 {
	var params []IDValueTuple
	if shaVariant != nil {
		params = append(params, &IDValueTupleUInt64{id: ParamSHAVariant, value: *shaVariant})
	}
	if integrityScopeFlags != nil {
		params = append(params, &IDValueTupleUInt64{id: ParamIntegrityScopeFlags, value: uint64(*integrityScopeFlags)})
	}

	results := make([]TargetSecurityResults, len(targets))
	for i, target := range targets {
		results[i] = TargetSecurityResults{securityTarget: target}
	}

	asb := AbstractSecurityBlock{
		SecurityTargets:   targets,
		SecurityContextID: ContextBIBHMACSHA2,
		SecuritySource:    source,
		SecurityResults:   results,
	}
	asb.SetParameters(params)

	return &BIBHMACSHA2{Asb: asb}
}

func (bib *BIBHMACSHA2) CheckValid() error { return bib.Asb.CheckValid() }

func (bib *BIBHMACSHA2) CheckContextValid(*bpv7.Bundle) error { return bib.CheckValid() }

func (bib *BIBHMACSHA2) shaVariant() func() hash.Hash {
	if p, ok := bib.Asb.Parameter(ParamSHAVariant); ok {
		switch p.Value().(uint64) {
		case HMAC384SHA384:
			return sha512.New384
		case HMAC512SHA512:
			return sha512.New
		}
	}
	return sha256.New
}

func (bib *BIBHMACSHA2) integrityScopeFlags() uint16 {
	if p, ok := bib.Asb.Parameter(ParamIntegrityScopeFlags); ok {
		return uint16(p.Value().(uint64))
	}
	return IntegrityScopeDefault
}

// prepareIPPT constructs the Integrity Protected Plain Text for one target
// block, following the canonical-form construction of RFC 9173 §3.7.
func (bib *BIBHMACSHA2) prepareIPPT(b *bpv7.Bundle, target, bibBlockNumber uint64) (*bytes.Buffer, error) {
	ippt := &bytes.Buffer{}
	scope := bib.integrityScopeFlags()

	targetBlock, err := b.ExtensionBlockByNumber(target)
	if err != nil {
		return nil, err
	}

	if err := cboring.WriteUInt(uint64(scope), ippt); err != nil {
		return nil, err
	}

	if scope&IntegrityScopePrimaryBlock != 0 {
		if err := b.PrimaryBlock.MarshalCbor(ippt); err != nil {
			return nil, err
		}
	}

	if scope&IntegrityScopeTargetHeader != 0 {
		if err := cboring.WriteUInt(targetBlock.TypeCode(), ippt); err != nil {
			return nil, err
		}
		if err := cboring.WriteUInt(targetBlock.BlockNumber, ippt); err != nil {
			return nil, err
		}
		if err := cboring.WriteUInt(uint64(targetBlock.BlockControlFlags), ippt); err != nil {
			return nil, err
		}
	}

	if scope&IntegrityScopeSecurityHeader != 0 {
		bibBlock, err := b.ExtensionBlockByNumber(bibBlockNumber)
		if err != nil {
			return nil, err
		}
		if err := cboring.WriteUInt(bibBlock.TypeCode(), ippt); err != nil {
			return nil, err
		}
		if err := cboring.WriteUInt(bibBlock.BlockNumber, ippt); err != nil {
			return nil, err
		}
		if err := cboring.WriteUInt(uint64(bibBlock.BlockControlFlags), ippt); err != nil {
			return nil, err
		}
	}

	if err := bpv7.GetExtensionBlockManager().WriteBlock(targetBlock.Value, ippt); err != nil {
		return nil, err
	}

	return ippt, nil
}

func (bib *BIBHMACSHA2) mac(b *bpv7.Bundle, target, bibBlockNumber uint64, key []byte) ([]byte, error) {
	ippt, err := bib.prepareIPPT(b, target, bibBlockNumber)
	if err != nil {
		return nil, err
	}

	h := hmac.New(bib.shaVariant(), key)
	if _, err := h.Write(ippt.Bytes()); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// Sign computes and stores the HMAC result for every target this BIB
// covers, using the given key directly (any length is valid for HMAC).
func (bib *BIBHMACSHA2) Sign(b *bpv7.Bundle, bibBlockNumber uint64, key []byte) error {
	for _, target := range bib.Asb.SecurityTargets {
		mac, err := bib.mac(b, target, bibBlockNumber, key)
		if err != nil {
			return err
		}
		bib.Asb.AppendResult(target, &IDValueTupleByteString{id: ResultExpectedHMAC, value: mac})
	}
	return nil
}

// Verify recomputes every target's HMAC and compares it in constant time
// against the stored result.
func (bib *BIBHMACSHA2) Verify(b *bpv7.Bundle, bibBlockNumber uint64, key []byte) error {
	for _, target := range bib.Asb.SecurityTargets {
		expected, ok := bib.Asb.ResultFor(target, ResultExpectedHMAC)
		if !ok {
			return fmt.Errorf("bpsec: no HMAC result stored for target block %d", target)
		}

		mac, err := bib.mac(b, target, bibBlockNumber, key)
		if err != nil {
			return err
		}

		if subtle.ConstantTimeCompare(mac, expected.Value().([]byte)) != 1 {
			return fmt.Errorf("bpsec: HMAC mismatch for target block %d under BIB block %d", target, bibBlockNumber)
		}
	}
	return nil
}
