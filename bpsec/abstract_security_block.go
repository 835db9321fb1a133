// SPDX-License-Identifier: GPL-3.0-or-later

package bpsec

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
	"github.com/hashicorp/go-multierror"

	"github.com/dtn7x/bpa/eid"
)

// IDValueTuple is one (identifier, value) pair of a security context's
// parameters or per-target results. The value is either a byte string or
// an unsigned integer; which variant arrived is only known once the CBOR
// major type of the wire value has been peeked (RFC 9173 §3.6).
type IDValueTuple interface {
	ID() uint64
	Value() interface{}
	cboring.CborMarshaler
}

// IDValueTupleByteString is the byte-string-valued IDValueTuple variant,
// used for keys, IVs, wrapped keys, MACs and authentication tags.
type IDValueTupleByteString struct {
	id    uint64
	value []byte
}

func (t *IDValueTupleByteString) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(t.id, w); err != nil {
		return err
	}
	return cboring.WriteByteString(t.value, w)
}

func (t *IDValueTupleByteString) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 2 {
		return fmt.Errorf("IDValueTupleByteString: wrong array length %d instead of 2", l)
	}
	if id, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		t.id = id
	}
	value, err := cboring.ReadByteString(r)
	if err != nil {
		return err
	}
	t.value = value
	return nil
}

func (t *IDValueTupleByteString) ID() uint64        { return t.id }
func (t *IDValueTupleByteString) Value() interface{} { return t.value }

// IDValueTupleUInt64 is the unsigned-integer-valued IDValueTuple variant,
// used for the SHA/AES variant selectors and scope flag fields.
type IDValueTupleUInt64 struct {
	id    uint64
	value uint64
}

func (t *IDValueTupleUInt64) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(t.id, w); err != nil {
		return err
	}
	return cboring.WriteUInt(t.value, w)
}

func (t *IDValueTupleUInt64) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 2 {
		return fmt.Errorf("IDValueTupleUInt64: wrong array length %d instead of 2", l)
	}
	if id, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		t.id = id
	}
	value, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	t.value = value
	return nil
}

func (t *IDValueTupleUInt64) ID() uint64        { return t.id }
func (t *IDValueTupleUInt64) Value() interface{} { return t.value }

// TargetSecurityResults is one entry of the SecurityResults array: the
// target block number paired with its list of IDValueTuple results.
type TargetSecurityResults struct {
	securityTarget uint64
	results        []IDValueTuple
}

func (tsr *TargetSecurityResults) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(tsr.securityTarget, w); err != nil {
		return err
	}
	if err := cboring.WriteArrayLength(uint64(len(tsr.results)), w); err != nil {
		return err
	}
	for _, r := range tsr.results {
		if err := cboring.Marshal(r, w); err != nil {
			return err
		}
	}
	return nil
}

func (tsr *TargetSecurityResults) UnmarshalCbor(r io.Reader) error {
	l, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	} else if l != 2 {
		return fmt.Errorf("TargetSecurityResults: wrong array length %d instead of 2", l)
	}

	if st, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		tsr.securityTarget = st
	}

	resultCount, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}
	for i := uint64(0); i < resultCount; i++ {
		result := IDValueTupleByteString{}
		if err := cboring.Unmarshal(&result, r); err != nil {
			return err
		}
		tsr.results = append(tsr.results, &result)
	}
	return nil
}

// securityContextParametersPresentFlag is the ASB flag bit (RFC 9172 §3.6)
// signalling whether the SecurityContextParameters field is present.
const securityContextParametersPresentFlag uint64 = 0b01

// AbstractSecurityBlock is the shared wire model (RFC 9172 §3.6) underlying
// both the BIB and BCB security contexts: a set of target block numbers,
// a security context identifier and parameters, and per-target results.
type AbstractSecurityBlock struct {
	SecurityTargets            []uint64
	SecurityContextID          uint64
	contextParametersPresent   uint64
	SecuritySource             eid.ID
	SecurityContextParameters  []IDValueTuple
	SecurityResults            []TargetSecurityResults
}

// HasSecurityContextParameters reports whether the Security Context
// Parameters Present flag is set.
func (asb *AbstractSecurityBlock) HasSecurityContextParameters() bool {
	return asb.contextParametersPresent&securityContextParametersPresentFlag != 0
}

// SetParameters replaces this ASB's SecurityContextParameters and updates
// the present flag accordingly.
func (asb *AbstractSecurityBlock) SetParameters(params []IDValueTuple) {
	asb.SecurityContextParameters = params
	if len(params) > 0 {
		asb.contextParametersPresent = securityContextParametersPresentFlag
	} else {
		asb.contextParametersPresent = 0
	}
}

// Parameter returns the first parameter with the given identifier.
func (asb *AbstractSecurityBlock) Parameter(id uint64) (IDValueTuple, bool) {
	for _, p := range asb.SecurityContextParameters {
		if p.ID() == id {
			return p, true
		}
	}
	return nil, false
}

// ResultFor returns the first result with the given identifier for the
// given target block number.
func (asb *AbstractSecurityBlock) ResultFor(target, resultID uint64) (IDValueTuple, bool) {
	for _, tsr := range asb.SecurityResults {
		if tsr.securityTarget != target {
			continue
		}
		for _, r := range tsr.results {
			if r.ID() == resultID {
				return r, true
			}
		}
	}
	return nil, false
}

// AppendResult appends a result tuple to the given target's result list.
func (asb *AbstractSecurityBlock) AppendResult(target uint64, result IDValueTuple) {
	for i := range asb.SecurityResults {
		if asb.SecurityResults[i].securityTarget == target {
			asb.SecurityResults[i].results = append(asb.SecurityResults[i].results, result)
			return
		}
	}
}

func (asb *AbstractSecurityBlock) MarshalCbor(w io.Writer) error {
	var blockLen uint64 = 5
	if asb.HasSecurityContextParameters() {
		blockLen++
	}

	if err := cboring.WriteArrayLength(blockLen, w); err != nil {
		return err
	}

	if err := cboring.WriteArrayLength(uint64(len(asb.SecurityTargets)), w); err != nil {
		return err
	}
	for _, target := range asb.SecurityTargets {
		if err := cboring.WriteUInt(target, w); err != nil {
			return err
		}
	}

	if err := cboring.WriteUInt(asb.SecurityContextID, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(asb.contextParametersPresent, w); err != nil {
		return err
	}
	if err := asb.SecuritySource.MarshalCbor(w); err != nil {
		return err
	}

	if asb.HasSecurityContextParameters() {
		if err := cboring.WriteArrayLength(uint64(len(asb.SecurityContextParameters)), w); err != nil {
			return err
		}
		for _, p := range asb.SecurityContextParameters {
			if err := p.MarshalCbor(w); err != nil {
				return err
			}
		}
	}

	if err := cboring.WriteArrayLength(uint64(len(asb.SecurityResults)), w); err != nil {
		return err
	}
	for i := range asb.SecurityResults {
		if err := asb.SecurityResults[i].MarshalCbor(w); err != nil {
			return err
		}
	}

	return nil
}

func (asb *AbstractSecurityBlock) UnmarshalCbor(r io.Reader) error {
	blockLen, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	} else if blockLen != 5 && blockLen != 6 {
		return fmt.Errorf("AbstractSecurityBlock: expected array with length 5 or 6, got %d", blockLen)
	}

	targetCount, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}
	for i := uint64(0); i < targetCount; i++ {
		st, err := cboring.ReadUInt(r)
		if err != nil {
			return err
		}
		asb.SecurityTargets = append(asb.SecurityTargets, st)
	}

	if scid, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		asb.SecurityContextID = scid
	}

	if scf, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		asb.contextParametersPresent = scf
	}

	if err := cboring.Unmarshal(&asb.SecuritySource, r); err != nil {
		return err
	}

	if asb.HasSecurityContextParameters() {
		if blockLen != 6 {
			return fmt.Errorf("AbstractSecurityBlock: expected array with length 6, got %d", blockLen)
		}
		var err error
		r, err = asb.unmarshalParameters(r)
		if err != nil {
			return fmt.Errorf("AbstractSecurityBlock: failed to unmarshal SecurityContextParameters: %v", err)
		}
	}

	resultCount, err := cboring.ReadArrayLength(r)
	if err != nil {
		return fmt.Errorf("AbstractSecurityBlock: failed to unmarshal SecurityResults: %v", err)
	}
	for i := uint64(0); i < resultCount; i++ {
		tsr := TargetSecurityResults{}
		if err := cboring.Unmarshal(&tsr, r); err != nil {
			return fmt.Errorf("AbstractSecurityBlock: failed to unmarshal SecurityResults: %v", err)
		}
		asb.SecurityResults = append(asb.SecurityResults, tsr)
	}

	return asb.CheckValid()
}

// unmarshalParameters decodes SecurityContextParameters, disambiguating
// each IDValueTuple's value type (byte string vs. uint64) by peeking the
// CBOR major type before the real decode, since the array element's value
// type is not otherwise self-describing.
func (asb *AbstractSecurityBlock) unmarshalParameters(r io.Reader) (io.Reader, error) {
	paramCount, err := cboring.ReadArrayLength(r)
	if err != nil {
		return nil, err
	} else if paramCount > 3 {
		return nil, fmt.Errorf("wrong array length: %d instead of max 3", paramCount)
	}

	br := bufio.NewReader(r)

	for i := uint64(0); i < paramCount; i++ {
		peeked, _ := br.Peek(br.Size())
		peekReader := bytes.NewReader(peeked)

		if _, err := cboring.ReadArrayLength(peekReader); err != nil {
			return nil, fmt.Errorf("failed reading array length: %v", err)
		}
		if _, err := cboring.ReadUInt(peekReader); err != nil {
			return nil, fmt.Errorf("failed reading parameter id: %v", err)
		}

		majorType, _, err := cboring.ReadMajors(peekReader)
		if err != nil {
			return nil, fmt.Errorf("failed reading parameter value major type: %v", err)
		}

		var param IDValueTuple
		switch majorType {
		case cboring.ByteString:
			param = &IDValueTupleByteString{}
		case cboring.UInt:
			param = &IDValueTupleUInt64{}
		default:
			return nil, fmt.Errorf("unexpected parameter value major type %d", majorType)
		}

		if err := cboring.Unmarshal(param, br); err != nil {
			return nil, err
		}
		asb.SecurityContextParameters = append(asb.SecurityContextParameters, param)
	}

	rest, _ := io.ReadAll(br)
	return bytes.NewReader(rest), nil
}

// CheckValid enforces the MUST/MUST NOT constraints RFC 9172 §3.6 places
// on an Abstract Security Block.
func (asb *AbstractSecurityBlock) CheckValid() (errs error) {
	if len(asb.SecurityTargets) == 0 {
		errs = multierror.Append(errs, errors.New("AbstractSecurityBlock: no entries in SecurityTargets"))
	}

	seen := make(map[uint64]bool)
	var duplicates []uint64
	for _, target := range asb.SecurityTargets {
		if seen[target] {
			duplicates = append(duplicates, target)
		}
		seen[target] = true
	}
	if len(duplicates) != 0 {
		errs = multierror.Append(errs, fmt.Errorf(
			"AbstractSecurityBlock: duplicate SecurityTargets entries: %v", duplicates))
	}

	if len(asb.SecurityResults) != len(asb.SecurityTargets) {
		errs = multierror.Append(errs, fmt.Errorf(
			"AbstractSecurityBlock: %d SecurityTargets but %d SecurityResults entries",
			len(asb.SecurityTargets), len(asb.SecurityResults)))
	} else {
		for i, tsr := range asb.SecurityResults {
			if tsr.securityTarget != asb.SecurityTargets[i] {
				errs = multierror.Append(errs, errors.New(
					"AbstractSecurityBlock: SecurityTargets/SecurityResults ordering mismatch"))
				break
			}
		}
	}

	if asb.HasSecurityContextParameters() && len(asb.SecurityContextParameters) == 0 {
		errs = multierror.Append(errs, errors.New(
			"AbstractSecurityBlock: context parameters present flag set but no parameters present"))
	}
	if !asb.HasSecurityContextParameters() && len(asb.SecurityContextParameters) != 0 {
		errs = multierror.Append(errs, errors.New(
			"AbstractSecurityBlock: context parameters present but the present flag is unset"))
	}

	if err := asb.SecuritySource.CheckValid(); err != nil {
		errs = multierror.Append(errs, err)
	}

	return
}
