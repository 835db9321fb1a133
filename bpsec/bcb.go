// SPDX-License-Identifier: GPL-3.0-or-later

package bpsec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/dtn7/cboring"

	"github.com/dtn7x/bpa/bpv7"
	"github.com/dtn7x/bpa/eid"
)

// BCBAESGCM implements the BPSec Block Confidentiality Block security
// context (RFC 9173 §4), wired as a bpv7.ExtensionBlock under block type
// code bpv7.ExtBlockTypeBlockConfidentialityBlock. A BCB always covers
// exactly one target (RFC 9173 §4.1).
type BCBAESGCM struct {
	Asb AbstractSecurityBlock
}

func (bcb *BCBAESGCM) BlockTypeCode() uint64 { return bpv7.ExtBlockTypeBlockConfidentialityBlock }
func (bcb *BCBAESGCM) BlockTypeName() string  { return contextName(ContextBCBAESGCM) }

func (bcb *BCBAESGCM) MarshalCbor(w io.Writer) error { return bcb.Asb.MarshalCbor(w) }

func (bcb *BCBAESGCM) UnmarshalCbor(r io.Reader) error { return bcb.Asb.UnmarshalCbor(r) }

func (bcb *BCBAESGCM) CheckValid() error { return bcb.Asb.CheckValid() }

func (bcb *BCBAESGCM) CheckContextValid(*bpv7.Bundle) error { return bcb.CheckValid() }

// NewBCBAESGCM creates a BCB covering a single target block number, with
// the default AES-256-GCM variant and AAD scope flags unless
// aesVariant/aadScopeFlags override them.
func NewBCBAESGCM(target uint64, source eid.ID, aesVariant *uint64, aadScopeFlags *uint16) *BCBAESGCM {
	var params []IDValueTuple
	if aesVariant != nil {
		params = append(params, &IDValueTupleUInt64{id: ParamAESVariant, value: *aesVariant})
	}
	if aadScopeFlags != nil {
		params = append(params, &IDValueTupleUInt64{id: ParamAADScopeFlags, value: uint64(*aadScopeFlags)})
	}

	asb := AbstractSecurityBlock{
		SecurityTargets:   []uint64{target},
		SecurityContextID: ContextBCBAESGCM,
		SecuritySource:    source,
		SecurityResults:   []TargetSecurityResults{{securityTarget: target}},
	}
	asb.SetParameters(params)

	return &BCBAESGCM{Asb: asb}
}

func (bcb *BCBAESGCM) target() uint64 { return bcb.Asb.SecurityTargets[0] }

func (bcb *BCBAESGCM) aesVariant() uint64 {
	if p, ok := bcb.Asb.Parameter(ParamAESVariant); ok {
		return p.Value().(uint64)
	}
	return A256GCM
}

func (bcb *BCBAESGCM) aadScopeFlags() uint16 {
	if p, ok := bcb.Asb.Parameter(ParamAADScopeFlags); ok {
		return uint16(p.Value().(uint64))
	}
	return AADScopeDefault
}

func (bcb *BCBAESGCM) keyLength() int {
	if bcb.aesVariant() == A128GCM {
		return 16
	}
	return 32
}

// prepareAAD constructs the Additional Authenticated Data for this BCB's
// target, following the canonical-form construction of RFC 9173 §4.7.2.
func (bcb *BCBAESGCM) prepareAAD(b *bpv7.Bundle, targetBlock *bpv7.CanonicalBlock, bcbBlockNumber uint64) (*bytes.Buffer, error) {
	aad := &bytes.Buffer{}
	scope := bcb.aadScopeFlags()

	if err := cboring.WriteUInt(uint64(scope), aad); err != nil {
		return nil, err
	}

	if scope&AADScopePrimaryBlock != 0 {
		if err := b.PrimaryBlock.MarshalCbor(aad); err != nil {
			return nil, err
		}
	}

	if scope&AADScopeTargetHeader != 0 {
		if err := cboring.WriteUInt(targetBlock.TypeCode(), aad); err != nil {
			return nil, err
		}
		if err := cboring.WriteUInt(targetBlock.BlockNumber, aad); err != nil {
			return nil, err
		}
		if err := cboring.WriteUInt(uint64(targetBlock.BlockControlFlags), aad); err != nil {
			return nil, err
		}
	}

	if scope&AADScopeSecurityHeader != 0 {
		bcbBlock, err := b.ExtensionBlockByNumber(bcbBlockNumber)
		if err != nil {
			return nil, err
		}
		if err := cboring.WriteUInt(bcbBlock.TypeCode(), aad); err != nil {
			return nil, err
		}
		if err := cboring.WriteUInt(bcbBlock.BlockNumber, aad); err != nil {
			return nil, err
		}
		if err := cboring.WriteUInt(uint64(bcbBlock.BlockControlFlags), aad); err != nil {
			return nil, err
		}
	}

	return aad, nil
}

// Encrypt replaces the target payload block's plaintext with ciphertext
// in situ and stores the authentication tag as a security result.
func (bcb *BCBAESGCM) Encrypt(b *bpv7.Bundle, bcbBlockNumber uint64, key []byte) error {
	targetBlock, err := b.ExtensionBlockByNumber(bcb.target())
	if err != nil {
		return err
	}
	if targetBlock.Value.BlockTypeCode() != bpv7.ExtBlockTypePayloadBlock {
		return fmt.Errorf("bpsec: unsupported BCB target block type code %d", targetBlock.Value.BlockTypeCode())
	}

	if targetBlock.CRCType != bpv7.CRCNo {
		targetBlock.CRCType = bpv7.CRCNo
		targetBlock.CRC = nil
	}

	plainText := targetBlock.Value.(*bpv7.PayloadBlock).Data()

	aad, err := bcb.prepareAAD(b, targetBlock, bcbBlockNumber)
	if err != nil {
		return err
	}

	gcm, err := bcb.gcm(key)
	if err != nil {
		return err
	}

	iv, ok := bcb.ivParameter()
	if !ok {
		iv = make([]byte, gcm.NonceSize())
		if _, err := io.ReadFull(rand.Reader, iv); err != nil {
			return err
		}
		bcb.Asb.SecurityContextParameters = append(bcb.Asb.SecurityContextParameters,
			&IDValueTupleByteString{id: ParamIV, value: iv})
		bcb.Asb.contextParametersPresent = securityContextParametersPresentFlag
	}

	sealed := gcm.Seal(nil, iv, plainText, aad.Bytes())
	cipherText := sealed[:len(sealed)-gcm.Overhead()]
	authTag := sealed[len(sealed)-gcm.Overhead():]

	targetBlock.Value = bpv7.NewPayloadBlock(cipherText)
	bcb.Asb.AppendResult(bcb.target(), &IDValueTupleByteString{id: ResultAuthTag, value: authTag})

	return nil
}

// Decrypt restores the target payload block's plaintext and verifies the
// authentication tag; on success the target block's CRC is re-enabled.
func (bcb *BCBAESGCM) Decrypt(b *bpv7.Bundle, bcbBlockNumber uint64, key []byte) error {
	targetBlock, err := b.ExtensionBlockByNumber(bcb.target())
	if err != nil {
		return err
	}
	if targetBlock.Value.BlockTypeCode() != bpv7.ExtBlockTypePayloadBlock {
		return fmt.Errorf("bpsec: unsupported BCB target block type code %d", targetBlock.Value.BlockTypeCode())
	}

	iv, ok := bcb.ivParameter()
	if !ok {
		return fmt.Errorf("bpsec: BCB IV security parameter is missing")
	}

	authTag, ok := bcb.Asb.ResultFor(bcb.target(), ResultAuthTag)
	if !ok {
		return fmt.Errorf("bpsec: BCB authentication tag result is missing")
	}

	aad, err := bcb.prepareAAD(b, targetBlock, bcbBlockNumber)
	if err != nil {
		return err
	}

	gcm, err := bcb.gcm(key)
	if err != nil {
		return err
	}

	cipherText := targetBlock.Value.(*bpv7.PayloadBlock).Data()
	sealed := append(append([]byte{}, cipherText...), authTag.Value().([]byte)...)

	plainText, err := gcm.Open(nil, iv, sealed, aad.Bytes())
	if err != nil {
		return fmt.Errorf("bpsec: AEAD open failed for target block %d: %w", bcb.target(), err)
	}

	targetBlock.Value = bpv7.NewPayloadBlock(plainText)
	targetBlock.CRCType = bpv7.CRC32Castagnoli

	return nil
}

func (bcb *BCBAESGCM) ivParameter() ([]byte, bool) {
	if p, ok := bcb.Asb.Parameter(ParamIV); ok {
		return p.Value().([]byte), true
	}
	return nil, false
}

func (bcb *BCBAESGCM) gcm(key []byte) (cipher.AEAD, error) {
	if len(key) != bcb.keyLength() {
		return nil, fmt.Errorf("bpsec: key length %d does not match AES variant (want %d bytes)", len(key), bcb.keyLength())
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
