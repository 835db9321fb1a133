// SPDX-License-Identifier: GPL-3.0-or-later

package bpsec

import (
	"errors"
	"fmt"

	"github.com/dtn7x/bpa/bpv7"
	"github.com/dtn7x/bpa/eid"
	"github.com/dtn7x/bpa/internal/bpaerr"
)

// Sentinel failure modes for Verify/Decrypt (spec §4.E).
var (
	ErrNoKey          = errors.New("bpsec: no usable key")
	ErrBadMac         = errors.New("bpsec: MAC verification failed")
	ErrAeadFailure    = errors.New("bpsec: AEAD authentication failed")
	ErrUnknownContext = errors.New("bpsec: unknown security context")
)

// bibFor returns the BIB (and its block number) covering the given target,
// if any.
func bibFor(b *bpv7.Bundle, target uint64) (*bpv7.CanonicalBlock, *BIBHMACSHA2, bool) {
	for i := range b.CanonicalBlocks {
		cb := &b.CanonicalBlocks[i]
		bib, ok := cb.Value.(*BIBHMACSHA2)
		if !ok {
			continue
		}
		for _, t := range bib.Asb.SecurityTargets {
			if t == target {
				return cb, bib, true
			}
		}
	}
	return nil, nil, false
}

// bcbFor returns the BCB (and its block number) covering the given target,
// if any.
func bcbFor(b *bpv7.Bundle, target uint64) (*bpv7.CanonicalBlock, *BCBAESGCM, bool) {
	for i := range b.CanonicalBlocks {
		cb := &b.CanonicalBlocks[i]
		bcb, ok := cb.Value.(*BCBAESGCM)
		if !ok {
			continue
		}
		if bcb.target() == target {
			return cb, bcb, true
		}
	}
	return nil, nil, false
}

// Sign adds a new BIB-HMAC-SHA2 covering targets, or returns an error if
// any target is already covered by a BIB (RFC 9172 §3.4 forbids competing
// integrity claims over the same block from one security source).
func Sign(b *bpv7.Bundle, targets []uint64, source eid.ID, ks KeySource) error {
	for _, target := range targets {
		if _, _, ok := bibFor(b, target); ok {
			return bpaerr.New(bpaerr.KindSecurity, "bpsec.Sign",
				fmt.Errorf("target block %d is already covered by a BIB", target))
		}
	}

	keys, err := ks.Keys(source, ContextBIBHMACSHA2)
	if err != nil || len(keys) == 0 {
		return bpaerr.New(bpaerr.KindSecurity, "bpsec.Sign", ErrNoKey)
	}

	bib := NewBIBHMACSHA2(targets, source, nil, nil)
	cb := bpv7.NewCanonicalBlock(0, 0, bib)
	b.AddExtensionBlock(cb)

	if err := bib.Sign(b, blockNumberOf(b, bib), keys[0].Secret); err != nil {
		return bpaerr.New(bpaerr.KindSecurity, "bpsec.Sign", err)
	}
	return nil
}

// Encrypt adds a new BCB-AES-GCM covering target and replaces its
// plaintext with ciphertext in situ.
func Encrypt(b *bpv7.Bundle, target uint64, source eid.ID, ks KeySource) error {
	if _, _, ok := bcbFor(b, target); ok {
		return bpaerr.New(bpaerr.KindSecurity, "bpsec.Encrypt",
			fmt.Errorf("target block %d is already covered by a BCB", target))
	}

	keys, err := ks.Keys(source, ContextBCBAESGCM)
	if err != nil || len(keys) == 0 {
		return bpaerr.New(bpaerr.KindSecurity, "bpsec.Encrypt", ErrNoKey)
	}

	bcb := NewBCBAESGCM(target, source, nil, nil)
	key, derr := deriveKey(keys[0], bcb.keyLength(), "bpsec-bcb-aes-gcm")
	if derr != nil {
		return bpaerr.New(bpaerr.KindSecurity, "bpsec.Encrypt", derr)
	}

	cb := bpv7.NewCanonicalBlock(0, 0, bcb)
	b.AddExtensionBlock(cb)

	if err := bcb.Encrypt(b, blockNumberOf(b, bcb), key); err != nil {
		return bpaerr.New(bpaerr.KindSecurity, "bpsec.Encrypt", fmt.Errorf("%w: %v", ErrAeadFailure, err))
	}
	return nil
}

// Verify checks the BIB covering target against every key KeySource
// offers, succeeding on the first match. It is idempotent: a target with
// no BIB is trivially "not protected" rather than an error, matching
// RFC 9172's optional-BIB model — callers enforce policy on top.
func Verify(b *bpv7.Bundle, target uint64, ks KeySource) error {
	cb, bib, ok := bibFor(b, target)
	if !ok {
		return nil
	}

	keys, err := ks.Keys(bib.Asb.SecuritySource, ContextBIBHMACSHA2)
	if err != nil || len(keys) == 0 {
		return bpaerr.New(bpaerr.KindSecurity, "bpsec.Verify", ErrNoKey)
	}

	var lastErr error
	for _, km := range keys {
		if err := bib.Verify(b, cb.BlockNumber, km.Secret); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return bpaerr.New(bpaerr.KindSecurity, "bpsec.Verify", fmt.Errorf("%w: %v", ErrBadMac, lastErr))
}

// Decrypt restores target's plaintext via its BCB, trying every key
// KeySource offers until one authenticates.
func Decrypt(b *bpv7.Bundle, target uint64, ks KeySource) error {
	cb, bcb, ok := bcbFor(b, target)
	if !ok {
		return nil
	}

	keys, err := ks.Keys(bcb.Asb.SecuritySource, ContextBCBAESGCM)
	if err != nil || len(keys) == 0 {
		return bpaerr.New(bpaerr.KindSecurity, "bpsec.Decrypt", ErrNoKey)
	}

	var lastErr error
	for _, km := range keys {
		key, derr := deriveKey(km, bcb.keyLength(), "bpsec-bcb-aes-gcm")
		if derr != nil {
			lastErr = derr
			continue
		}
		if err := bcb.Decrypt(b, cb.BlockNumber, key); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return bpaerr.New(bpaerr.KindSecurity, "bpsec.Decrypt", fmt.Errorf("%w: %v", ErrAeadFailure, lastErr))
}

// RemoveIntegrity drops target from whichever BIB covers it, deleting the
// BIB entirely once its target list becomes empty.
func RemoveIntegrity(b *bpv7.Bundle, target uint64) error {
	cb, bib, ok := bibFor(b, target)
	if !ok {
		return nil
	}
	removeTarget(&bib.Asb, target)
	if len(bib.Asb.SecurityTargets) == 0 {
		b.RemoveExtensionBlockByNumber(cb.BlockNumber)
	}
	return nil
}

// RemoveEncryption decrypts target (restoring plaintext) and then drops it
// from whichever BCB covers it, deleting the BCB entirely once its target
// list becomes empty. Decryption MUST happen before the target is
// un-registered from the BCB (spec §4.E): otherwise the AAD construction
// for Decrypt would no longer find the BCB's own header fields. Once the
// plaintext is restored, any BIB still covering target is re-verified
// against it: a missing BIB key is not an error, a failed MAC is returned.
func RemoveEncryption(b *bpv7.Bundle, target uint64, ks KeySource) error {
	cb, bcb, ok := bcbFor(b, target)
	if !ok {
		return nil
	}

	if err := Decrypt(b, target, ks); err != nil {
		return err
	}

	removeTarget(&bcb.Asb, target)
	if len(bcb.Asb.SecurityTargets) == 0 {
		b.RemoveExtensionBlockByNumber(cb.BlockNumber)
	}

	if err := Verify(b, target, ks); err != nil && !errors.Is(err, ErrNoKey) {
		return err
	}
	return nil
}

func removeTarget(asb *AbstractSecurityBlock, target uint64) {
	targets := asb.SecurityTargets[:0]
	for _, t := range asb.SecurityTargets {
		if t != target {
			targets = append(targets, t)
		}
	}
	asb.SecurityTargets = targets

	results := asb.SecurityResults[:0]
	for _, r := range asb.SecurityResults {
		if r.securityTarget != target {
			results = append(results, r)
		}
	}
	asb.SecurityResults = results
}

// blockNumberOf looks up the block number AddExtensionBlock assigned to
// value, since AddExtensionBlock computes it internally rather than
// returning it.
func blockNumberOf(b *bpv7.Bundle, value bpv7.ExtensionBlock) uint64 {
	for i := range b.CanonicalBlocks {
		if b.CanonicalBlocks[i].Value == value {
			return b.CanonicalBlocks[i].BlockNumber
		}
	}
	return 0
}
