// SPDX-License-Identifier: GPL-3.0-or-later

// Package editor is the bundle editor (spec §4.F): a builder that mutates a
// bpv7.Bundle one step at a time and re-emits it through the canonical CBOR
// path. Grounded on bpv7.Bundle.AddExtensionBlock/RemoveExtensionBlockByNumber
// for block bookkeeping and on bpsec's engine operations for
// remove-integrity/remove-encryption target-list bookkeeping.
package editor

import (
	"bytes"
	"fmt"

	"github.com/dtn7x/bpa/bpsec"
	"github.com/dtn7x/bpa/bpv7"
	"github.com/dtn7x/bpa/eid"
)

// Editor wraps a bpv7.Bundle so it can be mutated through a chain of
// builder-style calls. Every mutator returns a new Editor; on error the
// returned Editor is the receiver unchanged, so callers may continue
// chaining or inspect the error and abandon the edit.
type Editor struct {
	Bundle bpv7.Bundle
}

// New wraps an existing Bundle for editing.
func New(b bpv7.Bundle) Editor {
	return Editor{Bundle: b}
}

// AddExtensionBlock appends value as a new canonical block, assigning it the
// next free block number.
func (e Editor) AddExtensionBlock(value bpv7.ExtensionBlock, flags bpv7.BlockControlFlags) (Editor, error) {
	b := e.Bundle
	b.AddExtensionBlock(bpv7.NewCanonicalBlock(0, flags, value))
	return Editor{Bundle: b}, nil
}

// RemoveExtensionBlock deletes the canonical block with the given block
// number. The payload block (number 1) may not be removed this way.
func (e Editor) RemoveExtensionBlock(blockNumber uint64) (Editor, error) {
	if blockNumber == 1 {
		return e, fmt.Errorf("editor: refusing to remove the payload block")
	}

	b := e.Bundle
	if _, err := b.ExtensionBlockByNumber(blockNumber); err != nil {
		return e, err
	}
	b.RemoveExtensionBlockByNumber(blockNumber)
	return Editor{Bundle: b}, nil
}

// Sign adds a BIB-HMAC-SHA2 security block covering targets, preserving any
// existing security-target lists.
func (e Editor) Sign(targets []uint64, source eid.ID, ks bpsec.KeySource) (Editor, error) {
	b := e.Bundle
	if err := bpsec.Sign(&b, targets, source, ks); err != nil {
		return e, err
	}
	return Editor{Bundle: b}, nil
}

// Encrypt adds a BCB-AES-GCM security block covering target.
func (e Editor) Encrypt(target uint64, source eid.ID, ks bpsec.KeySource) (Editor, error) {
	b := e.Bundle
	if err := bpsec.Encrypt(&b, target, source, ks); err != nil {
		return e, err
	}
	return Editor{Bundle: b}, nil
}

// RemoveIntegrity removes target from the covering BIB's target list,
// deleting the BIB itself once its target list is empty.
func (e Editor) RemoveIntegrity(target uint64) (Editor, error) {
	b := e.Bundle
	if err := bpsec.RemoveIntegrity(&b, target); err != nil {
		return e, err
	}
	return Editor{Bundle: b}, nil
}

// RemoveEncryption decrypts target (restoring its plaintext) and removes it
// from the covering BCB's target list, deleting the BCB itself once its
// target list is empty. Decryption happens before the BCB's bookkeeping is
// touched, per bpsec's documented remove_encryption ordering.
func (e Editor) RemoveEncryption(target uint64, ks bpsec.KeySource) (Editor, error) {
	b := e.Bundle
	if err := bpsec.RemoveEncryption(&b, target, ks); err != nil {
		return e, err
	}
	return Editor{Bundle: b}, nil
}

// Rebuild re-emits the edited Bundle's canonical CBOR encoding. Every block's
// CRC is recomputed as part of marshalling; block-number order is preserved,
// never reordered. A no-op edit round-trips to the same bytes as emitting
// the original Bundle.
func (e Editor) Rebuild() ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Bundle.WriteBundle(&buf); err != nil {
		return nil, fmt.Errorf("editor: rebuild failed: %w", err)
	}
	return buf.Bytes(), nil
}
