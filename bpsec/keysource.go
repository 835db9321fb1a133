// SPDX-License-Identifier: GPL-3.0-or-later

package bpsec

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/hkdf"

	"github.com/dtn7x/bpa/eid"
)

// KeyMaterial is one candidate key a KeySource can hand back for a given
// security source and context. Secret is either a ready context key
// (already the right length for the requested algorithm) or a shared
// seed to be expanded via HKDF.
type KeyMaterial struct {
	// ID identifies this key, e.g. for logging or key-rotation bookkeeping.
	ID string
	// Secret is the raw key or seed bytes.
	Secret []byte
}

// KeySource resolves candidate keys for a security operation, generalizing
// the teacher's hard-coded single []byte key parameter into a pluggable
// capability, modeled on cla.ConvergenceProvider's small single-purpose
// interface style.
//
// Verify/Decrypt try every returned KeyMaterial in order until one
// succeeds; Sign/Encrypt use the first.
type KeySource interface {
	Keys(securitySource eid.ID, contextID uint64) ([]KeyMaterial, error)
}

// StaticKeySource is a KeySource backed by a fixed key list, usable
// directly in tests and for single-key deployments.
type StaticKeySource []KeyMaterial

func (s StaticKeySource) Keys(eid.ID, uint64) ([]KeyMaterial, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("bpsec: StaticKeySource has no keys")
	}
	return s, nil
}

// deriveKey expands a KeyMaterial's Secret to exactly length bytes via
// HKDF-SHA256 when it is not already that length: this lets a single
// shared seed serve both the longer HMAC contexts and the fixed-length
// AES-GCM contexts without the caller pre-splitting keys per algorithm.
func deriveKey(km KeyMaterial, length int, info string) ([]byte, error) {
	if len(km.Secret) == length {
		return km.Secret, nil
	}

	out := make([]byte, length)
	kdf := hkdf.New(sha256.New, km.Secret, nil, []byte(info))
	if _, err := kdf.Read(out); err != nil {
		return nil, fmt.Errorf("bpsec: HKDF key derivation failed: %w", err)
	}
	return out, nil
}
