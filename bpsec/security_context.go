// SPDX-License-Identifier: GPL-3.0-or-later

// Package bpsec implements the BPSec security engine from RFC 9172/9173:
// the Abstract Security Block wire model plus the BIB-HMAC-SHA2 and
// BCB-AES-GCM security contexts, wired as bpv7.ExtensionBlocks.
package bpsec

// Security context identifiers (RFC 9173 §3.1, §4.1).
const (
	ContextBIBHMACSHA2 uint64 = 1
	ContextBCBAESGCM   uint64 = 2
)

func contextName(id uint64) string {
	switch id {
	case ContextBIBHMACSHA2:
		return "BIB-HMAC-SHA2"
	case ContextBCBAESGCM:
		return "BCB-AES-GCM"
	default:
		return "unknown"
	}
}

// BIB-HMAC-SHA2 security parameter identifiers (RFC 9173 §3.3).
const (
	ParamSHAVariant           uint64 = 1
	ParamWrappedKey           uint64 = 2
	ParamIntegrityScopeFlags  uint64 = 3
)

// ResultExpectedHMAC is the BIB-HMAC-SHA2 security result identifier.
const ResultExpectedHMAC uint64 = 1

// SHA variant parameter values (RFC 9173 §3.3).
const (
	HMAC256SHA256 uint64 = 5
	HMAC384SHA384 uint64 = 6
	HMAC512SHA512 uint64 = 7
)

// Integrity scope flag bits (RFC 9173 §3.3); default is all three set.
const (
	IntegrityScopeDefault uint16 = 0b111
	IntegrityScopePrimaryBlock    uint16 = 0b001
	IntegrityScopeTargetHeader    uint16 = 0b010
	IntegrityScopeSecurityHeader  uint16 = 0b100
)

// BCB-AES-GCM security parameter identifiers (RFC 9173 §4.3).
const (
	ParamIV            uint64 = 1
	ParamAESVariant    uint64 = 2
	ParamBCBWrappedKey uint64 = 3
	ParamAADScopeFlags uint64 = 4
)

// ResultAuthTag is the BCB-AES-GCM security result identifier.
const ResultAuthTag uint64 = 1

// AES variant parameter values (RFC 9173 §4.3).
const (
	A128GCM uint64 = 1
	A256GCM uint64 = 3
)

// AAD scope flag bits (RFC 9173 §4.3); default is all three set.
const (
	AADScopeDefault        uint16 = 0b111
	AADScopePrimaryBlock   uint16 = 0b001
	AADScopeTargetHeader   uint16 = 0b010
	AADScopeSecurityHeader uint16 = 0b100
)
