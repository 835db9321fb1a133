// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"fmt"

	"github.com/dtn7x/bpa/internal/bpaerr"
	"github.com/dtn7x/bpa/internal/cborcodec"
)

// Verdict classifies the outcome of parsing a serialized bundle.
type Verdict int

const (
	// Valid means the bytes parsed, passed CheckValid, and were already in
	// canonical (deterministic) CBOR form: no re-encoding occurred.
	Valid Verdict = iota
	// Rewritten means the bytes parsed and passed CheckValid, but were not
	// in canonical form (non-shortest-form integers, indefinite-length
	// containers, …). ParseResult.Rewrite carries the re-encoded canonical
	// bytes.
	Rewritten
	// Invalid means the bytes either failed to parse as CBOR, or parsed but
	// failed CheckValid.
	Invalid
)

func (v Verdict) String() string {
	switch v {
	case Valid:
		return "Valid"
	case Rewritten:
		return "Rewritten"
	case Invalid:
		return "Invalid"
	default:
		return "Unknown"
	}
}

// ParseResult is the outcome of Parse: a Verdict plus the parsed Bundle (if
// parsing got far enough to produce one) and, for Rewritten, the canonical
// re-encoding of that Bundle.
type ParseResult struct {
	Verdict  Verdict
	Bundle   Bundle
	Rewrite  []byte
	Tags     []uint64
	Err      error
}

// Parse decodes a serialized Bundle and classifies it as Valid, Rewritten or
// Invalid (spec §4.D). It never panics on malformed input.
//
// The canonical-form check runs independently of the semantic decode: the
// cborcodec walker inspects the raw bytes for shortest-form integers and
// definite-length containers, while cboring.Unmarshal (via Bundle's own
// UnmarshalCbor, which also runs CheckValid) performs the semantic decode
// cboring's major-type API does not expose a canonicity bit for.
func Parse(data []byte) ParseResult {
	report, inspectErr := cborcodec.Inspect(data)
	if inspectErr != nil {
		return ParseResult{
			Verdict: Invalid,
			Err:     bpaerr.New(bpaerr.KindProtocol, "bpv7.Parse", inspectErr),
		}
	}

	b, err := ParseBundle(bytes.NewReader(data))
	if err != nil {
		return ParseResult{
			Verdict: Invalid,
			Err:     bpaerr.New(bpaerr.KindProtocol, "bpv7.Parse", err),
		}
	}

	if report.Canonical {
		return ParseResult{Verdict: Valid, Bundle: b, Tags: report.Tags}
	}

	var buf bytes.Buffer
	if err := b.WriteBundle(&buf); err != nil {
		return ParseResult{
			Verdict: Invalid,
			Err:     bpaerr.New(bpaerr.KindProtocol, "bpv7.Parse", fmt.Errorf("canonical re-encode failed: %w", err)),
		}
	}

	return ParseResult{Verdict: Rewritten, Bundle: b, Rewrite: buf.Bytes(), Tags: report.Tags}
}
