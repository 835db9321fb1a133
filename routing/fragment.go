// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dtn7x/bpa/bpv7"
)

// fragment splits b into a sequence of fragment bundles whose payload
// chunks are each at most maxPayload bytes, per RFC 9171 §5.8's simplified
// model: every block carrying ReplicateInEveryFragment is copied into each
// fragment; every other extension block travels only in the first
// (offset-0) fragment. Grounded on bpa/src/dispatcher/fragment.rs, which
// left this unimplemented upstream ("todo!()").
func fragment(b bpv7.Bundle, maxPayload int) ([]bpv7.Bundle, error) {
	if maxPayload <= 0 {
		return nil, fmt.Errorf("routing: fragment: non-positive max payload size %d", maxPayload)
	}
	if b.PrimaryBlock.BundleControlFlags.Has(bpv7.MustNotFragmented) {
		return nil, fmt.Errorf("routing: bundle %s must not be fragmented", b.ID())
	}

	payloadBlock, err := b.PayloadBlock()
	if err != nil {
		return nil, err
	}
	data := payloadBlock.Value.(*bpv7.PayloadBlock).Data()
	total := uint64(len(data))

	var replicated, rest []bpv7.CanonicalBlock
	for _, cb := range b.CanonicalBlocks {
		if cb.TypeCode() == bpv7.ExtBlockTypePayloadBlock {
			continue
		}
		if cb.BlockControlFlags.Has(bpv7.ReplicateInEveryFragment) {
			replicated = append(replicated, cb)
		} else {
			rest = append(rest, cb)
		}
	}

	var fragments []bpv7.Bundle
	for offset := uint64(0); offset < total; offset += uint64(maxPayload) {
		end := offset + uint64(maxPayload)
		if end > total {
			end = total
		}

		primary := b.PrimaryBlock
		primary.BundleControlFlags |= bpv7.IsFragment
		primary.FragmentOffset = offset
		primary.TotalDataLength = total

		canonicals := []bpv7.CanonicalBlock{
			bpv7.NewCanonicalBlock(1, payloadBlock.BlockControlFlags, bpv7.NewPayloadBlock(data[offset:end])),
		}
		canonicals = append(canonicals, replicated...)
		if offset == 0 {
			canonicals = append(canonicals, rest...)
		}

		fb, err := bpv7.NewBundle(primary, canonicals)
		if err != nil {
			return nil, fmt.Errorf("routing: building fragment at offset %d failed: %w", offset, err)
		}
		fragments = append(fragments, fb)
	}

	return fragments, nil
}

// reassembler accumulates fragments sharing the same scrubbed bundle-id
// until every byte of the original payload has been seen, then hands back
// the reassembled Bundle.
type reassembler struct {
	mutex sync.Mutex
	sets  map[string][]bpv7.Bundle
}

func newReassembler() *reassembler {
	return &reassembler{sets: make(map[string][]bpv7.Bundle)}
}

// add records one fragment and returns the reassembled Bundle, plus every
// fragment that contributed to it (so the caller can retire their
// persisted ReassemblyPending records), once every fragment for its
// bundle-id has arrived.
func (r *reassembler) add(b bpv7.Bundle) (bpv7.Bundle, bool, []bpv7.Bundle, error) {
	key := b.ID().Scrub().String()

	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.sets[key] = append(r.sets[key], b)
	set := r.sets[key]

	total := b.PrimaryBlock.TotalDataLength
	var covered uint64
	sorted := append([]bpv7.Bundle(nil), set...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PrimaryBlock.FragmentOffset < sorted[j].PrimaryBlock.FragmentOffset
	})

	for _, f := range sorted {
		pb, err := f.PayloadBlock()
		if err != nil {
			return bpv7.Bundle{}, false, nil, err
		}
		end := f.PrimaryBlock.FragmentOffset + uint64(len(pb.Value.(*bpv7.PayloadBlock).Data()))
		if end > covered {
			covered = end
		}
	}
	if covered < total {
		return bpv7.Bundle{}, false, nil, nil
	}

	merged := make([]byte, total)
	first := sorted[0]
	for _, f := range sorted {
		pb, _ := f.PayloadBlock()
		data := pb.Value.(*bpv7.PayloadBlock).Data()
		copy(merged[f.PrimaryBlock.FragmentOffset:], data)
	}

	primary := first.PrimaryBlock
	primary.BundleControlFlags &^= bpv7.IsFragment
	primary.FragmentOffset = 0
	primary.TotalDataLength = 0

	var canonicals []bpv7.CanonicalBlock
	canonicals = append(canonicals, bpv7.NewCanonicalBlock(1, 0, bpv7.NewPayloadBlock(merged)))
	for _, cb := range first.CanonicalBlocks {
		if cb.TypeCode() == bpv7.ExtBlockTypePayloadBlock {
			continue
		}
		canonicals = append(canonicals, cb)
	}

	whole, err := bpv7.NewBundle(primary, canonicals)
	if err != nil {
		return bpv7.Bundle{}, false, nil, err
	}

	delete(r.sets, key)
	return whole, true, sorted, nil
}
