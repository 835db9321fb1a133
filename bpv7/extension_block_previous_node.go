// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dtn7/cboring"

	"github.com/dtn7x/bpa/eid"
)

// PreviousNodeBlock implements the Bundle Protocol's Previous Node Block,
// recording the EID of the node that last forwarded this bundle.
type PreviousNodeBlock eid.ID

func (pnb *PreviousNodeBlock) BlockTypeCode() uint64 { return ExtBlockTypePreviousNodeBlock }
func (pnb *PreviousNodeBlock) BlockTypeName() string  { return "Previous Node Block" }

// NewPreviousNodeBlock creates a new Previous Node Block for an Endpoint ID.
func NewPreviousNodeBlock(prev eid.ID) *PreviousNodeBlock {
	pnb := PreviousNodeBlock(prev)
	return &pnb
}

// Endpoint returns this Previous Node Block's Endpoint ID.
func (pnb *PreviousNodeBlock) Endpoint() eid.ID { return eid.ID(*pnb) }

func (pnb *PreviousNodeBlock) MarshalCbor(w io.Writer) error {
	endpoint := eid.ID(*pnb)
	return cboring.Marshal(&endpoint, w)
}

func (pnb *PreviousNodeBlock) UnmarshalCbor(r io.Reader) error {
	var endpoint eid.ID
	if err := cboring.Unmarshal(&endpoint, r); err != nil {
		return err
	}
	*pnb = PreviousNodeBlock(endpoint)
	return nil
}

func (pnb *PreviousNodeBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(pnb.Endpoint().String())
}

func (pnb *PreviousNodeBlock) CheckValid() error {
	return eid.ID(*pnb).CheckValid()
}

// CheckContextValid enforces at most one Previous Node Block per bundle.
func (pnb *PreviousNodeBlock) CheckContextValid(b *Bundle) error {
	cb, err := b.ExtensionBlock(ExtBlockTypePreviousNodeBlock)
	if err != nil {
		return err
	} else if cb.Value != pnb {
		return fmt.Errorf("PreviousNodeBlock's pointer differs, %p != %p", cb.Value, pnb)
	}
	return nil
}
