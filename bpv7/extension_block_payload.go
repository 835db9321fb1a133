// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import "encoding/json"

// PayloadBlock implements the Bundle Protocol's Payload Block, the bundle's
// application data unit.
type PayloadBlock []byte

func (pb *PayloadBlock) BlockTypeCode() uint64 { return ExtBlockTypePayloadBlock }
func (pb *PayloadBlock) BlockTypeName() string  { return "Payload Block" }

// NewPayloadBlock creates a new PayloadBlock with the given payload.
func NewPayloadBlock(data []byte) *PayloadBlock {
	pb := PayloadBlock(data)
	return &pb
}

// Data returns this PayloadBlock's payload.
func (pb *PayloadBlock) Data() []byte { return *pb }

func (pb *PayloadBlock) MarshalBinary() ([]byte, error) { return *pb, nil }

func (pb *PayloadBlock) UnmarshalBinary(data []byte) error {
	*pb = data
	return nil
}

// MarshalJSON writes a truncated representation of the payload: full
// payload bytes do not belong in logs or API responses.
func (pb *PayloadBlock) MarshalJSON() ([]byte, error) {
	payload := pb.Data()
	if len(payload) > 100 {
		payload = payload[:100]
	}
	return json.Marshal(payload)
}

func (pb *PayloadBlock) CheckValid() error { return nil }

func (pb *PayloadBlock) CheckContextValid(b *Bundle) error {
	_, err := b.PayloadBlock()
	return err
}
