// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import "encoding/json"

// GenericExtensionBlock is a fallback ExtensionBlock for block type codes
// not registered with the ExtensionBlockManager. Its payload is kept as an
// opaque byte string so unknown blocks can still be parsed, carried and
// re-serialized without data loss.
type GenericExtensionBlock struct {
	data      []byte
	typeCode  uint64
}

// NewGenericExtensionBlock creates a GenericExtensionBlock for an unregistered
// block type code.
func NewGenericExtensionBlock(data []byte, typeCode uint64) *GenericExtensionBlock {
	return &GenericExtensionBlock{data: data, typeCode: typeCode}
}

func (geb *GenericExtensionBlock) BlockTypeCode() uint64 { return geb.typeCode }
func (geb *GenericExtensionBlock) BlockTypeName() string  { return "N/A" }

// Data returns this block's raw payload.
func (geb *GenericExtensionBlock) Data() []byte { return geb.data }

func (geb *GenericExtensionBlock) MarshalBinary() ([]byte, error) {
	return geb.data, nil
}

func (geb *GenericExtensionBlock) UnmarshalBinary(data []byte) error {
	geb.data = data
	return nil
}

func (geb *GenericExtensionBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(geb.data)
}

func (geb *GenericExtensionBlock) CheckValid() error { return nil }

func (geb *GenericExtensionBlock) CheckContextValid(*Bundle) error { return nil }
