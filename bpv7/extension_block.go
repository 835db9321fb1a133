// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"encoding"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/dtn7/cboring"

	"github.com/dtn7x/bpa/eid"
)

// Sorted list of all known block type codes to prevent double usage.
const (
	// ExtBlockTypePayloadBlock is the block type code for a Payload Block.
	ExtBlockTypePayloadBlock uint64 = 1

	// ExtBlockTypePreviousNodeBlock is the block type code for a Previous Node Block.
	ExtBlockTypePreviousNodeBlock uint64 = 6

	// ExtBlockTypeBundleAgeBlock is the block type code for a Bundle Age Block.
	ExtBlockTypeBundleAgeBlock uint64 = 7

	// ExtBlockTypeHopCountBlock is the block type code for a Hop Count Block.
	ExtBlockTypeHopCountBlock uint64 = 10

	// ExtBlockTypeBlockIntegrityBlock is the block type code for a BPSec
	// Block Integrity Block (RFC 9172 §3.6).
	ExtBlockTypeBlockIntegrityBlock uint64 = 11

	// ExtBlockTypeBlockConfidentialityBlock is the block type code for a
	// BPSec Block Confidentiality Block (RFC 9172 §3.6).
	ExtBlockTypeBlockConfidentialityBlock uint64 = 12
)

// privateBlockTypeRange is the reserved-for-experimental-use block type
// code range RFC 9171 §4.2.3 sets aside.
const (
	privateBlockTypeLow  uint64 = 192
	privateBlockTypeHigh uint64 = 255
)

// IsPrivateBlockType reports whether typeCode falls into the private/
// experimental range, in which an unrecognized code is not itself an error.
func IsPrivateBlockType(typeCode uint64) bool {
	return typeCode >= privateBlockTypeLow && typeCode <= privateBlockTypeHigh
}

// ExtensionBlock describes the block-type specific data of any Canonical
// Block. An ExtensionBlock must implement either cboring.CborMarshaler, if
// it is serializable to/from CBOR, or both encoding.BinaryMarshaler and
// encoding.BinaryUnmarshaler, which allows any kind of serialization, e.g.,
// to a totally custom format.
type ExtensionBlock interface {
	Valid

	// BlockTypeCode must return a constant integer, indicating the block
	// type code.
	BlockTypeCode() uint64

	// BlockTypeName must return a constant string, this block's name.
	BlockTypeName() string

	// CheckContextValid lets a block validate itself against the rest of
	// the bundle it belongs to, e.g., enforcing at-most-one occurrence.
	CheckContextValid(b *Bundle) error
}

// ExtensionBlockManager keeps a book on various types of ExtensionBlocks
// that can be changed at runtime. Thus, new ExtensionBlocks can be created
// based on their block type code.
//
// A singleton ExtensionBlockManager can be fetched by GetExtensionBlockManager.
type ExtensionBlockManager struct {
	data  map[uint64]reflect.Type
	mutex sync.Mutex
}

// NewExtensionBlockManager creates an empty ExtensionBlockManager. To use a
// singleton ExtensionBlockManager, use GetExtensionBlockManager.
func NewExtensionBlockManager() *ExtensionBlockManager {
	return &ExtensionBlockManager{
		data: make(map[uint64]reflect.Type),
	}
}

// Register a new ExtensionBlock type through an exemplary instance.
func (ebm *ExtensionBlockManager) Register(eb ExtensionBlock) error {
	ebm.mutex.Lock()
	defer ebm.mutex.Unlock()

	extCode := eb.BlockTypeCode()
	extType := reflect.TypeOf(eb).Elem()

	if extType == reflect.TypeOf((*GenericExtensionBlock)(nil)).Elem() {
		return fmt.Errorf("not allowed to register a GenericExtensionBlock")
	}

	if otherType, exists := ebm.data[extCode]; exists {
		return fmt.Errorf("block type code %d is already registered for %s",
			extCode, otherType.Name())
	}

	ebm.data[extCode] = extType
	return nil
}

// Unregister an ExtensionBlock type through an exemplary instance.
func (ebm *ExtensionBlockManager) Unregister(eb ExtensionBlock) {
	ebm.mutex.Lock()
	defer ebm.mutex.Unlock()

	delete(ebm.data, eb.BlockTypeCode())
}

// IsKnown returns true if the ExtensionBlock for this block type code is known.
func (ebm *ExtensionBlockManager) IsKnown(typeCode uint64) bool {
	ebm.mutex.Lock()
	defer ebm.mutex.Unlock()

	_, known := ebm.data[typeCode]
	return known
}

// createBlock returns either a specific ExtensionBlock or, if the type code
// is not registered, a GenericExtensionBlock.
func (ebm *ExtensionBlockManager) createBlock(typeCode uint64) ExtensionBlock {
	ebm.mutex.Lock()
	extType, exists := ebm.data[typeCode]
	ebm.mutex.Unlock()

	if exists {
		return reflect.New(extType).Interface().(ExtensionBlock)
	}
	return &GenericExtensionBlock{typeCode: typeCode}
}

// WriteBlock writes an ExtensionBlock in its correct binary format into the
// io.Writer. Unknown block types are treated as GenericExtensionBlock.
func (ebm *ExtensionBlockManager) WriteBlock(b ExtensionBlock, w io.Writer) error {
	switch b := b.(type) {
	case encoding.BinaryMarshaler:
		data, err := b.MarshalBinary()
		if err != nil {
			return fmt.Errorf("marshalling binary for block errored: %v", err)
		}
		return cboring.WriteByteString(data, w)

	case cboring.CborMarshaler:
		var buff bytes.Buffer
		if err := cboring.Marshal(b, &buff); err != nil {
			return fmt.Errorf("marshalling CBOR for block errored: %v", err)
		}
		return cboring.WriteByteString(buff.Bytes(), w)

	default:
		return fmt.Errorf("ExtensionBlock does not implement any expected types")
	}
}

// ReadBlock reads an ExtensionBlock from its correct binary format from the
// io.Reader. Unknown block types are treated as GenericExtensionBlock.
func (ebm *ExtensionBlockManager) ReadBlock(typeCode uint64, r io.Reader) (b ExtensionBlock, err error) {
	b = ebm.createBlock(typeCode)

	switch b := b.(type) {
	case encoding.BinaryUnmarshaler:
		var data []byte
		if data, err = cboring.ReadByteString(r); err == nil {
			err = b.UnmarshalBinary(data)
		}

	case cboring.CborMarshaler:
		var data []byte
		if data, err = cboring.ReadByteString(r); err == nil {
			err = cboring.Unmarshal(b, bytes.NewBuffer(data))
		}

	default:
		err = fmt.Errorf("ExtensionBlock does not implement any expected types")
	}

	return
}

var (
	extensionBlockManager      *ExtensionBlockManager
	extensionBlockManagerMutex sync.Mutex
)

// GetExtensionBlockManager returns the singleton ExtensionBlockManager. If
// none exists yet, a new one is created with knowledge of the PayloadBlock,
// PreviousNodeBlock, BundleAgeBlock and HopCountBlock.
func GetExtensionBlockManager() *ExtensionBlockManager {
	extensionBlockManagerMutex.Lock()
	defer extensionBlockManagerMutex.Unlock()

	if extensionBlockManager == nil {
		extensionBlockManager = NewExtensionBlockManager()

		_ = extensionBlockManager.Register(NewPayloadBlock(nil))
		_ = extensionBlockManager.Register(NewPreviousNodeBlock(eid.Null()))
		_ = extensionBlockManager.Register(NewBundleAgeBlock(0))
		_ = extensionBlockManager.Register(NewHopCountBlock(0))
	}

	return extensionBlockManager
}
