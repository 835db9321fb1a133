// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// BundleAgeBlock implements the Bundle Protocol's Bundle Age Block: the
// number of milliseconds since creation, tracked explicitly for bundles
// whose source lacks an accurate clock (CreationTimestamp.IsZeroTime).
type BundleAgeBlock uint64

func (bab *BundleAgeBlock) BlockTypeCode() uint64 { return ExtBlockTypeBundleAgeBlock }
func (bab *BundleAgeBlock) BlockTypeName() string  { return "Bundle Age Block" }

// NewBundleAgeBlock creates a new BundleAgeBlock for the given milliseconds.
func NewBundleAgeBlock(ms uint64) *BundleAgeBlock {
	bab := BundleAgeBlock(ms)
	return &bab
}

// Age returns the age in milliseconds.
func (bab *BundleAgeBlock) Age() uint64 { return uint64(*bab) }

// Increment the age by an offset in milliseconds and return the new value.
func (bab *BundleAgeBlock) Increment(offset uint64) uint64 {
	*bab += BundleAgeBlock(offset)
	return uint64(*bab)
}

func (bab *BundleAgeBlock) MarshalCbor(w io.Writer) error {
	return cboring.WriteUInt(uint64(*bab), w)
}

func (bab *BundleAgeBlock) UnmarshalCbor(r io.Reader) error {
	us, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	*bab = BundleAgeBlock(us)
	return nil
}

func (bab *BundleAgeBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(fmt.Sprintf("%d ms", bab.Age()))
}

func (bab *BundleAgeBlock) CheckValid() error { return nil }

// CheckContextValid enforces at most one Bundle Age Block per bundle.
func (bab *BundleAgeBlock) CheckContextValid(b *Bundle) error {
	cb, err := b.ExtensionBlock(ExtBlockTypeBundleAgeBlock)
	if err != nil {
		return err
	} else if cb.Value != bab {
		return fmt.Errorf("BundleAgeBlock's pointer differs, %p != %p", cb.Value, bab)
	}
	return nil
}
