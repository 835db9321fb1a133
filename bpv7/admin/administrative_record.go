// SPDX-License-Identifier: GPL-3.0-or-later

// Package admin implements BPv7 administrative records (RFC 9171 §6): the
// status-report payload carried in a bundle whose Administrative Record
// Payload bundle processing control flag is set.
package admin

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/dtn7/cboring"

	"github.com/dtn7x/bpa/bpv7"
)

// Record type codes (RFC 9171 §6.1).
const (
	RecordTypeStatusReport uint64 = 1
)

// Record describes an administrative record, e.g. a status report.
type Record interface {
	cboring.CborMarshaler

	// RecordTypeCode returns this Record's type code.
	RecordTypeCode() uint64
}

// Manager keeps book on registered Record types, analogous to
// bpv7.ExtensionBlockManager, so new record types can be created based on
// their type code.
type Manager struct {
	data sync.Map // map[uint64]reflect.Type
}

// NewManager creates an empty Manager. Use GetManager for the singleton.
func NewManager() *Manager { return &Manager{} }

// Register a new Record type through an exemplary instance.
func (m *Manager) Register(r Record) error {
	code := r.RecordTypeCode()
	t := reflect.TypeOf(r).Elem()

	if other, loaded := m.data.LoadOrStore(code, t); loaded {
		return fmt.Errorf("record type code %d is already registered for %s", code, other.(reflect.Type).Name())
	}
	return nil
}

// IsKnown returns true if a Record is registered for typeCode.
func (m *Manager) IsKnown(typeCode uint64) bool {
	_, known := m.data.Load(typeCode)
	return known
}

// Write wraps r in the two-element CBOR array [record type code, record]
// and writes it.
func (m *Manager) Write(r Record, w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(r.RecordTypeCode(), w); err != nil {
		return err
	}
	if err := cboring.Marshal(r, w); err != nil {
		return fmt.Errorf("marshalling administrative record failed: %v", err)
	}
	return nil
}

// Read unwraps a Record from its two-element CBOR array representation.
func (m *Manager) Read(r io.Reader) (Record, error) {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return nil, err
	} else if n != 2 {
		return nil, fmt.Errorf("expected CBOR array of length 2, got %d", n)
	}

	typeCode, err := cboring.ReadUInt(r)
	if err != nil {
		return nil, err
	}

	t, ok := m.data.Load(typeCode)
	if !ok {
		return nil, fmt.Errorf("no administrative record registered for type code %d", typeCode)
	}

	record := reflect.New(t.(reflect.Type)).Interface().(Record)
	if err := cboring.Unmarshal(record, r); err != nil {
		return nil, fmt.Errorf("unmarshalling administrative record with type code %d failed: %v", typeCode, err)
	}
	return record, nil
}

var (
	manager      *Manager
	managerMutex sync.Mutex
)

// GetManager returns the singleton Manager, registering StatusReport on
// first use.
func GetManager() *Manager {
	managerMutex.Lock()
	defer managerMutex.Unlock()

	if manager == nil {
		manager = NewManager()
		_ = manager.Register(&StatusReport{})
	}
	return manager
}

// Parse decodes an administrative record from a bundle's payload bytes.
// The caller must have already confirmed the bundle's Administrative
// Record Payload control flag is set.
func Parse(data []byte) (Record, error) {
	return GetManager().Read(bytes.NewReader(data))
}

// ToCanonicalBlock wraps r as the sole (block number 1) canonical block of
// a bundle whose Administrative Record Payload control flag must be set.
func ToCanonicalBlock(r Record) (bpv7.CanonicalBlock, error) {
	var buf bytes.Buffer
	if err := GetManager().Write(r, &buf); err != nil {
		return bpv7.CanonicalBlock{}, err
	}
	return bpv7.NewCanonicalBlock(1, 0, bpv7.NewPayloadBlock(buf.Bytes())), nil
}
