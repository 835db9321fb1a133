// SPDX-License-Identifier: GPL-3.0-or-later

// Package eid implements BPv7 Endpoint Identifiers: the dtn and ipn URI
// schemes, their text grammar and CBOR codec, and the canonicalizations
// RFC 9171 requires between them.
package eid

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/dtn7/cboring"
)

const (
	schemeDtn uint64 = 1
	schemeIpn uint64 = 2

	// localNodeAllocator is the ipn allocator-id value (2^32-1) reserved
	// for "this node" shorthand (ipn:!.service).
	localNodeAllocator uint64 = 0xffffffff
)

// Kind distinguishes the EID sum-type variants from spec §3.
type Kind int

const (
	KindNull Kind = iota
	KindLocalNode
	KindIpn
	KindDtn
)

// ID is a BPv7 Endpoint Identifier. Exactly one of the Kind-specific field
// groups is meaningful, selected by Kind.
type ID struct {
	Kind Kind

	// KindLocalNode
	ServiceNumber uint32

	// KindIpn
	AllocatorID   uint32
	NodeNumber    uint32
	IpnService uint32

	// KindDtn
	NodeName    string
	ServiceName string
}

// Null is the null endpoint dtn:none, equivalently ipn:0.0.
func Null() ID { return ID{Kind: KindNull} }

// IsNull reports whether this is the null endpoint.
func (e ID) IsNull() bool { return e.Kind == KindNull }

// CheckValid always returns nil: a zero-valued ID has Kind KindNull and is
// the same value Null() returns, so there is nothing to reject, and
// constructed and parsed IDs are always valid. It exists so eid.ID
// satisfies bpv7.Valid alongside every other block field.
func (e ID) CheckValid() error { return nil }

// LocalNode builds the ipn:!.service shorthand for "this node".
func LocalNode(service uint32) ID {
	return ID{Kind: KindLocalNode, ServiceNumber: service}
}

// Resolve rewrites a KindLocalNode EID into a concrete ipn EID under the
// given allocator/node, preserving its service number. EIDs of every
// other Kind are returned unchanged.
func (e ID) Resolve(allocator, node uint32) ID {
	if e.Kind != KindLocalNode {
		return e
	}
	return ID{Kind: KindIpn, AllocatorID: allocator, NodeNumber: node, IpnService: e.ServiceNumber}
}

// NewIpn builds a 3-element ipn EID, canonicalizing allocator 0 the same
// as a bare 2-element form and the reserved allocator to LocalNode.
func NewIpn(allocator, node, service uint32) ID {
	if allocator == uint32(localNodeAllocator) {
		return LocalNode(service)
	}
	return ID{Kind: KindIpn, AllocatorID: allocator, NodeNumber: node, IpnService: service}
}

// NewDtn builds a dtn EID from a non-empty node name and zero or more
// "/"-joined demux segments (without leading slash).
func NewDtn(nodeName, serviceName string) (ID, error) {
	if nodeName == "" {
		return ID{}, fmt.Errorf("eid: dtn node name must not be empty")
	}
	if err := checkDtnNodeName(nodeName); err != nil {
		return ID{}, err
	}
	return ID{Kind: KindDtn, NodeName: nodeName, ServiceName: serviceName}, nil
}

var dtnNodeNameDisallowed = regexp.MustCompile(`[\x00-\x1f\x7f/?#\[\]@ ]`)

func checkDtnNodeName(name string) error {
	if dtnNodeNameDisallowed.MatchString(name) {
		return fmt.Errorf("eid: dtn node name %q contains disallowed characters", name)
	}
	return nil
}

// IsSingleton reports whether this endpoint denotes exactly one node, per
// RFC 9171 §4.2.5.1 (all ipn endpoints and dtn:none are singletons).
func (e ID) IsSingleton() bool {
	switch e.Kind {
	case KindNull, KindLocalNode, KindIpn:
		return true
	default:
		return true
	}
}

// SameNode reports whether two EIDs address the same node, ignoring
// service/demux.
func (e ID) SameNode(o ID) bool {
	switch e.Kind {
	case KindNull:
		return o.Kind == KindNull
	case KindLocalNode:
		return o.Kind == KindLocalNode
	case KindIpn:
		return o.Kind == KindIpn && e.AllocatorID == o.AllocatorID && e.NodeNumber == o.NodeNumber
	case KindDtn:
		return o.Kind == KindDtn && e.NodeName == o.NodeName
	default:
		return false
	}
}

func (e ID) String() string {
	switch e.Kind {
	case KindNull:
		return "dtn:none"
	case KindLocalNode:
		return fmt.Sprintf("ipn:!.%d", e.ServiceNumber)
	case KindIpn:
		if e.AllocatorID == 0 {
			return fmt.Sprintf("ipn:%d.%d", e.NodeNumber, e.IpnService)
		}
		return fmt.Sprintf("ipn:%d.%d.%d", e.AllocatorID, e.NodeNumber, e.IpnService)
	case KindDtn:
		if e.ServiceName == "" {
			return fmt.Sprintf("dtn://%s/", e.NodeName)
		}
		return fmt.Sprintf("dtn://%s/%s", e.NodeName, e.ServiceName)
	default:
		return "eid:invalid"
	}
}

var (
	ipnRe = regexp.MustCompile(`^ipn:(?:(!)|(\d+))\.(\d+)(?:\.(\d+))?$`)
	dtnRe = regexp.MustCompile(`^dtn://([^/]+)/?(.*)$`)
)

// Parse parses the dtn: and ipn: text grammar from spec §6.
func Parse(s string) (ID, error) {
	switch {
	case s == "dtn:none":
		return Null(), nil
	case strings.HasPrefix(s, "dtn://"):
		m := dtnRe.FindStringSubmatch(s)
		if m == nil {
			return ID{}, fmt.Errorf("eid: malformed dtn URI %q", s)
		}
		node, err := percentDecode(m[1])
		if err != nil {
			return ID{}, err
		}
		svc, err := percentDecode(m[2])
		if err != nil {
			return ID{}, err
		}
		return NewDtn(node, svc)
	case strings.HasPrefix(s, "ipn:"):
		m := ipnRe.FindStringSubmatch(s)
		if m == nil {
			return ID{}, fmt.Errorf("eid: malformed ipn URI %q", s)
		}
		// local-node shorthand ipn:!.<service>
		if m[1] == "!" {
			svc, err := strconv.ParseUint(m[3], 10, 32)
			if err != nil {
				return ID{}, err
			}
			return LocalNode(uint32(svc)), nil
		}
		first, err := strconv.ParseUint(m[2], 10, 64)
		if err != nil {
			return ID{}, err
		}
		second, err := strconv.ParseUint(m[3], 10, 64)
		if err != nil {
			return ID{}, err
		}
		if m[4] == "" {
			// 2-element form ipn:<node>.<service>
			if first > 0xffffffff || second > 0xffffffff {
				return ID{}, fmt.Errorf("eid: ipn numbers overflow u32")
			}
			if first == 0 && second == 0 {
				return Null(), nil
			}
			if uint32(first) == uint32(localNodeAllocator) {
				return LocalNode(uint32(second)), nil
			}
			return NewIpn(0, uint32(first), uint32(second)), nil
		}
		// 3-element form ipn:<allocator>.<node>.<service>
		third, err := strconv.ParseUint(m[4], 10, 64)
		if err != nil {
			return ID{}, err
		}
		if first > 0xffffffff || second > 0xffffffff || third > 0xffffffff {
			return ID{}, fmt.Errorf("eid: ipn numbers overflow u32")
		}
		if first == 0 && second == 0 && third == 0 {
			return Null(), nil
		}
		if first == 0 {
			return NewIpn(0, uint32(second), uint32(third)), nil
		}
		return NewIpn(uint32(first), uint32(second), uint32(third)), nil
	default:
		return ID{}, fmt.Errorf("eid: unknown URI scheme in %q", s)
	}
}

// MustParse parses like Parse, panicking on error. Intended for tests and
// static route tables built at startup.
func MustParse(s string) ID {
	e, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return e
}

func percentDecode(s string) (string, error) {
	if !strings.ContainsRune(s, '%') {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' {
			if i+2 >= len(s) {
				return "", fmt.Errorf("eid: truncated percent-encoding in %q", s)
			}
			v, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err != nil {
				return "", fmt.Errorf("eid: bad percent-encoding in %q: %w", s, err)
			}
			b.WriteByte(byte(v))
			i += 2
		} else {
			b.WriteByte(s[i])
		}
	}
	return b.String(), nil
}

// MarshalCbor writes the CBOR representation of this EID: an array of
// [scheme-number, scheme-specific-part], matching RFC 9171 §4.2.5.1.
func (e *ID) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}

	switch e.Kind {
	case KindNull:
		if err := cboring.WriteUInt(schemeIpn, w); err != nil {
			return err
		}
		return writeIpnSsp(0, 0, w)

	case KindLocalNode:
		if err := cboring.WriteUInt(schemeIpn, w); err != nil {
			return err
		}
		return writeIpnSsp(uint64(localNodeAllocator), uint64(e.ServiceNumber), w)

	case KindIpn:
		if err := cboring.WriteUInt(schemeIpn, w); err != nil {
			return err
		}
		return writeIpn3Ssp(uint64(e.AllocatorID), uint64(e.NodeNumber), uint64(e.IpnService), w)

	case KindDtn:
		if err := cboring.WriteUInt(schemeDtn, w); err != nil {
			return err
		}
		return cboring.WriteTextString(e.dtnSsp(), w)

	default:
		return fmt.Errorf("eid: cannot marshal invalid EID")
	}
}

func (e ID) dtnSsp() string {
	if e.ServiceName == "" {
		return "//" + e.NodeName + "/"
	}
	return "//" + e.NodeName + "/" + e.ServiceName
}

// writeIpnSsp writes the 2-element ipn SSP array [allocator-or-node, service]
// in the shorthand form used for allocator 0 and the local-node allocator.
func writeIpnSsp(node, service uint64, w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(node, w); err != nil {
		return err
	}
	return cboring.WriteUInt(service, w)
}

func writeIpn3Ssp(allocator, node, service uint64, w io.Writer) error {
	if allocator == 0 {
		return writeIpnSsp(node, service, w)
	}
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}
	for _, n := range []uint64{allocator, node, service} {
		if err := cboring.WriteUInt(n, w); err != nil {
			return err
		}
	}
	return nil
}

// UnmarshalCbor reads a CBOR-encoded EID and applies the canonicalizations
// from spec §4.B (ipn:0.0 -> dtn:none, ipn:0.x.y -> ipn:x.y,
// ipn:4294967295.s -> ipn:!.s).
func (e *ID) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 2 {
		return fmt.Errorf("eid: expected array of 2 elements, got %d", n)
	}

	scheme, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}

	switch scheme {
	case schemeDtn:
		ssp, err := readDtnSsp(r)
		if err != nil {
			return err
		}
		if ssp == "none" {
			*e = Null()
			return nil
		}
		node, svc, perr := parseDtnSsp(ssp)
		if perr != nil {
			return perr
		}
		parsed, derr := NewDtn(node, svc)
		if derr != nil {
			return derr
		}
		*e = parsed
		return nil

	case schemeIpn:
		nums, err := readUIntArray(r)
		if err != nil {
			return err
		}
		switch len(nums) {
		case 2:
			if nums[0] > 0xffffffff || nums[1] > 0xffffffff {
				return fmt.Errorf("eid: ipn numbers overflow u32")
			}
			if nums[0] == 0 && nums[1] == 0 {
				*e = Null()
				return nil
			}
			if nums[0] == localNodeAllocator {
				*e = LocalNode(uint32(nums[1]))
				return nil
			}
			*e = NewIpn(0, uint32(nums[0]), uint32(nums[1]))
			return nil
		case 3:
			if nums[0] > 0xffffffff || nums[1] > 0xffffffff || nums[2] > 0xffffffff {
				return fmt.Errorf("eid: ipn numbers overflow u32")
			}
			if nums[0] == 0 && nums[1] == 0 && nums[2] == 0 {
				*e = Null()
				return nil
			}
			*e = NewIpn(uint32(nums[0]), uint32(nums[1]), uint32(nums[2]))
			return nil
		default:
			return fmt.Errorf("eid: ipn SSP array must have 2 or 3 elements, got %d", len(nums))
		}

	default:
		return fmt.Errorf("eid: unknown URI scheme number %d", scheme)
	}
}

func readDtnSsp(r io.Reader) (string, error) {
	major, n, err := cboring.ReadMajors(r)
	if err != nil {
		return "", err
	}
	switch major {
	case cboring.UInt:
		if n != 0 {
			return "", fmt.Errorf("eid: dtn SSP uint must be 0 (dtn:none), got %d", n)
		}
		return "none", nil
	case cboring.TextString:
		raw, err := cboring.ReadRawBytes(n, r)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	default:
		return "", fmt.Errorf("eid: unexpected major type %d for dtn SSP", major)
	}
}

func parseDtnSsp(ssp string) (node, service string, err error) {
	s := strings.TrimPrefix(ssp, "//")
	parts := strings.SplitN(s, "/", 2)
	node = parts[0]
	if len(parts) == 2 {
		service = parts[1]
	}
	return
}

func readUIntArray(r io.Reader) ([]uint64, error) {
	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, 0, n)
	for i := uint64(0); i < n; i++ {
		v, err := cboring.ReadUInt(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
