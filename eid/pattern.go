// SPDX-License-Identifier: GPL-3.0-or-later

package eid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// numRange is one element of an ipn number-range set "[a-b,c]".
type numRange struct {
	lo, hi uint64 // inclusive; lo==hi for a single value
}

func (r numRange) contains(v uint64) bool { return v >= r.lo && v <= r.hi }

// numMatcher matches either "*" (any), a literal number, or a range set.
type numMatcher struct {
	any    bool
	ranges []numRange
}

func (m numMatcher) match(v uint64) bool {
	if m.any {
		return true
	}
	for _, r := range m.ranges {
		if r.contains(v) {
			return true
		}
	}
	return false
}

func parseNumMatcher(s string) (numMatcher, error) {
	if s == "*" {
		return numMatcher{any: true}, nil
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		inner := s[1 : len(s)-1]
		var ranges []numRange
		for _, part := range strings.Split(inner, ",") {
			part = strings.TrimSpace(part)
			if dash := strings.IndexByte(part, '-'); dash >= 0 {
				lo, err := strconv.ParseUint(part[:dash], 10, 64)
				if err != nil {
					return numMatcher{}, fmt.Errorf("eid pattern: bad range start %q: %w", part, err)
				}
				hi, err := strconv.ParseUint(part[dash+1:], 10, 64)
				if err != nil {
					return numMatcher{}, fmt.Errorf("eid pattern: bad range end %q: %w", part, err)
				}
				ranges = append(ranges, numRange{lo, hi})
			} else {
				v, err := strconv.ParseUint(part, 10, 64)
				if err != nil {
					return numMatcher{}, fmt.Errorf("eid pattern: bad number %q: %w", part, err)
				}
				ranges = append(ranges, numRange{v, v})
			}
		}
		return numMatcher{ranges: ranges}, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return numMatcher{}, fmt.Errorf("eid pattern: bad number matcher %q: %w", s, err)
	}
	return numMatcher{ranges: []numRange{{v, v}}}, nil
}

// ipnPattern matches an ipn EID by allocator/node/service number sets.
type ipnPattern struct {
	allocator, node, service numMatcher
	raw                      string
}

func (p ipnPattern) match(e ID) bool {
	var allocator, node, service uint64
	switch e.Kind {
	case KindIpn:
		allocator, node, service = uint64(e.AllocatorID), uint64(e.NodeNumber), uint64(e.IpnService)
	case KindLocalNode:
		allocator, node, service = uint64(localNodeAllocator), 0, uint64(e.ServiceNumber)
		if !p.node.any {
			return false
		}
	case KindNull:
		allocator, node, service = 0, 0, 0
	default:
		return false
	}
	return p.allocator.match(allocator) && p.node.match(node) && p.service.match(service)
}

// specificity is used for FIB route precedence (spec §4.I): fewer wildcard
// components is more specific.
func (p ipnPattern) specificity() int {
	s := 0
	for _, m := range []numMatcher{p.allocator, p.node, p.service} {
		if !m.any {
			s++
		}
	}
	return s
}

// dtnPattern matches a dtn EID: a node-name matcher ("*" or literal) and a
// regex over the demux path.
type dtnPattern struct {
	anyNode  bool
	nodeName string
	demuxRe  *regexp.Regexp
	raw      string
}

func (p dtnPattern) match(e ID) bool {
	if e.Kind == KindNull {
		return false
	}
	if e.Kind != KindDtn {
		return false
	}
	if !p.anyNode && p.nodeName != e.NodeName {
		return false
	}
	return p.demuxRe.MatchString(e.ServiceName)
}

func (p dtnPattern) specificity() int {
	s := 0
	if !p.anyNode {
		s++
	}
	if p.demuxRe.String() != "^.*$" {
		s++
	}
	return s
}

// Pattern is a compiled EID-Pattern: a set-valued matcher over EIDs.
type Pattern struct {
	matchNull bool
	ipn       *ipnPattern
	dtn       *dtnPattern
	raw       string
}

// CompilePattern compiles the grammar from spec §3/§4.B:
//
//	dtn:none                      matches only the null endpoint
//	dtn://<node>/<regex>          node is "*" or a literal, regex matches demux
//	ipn:<a>.<n>.<s>                each component is "*", a literal, or "[a-b,c]"
func CompilePattern(s string) (Pattern, error) {
	switch {
	case s == "dtn:none":
		return Pattern{matchNull: true, raw: s}, nil

	case strings.HasPrefix(s, "dtn://"):
		rest := strings.TrimPrefix(s, "dtn://")
		slash := strings.IndexByte(rest, '/')
		var nodePart, demuxPart string
		if slash < 0 {
			nodePart, demuxPart = rest, ""
		} else {
			nodePart, demuxPart = rest[:slash], rest[slash+1:]
		}

		p := dtnPattern{raw: s}
		if nodePart == "*" {
			p.anyNode = true
		} else {
			p.nodeName = nodePart
		}

		pattern := "^" + demuxPart + "$"
		if demuxPart == "*" || demuxPart == "" {
			pattern = "^.*$"
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return Pattern{}, fmt.Errorf("eid pattern: bad demux regex %q: %w", demuxPart, err)
		}
		p.demuxRe = re
		return Pattern{dtn: &p, raw: s}, nil

	case strings.HasPrefix(s, "ipn:"):
		rest := strings.TrimPrefix(s, "ipn:")
		parts := strings.Split(rest, ".")
		if len(parts) != 2 && len(parts) != 3 {
			return Pattern{}, fmt.Errorf("eid pattern: ipn pattern must have 2 or 3 components: %q", s)
		}
		var allocator, node, service numMatcher
		var err error
		if len(parts) == 2 {
			allocator = numMatcher{ranges: []numRange{{0, 0}}}
			node, err = parseNumMatcher(parts[0])
			if err != nil {
				return Pattern{}, err
			}
			service, err = parseNumMatcher(parts[1])
			if err != nil {
				return Pattern{}, err
			}
		} else {
			allocator, err = parseNumMatcher(parts[0])
			if err != nil {
				return Pattern{}, err
			}
			node, err = parseNumMatcher(parts[1])
			if err != nil {
				return Pattern{}, err
			}
			service, err = parseNumMatcher(parts[2])
			if err != nil {
				return Pattern{}, err
			}
		}
		return Pattern{ipn: &ipnPattern{allocator: allocator, node: node, service: service, raw: s}, raw: s}, nil

	default:
		return Pattern{}, fmt.Errorf("eid pattern: unknown scheme in %q", s)
	}
}

// MustCompilePattern compiles like CompilePattern but panics on error.
func MustCompilePattern(s string) Pattern {
	p, err := CompilePattern(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Match reports whether e is accepted by this pattern. The result is a
// deterministic function of the pattern and the EID.
func (p Pattern) Match(e ID) bool {
	if p.matchNull {
		return e.IsNull()
	}
	if p.ipn != nil {
		return p.ipn.match(e)
	}
	if p.dtn != nil {
		return p.dtn.match(e)
	}
	return false
}

func (p Pattern) String() string { return p.raw }

// Specificity orders patterns for FIB route precedence: more specific
// (fewer wildcards) sorts first.
func (p Pattern) Specificity() int {
	switch {
	case p.matchNull:
		return 3
	case p.ipn != nil:
		return p.ipn.specificity()
	case p.dtn != nil:
		return p.dtn.specificity()
	default:
		return 0
	}
}
