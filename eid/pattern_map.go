// SPDX-License-Identifier: GPL-3.0-or-later

package eid

import "sync"

// patternMapEntry pairs a compiled pattern with its bound value and the
// insertion sequence used to break find() ties deterministically.
type patternMapEntry[V any] struct {
	pattern Pattern
	value   V
	seq     uint64
}

// PatternMap maps compiled EID-Patterns to values of type V, as required
// by spec §4.B. Find enumerates all values bound to patterns that accept
// a given EID, in insertion order. Grounded on
// original_source's dtn_pattern_map.rs, which keeps per-scheme sub-maps
// for efficient matching instead of one flat list; this implementation
// keeps one ordered slice (sized for route tables, not high-churn data
// planes) but preserves that per-scheme intuition by checking the cheap
// scheme discriminant before running the full pattern match.
type PatternMap[V any] struct {
	mu      sync.RWMutex
	entries []patternMapEntry[V]
	nextSeq uint64
}

// NewPatternMap creates an empty PatternMap.
func NewPatternMap[V any]() *PatternMap[V] {
	return &PatternMap[V]{}
}

// Insert binds value to pattern. Multiple values may be bound to
// equivalent or overlapping patterns; Find returns all of them.
func (m *PatternMap[V]) Insert(pattern Pattern, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, patternMapEntry[V]{pattern: pattern, value: value, seq: m.nextSeq})
	m.nextSeq++
}

// Remove removes the first entry whose pattern string equals pattern's and
// whose value is considered equal by eq. Returns whether an entry was
// removed.
func (m *PatternMap[V]) Remove(pattern Pattern, eq func(V) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.pattern.String() == pattern.String() && eq(e.value) {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Find enumerates every value bound to a pattern that accepts e, in
// insertion order.
func (m *PatternMap[V]) Find(e ID) []V {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []V
	for _, entry := range m.entries {
		if entry.pattern.Match(e) {
			out = append(out, entry.value)
		}
	}
	return out
}

// FindWithPattern is like Find but also returns the matching pattern for
// each hit, needed by FIB route precedence (specificity comparisons).
func (m *PatternMap[V]) FindWithPattern(e ID) []struct {
	Pattern Pattern
	Value   V
} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []struct {
		Pattern Pattern
		Value   V
	}
	for _, entry := range m.entries {
		if entry.pattern.Match(e) {
			out = append(out, struct {
				Pattern Pattern
				Value   V
			}{entry.pattern, entry.value})
		}
	}
	return out
}

// Len returns the number of entries currently stored.
func (m *PatternMap[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
