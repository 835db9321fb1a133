// SPDX-License-Identifier: GPL-3.0-or-later

package cla

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7x/bpa/eid"
)

// queue is one FIFO producer to a Cla's Forward call. Submitting blocks
// until the previous submission on this queue has returned, giving
// cooperative backpressure per spec §4.J.
type queue struct {
	cla Cla
	mu  sync.Mutex
}

func newQueue(c Cla) *queue { return &queue{cla: c} }

func (q *queue) submit(nextHop eid.ID, bytes []byte) (ForwardResult, uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.cla.Forward(nextHop, bytes)
}

// entry is one registered Cla: its subnet patterns, egress policy, and the
// lazily-created queue set.
type entry struct {
	name string
	cla  Cla

	patternsMu sync.RWMutex
	patterns   []eid.Pattern

	policy EgressPolicy

	queuesMu sync.Mutex
	queues   map[QueueID]*queue
}

func (e *entry) matches(dest eid.ID) bool {
	e.patternsMu.RLock()
	defer e.patternsMu.RUnlock()

	for _, p := range e.patterns {
		if p.Match(dest) {
			return true
		}
	}
	return false
}

func (e *entry) queueFor(id QueueID) *queue {
	e.queuesMu.Lock()
	defer e.queuesMu.Unlock()

	q, ok := e.queues[id]
	if !ok {
		q = newQueue(e.cla)
		e.queues[id] = q
	}
	return q
}

// sink is the Sink handed back to a registered Cla.
type sink struct {
	registry *Registry
	entry    *entry
}

func (s *sink) Disconnect() { s.registry.Unregister(s.entry.name) }

func (s *sink) Dispatch(bytes []byte) {
	s.registry.ingress.Ingest(bytes, s.entry.name)
}

func (s *sink) AddSubnet(pattern eid.Pattern) {
	s.entry.patternsMu.Lock()
	defer s.entry.patternsMu.Unlock()
	s.entry.patterns = append(s.entry.patterns, pattern)
}

func (s *sink) RemoveSubnet(pattern eid.Pattern) {
	s.entry.patternsMu.Lock()
	defer s.entry.patternsMu.Unlock()

	kept := s.entry.patterns[:0]
	for _, p := range s.entry.patterns {
		if p.String() != pattern.String() {
			kept = append(kept, p)
		}
	}
	s.entry.patterns = kept
}

// Registry is the CLA registry: the set of currently registered Cla
// adapters, their subnet patterns, and their egress queues.
type Registry struct {
	ingress Ingress

	mutex   sync.RWMutex
	entries map[string]*entry
}

// NewRegistry creates an empty Registry. Bundles a connected Cla dispatches
// inbound are handed to ingress.
func NewRegistry(ingress Ingress) *Registry {
	return &Registry{
		ingress: ingress,
		entries: make(map[string]*entry),
	}
}

// Register connects a new Cla under name, with the given initial subnet
// patterns and egress policy (NullPolicy{} if nil). Returns an error if
// name is already registered.
func (r *Registry) Register(name string, c Cla, ident eid.ID, patterns []eid.Pattern, policy EgressPolicy) (Sink, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.entries[name]; exists {
		return nil, fmt.Errorf("cla: %q is already registered", name)
	}
	if policy == nil {
		policy = NullPolicy{}
	}

	e := &entry{
		name:     name,
		cla:      c,
		patterns: append([]eid.Pattern(nil), patterns...),
		policy:   policy,
		queues:   make(map[QueueID]*queue),
	}
	r.entries[name] = e

	sk := &sink{registry: r, entry: e}
	c.OnConnect(ident, sk)

	log.WithFields(log.Fields{"cla": name}).Info("CLA registered")
	return sk, nil
}

// Unregister disconnects the named Cla.
func (r *Registry) Unregister(name string) {
	r.mutex.Lock()
	e, exists := r.entries[name]
	if exists {
		delete(r.entries, name)
	}
	r.mutex.Unlock()

	if !exists {
		return
	}

	log.WithFields(log.Fields{"cla": name}).Info("CLA unregistered")
	e.cla.OnDisconnect()
}

// ErrNoMatchingCla is returned by Forward when no registered Cla's subnet
// patterns match nextHop.
var ErrNoMatchingCla = fmt.Errorf("cla: no registered CLA matches this next hop")

// Forward selects a registered Cla whose subnet patterns match nextHop,
// classifies flowLabel into one of that Cla's egress queues via its
// EgressPolicy, and submits bytes to that queue's FIFO. Distinct queues, of
// one Cla or of different Clas, proceed concurrently; submissions to the
// same queue are strictly FIFO, whichever next hop they address.
func (r *Registry) Forward(nextHop eid.ID, bytes []byte, flowLabel uint64) (ForwardResult, uint64, error) {
	r.mutex.RLock()
	var matched *entry
	for _, e := range r.entries {
		if e.matches(nextHop) {
			matched = e
			break
		}
	}
	r.mutex.RUnlock()

	if matched == nil {
		return 0, 0, ErrNoMatchingCla
	}

	q := matched.queueFor(matched.policy.Classify(flowLabel))
	return q.submit(nextHop, bytes)
}

var _ Sink = (*sink)(nil)
