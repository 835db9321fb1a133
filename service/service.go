// SPDX-License-Identifier: GPL-3.0-or-later

// Package service implements the local service registry (spec §4.K/§6):
// local application endpoints register against an EID pattern and receive
// completed inbound bundles plus administrative status notifications for
// bundles they previously sent. Grounded on pkg/agent/application_agent.go's
// ApplicationAgent contract and pkg/agent/mux_agent.go's fan-out-by-pattern
// dispatch, generalized from dtn7-go's channel-pair design to the spec's
// on_register/on_receive/on_status_notify capability contract.
package service

import (
	"fmt"
	"sync"

	"github.com/dtn7x/bpa/bpv7"
	"github.com/dtn7x/bpa/bpv7/admin"
	"github.com/dtn7x/bpa/eid"
)

// StatusKind is the lifecycle event an on_status_notify call reports.
type StatusKind int

const (
	StatusReceived StatusKind = iota
	StatusForwarded
	StatusDelivered
	StatusDeleted
)

func (k StatusKind) String() string {
	switch k {
	case StatusReceived:
		return "received"
	case StatusForwarded:
		return "forwarded"
	case StatusDelivered:
		return "delivered"
	case StatusDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Sink is returned by Registry.Register and is the only way a registered
// Service may originate bundles: from its registered source endpoint.
type Sink interface {
	// Send dispatches payload as a new bundle's sole payload block,
	// addressed to destination, and returns the bundle-id the
	// dispatcher assigned.
	Send(payload []byte, destination eid.ID, lifetimeMillis uint64) (bpv7.BundleID, error)
}

// SinkFactory constructs a Sink bound to a source endpoint. The dispatcher
// (routing package) implements this so the registry never has to know how
// bundles are actually built and forwarded.
type SinkFactory interface {
	NewSink(source eid.ID) Sink
}

// Service is the capability a local application endpoint implements.
type Service interface {
	// OnReceive delivers a completed inbound bundle addressed to this
	// Service's registered pattern.
	OnReceive(b bpv7.Bundle)

	// OnStatusNotify delivers an administrative report for a bundle this
	// Service previously sent through its Sink.
	OnStatusNotify(id bpv7.BundleID, kind StatusKind, reason admin.StatusReportReason, timestamp bpv7.DtnTime)
}

type registration struct {
	pattern eid.Pattern
	source  eid.ID
	service Service
}

// Registry is the local service registry: it holds every registered
// Service's pattern and fans out inbound bundles and status reports to
// every Service whose pattern matches.
type Registry struct {
	mutex   sync.RWMutex
	entries []registration
	sinks   SinkFactory
}

// NewRegistry creates an empty Registry backed by sinks for constructing
// each registrant's Sink.
func NewRegistry(sinks SinkFactory) *Registry {
	return &Registry{sinks: sinks}
}

// Register binds svc to pattern, originating from source when svc uses its
// returned Sink. Returns an error if pattern is already registered to
// another Service, since two local services answering the same address
// would make OnReceive fan-out ambiguous for exclusive endpoints.
func (r *Registry) Register(pattern eid.Pattern, source eid.ID, svc Service) (Sink, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, reg := range r.entries {
		if reg.pattern.String() == pattern.String() {
			return nil, fmt.Errorf("service: pattern %q is already registered", pattern.String())
		}
	}

	r.entries = append(r.entries, registration{pattern: pattern, source: source, service: svc})
	return r.sinks.NewSink(source), nil
}

// Unregister removes every registration for pattern.
func (r *Registry) Unregister(pattern eid.Pattern) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	kept := r.entries[:0]
	for _, reg := range r.entries {
		if reg.pattern.String() != pattern.String() {
			kept = append(kept, reg)
		}
	}
	r.entries = kept
}

// Matches reports whether any registered Service's pattern accepts
// destination, without delivering anything. The dispatcher calls this to
// decide local-delivery-versus-forward and to commit CollectionPending
// before the observable OnReceive side effect Deliver performs (spec §5).
func (r *Registry) Matches(destination eid.ID) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, reg := range r.entries {
		if reg.pattern.Match(destination) {
			return true
		}
	}
	return false
}

// Deliver hands b to OnReceive of every registered Service whose pattern
// matches the bundle's destination. Returns true if at least one Service
// accepted it.
func (r *Registry) Deliver(b bpv7.Bundle) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	delivered := false
	for _, reg := range r.entries {
		if reg.pattern.Match(b.PrimaryBlock.Destination) {
			reg.service.OnReceive(b)
			delivered = true
		}
	}
	return delivered
}

// NotifyStatus calls OnStatusNotify on every registered Service whose
// source endpoint matches the bundle's reported source, since status
// reports are routed back to whoever originated the bundle, not to its
// destination pattern.
func (r *Registry) NotifyStatus(source eid.ID, id bpv7.BundleID, kind StatusKind, reason admin.StatusReportReason, timestamp bpv7.DtnTime) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, reg := range r.entries {
		if reg.source == source {
			reg.service.OnStatusNotify(id, kind, reason, timestamp)
		}
	}
}
