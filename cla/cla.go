// SPDX-License-Identifier: GPL-3.0-or-later

// Package cla implements the Convergence Layer Adapter registry and
// per-CLA egress queues (spec §4.J/§6). Concrete CLA transports (TCPCLv4
// and friends) are out of scope; only the Cla/Sink contract and the
// in-process registration/queueing machinery are implemented here.
// Grounded on pkg/cla/manager.go's Manager/convergenceElem pattern and
// pkg/cla/convergence_status.go.
package cla

import (
	"fmt"

	"github.com/dtn7x/bpa/eid"
)

// ForwardResult is the outcome of a Cla.Forward call.
type ForwardResult int

const (
	// Sent means the CLA accepted the bytes for transmission.
	Sent ForwardResult = iota
	// NoNeighbour means the CLA has no current connection to next_hop.
	NoNeighbour
	// TooBig means the bytes exceed the CLA's current MTU; the caller
	// should fragment and retry.
	TooBig
)

func (r ForwardResult) String() string {
	switch r {
	case Sent:
		return "Sent"
	case NoNeighbour:
		return "NoNeighbour"
	case TooBig:
		return "TooBig"
	default:
		return "unknown"
	}
}

// Cla is the capability a convergence-layer adapter implements, per spec
// §6's CLA contract.
type Cla interface {
	// OnConnect is called once when the registry accepts this Cla,
	// handing back the Sink the Cla uses to report inbound bundles and
	// subnet changes.
	OnConnect(ident eid.ID, sink Sink)

	// OnDisconnect is called once when the registry unregisters this Cla.
	OnDisconnect()

	// Forward hands bytes to be transmitted toward nextHop. mtu is only
	// meaningful when the result is TooBig.
	Forward(nextHop eid.ID, bytes []byte) (result ForwardResult, mtu uint64, err error)
}

// Sink is the capability the registry hands back to a Cla on OnConnect, per
// spec §6's CLA contract.
type Sink interface {
	// Disconnect tells the registry this Cla is going away.
	Disconnect()

	// Dispatch hands a received bundle's bytes to the registry's
	// configured Ingress for admission into the dispatcher.
	Dispatch(bytes []byte)

	// AddSubnet registers an additional EID subnet pattern this Cla can
	// reach.
	AddSubnet(pattern eid.Pattern)

	// RemoveSubnet un-registers a previously added subnet pattern.
	RemoveSubnet(pattern eid.Pattern)
}

// QueueID names one of a Cla's egress queues. The zero value is the
// unnumbered default queue (spec §4.J: "the default null policy exposes
// one unnumbered queue"), mirroring an Option<u32> rather than using a
// pointer so QueueID stays a comparable map key.
type QueueID struct {
	numbered bool
	number   uint32
}

// DefaultQueue is the unnumbered default egress queue.
func DefaultQueue() QueueID { return QueueID{} }

// NumberedQueue names an explicit egress queue class, e.g. assigned by an
// EgressPolicy implementing HTB/TBF-style classes.
func NumberedQueue(n uint32) QueueID { return QueueID{numbered: true, number: n} }

func (q QueueID) String() string {
	if !q.numbered {
		return "default"
	}
	return fmt.Sprintf("queue-%d", q.number)
}

// EgressPolicy classifies an outgoing bundle's flow label into an egress
// queue. Grounded on spec §4.J: "the dispatcher selects a queue number via
// the configured EgressPolicy.classify(flow_label)".
type EgressPolicy interface {
	Classify(flowLabel uint64) QueueID
}

// NullPolicy is the default EgressPolicy: every flow lands on the single
// unnumbered queue.
type NullPolicy struct{}

func (NullPolicy) Classify(uint64) QueueID { return DefaultQueue() }

// Ingress is the capability the registry calls to admit a bundle a Cla
// received, keeping the cla package free of a routing import (the
// dispatcher implements Ingress once built).
type Ingress interface {
	Ingest(bytes []byte, receivedFrom string)
}
