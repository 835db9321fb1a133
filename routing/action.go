// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"fmt"
	"time"

	"github.com/dtn7x/bpa/bpv7/admin"
	"github.com/dtn7x/bpa/eid"
)

// ActionKind classifies the decision the FIB returns for a destination EID
// (spec §4.I).
type ActionKind int

const (
	// ActionDrop means the bundle cannot and will not be routed.
	ActionDrop ActionKind = iota
	// ActionVia means the bundle should be forwarded toward NextHop, which
	// the dispatcher MUST re-resolve until it terminates in a concrete CLA
	// match or a cycle is detected.
	ActionVia
	// ActionStore means no route is currently available; hold the bundle
	// as Waiting until Until.
	ActionStore
)

func (k ActionKind) String() string {
	switch k {
	case ActionDrop:
		return "Drop"
	case ActionVia:
		return "Via"
	case ActionStore:
		return "Store"
	default:
		return "unknown"
	}
}

// Action is the FIB's routing decision for one destination EID, grounded on
// bpa/src/fib.rs's Action enum (Drop(Option<reason>) / Via(eid) / Store(until)).
type Action struct {
	Kind ActionKind

	// NextHop is set when Kind == ActionVia.
	NextHop eid.ID

	// Reason is set (non-nil) when Kind == ActionDrop and a status report
	// should be emitted for the drop.
	Reason *admin.StatusReportReason

	// Until is set when Kind == ActionStore: the time at which the next
	// contact window for a matching route opens.
	Until time.Time
}

// Drop builds an ActionDrop. reason may be nil to drop silently.
func Drop(reason *admin.StatusReportReason) Action {
	return Action{Kind: ActionDrop, Reason: reason}
}

// Via builds an ActionVia toward nextHop.
func Via(nextHop eid.ID) Action {
	return Action{Kind: ActionVia, NextHop: nextHop}
}

// Store builds an ActionStore, holding until the given time.
func Store(until time.Time) Action {
	return Action{Kind: ActionStore, Until: until}
}

func (a Action) String() string {
	switch a.Kind {
	case ActionDrop:
		if a.Reason != nil {
			return fmt.Sprintf("drop(%s)", a.Reason)
		}
		return "drop"
	case ActionVia:
		return fmt.Sprintf("via %s", a.NextHop)
	case ActionStore:
		return fmt.Sprintf("store until %s", a.Until)
	default:
		return "unknown action"
	}
}

// reasonPtr is a small helper so callers can write reasonPtr(admin.NoRouteToDestination)
// instead of declaring a local variable to take its address.
func reasonPtr(r admin.StatusReportReason) *admin.StatusReportReason { return &r }
