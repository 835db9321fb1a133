// SPDX-License-Identifier: GPL-3.0-or-later

// Package routing implements the dispatcher (spec §4.H) and FIB (spec
// §4.I): the state-machine owner that ingests, dispatches, forwards and
// expires bundles, and the route table it consults to decide where a
// bundle headed to a non-local destination goes next. Grounded on
// pkg/routing/core.go (Core) and pkg/routing/processing.go (the
// receive/dispatching/forward pipeline), with the Action type itself
// grounded on bpa/src/fib.rs's Drop/Via/Store enum from original_source.
package routing

import (
	"sync"
	"time"

	"github.com/dtn7x/bpa/bpv7/admin"
	"github.com/dtn7x/bpa/eid"
)

// Route is one FIB entry: bundles whose destination matches Pattern may be
// forwarded toward NextHop while now falls inside [From, Until). A zero
// From/Until means unbounded on that side.
type Route struct {
	Pattern  eid.Pattern
	NextHop  eid.ID
	Priority int // lower wins
	From     time.Time
	Until    time.Time

	seq int // insertion order, for final tie-break
}

func (r Route) activeAt(now time.Time) bool {
	if !r.From.IsZero() && now.Before(r.From) {
		return false
	}
	if !r.Until.IsZero() && !now.Before(r.Until) {
		return false
	}
	return true
}

// FIB is the Forwarding Information Base: a set of Routes consulted to
// resolve a destination EID to a routing Action.
type FIB struct {
	mutex   sync.RWMutex
	routes  []Route
	nextSeq int

	refiner *LinkStateRefiner
	self    eid.ID
}

// NewFIB creates an empty FIB. self is this node's own EID, used only when
// an attached LinkStateRefiner is consulted (see SetRefiner).
func NewFIB(self eid.ID) *FIB {
	return &FIB{self: self}
}

// SetRefiner attaches an optional LinkStateRefiner. selectBest consults it
// only among routes that tie on specificity, priority and insertion order
// (compareRoutes returns 0). Every Route added by Insert gets its own
// insertion sequence number, so two such routes never tie and the refiner
// does not change which route Resolve picks.
func (f *FIB) SetRefiner(r *LinkStateRefiner) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.refiner = r
}

// Insert adds a Route. Equal-priority routes inserted earlier keep
// precedence over ones inserted later, all else being equal.
func (f *FIB) Insert(r Route) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	r.seq = f.nextSeq
	f.nextSeq++
	f.routes = append(f.routes, r)
}

// Remove deletes every Route whose Pattern and NextHop match both arguments
// exactly.
func (f *FIB) Remove(pattern eid.Pattern, nextHop eid.ID) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	kept := f.routes[:0]
	for _, r := range f.routes {
		if r.Pattern.String() == pattern.String() && r.NextHop == nextHop {
			continue
		}
		kept = append(kept, r)
	}
	f.routes = kept
}

// Resolve returns the routing Action for dest at time now, per spec §4.I's
// selection precedence: pattern specificity, then route priority (lower
// wins), then insertion order. Routes outside their contact window are
// ignored when picking an active route, but still considered when deciding
// whether to Store (wait for the nearest future window) versus Drop
// (nothing will ever match).
func (f *FIB) Resolve(dest eid.ID, now time.Time) Action {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	var matching []Route
	for _, r := range f.routes {
		if r.Pattern.Match(dest) {
			matching = append(matching, r)
		}
	}
	if len(matching) == 0 {
		return Drop(reasonPtr(admin.NoRouteToDestination))
	}

	var active []Route
	earliestFuture := time.Time{}
	for _, r := range matching {
		if r.activeAt(now) {
			active = append(active, r)
			continue
		}
		if !r.From.IsZero() && r.From.After(now) {
			if earliestFuture.IsZero() || r.From.Before(earliestFuture) {
				earliestFuture = r.From
			}
		}
	}

	if len(active) == 0 {
		if !earliestFuture.IsZero() {
			return Store(earliestFuture)
		}
		return Drop(reasonPtr(admin.NoRouteToDestination))
	}

	best := f.selectBest(active, dest)
	return Via(best.NextHop)
}

// selectBest applies the precedence rules to the set of currently-active
// matching routes.
func (f *FIB) selectBest(routes []Route, dest eid.ID) Route {
	best := routes[0]
	tied := []Route{best}

	for _, r := range routes[1:] {
		switch compareRoutes(r, best) {
		case -1:
			best = r
			tied = []Route{r}
		case 0:
			tied = append(tied, r)
		}
	}

	if len(tied) > 1 && f.refiner != nil {
		if nh, ok := f.refiner.NextHop(f.self, dest); ok {
			for _, r := range tied {
				if r.NextHop == nh {
					return r
				}
			}
		}
	}

	return best
}

// compareRoutes returns -1 if a strictly precedes b, +1 if b strictly
// precedes a, 0 if they tie on specificity, priority and insertion order.
func compareRoutes(a, b Route) int {
	as, bs := a.Pattern.Specificity(), b.Pattern.Specificity()
	if as != bs {
		if as > bs {
			return -1
		}
		return 1
	}
	if a.Priority != b.Priority {
		if a.Priority < b.Priority {
			return -1
		}
		return 1
	}
	if a.seq != b.seq {
		if a.seq < b.seq {
			return -1
		}
		return 1
	}
	return 0
}
