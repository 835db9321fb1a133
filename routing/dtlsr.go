// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"sync"

	"github.com/RyanCarrier/dijkstra"

	"github.com/dtn7x/bpa/eid"
)

// LinkStateRefiner recomputes shortest paths over a link-state graph of
// known contacts and reports which next hop lies on the shortest path to a
// destination. Grounded on core/routing_dtlsr.go's DTLSR.computeRoutingTable,
// generalized from "the one routing algorithm" into an optional refinement
// the FIB consults only on an exact tie of specificity, priority and
// insertion order (see FIB.SetRefiner), since concrete route-discovery
// protocols are out of scope (spec §1: "routes are supplied statically or
// injected").
type LinkStateRefiner struct {
	mutex sync.RWMutex

	index map[string]int
	nodes []eid.ID

	// edges[a][b] is the last-known link cost from a to b.
	edges map[string]map[string]int64

	// table[dest] is the computed next hop from self toward dest, valid
	// until the next RecordLink/RemoveLink call invalidates it.
	table map[string]eid.ID
	dirty bool
}

// NewLinkStateRefiner creates an empty refiner.
func NewLinkStateRefiner() *LinkStateRefiner {
	return &LinkStateRefiner{
		index: make(map[string]int),
		edges: make(map[string]map[string]int64),
		table: make(map[string]eid.ID),
	}
}

func (r *LinkStateRefiner) nodeIndex(id eid.ID) int {
	key := id.String()
	if i, ok := r.index[key]; ok {
		return i
	}
	i := len(r.nodes)
	r.index[key] = i
	r.nodes = append(r.nodes, id)
	return i
}

// RecordLink records (or updates) the directed link cost from a to b, e.g.
// derived from contact recency or a configured link metric.
func (r *LinkStateRefiner) RecordLink(a, b eid.ID, cost int64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.nodeIndex(a)
	r.nodeIndex(b)

	if r.edges[a.String()] == nil {
		r.edges[a.String()] = make(map[string]int64)
	}
	r.edges[a.String()][b.String()] = cost
	r.dirty = true
}

// RemoveLink deletes a previously recorded link.
func (r *LinkStateRefiner) RemoveLink(a, b eid.ID) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if m, ok := r.edges[a.String()]; ok {
		delete(m, b.String())
	}
	r.dirty = true
}

// NextHop returns the next hop from self toward dest along the shortest
// known path, recomputing the routing table first if any link changed
// since the last call.
func (r *LinkStateRefiner) NextHop(self, dest eid.ID) (eid.ID, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.dirty {
		r.recompute(self)
		r.dirty = false
	}

	nh, ok := r.table[dest.String()]
	return nh, ok
}

// recompute runs Dijkstra's algorithm rooted at self over the recorded
// link-state graph and caches each reachable node's first hop.
func (r *LinkStateRefiner) recompute(self eid.ID) {
	graph := dijkstra.NewGraph()
	for i := range r.nodes {
		graph.AddVertex(i)
	}
	for a, peers := range r.edges {
		ai, ok := r.index[a]
		if !ok {
			continue
		}
		for b, cost := range peers {
			bi, ok := r.index[b]
			if !ok {
				continue
			}
			_ = graph.AddArc(ai, bi, cost)
		}
	}

	table := make(map[string]eid.ID)
	selfIdx, ok := r.index[self.String()]
	if !ok {
		r.table = table
		return
	}

	for key, idx := range r.index {
		if idx == selfIdx {
			continue
		}
		best, err := graph.Shortest(selfIdx, idx)
		if err != nil || len(best.Path) < 2 {
			continue
		}
		table[key] = r.nodes[best.Path[1]]
	}
	r.table = table
}
