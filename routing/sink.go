// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import (
	"github.com/dtn7x/bpa/bpv7"
	"github.com/dtn7x/bpa/eid"
	"github.com/dtn7x/bpa/service"
)

// dispatcherSink is the service.Sink a local endpoint uses to originate
// bundles, bound to one source EID.
type dispatcherSink struct {
	d      *Dispatcher
	source eid.ID
}

// Send builds a new bundle carrying payload from this sink's source toward
// destination, and hands it to the dispatcher as an outbound transmission.
func (s dispatcherSink) Send(payload []byte, destination eid.ID, lifetimeMillis uint64) (bpv7.BundleID, error) {
	return s.d.send(s.source, destination, payload, lifetimeMillis)
}

// NewSink implements service.SinkFactory, so the Dispatcher is the sole
// owner of the knowledge needed to originate bundles (spec §5's
// cyclic-ownership-avoidance guidance).
func (d *Dispatcher) NewSink(source eid.ID) service.Sink {
	return dispatcherSink{d: d, source: source}
}
