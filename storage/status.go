// SPDX-License-Identifier: GPL-3.0-or-later

package storage

// BundleStatus is a stored bundle's position in the dispatcher's status
// machine.
type BundleStatus int

const (
	// IngressPending is assigned right after a bundle's metadata is first
	// persisted, before the dispatcher has looked at it.
	IngressPending BundleStatus = iota

	// DispatchPending means the bundle passed ingest and awaits routing.
	DispatchPending

	// ReassemblyPending means the bundle is a fragment awaiting its
	// siblings before reassembly can proceed.
	ReassemblyPending

	// CollectionPending means the bundle's destination is a local service
	// which has not yet received it.
	CollectionPending

	// ForwardPending means the FIB has selected a next hop and the bundle
	// awaits being handed to a CLA's egress queue.
	ForwardPending

	// ForwardAckPending means the bundle was handed to a CLA and awaits
	// confirmation or a retry timer.
	ForwardAckPending

	// Waiting means no next hop is currently available; the bundle
	// awaits a route-table change or a retry timer.
	Waiting

	// Tombstone is the terminal state: the bundle was delivered, expired,
	// or otherwise finished, and is retained only to suppress replays
	// until its retention timestamp elapses.
	Tombstone
)

func (s BundleStatus) String() string {
	switch s {
	case IngressPending:
		return "IngressPending"
	case DispatchPending:
		return "DispatchPending"
	case ReassemblyPending:
		return "ReassemblyPending"
	case CollectionPending:
		return "CollectionPending"
	case ForwardPending:
		return "ForwardPending"
	case ForwardAckPending:
		return "ForwardAckPending"
	case Waiting:
		return "Waiting"
	case Tombstone:
		return "Tombstone"
	default:
		return "unknown"
	}
}
