// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/dtn7x/bpa/bpv7"
)

// Metadata is the per-bundle record a MetadataStorage keeps, one per stored
// bundle and keyed by its BundleID.
type Metadata struct {
	ID BundleID

	Status BundleStatus

	// StorageName is the opaque key under which the bundle's canonical
	// bytes were written to a BundleStorage. Empty until the bundle's
	// bytes have actually been stored.
	StorageName string

	// ContentHash identifies the exact bytes this metadata was stored
	// for, used by the dispatcher to deduplicate re-ingested bundles
	// that share a bundle-id (e.g. retransmitted fragments).
	ContentHash string

	ReceivedAt time.Time

	// Deadline is the dispatcher's current timer target for this bundle:
	// the ForwardAckPending ack deadline, the Waiting retry time, or the
	// Tombstone grace expiry, depending on Status.
	Deadline time.Time

	// Attempts counts forwarding attempts that ended in an error (not
	// NoNeighbour), for the forward retry's exponential backoff.
	Attempts int
}

// BundleID is re-exported for callers that only need the storage package,
// so they needn't also import bpv7 solely to name the key type.
type BundleID = bpv7.BundleID

// ContentHash computes the dedup hash a Metadata carries for a bundle's
// canonical CBOR encoding.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum)
}

// NewMetadata builds the initial Metadata for a freshly ingested bundle,
// in BundleStatus IngressPending.
func NewMetadata(id BundleID, data []byte, receivedAt time.Time) Metadata {
	return Metadata{
		ID:          id,
		Status:      IngressPending,
		ContentHash: ContentHash(data),
		ReceivedAt:  receivedAt,
	}
}
