// SPDX-License-Identifier: GPL-3.0-or-later

// Package storage defines the two storage contracts the dispatcher depends
// on (MetadataStorage, BundleStorage) plus a non-persistent reference
// implementation in the memstore subpackage. Concrete durable backends (a
// local-disk layout, an embedded SQL schema) are explicitly out of scope;
// only the contract and an in-memory stand-in live here.
package storage

import "errors"

// ErrNotFound is returned by MetadataStorage/BundleStorage lookups when the
// requested key is unknown to the backend.
var ErrNotFound = errors.New("storage: no such entry")

// MetadataStorage is the async key/value contract for per-bundle metadata,
// keyed by BundleID. Grounded on core.Store's Push/Query method set,
// generalized to the named operations this spec exposes.
type MetadataStorage interface {
	// Load returns the Metadata stored for id, or ErrNotFound.
	Load(id BundleID) (Metadata, error)

	// Store inserts or updates meta for its own ID.
	Store(meta Metadata) error

	// GetStatus returns the BundleStatus stored for id.
	GetStatus(id BundleID) (BundleStatus, error)

	// SetStatus updates only the BundleStatus of a stored Metadata.
	SetStatus(id BundleID, status BundleStatus) error

	// Remove deletes the Metadata for id. Removing an unknown id is not
	// an error.
	Remove(id BundleID) error

	// ConfirmExists reports whether Metadata is stored for id.
	ConfirmExists(id BundleID) bool

	// GetUnconfirmedBundles invokes visit for every stored BundleID whose
	// status has not yet reached Tombstone, in no particular order.
	// Iteration stops early if visit returns false.
	GetUnconfirmedBundles(visit func(BundleID) bool) error
}

// BundleStorage is the async key/value contract for canonical bundle bytes,
// keyed by an opaque storage name the backend assigns on Store.
type BundleStorage interface {
	// List invokes visit for every stored storage name, in no particular
	// order. Iteration stops early if visit returns false.
	List(visit func(storageName string) bool) error

	// Load returns the bytes stored under storageName, or ErrNotFound.
	Load(storageName string) ([]byte, error)

	// Store persists data and returns the storage name it was assigned.
	// Store MUST be idempotent at least at the content level: storing
	// the same bytes twice returns the same storage name without
	// duplicating the underlying data.
	Store(data []byte) (storageName string, err error)

	// Remove deletes the bytes stored under storageName. Removing an
	// unknown storage name is not an error.
	Remove(storageName string) error
}
