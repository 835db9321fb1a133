// SPDX-License-Identifier: GPL-3.0-or-later

// Package memstore is a non-persistent reference implementation of
// storage.MetadataStorage and storage.BundleStorage, used for tests and for
// wiring the dispatcher end-to-end without a concrete durable backend.
// Grounded on core.SimpleStore's mutex-guarded map, without the file-backed
// persistence SimpleStore layers on top.
package memstore

import (
	"crypto/sha1"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7x/bpa/storage"
)

// MetadataStore is an in-memory storage.MetadataStorage.
type MetadataStore struct {
	mutex sync.Mutex
	data  map[string]storage.Metadata
}

// NewMetadataStore creates an empty MetadataStore.
func NewMetadataStore() *MetadataStore {
	return &MetadataStore{data: make(map[string]storage.Metadata)}
}

func (s *MetadataStore) key(id storage.BundleID) string {
	return id.String()
}

func (s *MetadataStore) Load(id storage.BundleID) (storage.Metadata, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	meta, ok := s.data[s.key(id)]
	if !ok {
		return storage.Metadata{}, storage.ErrNotFound
	}
	return meta, nil
}

func (s *MetadataStore) Store(meta storage.Metadata) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	log.WithFields(log.Fields{
		"bundle": meta.ID.String(),
		"status": meta.Status,
	}).Debug("memstore: storing bundle metadata")

	s.data[s.key(meta.ID)] = meta
	return nil
}

func (s *MetadataStore) GetStatus(id storage.BundleID) (storage.BundleStatus, error) {
	meta, err := s.Load(id)
	if err != nil {
		return 0, err
	}
	return meta.Status, nil
}

func (s *MetadataStore) SetStatus(id storage.BundleID, status storage.BundleStatus) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	k := s.key(id)
	meta, ok := s.data[k]
	if !ok {
		return storage.ErrNotFound
	}

	log.WithFields(log.Fields{
		"bundle": id.String(),
		"from":   meta.Status,
		"to":     status,
	}).Info("memstore: bundle status transition")

	meta.Status = status
	s.data[k] = meta
	return nil
}

func (s *MetadataStore) Remove(id storage.BundleID) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.data, s.key(id))
	return nil
}

func (s *MetadataStore) ConfirmExists(id storage.BundleID) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, ok := s.data[s.key(id)]
	return ok
}

func (s *MetadataStore) GetUnconfirmedBundles(visit func(storage.BundleID) bool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, meta := range s.data {
		if meta.Status == storage.Tombstone {
			continue
		}
		if !visit(meta.ID) {
			break
		}
	}
	return nil
}

// BundleStore is an in-memory storage.BundleStorage, addressing bundles by
// the SHA-1 hex digest of their bytes so that Store is idempotent at the
// content level.
type BundleStore struct {
	mutex sync.Mutex
	data  map[string][]byte
}

// NewBundleStore creates an empty BundleStore.
func NewBundleStore() *BundleStore {
	return &BundleStore{data: make(map[string][]byte)}
}

func storageName(data []byte) string {
	return fmt.Sprintf("%x", sha1.Sum(data))
}

func (s *BundleStore) List(visit func(string) bool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for name := range s.data {
		if !visit(name) {
			break
		}
	}
	return nil
}

func (s *BundleStore) Load(storageName string) ([]byte, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	data, ok := s.data[storageName]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (s *BundleStore) Store(data []byte) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	name := storageName(data)
	if _, exists := s.data[name]; !exists {
		s.data[name] = data
	}
	return name, nil
}

func (s *BundleStore) Remove(storageName string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.data, storageName)
	return nil
}

var (
	_ storage.MetadataStorage = (*MetadataStore)(nil)
	_ storage.BundleStorage   = (*BundleStore)(nil)
)
