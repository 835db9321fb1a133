// SPDX-License-Identifier: GPL-3.0-or-later

package routing

import "sync"

// idLocks hands out one *sync.Mutex per bundle-id string, serializing all
// state-machine transitions for a given bundle-id per spec §5 ("parallel
// tasks coordinate via a per-bundle-id mutex held across the persistence
// commit for status transitions"). Locks are created lazily and dropped
// once a bundle reaches its final, unlocked state.
type idLocks struct {
	mutex sync.Mutex
	locks map[string]*sync.Mutex
}

func newIDLocks() *idLocks {
	return &idLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *idLocks) lock(key string) *sync.Mutex {
	l.mutex.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mutex.Unlock()

	m.Lock()
	return m
}

// forget drops the bookkeeping entry for key. Safe to call right after
// unlocking; a concurrent lock() call racing this will simply recreate the
// entry, which only costs an extra allocation, never a correctness issue.
func (l *idLocks) forget(key string) {
	l.mutex.Lock()
	delete(l.locks, key)
	l.mutex.Unlock()
}

// withLock runs fn while holding the mutex for key, unlocking it afterward.
func (l *idLocks) withLock(key string, fn func() error) error {
	m := l.lock(key)
	defer m.Unlock()
	return fn()
}
