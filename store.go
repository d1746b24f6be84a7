/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package dewcache

import (
	"context"
	"sync"
)

// storeEntry is the shared handle over a Record|absent the record store
// hands out per key. It starts pending (created but not yet resolved) and
// resolves exactly once, to either a live *FileRecord, "absent" (this
// variant needs no transform), or an error (the allocation itself failed —
// not-found/no-transform/unsupported-format).
//
// Modelled as an arena entry referenced by key rather than by record
// pointer, per the design note on breaking the record/watcher reference
// cycle: the watch manager only ever knows a path string, never a
// *FileRecord.
type storeEntry struct {
	ready  chan struct{}
	once   sync.Once
	record *FileRecord
	absent bool
	err    error
}

func newStoreEntry() *storeEntry {
	return &storeEntry{ready: make(chan struct{})}
}

func (e *storeEntry) resolveRecord(r *FileRecord) {
	e.once.Do(func() {
		e.record = r
		close(e.ready)
	})
}

func (e *storeEntry) resolveAbsent() {
	e.once.Do(func() {
		e.absent = true
		close(e.ready)
	})
}

func (e *storeEntry) resolveError(err error) {
	e.once.Do(func() {
		e.err = err
		close(e.ready)
	})
}

func (e *storeEntry) wait(ctx context.Context) (*FileRecord, bool, error) {
	select {
	case <-e.ready:
		return e.record, e.absent, e.err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (e *storeEntry) isResolved() bool {
	select {
	case <-e.ready:
		return true
	default:
		return false
	}
}

// Store maps (path, variant) keys to storeEntry handles. Entries are never
// removed during normal operation — the one exception is an entry that
// resolved to an allocation error, which is evicted immediately
// so the next Get rebuilds the record from scratch rather than replaying
// the stale failure forever.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*storeEntry
}

func newStore() *Store {
	return &Store{entries: make(map[string]*storeEntry)}
}

// get returns the existing entry for key without creating one.
func (s *Store) get(key string) (*storeEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

// getOrCreate returns the existing entry for key, or creates and returns a
// fresh pending one. created reports which happened.
func (s *Store) getOrCreate(key string) (entry *storeEntry, created bool) {
	s.mu.RLock()
	if e, ok := s.entries[key]; ok {
		s.mu.RUnlock()
		return e, false
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		return e, false
	}
	e := newStoreEntry()
	s.entries[key] = e
	return e, true
}

// evictIfError removes key's entry from the map iff it resolved to an
// error, so later callers retry cleanly instead of observing a poisoned
// record forever.
func (s *Store) evictIfError(key string, e *storeEntry) {
	if e.err == nil {
		return
	}
	s.mu.Lock()
	if s.entries[key] == e {
		delete(s.entries, key)
	}
	s.mu.Unlock()
}
