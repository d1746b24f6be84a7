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

// Package watch maintains up to K live filesystem watches, falling back to
// mtime polling once the cap is reached. A rename or delete event closes
// and unregisters its watcher immediately, so the live-watch count never
// drifts upward.
package watch

import (
	"errors"
	"os"
	"sync"

	"bennypowers.dev/dewcache/internal/platform"
)

// Event describes a filesystem change delivered to a record.
type Event struct {
	Path string
	Kind EventKind
}

// EventKind distinguishes a content change from a rename/delete.
type EventKind int

const (
	EventChange EventKind = iota
	EventRenameOrDelete
)

// NewWatcher constructs the underlying per-path watcher. Exposed so callers
// can swap in platform.NewFSNotifyFileWatcher or a mock in tests.
type NewWatcher func() (platform.FileWatcher, error)

// Manager caps the number of live filesystem watches at MaxWatchCount,
// falling back to mtime polling for paths past the cap.
type Manager struct {
	fs         platform.FileSystem
	newWatcher NewWatcher
	maxWatches int
	notify     func(Event)

	mu       sync.Mutex
	watching map[string]platform.FileWatcher // path -> watcher
}

// NewManager constructs a Manager. notify is invoked (from an internal
// goroutine) whenever a watched path changes; it must not block.
func NewManager(fs platform.FileSystem, newWatcher NewWatcher, maxWatches int, notify func(Event)) *Manager {
	return &Manager{
		fs:         fs,
		newWatcher: newWatcher,
		maxWatches: maxWatches,
		notify:     notify,
		watching:   make(map[string]platform.FileWatcher),
	}
}

// Watch attempts to open a live watch on path. It returns true if a watch
// was established (record.watched should be set), or false if the cap was
// reached and the caller should fall back to mtime polling.
func (m *Manager) Watch(path string) bool {
	m.mu.Lock()
	if len(m.watching) >= m.maxWatches {
		m.mu.Unlock()
		return false
	}
	if _, already := m.watching[path]; already {
		m.mu.Unlock()
		return true
	}
	m.mu.Unlock()

	fw, err := m.newWatcher()
	if err != nil {
		return false
	}
	if err := fw.Add(path); err != nil {
		_ = fw.Close()
		return false
	}

	m.mu.Lock()
	if len(m.watching) >= m.maxWatches {
		m.mu.Unlock()
		_ = fw.Close()
		return false
	}
	m.watching[path] = fw
	m.mu.Unlock()

	go m.pump(path, fw)
	return true
}

// Unwatch closes and removes path's watcher, if any, freeing a slot under
// the cap. It is safe to call even if path was never watched.
func (m *Manager) Unwatch(path string) {
	m.mu.Lock()
	fw, ok := m.watching[path]
	if ok {
		delete(m.watching, path)
	}
	m.mu.Unlock()
	if ok {
		_ = fw.Close()
	}
}

// Count reports the number of currently live watches.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watching)
}

// Dispose closes every live watch. Idempotent only in the sense that a
// second call finds nothing left to close.
func (m *Manager) Dispose() {
	m.mu.Lock()
	watchers := m.watching
	m.watching = make(map[string]platform.FileWatcher)
	m.mu.Unlock()
	for _, fw := range watchers {
		_ = fw.Close()
	}
}

func (m *Manager) pump(path string, fw platform.FileWatcher) {
	for {
		select {
		case ev, ok := <-fw.Events():
			if !ok {
				return
			}
			if ev.Op&(platform.Rename|platform.Remove) != 0 {
				// Close and unregister immediately, not just flag the
				// record, so the cap bookkeeping never drifts.
				m.Unwatch(path)
				m.notify(Event{Path: path, Kind: EventRenameOrDelete})
				return
			}
			if ev.Op&platform.Write != 0 || ev.Op&platform.Create != 0 {
				m.notify(Event{Path: path, Kind: EventChange})
			}
		case _, ok := <-fw.Errors():
			if !ok {
				return
			}
		}
	}
}

// Mtime returns the path's modification time in unix milliseconds, or -1 if
// the path does not exist or is not accessible. Any other stat error is
// propagated, per the error-handling design ("other stat errors propagate").
func Mtime(fs platform.FileSystem, path string) (int64, error) {
	info, err := fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return -1, nil
		}
		return 0, err
	}
	return info.ModTime().UnixMilli(), nil
}
