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

package watch_test

import (
	"sync"
	"testing"
	"time"

	"bennypowers.dev/dewcache/internal/platform"
	"bennypowers.dev/dewcache/watch"
)

// watcherRegistry hands out a fresh MockFileWatcher per path and remembers
// it, so tests can trigger events against the exact instance a given
// watch.Manager.Watch call created.
type watcherRegistry struct {
	mu       sync.Mutex
	byPath   map[string]*platform.MockFileWatcher
	nextPath string
}

func newRegistry() *watcherRegistry {
	return &watcherRegistry{byPath: make(map[string]*platform.MockFileWatcher)}
}

// newWatcher implements watch.NewWatcher. Manager.Watch calls newWatcher()
// then immediately Add()s the path, so we capture the instance keyed by the
// next Add call.
func (r *watcherRegistry) newWatcher() (platform.FileWatcher, error) {
	mw := platform.NewMockFileWatcher()
	return &trackingWatcher{MockFileWatcher: mw, reg: r}, nil
}

type trackingWatcher struct {
	*platform.MockFileWatcher
	reg *watcherRegistry
}

func (w *trackingWatcher) Add(name string) error {
	w.reg.mu.Lock()
	w.reg.byPath[name] = w.MockFileWatcher
	w.reg.mu.Unlock()
	return w.MockFileWatcher.Add(name)
}

func (r *watcherRegistry) get(path string) *platform.MockFileWatcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byPath[path]
}

func TestManager_WatchesUpToCapThenFallsBack(t *testing.T) {
	reg := newRegistry()
	fs := platform.NewMapFS(map[string]string{"a.js": "1", "b.js": "2", "c.js": "3"})
	m := watch.NewManager(fs, reg.newWatcher, 2, func(watch.Event) {})
	defer m.Dispose()

	if !m.Watch("a.js") {
		t.Fatal("expected a.js to be watched")
	}
	if !m.Watch("b.js") {
		t.Fatal("expected b.js to be watched")
	}
	if m.Watch("c.js") {
		t.Fatal("expected c.js to fall back to polling once the cap is reached")
	}
	if got := m.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
}

func TestManager_UnwatchFreesASlot(t *testing.T) {
	reg := newRegistry()
	fs := platform.NewMapFS(map[string]string{"a.js": "1", "b.js": "2"})
	m := watch.NewManager(fs, reg.newWatcher, 1, func(watch.Event) {})
	defer m.Dispose()

	m.Watch("a.js")
	if m.Watch("b.js") {
		t.Fatal("expected b.js to be rejected while a.js holds the only slot")
	}
	m.Unwatch("a.js")
	if !m.Watch("b.js") {
		t.Fatal("expected b.js to succeed once a.js's slot is freed")
	}
}

func TestManager_ChangeEventNotifies(t *testing.T) {
	reg := newRegistry()
	fs := platform.NewMapFS(map[string]string{"a.js": "1"})

	events := make(chan watch.Event, 1)
	m := watch.NewManager(fs, reg.newWatcher, 10, func(e watch.Event) { events <- e })
	defer m.Dispose()

	if !m.Watch("a.js") {
		t.Fatal("expected a.js to be watched")
	}
	mw := reg.get("a.js")
	if mw == nil {
		t.Fatal("no mock watcher registered for a.js")
	}
	mw.TriggerEvent("a.js", platform.Write)

	select {
	case e := <-events:
		if e.Path != "a.js" || e.Kind != watch.EventChange {
			t.Errorf("event = %+v, want {a.js EventChange}", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no change event delivered")
	}
}

func TestManager_RenameEventUnwatchesAndFreesSlot(t *testing.T) {
	reg := newRegistry()
	fs := platform.NewMapFS(map[string]string{"a.js": "1", "b.js": "2"})

	events := make(chan watch.Event, 1)
	m := watch.NewManager(fs, reg.newWatcher, 1, func(e watch.Event) { events <- e })
	defer m.Dispose()

	m.Watch("a.js")
	mw := reg.get("a.js")
	mw.TriggerEvent("a.js", platform.Rename)

	select {
	case e := <-events:
		if e.Path != "a.js" || e.Kind != watch.EventRenameOrDelete {
			t.Errorf("event = %+v, want {a.js EventRenameOrDelete}", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no rename event delivered")
	}

	// The slot must be reclaimed immediately so the cap doesn't drift.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if m.Count() == 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if got := m.Count(); got != 0 {
		t.Fatalf("Count() = %d after rename, want 0 (slot reclaimed)", got)
	}
	if !m.Watch("b.js") {
		t.Fatal("expected b.js to succeed once a.js's slot is reclaimed")
	}
}

func TestMtime_MissingPathIsSentinel(t *testing.T) {
	fs := platform.NewMapFS(map[string]string{"a.js": "1"})
	mtime, err := watch.Mtime(fs, "missing.js")
	if err != nil {
		t.Fatalf("Mtime: %v", err)
	}
	if mtime != -1 {
		t.Errorf("Mtime = %d, want -1 for a missing path", mtime)
	}
}

func TestMtime_ExistingPathReturnsRealValue(t *testing.T) {
	fs := platform.NewMapFS(map[string]string{"a.js": "1"})
	mtime, err := watch.Mtime(fs, "a.js")
	if err != nil {
		t.Fatalf("Mtime: %v", err)
	}
	if mtime == -1 {
		t.Errorf("Mtime = -1 for an existing path, want the real modification time")
	}
}
