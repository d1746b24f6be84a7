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

package resolver_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bennypowers.dev/dewcache/internal/platform"
	"bennypowers.dev/dewcache/resolver"
)

// countingResolver wraps a fixed resolve/format table and counts how many
// times each underlying method is actually invoked, so tests can assert the
// facade's cache is doing its job.
type countingResolver struct {
	mu           sync.Mutex
	resolveCalls int32
	formatCalls  int32
}

func (r *countingResolver) Resolve(specifier, parentPath string, legacy bool, env resolver.Env) (string, error) {
	atomic.AddInt32(&r.resolveCalls, 1)
	return "pub/" + specifier + ".js", nil
}

func (r *countingResolver) Format(path string, legacy bool) (resolver.Format, error) {
	atomic.AddInt32(&r.formatCalls, 1)
	return resolver.FormatModule, nil
}

func (r *countingResolver) PackagePath(path string) (string, bool) {
	return "pub", true
}

func TestFacade_CachesResolveAndFormat(t *testing.T) {
	inner := &countingResolver{}
	f := resolver.NewFacade(inner, time.Hour, platform.NewRealTimeProvider())
	defer f.Dispose()

	for i := 0; i < 5; i++ {
		resolved, err := f.Resolve("b", "pub/a.js", false, resolver.Env{})
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if resolved != "pub/b.js" {
			t.Fatalf("Resolve = %q, want pub/b.js", resolved)
		}
		if _, err := f.Format("pub/b.js", false); err != nil {
			t.Fatalf("Format: %v", err)
		}
	}

	if got := atomic.LoadInt32(&inner.resolveCalls); got != 1 {
		t.Errorf("resolveCalls = %d, want 1 (cached)", got)
	}
	if got := atomic.LoadInt32(&inner.formatCalls); got != 1 {
		t.Errorf("formatCalls = %d, want 1 (cached)", got)
	}
}

func TestFacade_TrailingSlashStripped(t *testing.T) {
	inner := &countingResolver{}
	f := resolver.NewFacade(inner, time.Hour, platform.NewRealTimeProvider())
	defer f.Dispose()

	withSlash, err := f.Resolve("b/", "pub/a.js", false, resolver.Env{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	withoutSlash, err := f.Resolve("b", "pub/a.js", false, resolver.Env{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if withSlash != withoutSlash {
		t.Errorf("trailing slash changed resolution: %q vs %q", withSlash, withoutSlash)
	}
	// Both calls should have hit the same cache entry.
	if got := atomic.LoadInt32(&inner.resolveCalls); got != 1 {
		t.Errorf("resolveCalls = %d, want 1", got)
	}
}

func TestFacade_DistinctKeysNotConflated(t *testing.T) {
	inner := &countingResolver{}
	f := resolver.NewFacade(inner, time.Hour, platform.NewRealTimeProvider())
	defer f.Dispose()

	if _, err := f.Resolve("b", "pub/a.js", false, resolver.Env{}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Resolve("b", "pub/a.js", true, resolver.Env{}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Resolve("b", "pub/other.js", false, resolver.Env{}); err != nil {
		t.Fatal(err)
	}

	if got := atomic.LoadInt32(&inner.resolveCalls); got != 3 {
		t.Errorf("resolveCalls = %d, want 3 (legacy flag and parent path are part of the key)", got)
	}
}

func TestFacade_WholesaleClearOnInterval(t *testing.T) {
	inner := &countingResolver{}
	f := resolver.NewFacade(inner, 15*time.Millisecond, platform.NewRealTimeProvider())
	defer f.Dispose()

	if _, err := f.Resolve("b", "pub/a.js", false, resolver.Env{}); err != nil {
		t.Fatal(err)
	}
	before := f.NextExpiry()

	time.Sleep(60 * time.Millisecond)

	if _, err := f.Resolve("b", "pub/a.js", false, resolver.Env{}); err != nil {
		t.Fatal(err)
	}

	if got := atomic.LoadInt32(&inner.resolveCalls); got < 2 {
		t.Errorf("resolveCalls = %d, want >= 2 after a wholesale clear", got)
	}
	if !f.NextExpiry().After(before) {
		t.Errorf("NextExpiry did not advance past %v", before)
	}
}
