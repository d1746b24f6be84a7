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

// Package resolver wraps an external module resolver with a process-wide
// lookup cache that is wiped wholesale on a fixed interval, per the
// "resolver facade" design: the resolver itself is treated as a pure
// function of (specifier, parent, env) and is never owned by this package.
package resolver

import (
	"strings"
	"sync"
	"time"

	"bennypowers.dev/dewcache/internal/platform"
)

// Format is the resolved module format, mirroring the source formats a
// transform worker understands plus the two escape hatches (builtin,
// unknown) the coordinator must special-case.
type Format string

const (
	FormatModule  Format = "module"
	FormatLegacy  Format = "legacy"
	FormatJSON    Format = "json"
	FormatBuiltin Format = "builtin"
	FormatUnknown Format = "unknown"
)

// Env carries the per-resolve environment the external resolver consults.
type Env struct {
	Production bool
	Browser    bool
}

// Resolver is the external collaborator: a resolver implementation that maps
// specifiers to resolved paths and formats. Implementations may keep their
// own internal state but must be safe for concurrent use; the Facade adds no
// synchronization around calls into Resolver.
type Resolver interface {
	// Resolve maps specifier, relative to parentPath, to an absolute path.
	Resolve(specifier, parentPath string, legacy bool, env Env) (resolved string, err error)
	// Format reports the module format at path.
	Format(path string, legacy bool) (Format, error)
	// PackagePath returns the root directory of the package containing
	// path, or ok=false if it cannot be determined.
	PackagePath(path string) (pkgPath string, ok bool)
}

type resolveKey struct {
	specifier  string
	parentPath string
	legacy     bool
}

type formatKey struct {
	path   string
	legacy bool
}

// Facade wraps a Resolver with a shared lookup cache that is cleared
// wholesale on a timer, as described by the resolver facade design: cheaper
// than fine-grained invalidation, and the reason the resolve-map hash is part
// of a record's hash. NextExpiry reports when the next clear is due, which
// callers use to decide when a freshness probe is needed.
type Facade struct {
	inner  Resolver
	clock  platform.TimeProvider
	period time.Duration

	mu           sync.Mutex
	resolveCache map[resolveKey]string
	formatCache  map[formatKey]Format
	nextExpiry   time.Time

	stop chan struct{}
	once sync.Once
}

// NewFacade constructs a Facade. The caller must call Dispose when done to
// stop the background clear timer.
func NewFacade(inner Resolver, clearInterval time.Duration, clock platform.TimeProvider) *Facade {
	if clock == nil {
		clock = platform.NewRealTimeProvider()
	}
	f := &Facade{
		inner:        inner,
		clock:        clock,
		period:       clearInterval,
		resolveCache: make(map[resolveKey]string),
		formatCache:  make(map[formatKey]Format),
		nextExpiry:   clock.Now().Add(clearInterval),
		stop:         make(chan struct{}),
	}
	go f.clearLoop()
	return f
}

func (f *Facade) clearLoop() {
	for {
		select {
		case <-f.clock.After(f.period):
			f.mu.Lock()
			f.resolveCache = make(map[resolveKey]string)
			f.formatCache = make(map[formatKey]Format)
			f.nextExpiry = f.clock.Now().Add(f.period)
			f.mu.Unlock()
		case <-f.stop:
			return
		}
	}
}

// Dispose stops the clear timer. Idempotent.
func (f *Facade) Dispose() {
	f.once.Do(func() { close(f.stop) })
}

// NextExpiry reports the wall time of the next scheduled wholesale clear.
func (f *Facade) NextExpiry() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nextExpiry
}

// Resolve resolves specifier relative to parentPath, stripping a trailing
// slash on the specifier first, and consults the shared lookup cache.
func (f *Facade) Resolve(specifier, parentPath string, legacy bool, env Env) (string, error) {
	specifier = strings.TrimSuffix(specifier, "/")
	key := resolveKey{specifier: specifier, parentPath: parentPath, legacy: legacy}

	f.mu.Lock()
	if resolved, ok := f.resolveCache[key]; ok {
		f.mu.Unlock()
		return resolved, nil
	}
	f.mu.Unlock()

	resolved, err := f.inner.Resolve(specifier, parentPath, legacy, env)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	f.resolveCache[key] = resolved
	f.mu.Unlock()
	return resolved, nil
}

// Format reports the module format of path, consulting the shared cache.
func (f *Facade) Format(path string, legacy bool) (Format, error) {
	key := formatKey{path: path, legacy: legacy}

	f.mu.Lock()
	if format, ok := f.formatCache[key]; ok {
		f.mu.Unlock()
		return format, nil
	}
	f.mu.Unlock()

	format, err := f.inner.Format(path, legacy)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	f.formatCache[key] = format
	f.mu.Unlock()
	return format, nil
}

// PackagePath is a thin pass-through; package roots are not cached since
// they are only consulted once per transform-phase global-cache probe.
func (f *Facade) PackagePath(path string) (string, bool) {
	return f.inner.PackagePath(path)
}
