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
	"sync/atomic"
	"time"

	"bennypowers.dev/dewcache/pool"
)

// hashOutcome is what a completed hash phase hands back: the resolve map
// built for this generation and the worker bound while analyzing, if any
// (the transform phase reuses it instead of acquiring a second one).
type hashOutcome struct {
	resolveMap resolveMap
	worker     *pool.Worker
	err        error
}

// hashFuture is the single-shot broadcast future backing record.hashPending:
// its mere presence on the record means a hash phase is in flight, and
// every caller that finds one subscribes to it instead of starting another.
type hashFuture struct {
	done          chan struct{}
	once          sync.Once
	outcome       hashOutcome
	workerClaimed int32
}

func newHashFuture() *hashFuture { return &hashFuture{done: make(chan struct{})} }

func (f *hashFuture) complete(o hashOutcome) {
	f.once.Do(func() {
		f.outcome = o
		close(f.done)
	})
}

func (f *hashFuture) wait(ctx context.Context) (hashOutcome, error) {
	select {
	case <-f.done:
		return f.outcome, nil
	case <-ctx.Done():
		return hashOutcome{}, ctx.Err()
	}
}

// claimWorker hands the phase's bound worker to exactly one caller; every
// later claim returns nil. The outcome is broadcast to all subscribers, but
// the worker must be freed or passed to the transform phase exactly once.
// Only call after wait has returned.
func (f *hashFuture) claimWorker() *pool.Worker {
	if !atomic.CompareAndSwapInt32(&f.workerClaimed, 0, 1) {
		return nil
	}
	return f.outcome.worker
}

// transformOutcome is what a completed transform phase hands back.
type transformOutcome struct {
	source    []byte
	sourceMap []byte
	err       error
}

type transformFuture struct {
	done    chan struct{}
	once    sync.Once
	outcome transformOutcome
}

func newTransformFuture() *transformFuture { return &transformFuture{done: make(chan struct{})} }

func (f *transformFuture) complete(o transformOutcome) {
	f.once.Do(func() {
		f.outcome = o
		close(f.done)
	})
}

func (f *transformFuture) wait(ctx context.Context) (transformOutcome, error) {
	select {
	case <-f.done:
		return f.outcome, nil
	case <-ctx.Done():
		return transformOutcome{}, ctx.Err()
	}
}

// FileRecord is the per-(path, variant) cache entry: current source, deps,
// hashes, and pending phases. Exactly one exists per key in a Store; the
// watch manager refers to records by path, not by pointer (the coordinator
// maps a path to its store keys), so that watcher and record never hold a
// reference cycle on each other (see Store's arena-of-records layout).
type FileRecord struct {
	Path    string
	Variant Variant

	mu sync.Mutex

	haveSource     bool
	originalSource []byte

	haveSourceHash     bool
	originalSourceHash string

	haveDeps bool
	deps     []string

	fullHash string // empty means undefined; clearing it is always safe

	haveOutput bool
	source     []byte
	sourceMap  []byte

	haveMtime bool
	mtime     int64 // -1 sentinel: path missing

	haveGlobalCache bool
	isGlobalCache   bool

	checkTime time.Time

	hashPending      *hashFuture
	transformPending *transformFuture

	watched bool
}

func newFileRecord(path string, variant Variant) *FileRecord {
	return &FileRecord{Path: path, Variant: variant}
}

// clearFullHash forces the next freshness check to rehash. Always safe per
// invariant 3 of the data model.
func (r *FileRecord) clearFullHash() {
	r.fullHash = ""
}
