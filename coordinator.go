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
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"bennypowers.dev/dewcache/internal/cachelog"
	"bennypowers.dev/dewcache/internal/platform"
	"bennypowers.dev/dewcache/pool"
	"bennypowers.dev/dewcache/resolver"
	"bennypowers.dev/dewcache/watch"
)

// Coordinator is the public entry point: get(filePath, knownHash?) deciding
// which phases to (re)run, short-circuiting on a matching hash.
type Coordinator struct {
	config  Config
	fs      platform.FileSystem
	clock   platform.TimeProvider
	pool    *pool.WorkerPool
	watcher *watch.Manager
	res     *resolver.Facade
	builtin BuiltinResolver
	log     cachelog.Logger

	store *Store

	disposeOnce sync.Once
	disposed    chan struct{}
}

// NewCoordinator wires a Coordinator from its collaborators. newWatcher
// constructs the per-path filesystem watcher (platform.NewFSNotifyFileWatcher
// in production, a mock in tests).
func NewCoordinator(
	cfg Config,
	res *resolver.Facade,
	wp *pool.WorkerPool,
	fsys platform.FileSystem,
	clock platform.TimeProvider,
	newWatcher watch.NewWatcher,
	builtin BuiltinResolver,
	log cachelog.Logger,
) *Coordinator {
	if log == nil {
		log = cachelog.NopLogger{}
	}
	c := &Coordinator{
		config:   cfg,
		fs:       fsys,
		clock:    clock,
		pool:     wp,
		res:      res,
		builtin:  builtin,
		log:      log,
		store:    newStore(),
		disposed: make(chan struct{}),
	}
	c.watcher = watch.NewManager(fsys, newWatcher, cfg.MaxWatchCount, c.onWatchEvent)
	return c
}

// Dispose stops the clear timer, closes every watch, and releases the
// resolver facade. Idempotent. In-flight phases are not cancelled — they
// run to completion against a now-dead store, per the concurrency model.
func (c *Coordinator) Dispose() {
	c.disposeOnce.Do(func() {
		close(c.disposed)
		c.watcher.Dispose()
		c.res.Dispose()
	})
}

// Resolve is a thin pass-through to the resolver facade, stripping a
// trailing slash from name first.
func (c *Coordinator) Resolve(name, parentPath string, legacy bool) (string, error) {
	name = strings.TrimSuffix(name, "/")
	return c.res.Resolve(name, parentPath, legacy, resolver.Env{Production: c.config.Production, Browser: true})
}

// Get is the coordinator surface: returns the transformed source, source
// map, and content hash for filePath (a "?dew" suffix selects the legacy
// variant), or signals "not modified" when knownHash matches, or "absent"
// when this variant needs no transform.
func (c *Coordinator) Get(ctx context.Context, filePath string, knownHash string) (GetResponse, error) {
	path, variant := splitVariant(filePath)
	path = filepath.ToSlash(path)
	key := storeKey(path, variant)

	entry, created := c.store.getOrCreate(key)
	if created {
		rec, resp, err := c.allocate(ctx, entry, path, variant)
		if err != nil {
			c.store.evictIfError(key, entry)
			return GetResponse{}, err
		}
		if rec == nil {
			return resp, nil
		}
		return c.getOnRecord(ctx, rec, knownHash)
	}

	rec, absent, err := entry.wait(ctx)
	if err != nil {
		return GetResponse{}, err
	}
	if absent {
		return GetResponse{Outcome: OutcomeAbsent}, nil
	}
	return c.getOnRecord(ctx, rec, knownHash)
}

type sourceRead struct {
	data []byte
	err  error
}

// allocate runs the first-time path for a key with no record yet: decide
// format, resolve the variant/format combination to proceed/absent/error,
// allocate the record, register a watch, and read the initial source. On
// success it
// resolves entry to the live record (rec != nil) or to absent (rec == nil,
// resp.Outcome == OutcomeAbsent). On failure entry is resolved to the
// returned error, which the caller evicts from the store.
func (c *Coordinator) allocate(ctx context.Context, entry *storeEntry, path string, variant Variant) (*FileRecord, GetResponse, error) {
	sourceCh := make(chan sourceRead, 1)
	go func() {
		data, err := c.fs.ReadFile(path)
		sourceCh <- sourceRead{data: data, err: err}
	}()

	format, err := c.res.Format(path, variant == VariantLegacy)
	if err != nil {
		entry.resolveError(err)
		return nil, GetResponse{}, err
	}

	switch variant {
	case VariantLegacy:
		if format != FormatLegacy && format != FormatJSON {
			cerr := newNoTransform(path)
			entry.resolveError(cerr)
			return nil, GetResponse{}, cerr
		}
	default:
		switch format {
		case FormatModule:
			// proceed
		case FormatJSON, FormatLegacy:
			entry.resolveAbsent()
			return nil, GetResponse{Outcome: OutcomeAbsent}, nil
		default:
			cerr := newUnsupportedFormat(path)
			entry.resolveError(cerr)
			return nil, GetResponse{}, cerr
		}
	}

	rec := newFileRecord(path, variant)

	watched := c.watcher.Watch(path)
	rec.watched = watched
	if !watched {
		rec.checkTime = c.clock.Now()
		if mtime, merr := watch.Mtime(c.fs, path); merr == nil {
			rec.mtime = mtime
			rec.haveMtime = true
		}
	}

	var sr sourceRead
	select {
	case sr = <-sourceCh:
	case <-ctx.Done():
		if watched {
			c.watcher.Unwatch(path)
		}
		entry.resolveError(ctx.Err())
		return nil, GetResponse{}, ctx.Err()
	}
	if sr.err != nil {
		if watched {
			c.watcher.Unwatch(path)
		}
		var cerr error
		if errors.Is(sr.err, fs.ErrNotExist) {
			cerr = newNotFound(path, sr.err)
		} else {
			cerr = sr.err
		}
		entry.resolveError(cerr)
		return nil, GetResponse{}, cerr
	}

	rec.originalSource = sr.data
	rec.haveSource = true

	entry.resolveRecord(rec)
	return rec, GetResponse{}, nil
}

// getOnRecord dispatches on an existing record's pending-phase state: an
// in-flight transform, an in-flight hash, or neither (in which case
// freshness is checked before deciding what to run).
func (c *Coordinator) getOnRecord(ctx context.Context, rec *FileRecord, knownHash string) (GetResponse, error) {
	rec.mu.Lock()
	hp := rec.hashPending
	tp := rec.transformPending
	rec.mu.Unlock()

	switch {
	case hp == nil && tp != nil:
		return c.awaitInFlightTransform(ctx, rec, tp, knownHash)

	case hp == nil && tp == nil:
		return c.checkFreshnessThenRun(ctx, rec, knownHash)

	default:
		return c.awaitInFlightHash(ctx, rec, hp, knownHash)
	}
}

func (c *Coordinator) awaitInFlightTransform(ctx context.Context, rec *FileRecord, tp *transformFuture, knownHash string) (GetResponse, error) {
	if fh := currentHash(rec); knownHash != "" && fh == knownHash {
		return notModified(fh), nil
	}
	out, err := tp.wait(ctx)
	if err != nil {
		return GetResponse{}, err
	}
	return finishFromTransform(rec, out)
}

func (c *Coordinator) awaitInFlightHash(ctx context.Context, rec *FileRecord, hp *hashFuture, knownHash string) (GetResponse, error) {
	out, err := hp.wait(ctx)
	if err != nil {
		return GetResponse{}, err
	}
	if out.err != nil {
		return GetResponse{}, out.err
	}

	// The outcome is broadcast, but the bound worker belongs to exactly one
	// subscriber: whoever claims it frees it or hands it to the transform.
	worker := hp.claimWorker()

	fh := currentHash(rec)
	if knownHash != "" && fh == knownHash {
		if worker != nil {
			c.pool.Free(worker)
		}
		return notModified(fh), nil
	}

	rec.mu.Lock()
	existingTP := rec.transformPending
	rec.mu.Unlock()
	if existingTP != nil {
		if worker != nil {
			c.pool.Free(worker)
		}
		tOut, err := existingTP.wait(ctx)
		if err != nil {
			return GetResponse{}, err
		}
		return finishFromTransform(rec, tOut)
	}

	return c.runTransform(ctx, rec, out.resolveMap, worker)
}

// checkFreshnessThenRun implements the "done; check freshness" row: probe
// mtime if unwatched and due, re-read on change, then drive the hash phase
// (and transform if needed).
func (c *Coordinator) checkFreshnessThenRun(ctx context.Context, rec *FileRecord, knownHash string) (GetResponse, error) {
	rec.mu.Lock()
	checkTime := rec.checkTime
	watched := rec.watched
	path := rec.Path
	rec.mu.Unlock()

	if !watched && checkTime.Before(c.res.NextExpiry()) {
		mtime, err := watch.Mtime(c.fs, path)
		if err == nil {
			rec.mu.Lock()
			changed := !rec.haveMtime || rec.mtime != mtime
			rec.mtime = mtime
			rec.haveMtime = true
			rec.checkTime = c.clock.Now()
			rec.mu.Unlock()

			if changed {
				if rerr := c.rereadSource(rec); rerr != nil && errors.Is(rerr, fs.ErrNotExist) {
					return GetResponse{Outcome: OutcomeAbsent}, nil
				}
			}
		}
	}

	return c.runHashAndMaybeTransform(ctx, rec, knownHash)
}

// runHashAndMaybeTransform drives a hash phase (registering it as the
// record's hashPending), then either short-circuits on a matching hash or
// drives the transform phase. compareHash is the caller's knownHash for a
// direct Get, or the record's previous fullHash for a watch-triggered
// refresh — in both cases a match means "nothing to do".
func (c *Coordinator) runHashAndMaybeTransform(ctx context.Context, rec *FileRecord, compareHash string) (GetResponse, error) {
	rec.mu.Lock()
	if existing := rec.hashPending; existing != nil {
		rec.mu.Unlock()
		return c.awaitInFlightHash(ctx, rec, existing, compareHash)
	}
	hf := newHashFuture()
	rec.hashPending = hf
	rec.mu.Unlock()

	// The phase is shared by every coalesced caller and always runs to
	// completion; only the individual waits below honor a caller's ctx.
	phaseCtx := context.WithoutCancel(ctx)
	go func() {
		out := c.hashPhase(phaseCtx, rec)
		hf.complete(out)
		if out.err != nil {
			// A failed hash is not retained: clear it immediately so the
			// next request rebuilds rather than replaying the failure.
			rec.mu.Lock()
			if rec.hashPending == hf {
				rec.hashPending = nil
			}
			rec.mu.Unlock()
			return
		}
		c.scheduleHashPendingClear(rec, hf)
	}()

	out, err := hf.wait(ctx)
	if err != nil {
		return GetResponse{}, err
	}
	if out.err != nil {
		return GetResponse{}, out.err
	}

	worker := hf.claimWorker()

	fh := currentHash(rec)
	if compareHash != "" && fh == compareHash {
		if worker != nil {
			c.pool.Free(worker)
		}
		return notModified(fh), nil
	}

	return c.runTransform(ctx, rec, out.resolveMap, worker)
}

// runTransform drives the transform phase (registering it as the record's
// transformPending), reusing worker if supplied.
func (c *Coordinator) runTransform(ctx context.Context, rec *FileRecord, rMap resolveMap, worker *pool.Worker) (GetResponse, error) {
	rec.mu.Lock()
	if existing := rec.transformPending; existing != nil {
		rec.mu.Unlock()
		if worker != nil {
			c.pool.Free(worker)
		}
		out, err := existing.wait(ctx)
		if err != nil {
			return GetResponse{}, err
		}
		return finishFromTransform(rec, out)
	}
	tf := newTransformFuture()
	rec.transformPending = tf
	rec.mu.Unlock()

	phaseCtx := context.WithoutCancel(ctx)
	go func() {
		out := c.transformPhase(phaseCtx, rec, rMap, worker)
		tf.complete(out)

		// JSON transforms leave transformPending in place permanently,
		// since a JSON record has no dependency invalidation distinct
		// from a source change; everything else clears it, and a
		// failure also forces re-analysis on the next attempt.
		if isJSONPath(rec.Path) && out.err == nil {
			return
		}
		rec.mu.Lock()
		rec.transformPending = nil
		if out.err != nil {
			rec.haveSourceHash = false
		}
		rec.mu.Unlock()
	}()

	out, err := tf.wait(ctx)
	if err != nil {
		return GetResponse{}, err
	}
	return finishFromTransform(rec, out)
}

func (c *Coordinator) scheduleHashPendingClear(rec *FileRecord, hf *hashFuture) {
	go func() {
		select {
		case <-c.clock.After(c.config.CacheClearInterval):
		case <-c.disposed:
			return
		}
		rec.mu.Lock()
		if rec.hashPending == hf {
			rec.hashPending = nil
		}
		rec.mu.Unlock()
		// Every subscriber may have abandoned its handle without claiming
		// the bound worker; reclaim it so it isn't lost to the pool.
		if w := hf.claimWorker(); w != nil {
			c.pool.Free(w)
		}
	}()
}

func (c *Coordinator) rereadSource(rec *FileRecord) error {
	data, err := c.fs.ReadFile(rec.Path)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	rec.originalSource = data
	rec.haveSource = true
	rec.mu.Unlock()
	return nil
}

// onWatchEvent is the watch manager's notify callback. It looks up both
// variants sharing path, since the watch manager itself is
// variant-agnostic.
func (c *Coordinator) onWatchEvent(ev watch.Event) {
	for _, variant := range [...]Variant{VariantModule, VariantLegacy} {
		key := storeKey(ev.Path, variant)
		entry, ok := c.store.get(key)
		if !ok {
			continue
		}
		rec, absent, err := entry.wait(context.Background())
		if err != nil || absent || rec == nil {
			continue
		}

		switch ev.Kind {
		case watch.EventRenameOrDelete:
			rec.mu.Lock()
			rec.watched = false
			rec.checkTime = c.clock.Now()
			rec.mu.Unlock()
			c.clearRetainedJSONTransform(rec)
		case watch.EventChange:
			go c.handleSourceChange(rec)
		}
	}
}

// handleSourceChange handles a watch "change" event: re-read source,
// await any in-flight phases, then drive a fresh hash (and transform, if
// the hash actually changed).
func (c *Coordinator) handleSourceChange(rec *FileRecord) {
	ctx := context.Background()

	if err := c.rereadSource(rec); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.log.Debug("source for %s disappeared before re-read", rec.Path)
		} else {
			c.log.Error("re-reading %s: %v", rec.Path, err)
		}
		return
	}

	rec.mu.Lock()
	hp := rec.hashPending
	tp := rec.transformPending
	prevHash := rec.fullHash
	rec.mu.Unlock()

	if hp != nil {
		hp.wait(ctx)
		// Drop the completed hash so a fresh phase runs against the re-read
		// source instead of replaying the previous generation's outcome.
		rec.mu.Lock()
		if rec.hashPending == hp {
			rec.hashPending = nil
		}
		rec.mu.Unlock()
	}
	if tp != nil {
		tp.wait(ctx)
	}
	c.clearRetainedJSONTransform(rec)

	if _, err := c.runHashAndMaybeTransform(ctx, rec, prevHash); err != nil {
		c.log.Error("refreshing %s: %v", rec.Path, err)
	}
}

// clearRetainedJSONTransform drops a JSON record's retained transform
// future, which is otherwise kept as "permanently done". A change or
// rename event means the source may have changed, so the next request
// must re-wrap it. In-flight transforms are left alone.
func (c *Coordinator) clearRetainedJSONTransform(rec *FileRecord) {
	if !isJSONPath(rec.Path) {
		return
	}
	rec.mu.Lock()
	if tp := rec.transformPending; tp != nil {
		select {
		case <-tp.done:
			rec.transformPending = nil
		default:
		}
	}
	rec.mu.Unlock()
}

func currentHash(rec *FileRecord) string {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.fullHash
}

func notModified(hash string) GetResponse {
	return GetResponse{Outcome: OutcomeNotModified, Result: Result{Hash: hash}}
}

func finishFromTransform(rec *FileRecord, out transformOutcome) (GetResponse, error) {
	if out.err != nil {
		return GetResponse{}, out.err
	}
	rec.mu.Lock()
	fh := rec.fullHash
	gc := rec.isGlobalCache
	rec.mu.Unlock()
	return GetResponse{
		Outcome: OutcomeResult,
		Result: Result{
			Source:        out.source,
			SourceMap:     out.sourceMap,
			Hash:          fh,
			IsGlobalCache: gc,
		},
	}, nil
}
