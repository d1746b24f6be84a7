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
	"os"

	"bennypowers.dev/dewcache/pool"
)

var jsonWrapPrefix = []byte("export var __dew__ = null; export var exports = ")

// transformPhase runs at most once at a time per record (the caller
// guarantees this via transformPending).
func (c *Coordinator) transformPhase(ctx context.Context, rec *FileRecord, rMap resolveMap, worker *pool.Worker) transformOutcome {
	rec.mu.Lock()
	path := rec.Path
	legacy := rec.Variant == VariantLegacy
	source := rec.originalSource
	deps := rec.deps
	rec.mu.Unlock()

	done := make(chan struct{})
	var globalCache bool
	go func() {
		defer close(done)
		pkgPath, ok := c.res.PackagePath(path)
		if !ok {
			return
		}
		globalCache = isSymlink(pkgPath)
	}()
	defer func() {
		<-done
		rec.mu.Lock()
		rec.isGlobalCache = globalCache
		rec.haveGlobalCache = true
		rec.mu.Unlock()
	}()

	if isJSONPath(path) {
		if worker != nil {
			c.pool.Free(worker)
		}
		wrapped := make([]byte, 0, len(jsonWrapPrefix)+len(source))
		wrapped = append(wrapped, jsonWrapPrefix...)
		wrapped = append(wrapped, source...)
		setRecordOutput(rec, wrapped, nil)
		return transformOutcome{source: wrapped}
	}

	if !legacy && len(deps) == 0 {
		if worker != nil {
			c.pool.Free(worker)
		}
		setRecordOutput(rec, source, nil)
		return transformOutcome{source: source}
	}

	w := worker
	var err error
	if w == nil {
		w, err = c.pool.Assign(ctx, source, path, c.config.Production)
		if err != nil {
			return transformOutcome{err: newTransformError(path, "assigning worker for transform", err)}
		}
	}

	var outSource, outMap []byte
	if legacy {
		outSource, outMap, err = w.Peer().TransformLegacy(ctx, rMap)
	} else {
		outSource, outMap, err = w.Peer().TransformModule(ctx, rMap)
	}
	c.pool.Free(w)
	if err != nil {
		return transformOutcome{err: newTransformError(path, "transform failed", err)}
	}

	setRecordOutput(rec, outSource, outMap)
	return transformOutcome{source: outSource, sourceMap: outMap}
}

func setRecordOutput(rec *FileRecord, source, sourceMap []byte) {
	rec.mu.Lock()
	rec.source = source
	rec.sourceMap = sourceMap
	rec.haveOutput = true
	rec.mu.Unlock()
}

// isSymlink asks the OS whether path is a symlink, used for the
// isGlobalCache probe. platform.FileSystem has no Lstat method, so this
// one spot calls the standard library directly rather than widening that
// interface for a single peripheral check.
func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeSymlink != 0
}
