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
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"bennypowers.dev/dewcache/pool"
	"bennypowers.dev/dewcache/resolver"
)

// hashPhase runs exactly once at a time per record (the caller guarantees
// this via hashPending). It computes sourceHash, re-analyzes dependencies
// only if the source actually changed, builds the resolve map, and sets
// fullHash.
func (c *Coordinator) hashPhase(ctx context.Context, rec *FileRecord) hashOutcome {
	rec.mu.Lock()
	path := rec.Path
	legacy := rec.Variant == VariantLegacy
	source := rec.originalSource
	prevSourceHash := rec.originalSourceHash
	haveSourceHash := rec.haveSourceHash
	prevDeps := rec.deps
	haveDeps := rec.haveDeps
	rec.mu.Unlock()

	sourceHash := md5Hex(source)

	if isJSONPath(path) {
		rec.mu.Lock()
		rec.fullHash = sourceHash
		rec.mu.Unlock()
		return hashOutcome{}
	}

	var deps []string
	var worker *pool.Worker
	if !haveSourceHash || sourceHash != prevSourceHash || !haveDeps {
		w, err := c.pool.Assign(ctx, source, path, c.config.Production)
		if err != nil {
			return hashOutcome{err: newTransformError(path, "assigning worker for analysis", err)}
		}
		var analyzeErr error
		if legacy {
			deps, analyzeErr = w.Peer().AnalyzeLegacy(ctx)
		} else {
			deps, analyzeErr = w.Peer().AnalyzeModule(ctx)
		}
		if analyzeErr != nil {
			c.pool.Free(w)
			return hashOutcome{err: newTransformError(path, "analyze failed", analyzeErr)}
		}
		worker = w

		rec.mu.Lock()
		rec.deps = deps
		rec.haveDeps = true
		rec.originalSourceHash = sourceHash
		rec.haveSourceHash = true
		rec.mu.Unlock()
	} else {
		deps = prevDeps
	}

	rMap, resolveMapHash, err := c.buildResolveMap(path, deps, legacy)
	if err != nil {
		if worker != nil {
			c.pool.Free(worker)
		}
		return hashOutcome{err: err}
	}

	rec.mu.Lock()
	rec.fullHash = sourceHash + resolveMapHash
	rec.mu.Unlock()

	return hashOutcome{resolveMap: rMap, worker: worker}
}

// buildResolveMap resolves each dependency against the record's directory,
// substitutes built-ins, enforces the public-directory containment rule,
// and computes the rolling hash over the ordered (dep, resolved) /
// (dep, "@empty") pairs.
func (c *Coordinator) buildResolveMap(path string, deps []string, legacy bool) (resolveMap, string, error) {
	base := filepath.Dir(path)
	out := resolveMap{}
	h := md5.New()
	pub := c.config.normalizedPublicDir()
	env := resolver.Env{Production: c.config.Production, Browser: true}

	for _, dep := range deps {
		specifier := strings.TrimSuffix(dep, "/")

		resolved, err := c.res.Resolve(specifier, path, legacy, env)
		if err != nil {
			return nil, "", newTransformError(path, fmt.Sprintf("resolving %q", dep), err)
		}

		format, err := c.res.Format(resolved, legacy)
		if err != nil {
			return nil, "", newTransformError(path, fmt.Sprintf("determining format of %q", dep), err)
		}

		isEmpty := false
		if format == FormatBuiltin {
			if c.builtin != nil {
				target, empty := c.builtin(dep)
				resolved = target
				isEmpty = empty
			} else {
				// No built-in table wired: treat every built-in as an
				// empty module rather than guessing a substitution.
				isEmpty = true
			}
		}

		if isEmpty {
			out[dep] = nil
			io.WriteString(h, dep)
			io.WriteString(h, "@empty")
			continue
		}

		if format != FormatBuiltin {
			resolvedSlash := filepath.ToSlash(resolved)
			if !strings.HasPrefix(resolvedSlash, pub) {
				return nil, "", newTransformError(path, fmt.Sprintf("%q resolves outside the public directory", dep), nil)
			}
		}

		relResolved, err := filepath.Rel(base, resolved)
		if err != nil {
			return nil, "", newTransformError(path, fmt.Sprintf("computing relative path for %q", dep), err)
		}
		relResolved = filepath.ToSlash(relResolved)
		if !strings.HasPrefix(relResolved, "../") {
			relResolved = "./" + strings.TrimPrefix(relResolved, "./")
		}

		switch {
		case legacy:
			relResolved += "?dew"
		case format == FormatLegacy || format == FormatJSON:
			relResolved += "?cjs"
		}

		if dep != relResolved {
			rewritten := relResolved
			out[dep] = &rewritten
		}

		io.WriteString(h, dep)
		io.WriteString(h, resolved)
	}

	return out, hex.EncodeToString(h.Sum(nil)), nil
}

func isJSONPath(p string) bool {
	return strings.EqualFold(filepath.Ext(p), ".json")
}

func md5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}
