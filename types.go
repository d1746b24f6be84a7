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

// Package dewcache is an incremental file-transform cache sitting in front
// of a module resolver and a pool of transform workers. Given a request for
// a source file, optionally tagged as a legacy-module variant, it returns
// the transformed source, a source map, and a stable content hash; repeat
// requests against an unchanged input graph return instantly, and a caller
// that already knows the hash can short-circuit with a "not modified" reply.
package dewcache

import (
	"strings"

	"bennypowers.dev/dewcache/resolver"
)

// Variant distinguishes the two ways a file may be requested. Different
// variants of the same path are entirely distinct records.
type Variant int

const (
	VariantModule Variant = iota
	VariantLegacy
)

// legacySuffix is appended to a lookup key for the legacy variant.
const legacySuffix = "?dew"

func (v Variant) String() string {
	if v == VariantLegacy {
		return "legacy"
	}
	return "module"
}

// splitVariant strips a trailing "?dew" from filePath, reporting which
// variant was requested. All filesystem operations use the stripped path.
func splitVariant(filePath string) (path string, variant Variant) {
	if strings.HasSuffix(filePath, legacySuffix) {
		return strings.TrimSuffix(filePath, legacySuffix), VariantLegacy
	}
	return filePath, VariantModule
}

// storeKey reassembles the composite record-store key for path+variant.
func storeKey(path string, variant Variant) string {
	if variant == VariantLegacy {
		return path + legacySuffix
	}
	return path
}

// BuiltinResolver substitutes a built-in module specifier. isEmpty reports
// that the substitution is the "empty module" sentinel. The built-in table
// itself lives outside this package; dewcache only calls this hook when
// the resolver facade reports resolver.FormatBuiltin.
type BuiltinResolver func(specifier string) (target string, isEmpty bool)

// Result is what Get returns on a non-"not modified" completion.
type Result struct {
	Source        []byte
	SourceMap     []byte
	Hash          string
	IsGlobalCache bool
}

// GetOutcome distinguishes the three shapes Get can return.
type GetOutcome int

const (
	// OutcomeResult: a Result with Source/SourceMap populated.
	OutcomeResult GetOutcome = iota
	// OutcomeNotModified: caller's knownHash matched; Source/SourceMap are
	// nil, Hash is echoed back.
	OutcomeNotModified
	// OutcomeAbsent: this variant does not need transforming; the caller
	// should request the sibling variant instead.
	OutcomeAbsent
)

// GetResponse is the full return value of Get.
type GetResponse struct {
	Outcome GetOutcome
	Result  Result
}

// resolveMap maps original specifiers to rewritten specifiers for a single
// transform generation. A nil value (present in the map) means the
// specifier resolves to an empty module; an absent key means "keep the
// original specifier".
type resolveMap = map[string]*string

// Format re-exports resolver.Format so callers needn't import both
// packages for the common case.
type Format = resolver.Format

const (
	FormatModule  = resolver.FormatModule
	FormatLegacy  = resolver.FormatLegacy
	FormatJSON    = resolver.FormatJSON
	FormatBuiltin = resolver.FormatBuiltin
	FormatUnknown = resolver.FormatUnknown
)
