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

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bennypowers.dev/dewcache/resolver"
)

// naiveResolver is a minimal, filesystem-only stand-in for a real module
// resolver. It only handles relative specifiers; bare specifiers are
// rejected with an error. A real
// deployment supplies its own resolver.Resolver (npm-style node_modules
// resolution, an import map, etc.) — dewcache never implements one itself.
type naiveResolver struct{}

func (naiveResolver) Resolve(specifier, parentPath string, _ bool, _ resolver.Env) (string, error) {
	if !strings.HasPrefix(specifier, ".") {
		return "", fmt.Errorf("naiveResolver: cannot resolve bare specifier %q", specifier)
	}
	resolved := filepath.Join(filepath.Dir(parentPath), specifier)
	for _, candidate := range []string{resolved, resolved + ".js", resolved + ".ts", resolved + ".json"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return resolved, nil
}

func (naiveResolver) Format(path string, legacy bool) (resolver.Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return resolver.FormatJSON, nil
	case ".cjs":
		return resolver.FormatLegacy, nil
	case ".js", ".ts", ".jsx", ".tsx", ".mjs":
		if legacy {
			return resolver.FormatLegacy, nil
		}
		return resolver.FormatModule, nil
	default:
		return resolver.FormatUnknown, nil
	}
}

func (naiveResolver) PackagePath(path string) (string, bool) {
	return filepath.Dir(path), true
}
