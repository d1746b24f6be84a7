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

package dewengine

import (
	"regexp"
	"strings"
)

var (
	fromSpecifierRe = regexp.MustCompile(`(?m)\b(?:import|export)\b[^'"(;]*?\bfrom\s*['"]([^'"]+)['"]`)
	bareImportRe    = regexp.MustCompile(`(?m)^\s*import\s*['"]([^'"]+)['"]`)
	dynamicImportRe = regexp.MustCompile(`\bimport\(\s*['"]([^'"]+)['"]\s*\)`)
	requireRe       = regexp.MustCompile(`\brequire\(\s*['"]([^'"]+)['"]\s*\)`)
)

// scanSpecifiers extracts raw import/require specifiers from source,
// deduplicated. They are grouped by form: "from" imports/exports first,
// then bare imports, then dynamic imports, then (legacy only) require
// calls, each group in source order; a specifier keeps the position of its
// first group. A plain regexp scan is enough here: the peer contract only
// needs the specifier strings, not an AST.
func scanSpecifiers(source []byte, _ string, legacy bool) []string {
	seen := make(map[string]bool)
	var specs []string

	add := func(matches [][]byte) {
		for _, m := range matches {
			s := string(m)
			if !seen[s] {
				seen[s] = true
				specs = append(specs, s)
			}
		}
	}

	add(firstSubmatches(fromSpecifierRe, source))
	add(firstSubmatches(bareImportRe, source))
	add(firstSubmatches(dynamicImportRe, source))
	if legacy {
		add(firstSubmatches(requireRe, source))
	}

	return specs
}

func firstSubmatches(re *regexp.Regexp, source []byte) [][]byte {
	matches := re.FindAllSubmatch(source, -1)
	out := make([][]byte, 0, len(matches))
	for _, m := range matches {
		if len(m) > 1 {
			out = append(out, m[1])
		}
	}
	return out
}

// emptyModuleSentinel is substituted for specifiers the resolve map maps to
// nil ("resolves to an empty module").
const emptyModuleSentinel = "data:text/javascript,export default undefined;"

// rewriteSpecifiers applies the record's resolve map to source, replacing
// quoted specifier literals in place. esbuild's single-file Transform API
// never resolves or bundles imports, so rewriting is purely textual — the
// same approach the resolve map itself takes (it is a set of string
// substitutions, not an AST transform).
func rewriteSpecifiers(source []byte, resolveMap map[string]*string) []byte {
	if len(resolveMap) == 0 {
		return source
	}
	out := string(source)
	for dep, rewritten := range resolveMap {
		target := emptyModuleSentinel
		if rewritten != nil {
			target = *rewritten
		}
		out = replaceQuoted(out, dep, target)
	}
	return []byte(out)
}

func replaceQuoted(src, from, to string) string {
	src = strings.ReplaceAll(src, "'"+from+"'", "'"+to+"'")
	src = strings.ReplaceAll(src, `"`+from+`"`, `"`+to+`"`)
	return src
}
