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
	"reflect"
	"testing"
)

func TestScanSpecifiers_DedupesAndPreservesOrder(t *testing.T) {
	src := []byte(`
import a from "./a.js";
import { b } from "./b.js";
import "./side-effect.js";
import "./a.js";
`)
	got := scanSpecifiers(src, "x.js", false)
	want := []string{"./a.js", "./b.js", "./side-effect.js"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("scanSpecifiers() = %v, want %v", got, want)
	}
}

func TestScanSpecifiers_DynamicImport(t *testing.T) {
	src := []byte(`const m = await import("./dynamic.js");`)
	got := scanSpecifiers(src, "x.js", false)
	want := []string{"./dynamic.js"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("scanSpecifiers() = %v, want %v", got, want)
	}
}

func TestScanSpecifiers_RequireOnlyForLegacy(t *testing.T) {
	src := []byte(`const x = require("./cjs.js");`)

	if got := scanSpecifiers(src, "x.js", false); len(got) != 0 {
		t.Errorf("non-legacy scan picked up a require() call: %v", got)
	}
	got := scanSpecifiers(src, "x.js", true)
	want := []string{"./cjs.js"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("legacy scanSpecifiers() = %v, want %v", got, want)
	}
}

func TestRewriteSpecifiers_RewritesQuotedOccurrencesBothStyles(t *testing.T) {
	src := []byte(`import a from './a.js'; import b from "./a.js";`)
	rewritten := "./renamed.js"
	out := rewriteSpecifiers(src, map[string]*string{"./a.js": &rewritten})
	want := `import a from './renamed.js'; import b from "./renamed.js";`
	if string(out) != want {
		t.Errorf("rewriteSpecifiers() = %q, want %q", out, want)
	}
}

func TestRewriteSpecifiers_NilEntryUsesEmptyModuleSentinel(t *testing.T) {
	src := []byte(`import "./empty.js";`)
	out := rewriteSpecifiers(src, map[string]*string{"./empty.js": nil})
	if string(out) != `import "`+emptyModuleSentinel+`";` {
		t.Errorf("rewriteSpecifiers() = %q, want the empty-module sentinel substituted", out)
	}
}

func TestRewriteSpecifiers_EmptyMapIsNoop(t *testing.T) {
	src := []byte(`import "./a.js";`)
	out := rewriteSpecifiers(src, nil)
	if string(out) != string(src) {
		t.Errorf("rewriteSpecifiers() with an empty map mutated the source")
	}
}
