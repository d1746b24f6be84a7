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

package testutil

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nsf/jsondiff"
)

// Update is the global --update flag for regenerating golden files.
var Update = flag.Bool("update", false, "update golden files")

// GoldenOptions configures golden file comparison behavior.
type GoldenOptions struct {
	// Dir specifies the directory for golden files (default: "goldens").
	Dir string
	// Extension specifies the file extension (default: inferred from name or ".txt").
	Extension string
	// UseJSONDiff compares as JSON (semantic equality) rather than raw bytes,
	// so formatting differences such as a trailing newline in the golden file
	// are only logged, not reported as failures.
	UseJSONDiff bool
}

// CheckGolden compares actual output against a golden file.
// If --update flag is set, it updates the golden file instead of comparing.
//
// Example:
//
//	CheckGolden(t, "json_wrap", actual, GoldenOptions{Dir: "testdata/goldens", Extension: ".json", UseJSONDiff: true})
func CheckGolden(t *testing.T, name string, actual []byte, opts ...GoldenOptions) {
	t.Helper()

	opt := GoldenOptions{
		Dir:       "goldens",
		Extension: "",
	}
	if len(opts) > 0 {
		opt = opts[0]
	}
	if opt.Dir == "" {
		opt.Dir = "goldens"
	}

	if opt.Extension == "" {
		ext := filepath.Ext(name)
		if ext != "" {
			opt.Extension = ext
			name = strings.TrimSuffix(name, ext)
		} else {
			opt.Extension = ".txt"
		}
	}

	goldenPath := filepath.Join(opt.Dir, name+opt.Extension)

	if *Update {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0755); err != nil {
			t.Fatalf("failed to create golden directory: %v", err)
		}
		if err := os.WriteFile(goldenPath, actual, 0644); err != nil {
			t.Fatalf("failed to update golden file: %v", err)
		}
		t.Logf("Updated golden file: %s", goldenPath)
		return
	}

	expected, err := os.ReadFile(goldenPath)
	if err != nil {
		t.Fatalf("golden file missing: %s (run with -update)\nerror: %v", goldenPath, err)
	}

	if opt.UseJSONDiff {
		var jsExpected, jsActual any
		if err := json.Unmarshal(expected, &jsExpected); err != nil {
			t.Fatalf("expected golden file is invalid JSON: %v", err)
		}
		if err := json.Unmarshal(actual, &jsActual); err != nil {
			t.Fatalf("actual output is invalid JSON: %v\noutput:\n%s", err, actual)
		}

		if string(expected) != string(actual) {
			options := jsondiff.DefaultConsoleOptions()
			diff, str := jsondiff.Compare(expected, actual, &options)
			if diff == jsondiff.FullMatch {
				t.Logf("Semantic match, string mismatch: %s", str)
			} else {
				t.Errorf("%s\n%s", diff, str)
				t.Log("Run the tests with -update to update golden files")
			}
		}
		return
	}

	if string(expected) != string(actual) {
		t.Errorf("Output differs from golden file.\nExpected:\n%s\n\nGot:\n%s",
			string(expected), string(actual))
		t.Log("Run the tests with -update to update golden files")
	}
}
