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

package dewcache_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"bennypowers.dev/dewcache"
	"bennypowers.dev/dewcache/internal/platform"
	"bennypowers.dev/dewcache/internal/platform/testutil"
)

// TestGet_FromDiskFixtureProjectLoads exercises NewFixtureFS against a
// real on-disk testdata tree rather than an inline MapFS literal.
func TestGet_FromDiskFixtureProjectLoads(t *testing.T) {
	fs := testutil.NewFixtureFS(t, "basic-project", "pub")
	c := newTestCoordinator(t, fs, newFakeResolver())

	resp, err := c.Get(context.Background(), "pub/a.js", "")
	require.NoError(t, err)
	require.Equal(t, dewcache.OutcomeResult, resp.Outcome)
	require.Equal(t, "export const x = 1;\n", string(resp.Result.Source))
}

// TestGet_JSONWrapMatchesGolden checks the JSON payload embedded in a
// wrapped ".json" response against a golden fixture, using jsondiff so the
// comparison is semantic rather than byte-exact.
func TestGet_JSONWrapMatchesGolden(t *testing.T) {
	fs := platform.NewMapFS(map[string]string{"pub/a.json": `{"x":1}`})
	c := newTestCoordinator(t, fs, newFakeResolver())

	resp, err := c.Get(context.Background(), "pub/a.json", "")
	require.NoError(t, err)

	const prefix = "export var __dew__ = null; export var exports = "
	src := string(resp.Result.Source)
	require.True(t, len(src) > len(prefix) && src[:len(prefix)] == prefix, "unexpected wrap format: %s", src)
	embedded := src[len(prefix):]

	testutil.CheckGolden(t, "json_wrap", []byte(embedded), testutil.GoldenOptions{
		Dir:         filepath.Join("testdata", "goldens"),
		Extension:   ".json",
		UseJSONDiff: true,
	})
}
