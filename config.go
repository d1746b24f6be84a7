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
	"strings"
	"time"
)

// Config carries the knobs the coordinator needs. Loading it from a file,
// environment, or flags is an external concern (see cmd/dewcached for one
// way to do it); dewcache itself only ever sees the resolved struct.
type Config struct {
	// PublicDir is the root under which every dependency must resolve.
	// Normalized to end in "/" and use forward slashes.
	PublicDir string
	// CacheClearInterval is how often the resolver facade's lookup cache
	// is wiped wholesale, and how long a completed hash phase's future is
	// kept around before being cleared.
	CacheClearInterval time.Duration
	// MaxWatchCount caps the number of live filesystem watches; beyond
	// this, records fall back to mtime polling.
	MaxWatchCount int
	// Production is passed through to the resolver and the worker's
	// source-priming message.
	Production bool
}

// normalizedPublicDir returns PublicDir ending in "/" with backslashes
// converted to forward slashes.
func (c Config) normalizedPublicDir() string {
	dir := strings.ReplaceAll(c.PublicDir, "\\", "/")
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	return dir
}
