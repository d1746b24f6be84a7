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

// Package dewengine is the default in-process transform worker backing
// pool.Peer. The cache treats the worker as an opaque message-passing
// peer, but a real one is needed to run and test the module end to end:
// EsbuildPeer uses esbuild for the actual TypeScript/JavaScript transform
// and a small regexp-based specifier scanner for dependency analysis.
package dewengine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
)

// EsbuildPeer implements pool.Peer. Not safe for concurrent requests against
// the same instance beyond what the pool already guarantees (at most one
// outstanding request per worker); Source must be called before any
// analyze/transform request.
type EsbuildPeer struct {
	mu         sync.Mutex
	source     []byte
	filename   string
	production bool
}

// NewEsbuildPeer constructs an idle peer.
func NewEsbuildPeer() *EsbuildPeer {
	return &EsbuildPeer{}
}

func (p *EsbuildPeer) Source(_ context.Context, source []byte, filename string, production bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = source
	p.filename = filename
	p.production = production
	return nil
}

func (p *EsbuildPeer) AnalyzeModule(_ context.Context) ([]string, error) {
	p.mu.Lock()
	source, filename := p.source, p.filename
	p.mu.Unlock()
	return scanSpecifiers(source, filename, false), nil
}

func (p *EsbuildPeer) AnalyzeLegacy(_ context.Context) ([]string, error) {
	p.mu.Lock()
	source, filename := p.source, p.filename
	p.mu.Unlock()
	return scanSpecifiers(source, filename, true), nil
}

func (p *EsbuildPeer) TransformModule(_ context.Context, resolveMap map[string]*string) ([]byte, []byte, error) {
	p.mu.Lock()
	source, filename, production := p.source, p.filename, p.production
	p.mu.Unlock()

	rewritten := rewriteSpecifiers(source, resolveMap)
	return transform(rewritten, filename, production, api.FormatESModule)
}

func (p *EsbuildPeer) TransformLegacy(_ context.Context, resolveMap map[string]*string) ([]byte, []byte, error) {
	p.mu.Lock()
	source, filename, production := p.source, p.filename, p.production
	p.mu.Unlock()

	rewritten := rewriteSpecifiers(source, resolveMap)
	return transform(rewritten, filename, production, api.FormatCommonJS)
}

func transform(source []byte, filename string, production bool, format api.Format) ([]byte, []byte, error) {
	loader := loaderFor(filename)

	tsconfigRaw := `{"compilerOptions":{"importHelpers":false}}`

	target := api.ES2020
	sourcemap := api.SourceMapExternal
	if production {
		sourcemap = api.SourceMapNone
	}

	result := api.Transform(string(source), api.TransformOptions{
		Loader:           loader,
		Target:           target,
		Format:           format,
		Sourcemap:        sourcemap,
		Sourcefile:       filename,
		TsconfigRaw:      tsconfigRaw,
		MinifyWhitespace: production,
	})

	if len(result.Errors) > 0 {
		var msg strings.Builder
		msg.WriteString("transform failed:\n")
		for _, e := range result.Errors {
			fmt.Fprintf(&msg, "  %s\n", e.Text)
		}
		return nil, nil, fmt.Errorf("%s", msg.String())
	}

	var sourceMap []byte
	if len(result.Map) > 0 {
		sourceMap = result.Map
	}
	return result.Code, sourceMap, nil
}

func loaderFor(filename string) api.Loader {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".tsx":
		return api.LoaderTSX
	case ".ts":
		return api.LoaderTS
	case ".jsx":
		return api.LoaderJSX
	case ".css":
		return api.LoaderCSS
	default:
		return api.LoaderJS
	}
}
