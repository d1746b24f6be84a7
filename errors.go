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

import "fmt"

// Code is one of the four string-tagged error codes a CacheError carries.
// These are tags, not a type hierarchy: callers switch on Code, not on the
// concrete Go type.
type Code string

const (
	ErrNotFound          Code = "not-found"
	ErrNoTransform       Code = "no-transform"
	ErrUnsupportedFormat Code = "unsupported-format"
	ErrTransformError    Code = "transform-error"
)

// CacheError is the error type Get returns for the four tagged failure
// cases: a plain struct with an identifying code rather than a type
// hierarchy. Resolver, context and other I/O errors pass through Get and
// Resolve unwrapped.
type CacheError struct {
	Code    Code
	Path    string
	Message string
	Cause   error
}

func (e *CacheError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Path, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Path)
}

func (e *CacheError) Unwrap() error { return e.Cause }

func newNotFound(path string, cause error) *CacheError {
	return &CacheError{Code: ErrNotFound, Path: path, Message: "source file does not exist", Cause: cause}
}

func newNoTransform(path string) *CacheError {
	return &CacheError{Code: ErrNoTransform, Path: path, Message: "legacy variant requested for a format the legacy transform does not accept"}
}

func newUnsupportedFormat(path string) *CacheError {
	return &CacheError{Code: ErrUnsupportedFormat, Path: path, Message: "format not accepted by the module transform"}
}

func newTransformError(path, message string, cause error) *CacheError {
	return &CacheError{Code: ErrTransformError, Path: path, Message: message, Cause: cause}
}
