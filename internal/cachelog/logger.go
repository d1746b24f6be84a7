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

// Package cachelog provides the logging interface used by dewcache and its
// command-line front end.
package cachelog

import (
	"log"

	"github.com/pterm/pterm"
)

// Logger is the logging interface used throughout the dewcache packages.
type Logger interface {
	Info(msg string, args ...any)
	Warning(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// defaultLogger logs via the standard library, suitable for non-interactive
// use (tests, CI, piped output).
type defaultLogger struct{}

// NewDefaultLogger returns a Logger backed by the standard log package.
func NewDefaultLogger() Logger {
	return &defaultLogger{}
}

func (l *defaultLogger) Info(msg string, args ...any) {
	log.Printf("[INFO] "+msg, args...)
}

func (l *defaultLogger) Warning(msg string, args ...any) {
	log.Printf("[WARN] "+msg, args...)
}

func (l *defaultLogger) Error(msg string, args ...any) {
	log.Printf("[ERROR] "+msg, args...)
}

func (l *defaultLogger) Debug(msg string, args ...any) {
	log.Printf("[DEBUG] "+msg, args...)
}

// ptermLogger logs with pterm's styled printers, for interactive CLI use.
type ptermLogger struct {
	verbose bool
}

// NewPtermLogger returns a Logger that renders styled, prefixed lines with
// pterm. Debug messages are suppressed unless verbose is true.
func NewPtermLogger(verbose bool) Logger {
	return &ptermLogger{verbose: verbose}
}

func (l *ptermLogger) Info(msg string, args ...any) {
	pterm.Info.Printfln(msg, args...)
}

func (l *ptermLogger) Warning(msg string, args ...any) {
	pterm.Warning.Printfln(msg, args...)
}

func (l *ptermLogger) Error(msg string, args ...any) {
	pterm.Error.Printfln(msg, args...)
}

func (l *ptermLogger) Debug(msg string, args ...any) {
	if !l.verbose {
		return
	}
	pterm.Debug.Printfln(msg, args...)
}

// NopLogger discards everything. Useful as a test default.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)    {}
func (NopLogger) Warning(string, ...any) {}
func (NopLogger) Error(string, ...any)   {}
func (NopLogger) Debug(string, ...any)   {}
