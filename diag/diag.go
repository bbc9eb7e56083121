// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package diag is the diagnostics context handle called for in spec.md §7
// and §9 ("Global mutable state" — pass through an explicit context,
// never a package-level flag). It replaces the teacher's bare
// utils.Assert/utils.Fatal panics with structured, severity-tagged
// diagnostics while keeping a panic-based escape hatch for true internal
// compiler errors.
package diag

import (
	"fmt"

	"github.com/nyxlang/nyxc/ast"
	"github.com/pkg/errors"
)

// Severity is one of error | warning | note | sorry (spec.md §7).
type Severity int

const (
	Error Severity = iota
	Warning
	Note
	Sorry
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Note:
		return "note"
	case Sorry:
		return "sorry"
	}
	return "?"
}

// Diagnostic carries a severity, source location, message, and an optional
// chain of macro-expansion notes (used by the ISel DSL, spec.md §4.3/§7).
type Diagnostic struct {
	Severity Severity
	File     string
	Range    ast.SourceRange
	Message  string
	Notes    []Note
}

// Note is one link of a macro-expansion trace: "expanded from #NAME at
// <range>".
type Note struct {
	Message string
	Range   ast.SourceRange
}

func (d Diagnostic) String() string {
	s := fmt.Sprintf("%s: %s:%d-%d: %s", d.Severity, d.File, d.Range.Start, d.Range.End, d.Message)
	for _, n := range d.Notes {
		s += fmt.Sprintf("\n  note: %s (%d-%d)", n.Message, n.Range.Start, n.Range.End)
	}
	return s
}

// FatalError wraps a Diagnostic that aborts compilation. It is the Go
// rendition of spec.md §5's "non-local jump... back to a pre-installed
// recovery point". ICE and Unimplemented panic rather than return it;
// compiler.Run and the cmd/nyxc command handlers are the places that
// recover from those panics.
type FatalError struct {
	Diagnostic Diagnostic
}

func (e *FatalError) Error() string { return e.Diagnostic.String() }

// NewFatal builds a FatalError from format arguments, at the given range.
func NewFatal(sev Severity, file string, rng ast.SourceRange, format string, args ...interface{}) *FatalError {
	return &FatalError{Diagnostic: Diagnostic{
		Severity: sev,
		File:     file,
		Range:    rng,
		Message:  fmt.Sprintf(format, args...),
	}}
}

// Wrap attaches a collaborator-boundary error (object I/O, DSL source
// read) with a stack trace via pkg/errors, distinct from in-core ICEs.
func Wrap(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// ICE panics with an internal-compiler-error diagnostic: a programmer
// error such as insertion after a terminator or removal of an instruction
// with live users (spec.md §7). This mirrors the teacher's utils.Fatal;
// unlike FatalError it is never expected to be recovered except at the
// single top-level recovery point.
func ICE(format string, args ...interface{}) {
	panic(fmt.Sprintf("internal compiler error: %s", fmt.Sprintf(format, args...)))
}

// Assert panics with an ICE if cond is false, mirroring the teacher's
// utils.Assert.
func Assert(cond bool, format string, args ...interface{}) {
	if !cond {
		ICE(format, args...)
	}
}

// Unimplemented raises an explicit "sorry" diagnostic for a known-missing
// feature (spec.md §9's open questions: callers must use this rather than
// guess at semantics). what names the feature.
func Unimplemented(what string) {
	panic(fmt.Sprintf("sorry: not implemented: %s", what))
}

// Context accumulates diagnostics across one compiler.Run invocation. It
// is created once and torn down at the end of Run (SPEC_FULL.md §7); no
// package keeps its own package-level diagnostic state.
type Context struct {
	Diagnostics []Diagnostic
}

// NewContext creates an empty diagnostics context.
func NewContext() *Context { return &Context{} }

// Report appends d to the context without aborting compilation (used for
// warning/note severities).
func (c *Context) Report(d Diagnostic) { c.Diagnostics = append(c.Diagnostics, d) }

// HasErrors reports whether any accumulated diagnostic is Error severity.
func (c *Context) HasErrors() bool {
	for _, d := range c.Diagnostics {
		if d.Severity == Error {
			return true
		}
	}
	return false
}
