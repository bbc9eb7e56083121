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
package diag_test

import (
	"testing"

	"github.com/nyxlang/nyxc/ast"
	"github.com/nyxlang/nyxc/diag"
	"github.com/stretchr/testify/require"
)

func TestICEPanics(t *testing.T) {
	require.PanicsWithValue(t, "internal compiler error: bad state: 3", func() {
		diag.ICE("bad state: %d", 3)
	})
}

func TestAssertPassesWhenTrue(t *testing.T) {
	require.NotPanics(t, func() { diag.Assert(true, "unreachable") })
}

func TestAssertPanicsWhenFalse(t *testing.T) {
	require.Panics(t, func() { diag.Assert(false, "invariant broken") })
}

func TestUnimplementedPanics(t *testing.T) {
	require.PanicsWithValue(t, "sorry: not implemented: for-loops", func() {
		diag.Unimplemented("for-loops")
	})
}

func TestDiagnosticStringIncludesNotes(t *testing.T) {
	d := diag.Diagnostic{
		Severity: diag.Error,
		File:     "main.nyx",
		Range:    ast.SourceRange{Start: 10, End: 14},
		Message:  "undefined symbol",
		Notes: []diag.Note{
			{Message: "expanded from #FOO", Range: ast.SourceRange{Start: 1, End: 4}},
		},
	}
	s := d.String()
	require.Contains(t, s, "error:")
	require.Contains(t, s, "undefined symbol")
	require.Contains(t, s, "expanded from #FOO")
}

func TestContextAccumulatesAndDetectsErrors(t *testing.T) {
	ctx := diag.NewContext()
	require.False(t, ctx.HasErrors())

	ctx.Report(diag.Diagnostic{Severity: diag.Warning, Message: "heads up"})
	require.False(t, ctx.HasErrors())

	ctx.Report(diag.Diagnostic{Severity: diag.Error, Message: "boom"})
	require.True(t, ctx.HasErrors())
	require.Len(t, ctx.Diagnostics, 2)
}

func TestNewFatalBuildsDiagnostic(t *testing.T) {
	err := diag.NewFatal(diag.Error, "x.nyx", ast.SourceRange{Start: 1, End: 2}, "bad token %q", "@@")
	require.Equal(t, `error: x.nyx:1-2: bad token "@@"`, err.Error())
}
