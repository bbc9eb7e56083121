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
package isel_test

import (
	"os"
	"testing"

	"github.com/nyxlang/nyxc/ast"
	"github.com/nyxlang/nyxc/ir"
	"github.com/nyxlang/nyxc/isel"
	"github.com/stretchr/testify/require"
)

func TestCompileSourceCoreRules(t *testing.T) {
	src, err := os.ReadFile("rules/core.isel")
	require.NoError(t, err)

	table := isel.CompileSource(string(src))
	require.NotEmpty(t, table.ByLead)
}

func TestEmptyTableFallsBackToOneToOne(t *testing.T) {
	s32 := &ast.IntegerType{Width: 32, Signed: true}
	fn := ir.NewFunc("answer", &ast.FuncType{Return: s32})
	bd := ir.NewBuilder(fn)
	bd.SetBlock(fn.NewBlock())
	bd.Return(bd.Immediate(s32, 42))

	lowerer := isel.NewLowerer(isel.NewTable(nil))
	result := lowerer.Lower(fn)
	require.NotNil(t, result.Func)
	require.NotEmpty(t, result.Func.Blocks)
}
