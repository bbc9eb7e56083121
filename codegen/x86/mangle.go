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
package x86

import (
	"fmt"
	"strings"

	"github.com/nyxlang/nyxc/ast"
)

// Mangle produces the `_XF<len><name><encoded-type>` linkage name for a
// function named name with signature fn (spec.md §4.6 name mangling).
// There is no corpus library for this grammar — it is grounded directly
// on the specification prose rather than any example file, and recorded
// as such in DESIGN.md.
func Mangle(name string, fn *ast.FuncType) string {
	var b strings.Builder
	b.WriteString("_XF")
	fmt.Fprintf(&b, "%d%s", len(name), name)
	encodeType(&b, fn)
	return b.String()
}

func encodeType(b *strings.Builder, t ast.Type) {
	switch tt := ast.Canonical(t).(type) {
	case *ast.PrimitiveType:
		b.WriteString(primitiveCode(tt))
	case *ast.IntegerType:
		sign := "u"
		if tt.Signed {
			sign = "s"
		}
		fmt.Fprintf(b, "%s%d", sign, tt.Width)
	case *ast.PointerType:
		b.WriteByte('P')
		encodeType(b, tt.Elem)
	case *ast.ReferenceType:
		b.WriteByte('R')
		encodeType(b, tt.Elem)
	case *ast.ArrayType:
		fmt.Fprintf(b, "A%d", tt.Count)
		encodeType(b, tt.Elem)
	case *ast.StructType:
		fmt.Fprintf(b, "%d%s", len(tt.Name), tt.Name)
	case *ast.FuncType:
		b.WriteByte('F')
		for _, p := range tt.Params {
			encodeType(b, p.Type)
		}
		b.WriteByte('E')
		encodeType(b, tt.Return)
	case *ast.NamedType:
		// Canonical() already resolves through aliases, so this arm is
		// defensive rather than expected to fire.
		encodeType(b, tt.Target)
	default:
		b.WriteString("v")
	}
}

func primitiveCode(p *ast.PrimitiveType) string {
	switch {
	case p.IsVoid:
		return "v"
	case p.IsLiteral:
		return "i"
	case p == ast.TBool:
		return "b"
	case p == ast.TByte:
		return "h"
	case p == ast.TChar:
		return "c"
	default:
		return "v"
	}
}
