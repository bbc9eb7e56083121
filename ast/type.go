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

// Package ast holds the value-type model, the symbol/scope tree, and the
// AST node variant consumed from the front end. It is the contract
// described in spec.md §6 ("Front-end contract"); nothing in this package
// parses source text.
package ast

import "fmt"

// TypeKind tags the variant held by a Type.
type TypeKind int

const (
	KindPrimitive TypeKind = iota
	KindNamed
	KindPointer
	KindReference
	KindArray
	KindFunction
	KindStruct
	KindInteger
)

// PointerSize is the target pointer width in bytes. Only x86-64 is
// supported (spec.md §1 Non-goals: "cross-compilation beyond x86-64").
const PointerSize = 8

// Type is the tagged-variant value type described in spec.md §3. Every
// concrete variant below implements it; variant selection is solely
// determined by Kind(), never by a type assertion racing ahead of it.
type Type interface {
	Kind() TypeKind
	String() string
}

// PrimitiveType is a built-in scalar: name, size, alignment, signedness.
// TIntLit is the distinguished "<integer_literal>" primitive that
// equals(a,b) treats as compatible with any IntegerType (spec.md §4.2).
type PrimitiveType struct {
	Name      string
	Size      int
	Align     int
	Signed    bool
	IsVoid    bool
	IsLiteral bool // the <integer_literal> primitive
}

func (t *PrimitiveType) Kind() TypeKind { return KindPrimitive }
func (t *PrimitiveType) String() string { return t.Name }

var (
	TVoid   = &PrimitiveType{Name: "void", Size: 0, Align: 1, IsVoid: true}
	TBool   = &PrimitiveType{Name: "bool", Size: 1, Align: 1, Signed: false}
	TByte   = &PrimitiveType{Name: "byte", Size: 1, Align: 1, Signed: false}
	TChar   = &PrimitiveType{Name: "char", Size: 1, Align: 1, Signed: true}
	TIntLit = &PrimitiveType{Name: "<integer_literal>", Size: 8, Align: 8, Signed: true, IsLiteral: true}
)

// NamedType is a named alias that resolves to some other Type via Target.
// Chains of NamedType must eventually reach a non-named canonical type
// (spec.md §3 invariant).
type NamedType struct {
	Name   string
	Target Type
}

func (t *NamedType) Kind() TypeKind { return KindNamed }
func (t *NamedType) String() string { return t.Name }

// PointerType is `@T` in the surface notation (spec.md §4.2 typename).
type PointerType struct{ Elem Type }

func (t *PointerType) Kind() TypeKind { return KindPointer }
func (t *PointerType) String() string { return Typename(t, false) }

// ReferenceType is `&T`.
type ReferenceType struct{ Elem Type }

func (t *ReferenceType) Kind() TypeKind { return KindReference }
func (t *ReferenceType) String() string { return Typename(t, false) }

// ArrayType is `T[N]`; element type must be complete (spec.md §3 invariant).
type ArrayType struct {
	Elem  Type
	Count int
}

func (t *ArrayType) Kind() TypeKind { return KindArray }
func (t *ArrayType) String() string { return Typename(t, false) }

// Param is one ordered function parameter.
type Param struct {
	Name  string
	Type  Type
	Range SourceRange
}

// FuncType is `R(P1, P2)`; parameter order is preserved (spec.md §3
// invariant).
type FuncType struct {
	Return Type
	Params []Param
}

func (t *FuncType) Kind() TypeKind { return KindFunction }
func (t *FuncType) String() string { return Typename(t, false) }

// Member is one ordered struct member with its byte offset.
type Member struct {
	Name   string
	Type   Type
	Offset int
}

// StructType has ordered members (source order preserved) plus precomputed
// total size and alignment.
type StructType struct {
	Name    string
	Members []Member
	Size    int
	Align   int
}

func (t *StructType) Kind() TypeKind { return KindStruct }
func (t *StructType) String() string { return Typename(t, false) }

// IntegerType is a sized, signed-or-unsigned integer (`s64`, `u32`, ...).
type IntegerType struct {
	Width  int // bits
	Signed bool
}

func (t *IntegerType) Kind() TypeKind { return KindInteger }
func (t *IntegerType) String() string { return Typename(t, false) }

// Canonical follows named aliases to the first non-named type (spec.md
// §4.2).
func Canonical(t Type) Type {
	for {
		n, ok := t.(*NamedType)
		if !ok {
			return t
		}
		t = n.Target
	}
}

// LastAlias returns the last named alias along the chain from t to its
// canonical type, or nil if t is not a NamedType.
func LastAlias(t Type) *NamedType {
	n, ok := t.(*NamedType)
	if !ok {
		return nil
	}
	for {
		next, ok := n.Target.(*NamedType)
		if !ok {
			return n
		}
		n = next
	}
}

// Equals implements the spec.md §4.2 structural equality relation,
// including the special <integer_literal> <-> integer compatibility.
func Equals(a, b Type) bool {
	a, b = Canonical(a), Canonical(b)
	if a == b {
		return true
	}
	if a.Kind() != b.Kind() {
		// <integer_literal> is the one primitive that cross-compares
		// equal with the integer kind.
		if pa, ok := a.(*PrimitiveType); ok && pa.IsLiteral && b.Kind() == KindInteger {
			return true
		}
		if pb, ok := b.(*PrimitiveType); ok && pb.IsLiteral && a.Kind() == KindInteger {
			return true
		}
		return false
	}
	switch av := a.(type) {
	case *PrimitiveType:
		bv := b.(*PrimitiveType)
		if av.IsLiteral || bv.IsLiteral {
			return av.IsLiteral && bv.IsLiteral
		}
		if av.IsVoid || bv.IsVoid {
			return av.IsVoid && bv.IsVoid
		}
		return av.Name == bv.Name
	case *PointerType:
		return Equals(av.Elem, b.(*PointerType).Elem)
	case *ReferenceType:
		return Equals(av.Elem, b.(*ReferenceType).Elem)
	case *ArrayType:
		bv := b.(*ArrayType)
		return av.Count == bv.Count && Equals(av.Elem, bv.Elem)
	case *FuncType:
		bv := b.(*FuncType)
		if len(av.Params) != len(bv.Params) || !Equals(av.Return, bv.Return) {
			return false
		}
		for i := range av.Params {
			if !Equals(av.Params[i].Type, bv.Params[i].Type) {
				return false
			}
		}
		return true
	case *StructType:
		bv := b.(*StructType)
		if av.Size != bv.Size || av.Align != bv.Align || len(av.Members) != len(bv.Members) {
			return false
		}
		for i := range av.Members {
			if av.Members[i].Name != bv.Members[i].Name || av.Members[i].Offset != bv.Members[i].Offset ||
				!Equals(av.Members[i].Type, bv.Members[i].Type) {
				return false
			}
		}
		return true
	case *IntegerType:
		bv := b.(*IntegerType)
		return av.Width == bv.Width && av.Signed == bv.Signed
	case *NamedType:
		// Incomplete types (never reached canonical) compare by name.
		return av.Name == b.(*NamedType).Name
	}
	return false
}

// Sizeof is the byte size of t (spec.md §4.2).
func Sizeof(t Type) int {
	switch v := t.(type) {
	case *PrimitiveType:
		return v.Size
	case *PointerType, *ReferenceType, *FuncType:
		return PointerSize
	case *ArrayType:
		return Sizeof(v.Elem) * v.Count
	case *StructType:
		return v.Size
	case *IntegerType:
		return (v.Width + 7) / 8
	case *NamedType:
		return Sizeof(v.Target)
	}
	return 0
}

// Alignof is the byte alignment of t (spec.md §4.2).
func Alignof(t Type) int {
	switch v := t.(type) {
	case *PrimitiveType:
		return v.Align
	case *PointerType, *ReferenceType, *FuncType:
		return PointerSize
	case *ArrayType:
		return Alignof(v.Elem)
	case *StructType:
		return v.Align
	case *IntegerType:
		a := (v.Width + 7) / 8
		if a < 1 {
			a = 1
		}
		return a
	case *NamedType:
		return Alignof(v.Target)
	}
	return 1
}

// Typename renders t with the conventional decorations from spec.md §4.2.
// colour is reserved for ANSI-colourised output (kept false by callers that
// only need the plain form); when true, primitive, named and struct type
// names are wrapped in ANSI cyan escape codes for diagnostic output.
func Typename(t Type, colour bool) string {
	wrap := func(s string) string {
		if colour {
			return "\x1b[36m" + s + "\x1b[0m"
		}
		return s
	}
	switch v := t.(type) {
	case *PrimitiveType:
		return wrap(v.Name)
	case *NamedType:
		return wrap(v.Name)
	case *PointerType:
		return "@" + parenthesise(v.Elem, colour)
	case *ReferenceType:
		return "&" + parenthesise(v.Elem, colour)
	case *ArrayType:
		return fmt.Sprintf("%s[%d]", Typename(v.Elem, colour), v.Count)
	case *FuncType:
		parts := make([]string, len(v.Params))
		for i, p := range v.Params {
			parts[i] = Typename(p.Type, colour)
		}
		s := Typename(v.Return, colour) + "("
		for i, p := range parts {
			if i > 0 {
				s += ", "
			}
			s += p
		}
		return s + ")"
	case *StructType:
		return wrap("struct " + v.Name)
	case *IntegerType:
		sign := "s"
		if !v.Signed {
			sign = "u"
		}
		return fmt.Sprintf("%s%d", sign, v.Width)
	}
	return "<?>"
}

// parenthesise wraps the rendering of t if t is itself a function or
// array type, so that `@(R(P))` and `@(T[N])` read unambiguously.
func parenthesise(t Type, colour bool) string {
	switch t.(type) {
	case *FuncType, *ArrayType:
		return "(" + Typename(t, colour) + ")"
	default:
		return Typename(t, colour)
	}
}
