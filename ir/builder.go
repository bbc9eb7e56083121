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
package ir

import (
	"github.com/nyxlang/nyxc/ast"
	"github.com/nyxlang/nyxc/diag"
)

// Builder is the append-only, users-aware construction API described in
// spec.md §4.1. It deliberately exposes only the primitive operations the
// spec names — not the Braun-style AST-to-SSA construction algorithm the
// teacher's compile/ssa/graph.go implements, since that sealed-block /
// orphan-phi machinery is front-end territory out of scope here (see
// DESIGN.md). Callers choose the construction order themselves.
type Builder struct {
	Func  *Func
	Block *Block // current insertion point
}

// NewBuilder creates a builder over fn with no current block selected.
func NewBuilder(fn *Func) *Builder { return &Builder{Func: fn} }

// SetBlock moves the current insertion point to b.
func (bd *Builder) SetBlock(b *Block) { bd.Block = b }

func (bd *Builder) alloc(op Op, t ast.Type) *Value {
	return &Value{Id: bd.Func.nextValue(), Op: op, Type: t}
}

func (bd *Builder) insert(v *Value) *Value {
	bd.Block.Insert(v, false)
	return v
}

// Immediate materialises a constant of the given type and value.
func (bd *Builder) Immediate(t ast.Type, value int64) *Value {
	v := bd.alloc(OpImmediate, t)
	v.ImmValue = value
	return bd.insert(v)
}

// LiteralInt materialises an `<integer_literal>`-typed constant, distinct
// from Immediate in that its type has not yet been resolved to a concrete
// integer width (spec.md §4.2's distinguished literal primitive).
func (bd *Builder) LiteralInt(value int64) *Value {
	v := bd.alloc(OpLiteralInt, ast.TIntLit)
	v.ImmValue = value
	return bd.insert(v)
}

// LiteralString materialises an interned string literal.
func (bd *Builder) LiteralString(s string) *Value {
	v := bd.alloc(OpLiteralString, &ast.ArrayType{Elem: ast.TChar, Count: len(s) + 1})
	v.StrValue = s
	return bd.insert(v)
}

// pointee returns the type addr points to, or nil if unknown (used so
// Load's result type follows spec.md §4.1: "type is pointee(addr->type) if
// known").
func pointee(t ast.Type) ast.Type {
	switch v := t.(type) {
	case *ast.PointerType:
		return v.Elem
	case *ast.ReferenceType:
		return v.Elem
	}
	return nil
}

// Load reads through addr.
func (bd *Builder) Load(addr *Value) *Value {
	v := bd.alloc(OpLoad, pointee(addr.Type))
	v.AddArg(addr)
	return bd.insert(v)
}

// Store writes value through addr; always void.
func (bd *Builder) Store(addr, value *Value) *Value {
	v := bd.alloc(OpStore, ast.TVoid)
	v.AddArg(addr)
	v.AddArg(value)
	return bd.insert(v)
}

// Branch is an unconditional terminator to dest.
func (bd *Builder) Branch(dest *Block) *Value {
	v := bd.alloc(OpBranch, ast.TVoid)
	v.Dest = dest
	bd.Block.WireTo(dest)
	return bd.insert(v)
}

// BranchCond is a two-way conditional terminator.
func (bd *Builder) BranchCond(cond *Value, then, els *Block) *Value {
	v := bd.alloc(OpBranchCond, ast.TVoid)
	v.AddArg(cond)
	v.Then, v.Else = then, els
	bd.Block.WireTo(then)
	bd.Block.WireTo(els)
	return bd.insert(v)
}

// Return is the terminator; value may be nil for a void return.
func (bd *Builder) Return(value *Value) *Value {
	v := bd.alloc(OpReturn, ast.TVoid)
	if value != nil {
		v.AddArg(value)
	}
	return bd.insert(v)
}

// Phi creates an empty phi of type t; edges are added with PhiAddArgument.
func (bd *Builder) Phi(t ast.Type) *Value {
	v := bd.alloc(OpPhi, t)
	return bd.insert(v)
}

// PhiAddArgument appends a (pred, value) edge to phi.
func (bd *Builder) PhiAddArgument(phi *Value, pred *Block, value *Value) {
	diag.Assert(phi.Op == OpPhi, "PhiAddArgument: v%d is not a phi", phi.Id)
	phi.AddPhiOperand(pred, value)
}

// PhiRemoveArgument removes the edge for pred from phi.
func (bd *Builder) PhiRemoveArgument(phi *Value, pred *Block) {
	diag.Assert(phi.Op == OpPhi, "PhiRemoveArgument: v%d is not a phi", phi.Id)
	phi.RemovePhiOperand(pred)
}

// DirectCall begins a call to callee; append arguments with AddCallArg,
// then Insert it explicitly (spec.md §4.1: "not inserted until explicit
// insert").
func (bd *Builder) DirectCall(callee *Func, resultType ast.Type) *Value {
	v := bd.alloc(OpDirectCall, resultType)
	v.Callee = callee
	return v
}

// IndirectCall begins a call through a computed callee instruction.
func (bd *Builder) IndirectCall(callee *Value, resultType ast.Type) *Value {
	v := bd.alloc(OpIndirectCall, resultType)
	v.AddArg(callee)
	return v
}

// AddCallArg appends one argument to an uninserted call instruction.
func (bd *Builder) AddCallArg(call, arg *Value) {
	diag.Assert(call.Op == OpDirectCall || call.Op == OpIndirectCall, "AddCallArg on non-call")
	call.AddArg(arg)
}

// InsertCall performs the deferred insertion of a call built via
// DirectCall/IndirectCall + AddCallArg.
func (bd *Builder) InsertCall(call *Value) *Value { return bd.insert(call) }

var binOpTable = map[ast.BinOp]Op{
	ast.BAdd: OpAdd, ast.BSub: OpSub, ast.BMul: OpMul, ast.BDiv: OpDiv, ast.BMod: OpMod,
	ast.BShl: OpShl, ast.BSar: OpSar, ast.BShr: OpShr, ast.BAnd: OpAnd, ast.BOr: OpOr, ast.BXor: OpXor,
	ast.BLt: OpLt, ast.BLe: OpLe, ast.BGt: OpGt, ast.BGe: OpGe, ast.BEq: OpEq, ast.BNe: OpNe,
}

// BinOp builds the arithmetic/comparison/logical/shift binary instruction
// corresponding to op (spec.md §4.1's listed binop family).
func (bd *Builder) BinOp(op ast.BinOp, lhs, rhs *Value, resultType ast.Type) *Value {
	irOp, ok := binOpTable[op]
	diag.Assert(ok, "BinOp: unsupported ast.BinOp %v", op)
	v := bd.alloc(irOp, resultType)
	v.AddArg(lhs)
	v.AddArg(rhs)
	return bd.insert(v)
}

// Not builds a logical/bitwise negation.
func (bd *Builder) Not(operand *Value) *Value {
	v := bd.alloc(OpNot, operand.Type)
	v.AddArg(operand)
	return bd.insert(v)
}

// Copy builds a value-preserving copy, used by ISel lowering to collapse
// phis (spec.md §4.5).
func (bd *Builder) Copy(src *Value) *Value {
	v := bd.alloc(OpCopy, src.Type)
	v.AddArg(src)
	return bd.insert(v)
}

// StaticReference takes a reference to a static variable. Per the open
// question in spec.md §9 (resolved in SPEC_FULL.md §9 in favour of
// "earlier lowering"), a reference to an array-typed static decays to a
// pointer-to-element here, once, rather than being special-cased later in
// the encoder.
func (bd *Builder) StaticReference(sv *StaticVar) *Value {
	t := ast.Type(&ast.PointerType{Elem: sv.Type})
	if arr, ok := sv.Type.(*ast.ArrayType); ok {
		t = &ast.PointerType{Elem: arr.Elem}
	}
	v := bd.alloc(OpStaticRef, t)
	v.Static = sv
	sv.Referenced = true
	sv.Refs = append(sv.Refs, v)
	return bd.insert(v)
}

// CreateStatic allocates a new static variable owned by the caller
// (typically the codegen Context, spec.md §3) and returns a reference to
// it in one step.
func CreateStatic(decl ast.Node, t ast.Type, name string) *StaticVar {
	return &StaticVar{Name: name, Type: t, Decl: decl}
}

// FuncReference takes a reference to a function.
func (bd *Builder) FuncReference(fn *Func) *Value {
	v := bd.alloc(OpFuncRef, &ast.PointerType{Elem: fn.Type})
	v.Func = fn
	return bd.insert(v)
}

// StackAllocate reserves stack storage for a value of type t and returns
// its address.
func (bd *Builder) StackAllocate(t ast.Type) *Value {
	v := bd.alloc(OpStackAlloc, &ast.PointerType{Elem: t})
	v.AllocSize = ast.Sizeof(t)
	return bd.insert(v)
}

// Parameter retrieves the pre-created i-th parameter of the current
// function.
func (bd *Builder) Parameter(index int) *Value {
	diag.Assert(index >= 0 && index < len(bd.Func.Params), "parameter index %d out of range", index)
	return bd.Func.Params[index]
}

// AddParameterToFunction grows the function's parameter list by one
// OpParameter instruction of type t, returning it.
func (bd *Builder) AddParameterToFunction(t ast.Type) *Value {
	v := &Value{Id: bd.Func.nextValue(), Op: OpParameter, Type: t, ParamIndex: len(bd.Func.Params)}
	bd.Func.Params = append(bd.Func.Params, v)
	return v
}

// Register materialises a reference to a fixed physical register, used by
// lowering passes that must hand the IR a concrete machine register (e.g.
// division's RAX:RDX convention) before ISel runs.
func (bd *Builder) Register(physReg int, t ast.Type) *Value {
	v := bd.alloc(OpRegister, t)
	v.PhysReg = physReg
	return bd.insert(v)
}

// Unreachable builds the unreachable terminator.
func (bd *Builder) Unreachable() *Value {
	return bd.insert(bd.alloc(OpUnreachable, ast.TVoid))
}

// SetIds renumbers every instruction across every function in fns
// (spec.md §4.1 "set_ids").
func SetIds(fns []*Func) {
	for _, f := range fns {
		SetFuncIds(f)
	}
}
