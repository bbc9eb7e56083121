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

// Package ir is the SSA IR described in spec.md §3/§4.1: a CFG of typed
// instructions with intrusive block/instruction lists, users/uses
// maintenance, a builder, a dominator tree, an invariant verifier, and a
// textual printer/parser. Grounded on the teacher's compile/ssa/hir.go and
// compile/ssa/domtree.go (see DESIGN.md).
package ir

import (
	"fmt"
	"strings"

	"github.com/nyxlang/nyxc/ast"
	"github.com/nyxlang/nyxc/diag"
)

// Op enumerates IR opcodes. The opcode alone selects which payload fields
// of Value are meaningful (spec.md §9 "tagged union payloads").
type Op int

const (
	OpImmediate Op = iota
	OpLiteralInt
	OpLiteralString
	OpLoad
	OpStore
	OpBranch
	OpBranchCond
	OpReturn
	OpPhi
	OpDirectCall
	OpIndirectCall
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpShl
	OpSar
	OpShr
	OpAnd
	OpOr
	OpXor
	OpLt
	OpLe
	OpGt
	OpGe
	OpEq
	OpNe
	OpNot
	OpCopy
	OpStaticRef
	OpFuncRef
	OpStackAlloc
	OpParameter
	OpRegister
	OpUnreachable
)

var opNames = map[Op]string{
	OpImmediate: "imm", OpLiteralInt: "litint", OpLiteralString: "litstr",
	OpLoad: "load", OpStore: "store", OpBranch: "br", OpBranchCond: "brcond",
	OpReturn: "ret", OpPhi: "phi", OpDirectCall: "call", OpIndirectCall: "icall",
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpMod: "mod",
	OpShl: "shl", OpSar: "sar", OpShr: "shr", OpAnd: "and", OpOr: "or", OpXor: "xor",
	OpLt: "lt", OpLe: "le", OpGt: "gt", OpGe: "ge", OpEq: "eq", OpNe: "ne",
	OpNot: "not", OpCopy: "copy", OpStaticRef: "staticref", OpFuncRef: "funcref",
	OpStackAlloc: "alloca", OpParameter: "param", OpRegister: "reg",
	OpUnreachable: "unreachable",
}

func (op Op) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// IsTerminator reports whether op closes a block (spec.md §3 instruction
// invariant: "Block has exactly one terminator, always last").
func (op Op) IsTerminator() bool {
	switch op {
	case OpBranch, OpBranchCond, OpReturn, OpUnreachable:
		return true
	}
	return false
}

// PhiEdge is one (predecessor block, value) pair of a phi (spec.md §3).
type PhiEdge struct {
	Pred  *Block
	Value *Value
}

// StaticVar is the spec.md §3 "Static variable": name, type, owning AST
// declaration, references, optional initialiser, linkage, and a
// referenced flag.
type StaticVar struct {
	Name       string
	Type       ast.Type
	Decl       ast.Node
	Refs       []*Value
	Init       *Value // literal-int or literal-string instruction, or nil
	Extern     bool   // external linkage
	Referenced bool
}

// Value is an SSA instruction. Its Op selects the meaningful payload
// fields below, per spec.md §3's opcode payload variant list.
type Value struct {
	Id    int
	Index int // position within its block, set by renumbering
	Op    Op
	Type  ast.Type

	Block *Block
	prev  *Value
	next  *Value

	// generic operand list: for binary this is [lhs, rhs]; for unary
	// [operand]; for load [addr]; for store [addr, value]; for
	// direct/indirect call [callee?, args...].
	Args []*Value

	Uses     []*Value            // users of this value (spec.md §3)
	UseBlock map[*Value][]*Block // for phi users, which pred-block edge(s) reference this value

	// immediate / literal payloads
	ImmValue  int64
	StrValue  string
	StrSymbol string // interned symbol name for literal strings

	// branch / conditional-branch payloads
	Dest *Block
	Then *Block
	Else *Block

	// phi payload
	PhiEdges []PhiEdge

	// call payload
	Callee    *Function // direct-call target; nil for indirect
	IsIndirect bool
	TailCall   bool

	// static/func reference payload
	Static *StaticVar
	Func   *Function

	// stack-allocation payload
	AllocSize   int
	AllocOffset int

	// physical-register payload (IR_REGISTER)
	PhysReg int

	// parameter payload
	ParamIndex int

	MI interface{} // pointer to the corresponding MIR instruction, opaque here
}

func (v *Value) String() string {
	switch v.Op {
	case OpImmediate, OpLiteralInt:
		return fmt.Sprintf("%%%d = %s %s %d", v.Id, v.Op, typ(v.Type), v.ImmValue)
	case OpLiteralString:
		return fmt.Sprintf("%%%d = %s %q", v.Id, v.Op, v.StrValue)
	case OpLoad:
		return fmt.Sprintf("%%%d = %s %s", v.Id, v.Op, ref(v.Args[0]))
	case OpStore:
		return fmt.Sprintf("%s %s, %s", v.Op, ref(v.Args[0]), ref(v.Args[1]))
	case OpBranch:
		return fmt.Sprintf("%s bb%d", v.Op, v.Dest.Id)
	case OpBranchCond:
		return fmt.Sprintf("%s %s, bb%d, bb%d", v.Op, ref(v.Args[0]), v.Then.Id, v.Else.Id)
	case OpReturn:
		if len(v.Args) == 0 {
			return v.Op.String()
		}
		return fmt.Sprintf("%s %s", v.Op, ref(v.Args[0]))
	case OpPhi:
		parts := make([]string, len(v.PhiEdges))
		for i, e := range v.PhiEdges {
			parts[i] = fmt.Sprintf("[bb%d: %s]", e.Pred.Id, ref(e.Value))
		}
		return fmt.Sprintf("%%%d = %s %s", v.Id, v.Op, strings.Join(parts, ", "))
	case OpDirectCall, OpIndirectCall:
		name := ""
		if v.Op == OpDirectCall {
			name = v.Callee.Name
		} else {
			name = ref(v.Args[0])
		}
		args := v.Args
		if v.Op == OpIndirectCall {
			args = args[1:]
		}
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = ref(a)
		}
		return fmt.Sprintf("%%%d = %s %s(%s)", v.Id, v.Op, name, strings.Join(parts, ", "))
	case OpNot:
		return fmt.Sprintf("%%%d = %s %s", v.Id, v.Op, ref(v.Args[0]))
	case OpCopy:
		return fmt.Sprintf("%%%d = %s %s", v.Id, v.Op, ref(v.Args[0]))
	case OpStaticRef:
		return fmt.Sprintf("%%%d = %s @%s", v.Id, v.Op, v.Static.Name)
	case OpFuncRef:
		return fmt.Sprintf("%%%d = %s @%s", v.Id, v.Op, v.Func.Name)
	case OpStackAlloc:
		return fmt.Sprintf("%%%d = %s %s", v.Id, v.Op, typ(v.Type))
	case OpParameter:
		return fmt.Sprintf("%%%d = %s %d", v.Id, v.Op, v.ParamIndex)
	case OpRegister:
		return fmt.Sprintf("%%%d = %s r%d", v.Id, v.Op, v.PhysReg)
	case OpUnreachable:
		return v.Op.String()
	default:
		parts := make([]string, len(v.Args))
		for i, a := range v.Args {
			parts[i] = ref(a)
		}
		return fmt.Sprintf("%%%d = %s %s", v.Id, v.Op, strings.Join(parts, ", "))
	}
}

func ref(v *Value) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%%%d", v.Id)
}

func typ(t ast.Type) string {
	if t == nil {
		return "void"
	}
	return ast.Typename(t, false)
}

// AddArg appends operand to v.Args and marks v as a user of operand
// (spec.md §4.1 "user-set discipline").
func (v *Value) AddArg(operand *Value) {
	v.Args = append(v.Args, operand)
	operand.markUsedBy(v)
}

func (v *Value) markUsedBy(user *Value) {
	for _, u := range v.Uses {
		if u == user {
			return
		}
	}
	v.Uses = append(v.Uses, user)
}

// ReplaceUses rewrites every user of old to reference newVal instead,
// visiting each operand slot (spec.md §4.1).
func ReplaceUses(old, newVal *Value) {
	for _, user := range append([]*Value(nil), old.Uses...) {
		for i, a := range user.Args {
			if a == old {
				user.Args[i] = newVal
			}
		}
		for i := range user.PhiEdges {
			if user.PhiEdges[i].Value == old {
				user.PhiEdges[i].Value = newVal
			}
		}
		newVal.markUsedBy(user)
	}
	old.Uses = nil
}

// RemoveUse detaches user from operand's Uses list (spec.md §4.1
// "remove_use ... symmetrically detach").
func (operand *Value) RemoveUse(user *Value) {
	for i, u := range operand.Uses {
		if u == user {
			operand.Uses = append(operand.Uses[:i], operand.Uses[i+1:]...)
			return
		}
	}
}

// UnmarkUsees removes v from the Uses list of every operand it references,
// the inverse of AddArg — used when detaching v from the IR (spec.md
// §4.1).
func (v *Value) UnmarkUsees() {
	for _, a := range v.Args {
		a.RemoveUse(v)
	}
	for _, e := range v.PhiEdges {
		if e.Value != nil {
			e.Value.RemoveUse(v)
		}
	}
}

// ForEachChild iterates every operand edge of v, including call arguments
// and phi values, invoking cb with a setter closure so passes can rewrite
// the edge in place (spec.md §4.1 "for_each_child").
func (v *Value) ForEachChild(cb func(child *Value, set func(*Value))) {
	for i := range v.Args {
		i := i
		cb(v.Args[i], func(nv *Value) { v.Args[i] = nv })
	}
	for i := range v.PhiEdges {
		i := i
		cb(v.PhiEdges[i].Value, func(nv *Value) { v.PhiEdges[i].Value = nv })
	}
}

// AddPhiOperand appends a new (pred, value) edge to a phi and records the
// use-block relationship.
func (v *Value) AddPhiOperand(pred *Block, val *Value) {
	diag.Assert(v.Op == OpPhi, "AddPhiOperand on non-phi value")
	v.PhiEdges = append(v.PhiEdges, PhiEdge{Pred: pred, Value: val})
	val.markUsedBy(v)
}

// RemovePhiOperand removes the edge for pred (spec.md §8 "Phi arity:
// removing a CFG edge removes the matching phi argument").
func (v *Value) RemovePhiOperand(pred *Block) {
	for i, e := range v.PhiEdges {
		if e.Pred == pred {
			e.Value.RemoveUse(v)
			v.PhiEdges = append(v.PhiEdges[:i], v.PhiEdges[i+1:]...)
			return
		}
	}
}
