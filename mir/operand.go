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

// Package mir is the target-parametric machine IR from spec.md §3: VReg,
// Operand, Instruction, Block, Function. Grounded on the teacher's
// compile/codegen/lir.go (LIROp/Instruction/LIRType/IOperand family), with
// VReg generalised from the teacher's boolean Register.Virtual flag to
// the spec's numeric `>= VREG_MIN` scheme and a new Bundle operand variant
// added for variadic calls (see DESIGN.md).
package mir

import "fmt"

// VReg is a virtual-or-physical register id. Values >= VRegMin denote
// virtual registers; values below it denote physical registers; zero is
// invalid (spec.md §3 "VReg").
type VReg int

const (
	VRegInvalid VReg = 0
	VRegMin     VReg = 1024
)

// IsVirtual reports whether r is a virtual register.
func (r VReg) IsVirtual() bool { return r >= VRegMin }

// IsPhysical reports whether r denotes a physical register.
func (r VReg) IsPhysical() bool { return r > VRegInvalid && r < VRegMin }

func (r VReg) String() string {
	if r.IsVirtual() {
		return fmt.Sprintf("v%d", int(r))
	}
	if r == VRegInvalid {
		return "<invalid>"
	}
	return fmt.Sprintf("r%d", int(r))
}

// OperandKind tags the Operand variant (spec.md §3).
type OperandKind int

const (
	OperandNone OperandKind = iota
	OperandImmediate
	OperandRegister
	OperandFuncRef
	OperandStaticRef
	OperandBlock
	OperandPoison
	OperandBundle
)

// Operand is a MIR operand: a tagged variant over {none, immediate,
// register (vreg|physical + byte size), function-reference,
// static-reference, block, poison, bundle}. A bundle operand steals the
// instruction's three inline slots to point at a heap-allocated operand
// vector for variadic forms such as calls with more than two arguments
// (spec.md §3 "Bundle").
type Operand struct {
	Kind OperandKind

	// OperandImmediate
	ImmValue int64

	// OperandRegister
	Reg      VReg
	SizeByte int // 1, 2, 4, 8

	// OperandFuncRef / OperandStaticRef
	SymbolName string
	IsExternal bool

	// OperandBlock
	Target *Block

	// OperandBundle
	Bundle []Operand
}

// None is the canonical empty operand.
var None = Operand{Kind: OperandNone}

// Imm builds an immediate operand of unspecified (8-byte) width.
func Imm(v int64) Operand { return Operand{Kind: OperandImmediate, ImmValue: v} }

// ImmSized builds an immediate operand carrying the byte width its result
// register should be materialised at, so the encoder can pick the operand
// size the value's type actually needs instead of always widening to 8.
func ImmSized(v int64, size int) Operand {
	return Operand{Kind: OperandImmediate, ImmValue: v, SizeByte: size}
}

// Reg builds a register operand of the given byte size.
func Reg(r VReg, size int) Operand { return Operand{Kind: OperandRegister, Reg: r, SizeByte: size} }

// FuncRef builds a function-reference operand.
func FuncRef(name string, external bool) Operand {
	return Operand{Kind: OperandFuncRef, SymbolName: name, IsExternal: external}
}

// StaticRef builds a static-variable-reference operand.
func StaticRef(name string) Operand { return Operand{Kind: OperandStaticRef, SymbolName: name} }

// BlockRef builds a block-reference operand (branch targets).
func BlockRef(b *Block) Operand { return Operand{Kind: OperandBlock, Target: b} }

// Poison builds the poison operand used to fill unused slots without
// observable meaning.
func Poison() Operand { return Operand{Kind: OperandPoison} }

// BundleOf builds a bundle operand wrapping ops, used when an
// instruction's arity exceeds the three inline slots (spec.md §3).
func BundleOf(ops ...Operand) Operand { return Operand{Kind: OperandBundle, Bundle: ops} }

func (o Operand) String() string {
	switch o.Kind {
	case OperandNone:
		return "-"
	case OperandImmediate:
		return fmt.Sprintf("$%d", o.ImmValue)
	case OperandRegister:
		return fmt.Sprintf("%s:%d", o.Reg, o.SizeByte)
	case OperandFuncRef:
		return "@" + o.SymbolName
	case OperandStaticRef:
		return "@" + o.SymbolName
	case OperandBlock:
		if o.Target != nil {
			return fmt.Sprintf("bb%d", o.Target.Id)
		}
		return "bb?"
	case OperandPoison:
		return "<poison>"
	case OperandBundle:
		s := "("
		for i, e := range o.Bundle {
			if i > 0 {
				s += ", "
			}
			s += e.String()
		}
		return s + ")"
	}
	return "?"
}
