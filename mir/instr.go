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
package mir

import "fmt"

// Op is a MIR opcode: either one of the generic kinds below, produced
// directly by IR->MIR lowering (spec.md §4.5), or a target-specific
// opcode >= BackendFirst, owned by a codegen backend package (e.g.
// codegen/x86's MOV/LEA/IMUL/... family, spec.md §4.6).
type Op int

const (
	MImm Op = iota
	MCall
	MLoad
	MStore
	MReturn
	MBranch
	MBranchCond
	MCopy
	MNot
	MAdd
	MSub
	MMul
	MDiv
	MMod
	MShl
	MSar
	MShr
	MAnd
	MOr
	MXor
	MLt
	MLe
	MGt
	MGe
	MEq
	MNe

	// BackendFirst is the first id a target-specific backend may use for
	// its own opcodes (spec.md §3: "a target-specific one >=
	// MIR_BACKEND_FIRST").
	BackendFirst Op = 1000
)

var genericNames = map[Op]string{
	MImm: "M_IMM", MCall: "M_CALL", MLoad: "M_LOAD", MStore: "M_STORE",
	MReturn: "M_RETURN", MBranch: "M_BRANCH", MBranchCond: "M_BRANCH_COND",
	MCopy: "M_COPY", MNot: "M_NOT", MAdd: "M_ADD", MSub: "M_SUB", MMul: "M_MUL",
	MDiv: "M_DIV", MMod: "M_MOD", MShl: "M_SHL", MSar: "M_SAR", MShr: "M_SHR",
	MAnd: "M_AND", MOr: "M_OR", MXor: "M_XOR", MLt: "M_LT", MLe: "M_LE",
	MGt: "M_GT", MGe: "M_GE", MEq: "M_EQ", MNe: "M_NE",
}

func (op Op) String() string {
	if s, ok := genericNames[op]; ok {
		return s
	}
	if op >= BackendFirst {
		return fmt.Sprintf("backend(%d)", int(op))
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// IsGeneric reports whether op is one of the target-independent kinds
// lowering produces directly, as opposed to a backend-specific opcode
// produced later by ISel.
func (op Op) IsGeneric() bool { return op < BackendFirst }

// Instruction is one MIR instruction: an opcode, a result vreg (VRegInvalid
// for sinks — terminators, stores), and up to three inline operands. When
// arity exceeds three, a single Bundle operand in Args[0] holds the whole
// operand vector (spec.md §3).
type Instruction struct {
	Id      int
	Op      Op
	Result  VReg
	Args    [3]Operand
	Comment string
}

// NewInstruction builds an instruction with up to three operands filled
// in order; pass fewer than three and the rest default to None.
func NewInstruction(op Op, result VReg, args ...Operand) *Instruction {
	in := &Instruction{Op: op, Result: result}
	for i := 0; i < len(args) && i < 3; i++ {
		in.Args[i] = args[i]
	}
	return in
}

func (in *Instruction) String() string {
	s := ""
	if in.Result != VRegInvalid {
		s += fmt.Sprintf("%s = ", in.Result)
	}
	s += in.Op.String()
	for _, a := range in.Args {
		if a.Kind == OperandNone {
			continue
		}
		s += " " + a.String()
	}
	if in.Comment != "" {
		s += " ; " + in.Comment
	}
	return s
}
