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
package isel

import (
	"github.com/nyxlang/nyxc/ast"
	"github.com/nyxlang/nyxc/diag"
	"github.com/nyxlang/nyxc/ir"
	"github.com/nyxlang/nyxc/mir"
)

// LowerResult pairs the produced MIR function with the side-tables the
// encoder needs but that don't fit a plain mir.Operand: which IR values
// became stack-frame objects.
type LowerResult struct {
	Func  *mir.Function
	Slots map[*ir.Value]int // OpStackAlloc value -> frame-object index
}

// Lowerer drives IR->MIR lowering: at each instruction it first offers the
// ISel DSL matcher a chance to absorb a multi-instruction pattern (spec.md
// §4.4), falling back to the direct one-to-one mapping from spec.md §4.5
// whenever nothing in the table matches. Grounded on the teacher's
// compile/codegen/lower_x86.go lowerBlock/lowerValue traversal for control
// flow, generalised to also consult a Matcher first.
type Lowerer struct {
	Matcher *Matcher
}

// NewLowerer creates a lowerer using t (may be an empty table, in which
// case every instruction falls through to the one-to-one mapping).
func NewLowerer(t *Table) *Lowerer {
	if t == nil {
		t = NewTable(nil)
	}
	return &Lowerer{Matcher: NewMatcher(t)}
}

type lowerState struct {
	mfn      *mir.Function
	blockOf  map[*ir.Block]*mir.Block
	vregOf   map[*ir.Value]mir.VReg
	slotOf   map[*ir.Value]int
	consumed map[*ir.Value]bool
}

// Lower lowers one IR function to MIR.
func (lw *Lowerer) Lower(fn *ir.Func) *LowerResult {
	st := &lowerState{
		mfn:      mir.NewFunction(fn.Name),
		blockOf:  map[*ir.Block]*mir.Block{},
		vregOf:   map[*ir.Value]mir.VReg{},
		slotOf:   map[*ir.Value]int{},
		consumed: map[*ir.Value]bool{},
	}

	for _, b := range fn.Blocks() {
		st.blockOf[b] = st.mfn.NewBlock()
	}

	// Reserve a vreg for every phi up front so cross-block copies can
	// target it before the phi's own block is visited (spec.md §4.5:
	// "the copy's output vreg is aliased to the phi's reserved vreg").
	for _, b := range fn.Blocks() {
		for v := b.First(); v != nil; v = ir.Next(v) {
			if v.Op == ir.OpPhi {
				st.vregOf[v] = st.mfn.NewVReg()
			}
		}
	}

	for _, b := range fn.Blocks() {
		mb := st.blockOf[b]
		for v := b.First(); v != nil; v = ir.Next(v) {
			if st.consumed[v] {
				continue
			}
			if mt := lw.Matcher.TryMatch(v); mt != nil {
				lw.emitMatch(st, mb, mt)
				continue
			}
			lowerOne(st, mb, v)
		}
		// Emit phi-resolving copies at the end of this block for every
		// phi anywhere in a successor that takes its value from here.
		for _, succ := range b.Succs {
			for sv := succ.First(); sv != nil; sv = ir.Next(sv) {
				if sv.Op != ir.OpPhi {
					continue
				}
				for _, e := range sv.PhiEdges {
					if e.Pred == b {
						mb.Append(mir.NewInstruction(mir.MCopy, st.vregOf[sv], operandOf(st, e.Value)))
					}
				}
			}
		}
	}

	return &LowerResult{Func: st.mfn, Slots: st.slotOf}
}

// emitMatch appends the rule's declared `emit` results, resolving each
// emit-op against the match's bindings, and marks every consumed IR value
// so the main loop skips it (spec.md §4.4: "the matched IR instructions
// are detached... discard omits the emit step"). Only consumed values that
// come after the current instruction in block order are skipped: an
// operand-defining instruction that precedes the lead (the EQ under
// core.isel's NOT rule) has already been lowered one-to-one, and its MIR
// stays in the block.
func (lw *Lowerer) emitMatch(st *lowerState, mb *mir.Block, mt *Match) {
	for _, v := range mt.Consumed {
		st.consumed[v] = true
	}
	lead := mt.Consumed[0]
	for _, res := range mt.Rule.Results {
		if res.Discard {
			continue
		}
		op := resolveTargetOp(res.Instr)
		result := mir.VRegInvalid
		if res.Instr != "" {
			result = st.vreg(lead)
		}
		var args []mir.Operand
		for _, eo := range res.Ops {
			args = append(args, resolveEmitOp(st, mt, eo, lead))
		}
		mb.Append(mir.NewInstruction(op, result, args...))
	}
}

// resolveTargetOp maps an emitted mnemonic to a mir.Op. Only generic
// opcodes are reachable here; target-specific mnemonics (MOV, IMUL, ...)
// belong to a backend-owned rule file and are resolved by the codegen/x86
// table builder, not this package (spec.md §4.5 vs §4.6 boundary).
func resolveTargetOp(name string) mir.Op {
	for op, n := range genericOpNames {
		if n == name {
			return op
		}
	}
	diag.ICE("isel: emit of unknown generic mnemonic %q", name)
	return mir.MImm
}

var genericOpNames = map[mir.Op]string{
	mir.MImm: "M_IMM", mir.MCall: "M_CALL", mir.MLoad: "M_LOAD", mir.MStore: "M_STORE",
	mir.MReturn: "M_RETURN", mir.MBranch: "M_BRANCH", mir.MBranchCond: "M_BRANCH_COND",
	mir.MCopy: "M_COPY", mir.MNot: "M_NOT", mir.MAdd: "M_ADD", mir.MSub: "M_SUB",
	mir.MMul: "M_MUL", mir.MDiv: "M_DIV", mir.MMod: "M_MOD", mir.MShl: "M_SHL",
	mir.MSar: "M_SAR", mir.MShr: "M_SHR", mir.MAnd: "M_AND", mir.MOr: "M_OR", mir.MXor: "M_XOR",
	mir.MLt: "M_LT", mir.MLe: "M_LE", mir.MGt: "M_GT", mir.MGe: "M_GE", mir.MEq: "M_EQ", mir.MNe: "M_NE",
}

func resolveEmitOp(st *lowerState, mt *Match, eo EmitOp, lead *ir.Value) mir.Operand {
	switch {
	case eo.IsResult:
		return mir.Reg(st.vreg(lead), sizeOf(lead.Type))
	case eo.IsNumber:
		return mir.ImmSized(eo.Number, sizeOf(lead.Type))
	default:
		if b, ok := mt.Binds[eo.Ref]; ok {
			if b.isImm {
				return mir.ImmSized(b.imm, sizeOf(b.value.Type))
			}
			return operandOf(st, b.value)
		}
		diag.ICE("isel: emit references unbound name %q", eo.Ref)
		return mir.None
	}
}

func (st *lowerState) vreg(v *ir.Value) mir.VReg {
	if r, ok := st.vregOf[v]; ok {
		return r
	}
	r := st.mfn.NewVReg()
	st.vregOf[v] = r
	return r
}

func sizeOf(t ast.Type) int {
	if t == nil {
		return 8
	}
	switch ast.Sizeof(t) {
	case 1:
		return 1
	case 2:
		return 2
	case 4:
		return 4
	default:
		return 8
	}
}

// operandOf materialises v as a mir.Operand, recursively handling the
// "recursively materialising operands" clause of spec.md §4.5: immediates
// become M_IMM-compatible immediate operands, static/function references
// become named operands, and everything else becomes a register operand
// bound to v's vreg.
func operandOf(st *lowerState, v *ir.Value) mir.Operand {
	switch v.Op {
	case ir.OpImmediate, ir.OpLiteralInt:
		return mir.ImmSized(v.ImmValue, sizeOf(v.Type))
	case ir.OpStaticRef:
		return mir.StaticRef(v.Static.Name)
	case ir.OpFuncRef:
		return mir.FuncRef(v.Func.Name, v.Func.Attrs.Extern)
	case ir.OpRegister:
		return mir.Reg(mir.VReg(v.PhysReg), sizeOf(v.Type))
	default:
		return mir.Reg(st.vreg(v), sizeOf(v.Type))
	}
}

// lowerOne implements the direct, one-to-one mapping from spec.md §4.5 for
// a single IR instruction with no absorbing pattern.
func lowerOne(st *lowerState, mb *mir.Block, v *ir.Value) {
	switch v.Op {
	case ir.OpImmediate, ir.OpLiteralInt:
		mb.Append(mir.NewInstruction(mir.MImm, st.vreg(v), mir.ImmSized(v.ImmValue, sizeOf(v.Type))))

	case ir.OpLiteralString:
		// Materialised as a named static by an earlier data-layout pass;
		// by the time lowering runs, v.StrSymbol already names that
		// static, so this behaves like a static reference copy.
		mb.Append(mir.NewInstruction(mir.MCopy, st.vreg(v), mir.StaticRef(v.StrSymbol)))

	case ir.OpLoad:
		mb.Append(mir.NewInstruction(mir.MLoad, st.vreg(v), operandOf(st, v.Args[0])))

	case ir.OpStore:
		mb.Append(mir.NewInstruction(mir.MStore, mir.VRegInvalid, operandOf(st, v.Args[0]), operandOf(st, v.Args[1])))

	case ir.OpReturn:
		if len(v.Args) == 0 {
			mb.Append(mir.NewInstruction(mir.MReturn, mir.VRegInvalid))
		} else {
			mb.Append(mir.NewInstruction(mir.MReturn, mir.VRegInvalid, operandOf(st, v.Args[0])))
		}

	case ir.OpBranch:
		mb.Append(mir.NewInstruction(mir.MBranch, mir.VRegInvalid, mir.BlockRef(st.blockOf[v.Dest])))

	case ir.OpBranchCond:
		mb.Append(mir.NewInstruction(mir.MBranchCond, mir.VRegInvalid,
			operandOf(st, v.Args[0]), mir.BlockRef(st.blockOf[v.Then]), mir.BlockRef(st.blockOf[v.Else])))

	case ir.OpDirectCall, ir.OpIndirectCall:
		lowerCall(st, mb, v)

	case ir.OpCopy:
		mb.Append(mir.NewInstruction(mir.MCopy, st.vreg(v), operandOf(st, v.Args[0])))

	case ir.OpNot:
		mb.Append(mir.NewInstruction(mir.MNot, st.vreg(v), operandOf(st, v.Args[0])))

	case ir.OpStaticRef:
		mb.Append(mir.NewInstruction(mir.MCopy, st.vreg(v), mir.StaticRef(v.Static.Name)))

	case ir.OpFuncRef:
		mb.Append(mir.NewInstruction(mir.MCopy, st.vreg(v), mir.FuncRef(v.Func.Name, v.Func.Attrs.Extern)))

	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpMod, ir.OpShl, ir.OpSar, ir.OpShr,
		ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe, ir.OpEq, ir.OpNe:
		mb.Append(mir.NewInstruction(binOpTable[v.Op], st.vreg(v), operandOf(st, v.Args[0]), operandOf(st, v.Args[1])))

	case ir.OpStackAlloc:
		st.slotOf[v] = st.mfn.NewFrameObject(ast.Sizeof(v.Type))
		// The value's own vreg is never materialised as an instruction
		// result; its address is computed lazily by the encoder from
		// Slots[v] against the final frame layout.

	case ir.OpPhi, ir.OpParameter, ir.OpRegister, ir.OpUnreachable:
		// Handled earlier (phi vregs reserved up front and resolved via
		// the per-predecessor copies appended in Lower; parameters are
		// bound to ABI argument registers by the codegen frame builder;
		// physical-register values need no instruction; unreachable is a
		// terminal no-op) — spec.md §4.5.

	default:
		diag.ICE("isel: lowering not implemented for IR opcode %s", v.Op)
	}
}

var binOpTable = map[ir.Op]mir.Op{
	ir.OpAdd: mir.MAdd, ir.OpSub: mir.MSub, ir.OpMul: mir.MMul, ir.OpDiv: mir.MDiv,
	ir.OpMod: mir.MMod, ir.OpShl: mir.MShl, ir.OpSar: mir.MSar, ir.OpShr: mir.MShr,
	ir.OpAnd: mir.MAnd, ir.OpOr: mir.MOr, ir.OpXor: mir.MXor, ir.OpLt: mir.MLt,
	ir.OpLe: mir.MLe, ir.OpGt: mir.MGt, ir.OpGe: mir.MGe, ir.OpEq: mir.MEq, ir.OpNe: mir.MNe,
}

// lowerCall implements spec.md §4.5's call bullet: "M_CALL callee, args…
// (callee is register for indirect, function for direct). If argument
// count exceeds the three inline operand slots, a bundle operand holds
// the full vector; the first bundle element is the callee."
func lowerCall(st *lowerState, mb *mir.Block, v *ir.Value) {
	var callee mir.Operand
	var argVals []*ir.Value
	if v.Op == ir.OpDirectCall {
		callee = mir.FuncRef(v.Callee.Name, v.Callee.Attrs.Extern)
		argVals = v.Args
	} else {
		callee = operandOf(st, v.Args[0])
		argVals = v.Args[1:]
	}

	result := mir.VRegInvalid
	if v.Type != nil && !isVoid(v.Type) {
		result = st.vreg(v)
	}

	if len(argVals)+1 <= 3 {
		ops := []mir.Operand{callee}
		for _, a := range argVals {
			ops = append(ops, operandOf(st, a))
		}
		mb.Append(mir.NewInstruction(mir.MCall, result, ops...))
		return
	}

	bundle := make([]mir.Operand, 0, len(argVals)+1)
	bundle = append(bundle, callee)
	for _, a := range argVals {
		bundle = append(bundle, operandOf(st, a))
	}
	mb.Append(mir.NewInstruction(mir.MCall, result, mir.BundleOf(bundle...)))
}

func isVoid(t ast.Type) bool {
	p, ok := ast.Canonical(t).(*ast.PrimitiveType)
	return ok && p.IsVoid
}
