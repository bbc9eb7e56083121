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
	"github.com/nyxlang/nyxc/diag"
	"github.com/nyxlang/nyxc/mir"
	"github.com/nyxlang/nyxc/object"
)

// scratchA/scratchB are the two registers the assembler borrows to
// rematerialise a spilled operand for the duration of one instruction.
// Neither is a calling-convention argument register, so borrowing them
// never clobbers a live call argument mid-sequence.
const (
	scratchA = R10
	scratchB = R11
)

// AssembleFunction encodes fn — already register-allocated by regalloc,
// with spilled vregs left virtual and named in spills — into obj's code
// section, mirroring the teacher's asm_x86.go per-function emission
// driver, generalised from assembler text to raw machine code (spec.md
// §4.6). makesCalls and calleeSaved drive the FrameKind/prologue choice;
// the caller (compiler.Run) derives them from the function's MIR.
func AssembleFunction(obj *object.GenericObjectFile, cc CallingConvention, fn *mir.Function, spills map[mir.VReg]int, calleeSaved []Reg, makesCalls bool) {
	locals := explicitLocalsSize(fn)
	spillBytes := len(spills) * 8
	frameBytes := locals + spillBytes

	a := &asmCtx{
		obj:    obj,
		e:      NewEncoder(obj, cc),
		cc:     cc,
		fn:     fn,
		spills: spills,
		locals: locals,
	}

	obj.AddSymbol(&object.Symbol{Kind: object.SymFunction, Name: fn.Name, Section: obj.CodeSection().Name, Offset: obj.CodeOffset()})

	kind := SelectFrameKind(frameBytes, makesCalls)
	a.kind = kind
	a.frameSize = a.e.EmitPrologue(kind, frameBytes, calleeSaved)
	a.calleeSaved = calleeSaved

	lp := NewLabelPatcher()
	for _, b := range fn.Blocks {
		lp.Mark(obj, LocalLabelName(fn, b))
		for _, in := range b.Instructions {
			a.assemble(in)
		}
	}
	lp.Patch(obj)
}

// explicitLocalsSize totals fn's declared frame objects (stack allocas),
// not counting register-allocator spill slots, which are sized/offset
// separately since they're not known until after allocation.
func explicitLocalsSize(fn *mir.Function) int {
	n := 0
	for _, fo := range fn.Frame {
		n += fo.Size
	}
	return n
}

type asmCtx struct {
	obj         *object.GenericObjectFile
	e           *Encoder
	cc          CallingConvention
	fn          *mir.Function
	spills      map[mir.VReg]int
	locals      int
	kind        FrameKind
	frameSize   int
	calleeSaved []Reg
}

// spillMem returns the RBP-relative addressing operand for the slot-th
// spilled vreg, stacked below the function's own explicit locals.
func (a *asmCtx) spillMem(slot int) Mem {
	off := -(int32(a.locals) + int32(slot+1)*8)
	return Mem{HasBase: true, Base: RBP, Disp: off}
}

func sizeOfBytes(n int) Size {
	switch {
	case n <= 1:
		return Size8
	case n <= 2:
		return Size16
	case n <= 4:
		return Size32
	default:
		return Size64
	}
}

func opSize(op mir.Operand) Size {
	if op.Kind == mir.OperandRegister || op.Kind == mir.OperandImmediate {
		return sizeOfBytes(op.SizeByte)
	}
	return Size64
}

// loadInto materialises op into dst, handling every operand kind the
// lowering pass produces (spec.md §4.5's "recursively materialising
// operands", mirrored here on the decode side).
func (a *asmCtx) loadInto(dst Reg, op mir.Operand, size Size) {
	switch op.Kind {
	case mir.OperandImmediate:
		a.e.MovRegImm(dst, size, op.ImmValue)
	case mir.OperandRegister:
		src := a.resolveReg(op, dst)
		if src != dst {
			a.e.MovRegReg(dst, src, size)
		}
	case mir.OperandStaticRef, mir.OperandFuncRef:
		a.e.Lea(dst, Mem{RIP: true, Symbol: op.SymbolName})
		if op.Kind == mir.OperandFuncRef && op.IsExternal {
			a.ensureExternal(op.SymbolName)
		}
	case mir.OperandPoison, mir.OperandNone:
		// Intentionally left undefined; no bytes need emitting.
	default:
		diag.ICE("x86: cannot materialise operand kind %d into a register", op.Kind)
	}
}

// resolveReg returns the physical register holding op, loading it from
// its spill slot into scratch first if op names a spilled vreg.
func (a *asmCtx) resolveReg(op mir.Operand, scratch Reg) Reg {
	if !op.Reg.IsVirtual() {
		return RegFromVReg(op.Reg)
	}
	slot, ok := a.spills[op.Reg]
	diag.Assert(ok, "unresolved virtual register %s reached the encoder", op.Reg)
	a.e.MovRegMem(scratch, a.spillMem(slot), sizeOfBytes(op.SizeByte))
	return scratch
}

// commitResult moves the computed value (currently held in reg) into
// result's assigned physical register when the two differ, or stores it
// back to result's spill slot if result is a spilled vreg.
func (a *asmCtx) commitResult(result mir.VReg, reg Reg, size Size) {
	if result == mir.VRegInvalid {
		return
	}
	if !result.IsVirtual() {
		if dst := RegFromVReg(result); dst != reg {
			a.e.MovRegReg(dst, reg, size)
		}
		return
	}
	slot, ok := a.spills[result]
	diag.Assert(ok, "unresolved virtual result register %s reached the encoder", result)
	a.e.MovMemReg(a.spillMem(slot), reg, size)
}

// resultReg returns the physical register an instruction with this
// result vreg should compute into: its own assigned register, or a
// scratch register when it is spilled (commitResult writes scratch back
// to the slot afterwards).
func (a *asmCtx) resultReg(result mir.VReg) Reg {
	if result == mir.VRegInvalid {
		return scratchA
	}
	if !result.IsVirtual() {
		return RegFromVReg(result)
	}
	return scratchA
}

func (a *asmCtx) ensureExternal(name string) {
	for _, s := range a.obj.Symbols {
		if s.Name == name {
			return
		}
	}
	a.obj.AddSymbol(&object.Symbol{Kind: object.SymExternal, Name: name})
}

var condForOp = map[mir.Op]CondCode{
	mir.MLt: CcL, mir.MLe: CcLE, mir.MGt: CcG, mir.MGe: CcGE, mir.MEq: CcE, mir.MNe: CcNE,
}

var aluMnemonic = map[mir.Op]string{
	mir.MAdd: "add", mir.MSub: "sub", mir.MAnd: "and", mir.MOr: "or", mir.MXor: "xor",
}

var shiftMnemonic = map[mir.Op]string{
	mir.MShl: "shl", mir.MShr: "shr", mir.MSar: "sar",
}

// assemble encodes one MIR instruction. Grounded on the teacher's
// asm_x86.go lowerValue-to-text dispatch, generalised to emit bytes and
// to fix up spilled operands via the scratch registers above.
func (a *asmCtx) assemble(in *mir.Instruction) {
	switch in.Op {
	case mir.MImm:
		dst := a.resultReg(in.Result)
		size := sizeOfBytes(in.Args[0].SizeByte)
		a.e.MovRegImm(dst, size, in.Args[0].ImmValue)
		a.commitResult(in.Result, dst, size)

	case mir.MCopy:
		dst := a.resultReg(in.Result)
		size := sizeOfBytes(in.Args[0].SizeByte)
		if in.Args[0].Kind != mir.OperandRegister {
			size = Size64
		}
		a.loadInto(dst, in.Args[0], size)
		a.commitResult(in.Result, dst, size)

	case mir.MNot:
		dst := a.resultReg(in.Result)
		size := opSize(in.Args[0])
		a.loadInto(dst, in.Args[0], size)
		a.e.Not(dst, size)
		a.commitResult(in.Result, dst, size)

	case mir.MAdd, mir.MSub, mir.MAnd, mir.MOr, mir.MXor:
		a.assembleAlu(in)

	case mir.MMul:
		a.assembleMul(in)

	case mir.MDiv, mir.MMod:
		a.assembleDivMod(in)

	case mir.MShl, mir.MShr, mir.MSar:
		a.assembleShift(in)

	case mir.MLt, mir.MLe, mir.MGt, mir.MGe, mir.MEq, mir.MNe:
		a.assembleCompare(in)

	case mir.MLoad:
		dst := a.resultReg(in.Result)
		addr := a.resolveReg(in.Args[0], scratchB)
		size := Size64
		a.e.MovRegMem(dst, Mem{HasBase: true, Base: addr}, size)
		a.commitResult(in.Result, dst, size)

	case mir.MStore:
		addr := a.resolveReg(in.Args[0], scratchA)
		val := a.resolveReg(in.Args[1], scratchB)
		a.e.MovMemReg(Mem{HasBase: true, Base: addr}, val, opSize(in.Args[1]))

	case mir.MBranch:
		a.e.JmpRel32(LocalLabelName(a.fn, in.Args[0].Target))

	case mir.MBranchCond:
		cond := a.resolveReg(in.Args[0], scratchA)
		size := opSize(in.Args[0])
		a.e.TestRegReg(cond, cond, size)
		a.e.JccRel32(CcE, LocalLabelName(a.fn, in.Args[2].Target))
		a.e.JmpRel32(LocalLabelName(a.fn, in.Args[1].Target))

	case mir.MReturn:
		if in.Args[0].Kind != mir.OperandNone {
			a.loadInto(ABIFor(a.cc).ReturnReg, in.Args[0], opSize(in.Args[0]))
		}
		a.e.EmitEpilogue(a.kind, a.frameSize, a.calleeSaved)

	case mir.MCall:
		a.assembleCall(in)

	default:
		diag.ICE("x86: no encoding for MIR opcode %s", in.Op)
	}
}

func (a *asmCtx) assembleAlu(in *mir.Instruction) {
	size := opSize(in.Args[0])
	dst := a.resultReg(in.Result)
	a.loadInto(dst, in.Args[0], size)
	mnem := aluMnemonic[in.Op]
	if in.Args[1].Kind == mir.OperandImmediate {
		a.e.AluRegImm(mnem, dst, size, int32(in.Args[1].ImmValue))
	} else {
		rhs := a.resolveReg(in.Args[1], scratchB)
		a.e.AluRegReg(mnem, dst, rhs, size)
	}
	a.commitResult(in.Result, dst, size)
}

func (a *asmCtx) assembleMul(in *mir.Instruction) {
	size := opSize(in.Args[0])
	dst := a.resultReg(in.Result)
	a.loadInto(dst, in.Args[0], size)
	if in.Args[1].Kind == mir.OperandImmediate {
		a.e.ImulRegImm(dst, size, int32(in.Args[1].ImmValue))
	} else {
		rhs := a.resolveReg(in.Args[1], scratchB)
		a.e.ImulRegReg(dst, rhs, size)
	}
	a.commitResult(in.Result, dst, size)
}

// assembleDivMod implements spec.md §8 scenario 4: numerator into RAX,
// sign-extend with CQO/CDQ/CWD, IDIV the divisor, quotient in RAX,
// remainder in RDX. The divisor is never placed in RAX/RDX since those
// are reserved by regalloc's interference mask for this instruction.
func (a *asmCtx) assembleDivMod(in *mir.Instruction) {
	size := opSize(in.Args[0])
	a.loadInto(RAX, in.Args[0], size)
	switch size {
	case Size64:
		a.e.Cqo()
	case Size32:
		a.e.Cdq()
	default:
		a.e.Cwd()
	}
	divisor := a.resolveReg(in.Args[1], scratchB)
	a.e.IDiv(divisor, size)
	result := RAX
	if in.Op == mir.MMod {
		result = RDX
	}
	a.commitResult(in.Result, result, size)
}

// assembleShift moves the shift count into CL unconditionally (spec.md
// §4.6 "shifts clobber RCX"), rather than trusting the allocator placed
// it there, since a register-to-register shift always implicitly reads
// CL regardless of what regalloc assigned the count's vreg.
func (a *asmCtx) assembleShift(in *mir.Instruction) {
	size := opSize(in.Args[0])
	dst := a.resultReg(in.Result)
	a.loadInto(dst, in.Args[0], size)
	mnem := shiftMnemonic[in.Op]
	if in.Args[1].Kind == mir.OperandImmediate {
		a.e.ShiftByImm(mnem, dst, size, byte(in.Args[1].ImmValue))
	} else {
		a.loadInto(RCX, in.Args[1], size)
		a.e.ShiftByCL(mnem, dst, size)
	}
	a.commitResult(in.Result, dst, size)
}

func (a *asmCtx) assembleCompare(in *mir.Instruction) {
	size := opSize(in.Args[0])
	lhs := a.resolveReg(in.Args[0], scratchA)
	if in.Args[1].Kind == mir.OperandImmediate {
		a.e.AluRegImm("cmp", lhs, size, int32(in.Args[1].ImmValue))
	} else {
		rhs := a.resolveReg(in.Args[1], scratchB)
		a.e.AluRegReg("cmp", lhs, rhs, size)
	}
	dst := a.resultReg(in.Result)
	a.e.SetCC(condForOp[in.Op], dst)
	a.e.MovzxRegReg(dst, dst, Size32, Size8)
	a.commitResult(in.Result, dst, Size32)
}

// assembleCall implements the MCall shape lowerCall produces: either
// three inline operands (callee, up to two args) or a bundle operand
// whose first element is the callee (spec.md §4.5/§4.6).
func (a *asmCtx) assembleCall(in *mir.Instruction) {
	var ops []mir.Operand
	if in.Args[0].Kind == mir.OperandBundle {
		ops = in.Args[0].Bundle
	} else {
		for _, op := range in.Args {
			if op.Kind != mir.OperandNone {
				ops = append(ops, op)
			}
		}
	}
	callee := ops[0]
	args := ops[1:]

	CheckCallArity(a.cc, len(args))
	abi := ABIFor(a.cc)
	for i, arg := range args {
		reg, _ := ArgReg(a.cc, i)
		a.loadInto(reg, arg, Size64)
	}

	switch callee.Kind {
	case mir.OperandFuncRef:
		if callee.IsExternal {
			a.ensureExternal(callee.SymbolName)
		}
		a.e.CallRel32(callee.SymbolName)
	default:
		reg := a.resolveReg(callee, scratchA)
		a.e.CallReg(reg)
	}

	a.commitResult(in.Result, abi.ReturnReg, Size64)
}
