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
	"github.com/nyxlang/nyxc/object"
)

// Mem is an x86-64 memory operand, general enough to express every
// addressing special case spec.md §4.6 names: a plain [base+disp],
// [base+index*scale+disp], and RIP-relative [rip+disp32] against a named
// symbol.
type Mem struct {
	HasBase  bool
	Base     Reg
	HasIndex bool
	Index    Reg
	Scale    int // 1, 2, 4, 8
	Disp     int32
	RIP      bool
	Symbol   string // set when RIP is true, or for a direct absolute reloc
}

// Encoder assembles MIR instructions into bytes inside a
// *object.GenericObjectFile, the single emission surface named by spec.md
// §4.6. Grounded structurally on the teacher's asm_x86.go Assembler
// struct (scratch registers, per-mnemonic helper methods, prologue/
// epilogue convention) with the actual opcode bytes computed instead of
// printed as text.
type Encoder struct {
	Obj  *object.GenericObjectFile
	Conv CallingConvention
}

// NewEncoder creates an encoder writing into obj under calling convention
// cc.
func NewEncoder(obj *object.GenericObjectFile, cc CallingConvention) *Encoder {
	return &Encoder{Obj: obj, Conv: cc}
}

func (e *Encoder) emit(b ...byte) {
	for _, x := range b {
		e.Obj.MCode1(x)
	}
}

// rex builds and — if non-trivial, or forced — emits a REX prefix. w
// selects REX.W (64-bit operand size); r/x/b are the top bits of
// ModRM.reg / SIB.index / ModRM.rm (or the opcode's embedded register)
// respectively. force is set for the SIL/DIL/BPL/SPL 8-bit low-byte case,
// which needs an explicit REX even though none of W/R/X/B would
// otherwise be set (spec.md §4.6).
func (e *Encoder) rex(w, r, x, b, force bool) {
	if !w && !r && !x && !b && !force {
		return
	}
	var byteVal byte = 0x40
	if w {
		byteVal |= 0x08
	}
	if r {
		byteVal |= 0x04
	}
	if x {
		byteVal |= 0x02
	}
	if b {
		byteVal |= 0x01
	}
	e.emit(byteVal)
}

func modrm(mod, reg, rm byte) byte {
	return (mod&0x3)<<6 | (reg&0x7)<<3 | (rm & 0x7)
}

func sib(scale, index, base byte) byte {
	return (scale&0x3)<<6 | (index&0x7)<<3 | (base & 0x7)
}

func scaleBits(scale int) byte {
	switch scale {
	case 1:
		return 0
	case 2:
		return 1
	case 4:
		return 2
	case 8:
		return 3
	}
	diag.ICE("invalid SIB scale %d", scale)
	return 0
}

// encodeRegOperand writes the ModRM byte (and nothing else) for a
// register-direct rm operand, mod=11.
func (e *Encoder) encodeRegOperand(regField byte, rm Reg) {
	e.emit(modrm(0b11, regField, rm.Bits()))
}

// encodeMemOperand writes ModRM (+ SIB + displacement) for a memory
// operand, reproducing the three special cases spec.md §4.6 calls out
// exactly:
//  1. RBP/R13 base at zero displacement forces mod=01, disp8=0.
//  2. R12/RSP base with mod != 11 forces a SIB byte (scale=0, index=0b100
//     "none", base=regbits(base)).
//  3. RIP-relative uses mod=00, rm=0b101, and a 32-bit displacement
//     carried by a PC-relative relocation rather than a literal value.
func (e *Encoder) encodeMemOperand(regField byte, m Mem) {
	if m.RIP {
		e.emit(modrm(0b00, regField, 0b101))
		e.Obj.AddRelocation(object.RelDisp32PCRel, m.Symbol, int64(m.Disp))
		e.emit(0, 0, 0, 0) // placeholder, patched by the linker/loader
		return
	}

	needsSIB := m.HasIndex || m.Base == RSP || m.Base == R12
	base := m.Base

	// Special case 1: RBP/R13 base at zero displacement must still carry
	// an explicit disp8=0 — mod=00 with rm=101 would otherwise be
	// mistaken for RIP-relative addressing.
	forceDisp8Zero := !needsSIB && m.Disp == 0 && (base == RBP || base == R13)

	var mod byte
	switch {
	case forceDisp8Zero:
		mod = 0b01
	case m.Disp == 0 && !forceZeroDispException(base, needsSIB):
		mod = 0b00
	case fitsInt8(m.Disp):
		mod = 0b01
	default:
		mod = 0b10
	}

	rmField := base.Bits()
	if needsSIB {
		rmField = 0b100 // SIB follows
	}
	e.emit(modrm(mod, regField, rmField))

	if needsSIB {
		var indexBits byte = 0b100 // "none"
		scale := byte(0)
		if m.HasIndex {
			indexBits = m.Index.Bits()
			scale = scaleBits(m.Scale)
		}
		e.emit(sib(scale, indexBits, base.Bits()))
	}

	switch mod {
	case 0b01:
		e.emit(byte(int8(m.Disp)))
	case 0b10:
		e.emitImm32(uint32(m.Disp))
	}
}

// forceZeroDispException additionally forces a real disp8/disp32 to be
// emitted (instead of omitting displacement) for RBP/R13 bases even when
// a SIB byte is present with base=RBP/R13, mirroring special case 1's
// rationale for any addressing form whose rm-or-SIB-base field encodes to
// 0b101.
func forceZeroDispException(base Reg, needsSIB bool) bool {
	return needsSIB && (base == RBP || base == R13)
}

func fitsInt8(v int32) bool { return v >= -128 && v <= 127 }

func (e *Encoder) emitImm32(v uint32) {
	e.emit(byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (e *Encoder) emitImm64(v uint64) {
	for i := 0; i < 8; i++ {
		e.emit(byte(v >> (8 * uint(i))))
	}
}

// --- MOV ---------------------------------------------------------------

// MovRegReg emits `mov dst, src` for equal-sized registers.
func (e *Encoder) MovRegReg(dst, src Reg, size Size) {
	e.rexForRR(size, src, dst)
	opcode := byte(0x89) // MOV r/m, r (dst is r/m, src is reg field)
	if size == Size8 {
		opcode = 0x88
	}
	e.emit(opcode)
	e.encodeRegOperand(src.Bits(), dst)
}

func (e *Encoder) rexForRR(size Size, regField, rm Reg) {
	e.rex(size.NeedsREXW(), regField.NeedsREXExtension(), false, rm.NeedsREXExtension(),
		size == Size8 && (RequiresRexForLowByte(regField) || RequiresRexForLowByte(rm)))
}

// MovRegImm emits `mov dst, imm`. Per spec.md §4.6: `B8+rd` for a true
// 64-bit immediate; `B8+rd id` for the 32-bit form when the immediate
// fits in i32 (implicit zero-extension clears the upper 32 bits, so no
// REX.W or sign-extending C7 /0 is needed for that case).
func (e *Encoder) MovRegImm(dst Reg, size Size, imm int64) {
	if size == Size64 && (imm < -(1<<31) || imm > (1<<31)-1) {
		e.rex(true, false, false, dst.NeedsREXExtension(), false)
		e.emit(0xB8 + dst.Bits())
		e.emitImm64(uint64(imm))
		return
	}
	if size == Size8 {
		e.rex(false, false, false, dst.NeedsREXExtension(), RequiresRexForLowByte(dst))
		e.emit(0xB0 + dst.Bits())
		e.emit(byte(imm))
		return
	}
	// Size16/Size32, and Size64 values that fit in i32: B8+rd with a
	// 32-bit immediate (no REX.W — zero-extension does the rest).
	e.rex(false, false, false, dst.NeedsREXExtension(), false)
	e.emit(0xB8 + dst.Bits())
	e.emitImm32(uint32(int32(imm)))
}

// MovMemImm emits `mov [mem], imm` via the `C6/C7 /0` form.
func (e *Encoder) MovMemImm(m Mem, size Size, imm int32) {
	e.rexForMem(size, 0, m)
	if size == Size8 {
		e.emit(0xC6)
	} else {
		e.emit(0xC7)
	}
	e.encodeMemOperand(0, m)
	if size == Size8 {
		e.emit(byte(imm))
	} else {
		e.emitImm32(uint32(imm))
	}
}

func (e *Encoder) rexForMem(size Size, regField byte, m Mem) {
	b := m.HasBase && m.Base.NeedsREXExtension()
	x := m.HasIndex && m.Index.NeedsREXExtension()
	r := regField >= 8
	e.rex(size.NeedsREXW(), r, x, b, false)
}

// MovMemReg emits `mov [mem], src` (reg -> mem).
func (e *Encoder) MovMemReg(m Mem, src Reg, size Size) {
	e.rexForMem(size, byte(src), m)
	opcode := byte(0x89)
	if size == Size8 {
		opcode = 0x88
	}
	e.emit(opcode)
	e.encodeMemOperand(src.Bits(), m)
}

// MovRegMem emits `mov dst, [mem]` (mem -> reg).
func (e *Encoder) MovRegMem(dst Reg, m Mem, size Size) {
	e.rexForMem(size, byte(dst), m)
	opcode := byte(0x8B)
	if size == Size8 {
		opcode = 0x8A
	}
	e.emit(opcode)
	e.encodeMemOperand(dst.Bits(), m)
}

// Lea emits `lea dst, [mem]`, most commonly used for RIP-relative
// static/function references (spec.md §4.6, §4.5).
func (e *Encoder) Lea(dst Reg, m Mem) {
	e.rexForMem(Size64, byte(dst), m)
	e.emit(0x8D)
	e.encodeMemOperand(dst.Bits(), m)
}

// --- ALU reg,imm family (ADD/SUB/AND/OR/CMP) ----------------------------

var aluImmExt = map[string]byte{"add": 0, "or": 1, "and": 4, "sub": 5, "cmp": 7, "xor": 6}

// AluRegImm emits `<mnemonic> dst, imm` via the 81/83 /n family,
// selecting the short `83 /n ib` sign-extended form when imm fits in a
// signed byte (spec.md §4.6).
func (e *Encoder) AluRegImm(mnemonic string, dst Reg, size Size, imm int32) {
	ext, ok := aluImmExt[mnemonic]
	diag.Assert(ok, "unsupported ALU reg,imm mnemonic %q", mnemonic)
	e.rex(size.NeedsREXW(), false, false, dst.NeedsREXExtension(), size == Size8 && RequiresRexForLowByte(dst))
	if size != Size8 && fitsInt8(imm) {
		e.emit(0x83)
		e.encodeRegOperand(ext, dst)
		e.emit(byte(int8(imm)))
		return
	}
	if size == Size8 {
		e.emit(0x80)
		e.encodeRegOperand(ext, dst)
		e.emit(byte(imm))
		return
	}
	e.emit(0x81)
	e.encodeRegOperand(ext, dst)
	e.emitImm32(uint32(imm))
}

// AluRegReg emits `<mnemonic> dst, src` two-operand register form.
func (e *Encoder) AluRegReg(mnemonic string, dst, src Reg, size Size) {
	opcodes := map[string]byte{"add": 0x01, "or": 0x09, "and": 0x21, "sub": 0x29, "xor": 0x31, "cmp": 0x39, "test": 0x85}
	op, ok := opcodes[mnemonic]
	diag.Assert(ok, "unsupported ALU reg,reg mnemonic %q", mnemonic)
	e.rexForRR(size, src, dst)
	e.emit(op)
	e.encodeRegOperand(src.Bits(), dst)
}

// ImulRegImm emits `imul dst, dst, imm` via the `69 /r id` form, always
// with a 32-bit immediate.
func (e *Encoder) ImulRegImm(dst Reg, size Size, imm int32) {
	e.rexForRR(size, dst, dst)
	e.emit(0x69)
	e.encodeRegOperand(dst.Bits(), dst)
	e.emitImm32(uint32(imm))
}

// ImulRegReg emits the two-operand `0F AF /r` form.
func (e *Encoder) ImulRegReg(dst, src Reg, size Size) {
	e.rexForRR(size, dst, src)
	e.emit(0x0F, 0xAF)
	e.encodeRegOperand(dst.Bits(), src)
}

// --- shifts (D2/D3 /n with implicit %cl) --------------------------------

var shiftExt = map[string]byte{"shl": 4, "sal": 4, "shr": 5, "sar": 7}

// ShiftByCL emits a shift whose count is the non-constant value already
// loaded into CL (spec.md §4.6: "Shifts with a non-constant count use
// D2/D3 /n with implicit %cl").
func (e *Encoder) ShiftByCL(mnemonic string, dst Reg, size Size) {
	ext, ok := shiftExt[mnemonic]
	diag.Assert(ok, "unsupported shift mnemonic %q", mnemonic)
	e.rex(size.NeedsREXW(), false, false, dst.NeedsREXExtension(), false)
	opcode := byte(0xD3)
	if size == Size8 {
		opcode = 0xD2
	}
	e.emit(opcode)
	e.encodeRegOperand(ext, dst)
}

// ShiftByImm emits a constant-count shift via the `C0/C1 /n ib` form.
func (e *Encoder) ShiftByImm(mnemonic string, dst Reg, size Size, count byte) {
	ext, ok := shiftExt[mnemonic]
	diag.Assert(ok, "unsupported shift mnemonic %q", mnemonic)
	e.rex(size.NeedsREXW(), false, false, dst.NeedsREXExtension(), false)
	opcode := byte(0xC1)
	if size == Size8 {
		opcode = 0xC0
	}
	e.emit(opcode)
	e.encodeRegOperand(ext, dst)
	e.emit(count)
}

// --- division ------------------------------------------------------------

// Cqo/Cdq/Cwd sign-extend the accumulator into the high half of the
// dividend before IDIV, per width (spec.md §4.6).
func (e *Encoder) Cqo() { e.rex(true, false, false, false, false); e.emit(0x99) }
func (e *Encoder) Cdq() { e.emit(0x99) }
func (e *Encoder) Cwd() { e.emit(0x66, 0x99) }

// IDiv/Div emit the one-operand `F7 /7` (signed) / `F7 /6` (unsigned)
// forms; the caller is responsible for the RAX:RDX convention (CQO then
// IDIV) described in spec.md §4.6, scenario 4.
func (e *Encoder) IDiv(src Reg, size Size) { e.divForm(src, size, 7) }
func (e *Encoder) Div(src Reg, size Size)  { e.divForm(src, size, 6) }

func (e *Encoder) divForm(src Reg, size Size, ext byte) {
	e.rex(size.NeedsREXW(), false, false, src.NeedsREXExtension(), false)
	opcode := byte(0xF7)
	if size == Size8 {
		opcode = 0xF6
	}
	e.emit(opcode)
	e.encodeRegOperand(ext, src)
}

// Not emits the one-operand `F7 /2` form.
func (e *Encoder) Not(dst Reg, size Size) {
	e.rex(size.NeedsREXW(), false, false, dst.NeedsREXExtension(), false)
	opcode := byte(0xF7)
	if size == Size8 {
		opcode = 0xF6
	}
	e.emit(opcode)
	e.encodeRegOperand(2, dst)
}

// --- stack / control flow -------------------------------------------------

func (e *Encoder) Push(src Reg) {
	e.rex(false, false, false, src.NeedsREXExtension(), false)
	e.emit(0x50 + src.Bits())
}

func (e *Encoder) Pop(dst Reg) {
	e.rex(false, false, false, dst.NeedsREXExtension(), false)
	e.emit(0x58 + dst.Bits())
}

func (e *Encoder) PushImm32(imm int32) {
	e.emit(0x68)
	e.emitImm32(uint32(imm))
}

// CallRel32 emits `E8 rel32` against a named symbol, recording a
// DISP32-PCREL relocation (spec.md §4.6, §4.7 scenario 2).
func (e *Encoder) CallRel32(symbol string) {
	e.emit(0xE8)
	e.Obj.AddRelocation(object.RelDisp32PCRel, symbol, -4)
	e.emitImm32(0)
}

// CallReg emits an indirect call through a register, `FF /2`.
func (e *Encoder) CallReg(reg Reg) {
	e.rex(false, false, false, reg.NeedsREXExtension(), false)
	e.emit(0xFF)
	e.encodeRegOperand(2, reg)
}

// JmpRel32 emits unconditional `E9 rel32`.
func (e *Encoder) JmpRel32(symbol string) {
	e.emit(0xE9)
	e.Obj.AddRelocation(object.RelDisp32PCRel, symbol, -4)
	e.emitImm32(0)
}

// CondCode is the 4-bit condition-code field shared by Jcc/SETcc.
type CondCode byte

const (
	CcE  CondCode = 0x4
	CcNE CondCode = 0x5
	CcL  CondCode = 0xC
	CcGE CondCode = 0xD
	CcLE CondCode = 0xE
	CcG  CondCode = 0xF
)

// JccRel32 emits `0F 8x rel32`.
func (e *Encoder) JccRel32(cc CondCode, symbol string) {
	e.emit(0x0F, 0x80+byte(cc))
	e.Obj.AddRelocation(object.RelDisp32PCRel, symbol, -4)
	e.emitImm32(0)
}

// SetCC emits `0F 9x /0`, writing the condition flag as a byte into dst.
func (e *Encoder) SetCC(cc CondCode, dst Reg) {
	e.rex(false, false, false, dst.NeedsREXExtension(), RequiresRexForLowByte(dst))
	e.emit(0x0F, 0x90+byte(cc))
	e.encodeRegOperand(0, dst)
}

func (e *Encoder) Ret()      { e.emit(0xC3) }
func (e *Encoder) Syscall()  { e.emit(0x0F, 0x05) }
func (e *Encoder) Ud2()      { e.emit(0x0F, 0x0B) }
func (e *Encoder) Int3()     { e.emit(0xCC) }
func (e *Encoder) TestRegReg(a, b Reg, size Size) { e.AluRegReg("test", a, b, size) }

// MovzxRegReg/MovsxRegReg implement the zero/sign-extending move forms;
// spec.md §4.6 requires source_size < dest_size.
func (e *Encoder) MovzxRegReg(dst, src Reg, dstSize, srcSize Size) {
	diag.Assert(srcSize < dstSize, "movzx requires source_size < dest_size")
	e.rexForRR(dstSize, dst, src)
	if srcSize == Size8 {
		e.emit(0x0F, 0xB6)
	} else {
		e.emit(0x0F, 0xB7)
	}
	e.encodeRegOperand(dst.Bits(), src)
}

func (e *Encoder) MovsxRegReg(dst, src Reg, dstSize, srcSize Size) {
	diag.Assert(srcSize < dstSize, "movsx requires source_size < dest_size")
	e.rexForRR(dstSize, dst, src)
	if srcSize == Size8 {
		e.emit(0x0F, 0xBE)
	} else if srcSize == Size16 {
		e.emit(0x0F, 0xBF)
	} else {
		e.emit(0x63) // MOVSXD r64, r/m32
	}
	e.encodeRegOperand(dst.Bits(), src)
}

// XchgRegReg emits the `87 /r` exchange form.
func (e *Encoder) XchgRegReg(a, b Reg, size Size) {
	e.rexForRR(size, a, b)
	e.emit(0x87)
	e.encodeRegOperand(a.Bits(), b)
}
