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

// Package x86 is the x86-64 encoder from spec.md §4.6: register classes,
// REX/ModRM/SIB assembly, addressing special cases, relocations, the
// supported opcode/form matrix, prologue/epilogue frame kinds, calling
// conventions, and name mangling. Grounded structurally on the teacher's
// compile/codegen/arch_x86.go and asm_x86.go (see DESIGN.md); the actual
// byte-level encoding is new, since the teacher emits assembler text, not
// machine code.
package x86

import "github.com/nyxlang/nyxc/mir"

// Reg is a physical x86-64 general-purpose register, encoded by a 4-bit
// value (regbits); the top bit becomes REX.B/REX.R/REX.X depending on
// which ModRM/SIB field it occupies (spec.md §4.6).
type Reg int

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	RegCount
)

var regNames = [RegCount]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

func (r Reg) String() string { return regNames[r] }

// Bits returns the low three bits of the register encoding (regbits); the
// caller is responsible for carrying bit 3 into the appropriate REX field.
func (r Reg) Bits() byte { return byte(r) & 0x7 }

// NeedsREXExtension reports whether r requires the top REX bit (R8-R15).
func (r Reg) NeedsREXExtension() bool { return r >= R8 }

// VReg converts a physical Reg into the mir.VReg numbering (physical
// registers are the vreg ids below mir.VRegMin).
func (r Reg) VReg() mir.VReg { return mir.VReg(r) }

// RegFromVReg converts a physical mir.VReg back to a Reg, panicking if v
// is virtual.
func RegFromVReg(v mir.VReg) Reg {
	if v.IsVirtual() {
		panic("x86.RegFromVReg: virtual register has no physical encoding")
	}
	return Reg(v)
}

// Size is an access width in bytes: 1 (r8), 2 (r16), 4 (r32), 8 (r64).
type Size int

const (
	Size8  Size = 1
	Size16 Size = 2
	Size32 Size = 4
	Size64 Size = 8
)

// NeedsOperandSizePrefix reports whether s requires the 0x66 prefix.
func (s Size) NeedsOperandSizePrefix() bool { return s == Size16 }

// NeedsREXW reports whether s requires REX.W (64-bit operand size).
func (s Size) NeedsREXW() bool { return s == Size64 }

// RequiresRexForLowByte reports whether an 8-bit access to r needs an
// explicit REX prefix to select the SIL/DIL/BPL/SPL low-byte encoding
// rather than the legacy AH/BH/CH/DH high-byte encoding (spec.md §4.6).
func RequiresRexForLowByte(r Reg) bool {
	return r == RSI || r == RDI || r == RBP || r == RSP
}

// CallingConvention selects the ABI the encoder targets (spec.md §4.6:
// "Two are supported: MSWIN and LINUX"). Unlike the teacher's
// arch_x86.go, which branches on runtime.GOOS, this is an explicit
// parameter threaded through from compiler.Options (spec.md §6).
type CallingConvention int

const (
	ConvLinux CallingConvention = iota
	ConvMSWin
)

// ABI is the per-convention register tables spec.md §6 requires: ordered
// argument registers, caller-saved set, callee-saved set.
type ABI struct {
	IntArgRegs   []Reg
	FloatArgRegs []Reg // XMM0..XMMn, represented here by index only
	CallerSaved  []Reg
	CalleeSaved  []Reg
	ReturnReg    Reg
}

var linuxABI = ABI{
	IntArgRegs:   []Reg{RDI, RSI, RDX, RCX, R8, R9},
	FloatArgRegs: []Reg{0, 1, 2, 3, 4, 5, 6, 7},
	CallerSaved:  []Reg{RAX, RCX, RDX, RSI, RDI, R8, R9, R10, R11},
	CalleeSaved:  []Reg{RBX, RBP, R12, R13, R14, R15},
	ReturnReg:    RAX,
}

var mswinABI = ABI{
	IntArgRegs:   []Reg{RCX, RDX, R8, R9},
	FloatArgRegs: []Reg{0, 1, 2, 3},
	CallerSaved:  []Reg{RAX, RCX, RDX, R8, R9, R10, R11},
	CalleeSaved:  []Reg{RBX, RBP, RDI, RSI, R12, R13, R14, R15},
	ReturnReg:    RAX,
}

// ABIFor returns the register tables for cc.
func ABIFor(cc CallingConvention) ABI {
	if cc == ConvMSWin {
		return mswinABI
	}
	return linuxABI
}

// ArgReg returns the idx-th integer argument register for cc and true, or
// (0, false) if idx exceeds the ABI's register-passed argument count (callers must then
// fall back to the stack-argument path, which is the open question
// resolved as an explicit unimplemented arm — see DESIGN.md and
// SPEC_FULL.md §9).
func ArgReg(cc CallingConvention, idx int) (Reg, bool) {
	regs := ABIFor(cc).IntArgRegs
	if idx < 0 || idx >= len(regs) {
		return 0, false
	}
	return regs[idx], true
}

// AllGPRegisters lists every general-purpose register in encoding order.
// The register allocator's MachineDescription uses AllocatableRegisters
// instead.
var AllGPRegisters = []Reg{RAX, RCX, RDX, RBX, RSP, RBP, RSI, RDI, R8, R9, R10, R11, R12, R13, R14, R15}

// AllocatableRegisters excludes RSP/RBP, which are reserved for the frame
// pointer and stack pointer rather than available to the allocator.
var AllocatableRegisters = []Reg{RAX, RCX, RDX, RBX, RSI, RDI, R8, R9, R10, R11, R12, R13, R14, R15}
