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

// Package regalloc defines the register-allocator contract from spec.md
// §6 (a stated external collaborator) and a concrete linear-scan
// implementation that satisfies it, grounded on the teacher's
// compile/codegen/lsra*.go (Wimmer et al., "Linear Scan Register
// Allocation for the Java HotSpot Client Compiler").
package regalloc

import "github.com/nyxlang/nyxc/mir"

// MachineDescription is the allocator's view of the target, per spec.md
// §6: an ordered register set, a scratch-register subset, an ordered
// argument-register set per calling convention, a designated result
// register, and a per-instruction interference mask.
type MachineDescription struct {
	Registers       []mir.VReg // ordered physical register set
	Scratch         []mir.VReg // subset reserved as scratch
	ArgRegs         []mir.VReg // ordered argument-register list for the active calling convention
	ResultReg       mir.VReg
	MaxPhysRegister mir.VReg

	// Interference returns the set of physical registers an instruction
	// clobbers as a side effect invisible at the MIR level (e.g. shifts
	// clobber RCX, division clobbers RAX/RDX, calls clobber RAX + the
	// caller-saved set).
	Interference func(in *mir.Instruction) []mir.VReg
}

// Result is what the allocator reports back for prologue/epilogue
// decisions (spec.md §6: "report registers actually used").
type Result struct {
	UsedRegisters map[mir.VReg]bool
	SpillCount    int
	// SpillSlots maps each spilled virtual register to a slot index,
	// letting the encoder (codegen/x86) materialise a frame-relative
	// memory operand for it instead of a physical register.
	SpillSlots map[mir.VReg]int
}

// Allocator replaces every vreg >= mir.VRegMin in fn with a physical
// register <= the machine description's max, honouring clobbers and
// spilling when register pressure demands it; spilled vregs stay virtual
// and their slot indices are reported in Result.SpillSlots.
type Allocator interface {
	Allocate(fn *mir.Function, md *MachineDescription) (*Result, error)
}
