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
	"github.com/nyxlang/nyxc/mir"
	"github.com/nyxlang/nyxc/regalloc"
)

// MachineDescription builds the regalloc.MachineDescription for cc
// (spec.md §6 register-allocator contract): the allocatable register set,
// RBP/RSP excluded, plus the per-instruction interference mask — shifts
// clobber RCX, division clobbers RAX and RDX, calls clobber the ABI's
// caller-saved set.
func MachineDescription(cc CallingConvention) *regalloc.MachineDescription {
	abi := ABIFor(cc)

	var regs []mir.VReg
	for _, r := range AllocatableRegisters {
		regs = append(regs, r.VReg())
	}
	var argRegs []mir.VReg
	for _, r := range abi.IntArgRegs {
		argRegs = append(argRegs, r.VReg())
	}

	return &regalloc.MachineDescription{
		Registers:       regs,
		Scratch:         []mir.VReg{scratchA.VReg(), scratchB.VReg()},
		ArgRegs:         argRegs,
		ResultReg:       abi.ReturnReg.VReg(),
		MaxPhysRegister: mir.VReg(RegCount - 1),
		Interference:    func(in *mir.Instruction) []mir.VReg { return interferenceFor(in, abi) },
	}
}

func interferenceFor(in *mir.Instruction, abi ABI) []mir.VReg {
	switch in.Op {
	case mir.MDiv, mir.MMod:
		return []mir.VReg{RAX.VReg(), RDX.VReg()}
	case mir.MShl, mir.MShr, mir.MSar:
		if in.Args[1].Kind != mir.OperandImmediate {
			return []mir.VReg{RCX.VReg()}
		}
	case mir.MCall:
		var clobbered []mir.VReg
		for _, r := range abi.CallerSaved {
			clobbered = append(clobbered, r.VReg())
		}
		return clobbered
	}
	return nil
}
