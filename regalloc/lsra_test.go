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
package regalloc_test

import (
	"testing"

	"github.com/nyxlang/nyxc/mir"
	"github.com/nyxlang/nyxc/regalloc"
	"github.com/stretchr/testify/require"
)

// tinyMachine describes a target with only two allocatable registers, so
// a function with more simultaneously-live values is forced to spill —
// the scenario rewrite()'s spill-materialisation comment is grounded on.
func tinyMachine() *regalloc.MachineDescription {
	return &regalloc.MachineDescription{
		Registers:       []mir.VReg{0, 1},
		Scratch:         []mir.VReg{1},
		ArgRegs:         []mir.VReg{0},
		ResultReg:       0,
		MaxPhysRegister: 1,
		Interference:    func(*mir.Instruction) []mir.VReg { return nil },
	}
}

func TestAllocateNoSpillWithinCapacity(t *testing.T) {
	md := tinyMachine()
	fn := mir.NewFunction("small")
	b := fn.NewBlock()
	v1 := fn.NewVReg()
	b.Append(mir.NewInstruction(mir.MImm, v1, mir.Imm(1)))
	b.Append(mir.NewInstruction(mir.MReturn, mir.VRegInvalid, mir.Reg(v1, 8)))

	a := regalloc.NewLSRA(md)
	res, err := a.Allocate(fn, md)
	require.NoError(t, err)
	require.Empty(t, res.SpillSlots)
}

func TestAllocateSpillsUnderPressure(t *testing.T) {
	md := tinyMachine()
	fn := mir.NewFunction("pressured")
	b := fn.NewBlock()

	// Three values simultaneously live (v3 depends on both v1 and v2,
	// each produced well before the only free register slack runs out)
	// against a two-register machine forces at least one spill.
	v1 := fn.NewVReg()
	v2 := fn.NewVReg()
	v3 := fn.NewVReg()
	v4 := fn.NewVReg()
	b.Append(mir.NewInstruction(mir.MImm, v1, mir.Imm(1)))
	b.Append(mir.NewInstruction(mir.MImm, v2, mir.Imm(2)))
	b.Append(mir.NewInstruction(mir.MImm, v3, mir.Imm(3)))
	b.Append(mir.NewInstruction(mir.MAdd, v4, mir.Reg(v1, 8), mir.Reg(v2, 8)))
	v5 := fn.NewVReg()
	b.Append(mir.NewInstruction(mir.MAdd, v5, mir.Reg(v4, 8), mir.Reg(v3, 8)))
	b.Append(mir.NewInstruction(mir.MReturn, mir.VRegInvalid, mir.Reg(v5, 8)))

	a := regalloc.NewLSRA(md)
	res, err := a.Allocate(fn, md)
	require.NoError(t, err)
	require.Positive(t, res.SpillCount)
	require.NotEmpty(t, res.SpillSlots)
}
