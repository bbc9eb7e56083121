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

// Encoder tests cross-check every emitted instruction against
// golang.org/x/arch/x86/x86asm, the disassembly oracle named in
// SPEC_FULL.md §4.6: if the oracle can't decode what the encoder wrote,
// the encoding is wrong regardless of what the unit test otherwise
// asserts.
package x86_test

import (
	"testing"

	"github.com/nyxlang/nyxc/codegen/x86"
	"github.com/nyxlang/nyxc/object"
	"github.com/stretchr/testify/require"
	"golang.org/x/arch/x86/x86asm"
)

func newEncoder() (*x86.Encoder, *object.GenericObjectFile) {
	obj := object.New()
	return x86.NewEncoder(obj, x86.ConvLinux), obj
}

func decodeAll(t *testing.T, code []byte) []x86asm.Inst {
	t.Helper()
	var insts []x86asm.Inst
	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], 64)
		require.NoErrorf(t, err, "undecodable byte sequence at offset %d: % x", off, code[off:])
		insts = append(insts, inst)
		off += inst.Len
	}
	return insts
}

func TestMovRegImmDecodesCleanly(t *testing.T) {
	e, obj := newEncoder()
	e.MovRegImm(x86.RAX, x86.Size64, 42)
	insts := decodeAll(t, obj.CodeSection().Data)
	require.Len(t, insts, 1)
	require.Equal(t, x86asm.MOV, insts[0].Op)
}

func TestAluRegRegDecodesCleanly(t *testing.T) {
	e, obj := newEncoder()
	e.MovRegImm(x86.RAX, x86.Size32, 10)
	e.MovRegImm(x86.RCX, x86.Size32, 32)
	e.AluRegReg("add", x86.RAX, x86.RCX, x86.Size32)
	e.Ret()
	insts := decodeAll(t, obj.CodeSection().Data)
	require.Len(t, insts, 4)
	require.Equal(t, x86asm.ADD, insts[2].Op)
	require.Equal(t, x86asm.RET, insts[3].Op)
}

func TestImulAndShiftDecodeCleanly(t *testing.T) {
	e, obj := newEncoder()
	e.ImulRegImm(x86.RAX, x86.Size64, 3)
	e.MovRegImm(x86.RCX, x86.Size8, 2)
	e.ShiftByCL("shl", x86.RAX, x86.Size64)
	insts := decodeAll(t, obj.CodeSection().Data)
	require.Len(t, insts, 3)
	require.Equal(t, x86asm.IMUL, insts[0].Op)
	require.Equal(t, x86asm.SHL, insts[2].Op)
}

func TestDivSequenceDecodesCleanly(t *testing.T) {
	e, obj := newEncoder()
	e.MovRegImm(x86.RAX, x86.Size32, 10)
	e.Cdq()
	e.MovRegImm(x86.RCX, x86.Size32, 3)
	e.IDiv(x86.RCX, x86.Size32)
	insts := decodeAll(t, obj.CodeSection().Data)
	require.Len(t, insts, 4)
	require.Equal(t, x86asm.CDQ, insts[1].Op)
	require.Equal(t, x86asm.IDIV, insts[3].Op)
}

func TestMemoryOperandsDecodeCleanly(t *testing.T) {
	e, obj := newEncoder()
	mem := x86.Mem{HasBase: true, Base: x86.RBP, Disp: -8}
	e.MovMemReg(mem, x86.RAX, x86.Size64)
	e.MovRegMem(x86.RCX, mem, x86.Size64)
	insts := decodeAll(t, obj.CodeSection().Data)
	require.Len(t, insts, 2)
	require.Equal(t, x86asm.MOV, insts[0].Op)
	require.Equal(t, x86asm.MOV, insts[1].Op)
}

// TestSIBForcedRegistersDecodeCleanly covers the R12/RSP-as-base special
// case (spec.md §4.6): using RSP as a memory base always requires an
// explicit SIB byte, as R12 does.
func TestSIBForcedRegistersDecodeCleanly(t *testing.T) {
	e, obj := newEncoder()
	mem := x86.Mem{HasBase: true, Base: x86.RSP, Disp: 16}
	e.MovRegMem(x86.RAX, mem, x86.Size64)
	insts := decodeAll(t, obj.CodeSection().Data)
	require.Len(t, insts, 1)
	require.Equal(t, x86asm.MOV, insts[0].Op)
}

func TestSetCCAndMovzxDecodeCleanly(t *testing.T) {
	e, obj := newEncoder()
	e.AluRegReg("cmp", x86.RAX, x86.RCX, x86.Size32)
	e.SetCC(x86.CcL, x86.RDX)
	e.MovzxRegReg(x86.RDX, x86.RDX, x86.Size32, x86.Size8)
	insts := decodeAll(t, obj.CodeSection().Data)
	require.Len(t, insts, 3)
	require.Equal(t, x86asm.CMP, insts[0].Op)
	require.Equal(t, x86asm.SETL, insts[1].Op)
	require.Equal(t, x86asm.MOVZX, insts[2].Op)
}
