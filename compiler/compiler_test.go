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

// Package compiler's tests drive the whole pipeline end to end via
// compiler.Run, covering the six scenarios spec.md §8 names: constant
// return, external call, conditional branch, division lowering, a stack
// frame, and ISel pattern absorption.
package compiler_test

import (
	"debug/elf"
	"os"
	"path/filepath"
	"testing"

	"github.com/nyxlang/nyxc/ast"
	"github.com/nyxlang/nyxc/codegen/x86"
	"github.com/nyxlang/nyxc/compiler"
	"github.com/nyxlang/nyxc/ir"
	"github.com/stretchr/testify/require"
	"golang.org/x/arch/x86/x86asm"
)

var s32 = &ast.IntegerType{Width: 32, Signed: true}

func runIR(t *testing.T, fns []*ir.Func, iselRules string) string {
	t.Helper()
	out := filepath.Join(t.TempDir(), "out.o")
	opts := compiler.Options{
		SourceKind: compiler.SourceIR,
		Target:     compiler.TargetX86_64,
		ObjectKind: compiler.ObjectELF,
		CallConv:   x86.ConvLinux,
		InputPath:  "<test>",
		OutputPath: out,
		IRSource:   ir.PrintAll(fns),
		ISelRules:  iselRules,
	}
	require.NoError(t, compiler.Run(opts))
	return out
}

// requireValidELF parses path as a relocatable x86-64 ELF object, the
// object-writer contract's minimum testable property (spec.md §6): a
// non-empty, well-formed .text-bearing relocatable object.
func requireValidELF(t *testing.T, path string) *elf.File {
	t.Helper()
	f, err := elf.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	require.Equal(t, elf.ET_REL, f.Type)
	require.Equal(t, elf.EM_X86_64, f.Machine)
	return f
}

// textBytes pulls the raw .text contents back out of a compiled object, for
// tests that assert against the actual emitted bytes/disassembly.
func textBytes(t *testing.T, f *elf.File) []byte {
	t.Helper()
	sec := f.Section(".text")
	require.NotNil(t, sec)
	data, err := sec.Data()
	require.NoError(t, err)
	return data
}

// decodeAll walks code with the x86asm disassembly oracle (SPEC_FULL.md
// §4.6) until every byte is consumed, failing loudly on anything it can't
// decode rather than on a wrong assertion three lines later.
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

func opsOf(insts []x86asm.Inst) []x86asm.Op {
	ops := make([]x86asm.Op, len(insts))
	for i, in := range insts {
		ops[i] = in.Op
	}
	return ops
}

// TestConstantReturn covers spec.md §8 scenario 1: a leaf function
// returning a constant compiles to the exact `mov eax, 42; ret` byte
// sequence named there, not the sign-extending 64-bit materialisation.
func TestConstantReturn(t *testing.T) {
	fn := ir.NewFunc("answer", &ast.FuncType{Return: s32})
	bd := ir.NewBuilder(fn)
	bd.SetBlock(fn.NewBlock())
	bd.Return(bd.Immediate(s32, 42))

	out := runIR(t, []*ir.Func{fn}, "")
	f := requireValidELF(t, out)
	require.Equal(t, []byte{0xB8, 0x2A, 0x00, 0x00, 0x00, 0xC3}, textBytes(t, f))
}

func TestExternalCall(t *testing.T) {
	putchar := ir.NewFunc("putchar", &ast.FuncType{Return: s32, Params: []ast.Param{{Name: "c", Type: s32}}})
	putchar.Attrs.Extern = true

	caller := ir.NewFunc("greet", &ast.FuncType{Return: s32})
	bd := ir.NewBuilder(caller)
	bd.SetBlock(caller.NewBlock())
	call := bd.DirectCall(putchar, s32)
	bd.AddCallArg(call, bd.Immediate(s32, 65))
	result := bd.InsertCall(call)
	bd.Return(result)

	out := runIR(t, []*ir.Func{putchar, caller}, "")
	f := requireValidELF(t, out)
	insts := decodeAll(t, textBytes(t, f))
	require.NotEmpty(t, insts)
	require.Contains(t, opsOf(insts), x86asm.CALL)
	require.Equal(t, x86asm.RET, insts[len(insts)-1].Op)
}

func TestConditionalBranch(t *testing.T) {
	fn := ir.NewFunc("maxof", &ast.FuncType{Return: s32, Params: []ast.Param{{Name: "a", Type: s32}, {Name: "b", Type: s32}}})
	bd := ir.NewBuilder(fn)
	entry := fn.NewBlock()
	thenBlk := fn.NewBlock()
	elseBlk := fn.NewBlock()

	bd.SetBlock(entry)
	a := bd.AddParameterToFunction(s32)
	b := bd.AddParameterToFunction(s32)
	cond := bd.BinOp(ast.BGt, a, b, ast.TBool)
	bd.BranchCond(cond, thenBlk, elseBlk)

	bd.SetBlock(thenBlk)
	bd.Return(a)

	bd.SetBlock(elseBlk)
	bd.Return(b)

	out := runIR(t, []*ir.Func{fn}, "")
	requireValidELF(t, out)
}

// TestDivisionLowering covers spec.md §8 scenario 4: signed division lowers
// to sign-extend-then-IDIV (CDQ for a 32-bit dividend), never a bare DIV/IDIV
// against an unextended dividend.
func TestDivisionLowering(t *testing.T) {
	fn := ir.NewFunc("divide", &ast.FuncType{Return: s32, Params: []ast.Param{{Name: "n", Type: s32}, {Name: "d", Type: s32}}})
	bd := ir.NewBuilder(fn)
	bd.SetBlock(fn.NewBlock())
	n := bd.AddParameterToFunction(s32)
	d := bd.AddParameterToFunction(s32)
	bd.Return(bd.BinOp(ast.BDiv, n, d, s32))

	out := runIR(t, []*ir.Func{fn}, "")
	f := requireValidELF(t, out)
	insts := decodeAll(t, textBytes(t, f))
	ops := opsOf(insts)
	cdqAt := -1
	for i, op := range ops {
		if op == x86asm.CDQ {
			cdqAt = i
			break
		}
	}
	require.NotEqualf(t, -1, cdqAt, "no CDQ in %v", ops)
	require.Equal(t, x86asm.IDIV, ops[cdqAt+1])
}

// TestStackFrame covers spec.md §8 scenario 5: a function with a 40-byte
// frame produces `push rbp; mov rbp, rsp; sub rsp, 48` (align16(40)) and a
// matching epilogue before ret.
func TestStackFrame(t *testing.T) {
	fn := ir.NewFunc("accumulate", &ast.FuncType{Return: s32, Params: []ast.Param{{Name: "n", Type: s32}}})
	bd := ir.NewBuilder(fn)
	bd.SetBlock(fn.NewBlock())
	param := bd.AddParameterToFunction(s32)
	var slot *ir.Value
	for i := 0; i < 5; i++ { // 5 stack slots * 8 bytes/slot = 40-byte frame
		slot = bd.StackAllocate(s32)
	}
	bd.Store(slot, param)
	loaded := bd.Load(slot)
	bd.Return(bd.BinOp(ast.BAdd, loaded, bd.Immediate(s32, 1), s32))

	out := runIR(t, []*ir.Func{fn}, "")
	f := requireValidELF(t, out)
	insts := decodeAll(t, textBytes(t, f))
	require.GreaterOrEqual(t, len(insts), 3)
	require.Equal(t, x86asm.PUSH, insts[0].Op)
	require.Equal(t, x86asm.MOV, insts[1].Op)
	require.Equal(t, x86asm.SUB, insts[2].Op)
	require.Equal(t, x86asm.Imm(48), insts[2].Args[1])
	require.Equal(t, x86asm.RET, insts[len(insts)-1].Op)
}

// TestISelPatternAbsorption covers spec.md §8 scenario 6: the NOT of
// `!(a == b)` is absorbed into a single M_NE via core.isel's
// `not(eq(a, b)) -> ne(a, b)` rule, so the emitted code contains a
// CMP/SETNE pair and no NOT instruction from the one-to-one fallback.
func TestISelPatternAbsorption(t *testing.T) {
	rules, err := os.ReadFile("../isel/rules/core.isel")
	require.NoError(t, err)

	fn := ir.NewFunc("differs", &ast.FuncType{Return: s32, Params: []ast.Param{{Name: "a", Type: s32}, {Name: "b", Type: s32}}})
	bd := ir.NewBuilder(fn)
	bd.SetBlock(fn.NewBlock())
	a := bd.AddParameterToFunction(s32)
	b := bd.AddParameterToFunction(s32)
	eq := bd.BinOp(ast.BEq, a, b, ast.TBool)
	bd.Return(bd.Not(eq))

	out := runIR(t, []*ir.Func{fn}, string(rules))
	f := requireValidELF(t, out)
	insts := decodeAll(t, textBytes(t, f))
	ops := opsOf(insts)
	require.Contains(t, ops, x86asm.CMP)
	require.Contains(t, ops, x86asm.SETNE)
	require.NotContains(t, ops, x86asm.NOT)
}

func TestISelRulesFile(t *testing.T) {
	rules, err := os.ReadFile("../isel/rules/core.isel")
	require.NoError(t, err)

	fn := ir.NewFunc("answer", &ast.FuncType{Return: s32})
	bd := ir.NewBuilder(fn)
	bd.SetBlock(fn.NewBlock())
	bd.Return(bd.Immediate(s32, 7))

	out := runIR(t, []*ir.Func{fn}, string(rules))
	requireValidELF(t, out)
}

func TestSplitDefunsMultiFunctionProgram(t *testing.T) {
	a := ir.NewFunc("one", &ast.FuncType{Return: s32})
	abd := ir.NewBuilder(a)
	abd.SetBlock(a.NewBlock())
	abd.Return(abd.Immediate(s32, 1))

	b := ir.NewFunc("two", &ast.FuncType{Return: s32})
	bbd := ir.NewBuilder(b)
	bbd.SetBlock(b.NewBlock())
	bbd.Return(bbd.Immediate(s32, 2))

	out := runIR(t, []*ir.Func{a, b}, "")
	requireValidELF(t, out)
}
