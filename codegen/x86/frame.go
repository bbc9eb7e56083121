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
	"fmt"

	"github.com/nyxlang/nyxc/diag"
	"github.com/nyxlang/nyxc/mir"
	"github.com/nyxlang/nyxc/object"
)

// FrameKind selects how much prologue/epilogue a function needs, mirroring
// the teacher's emitPrologue/emitEpilogue convention in asm_x86.go but
// made an explicit three-way choice per spec.md §4.6.
type FrameKind int

const (
	// FrameNone: a leaf function with no locals and no spills; RSP is
	// untouched and there is no frame pointer.
	FrameNone FrameKind = iota
	// FrameMinimal: a non-leaf function with no locals; RSP is only
	// lowered by 8 for call-site alignment and RBP is not set up as a
	// frame pointer.
	FrameMinimal
	// FrameFull: the function has locals, so RBP is pushed and set up as
	// a conventional frame pointer before RSP is lowered by the
	// 16-byte-aligned locals size.
	FrameFull
)

// SelectFrameKind decides a function's frame kind from its properties
// (spec.md §4.6 "prologue/epilogue frame kinds": None for a leaf with no
// locals, Minimal for a non-leaf with no locals, Full whenever there are
// locals).
func SelectFrameKind(localsSize int, makesCalls bool) FrameKind {
	switch {
	case localsSize > 0:
		return FrameFull
	case makesCalls:
		return FrameMinimal
	default:
		return FrameNone
	}
}

// align16 rounds size up to the next multiple of 16, the x86-64 SysV/
// MSWIN stack alignment requirement at a call boundary.
func align16(size int) int {
	return (size + 15) &^ 15
}

// EmitPrologue emits the frame-setup sequence for kind, reserving
// localsSize bytes of stack space and saving calleeSaved registers the
// allocator actually used.
func (e *Encoder) EmitPrologue(kind FrameKind, localsSize int, calleeSaved []Reg) int {
	var frameSize int
	switch kind {
	case FrameNone:
		return 0
	case FrameMinimal:
		// No locals, but the callee's own calls need RSP realigned to 16
		// bytes at the CALL site (entry RSP is 8 mod 16).
		frameSize = 8
		e.AluRegImm("sub", RSP, Size64, int32(frameSize))
	case FrameFull:
		frameSize = align16(localsSize)
		e.Push(RBP)
		e.MovRegReg(RBP, RSP, Size64)
		if frameSize > 0 {
			e.AluRegImm("sub", RSP, Size64, int32(frameSize))
		}
	}
	for _, r := range calleeSaved {
		e.Push(r)
	}
	return frameSize
}

// EmitEpilogue emits the matching teardown sequence, restoring
// calleeSaved in reverse order before the return.
func (e *Encoder) EmitEpilogue(kind FrameKind, frameSize int, calleeSaved []Reg) {
	for i := len(calleeSaved) - 1; i >= 0; i-- {
		e.Pop(calleeSaved[i])
	}
	switch kind {
	case FrameNone:
	case FrameMinimal:
		e.AluRegImm("add", RSP, Size64, int32(frameSize))
	case FrameFull:
		e.MovRegReg(RSP, RBP, Size64)
		e.Pop(RBP)
	}
	e.Ret()
}

// LocalLabelName derives the `.L`-prefixed symbol a branch target gets
// within one function, matching the `.L*` convention object.go's
// StripLocalLabels recognises.
func LocalLabelName(fn *mir.Function, b *mir.Block) string {
	return fmt.Sprintf(".L%s_%s", fn.Name, b.Name)
}

// LabelPatcher tracks the code offsets of a function's block labels while
// its instructions are emitted, then back-patches every DISP32-PCREL
// relocation recorded against one of those labels directly in the code
// section, since a local branch never needs a true object-file
// relocation entry (spec.md §4.6 "Local-label relocations").
type LabelPatcher struct {
	offsets map[string]int
}

func NewLabelPatcher() *LabelPatcher { return &LabelPatcher{offsets: map[string]int{}} }

// Mark records that label begins at the object's current code offset.
func (p *LabelPatcher) Mark(obj *object.GenericObjectFile, label string) {
	p.offsets[label] = obj.CodeOffset()
}

// Patch resolves every local-label relocation still pending in obj against
// the offsets recorded via Mark, writes the 4-byte displacement in place,
// and strips the now-resolved symbols/relocations from the object.
func (p *LabelPatcher) Patch(obj *object.GenericObjectFile) {
	code := obj.CodeSection()
	for _, r := range obj.Relocations {
		target, ok := p.offsets[r.Symbol]
		if !ok {
			continue // not a local label; left for the real object writer
		}
		if r.Kind != object.RelDisp32PCRel {
			diag.ICE("local label %q used with a non-PC-relative relocation", r.Symbol)
		}
		disp := int32(target - r.Offset + int(r.Addend))
		code.Data[r.Offset] = byte(disp)
		code.Data[r.Offset+1] = byte(disp >> 8)
		code.Data[r.Offset+2] = byte(disp >> 16)
		code.Data[r.Offset+3] = byte(disp >> 24)
	}
	obj.StripLocalLabels()
}

// MaxRegisterArgs is the number of integer arguments a call can pass in
// registers under cc; callers needing more must spill the remainder to
// the stack, which this encoder does not yet implement.
func MaxRegisterArgs(cc CallingConvention) int {
	return len(ABIFor(cc).IntArgRegs)
}

// CheckCallArity raises the open-question-#1 disposition (SPEC_FULL.md
// §9: stack-passed arguments beyond the register file are an explicit
// ICE, not silently miscompiled) whenever a call needs more integer
// arguments than cc has registers for.
func CheckCallArity(cc CallingConvention, argc int) {
	if argc > MaxRegisterArgs(cc) {
		diag.ICE("call with %d integer arguments exceeds the %d-register argument convention; stack-passed arguments are not yet supported", argc, MaxRegisterArgs(cc))
	}
}
