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
package regalloc

import (
	"sort"

	"github.com/nyxlang/nyxc/diag"
	"github.com/nyxlang/nyxc/mir"
)

// LSRA is a linear-scan allocator (Wimmer et al.) satisfying the
// Allocator contract. Grounded directly on the teacher's
// compile/codegen/lsra.go: a workList-driven main loop over intervals
// sorted by start position and active/handled/spilled interval sets.
// Intervals are never split: the inactive set and the move resolver are
// declared but the main loop does not use them.
type LSRA struct {
	md        *MachineDescription
	intervals map[mir.VReg]*Interval
	active    []*Interval
	inactive  []*Interval
	handled   []*Interval
	spilled   []*Interval
	resolver  *moveResolver
}

// NewLSRA creates an allocator bound to md.
func NewLSRA(md *MachineDescription) *LSRA { return &LSRA{md: md} }

// linearPos numbers every instruction across fn's blocks in list order,
// two slots apart (even positions only), matching the conventional LSRA
// position scheme. An instruction's definition and its uses are both
// recorded at its even position; a range ends at that position plus one.
func linearPos(fn *mir.Function) map[*mir.Instruction]int {
	pos := map[*mir.Instruction]int{}
	n := 0
	for _, b := range fn.Blocks {
		for _, in := range b.Instructions {
			pos[in] = n * 2
			n++
		}
	}
	return pos
}

// buildIntervals walks fn's instructions in reverse linear order,
// extending each referenced vreg's interval backward from its last use to
// its earliest definition — the standard way to build intervals without a
// separate liveness dataflow pass when blocks are processed in reverse
// program order (sufficient here since MIR after ISel is already in a
// single linear order per function, mirroring the teacher's
// block-at-a-time treatment in lsra.go).
func (a *LSRA) buildIntervals(fn *mir.Function) {
	a.intervals = make(map[mir.VReg]*Interval)
	pos := linearPos(fn)

	get := func(r mir.VReg) *Interval {
		iv, ok := a.intervals[r]
		if !ok {
			iv = newInterval(r)
			a.intervals[r] = iv
		}
		return iv
	}

	var allInstrs []*mir.Instruction
	for _, b := range fn.Blocks {
		allInstrs = append(allInstrs, b.Instructions...)
	}
	for i := len(allInstrs) - 1; i >= 0; i-- {
		in := allInstrs[i]
		p := pos[in]
		if in.Result.IsVirtual() {
			iv := get(in.Result)
			iv.addRange(p, p+1)
			iv.addUse(p, UKWrite)
		}
		for _, arg := range in.Args {
			touchOperand(arg, p, get)
		}
		if md := a.md; md != nil && md.Interference != nil {
			// Clobbered physical registers get a tiny fixed interval at
			// this position; pickFreeRegister never hands out a register
			// whose fixed interval overlaps the candidate's range, so no
			// separate interval-splitting pass is needed.
			for _, r := range md.Interference(in) {
				iv := get(r)
				iv.Fixed = true
				iv.AssignedReg = r
				iv.addRange(p, p+1)
				iv.addUse(p, UKWrite)
			}
		}
	}
}

func touchOperand(op mir.Operand, p int, get func(mir.VReg) *Interval) {
	if op.Kind == mir.OperandRegister && op.Reg.IsVirtual() {
		iv := get(op.Reg)
		if iv.From() < 0 || iv.From() > p {
			iv.addRange(p, p+1)
		}
		iv.addUse(p, UKRead)
	}
	if op.Kind == mir.OperandBundle {
		for _, sub := range op.Bundle {
			touchOperand(sub, p, get)
		}
	}
}

// Allocate implements the Allocator contract: replace every vreg with a
// physical register, honouring clobbers, spilling under pressure (each
// spilled vreg's slot index is reported in Result.SpillSlots), and
// reporting which registers ended up used.
func (a *LSRA) Allocate(fn *mir.Function, md *MachineDescription) (*Result, error) {
	a.md = md
	a.buildIntervals(fn)
	a.resolver = newMoveResolver()

	var worklist []*Interval
	for _, iv := range a.intervals {
		worklist = append(worklist, iv)
	}
	sort.Slice(worklist, func(i, j int) bool { return worklist[i].From() < worklist[j].From() })

	used := map[mir.VReg]bool{}
	spillCount := 0

	for _, cur := range worklist {
		a.expireOldIntervals(cur)
		if cur.Fixed {
			// Already bound to its physical register by buildIntervals;
			// just occupy the active set for the duration of its range
			// so pickFreeRegister treats it as taken.
			a.active = append(a.active, cur)
			continue
		}
		if len(a.active) >= len(md.Registers) {
			a.spillAtInterval(cur, &spillCount)
		} else {
			reg := a.pickFreeRegister(cur, md)
			if reg == mir.VRegInvalid {
				a.spillAtInterval(cur, &spillCount)
			} else {
				cur.AssignedReg = reg
				used[reg] = true
				a.active = append(a.active, cur)
			}
		}
	}

	rewrite(fn, a.intervals)

	slots := map[mir.VReg]int{}
	for _, iv := range a.spilled {
		slots[iv.VReg] = iv.SpillSlot
	}

	return &Result{UsedRegisters: used, SpillCount: spillCount, SpillSlots: slots}, nil
}

func (a *LSRA) expireOldIntervals(cur *Interval) {
	var stillActive []*Interval
	for _, iv := range a.active {
		if iv.To() <= cur.From() {
			a.handled = append(a.handled, iv)
			continue
		}
		stillActive = append(stillActive, iv)
	}
	a.active = stillActive
}

func (a *LSRA) pickFreeRegister(cur *Interval, md *MachineDescription) mir.VReg {
	taken := map[mir.VReg]bool{}
	for _, iv := range a.active {
		taken[iv.AssignedReg] = true
	}
	// Clobbers whose fixed interval starts later but overlaps cur.
	for _, iv := range a.intervals {
		if iv.Fixed && iv.From() < cur.To() && cur.From() < iv.To() {
			taken[iv.AssignedReg] = true
		}
	}
	for _, r := range md.Registers {
		if !taken[r] {
			return r
		}
	}
	return mir.VRegInvalid
}

// spillAtInterval spills either cur or the active interval with the
// furthest-away next use, per Wimmer et al.'s heuristic (prefer to spill
// whichever interval is used again the latest).
func (a *LSRA) spillAtInterval(cur *Interval, spillCount *int) {
	if len(a.active) == 0 {
		a.markSpilled(cur, spillCount)
		return
	}
	worst := a.active[0]
	worstUse := worst.NextUseAfter(cur.From())
	for _, iv := range a.active[1:] {
		use := iv.NextUseAfter(cur.From())
		if use > worstUse {
			worst, worstUse = iv, use
		}
	}
	curUse := cur.NextUseAfter(cur.From())
	if worstUse > curUse || worstUse == -1 {
		reg := worst.AssignedReg
		a.markSpilled(worst, spillCount)
		a.removeActive(worst)
		cur.AssignedReg = reg
		a.active = append(a.active, cur)
	} else {
		a.markSpilled(cur, spillCount)
	}
}

func (a *LSRA) removeActive(target *Interval) {
	var out []*Interval
	for _, iv := range a.active {
		if iv != target {
			out = append(out, iv)
		}
	}
	a.active = out
}

func (a *LSRA) markSpilled(iv *Interval, spillCount *int) {
	iv.SpillSlot = *spillCount
	*spillCount++
	a.spilled = append(a.spilled, iv)
}

// rewrite replaces every virtual-register operand and result in fn with
// its assigned physical register. A spilled vreg (SpillSlot >= 0) is left
// virtual; Allocate reports its slot in Result.SpillSlots.
func rewrite(fn *mir.Function, intervals map[mir.VReg]*Interval) {
	apply := func(op *mir.Operand) {
		if op.Kind != mir.OperandRegister || !op.Reg.IsVirtual() {
			return
		}
		iv, ok := intervals[op.Reg]
		diag.Assert(ok, "no interval computed for %s", op.Reg)
		if iv.SpillSlot >= 0 {
			// Left virtual; codegen/x86 looks the vreg up in
			// Result.SpillSlots and materialises a frame-relative memory
			// operand instead of a register (see codegen/x86/assemble.go).
			return
		}
		op.Reg = iv.AssignedReg
	}
	for _, b := range fn.Blocks {
		for _, in := range b.Instructions {
			if in.Result.IsVirtual() {
				if iv, ok := intervals[in.Result]; ok && iv.SpillSlot < 0 {
					in.Result = iv.AssignedReg
				}
			}
			for i := range in.Args {
				apply(&in.Args[i])
				if in.Args[i].Kind == mir.OperandBundle {
					for j := range in.Args[i].Bundle {
						apply(&in.Args[i].Bundle[j])
					}
				}
			}
		}
	}
}
