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

import "github.com/nyxlang/nyxc/mir"

// move is one pending register-to-register or spill-slot move needed to
// reconcile an interval split or a spill, grounded on the teacher's
// lsra_moveResolver.go.
type move struct {
	from, to mir.Operand
}

// moveResolver accumulates moves keyed by linear instruction position.
// LSRA creates one per Allocate call but records no moves, and nothing
// turns pending moves into instructions.
type moveResolver struct {
	pending map[int][]move // keyed by linear instruction position
}

func newMoveResolver() *moveResolver {
	return &moveResolver{pending: make(map[int][]move)}
}

func (mr *moveResolver) addMove(pos int, from, to mir.Operand) {
	mr.pending[pos] = append(mr.pending[pos], move{from: from, to: to})
}

// resolveOrdering topologically sorts moves at one position so that a
// move never overwrites a register another pending move still needs to
// read — the classic parallel-move resolution problem. Cycles (a <-> b
// swaps) are not broken: their moves come out in visit order with no
// temporary, and scratch is accepted but unused.
func resolveOrdering(moves []move, scratch mir.VReg) []move {
	if len(moves) <= 1 {
		return moves
	}
	writesTo := func(r mir.VReg) int {
		for i, m := range moves {
			if m.to.Kind == mir.OperandRegister && m.to.Reg == r {
				return i
			}
		}
		return -1
	}
	var ordered []move
	done := make([]bool, len(moves))
	var visit func(i int, stack map[int]bool)
	visit = func(i int, stack map[int]bool) {
		if done[i] || stack[i] {
			return
		}
		stack[i] = true
		m := moves[i]
		if m.from.Kind == mir.OperandRegister {
			if j := writesTo(m.from.Reg); j >= 0 && j != i {
				visit(j, stack)
			}
		}
		if !done[i] {
			done[i] = true
			ordered = append(ordered, m)
		}
	}
	for i := range moves {
		visit(i, map[int]bool{})
	}
	_ = scratch
	return ordered
}
