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
package ir

import (
	"github.com/nyxlang/nyxc/diag"
)

// VerifyDom checks that every phi argument's defining block dominates the
// corresponding predecessor block, and that every value's definition
// dominates every one of its uses (spec.md §8 "Type soundness" sibling
// property for SSA: def-dominates-use).
func VerifyDom(fn *Func) {
	dt := BuildDomTree(fn)
	for _, b := range fn.Blocks() {
		for _, val := range b.Values() {
			for _, use := range val.Uses {
				if use.Op == OpPhi {
					for i, pred := range use.Block.Preds {
						edge := use.PhiEdges[i]
						if edge.Value != val {
							continue
						}
						if !dt.IsDominate(val.Block, pred) {
							diag.ICE("bb%d does not dominate bb%d (phi v%d edge)", val.Block.Id, pred.Id, use.Id)
						}
					}
					continue
				}
				if !dt.IsDominate(val.Block, use.Block) {
					diag.ICE("def v%d(bb%d) does not dominate use v%d(bb%d)", val.Id, val.Block.Id, use.Id, use.Block.Id)
				}
			}
		}
	}
}

// Verify checks IR invariants named in spec.md §3/§8: phi arity matching
// CFG predecessors, exactly-one-terminator per block (last instruction
// only), users-consistency, and def-dominates-use via VerifyDom.
// Unreachable blocks are skipped rather than reported, and value types are
// not checked.
func Verify(fn *Func) {
	reachable := FindReachableBlocks(fn)
	for _, b := range fn.Blocks() {
		if !reachable[b] {
			continue
		}
		verifyTerminator(b)
		verifyPhiArity(b)
		verifyUsers(b)
	}
	VerifyDom(fn)
}

func verifyTerminator(b *Block) {
	for v := b.head; v != nil; v = v.next {
		isLast := v == b.tail
		if v.Op.IsTerminator() && !isLast {
			diag.ICE("bb%d: terminator v%d is not the last instruction", b.Id, v.Id)
		}
		if isLast && !v.Op.IsTerminator() {
			diag.ICE("bb%d: last instruction v%d is not a terminator", b.Id, v.Id)
		}
	}
}

func verifyPhiArity(b *Block) {
	for v := b.head; v != nil; v = v.next {
		if v.Op != OpPhi {
			continue
		}
		if len(v.PhiEdges) != len(b.Preds) {
			diag.ICE("bb%d: phi v%d has %d edges, block has %d preds", b.Id, v.Id, len(v.PhiEdges), len(b.Preds))
		}
		predSet := map[*Block]bool{}
		for _, p := range b.Preds {
			predSet[p] = true
		}
		for _, e := range v.PhiEdges {
			if !predSet[e.Pred] {
				diag.ICE("bb%d: phi v%d has edge from non-predecessor bb%d", b.Id, v.Id, e.Pred.Id)
			}
		}
	}
}

func verifyUsers(b *Block) {
	for v := b.head; v != nil; v = v.next {
		for _, use := range v.Uses {
			if !referencesOperand(use, v) {
				diag.ICE("v%d is listed as a user of v%d but does not reference it", use.Id, v.Id)
			}
		}
		for _, a := range v.Args {
			if !containsUser(a.Uses, v) {
				diag.ICE("v%d references v%d but is not in its users", v.Id, a.Id)
			}
		}
		for _, e := range v.PhiEdges {
			if e.Value != nil && !containsUser(e.Value.Uses, v) {
				diag.ICE("phi v%d references v%d via edge but is not in its users", v.Id, e.Value.Id)
			}
		}
	}
}

func referencesOperand(user, operand *Value) bool {
	for _, a := range user.Args {
		if a == operand {
			return true
		}
	}
	for _, e := range user.PhiEdges {
		if e.Value == operand {
			return true
		}
	}
	return false
}

func containsUser(users []*Value, want *Value) bool {
	for _, u := range users {
		if u == want {
			return true
		}
	}
	return false
}
