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

import "fmt"

// DomTree is the iterative O(n^2) dominator-tree computation described in
// "Graph-theoretic constructs for program flow analysis", grounded
// directly on the teacher's compile/ssa/domtree.go.
type DomTree struct {
	Func *Func
	Dom  map[*Block][]*Block
}

// IsDominate reports whether a dom b: every path from entry to b passes
// through a.
func (dt *DomTree) IsDominate(a, b *Block) bool {
	for _, d := range dt.Dom[b] {
		if d == a {
			return true
		}
	}
	return false
}

// IsSDominate reports strict dominance: a dom b and a != b.
func (dt *DomTree) IsSDominate(a, b *Block) bool {
	return dt.IsDominate(a, b) && a != b
}

// IsIDominate reports immediate dominance: a sdom b with no block c such
// that a sdom c sdom b.
func (dt *DomTree) IsIDominate(a, b *Block) bool {
	if !dt.IsSDominate(a, b) {
		return false
	}
	for _, c := range dt.Dom[b] {
		if dt.IsSDominate(a, c) && dt.IsSDominate(c, b) {
			return false
		}
	}
	return true
}

func intersect(a, b []*Block) []*Block {
	if len(a) > len(b) {
		a, b = b, a
	}
	res := make([]*Block, 0, len(a))
	for _, x := range a {
		for _, y := range b {
			if x == y {
				res = append(res, x)
				break
			}
		}
	}
	return res
}

func union(a, b []*Block) []*Block {
	seen := make(map[*Block]bool)
	for _, x := range a {
		seen[x] = true
	}
	for _, x := range b {
		seen[x] = true
	}
	res := make([]*Block, 0, len(seen))
	for x := range seen {
		res = append(res, x)
	}
	return res
}

func (dt *DomTree) String() string {
	s := "== Dom Tree:\n"
	for b, doms := range dt.Dom {
		s += fmt.Sprintf("bb%d:", b.Id)
		for _, d := range doms {
			s += fmt.Sprintf(" bb%d", d.Id)
		}
		s += "\n"
	}
	return s
}

// BuildDomTree computes the dominator relation for fn by iterative
// dataflow fixed-point.
func BuildDomTree(fn *Func) *DomTree {
	blocks := fn.Blocks()
	dom := make(map[*Block][]*Block, len(blocks))
	entry := fn.Entry()
	dom[entry] = []*Block{entry}
	for _, b := range blocks {
		if b == entry {
			continue
		}
		dom[b] = blocks
	}

	changed := true
	for changed {
		changed = false
		for _, b := range blocks {
			if b == entry {
				continue
			}
			var newDom []*Block
			if len(b.Preds) > 0 {
				newDom = dom[b.Preds[0]]
				for _, p := range b.Preds[1:] {
					newDom = intersect(newDom, dom[p])
				}
			}
			newDom = union(newDom, []*Block{b})
			if len(newDom) != len(dom[b]) {
				changed = true
				dom[b] = newDom
			}
		}
	}
	return &DomTree{Func: fn, Dom: dom}
}
