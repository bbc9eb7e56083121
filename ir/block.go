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
	"fmt"
	"strings"

	"github.com/nyxlang/nyxc/diag"
)

// Block is an IR basic block: an intrusive doubly-linked list of
// instructions (spec.md §3 "IR block"), a name assigned late for emission,
// a unique id, and a transient Done flag used during emission ordering.
type Block struct {
	Id   int
	Name string

	parentFn   *Func
	prev, next *Block // intrusive link within the function's block list

	head, tail *Value // intrusive instruction list

	Preds []*Block
	Succs []*Block

	Done bool // transient, used during emission
}

// Parent returns the function owning this block.
func (b *Block) Parent() *Func { return b.parentFn }

// Values returns the block's instructions in list order. It allocates a
// slice; hot paths should walk First()/Next() directly.
func (b *Block) Values() []*Value {
	var out []*Value
	for v := b.head; v != nil; v = v.next {
		out = append(out, v)
	}
	return out
}

// First returns the first instruction, or nil if the block is empty.
func (b *Block) First() *Value { return b.head }

// Last returns the last instruction, or nil if the block is empty.
func (b *Block) Last() *Value { return b.tail }

// Next returns the instruction following v within its block.
func Next(v *Value) *Value { return v.next }

// Prev returns the instruction preceding v within its block.
func Prev(v *Value) *Value { return v.prev }

// IsClosed reports whether the block already ends in a terminator
// (spec.md §4.1 "insert appends... unless the block is closed").
func (b *Block) IsClosed() bool {
	return b.tail != nil && b.tail.Op.IsTerminator()
}

// Append adds v to the end of the block's instruction list unconditionally
// (the "force-insert" variant from spec.md §4.1), setting v.Block and
// intrusive links.
func (b *Block) Append(v *Value) {
	v.Block = b
	v.prev = b.tail
	v.next = nil
	if b.tail != nil {
		b.tail.next = v
	} else {
		b.head = v
	}
	b.tail = v
}

// Prepend adds v to the front of the block's instruction list — used for
// phi values, which the teacher's hir.go prepends rather than appends so
// that phis always precede non-phi instructions.
func (b *Block) Prepend(v *Value) {
	v.Block = b
	v.next = b.head
	v.prev = nil
	if b.head != nil {
		b.head.prev = v
	} else {
		b.tail = v
	}
	b.head = v
}

// Insert appends v using normal insertion semantics: phi values are
// prepended, everything else is appended, and insertion into a closed
// block is a programmer error (spec.md §4.1) unless force is true.
func (b *Block) Insert(v *Value, force bool) {
	if !force && b.IsClosed() {
		diag.ICE("insertion into closed block bb%d (already terminated)", b.Id)
	}
	if v.Op == OpPhi {
		b.Prepend(v)
		return
	}
	b.Append(v)
}

// Remove detaches v from the block's instruction list. It is fatal if v
// still has users (spec.md §4.1 "Removing an instruction is fatal if its
// users vector is non-empty").
func (b *Block) Remove(v *Value) {
	diag.Assert(len(v.Uses) == 0, "removing v%d with live users", v.Id)
	b.detach(v)
	v.UnmarkUsees()
}

// detach unlinks v from the list without checking users — used internally
// by RemoveBlock, which "frees each instruction unconditionally" per
// spec.md §4.1.
func (b *Block) detach(v *Value) {
	if v.prev != nil {
		v.prev.next = v.next
	} else {
		b.head = v.next
	}
	if v.next != nil {
		v.next.prev = v.prev
	} else {
		b.tail = v.prev
	}
	v.prev, v.next, v.Block = nil, nil, nil
}

// WireTo adds a CFG edge from b to succ unconditionally, appending succ to
// b.Succs and b to succ.Preds.
func (b *Block) WireTo(succ *Block) {
	b.Succs = append(b.Succs, succ)
	succ.Preds = append(succ.Preds, b)
}

// RemoveSucc removes the CFG edge to succ and removes the matching phi
// argument from every phi in succ (spec.md §8 "Phi arity").
func (b *Block) RemoveSucc(succ *Block) {
	for i, s := range b.Succs {
		if s == succ {
			b.Succs = append(b.Succs[:i], b.Succs[i+1:]...)
			break
		}
	}
	for i, p := range succ.Preds {
		if p == b {
			succ.Preds = append(succ.Preds[:i], succ.Preds[i+1:]...)
			break
		}
	}
	for _, v := range succ.Values() {
		if v.Op == OpPhi {
			v.RemovePhiOperand(b)
		}
	}
}

func (b *Block) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "bb%d:", b.Id)
	if len(b.Preds) > 0 {
		fmt.Fprintf(&sb, " ; preds=")
		for i, p := range b.Preds {
			if i > 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, "bb%d", p.Id)
		}
	}
	sb.WriteString("\n")
	for v := b.head; v != nil; v = v.next {
		fmt.Fprintf(&sb, "  %s\n", v.String())
	}
	return sb.String()
}
