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

	"github.com/nyxlang/nyxc/ast"
)

// Attrs are the function attribute flags named in spec.md §3.
type Attrs struct {
	Consteval   bool
	ForceInline bool
	Global      bool
	Leaf        bool
	NoReturn    bool
	Pure        bool
	Extern      bool
}

// Func is an IR function: an intrusive list of blocks, ordered parameter
// instructions, its function type, total locals size, a register-use
// bitset, and the attribute flags from spec.md §3.
type Func struct {
	Id         int
	Name       string
	Type       *ast.FuncType
	Params     []*Value // OpParameter instructions, in order
	Attrs      Attrs
	LocalsSize int
	RegUse     uint64 // bitset of physical registers referenced

	head, tail   *Block
	blocks       map[int]*Block
	nextValueId  int
	nextBlockId  int
}

// NewFunc creates an empty function of the given name/type.
func NewFunc(name string, t *ast.FuncType) *Func {
	return &Func{Name: name, Type: t, blocks: make(map[int]*Block)}
}

// Entry returns the function's first block (the entry block, hinted by
// convention as the first block ever added), or nil if empty.
func (f *Func) Entry() *Block { return f.head }

// Blocks returns the function's blocks in intrusive-list order.
func (f *Func) Blocks() []*Block {
	var out []*Block
	for b := f.head; b != nil; b = b.next {
		out = append(out, b)
	}
	return out
}

// NewBlock allocates and appends a new block to the function.
func (f *Func) NewBlock() *Block {
	b := &Block{Id: f.nextBlockId, parentFn: f}
	f.nextBlockId++
	f.blocks[b.Id] = b
	b.prev = f.tail
	if f.tail != nil {
		f.tail.next = b
	} else {
		f.head = b
	}
	f.tail = b
	return b
}

// RemoveBlock detaches b from the function, unconditionally freeing every
// instruction it contains (spec.md §4.1: "removing an entire block frees
// each instruction unconditionally and marks phi predecessors for update
// in successor blocks").
func (f *Func) RemoveBlock(b *Block) {
	for _, succ := range append([]*Block(nil), b.Succs...) {
		b.RemoveSucc(succ)
	}
	for v := b.head; v != nil; {
		next := v.next
		v.UnmarkUsees()
		v.prev, v.next, v.Block = nil, nil, nil
		v = next
	}
	b.head, b.tail = nil, nil

	if b.prev != nil {
		b.prev.next = b.next
	} else {
		f.head = b.next
	}
	if b.next != nil {
		b.next.prev = b.prev
	} else {
		f.tail = b.prev
	}
	delete(f.blocks, b.Id)
}

// nextValue allocates a fresh instruction id, used by the builder.
func (f *Func) nextValue() int {
	id := f.nextValueId
	f.nextValueId++
	return id
}

func (f *Func) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "defun %s {\n", f.Name)
	for b := f.head; b != nil; b = b.next {
		lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
		for _, l := range lines {
			sb.WriteString("  " + l + "\n")
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

// SetFuncIds renumbers every instruction within f, in block-then-position
// order (spec.md §4.1 "set_func_ids"). Running it twice in a row is a
// no-op after the first run (spec.md §8 "Renumbering idempotence"),
// because ids are assigned purely from list order, which renumbering
// itself never changes.
func SetFuncIds(f *Func) {
	id := 0
	for b := f.head; b != nil; b = b.next {
		idx := 0
		for v := b.head; v != nil; v = v.next {
			v.Id = id
			v.Index = idx
			id++
			idx++
		}
	}
	f.nextValueId = id
}

// FindReachableBlocks returns the set of blocks reachable from f's entry
// via a simple worklist BFS over Succs (grounds VerifyHIR's reachability
// check).
func FindReachableBlocks(f *Func) map[*Block]bool {
	seen := map[*Block]bool{}
	if f.Entry() == nil {
		return seen
	}
	work := []*Block{f.Entry()}
	seen[f.Entry()] = true
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		for _, s := range b.Succs {
			if !seen[s] {
				seen[s] = true
				work = append(work, s)
			}
		}
	}
	return seen
}
