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
package mir

import (
	"fmt"
	"strings"
)

// Block is an ordered vector of MIR instructions with a name and id
// (spec.md §3 "MIR Block").
type Block struct {
	Id           int
	Name         string
	Instructions []*Instruction
}

// Append adds in to the end of the block.
func (b *Block) Append(in *Instruction) { b.Instructions = append(b.Instructions, in) }

func (b *Block) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s:\n", b.Name)
	for _, in := range b.Instructions {
		fmt.Fprintf(&sb, "  %s\n", in)
	}
	return sb.String()
}

// FrameObject is a stack-allocated value described by size and computed
// offset from RBP (spec.md GLOSSARY "Frame object").
type FrameObject struct {
	Size   int
	Offset int
}

// Function is an ordered vector of Blocks plus the per-function frame
// layout and vreg counter (spec.md §3 "MIR Function").
type Function struct {
	Name        string
	Blocks      []*Block
	Frame       []FrameObject
	nextVReg    VReg
	nextBlockID int
	nextInstrID int
}

// NewFunction creates an empty MIR function whose vreg counter starts at
// VRegMin (spec.md §3).
func NewFunction(name string) *Function {
	return &Function{Name: name, nextVReg: VRegMin}
}

// NewVReg allocates a fresh virtual register.
func (f *Function) NewVReg() VReg {
	r := f.nextVReg
	f.nextVReg++
	return r
}

// NewBlock appends and returns a new block named bb<id>.
func (f *Function) NewBlock() *Block {
	b := &Block{Id: f.nextBlockID, Name: fmt.Sprintf("bb%d", f.nextBlockID)}
	f.nextBlockID++
	f.Blocks = append(f.Blocks, b)
	return b
}

// NewFrameObject reserves a stack slot of the given size, returning its
// index into f.Frame. Offset is left zero; nothing in this module assigns
// it.
func (f *Function) NewFrameObject(size int) int {
	f.Frame = append(f.Frame, FrameObject{Size: size})
	return len(f.Frame) - 1
}

// NextInstrID returns a fresh, monotonically increasing instruction id,
// used so ISel-emitted instructions can be ordered/debugged consistently.
func (f *Function) NextInstrID() int {
	id := f.nextInstrID
	f.nextInstrID++
	return id
}

func (f *Function) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "mirfunc %s {\n", f.Name)
	for _, b := range f.Blocks {
		for _, line := range strings.Split(strings.TrimRight(b.String(), "\n"), "\n") {
			sb.WriteString("  " + line + "\n")
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}
