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

import "github.com/nyxlang/nyxc/diag"

// RegSet is a fixed-size bitmap over physical register ids, used by the
// allocator's active-set bookkeeping instead of a map when the domain is
// small and known up front. Adapted from the teacher's utils.BitMap
// (word-per-8-bits layout, union/intersect with a changed flag) to a
// register-id domain rather than a generic dataflow bitset.
type RegSet struct {
	data []uint8
	size int
}

// NewRegSet creates a set over register ids [0, size).
func NewRegSet(size int) *RegSet {
	return &RegSet{data: make([]uint8, (size+7)/8), size: size}
}

func (s *RegSet) Set(i int)    { s.data[i/8] |= 1 << uint(i%8) }
func (s *RegSet) Reset(i int)  { s.data[i/8] &^= 1 << uint(i%8) }
func (s *RegSet) IsSet(i int) bool {
	return s.data[i/8]&(1<<uint(i%8)) != 0
}

// Union ORs o into s in place, reporting whether s changed.
func (s *RegSet) Union(o *RegSet) bool {
	diag.Assert(s.size == o.size, "register set size mismatch")
	changed := false
	for i := range s.data {
		nv := s.data[i] | o.data[i]
		if nv != s.data[i] {
			s.data[i] = nv
			changed = true
		}
	}
	return changed
}

// Clear resets every bit.
func (s *RegSet) Clear() {
	for i := range s.data {
		s.data[i] = 0
	}
}
