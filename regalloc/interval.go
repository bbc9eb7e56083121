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
	"fmt"

	"github.com/nyxlang/nyxc/mir"
)

// UseKind distinguishes a read from a write use point, grounded on the
// teacher's lsra.go UseKind enum.
type UseKind int

const (
	UKRead UseKind = iota
	UKWrite
)

// UsePoint is one position at which an interval's vreg is read or written.
type UsePoint struct {
	Pos  int
	Kind UseKind
}

// Range is a contiguous live range [From, To) in linear instruction
// position space (two slots per instruction: def, then use).
type Range struct {
	From, To int
}

// Interval is one linear-scan live interval: the vreg it tracks, its live
// ranges (kept sorted, non-overlapping), its use points, and either an
// assigned physical register or a Fixed flag marking it as pre-coloured
// (e.g. the RAX operand of a division).
type Interval struct {
	VReg     mir.VReg
	Ranges   []Range
	Uses     []UsePoint
	AssignedReg mir.VReg
	Fixed    bool
	SpillSlot int // -1 if not spilled
}

func newInterval(v mir.VReg) *Interval {
	return &Interval{VReg: v, SpillSlot: -1}
}

// From returns the interval's earliest live position, or -1 if empty.
func (iv *Interval) From() int {
	if len(iv.Ranges) == 0 {
		return -1
	}
	return iv.Ranges[0].From
}

// To returns the interval's latest live position, or -1 if empty.
func (iv *Interval) To() int {
	if len(iv.Ranges) == 0 {
		return -1
	}
	return iv.Ranges[len(iv.Ranges)-1].To
}

// Covers reports whether pos falls within one of the interval's ranges.
func (iv *Interval) Covers(pos int) bool {
	for _, r := range iv.Ranges {
		if pos >= r.From && pos < r.To {
			return true
		}
	}
	return false
}

// addRange extends the interval to cover [from, to), merging with the
// first range if they're adjacent or overlapping (ranges are built
// back-to-front during the reverse walk in lsra.go, matching the
// teacher's approach of growing intervals from their last use backward to
// their definition).
func (iv *Interval) addRange(from, to int) {
	if len(iv.Ranges) > 0 && from <= iv.Ranges[0].To {
		if from < iv.Ranges[0].From {
			iv.Ranges[0].From = from
		}
		if to > iv.Ranges[0].To {
			iv.Ranges[0].To = to
		}
		return
	}
	iv.Ranges = append([]Range{{From: from, To: to}}, iv.Ranges...)
}

func (iv *Interval) addUse(pos int, kind UseKind) {
	iv.Uses = append(iv.Uses, UsePoint{Pos: pos, Kind: kind})
}

// NextUseAfter returns the position of the first use at or after pos, or
// -1 if none (used to decide which active interval to spill).
func (iv *Interval) NextUseAfter(pos int) int {
	best := -1
	for _, u := range iv.Uses {
		if u.Pos >= pos && (best == -1 || u.Pos < best) {
			best = u.Pos
		}
	}
	return best
}

func (iv *Interval) String() string {
	return fmt.Sprintf("interval(%s, [%d,%d), reg=%s, fixed=%v)", iv.VReg, iv.From(), iv.To(), iv.AssignedReg, iv.Fixed)
}
