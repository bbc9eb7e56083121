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

import "strings"

// Print renders fn as the textual IR form from spec.md §6: `defun <name> {
// … }` blocks, `bb<id>:` labels, `%id = <opcode> <operands>` instructions.
// Func.String already implements this layout directly (it is the printer);
// Print exists as the named entry point the spec calls for.
func Print(fn *Func) string { return fn.String() }

// PrintAll renders a whole program (every function in order), separated
// by a blank line, matching what Parse expects back.
func PrintAll(fns []*Func) string {
	parts := make([]string, len(fns))
	for i, f := range fns {
		parts[i] = Print(f)
	}
	return strings.Join(parts, "\n")
}
