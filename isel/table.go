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
package isel

// Table is the compiled matching table: rules grouped by the opcode name
// their lead instruction accepts, with register/mnemonic names interned
// once (spec.md §4.3 "Interning"), grounded on the teacher's
// register_x86.go string-interning idiom.
type Table struct {
	ByLead map[string][]*Rule // grouped, each group kept in SourceOrder
	byLink map[string]*Rule   // rule keyed by its first lead, for `link` lookups

	regIntern   map[string]int
	regNames    []string
	instrIntern map[string]int
	instrNames  []string
}

// CompileSource lexes, parses, and compiles a DSL source string into a
// Table in one step — the entry point cmd/nyxc and compiler.Run use to
// load isel/rules/*.isel (spec.md §4.3 "compiled into a matching table").
func CompileSource(src string) *Table {
	p := NewParser(NewLexer(src))
	return NewTable(p.ParseFile())
}

// NewTable compiles rules (already parsed and, where named, chained via
// Rule.Link) into a Table.
func NewTable(rules []*Rule) *Table {
	t := &Table{
		ByLead:      map[string][]*Rule{},
		byLink:      map[string]*Rule{},
		regIntern:   map[string]int{},
		instrIntern: map[string]int{},
	}
	for _, r := range rules {
		lead := r.Leads[0]
		key := leadOpcodeName(r)
		t.ByLead[key] = append(t.ByLead[key], r)
		t.byLink[lead] = r
		for _, se := range r.SideEffects {
			if se.IsClobber {
				for _, reg := range se.Clobbers {
					t.internReg(reg)
				}
			}
		}
		for _, res := range r.Results {
			if !res.Discard {
				t.internInstr(res.Instr)
			}
		}
	}
	return t
}

// leadOpcodeName derives the opcode a rule's first lead must match from
// its first `where <lead> INSTRNAME` filter; a rule with no such filter on
// its lead matches any opcode at that position and is keyed under "*".
func leadOpcodeName(r *Rule) string {
	lead := r.Leads[0]
	for _, f := range r.Filters {
		if f.IName == lead && f.InstrName != "" {
			return f.InstrName
		}
	}
	return "*"
}

func (t *Table) internReg(name string) int {
	if id, ok := t.regIntern[name]; ok {
		return id
	}
	id := len(t.regNames)
	t.regIntern[name] = id
	t.regNames = append(t.regNames, name)
	return id
}

func (t *Table) internInstr(name string) int {
	if id, ok := t.instrIntern[name]; ok {
		return id
	}
	id := len(t.instrNames)
	t.instrIntern[name] = id
	t.instrNames = append(t.instrNames, name)
	return id
}

// RulesFor returns the candidate rules whose lead iname accepts opcode
// name, in the source order ByLead stores them; the matcher sorts them
// longest-match-first (spec.md §4.4), since a single opcode name may have
// rules of different lead counts.
func (t *Table) RulesFor(opcodeName string) []*Rule { return t.ByLead[opcodeName] }

// Link resolves a rule's link-chain target by the target rule's own lead
// name (spec.md §4.4 tie-break rule 4).
func (t *Table) Link(name string) (*Rule, bool) {
	r, ok := t.byLink[name]
	return r, ok
}
