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
package ast

// Module owns arenas of AST nodes, types, scopes, and interned strings for
// one compilation unit. It is created once and freed wholesale (spec.md
// §3); it is also the shape of the front-end contract in spec.md §6.
type Module struct {
	Filename string
	Source   string
	Root     *RootDecl
	Global   *Scope
	Funcs    []*Function

	interned map[string]string
	nodes    []Node
	types    []Type
	scopes   []*Scope
}

// NewModule creates an empty module over the given filename/source pair.
func NewModule(filename, source string) *Module {
	m := &Module{
		Filename: filename,
		Source:   source,
		interned: make(map[string]string),
	}
	m.Global = m.NewScope(nil)
	m.Root = &RootDecl{}
	return m
}

// Intern returns the module-owned canonical copy of s, so that repeated
// identifiers/strings share one backing array across the module's
// lifetime.
func (m *Module) Intern(s string) string {
	if v, ok := m.interned[s]; ok {
		return v
	}
	m.interned[s] = s
	return s
}

// NewScope allocates a scope owned by this module.
func (m *Module) NewScope(parent *Scope) *Scope {
	s := NewScope(parent)
	m.scopes = append(m.scopes, s)
	return s
}

// Track registers n as owned by the module's node arena. Callers
// constructing nodes directly (rather than through a front-end parser)
// should call this so the arena accounting stays honest; it has no other
// observable effect since Go's GC reclaims nodes whether tracked or not —
// the arena exists to mirror the ownership model in spec.md §3, not to
// manage memory by hand.
func (m *Module) Track(n Node) Node {
	m.nodes = append(m.nodes, n)
	return n
}

// TrackType registers t as owned by the module's type arena.
func (m *Module) TrackType(t Type) Type {
	m.types = append(m.types, t)
	return t
}
