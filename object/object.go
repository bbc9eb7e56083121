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

// Package object is the generic, target-agnostic object-file model from
// spec.md §4.7: ordered sections (section 0 is code/text), a symbol
// table, a relocation vector, and the write primitives the encoder uses
// to append bytes. Grounded on original_source's
// src/codegen/generic_object.h (the C header this was distilled from —
// no corpus Go library covers this generic, writer-side shape, so it is
// written directly; the ELF/COFF writers use github.com/pkg/errors only
// for error wrapping; see DESIGN.md).
package object

import "fmt"

// SectionFlags are the attribute bits a Section may carry.
type SectionFlags int

const (
	SectionWritable SectionFlags = 1 << iota
	SectionExecutable
	SectionSpanFill
)

// Section holds either a literal byte buffer or a fill (FillByte repeated
// FillLen times), per spec.md §4.7.
type Section struct {
	Name  string
	Flags SectionFlags

	Data     []byte // used unless Flags&SectionSpanFill
	FillByte byte
	FillLen  int
}

// SymbolKind tags a Symbol's linkage (spec.md §4.7).
type SymbolKind int

const (
	SymNone SymbolKind = iota
	SymFunction
	SymStatic
	SymExport
	SymExternal
)

// Symbol is one named location in a section, or an external/undefined
// reference when Section is empty.
type Symbol struct {
	Kind    SymbolKind
	Name    string
	Section string
	Offset  int
}

// RelocationKind is the deferred symbol-address fix-up kind (spec.md
// GLOSSARY "DISP32-PCREL / DISP32").
type RelocationKind int

const (
	RelDisp32PCRel RelocationKind = iota
	RelDisp32Abs
)

// Relocation records a fix-up needed at Offset within the code section
// (spec.md §4.7).
type Relocation struct {
	Kind   RelocationKind
	Offset int
	Symbol string
	Addend int64
}

// GenericObjectFile is the target-agnostic object model: ordered
// sections (section 0 is code/text), a symbol table and a relocation
// vector (spec.md §4.7). Debug info is a Non-goal per spec.md §1 and has
// no field here.
type GenericObjectFile struct {
	Sections     []*Section
	Symbols      []*Symbol
	Relocations  []Relocation
}

// New creates an object with the mandatory section 0 code/text section
// already present.
func New() *GenericObjectFile {
	obj := &GenericObjectFile{}
	obj.Sections = append(obj.Sections, &Section{Name: ".text", Flags: SectionExecutable})
	return obj
}

// CodeSection returns section 0, always the code/text section (spec.md
// §4.7 "code_section(obj)").
func (o *GenericObjectFile) CodeSection() *Section { return o.Sections[0] }

// GetSectionByName returns the named section, creating it (appended at
// the end) if it does not yet exist.
func (o *GenericObjectFile) GetSectionByName(name string) *Section {
	for _, s := range o.Sections {
		if s.Name == name {
			return s
		}
	}
	s := &Section{Name: name}
	o.Sections = append(o.Sections, s)
	return s
}

// secWrite appends n bytes of v (little-endian) to sec.Data.
func secWrite(sec *Section, v uint64, n int) {
	for i := 0; i < n; i++ {
		sec.Data = append(sec.Data, byte(v>>(8*uint(i))))
	}
}

// SecWrite1/2/3/4 append 1..4 little-endian bytes to sec (spec.md §4.7
// "sec_write_N").
func SecWrite1(sec *Section, v uint8)  { secWrite(sec, uint64(v), 1) }
func SecWrite2(sec *Section, v uint16) { secWrite(sec, uint64(v), 2) }
func SecWrite3(sec *Section, v uint32) { secWrite(sec, uint64(v), 3) }
func SecWrite4(sec *Section, v uint32) { secWrite(sec, uint64(v), 4) }

// SecWriteN appends an arbitrary byte slice to sec ("sec_write_n").
func SecWriteN(sec *Section, b []byte) { sec.Data = append(sec.Data, b...) }

// MCode1/2/3/4/N are aliases of SecWrite* that always target the object's
// code section, matching spec.md §4.7's "mcode_N/mcode_n (aliases writing
// into the code section)".
func (o *GenericObjectFile) MCode1(v uint8)    { SecWrite1(o.CodeSection(), v) }
func (o *GenericObjectFile) MCode2(v uint16)   { SecWrite2(o.CodeSection(), v) }
func (o *GenericObjectFile) MCode3(v uint32)   { SecWrite3(o.CodeSection(), v) }
func (o *GenericObjectFile) MCode4(v uint32)   { SecWrite4(o.CodeSection(), v) }
func (o *GenericObjectFile) MCodeN(b []byte)   { SecWriteN(o.CodeSection(), b) }
func (o *GenericObjectFile) CodeOffset() int   { return len(o.CodeSection().Data) }

// AddSymbol appends sym to the object's symbol table.
func (o *GenericObjectFile) AddSymbol(sym *Symbol) { o.Symbols = append(o.Symbols, sym) }

// AddRelocation records a relocation against name at the code section's
// current offset (spec.md §4.6 "the encoder records a RelocationEntry at
// the current byte offset of the code section").
func (o *GenericObjectFile) AddRelocation(kind RelocationKind, symbol string, addend int64) {
	o.Relocations = append(o.Relocations, Relocation{
		Kind: kind, Offset: o.CodeOffset(), Symbol: symbol, Addend: addend,
	})
}

// StripLocalLabels removes every `.L*`-named symbol and every relocation
// against such a symbol, once local-label resolution has patched their
// bytes in place (spec.md §4.6 "Local-label relocations"; §8 "Encoder/
// label invariance").
func (o *GenericObjectFile) StripLocalLabels() {
	var syms []*Symbol
	for _, s := range o.Symbols {
		if !isLocalLabel(s.Name) {
			syms = append(syms, s)
		}
	}
	o.Symbols = syms

	var relocs []Relocation
	for _, r := range o.Relocations {
		if !isLocalLabel(r.Symbol) {
			relocs = append(relocs, r)
		}
	}
	o.Relocations = relocs
}

func isLocalLabel(name string) bool {
	return len(name) >= 2 && name[0] == '.' && name[1] == 'L'
}

// Delete releases obj's resources. Go's GC makes this a no-op in
// practice, but the call site is kept (mirroring
// generic_object_delete) because the codegen Context's teardown
// sequence is part of the documented ownership model in spec.md §5.
func Delete(obj *GenericObjectFile) { _ = obj }

// Print renders a human-readable dump of the object (spec.md §4.7
// "generic_object_print").
func Print(obj *GenericObjectFile) string {
	s := ""
	for _, sec := range obj.Sections {
		s += fmt.Sprintf("section %s (%d bytes, flags=%d)\n", sec.Name, len(sec.Data), sec.Flags)
	}
	for _, sym := range obj.Symbols {
		s += fmt.Sprintf("symbol %-20s kind=%d section=%s offset=%d\n", sym.Name, sym.Kind, sym.Section, sym.Offset)
	}
	for _, r := range obj.Relocations {
		s += fmt.Sprintf("reloc  @%d -> %s (+%d) kind=%d\n", r.Offset, r.Symbol, r.Addend, r.Kind)
	}
	return s
}
