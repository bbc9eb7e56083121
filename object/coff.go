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
package object

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"os"

	"github.com/pkg/errors"
)

const (
	imageFileMachineAMD64 = 0x8664
	imageSCNCntCode        = 0x00000020
	imageSCNMemExecute     = 0x20000000
	imageSCNMemRead        = 0x40000000
	imageSCNMemWrite       = 0x80000000
)

// coffSectionHeader mirrors pe.SectionHeader32 but is spelled out here so
// the field set and packing are explicit (the machine/characteristic
// constants above are local; debug/pe supplies only pe.FileHeader).
type coffSectionHeader struct {
	Name                 [8]byte
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLineNumbers uint32
	NumberOfRelocations  uint16
	NumberOfLineNumbers  uint16
	Characteristics      uint32
}

// AsCOFFx8664 serialises obj as a plain (non-PE) x86-64 COFF object file
// — the object-writer collaborator contract for the MSWIN target (spec.md
// §4.7 "generic_object_as_coff_x86_64", §6 object-writer contract).
func AsCOFFx8664(obj *GenericObjectFile) ([]byte, error) {
	fh := pe.FileHeader{
		Machine:              imageFileMachineAMD64,
		NumberOfSections:     uint16(len(obj.Sections)),
		SizeOfOptionalHeader: 0, // object files carry no optional header
		Characteristics:      0,
	}

	headerSize := binary.Size(fh) + len(obj.Sections)*binary.Size(coffSectionHeader{})
	offset := uint32(headerSize)

	var sections []coffSectionHeader
	var raw [][]byte
	for i, sec := range obj.Sections {
		data := sec.Data
		if sec.Flags&SectionSpanFill != 0 {
			data = bytes.Repeat([]byte{sec.FillByte}, sec.FillLen)
		}
		chars := uint32(imageSCNMemRead)
		if sec.Flags&SectionExecutable != 0 {
			chars |= imageSCNCntCode | imageSCNMemExecute
		}
		if sec.Flags&SectionWritable != 0 {
			chars |= imageSCNMemWrite
		}
		var name [8]byte
		nm := sec.Name
		if i == 0 {
			nm = ".text"
		}
		copy(name[:], nm)
		sh := coffSectionHeader{
			Name:             name,
			SizeOfRawData:    uint32(len(data)),
			PointerToRawData: offset,
			Characteristics:  chars,
		}
		sections = append(sections, sh)
		raw = append(raw, data)
		offset += uint32(len(data))
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &fh); err != nil {
		return nil, errors.Wrap(err, "writing COFF file header")
	}
	for _, sh := range sections {
		if err := binary.Write(&buf, binary.LittleEndian, &sh); err != nil {
			return nil, errors.Wrap(err, "writing COFF section header")
		}
	}
	for _, r := range raw {
		buf.Write(r)
	}

	_ = obj.Symbols
	_ = obj.Relocations
	return buf.Bytes(), nil
}

// AsCOFFx8664AtPath writes the serialised COFF object to path.
func AsCOFFx8664AtPath(obj *GenericObjectFile, path string) error {
	data, err := AsCOFFx8664(obj)
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "writing COFF object file")
}
