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
package object_test

import (
	"bytes"
	"debug/elf"
	"testing"

	"github.com/nyxlang/nyxc/object"
	"github.com/stretchr/testify/require"
)

func TestMCodeWritersAppendToTextSection(t *testing.T) {
	obj := object.New()
	obj.MCode1(0x90)
	obj.MCode2(0x1234)
	obj.MCode4(0xDEADBEEF)
	require.Equal(t, 7, obj.CodeOffset())
	require.Equal(t, byte(0x90), obj.CodeSection().Data[0])
}

func TestAsELFx8664ProducesWellFormedRelocatable(t *testing.T) {
	obj := object.New()
	obj.MCode1(0xC3) // ret
	obj.AddSymbol(&object.Symbol{Kind: object.SymFunction, Name: "f", Section: ".text", Offset: 0})

	raw, err := object.AsELFx8664(obj)
	require.NoError(t, err)
	require.True(t, len(raw) > 4)
	require.Equal(t, []byte{0x7f, 'E', 'L', 'F'}, raw[:4])

	f, err := elf.NewFile(bytes.NewReader(raw))
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, elf.ET_REL, f.Type)
	require.Equal(t, elf.EM_X86_64, f.Machine)
}
