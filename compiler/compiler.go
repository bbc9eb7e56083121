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

// Package compiler is the driver that wires together every core stage
// (spec.md §2): IR construction, ISel, MIR lowering, register allocation,
// x86-64 encoding, and object-file serialisation, behind the single entry
// point spec.md §6 calls for. Grounded on the teacher's compile/compiler.go
// top-level driver, generalised from "parse .y file, shell out to gcc" to
// "accept already-built IR or AST, emit an object file directly."
package compiler

import (
	"fmt"
	"os"
	"strings"

	"github.com/nyxlang/nyxc/ast"
	"github.com/nyxlang/nyxc/codegen/x86"
	"github.com/nyxlang/nyxc/diag"
	"github.com/nyxlang/nyxc/internal/xlog"
	"github.com/nyxlang/nyxc/ir"
	"github.com/nyxlang/nyxc/isel"
	"github.com/nyxlang/nyxc/mir"
	"github.com/nyxlang/nyxc/object"
	"github.com/nyxlang/nyxc/regalloc"
	"github.com/pkg/errors"
)

// SourceKind selects whether Options.IRSource or Options.Module feeds the
// pipeline (spec.md §6 "source language tag (IR | surface)").
type SourceKind int

const (
	SourceIR SourceKind = iota
	SourceSurface
)

// Target is the target architecture tag; x86-64 is the only value today
// (spec.md §6).
type Target int

const TargetX86_64 Target = 0

// ObjectKind selects the object-file container format (spec.md §6).
type ObjectKind int

const (
	ObjectELF ObjectKind = iota
	ObjectCOFF
)

// Options is the single entry function's parameter bundle (SPEC_FULL.md
// §6): source kind, target, object container, calling convention, I/O
// paths, and either a pre-parsed Module or pre-serialised IR text.
type Options struct {
	SourceKind SourceKind
	Target     Target
	ObjectKind ObjectKind
	CallConv   x86.CallingConvention
	InputPath  string
	OutputPath string
	Module     *ast.Module
	IRSource   string

	// ISelRules, when non-empty, is compiled into the ISel table used for
	// pattern absorption (spec.md §4.3/§4.4); when empty the pipeline
	// falls back to the one-to-one lowering for every instruction.
	ISelRules string
}

// Run executes the full pipeline described by opts and writes the
// resulting object file to opts.OutputPath (spec.md §6). It is the one
// library-caller-facing recovery point for diag.ICE panics (SPEC_FULL.md
// §5): internal packages never call recover themselves.
func Run(opts Options) (err error) {
	ctx := diag.NewContext()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("%v", r)
		}
		for _, d := range ctx.Diagnostics {
			xlog.Log.WithField("phase", "diagnostics").Warn(d.String())
		}
	}()

	xlog.Log.WithFields(map[string]interface{}{"phase": "start", "input": opts.InputPath}).Info("compilation starting")

	fns, err := buildIR(opts)
	if err != nil {
		return err
	}

	table := isel.NewTable(nil)
	if strings.TrimSpace(opts.ISelRules) != "" {
		table = isel.CompileSource(opts.ISelRules)
	}
	lowerer := isel.NewLowerer(table)
	md := x86.MachineDescription(opts.CallConv)
	allocator := regalloc.NewLSRA(md)

	obj := object.New()

	for _, fn := range fns {
		ir.Verify(fn)
		xlog.Log.WithField("func", fn.Name).Debug("lowering to MIR")

		if fn.Attrs.Extern {
			obj.AddSymbol(&object.Symbol{Kind: object.SymExternal, Name: fn.Name})
			continue
		}

		lowered := lowerer.Lower(fn)
		res, err := allocator.Allocate(lowered.Func, md)
		if err != nil {
			return errors.Wrapf(err, "register allocation failed for %s", fn.Name)
		}

		calleeSaved := usedCalleeSaved(res, x86.ABIFor(opts.CallConv).CalleeSaved)
		makesCalls := functionMakesCalls(lowered.Func)
		x86.AssembleFunction(obj, opts.CallConv, lowered.Func, res.SpillSlots, calleeSaved, makesCalls)
	}

	return writeObject(obj, opts)
}

func functionMakesCalls(fn *mir.Function) bool {
	for _, b := range fn.Blocks {
		for _, in := range b.Instructions {
			if in.Op == mir.MCall {
				return true
			}
		}
	}
	return false
}

func usedCalleeSaved(res *regalloc.Result, all []x86.Reg) []x86.Reg {
	var used []x86.Reg
	for _, r := range all {
		if res.UsedRegisters[r.VReg()] {
			used = append(used, r)
		}
	}
	return used
}

func buildIR(opts Options) ([]*ir.Func, error) {
	switch opts.SourceKind {
	case SourceSurface:
		if opts.Module == nil {
			return nil, errors.New("compiler: SourceSurface requires a non-nil Module")
		}
		return LowerModule(opts.Module), nil
	case SourceIR:
		return parseIRProgram(opts.IRSource)
	default:
		return nil, errors.Errorf("compiler: unknown source kind %d", opts.SourceKind)
	}
}

// parseIRProgram splits a multi-function textual IR program (spec.md §6
// "IR textual form") on top-level `defun` boundaries and parses each with
// ir.Parse, since that reverse-parser only handles one function per call.
func parseIRProgram(text string) ([]*ir.Func, error) {
	chunks := splitDefuns(text)
	var fns []*ir.Func
	for _, c := range chunks {
		fn, err := ir.Parse(c)
		if err != nil {
			return nil, errors.Wrap(err, "IR parse error")
		}
		fns = append(fns, fn)
	}
	return fns, nil
}

func splitDefuns(text string) []string {
	var chunks []string
	var cur strings.Builder
	depth := 0
	started := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if !started {
			if !strings.HasPrefix(trimmed, "defun ") {
				continue
			}
			started = true
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
		depth += strings.Count(line, "{") - strings.Count(line, "}")
		if started && depth == 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			started = false
		}
	}
	return chunks
}

func writeObject(obj *object.GenericObjectFile, opts Options) error {
	var bytes []byte
	var err error
	switch opts.ObjectKind {
	case ObjectELF:
		bytes, err = object.AsELFx8664(obj)
	case ObjectCOFF:
		bytes, err = object.AsCOFFx8664(obj)
	default:
		return fmt.Errorf("compiler: unknown object kind %d", opts.ObjectKind)
	}
	if err != nil {
		return errors.Wrap(err, "object serialisation failed")
	}
	if err := os.WriteFile(opts.OutputPath, bytes, 0644); err != nil {
		return errors.Wrapf(err, "writing object file %s", opts.OutputPath)
	}
	xlog.Log.WithField("output", opts.OutputPath).Info("object file written")
	return nil
}
