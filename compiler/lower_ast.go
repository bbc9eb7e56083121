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
package compiler

import (
	"github.com/nyxlang/nyxc/ast"
	"github.com/nyxlang/nyxc/diag"
	"github.com/nyxlang/nyxc/ir"
)

// astLowerer is the "IR builder" pipeline stage (spec.md §2 item 2):
// walks an already-parsed, already-typed ast.Module's functions and
// builds one ir.Func per declaration via ir.Builder. Everything upstream
// of this (lexing, parsing, type checking) is the explicitly out-of-scope
// front end (spec.md §1); this stage only ever sees a Module that is
// already a valid typed AST.
//
// Locals are lowered the simplest correct way — a stack slot per
// declaration, loaded/stored around every use — rather than constructing
// phi nodes directly from control flow; this mirrors how a
// non-optimizing front end hands off to a middle end that is expected to
// mem2reg later (out of scope here per spec.md §1 "optimisation passes
// beyond basic DCE/fold hooks").
type astLowerer struct {
	funcs map[*ast.Function]*ir.Func
}

func newASTLowerer() *astLowerer { return &astLowerer{funcs: map[*ast.Function]*ir.Func{}} }

// LowerModule lowers every function declared in mod to IR.
func LowerModule(mod *ast.Module) []*ir.Func {
	al := newASTLowerer()
	for _, fd := range mod.Funcs {
		al.funcs[fd] = ir.NewFunc(fd.Name, fd.FuncType)
		al.funcs[fd].Attrs.Extern = fd.Extern
	}

	var out []*ir.Func
	for _, fd := range mod.Funcs {
		fn := al.funcs[fd]
		if !fd.Extern {
			al.lowerBody(fd, fn)
		}
		out = append(out, fn)
	}
	return out
}

type scope struct {
	vars   map[*ast.Declaration]*ir.Value // declaration -> stack-allocated slot
	parent *scope
}

func newScope(parent *scope) *scope { return &scope{vars: map[*ast.Declaration]*ir.Value{}, parent: parent} }

func (s *scope) lookup(d *ast.Declaration) *ir.Value {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[d]; ok {
			return v
		}
	}
	return nil
}

type fnLowerer struct {
	al *astLowerer
	fn *ir.Func
	bd *ir.Builder
	// declByName resolves a VarRef's symbol back to the ast.Declaration
	// introduced by the nearest enclosing block, since VarRef only
	// carries a name and a semantic-analysis-owned *ast.Symbol (spec.md
	// §1: symbol resolution is collaborator-level; this package matches
	// purely on declaration identity recorded while lowering).
	declByName map[string]*ast.Declaration
	cur        *scope
}

func (al *astLowerer) lowerBody(fd *ast.Function, fn *ir.Func) {
	fl := &fnLowerer{al: al, fn: fn, declByName: map[string]*ast.Declaration{}}
	fl.bd = ir.NewBuilder(fn)
	entry := fn.NewBlock()
	fl.bd.SetBlock(entry)

	fl.cur = newScope(nil)
	for i, p := range fd.Params {
		pv := fl.bd.AddParameterToFunction(paramType(fd.FuncType, i))
		slot := fl.bd.StackAllocate(pv.Type)
		fl.bd.Store(slot, pv)
		fl.cur.vars[p] = slot
		fl.declByName[p.Name] = p
	}

	fl.lowerBlock(fd.Body)

	// A falling-off-the-end void function needs an explicit terminator;
	// non-void functions relying on this are a front-end/type-checker
	// responsibility (spec.md §1) and are not re-validated here.
	if fl.bd.Block != nil && !blockTerminated(fl.bd.Block) {
		fl.bd.Return(nil)
	}
}

func paramType(ft *ast.FuncType, i int) ast.Type {
	if ft == nil || i >= len(ft.Params) {
		return nil
	}
	return ft.Params[i].Type
}

func blockTerminated(b *ir.Block) bool {
	if b == nil {
		return true
	}
	last := b.Last()
	return last != nil && isTerminator(last)
}

func isTerminator(v *ir.Value) bool {
	switch v.Op {
	case ir.OpReturn, ir.OpBranch, ir.OpBranchCond, ir.OpUnreachable:
		return true
	}
	return false
}

func (fl *fnLowerer) lowerBlock(b *ast.Block) {
	parent := fl.cur
	fl.cur = newScope(parent)
	defer func() { fl.cur = parent }()

	for _, stmt := range b.Stmts {
		if fl.bd.Block == nil || blockTerminated(fl.bd.Block) {
			return
		}
		fl.lowerStmt(stmt)
	}
}

func (fl *fnLowerer) lowerStmt(n ast.Node) {
	switch v := n.(type) {
	case *ast.Declaration:
		slot := fl.bd.StackAllocate(v.Type())
		fl.cur.vars[v] = slot
		fl.declByName[v.Name] = v
		if v.Init != nil {
			init := fl.lowerExpr(v.Init)
			fl.bd.Store(slot, init)
		}

	case *ast.Return:
		if v.Value == nil {
			fl.bd.Return(nil)
		} else {
			fl.bd.Return(fl.lowerExpr(v.Value))
		}

	case *ast.If:
		fl.lowerIf(v)

	case *ast.While:
		fl.lowerWhile(v)

	case *ast.Block:
		fl.lowerBlock(v)

	default:
		// Expression statement, evaluated for side effects only.
		fl.lowerExpr(n)
	}
}

func (fl *fnLowerer) lowerIf(v *ast.If) {
	cond := fl.lowerExpr(v.Cond)
	thenBlk := fl.fn.NewBlock()
	elseBlk := fl.fn.NewBlock()
	var mergeBlk *ir.Block

	fl.bd.BranchCond(cond, thenBlk, elseBlk)

	fl.bd.SetBlock(thenBlk)
	fl.lowerStmt(v.Then)
	if !blockTerminated(fl.bd.Block) {
		mergeBlk = fl.fn.NewBlock()
		fl.bd.Branch(mergeBlk)
	}

	fl.bd.SetBlock(elseBlk)
	if v.Else != nil {
		fl.lowerStmt(v.Else)
	}
	if !blockTerminated(fl.bd.Block) {
		if mergeBlk == nil {
			mergeBlk = fl.fn.NewBlock()
		}
		fl.bd.Branch(mergeBlk)
	}

	if mergeBlk != nil {
		fl.bd.SetBlock(mergeBlk)
	} else {
		fl.bd.SetBlock(nil)
	}
}

func (fl *fnLowerer) lowerWhile(v *ast.While) {
	headBlk := fl.fn.NewBlock()
	bodyBlk := fl.fn.NewBlock()
	exitBlk := fl.fn.NewBlock()

	fl.bd.Branch(headBlk)
	fl.bd.SetBlock(headBlk)
	cond := fl.lowerExpr(v.Cond)
	fl.bd.BranchCond(cond, bodyBlk, exitBlk)

	fl.bd.SetBlock(bodyBlk)
	fl.lowerStmt(v.Body)
	if !blockTerminated(fl.bd.Block) {
		fl.bd.Branch(headBlk)
	}

	fl.bd.SetBlock(exitBlk)
}

func (fl *fnLowerer) lowerExpr(n ast.Node) *ir.Value {
	switch v := n.(type) {
	case *ast.LiteralInt:
		return fl.bd.Immediate(n.Type(), v.Value)

	case *ast.VarRef:
		d := fl.declByName[v.Name]
		diag.Assert(d != nil, "unresolved local %q reached IR lowering", v.Name)
		return fl.bd.Load(fl.cur.lookup(d))

	case *ast.FuncRef:
		callee, ok := fl.al.funcs[v.Function]
		diag.Assert(ok, "reference to undeclared function %q", v.Name)
		return fl.bd.FuncReference(callee)

	case *ast.Binary:
		if v.Op.IsShortCircuit() {
			return fl.lowerShortCircuit(v)
		}
		lhs := fl.lowerExpr(v.Lhs)
		rhs := fl.lowerExpr(v.Rhs)
		return fl.bd.BinOp(v.Op, lhs, rhs, n.Type())

	case *ast.Unary:
		if v.Op == ast.UAddrOf {
			if d, ok := v.Operand.(*ast.VarRef); ok {
				return fl.cur.lookup(fl.declByName[d.Name])
			}
			diag.Unimplemented("address-of a non-local lvalue")
			return nil
		}
		operand := fl.lowerExpr(v.Operand)
		if v.Op == ast.UDeref {
			return fl.bd.Load(operand)
		}
		return fl.bd.Not(operand)

	case *ast.Call:
		return fl.lowerCall(v)

	case *ast.Declaration:
		if existing := fl.cur.lookup(v); existing != nil {
			// Assignment through a declared lvalue, e.g. `x = x + 1`
			// surfaced here as a re-visited Declaration node by the
			// front end's desugaring; lowered as a plain reload of the
			// variable's slot (no store is emitted here).
			return fl.bd.Load(existing)
		}
		fl.lowerStmt(v)
		return fl.bd.Load(fl.cur.vars[v])

	default:
		diag.Unimplemented("AST node kind in expression position")
		return nil
	}
}

// lowerShortCircuit lowers `&&`/`||` into a three-block diamond returning
// 0/1 through a stack slot, since MIR/IR here has no boolean phi sugar.
func (fl *fnLowerer) lowerShortCircuit(v *ast.Binary) *ir.Value {
	result := fl.bd.StackAllocate(v.Type())
	lhs := fl.lowerExpr(v.Lhs)

	rhsBlk := fl.fn.NewBlock()
	shortBlk := fl.fn.NewBlock()
	mergeBlk := fl.fn.NewBlock()

	if v.Op == ast.BLogicalAnd {
		fl.bd.BranchCond(lhs, rhsBlk, shortBlk)
	} else {
		fl.bd.BranchCond(lhs, shortBlk, rhsBlk)
	}

	fl.bd.SetBlock(shortBlk)
	fl.bd.Store(result, lhs)
	fl.bd.Branch(mergeBlk)

	fl.bd.SetBlock(rhsBlk)
	rhs := fl.lowerExpr(v.Rhs)
	fl.bd.Store(result, rhs)
	fl.bd.Branch(mergeBlk)

	fl.bd.SetBlock(mergeBlk)
	return fl.bd.Load(result)
}

func (fl *fnLowerer) lowerCall(v *ast.Call) *ir.Value {
	if ref, ok := v.Callee.(*ast.FuncRef); ok {
		callee, ok := fl.al.funcs[ref.Function]
		diag.Assert(ok, "call to undeclared function %q", ref.Name)
		call := fl.bd.DirectCall(callee, v.Type())
		for _, a := range v.Args {
			fl.bd.AddCallArg(call, fl.lowerExpr(a))
		}
		return fl.bd.InsertCall(call)
	}
	calleeVal := fl.lowerExpr(v.Callee)
	call := fl.bd.IndirectCall(calleeVal, v.Type())
	for _, a := range v.Args {
		fl.bd.AddCallArg(call, fl.lowerExpr(a))
	}
	return fl.bd.InsertCall(call)
}
