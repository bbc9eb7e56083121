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

import "fmt"

// SourceRange is a byte range `[Start, End)` into the owning Module's
// source buffer, carried by every node.
type SourceRange struct {
	Start, End int
}

// NodeKind tags the AST node variant (spec.md §3).
type NodeKind int

const (
	NDeclaration NodeKind = iota
	NFunction
	NBlock
	NIf
	NWhile
	NFor
	NReturn
	NCall
	NCast
	NBinary
	NUnary
	NLiteralInt
	NLiteralString
	NLiteralCompound
	NVarRef
	NFuncRef
	NModuleRef
	NStructDecl
	NMemberAccess
	NRoot
)

// Node is the variant interface every AST node implements. Each concrete
// node owns a back-pointer to its parent, re-established whenever the node
// is constructed or moved, and a SourceRange.
type Node interface {
	Kind() NodeKind
	Parent() Node
	SetParent(Node)
	Range() SourceRange
	Type() Type
	SetType(Type)
	String() string
}

// base is embedded by every concrete node; it supplies the parent
// back-pointer, source range, and resolved type storage shared by all
// variants, mirroring the teacher's Expr base-struct embedding idiom.
type base struct {
	parent Node
	rng    SourceRange
	typ    Type
}

func (b *base) Parent() Node         { return b.parent }
func (b *base) SetParent(p Node)     { b.parent = p }
func (b *base) Range() SourceRange   { return b.rng }
func (b *base) Type() Type           { return b.typ }
func (b *base) SetType(t Type)       { b.typ = t }

// RootDecl is the top-level node owning every declaration in a module.
type RootDecl struct {
	base
	Decls []Node
}

func (n *RootDecl) Kind() NodeKind { return NRoot }
func (n *RootDecl) String() string { return fmt.Sprintf("RootDecl{decls=%d}", len(n.Decls)) }

// Declaration is a `let`/local-variable declaration.
type Declaration struct {
	base
	Name string
	Init Node // may be nil
}

func (n *Declaration) Kind() NodeKind { return NDeclaration }
func (n *Declaration) String() string { return fmt.Sprintf("Declaration{%s}", n.Name) }

// StructDecl declares a named struct type.
type StructDecl struct {
	base
	Name string
	Type *StructType
}

func (n *StructDecl) Kind() NodeKind { return NStructDecl }
func (n *StructDecl) String() string { return fmt.Sprintf("StructDecl{%s}", n.Name) }

// Function is a function declaration/definition.
type Function struct {
	base
	Name     string
	FuncType *FuncType
	Params   []*Declaration
	Body     *Block
	Extern   bool
}

func (n *Function) Kind() NodeKind { return NFunction }
func (n *Function) String() string { return fmt.Sprintf("Function{%s}", n.Name) }

// Block is a `{ ... }` sequence of statements/expressions.
type Block struct {
	base
	Stmts []Node
}

func (n *Block) Kind() NodeKind { return NBlock }
func (n *Block) String() string { return fmt.Sprintf("Block{n=%d}", len(n.Stmts)) }

// If is `if Cond Then [else Else]`.
type If struct {
	base
	Cond Node
	Then Node
	Else Node // may be nil
}

func (n *If) Kind() NodeKind { return NIf }
func (n *If) String() string { return "If{}" }

// While is `while Cond Body`.
type While struct {
	base
	Cond Node
	Body Node
}

func (n *While) Kind() NodeKind { return NWhile }
func (n *While) String() string { return "While{}" }

// For is `for Init; Cond; Step Body`.
type For struct {
	base
	Init Node
	Cond Node
	Step Node
	Body Node
}

func (n *For) Kind() NodeKind { return NFor }
func (n *For) String() string { return "For{}" }

// Return is `return [Value]`.
type Return struct {
	base
	Value Node // nil for void return
}

func (n *Return) Kind() NodeKind { return NReturn }
func (n *Return) String() string { return "Return{}" }

// Call is `Callee(Args...)`.
type Call struct {
	base
	Callee Node
	Args   []Node
}

func (n *Call) Kind() NodeKind { return NCall }
func (n *Call) String() string { return fmt.Sprintf("Call{args=%d}", len(n.Args)) }

// Cast is an explicit `Value as Target` conversion.
type Cast struct {
	base
	Value  Node
	Target Type
}

func (n *Cast) Kind() NodeKind { return NCast }
func (n *Cast) String() string { return fmt.Sprintf("Cast{->%s}", Typename(n.Target, false)) }

// BinOp enumerates binary operators, including the comparison family whose
// IsCmp predicate the IR builder consults when choosing a comparison
// opcode.
type BinOp int

const (
	BAdd BinOp = iota
	BSub
	BMul
	BDiv
	BMod
	BShl
	BSar
	BShr
	BAnd
	BOr
	BXor
	BLt
	BLe
	BGt
	BGe
	BEq
	BNe
	BLogicalAnd
	BLogicalOr
)

func (op BinOp) IsCmp() bool {
	switch op {
	case BLt, BLe, BGt, BGe, BEq, BNe:
		return true
	}
	return false
}

func (op BinOp) IsShortCircuit() bool {
	return op == BLogicalAnd || op == BLogicalOr
}

// Binary is `Lhs Op Rhs`.
type Binary struct {
	base
	Op   BinOp
	Lhs  Node
	Rhs  Node
}

func (n *Binary) Kind() NodeKind { return NBinary }
func (n *Binary) String() string { return "Binary{}" }

// UnOp enumerates unary operators.
type UnOp int

const (
	UNeg UnOp = iota
	UNot
	UBitNot
	UAddrOf // &x
	UDeref  // @x
)

// Unary is `Op Operand`.
type Unary struct {
	base
	Op      UnOp
	Operand Node
}

func (n *Unary) Kind() NodeKind { return NUnary }
func (n *Unary) String() string { return "Unary{}" }

// LiteralInt is an integer literal.
type LiteralInt struct {
	base
	Value int64
}

func (n *LiteralInt) Kind() NodeKind { return NLiteralInt }
func (n *LiteralInt) String() string { return fmt.Sprintf("LiteralInt{%d}", n.Value) }

// LiteralString is a string literal; Value is the decoded (unescaped) text.
type LiteralString struct {
	base
	Value string
}

func (n *LiteralString) Kind() NodeKind { return NLiteralString }
func (n *LiteralString) String() string { return fmt.Sprintf("LiteralString{%q}", n.Value) }

// LiteralCompound is an array/struct literal, e.g. `[1, 2, 3]`.
type LiteralCompound struct {
	base
	Elems []Node
}

func (n *LiteralCompound) Kind() NodeKind { return NLiteralCompound }
func (n *LiteralCompound) String() string {
	return fmt.Sprintf("LiteralCompound{n=%d}", len(n.Elems))
}

// VarRef refers to a local/global variable by name, resolved to a Symbol
// during semantic analysis (collaborator-level, spec.md §1).
type VarRef struct {
	base
	Name   string
	Symbol *Symbol
}

func (n *VarRef) Kind() NodeKind { return NVarRef }
func (n *VarRef) String() string { return fmt.Sprintf("VarRef{%s}", n.Name) }

// FuncRef refers to a function by name.
type FuncRef struct {
	base
	Name     string
	Function *Function
}

func (n *FuncRef) Kind() NodeKind { return NFuncRef }
func (n *FuncRef) String() string { return fmt.Sprintf("FuncRef{%s}", n.Name) }

// ModuleRef refers to an imported module by name.
type ModuleRef struct {
	base
	Name string
}

func (n *ModuleRef) Kind() NodeKind { return NModuleRef }
func (n *ModuleRef) String() string { return fmt.Sprintf("ModuleRef{%s}", n.Name) }

// MemberAccess is `Base.Member`.
type MemberAccess struct {
	base
	Object Node
	Member string
}

func (n *MemberAccess) Kind() NodeKind { return NMemberAccess }
func (n *MemberAccess) String() string { return fmt.Sprintf("MemberAccess{.%s}", n.Member) }

// IsLvalue reports whether node denotes an assignable storage location
// (spec.md §4.2): declarations, variable references, member accesses, and
// dereference unary `@`.
func IsLvalue(n Node) bool {
	switch v := n.(type) {
	case *Declaration, *VarRef, *MemberAccess:
		return true
	case *Unary:
		return v.Op == UDeref
	}
	return false
}

// Walker performs a depth-first traversal over a RootDecl, mirroring the
// teacher's AstWalker Pre/Post callback shape but generalised to the full
// node-kind switch above.
type Walker struct {
	Root     func(*RootDecl)
	FuncPre  func(*Function)
	Func     func(*Function)
	FuncPost func(*Function)
	Enter    func(Node)
	Leave    func(Node)
}

// Walk traverses root and every declaration/statement/expression reachable
// from it, calling the configured callbacks. It re-establishes each
// visited node's parent pointer as it descends, matching the Module
// invariant that parent pointers are "re-established on construction or
// replacement" (spec.md §3).
func (w *Walker) Walk(root *RootDecl) {
	if w.Root != nil {
		w.Root(root)
	}
	for _, d := range root.Decls {
		d.SetParent(root)
		w.walkNode(d)
	}
}

func (w *Walker) walkNode(n Node) {
	if n == nil {
		return
	}
	if w.Enter != nil {
		w.Enter(n)
	}
	switch v := n.(type) {
	case *Function:
		if w.FuncPre != nil {
			w.FuncPre(v)
		}
		for _, p := range v.Params {
			p.SetParent(v)
			w.walkNode(p)
		}
		if v.Body != nil {
			v.Body.SetParent(v)
			w.walkNode(v.Body)
		}
		if w.Func != nil {
			w.Func(v)
		}
		if w.FuncPost != nil {
			w.FuncPost(v)
		}
	case *Block:
		for _, s := range v.Stmts {
			s.SetParent(v)
			w.walkNode(s)
		}
	case *If:
		w.setWalk(v.Cond, v)
		w.setWalk(v.Then, v)
		w.setWalk(v.Else, v)
	case *While:
		w.setWalk(v.Cond, v)
		w.setWalk(v.Body, v)
	case *For:
		w.setWalk(v.Init, v)
		w.setWalk(v.Cond, v)
		w.setWalk(v.Step, v)
		w.setWalk(v.Body, v)
	case *Return:
		w.setWalk(v.Value, v)
	case *Call:
		w.setWalk(v.Callee, v)
		for _, a := range v.Args {
			w.setWalk(a, v)
		}
	case *Cast:
		w.setWalk(v.Value, v)
	case *Binary:
		w.setWalk(v.Lhs, v)
		w.setWalk(v.Rhs, v)
	case *Unary:
		w.setWalk(v.Operand, v)
	case *LiteralCompound:
		for _, e := range v.Elems {
			w.setWalk(e, v)
		}
	case *MemberAccess:
		w.setWalk(v.Object, v)
	case *Declaration:
		w.setWalk(v.Init, v)
	}
	if w.Leave != nil {
		w.Leave(n)
	}
}

func (w *Walker) setWalk(n Node, parent Node) {
	if n == nil {
		return
	}
	n.SetParent(parent)
	w.walkNode(n)
}
