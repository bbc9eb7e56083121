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

import (
	"github.com/nyxlang/nyxc/diag"
)

// OperandKind is the `type` production: reg | imm | name | block | any.
type OperandKind int

const (
	OKAny OperandKind = iota
	OKReg
	OKImm
	OKName
	OKBlock
)

// ConstraintOp is one of eq/ne/lt/gt/le/ge, or "none" for a bare `any`.
type ConstraintOp int

const (
	CNone ConstraintOp = iota
	CEq
	CNe
	CLt
	CGt
	CLe
	CGe
)

// ConstraintValue is either a literal number, a register name, or a
// cross-reference to another operand/instruction name (`value` production).
type ConstraintValue struct {
	IsNumber bool
	Number   int64
	Ref      string // REGISTER text, oname, or iname
}

// Constraint is one `constraint` production, possibly with `|`-joined
// alternatives.
type Constraint struct {
	Op  ConstraintOp
	Alt []ConstraintValue
}

// Operand is one `operand` production: either a reference to a previously
// matched instruction (`iname`), or a fresh operand binding (`oname`) with
// an optional type and constraint, or the `o*` remainder wildcard.
type Operand struct {
	IsInstrRef bool // true: this operand IS iname (a sub-instruction match)
	Name       string
	IsRemainder bool // o*
	Kind        OperandKind
	Constraint  *Constraint
}

// Filter is one `where iname [INSTRNAME] [with-clause]` production.
type Filter struct {
	IName       string
	InstrName   string // optional opcode restriction
	Commutative bool
	Operands    []Operand
}

// SideEffect is `clobber REG...` or `out (REG|oname|any)`.
type SideEffect struct {
	IsClobber bool
	Clobbers  []string
	OutIsAny  bool
	OutRef    string
}

// EmitOp is one entry in an `emit` instruction's operand list.
type EmitOp struct {
	IsResult bool
	IsNumber bool
	Number   int64
	Ref      string // oname, iname, or REGISTER text
}

// Result is `emit INSTR op, op, ...` or `discard`.
type Result struct {
	Discard bool
	Instr   string
	Ops     []EmitOp
}

// Rule is one fully parsed `match ... .` pattern (spec.md §4.3 grammar).
type Rule struct {
	Leads       []string // the `iname`s named after `match`
	Filters     []Filter
	SideEffects []SideEffect
	Results     []Result

	// Link names another rule (by its first lead iname) to retry as a
	// partial-match fallback when only this rule's prefix matched
	// (spec.md §4.4 tie-break rule 4). Neither the parser nor the table
	// builder sets it, and the DSL has no syntax for it (';' starts a
	// comment), so it is empty for every rule read from .isel source.
	Link string

	SourceOrder int
}

// Parser is a recursive-descent parser for the pattern grammar in spec.md
// §4.3, grounded structurally on the teacher's ast/parser.go (token
// lookahead + consume-or-error idiom).
type Parser struct {
	lex  *Lexer
	tok  Tok
	next int
}

// NewParser creates a parser reading from lex.
func NewParser(lex *Lexer) *Parser {
	p := &Parser{lex: lex}
	p.advance()
	return p
}

func (p *Parser) advance() { p.tok = p.lex.Token() }

func (p *Parser) expectKeyword(kw string) {
	if p.tok.Kind != TokKeyword || p.tok.Text != kw {
		diag.ICE("isel parser: expected keyword %q, got %q", kw, p.tok.String())
	}
	p.advance()
}

func (p *Parser) isKeyword(kw string) bool { return p.tok.Kind == TokKeyword && p.tok.Text == kw }

// ParseFile parses a full DSL source into an ordered rule list, handling
// top-level `macro`/`undef`/`for` constructs by expanding them through the
// lexer before rules are read.
func (p *Parser) ParseFile() []*Rule {
	var rules []*Rule
	order := 0
	for p.tok.Kind != TokEOF {
		switch {
		case p.isKeyword("macro"):
			p.parseMacroDef()
		case p.isKeyword("undef"):
			p.advance()
			name := p.tok.Text
			p.advance()
			p.lex.Undef(name)
		case p.isKeyword("for"):
			p.parseForLoop(&rules, &order)
		case p.isKeyword("match"):
			r := p.parseRule()
			r.SourceOrder = order
			order++
			rules = append(rules, r)
		default:
			diag.ICE("isel parser: unexpected token %q at top level", p.tok.String())
		}
	}
	return rules
}

func (p *Parser) parseMacroDef() {
	p.advance() // 'macro'
	name := p.tok.Text
	p.advance()
	var params []string
	for p.tok.Kind == TokMacroName {
		params = append(params, p.tok.Text)
		p.advance()
	}
	p.expectKeyword("expands")
	p.lex.SetRawMode(true)
	var body []Tok
	for !p.isKeyword("endmacro") {
		body = append(body, p.tok)
		p.advance()
	}
	p.lex.SetRawMode(false)
	p.advance() // 'endmacro'
	p.lex.DefineMacro(name, params, body)
}

// parseForLoop creates an anonymous macro over each value and parses the
// body once per value via repeated sub-parses (spec.md §4.3 `for ... do
// ... endfor`).
func (p *Parser) parseForLoop(rules *[]*Rule, order *int) {
	p.advance() // 'for'
	var values []Tok
	for {
		values = append(values, p.tok)
		p.advance()
		if p.tok.Kind != TokComma {
			break
		}
		p.advance()
	}
	p.expectKeyword("do")
	p.lex.SetRawMode(true)
	var body []Tok
	for !p.isKeyword("endfor") {
		body = append(body, p.tok)
		p.advance()
	}
	p.lex.SetRawMode(false)
	p.advance() // 'endfor'

	for _, v := range values {
		p.lex.DefineMacro("", nil, substituteHash(body, v))
		sub := NewParser(&Lexer{macros: map[string]macroDef{}})
		sub.lex.frames = []*expansionFrame{{tokens: substituteHash(body, v)}}
		sub.advance()
		for sub.tok.Kind != TokEOF {
			if sub.isKeyword("match") {
				r := sub.parseRule()
				r.SourceOrder = *order
				*order++
				*rules = append(*rules, r)
			} else {
				sub.advance()
			}
		}
	}
}

// substituteHash replaces the bare `#` loop token with the literal value
// text throughout body (spec.md §4.3 "inside the loop `#` yields the
// current value").
func substituteHash(body []Tok, value Tok) []Tok {
	out := make([]Tok, len(body))
	for i, t := range body {
		if t.Kind == TokMacroName && t.Text == "#" {
			out[i] = value
		} else {
			out[i] = t
		}
	}
	return out
}

func (p *Parser) parseRule() *Rule {
	p.expectKeyword("match")
	r := &Rule{}
	r.Leads = append(r.Leads, p.expectIName())
	for p.tok.Kind == TokComma {
		p.advance()
		r.Leads = append(r.Leads, p.expectIName())
	}
	for p.isKeyword("where") {
		r.Filters = append(r.Filters, p.parseFilter())
	}
	for p.isKeyword("clobber") || p.isKeyword("out") {
		r.SideEffects = append(r.SideEffects, p.parseSideEffect())
	}
	for p.isKeyword("emit") || p.isKeyword("discard") {
		r.Results = append(r.Results, p.parseResult())
	}
	if p.tok.Kind != TokDot {
		diag.ICE("isel parser: rule must end with '.', got %q", p.tok.String())
	}
	p.advance()
	return r
}

func (p *Parser) expectIName() string {
	if p.tok.Kind != TokIdent {
		diag.ICE("isel parser: expected an instruction name, got %q", p.tok.String())
	}
	s := p.tok.Text
	p.advance()
	return s
}

func (p *Parser) parseFilter() Filter {
	p.advance() // 'where'
	f := Filter{IName: p.expectIName()}
	if p.tok.Kind == TokInstrName {
		f.InstrName = p.tok.Text
		p.advance()
	}
	if p.isKeyword("with") {
		p.advance()
		if p.isKeyword("commutative") {
			f.Commutative = true
			p.advance()
		}
		for p.tok.Kind == TokIdent || p.tok.Kind == TokKeyword {
			if p.isKeyword("where") || p.isKeyword("clobber") || p.isKeyword("out") ||
				p.isKeyword("emit") || p.isKeyword("discard") {
				break
			}
			f.Operands = append(f.Operands, p.parseOperand())
		}
	}
	return f
}

func (p *Parser) parseOperand() Operand {
	if p.tok.Kind == TokIdent && p.tok.Text == "o*" {
		p.advance()
		return Operand{IsRemainder: true}
	}
	name := p.tok.Text
	p.advance()
	op := Operand{Name: name, Kind: OKAny}
	if p.isKeyword("reg") {
		op.Kind = OKReg
		p.advance()
	} else if p.isKeyword("imm") {
		op.Kind = OKImm
		p.advance()
	} else if p.isKeyword("name") {
		op.Kind = OKName
		p.advance()
	} else if p.isKeyword("block") {
		op.Kind = OKBlock
		p.advance()
	} else if p.isKeyword("any") {
		p.advance()
	}
	if c := p.tryParseConstraint(); c != nil {
		op.Constraint = c
	}
	return op
}

func (p *Parser) tryParseConstraint() *Constraint {
	var copKw ConstraintOp
	switch {
	case p.isKeyword("eq"):
		copKw = CEq
	case p.isKeyword("ne"):
		copKw = CNe
	case p.isKeyword("lt"):
		copKw = CLt
	case p.isKeyword("gt"):
		copKw = CGt
	case p.isKeyword("le"):
		copKw = CLe
	case p.isKeyword("ge"):
		copKw = CGe
	case p.isKeyword("any"):
		p.advance()
		return &Constraint{Op: CNone}
	default:
		return nil
	}
	p.advance()
	c := &Constraint{Op: copKw}
	c.Alt = append(c.Alt, p.parseConstraintValue())
	for p.tok.Kind == TokPipe {
		p.advance()
		c.Alt = append(c.Alt, p.parseConstraintValue())
	}
	return c
}

func (p *Parser) parseConstraintValue() ConstraintValue {
	if p.tok.Kind == TokNumber {
		v := ConstraintValue{IsNumber: true, Number: p.tok.Num}
		p.advance()
		return v
	}
	v := ConstraintValue{Ref: p.tok.Text}
	p.advance()
	return v
}

func (p *Parser) parseSideEffect() SideEffect {
	if p.isKeyword("clobber") {
		p.advance()
		se := SideEffect{IsClobber: true}
		se.Clobbers = append(se.Clobbers, p.tok.Text)
		p.advance()
		for p.tok.Kind == TokComma {
			p.advance()
			se.Clobbers = append(se.Clobbers, p.tok.Text)
			p.advance()
		}
		return se
	}
	p.advance() // 'out'
	if p.isKeyword("any") {
		p.advance()
		return SideEffect{OutIsAny: true}
	}
	se := SideEffect{OutRef: p.tok.Text}
	p.advance()
	return se
}

func (p *Parser) parseResult() Result {
	if p.isKeyword("discard") {
		p.advance()
		return Result{Discard: true}
	}
	p.advance() // 'emit'
	r := Result{Instr: p.tok.Text}
	p.advance()
	for p.tok.Kind == TokComma || (p.tok.Kind != TokDot && p.tok.Kind != TokEOF && !p.isKeyword("emit") && !p.isKeyword("discard")) {
		if p.tok.Kind == TokComma {
			p.advance()
			continue
		}
		r.Ops = append(r.Ops, p.parseEmitOp())
	}
	return r
}

func (p *Parser) parseEmitOp() EmitOp {
	if p.isKeyword("result") {
		p.advance()
		return EmitOp{IsResult: true}
	}
	if p.tok.Kind == TokNumber {
		v := EmitOp{IsNumber: true, Number: p.tok.Num}
		p.advance()
		return v
	}
	v := EmitOp{Ref: p.tok.Text}
	p.advance()
	return v
}
