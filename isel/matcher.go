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
	"strings"

	"github.com/nyxlang/nyxc/ir"
)

// binding is one matched value during a rule attempt: either a reference
// to one of the rule's matched IR instructions (by lead index) or to a
// named operand (immediate value or a sub-value reference).
type binding struct {
	isImm bool
	imm   int64
	value *ir.Value
}

// Match is a successful rule application: which IR values it consumed
// (in lead order) and the bindings available to the result builder.
type Match struct {
	Rule     *Rule
	Consumed []*ir.Value
	Binds    map[string]binding
	Swapped  bool
}

// Matcher drives table-directed pattern absorption over one IR function's
// instructions in block order (spec.md §4.4), falling back to the
// one-to-one lowering pass (lower.go) at any position nothing matches.
type Matcher struct {
	Table *Table
}

// NewMatcher creates a matcher over t.
func NewMatcher(t *Table) *Matcher { return &Matcher{Table: t} }

// TryMatch attempts every rule registered for v's opcode, longest-match-
// first, applying the spec.md §4.4 tie-break rules in order: (1) longer
// sequence, (2) earlier source order, (3) commutative retry, (4) link
// chain fallback.
func (m *Matcher) TryMatch(v *ir.Value) *Match {
	name := strings.ToUpper(v.Op.String())
	candidates := append(append([]*Rule{}, m.Table.RulesFor(name)...), m.Table.RulesFor("*")...)
	best := m.tryCandidates(v, candidates, false)
	if best != nil {
		return best
	}
	// Tie-break 4: if any candidate names a link-chain fallback, retry
	// against the linked rule's own lead requirement.
	for _, r := range candidates {
		if r.Link == "" {
			continue
		}
		if linked, ok := m.Table.Link(r.Link); ok {
			if mt := m.attempt(v, linked, false); mt != nil {
				return mt
			}
		}
	}
	return nil
}

// tryCandidates scans rules longest-first (by lead count), breaking ties
// by SourceOrder, and as a second pass retries commutative rules with
// operands swapped.
func (m *Matcher) tryCandidates(v *ir.Value, candidates []*Rule, swapped bool) *Match {
	ordered := make([]*Rule, len(candidates))
	copy(ordered, candidates)
	sortRulesByPriority(ordered)

	for _, r := range ordered {
		if mt := m.attempt(v, r, false); mt != nil {
			return mt
		}
	}
	for _, r := range ordered {
		if !hasCommutativeFilter(r) {
			continue
		}
		if mt := m.attempt(v, r, true); mt != nil {
			return mt
		}
	}
	return nil
}

func sortRulesByPriority(rs []*Rule) {
	for i := 1; i < len(rs); i++ {
		for j := i; j > 0; j-- {
			a, b := rs[j-1], rs[j]
			if len(a.Leads) < len(b.Leads) || (len(a.Leads) == len(b.Leads) && a.SourceOrder > b.SourceOrder) {
				rs[j-1], rs[j] = rs[j], rs[j-1]
			} else {
				break
			}
		}
	}
}

func hasCommutativeFilter(r *Rule) bool {
	for _, f := range r.Filters {
		if f.Commutative {
			return true
		}
	}
	return false
}

// attempt tries to satisfy r against v (the rule's first lead) and, for
// multi-instruction rules, against v's operand-defining instructions for
// subsequent leads. swap requests operand order 0,1 be tried reversed for
// rules flagged commutative.
func (m *Matcher) attempt(v *ir.Value, r *Rule, swap bool) *Match {
	mt := &Match{Rule: r, Binds: map[string]binding{}, Swapped: swap}
	leadVals := map[string]*ir.Value{r.Leads[0]: v}
	mt.Consumed = append(mt.Consumed, v)

	// Subsequent leads (N > 1) must be found among v's own operands,
	// themselves produced by an instruction matching that lead's filter.
	for i := 1; i < len(r.Leads); i++ {
		if i-1 >= len(v.Args) {
			return nil
		}
		arg := v.Args[i-1]
		leadVals[r.Leads[i]] = arg
		mt.Consumed = append(mt.Consumed, arg)
	}

	for _, f := range r.Filters {
		lv, ok := leadVals[f.IName]
		if !ok {
			return nil
		}
		if f.InstrName != "" && strings.ToUpper(lv.Op.String()) != f.InstrName {
			return nil
		}
		if !m.checkOperands(lv, f, swap, mt.Binds) {
			return nil
		}
	}

	for k, lv := range leadVals {
		mt.Binds[k] = binding{value: lv}
	}
	return mt
}

// checkOperands binds and validates a filter's `with` operand list
// against lv's actual Args (spec.md §4.3 operand/constraint grammar).
func (m *Matcher) checkOperands(lv *ir.Value, f Filter, swap bool, binds map[string]binding) bool {
	args := lv.Args
	if swap && len(args) == 2 {
		args = []*ir.Value{args[1], args[0]}
	}
	idx := 0
	for _, op := range f.Operands {
		if op.IsRemainder {
			break
		}
		if idx >= len(args) {
			return false
		}
		a := args[idx]
		idx++
		if !checkOperandKind(a, op.Kind) {
			return false
		}
		if op.Constraint != nil && !checkConstraint(a, *op.Constraint, binds) {
			return false
		}
		if op.Name != "" {
			binds[op.Name] = binding{value: a, isImm: a.Op == ir.OpImmediate, imm: a.ImmValue}
		}
	}
	return true
}

func checkOperandKind(a *ir.Value, k OperandKind) bool {
	switch k {
	case OKImm:
		return a.Op == ir.OpImmediate || a.Op == ir.OpLiteralInt
	case OKReg:
		return a.Op != ir.OpImmediate
	case OKName:
		return a.Op == ir.OpStaticRef || a.Op == ir.OpFuncRef
	default:
		return true
	}
}

func checkConstraint(a *ir.Value, c Constraint, binds map[string]binding) bool {
	for _, alt := range c.Alt {
		if matchesOneConstraint(a, c.Op, alt, binds) {
			return true
		}
	}
	return len(c.Alt) == 0
}

func matchesOneConstraint(a *ir.Value, op ConstraintOp, v ConstraintValue, binds map[string]binding) bool {
	var rhs int64
	if v.IsNumber {
		rhs = v.Number
	} else if b, ok := binds[v.Ref]; ok && b.isImm {
		rhs = b.imm
	} else {
		return op == CEq // identity references not resolvable numerically; best-effort
	}
	lhs := a.ImmValue
	switch op {
	case CEq:
		return lhs == rhs
	case CNe:
		return lhs != rhs
	case CLt:
		return lhs < rhs
	case CGt:
		return lhs > rhs
	case CLe:
		return lhs <= rhs
	case CGe:
		return lhs >= rhs
	default:
		return true
	}
}
