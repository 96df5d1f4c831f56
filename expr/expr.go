// Copyright 2026 fmmgen Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package expr provides a hash-consed arithmetic expression DAG with exact
// rational coefficients, symbolic differentiation, and whole-batch common
// subexpression elimination.
//
// Nodes are immutable and pointer-canonical: two structurally equal
// expressions built on the same Graph are the same *Node. Canonicalization
// happens at construction time (flattening, constant folding, like-term and
// like-power collection, deterministic operand ordering), so structural
// equality checks and CSE reduce to pointer comparisons.
package expr

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"strings"
)

// Op identifies the operation performed by a Node.
type Op uint8

const (
	// OpNum is an exact rational constant.
	OpNum Op = iota

	// OpSym is a free symbol (a coordinate like "x" or a derived quantity
	// like the distance "R").
	OpSym

	// OpElem is an indexed element of a named array, e.g. M[3].
	OpElem

	// OpAdd is an n-ary sum.
	OpAdd

	// OpMul is an n-ary product. A rational coefficient, if present, is
	// always the first operand.
	OpMul

	// OpPow is an integer power of a single base.
	OpPow
)

// String returns a human-readable name for the Op.
func (o Op) String() string {
	switch o {
	case OpNum:
		return "Num"
	case OpSym:
		return "Sym"
	case OpElem:
		return "Elem"
	case OpAdd:
		return "Add"
	case OpMul:
		return "Mul"
	case OpPow:
		return "Pow"
	default:
		return fmt.Sprintf("Op(%d)", o)
	}
}

// Node is a single vertex of the expression DAG. Nodes are created through
// Graph constructors and never mutated afterwards.
type Node struct {
	id   int
	op   Op
	val  *big.Rat // OpNum
	name string   // OpSym symbol name; OpElem array name
	idx  int      // OpElem array index
	exp  int      // OpPow exponent
	args []*Node  // OpAdd/OpMul operands; OpPow [base]
}

// Op returns the node's operation.
func (n *Node) Op() Op { return n.op }

// ID returns the node's creation-order identifier, unique within its Graph.
func (n *Node) ID() int { return n.id }

// Args returns the node's operands. Callers must not modify the slice.
func (n *Node) Args() []*Node { return n.args }

// Rat returns a copy of the rational value of an OpNum node.
func (n *Node) Rat() *big.Rat { return new(big.Rat).Set(n.val) }

// Name returns the symbol name (OpSym) or array name (OpElem).
func (n *Node) Name() string { return n.name }

// Index returns the array index of an OpElem node.
func (n *Node) Index() int { return n.idx }

// Exp returns the integer exponent of an OpPow node.
func (n *Node) Exp() int { return n.exp }

// IsZero reports whether the node is the rational constant 0.
func (n *Node) IsZero() bool { return n.op == OpNum && n.val.Sign() == 0 }

// IsOne reports whether the node is the rational constant 1.
func (n *Node) IsOne() bool { return n.op == OpNum && n.val.Cmp(ratOne) == 0 }

var (
	ratOne    = big.NewRat(1, 1)
	ratNegOne = big.NewRat(-1, 1)
)

type partialKey struct {
	sym string
	wrt string
}

type diffKey struct {
	node *Node
	wrt  string
}

// Graph owns the intern table for a family of expression nodes. It is not
// safe for concurrent use; the generation pipeline is single-threaded by
// design.
type Graph struct {
	nodes    []*Node
	intern   map[string]*Node
	partials map[partialKey]*Node
	diffMemo map[diffKey]*Node
	zero     *Node
	one      *Node
}

// NewGraph returns an empty expression graph.
func NewGraph() *Graph {
	g := &Graph{
		intern:   make(map[string]*Node),
		partials: make(map[partialKey]*Node),
		diffMemo: make(map[diffKey]*Node),
	}
	g.zero = g.Int(0)
	g.one = g.Int(1)
	return g
}

// Size returns the number of distinct nodes interned so far.
func (g *Graph) Size() int { return len(g.nodes) }

// lookup interns a node under the given structural key, allocating it via
// build only when no equal node exists yet.
func (g *Graph) lookup(key string, build func(id int) *Node) *Node {
	if n, ok := g.intern[key]; ok {
		return n
	}
	n := build(len(g.nodes))
	g.nodes = append(g.nodes, n)
	g.intern[key] = n
	return n
}

// Int returns the rational constant v.
func (g *Graph) Int(v int64) *Node {
	return g.rat(new(big.Rat).SetInt64(v))
}

// Rat returns the rational constant p/q. It panics when q is zero.
func (g *Graph) Rat(p, q int64) *Node {
	if q == 0 {
		panic("expr: zero denominator")
	}
	return g.rat(new(big.Rat).SetFrac64(p, q))
}

func (g *Graph) rat(v *big.Rat) *Node {
	key := "n:" + v.RatString()
	return g.lookup(key, func(id int) *Node {
		return &Node{id: id, op: OpNum, val: v}
	})
}

// Sym returns the free symbol with the given name.
func (g *Graph) Sym(name string) *Node {
	key := "s:" + name
	return g.lookup(key, func(id int) *Node {
		return &Node{id: id, op: OpSym, name: name}
	})
}

// Elem returns the indexed array element array[index].
func (g *Graph) Elem(array string, index int) *Node {
	key := fmt.Sprintf("e:%s:%d", array, index)
	return g.lookup(key, func(id int) *Node {
		return &Node{id: id, op: OpElem, name: array, idx: index}
	})
}

// SetPartial registers the partial derivative of a derived symbol with
// respect to a variable, e.g. dR/dx = x/R for the distance symbol R.
// Differentiation consults these rules, so callers never need to substitute
// the defining expression of the derived symbol.
func (g *Graph) SetPartial(sym, wrt string, d *Node) {
	g.partials[partialKey{sym, wrt}] = d
}

// Add returns the canonical sum of args: nested sums are flattened, rational
// terms folded, like terms collected, and operands ordered deterministically.
func (g *Graph) Add(args ...*Node) *Node {
	var flat []*Node
	for _, a := range args {
		if a.op == OpAdd {
			flat = append(flat, a.args...)
		} else {
			flat = append(flat, a)
		}
	}

	constant := new(big.Rat)
	coeffs := make(map[*Node]*big.Rat)
	var order []*Node
	for _, t := range flat {
		if t.op == OpNum {
			constant.Add(constant, t.val)
			continue
		}
		c, rest := g.splitCoeff(t)
		if _, seen := coeffs[rest]; !seen {
			coeffs[rest] = new(big.Rat)
			order = append(order, rest)
		}
		coeffs[rest].Add(coeffs[rest], c)
	}

	var terms []*Node
	for _, rest := range order {
		c := coeffs[rest]
		if c.Sign() == 0 {
			continue
		}
		terms = append(terms, g.scale(c, rest))
	}
	if constant.Sign() != 0 {
		terms = append(terms, g.rat(constant))
	}

	switch len(terms) {
	case 0:
		return g.zero
	case 1:
		return terms[0]
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].id < terms[j].id })
	key := nodeKey("+", terms, 0)
	return g.lookup(key, func(id int) *Node {
		return &Node{id: id, op: OpAdd, args: terms}
	})
}

// splitCoeff decomposes a non-constant term into a rational coefficient and
// the remaining (coefficient-free) factor.
func (g *Graph) splitCoeff(t *Node) (*big.Rat, *Node) {
	if t.op == OpMul && t.args[0].op == OpNum {
		rest := t.args[1:]
		if len(rest) == 1 {
			return new(big.Rat).Set(t.args[0].val), rest[0]
		}
		key := nodeKey("*", rest, 0)
		m := g.lookup(key, func(id int) *Node {
			return &Node{id: id, op: OpMul, args: rest}
		})
		return new(big.Rat).Set(t.args[0].val), m
	}
	return new(big.Rat).Set(ratOne), t
}

// scale returns c*rest without re-running full product canonicalization.
func (g *Graph) scale(c *big.Rat, rest *Node) *Node {
	if c.Cmp(ratOne) == 0 {
		return rest
	}
	return g.Mul(g.rat(new(big.Rat).Set(c)), rest)
}

// Mul returns the canonical product of args: nested products are flattened,
// rational factors folded into a single leading coefficient, and powers of
// equal bases combined.
func (g *Graph) Mul(args ...*Node) *Node {
	var flat []*Node
	for _, a := range args {
		if a.op == OpMul {
			flat = append(flat, a.args...)
		} else {
			flat = append(flat, a)
		}
	}

	coeff := new(big.Rat).Set(ratOne)
	exps := make(map[*Node]int)
	var order []*Node
	for _, f := range flat {
		if f.op == OpNum {
			coeff.Mul(coeff, f.val)
			continue
		}
		base, e := f, 1
		if f.op == OpPow {
			base, e = f.args[0], f.exp
		}
		if _, seen := exps[base]; !seen {
			order = append(order, base)
		}
		exps[base] += e
	}
	if coeff.Sign() == 0 {
		return g.zero
	}

	var factors []*Node
	for _, base := range order {
		e := exps[base]
		if e == 0 {
			continue
		}
		factors = append(factors, g.Pow(base, e))
	}
	sort.Slice(factors, func(i, j int) bool { return factors[i].id < factors[j].id })

	if len(factors) == 0 {
		return g.rat(coeff)
	}
	if coeff.Cmp(ratOne) == 0 {
		if len(factors) == 1 {
			return factors[0]
		}
	} else {
		factors = append([]*Node{g.rat(coeff)}, factors...)
	}
	key := nodeKey("*", factors, 0)
	return g.lookup(key, func(id int) *Node {
		return &Node{id: id, op: OpMul, args: factors}
	})
}

// Pow returns base raised to the integer exponent e.
func (g *Graph) Pow(base *Node, e int) *Node {
	switch {
	case e == 0:
		return g.one
	case e == 1:
		return base
	}
	switch base.op {
	case OpNum:
		return g.rat(ratPow(base.val, e))
	case OpPow:
		return g.Pow(base.args[0], base.exp*e)
	case OpMul:
		parts := make([]*Node, len(base.args))
		for i, f := range base.args {
			parts[i] = g.Pow(f, e)
		}
		return g.Mul(parts...)
	}
	key := nodeKey("^", []*Node{base}, e)
	return g.lookup(key, func(id int) *Node {
		return &Node{id: id, op: OpPow, exp: e, args: []*Node{base}}
	})
}

// Neg returns -a.
func (g *Graph) Neg(a *Node) *Node { return g.Mul(g.rat(ratNegOne), a) }

// Sub returns a - b.
func (g *Graph) Sub(a, b *Node) *Node { return g.Add(a, g.Neg(b)) }

// Div returns a / b.
func (g *Graph) Div(a, b *Node) *Node { return g.Mul(a, g.Pow(b, -1)) }

func ratPow(v *big.Rat, e int) *big.Rat {
	r := new(big.Rat).Set(ratOne)
	b := new(big.Rat).Set(v)
	n := e
	if n < 0 {
		b.Inv(b)
		n = -n
	}
	for i := 0; i < n; i++ {
		r.Mul(r, b)
	}
	return r
}

// nodeKey builds the intern key for a composite node from its operands'
// identities. Operands are already interned, so identity equality is
// structural equality.
func nodeKey(op string, args []*Node, exp int) string {
	var sb strings.Builder
	sb.WriteString(op)
	if exp != 0 {
		fmt.Fprintf(&sb, "%d", exp)
	}
	for _, a := range args {
		fmt.Fprintf(&sb, ":%d", a.id)
	}
	return sb.String()
}

// Diff returns the exact partial derivative of n with respect to the symbol
// named wrt. Results are memoized per (node, variable).
func (g *Graph) Diff(n *Node, wrt string) *Node {
	key := diffKey{n, wrt}
	if d, ok := g.diffMemo[key]; ok {
		return d
	}
	var d *Node
	switch n.op {
	case OpNum, OpElem:
		d = g.zero
	case OpSym:
		if n.name == wrt {
			d = g.one
		} else if p, ok := g.partials[partialKey{n.name, wrt}]; ok {
			d = p
		} else {
			d = g.zero
		}
	case OpAdd:
		terms := make([]*Node, len(n.args))
		for i, t := range n.args {
			terms[i] = g.Diff(t, wrt)
		}
		d = g.Add(terms...)
	case OpMul:
		terms := make([]*Node, 0, len(n.args))
		for i := range n.args {
			df := g.Diff(n.args[i], wrt)
			if df.IsZero() {
				continue
			}
			rest := make([]*Node, 0, len(n.args))
			rest = append(rest, df)
			for j, f := range n.args {
				if j != i {
					rest = append(rest, f)
				}
			}
			terms = append(terms, g.Mul(rest...))
		}
		d = g.Add(terms...)
	case OpPow:
		base := n.args[0]
		db := g.Diff(base, wrt)
		if db.IsZero() {
			d = g.zero
		} else {
			d = g.Mul(g.Int(int64(n.exp)), g.Pow(base, n.exp-1), db)
		}
	}
	g.diffMemo[key] = d
	return d
}

// Replace rebuilds n with every node appearing as a key in subs replaced by
// its value. The substitution is simultaneous: replacements are not
// re-substituted into each other.
func (g *Graph) Replace(n *Node, subs map[*Node]*Node) *Node {
	memo := make(map[*Node]*Node)
	var walk func(*Node) *Node
	walk = func(n *Node) *Node {
		if r, ok := subs[n]; ok {
			return r
		}
		if r, ok := memo[n]; ok {
			return r
		}
		var r *Node
		switch n.op {
		case OpNum, OpSym, OpElem:
			r = n
		case OpAdd, OpMul:
			changed := false
			args := make([]*Node, len(n.args))
			for i, a := range n.args {
				args[i] = walk(a)
				changed = changed || args[i] != a
			}
			if !changed {
				r = n
			} else if n.op == OpAdd {
				r = g.Add(args...)
			} else {
				r = g.Mul(args...)
			}
		case OpPow:
			base := walk(n.args[0])
			if base == n.args[0] {
				r = n
			} else {
				r = g.Pow(base, n.exp)
			}
		}
		memo[n] = r
		return r
	}
	return walk(n)
}

// Binding supplies numeric values for symbols and arrays during evaluation.
type Binding struct {
	Vars   map[string]float64
	Arrays map[string][]float64
}

// Eval numerically evaluates n under the binding. It is used by tests and
// self-checks, never by the generation pipeline itself.
func (g *Graph) Eval(n *Node, b Binding) (float64, error) {
	switch n.op {
	case OpNum:
		f, _ := n.val.Float64()
		return f, nil
	case OpSym:
		v, ok := b.Vars[n.name]
		if !ok {
			return 0, fmt.Errorf("expr: unbound symbol %q", n.name)
		}
		return v, nil
	case OpElem:
		arr, ok := b.Arrays[n.name]
		if !ok {
			return 0, fmt.Errorf("expr: unbound array %q", n.name)
		}
		if n.idx < 0 || n.idx >= len(arr) {
			return 0, fmt.Errorf("expr: index %d out of range for array %q", n.idx, n.name)
		}
		return arr[n.idx], nil
	case OpAdd:
		sum := 0.0
		for _, a := range n.args {
			v, err := g.Eval(a, b)
			if err != nil {
				return 0, err
			}
			sum += v
		}
		return sum, nil
	case OpMul:
		prod := 1.0
		for _, a := range n.args {
			v, err := g.Eval(a, b)
			if err != nil {
				return 0, err
			}
			prod *= v
		}
		return prod, nil
	case OpPow:
		v, err := g.Eval(n.args[0], b)
		if err != nil {
			return 0, err
		}
		return math.Pow(v, float64(n.exp)), nil
	}
	return 0, fmt.Errorf("expr: unknown op %v", n.op)
}

// String renders the node in a stable infix form, mainly for debugging and
// test failure messages.
func (n *Node) String() string {
	switch n.op {
	case OpNum:
		return n.val.RatString()
	case OpSym:
		return n.name
	case OpElem:
		return fmt.Sprintf("%s[%d]", n.name, n.idx)
	case OpAdd:
		parts := make([]string, len(n.args))
		for i, a := range n.args {
			parts[i] = a.String()
		}
		return strings.Join(parts, " + ")
	case OpMul:
		parts := make([]string, len(n.args))
		for i, a := range n.args {
			if a.op == OpAdd {
				parts[i] = "(" + a.String() + ")"
			} else {
				parts[i] = a.String()
			}
		}
		return strings.Join(parts, "*")
	case OpPow:
		base := n.args[0].String()
		if n.args[0].op != OpSym && n.args[0].op != OpElem {
			base = "(" + base + ")"
		}
		return fmt.Sprintf("%s^%d", base, n.exp)
	}
	return "?"
}
