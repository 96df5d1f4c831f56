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

package codegen

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/fastmultipole/fmmgen/expr"
)

// renderer lowers expression nodes to source text for one backend. The
// translation is purely syntactic: no algebraic rewriting happens here.
type renderer struct {
	prog   *expr.Program
	single bool
	lang   Language
}

// expr renders a node, substituting its temporary name when the CSE pass
// assigned one.
func (r *renderer) expr(n *expr.Node) string {
	if name, ok := r.prog.TempName(n); ok {
		return name
	}
	return r.define(n)
}

// define renders the node's own expression, ignoring any temporary name
// assigned to the node itself (used at the definition site).
func (r *renderer) define(n *expr.Node) string {
	switch n.Op() {
	case expr.OpNum:
		return r.literal(n.Rat())
	case expr.OpSym:
		return n.Name()
	case expr.OpElem:
		return fmt.Sprintf("%s[%d]", n.Name(), n.Index())
	case expr.OpAdd:
		return r.sum(n)
	case expr.OpMul:
		return r.product(n)
	case expr.OpPow:
		return r.power(n)
	}
	panic(fmt.Sprintf("codegen: cannot render op %v", n.Op()))
}

// sum joins terms with sign-aware separators so negated terms render as
// subtraction.
func (r *renderer) sum(n *expr.Node) string {
	var sb strings.Builder
	for i, t := range n.Args() {
		s := r.expr(t)
		switch {
		case i == 0:
			sb.WriteString(s)
		case strings.HasPrefix(s, "-"):
			sb.WriteString(" - ")
			sb.WriteString(s[1:])
		default:
			sb.WriteString(" + ")
			sb.WriteString(s)
		}
	}
	return sb.String()
}

func (r *renderer) product(n *expr.Node) string {
	parts := make([]string, len(n.Args()))
	for i, f := range n.Args() {
		s := r.expr(f)
		if _, isTemp := r.prog.TempName(f); !isTemp && f.Op() == expr.OpAdd {
			s = "(" + s + ")"
		}
		parts[i] = s
	}
	return strings.Join(parts, "*")
}

// power lowers integer powers: small positive exponents unroll to
// multiplication chains, negative exponents become divisions, and anything
// larger falls back to the backend's pow call.
func (r *renderer) power(n *expr.Node) string {
	base := n.Args()[0]
	e := n.Exp()
	if e < 0 {
		return r.one() + "/" + r.positivePower(base, -e, true)
	}
	return r.positivePower(base, e, false)
}

// positivePower renders base**e for e >= 1. When grouped is set the result
// is safe to use as the right operand of a division.
func (r *renderer) positivePower(base *expr.Node, e int, grouped bool) string {
	bs := r.expr(base)
	atomic := r.isAtom(base)
	switch {
	case e == 1:
		if !atomic && grouped {
			return "(" + bs + ")"
		}
		return bs
	case e <= 4:
		if !atomic {
			bs = "(" + bs + ")"
		}
		parts := make([]string, e)
		for i := range parts {
			parts[i] = bs
		}
		s := strings.Join(parts, "*")
		if grouped {
			s = "(" + s + ")"
		}
		return s
	default:
		return r.powCall(bs, e)
	}
}

// isAtom reports whether the node renders without internal operators, i.e.
// needs no parentheses as a factor or power base.
func (r *renderer) isAtom(n *expr.Node) bool {
	if _, ok := r.prog.TempName(n); ok {
		return true
	}
	switch n.Op() {
	case expr.OpSym, expr.OpElem:
		return true
	}
	return false
}

func (r *renderer) powCall(base string, e int) string {
	switch {
	case r.lang == LangGo && r.single:
		return fmt.Sprintf("float32(math.Pow(float64(%s), %d))", base, e)
	case r.lang == LangGo:
		return fmt.Sprintf("math.Pow(%s, %d)", base, e)
	case r.single:
		return fmt.Sprintf("powf(%s, %d.0f)", base, e)
	default:
		return fmt.Sprintf("pow(%s, %d.0)", base, e)
	}
}

// one returns the unit literal used as the numerator of reciprocals.
func (r *renderer) one() string {
	if r.lang == LangC && r.single {
		return "1.0f"
	}
	return "1.0"
}

// literal renders an exact rational constant. Non-integer rationals emit as
// a division of exact integer literals so the compiled constant folds to the
// correctly rounded value for the target width.
func (r *renderer) literal(v *big.Rat) string {
	suffix := ""
	if r.lang == LangC && r.single {
		suffix = "f"
	}
	if v.IsInt() {
		return v.Num().String() + ".0" + suffix
	}
	num := new(big.Rat).Set(v)
	sign := ""
	if num.Sign() < 0 {
		sign = "-"
		num.Neg(num)
	}
	return fmt.Sprintf("%s%s.0%s/%s.0%s", sign, num.Num().String(), suffix, num.Denom().String(), suffix)
}

// sqrtCall renders the distance prologue expression for the backend.
func (r *renderer) sqrtCall(arg string) string {
	switch {
	case r.lang == LangGo && r.single:
		return fmt.Sprintf("float32(math.Sqrt(float64(%s)))", arg)
	case r.lang == LangGo:
		return fmt.Sprintf("math.Sqrt(%s)", arg)
	case r.single:
		return fmt.Sprintf("sqrtf(%s)", arg)
	default:
		return fmt.Sprintf("sqrt(%s)", arg)
	}
}
