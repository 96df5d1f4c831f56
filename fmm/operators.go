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

package fmm

import (
	"fmt"

	"github.com/fastmultipole/fmmgen/expr"
)

// Operator family identifiers used as memoization keys.
type opKind uint8

const (
	kindMoment opKind = iota
	kindMomentShift
	kindLocal
	kindLocalShift
)

type opKey struct {
	kind  opKind
	n     Monomial
	order int
}

// Builder constructs the closed-form expansion operators for one
// (order, sourceOrder) configuration. Operators are memoized by
// (kind, monomial, order) so that repeated requests share sub-formulas,
// and the mixed partials of 1/R are cached per multi-index because every
// high-order derivative reuses the lower ones.
//
// All operators are pure formulas over the coordinate symbols x, y, z, the
// source charge q, the distance symbol R, and the indexed moment arrays.
// The graph carries the chain rule dR/dxi = xi/R, so derivatives taken
// through R are exact without ever substituting the literal square root;
// emitted kernels compute R once in their prologue instead.
type Builder struct {
	g           *expr.Graph
	order       int
	sourceOrder int

	x, y, z, q, r *expr.Node
	coords        [3]*expr.Node

	// Moment index: degrees [sourceOrder, order]. Local index: degrees
	// [0, order] always, since local expansions retain every degree even
	// for extended sources.
	mIndex map[Monomial]int
	mList  []Monomial
	lIndex map[Monomial]int
	lList  []Monomial

	// momentArray is the name of the emitted moment array ("M", or "S" for
	// the truncated source vector of the direct kernel).
	momentArray string

	memo   map[opKey]*expr.Node
	derivs map[Monomial]*expr.Node
}

// NewBuilder returns a Builder for the given expansion order and source
// order. It fails with ErrInvalidOrderRange when order < sourceOrder.
func NewBuilder(g *expr.Graph, order, sourceOrder int) (*Builder, error) {
	mIndex, mList, err := IndexMonomials(order, sourceOrder)
	if err != nil {
		return nil, err
	}
	lIndex, lList, err := IndexMonomials(order, 0)
	if err != nil {
		return nil, err
	}

	b := &Builder{
		g:           g,
		order:       order,
		sourceOrder: sourceOrder,
		x:           g.Sym("x"),
		y:           g.Sym("y"),
		z:           g.Sym("z"),
		q:           g.Sym("q"),
		r:           g.Sym("R"),
		mIndex:      mIndex,
		mList:       mList,
		lIndex:      lIndex,
		lList:       lList,
		momentArray: "M",
		memo:        make(map[opKey]*expr.Node),
		derivs:      make(map[Monomial]*expr.Node),
	}
	b.coords = [3]*expr.Node{b.x, b.y, b.z}

	// dR/dx = x/R and cyclic. Registered once per graph per symbol pair;
	// re-registration is idempotent because nodes are interned.
	rinv := g.Pow(b.r, -1)
	g.SetPartial("R", "x", g.Mul(b.x, rinv))
	g.SetPartial("R", "y", g.Mul(b.y, rinv))
	g.SetPartial("R", "z", g.Mul(b.z, rinv))
	return b, nil
}

// Order returns the maximum expansion degree.
func (b *Builder) Order() int { return b.order }

// SourceOrder returns the minimum included moment degree.
func (b *Builder) SourceOrder() int { return b.sourceOrder }

// Graph returns the expression graph the builder works on.
func (b *Builder) Graph() *expr.Graph { return b.g }

// MomentIndex returns the forward moment index map (degrees in
// [sourceOrder, order]).
func (b *Builder) MomentIndex() map[Monomial]int { return b.mIndex }

// MomentMonomials returns the backward moment index (index to monomial).
func (b *Builder) MomentMonomials() []Monomial { return b.mList }

// LocalMonomials returns the backward local index (degrees in [0, order]).
func (b *Builder) LocalMonomials() []Monomial { return b.lList }

func factorial(n int) int64 {
	f := int64(1)
	for i := 2; i <= n; i++ {
		f *= int64(i)
	}
	return f
}

// monomialOf returns x^n0 * y^n1 * z^n2.
func (b *Builder) monomialOf(n Monomial) *expr.Node {
	return b.g.Mul(b.g.Pow(b.x, n[0]), b.g.Pow(b.y, n[1]), b.g.Pow(b.z, n[2]))
}

// taylorWeight returns the coefficient monomial x^n/n! shared by the shift
// operators and the local reconstruction.
func (b *Builder) taylorWeight(n Monomial) *expr.Node {
	w := b.g.Rat(1, factorial(n[0])*factorial(n[1])*factorial(n[2]))
	return b.g.Mul(w, b.monomialOf(n))
}

// Moment returns the multipole moment operator for monomial n: the Cartesian
// Taylor coefficient of 1/|r-r'| with respect to the source position,
// evaluated at the expansion center,
//
//	M_n = q * (-x)^n0 * (-y)^n1 * (-z)^n2 / (n0! n1! n2!)
//
// a polynomial in the source's own coordinates. At order zero this is the
// bare source charge q.
func (b *Builder) Moment(n Monomial) *expr.Node {
	key := opKey{kindMoment, n, 0}
	if op, ok := b.memo[key]; ok {
		return op
	}
	sign := int64(1)
	if n.Degree()%2 == 1 {
		sign = -1
	}
	c := b.g.Rat(sign, factorial(n[0])*factorial(n[1])*factorial(n[2]))
	op := b.g.Mul(b.q, c, b.monomialOf(n))
	b.memo[key] = op
	return op
}

// MomentShift returns the multipole translation (M2M) operator for monomial
// n: the moment of a distribution shifted by the displacement (x, y, z),
// expressed through the untranslated moments,
//
//	M'_n = sum_{k <= n} M[n-k] * x^k / k!
//
// where terms whose surviving moment degree falls below the source order are
// structurally absent. With a zero displacement only k = 0 survives and the
// operator is the identity on M[n].
func (b *Builder) MomentShift(n Monomial, order int) *expr.Node {
	key := opKey{kindMomentShift, n, order}
	if op, ok := b.memo[key]; ok {
		return op
	}
	var terms []*expr.Node
	for _, k := range belowOrEqual(n) {
		rem := n.Sub(k)
		if rem.Degree() < b.sourceOrder {
			continue
		}
		idx, ok := b.mIndex[rem]
		if !ok {
			continue
		}
		terms = append(terms, b.g.Mul(b.g.Elem(b.momentArray, idx), b.taylorWeight(k)))
	}
	op := b.g.Add(terms...)
	b.memo[key] = op
	return op
}

// Local returns the local expansion coefficient (M2L) operator for monomial
// n: the n-th Taylor coefficient about the evaluation point of the potential
// generated by the moments,
//
//	L_n = sum_m M[m] * D^(n+m) (1/R),   sourceOrder <= |m| <= order - |n|
//
// truncated so the combined derivative degree never exceeds order. The mixed
// partials of 1/R are taken symbolically once and cached.
func (b *Builder) Local(n Monomial, order int) *expr.Node {
	key := opKey{kindLocal, n, order}
	if op, ok := b.memo[key]; ok {
		return op
	}
	budget := order - n.Degree()
	var terms []*expr.Node
	for _, m := range b.mList {
		if m.Degree() > budget {
			continue
		}
		terms = append(terms, b.g.Mul(b.g.Elem(b.momentArray, b.mIndex[m]), b.potentialDeriv(n.Add(m))))
	}
	op := b.g.Add(terms...)
	b.memo[key] = op
	return op
}

// LocalShift returns the local translation (L2L) operator for monomial n:
// the Taylor shift of an existing local expansion to a new center,
//
//	L'_n = sum_{m >= n} L[m] * x^(m-n) / (m-n)!
//
// the finite mirror image of MomentShift. A zero displacement reduces it to
// the identity on L[n].
func (b *Builder) LocalShift(n Monomial, order int) *expr.Node {
	key := opKey{kindLocalShift, n, order}
	if op, ok := b.memo[key]; ok {
		return op
	}
	var terms []*expr.Node
	for _, m := range b.lList {
		if !m.Dominates(n) {
			continue
		}
		terms = append(terms, b.g.Mul(b.g.Elem("L", b.lIndex[m]), b.taylorWeight(m.Sub(n))))
	}
	op := b.g.Add(terms...)
	b.memo[key] = op
	return op
}

// PhiDeriv returns the mixed partial derivative d of the potential
// reconstructed from the local moments,
//
//	D^d phi = sum_{n >= d} L[n] * x^(n-d) / (n-d)!
//
// with the derivative encoded at generation time: the zero multi-index gives
// the potential itself and the unit multi-indices give the gradient
// components, with no re-differentiation at evaluation time.
func (b *Builder) PhiDeriv(order int, d Monomial) *expr.Node {
	var terms []*expr.Node
	for _, n := range b.lList {
		if n.Degree() > order || !n.Dominates(d) {
			continue
		}
		terms = append(terms, b.g.Mul(b.g.Elem("L", b.lIndex[n]), b.taylorWeight(n.Sub(d))))
	}
	return b.g.Add(terms...)
}

// potentialDeriv returns the cached mixed partial D^n (1/R), built
// recursively by differentiating the next lower derivative along the first
// axis with a nonzero exponent.
func (b *Builder) potentialDeriv(n Monomial) *expr.Node {
	if d, ok := b.derivs[n]; ok {
		return d
	}
	var d *expr.Node
	if n == (Monomial{}) {
		d = b.g.Pow(b.r, -1)
	} else {
		axis := 0
		for axis < 2 && n[axis] == 0 {
			axis++
		}
		prev := n
		prev[axis]--
		d = b.g.Diff(b.potentialDeriv(prev), [3]string{"x", "y", "z"}[axis])
	}
	b.derivs[n] = d
	return d
}

// belowOrEqual enumerates every monomial componentwise <= n in a fixed
// deterministic order.
func belowOrEqual(n Monomial) []Monomial {
	out := make([]Monomial, 0, (n[0]+1)*(n[1]+1)*(n[2]+1))
	for i := 0; i <= n[0]; i++ {
		for j := 0; j <= n[1]; j++ {
			for k := 0; k <= n[2]; k++ {
				out = append(out, Monomial{i, j, k})
			}
		}
	}
	return out
}

// checkDerivable guards against configurations where a requested operator
// cannot be expressed; with the closed-form recurrences above this reduces
// to index-map consistency, but the check keeps failures loud instead of
// emitting partial kernels.
func (b *Builder) checkDerivable(n Monomial) error {
	if n.Degree() > b.order {
		return fmt.Errorf("fmm: monomial %s exceeds expansion order %d", n, b.order)
	}
	return nil
}
