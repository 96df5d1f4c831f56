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
	"testing"

	"github.com/fastmultipole/fmmgen/expr"
)

func newTestBuilder(t *testing.T, order, sourceOrder int) (*expr.Graph, *Builder) {
	t.Helper()
	g := expr.NewGraph()
	b, err := NewBuilder(g, order, sourceOrder)
	if err != nil {
		t.Fatalf("NewBuilder(%d, %d) failed: %v", order, sourceOrder, err)
	}
	return g, b
}

func TestMomentOrderZeroIsCharge(t *testing.T) {
	g, b := newTestBuilder(t, 0, 0)
	if got := b.Moment(Monomial{}); got != g.Sym("q") {
		t.Errorf("M(0,0,0) = %s, want q", got)
	}
}

func TestMomentsUpToOrderTwo(t *testing.T) {
	g, b := newTestBuilder(t, 2, 0)
	q := g.Sym("q")
	x, y, z := g.Sym("x"), g.Sym("y"), g.Sym("z")

	tests := []struct {
		n    Monomial
		want *expr.Node
	}{
		{Monomial{0, 0, 0}, q},
		{Monomial{1, 0, 0}, g.Mul(g.Int(-1), q, x)},
		{Monomial{0, 1, 0}, g.Mul(g.Int(-1), q, y)},
		{Monomial{0, 0, 1}, g.Mul(g.Int(-1), q, z)},
		{Monomial{2, 0, 0}, g.Mul(g.Rat(1, 2), q, g.Pow(x, 2))},
		{Monomial{1, 1, 0}, g.Mul(q, x, y)},
		{Monomial{1, 0, 1}, g.Mul(q, x, z)},
		{Monomial{0, 2, 0}, g.Mul(g.Rat(1, 2), q, g.Pow(y, 2))},
		{Monomial{0, 1, 1}, g.Mul(q, y, z)},
		{Monomial{0, 0, 2}, g.Mul(g.Rat(1, 2), q, g.Pow(z, 2))},
	}
	for _, tt := range tests {
		t.Run(tt.n.String(), func(t *testing.T) {
			if got := b.Moment(tt.n); got != tt.want {
				t.Errorf("M%s = %s, want %s", tt.n, got, tt.want)
			}
		})
	}
}

func TestMomentShiftOrderOne(t *testing.T) {
	g, b := newTestBuilder(t, 1, 0)
	x, y, z := g.Sym("x"), g.Sym("y"), g.Sym("z")
	m := func(i int) *expr.Node { return g.Elem("M", i) }

	tests := []struct {
		n    Monomial
		want *expr.Node
	}{
		{Monomial{0, 0, 0}, m(0)},
		{Monomial{1, 0, 0}, g.Add(g.Mul(x, m(0)), m(1))},
		{Monomial{0, 1, 0}, g.Add(g.Mul(y, m(0)), m(2))},
		{Monomial{0, 0, 1}, g.Add(g.Mul(z, m(0)), m(3))},
	}
	for _, tt := range tests {
		t.Run(tt.n.String(), func(t *testing.T) {
			if got := b.MomentShift(tt.n, 1); got != tt.want {
				t.Errorf("MomentShift%s = %s, want %s", tt.n, got, tt.want)
			}
		})
	}
}

func TestMomentShiftZeroDisplacementIsIdentity(t *testing.T) {
	g, b := newTestBuilder(t, 3, 0)
	zero := map[*expr.Node]*expr.Node{
		g.Sym("x"): g.Int(0),
		g.Sym("y"): g.Int(0),
		g.Sym("z"): g.Int(0),
	}
	for i, n := range b.MomentMonomials() {
		got := g.Replace(b.MomentShift(n, 3), zero)
		if want := g.Elem("M", i); got != want {
			t.Errorf("MomentShift%s at zero displacement = %s, want %s", n, got, want)
		}
	}
}

func TestLocalShiftZeroDisplacementIsIdentity(t *testing.T) {
	g, b := newTestBuilder(t, 3, 0)
	zero := map[*expr.Node]*expr.Node{
		g.Sym("x"): g.Int(0),
		g.Sym("y"): g.Int(0),
		g.Sym("z"): g.Int(0),
	}
	for i, n := range b.LocalMonomials() {
		got := g.Replace(b.LocalShift(n, 3), zero)
		if want := g.Elem("L", i); got != want {
			t.Errorf("LocalShift%s at zero displacement = %s, want %s", n, got, want)
		}
	}
}

func TestLocalOrderOne(t *testing.T) {
	g, b := newTestBuilder(t, 1, 0)
	x, y, z := g.Sym("x"), g.Sym("y"), g.Sym("z")
	r := g.Sym("R")
	m := func(i int) *expr.Node { return g.Elem("M", i) }
	rm3 := g.Pow(r, -3)

	// L_(0,0,0) = M[0]/R - x*M[1]/R^3 - y*M[2]/R^3 - z*M[3]/R^3
	want := g.Add(
		g.Mul(m(0), g.Pow(r, -1)),
		g.Mul(g.Int(-1), x, m(1), rm3),
		g.Mul(g.Int(-1), y, m(2), rm3),
		g.Mul(g.Int(-1), z, m(3), rm3),
	)
	if got := b.Local(Monomial{}, 1); got != want {
		t.Errorf("L(0,0,0) = %s, want %s", got, want)
	}

	// L_(1,0,0) truncates to the monopole term: -x*M[0]/R^3.
	want = g.Mul(g.Int(-1), x, m(0), rm3)
	if got := b.Local(Monomial{1, 0, 0}, 1); got != want {
		t.Errorf("L(1,0,0) = %s, want %s", got, want)
	}
}

func TestLocalIsMemoized(t *testing.T) {
	_, b := newTestBuilder(t, 4, 0)
	first := b.Local(Monomial{1, 1, 0}, 4)
	second := b.Local(Monomial{1, 1, 0}, 4)
	if first != second {
		t.Error("Local not memoized: distinct nodes for identical requests")
	}
}

func TestPhiDerivOrderOne(t *testing.T) {
	g, b := newTestBuilder(t, 1, 0)
	x, y, z := g.Sym("x"), g.Sym("y"), g.Sym("z")
	l := func(i int) *expr.Node { return g.Elem("L", i) }

	want := g.Add(l(0), g.Mul(x, l(1)), g.Mul(y, l(2)), g.Mul(z, l(3)))
	if got := b.PhiDeriv(1, Monomial{}); got != want {
		t.Errorf("PhiDeriv(0,0,0) = %s, want %s", got, want)
	}
	if got := b.PhiDeriv(1, Monomial{1, 0, 0}); got != l(1) {
		t.Errorf("PhiDeriv(1,0,0) = %s, want L[1]", got)
	}
	if got := b.PhiDeriv(1, Monomial{0, 0, 1}); got != l(3) {
		t.Errorf("PhiDeriv(0,0,1) = %s, want L[3]", got)
	}
}

func TestSourceOrderExcludesLowMoments(t *testing.T) {
	g, b := newTestBuilder(t, 2, 1)

	// With sourceOrder=1 the monopole is structurally zero: shifting the
	// lowest dipole moment keeps only the identity term.
	if got, want := b.MomentShift(Monomial{1, 0, 0}, 2), g.Elem("M", 0); got != want {
		t.Errorf("MomentShift(1,0,0) = %s, want %s", got, want)
	}

	// The local expansion at the origin starts at the dipole contribution:
	// no term may reference a moment index beyond the reduced range, and
	// the monopole term M/R of the full expansion must be gone.
	v := b.Local(Monomial{}, 2)
	r := g.Sym("R")
	monopole := g.Mul(g.Elem("M", 0), g.Pow(r, -1))
	for _, term := range v.Args() {
		if term == monopole {
			t.Errorf("L(0,0,0) contains a monopole-style term %s", term)
		}
	}
}
