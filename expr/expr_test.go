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

package expr

import (
	"math"
	"testing"
)

func TestInterningCanonicalizes(t *testing.T) {
	g := NewGraph()
	x, y := g.Sym("x"), g.Sym("y")

	tests := []struct {
		name string
		a, b *Node
	}{
		{"SymReuse", g.Sym("x"), x},
		{"AddCommutes", g.Add(x, y), g.Add(y, x)},
		{"MulCommutes", g.Mul(x, y), g.Mul(y, x)},
		{"AddFlattens", g.Add(x, g.Add(y, g.Int(1))), g.Add(g.Int(1), y, x)},
		{"MulFlattens", g.Mul(x, g.Mul(y, x)), g.Mul(g.Pow(x, 2), y)},
		{"ElemReuse", g.Elem("M", 3), g.Elem("M", 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.a != tt.b {
				t.Errorf("expected identical nodes, got %s and %s", tt.a, tt.b)
			}
		})
	}
}

func TestConstantFolding(t *testing.T) {
	g := NewGraph()
	x := g.Sym("x")

	tests := []struct {
		name string
		got  *Node
		want *Node
	}{
		{"AddNums", g.Add(g.Int(2), g.Int(3)), g.Int(5)},
		{"MulNums", g.Mul(g.Int(2), g.Rat(1, 4)), g.Rat(1, 2)},
		{"MulByZero", g.Mul(g.Int(0), x), g.Int(0)},
		{"AddZero", g.Add(x, g.Int(0)), x},
		{"MulByOne", g.Mul(g.Int(1), x), x},
		{"PowZero", g.Pow(x, 0), g.Int(1)},
		{"PowOne", g.Pow(x, 1), x},
		{"NumPow", g.Pow(g.Int(2), -2), g.Rat(1, 4)},
		{"PowOfPow", g.Pow(g.Pow(x, 2), 3), g.Pow(x, 6)},
		{"PowOfMul", g.Pow(g.Mul(g.Int(2), x), 3), g.Mul(g.Int(8), g.Pow(x, 3))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %s, want %s", tt.got, tt.want)
			}
		})
	}
}

func TestLikeTermCollection(t *testing.T) {
	g := NewGraph()
	x, y := g.Sym("x"), g.Sym("y")

	if got, want := g.Add(x, x), g.Mul(g.Int(2), x); got != want {
		t.Errorf("x + x = %s, want %s", got, want)
	}
	if got := g.Add(x, g.Neg(x)); !got.IsZero() {
		t.Errorf("x - x = %s, want 0", got)
	}
	got := g.Add(g.Mul(g.Int(3), x, y), g.Mul(g.Int(-1), y, x))
	want := g.Mul(g.Int(2), x, y)
	if got != want {
		t.Errorf("3xy - xy = %s, want %s", got, want)
	}
}

func TestPowerCollection(t *testing.T) {
	g := NewGraph()
	x := g.Sym("x")

	if got, want := g.Mul(x, x), g.Pow(x, 2); got != want {
		t.Errorf("x*x = %s, want %s", got, want)
	}
	if got, want := g.Mul(g.Pow(x, 2), g.Pow(x, -3)), g.Pow(x, -1); got != want {
		t.Errorf("x^2 * x^-3 = %s, want %s", got, want)
	}
	if got := g.Mul(x, g.Pow(x, -1)); !got.IsOne() {
		t.Errorf("x * x^-1 = %s, want 1", got)
	}
}

func TestDiff(t *testing.T) {
	g := NewGraph()
	x, y := g.Sym("x"), g.Sym("y")

	tests := []struct {
		name string
		got  *Node
		want *Node
	}{
		{"Const", g.Diff(g.Rat(3, 7), "x"), g.Int(0)},
		{"Self", g.Diff(x, "x"), g.Int(1)},
		{"Other", g.Diff(y, "x"), g.Int(0)},
		{"Elem", g.Diff(g.Elem("M", 2), "x"), g.Int(0)},
		{"Power", g.Diff(g.Pow(x, 3), "x"), g.Mul(g.Int(3), g.Pow(x, 2))},
		{"Product", g.Diff(g.Mul(x, y), "x"), y},
		{"Sum", g.Diff(g.Add(g.Pow(x, 2), g.Mul(x, y)), "x"), g.Add(g.Mul(g.Int(2), x), y)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %s, want %s", tt.got, tt.want)
			}
		})
	}
}

func TestDiffChainRule(t *testing.T) {
	g := NewGraph()
	x := g.Sym("x")
	r := g.Sym("R")
	g.SetPartial("R", "x", g.Mul(x, g.Pow(r, -1)))

	// d(1/R)/dx = -x/R^3 through the registered partial.
	got := g.Diff(g.Pow(r, -1), "x")
	want := g.Mul(g.Int(-1), x, g.Pow(r, -3))
	if got != want {
		t.Errorf("d(1/R)/dx = %s, want %s", got, want)
	}

	// Second derivative: d(-x/R^3)/dx = -1/R^3 + 3x^2/R^5.
	got2 := g.Diff(got, "x")
	want2 := g.Add(g.Mul(g.Int(-1), g.Pow(r, -3)), g.Mul(g.Int(3), g.Pow(x, 2), g.Pow(r, -5)))
	if got2 != want2 {
		t.Errorf("d2(1/R)/dx2 = %s, want %s", got2, want2)
	}
}

func TestReplace(t *testing.T) {
	g := NewGraph()
	x, y, z := g.Sym("x"), g.Sym("y"), g.Sym("z")

	e := g.Add(g.Mul(x, y), z)
	got := g.Replace(e, map[*Node]*Node{x: g.Int(0)})
	if got != z {
		t.Errorf("replace x=0 in xy + z = %s, want z", got)
	}

	got = g.Replace(e, map[*Node]*Node{x: z})
	want := g.Add(g.Mul(z, y), z)
	if got != want {
		t.Errorf("replace x=z in xy + z = %s, want %s", got, want)
	}

	// Untouched expressions come back as the same node.
	if g.Replace(e, map[*Node]*Node{g.Sym("w"): g.Int(1)}) != e {
		t.Error("replacement of an absent symbol should be the identity")
	}
}

func TestEval(t *testing.T) {
	g := NewGraph()
	x, y := g.Sym("x"), g.Sym("y")
	e := g.Add(g.Mul(g.Rat(1, 2), g.Pow(x, 2)), g.Mul(y, g.Elem("M", 1)))

	b := Binding{
		Vars:   map[string]float64{"x": 3, "y": 2},
		Arrays: map[string][]float64{"M": {10, 20}},
	}
	got, err := g.Eval(e, b)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	want := 0.5*9 + 2*20
	if math.Abs(got-want) > 1e-15 {
		t.Errorf("Eval = %v, want %v", got, want)
	}

	if _, err := g.Eval(g.Sym("unbound"), b); err == nil {
		t.Error("expected error for unbound symbol")
	}
	if _, err := g.Eval(g.Elem("M", 5), b); err == nil {
		t.Error("expected error for out-of-range index")
	}
}
