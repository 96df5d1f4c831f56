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

import "testing"

func TestCSESharesAcrossOutputs(t *testing.T) {
	g := NewGraph()
	x, y, z, w := g.Sym("x"), g.Sym("y"), g.Sym("z"), g.Sym("w")

	shared := g.Add(x, y)
	outputs := []*Node{g.Mul(shared, z), g.Mul(shared, w)}

	p := g.CSE(outputs)
	if len(p.Temps) != 1 {
		t.Fatalf("got %d temps, want 1: %v", len(p.Temps), p.Temps)
	}
	if p.Temps[0].Node != shared {
		t.Errorf("temp is %s, want %s", p.Temps[0].Node, shared)
	}
	if name, ok := p.TempName(shared); !ok || name != "tmp0" {
		t.Errorf("TempName(shared) = %q, %v", name, ok)
	}
	if err := p.Verify(); err != nil {
		t.Errorf("Verify failed: %v", err)
	}
}

func TestCSEDependencyOrder(t *testing.T) {
	g := NewGraph()
	x, y := g.Sym("x"), g.Sym("y")

	inner := g.Add(x, y)
	outer := g.Pow(inner, 3)
	// inner is referenced twice (alone and under outer), outer twice.
	outputs := []*Node{g.Add(outer, inner), g.Mul(outer, y), inner}

	p := g.CSE(outputs)
	pos := make(map[*Node]int)
	for i, tmp := range p.Temps {
		pos[tmp.Node] = i
	}
	pi, ok := pos[inner]
	if !ok {
		t.Fatal("inner subexpression not named")
	}
	po, ok := pos[outer]
	if !ok {
		t.Fatal("outer subexpression not named")
	}
	if pi > po {
		t.Errorf("inner temp at %d defined after outer temp at %d", pi, po)
	}
	if err := p.Verify(); err != nil {
		t.Errorf("Verify failed: %v", err)
	}
}

func TestCSELeavesAreNeverNamed(t *testing.T) {
	g := NewGraph()
	x := g.Sym("x")
	m := g.Elem("M", 0)

	outputs := []*Node{g.Mul(x, m), g.Add(x, m), x}
	p := g.CSE(outputs)
	for _, tmp := range p.Temps {
		switch tmp.Node.Op() {
		case OpSym, OpElem, OpNum:
			t.Errorf("leaf node %s was assigned temp %s", tmp.Node, tmp.Name)
		}
	}
}

func TestCSEUniqueSubexpressionsStayInline(t *testing.T) {
	g := NewGraph()
	x, y := g.Sym("x"), g.Sym("y")

	outputs := []*Node{g.Mul(g.Add(x, y), x), g.Pow(g.Add(x, g.Int(1)), 2)}
	// The two adds differ, and each occurs once; nothing is shared.
	p := g.CSE(outputs)
	if len(p.Temps) != 0 {
		t.Errorf("got %d temps, want 0", len(p.Temps))
	}
}

func TestNoCSE(t *testing.T) {
	g := NewGraph()
	x := g.Sym("x")
	shared := g.Pow(g.Add(x, g.Int(1)), 2)

	p := g.NoCSE([]*Node{shared, shared})
	if len(p.Temps) != 0 {
		t.Errorf("NoCSE produced %d temps", len(p.Temps))
	}
	if _, ok := p.TempName(shared); ok {
		t.Error("NoCSE assigned a temp name")
	}
	if err := p.Verify(); err != nil {
		t.Errorf("Verify failed: %v", err)
	}
}
