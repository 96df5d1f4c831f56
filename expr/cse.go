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

import "fmt"

// Assignment is a single named temporary produced by CSE.
type Assignment struct {
	Name string
	Node *Node
}

// Program is the result of a CSE pass over one kernel's outputs: an ordered
// list of temporary assignments followed by the output expressions. Because
// temporaries alias the original interned subgraphs, re-substituting every
// temporary recovers the originals exactly; Verify checks that invariant.
type Program struct {
	Temps   []Assignment
	Outputs []*Node

	g     *Graph
	names map[*Node]string
}

// TempName returns the temporary name assigned to n, if any. Emitters call
// this while rendering to decide between inlining a subexpression and
// referencing its temporary.
func (p *Program) TempName(n *Node) (string, bool) {
	if p.names == nil {
		return "", false
	}
	name, ok := p.names[n]
	return name, ok
}

// CSE performs whole-batch common subexpression elimination jointly across
// outputs. Every composite node referenced more than once across the entire
// batch becomes a temporary; temporaries are ordered so that each one only
// refers to earlier ones. The transformation changes representation only,
// never numeric semantics.
func (g *Graph) CSE(outputs []*Node) *Program {
	refs := make(map[*Node]int)
	seen := make(map[*Node]bool)
	var count func(*Node)
	count = func(n *Node) {
		refs[n]++
		if seen[n] {
			return
		}
		seen[n] = true
		for _, a := range n.args {
			count(a)
		}
	}
	for _, out := range outputs {
		count(out)
	}

	p := &Program{
		Outputs: outputs,
		g:       g,
		names:   make(map[*Node]string),
	}

	// Postorder walk assigns temporaries bottom-up, which is exactly
	// dependency order for the emitted assignments.
	visited := make(map[*Node]bool)
	var assign func(*Node)
	assign = func(n *Node) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, a := range n.args {
			assign(a)
		}
		if composite(n) && refs[n] > 1 {
			name := fmt.Sprintf("tmp%d", len(p.Temps))
			p.names[n] = name
			p.Temps = append(p.Temps, Assignment{Name: name, Node: n})
		}
	}
	for _, out := range outputs {
		assign(out)
	}
	return p
}

// NoCSE wraps outputs in a Program with no temporaries, for runs where the
// elimination pass is disabled.
func (g *Graph) NoCSE(outputs []*Node) *Program {
	return &Program{Outputs: outputs, g: g}
}

// composite reports whether a node is worth naming: leaves are never
// cheaper behind a temporary.
func composite(n *Node) bool {
	switch n.op {
	case OpAdd, OpMul, OpPow:
		return true
	}
	return false
}

// Verify re-substitutes every temporary into the outputs and checks that the
// reconstruction is structurally identical to the originals. A mismatch
// means the pass corrupted the expression set and generation must abort.
func (p *Program) Verify() error {
	memo := make(map[*Node]*Node)
	var expand func(*Node) *Node
	expand = func(n *Node) *Node {
		if r, ok := memo[n]; ok {
			return r
		}
		var r *Node
		switch n.op {
		case OpNum, OpSym, OpElem:
			r = n
		case OpAdd, OpMul:
			args := make([]*Node, len(n.args))
			for i, a := range n.args {
				args[i] = expand(a)
			}
			if n.op == OpAdd {
				r = p.g.Add(args...)
			} else {
				r = p.g.Mul(args...)
			}
		case OpPow:
			r = p.g.Pow(expand(n.args[0]), n.exp)
		}
		memo[n] = r
		return r
	}
	for _, t := range p.Temps {
		if got := expand(t.Node); got != t.Node {
			return fmt.Errorf("expr: cse verification failed for temporary %s: %s != %s", t.Name, got, t.Node)
		}
	}
	for i, out := range p.Outputs {
		if got := expand(out); got != out {
			return fmt.Errorf("expr: cse verification failed for output %d: %s != %s", i, got, out)
		}
	}
	return nil
}
