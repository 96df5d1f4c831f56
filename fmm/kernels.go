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

// Kernel is one named numerical routine: an ordered list of operator
// expressions, each accumulated into one slot of the output array. The
// ordering of Ops is the array layout fixed by the monomial index.
type Kernel struct {
	// Name is the emitted function name, e.g. "M2L_4" or "M2L_10_1".
	Name string

	// Scalars are scalar parameters beyond the coordinates, e.g. the
	// source charge "q" for P2M.
	Scalars []string

	// Inputs are the read-only array parameters in order ("M", "L", "S").
	Inputs []string

	// Out is the accumulated output array parameter.
	Out string

	// Ops are the output expressions; Ops[i] accumulates into Out[i].
	Ops []*expr.Node

	// NeedsR is true when any operator references the distance symbol R,
	// in which case the kernel prologue computes R = sqrt(x*x+y*y+z*z).
	NeedsR bool
}

// kernelName builds the deterministic function name for a kernel kind:
// the expansion order is always appended, and the source order too when a
// lower moment block is excluded.
func kernelName(kind string, order, sourceOrder int) string {
	if sourceOrder > 0 {
		return fmt.Sprintf("%s_%d_%d", kind, order, sourceOrder)
	}
	return fmt.Sprintf("%s_%d", kind, order)
}

// finish fills the derived kernel fields from the assembled operators.
func (b *Builder) finish(k *Kernel) *Kernel {
	for _, op := range k.Ops {
		if usesSymbol(op, "R") {
			k.NeedsR = true
			break
		}
	}
	return k
}

// usesSymbol reports whether the symbol name occurs anywhere under n.
func usesSymbol(n *expr.Node, name string) bool {
	seen := make(map[*expr.Node]bool)
	var walk func(*expr.Node) bool
	walk = func(n *expr.Node) bool {
		if seen[n] {
			return false
		}
		seen[n] = true
		if n.Op() == expr.OpSym && n.Name() == name {
			return true
		}
		for _, a := range n.Args() {
			if walk(a) {
				return true
			}
		}
		return false
	}
	return walk(n)
}

// P2MKernel assembles the moment construction kernel: one multipole moment
// per indexed monomial, accumulated from a unit point source with charge q
// at displacement (x, y, z) from the expansion center.
func (b *Builder) P2MKernel() (*Kernel, error) {
	k := &Kernel{
		Name:    kernelName("P2M", b.order, b.sourceOrder),
		Scalars: []string{"q"},
		Out:     "M",
	}
	for _, n := range b.mList {
		if err := b.checkDerivable(n); err != nil {
			return nil, err
		}
		k.Ops = append(k.Ops, b.Moment(n))
	}
	return b.finish(k), nil
}

// M2MKernel assembles the multipole translation kernel: shifted moments Ms
// from untranslated moments M and the center displacement.
func (b *Builder) M2MKernel() (*Kernel, error) {
	k := &Kernel{
		Name:   kernelName("M2M", b.order, b.sourceOrder),
		Inputs: []string{"M"},
		Out:    "Ms",
	}
	for _, n := range b.mList {
		if err := b.checkDerivable(n); err != nil {
			return nil, err
		}
		k.Ops = append(k.Ops, b.MomentShift(n, b.order))
	}
	return b.finish(k), nil
}

// M2LKernel assembles the multipole-to-local conversion kernel: every local
// expansion coefficient about the target center from the source moments and
// the separation vector.
func (b *Builder) M2LKernel() (*Kernel, error) {
	k := &Kernel{
		Name:   kernelName("M2L", b.order, b.sourceOrder),
		Inputs: []string{"M"},
		Out:    "L",
	}
	for _, n := range b.lList {
		if err := b.checkDerivable(n); err != nil {
			return nil, err
		}
		k.Ops = append(k.Ops, b.Local(n, b.order))
	}
	return b.finish(k), nil
}

// L2LKernel assembles the local translation kernel: local coefficients Ls
// about a new center from existing coefficients L and the displacement.
func (b *Builder) L2LKernel() (*Kernel, error) {
	k := &Kernel{
		Name:   kernelName("L2L", b.order, b.sourceOrder),
		Inputs: []string{"L"},
		Out:    "Ls",
	}
	for _, n := range b.lList {
		if err := b.checkDerivable(n); err != nil {
			return nil, err
		}
		k.Ops = append(k.Ops, b.LocalShift(n, b.order))
	}
	return b.finish(k), nil
}

// M2PKernel assembles the far-field evaluation kernel from multipole
// moments: the potential is the zeroth local coefficient at the target, and
// the field components are its negative gradient. Every derivative is taken
// through the chain rule on the distance symbol R before any lowering, so
// the gradient stays exact.
func (b *Builder) M2PKernel(potential, field bool) (*Kernel, error) {
	if err := b.checkDerivable(Monomial{}); err != nil {
		return nil, err
	}
	v := b.Local(Monomial{}, b.order)
	k := &Kernel{
		Name:   kernelName("M2P", b.order, b.sourceOrder),
		Inputs: []string{"M"},
		Out:    "F",
	}
	k.Ops = appendPotentialField(b.g, k.Ops, v, potential, field)
	return b.finish(k), nil
}

// L2PKernel assembles the far-field evaluation kernel from local moments.
// The derivative order is already encoded in the precomputed operators, so
// the field components read directly from PhiDeriv with unit multi-indices.
func (b *Builder) L2PKernel(potential, field bool) (*Kernel, error) {
	k := &Kernel{
		Name:   kernelName("L2P", b.order, b.sourceOrder),
		Inputs: []string{"L"},
		Out:    "F",
	}
	if potential {
		k.Ops = append(k.Ops, b.PhiDeriv(b.order, Monomial{}))
	}
	if field {
		k.Ops = append(k.Ops,
			b.g.Neg(b.PhiDeriv(b.order, Monomial{1, 0, 0})),
			b.g.Neg(b.PhiDeriv(b.order, Monomial{0, 1, 0})),
			b.g.Neg(b.PhiDeriv(b.order, Monomial{0, 0, 1})))
	}
	return b.finish(k), nil
}

// P2PKernel assembles the direct pairwise kernel for a source truncated to
// exactly sourceOrder: the source vector S carries only the moments of that
// degree (lower moments are structurally zero and never appear), and the
// potential/field follow from the local operator at the origin with
// derivatives taken before any distance lowering. Near-neighbor interactions
// and single-moment extended sources bypass the tree path through this
// kernel.
func P2PKernel(g *expr.Graph, sourceOrder int, potential, field bool) (*Kernel, error) {
	sub, err := NewBuilder(g, sourceOrder, sourceOrder)
	if err != nil {
		return nil, err
	}
	sub.momentArray = "S"
	v := sub.Local(Monomial{}, sourceOrder)
	k := &Kernel{
		Name:   "P2P",
		Inputs: []string{"S"},
		Out:    "F",
	}
	k.Ops = appendPotentialField(g, k.Ops, v, potential, field)
	return sub.finish(k), nil
}

// appendPotentialField appends the requested outputs derived from a
// potential expression: the potential itself and/or the negated gradient.
func appendPotentialField(g *expr.Graph, ops []*expr.Node, v *expr.Node, potential, field bool) []*expr.Node {
	if potential {
		ops = append(ops, v)
	}
	if field {
		ops = append(ops,
			g.Neg(g.Diff(v, "x")),
			g.Neg(g.Diff(v, "y")),
			g.Neg(g.Diff(v, "z")))
	}
	return ops
}
