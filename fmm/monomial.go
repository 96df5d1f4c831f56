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

// Package fmm derives the symbolic operators of the Cartesian fast multipole
// method for the Laplace kernel: multipole moments, multipole and local
// translations, local expansions, and the potential/field evaluation
// operators assembled from them.
package fmm

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat/combin"
)

// ErrInvalidOrderRange is returned when sourceOrder exceeds order; no
// meaningful expansion exists in that configuration.
var ErrInvalidOrderRange = errors.New("fmm: source order must not exceed expansion order")

// Monomial is an exponent triple (i, j, k) representing x^i * y^j * z^k.
type Monomial [3]int

// Degree returns the total degree i+j+k.
func (m Monomial) Degree() int { return m[0] + m[1] + m[2] }

// Add returns the componentwise sum m+o.
func (m Monomial) Add(o Monomial) Monomial {
	return Monomial{m[0] + o[0], m[1] + o[1], m[2] + o[2]}
}

// Sub returns the componentwise difference m-o.
func (m Monomial) Sub(o Monomial) Monomial {
	return Monomial{m[0] - o[0], m[1] - o[1], m[2] - o[2]}
}

// Dominates reports whether every exponent of m is >= the matching exponent
// of o, i.e. whether m-o is again a monomial.
func (m Monomial) Dominates(o Monomial) bool {
	return m[0] >= o[0] && m[1] >= o[1] && m[2] >= o[2]
}

// String renders the exponent triple, e.g. "(1, 0, 2)".
func (m Monomial) String() string {
	return fmt.Sprintf("(%d, %d, %d)", m[0], m[1], m[2])
}

// GrevlexLess is the graded reverse-lexicographic comparator computed on the
// reversed symbol order (z, y, x). The resulting sequence fixes the array
// layout of every generated kernel, so this exact tie-break is part of the
// wire format: lower total degree first, ties broken by larger x exponent,
// then larger y exponent.
func GrevlexLess(a, b Monomial) bool {
	da, db := a.Degree(), b.Degree()
	if da != db {
		return da < db
	}
	if a[0] != b[0] {
		return a[0] > b[0]
	}
	if a[1] != b[1] {
		return a[1] > b[1]
	}
	return a[2] > b[2]
}

// Nterms returns the number of monomials in three variables with total
// degree <= order, i.e. binomial(order+3, 3). Negative orders count zero
// terms, which lets callers express "no excluded lower block" uniformly.
func Nterms(order int) int {
	if order < 0 {
		return 0
	}
	return combin.Binomial(order+3, 3)
}

// NtermsRange returns the number of monomials with total degree in
// [sourceOrder, order].
func NtermsRange(order, sourceOrder int) int {
	return Nterms(order) - Nterms(sourceOrder-1)
}

// IndexMonomials enumerates the monomials with degree in [sourceOrder, order]
// ordered by GrevlexLess and returns the dense bijection in both directions:
// a forward map from monomial to array index and the backward slice from
// index to monomial. The result is a pure function of its inputs.
func IndexMonomials(order, sourceOrder int) (map[Monomial]int, []Monomial, error) {
	if sourceOrder < 0 {
		return nil, nil, fmt.Errorf("fmm: negative source order %d", sourceOrder)
	}
	if order < sourceOrder {
		return nil, nil, fmt.Errorf("%w: order %d < source order %d", ErrInvalidOrderRange, order, sourceOrder)
	}

	monoms := make([]Monomial, 0, NtermsRange(order, sourceOrder))
	for i := 0; i <= order; i++ {
		for j := 0; j <= order-i; j++ {
			for k := 0; k <= order-i-j; k++ {
				m := Monomial{i, j, k}
				if m.Degree() >= sourceOrder {
					monoms = append(monoms, m)
				}
			}
		}
	}
	sort.Slice(monoms, func(a, b int) bool { return GrevlexLess(monoms[a], monoms[b]) })

	forward := make(map[Monomial]int, len(monoms))
	for i, m := range monoms {
		forward[m] = i
	}
	return forward, monoms, nil
}
