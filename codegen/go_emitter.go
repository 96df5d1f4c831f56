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
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/tools/imports"
)

// emitGo writes all kernels into a single Go source file in SrcDir. The file
// is passed through the imports processor so the emitted import block is
// exact and the output is gofmt-clean; a formatting failure means the
// emitter produced invalid Go and aborts the run.
func (g *Generator) emitGo(lowered []loweredKernel) ([]string, error) {
	scalar := "float64"
	if g.Precision == Single {
		scalar = "float32"
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "// Code generated by fmmgen. DO NOT EDIT.\n\n")
	fmt.Fprintf(&buf, "package %s\n\n", g.Package)
	fmt.Fprintf(&buf, "import (\n\t\"math\"\n\t\"sync/atomic\"\n\t\"unsafe\"\n)\n")

	for _, lk := range lowered {
		buf.WriteString("\n")
		g.writeGoKernel(&buf, lk, scalar)
	}
	if g.Atomic {
		buf.WriteString("\n")
		writeGoAtomicHelper(&buf, g.Precision)
	}

	name := g.Prefix + ".gen.go"
	src, err := imports.Process(name, buf.Bytes(), nil)
	if err != nil {
		return nil, fmt.Errorf("format generated go source: %w", err)
	}
	path, err := writeFile(g.SrcDir, name, src)
	if err != nil {
		return nil, err
	}
	return []string{path}, nil
}

func (g *Generator) writeGoKernel(buf *bytes.Buffer, lk loweredKernel, scalar string) {
	r := &renderer{prog: lk.prog, single: g.Precision == Single, lang: LangGo}
	k := lk.kernel

	scalars := append([]string{"x", "y", "z"}, k.Scalars...)
	params := strings.Join(scalars, ", ") + " " + scalar
	arrays := append(append([]string{}, k.Inputs...), k.Out)
	params += ", " + strings.Join(arrays, ", ") + " []" + scalar

	fmt.Fprintf(buf, "func %s(%s) {\n", k.Name, params)
	if k.NeedsR {
		fmt.Fprintf(buf, "\tR := %s\n", r.sqrtCall("x*x + y*y + z*z"))
	}
	for _, t := range lk.prog.Temps {
		fmt.Fprintf(buf, "\t%s := %s\n", t.Name, r.define(t.Node))
	}
	atomicAdd := goAtomicHelperName(g.Precision)
	for i, out := range lk.prog.Outputs {
		if g.Atomic {
			fmt.Fprintf(buf, "\t%s(&%s[%d], %s)\n", atomicAdd, k.Out, i, r.expr(out))
		} else {
			fmt.Fprintf(buf, "\t%s[%d] += %s\n", k.Out, i, r.expr(out))
		}
	}
	fmt.Fprintf(buf, "}\n")
}

func goAtomicHelperName(p Precision) string {
	if p == Single {
		return "atomicAddFloat32"
	}
	return "atomicAddFloat64"
}

// writeGoAtomicHelper emits the compare-and-swap loop used for lock-free
// scatter-adds into shared arrays.
func writeGoAtomicHelper(buf *bytes.Buffer, p Precision) {
	if p == Single {
		buf.WriteString(`func atomicAddFloat32(addr *float32, delta float32) {
	p := (*uint32)(unsafe.Pointer(addr))
	for {
		old := atomic.LoadUint32(p)
		next := math.Float32bits(math.Float32frombits(old) + delta)
		if atomic.CompareAndSwapUint32(p, old, next) {
			return
		}
	}
}
`)
		return
	}
	buf.WriteString(`func atomicAddFloat64(addr *float64, delta float64) {
	p := (*uint64)(unsafe.Pointer(addr))
	for {
		old := atomic.LoadUint64(p)
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(p, old, next) {
			return
		}
	}
}
`)
}
