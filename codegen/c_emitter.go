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

	"github.com/fastmultipole/fmmgen/fmm"
)

// emitC writes the declarations header into IncludeDir and the kernel bodies
// into SrcDir. Accumulations into shared arrays are guarded with OpenMP
// atomic pragmas when Atomic is set; temporaries are plain locals.
func (g *Generator) emitC(lowered []loweredKernel) ([]string, error) {
	scalar := "double"
	if g.Precision == Single {
		scalar = "float"
	}

	var header bytes.Buffer
	guard := headerGuard(g.Prefix)
	fmt.Fprintf(&header, "/* Code generated by fmmgen. DO NOT EDIT. */\n\n")
	fmt.Fprintf(&header, "#ifndef %s\n#define %s\n\n", guard, guard)
	for _, lk := range lowered {
		fmt.Fprintf(&header, "%s;\n", cSignature(lk.kernel, scalar))
	}
	fmt.Fprintf(&header, "\n#endif /* %s */\n", guard)

	var body bytes.Buffer
	fmt.Fprintf(&body, "/* Code generated by fmmgen. DO NOT EDIT. */\n\n")
	fmt.Fprintf(&body, "#include <math.h>\n\n")
	fmt.Fprintf(&body, "#include \"%s.h\"\n", g.Prefix)
	for _, lk := range lowered {
		body.WriteString("\n")
		g.writeCKernel(&body, lk, scalar)
	}

	headerPath, err := writeFile(g.IncludeDir, g.Prefix+".h", header.Bytes())
	if err != nil {
		return nil, err
	}
	bodyPath, err := writeFile(g.SrcDir, g.Prefix+".c", body.Bytes())
	if err != nil {
		return nil, err
	}
	return []string{headerPath, bodyPath}, nil
}

func (g *Generator) writeCKernel(buf *bytes.Buffer, lk loweredKernel, scalar string) {
	r := &renderer{prog: lk.prog, single: g.Precision == Single, lang: LangC}

	fmt.Fprintf(buf, "%s {\n", cSignature(lk.kernel, scalar))
	if lk.kernel.NeedsR {
		fmt.Fprintf(buf, "    %s R = %s;\n", scalar, r.sqrtCall("x*x + y*y + z*z"))
	}
	for _, t := range lk.prog.Temps {
		fmt.Fprintf(buf, "    %s %s = %s;\n", scalar, t.Name, r.define(t.Node))
	}
	for i, out := range lk.prog.Outputs {
		if g.Atomic {
			fmt.Fprintf(buf, "    #pragma omp atomic\n")
		}
		fmt.Fprintf(buf, "    %s[%d] += %s;\n", lk.kernel.Out, i, r.expr(out))
	}
	fmt.Fprintf(buf, "}\n")
}

// cSignature renders the kernel's C prototype: the displacement coordinates,
// any extra scalars, the read-only input arrays, and the accumulated output
// array.
func cSignature(k *fmm.Kernel, scalar string) string {
	params := []string{
		scalar + " x",
		scalar + " y",
		scalar + " z",
	}
	for _, s := range k.Scalars {
		params = append(params, scalar+" "+s)
	}
	for _, in := range k.Inputs {
		params = append(params, scalar+" * "+in)
	}
	params = append(params, scalar+" * "+k.Out)
	return fmt.Sprintf("void %s(%s)", k.Name, strings.Join(params, ", "))
}

// headerGuard derives the include-guard macro from the file prefix.
func headerGuard(prefix string) string {
	var sb strings.Builder
	for _, c := range strings.ToUpper(prefix) {
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			sb.WriteRune(c)
		} else {
			sb.WriteByte('_')
		}
	}
	return "FMMGEN_" + sb.String() + "_H"
}
