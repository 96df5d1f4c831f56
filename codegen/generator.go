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
	"os"
	"path/filepath"

	"github.com/fastmultipole/fmmgen/expr"
	"github.com/fastmultipole/fmmgen/fmm"
)

// Generator orchestrates one generation run.
type Generator struct {
	Config
}

// loweredKernel pairs an assembled kernel with its (possibly CSE-reduced)
// statement program.
type loweredKernel struct {
	kernel *fmm.Kernel
	prog   *expr.Program
}

// Run executes the full pipeline and writes the output files. It returns the
// paths of the emitted files in emission order. Any failure aborts emission:
// partial or unverified kernels are never written.
func (g *Generator) Run() ([]string, error) {
	g.Config = g.Config.withDefaults()
	if err := g.Config.validate(); err != nil {
		return nil, err
	}

	lowered, err := g.Lower()
	if err != nil {
		return nil, err
	}

	switch g.Language {
	case LangGo:
		return g.emitGo(lowered)
	default:
		return g.emitC(lowered)
	}
}

// Lower derives the symbolic kernels for the configuration and runs the
// optional CSE pass over each, verifying exactness. Exposed separately so
// tests can inspect the expression programs without touching the filesystem.
func (g *Generator) Lower() ([]loweredKernel, error) {
	g.Config = g.Config.withDefaults()
	if err := g.Config.validate(); err != nil {
		return nil, err
	}

	graph := expr.NewGraph()
	builder, err := fmm.NewBuilder(graph, g.Order, g.SourceOrder)
	if err != nil {
		return nil, err
	}

	assemblers := []func() (*fmm.Kernel, error){
		builder.P2MKernel,
		builder.M2MKernel,
		builder.M2LKernel,
		builder.L2LKernel,
	}
	if g.Potential || g.Field {
		assemblers = append(assemblers,
			func() (*fmm.Kernel, error) { return builder.M2PKernel(g.Potential, g.Field) },
			func() (*fmm.Kernel, error) { return builder.L2PKernel(g.Potential, g.Field) },
			func() (*fmm.Kernel, error) { return fmm.P2PKernel(graph, g.SourceOrder, g.Potential, g.Field) },
		)
	}

	var lowered []loweredKernel
	for _, assemble := range assemblers {
		k, err := assemble()
		if err != nil {
			return nil, fmt.Errorf("assemble kernel: %w", err)
		}
		var prog *expr.Program
		if g.CSE {
			prog = graph.CSE(k.Ops)
			if err := prog.Verify(); err != nil {
				return nil, fmt.Errorf("kernel %s: %w", k.Name, err)
			}
		} else {
			prog = graph.NoCSE(k.Ops)
		}
		lowered = append(lowered, loweredKernel{kernel: k, prog: prog})
	}
	return lowered, nil
}

// writeFile creates the directory if needed and writes the file contents.
func writeFile(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
