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

// Command fmmgen derives the Cartesian fast multipole operators for the
// Laplace potential up to a chosen expansion order and emits them as
// straight-line numerical kernels.
//
// Usage:
//
//	fmmgen -order 5 -include_dir include -src_dir src
//	fmmgen -order 10 -source_order 1 -potential=false -atomic     # dipole-reduced, field only
//	fmmgen -order 4 -lang go -pkg kernels -src_dir internal/kernels
//
// One generation run produces a declarations file and a kernel body file
// (C backend) or a single Go source file (Go backend) containing the P2M,
// M2M, M2L, L2L, M2P, L2P and P2P kernels for the configured order.
// Output is deterministic: identical configuration yields byte-identical
// source.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fastmultipole/fmmgen/codegen"
)

var (
	order       = flag.Int("order", 2, "Maximum expansion degree")
	sourceOrder = flag.Int("source_order", 0, "Minimum included moment degree, for extended sources")
	precision   = flag.String("precision", "double", "Scalar width of emitted kernels (single, double)")
	lang        = flag.String("lang", "c", "Output language (c, go)")
	cse         = flag.Bool("cse", true, "Run common subexpression elimination over each kernel")
	atomicAcc   = flag.Bool("atomic", false, "Emit atomic accumulation for shared-array updates")
	potential   = flag.Bool("potential", true, "Generate the potential output of the evaluation kernels")
	field       = flag.Bool("field", true, "Generate the 3-component field output of the evaluation kernels")
	includeDir  = flag.String("include_dir", ".", "Output directory for the declarations file")
	srcDir      = flag.String("src_dir", ".", "Output directory for the kernel body file")
	prefix      = flag.String("prefix", "operators", "Base name of the emitted files")
	pkgName     = flag.String("pkg", "kernels", "Package name for the Go backend")
)

func main() {
	flag.Parse()

	prec, err := codegen.ParsePrecision(*precision)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	language, err := codegen.ParseLanguage(*lang)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	gen := &codegen.Generator{
		Config: codegen.Config{
			Order:       *order,
			SourceOrder: *sourceOrder,
			Precision:   prec,
			CSE:         *cse,
			Atomic:      *atomicAcc,
			Potential:   *potential,
			Field:       *field,
			Language:    language,
			IncludeDir:  *includeDir,
			SrcDir:      *srcDir,
			Prefix:      *prefix,
			Package:     *pkgName,
		},
	}

	files, err := gen.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for _, f := range files {
		fmt.Printf("Generated %s\n", f)
	}
}
