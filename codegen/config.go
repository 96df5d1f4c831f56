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

// Package codegen lowers the symbolic FMM operator set into numerical kernel
// source files. It orchestrates the pipeline (index monomials, build
// operators, assemble kernels, eliminate common subexpressions, emit) and
// provides the C and Go backends.
package codegen

import (
	"fmt"

	"github.com/fastmultipole/fmmgen/fmm"
)

// Precision selects the scalar width of emitted kernels.
type Precision int

const (
	// Double emits 64-bit kernels (C double / Go float64).
	Double Precision = iota

	// Single emits 32-bit kernels (C float / Go float32).
	Single
)

// String returns the precision's configuration name.
func (p Precision) String() string {
	if p == Single {
		return "single"
	}
	return "double"
}

// ParsePrecision converts a configuration string to a Precision.
func ParsePrecision(s string) (Precision, error) {
	switch s {
	case "double":
		return Double, nil
	case "single":
		return Single, nil
	}
	return Double, fmt.Errorf("codegen: unknown precision %q (want single or double)", s)
}

// Language selects the emission backend.
type Language int

const (
	// LangC emits a C header with declarations and a C body file.
	LangC Language = iota

	// LangGo emits a single Go source file.
	LangGo
)

// String returns the language's configuration name.
func (l Language) String() string {
	if l == LangGo {
		return "go"
	}
	return "c"
}

// ParseLanguage converts a configuration string to a Language.
func ParseLanguage(s string) (Language, error) {
	switch s {
	case "c":
		return LangC, nil
	case "go":
		return LangGo, nil
	}
	return LangC, fmt.Errorf("codegen: unknown language %q (want c or go)", s)
}

// Config holds one generation run's options. A given Config always produces
// byte-identical output: generation is deterministic and idempotent, so a
// failed run is a configuration or internal-logic error, never transient.
type Config struct {
	// Order is the maximum expansion degree.
	Order int

	// SourceOrder is the minimum included moment degree, used to model
	// extended sources such as point dipoles. Must satisfy
	// 0 <= SourceOrder <= Order.
	SourceOrder int

	// Precision selects the scalar width of emitted kernels.
	Precision Precision

	// CSE enables the common-subexpression elimination pass. The pass is
	// always verified by exact re-substitution before emission.
	CSE bool

	// Atomic emits atomic accumulation for every statement writing into a
	// shared moment/local/field array, so concurrent tree-walk threads may
	// scatter-add without external locking. Temporaries stay plain locals.
	Atomic bool

	// Potential and Field select which evaluation outputs the M2P, L2P and
	// P2P kernels produce. The translation kernels are always generated.
	Potential bool
	Field     bool

	// Language selects the backend.
	Language Language

	// IncludeDir receives the declarations file (C backend).
	IncludeDir string

	// SrcDir receives the kernel body file.
	SrcDir string

	// Prefix is the output file base name; defaults to "operators".
	Prefix string

	// Package is the package name of the emitted Go file; defaults to
	// "kernels". Ignored by the C backend.
	Package string
}

// withDefaults returns the config with empty optional fields filled in.
func (c Config) withDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = "operators"
	}
	if c.Package == "" {
		c.Package = "kernels"
	}
	if c.IncludeDir == "" {
		c.IncludeDir = "."
	}
	if c.SrcDir == "" {
		c.SrcDir = "."
	}
	return c
}

// validate rejects configurations no derivation can satisfy, before any
// symbolic work begins.
func (c Config) validate() error {
	if c.SourceOrder < 0 {
		return fmt.Errorf("codegen: negative source order %d", c.SourceOrder)
	}
	if c.Order < c.SourceOrder {
		return fmt.Errorf("%w: order %d < source order %d", fmm.ErrInvalidOrderRange, c.Order, c.SourceOrder)
	}
	return nil
}
