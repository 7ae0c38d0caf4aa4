package aidl

import (
	"path"
	"slices"
)

const codeGenSuffix = "_aidl_code_gen"

// GeneratedFileSet is everything aidl produces for a unit.
type GeneratedFileSet struct {
	Srcs       []string
	Hdrs       []string
	IncludeDir string
}

// HeaderInfo is what a native compile step needs to consume a unit: the
// headers it may include and the directory to add to its search path.
type HeaderInfo struct {
	Headers     []string
	IncludeDirs []string
}

// Unit is an assembled compilation unit.
type Unit struct {
	Name       string
	Backend    Backend
	Files      GeneratedFileSet
	Invocation *Invocation
	Exports    HeaderInfo
}

// UnitConfig is InvocationConfig under the name the assembler uses.
type UnitConfig = InvocationConfig

// CodeGenUnitName names the code generation unit of a cc_aidl_library.
func CodeGenUnitName(name string) string {
	return name + codeGenSuffix
}

// Assemble predicts the generated files of every dependency, in declaration
// order, and builds the single invocation that produces them.
func Assemble(cfg UnitConfig) (*Unit, error) {
	predicted, err := predictUnit(cfg)
	if err != nil {
		return nil, err
	}

	pkgOut := cfg.packageOutDir()
	srcs := newOrderedSet()
	hdrs := newOrderedSet()
	for _, out := range predicted {
		srcs.add(path.Join(pkgOut, out.Source))
		for _, hdr := range out.Headers {
			hdrs.add(path.Join(pkgOut, hdr))
		}
	}

	includeDir := cfg.OutputDir()
	return &Unit{
		Name:    cfg.Unit,
		Backend: cfg.Backend,
		Files: GeneratedFileSet{
			Srcs:       srcs.items,
			Hdrs:       hdrs.items,
			IncludeDir: includeDir,
		},
		Invocation: newInvocation(cfg, predicted),
		Exports: HeaderInfo{
			Headers:     slices.Clone(hdrs.items),
			IncludeDirs: []string{includeDir},
		},
	}, nil
}
