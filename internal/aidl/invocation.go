package aidl

import "path"

// NinjaFlag asks aidl to write dependency files the host build engine can
// read to track imports.
const NinjaFlag = "--ninja"

// Invocation is a single run of the aidl compiler. It is fully determined
// by its InvocationConfig: building it twice yields identical values.
type Invocation struct {
	Unit     string
	Compiler string
	// Args is the complete argument vector, input files last.
	Args []string
	// Srcs are the files passed to the compiler.
	Srcs []string
	// Inputs is every file the run may read; a superset of Srcs.
	Inputs []string
	// Outputs is every file the run must produce.
	Outputs []string
	// OutputDir is passed to both --out and --header_out.
	OutputDir string
}

// InvocationConfig describes one compilation unit.
type InvocationConfig struct {
	Unit string
	// Package is the directory of the package declaring the unit.
	Package string
	// OutputRoot is the directory generated code of all packages goes under.
	OutputRoot string
	Compiler   string
	Backend    Backend
	// Deps are compiled together, in this order.
	Deps []*InterfaceLibrary
	// Flags are passed before any flag contributed by Deps.
	Flags []string
}

func (c InvocationConfig) packageOutDir() string {
	return path.Join(cleanPath(c.OutputRoot), c.Package)
}

// OutputDir is the directory aidl writes the unit's files to.
func (c InvocationConfig) OutputDir() string {
	return path.Join(c.packageOutDir(), c.Unit)
}

// BuildInvocation assembles the aidl command line for a unit along with the
// inputs and outputs the host build engine has to know about up front.
func BuildInvocation(cfg InvocationConfig) (*Invocation, error) {
	predicted, err := predictUnit(cfg)
	if err != nil {
		return nil, err
	}
	return newInvocation(cfg, predicted), nil
}

// predictUnit validates cfg and predicts the outputs of every direct source,
// dependencies in order.
func predictUnit(cfg InvocationConfig) ([]Outputs, error) {
	if _, err := cfg.Backend.policy(); err != nil {
		return nil, err
	}
	for _, dep := range cfg.Deps {
		if len(dep.IncludeDirs) == 0 {
			return nil, errorf(ErrMissingIncludeRoot, "library %q used by %q", dep.Name, cfg.Unit)
		}
	}

	var predicted []Outputs
	for _, dep := range cfg.Deps {
		for _, src := range dep.Srcs {
			out, err := PredictOutputs(src, dep.IncludeDir(), cfg.Backend, cfg.Unit)
			if err != nil {
				return nil, err
			}
			predicted = append(predicted, out)
		}
	}
	return predicted, nil
}

func newInvocation(cfg InvocationConfig, predicted []Outputs) *Invocation {
	outDir := cfg.OutputDir()
	pkgOut := cfg.packageOutDir()

	flags := newOrderedSet(cfg.Flags...)
	includes := newOrderedSet()
	srcs := newOrderedSet()
	inputs := newOrderedSet()
	for _, dep := range cfg.Deps {
		flags.add(dep.Flags...)
		includes.add(dep.IncludeDirs...)
		srcs.add(dep.Srcs...)
		inputs.add(dep.Srcs...)
		inputs.add(dep.TransitiveSrcs...)
	}

	outputs := newOrderedSet()
	for _, out := range predicted {
		outputs.add(path.Join(pkgOut, out.Source))
		for _, hdr := range out.Headers {
			outputs.add(path.Join(pkgOut, hdr))
		}
	}

	args := make([]string, 0, len(flags.items)+len(includes.items)+len(srcs.items)+4)
	args = append(args, flags.items...)
	args = append(args, "--out="+outDir, "--header_out="+outDir)
	for _, inc := range includes.items {
		args = append(args, "-I"+inc)
	}
	args = append(args, "--lang="+cfg.Backend.String(), NinjaFlag)
	args = append(args, srcs.items...)

	return &Invocation{
		Unit:      cfg.Unit,
		Compiler:  cfg.Compiler,
		Args:      args,
		Srcs:      srcs.items,
		Inputs:    inputs.items,
		Outputs:   outputs.items,
		OutputDir: outDir,
	}
}
