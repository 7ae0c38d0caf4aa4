package builder

import "github.com/qobs-build/aidlgen/internal/aidl"

// UnitReport is the printable form of one code generation unit
type UnitReport struct {
	Name        string   `json:"name" yaml:"name"`
	Backend     string   `json:"backend" yaml:"backend"`
	Srcs        []string `json:"srcs" yaml:"srcs"`
	Hdrs        []string `json:"hdrs" yaml:"hdrs"`
	IncludeDirs []string `json:"include_dirs" yaml:"include_dirs"`
	Compiler    string   `json:"compiler" yaml:"compiler"`
	Args        []string `json:"args" yaml:"args"`
	Inputs      []string `json:"inputs" yaml:"inputs"`
}

func reportUnit(unit *aidl.Unit) UnitReport {
	return UnitReport{
		Name:        unit.Name,
		Backend:     unit.Backend.String(),
		Srcs:        unit.Files.Srcs,
		Hdrs:        unit.Files.Hdrs,
		IncludeDirs: unit.Exports.IncludeDirs,
		Compiler:    unit.Invocation.Compiler,
		Args:        unit.Invocation.Args,
		Inputs:      unit.Invocation.Inputs,
	}
}

// Describe reports every unit in the graph, in resolution order
func (g *Graph) Describe() []UnitReport {
	reports := make([]UnitReport, len(g.Units))
	for i, unit := range g.Units {
		reports[i] = reportUnit(unit)
	}
	return reports
}
