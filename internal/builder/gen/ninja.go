package gen

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/qobs-build/aidlgen/internal/aidl"
)

type NinjaGen struct {
	units []*aidl.Invocation
}

func (g *NinjaGen) BuildFile() string { return "build.ninja" }

var (
	ninjaPathEscaper  = strings.NewReplacer("$", "$$", ":", "$:", " ", "$ ", "\n", "$\n")
	ninjaValueEscaper = strings.NewReplacer("$", "$$", "\n", "$\n")
)

func quote(s string) string { return ninjaPathEscaper.Replace(s) }

func quoteAll(paths []string) string {
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = quote(p)
	}
	return strings.Join(quoted, " ")
}

// AddUnit adds one aidl invocation to the build graph
func (g *NinjaGen) AddUnit(inv *aidl.Invocation) {
	g.units = append(g.units, inv)
}

// implicitInputs are the inputs aidl reads through imports, plus the compiler itself when it is a file
func implicitInputs(inv *aidl.Invocation) []string {
	var implicit []string
	for _, in := range inv.Inputs {
		if !slices.Contains(inv.Srcs, in) {
			implicit = append(implicit, in)
		}
	}
	if strings.ContainsRune(inv.Compiler, '/') {
		implicit = append(implicit, inv.Compiler)
	}
	return implicit
}

func (g *NinjaGen) Generate() string {
	var sb strings.Builder

	writeln(&sb, "ninja_required_version = 1.1")
	writeln(&sb)

	// gen rules
	write(&sb,
		`rule aidl
  command = $aidl $args
  description = AIDL $unit
  restat = 1
`)
	writeln(&sb)

	for _, inv := range g.units {
		write(&sb, "build ", quoteAll(inv.Outputs), ": aidl")
		if len(inv.Srcs) > 0 {
			write(&sb, " ", quoteAll(inv.Srcs))
		}
		if implicit := implicitInputs(inv); len(implicit) > 0 {
			write(&sb, " | ", quoteAll(implicit))
		}
		writeln(&sb)
		writeln(&sb, "  aidl = ", ninjaValueEscaper.Replace(shellQuote(inv.Compiler)))
		writeln(&sb, "  args = ", ninjaValueEscaper.Replace(shellJoin(inv.Args)))
		writeln(&sb, "  unit = ", ninjaValueEscaper.Replace(inv.Unit))
		writeln(&sb)
	}

	return sb.String()
}

func (g *NinjaGen) Invoke(ctx context.Context, rootDir, buildDir string) error {
	buildFile, err := filepath.Rel(rootDir, filepath.Join(buildDir, g.BuildFile()))
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, "ninja", "-C", rootDir, "-f", filepath.ToSlash(buildFile))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}
