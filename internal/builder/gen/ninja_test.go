package gen

import (
	"testing"

	"github.com/qobs-build/aidlgen/internal/aidl"
	"github.com/stretchr/testify/assert"
)

func testInvocation() *aidl.Invocation {
	return &aidl.Invocation{
		Unit:     "foo_aidl_code_gen",
		Compiler: "prebuilts/aidl",
		Args: []string{
			"--out=build/gen/pkg/foo_aidl_code_gen", "--header_out=build/gen/pkg/foo_aidl_code_gen",
			"-Ipkg/aidl", "--lang=cpp", "--ninja", "pkg/aidl/a/IFoo.aidl",
		},
		Srcs:    []string{"pkg/aidl/a/IFoo.aidl"},
		Inputs:  []string{"pkg/aidl/a/IFoo.aidl", "pkg/aidl/a/Types.aidl"},
		Outputs: []string{"build/gen/pkg/foo_aidl_code_gen/a/IFoo.cpp", "build/gen/pkg/foo_aidl_code_gen/a/IFoo.h"},
	}
}

func TestNinjaGenerate(t *testing.T) {
	g := &NinjaGen{}
	g.AddUnit(testInvocation())
	out := g.Generate()

	assert.Contains(t, out, "rule aidl\n  command = $aidl $args\n  description = AIDL $unit\n")
	assert.Contains(t, out, "build build/gen/pkg/foo_aidl_code_gen/a/IFoo.cpp build/gen/pkg/foo_aidl_code_gen/a/IFoo.h: aidl pkg/aidl/a/IFoo.aidl | pkg/aidl/a/Types.aidl prebuilts/aidl\n")
	assert.Contains(t, out, "  aidl = prebuilts/aidl\n")
	assert.Contains(t, out, "  args = --out=build/gen/pkg/foo_aidl_code_gen --header_out=build/gen/pkg/foo_aidl_code_gen -Ipkg/aidl --lang=cpp --ninja pkg/aidl/a/IFoo.aidl\n")
	assert.Contains(t, out, "  unit = foo_aidl_code_gen\n")
}

func TestNinjaEscaping(t *testing.T) {
	inv := testInvocation()
	inv.Compiler = "aidl"
	inv.Srcs = []string{"my dir/I$.aidl"}
	inv.Inputs = inv.Srcs
	inv.Outputs = []string{"c:/out.cpp"}
	inv.Args = []string{"--flag=it's", "my dir/I$.aidl"}

	g := &NinjaGen{}
	g.AddUnit(inv)
	out := g.Generate()

	assert.Contains(t, out, "build c$:/out.cpp: aidl my$ dir/I$$.aidl\n")
	assert.Contains(t, out, `  args = '--flag=it'\''s' 'my dir/I$$.aidl'`+"\n")
	assert.NotContains(t, out, " | ")
}

func TestShellQuote(t *testing.T) {
	cases := map[string]string{
		"":           "''",
		"--lang=cpp": "--lang=cpp",
		"-Ia/b":      "-Ia/b",
		"two words":  "'two words'",
		"it's":       `'it'\''s'`,
		"$HOME":      "'$HOME'",
	}
	for in, want := range cases {
		assert.Equal(t, want, shellQuote(in), in)
	}
}
