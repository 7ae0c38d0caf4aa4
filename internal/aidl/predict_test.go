package aidl

import (
	"path"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const abcdUnit = "abcd_cc_aidl_library_aidl_code_gen"

func TestPredictOutputs_NestedPackage(t *testing.T) {
	out, err := PredictOutputs("a/b/c/d/ABCD.aidl", "a/b", BackendCpp, abcdUnit)
	require.NoError(t, err)

	assert.Equal(t, abcdUnit+"/c/d/ABCD.cpp", out.Source)
	assert.Equal(t, []string{
		abcdUnit + "/c/d/ABCD.h",
		abcdUnit + "/c/d/BpABCD.h",
		abcdUnit + "/c/d/BnABCD.h",
	}, out.Headers)
	assert.Equal(t, abcdUnit+"/c/d", out.HeaderDir)
}

func TestPredictOutputs_InterfaceNames(t *testing.T) {
	cases := []struct {
		stem    string
		headers []string
	}{
		{"IFoo", []string{"IFoo.h", "BpFoo.h", "BnFoo.h"}},
		{"Ifoo", []string{"Ifoo.h", "BpIfoo.h", "BnIfoo.h"}},
		{"Io", []string{"Io.h", "BpIo.h", "BnIo.h"}},
		{"IA", []string{"IA.h", "BpIA.h", "BnIA.h"}},
		{"I", []string{"I.h", "BpI.h", "BnI.h"}},
		{"Foo", []string{"Foo.h", "BpFoo.h", "BnFoo.h"}},
		{"IIFoo", []string{"IIFoo.h", "BpIFoo.h", "BnIFoo.h"}},
		{"I1Foo", []string{"I1Foo.h", "BpI1Foo.h", "BnI1Foo.h"}},
	}
	for _, tc := range cases {
		t.Run(tc.stem, func(t *testing.T) {
			out, err := PredictOutputs("src/pkg/"+tc.stem+".aidl", "src", BackendCpp, "u")
			require.NoError(t, err)
			want := make([]string, len(tc.headers))
			for i, h := range tc.headers {
				want[i] = "u/pkg/" + h
			}
			assert.Equal(t, want, out.Headers)
			assert.Equal(t, "u/pkg/"+tc.stem+".cpp", out.Source)
		})
	}
}

func TestPredictOutputs_NdkNestsHeaders(t *testing.T) {
	cpp, err := PredictOutputs("a/b/c/d/IFoo.aidl", "a/b", BackendCpp, "u")
	require.NoError(t, err)
	ndk, err := PredictOutputs("a/b/c/d/IFoo.aidl", "a/b", BackendNdk, "u")
	require.NoError(t, err)

	assert.Equal(t, cpp.Source, ndk.Source)
	assert.Equal(t, []string{"u/aidl/c/d/IFoo.h", "u/aidl/c/d/BpFoo.h", "u/aidl/c/d/BnFoo.h"}, ndk.Headers)
	for i := range cpp.Headers {
		assert.Equal(t, path.Base(cpp.Headers[i]), path.Base(ndk.Headers[i]))
	}
}

func TestPredictOutputs_FileAtIncludeRoot(t *testing.T) {
	out, err := PredictOutputs("idl/IRoot.aidl", "idl", BackendCpp, "u")
	require.NoError(t, err)
	assert.Equal(t, "u/IRoot.cpp", out.Source)
	assert.Equal(t, "u/IRoot.h", out.Headers[0])

	out, err = PredictOutputs("IRoot.aidl", ".", BackendNdk, "u")
	require.NoError(t, err)
	assert.Equal(t, "u/IRoot.cpp", out.Source)
	assert.Equal(t, "u/aidl/BnRoot.h", out.Headers[2])
}

func TestPredictOutputs_NotUnderRoot(t *testing.T) {
	for _, src := range []string{"x/IFoo.aidl", "a/bc/IFoo.aidl", "a/b", "../a/b/IFoo.aidl"} {
		_, err := PredictOutputs(src, "a/b", BackendCpp, "u")
		require.ErrorIs(t, err, ErrPathResolution, src)
	}
	_, err := PredictOutputs("../IFoo.aidl", ".", BackendCpp, "u")
	require.ErrorIs(t, err, ErrPathResolution)
}

func TestPredictOutputs_UnknownBackend(t *testing.T) {
	_, err := PredictOutputs("a/IFoo.aidl", "a", Backend("java"), "u")
	require.ErrorIs(t, err, ErrUnsupportedBackend)

	var aerr *Error
	require.ErrorAs(t, err, &aerr)
	assert.Contains(t, aerr.Error(), "java")
}

func TestPredictOutputsProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("default backend layout", prop.ForAll(
		func(root, dir, stem string) bool {
			src := path.Join(root, dir, stem+".aidl")
			out, err := PredictOutputs(src, root, BackendCpp, "unit")
			if err != nil {
				return false
			}
			return out.Source == path.Join("unit", dir, stem+".cpp") &&
				len(out.Headers) == 3 &&
				out.Headers[0] == path.Join("unit", dir, stem+".h")
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.Property("ndk headers are one level deeper", prop.ForAll(
		func(dir, stem string) bool {
			src := path.Join("root", dir, stem+".aidl")
			cpp, err1 := PredictOutputs(src, "root", BackendCpp, "unit")
			ndk, err2 := PredictOutputs(src, "root", BackendNdk, "unit")
			if err1 != nil || err2 != nil {
				return false
			}
			for i := range cpp.Headers {
				if ndk.Headers[i] != path.Join("unit", "aidl", dir, path.Base(cpp.Headers[i])) {
					return false
				}
			}
			return cpp.Source == ndk.Source
		},
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.Property("interface prefix is stripped from stub headers only", prop.ForAll(
		func(name string) bool {
			stem := "I" + "X" + name
			out, err := PredictOutputs("r/"+stem+".aidl", "r", BackendCpp, "u")
			if err != nil {
				return false
			}
			return out.Headers[0] == "u/"+stem+".h" &&
				out.Headers[1] == "u/BpX"+name+".h" &&
				out.Headers[2] == "u/BnX"+name+".h"
		},
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
