package aidl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLibrary(t *testing.T, spec LibrarySpec) *InterfaceLibrary {
	t.Helper()
	lib, err := NewLibrary(spec)
	require.NoError(t, err)
	return lib
}

func TestNewLibrary_IncludeRoot(t *testing.T) {
	cases := []struct {
		pkg, strip, want string
	}{
		{"a", "b", "a/b"},
		{"a", "", "a"},
		{"", "", "."},
		{"a/b", "/c", "c"},
		{"a", "/", "."},
		{"a/b", "../c", "a/c"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IncludeRoot(tc.pkg, tc.strip), "%q + %q", tc.pkg, tc.strip)
	}
}

func TestNewLibrary_PreorderIncludeDirs(t *testing.T) {
	c := mustLibrary(t, LibrarySpec{Name: "c", Package: "c", Srcs: []string{"c/IC.aidl"}})
	b := mustLibrary(t, LibrarySpec{Name: "b", Package: "b", Srcs: []string{"b/IB.aidl"}, Deps: []*InterfaceLibrary{c}})
	d := mustLibrary(t, LibrarySpec{Name: "d", Package: "d", Srcs: []string{"d/ID.aidl"}, Deps: []*InterfaceLibrary{c}})
	a := mustLibrary(t, LibrarySpec{Name: "a", Package: "a", Srcs: []string{"a/IA.aidl"}, Deps: []*InterfaceLibrary{b, d}})

	assert.Equal(t, []string{"a", "b", "c", "d"}, a.IncludeDirs)
	assert.Equal(t, "a", a.IncludeDir())
	assert.Equal(t, []string{"a/IA.aidl", "b/IB.aidl", "c/IC.aidl", "d/ID.aidl"}, a.TransitiveSrcs)
	assert.Equal(t, []string{"a/IA.aidl"}, a.Srcs)
}

func TestNewLibrary_Hdrs(t *testing.T) {
	lib := mustLibrary(t, LibrarySpec{
		Name:              "foo",
		Package:           "frameworks/foo",
		StripImportPrefix: "aidl",
		Srcs:              []string{"frameworks/foo/aidl/android/foo/IFoo.aidl"},
		Hdrs:              []string{"frameworks/foo/aidl/android/foo/Parcel.aidl"},
		Flags:             []string{"--structured"},
	})

	assert.Equal(t, []string{"frameworks/foo/aidl/android/foo/IFoo.aidl"}, lib.Srcs)
	assert.Equal(t, []string{
		"frameworks/foo/aidl/android/foo/IFoo.aidl",
		"frameworks/foo/aidl/android/foo/Parcel.aidl",
	}, lib.TransitiveSrcs)
	assert.Equal(t, []string{"frameworks/foo/aidl"}, lib.IncludeDirs)
	assert.Equal(t, []string{"--structured"}, lib.Flags)
}

func TestNewLibrary_SourceOutsideRoot(t *testing.T) {
	_, err := NewLibrary(LibrarySpec{
		Name:              "foo",
		Package:           "foo",
		StripImportPrefix: "aidl",
		Srcs:              []string{"foo/IFoo.aidl"},
	})
	require.ErrorIs(t, err, ErrPathResolution)

	_, err = NewLibrary(LibrarySpec{
		Name:    "foo",
		Package: "foo",
		Hdrs:    []string{"bar/IBar.aidl"},
	})
	require.ErrorIs(t, err, ErrPathResolution)
}

func TestNewLibrary_DepWithoutIncludeRoot(t *testing.T) {
	broken := &InterfaceLibrary{Name: "broken", Srcs: []string{"x/IX.aidl"}}
	_, err := NewLibrary(LibrarySpec{Name: "foo", Package: "foo", Deps: []*InterfaceLibrary{broken}})
	require.ErrorIs(t, err, ErrMissingIncludeRoot)
}

func TestNewLibraryCopiesInputs(t *testing.T) {
	flags := []string{"--structured"}
	lib := mustLibrary(t, LibrarySpec{Name: "foo", Package: "foo", Flags: flags})
	flags[0] = "--changed"
	assert.Equal(t, []string{"--structured"}, lib.Flags)
}

func TestParseBackend(t *testing.T) {
	b, err := ParseBackend("")
	require.NoError(t, err)
	assert.Equal(t, BackendCpp, b)

	b, err = ParseBackend("ndk")
	require.NoError(t, err)
	assert.Equal(t, BackendNdk, b)

	_, err = ParseBackend("rust")
	require.ErrorIs(t, err, ErrUnsupportedBackend)

	assert.Equal(t, []string{"cpp", "ndk"}, Backends())
}
