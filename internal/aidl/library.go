package aidl

import (
	"path"
	"strings"
)

// InterfaceLibrary is the metadata an aidl_library exports to everything that
// depends on it. All paths are slash-separated and relative to the workspace
// root. Values are immutable once returned by NewLibrary.
type InterfaceLibrary struct {
	Name string
	// Srcs are compiled by any unit that lists this library directly.
	Srcs []string
	// Hdrs can be imported but are never compiled.
	Hdrs []string
	// IncludeDirs lists this library's include root first, followed by the
	// include roots of its dependencies in preorder.
	IncludeDirs []string
	// TransitiveSrcs is every .aidl file an import of this library may read.
	TransitiveSrcs []string
	Flags          []string
}

// LibrarySpec describes an aidl_library before its dependencies are folded in.
type LibrarySpec struct {
	Name string
	// Package is the directory that declares the library.
	Package string
	Srcs    []string
	Hdrs    []string
	// StripImportPrefix is relative to Package, or to the workspace root when
	// it starts with "/".
	StripImportPrefix string
	Deps              []*InterfaceLibrary
	Flags             []string
}

// NewLibrary builds the exported metadata of a library. Every source and
// header must live under the library's include root.
func NewLibrary(spec LibrarySpec) (*InterfaceLibrary, error) {
	root := IncludeRoot(spec.Package, spec.StripImportPrefix)

	for _, f := range concat(spec.Srcs, spec.Hdrs) {
		if _, err := shortPath(f, root); err != nil {
			return nil, err
		}
	}

	includes := newOrderedSet(root)
	transitive := newOrderedSet()
	transitive.add(cleanPaths(spec.Srcs)...)
	transitive.add(cleanPaths(spec.Hdrs)...)
	for _, dep := range spec.Deps {
		if len(dep.IncludeDirs) == 0 {
			return nil, errorf(ErrMissingIncludeRoot, "dependency %q of %q", dep.Name, spec.Name)
		}
		includes.add(dep.IncludeDirs...)
		transitive.add(dep.TransitiveSrcs...)
	}

	return &InterfaceLibrary{
		Name:           spec.Name,
		Srcs:           cleanPaths(spec.Srcs),
		Hdrs:           cleanPaths(spec.Hdrs),
		IncludeDirs:    includes.items,
		TransitiveSrcs: transitive.items,
		Flags:          append([]string(nil), spec.Flags...),
	}, nil
}

// IncludeDir returns the library's own include root, the one its sources are
// named relative to.
func (l *InterfaceLibrary) IncludeDir() string {
	if len(l.IncludeDirs) == 0 {
		return ""
	}
	return l.IncludeDirs[0]
}

// IncludeRoot computes the directory import paths of a package are resolved
// against.
func IncludeRoot(pkg, stripImportPrefix string) string {
	if strings.HasPrefix(stripImportPrefix, "/") {
		return cleanPath(strings.TrimPrefix(stripImportPrefix, "/"))
	}
	return cleanPath(path.Join(pkg, stripImportPrefix))
}

func cleanPath(p string) string {
	if p == "" {
		return "."
	}
	return path.Clean(p)
}

func cleanPaths(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = cleanPath(p)
	}
	return out
}

// shortPath returns file relative to root.
func shortPath(file, root string) (string, error) {
	file, root = cleanPath(file), cleanPath(root)
	if root == "." {
		if file == "." || file == ".." || strings.HasPrefix(file, "../") || path.IsAbs(file) {
			return "", errorf(ErrPathResolution, "%s is not under %s", file, root)
		}
		return file, nil
	}
	rel, ok := strings.CutPrefix(file, root+"/")
	if !ok || rel == "" {
		return "", errorf(ErrPathResolution, "%s is not under %s", file, root)
	}
	return rel, nil
}

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

// orderedSet keeps the first occurrence of every string.
type orderedSet struct {
	items []string
	seen  map[string]struct{}
}

func newOrderedSet(items ...string) *orderedSet {
	s := &orderedSet{seen: make(map[string]struct{})}
	s.add(items...)
	return s
}

func (s *orderedSet) add(items ...string) {
	for _, item := range items {
		if _, ok := s.seen[item]; ok {
			continue
		}
		s.seen[item] = struct{}{}
		s.items = append(s.items, item)
	}
}
