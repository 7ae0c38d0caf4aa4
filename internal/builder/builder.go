package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/qobs-build/aidlgen/internal/aidl"
	"github.com/qobs-build/aidlgen/internal/builder/gen"
	"github.com/qobs-build/aidlgen/internal/msg"
)

var (
	errNoCompiler = errors.New("aidl compiler not found (set $AIDL or pass --aidl)")
)

const buildDirName = "build"

const (
	GeneratorNinja = "ninja"
	GeneratorQobs  = "qobs"
)

// Package represents a single component (root package or dependency) in the build graph
type Package struct {
	Name string
	// Path is the absolute package directory
	Path string
	// Rel is Path relative to the workspace root, slash separated ("" for the root package)
	Rel    string
	Config *Config
	Env    ConfigEnv
	IsRoot bool
}

// Graph is the fully resolved build: every package, every library and every code generation unit
type Graph struct {
	Packages  []*Package
	Libraries map[string]*aidl.InterfaceLibrary // "package:library" -> library
	Units     []*aidl.Unit
}

type Builder struct {
	cfg     *Config
	basedir string
	env     ConfigEnv

	// Compiler is the aidl binary. Defaults to $AIDL or aidl on PATH.
	Compiler string
	// Jobs limits how many units the qobs generator runs at once.
	Jobs int
}

func NewBuilderInDirectory(path string) (*Builder, error) {
	var err error
	path, err = filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	env := NewConfigEnv(path)
	cfg, err := ParseConfigFromFile(filepath.Join(path, ManifestFilename), env)
	if err != nil {
		return nil, err
	}
	return &Builder{cfg: cfg, basedir: path, env: env, Compiler: findCompiler()}, nil
}

func (b *Builder) buildDir() string   { return filepath.Join(b.basedir, buildDirName) }
func (b *Builder) depsDir() string    { return filepath.Join(b.buildDir(), "_deps") }
func (b *Builder) outputRoot() string { return "build/gen" }

// workspaceRel converts an absolute path into a slash separated path relative to the workspace root
func (b *Builder) workspaceRel(abs string) (string, error) {
	rel, err := filepath.Rel(b.basedir, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside of the workspace %s", abs, b.basedir)
	}
	if rel == "." {
		return "", nil
	}
	return rel, nil
}

func (b *Builder) resolveBuildGraph(ctx context.Context) (map[string]*Package, error) {
	packages := make(map[string]*Package)
	depSources := make(map[string]string)
	depParents := make(map[string]string)

	rootPackage := &Package{
		Name:   b.cfg.Package.Name,
		Path:   b.basedir,
		Config: b.cfg,
		Env:    b.env,
		IsRoot: true,
	}
	packages[rootPackage.Name] = rootPackage

	queue := make([]string, 0)
	for _, name := range sortedKeys(b.cfg.Dependencies) {
		depSources[name] = b.cfg.Dependencies[name]
		depParents[name] = b.basedir
		queue = append(queue, name)
	}

	for i := 0; i < len(queue); i++ {
		depName := queue[i]
		if _, exists := packages[depName]; exists {
			continue
		}

		depPath, err := b.materializeDependency(ctx, depName, depSources[depName], depParents[depName])
		if err != nil {
			return nil, fmt.Errorf("failed to fetch dependency %q: %w", depName, err)
		}
		rel, err := b.workspaceRel(depPath)
		if err != nil {
			return nil, fmt.Errorf("dependency %q: %w", depName, err)
		}

		env := NewConfigEnv(depPath)
		depConfig, err := ParseConfigFromFile(filepath.Join(depPath, ManifestFilename), env)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config for dependency %q: %w", depName, err)
		}

		if depConfig.Package.Name != depName {
			msg.Warn("dependency %q has a mismatched package name: %q", depName, depConfig.Package.Name)
		}

		packages[depName] = &Package{
			Name:   depName,
			Path:   depPath,
			Rel:    rel,
			Config: depConfig,
			Env:    env,
		}

		for _, name := range sortedKeys(depConfig.Dependencies) {
			if _, ok := depSources[name]; !ok {
				depSources[name] = depConfig.Dependencies[name]
				depParents[name] = depPath
			}
			queue = append(queue, name)
		}
	}

	return packages, nil
}

// materializeDependency makes sure the dependency exists on disk and returns its directory
func (b *Builder) materializeDependency(ctx context.Context, name, source, parentDir string) (string, error) {
	if isLocalSource(source) {
		depPath := source
		if !filepath.IsAbs(depPath) {
			depPath = filepath.Join(parentDir, depPath)
		}
		return filepath.Clean(depPath), nil
	}

	depPath := filepath.Join(b.depsDir(), name)
	if stat, err := os.Stat(depPath); err == nil && stat.IsDir() {
		return depPath, nil
	}
	if err := os.MkdirAll(depPath, 0755); err != nil && !os.IsExist(err) {
		return "", err
	}
	if err := fetchDependency(ctx, source, depPath); err != nil {
		// don't leave a half-fetched directory behind, it would be picked up next time
		os.RemoveAll(depPath)
		return "", err
	}
	return depPath, nil
}

// collectFiles globs patterns inside the package and returns workspace relative paths
func (b *Builder) collectFiles(pkg *Package, patterns []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	fsys := os.DirFS(pkg.Path)

	for _, pat := range patterns {
		if filepath.IsAbs(pat) || path.IsAbs(pat) {
			return nil, fmt.Errorf("pattern %q must be relative to the package", pat)
		}
		matches, err := doublestar.Glob(fsys, filepath.ToSlash(pat), doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pat, err)
		}
		if len(matches) == 0 {
			msg.Warn("pattern %q in package %q matched no files", pat, pkg.Name)
		}
		slices.Sort(matches)
		for _, match := range matches {
			// fetched dependencies and generated code live under build/
			if pkg.IsRoot && (match == buildDirName || strings.HasPrefix(match, buildDirName+"/")) {
				continue
			}
			rel := path.Join(pkg.Rel, match)
			if seen[rel] {
				continue
			}
			seen[rel] = true
			files = append(files, rel)
		}
	}

	return files, nil
}

// libraryResolver turns aidl_library sections into aidl.InterfaceLibrary values, dependencies first
type libraryResolver struct {
	b        *Builder
	packages map[string]*Package
	libs     map[string]*aidl.InterfaceLibrary
	visiting map[string]bool
}

// parseLabel splits "pkg:lib", ":lib" and "lib" labels as seen from package from
func (r *libraryResolver) parseLabel(from *Package, label string) (*Package, string, error) {
	pkgName, libName, found := strings.Cut(label, ":")
	if !found {
		return from, label, nil
	}
	if pkgName == "" || pkgName == from.Name {
		return from, libName, nil
	}
	if _, ok := from.Config.Dependencies[pkgName]; !ok {
		return nil, "", fmt.Errorf("label %q in package %q refers to %q, which is not listed in [dependencies]", label, from.Name, pkgName)
	}
	pkg, ok := r.packages[pkgName]
	if !ok {
		return nil, "", fmt.Errorf("internal error: resolved dependency %q not found in package map", pkgName)
	}
	return pkg, libName, nil
}

func (r *libraryResolver) library(pkg *Package, name string) (*aidl.InterfaceLibrary, error) {
	key := pkg.Name + ":" + name
	if lib, ok := r.libs[key]; ok {
		return lib, nil
	}
	if r.visiting[key] {
		return nil, fmt.Errorf("dependency cycle detected involving aidl_library %q", key)
	}

	section, ok := pkg.Config.Libraries[name]
	if !ok {
		return nil, fmt.Errorf("package %q has no aidl_library %q", pkg.Name, name)
	}

	r.visiting[key] = true
	defer delete(r.visiting, key)

	var deps []*aidl.InterfaceLibrary
	for _, label := range section.Deps {
		dep, err := r.label(pkg, label)
		if err != nil {
			return nil, fmt.Errorf("aidl_library %q: %w", key, err)
		}
		deps = append(deps, dep)
	}

	srcs, err := r.b.collectFiles(pkg, section.Srcs)
	if err != nil {
		return nil, fmt.Errorf("failed to collect srcs for aidl_library %q: %w", key, err)
	}
	hdrs, err := r.b.collectFiles(pkg, section.Hdrs)
	if err != nil {
		return nil, fmt.Errorf("failed to collect hdrs for aidl_library %q: %w", key, err)
	}

	lib, err := aidl.NewLibrary(aidl.LibrarySpec{
		Name:              key,
		Package:           pkg.Rel,
		Srcs:              srcs,
		Hdrs:              hdrs,
		StripImportPrefix: section.StripImportPrefix,
		Deps:              deps,
		Flags:             section.Flags,
	})
	if err != nil {
		return nil, fmt.Errorf("aidl_library %q: %w", key, err)
	}

	r.libs[key] = lib
	return lib, nil
}

func (r *libraryResolver) label(from *Package, label string) (*aidl.InterfaceLibrary, error) {
	pkg, name, err := r.parseLabel(from, label)
	if err != nil {
		return nil, err
	}
	return r.library(pkg, name)
}

// orderedPackages returns the root package first and dependencies by name
func orderedPackages(packages map[string]*Package) []*Package {
	var root *Package
	var deps []*Package
	for _, name := range sortedKeys(packages) {
		pkg := packages[name]
		if pkg.IsRoot {
			root = pkg
			continue
		}
		deps = append(deps, pkg)
	}
	if root == nil {
		return deps
	}
	return append([]*Package{root}, deps...)
}

// Resolve fetches dependencies, resolves every library and assembles every cc_aidl_library
func (b *Builder) Resolve(ctx context.Context) (*Graph, error) {
	if err := os.MkdirAll(b.buildDir(), 0755); err != nil {
		return nil, err
	}

	packages, err := b.resolveBuildGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve dependency graph: %w", err)
	}

	compiler := b.Compiler
	if compiler == "" {
		compiler = "aidl"
	}

	graph := &Graph{Packages: orderedPackages(packages)}
	resolver := &libraryResolver{
		b:        b,
		packages: packages,
		libs:     make(map[string]*aidl.InterfaceLibrary),
		visiting: make(map[string]bool),
	}

	for _, pkg := range graph.Packages {
		if err := pkg.Config.RunBuildScript(pkg.Env); err != nil {
			return nil, err
		}

		for _, name := range pkg.Config.LibraryNames() {
			if _, err := resolver.library(pkg, name); err != nil {
				return nil, err
			}
		}

		for _, name := range pkg.Config.CcLibraryNames() {
			section := pkg.Config.CcLibraries[name]
			backend, err := aidl.ParseBackend(section.Lang)
			if err != nil {
				return nil, fmt.Errorf("cc_aidl_library %q: %w", pkg.Name+":"+name, err)
			}
			if len(section.Deps) == 0 {
				msg.Warn("cc_aidl_library %q has no deps", pkg.Name+":"+name)
			}

			var deps []*aidl.InterfaceLibrary
			for _, label := range section.Deps {
				dep, err := resolver.label(pkg, label)
				if err != nil {
					return nil, fmt.Errorf("cc_aidl_library %q: %w", pkg.Name+":"+name, err)
				}
				deps = append(deps, dep)
			}

			unit, err := aidl.Assemble(aidl.UnitConfig{
				Unit:       aidl.CodeGenUnitName(name),
				Package:    pkg.Rel,
				OutputRoot: b.outputRoot(),
				Compiler:   compiler,
				Backend:    backend,
				Deps:       deps,
				Flags:      section.UnitFlags(),
			})
			if err != nil {
				return nil, fmt.Errorf("cc_aidl_library %q: %w", pkg.Name+":"+name, err)
			}
			graph.Units = append(graph.Units, unit)
		}
	}

	graph.Libraries = resolver.libs
	return graph, nil
}

func createGenerator(generator string, jobs int) (gen.Generator, error) {
	switch generator {
	case GeneratorNinja:
		return &gen.NinjaGen{}, nil
	case GeneratorQobs:
		return gen.NewExecutor(jobs), nil
	default:
		return nil, fmt.Errorf("unknown generator %q", generator)
	}
}

// Build resolves the entire dependency graph and then invokes the generator (or builder)
func (b *Builder) Build(ctx context.Context, generator string) error {
	if b.Compiler == "" {
		return errNoCompiler
	}

	g, err := createGenerator(generator, b.Jobs)
	if err != nil {
		return err
	}

	graph, err := b.Resolve(ctx)
	if err != nil {
		return err
	}
	if len(graph.Units) == 0 {
		msg.Warn("no cc_aidl_library targets in %s", b.basedir)
	}

	for _, unit := range graph.Units {
		g.AddUnit(unit.Invocation)
	}

	// generate the buildfile
	out := g.Generate()
	if out != "" {
		buildFile := filepath.Join(b.buildDir(), g.BuildFile())
		if err = os.WriteFile(buildFile, []byte(out), 0644); err != nil {
			return err
		}
	}

	return g.Invoke(ctx, b.basedir, b.buildDir())
}
