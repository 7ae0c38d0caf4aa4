// Package index resolves `index:` dependencies: a git repository holding
// ready-made copies of interface packages, each described by its Aidl.toml.
package index

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/pelletier/go-toml/v2"
	"github.com/qobs-build/aidlgen/internal/msg"
)

const (
	IndexFilename = "aidlgen_index.json"
	// SourceEnv names the index repository, as <git url>[@branch]
	SourceEnv = "AIDLGEN_INDEX"

	manifestFilename = "Aidl.toml"
	defaultBranch    = "main"
	formatVersion    = 1
)

var (
	errNotInIndex   = errors.New("dependency not found in index")
	errNoSource     = fmt.Errorf("no index repository configured (set $%s to <git url>[@branch])", SourceEnv)
	errStaleEntry   = errors.New("index entry does not match its package")
	errOutsideIndex = errors.New("index entry points outside of the index")
)

// Entry describes one interface package stored in the index
type Entry struct {
	// Source is what a manifest writes after `index:`, e.g. gh:example/hal-interfaces
	Source string `json:"-"`
	// Path is the package directory, relative to the index root
	Path string `json:"path"`
	// Package is the [package] name of the stored Aidl.toml
	Package string `json:"package"`
	// Libraries are the aidl_library targets the package declares, sorted
	Libraries []string `json:"libraries,omitempty"`
}

type indexFile struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

type Index struct {
	// on windows: %LocalAppData%/aidlgen/index
	// on linux: ~/.cache/aidlgen/index
	basePath string
	Entries  map[string]Entry
}

// manifest is the part of an Aidl.toml the index cares about
type manifest struct {
	Package struct {
		Name string `toml:"name"`
	} `toml:"package"`
	Libraries map[string]any `toml:"aidl_library"`
}

// ReadPackage describes the interface package in dir
func ReadPackage(dir string) (Entry, error) {
	f, err := os.Open(filepath.Join(dir, manifestFilename))
	if err != nil {
		return Entry{}, err
	}
	defer f.Close()

	var m manifest
	if err := toml.NewDecoder(bufio.NewReader(f)).Decode(&m); err != nil {
		return Entry{}, fmt.Errorf("%s: %w", filepath.Join(dir, manifestFilename), err)
	}
	if m.Package.Name == "" {
		return Entry{}, fmt.Errorf("%s: [package] name is required", filepath.Join(dir, manifestFilename))
	}
	entry := Entry{Package: m.Package.Name}
	for name := range m.Libraries {
		entry.Libraries = append(entry.Libraries, name)
	}
	slices.Sort(entry.Libraries)
	return entry, nil
}

func ParseIndex(rdr io.Reader, basePath string) (*Index, error) {
	var file indexFile
	if err := json.NewDecoder(rdr).Decode(&file); err != nil {
		return nil, err
	}
	if file.Version != formatVersion {
		return nil, fmt.Errorf("unsupported index format version %d (want %d)", file.Version, formatVersion)
	}
	idx := &Index{basePath: basePath, Entries: make(map[string]Entry, len(file.Entries))}
	for source, entry := range file.Entries {
		entry.Source = source
		idx.Entries[source] = entry
	}
	return idx, nil
}

func ParseIndexInPath(basePath string) (*Index, error) {
	f, err := os.Open(filepath.Join(basePath, IndexFilename))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseIndex(bufio.NewReader(f), basePath)
}

// Save writes the index file into basePath
func (idx *Index) Save(basePath string) error {
	f, err := os.Create(filepath.Join(basePath, IndexFilename))
	if err != nil {
		return err
	}
	defer f.Close()

	bufw := bufio.NewWriter(f)
	enc := json.NewEncoder(bufw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(indexFile{Version: formatVersion, Entries: idx.Entries}); err != nil {
		return err
	}
	return bufw.Flush()
}

// packageDir resolves an entry path, refusing anything outside the index
func (idx *Index) packageDir(entry Entry) (string, error) {
	dir := filepath.Join(idx.basePath, filepath.FromSlash(entry.Path))
	rel, err := filepath.Rel(idx.basePath, dir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s -> %s", errOutsideIndex, entry.Source, entry.Path)
	}
	return dir, nil
}

// Add records the package stored at path (relative to the index root) under source
func (idx *Index) Add(source, path string) (Entry, error) {
	entry := Entry{Source: source, Path: filepath.ToSlash(filepath.Clean(path))}
	dir, err := idx.packageDir(entry)
	if err != nil {
		return Entry{}, err
	}
	pkg, err := ReadPackage(dir)
	if err != nil {
		return Entry{}, err
	}
	entry.Package, entry.Libraries = pkg.Package, pkg.Libraries

	if idx.Entries == nil {
		idx.Entries = make(map[string]Entry)
	}
	idx.Entries[source] = entry
	return entry, nil
}

func (idx *Index) Lookup(source string) (Entry, bool) {
	entry, ok := idx.Entries[source]
	return entry, ok
}

func (idx *Index) Remove(source string) bool {
	if _, ok := idx.Entries[source]; !ok {
		return false
	}
	delete(idx.Entries, source)
	return true
}

// checkEntry compares an entry with the Aidl.toml in dir
func checkEntry(entry Entry, dir string) error {
	pkg, err := ReadPackage(dir)
	if err != nil {
		return fmt.Errorf("%s: %w", entry.Source, err)
	}
	if pkg.Package != entry.Package || !slices.Equal(pkg.Libraries, entry.Libraries) {
		return fmt.Errorf("%w: %s records package %q %v, found %q %v",
			errStaleEntry, entry.Source, entry.Package, entry.Libraries, pkg.Package, pkg.Libraries)
	}
	return nil
}

// Check validates every entry against the package it points to
func (idx *Index) Check() error {
	var errs []error
	for _, entry := range idx.Search("") {
		dir, err := idx.packageDir(entry)
		if err == nil {
			err = checkEntry(entry, dir)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Copy copies the package stored for source into destPath and verifies the copy
func (idx *Index) Copy(destPath, source string) error {
	entry, ok := idx.Lookup(source)
	if !ok {
		return fmt.Errorf("%w: %s", errNotInIndex, source)
	}
	dir, err := idx.packageDir(entry)
	if err != nil {
		return err
	}
	if err := os.CopyFS(destPath, os.DirFS(dir)); err != nil {
		return err
	}
	return checkEntry(entry, destPath)
}

// Search returns the entries whose source, path, package or library names
// contain term, ignoring case, ordered by source
func (idx *Index) Search(term string) []Entry {
	term = strings.ToLower(term)
	matches := func(s string) bool { return strings.Contains(strings.ToLower(s), term) }

	var entries []Entry
	for _, entry := range idx.Entries {
		if matches(entry.Source) || matches(entry.Path) || matches(entry.Package) ||
			slices.ContainsFunc(entry.Libraries, matches) {
			entries = append(entries, entry)
		}
	}
	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.Source, b.Source) })
	return entries
}

// repoSource splits $AIDLGEN_INDEX into a clone URL and branch
func repoSource() (url, branch string, err error) {
	src := strings.TrimSpace(os.Getenv(SourceEnv))
	if src == "" {
		return "", "", errNoSource
	}
	branch = defaultBranch
	if i := strings.LastIndex(src, "@"); i > strings.LastIndex(src, "/") {
		src, branch = src[:i], src[i+1:]
	}
	return src, branch, nil
}

func originURL(repo *git.Repository) string {
	remote, err := repo.Remote("origin")
	if err != nil || len(remote.Config().URLs) == 0 {
		return ""
	}
	return remote.Config().URLs[0]
}

// FetchIndex clones or pulls the configured index repository into basePath
func FetchIndex(basePath string) (*Index, error) {
	url, branch, err := repoSource()
	if err != nil {
		return nil, err
	}
	progress := &msg.IndentWriter{Indent: "    ", W: os.Stdout}

	repo, err := git.PlainOpen(basePath)
	if err == nil && originURL(repo) != url {
		// the configured index changed, start over
		msg.Warn("index at %s tracks %s, refetching from %s", basePath, originURL(repo), url)
		if err := os.RemoveAll(basePath); err != nil {
			return nil, err
		}
		repo, err = nil, git.ErrRepositoryNotExists
	}

	if err != nil {
		if !errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, err
		}
		fmt.Printf("  %s index %s\n", color.HiGreenString("Fetching"), url)
		if err := os.MkdirAll(basePath, 0755); err != nil {
			return nil, err
		}
		_, err = git.PlainClone(basePath, &git.CloneOptions{
			URL:           url,
			ReferenceName: plumbing.NewBranchReferenceName(branch),
			SingleBranch:  true,
			Depth:         1,
			Progress:      progress,
		})
		if err != nil {
			os.RemoveAll(basePath)
			return nil, err
		}
	} else {
		w, err := repo.Worktree()
		if err != nil {
			return nil, err
		}
		err = w.Pull(&git.PullOptions{
			RemoteName:    "origin",
			ReferenceName: plumbing.NewBranchReferenceName(branch),
			SingleBranch:  true,
			Depth:         1,
			Progress:      progress,
		})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil, err
		}
	}

	return ParseIndexInPath(basePath)
}

func LoadOrFetchIndex(basePath string) (*Index, error) {
	if _, err := os.Stat(filepath.Join(basePath, IndexFilename)); err == nil {
		return ParseIndexInPath(basePath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return FetchIndex(basePath)
}

func globalIndexPath() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "aidlgen", "index"), nil
}

var globalIndex *Index

// GetIndexAnyhow returns the cached global index, fetching it on first use
func GetIndexAnyhow() (*Index, error) {
	if globalIndex != nil {
		return globalIndex, nil
	}
	path, err := globalIndexPath()
	if err != nil {
		return nil, err
	}
	idx, err := LoadOrFetchIndex(path)
	if err != nil {
		return nil, err
	}
	globalIndex = idx
	return idx, nil
}

func UpdateGlobalIndex() (*Index, error) {
	path, err := globalIndexPath()
	if err != nil {
		return nil, err
	}
	idx, err := FetchIndex(path)
	if err != nil {
		return nil, err
	}
	globalIndex = idx
	return idx, nil
}
