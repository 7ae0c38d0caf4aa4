package builder

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/qobs-build/aidlgen/internal/index"
	"github.com/qobs-build/aidlgen/internal/msg"
)

var depShortcuts = map[string]string{
	"gh:": "https://github.com/",
	"gl:": "https://gitlab.com/",
	"bb:": "https://bitbucket.org/",
	"sr:": "https://sr.ht/",
	"cb:": "https://codeberg.org/",
}

const (
	gitPrefix   = "git:"
	indexPrefix = "index:"
)

var (
	errIllegalDep         = errors.New("empty or illegal dependency string")
	errUnsupportedArchive = errors.New("unsupported archive format (want .tar.gz, .tgz or .zip)")
)

// isLocalSource reports whether dep names a directory on disk rather than something to fetch
func isLocalSource(dep string) bool {
	if dep == "" || strings.HasPrefix(dep, gitPrefix) || strings.HasPrefix(dep, indexPrefix) {
		return false
	}
	for shortcut := range depShortcuts {
		if strings.HasPrefix(dep, shortcut) {
			return false
		}
	}
	return !isURL(dep)
}

// fetchDependency downloads a remote dependency into toWhere
func fetchDependency(ctx context.Context, dep string, toWhere string) error {
	if dep == "" {
		return errIllegalDep
	}

	// check for `git:` prefix, e.g. git:https://github.com/example/hal-interfaces.git
	if strings.HasPrefix(dep, gitPrefix) {
		return cloneGitRepo(dep[len(gitPrefix):], toWhere)
	}

	// check for `index:` prefix, e.g. index:gh:example/hal-interfaces
	if strings.HasPrefix(dep, indexPrefix) {
		idx, err := index.GetIndexAnyhow()
		if err != nil {
			return fmt.Errorf("failed to load index: %w", err)
		}
		return idx.Copy(toWhere, dep[len(indexPrefix):])
	}

	// check for shortcut prefix, e.g. gh:example/hal-interfaces
	for shortcut, url := range depShortcuts {
		if strings.HasPrefix(dep, shortcut) {
			return cloneGitRepo(url+dep[len(shortcut):], toWhere)
		}
	}

	// if it's a URL, it should be an archive
	if isURL(dep) {
		return downloadAndExtractArchive(ctx, dep, toWhere)
	}

	return errIllegalDep
}

func isURL(maybeURL string) bool {
	u, err := url.Parse(maybeURL)
	return err == nil && u.Scheme != "" && u.Host != ""
}

type gitURL struct {
	cleanURL    string
	branch      string
	commitOrTag string
}

// someone/something@main#android14-release
// someone/something@feature-branch#12345abc
// someone/something#12345abc
func parseGitURL(rawURL string) (res gitURL) {
	parts := strings.SplitN(rawURL, "#", 2)
	baseURL := parts[0]
	if len(parts) == 2 {
		res.commitOrTag = parts[1]
	}

	parts = strings.SplitN(baseURL, "@", 2)
	res.cleanURL = parts[0]
	if len(parts) == 2 {
		res.branch = parts[1]
	}

	if !strings.HasSuffix(res.cleanURL, ".git") {
		res.cleanURL += ".git"
	}

	return
}

// cloneGitRepo clones a Git remote into the specified directory
func cloneGitRepo(url, toWhere string) error {
	parsedURL := parseGitURL(url)

	cloneOptions := &git.CloneOptions{
		URL:               parsedURL.cleanURL,
		Progress:          &msg.IndentWriter{Indent: "    ", W: os.Stdout},
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
	}

	if parsedURL.commitOrTag == "" {
		cloneOptions.Depth = 1 // we can do a shallow clone of the latest commit
	}

	if parsedURL.branch != "" {
		cloneOptions.ReferenceName = plumbing.NewBranchReferenceName(parsedURL.branch)
		cloneOptions.SingleBranch = true
	}

	msg.Info("cloning %s", parsedURL.cleanURL)
	repo, err := git.PlainClone(toWhere, cloneOptions)
	if err != nil {
		return err
	}

	if parsedURL.commitOrTag != "" {
		w, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("could not get worktree: %w", err)
		}

		revision := parsedURL.commitOrTag
		hash, err := repo.ResolveRevision(plumbing.Revision(revision))
		if err != nil {
			return fmt.Errorf("could not resolve revision `%s`: %w", revision, err)
		}

		err = w.Checkout(&git.CheckoutOptions{
			Hash:  *hash,
			Force: true,
		})
		if err != nil {
			return fmt.Errorf("failed to checkout `%s`: %w", revision, err)
		}
	}

	return nil
}

// downloadAndExtractArchive fetches a .tar.gz/.tgz/.zip archive and unpacks it into toWhere
func downloadAndExtractArchive(ctx context.Context, rawURL, toWhere string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	var extract func(string, string) error
	switch name := strings.ToLower(path.Base(u.Path)); {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		extract = extractTarGz
	case strings.HasSuffix(name, ".zip"):
		extract = extractZip
	default:
		return errUnsupportedArchive
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", rawURL, resp.Status)
	}

	tmp, err := os.CreateTemp("", "aidlgen-archive-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	msg.Info("downloading %s", rawURL)
	pb := msg.NewProgressBar(resp.ContentLength, 4, os.Stdout)
	if _, err := io.Copy(tmp, io.TeeReader(resp.Body, pb)); err != nil {
		return fmt.Errorf("download %s: %w", rawURL, err)
	}
	pb.Finish()

	if err := tmp.Close(); err != nil {
		return err
	}
	return extract(tmp.Name(), toWhere)
}

// archivePath maps an archive member onto the destination, dropping the single top level
// directory most source archives wrap their contents in
func archivePath(dest, name, strip string) (string, bool, error) {
	name = path.Clean(strings.TrimPrefix(filepath.ToSlash(name), "./"))
	if path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
		return "", false, fmt.Errorf("archive member %q escapes the destination", name)
	}
	if strip != "" {
		var ok bool
		if name, ok = strings.CutPrefix(name, strip+"/"); !ok {
			return "", false, nil
		}
	}
	if name == "." || name == "" {
		return "", false, nil
	}
	return filepath.Join(dest, filepath.FromSlash(name)), true, nil
}

// commonRoot returns the top level directory shared by every name, if there is one
func commonRoot(names []string) string {
	root := ""
	for _, name := range names {
		name = strings.TrimPrefix(filepath.ToSlash(name), "./")
		if name == "" {
			continue
		}
		first, _, found := strings.Cut(name, "/")
		if !found {
			// a file at the top level
			return ""
		}
		if root == "" {
			root = first
		} else if root != first {
			return ""
		}
	}
	return root
}

func writeArchiveFile(target string, mode os.FileMode, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm()|0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func extractTarGz(archive, dest string) error {
	names, err := tarNames(archive)
	if err != nil {
		return err
	}
	strip := commonRoot(names)

	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target, ok, err := archivePath(dest, hdr.Name, strip)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeArchiveFile(target, hdr.FileInfo().Mode(), tr); err != nil {
				return err
			}
		default:
			msg.Warn("skipping archive member %s (unsupported type)", hdr.Name)
		}
	}
}

func tarNames(archive string) ([]string, error) {
	f, err := os.Open(archive)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	var names []string
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return names, nil
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		names = append(names, hdr.Name)
	}
}

func extractZip(archive, dest string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer zr.Close()

	names := make([]string, len(zr.File))
	for i, f := range zr.File {
		names[i] = f.Name
	}
	strip := commonRoot(names)

	for _, f := range zr.File {
		target, ok, err := archivePath(dest, f.Name, strip)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeArchiveFile(target, f.Mode(), rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
