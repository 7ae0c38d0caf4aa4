package gen

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"sync"

	"github.com/qobs-build/aidlgen/internal/aidl"
	"github.com/qobs-build/aidlgen/internal/msg"
	"golang.org/x/sync/errgroup"
)

// ErrMissingOutput is returned when the compiler exits cleanly but did not
// write a file it was expected to produce
var ErrMissingOutput = errors.New("aidl did not produce a predicted output")

// UnitState is what the executor remembers about a unit after it ran successfully
type UnitState struct {
	Inputs   map[string]string `json:"inputs,omitempty"` // input file -> hash
	Args     []string          `json:"args,omitempty"`
	Compiler string            `json:"compiler,omitempty"`
}

// Executor runs aidl itself, in parallel, skipping units that are up to date
type Executor struct {
	units     []*aidl.Invocation
	rootDir   string
	stateFile string
	state     map[string]*UnitState // keyed by output directory
	jobs      int

	mu        sync.Mutex
	hashCache map[string]string

	Stdout io.Writer
	Stderr io.Writer
}

func NewExecutor(jobs int) *Executor {
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	return &Executor{
		state:     make(map[string]*UnitState),
		jobs:      jobs,
		hashCache: make(map[string]string),
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}
}

func (g *Executor) BuildFile() string {
	return "aidlgen_state.json"
}

func (g *Executor) AddUnit(inv *aidl.Invocation) {
	g.units = append(g.units, inv)
}

func (g *Executor) Generate() string {
	return "" // no build file needed
}

// Invoke runs every unit whose outputs are missing or stale
func (g *Executor) Invoke(ctx context.Context, rootDir, buildDir string) error {
	g.rootDir = rootDir
	g.stateFile = filepath.Join(buildDir, g.BuildFile())

	if err := g.loadState(); err != nil {
		msg.Warn("failed to load build state: %v", err)
	}

	dirty, err := g.plan()
	if err != nil {
		return fmt.Errorf("build planning failed: %w", err)
	}
	if len(dirty) == 0 {
		fmt.Fprintln(g.Stdout, "aidlgen: no work to do.")
		return nil
	}

	var (
		doneMu sync.Mutex
		done   []*aidl.Invocation
	)
	runErr := runJobs(ctx, dirty, g.jobs, func(ctx context.Context, inv *aidl.Invocation) error {
		if err := g.runUnit(ctx, inv); err != nil {
			return err
		}
		doneMu.Lock()
		done = append(done, inv)
		doneMu.Unlock()
		return nil
	})

	for _, inv := range done {
		if err := g.updateState(inv); err != nil {
			msg.Warn("failed to update build state for %s: %v", inv.Unit, err)
		}
	}
	if err := g.saveState(); err != nil {
		msg.Warn("failed to save build state: %v", err)
	}

	if runErr != nil {
		return fmt.Errorf("code generation failed: %w", runErr)
	}
	return nil
}

func (g *Executor) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(g.rootDir, filepath.FromSlash(p))
}

// plan returns the units that have to run, in the order they were added
func (g *Executor) plan() ([]*aidl.Invocation, error) {
	var dirty []*aidl.Invocation
	for _, inv := range g.units {
		isDirty, err := g.isDirty(inv)
		if err != nil {
			return nil, fmt.Errorf("could not check status of %s: %w", inv.Unit, err)
		}
		if isDirty {
			dirty = append(dirty, inv)
		}
	}
	return dirty, nil
}

func (g *Executor) isDirty(inv *aidl.Invocation) (bool, error) {
	// inputs must exist whatever the state says
	hashes := make(map[string]string, len(inv.Inputs))
	for _, in := range inv.Inputs {
		hash, err := g.fileHash(in)
		if err != nil {
			if os.IsNotExist(err) {
				return true, fmt.Errorf("input file %s not found", in)
			}
			return true, err
		}
		hashes[in] = hash
	}

	for _, out := range inv.Outputs {
		if !g.outputExists(out) {
			return true, nil
		}
	}

	state := g.state[inv.OutputDir]
	if state == nil || state.Compiler != inv.Compiler || !slices.Equal(state.Args, inv.Args) {
		return true, nil
	}
	if len(state.Inputs) != len(hashes) {
		return true, nil
	}
	for in, hash := range hashes {
		if state.Inputs[in] != hash {
			return true, nil
		}
	}
	return false, nil
}

func (g *Executor) runUnit(ctx context.Context, inv *aidl.Invocation) error {
	if err := os.MkdirAll(g.path(inv.OutputDir), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, inv.Compiler, inv.Args...)
	cmd.Dir = g.rootDir
	cmd.Stdout = g.Stdout
	cmd.Stderr = g.Stderr

	fmt.Fprintf(g.Stdout, "AIDL %s\n", inv.Unit)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", inv.Unit, err)
	}

	for _, out := range inv.Outputs {
		if !g.outputExists(out) {
			return fmt.Errorf("%w: %s (unit %s)", ErrMissingOutput, out, inv.Unit)
		}
	}
	return nil
}

// outputExists reports whether out was written and is not empty
func (g *Executor) outputExists(out string) bool {
	fi, err := os.Stat(g.path(out))
	return err == nil && fi.Mode().IsRegular() && fi.Size() > 0
}

// loadState loads the previous build state from disk
func (g *Executor) loadState() error {
	f, err := os.Open(g.stateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // no previous state, that's fine
		}
		return err
	}
	defer f.Close()
	return json.NewDecoder(bufio.NewReader(f)).Decode(&g.state)
}

// saveState saves the current build state to disk
func (g *Executor) saveState() error {
	data, err := json.MarshalIndent(g.state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(g.stateFile), 0755); err != nil {
		return err
	}
	return os.WriteFile(g.stateFile, data, 0644)
}

// fileHash computes the SHA256 hash of a file with an in-memory cache
func (g *Executor) fileHash(path string) (string, error) {
	g.mu.Lock()
	hash, ok := g.hashCache[path]
	g.mu.Unlock()
	if ok {
		return hash, nil
	}

	file, err := os.Open(g.path(path))
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}

	hash = hex.EncodeToString(h.Sum(nil))
	g.mu.Lock()
	g.hashCache[path] = hash
	g.mu.Unlock()
	return hash, nil
}

// updateState records a unit after it ran successfully
func (g *Executor) updateState(inv *aidl.Invocation) error {
	state := &UnitState{
		Inputs:   make(map[string]string, len(inv.Inputs)),
		Args:     slices.Clone(inv.Args),
		Compiler: inv.Compiler,
	}
	for _, in := range inv.Inputs {
		hash, err := g.fileHash(in)
		if err != nil {
			return fmt.Errorf("failed to hash input file %s: %w", in, err)
		}
		state.Inputs[in] = hash
	}
	g.state[inv.OutputDir] = state
	return nil
}

// runJobs runs jobs in parallel, stopping at the first failure
func runJobs[T any](ctx context.Context, jobs []T, limit int, jobfunc func(ctx context.Context, job T) error) error {
	if len(jobs) == 0 {
		return nil
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)

	for _, job := range jobs {
		eg.Go(func() error {
			return jobfunc(ctx, job)
		})
	}

	return eg.Wait()
}
