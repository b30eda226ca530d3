// Package scratch owns the directory that holds intermediate sorted runs.
package scratch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/google/uuid"
)

const runExt = ".run"

// Run is one registered sorted run. Ordinal is the index of the chunk (or of
// the merge group) that produced it and fixes the run's place in the merge.
type Run struct {
	Ordinal int
	Path    string
}

// Dir is a scratch directory plus the registry of runs written into it.
// Register and Runs are safe for concurrent use.
type Dir struct {
	path string

	mu       sync.Mutex
	runs     []Run
	released bool
}

// Acquire creates path (and parents) if needed and returns a Dir for it. An
// existing directory is only accepted if it holds nothing but run files left
// behind by an earlier crash, since Release deletes it.
func Acquire(path string) (*Dir, error) {
	clean := filepath.Clean(path)
	if path == "" || clean == "/" || clean == "." {
		return nil, fmt.Errorf("unsafe scratch dir: %q", path)
	}
	entries, err := os.ReadDir(clean)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", clean, err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != runExt {
			return nil, fmt.Errorf("unsafe scratch dir %s: contains %s", clean, e.Name())
		}
	}
	if err := os.MkdirAll(clean, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", clean, err)
	}
	return &Dir{path: clean}, nil
}

// With acquires path, runs fn and always releases the directory afterwards.
// A release failure is joined with fn's error.
func With(path string, fn func(*Dir) error) (err error) {
	d, err := Acquire(path)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := d.Release(); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()
	return fn(d)
}

func (d *Dir) Path() string { return d.path }

// NewRunPath returns a fresh file name inside the directory. The file is not
// created.
func (d *Dir) NewRunPath(prefix string, ordinal int) string {
	return filepath.Join(d.path, fmt.Sprintf("%s_%06d_%s%s", prefix, ordinal, uuid.NewString(), runExt))
}

// Register records a finished run.
func (d *Dir) Register(ordinal int, path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runs = append(d.runs, Run{Ordinal: ordinal, Path: path})
}

// Runs returns the registered runs ordered by ordinal.
func (d *Dir) Runs() []Run {
	d.mu.Lock()
	out := slices.Clone(d.runs)
	d.mu.Unlock()

	slices.SortFunc(out, func(a, b Run) int { return a.Ordinal - b.Ordinal })
	return out
}

// Remove deletes a single file from the directory. Missing files are ignored.
func (d *Dir) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Release removes the directory and everything in it. Calling it more than
// once is a no-op.
func (d *Dir) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil
	}
	d.released = true
	d.runs = nil
	if err := os.RemoveAll(d.path); err != nil {
		return fmt.Errorf("remove scratch dir %s: %w", d.path, err)
	}
	return nil
}
