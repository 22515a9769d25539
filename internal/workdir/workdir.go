package workdir

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Workdir holds information about a materialized build directory.
type Workdir struct {
	Path  string // Absolute path to the build directory
	RunID string // Run this directory belongs to
}

// ManagerConfig configures the workdir manager.
type ManagerConfig struct {
	Root     string // Project root; build directories are created beneath it
	BuildDir string // Directory under root for builds (default ".sitesmith/builds")
}

// Manager manages on-disk build directories for pipeline runs. Each run
// gets its own directory so concurrent runs never trample each other's
// node_modules or build output.
type Manager struct {
	config ManagerConfig
	locks  *PathLocks // per-operation file locks
	builds *PathLocks // whole-build exclusion, held across an entire repair loop
}

// NewManager creates a new workdir manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.BuildDir == "" {
		cfg.BuildDir = filepath.Join(".sitesmith", "builds")
	}
	return &Manager{config: cfg, locks: NewPathLocks(), builds: NewPathLocks()}
}

func (m *Manager) buildRoot() string {
	return filepath.Join(m.config.Root, m.config.BuildDir)
}

// Create creates a fresh build directory for the given run ID.
// Fails if a directory for the run already exists.
func (m *Manager) Create(runID string) (*Workdir, error) {
	if runID == "" {
		return nil, errors.New("run id is empty")
	}
	if strings.ContainsAny(runID, `/\`) {
		return nil, fmt.Errorf("run id %q contains a path separator", runID)
	}

	root := m.buildRoot()
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create build root: %w", err)
	}

	path := filepath.Join(root, runID)
	if err := os.Mkdir(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create build directory: %w", err)
	}

	return &Workdir{Path: path, RunID: runID}, nil
}

// resolve maps a slash-separated project path to an absolute path inside
// the build directory, rejecting anything that would escape it.
func (m *Manager) resolve(wd *Workdir, rel string) (string, error) {
	abs := filepath.Join(wd.Path, filepath.FromSlash(rel))
	if abs != wd.Path && !strings.HasPrefix(abs, wd.Path+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the build directory", rel)
	}
	if abs == wd.Path {
		return "", fmt.Errorf("path %q resolves to the build directory itself", rel)
	}
	return abs, nil
}

// Materialize writes the project files into the build directory,
// creating parent directories as needed. Existing files are overwritten;
// files on disk that are absent from the map are left alone, so repeated
// calls after partial edits behave like incremental syncs.
func (m *Manager) Materialize(wd *Workdir, files map[string]string) error {
	m.locks.Lock(wd.Path)
	defer m.locks.Unlock(wd.Path)

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		abs, err := m.resolve(wd, p)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", p, err)
		}
		if err := os.WriteFile(abs, []byte(files[p]), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", p, err)
		}
	}
	return nil
}

// WriteFile writes a single project file into the build directory.
func (m *Manager) WriteFile(wd *Workdir, rel, content string) error {
	m.locks.Lock(wd.Path)
	defer m.locks.Unlock(wd.Path)

	abs, err := m.resolve(wd, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return nil
}

// RemoveFile deletes a single file from the build directory.
// Removing a file that does not exist is not an error.
func (m *Manager) RemoveFile(wd *Workdir, rel string) error {
	m.locks.Lock(wd.Path)
	defer m.locks.Unlock(wd.Path)

	abs, err := m.resolve(wd, rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", rel, err)
	}
	return nil
}

// Cleanup removes the build directory and everything under it.
func (m *Manager) Cleanup(wd *Workdir) error {
	root := m.buildRoot()
	if !strings.HasPrefix(wd.Path, root+string(filepath.Separator)) {
		return fmt.Errorf("refusing to remove %q: outside the build root", wd.Path)
	}

	m.locks.Lock(wd.Path)
	defer m.locks.Unlock(wd.Path)

	if err := os.RemoveAll(wd.Path); err != nil {
		return fmt.Errorf("failed to remove build directory: %w", err)
	}
	return nil
}

// List returns all build directories under the build root.
func (m *Manager) List() ([]Workdir, error) {
	entries, err := os.ReadDir(m.buildRoot())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list build directories: %w", err)
	}

	var dirs []Workdir
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dirs = append(dirs, Workdir{
			Path:  filepath.Join(m.buildRoot(), entry.Name()),
			RunID: entry.Name(),
		})
	}
	return dirs, nil
}

// Prune removes build directories older than the given age, cleaning up
// leftovers from interrupted runs. Returns the run IDs it removed.
func (m *Manager) Prune(olderThan time.Duration) ([]string, error) {
	entries, err := os.ReadDir(m.buildRoot())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list build directories: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	var pruned []string
	var failures []string

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", entry.Name(), err))
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(m.buildRoot(), entry.Name())
		if err := os.RemoveAll(path); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", entry.Name(), err))
			continue
		}
		pruned = append(pruned, entry.Name())
	}

	if len(failures) > 0 {
		return pruned, fmt.Errorf("prune errors: %s", strings.Join(failures, "; "))
	}
	return pruned, nil
}

// Lock acquires the per-directory build lock, blocking a second build
// from running in the same directory. The build lock is distinct from
// the file locks, so a holder can still write fixes into the directory.
func (m *Manager) Lock(wd *Workdir) {
	m.builds.Lock(wd.Path)
}

// Unlock releases the per-directory build lock.
func (m *Manager) Unlock(wd *Workdir) {
	m.builds.Unlock(wd.Path)
}
