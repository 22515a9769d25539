// Package project holds the accumulated file state for one synthesis
// run: the single mutable map from project-relative path to content.
// Only the pipeline driver commits to it, and only after a task or fix
// step reports success.
package project

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// Action describes what an artifact does to its path.
type Action int

const (
	Create Action = iota
	Update
	Delete
)

// String returns the wire name of the action.
func (a Action) String() string {
	switch a {
	case Create:
		return "create"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// ParseAction maps the wire name back to an Action. Empty defaults to
// Create, since generated payloads frequently omit the field for new
// files.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "create":
		return Create, nil
	case "update":
		return Update, nil
	case "delete":
		return Delete, nil
	default:
		return Create, fmt.Errorf("unknown artifact action: %q", s)
	}
}

// Artifact is one generated file operation produced for a task.
type Artifact struct {
	Path    string
	Action  Action
	Content string
}

// State is the accumulated path → content map for a run. Reads take a
// snapshot; writes go through Commit so each task's artifacts land
// atomically.
type State struct {
	mu    sync.RWMutex
	files map[string]string
}

// NewState creates an empty State.
func NewState() *State {
	return &State{files: make(map[string]string)}
}

// NewStateFrom creates a State pre-populated with the given files,
// normalizing each path. Used to seed a run with template content.
func NewStateFrom(files map[string]string) (*State, error) {
	s := NewState()
	for p, content := range files {
		normalized, err := NormalizePath(p)
		if err != nil {
			return nil, err
		}
		s.files[normalized] = content
	}
	return s, nil
}

// NormalizePath canonicalizes an artifact path to a slash-separated,
// project-relative form. Paths that escape the project root are
// rejected.
func NormalizePath(p string) (string, error) {
	// Clean before stripping the leading slash so ".." segments survive
	// long enough to be caught instead of being absorbed at the root.
	cleaned := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("artifact path is empty")
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("artifact path %q escapes the project root", p)
	}
	return cleaned, nil
}

// Commit applies one task's artifacts as a single atomic step.
// Last write wins per path; Delete removes the path. An invalid path
// rejects the whole batch, leaving the state untouched.
func (s *State) Commit(artifacts []Artifact) error {
	type op struct {
		path    string
		action  Action
		content string
	}
	ops := make([]op, 0, len(artifacts))
	for _, a := range artifacts {
		normalized, err := NormalizePath(a.Path)
		if err != nil {
			return fmt.Errorf("commit artifact: %w", err)
		}
		ops = append(ops, op{path: normalized, action: a.Action, content: a.Content})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range ops {
		if o.action == Delete {
			delete(s.files, o.path)
			continue
		}
		s.files[o.path] = o.content
	}
	return nil
}

// Put stores a single file, normalizing the path. Used for template
// seeding and deterministic quick fixes.
func (s *State) Put(p, content string) error {
	normalized, err := NormalizePath(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[normalized] = content
	return nil
}

// Remove drops a path if present.
func (s *State) Remove(p string) {
	normalized, err := NormalizePath(p)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, normalized)
}

// Get returns the content for a path.
func (s *State) Get(p string) (string, bool) {
	normalized, err := NormalizePath(p)
	if err != nil {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.files[normalized]
	return content, ok
}

// Snapshot returns an independent copy of the current file map.
// Mutating the copy does not affect the state.
func (s *State) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make(map[string]string, len(s.files))
	for p, content := range s.files {
		snapshot[p] = content
	}
	return snapshot
}

// Paths returns all current paths in sorted order.
func (s *State) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.files))
	for p := range s.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Len returns the number of files currently held.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}
