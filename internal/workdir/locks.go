package workdir

import (
	"sort"
	"sync"
)

// PathLocks provides per-path mutual exclusion. Uses a keyed mutex
// pattern: each path gets its own mutex, allowing concurrent work on
// different directories while serializing work on the same one.
type PathLocks struct {
	mu    sync.Mutex             // Guards the locks map itself
	locks map[string]*sync.Mutex // Per-path mutexes
}

// NewPathLocks creates a new PathLocks.
func NewPathLocks() *PathLocks {
	return &PathLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the mutex for the given path, creating it on first use.
func (p *PathLocks) Lock(path string) {
	p.mu.Lock()
	pathLock, exists := p.locks[path]
	if !exists {
		pathLock = &sync.Mutex{}
		p.locks[path] = pathLock
	}
	p.mu.Unlock()

	// Acquire the per-path lock outside the manager lock to avoid contention
	pathLock.Lock()
}

// Unlock releases the mutex for the given path.
func (p *PathLocks) Unlock(path string) {
	p.mu.Lock()
	pathLock, exists := p.locks[path]
	p.mu.Unlock()

	if exists {
		pathLock.Unlock()
	}
}

// LockAll acquires locks for all given paths. Paths are sorted
// lexicographically before acquiring to prevent deadlocks.
func (p *PathLocks) LockAll(paths []string) {
	if len(paths) == 0 {
		return
	}

	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)

	for _, path := range sorted {
		p.Lock(path)
	}
}

// UnlockAll releases locks for all given paths, in reverse sorted order
// for symmetry with LockAll.
func (p *PathLocks) UnlockAll(paths []string) {
	if len(paths) == 0 {
		return
	}

	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)

	for i := len(sorted) - 1; i >= 0; i-- {
		p.Unlock(sorted[i])
	}
}
