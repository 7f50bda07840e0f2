// Package sandbox implements scoped acquisition of the per-job or
// per-worker-slot working directories spec.md §4.9/§4.10 describe:
// create-and-clean on acquire, clean on release, guaranteed on both the
// normal and panicking path.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Acquire creates (or empties) the directory at path and returns a release
// func that removes the directory again. Grounded on spec.md §9's "scoped
// resources (sandbox)" design note: standard scoped acquisition, cleaned
// on both normal and exceptional return, so callers use `defer release()`
// immediately.
func Acquire(path string) (release func() error, err error) {
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("sandbox: clear %s: %w", path, err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("sandbox: create %s: %w", path, err)
	}
	return func() error {
		return os.RemoveAll(path)
	}, nil
}

// SlotPath is the fixed naming scheme spec.md §4.9 documents for
// ForkingWorker's per-child sandboxes: "<root>/<app>-workers/sandbox-<i>".
func SlotPath(root, app string, slot int) string {
	return filepath.Join(root, app+"-workers", fmt.Sprintf("sandbox-%d", slot))
}

// RingSlotPath is spec.md §4.10's naming scheme for PooledWorker's fixed
// ring of rentable sandbox paths: "<root>/<app>-workers/<tag>-<i>".
func RingSlotPath(root, app, tag string, slot int) string {
	return filepath.Join(root, app+"-workers", fmt.Sprintf("%s-%d", tag, slot))
}

// Ring is a fixed-size pool of sandbox paths rented out to concurrently
// running jobs, used by PooledWorker. Each slot is acquired fresh (wiped
// and recreated) on every rent, and only ever held by one renter at a
// time.
type Ring struct {
	mu    sync.Mutex
	free  []int
	paths []string
}

// NewRing prepares a ring of size slots rooted at root under app/tag,
// e.g. "<root>/<app>-workers/<tag>-0" .. "<tag>-<size-1>".
func NewRing(root, app, tag string, size int) *Ring {
	paths := make([]string, size)
	free := make([]int, size)
	for i := 0; i < size; i++ {
		paths[i] = RingSlotPath(root, app, tag, i)
		free[i] = size - 1 - i // pop from the end; order doesn't matter
	}
	return &Ring{free: free, paths: paths}
}

// Rent claims a free slot, wipes and recreates its directory, and returns
// its path plus the release func that both returns the slot to the ring
// and cleans the directory. Rent blocks the caller's judgement about
// availability: it returns ok=false immediately if no slot is free rather
// than waiting, since PooledWorker's own semaphore already bounds
// concurrent rents to the ring's size.
func (r *Ring) Rent() (path string, release func() error, ok bool) {
	r.mu.Lock()
	if len(r.free) == 0 {
		r.mu.Unlock()
		return "", nil, false
	}
	slot := r.free[len(r.free)-1]
	r.free = r.free[:len(r.free)-1]
	r.mu.Unlock()

	path = r.paths[slot]
	cleanup, err := Acquire(path)
	if err != nil {
		r.mu.Lock()
		r.free = append(r.free, slot)
		r.mu.Unlock()
		return "", nil, false
	}

	return path, func() error {
		err := cleanup()
		r.mu.Lock()
		r.free = append(r.free, slot)
		r.mu.Unlock()
		return err
	}, true
}
