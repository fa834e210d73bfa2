// Package registry is the single source of truth for which ports belong to
// which app, persisted as one JSON file. Every mutation runs a full
// read-modify-write cycle under an advisory exclusive lock on a sidecar
// lock file, so independent OS processes (the daemon, an app's own startup
// script) never interleave writes. Snapshot reads skip the lock and
// tolerate a stale view.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/appyard/appyard/internal/ports"
)

var (
	// ErrLockTimeout indicates the registry file lock could not be acquired
	// within the configured budget. Callers retry with backoff; proceeding
	// without the lock would reintroduce the allocation race it prevents.
	ErrLockTimeout = errors.New("timed out waiting for registry lock")

	// ErrNotAssigned indicates the app has no port assignment on record.
	ErrNotAssigned = errors.New("app has no port assignment")
)

// Registry is a durable, concurrency-safe map from app name to port pair
// and last-known PID. Construct one per process with New and share it.
type Registry struct {
	path        string
	lockPath    string
	picker      *ports.Picker
	reserved    map[int]bool
	lockTimeout time.Duration
	log         *zap.Logger

	// mu serializes callers within this process; the file lock handles
	// contention between processes.
	mu sync.Mutex

	// pidAlive is swapped out in tests.
	pidAlive func(pid int) bool
}

func New(path string, picker *ports.Picker, reserved []int, lockTimeout time.Duration, log *zap.Logger) *Registry {
	rset := make(map[int]bool, len(reserved))
	for _, p := range reserved {
		rset[p] = true
	}
	return &Registry{
		path:        path,
		lockPath:    path + ".lock",
		picker:      picker,
		reserved:    rset,
		lockTimeout: lockTimeout,
		log:         log.Named("registry"),
		pidAlive:    pidAlive,
	}
}

// pidAlive checks OS-level process liveness.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	alive, err := process.PidExists(int32(pid))
	return err == nil && alive
}

// GetOrAllocate returns the existing assignment for name, or allocates a
// fresh port pair, persists it, and returns it. Allocation holds the file
// lock across the whole reload-pick-write cycle, so two concurrent callers
// for two new names can never receive overlapping ports.
func (r *Registry) GetOrAllocate(name string) (Assignment, error) {
	var out Assignment
	err := r.withLock(func(data registryFile) (bool, error) {
		if existing, ok := data[name]; ok {
			out = *existing
			out.Name = name
			return false, nil
		}

		forbidden := r.portsInUse(data)
		frontend, backend, err := r.picker.PickPair(forbidden)
		if err != nil {
			return false, err
		}

		data[name] = &Assignment{FrontendPort: frontend, BackendPort: backend}
		out = *data[name]
		out.Name = name
		r.log.Info("allocated port pair",
			zap.String("app", name),
			zap.Int("frontend", frontend),
			zap.Int("backend", backend))
		return true, nil
	})
	return out, err
}

// RecordPID attaches a PID and start timestamp to an existing assignment.
// Calling it for an app with no assignment is a caller bug, not a runtime
// condition: it is logged and dropped.
func (r *Registry) RecordPID(name string, pid int) error {
	return r.withLock(func(data registryFile) (bool, error) {
		a, ok := data[name]
		if !ok {
			r.log.Warn("RecordPID for app with no assignment",
				zap.String("app", name), zap.Int("pid", pid))
			return false, nil
		}
		now := time.Now().UTC().Truncate(time.Second)
		a.PID = pid
		a.StartedAt = &now
		return true, nil
	})
}

// PID returns the last recorded PID for name, if any. Lock-free snapshot
// read; the view may be momentarily stale.
func (r *Registry) PID(name string) (int, bool) {
	data := r.loadSnapshot()
	a, ok := data[name]
	if !ok || !a.Running() {
		return 0, false
	}
	return a.PID, true
}

// ClearPID removes the PID and start timestamp after a stop, leaving the
// port assignment intact. Clearing an app with no assignment is a no-op.
func (r *Registry) ClearPID(name string) error {
	return r.withLock(func(data registryFile) (bool, error) {
		a, ok := data[name]
		if !ok || (a.PID == 0 && a.StartedAt == nil) {
			return false, nil
		}
		a.PID = 0
		a.StartedAt = nil
		return true, nil
	})
}

// GarbageCollect clears PIDs whose processes are no longer alive. Port
// assignments stay; ports remain sticky for apps that are not running.
// The same sweep also runs inside every locked mutation.
func (r *Registry) GarbageCollect() error {
	return r.withLock(func(data registryFile) (bool, error) {
		return false, nil // the gc pass in withLock does the work
	})
}

// Remove deletes an app's record entirely, releasing its ports. Used when
// the app's directory is gone for good.
func (r *Registry) Remove(name string) error {
	return r.withLock(func(data registryFile) (bool, error) {
		if _, ok := data[name]; !ok {
			return false, fmt.Errorf("%w: %s", ErrNotAssigned, name)
		}
		delete(data, name)
		r.log.Info("released port assignment", zap.String("app", name))
		return true, nil
	})
}

// PruneMissing removes records for apps that no longer have a directory
// under appsDir. Runs at daemon startup; the directory watcher keeps the
// registry current afterwards.
func (r *Registry) PruneMissing(appsDir string) error {
	return r.withLock(func(data registryFile) (bool, error) {
		changed := false
		for name := range data {
			if _, err := os.Stat(filepath.Join(appsDir, name)); os.IsNotExist(err) {
				delete(data, name)
				changed = true
				r.log.Info("pruned assignment for removed app", zap.String("app", name))
			}
		}
		return changed, nil
	})
}

// Assignments returns a read-only snapshot sorted by app name. Lock-free;
// suitable for display, may lag a concurrent writer.
func (r *Registry) Assignments() []Assignment {
	data := r.loadSnapshot()
	out := make([]Assignment, 0, len(data))
	for name, a := range data {
		cp := *a
		cp.Name = name
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns the assignment for name from a lock-free snapshot.
func (r *Registry) Get(name string) (Assignment, error) {
	data := r.loadSnapshot()
	a, ok := data[name]
	if !ok {
		return Assignment{}, fmt.Errorf("%w: %s", ErrNotAssigned, name)
	}
	cp := *a
	cp.Name = name
	return cp, nil
}

// portsInUse is every port the registry must not hand out again: all
// assigned pairs plus the globally reserved set.
func (r *Registry) portsInUse(data registryFile) map[int]bool {
	used := make(map[int]bool, len(data)*2+len(r.reserved))
	for p := range r.reserved {
		used[p] = true
	}
	for _, a := range data {
		used[a.FrontendPort] = true
		used[a.BackendPort] = true
	}
	return used
}

// withLock runs fn over the on-disk state under the exclusive file lock:
// acquire, reload (another process may have written since our last read),
// garbage-collect dead PIDs, apply fn, persist if anything changed.
func (r *Registry) withLock(fn func(data registryFile) (bool, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// The lock file lives next to the data file; make sure the directory
	// exists before the first ever acquisition.
	if err := os.MkdirAll(filepath.Dir(r.lockPath), 0o700); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	lock, err := acquireLock(r.lockPath, r.lockTimeout)
	if err != nil {
		return err
	}
	defer lock.release()

	data := r.load()
	changed := r.gc(data)

	fnChanged, err := fn(data)
	if err != nil {
		// fn failed, but a gc sweep may still be worth persisting.
		if changed {
			if saveErr := r.save(data); saveErr != nil {
				r.log.Warn("failed to persist registry after gc", zap.Error(saveErr))
			}
		}
		return err
	}

	if changed || fnChanged {
		return r.save(data)
	}
	return nil
}

// gc clears PIDs of dead processes in place. Port pairs are untouched.
func (r *Registry) gc(data registryFile) bool {
	changed := false
	for name, a := range data {
		if a.Running() && !r.pidAlive(a.PID) {
			r.log.Info("clearing orphaned pid",
				zap.String("app", name), zap.Int("pid", a.PID))
			a.PID = 0
			a.StartedAt = nil
			changed = true
		}
	}
	return changed
}

// load reads the registry from disk. A missing file is an empty registry.
// A corrupt file is logged loudly and reinitialized empty: port stickiness
// is a convenience, not a correctness requirement, so recovery beats a
// crash.
func (r *Registry) load() registryFile {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.log.Warn("failed to read registry, starting empty",
				zap.String("path", r.path), zap.Error(err))
		}
		return registryFile{}
	}

	var data registryFile
	if err := json.Unmarshal(raw, &data); err != nil {
		r.log.Warn("registry file is corrupt, reinitializing empty",
			zap.String("path", r.path), zap.Error(err))
		return registryFile{}
	}
	if data == nil {
		data = registryFile{}
	}
	return data
}

// loadSnapshot is the unlocked read used by query methods.
func (r *Registry) loadSnapshot() registryFile {
	return r.load()
}

// save writes the registry atomically: temp file in the same directory,
// fsync, rename over the old file.
func (r *Registry) save(data registryFile) error {
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	f, err := os.CreateTemp(dir, ".ports-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(raw); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to fsync registry: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close registry file: %w", err)
	}

	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("failed to replace registry: %w", err)
	}
	return nil
}
