// Package procman tracks and runs the external toolchain processes
// spawned by dashboard commands.
package procman

import "sync"

// Registry is the set of live child PIDs spawned during this run.
// A PID is inserted right after spawn and removed either when the
// owning worker observes normal exit or during a KillAll sweep.
type Registry struct {
	mu   sync.Mutex
	pids map[int]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{pids: make(map[int]struct{})}
}

// Register records a spawned process's identifier.
func (r *Registry) Register(pid int) {
	if pid <= 0 {
		return
	}
	r.mu.Lock()
	r.pids[pid] = struct{}{}
	r.mu.Unlock()
}

// Unregister removes one identifier. Calling it with an absent PID is
// a no-op.
func (r *Registry) Unregister(pid int) {
	r.mu.Lock()
	delete(r.pids, pid)
	r.mu.Unlock()
}

// Count reports how many processes are tracked.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pids)
}

// Contains reports whether the PID is currently tracked.
func (r *Registry) Contains(pid int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pids[pid]
	return ok
}

// KillAll snapshots the tracked set, sends each process a
// platform-appropriate termination signal and clears the set.
// Individual failures are ignored (the process may have exited
// already) and targets are not waited on.
func (r *Registry) KillAll() {
	r.mu.Lock()
	pids := make([]int, 0, len(r.pids))
	for pid := range r.pids {
		pids = append(pids, pid)
	}
	r.mu.Unlock()

	for _, pid := range pids {
		_ = terminate(pid)
	}

	r.mu.Lock()
	r.pids = make(map[int]struct{})
	r.mu.Unlock()
}
