// Package registry holds the set of active and deactivated sync pairs
// known to the manager.
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status codes returned by registry mutations, mirroring the table in
// the component design: 0 success, 1 logical conflict, -1 storage error.
const (
	StatusOK        = 0
	StatusConflict  = 1
	StatusStorageKO = -1
)

// Key identifies a SyncPair by its source endpoint. This is the only
// identity the registry recognizes; two pairs with the same Key can
// never coexist.
type Key struct {
	SourceHost string
	SourcePort int
	SourceDir  string
}

// Pair is an active or deactivated replication configuration. The Key
// fields are immutable once added; TargetHost/TargetPort/TargetDir,
// Active and ErrorCount mutate under the registry's exclusion.
type Pair struct {
	ID uuid.UUID // surrogate key, display/history only — never the lookup key

	Key

	TargetHost string
	TargetPort int
	TargetDir  string

	Active       bool
	LastSyncTime time.Time
	ErrorCount   int64
}

// Snapshot is a read-only copy of a Pair safe to hand outside the
// registry's exclusion.
type Snapshot = Pair

// Registry is the thread-safe set of sync pairs. A single mutex
// covers the whole structure, per the component design's rationale
// that cardinality is tens of pairs and a linear scan is dwarfed by
// network I/O.
type Registry struct {
	mu    sync.Mutex
	pairs []*Pair
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{}
}

func (r *Registry) indexLocked(k Key) int {
	for i, p := range r.pairs {
		if p.Key == k {
			return i
		}
	}
	return -1
}

// Add inserts a new pair. If a deactivated pair already exists for
// the key, it is reactivated in place (its target endpoint is
// updated) rather than rejected — the resolution the design notes
// call for. A pair that is already active for the key is a conflict.
func (r *Registry) Add(p Pair) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexLocked(p.Key); i >= 0 {
		existing := r.pairs[i]
		if existing.Active {
			return StatusConflict
		}
		existing.TargetHost = p.TargetHost
		existing.TargetPort = p.TargetPort
		existing.TargetDir = p.TargetDir
		existing.Active = true
		return StatusOK
	}

	np := p
	if np.ID == uuid.Nil {
		np.ID = uuid.New()
	}
	np.Active = true
	r.pairs = append(r.pairs, &np)
	return StatusOK
}

// Find returns a snapshot of the pair for k, if any. The returned
// value is a copy: callers never get a live pointer into the
// registry, so there is nothing to race against a concurrent Remove.
func (r *Registry) Find(k Key) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexLocked(k); i >= 0 {
		return *r.pairs[i], true
	}
	return Snapshot{}, false
}

// Remove deletes the pair for k. Only ever called at process
// shutdown per the component design.
func (r *Registry) Remove(k Key) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(k)
	if i < 0 {
		return 1
	}
	r.pairs = append(r.pairs[:i], r.pairs[i+1:]...)
	return StatusOK
}

// Deactivate flips active to false for k. Repeated deactivation of
// an already-inactive key returns not-found (status 1); the design
// notes allow either convention, and this is the one this build
// tests against.
func (r *Registry) Deactivate(k Key) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(k)
	if i < 0 || !r.pairs[i].Active {
		return 1
	}
	r.pairs[i].Active = false
	return StatusOK
}

// RecordSync updates LastSyncTime for k. No-op if the key is gone.
func (r *Registry) RecordSync(k Key, when time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexLocked(k); i >= 0 {
		r.pairs[i].LastSyncTime = when
	}
}

// IncrementErrors bumps the per-pair error counter for k.
func (r *Registry) IncrementErrors(k Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexLocked(k); i >= 0 {
		r.pairs[i].ErrorCount++
	}
}

// Count returns the current number of pairs (active and deactivated).
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pairs)
}

// Enumerate returns a snapshot of every pair, for display purposes.
func (r *Registry) Enumerate() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, len(r.pairs))
	for i, p := range r.pairs {
		out[i] = *p
	}
	return out
}
