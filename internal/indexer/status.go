package indexer

import (
	"sync"
	"time"
)

// SyncStatus is the externally visible state of the sync worker. A copy is
// returned by Status so callers never observe partial updates.
type SyncStatus struct {
	// IsRunning reports whether a sync run is currently in progress.
	IsRunning bool `json:"isRunning"`

	// LastRunAt is when the most recent run started.
	LastRunAt time.Time `json:"lastRunAt,omitzero"`

	// LastSuccessAt is when the most recent run finished without error.
	LastSuccessAt time.Time `json:"lastSuccessAt,omitzero"`

	// LastError is the failure message of the most recent run, empty when
	// the run succeeded.
	LastError string `json:"lastError,omitempty"`

	// TenantsProcessed counts tenants handled in the most recent run.
	TenantsProcessed int `json:"tenantsProcessed"`

	// VectorsUpserted counts vectors written in the most recent run.
	VectorsUpserted int `json:"vectorsUpserted"`
}

// statusTracker guards SyncStatus and implements the skip-if-busy rule: a
// run request while a run is in progress is a no-op, never queued.
type statusTracker struct {
	mu     sync.Mutex
	status SyncStatus
}

// begin marks a run as started. It returns false without touching the state
// when a run is already in progress.
func (t *statusTracker) begin(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.IsRunning {
		return false
	}
	t.status = SyncStatus{IsRunning: true, LastRunAt: now}
	return true
}

// finish records the run outcome and releases the running flag.
func (t *statusTracker) finish(now time.Time, tenants, vectors int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.IsRunning = false
	t.status.TenantsProcessed = tenants
	t.status.VectorsUpserted = vectors
	if err != nil {
		t.status.LastError = err.Error()
		return
	}
	t.status.LastError = ""
	t.status.LastSuccessAt = now
}

// snapshot returns a copy of the current status.
func (t *statusTracker) snapshot() SyncStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}
