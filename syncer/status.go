/*
status.go - Shared, persisted sync status tracker

PURPOSE:
  Owns the single Status record the whole subsystem reports through.
  The tracker is an explicitly constructed object handed to the queue
  and processor, not package state, so parallel tests never leak syncs
  into each other.

SINGLE-FLIGHT:
  BeginSync is the drain gate: it takes the IsSyncing flag under the
  tracker mutex and refuses when a drain already holds it. EndSync
  releases the flag and finalizes the pass.

PERSISTENCE:
  Every mutation writes through the StateStore so the status survives
  restarts. A process that dies mid-drain must not wedge the flag, so
  NewTracker clears IsSyncing when it loads persisted state.

SEE ALSO:
  - processor.go: BeginSync/EndSync around the drain loop
  - queue.go: keeps PendingCount/FailedCount current
*/
package syncer

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// TRACKER
// =============================================================================

// Tracker guards and persists the aggregate sync Status.
type Tracker struct {
	mu     sync.Mutex
	store  StateStore
	status Status
}

// NewTracker loads persisted status or starts fresh. A stale in-flight flag
// from a crashed drain is cleared on load.
func NewTracker(ctx context.Context, store StateStore) (*Tracker, error) {
	t := &Tracker{store: store}
	saved, err := store.LoadSyncState(ctx)
	if err != nil {
		return nil, &StorageError{Op: "load", Key: "sync_state", Err: err}
	}
	if saved != nil {
		t.status = *saved
		t.status.IsSyncing = false
	}
	return t, nil
}

// Snapshot returns a copy of the current status.
func (t *Tracker) Snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Update applies fn to the status and persists the result.
func (t *Tracker) Update(ctx context.Context, fn func(*Status)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.status)
	return t.persistLocked(ctx)
}

// =============================================================================
// DRAIN LIFECYCLE
// =============================================================================

// BeginSync attempts to take the drain flag. It returns false when another
// drain is in flight, in which case nothing was changed. On success the
// attempt timestamp is stamped and progress resets to zero.
func (t *Tracker) BeginSync(ctx context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.IsSyncing {
		return false, nil
	}
	t.status.IsSyncing = true
	t.status.LastSyncAttempt = time.Now().UTC()
	t.status.SyncProgress = 0
	t.status.Error = ""
	return true, t.persistLocked(ctx)
}

// SetProgress records drain progress, clamped to 0..100.
func (t *Tracker) SetProgress(ctx context.Context, pct int) error {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.SyncProgress = pct
	return t.persistLocked(ctx)
}

// SetCounts records the queue composition.
func (t *Tracker) SetCounts(ctx context.Context, pending, failed int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.PendingCount = pending
	t.status.FailedCount = failed
	return t.persistLocked(ctx)
}

// EndSync releases the drain flag. LastSuccessfulSync moves only when the
// pass applied at least one item; lastErr keeps the first failure message
// of the pass for status consumers.
func (t *Tracker) EndSync(ctx context.Context, anySucceeded bool, lastErr string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.IsSyncing = false
	t.status.SyncProgress = 100
	t.status.Error = lastErr
	if anySucceeded {
		now := time.Now().UTC()
		t.status.LastSuccessfulSync = &now
	}
	return t.persistLocked(ctx)
}

func (t *Tracker) persistLocked(ctx context.Context) error {
	if err := t.store.SaveSyncState(ctx, t.status); err != nil {
		return &StorageError{Op: "save", Key: "sync_state", Err: err}
	}
	return nil
}
