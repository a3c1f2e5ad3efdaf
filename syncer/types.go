/*
Package syncer provides the offline-first synchronization engine.

PURPOSE:
  This package contains the domain-agnostic machinery for mirroring local
  mutations to a remote backend: a durable, priority-ordered queue of
  pending operations, a processor that drains the queue when connectivity
  allows, and the shared status record the rest of the app observes.
  The engine does not know what an expense or a budget is. Domain
  packages hand it opaque JSON payloads tagged with an operation and an
  entity kind.

KEY CONCEPTS IN THIS FILE (types.go):
  - Operation/EntityKind: the tagged pair identifying what a queue item does
  - Origin: whether an entity id was minted locally or confirmed remotely
  - QueueItem: one pending remote mutation with retry bookkeeping
  - Status: the aggregate sync state (in-flight flag, counters, progress)

DESIGN PRINCIPLES:
  1. Optimistic local-first: callers persist locally before the remote
     attempt and never block on remote confirmation
  2. Idempotent replay: a queue item may be dispatched more than once;
     duplicate-key on create and not-found on update/delete mean the
     remote already converged and count as success
  3. One pending item per entity: enqueues coalesce per (kind, entity id)
     so replay order cannot interleave stale payloads
  4. No ambient state: the queue, tracker, and processor are constructed
     objects wired explicitly, so tests can run drains in isolation

USAGE:
  item := syncer.QueueItem{
      Op:       syncer.OpCreate,
      Kind:     syncer.KindExpense,
      EntityID: expense.ID,
      Payload:  payload,
      Priority: syncer.CreatePriority(syncer.KindExpense),
  }
  queued, err := queue.Enqueue(ctx, item)

SEE ALSO:
  - queue.go: enqueue/coalesce/attempt bookkeeping
  - processor.go: the drain loop and single-flight guarantee
  - status.go: the shared, persisted Status tracker
*/
package syncer

import (
	"encoding/json"
	"time"
)

// =============================================================================
// OPERATION / ENTITY KIND - The tagged pair a queue item dispatches on
// =============================================================================

// Operation is the semantic remote mutation a queue item performs.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// EntityKind identifies which domain collection a queue item targets.
// Dispatch happens on the (Operation, EntityKind) pair, never on string
// matching of composite labels.
type EntityKind string

const (
	KindExpense     EntityKind = "expense"
	KindBudget      EntityKind = "budget"
	KindSavingsGoal EntityKind = "savings_goal"
)

// Table returns the remote collection name for the kind.
func (k EntityKind) Table() string {
	switch k {
	case KindExpense:
		return "expenses"
	case KindBudget:
		return "budgets"
	case KindSavingsGoal:
		return "savings_goals"
	default:
		return string(k)
	}
}

// Valid reports whether the kind is one the engine knows how to dispatch.
func (k EntityKind) Valid() bool {
	switch k {
	case KindExpense, KindBudget, KindSavingsGoal:
		return true
	}
	return false
}

// =============================================================================
// ORIGIN - Where an entity id came from
// =============================================================================

// Origin records whether an entity was minted on this device and is still
// awaiting remote confirmation, or is known to exist on the backend.
// Services skip remote update/delete calls for OriginLocal entities: there
// is nothing on the backend to touch until the pending create lands.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Confirmed reports whether the backend knows this entity.
func (o Origin) Confirmed() bool { return o == OriginRemote }

// =============================================================================
// PRIORITIES - Higher is served first during a drain
// =============================================================================

// Deletes replay first so tombstones beat stale payloads, expense creates
// beat other creates (they feed budget/goal arithmetic downstream), and
// plain updates go last.
const (
	PriorityDelete        = 10
	PriorityExpenseCreate = 8
	PriorityCreate        = 6
	PriorityUpdate        = 4
)

// CreatePriority returns the enqueue priority for a create of the kind.
func CreatePriority(kind EntityKind) int {
	if kind == KindExpense {
		return PriorityExpenseCreate
	}
	return PriorityCreate
}

// =============================================================================
// QUEUE ITEM - One pending remote mutation
// =============================================================================

// QueueItem is a durable record of a remote mutation awaiting replay.
// Payload carries the full entity for create/update and the bare id for
// delete; keeping updates full-bodied is what lets coalescing collapse a
// create+update chain into one create with the latest state.
type QueueItem struct {
	ID          string
	Op          Operation
	Kind        EntityKind
	EntityID    string
	UserID      string
	Payload     json.RawMessage
	Priority    int
	Attempts    int
	EnqueuedAt  time.Time
	LastAttempt *time.Time
	LastError   string

	// Dead marks an item that exhausted its attempts. Dead items stay
	// visible for operator retry but are skipped by drains.
	Dead bool
}

// =============================================================================
// STATUS - Aggregate sync state observed by the app shell
// =============================================================================

// Status is the snapshot the UI polls. It is owned by a Tracker (status.go)
// and persisted through the local store so it survives restarts.
type Status struct {
	IsSyncing          bool
	LastSyncAttempt    time.Time
	LastSuccessfulSync *time.Time
	PendingCount       int
	FailedCount        int
	SyncProgress       int // 0..100
	Error              string
}

// QueueStats summarizes queue composition for status reporting.
type QueueStats struct {
	Pending int // live items awaiting replay
	Failed  int // items with a recorded error (includes dead)
	Dead    int // items parked after exhausting attempts
}

// Result reports the outcome of one drain pass.
type Result struct {
	AlreadyRunning bool // another drain held the flag; nothing was dispatched
	Processed      int  // items taken from the snapshot
	Succeeded      int  // applied remotely or already converged
	Failed         int  // left queued with an incremented attempt count
	Remaining      int  // live items still pending after the pass
}
