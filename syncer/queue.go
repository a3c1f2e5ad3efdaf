/*
queue.go - Durable, priority-ordered queue of pending remote mutations

PURPOSE:
  The queue is the durable record of every mutation that still has to
  reach the backend. Entity services enqueue here whenever the device is
  offline or a synchronous remote call fails; the processor drains it in
  priority order when connectivity returns.

COALESCING:
  At most one pending item exists per (kind, entity id). Enqueueing a
  second mutation for the same entity merges with the pending one:

    pending Create + new Update  -> Create carrying the latest payload
    pending Create + new Delete  -> both dropped (never reached remote)
    pending Update + new Update  -> Update carrying the latest payload
    pending Update + new Delete  -> Delete
    pending Delete + new Create  -> Create (id reused after a tombstone)

  The merged item keeps the original id and enqueue timestamp so equal
  priorities still replay in first-enqueued order, and keeps the higher
  of the two priorities.

RETRY BOOKKEEPING:
  MarkAttempt increments the attempt counter and records the failure.
  An item that reaches MaxAttempts is parked dead: kept in storage,
  skipped by drains, visible through Stats and the API until an operator
  calls Retry.

SEE ALSO:
  - processor.go: drains ListByPriority and settles items
  - status.go: the Tracker kept in step with pending/failed counts
*/
package syncer

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxAttempts is the retry budget before an item goes dead.
const DefaultMaxAttempts = 5

// =============================================================================
// QUEUE
// =============================================================================

// Queue is the durable mutation queue. All methods are safe for concurrent
// use; mutations are serialized under the queue mutex so a coalescing
// read-modify-write cannot interleave with another enqueue.
type Queue struct {
	mu          sync.Mutex
	store       QueueStore
	tracker     *Tracker
	maxAttempts int
	logger      *slog.Logger
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithMaxAttempts overrides the dead-letter retry budget.
func WithMaxAttempts(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// WithQueueLogger sets the queue logger.
func WithQueueLogger(l *slog.Logger) QueueOption {
	return func(q *Queue) { q.logger = l }
}

// NewQueue creates a queue over the given store. The tracker is kept in
// step with pending/failed counts on every mutation; it may be nil in
// tests that do not observe status.
func NewQueue(store QueueStore, tracker *Tracker, opts ...QueueOption) *Queue {
	q := &Queue{
		store:       store,
		tracker:     tracker,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default().With("component", "queue"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// MaxAttempts returns the configured dead-letter budget.
func (q *Queue) MaxAttempts() int { return q.maxAttempts }

// =============================================================================
// ENQUEUE / COALESCE
// =============================================================================

// Enqueue records a pending remote mutation. The item's ID, EnqueuedAt and
// retry fields are assigned here; callers set Op, Kind, EntityID, UserID,
// Payload and Priority. When a pending item already targets the same
// (kind, entity id) the two are coalesced and the merged item is returned.
// A create+delete pair cancels out entirely, in which case Enqueue returns
// nil with no error.
func (q *Queue) Enqueue(ctx context.Context, item QueueItem) (*QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item.ID = uuid.NewString()
	item.EnqueuedAt = time.Now().UTC()
	item.Attempts = 0
	item.LastAttempt = nil
	item.LastError = ""
	item.Dead = false

	existing, err := q.store.GetQueueItemByEntity(ctx, item.Kind, item.EntityID)
	if err != nil {
		return nil, &StorageError{Op: "load", Key: "sync_queue", Err: err}
	}

	merged, drop := coalesce(existing, item)
	if drop {
		if err := q.store.DeleteQueueItems(ctx, []string{existing.ID}); err != nil {
			return nil, &StorageError{Op: "delete", Key: "sync_queue", Err: err}
		}
		q.logger.DebugContext(ctx, "enqueue cancelled pending create",
			"kind", item.Kind, "entity_id", item.EntityID)
		return nil, q.refreshCountsLocked(ctx)
	}

	if err := q.store.PutQueueItem(ctx, merged); err != nil {
		return nil, &StorageError{Op: "save", Key: "sync_queue", Err: err}
	}
	q.logger.DebugContext(ctx, "enqueued",
		"op", merged.Op, "kind", merged.Kind,
		"entity_id", merged.EntityID, "priority", merged.Priority)
	return &merged, q.refreshCountsLocked(ctx)
}

// coalesce merges an incoming item with the pending item for the same
// entity, if any. It returns the item to store, or drop=true when the
// pair cancels out (a locally-created entity deleted before it ever
// reached the backend).
func coalesce(existing *QueueItem, incoming QueueItem) (QueueItem, bool) {
	if existing == nil {
		return incoming, false
	}

	merged := incoming
	// Keep the first item's identity and position so stable ordering is
	// preserved across merges.
	merged.ID = existing.ID
	merged.EnqueuedAt = existing.EnqueuedAt
	if existing.Priority > merged.Priority {
		merged.Priority = existing.Priority
	}

	switch {
	case existing.Op == OpCreate && incoming.Op == OpUpdate:
		// The backend has never seen the entity; fold the update into the
		// pending create so replay inserts the latest state.
		merged.Op = OpCreate
	case existing.Op == OpCreate && incoming.Op == OpDelete:
		return QueueItem{}, true
	case existing.Op == OpDelete && incoming.Op == OpCreate:
		merged.Op = OpCreate
	default:
		// update+update -> latest payload, update+delete -> delete,
		// create+create -> latest payload: incoming already carries the
		// right op and payload.
	}
	return merged, false
}

// =============================================================================
// LISTING
// =============================================================================

// List returns every stored item, dead included, in enqueue order.
func (q *Queue) List(ctx context.Context) ([]QueueItem, error) {
	items, err := q.store.ListQueueItems(ctx)
	if err != nil {
		return nil, &StorageError{Op: "load", Key: "sync_queue", Err: err}
	}
	return items, nil
}

// ListByPriority returns the live (non-dead) items ordered by descending
// priority. Equal priorities keep their enqueue order.
func (q *Queue) ListByPriority(ctx context.Context) ([]QueueItem, error) {
	all, err := q.List(ctx)
	if err != nil {
		return nil, err
	}
	live := make([]QueueItem, 0, len(all))
	for _, it := range all {
		if !it.Dead {
			live = append(live, it)
		}
	}
	sort.SliceStable(live, func(i, j int) bool {
		return live[i].Priority > live[j].Priority
	})
	return live, nil
}

// =============================================================================
// SETTLEMENT
// =============================================================================

// MarkAttempt records a failed dispatch: the attempt counter goes up, the
// failure text is kept for status reporting, and the item goes dead once
// the retry budget is exhausted.
func (q *Queue) MarkAttempt(ctx context.Context, id string, attemptErr error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, err := q.store.GetQueueItem(ctx, id)
	if err != nil {
		return &StorageError{Op: "load", Key: "sync_queue", Err: err}
	}
	if item == nil {
		return nil
	}

	now := time.Now().UTC()
	item.Attempts++
	item.LastAttempt = &now
	if attemptErr != nil {
		item.LastError = attemptErr.Error()
	}
	if item.Attempts >= q.maxAttempts {
		item.Dead = true
		q.logger.WarnContext(ctx, "queue item dead-lettered",
			"op", item.Op, "kind", item.Kind, "entity_id", item.EntityID,
			"attempts", item.Attempts, "error", item.LastError)
	}

	if err := q.store.PutQueueItem(ctx, *item); err != nil {
		return &StorageError{Op: "save", Key: "sync_queue", Err: err}
	}
	return q.refreshCountsLocked(ctx)
}

// Remove deletes the items with the given ids, the normal settlement for
// applied or moot items.
func (q *Queue) Remove(ctx context.Context, ids []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.DeleteQueueItems(ctx, ids); err != nil {
		return &StorageError{Op: "delete", Key: "sync_queue", Err: err}
	}
	return q.refreshCountsLocked(ctx)
}

// Retry resurrects a dead item: attempts, error and the dead flag reset so
// the next drain picks it up again. No-op for unknown ids.
func (q *Queue) Retry(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, err := q.store.GetQueueItem(ctx, id)
	if err != nil {
		return &StorageError{Op: "load", Key: "sync_queue", Err: err}
	}
	if item == nil {
		return nil
	}

	item.Attempts = 0
	item.LastAttempt = nil
	item.LastError = ""
	item.Dead = false

	if err := q.store.PutQueueItem(ctx, *item); err != nil {
		return &StorageError{Op: "save", Key: "sync_queue", Err: err}
	}
	q.logger.InfoContext(ctx, "queue item reset for retry",
		"op", item.Op, "kind", item.Kind, "entity_id", item.EntityID)
	return q.refreshCountsLocked(ctx)
}

// Stats summarizes queue composition.
func (q *Queue) Stats(ctx context.Context) (QueueStats, error) {
	all, err := q.List(ctx)
	if err != nil {
		return QueueStats{}, err
	}
	return tally(all), nil
}

func tally(items []QueueItem) QueueStats {
	var s QueueStats
	for _, it := range items {
		if it.Dead {
			s.Dead++
		} else {
			s.Pending++
		}
		if it.LastError != "" {
			s.Failed++
		}
	}
	return s
}

// refreshCountsLocked mirrors queue composition into the tracker.
func (q *Queue) refreshCountsLocked(ctx context.Context) error {
	if q.tracker == nil {
		return nil
	}
	all, err := q.store.ListQueueItems(ctx)
	if err != nil {
		return &StorageError{Op: "load", Key: "sync_queue", Err: err}
	}
	s := tally(all)
	return q.tracker.SetCounts(ctx, s.Pending, s.Failed)
}
