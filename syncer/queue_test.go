package syncer_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/soffoalbert/buzo-sync/syncer"
	"github.com/soffoalbert/buzo-sync/syncer/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestQueue(opts ...syncer.QueueOption) (*syncer.Queue, *store.Memory) {
	mem := store.NewMemory()
	return syncer.NewQueue(mem, nil, opts...), mem
}

func newTrackedQueue(t *testing.T, opts ...syncer.QueueOption) (*syncer.Queue, *syncer.Tracker, *store.Memory) {
	mem := store.NewMemory()
	tracker, err := syncer.NewTracker(context.Background(), mem)
	if err != nil {
		t.Fatalf("failed to create tracker: %v", err)
	}
	return syncer.NewQueue(mem, tracker, opts...), tracker, mem
}

func payload(v string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"v":%q}`, v))
}

func expenseItem(op syncer.Operation, entityID string, priority int, body string) syncer.QueueItem {
	return syncer.QueueItem{
		Op:       op,
		Kind:     syncer.KindExpense,
		EntityID: entityID,
		UserID:   "user-1",
		Payload:  payload(body),
		Priority: priority,
	}
}

// =============================================================================
// COALESCING TESTS
// =============================================================================

func TestEnqueue_CreateThenUpdate_CollapsesToCreate(t *testing.T) {
	// GIVEN: A pending create for an entity the backend has never seen
	// WHEN: An update for the same entity is enqueued
	// THEN: One item remains, still a create, carrying the update's payload

	ctx := context.Background()
	q, _ := newTestQueue()

	first, err := q.Enqueue(ctx, expenseItem(syncer.OpCreate, "exp-1", syncer.PriorityExpenseCreate, "v1"))
	if err != nil {
		t.Fatalf("enqueue create: %v", err)
	}

	merged, err := q.Enqueue(ctx, expenseItem(syncer.OpUpdate, "exp-1", syncer.PriorityUpdate, "v2"))
	if err != nil {
		t.Fatalf("enqueue update: %v", err)
	}

	if merged.Op != syncer.OpCreate {
		t.Errorf("expected merged op create, got %s", merged.Op)
	}
	if string(merged.Payload) != string(payload("v2")) {
		t.Errorf("expected latest payload, got %s", merged.Payload)
	}
	if merged.ID != first.ID {
		t.Errorf("merged item should keep the original id")
	}
	if !merged.EnqueuedAt.Equal(first.EnqueuedAt) {
		t.Errorf("merged item should keep the original enqueue time")
	}

	all, err := q.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 item after merge, got %d", len(all))
	}
}

func TestEnqueue_CreateThenDelete_CancelsBoth(t *testing.T) {
	// GIVEN: A pending create for a locally-minted entity
	// WHEN: A delete for the same entity is enqueued
	// THEN: Both cancel out; nothing remains and Enqueue returns nil

	ctx := context.Background()
	q, _ := newTestQueue()

	if _, err := q.Enqueue(ctx, expenseItem(syncer.OpCreate, "exp-1", syncer.PriorityExpenseCreate, "v1")); err != nil {
		t.Fatalf("enqueue create: %v", err)
	}

	merged, err := q.Enqueue(ctx, expenseItem(syncer.OpDelete, "exp-1", syncer.PriorityDelete, "tomb"))
	if err != nil {
		t.Fatalf("enqueue delete: %v", err)
	}
	if merged != nil {
		t.Errorf("create+delete should cancel, got item %+v", merged)
	}

	all, err := q.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty queue, got %d items", len(all))
	}
}

func TestEnqueue_UpdateThenDelete_BecomesDelete(t *testing.T) {
	// GIVEN: A pending update for a confirmed entity
	// WHEN: A delete for the same entity is enqueued
	// THEN: One item remains: a delete, at the higher (delete) priority

	ctx := context.Background()
	q, _ := newTestQueue()

	if _, err := q.Enqueue(ctx, expenseItem(syncer.OpUpdate, "exp-1", syncer.PriorityUpdate, "v1")); err != nil {
		t.Fatalf("enqueue update: %v", err)
	}

	merged, err := q.Enqueue(ctx, expenseItem(syncer.OpDelete, "exp-1", syncer.PriorityDelete, "tomb"))
	if err != nil {
		t.Fatalf("enqueue delete: %v", err)
	}

	if merged.Op != syncer.OpDelete {
		t.Errorf("expected merged op delete, got %s", merged.Op)
	}
	if merged.Priority != syncer.PriorityDelete {
		t.Errorf("expected delete priority %d, got %d", syncer.PriorityDelete, merged.Priority)
	}
}

func TestEnqueue_DeleteThenCreate_BecomesCreate(t *testing.T) {
	// GIVEN: A pending delete tombstone for an entity
	// WHEN: A create reusing the same id is enqueued
	// THEN: The merged item is a create carrying the new payload, at the
	//       delete's (higher) priority and the tombstone's queue position

	ctx := context.Background()
	q, _ := newTestQueue()

	tomb, err := q.Enqueue(ctx, expenseItem(syncer.OpDelete, "exp-1", syncer.PriorityDelete, "tomb"))
	if err != nil {
		t.Fatalf("enqueue delete: %v", err)
	}

	merged, err := q.Enqueue(ctx, expenseItem(syncer.OpCreate, "exp-1", syncer.PriorityExpenseCreate, "reborn"))
	if err != nil {
		t.Fatalf("enqueue create: %v", err)
	}

	if merged.Op != syncer.OpCreate {
		t.Errorf("expected merged op create, got %s", merged.Op)
	}
	if string(merged.Payload) != string(payload("reborn")) {
		t.Errorf("expected new payload, got %s", merged.Payload)
	}
	if merged.Priority != syncer.PriorityDelete {
		t.Errorf("expected higher priority %d kept, got %d", syncer.PriorityDelete, merged.Priority)
	}
	if merged.ID != tomb.ID {
		t.Errorf("merged item should keep the tombstone's id")
	}
}

func TestEnqueue_UpdateThenUpdate_KeepsLatestPayload(t *testing.T) {
	// GIVEN: A pending update for an entity
	// WHEN: A second update for the same entity is enqueued
	// THEN: One item remains with the second update's payload

	ctx := context.Background()
	q, _ := newTestQueue()

	if _, err := q.Enqueue(ctx, expenseItem(syncer.OpUpdate, "exp-1", syncer.PriorityUpdate, "v1")); err != nil {
		t.Fatalf("enqueue first update: %v", err)
	}
	merged, err := q.Enqueue(ctx, expenseItem(syncer.OpUpdate, "exp-1", syncer.PriorityUpdate, "v2"))
	if err != nil {
		t.Fatalf("enqueue second update: %v", err)
	}

	if merged.Op != syncer.OpUpdate {
		t.Errorf("expected op update, got %s", merged.Op)
	}
	if string(merged.Payload) != string(payload("v2")) {
		t.Errorf("expected latest payload, got %s", merged.Payload)
	}

	all, _ := q.List(ctx)
	if len(all) != 1 {
		t.Fatalf("expected 1 item, got %d", len(all))
	}
}

func TestEnqueue_DifferentEntities_DoNotCoalesce(t *testing.T) {
	// GIVEN: A pending update for one entity
	// WHEN: An update for a different entity of the same kind is enqueued
	// THEN: Both items remain

	ctx := context.Background()
	q, _ := newTestQueue()

	if _, err := q.Enqueue(ctx, expenseItem(syncer.OpUpdate, "exp-1", syncer.PriorityUpdate, "a")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Enqueue(ctx, expenseItem(syncer.OpUpdate, "exp-2", syncer.PriorityUpdate, "b")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	all, _ := q.List(ctx)
	if len(all) != 2 {
		t.Fatalf("expected 2 items, got %d", len(all))
	}
}

// =============================================================================
// ORDERING TESTS
// =============================================================================

func TestListByPriority_HigherPriorityFirst_FIFOWithinPriority(t *testing.T) {
	// GIVEN: An update, two expense creates, and a delete enqueued in that order
	// WHEN: Listing by priority
	// THEN: Delete first, then the creates in enqueue order, update last

	ctx := context.Background()
	q, _ := newTestQueue()

	if _, err := q.Enqueue(ctx, expenseItem(syncer.OpUpdate, "exp-u", syncer.PriorityUpdate, "u")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Enqueue(ctx, expenseItem(syncer.OpCreate, "exp-a", syncer.PriorityExpenseCreate, "a")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Enqueue(ctx, expenseItem(syncer.OpCreate, "exp-b", syncer.PriorityExpenseCreate, "b")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Enqueue(ctx, expenseItem(syncer.OpDelete, "exp-d", syncer.PriorityDelete, "d")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ordered, err := q.ListByPriority(ctx)
	if err != nil {
		t.Fatalf("list by priority: %v", err)
	}

	want := []string{"exp-d", "exp-a", "exp-b", "exp-u"}
	if len(ordered) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(ordered))
	}
	for i, id := range want {
		if ordered[i].EntityID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, ordered[i].EntityID)
		}
	}
}

func TestListByPriority_CoalescedItemKeepsQueuePosition(t *testing.T) {
	// GIVEN: Two updates enqueued for exp-1 then exp-2, and a later second
	//        update coalesced into exp-1's pending item
	// WHEN: Listing by priority
	// THEN: exp-1 still replays before exp-2 (merge kept its position)

	ctx := context.Background()
	q, _ := newTestQueue()

	if _, err := q.Enqueue(ctx, expenseItem(syncer.OpUpdate, "exp-1", syncer.PriorityUpdate, "v1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Enqueue(ctx, expenseItem(syncer.OpUpdate, "exp-2", syncer.PriorityUpdate, "v1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Enqueue(ctx, expenseItem(syncer.OpUpdate, "exp-1", syncer.PriorityUpdate, "v2")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ordered, err := q.ListByPriority(ctx)
	if err != nil {
		t.Fatalf("list by priority: %v", err)
	}
	if len(ordered) != 2 {
		t.Fatalf("expected 2 items, got %d", len(ordered))
	}
	if ordered[0].EntityID != "exp-1" || ordered[1].EntityID != "exp-2" {
		t.Errorf("expected exp-1 then exp-2, got %s then %s",
			ordered[0].EntityID, ordered[1].EntityID)
	}
	if string(ordered[0].Payload) != string(payload("v2")) {
		t.Errorf("exp-1 should carry the merged payload, got %s", ordered[0].Payload)
	}
}

// =============================================================================
// DEAD-LETTER TESTS
// =============================================================================

func TestMarkAttempt_ExhaustedBudget_ParksItemDead(t *testing.T) {
	// GIVEN: A queue with a retry budget of 2 and one pending item
	// WHEN: The item fails twice
	// THEN: It goes dead, drains skip it, but List and Stats still see it

	ctx := context.Background()
	q, _ := newTestQueue(syncer.WithMaxAttempts(2))

	item, err := q.Enqueue(ctx, expenseItem(syncer.OpCreate, "exp-1", syncer.PriorityExpenseCreate, "v1"))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := q.MarkAttempt(ctx, item.ID, fmt.Errorf("backend down")); err != nil {
		t.Fatalf("mark attempt 1: %v", err)
	}
	if err := q.MarkAttempt(ctx, item.ID, fmt.Errorf("backend still down")); err != nil {
		t.Fatalf("mark attempt 2: %v", err)
	}

	live, err := q.ListByPriority(ctx)
	if err != nil {
		t.Fatalf("list by priority: %v", err)
	}
	if len(live) != 0 {
		t.Errorf("dead item should be skipped by drains, got %d live items", len(live))
	}

	all, _ := q.List(ctx)
	if len(all) != 1 {
		t.Fatalf("dead item should stay stored, got %d items", len(all))
	}
	if !all[0].Dead {
		t.Errorf("item should be marked dead")
	}
	if all[0].Attempts != 2 {
		t.Errorf("expected 2 attempts recorded, got %d", all[0].Attempts)
	}
	if all[0].LastError != "backend still down" {
		t.Errorf("expected latest failure kept, got %q", all[0].LastError)
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Dead != 1 || stats.Pending != 0 || stats.Failed != 1 {
		t.Errorf("expected stats {Pending:0 Failed:1 Dead:1}, got %+v", stats)
	}
}

func TestMarkAttempt_UnderBudget_ItemStaysLive(t *testing.T) {
	// GIVEN: An item that failed once against the default budget of 5
	// WHEN: Listing live items
	// THEN: The item is still drained, with its failure recorded

	ctx := context.Background()
	q, _ := newTestQueue()

	item, err := q.Enqueue(ctx, expenseItem(syncer.OpUpdate, "exp-1", syncer.PriorityUpdate, "v1"))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.MarkAttempt(ctx, item.ID, fmt.Errorf("timeout")); err != nil {
		t.Fatalf("mark attempt: %v", err)
	}

	live, _ := q.ListByPriority(ctx)
	if len(live) != 1 {
		t.Fatalf("expected item still live, got %d items", len(live))
	}
	if live[0].Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", live[0].Attempts)
	}
	if live[0].LastAttempt == nil {
		t.Errorf("expected last attempt timestamp recorded")
	}
	if live[0].LastError != "timeout" {
		t.Errorf("expected failure text kept, got %q", live[0].LastError)
	}
}

func TestRetry_ResurrectsDeadItem(t *testing.T) {
	// GIVEN: A dead-lettered item
	// WHEN: An operator calls Retry
	// THEN: Attempts, error and the dead flag reset so the next drain takes it

	ctx := context.Background()
	q, _ := newTestQueue(syncer.WithMaxAttempts(1))

	item, err := q.Enqueue(ctx, expenseItem(syncer.OpCreate, "exp-1", syncer.PriorityExpenseCreate, "v1"))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.MarkAttempt(ctx, item.ID, fmt.Errorf("boom")); err != nil {
		t.Fatalf("mark attempt: %v", err)
	}

	if err := q.Retry(ctx, item.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}

	live, _ := q.ListByPriority(ctx)
	if len(live) != 1 {
		t.Fatalf("expected item live again, got %d items", len(live))
	}
	got := live[0]
	if got.Dead || got.Attempts != 0 || got.LastError != "" || got.LastAttempt != nil {
		t.Errorf("expected retry bookkeeping reset, got %+v", got)
	}
}

func TestRetry_UnknownID_IsNoOp(t *testing.T) {
	// GIVEN: An empty queue
	// WHEN: Retry is called with an unknown id
	// THEN: No error, nothing changes

	ctx := context.Background()
	q, _ := newTestQueue()

	if err := q.Retry(ctx, "no-such-item"); err != nil {
		t.Fatalf("retry of unknown id should be a no-op, got %v", err)
	}
}

// =============================================================================
// TRACKER MIRRORING TESTS
// =============================================================================

func TestQueue_MirrorsCountsIntoTracker(t *testing.T) {
	// GIVEN: A queue wired to a tracker, retry budget 1
	// WHEN: Two items are enqueued, one dead-letters, one is removed
	// THEN: The tracker's pending/failed counters follow each mutation

	ctx := context.Background()
	q, tracker, _ := newTrackedQueue(t, syncer.WithMaxAttempts(1))

	a, err := q.Enqueue(ctx, expenseItem(syncer.OpCreate, "exp-a", syncer.PriorityExpenseCreate, "a"))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	b, err := q.Enqueue(ctx, expenseItem(syncer.OpCreate, "exp-b", syncer.PriorityExpenseCreate, "b"))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if got := tracker.Snapshot(); got.PendingCount != 2 || got.FailedCount != 0 {
		t.Errorf("after enqueues expected pending=2 failed=0, got %+v", got)
	}

	if err := q.MarkAttempt(ctx, a.ID, fmt.Errorf("down")); err != nil {
		t.Fatalf("mark attempt: %v", err)
	}
	if got := tracker.Snapshot(); got.PendingCount != 1 || got.FailedCount != 1 {
		t.Errorf("after dead-letter expected pending=1 failed=1, got %+v", got)
	}

	if err := q.Remove(ctx, []string{b.ID}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := tracker.Snapshot(); got.PendingCount != 0 || got.FailedCount != 1 {
		t.Errorf("after remove expected pending=0 failed=1, got %+v", got)
	}
}
