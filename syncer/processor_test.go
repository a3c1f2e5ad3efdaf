package syncer_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/soffoalbert/buzo-sync/syncer"
	"github.com/soffoalbert/buzo-sync/syncer/store"
)

// =============================================================================
// STUB GATEWAY
// =============================================================================

// stubGateway records dispatched operations and answers with per-op
// scripted errors.
type stubGateway struct {
	createErr error
	updateErr error
	deleteErr error

	creates []json.RawMessage
	updates []string
	deletes []string
}

func (g *stubGateway) Create(_ context.Context, payload json.RawMessage) (json.RawMessage, error) {
	g.creates = append(g.creates, payload)
	if g.createErr != nil {
		return nil, g.createErr
	}
	return payload, nil
}

func (g *stubGateway) Update(_ context.Context, id string, payload json.RawMessage) (json.RawMessage, error) {
	g.updates = append(g.updates, id)
	if g.updateErr != nil {
		return nil, g.updateErr
	}
	return payload, nil
}

func (g *stubGateway) Delete(_ context.Context, id string) error {
	g.deletes = append(g.deletes, id)
	return g.deleteErr
}

func (g *stubGateway) GetByID(_ context.Context, id string) (json.RawMessage, error) {
	return nil, &syncer.GatewayError{Op: "get", Kind: syncer.KindExpense, EntityID: id, Err: syncer.ErrNotFound}
}

func (g *stubGateway) List(_ context.Context, _ map[string]string) ([]json.RawMessage, error) {
	return nil, nil
}

func newTestProcessor(t *testing.T, gateways syncer.Gateways) (*syncer.Processor, *syncer.Queue, *syncer.Tracker) {
	mem := store.NewMemory()
	tracker, err := syncer.NewTracker(context.Background(), mem)
	if err != nil {
		t.Fatalf("failed to create tracker: %v", err)
	}
	queue := syncer.NewQueue(mem, tracker)
	return syncer.NewProcessor(queue, tracker, gateways, nil), queue, tracker
}

// =============================================================================
// DRAIN TESTS
// =============================================================================

func TestProcessAll_AppliedItemsAreRemoved(t *testing.T) {
	// GIVEN: Two pending items and a gateway that accepts everything
	// WHEN: One drain pass runs
	// THEN: Both apply, the queue empties, and status records the success

	ctx := context.Background()
	gw := &stubGateway{}
	p, q, tracker := newTestProcessor(t, syncer.Gateways{syncer.KindExpense: gw})

	if _, err := q.Enqueue(ctx, expenseItem(syncer.OpCreate, "exp-1", syncer.PriorityExpenseCreate, "a")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Enqueue(ctx, expenseItem(syncer.OpUpdate, "exp-2", syncer.PriorityUpdate, "b")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	res, err := p.ProcessAll(ctx)
	if err != nil {
		t.Fatalf("process all: %v", err)
	}

	if res.Processed != 2 || res.Succeeded != 2 || res.Failed != 0 || res.Remaining != 0 {
		t.Errorf("expected clean drain, got %+v", res)
	}
	if len(gw.creates) != 1 || len(gw.updates) != 1 {
		t.Errorf("expected 1 create and 1 update dispatched, got %d/%d",
			len(gw.creates), len(gw.updates))
	}

	all, _ := q.List(ctx)
	if len(all) != 0 {
		t.Errorf("expected empty queue after drain, got %d items", len(all))
	}

	status := tracker.Snapshot()
	if status.IsSyncing {
		t.Errorf("drain flag should be released")
	}
	if status.LastSuccessfulSync == nil {
		t.Errorf("successful pass should stamp LastSuccessfulSync")
	}
	if status.SyncProgress != 100 {
		t.Errorf("expected progress 100 after pass, got %d", status.SyncProgress)
	}
	if status.Error != "" {
		t.Errorf("expected no error, got %q", status.Error)
	}
}

func TestProcessAll_TransientFailure_ItemStaysQueued(t *testing.T) {
	// GIVEN: One pending create and a gateway that is unreachable
	// WHEN: One drain pass runs
	// THEN: The item stays with an attempt recorded and status carries the error

	ctx := context.Background()
	gw := &stubGateway{
		createErr: &syncer.GatewayError{
			Op: syncer.OpCreate, Kind: syncer.KindExpense,
			EntityID: "exp-1", Err: syncer.ErrUnreachable,
		},
	}
	p, q, tracker := newTestProcessor(t, syncer.Gateways{syncer.KindExpense: gw})

	if _, err := q.Enqueue(ctx, expenseItem(syncer.OpCreate, "exp-1", syncer.PriorityExpenseCreate, "a")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	res, err := p.ProcessAll(ctx)
	if err != nil {
		t.Fatalf("process all: %v", err)
	}

	if res.Processed != 1 || res.Succeeded != 0 || res.Failed != 1 || res.Remaining != 1 {
		t.Errorf("expected failed pass with item remaining, got %+v", res)
	}

	all, _ := q.List(ctx)
	if len(all) != 1 {
		t.Fatalf("expected item still queued, got %d", len(all))
	}
	if all[0].Attempts != 1 {
		t.Errorf("expected 1 attempt recorded, got %d", all[0].Attempts)
	}

	status := tracker.Snapshot()
	if status.LastSuccessfulSync != nil {
		t.Errorf("failed pass must not stamp LastSuccessfulSync")
	}
	if status.Error == "" {
		t.Errorf("expected first failure kept in status")
	}
}

func TestProcessAll_DuplicateCreate_SettlesAsSuccess(t *testing.T) {
	// GIVEN: A pending create whose earlier dispatch already landed remotely
	// WHEN: The drain replays it and the backend answers duplicate key
	// THEN: The item settles as applied and leaves the queue

	ctx := context.Background()
	gw := &stubGateway{
		createErr: &syncer.GatewayError{
			Op: syncer.OpCreate, Kind: syncer.KindExpense,
			EntityID: "exp-1", Err: syncer.ErrDuplicateKey,
		},
	}
	p, q, _ := newTestProcessor(t, syncer.Gateways{syncer.KindExpense: gw})

	if _, err := q.Enqueue(ctx, expenseItem(syncer.OpCreate, "exp-1", syncer.PriorityExpenseCreate, "a")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	res, err := p.ProcessAll(ctx)
	if err != nil {
		t.Fatalf("process all: %v", err)
	}

	if res.Succeeded != 1 || res.Failed != 0 {
		t.Errorf("duplicate create should count as success, got %+v", res)
	}
	all, _ := q.List(ctx)
	if len(all) != 0 {
		t.Errorf("expected item settled and removed, got %d items", len(all))
	}
}

func TestProcessAll_DeleteOfVanishedRecord_SettlesAsSuccess(t *testing.T) {
	// GIVEN: A pending delete whose target was already removed remotely
	// WHEN: The drain replays it and the backend answers not found
	// THEN: The tombstone settles as applied

	ctx := context.Background()
	gw := &stubGateway{
		deleteErr: &syncer.GatewayError{
			Op: syncer.OpDelete, Kind: syncer.KindExpense,
			EntityID: "exp-1", Err: syncer.ErrNotFound,
		},
	}
	p, q, _ := newTestProcessor(t, syncer.Gateways{syncer.KindExpense: gw})

	if _, err := q.Enqueue(ctx, expenseItem(syncer.OpDelete, "exp-1", syncer.PriorityDelete, "tomb")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	res, err := p.ProcessAll(ctx)
	if err != nil {
		t.Fatalf("process all: %v", err)
	}

	if res.Succeeded != 1 || res.Failed != 0 {
		t.Errorf("not-found delete should count as success, got %+v", res)
	}
	all, _ := q.List(ctx)
	if len(all) != 0 {
		t.Errorf("expected tombstone settled, got %d items", len(all))
	}
}

func TestProcessAll_NotFoundOnCreate_IsNotConvergence(t *testing.T) {
	// GIVEN: A pending create answered with not-found (a genuine backend fault)
	// WHEN: The drain replays it
	// THEN: The item fails rather than settling; only duplicate key converges
	//       a create

	ctx := context.Background()
	gw := &stubGateway{
		createErr: &syncer.GatewayError{
			Op: syncer.OpCreate, Kind: syncer.KindExpense,
			EntityID: "exp-1", Err: syncer.ErrNotFound,
		},
	}
	p, q, _ := newTestProcessor(t, syncer.Gateways{syncer.KindExpense: gw})

	if _, err := q.Enqueue(ctx, expenseItem(syncer.OpCreate, "exp-1", syncer.PriorityExpenseCreate, "a")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	res, err := p.ProcessAll(ctx)
	if err != nil {
		t.Fatalf("process all: %v", err)
	}
	if res.Failed != 1 || res.Succeeded != 0 {
		t.Errorf("not-found on create should fail the item, got %+v", res)
	}
}

func TestProcessAll_UnknownKind_FailsItem(t *testing.T) {
	// GIVEN: A queue item for a kind no gateway serves
	// WHEN: One drain pass runs
	// THEN: The item fails with the unknown-kind error and stays queued

	ctx := context.Background()
	p, q, _ := newTestProcessor(t, syncer.Gateways{})

	if _, err := q.Enqueue(ctx, syncer.QueueItem{
		Op:       syncer.OpCreate,
		Kind:     syncer.EntityKind("mystery"),
		EntityID: "m-1",
		UserID:   "user-1",
		Payload:  payload("x"),
		Priority: syncer.PriorityCreate,
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	res, err := p.ProcessAll(ctx)
	if err != nil {
		t.Fatalf("process all: %v", err)
	}
	if res.Failed != 1 {
		t.Errorf("expected unknown-kind item to fail, got %+v", res)
	}

	all, _ := q.List(ctx)
	if len(all) != 1 {
		t.Fatalf("expected item still queued, got %d", len(all))
	}
	if all[0].LastError == "" {
		t.Errorf("expected failure text recorded")
	}
}

func TestProcessAll_SkipsDeadItems(t *testing.T) {
	// GIVEN: One dead-lettered item and one live item
	// WHEN: One drain pass runs
	// THEN: Only the live item is dispatched; the dead one stays parked

	ctx := context.Background()
	gw := &stubGateway{}
	mem := store.NewMemory()
	tracker, err := syncer.NewTracker(ctx, mem)
	if err != nil {
		t.Fatalf("tracker: %v", err)
	}
	q := syncer.NewQueue(mem, tracker, syncer.WithMaxAttempts(1))
	p := syncer.NewProcessor(q, tracker, syncer.Gateways{syncer.KindExpense: gw}, nil)

	doomed, err := q.Enqueue(ctx, expenseItem(syncer.OpUpdate, "exp-dead", syncer.PriorityUpdate, "x"))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.MarkAttempt(ctx, doomed.ID, errors.New("down")); err != nil {
		t.Fatalf("mark attempt: %v", err)
	}
	if _, err := q.Enqueue(ctx, expenseItem(syncer.OpUpdate, "exp-live", syncer.PriorityUpdate, "y")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	res, err := p.ProcessAll(ctx)
	if err != nil {
		t.Fatalf("process all: %v", err)
	}

	if res.Processed != 1 || res.Succeeded != 1 {
		t.Errorf("expected only the live item dispatched, got %+v", res)
	}
	if len(gw.updates) != 1 || gw.updates[0] != "exp-live" {
		t.Errorf("expected live item update only, got %v", gw.updates)
	}

	all, _ := q.List(ctx)
	if len(all) != 1 || !all[0].Dead {
		t.Errorf("dead item should stay parked, got %+v", all)
	}
}

// =============================================================================
// SINGLE-FLIGHT TESTS
// =============================================================================

func TestProcessAll_OverlappingDrain_ReportsAlreadyRunning(t *testing.T) {
	// GIVEN: A drain flag already held by another pass
	// WHEN: A second ProcessAll is attempted
	// THEN: It dispatches nothing and reports AlreadyRunning without error

	ctx := context.Background()
	gw := &stubGateway{}
	p, q, tracker := newTestProcessor(t, syncer.Gateways{syncer.KindExpense: gw})

	if _, err := q.Enqueue(ctx, expenseItem(syncer.OpCreate, "exp-1", syncer.PriorityExpenseCreate, "a")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	acquired, err := tracker.BeginSync(ctx)
	if err != nil || !acquired {
		t.Fatalf("failed to take drain flag: acquired=%v err=%v", acquired, err)
	}

	res, err := p.ProcessAll(ctx)
	if err != nil {
		t.Fatalf("process all: %v", err)
	}
	if !res.AlreadyRunning {
		t.Errorf("expected AlreadyRunning, got %+v", res)
	}
	if res.Processed != 0 || len(gw.creates) != 0 {
		t.Errorf("overlapping drain must dispatch nothing, got %+v (%d creates)",
			res, len(gw.creates))
	}

	// Release and drain for real.
	if err := tracker.EndSync(ctx, false, ""); err != nil {
		t.Fatalf("end sync: %v", err)
	}
	res, err = p.ProcessAll(ctx)
	if err != nil {
		t.Fatalf("process all: %v", err)
	}
	if res.Succeeded != 1 {
		t.Errorf("expected drain to succeed once flag released, got %+v", res)
	}
}

func TestTracker_StaleDrainFlag_ClearedOnLoad(t *testing.T) {
	// GIVEN: Persisted status from a process that died mid-drain
	// WHEN: A new tracker loads it
	// THEN: The in-flight flag is cleared so drains are not wedged forever

	ctx := context.Background()
	mem := store.NewMemory()
	if err := mem.SaveSyncState(ctx, syncer.Status{IsSyncing: true, PendingCount: 3}); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	tracker, err := syncer.NewTracker(ctx, mem)
	if err != nil {
		t.Fatalf("tracker: %v", err)
	}

	status := tracker.Snapshot()
	if status.IsSyncing {
		t.Errorf("stale drain flag should be cleared on load")
	}
	if status.PendingCount != 3 {
		t.Errorf("persisted counters should survive the reload, got %+v", status)
	}
}
