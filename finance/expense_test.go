package finance_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soffoalbert/buzo-sync/finance"
	finstore "github.com/soffoalbert/buzo-sync/finance/store"
	"github.com/soffoalbert/buzo-sync/syncer"
	syncstore "github.com/soffoalbert/buzo-sync/syncer/store"
)

// =============================================================================
// TEST HARNESS
// =============================================================================
// Note: shared by budget_test.go and savings_test.go.

const testUser = "user-1"

// switchable is a connectivity stub the test flips mid-scenario.
type switchable struct {
	mu     sync.Mutex
	online bool
}

func (s *switchable) Online(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *switchable) set(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = v
}

// recordingAlerts captures every alert the services fire.
type recordingAlerts struct {
	mu         sync.Mutex
	budget     []finance.BudgetAlert
	progress   []finance.SavingsProgressAlert
	milestones []finance.MilestoneAlert
}

func (r *recordingAlerts) SendBudgetAlert(_ context.Context, a finance.BudgetAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.budget = append(r.budget, a)
	return nil
}

func (r *recordingAlerts) SendSavingsProgressAlert(_ context.Context, a finance.SavingsProgressAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, a)
	return nil
}

func (r *recordingAlerts) SendMilestoneAlert(_ context.Context, a finance.MilestoneAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.milestones = append(r.milestones, a)
	return nil
}

// Stub typed gateways: accept everything by default, fail with
// ErrUnreachable when failing is set, and count dispatched calls.

type stubExpenseGW struct {
	failing bool
	creates int
	updates int
	deletes int
}

func unreachable(op syncer.Operation, kind syncer.EntityKind, id string) error {
	return &syncer.GatewayError{Op: op, Kind: kind, EntityID: id, Err: syncer.ErrUnreachable}
}

func (g *stubExpenseGW) Create(_ context.Context, e *finance.Expense) (*finance.Expense, error) {
	g.creates++
	if g.failing {
		return nil, unreachable(syncer.OpCreate, syncer.KindExpense, e.ID)
	}
	cp := *e
	return &cp, nil
}

func (g *stubExpenseGW) Update(_ context.Context, e *finance.Expense) (*finance.Expense, error) {
	g.updates++
	if g.failing {
		return nil, unreachable(syncer.OpUpdate, syncer.KindExpense, e.ID)
	}
	cp := *e
	return &cp, nil
}

func (g *stubExpenseGW) Delete(_ context.Context, id string) error {
	g.deletes++
	if g.failing {
		return unreachable(syncer.OpDelete, syncer.KindExpense, id)
	}
	return nil
}

func (g *stubExpenseGW) GetByID(_ context.Context, id string) (*finance.Expense, error) {
	return nil, &syncer.GatewayError{Op: "get", Kind: syncer.KindExpense, EntityID: id, Err: syncer.ErrNotFound}
}

type stubBudgetGW struct{ creates, updates, deletes int }

func (g *stubBudgetGW) Create(_ context.Context, b *finance.Budget) (*finance.Budget, error) {
	g.creates++
	cp := *b
	return &cp, nil
}

func (g *stubBudgetGW) Update(_ context.Context, b *finance.Budget) (*finance.Budget, error) {
	g.updates++
	cp := *b
	return &cp, nil
}

func (g *stubBudgetGW) Delete(_ context.Context, _ string) error {
	g.deletes++
	return nil
}

func (g *stubBudgetGW) GetByID(_ context.Context, id string) (*finance.Budget, error) {
	return nil, &syncer.GatewayError{Op: "get", Kind: syncer.KindBudget, EntityID: id, Err: syncer.ErrNotFound}
}

type stubSavingsGW struct{ creates, updates, deletes int }

func (g *stubSavingsGW) Create(_ context.Context, v *finance.SavingsGoal) (*finance.SavingsGoal, error) {
	g.creates++
	cp := *v
	return &cp, nil
}

func (g *stubSavingsGW) Update(_ context.Context, v *finance.SavingsGoal) (*finance.SavingsGoal, error) {
	g.updates++
	cp := *v
	return &cp, nil
}

func (g *stubSavingsGW) Delete(_ context.Context, _ string) error {
	g.deletes++
	return nil
}

func (g *stubSavingsGW) GetByID(_ context.Context, id string) (*finance.SavingsGoal, error) {
	return nil, &syncer.GatewayError{Op: "get", Kind: syncer.KindSavingsGoal, EntityID: id, Err: syncer.ErrNotFound}
}

type testEnv struct {
	services *finance.Services
	store    *finstore.Memory
	queue    *syncer.Queue
	online   *switchable
	alerts   *recordingAlerts
	expGW    *stubExpenseGW
	budGW    *stubBudgetGW
	goalGW   *stubSavingsGW
}

func newTestEnv(t *testing.T, online bool) *testEnv {
	t.Helper()

	env := &testEnv{
		store:  finstore.NewMemory(),
		online: &switchable{online: online},
		alerts: &recordingAlerts{},
		expGW:  &stubExpenseGW{},
		budGW:  &stubBudgetGW{},
		goalGW: &stubSavingsGW{},
	}
	env.queue = syncer.NewQueue(syncstore.NewMemory(), nil)
	env.services = finance.NewServices(finance.Deps{
		Store:    env.store,
		Queue:    env.queue,
		Online:   env.online,
		Identity: syncer.StaticIdentity(testUser),
		Expenses: env.expGW,
		Budgets:  env.budGW,
		Savings:  env.goalGW,
		Alerts:   env.alerts,
	})
	return env
}

func (e *testEnv) queueItems(t *testing.T) []syncer.QueueItem {
	t.Helper()
	items, err := e.queue.List(context.Background())
	require.NoError(t, err)
	return items
}

func money(n int) finance.Money { return finance.NewMoneyFromInt(n) }

// =============================================================================
// LOCAL-FIRST / QUEUE DEFERRAL TESTS
// =============================================================================

func TestExpenseCreate_Offline_SavesLocallyAndQueues(t *testing.T) {
	// GIVEN: The device is offline
	// WHEN: An expense is created
	// THEN: It lands locally as unconfirmed and a create is queued at
	//       expense-create priority; the gateway is never called

	env := newTestEnv(t, false)
	ctx := context.Background()

	e, err := env.services.Expenses.Create(ctx, finance.ExpenseInput{
		Amount:   money(25),
		Category: "Food",
	})
	require.NoError(t, err)

	assert.Equal(t, syncer.OriginLocal, e.Origin)
	assert.Equal(t, testUser, e.UserID)

	stored, err := env.store.GetExpense(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, stored, "expense should be in the local store")

	items := env.queueItems(t)
	require.Len(t, items, 1)
	assert.Equal(t, syncer.OpCreate, items[0].Op)
	assert.Equal(t, syncer.KindExpense, items[0].Kind)
	assert.Equal(t, e.ID, items[0].EntityID)
	assert.Equal(t, syncer.PriorityExpenseCreate, items[0].Priority)

	assert.Zero(t, env.expGW.creates, "gateway must not be called offline")
}

func TestExpenseCreate_Online_ConfirmedRemotely(t *testing.T) {
	// GIVEN: The device is online and the backend accepts the create
	// WHEN: An expense is created
	// THEN: The stored copy is confirmed and nothing is queued

	env := newTestEnv(t, true)
	ctx := context.Background()

	e, err := env.services.Expenses.Create(ctx, finance.ExpenseInput{
		Amount:   money(25),
		Category: "Food",
	})
	require.NoError(t, err)

	assert.Equal(t, syncer.OriginRemote, e.Origin)
	assert.Equal(t, 1, env.expGW.creates)
	assert.Empty(t, env.queueItems(t))
}

func TestExpenseCreate_RemoteFailure_DefersToQueue(t *testing.T) {
	// GIVEN: The device looks online but the backend is unreachable
	// WHEN: An expense is created
	// THEN: The local write still succeeds and the create is deferred

	env := newTestEnv(t, true)
	env.expGW.failing = true
	ctx := context.Background()

	e, err := env.services.Expenses.Create(ctx, finance.ExpenseInput{
		Amount:   money(25),
		Category: "Food",
	})
	require.NoError(t, err)

	assert.Equal(t, syncer.OriginLocal, e.Origin)

	items := env.queueItems(t)
	require.Len(t, items, 1)
	assert.Equal(t, syncer.OpCreate, items[0].Op)
}

func TestExpenseUpdate_Unconfirmed_CoalescesIntoPendingCreate(t *testing.T) {
	// GIVEN: An expense created offline, so its create is still queued,
	//        and connectivity has since returned
	// WHEN: The expense is updated
	// THEN: No remote update is attempted; the queue still holds one item,
	//       a create carrying the updated amount

	env := newTestEnv(t, false)
	ctx := context.Background()

	e, err := env.services.Expenses.Create(ctx, finance.ExpenseInput{
		Amount:   money(25),
		Category: "Food",
	})
	require.NoError(t, err)

	env.online.set(true)

	newAmount := money(40)
	updated, err := env.services.Expenses.Update(ctx, e.ID, finance.ExpenseChanges{Amount: &newAmount})
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(newAmount))

	assert.Zero(t, env.expGW.updates, "unconfirmed entity must not hit the backend")

	items := env.queueItems(t)
	require.Len(t, items, 1)
	assert.Equal(t, syncer.OpCreate, items[0].Op, "update should fold into the pending create")
	assert.Contains(t, string(items[0].Payload), `"amount":"40"`)
}

func TestExpenseUpdate_UnknownID_ReturnsNotFoundLocal(t *testing.T) {
	// GIVEN: No expense with the given id
	// WHEN: An update is attempted
	// THEN: ErrNotFoundLocal

	env := newTestEnv(t, true)

	amount := money(10)
	_, err := env.services.Expenses.Update(context.Background(), "nope", finance.ExpenseChanges{Amount: &amount})
	assert.ErrorIs(t, err, syncer.ErrNotFoundLocal)
}

func TestExpenseDelete_Unconfirmed_CancelsPendingCreate(t *testing.T) {
	// GIVEN: An expense created offline with its create still queued
	// WHEN: The expense is deleted
	// THEN: The entity leaves the store, the pending create cancels, and
	//       the backend is never contacted

	env := newTestEnv(t, false)
	ctx := context.Background()

	e, err := env.services.Expenses.Create(ctx, finance.ExpenseInput{
		Amount:   money(25),
		Category: "Food",
	})
	require.NoError(t, err)

	require.NoError(t, env.services.Expenses.Delete(ctx, e.ID))

	stored, err := env.store.GetExpense(ctx, e.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)

	assert.Empty(t, env.queueItems(t), "create+delete should cancel out")
	assert.Zero(t, env.expGW.deletes)
}

func TestExpenseDelete_Absent_IsNoOp(t *testing.T) {
	// GIVEN: No expense with the given id
	// WHEN: A delete is attempted
	// THEN: Success, nothing queued

	env := newTestEnv(t, true)

	require.NoError(t, env.services.Expenses.Delete(context.Background(), "nope"))
	assert.Empty(t, env.queueItems(t))
}

// =============================================================================
// BUDGET RECONCILIATION TESTS
// =============================================================================

func TestExpenseCreate_AdjustsBudgetSpent(t *testing.T) {
	// GIVEN: A budget of 100
	// WHEN: An expense of 30 lands against it
	// THEN: Spent is 30, remaining 70, and the expense is linked

	env := newTestEnv(t, true)
	ctx := context.Background()

	b, err := env.services.Budgets.Create(ctx, finance.BudgetInput{
		Name: "Groceries", Category: "Food", Amount: money(100),
	})
	require.NoError(t, err)

	e, err := env.services.Expenses.Create(ctx, finance.ExpenseInput{
		Amount: money(30), Category: "Food", BudgetID: b.ID,
	})
	require.NoError(t, err)

	got, err := env.store.GetBudget(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "30", got.Spent.String())
	assert.Equal(t, "70", got.RemainingAmount.String())
	assert.True(t, got.HasExpense(e.ID))
}

func TestExpenseUpdate_AmountChange_AppliesDelta(t *testing.T) {
	// GIVEN: A budget carrying a 30 expense
	// WHEN: The expense amount changes to 50
	// THEN: Spent moves by the difference, not the full new amount

	env := newTestEnv(t, true)
	ctx := context.Background()

	b, err := env.services.Budgets.Create(ctx, finance.BudgetInput{
		Name: "Groceries", Category: "Food", Amount: money(100),
	})
	require.NoError(t, err)
	e, err := env.services.Expenses.Create(ctx, finance.ExpenseInput{
		Amount: money(30), Category: "Food", BudgetID: b.ID,
	})
	require.NoError(t, err)

	newAmount := money(50)
	_, err = env.services.Expenses.Update(ctx, e.ID, finance.ExpenseChanges{Amount: &newAmount})
	require.NoError(t, err)

	got, err := env.store.GetBudget(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "50", got.Spent.String())
	assert.Equal(t, "50", got.RemainingAmount.String())
}

func TestExpenseUpdate_MoveBetweenBudgets_TwoFullAdjustments(t *testing.T) {
	// GIVEN: An expense of 30 against budget A, and a budget B
	// WHEN: The expense moves to budget B
	// THEN: A gives back the full 30 and unlinks; B takes the full 30 and links

	env := newTestEnv(t, true)
	ctx := context.Background()

	a, err := env.services.Budgets.Create(ctx, finance.BudgetInput{
		Name: "A", Category: "Food", Amount: money(100),
	})
	require.NoError(t, err)
	b, err := env.services.Budgets.Create(ctx, finance.BudgetInput{
		Name: "B", Category: "Food", Amount: money(200),
	})
	require.NoError(t, err)

	e, err := env.services.Expenses.Create(ctx, finance.ExpenseInput{
		Amount: money(30), Category: "Food", BudgetID: a.ID,
	})
	require.NoError(t, err)

	target := b.ID
	_, err = env.services.Expenses.Update(ctx, e.ID, finance.ExpenseChanges{BudgetID: &target})
	require.NoError(t, err)

	gotA, err := env.store.GetBudget(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "0", gotA.Spent.String())
	assert.False(t, gotA.HasExpense(e.ID))

	gotB, err := env.store.GetBudget(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "30", gotB.Spent.String())
	assert.True(t, gotB.HasExpense(e.ID))
}

func TestExpenseDelete_ReversesBudgetAndSavings(t *testing.T) {
	// GIVEN: An expense of 50 against a budget, contributing 50 to a goal
	// WHEN: The expense is deleted
	// THEN: The budget's spent drops back, the goal's balance backs out the
	//       contribution with a reversal record, and completed milestones stay

	env := newTestEnv(t, true)
	ctx := context.Background()

	b, err := env.services.Budgets.Create(ctx, finance.BudgetInput{
		Name: "Bills", Category: "Home", Amount: money(200),
	})
	require.NoError(t, err)
	g, err := env.services.Savings.Create(ctx, finance.SavingsInput{
		Title: "Rainy day", TargetAmount: money(500),
		Milestones: []finance.MilestoneInput{{Title: "First 50", TargetAmount: money(50)}},
	})
	require.NoError(t, err)

	e, err := env.services.Expenses.Create(ctx, finance.ExpenseInput{
		Amount: money(50), Category: "Savings", BudgetID: b.ID,
		LinkedSavingsGoals:  []string{g.ID},
		SavingsContribution: money(50),
	})
	require.NoError(t, err)

	mid, err := env.store.GetSavingsGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "50", mid.CurrentAmount.String())
	require.Len(t, mid.Milestones, 1)
	assert.True(t, mid.Milestones[0].IsCompleted)

	require.NoError(t, env.services.Expenses.Delete(ctx, e.ID))

	gotB, err := env.store.GetBudget(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "0", gotB.Spent.String())

	gotG, err := env.store.GetSavingsGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "0", gotG.CurrentAmount.String())
	assert.True(t, gotG.Milestones[0].IsCompleted, "milestone completion is one-way")

	require.Len(t, gotG.SavingHistory, 2)
	reversal := gotG.SavingHistory[1]
	assert.Equal(t, "-50", reversal.Amount.String())
	assert.Equal(t, e.ID, reversal.ExpenseID)
}

func TestAutomatedSavingExpense_SkipsBudgetSpent(t *testing.T) {
	// GIVEN: A budget and a goal
	// WHEN: An automated-saving expense lands against the budget
	// THEN: The goal moves but the budget's spent total does not; the value
	//       is already carried by the savings allocation

	env := newTestEnv(t, true)
	ctx := context.Background()

	b, err := env.services.Budgets.Create(ctx, finance.BudgetInput{
		Name: "Salary", Category: "Income", Amount: money(1000),
	})
	require.NoError(t, err)
	g, err := env.services.Savings.Create(ctx, finance.SavingsInput{
		Title: "Laptop", TargetAmount: money(2000),
	})
	require.NoError(t, err)

	_, err = env.services.Expenses.Create(ctx, finance.ExpenseInput{
		Amount: money(100), Category: "Savings", BudgetID: b.ID,
		LinkedSavingsGoals:  []string{g.ID},
		SavingsContribution: money(100),
		IsAutomatedSaving:   true,
	})
	require.NoError(t, err)

	gotB, err := env.store.GetBudget(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "0", gotB.Spent.String(), "automated saving must not count as spent")

	gotG, err := env.store.GetSavingsGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "100", gotG.CurrentAmount.String())
	require.Len(t, gotG.SavingHistory, 1)
	assert.Equal(t, finance.SourceAutomated, gotG.SavingHistory[0].Source)
}
