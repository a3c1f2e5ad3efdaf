package finance_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soffoalbert/buzo-sync/finance"
	"github.com/soffoalbert/buzo-sync/syncer"
)

// =============================================================================
// ALLOCATION / INVARIANT TESTS
// =============================================================================

func TestBudgetCreate_ComputesAllocationAndRemaining(t *testing.T) {
	// GIVEN: A 1000 budget with 10% auto-save
	// WHEN: It is created
	// THEN: Allocation is 100 and remaining is 900 from the first read,
	//       but no synthetic expense runs on create

	env := newTestEnv(t, true)
	ctx := context.Background()

	b, err := env.services.Budgets.Create(ctx, finance.BudgetInput{
		Name:               "Salary",
		Category:           "Income",
		Amount:             money(1000),
		AutoSavePercentage: decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	assert.Equal(t, "100", b.SavingsAllocation.String())
	assert.Equal(t, "900", b.RemainingAmount.String())

	expenses, err := env.services.Expenses.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, expenses, "auto-save cascades only on update")
}

func TestBudgetCreate_Offline_QueuesAtCreatePriority(t *testing.T) {
	// GIVEN: The device is offline
	// WHEN: A budget is created
	// THEN: The queued create carries the plain create priority, below an
	//       expense create

	env := newTestEnv(t, false)
	ctx := context.Background()

	b, err := env.services.Budgets.Create(ctx, finance.BudgetInput{
		Name: "Transport", Category: "Travel", Amount: money(300),
	})
	require.NoError(t, err)
	assert.Equal(t, syncer.OriginLocal, b.Origin)

	items := env.queueItems(t)
	require.Len(t, items, 1)
	assert.Equal(t, syncer.KindBudget, items[0].Kind)
	assert.Equal(t, syncer.PriorityCreate, items[0].Priority)
	assert.Less(t, items[0].Priority, syncer.PriorityExpenseCreate)
}

// =============================================================================
// AUTO-SAVE CASCADE TESTS
// =============================================================================

func TestBudgetUpdate_AutoSaveCascade_CreatesAutomatedExpense(t *testing.T) {
	// GIVEN: A 2000 budget linked to a goal, without auto-save
	// WHEN: Auto-save is raised to 10%
	// THEN: A synthetic automated expense of 200 is created through the full
	//       expense path; the goal gains 200, the budget's spent stays zero

	env := newTestEnv(t, true)
	ctx := context.Background()

	g, err := env.services.Savings.Create(ctx, finance.SavingsInput{
		Title: "Laptop", TargetAmount: money(3000),
	})
	require.NoError(t, err)

	b, err := env.services.Budgets.Create(ctx, finance.BudgetInput{
		Name:               "Salary",
		Category:           "Income",
		Amount:             money(2000),
		LinkedSavingsGoals: []string{g.ID},
	})
	require.NoError(t, err)

	pct := decimal.NewFromInt(10)
	updated, err := env.services.Budgets.Update(ctx, b.ID, finance.BudgetChanges{AutoSavePercentage: &pct})
	require.NoError(t, err)
	assert.Equal(t, "200", updated.SavingsAllocation.String())
	assert.Equal(t, "1800", updated.RemainingAmount.String())

	expenses, err := env.services.Expenses.List(ctx)
	require.NoError(t, err)
	require.Len(t, expenses, 1, "exactly one synthetic expense")
	auto := expenses[0]
	assert.True(t, auto.IsAutomatedSaving)
	assert.Equal(t, "Savings", auto.Category)
	assert.Equal(t, "200", auto.Amount.String())
	assert.Equal(t, b.ID, auto.BudgetID)

	gotG, err := env.store.GetSavingsGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "200", gotG.CurrentAmount.String())

	gotB, err := env.store.GetBudget(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "0", gotB.Spent.String(), "cascade must not feed back into spent")
}

func TestBudgetUpdate_LoweringAutoSave_NoCascade(t *testing.T) {
	// GIVEN: A budget already auto-saving 10% into a goal
	// WHEN: The percentage drops to 5%
	// THEN: The allocation shrinks but no new synthetic expense is created

	env := newTestEnv(t, true)
	ctx := context.Background()

	g, err := env.services.Savings.Create(ctx, finance.SavingsInput{
		Title: "Laptop", TargetAmount: money(3000),
	})
	require.NoError(t, err)
	b, err := env.services.Budgets.Create(ctx, finance.BudgetInput{
		Name:               "Salary",
		Category:           "Income",
		Amount:             money(2000),
		AutoSavePercentage: decimal.NewFromInt(10),
		LinkedSavingsGoals: []string{g.ID},
	})
	require.NoError(t, err)

	pct := decimal.NewFromInt(5)
	updated, err := env.services.Budgets.Update(ctx, b.ID, finance.BudgetChanges{AutoSavePercentage: &pct})
	require.NoError(t, err)
	assert.Equal(t, "100", updated.SavingsAllocation.String())

	expenses, err := env.services.Expenses.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, expenses, "lowering the percentage must not cascade")
}

func TestBudgetUpdate_NoLinkedGoals_NoCascade(t *testing.T) {
	// GIVEN: A budget with no linked goals
	// WHEN: Auto-save is raised
	// THEN: The allocation is carved out but no synthetic expense appears

	env := newTestEnv(t, true)
	ctx := context.Background()

	b, err := env.services.Budgets.Create(ctx, finance.BudgetInput{
		Name: "Salary", Category: "Income", Amount: money(2000),
	})
	require.NoError(t, err)

	pct := decimal.NewFromInt(10)
	_, err = env.services.Budgets.Update(ctx, b.ID, finance.BudgetChanges{AutoSavePercentage: &pct})
	require.NoError(t, err)

	expenses, err := env.services.Expenses.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, expenses)
}

// =============================================================================
// UTILIZATION ALERT TESTS
// =============================================================================

func TestBudgetAlerts_FireOnUpwardCrossingsOnly(t *testing.T) {
	// GIVEN: A 100 budget
	// WHEN: Expenses push spent to 80, then 90, then 100
	// THEN: One 80% alert on the first crossing, silence inside the band,
	//       one 100% alert on the second crossing

	env := newTestEnv(t, true)
	ctx := context.Background()

	b, err := env.services.Budgets.Create(ctx, finance.BudgetInput{
		Name: "Groceries", Category: "Food", Amount: money(100),
	})
	require.NoError(t, err)

	_, err = env.services.Expenses.Create(ctx, finance.ExpenseInput{
		Amount: money(80), Category: "Food", BudgetID: b.ID,
	})
	require.NoError(t, err)
	require.Len(t, env.alerts.budget, 1)
	assert.Equal(t, 80, env.alerts.budget[0].Threshold)

	_, err = env.services.Expenses.Create(ctx, finance.ExpenseInput{
		Amount: money(10), Category: "Food", BudgetID: b.ID,
	})
	require.NoError(t, err)
	assert.Len(t, env.alerts.budget, 1, "no re-fire inside the 80-100 band")

	_, err = env.services.Expenses.Create(ctx, finance.ExpenseInput{
		Amount: money(10), Category: "Food", BudgetID: b.ID,
	})
	require.NoError(t, err)
	require.Len(t, env.alerts.budget, 2)
	assert.Equal(t, 100, env.alerts.budget[1].Threshold)
}

func TestBudgetAlerts_DownwardMoveStaysQuiet(t *testing.T) {
	// GIVEN: A 100 budget sitting at 90 spent (80% alert already fired)
	// WHEN: The expense shrinks and utilization drops below 80%, then climbs
	//       back over it
	// THEN: The drop is silent and the re-crossing fires a fresh 80% alert

	env := newTestEnv(t, true)
	ctx := context.Background()

	b, err := env.services.Budgets.Create(ctx, finance.BudgetInput{
		Name: "Groceries", Category: "Food", Amount: money(100),
	})
	require.NoError(t, err)
	e, err := env.services.Expenses.Create(ctx, finance.ExpenseInput{
		Amount: money(90), Category: "Food", BudgetID: b.ID,
	})
	require.NoError(t, err)
	require.Len(t, env.alerts.budget, 1)

	down := money(50)
	_, err = env.services.Expenses.Update(ctx, e.ID, finance.ExpenseChanges{Amount: &down})
	require.NoError(t, err)
	assert.Len(t, env.alerts.budget, 1, "downward move must not alert")

	up := money(85)
	_, err = env.services.Expenses.Update(ctx, e.ID, finance.ExpenseChanges{Amount: &up})
	require.NoError(t, err)
	require.Len(t, env.alerts.budget, 2)
	assert.Equal(t, 80, env.alerts.budget[1].Threshold)
}

// =============================================================================
// DELETE TESTS
// =============================================================================

func TestBudgetDelete_Absent_IsNoOp(t *testing.T) {
	// GIVEN: No budget with the given id
	// WHEN: A delete is attempted
	// THEN: Success, nothing queued

	env := newTestEnv(t, true)

	require.NoError(t, env.services.Budgets.Delete(context.Background(), "nope"))
	assert.Empty(t, env.queueItems(t))
	assert.Zero(t, env.budGW.deletes)
}

func TestBudgetDelete_Confirmed_Online_HitsBackend(t *testing.T) {
	// GIVEN: A confirmed budget and an online device
	// WHEN: The budget is deleted
	// THEN: The backend delete runs synchronously and nothing is queued

	env := newTestEnv(t, true)
	ctx := context.Background()

	b, err := env.services.Budgets.Create(ctx, finance.BudgetInput{
		Name: "Transport", Category: "Travel", Amount: money(300),
	})
	require.NoError(t, err)
	require.Equal(t, syncer.OriginRemote, b.Origin)

	require.NoError(t, env.services.Budgets.Delete(ctx, b.ID))

	assert.Equal(t, 1, env.budGW.deletes)
	assert.Empty(t, env.queueItems(t))

	stored, err := env.store.GetBudget(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}
