/*
budget.go - Budget service: allocation, spent tracking, auto-save cascade

PURPOSE:
  Single point of mutation for budgets. Besides the usual local-first
  mirror path it owns two pieces of domain arithmetic:

  - adjustSpent: the budget half of the expense reconciliation. Applies
    a spent delta, restores the remaining-amount invariant, and fires a
    utilization alert when the 80% or 100% line is crossed upward.
  - auto-save: a budget with AutoSavePercentage > 0 routes that share of
    its allocation into its linked savings goals. When the allocation
    changes on an update, the service synthesizes an automated expense
    (category "Savings") and runs it through the FULL expense-creation
    path, so the goals move through the exact same code as a manual
    deposit. The synthetic expense is marked IsAutomatedSaving, which is
    what stops the cascade: its budget adjustment is skipped, so it can
    never re-enter auto-save.

SEE ALSO:
  - expense.go: reconcileBudget, the expense half of the adjustment
  - savings.go: where the synthetic expense's contribution lands
*/
package finance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/soffoalbert/buzo-sync/syncer"
)

// =============================================================================
// INPUTS
// =============================================================================

type BudgetInput struct {
	Name               string
	Category           string
	Amount             Money
	AutoSavePercentage decimal.Decimal
	LinkedSavingsGoals []string
}

// BudgetChanges is a partial update; nil fields keep their value.
type BudgetChanges struct {
	Name               *string
	Category           *string
	Amount             *Money
	AutoSavePercentage *decimal.Decimal
	LinkedSavingsGoals *[]string
}

// =============================================================================
// BUDGET SERVICE
// =============================================================================

type BudgetService struct {
	core     *core
	expenses *ExpenseService
	logger   *slog.Logger
	mu       sync.Mutex
}

func (s *BudgetService) Get(ctx context.Context, id string) (*Budget, error) {
	b, err := s.core.deps.Store.GetBudget(ctx, id)
	if err != nil {
		return nil, &syncer.StorageError{Op: "load", Key: "budgets", Err: err}
	}
	return b, nil
}

func (s *BudgetService) List(ctx context.Context) ([]Budget, error) {
	userID, err := s.core.userID(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.core.deps.Store.ListBudgets(ctx, userID)
	if err != nil {
		return nil, &syncer.StorageError{Op: "load", Key: "budgets", Err: err}
	}
	return list, nil
}

// Create records a new budget. The savings allocation is computed from
// the auto-save percentage up front so the remaining-amount invariant
// holds from the first read, but the synthetic-expense cascade only runs
// on updates, when an allocation actually changes.
func (s *BudgetService) Create(ctx context.Context, input BudgetInput) (*Budget, error) {
	s.mu.Lock()

	userID, err := s.core.userID(ctx)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	now := time.Now().UTC()
	b := Budget{
		Entity: Entity{
			ID:        uuid.NewString(),
			UserID:    userID,
			Origin:    syncer.OriginLocal,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Name:               input.Name,
		Category:           input.Category,
		Amount:             input.Amount,
		AutoSavePercentage: input.AutoSavePercentage,
		LinkedSavingsGoals: append([]string(nil), input.LinkedSavingsGoals...),
	}
	if b.AutoSavePercentage.IsPositive() {
		b.SavingsAllocation = autoSaveAllocation(b.Amount, b.AutoSavePercentage)
	}
	b.Recalculate()

	deferred := true
	if s.core.online(ctx) && s.core.deps.Budgets != nil {
		created, rerr := s.core.deps.Budgets.Create(ctx, &b)
		switch {
		case rerr == nil:
			b = *created
			b.Origin = syncer.OriginRemote
			deferred = false
		case syncer.IsDuplicateKey(rerr):
			existing, gerr := s.core.deps.Budgets.GetByID(ctx, b.ID)
			if gerr == nil && existing != nil {
				b = *existing
				b.Origin = syncer.OriginRemote
				deferred = false
			}
		default:
			s.logger.InfoContext(ctx, "remote create failed, deferring to queue",
				"budget_id", b.ID, "error", rerr)
		}
	}

	if err := s.core.deps.Store.SaveBudget(ctx, b); err != nil {
		s.mu.Unlock()
		return nil, &syncer.StorageError{Op: "save", Key: "budgets", Err: err}
	}
	if deferred {
		if err := s.core.enqueue(ctx, syncer.OpCreate, syncer.KindBudget,
			b.ID, userID, b, syncer.CreatePriority(syncer.KindBudget)); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	s.mu.Unlock()

	s.core.fireInsight(ctx, s.logger, userID, "budget.created")
	return &b, nil
}

// Update applies a partial change and re-evaluates auto-save. The
// synthetic savings expense, if any, is created after the budget lock is
// released so the cascade never holds two service locks.
func (s *BudgetService) Update(ctx context.Context, id string, changes BudgetChanges) (*Budget, error) {
	b, allocDelta, err := s.updateLocked(ctx, id, changes)
	if err != nil {
		return nil, err
	}

	if allocDelta.IsPositive() && len(b.LinkedSavingsGoals) > 0 && s.expenses != nil {
		s.runAutoSave(ctx, b)
	}
	s.core.fireInsight(ctx, s.logger, b.UserID, "budget.updated")
	return b, nil
}

func (s *BudgetService) updateLocked(ctx context.Context, id string, changes BudgetChanges) (*Budget, Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.core.deps.Store.GetBudget(ctx, id)
	if err != nil {
		return nil, Money{}, &syncer.StorageError{Op: "load", Key: "budgets", Err: err}
	}
	if current == nil {
		return nil, Money{}, syncer.ErrNotFoundLocal
	}

	b := *current
	if changes.Name != nil {
		b.Name = *changes.Name
	}
	if changes.Category != nil {
		b.Category = *changes.Category
	}
	if changes.Amount != nil {
		b.Amount = *changes.Amount
	}
	if changes.AutoSavePercentage != nil {
		b.AutoSavePercentage = *changes.AutoSavePercentage
	}
	if changes.LinkedSavingsGoals != nil {
		b.LinkedSavingsGoals = append([]string(nil), (*changes.LinkedSavingsGoals)...)
	}

	// Auto-save re-evaluation: the allocation tracks amount * pct / 100.
	// Only the positive part of the change cascades into a synthetic
	// expense; lowering the percentage just frees up remaining amount.
	oldAlloc := current.SavingsAllocation
	if b.AutoSavePercentage.IsPositive() {
		b.SavingsAllocation = autoSaveAllocation(b.Amount, b.AutoSavePercentage)
	} else {
		b.SavingsAllocation = Money{Value: decimal.Zero}
	}
	allocDelta := b.SavingsAllocation.Sub(oldAlloc)

	b.UpdatedAt = time.Now().UTC()
	b.Recalculate()

	if err := s.core.deps.Store.SaveBudget(ctx, b); err != nil {
		return nil, Money{}, &syncer.StorageError{Op: "save", Key: "budgets", Err: err}
	}
	if err := s.mirrorUpdate(ctx, &b); err != nil {
		return nil, Money{}, err
	}
	return &b, allocDelta, nil
}

// runAutoSave synthesizes the automated savings expense for the budget's
// current allocation. Best effort: a failure is logged, the budget update
// has already succeeded.
func (s *BudgetService) runAutoSave(ctx context.Context, b *Budget) {
	_, err := s.expenses.Create(ctx, ExpenseInput{
		Amount:              b.SavingsAllocation,
		Category:            "Savings",
		Description:         "Automated saving from budget " + b.Name,
		BudgetID:            b.ID,
		LinkedSavingsGoals:  b.LinkedSavingsGoals,
		SavingsContribution: b.SavingsAllocation,
		IsAutomatedSaving:   true,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "auto-save expense failed",
			"budget_id", b.ID, "error", err)
	}
}

func (s *BudgetService) mirrorUpdate(ctx context.Context, b *Budget) error {
	if !b.Origin.Confirmed() {
		return s.core.enqueue(ctx, syncer.OpUpdate, syncer.KindBudget,
			b.ID, b.UserID, b, syncer.PriorityUpdate)
	}
	if s.core.online(ctx) && s.core.deps.Budgets != nil {
		_, err := s.core.deps.Budgets.Update(ctx, b)
		if err == nil {
			return nil
		}
		if syncer.IsNotFound(err) {
			s.logger.InfoContext(ctx, "remote copy missing on update, proceeding",
				"budget_id", b.ID)
			return nil
		}
		s.logger.InfoContext(ctx, "remote update failed, deferring to queue",
			"budget_id", b.ID, "error", err)
	}
	return s.core.enqueue(ctx, syncer.OpUpdate, syncer.KindBudget,
		b.ID, b.UserID, b, syncer.PriorityUpdate)
}

// Delete removes a budget. Absent is a no-op success. Linked expenses are
// left in place, merely orphaned from budget arithmetic.
func (s *BudgetService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.core.deps.Store.GetBudget(ctx, id)
	if err != nil {
		return &syncer.StorageError{Op: "load", Key: "budgets", Err: err}
	}
	if current == nil {
		return nil
	}

	if err := s.core.deps.Store.DeleteBudget(ctx, id); err != nil {
		return &syncer.StorageError{Op: "delete", Key: "budgets", Err: err}
	}

	if !current.Origin.Confirmed() {
		return s.core.enqueue(ctx, syncer.OpDelete, syncer.KindBudget,
			id, current.UserID, deletePayload{ID: id}, syncer.PriorityDelete)
	}
	if s.core.online(ctx) && s.core.deps.Budgets != nil {
		err := s.core.deps.Budgets.Delete(ctx, id)
		if err == nil || syncer.IsNotFound(err) {
			return nil
		}
		s.logger.InfoContext(ctx, "remote delete failed, deferring to queue",
			"budget_id", id, "error", err)
	}
	return s.core.enqueue(ctx, syncer.OpDelete, syncer.KindBudget,
		id, current.UserID, deletePayload{ID: id}, syncer.PriorityDelete)
}

// =============================================================================
// SPENT ADJUSTMENT - The budget half of expense reconciliation
// =============================================================================

type linkMode int

const (
	keepLink linkMode = iota
	linkExpense
	unlinkExpense
)

// adjustSpent moves the budget's spent total by delta, maintains the
// expense link, restores the remaining-amount invariant, persists and
// mirrors the budget. It is the entry point expense reconciliation uses,
// and deliberately does NOT re-evaluate auto-save.
func (s *BudgetService) adjustSpent(ctx context.Context, budgetID string, delta Money, expenseID string, mode linkMode) SideEffect {
	effect := SideEffect{Kind: syncer.KindBudget, EntityID: budgetID, Action: "adjust-spent"}

	s.mu.Lock()
	b, err := s.core.deps.Store.GetBudget(ctx, budgetID)
	if err != nil {
		s.mu.Unlock()
		effect.Err = &syncer.StorageError{Op: "load", Key: "budgets", Err: err}
		return effect
	}
	if b == nil {
		s.mu.Unlock()
		effect.Err = syncer.ErrNotFoundLocal
		return effect
	}

	before := b.SpentRatio()
	b.Spent = b.Spent.Add(delta)
	switch mode {
	case linkExpense:
		b.LinkExpense(expenseID)
	case unlinkExpense:
		b.UnlinkExpense(expenseID)
	}
	b.UpdatedAt = time.Now().UTC()
	b.Recalculate()
	after := b.SpentRatio()

	if err := s.core.deps.Store.SaveBudget(ctx, *b); err != nil {
		s.mu.Unlock()
		effect.Err = &syncer.StorageError{Op: "save", Key: "budgets", Err: err}
		return effect
	}
	if err := s.mirrorUpdate(ctx, b); err != nil {
		effect.Err = err
	}
	s.mu.Unlock()

	s.maybeAlert(ctx, b, before, after)
	return effect
}

var (
	warnRatio = decimal.NewFromFloat(0.8)
	fullRatio = decimal.NewFromInt(1)
)

// maybeAlert fires a budget alert when utilization crosses 80% or 100%
// upward. Crossings only, so repeated adjustments inside a band stay
// quiet.
func (s *BudgetService) maybeAlert(ctx context.Context, b *Budget, before, after decimal.Decimal) {
	if s.core.deps.Alerts == nil {
		return
	}
	var threshold int
	switch {
	case before.LessThan(fullRatio) && after.GreaterThanOrEqual(fullRatio):
		threshold = 100
	case before.LessThan(warnRatio) && after.GreaterThanOrEqual(warnRatio):
		threshold = 80
	default:
		return
	}
	err := s.core.deps.Alerts.SendBudgetAlert(ctx, BudgetAlert{
		UserID:    b.UserID,
		BudgetID:  b.ID,
		Name:      b.Name,
		Spent:     b.Spent,
		Amount:    b.Amount,
		Threshold: threshold,
	})
	if err != nil {
		s.logger.DebugContext(ctx, "budget alert failed", "budget_id", b.ID, "error", err)
	}
}

// autoSaveAllocation computes amount * pct / 100.
func autoSaveAllocation(amount Money, pct decimal.Decimal) Money {
	return amount.Mul(pct).Div(decimal.NewFromInt(100))
}
