/*
expense.go - Expense service: the primary mutation path of the app

PURPOSE:
  Single point of mutation for expenses. Every create/update/delete
  writes the local store first, mirrors to the backend when online,
  defers to the sync queue otherwise, and then reconciles the entities
  an expense touches: its budget's spent total and the current amounts
  of any linked savings goals.

SIDE-EFFECT RULES:
  - A budget-linked expense moves the budget's spent total by its
    amount. Updates apply the DIFFERENCE between old and new values;
    moving an expense between budgets is two separate adjustments
    (full subtract from the old, full add to the new), never one net
    delta, because two different budgets are involved.
  - An expense carrying a savings contribution moves each linked goal's
    current amount and appends a contribution record. Milestones
    re-evaluate after every movement.
  - Auto-save expenses (IsAutomatedSaving) never adjust their budget's
    spent total: the budget already carries that value as its savings
    allocation, and skipping the adjustment is also what keeps the
    budget -> expense -> budget cascade from looping.

SEE ALSO:
  - budget.go: adjustSpent, the budget half of the reconciliation
  - savings.go: applyContribution / reverseContributions
*/
package finance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soffoalbert/buzo-sync/syncer"
)

// =============================================================================
// INPUTS
// =============================================================================

// ExpenseInput is the caller-supplied part of a new expense.
type ExpenseInput struct {
	Amount           Money
	Category         string
	Date             time.Time
	Description      string
	PaymentMethod    string
	ReceiptImagePath string

	BudgetID            string
	LinkedSavingsGoals  []string
	SavingsContribution Money
	IsAutomatedSaving   bool
}

// ExpenseChanges is a partial update; nil fields keep their value.
type ExpenseChanges struct {
	Amount              *Money
	Category            *string
	Date                *time.Time
	Description         *string
	PaymentMethod       *string
	ReceiptImagePath    *string
	BudgetID            *string // set to "" to unlink
	LinkedSavingsGoals  *[]string
	SavingsContribution *Money
}

// =============================================================================
// EXPENSE SERVICE
// =============================================================================

type ExpenseService struct {
	core    *core
	budgets *BudgetService
	savings *SavingsService
	logger  *slog.Logger
	mu      sync.Mutex
}

// Get returns the local copy of an expense, nil when absent.
func (s *ExpenseService) Get(ctx context.Context, id string) (*Expense, error) {
	e, err := s.core.deps.Store.GetExpense(ctx, id)
	if err != nil {
		return nil, &syncer.StorageError{Op: "load", Key: "expenses", Err: err}
	}
	return e, nil
}

// List returns the user's expenses from the local store.
func (s *ExpenseService) List(ctx context.Context) ([]Expense, error) {
	userID, err := s.core.userID(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.core.deps.Store.ListExpenses(ctx, userID)
	if err != nil {
		return nil, &syncer.StorageError{Op: "load", Key: "expenses", Err: err}
	}
	return list, nil
}

// Create records a new expense. The caller gets the local copy back
// immediately; remote confirmation happens synchronously when the device
// is online and through the queue otherwise.
func (s *ExpenseService) Create(ctx context.Context, input ExpenseInput) (*Expense, error) {
	e, err := s.createLocked(ctx, input)
	if err != nil {
		return nil, err
	}

	effects := s.reconcile(ctx, nil, e)
	logEffects(ctx, s.logger, effects)
	s.core.fireInsight(ctx, s.logger, e.UserID, "expense.created")
	return e, nil
}

func (s *ExpenseService) createLocked(ctx context.Context, input ExpenseInput) (*Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, err := s.core.userID(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	date := input.Date
	if date.IsZero() {
		date = now
	}
	e := Expense{
		Entity: Entity{
			ID:        uuid.NewString(),
			UserID:    userID,
			Origin:    syncer.OriginLocal,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Amount:              input.Amount,
		Category:            input.Category,
		Date:                date,
		Description:         input.Description,
		PaymentMethod:       input.PaymentMethod,
		ReceiptImagePath:    input.ReceiptImagePath,
		BudgetID:            input.BudgetID,
		LinkedSavingsGoals:  append([]string(nil), input.LinkedSavingsGoals...),
		SavingsContribution: input.SavingsContribution,
		IsAutomatedSaving:   input.IsAutomatedSaving,
	}

	deferred := true
	if s.core.online(ctx) && s.core.deps.Expenses != nil {
		created, rerr := s.core.deps.Expenses.Create(ctx, &e)
		switch {
		case rerr == nil:
			e = *created
			e.Origin = syncer.OriginRemote
			deferred = false
		case syncer.IsDuplicateKey(rerr):
			// A retried create already landed; adopt the remote copy.
			existing, gerr := s.core.deps.Expenses.GetByID(ctx, e.ID)
			if gerr == nil && existing != nil {
				e = *existing
				e.Origin = syncer.OriginRemote
				deferred = false
			} else {
				s.logger.WarnContext(ctx, "duplicate-key recovery fetch failed",
					"expense_id", e.ID, "error", gerr)
			}
		default:
			s.logger.InfoContext(ctx, "remote create failed, deferring to queue",
				"expense_id", e.ID, "error", rerr)
		}
	}

	if err := s.core.deps.Store.SaveExpense(ctx, e); err != nil {
		return nil, &syncer.StorageError{Op: "save", Key: "expenses", Err: err}
	}
	if deferred {
		if err := s.core.enqueue(ctx, syncer.OpCreate, syncer.KindExpense,
			e.ID, userID, e, syncer.CreatePriority(syncer.KindExpense)); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

// Update applies a partial change. Remote mirroring is skipped entirely
// for entities the backend has not confirmed yet: the pending create in
// the queue absorbs the new payload instead.
func (s *ExpenseService) Update(ctx context.Context, id string, changes ExpenseChanges) (*Expense, error) {
	old, updated, err := s.updateLocked(ctx, id, changes)
	if err != nil {
		return nil, err
	}

	effects := s.reconcile(ctx, old, updated)
	logEffects(ctx, s.logger, effects)
	s.core.fireInsight(ctx, s.logger, updated.UserID, "expense.updated")
	return updated, nil
}

func (s *ExpenseService) updateLocked(ctx context.Context, id string, changes ExpenseChanges) (*Expense, *Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.core.deps.Store.GetExpense(ctx, id)
	if err != nil {
		return nil, nil, &syncer.StorageError{Op: "load", Key: "expenses", Err: err}
	}
	if current == nil {
		return nil, nil, syncer.ErrNotFoundLocal
	}
	old := *current
	old.LinkedSavingsGoals = append([]string(nil), current.LinkedSavingsGoals...)

	e := *current
	applyExpenseChanges(&e, changes)
	e.UpdatedAt = time.Now().UTC()

	if err := s.core.deps.Store.SaveExpense(ctx, e); err != nil {
		return nil, nil, &syncer.StorageError{Op: "save", Key: "expenses", Err: err}
	}
	if err := s.mirrorUpdate(ctx, &e); err != nil {
		return nil, nil, err
	}
	return &old, &e, nil
}

// mirrorUpdate pushes an updated entity remote or defers it.
func (s *ExpenseService) mirrorUpdate(ctx context.Context, e *Expense) error {
	if !e.Origin.Confirmed() {
		// Nothing on the backend yet; the pending create absorbs this.
		return s.core.enqueue(ctx, syncer.OpUpdate, syncer.KindExpense,
			e.ID, e.UserID, e, syncer.PriorityUpdate)
	}
	if s.core.online(ctx) && s.core.deps.Expenses != nil {
		_, err := s.core.deps.Expenses.Update(ctx, e)
		if err == nil {
			return nil
		}
		if syncer.IsNotFound(err) {
			// Remote copy is gone; local state wins on the next create or
			// stays local-only. Converged enough.
			s.logger.InfoContext(ctx, "remote copy missing on update, proceeding",
				"expense_id", e.ID)
			return nil
		}
		s.logger.InfoContext(ctx, "remote update failed, deferring to queue",
			"expense_id", e.ID, "error", err)
	}
	return s.core.enqueue(ctx, syncer.OpUpdate, syncer.KindExpense,
		e.ID, e.UserID, e, syncer.PriorityUpdate)
}

// Delete removes an expense and reverses its side effects. Deleting an
// absent expense is a no-op success.
func (s *ExpenseService) Delete(ctx context.Context, id string) error {
	old, err := s.deleteLocked(ctx, id)
	if err != nil || old == nil {
		return err
	}

	effects := s.reconcile(ctx, old, nil)
	logEffects(ctx, s.logger, effects)
	s.core.fireInsight(ctx, s.logger, old.UserID, "expense.deleted")
	return nil
}

func (s *ExpenseService) deleteLocked(ctx context.Context, id string) (*Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.core.deps.Store.GetExpense(ctx, id)
	if err != nil {
		return nil, &syncer.StorageError{Op: "load", Key: "expenses", Err: err}
	}
	if current == nil {
		return nil, nil // already deleted
	}

	if err := s.core.deps.Store.DeleteExpense(ctx, id); err != nil {
		return nil, &syncer.StorageError{Op: "delete", Key: "expenses", Err: err}
	}

	if !current.Origin.Confirmed() {
		// Never reached the backend; the delete cancels the pending create.
		return current, s.core.enqueue(ctx, syncer.OpDelete, syncer.KindExpense,
			id, current.UserID, deletePayload{ID: id}, syncer.PriorityDelete)
	}
	if s.core.online(ctx) && s.core.deps.Expenses != nil {
		err := s.core.deps.Expenses.Delete(ctx, id)
		if err == nil || syncer.IsNotFound(err) {
			return current, nil
		}
		s.logger.InfoContext(ctx, "remote delete failed, deferring to queue",
			"expense_id", id, "error", err)
	}
	return current, s.core.enqueue(ctx, syncer.OpDelete, syncer.KindExpense,
		id, current.UserID, deletePayload{ID: id}, syncer.PriorityDelete)
}

// =============================================================================
// SIDE-EFFECT RECONCILIATION
// =============================================================================

// reconcile applies the cross-entity consequences of an expense change.
// old==nil means create, new==nil means delete. Every adjustment is
// best-effort: failures are recorded, never propagated.
func (s *ExpenseService) reconcile(ctx context.Context, old, new *Expense) []SideEffect {
	var effects []SideEffect
	effects = append(effects, s.reconcileBudget(ctx, old, new)...)
	effects = append(effects, s.reconcileSavings(ctx, old, new)...)
	return effects
}

func (s *ExpenseService) reconcileBudget(ctx context.Context, old, new *Expense) []SideEffect {
	if s.budgets == nil {
		return nil
	}
	// Auto-save expenses are already carried by the budget's savings
	// allocation; counting them as spent would double-book.
	ref := new
	if ref == nil {
		ref = old
	}
	if ref.IsAutomatedSaving {
		return nil
	}

	var effects []SideEffect
	switch {
	case old == nil && new.BudgetID != "":
		effects = append(effects,
			s.budgets.adjustSpent(ctx, new.BudgetID, new.Amount, new.ID, linkExpense))
	case new == nil && old.BudgetID != "":
		effects = append(effects,
			s.budgets.adjustSpent(ctx, old.BudgetID, old.Amount.Neg(), old.ID, unlinkExpense))
	case old != nil && new != nil:
		if old.BudgetID == new.BudgetID {
			if new.BudgetID != "" && !old.Amount.Equal(new.Amount) {
				effects = append(effects,
					s.budgets.adjustSpent(ctx, new.BudgetID, new.Amount.Sub(old.Amount), new.ID, keepLink))
			}
		} else {
			// Two different budgets: two full adjustments, not a net delta.
			if old.BudgetID != "" {
				effects = append(effects,
					s.budgets.adjustSpent(ctx, old.BudgetID, old.Amount.Neg(), old.ID, unlinkExpense))
			}
			if new.BudgetID != "" {
				effects = append(effects,
					s.budgets.adjustSpent(ctx, new.BudgetID, new.Amount, new.ID, linkExpense))
			}
		}
	}
	return effects
}

func (s *ExpenseService) reconcileSavings(ctx context.Context, old, new *Expense) []SideEffect {
	if s.savings == nil {
		return nil
	}
	var effects []SideEffect

	source := SourceManual
	ref := new
	if ref == nil {
		ref = old
	}
	if ref.IsAutomatedSaving {
		source = SourceAutomated
	}
	now := time.Now().UTC()

	switch {
	case old == nil:
		if !new.SavingsContribution.IsPositive() {
			return nil
		}
		for _, goalID := range new.LinkedSavingsGoals {
			effects = append(effects, s.savings.applyContribution(ctx, goalID, SavingContribution{
				Date:      now,
				Amount:    new.SavingsContribution,
				Source:    source,
				ExpenseID: new.ID,
			}))
		}
	case new == nil:
		for _, goalID := range old.LinkedSavingsGoals {
			effects = append(effects, s.savings.reverseContributions(ctx, goalID, old.ID))
		}
	default:
		oldGoals := stringSet(old.LinkedSavingsGoals)
		newGoals := stringSet(new.LinkedSavingsGoals)

		for goalID := range newGoals {
			if oldGoals[goalID] {
				delta := new.SavingsContribution.Sub(old.SavingsContribution)
				if delta.IsZero() {
					continue
				}
				effects = append(effects, s.savings.applyContribution(ctx, goalID, SavingContribution{
					Date:      now,
					Amount:    delta,
					Source:    source,
					ExpenseID: new.ID,
				}))
			} else if new.SavingsContribution.IsPositive() {
				effects = append(effects, s.savings.applyContribution(ctx, goalID, SavingContribution{
					Date:      now,
					Amount:    new.SavingsContribution,
					Source:    source,
					ExpenseID: new.ID,
				}))
			}
		}
		for goalID := range oldGoals {
			if !newGoals[goalID] {
				effects = append(effects, s.savings.reverseContributions(ctx, goalID, old.ID))
			}
		}
	}
	return effects
}

// =============================================================================
// HELPERS
// =============================================================================

func applyExpenseChanges(e *Expense, c ExpenseChanges) {
	if c.Amount != nil {
		e.Amount = *c.Amount
	}
	if c.Category != nil {
		e.Category = *c.Category
	}
	if c.Date != nil {
		e.Date = *c.Date
	}
	if c.Description != nil {
		e.Description = *c.Description
	}
	if c.PaymentMethod != nil {
		e.PaymentMethod = *c.PaymentMethod
	}
	if c.ReceiptImagePath != nil {
		e.ReceiptImagePath = *c.ReceiptImagePath
	}
	if c.BudgetID != nil {
		e.BudgetID = *c.BudgetID
	}
	if c.LinkedSavingsGoals != nil {
		e.LinkedSavingsGoals = append([]string(nil), (*c.LinkedSavingsGoals)...)
	}
	if c.SavingsContribution != nil {
		e.SavingsContribution = *c.SavingsContribution
	}
}

func stringSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}
