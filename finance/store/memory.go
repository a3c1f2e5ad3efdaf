// Package store provides Store implementations for the finance domain.
package store

import (
	"context"
	"sync"

	"github.com/soffoalbert/buzo-sync/finance"
)

// =============================================================================
// MEMORY STORE - In-memory entity collections (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	expenses map[string]finance.Expense
	budgets  map[string]finance.Budget
	goals    map[string]finance.SavingsGoal
}

func NewMemory() *Memory {
	m := &Memory{}
	m.reset()
	return m
}

func (m *Memory) reset() {
	m.expenses = make(map[string]finance.Expense)
	m.budgets = make(map[string]finance.Budget)
	m.goals = make(map[string]finance.SavingsGoal)
}

// =============================================================================
// EXPENSES
// =============================================================================

func (m *Memory) SaveExpense(_ context.Context, e finance.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expenses[e.ID] = copyExpense(e)
	return nil
}

func (m *Memory) GetExpense(_ context.Context, id string) (*finance.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.expenses[id]
	if !ok {
		return nil, nil
	}
	cp := copyExpense(e)
	return &cp, nil
}

func (m *Memory) ListExpenses(_ context.Context, userID string) ([]finance.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []finance.Expense
	for _, e := range m.expenses {
		if e.UserID == userID {
			result = append(result, copyExpense(e))
		}
	}
	return result, nil
}

func (m *Memory) DeleteExpense(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.expenses, id)
	return nil
}

// =============================================================================
// BUDGETS
// =============================================================================

func (m *Memory) SaveBudget(_ context.Context, b finance.Budget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budgets[b.ID] = copyBudget(b)
	return nil
}

func (m *Memory) GetBudget(_ context.Context, id string) (*finance.Budget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.budgets[id]
	if !ok {
		return nil, nil
	}
	cp := copyBudget(b)
	return &cp, nil
}

func (m *Memory) ListBudgets(_ context.Context, userID string) ([]finance.Budget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []finance.Budget
	for _, b := range m.budgets {
		if b.UserID == userID {
			result = append(result, copyBudget(b))
		}
	}
	return result, nil
}

func (m *Memory) DeleteBudget(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.budgets, id)
	return nil
}

// =============================================================================
// SAVINGS GOALS
// =============================================================================

func (m *Memory) SaveSavingsGoal(_ context.Context, g finance.SavingsGoal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.goals[g.ID] = copyGoal(g)
	return nil
}

func (m *Memory) GetSavingsGoal(_ context.Context, id string) (*finance.SavingsGoal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.goals[id]
	if !ok {
		return nil, nil
	}
	cp := copyGoal(g)
	return &cp, nil
}

func (m *Memory) ListSavingsGoals(_ context.Context, userID string) ([]finance.SavingsGoal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []finance.SavingsGoal
	for _, g := range m.goals {
		if g.UserID == userID {
			result = append(result, copyGoal(g))
		}
	}
	return result, nil
}

func (m *Memory) DeleteSavingsGoal(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.goals, id)
	return nil
}

// Reset clears every collection.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	return nil
}

// =============================================================================
// DEEP COPIES - Callers never share slices with the store
// =============================================================================

func copyExpense(e finance.Expense) finance.Expense {
	e.LinkedSavingsGoals = append([]string(nil), e.LinkedSavingsGoals...)
	return e
}

func copyBudget(b finance.Budget) finance.Budget {
	b.LinkedExpenses = append([]string(nil), b.LinkedExpenses...)
	b.LinkedSavingsGoals = append([]string(nil), b.LinkedSavingsGoals...)
	return b
}

func copyGoal(g finance.SavingsGoal) finance.SavingsGoal {
	g.Milestones = append([]finance.Milestone(nil), g.Milestones...)
	g.SavingHistory = append([]finance.SavingContribution(nil), g.SavingHistory...)
	return g
}
