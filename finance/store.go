/*
store.go - Persistence and remote contracts for the finance domain

PURPOSE:
  Defines the local store the services write through and the typed remote
  gateways they mirror to. The local store is one durable collection per
  entity kind; the gateways are the per-table faces of the hosted backend,
  already translated into the syncer error taxonomy.

IMPLEMENTATIONS:
  - finance/store/memory.go: in-memory store for tests and demos
  - store/sqlite/sqlite.go: durable store (entities + queue + sync state)
  - remote/gateway.go: HTTP gateways against the hosted backend

SEE ALSO:
  - service.go: the services wired over these contracts
*/
package finance

import "context"

// =============================================================================
// LOCAL STORE - One durable collection per entity kind
// =============================================================================

// Store is the local persistence the services write through before any
// remote attempt. There is no cross-collection transaction: an entity
// write can land while the matching queue write fails, and callers
// surface that window as a storage failure.
type Store interface {
	SaveExpense(ctx context.Context, e Expense) error
	GetExpense(ctx context.Context, id string) (*Expense, error)
	ListExpenses(ctx context.Context, userID string) ([]Expense, error)
	DeleteExpense(ctx context.Context, id string) error

	SaveBudget(ctx context.Context, b Budget) error
	GetBudget(ctx context.Context, id string) (*Budget, error)
	ListBudgets(ctx context.Context, userID string) ([]Budget, error)
	DeleteBudget(ctx context.Context, id string) error

	SaveSavingsGoal(ctx context.Context, g SavingsGoal) error
	GetSavingsGoal(ctx context.Context, id string) (*SavingsGoal, error)
	ListSavingsGoals(ctx context.Context, userID string) ([]SavingsGoal, error)
	DeleteSavingsGoal(ctx context.Context, id string) error

	// Reset clears every collection. Demo scenarios and tests only.
	Reset(ctx context.Context) error
}

// =============================================================================
// TYPED REMOTE GATEWAYS - Synchronous mirror path
// =============================================================================

// ExpenseGateway is the remote expenses table. Implementations translate
// backend responses into the syncer error taxonomy before returning.
type ExpenseGateway interface {
	Create(ctx context.Context, e *Expense) (*Expense, error)
	Update(ctx context.Context, e *Expense) (*Expense, error)
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*Expense, error)
}

// BudgetGateway is the remote budgets table.
type BudgetGateway interface {
	Create(ctx context.Context, b *Budget) (*Budget, error)
	Update(ctx context.Context, b *Budget) (*Budget, error)
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*Budget, error)
}

// SavingsGateway is the remote savings goals table.
type SavingsGateway interface {
	Create(ctx context.Context, g *SavingsGoal) (*SavingsGoal, error)
	Update(ctx context.Context, g *SavingsGoal) (*SavingsGoal, error)
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*SavingsGoal, error)
}
