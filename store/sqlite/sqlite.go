/*
Package sqlite provides the SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface the app needs from one database
  file: the finance entity collections, the durable sync queue, and the
  persisted sync state singleton. One file on device is the point - the
  queue and the entities it references survive restarts together.

INTERFACES IMPLEMENTED:
  finance.Store:     expenses, budgets, savings goals
  syncer.QueueStore: durable queue item persistence
  syncer.StateStore: the sync status singleton

KEY TABLES:
  expenses:      local expense records, canonical for reads
  budgets:       local budget records with derived remaining amount
  savings_goals: goals with milestones and history as JSON columns
  sync_queue:    pending remote operations; rowid preserves enqueue order
  sync_state:    single row (id=1) holding the last observed sync status

ENQUEUE ORDER:
  ListQueueItems orders by rowid. The upsert keeps the existing rowid on
  conflict, so a coalesced item holds its original place in line.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of WAL mode. The app is a
  single process; the mutex keeps multi-statement operations coherent.

USAGE:
  store, err := sqlite.New("./data/buzo.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - finance/store.go: entity store interface
  - syncer/store.go: queue and state store interfaces
  - finance/store/memory.go, syncer/store/memory.go: in-memory counterparts
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/soffoalbert/buzo-sync/finance"
	"github.com/soffoalbert/buzo-sync/syncer"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Expenses
	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		origin TEXT NOT NULL,
		amount TEXT NOT NULL,
		category TEXT NOT NULL,
		date TEXT NOT NULL,
		description TEXT,
		payment_method TEXT,
		receipt_image_path TEXT,
		budget_id TEXT,
		linked_savings_goals_json TEXT,
		savings_contribution TEXT NOT NULL DEFAULT '0',
		is_automated_saving BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_expenses_user
		ON expenses(user_id);
	CREATE INDEX IF NOT EXISTS idx_expenses_budget
		ON expenses(budget_id) WHERE budget_id IS NOT NULL;

	-- Budgets
	CREATE TABLE IF NOT EXISTS budgets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		origin TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		amount TEXT NOT NULL,
		spent TEXT NOT NULL DEFAULT '0',
		savings_allocation TEXT NOT NULL DEFAULT '0',
		remaining_amount TEXT NOT NULL DEFAULT '0',
		auto_save_percentage TEXT NOT NULL DEFAULT '0',
		linked_expenses_json TEXT,
		linked_savings_goals_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_budgets_user
		ON budgets(user_id);

	-- Savings goals (milestones and history ride along as JSON)
	CREATE TABLE IF NOT EXISTS savings_goals (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		origin TEXT NOT NULL,
		title TEXT NOT NULL,
		target_amount TEXT NOT NULL,
		current_amount TEXT NOT NULL DEFAULT '0',
		target_date TEXT,
		milestones_json TEXT,
		saving_history_json TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_savings_goals_user
		ON savings_goals(user_id);

	-- Sync queue. rowid is the enqueue order; the id upsert must keep it,
	-- so coalesced rewrites use ON CONFLICT DO UPDATE, never REPLACE.
	CREATE TABLE IF NOT EXISTS sync_queue (
		id TEXT PRIMARY KEY,
		op TEXT NOT NULL,
		kind TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		payload TEXT,
		priority INTEGER NOT NULL DEFAULT 0,
		attempts INTEGER NOT NULL DEFAULT 0,
		enqueued_at TEXT NOT NULL,
		last_attempt TEXT,
		last_error TEXT,
		dead BOOLEAN DEFAULT FALSE
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_queue_entity
		ON sync_queue(kind, entity_id);
	CREATE INDEX IF NOT EXISTS idx_sync_queue_dead
		ON sync_queue(dead);

	-- Sync state singleton
	CREATE TABLE IF NOT EXISTS sync_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		is_syncing BOOLEAN DEFAULT FALSE,
		last_sync_attempt TEXT,
		last_successful_sync TEXT,
		pending_count INTEGER DEFAULT 0,
		failed_count INTEGER DEFAULT 0,
		sync_progress INTEGER DEFAULT 0,
		error TEXT
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EXPENSE STORE (finance.Store interface)
// =============================================================================

// SaveExpense inserts or replaces an expense.
func (s *Store) SaveExpense(ctx context.Context, e finance.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	goalsJSON, _ := json.Marshal(e.LinkedSavingsGoals)

	query := `
		INSERT INTO expenses
		(id, user_id, origin, amount, category, date, description, payment_method,
		 receipt_image_path, budget_id, linked_savings_goals_json, savings_contribution,
		 is_automated_saving, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			origin = excluded.origin,
			amount = excluded.amount,
			category = excluded.category,
			date = excluded.date,
			description = excluded.description,
			payment_method = excluded.payment_method,
			receipt_image_path = excluded.receipt_image_path,
			budget_id = excluded.budget_id,
			linked_savings_goals_json = excluded.linked_savings_goals_json,
			savings_contribution = excluded.savings_contribution,
			is_automated_saving = excluded.is_automated_saving,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.UserID, string(e.Origin),
		e.Amount.String(), e.Category, e.Date.Format(time.RFC3339),
		nullString(e.Description), nullString(e.PaymentMethod), nullString(e.ReceiptImagePath),
		nullString(e.BudgetID), string(goalsJSON), e.SavingsContribution.String(),
		e.IsAutomatedSaving,
		e.CreatedAt.Format(time.RFC3339), e.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save expense: %w", err)
	}
	return nil
}

// GetExpense retrieves an expense by ID, nil when absent.
func (s *Store) GetExpense(ctx context.Context, id string) (*finance.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.queryExpenses(ctx, expenseColumns+" FROM expenses WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ListExpenses returns all expenses for a user.
func (s *Store) ListExpenses(ctx context.Context, userID string) ([]finance.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryExpenses(ctx,
		expenseColumns+" FROM expenses WHERE user_id = ? ORDER BY date DESC, created_at DESC",
		userID)
}

// DeleteExpense removes an expense. Unknown ids are a no-op.
func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", id)
	return err
}

const expenseColumns = `
	SELECT id, user_id, origin, amount, category, date, description, payment_method,
	       receipt_image_path, budget_id, linked_savings_goals_json, savings_contribution,
	       is_automated_saving, created_at, updated_at`

func (s *Store) queryExpenses(ctx context.Context, query string, args ...any) ([]finance.Expense, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []finance.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func scanExpense(rows *sql.Rows) (finance.Expense, error) {
	var (
		e            finance.Expense
		origin       string
		amount       string
		date         string
		contribution string
		description  sql.NullString
		payment      sql.NullString
		receipt      sql.NullString
		budgetID     sql.NullString
		goalsJSON    sql.NullString
		createdAt    string
		updatedAt    string
	)

	err := rows.Scan(
		&e.ID, &e.UserID, &origin, &amount, &e.Category, &date,
		&description, &payment, &receipt, &budgetID, &goalsJSON,
		&contribution, &e.IsAutomatedSaving, &createdAt, &updatedAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan expense: %w", err)
	}

	e.Origin = syncer.Origin(origin)
	e.Amount = finance.MustParseMoney(amount)
	e.SavingsContribution = finance.MustParseMoney(contribution)
	e.Date, _ = time.Parse(time.RFC3339, date)
	e.Description = description.String
	e.PaymentMethod = payment.String
	e.ReceiptImagePath = receipt.String
	e.BudgetID = budgetID.String
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	if goalsJSON.Valid && goalsJSON.String != "" {
		json.Unmarshal([]byte(goalsJSON.String), &e.LinkedSavingsGoals)
	}

	return e, nil
}

// =============================================================================
// BUDGET STORE (finance.Store interface)
// =============================================================================

// SaveBudget inserts or replaces a budget.
func (s *Store) SaveBudget(ctx context.Context, b finance.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expensesJSON, _ := json.Marshal(b.LinkedExpenses)
	goalsJSON, _ := json.Marshal(b.LinkedSavingsGoals)

	query := `
		INSERT INTO budgets
		(id, user_id, origin, name, category, amount, spent, savings_allocation,
		 remaining_amount, auto_save_percentage, linked_expenses_json,
		 linked_savings_goals_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			origin = excluded.origin,
			name = excluded.name,
			category = excluded.category,
			amount = excluded.amount,
			spent = excluded.spent,
			savings_allocation = excluded.savings_allocation,
			remaining_amount = excluded.remaining_amount,
			auto_save_percentage = excluded.auto_save_percentage,
			linked_expenses_json = excluded.linked_expenses_json,
			linked_savings_goals_json = excluded.linked_savings_goals_json,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		b.ID, b.UserID, string(b.Origin), b.Name, b.Category,
		b.Amount.String(), b.Spent.String(), b.SavingsAllocation.String(),
		b.RemainingAmount.String(), b.AutoSavePercentage.String(),
		string(expensesJSON), string(goalsJSON),
		b.CreatedAt.Format(time.RFC3339), b.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save budget: %w", err)
	}
	return nil
}

// GetBudget retrieves a budget by ID, nil when absent.
func (s *Store) GetBudget(ctx context.Context, id string) (*finance.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.queryBudgets(ctx, budgetColumns+" FROM budgets WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ListBudgets returns all budgets for a user.
func (s *Store) ListBudgets(ctx context.Context, userID string) ([]finance.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryBudgets(ctx,
		budgetColumns+" FROM budgets WHERE user_id = ? ORDER BY name",
		userID)
}

// DeleteBudget removes a budget. Unknown ids are a no-op.
func (s *Store) DeleteBudget(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM budgets WHERE id = ?", id)
	return err
}

const budgetColumns = `
	SELECT id, user_id, origin, name, category, amount, spent, savings_allocation,
	       remaining_amount, auto_save_percentage, linked_expenses_json,
	       linked_savings_goals_json, created_at, updated_at`

func (s *Store) queryBudgets(ctx context.Context, query string, args ...any) ([]finance.Budget, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query budgets: %w", err)
	}
	defer rows.Close()

	var budgets []finance.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

func scanBudget(rows *sql.Rows) (finance.Budget, error) {
	var (
		b            finance.Budget
		origin       string
		amount       string
		spent        string
		allocation   string
		remaining    string
		autoSavePct  string
		expensesJSON sql.NullString
		goalsJSON    sql.NullString
		createdAt    string
		updatedAt    string
	)

	err := rows.Scan(
		&b.ID, &b.UserID, &origin, &b.Name, &b.Category,
		&amount, &spent, &allocation, &remaining, &autoSavePct,
		&expensesJSON, &goalsJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		return b, fmt.Errorf("failed to scan budget: %w", err)
	}

	b.Origin = syncer.Origin(origin)
	b.Amount = finance.MustParseMoney(amount)
	b.Spent = finance.MustParseMoney(spent)
	b.SavingsAllocation = finance.MustParseMoney(allocation)
	b.RemainingAmount = finance.MustParseMoney(remaining)
	b.AutoSavePercentage = finance.MustParseMoney(autoSavePct).Value
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	b.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	if expensesJSON.Valid && expensesJSON.String != "" {
		json.Unmarshal([]byte(expensesJSON.String), &b.LinkedExpenses)
	}
	if goalsJSON.Valid && goalsJSON.String != "" {
		json.Unmarshal([]byte(goalsJSON.String), &b.LinkedSavingsGoals)
	}

	return b, nil
}

// =============================================================================
// SAVINGS GOAL STORE (finance.Store interface)
// =============================================================================

// SaveSavingsGoal inserts or replaces a savings goal.
func (s *Store) SaveSavingsGoal(ctx context.Context, g finance.SavingsGoal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	milestonesJSON, _ := json.Marshal(g.Milestones)
	historyJSON, _ := json.Marshal(g.SavingHistory)

	var targetDate *string
	if g.TargetDate != nil {
		t := g.TargetDate.Format(time.RFC3339)
		targetDate = &t
	}

	query := `
		INSERT INTO savings_goals
		(id, user_id, origin, title, target_amount, current_amount, target_date,
		 milestones_json, saving_history_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			origin = excluded.origin,
			title = excluded.title,
			target_amount = excluded.target_amount,
			current_amount = excluded.current_amount,
			target_date = excluded.target_date,
			milestones_json = excluded.milestones_json,
			saving_history_json = excluded.saving_history_json,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		g.ID, g.UserID, string(g.Origin), g.Title,
		g.TargetAmount.String(), g.CurrentAmount.String(), targetDate,
		string(milestonesJSON), string(historyJSON),
		g.CreatedAt.Format(time.RFC3339), g.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save savings goal: %w", err)
	}
	return nil
}

// GetSavingsGoal retrieves a goal by ID, nil when absent.
func (s *Store) GetSavingsGoal(ctx context.Context, id string) (*finance.SavingsGoal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.queryGoals(ctx, goalColumns+" FROM savings_goals WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ListSavingsGoals returns all goals for a user.
func (s *Store) ListSavingsGoals(ctx context.Context, userID string) ([]finance.SavingsGoal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryGoals(ctx,
		goalColumns+" FROM savings_goals WHERE user_id = ? ORDER BY title",
		userID)
}

// DeleteSavingsGoal removes a goal. Unknown ids are a no-op.
func (s *Store) DeleteSavingsGoal(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM savings_goals WHERE id = ?", id)
	return err
}

const goalColumns = `
	SELECT id, user_id, origin, title, target_amount, current_amount, target_date,
	       milestones_json, saving_history_json, created_at, updated_at`

func (s *Store) queryGoals(ctx context.Context, query string, args ...any) ([]finance.SavingsGoal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query savings goals: %w", err)
	}
	defer rows.Close()

	var goals []finance.SavingsGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func scanGoal(rows *sql.Rows) (finance.SavingsGoal, error) {
	var (
		g              finance.SavingsGoal
		origin         string
		target         string
		current        string
		targetDate     sql.NullString
		milestonesJSON sql.NullString
		historyJSON    sql.NullString
		createdAt      string
		updatedAt      string
	)

	err := rows.Scan(
		&g.ID, &g.UserID, &origin, &g.Title, &target, &current,
		&targetDate, &milestonesJSON, &historyJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		return g, fmt.Errorf("failed to scan savings goal: %w", err)
	}

	g.Origin = syncer.Origin(origin)
	g.TargetAmount = finance.MustParseMoney(target)
	g.CurrentAmount = finance.MustParseMoney(current)
	g.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	g.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	if targetDate.Valid {
		t, _ := time.Parse(time.RFC3339, targetDate.String)
		g.TargetDate = &t
	}
	if milestonesJSON.Valid && milestonesJSON.String != "" {
		json.Unmarshal([]byte(milestonesJSON.String), &g.Milestones)
	}
	if historyJSON.Valid && historyJSON.String != "" {
		json.Unmarshal([]byte(historyJSON.String), &g.SavingHistory)
	}

	return g, nil
}

// =============================================================================
// QUEUE STORE (syncer.QueueStore interface)
// =============================================================================

// PutQueueItem inserts or replaces a queue item. The conflict update keeps
// the original rowid, so coalesced items hold their enqueue position.
func (s *Store) PutQueueItem(ctx context.Context, item syncer.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastAttempt *string
	if item.LastAttempt != nil {
		t := item.LastAttempt.Format(time.RFC3339)
		lastAttempt = &t
	}

	query := `
		INSERT INTO sync_queue
		(id, op, kind, entity_id, user_id, payload, priority, attempts,
		 enqueued_at, last_attempt, last_error, dead)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			op = excluded.op,
			kind = excluded.kind,
			entity_id = excluded.entity_id,
			payload = excluded.payload,
			priority = excluded.priority,
			attempts = excluded.attempts,
			last_attempt = excluded.last_attempt,
			last_error = excluded.last_error,
			dead = excluded.dead
	`

	_, err := s.db.ExecContext(ctx, query,
		item.ID, string(item.Op), string(item.Kind), item.EntityID, item.UserID,
		string(item.Payload), item.Priority, item.Attempts,
		item.EnqueuedAt.Format(time.RFC3339), lastAttempt,
		nullString(item.LastError), item.Dead,
	)
	if err != nil {
		return fmt.Errorf("failed to save queue item: %w", err)
	}
	return nil
}

// DeleteQueueItems removes items by id. Unknown ids are ignored.
func (s *Store) DeleteQueueItems(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, "DELETE FROM sync_queue WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete queue item: %w", err)
		}
	}

	return tx.Commit()
}

// GetQueueItem retrieves one item by id, nil when absent.
func (s *Store) GetQueueItem(ctx context.Context, id string) (*syncer.QueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items, err := s.queryQueueItems(ctx, queueColumns+" FROM sync_queue WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// ListQueueItems returns every item, dead included, in enqueue order.
func (s *Store) ListQueueItems(ctx context.Context) ([]syncer.QueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryQueueItems(ctx, queueColumns+" FROM sync_queue ORDER BY rowid ASC")
}

// GetQueueItemByEntity returns the item targeting the entity, nil when none.
func (s *Store) GetQueueItemByEntity(ctx context.Context, kind syncer.EntityKind, entityID string) (*syncer.QueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items, err := s.queryQueueItems(ctx,
		queueColumns+" FROM sync_queue WHERE kind = ? AND entity_id = ?",
		string(kind), entityID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

const queueColumns = `
	SELECT id, op, kind, entity_id, user_id, payload, priority, attempts,
	       enqueued_at, last_attempt, last_error, dead`

func (s *Store) queryQueueItems(ctx context.Context, query string, args ...any) ([]syncer.QueueItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue: %w", err)
	}
	defer rows.Close()

	var items []syncer.QueueItem
	for rows.Next() {
		var (
			item        syncer.QueueItem
			op          string
			kind        string
			payload     sql.NullString
			enqueuedAt  string
			lastAttempt sql.NullString
			lastError   sql.NullString
		)

		if err := rows.Scan(
			&item.ID, &op, &kind, &item.EntityID, &item.UserID, &payload,
			&item.Priority, &item.Attempts, &enqueuedAt, &lastAttempt,
			&lastError, &item.Dead,
		); err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}

		item.Op = syncer.Operation(op)
		item.Kind = syncer.EntityKind(kind)
		if payload.Valid && payload.String != "" {
			item.Payload = json.RawMessage(payload.String)
		}
		item.EnqueuedAt, _ = time.Parse(time.RFC3339, enqueuedAt)
		if lastAttempt.Valid {
			t, _ := time.Parse(time.RFC3339, lastAttempt.String)
			item.LastAttempt = &t
		}
		item.LastError = lastError.String

		items = append(items, item)
	}
	return items, rows.Err()
}

// =============================================================================
// STATE STORE (syncer.StateStore interface)
// =============================================================================

// SaveSyncState overwrites the status singleton.
func (s *Store) SaveSyncState(ctx context.Context, status syncer.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastSuccess *string
	if status.LastSuccessfulSync != nil {
		t := status.LastSuccessfulSync.Format(time.RFC3339)
		lastSuccess = &t
	}

	query := `
		INSERT INTO sync_state
		(id, is_syncing, last_sync_attempt, last_successful_sync,
		 pending_count, failed_count, sync_progress, error)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			is_syncing = excluded.is_syncing,
			last_sync_attempt = excluded.last_sync_attempt,
			last_successful_sync = excluded.last_successful_sync,
			pending_count = excluded.pending_count,
			failed_count = excluded.failed_count,
			sync_progress = excluded.sync_progress,
			error = excluded.error
	`

	_, err := s.db.ExecContext(ctx, query,
		status.IsSyncing,
		status.LastSyncAttempt.Format(time.RFC3339),
		lastSuccess,
		status.PendingCount, status.FailedCount, status.SyncProgress,
		nullString(status.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}
	return nil
}

// LoadSyncState returns the stored status, nil when never saved.
func (s *Store) LoadSyncState(ctx context.Context) (*syncer.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		status      syncer.Status
		lastAttempt sql.NullString
		lastSuccess sql.NullString
		errText     sql.NullString
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT is_syncing, last_sync_attempt, last_successful_sync,
		        pending_count, failed_count, sync_progress, error
		 FROM sync_state WHERE id = 1`,
	).Scan(&status.IsSyncing, &lastAttempt, &lastSuccess,
		&status.PendingCount, &status.FailedCount, &status.SyncProgress, &errText)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sync state: %w", err)
	}

	if lastAttempt.Valid {
		status.LastSyncAttempt, _ = time.Parse(time.RFC3339, lastAttempt.String)
	}
	if lastSuccess.Valid {
		t, _ := time.Parse(time.RFC3339, lastSuccess.String)
		status.LastSuccessfulSync = &t
	}
	status.Error = errText.String

	return &status, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"expenses", "budgets", "savings_goals", "sync_queue", "sync_state"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var (
	_ finance.Store     = (*Store)(nil)
	_ syncer.QueueStore = (*Store)(nil)
	_ syncer.StateStore = (*Store)(nil)
)
