/*
gateway.go - Per-table gateways: typed for the services, raw for the drain

PURPOSE:
  Each entity table gets two faces over the same wire code:
  - a typed gateway (finance.ExpenseGateway etc.) the services call on
    the synchronous online path, and
  - a syncer.Gateway adapter the processor dispatches queue items to,
    working on the opaque JSON payloads the queue stores.

CONVENTIONS:
  Writes send Prefer: return=representation, so every mutation comes
  back with the stored row and callers adopt backend-side defaults. An
  empty representation on update/delete means no row matched the id
  filter, which is the not-found signal PostgREST hides behind a 200.

SEE ALSO:
  - client.go: transport and error translation
  - rows.go: the row codecs used here
*/
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/soffoalbert/buzo-sync/finance"
	"github.com/soffoalbert/buzo-sync/syncer"
)

func idFilter(id string) url.Values {
	q := url.Values{}
	q.Set("id", "eq."+id)
	return q
}

func notFound(op syncer.Operation, kind syncer.EntityKind, id string) error {
	return &syncer.GatewayError{Op: op, Kind: kind, EntityID: id, Err: syncer.ErrNotFound}
}

// =============================================================================
// EXPENSE GATEWAY
// =============================================================================

type ExpenseGateway struct {
	c *Client
}

func NewExpenseGateway(c *Client) *ExpenseGateway { return &ExpenseGateway{c: c} }

func (g *ExpenseGateway) Create(ctx context.Context, e *finance.Expense) (*finance.Expense, error) {
	var rows []expenseRow
	err := g.c.do(ctx, syncer.OpCreate, syncer.KindExpense, e.ID,
		http.MethodPost, "expenses", nil, toExpenseRow(e), &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return e, nil
	}
	return fromExpenseRow(rows[0]), nil
}

func (g *ExpenseGateway) Update(ctx context.Context, e *finance.Expense) (*finance.Expense, error) {
	var rows []expenseRow
	err := g.c.do(ctx, syncer.OpUpdate, syncer.KindExpense, e.ID,
		http.MethodPatch, "expenses", idFilter(e.ID), toExpenseRow(e), &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, notFound(syncer.OpUpdate, syncer.KindExpense, e.ID)
	}
	return fromExpenseRow(rows[0]), nil
}

func (g *ExpenseGateway) Delete(ctx context.Context, id string) error {
	var rows []expenseRow
	err := g.c.do(ctx, syncer.OpDelete, syncer.KindExpense, id,
		http.MethodDelete, "expenses", idFilter(id), nil, &rows)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return notFound(syncer.OpDelete, syncer.KindExpense, id)
	}
	return nil
}

func (g *ExpenseGateway) GetByID(ctx context.Context, id string) (*finance.Expense, error) {
	var rows []expenseRow
	err := g.c.do(ctx, syncer.OpUpdate, syncer.KindExpense, id,
		http.MethodGet, "expenses", idFilter(id), nil, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, notFound(syncer.OpUpdate, syncer.KindExpense, id)
	}
	return fromExpenseRow(rows[0]), nil
}

// =============================================================================
// BUDGET GATEWAY
// =============================================================================

type BudgetGateway struct {
	c *Client
}

func NewBudgetGateway(c *Client) *BudgetGateway { return &BudgetGateway{c: c} }

func (g *BudgetGateway) Create(ctx context.Context, b *finance.Budget) (*finance.Budget, error) {
	var rows []budgetRow
	err := g.c.do(ctx, syncer.OpCreate, syncer.KindBudget, b.ID,
		http.MethodPost, "budgets", nil, toBudgetRow(b), &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return b, nil
	}
	return fromBudgetRow(rows[0]), nil
}

func (g *BudgetGateway) Update(ctx context.Context, b *finance.Budget) (*finance.Budget, error) {
	var rows []budgetRow
	err := g.c.do(ctx, syncer.OpUpdate, syncer.KindBudget, b.ID,
		http.MethodPatch, "budgets", idFilter(b.ID), toBudgetRow(b), &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, notFound(syncer.OpUpdate, syncer.KindBudget, b.ID)
	}
	return fromBudgetRow(rows[0]), nil
}

func (g *BudgetGateway) Delete(ctx context.Context, id string) error {
	var rows []budgetRow
	err := g.c.do(ctx, syncer.OpDelete, syncer.KindBudget, id,
		http.MethodDelete, "budgets", idFilter(id), nil, &rows)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return notFound(syncer.OpDelete, syncer.KindBudget, id)
	}
	return nil
}

func (g *BudgetGateway) GetByID(ctx context.Context, id string) (*finance.Budget, error) {
	var rows []budgetRow
	err := g.c.do(ctx, syncer.OpUpdate, syncer.KindBudget, id,
		http.MethodGet, "budgets", idFilter(id), nil, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, notFound(syncer.OpUpdate, syncer.KindBudget, id)
	}
	return fromBudgetRow(rows[0]), nil
}

// =============================================================================
// SAVINGS GATEWAY
// =============================================================================

type SavingsGateway struct {
	c *Client
}

func NewSavingsGateway(c *Client) *SavingsGateway { return &SavingsGateway{c: c} }

func (g *SavingsGateway) Create(ctx context.Context, goal *finance.SavingsGoal) (*finance.SavingsGoal, error) {
	var rows []goalRow
	err := g.c.do(ctx, syncer.OpCreate, syncer.KindSavingsGoal, goal.ID,
		http.MethodPost, "savings_goals", nil, toGoalRow(goal), &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return goal, nil
	}
	return fromGoalRow(rows[0]), nil
}

func (g *SavingsGateway) Update(ctx context.Context, goal *finance.SavingsGoal) (*finance.SavingsGoal, error) {
	var rows []goalRow
	err := g.c.do(ctx, syncer.OpUpdate, syncer.KindSavingsGoal, goal.ID,
		http.MethodPatch, "savings_goals", idFilter(goal.ID), toGoalRow(goal), &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, notFound(syncer.OpUpdate, syncer.KindSavingsGoal, goal.ID)
	}
	return fromGoalRow(rows[0]), nil
}

func (g *SavingsGateway) Delete(ctx context.Context, id string) error {
	var rows []goalRow
	err := g.c.do(ctx, syncer.OpDelete, syncer.KindSavingsGoal, id,
		http.MethodDelete, "savings_goals", idFilter(id), nil, &rows)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return notFound(syncer.OpDelete, syncer.KindSavingsGoal, id)
	}
	return nil
}

func (g *SavingsGateway) GetByID(ctx context.Context, id string) (*finance.SavingsGoal, error) {
	var rows []goalRow
	err := g.c.do(ctx, syncer.OpUpdate, syncer.KindSavingsGoal, id,
		http.MethodGet, "savings_goals", idFilter(id), nil, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, notFound(syncer.OpUpdate, syncer.KindSavingsGoal, id)
	}
	return fromGoalRow(rows[0]), nil
}

// =============================================================================
// SYNC ADAPTERS - syncer.Gateway over the typed gateways
// =============================================================================

// SyncGateways returns the processor-facing gateway map. Queue payloads
// are the domain entities' own JSON; each adapter decodes them, reuses
// the typed path, and re-encodes the result.
func SyncGateways(c *Client) syncer.Gateways {
	return syncer.Gateways{
		syncer.KindExpense:     &expenseSync{g: NewExpenseGateway(c), c: c},
		syncer.KindBudget:      &budgetSync{g: NewBudgetGateway(c), c: c},
		syncer.KindSavingsGoal: &savingsSync{g: NewSavingsGateway(c), c: c},
	}
}

func (c *Client) listRaw(ctx context.Context, kind syncer.EntityKind, table string, filter map[string]string) ([]json.RawMessage, error) {
	q := url.Values{}
	for k, v := range filter {
		q.Set(k, "eq."+v)
	}
	var rows []json.RawMessage
	err := c.do(ctx, syncer.OpUpdate, kind, "", http.MethodGet, table, q, nil, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type expenseSync struct {
	g *ExpenseGateway
	c *Client
}

func (a *expenseSync) Create(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var e finance.Expense
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("decode expense payload: %w", err)
	}
	created, err := a.g.Create(ctx, &e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(created)
}

func (a *expenseSync) Update(ctx context.Context, id string, payload json.RawMessage) (json.RawMessage, error) {
	var e finance.Expense
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("decode expense payload: %w", err)
	}
	e.ID = id
	updated, err := a.g.Update(ctx, &e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(updated)
}

func (a *expenseSync) Delete(ctx context.Context, id string) error {
	return a.g.Delete(ctx, id)
}

func (a *expenseSync) GetByID(ctx context.Context, id string) (json.RawMessage, error) {
	e, err := a.g.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

func (a *expenseSync) List(ctx context.Context, filter map[string]string) ([]json.RawMessage, error) {
	return a.c.listRaw(ctx, syncer.KindExpense, "expenses", filter)
}

type budgetSync struct {
	g *BudgetGateway
	c *Client
}

func (a *budgetSync) Create(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var b finance.Budget
	if err := json.Unmarshal(payload, &b); err != nil {
		return nil, fmt.Errorf("decode budget payload: %w", err)
	}
	created, err := a.g.Create(ctx, &b)
	if err != nil {
		return nil, err
	}
	return json.Marshal(created)
}

func (a *budgetSync) Update(ctx context.Context, id string, payload json.RawMessage) (json.RawMessage, error) {
	var b finance.Budget
	if err := json.Unmarshal(payload, &b); err != nil {
		return nil, fmt.Errorf("decode budget payload: %w", err)
	}
	b.ID = id
	updated, err := a.g.Update(ctx, &b)
	if err != nil {
		return nil, err
	}
	return json.Marshal(updated)
}

func (a *budgetSync) Delete(ctx context.Context, id string) error {
	return a.g.Delete(ctx, id)
}

func (a *budgetSync) GetByID(ctx context.Context, id string) (json.RawMessage, error) {
	b, err := a.g.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return json.Marshal(b)
}

func (a *budgetSync) List(ctx context.Context, filter map[string]string) ([]json.RawMessage, error) {
	return a.c.listRaw(ctx, syncer.KindBudget, "budgets", filter)
}

type savingsSync struct {
	g *SavingsGateway
	c *Client
}

func (a *savingsSync) Create(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var g finance.SavingsGoal
	if err := json.Unmarshal(payload, &g); err != nil {
		return nil, fmt.Errorf("decode savings goal payload: %w", err)
	}
	created, err := a.g.Create(ctx, &g)
	if err != nil {
		return nil, err
	}
	return json.Marshal(created)
}

func (a *savingsSync) Update(ctx context.Context, id string, payload json.RawMessage) (json.RawMessage, error) {
	var g finance.SavingsGoal
	if err := json.Unmarshal(payload, &g); err != nil {
		return nil, fmt.Errorf("decode savings goal payload: %w", err)
	}
	g.ID = id
	updated, err := a.g.Update(ctx, &g)
	if err != nil {
		return nil, err
	}
	return json.Marshal(updated)
}

func (a *savingsSync) Delete(ctx context.Context, id string) error {
	return a.g.Delete(ctx, id)
}

func (a *savingsSync) GetByID(ctx context.Context, id string) (json.RawMessage, error) {
	g, err := a.g.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return json.Marshal(g)
}

func (a *savingsSync) List(ctx context.Context, filter map[string]string) ([]json.RawMessage, error) {
	return a.c.listRaw(ctx, syncer.KindSavingsGoal, "savings_goals", filter)
}
