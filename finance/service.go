/*
service.go - Shared service plumbing and cross-entity side-effect records

PURPOSE:
  Wires the three entity services over their collaborators and defines
  what they have in common: the user-id capability, the online/offline
  branch, queue deferral, and the explicit side-effect result records
  that make the "side effects never fail the primary mutation" contract
  visible.

LOCKING:
  Each service serializes its own mutations with one mutex. Side effects
  always run AFTER the primary mutation's lock is released, so a cascade
  (expense -> budget -> goal, or budget -> synthetic expense -> goal)
  never holds two service locks at once.

SEE ALSO:
  - expense.go / budget.go / savings.go: the services themselves
  - notify/: dispatcher implementations for the alert interfaces
*/
package finance

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/soffoalbert/buzo-sync/syncer"
)

// =============================================================================
// ALERTS - Fire-and-forget collaborators owned by the app shell
// =============================================================================

// BudgetAlert fires when a budget crosses a utilization threshold.
type BudgetAlert struct {
	UserID    string
	BudgetID  string
	Name      string
	Spent     Money
	Amount    Money
	Threshold int // percent crossed: 80 or 100
}

// SavingsProgressAlert fires when a goal reaches its target.
type SavingsProgressAlert struct {
	UserID        string
	GoalID        string
	Title         string
	CurrentAmount Money
	TargetAmount  Money
}

// MilestoneAlert fires exactly once per completed milestone.
type MilestoneAlert struct {
	UserID    string
	GoalID    string
	GoalTitle string
	Milestone Milestone
}

// AlertDispatcher delivers notifications. Failures are logged and
// discarded; they must never abort the mutation that triggered them.
type AlertDispatcher interface {
	SendBudgetAlert(ctx context.Context, a BudgetAlert) error
	SendSavingsProgressAlert(ctx context.Context, a SavingsProgressAlert) error
	SendMilestoneAlert(ctx context.Context, a MilestoneAlert) error
}

// InsightGenerator asks the advisor backend for fresh insight after a
// mutation. Best effort; failures swallowed.
type InsightGenerator interface {
	GenerateInsight(ctx context.Context, userID, event string) error
}

// =============================================================================
// SIDE EFFECTS - Explicit, logged, never propagated
// =============================================================================

// SideEffect records one secondary mutation attempted on behalf of a
// primary one. A non-nil Err means that adjustment was lost; the primary
// mutation still succeeds.
type SideEffect struct {
	Kind     syncer.EntityKind
	EntityID string
	Action   string
	Err      error
}

// =============================================================================
// DEPS / SERVICES
// =============================================================================

// Deps is everything the services need. Alerts and Insights may be nil.
type Deps struct {
	Store    Store
	Queue    *syncer.Queue
	Online   syncer.Connectivity
	Identity syncer.Identity

	Expenses ExpenseGateway
	Budgets  BudgetGateway
	Savings  SavingsGateway

	Alerts   AlertDispatcher
	Insights InsightGenerator
	Logger   *slog.Logger
}

// Services bundles the three entity services, cross-wired for side
// effects.
type Services struct {
	Expenses *ExpenseService
	Budgets  *BudgetService
	Savings  *SavingsService
}

// NewServices constructs and cross-wires the services.
func NewServices(d Deps) *Services {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	c := &core{deps: d}

	savings := &SavingsService{core: c, logger: d.Logger.With("component", "savings")}
	budgets := &BudgetService{core: c, logger: d.Logger.With("component", "budgets")}
	expenses := &ExpenseService{core: c, logger: d.Logger.With("component", "expenses")}

	expenses.budgets = budgets
	expenses.savings = savings
	budgets.expenses = expenses

	return &Services{Expenses: expenses, Budgets: budgets, Savings: savings}
}

// core holds the collaborators shared by all services.
type core struct {
	deps Deps
}

// userID resolves the authenticated user, ErrUnauthenticated when absent.
func (c *core) userID(ctx context.Context) (string, error) {
	if c.deps.Identity == nil {
		return "", syncer.ErrUnauthenticated
	}
	id, err := c.deps.Identity.CurrentUserID(ctx)
	if err != nil || id == "" {
		return "", syncer.ErrUnauthenticated
	}
	return id, nil
}

// online gates the synchronous-remote path. Every call re-queries.
func (c *core) online(ctx context.Context) bool {
	return c.deps.Online != nil && c.deps.Online.Online(ctx)
}

// enqueue defers a mutation to the queue. payload is the full entity for
// create/update and the bare id for delete.
func (c *core) enqueue(ctx context.Context, op syncer.Operation, kind syncer.EntityKind, entityID, userID string, payload any, priority int) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = c.deps.Queue.Enqueue(ctx, syncer.QueueItem{
		Op:       op,
		Kind:     kind,
		EntityID: entityID,
		UserID:   userID,
		Payload:  raw,
		Priority: priority,
	})
	return err
}

// deletePayload is the delete-op queue payload.
type deletePayload struct {
	ID string `json:"id"`
}

// logEffects logs failed side effects and returns the list unchanged.
func logEffects(ctx context.Context, logger *slog.Logger, effects []SideEffect) []SideEffect {
	for _, e := range effects {
		if e.Err != nil {
			logger.WarnContext(ctx, "side effect lost",
				"kind", e.Kind, "entity_id", e.EntityID,
				"action", e.Action, "error", e.Err)
		}
	}
	return effects
}

// fireInsight asks for a fresh advisor insight, best effort.
func (c *core) fireInsight(ctx context.Context, logger *slog.Logger, userID, event string) {
	if c.deps.Insights == nil {
		return
	}
	if err := c.deps.Insights.GenerateInsight(ctx, userID, event); err != nil {
		logger.DebugContext(ctx, "insight generation failed", "event", event, "error", err)
	}
}
