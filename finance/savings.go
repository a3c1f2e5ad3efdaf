/*
savings.go - Savings goal service: contributions, milestones, reversals

PURPOSE:
  Single point of mutation for savings goals. Contributions arrive from
  two directions - manual deposits and the expense reconciliation (both
  manual savings expenses and budget auto-save) - and both land in
  applyContribution, so milestone evaluation and alerts live in exactly
  one place.

MILESTONE MONOTONICITY:
  A milestone completes the first time the goal's current amount covers
  its target, gets a completion date, and fires its alert once. It never
  reverts, even when a reversal later drops the balance below the
  target again.

SEE ALSO:
  - types.go: SavingsGoal.ApplyContribution, the arithmetic itself
  - expense.go: reconcileSavings, the caller
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

type MilestoneInput struct {
	Title        string
	TargetAmount Money
}

type SavingsInput struct {
	Title        string
	TargetAmount Money
	TargetDate   *time.Time
	Milestones   []MilestoneInput
}

// SavingsChanges is a partial update; nil fields keep their value.
// CurrentAmount is deliberately absent: balances only move through
// contributions.
type SavingsChanges struct {
	Title        *string
	TargetAmount *Money
	TargetDate   *time.Time
}

// =============================================================================
// SAVINGS SERVICE
// =============================================================================

type SavingsService struct {
	core   *core
	logger *slog.Logger
	mu     sync.Mutex
}

func (s *SavingsService) Get(ctx context.Context, id string) (*SavingsGoal, error) {
	g, err := s.core.deps.Store.GetSavingsGoal(ctx, id)
	if err != nil {
		return nil, &syncer.StorageError{Op: "load", Key: "savings_goals", Err: err}
	}
	return g, nil
}

func (s *SavingsService) List(ctx context.Context) ([]SavingsGoal, error) {
	userID, err := s.core.userID(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.core.deps.Store.ListSavingsGoals(ctx, userID)
	if err != nil {
		return nil, &syncer.StorageError{Op: "load", Key: "savings_goals", Err: err}
	}
	return list, nil
}

// Create records a new goal with zero balance and its milestones.
func (s *SavingsService) Create(ctx context.Context, input SavingsInput) (*SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, err := s.core.userID(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	g := SavingsGoal{
		Entity: Entity{
			ID:        uuid.NewString(),
			UserID:    userID,
			Origin:    syncer.OriginLocal,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Title:        input.Title,
		TargetAmount: input.TargetAmount,
		TargetDate:   input.TargetDate,
	}
	for _, m := range input.Milestones {
		g.Milestones = append(g.Milestones, Milestone{
			ID:           uuid.NewString(),
			Title:        m.Title,
			TargetAmount: m.TargetAmount,
		})
	}

	deferred := true
	if s.core.online(ctx) && s.core.deps.Savings != nil {
		created, rerr := s.core.deps.Savings.Create(ctx, &g)
		switch {
		case rerr == nil:
			g = *created
			g.Origin = syncer.OriginRemote
			deferred = false
		case syncer.IsDuplicateKey(rerr):
			existing, gerr := s.core.deps.Savings.GetByID(ctx, g.ID)
			if gerr == nil && existing != nil {
				g = *existing
				g.Origin = syncer.OriginRemote
				deferred = false
			}
		default:
			s.logger.InfoContext(ctx, "remote create failed, deferring to queue",
				"goal_id", g.ID, "error", rerr)
		}
	}

	if err := s.core.deps.Store.SaveSavingsGoal(ctx, g); err != nil {
		return nil, &syncer.StorageError{Op: "save", Key: "savings_goals", Err: err}
	}
	if deferred {
		if err := s.core.enqueue(ctx, syncer.OpCreate, syncer.KindSavingsGoal,
			g.ID, userID, g, syncer.CreatePriority(syncer.KindSavingsGoal)); err != nil {
			return nil, err
		}
	}
	return &g, nil
}

// Update applies a partial change to the goal's descriptive fields.
func (s *SavingsService) Update(ctx context.Context, id string, changes SavingsChanges) (*SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.core.deps.Store.GetSavingsGoal(ctx, id)
	if err != nil {
		return nil, &syncer.StorageError{Op: "load", Key: "savings_goals", Err: err}
	}
	if current == nil {
		return nil, syncer.ErrNotFoundLocal
	}

	g := *current
	if changes.Title != nil {
		g.Title = *changes.Title
	}
	if changes.TargetAmount != nil {
		g.TargetAmount = *changes.TargetAmount
	}
	if changes.TargetDate != nil {
		g.TargetDate = changes.TargetDate
	}
	g.UpdatedAt = time.Now().UTC()

	if err := s.core.deps.Store.SaveSavingsGoal(ctx, g); err != nil {
		return nil, &syncer.StorageError{Op: "save", Key: "savings_goals", Err: err}
	}
	if err := s.mirrorUpdate(ctx, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Delete removes a goal. Absent is a no-op success.
func (s *SavingsService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.core.deps.Store.GetSavingsGoal(ctx, id)
	if err != nil {
		return &syncer.StorageError{Op: "load", Key: "savings_goals", Err: err}
	}
	if current == nil {
		return nil
	}

	if err := s.core.deps.Store.DeleteSavingsGoal(ctx, id); err != nil {
		return &syncer.StorageError{Op: "delete", Key: "savings_goals", Err: err}
	}

	if !current.Origin.Confirmed() {
		return s.core.enqueue(ctx, syncer.OpDelete, syncer.KindSavingsGoal,
			id, current.UserID, deletePayload{ID: id}, syncer.PriorityDelete)
	}
	if s.core.online(ctx) && s.core.deps.Savings != nil {
		err := s.core.deps.Savings.Delete(ctx, id)
		if err == nil || syncer.IsNotFound(err) {
			return nil
		}
		s.logger.InfoContext(ctx, "remote delete failed, deferring to queue",
			"goal_id", id, "error", err)
	}
	return s.core.enqueue(ctx, syncer.OpDelete, syncer.KindSavingsGoal,
		id, current.UserID, deletePayload{ID: id}, syncer.PriorityDelete)
}

// Contribute is the manual-deposit entry point: it applies a contribution
// outside of any expense, e.g. from a one-off transfer in the app.
func (s *SavingsService) Contribute(ctx context.Context, goalID string, amount Money) (*SavingsGoal, error) {
	if _, err := s.core.userID(ctx); err != nil {
		return nil, err
	}

	effect := s.applyContribution(ctx, goalID, SavingContribution{
		Date:   time.Now().UTC(),
		Amount: amount,
		Source: SourceManual,
	})
	if effect.Err != nil {
		return nil, effect.Err
	}
	return s.Get(ctx, goalID)
}

// =============================================================================
// CONTRIBUTION PATH - Shared by manual deposits and expense reconciliation
// =============================================================================

// applyContribution moves a contribution into the goal and handles every
// consequence: history record, milestone completion, persistence, remote
// mirror, milestone and progress alerts.
func (s *SavingsService) applyContribution(ctx context.Context, goalID string, c SavingContribution) SideEffect {
	effect := SideEffect{Kind: syncer.KindSavingsGoal, EntityID: goalID, Action: "apply-contribution"}

	s.mu.Lock()
	g, err := s.core.deps.Store.GetSavingsGoal(ctx, goalID)
	if err != nil {
		s.mu.Unlock()
		effect.Err = &syncer.StorageError{Op: "load", Key: "savings_goals", Err: err}
		return effect
	}
	if g == nil {
		s.mu.Unlock()
		effect.Err = syncer.ErrNotFoundLocal
		return effect
	}

	reachedBefore := g.Reached()
	completed := g.ApplyContribution(c)
	g.UpdatedAt = time.Now().UTC()

	if err := s.core.deps.Store.SaveSavingsGoal(ctx, *g); err != nil {
		s.mu.Unlock()
		effect.Err = &syncer.StorageError{Op: "save", Key: "savings_goals", Err: err}
		return effect
	}
	if err := s.mirrorUpdate(ctx, g); err != nil {
		effect.Err = err
	}
	s.mu.Unlock()

	s.fireAlerts(ctx, g, completed, reachedBefore)
	return effect
}

// reverseContributions backs out everything a deleted (or unlinked)
// expense had contributed to the goal: the net total of its history
// entries is subtracted and a reversal record appended. Milestones stay
// as they are; completion is one-way.
func (s *SavingsService) reverseContributions(ctx context.Context, goalID, expenseID string) SideEffect {
	effect := SideEffect{Kind: syncer.KindSavingsGoal, EntityID: goalID, Action: "reverse-contributions"}

	s.mu.Lock()
	g, err := s.core.deps.Store.GetSavingsGoal(ctx, goalID)
	if err != nil {
		s.mu.Unlock()
		effect.Err = &syncer.StorageError{Op: "load", Key: "savings_goals", Err: err}
		return effect
	}
	if g == nil {
		s.mu.Unlock()
		effect.Err = syncer.ErrNotFoundLocal
		return effect
	}

	var net Money
	source := SourceManual
	for _, rec := range g.SavingHistory {
		if rec.ExpenseID == expenseID {
			net = net.Add(rec.Amount)
			source = rec.Source
		}
	}
	if net.IsZero() {
		s.mu.Unlock()
		return effect
	}

	g.CurrentAmount = g.CurrentAmount.Sub(net)
	g.SavingHistory = append(g.SavingHistory, SavingContribution{
		Date:      time.Now().UTC(),
		Amount:    net.Neg(),
		Source:    source,
		ExpenseID: expenseID,
	})
	g.UpdatedAt = time.Now().UTC()

	if err := s.core.deps.Store.SaveSavingsGoal(ctx, *g); err != nil {
		s.mu.Unlock()
		effect.Err = &syncer.StorageError{Op: "save", Key: "savings_goals", Err: err}
		return effect
	}
	if err := s.mirrorUpdate(ctx, g); err != nil {
		effect.Err = err
	}
	s.mu.Unlock()
	return effect
}

func (s *SavingsService) mirrorUpdate(ctx context.Context, g *SavingsGoal) error {
	if !g.Origin.Confirmed() {
		return s.core.enqueue(ctx, syncer.OpUpdate, syncer.KindSavingsGoal,
			g.ID, g.UserID, g, syncer.PriorityUpdate)
	}
	if s.core.online(ctx) && s.core.deps.Savings != nil {
		_, err := s.core.deps.Savings.Update(ctx, g)
		if err == nil {
			return nil
		}
		if syncer.IsNotFound(err) {
			s.logger.InfoContext(ctx, "remote copy missing on update, proceeding",
				"goal_id", g.ID)
			return nil
		}
		s.logger.InfoContext(ctx, "remote update failed, deferring to queue",
			"goal_id", g.ID, "error", err)
	}
	return s.core.enqueue(ctx, syncer.OpUpdate, syncer.KindSavingsGoal,
		g.ID, g.UserID, g, syncer.PriorityUpdate)
}

// fireAlerts delivers milestone alerts (one per newly completed
// milestone) and the goal-reached progress alert, all fire-and-forget.
func (s *SavingsService) fireAlerts(ctx context.Context, g *SavingsGoal, completed []Milestone, reachedBefore bool) {
	if s.core.deps.Alerts == nil {
		return
	}
	for _, m := range completed {
		err := s.core.deps.Alerts.SendMilestoneAlert(ctx, MilestoneAlert{
			UserID:    g.UserID,
			GoalID:    g.ID,
			GoalTitle: g.Title,
			Milestone: m,
		})
		if err != nil {
			s.logger.DebugContext(ctx, "milestone alert failed",
				"goal_id", g.ID, "milestone_id", m.ID, "error", err)
		}
	}
	if !reachedBefore && g.Reached() {
		err := s.core.deps.Alerts.SendSavingsProgressAlert(ctx, SavingsProgressAlert{
			UserID:        g.UserID,
			GoalID:        g.ID,
			Title:         g.Title,
			CurrentAmount: g.CurrentAmount,
			TargetAmount:  g.TargetAmount,
		})
		if err != nil {
			s.logger.DebugContext(ctx, "savings progress alert failed",
				"goal_id", g.ID, "error", err)
		}
	}
}
