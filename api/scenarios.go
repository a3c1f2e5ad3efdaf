/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the local store with
	realistic data for testing and demos. Each scenario drives the real
	services, so everything it creates flows through the same local-first
	write path (and, offline, the same queue) as live traffic.

AVAILABLE SCENARIOS:

	fresh-start:       Clean store with one budget, one goal, a few expenses
	offline-backlog:   A day of offline activity parked in the sync queue
	auto-save-cascade: Budget auto-save feeding a linked savings goal

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Optionally force connectivity for the scenario's story
 3. Create entities through the services

USAGE VIA API:

	POST /api/scenarios/load
	{"id": "offline-backlog"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: entity and sync endpoints the scenarios set up for
  - finance/service.go: the services the loaders drive
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/soffoalbert/buzo-sync/finance"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-start",
		Name:        "Fresh Start",
		Description: "A clean month: one budget, one savings goal, a few expenses",
	},
	{
		ID:          "offline-backlog",
		Name:        "Offline Backlog",
		Description: "Connectivity forced offline with a day of activity queued; flip online and sync to drain it",
	},
	{
		ID:          "auto-save-cascade",
		Name:        "Auto-Save Cascade",
		Description: "Budget auto-save routing a share of the allocation into a linked goal with milestones",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:   h.currentScenario,
		Name: h.currentScenario,
	})
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}

	var err error
	switch req.ID {
	case "fresh-start":
		err = h.loadFreshStart(ctx)
	case "offline-backlog":
		err = h.loadOfflineBacklog(ctx)
	case "auto-save-cascade":
		err = h.loadAutoSaveCascade(ctx)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario: %s", req.ID), nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ID
	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.ID})
}

// ResetData clears all local data and the current scenario marker.
func (h *Handler) ResetData(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.Conn.Clear()
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadFreshStart creates a small, clean data set in auto connectivity.
func (h *Handler) loadFreshStart(ctx context.Context) error {
	h.Conn.Clear()

	groceries, err := h.Services.Budgets.Create(ctx, finance.BudgetInput{
		Name:     "Groceries",
		Category: "Food",
		Amount:   finance.NewMoneyFromInt(600),
	})
	if err != nil {
		return err
	}

	if _, err := h.Services.Savings.Create(ctx, finance.SavingsInput{
		Title:        "Emergency Fund",
		TargetAmount: finance.NewMoneyFromInt(5000),
		Milestones: []finance.MilestoneInput{
			{Title: "First thousand", TargetAmount: finance.NewMoneyFromInt(1000)},
			{Title: "Halfway", TargetAmount: finance.NewMoneyFromInt(2500)},
		},
	}); err != nil {
		return err
	}

	now := time.Now()
	samples := []finance.ExpenseInput{
		{Amount: finance.NewMoney(84.50), Category: "Food", Date: now.AddDate(0, 0, -3),
			Description: "Weekly shop", PaymentMethod: "card", BudgetID: groceries.ID},
		{Amount: finance.NewMoney(12.90), Category: "Food", Date: now.AddDate(0, 0, -1),
			Description: "Lunch", PaymentMethod: "cash", BudgetID: groceries.ID},
		{Amount: finance.NewMoney(39.99), Category: "Entertainment", Date: now.AddDate(0, 0, -2),
			Description: "Streaming annual plan", PaymentMethod: "card"},
	}
	for _, input := range samples {
		if _, err := h.Services.Expenses.Create(ctx, input); err != nil {
			return err
		}
	}
	return nil
}

// loadOfflineBacklog forces connectivity off and records a day of
// activity, leaving everything parked in the queue. The connectivity
// stays forced offline so the backlog is visible until the user flips
// it back.
func (h *Handler) loadOfflineBacklog(ctx context.Context) error {
	h.Conn.Force(false)

	transport, err := h.Services.Budgets.Create(ctx, finance.BudgetInput{
		Name:     "Transport",
		Category: "Travel",
		Amount:   finance.NewMoneyFromInt(250),
	})
	if err != nil {
		return err
	}

	goal, err := h.Services.Savings.Create(ctx, finance.SavingsInput{
		Title:        "Holiday",
		TargetAmount: finance.NewMoneyFromInt(1200),
	})
	if err != nil {
		return err
	}

	now := time.Now()
	day := []finance.ExpenseInput{
		{Amount: finance.NewMoney(3.20), Category: "Travel", Date: now,
			Description: "Bus fare", PaymentMethod: "card", BudgetID: transport.ID},
		{Amount: finance.NewMoney(18.00), Category: "Travel", Date: now,
			Description: "Fuel top-up", PaymentMethod: "card", BudgetID: transport.ID},
		{Amount: finance.NewMoney(50.00), Category: "Savings", Date: now,
			Description: "Holiday deposit", LinkedSavingsGoals: []string{goal.ID},
			SavingsContribution: finance.NewMoney(50.00)},
	}
	for _, input := range day {
		if _, err := h.Services.Expenses.Create(ctx, input); err != nil {
			return err
		}
	}

	// One edit on a queued expense, to show coalescing in the queue view.
	expenses, err := h.Services.Expenses.List(ctx)
	if err != nil {
		return err
	}
	for _, e := range expenses {
		if e.Description == "Fuel top-up" {
			amount := finance.NewMoney(21.50)
			if _, err := h.Services.Expenses.Update(ctx, e.ID, finance.ExpenseChanges{
				Amount: &amount,
			}); err != nil {
				return err
			}
			break
		}
	}
	return nil
}

// loadAutoSaveCascade sets up a goal-linked budget and raises its
// auto-save share so the allocation cascades into the goal.
func (h *Handler) loadAutoSaveCascade(ctx context.Context) error {
	h.Conn.Clear()

	goal, err := h.Services.Savings.Create(ctx, finance.SavingsInput{
		Title:        "New Laptop",
		TargetAmount: finance.NewMoneyFromInt(1500),
		Milestones: []finance.MilestoneInput{
			{Title: "Deposit", TargetAmount: finance.NewMoneyFromInt(100)},
			{Title: "Halfway", TargetAmount: finance.NewMoneyFromInt(750)},
		},
	})
	if err != nil {
		return err
	}

	budget, err := h.Services.Budgets.Create(ctx, finance.BudgetInput{
		Name:               "Monthly Salary",
		Category:           "Income",
		Amount:             finance.NewMoneyFromInt(2000),
		LinkedSavingsGoals: []string{goal.ID},
	})
	if err != nil {
		return err
	}

	// Raising the share from zero triggers the cascade: a synthetic
	// automated expense lands and the goal receives the allocation.
	pct := decimal.NewFromInt(10)
	if _, err := h.Services.Budgets.Update(ctx, budget.ID, finance.BudgetChanges{
		AutoSavePercentage: &pct,
	}); err != nil {
		return err
	}
	return nil
}
