/*
handlers.go - HTTP API handlers for the offline-first finance app

PURPOSE:
  Exposes the entity services and the sync engine via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain
  logic. Every entity read answers from the local store, so the API
  works identically online and offline.

ENDPOINTS:
  Expenses:
    GET    /api/expenses               List expenses
    POST   /api/expenses               Record an expense
    GET    /api/expenses/{id}          Get one expense
    PUT    /api/expenses/{id}          Update an expense
    DELETE /api/expenses/{id}          Delete an expense

  Budgets:
    GET    /api/budgets                List budgets
    POST   /api/budgets                Create a budget
    GET    /api/budgets/{id}           Get one budget
    PUT    /api/budgets/{id}           Update a budget
    DELETE /api/budgets/{id}           Delete a budget

  Savings goals:
    GET    /api/savings-goals               List goals
    POST   /api/savings-goals                Create a goal
    GET    /api/savings-goals/{id}           Get one goal
    PUT    /api/savings-goals/{id}           Update a goal
    DELETE /api/savings-goals/{id}           Delete a goal
    POST   /api/savings-goals/{id}/contributions  Deposit into a goal

  Sync:
    GET    /api/sync/status            Current sync status
    POST   /api/sync/now               Trigger a drain pass
    GET    /api/sync/queue             Queue contents
    GET    /api/sync/queue/stats       Queue composition
    POST   /api/sync/queue/{id}/retry  Revive a dead item

  Connectivity:
    GET    /api/connectivity           Current answer and mode
    PUT    /api/connectivity           Force online/offline/auto

  Scenarios:
    GET    /api/scenarios              List demo scenarios
    POST   /api/scenarios/load         Load a demo scenario
    POST   /api/scenarios/reset        Clear all local data

ERROR HANDLING:
  Domain errors map onto HTTP status through the shared taxonomy:
  - 400: Validation errors, invalid input
  - 401: No authenticated user
  - 404: Entity not found locally
  - 409: Duplicate, or a drain already in flight
  - 500: Storage failures, unexpected errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/soffoalbert/buzo-sync/finance"
	"github.com/soffoalbert/buzo-sync/syncer"
)

var hundred = decimal.NewFromInt(100)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Services  *finance.Services
	Queue     *syncer.Queue
	Processor *syncer.Processor
	Store     finance.Store
	Conn      *ConnectivitySwitch

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler over the assembled services.
func NewHandler(services *finance.Services, queue *syncer.Queue, processor *syncer.Processor, store finance.Store, conn *ConnectivitySwitch) *Handler {
	return &Handler{
		Services:  services,
		Queue:     queue,
		Processor: processor,
		Store:     store,
		Conn:      conn,
	}
}

// =============================================================================
// EXPENSE HANDLERS
// =============================================================================

// ListExpenses returns all expenses for the current user.
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := h.Services.Expenses.List(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list expenses", err)
		return
	}
	if expenses == nil {
		expenses = []finance.Expense{}
	}
	writeJSON(w, http.StatusOK, expenses)
}

// GetExpense returns a single expense.
func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	e, err := h.Services.Expenses.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get expense", err)
		return
	}
	if e == nil {
		writeError(w, http.StatusNotFound, "Expense not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// CreateExpense records a new expense.
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req CreateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Category == "" {
		writeError(w, http.StatusBadRequest, "category is required", nil)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be positive", nil)
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use RFC3339 or YYYY-MM-DD)", err)
		return
	}

	e, err := h.Services.Expenses.Create(r.Context(), finance.ExpenseInput{
		Amount:              req.Amount,
		Category:            req.Category,
		Date:                date,
		Description:         req.Description,
		PaymentMethod:       req.PaymentMethod,
		ReceiptImagePath:    req.ReceiptImagePath,
		BudgetID:            req.BudgetID,
		LinkedSavingsGoals:  req.LinkedSavingsGoals,
		SavingsContribution: req.SavingsContribution,
	})
	if err != nil {
		writeDomainError(w, "Failed to create expense", err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// UpdateExpense applies a partial update to an expense.
func (h *Handler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Amount != nil && !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be positive", nil)
		return
	}

	changes := finance.ExpenseChanges{
		Amount:              req.Amount,
		Category:            req.Category,
		Description:         req.Description,
		PaymentMethod:       req.PaymentMethod,
		ReceiptImagePath:    req.ReceiptImagePath,
		BudgetID:            req.BudgetID,
		LinkedSavingsGoals:  req.LinkedSavingsGoals,
		SavingsContribution: req.SavingsContribution,
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date (use RFC3339 or YYYY-MM-DD)", err)
			return
		}
		changes.Date = &date
	}

	e, err := h.Services.Expenses.Update(r.Context(), id, changes)
	if err != nil {
		writeDomainError(w, "Failed to update expense", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// DeleteExpense removes an expense. Deleting an absent expense is a no-op.
func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Services.Expenses.Delete(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete expense", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BUDGET HANDLERS
// =============================================================================

// ListBudgets returns all budgets for the current user.
func (h *Handler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := h.Services.Budgets.List(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list budgets", err)
		return
	}
	if budgets == nil {
		budgets = []finance.Budget{}
	}
	writeJSON(w, http.StatusOK, budgets)
}

// GetBudget returns a single budget.
func (h *Handler) GetBudget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b, err := h.Services.Budgets.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get budget", err)
		return
	}
	if b == nil {
		writeError(w, http.StatusNotFound, "Budget not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// CreateBudget creates a new budget.
func (h *Handler) CreateBudget(w http.ResponseWriter, r *http.Request) {
	var req CreateBudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be positive", nil)
		return
	}
	if req.AutoSavePercentage.IsNegative() || req.AutoSavePercentage.GreaterThan(hundred) {
		writeError(w, http.StatusBadRequest, "autoSavePercentage must be within 0..100", nil)
		return
	}

	b, err := h.Services.Budgets.Create(r.Context(), finance.BudgetInput{
		Name:               req.Name,
		Category:           req.Category,
		Amount:             req.Amount,
		AutoSavePercentage: req.AutoSavePercentage,
		LinkedSavingsGoals: req.LinkedSavingsGoals,
	})
	if err != nil {
		writeDomainError(w, "Failed to create budget", err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// UpdateBudget applies a partial update to a budget. Raising the auto-save
// allocation cascades into the linked goals.
func (h *Handler) UpdateBudget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateBudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Amount != nil && !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be positive", nil)
		return
	}
	if req.AutoSavePercentage != nil &&
		(req.AutoSavePercentage.IsNegative() || req.AutoSavePercentage.GreaterThan(hundred)) {
		writeError(w, http.StatusBadRequest, "autoSavePercentage must be within 0..100", nil)
		return
	}

	b, err := h.Services.Budgets.Update(r.Context(), id, finance.BudgetChanges{
		Name:               req.Name,
		Category:           req.Category,
		Amount:             req.Amount,
		AutoSavePercentage: req.AutoSavePercentage,
		LinkedSavingsGoals: req.LinkedSavingsGoals,
	})
	if err != nil {
		writeDomainError(w, "Failed to update budget", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// DeleteBudget removes a budget.
func (h *Handler) DeleteBudget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Services.Budgets.Delete(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete budget", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SAVINGS GOAL HANDLERS
// =============================================================================

// ListSavingsGoals returns all goals for the current user.
func (h *Handler) ListSavingsGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := h.Services.Savings.List(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list savings goals", err)
		return
	}
	if goals == nil {
		goals = []finance.SavingsGoal{}
	}
	writeJSON(w, http.StatusOK, goals)
}

// GetSavingsGoal returns a single goal.
func (h *Handler) GetSavingsGoal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	g, err := h.Services.Savings.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get savings goal", err)
		return
	}
	if g == nil {
		writeError(w, http.StatusNotFound, "Savings goal not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// CreateSavingsGoal creates a new goal with optional milestones.
func (h *Handler) CreateSavingsGoal(w http.ResponseWriter, r *http.Request) {
	var req CreateSavingsGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required", nil)
		return
	}
	if !req.TargetAmount.IsPositive() {
		writeError(w, http.StatusBadRequest, "targetAmount must be positive", nil)
		return
	}

	input := finance.SavingsInput{
		Title:        req.Title,
		TargetAmount: req.TargetAmount,
	}
	if req.TargetDate != nil {
		d, err := parseDate(*req.TargetDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid targetDate (use RFC3339 or YYYY-MM-DD)", err)
			return
		}
		input.TargetDate = &d
	}
	for _, m := range req.Milestones {
		input.Milestones = append(input.Milestones, finance.MilestoneInput{
			Title:        m.Title,
			TargetAmount: m.TargetAmount,
		})
	}

	g, err := h.Services.Savings.Create(r.Context(), input)
	if err != nil {
		writeDomainError(w, "Failed to create savings goal", err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// UpdateSavingsGoal applies a partial update to a goal.
func (h *Handler) UpdateSavingsGoal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateSavingsGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.TargetAmount != nil && !req.TargetAmount.IsPositive() {
		writeError(w, http.StatusBadRequest, "targetAmount must be positive", nil)
		return
	}

	changes := finance.SavingsChanges{
		Title:        req.Title,
		TargetAmount: req.TargetAmount,
	}
	if req.TargetDate != nil {
		d, err := parseDate(*req.TargetDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid targetDate (use RFC3339 or YYYY-MM-DD)", err)
			return
		}
		changes.TargetDate = &d
	}

	g, err := h.Services.Savings.Update(r.Context(), id, changes)
	if err != nil {
		writeDomainError(w, "Failed to update savings goal", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// DeleteSavingsGoal removes a goal.
func (h *Handler) DeleteSavingsGoal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Services.Savings.Delete(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete savings goal", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Contribute deposits into a goal, re-evaluating milestones.
func (h *Handler) Contribute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ContributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be positive", nil)
		return
	}

	g, err := h.Services.Savings.Contribute(r.Context(), id, req.Amount)
	if err != nil {
		writeDomainError(w, "Failed to contribute", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// =============================================================================
// SYNC HANDLERS
// =============================================================================

// SyncStatus returns the current sync status snapshot.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toSyncStatusDTO(h.Processor.Status()))
}

// SyncNow triggers a drain pass. A pass already in flight answers 409
// without dispatching anything.
func (h *Handler) SyncNow(w http.ResponseWriter, r *http.Request) {
	res, err := h.Processor.ProcessAll(r.Context())
	if err != nil {
		writeDomainError(w, "Sync failed", err)
		return
	}

	dto := SyncResultDTO{
		AlreadyRunning: res.AlreadyRunning,
		Processed:      res.Processed,
		Succeeded:      res.Succeeded,
		Failed:         res.Failed,
		Remaining:      res.Remaining,
	}
	if res.AlreadyRunning {
		writeJSON(w, http.StatusConflict, dto)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// ListQueue returns the queue contents, dead items included.
func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	items, err := h.Queue.List(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list queue", err)
		return
	}
	writeJSON(w, http.StatusOK, toQueueItemDTOs(items))
}

// QueueStats returns the queue composition counters.
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Queue.Stats(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to read queue stats", err)
		return
	}
	writeJSON(w, http.StatusOK, QueueStatsDTO{
		Pending: stats.Pending,
		Failed:  stats.Failed,
		Dead:    stats.Dead,
	})
}

// RetryQueueItem revives a dead item so the next drain picks it up.
func (h *Handler) RetryQueueItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Queue.Retry(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to retry queue item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CONNECTIVITY HANDLERS
// =============================================================================

// GetConnectivity reports the current connectivity answer and mode.
func (h *Handler) GetConnectivity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ConnectivityDTO{
		Online: h.Conn.Online(r.Context()),
		Mode:   h.Conn.Mode(),
	})
}

// SetConnectivity forces the connectivity answer, or restores probing.
func (h *Handler) SetConnectivity(w http.ResponseWriter, r *http.Request) {
	var req ConnectivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	switch strings.ToLower(req.Mode) {
	case "online":
		h.Conn.Force(true)
	case "offline":
		h.Conn.Force(false)
	case "auto":
		h.Conn.Clear()
	default:
		writeError(w, http.StatusBadRequest, "mode must be online, offline, or auto", nil)
		return
	}

	writeJSON(w, http.StatusOK, ConnectivityDTO{
		Online: h.Conn.Online(r.Context()),
		Mode:   h.Conn.Mode(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the shared error taxonomy onto HTTP status.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, syncer.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, syncer.ErrNotFoundLocal), errors.Is(err, syncer.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, syncer.ErrDuplicateKey), errors.Is(err, syncer.ErrSyncInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
