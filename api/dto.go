/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Entity responses
  reuse the domain types directly - their JSON shape is already the wire
  contract the queue and the backend mirror speak - so this file mostly
  carries request bodies and the sync-facing views.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *DTO: Response types the domain model does not already provide

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - finance/types.go: Entity JSON shapes returned as-is
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/soffoalbert/buzo-sync/finance"
	"github.com/soffoalbert/buzo-sync/syncer"
)

// =============================================================================
// EXPENSE REQUESTS
// =============================================================================

// CreateExpenseRequest is the request to record an expense.
type CreateExpenseRequest struct {
	Amount           finance.Money `json:"amount"`
	Category         string        `json:"category"`
	Date             string        `json:"date"` // RFC3339 or YYYY-MM-DD
	Description      string        `json:"description,omitempty"`
	PaymentMethod    string        `json:"paymentMethod,omitempty"`
	ReceiptImagePath string        `json:"receiptImagePath,omitempty"`

	BudgetID            string        `json:"budgetId,omitempty"`
	LinkedSavingsGoals  []string      `json:"linkedSavingsGoals,omitempty"`
	SavingsContribution finance.Money `json:"savingsContribution"`
}

// UpdateExpenseRequest is a partial update; absent fields keep their value.
type UpdateExpenseRequest struct {
	Amount              *finance.Money `json:"amount,omitempty"`
	Category            *string        `json:"category,omitempty"`
	Date                *string        `json:"date,omitempty"`
	Description         *string        `json:"description,omitempty"`
	PaymentMethod       *string        `json:"paymentMethod,omitempty"`
	ReceiptImagePath    *string        `json:"receiptImagePath,omitempty"`
	BudgetID            *string        `json:"budgetId,omitempty"` // "" unlinks
	LinkedSavingsGoals  *[]string      `json:"linkedSavingsGoals,omitempty"`
	SavingsContribution *finance.Money `json:"savingsContribution,omitempty"`
}

// =============================================================================
// BUDGET REQUESTS
// =============================================================================

// CreateBudgetRequest is the request to create a budget.
type CreateBudgetRequest struct {
	Name               string          `json:"name"`
	Category           string          `json:"category"`
	Amount             finance.Money   `json:"amount"`
	AutoSavePercentage decimal.Decimal `json:"autoSavePercentage"`
	LinkedSavingsGoals []string        `json:"linkedSavingsGoals,omitempty"`
}

// UpdateBudgetRequest is a partial update; absent fields keep their value.
type UpdateBudgetRequest struct {
	Name               *string          `json:"name,omitempty"`
	Category           *string          `json:"category,omitempty"`
	Amount             *finance.Money   `json:"amount,omitempty"`
	AutoSavePercentage *decimal.Decimal `json:"autoSavePercentage,omitempty"`
	LinkedSavingsGoals *[]string        `json:"linkedSavingsGoals,omitempty"`
}

// =============================================================================
// SAVINGS GOAL REQUESTS
// =============================================================================

// MilestoneRequest is a milestone within a goal creation request.
type MilestoneRequest struct {
	Title        string        `json:"title"`
	TargetAmount finance.Money `json:"targetAmount"`
}

// CreateSavingsGoalRequest is the request to create a savings goal.
type CreateSavingsGoalRequest struct {
	Title        string             `json:"title"`
	TargetAmount finance.Money      `json:"targetAmount"`
	TargetDate   *string            `json:"targetDate,omitempty"`
	Milestones   []MilestoneRequest `json:"milestones,omitempty"`
}

// UpdateSavingsGoalRequest is a partial update. The balance is absent on
// purpose: it only moves through contributions.
type UpdateSavingsGoalRequest struct {
	Title        *string        `json:"title,omitempty"`
	TargetAmount *finance.Money `json:"targetAmount,omitempty"`
	TargetDate   *string        `json:"targetDate,omitempty"`
}

// ContributeRequest is the request to deposit into a goal.
type ContributeRequest struct {
	Amount finance.Money `json:"amount"`
}

// =============================================================================
// SYNC VIEWS
// =============================================================================

// SyncStatusDTO is the status snapshot the app shell polls.
type SyncStatusDTO struct {
	IsSyncing          bool    `json:"isSyncing"`
	LastSyncAttempt    string  `json:"lastSyncAttempt,omitempty"`
	LastSuccessfulSync *string `json:"lastSuccessfulSync,omitempty"`
	PendingCount       int     `json:"pendingCount"`
	FailedCount        int     `json:"failedCount"`
	SyncProgress       int     `json:"syncProgress"`
	Error              string  `json:"error,omitempty"`
}

// QueueItemDTO is a queue item in API responses. The payload is omitted;
// it duplicates the entity endpoints.
type QueueItemDTO struct {
	ID          string  `json:"id"`
	Op          string  `json:"op"`
	Kind        string  `json:"kind"`
	EntityID    string  `json:"entityId"`
	Priority    int     `json:"priority"`
	Attempts    int     `json:"attempts"`
	EnqueuedAt  string  `json:"enqueuedAt"`
	LastAttempt *string `json:"lastAttempt,omitempty"`
	LastError   string  `json:"lastError,omitempty"`
	Dead        bool    `json:"dead"`
}

// QueueStatsDTO summarizes queue composition.
type QueueStatsDTO struct {
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
	Dead    int `json:"dead"`
}

// SyncResultDTO reports one drain pass.
type SyncResultDTO struct {
	AlreadyRunning bool `json:"alreadyRunning"`
	Processed      int  `json:"processed"`
	Succeeded      int  `json:"succeeded"`
	Failed         int  `json:"failed"`
	Remaining      int  `json:"remaining"`
}

// ConnectivityRequest forces the connectivity answer for demos.
type ConnectivityRequest struct {
	Mode string `json:"mode"` // "online", "offline", "auto"
}

// ConnectivityDTO reports the current connectivity answer.
type ConnectivityDTO struct {
	Online bool   `json:"online"`
	Mode   string `json:"mode"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ID string `json:"id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toSyncStatusDTO(s syncer.Status) SyncStatusDTO {
	dto := SyncStatusDTO{
		IsSyncing:    s.IsSyncing,
		PendingCount: s.PendingCount,
		FailedCount:  s.FailedCount,
		SyncProgress: s.SyncProgress,
		Error:        s.Error,
	}
	if !s.LastSyncAttempt.IsZero() {
		dto.LastSyncAttempt = s.LastSyncAttempt.Format(time.RFC3339)
	}
	if s.LastSuccessfulSync != nil {
		t := s.LastSuccessfulSync.Format(time.RFC3339)
		dto.LastSuccessfulSync = &t
	}
	return dto
}

func toQueueItemDTO(item syncer.QueueItem) QueueItemDTO {
	dto := QueueItemDTO{
		ID:         item.ID,
		Op:         string(item.Op),
		Kind:       string(item.Kind),
		EntityID:   item.EntityID,
		Priority:   item.Priority,
		Attempts:   item.Attempts,
		EnqueuedAt: item.EnqueuedAt.Format(time.RFC3339),
		LastError:  item.LastError,
		Dead:       item.Dead,
	}
	if item.LastAttempt != nil {
		t := item.LastAttempt.Format(time.RFC3339)
		dto.LastAttempt = &t
	}
	return dto
}

func toQueueItemDTOs(items []syncer.QueueItem) []QueueItemDTO {
	dtos := make([]QueueItemDTO, len(items))
	for i, item := range items {
		dtos[i] = toQueueItemDTO(item)
	}
	return dtos
}

// parseDate accepts RFC3339 timestamps or bare YYYY-MM-DD dates. An empty
// string parses to the zero time; the services default that to now.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
