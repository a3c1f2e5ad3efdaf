/*
rows.go - Row codecs: the snake_case wire shape of each entity table

PURPOSE:
  The backend stores snake_case columns; the domain model is camelCase
  Go structs. These codecs are the only place the two shapes meet.
  Money travels as decimal strings, timestamps as RFC3339, nested
  milestone/history records as jsonb arrays.
*/
package remote

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/soffoalbert/buzo-sync/finance"
	"github.com/soffoalbert/buzo-sync/syncer"
)

// =============================================================================
// EXPENSES
// =============================================================================

type expenseRow struct {
	ID                  string   `json:"id"`
	UserID              string   `json:"user_id"`
	Amount              string   `json:"amount"`
	Category            string   `json:"category"`
	Date                string   `json:"date"`
	Description         string   `json:"description,omitempty"`
	PaymentMethod       string   `json:"payment_method,omitempty"`
	ReceiptImagePath    string   `json:"receipt_image_path,omitempty"`
	BudgetID            string   `json:"budget_id,omitempty"`
	LinkedSavingsGoals  []string `json:"linked_savings_goals,omitempty"`
	SavingsContribution string   `json:"savings_contribution"`
	IsAutomatedSaving   bool     `json:"is_automated_saving"`
	CreatedAt           string   `json:"created_at"`
	UpdatedAt           string   `json:"updated_at"`
}

func toExpenseRow(e *finance.Expense) expenseRow {
	return expenseRow{
		ID:                  e.ID,
		UserID:              e.UserID,
		Amount:              e.Amount.String(),
		Category:            e.Category,
		Date:                e.Date.Format(time.RFC3339),
		Description:         e.Description,
		PaymentMethod:       e.PaymentMethod,
		ReceiptImagePath:    e.ReceiptImagePath,
		BudgetID:            e.BudgetID,
		LinkedSavingsGoals:  e.LinkedSavingsGoals,
		SavingsContribution: e.SavingsContribution.String(),
		IsAutomatedSaving:   e.IsAutomatedSaving,
		CreatedAt:           e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:           e.UpdatedAt.Format(time.RFC3339),
	}
}

func fromExpenseRow(r expenseRow) *finance.Expense {
	return &finance.Expense{
		Entity: finance.Entity{
			ID:        r.ID,
			UserID:    r.UserID,
			Origin:    syncer.OriginRemote,
			CreatedAt: parseTime(r.CreatedAt),
			UpdatedAt: parseTime(r.UpdatedAt),
		},
		Amount:              finance.MustParseMoney(r.Amount),
		Category:            r.Category,
		Date:                parseTime(r.Date),
		Description:         r.Description,
		PaymentMethod:       r.PaymentMethod,
		ReceiptImagePath:    r.ReceiptImagePath,
		BudgetID:            r.BudgetID,
		LinkedSavingsGoals:  r.LinkedSavingsGoals,
		SavingsContribution: finance.MustParseMoney(r.SavingsContribution),
		IsAutomatedSaving:   r.IsAutomatedSaving,
	}
}

// =============================================================================
// BUDGETS
// =============================================================================

type budgetRow struct {
	ID                 string   `json:"id"`
	UserID             string   `json:"user_id"`
	Name               string   `json:"name"`
	Category           string   `json:"category"`
	Amount             string   `json:"amount"`
	Spent              string   `json:"spent"`
	SavingsAllocation  string   `json:"savings_allocation"`
	RemainingAmount    string   `json:"remaining_amount"`
	AutoSavePercentage string   `json:"auto_save_percentage"`
	LinkedExpenses     []string `json:"linked_expenses,omitempty"`
	LinkedSavingsGoals []string `json:"linked_savings_goals,omitempty"`
	CreatedAt          string   `json:"created_at"`
	UpdatedAt          string   `json:"updated_at"`
}

func toBudgetRow(b *finance.Budget) budgetRow {
	return budgetRow{
		ID:                 b.ID,
		UserID:             b.UserID,
		Name:               b.Name,
		Category:           b.Category,
		Amount:             b.Amount.String(),
		Spent:              b.Spent.String(),
		SavingsAllocation:  b.SavingsAllocation.String(),
		RemainingAmount:    b.RemainingAmount.String(),
		AutoSavePercentage: b.AutoSavePercentage.String(),
		LinkedExpenses:     b.LinkedExpenses,
		LinkedSavingsGoals: b.LinkedSavingsGoals,
		CreatedAt:          b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          b.UpdatedAt.Format(time.RFC3339),
	}
}

func fromBudgetRow(r budgetRow) *finance.Budget {
	b := &finance.Budget{
		Entity: finance.Entity{
			ID:        r.ID,
			UserID:    r.UserID,
			Origin:    syncer.OriginRemote,
			CreatedAt: parseTime(r.CreatedAt),
			UpdatedAt: parseTime(r.UpdatedAt),
		},
		Name:               r.Name,
		Category:           r.Category,
		Amount:             finance.MustParseMoney(r.Amount),
		Spent:              finance.MustParseMoney(r.Spent),
		SavingsAllocation:  finance.MustParseMoney(r.SavingsAllocation),
		AutoSavePercentage: parseDecimal(r.AutoSavePercentage),
		LinkedExpenses:     r.LinkedExpenses,
		LinkedSavingsGoals: r.LinkedSavingsGoals,
	}
	// Derived locally, never trusted from the wire.
	b.Recalculate()
	return b
}

// =============================================================================
// SAVINGS GOALS
// =============================================================================

type milestoneRow struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	TargetAmount  string  `json:"target_amount"`
	IsCompleted   bool    `json:"is_completed"`
	CompletedDate *string `json:"completed_date,omitempty"`
}

type contributionRow struct {
	Date      string `json:"date"`
	Amount    string `json:"amount"`
	Source    string `json:"source"`
	ExpenseID string `json:"expense_id,omitempty"`
}

type goalRow struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id"`
	Title         string            `json:"title"`
	TargetAmount  string            `json:"target_amount"`
	CurrentAmount string            `json:"current_amount"`
	TargetDate    *string           `json:"target_date,omitempty"`
	Milestones    []milestoneRow    `json:"milestones,omitempty"`
	SavingHistory []contributionRow `json:"saving_history,omitempty"`
	CreatedAt     string            `json:"created_at"`
	UpdatedAt     string            `json:"updated_at"`
}

func toGoalRow(g *finance.SavingsGoal) goalRow {
	r := goalRow{
		ID:            g.ID,
		UserID:        g.UserID,
		Title:         g.Title,
		TargetAmount:  g.TargetAmount.String(),
		CurrentAmount: g.CurrentAmount.String(),
		CreatedAt:     g.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     g.UpdatedAt.Format(time.RFC3339),
	}
	if g.TargetDate != nil {
		s := g.TargetDate.Format(time.RFC3339)
		r.TargetDate = &s
	}
	for _, m := range g.Milestones {
		mr := milestoneRow{
			ID:           m.ID,
			Title:        m.Title,
			TargetAmount: m.TargetAmount.String(),
			IsCompleted:  m.IsCompleted,
		}
		if m.CompletedDate != nil {
			s := m.CompletedDate.Format(time.RFC3339)
			mr.CompletedDate = &s
		}
		r.Milestones = append(r.Milestones, mr)
	}
	for _, c := range g.SavingHistory {
		r.SavingHistory = append(r.SavingHistory, contributionRow{
			Date:      c.Date.Format(time.RFC3339),
			Amount:    c.Amount.String(),
			Source:    string(c.Source),
			ExpenseID: c.ExpenseID,
		})
	}
	return r
}

func fromGoalRow(r goalRow) *finance.SavingsGoal {
	g := &finance.SavingsGoal{
		Entity: finance.Entity{
			ID:        r.ID,
			UserID:    r.UserID,
			Origin:    syncer.OriginRemote,
			CreatedAt: parseTime(r.CreatedAt),
			UpdatedAt: parseTime(r.UpdatedAt),
		},
		Title:         r.Title,
		TargetAmount:  finance.MustParseMoney(r.TargetAmount),
		CurrentAmount: finance.MustParseMoney(r.CurrentAmount),
	}
	if r.TargetDate != nil {
		t := parseTime(*r.TargetDate)
		g.TargetDate = &t
	}
	for _, mr := range r.Milestones {
		m := finance.Milestone{
			ID:           mr.ID,
			Title:        mr.Title,
			TargetAmount: finance.MustParseMoney(mr.TargetAmount),
			IsCompleted:  mr.IsCompleted,
		}
		if mr.CompletedDate != nil {
			t := parseTime(*mr.CompletedDate)
			m.CompletedDate = &t
		}
		g.Milestones = append(g.Milestones, m)
	}
	for _, cr := range r.SavingHistory {
		g.SavingHistory = append(g.SavingHistory, finance.SavingContribution{
			Date:      parseTime(cr.Date),
			Amount:    finance.MustParseMoney(cr.Amount),
			Source:    finance.ContributionSource(cr.Source),
			ExpenseID: cr.ExpenseID,
		})
	}
	return g
}

// =============================================================================
// HELPERS
// =============================================================================

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
