/*
Package finance provides the personal-finance domain model and services.

PURPOSE:
  This package contains the entities the sync engine moves around -
  expenses, budgets, savings goals - and the services that are the single
  point of mutation for each of them. Services own the online/offline
  branching (optimistic local write, remote mirror or queue deferral) and
  the cross-entity side effects: an expense adjusts its budget's spent
  total, a savings contribution moves its goals and their milestones, a
  budget with auto-save synthesizes an automated savings expense.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: a decimal amount; no float arithmetic on money anywhere
  - Entity: the shared envelope (id, owner, origin, timestamps)
  - Expense/Budget/SavingsGoal: the three synchronized entity kinds
  - Milestone/SavingContribution: nested savings-goal records

DESIGN PRINCIPLES:
  1. Local-first: every mutation lands in the local store before any
     remote attempt, and callers get the local result immediately
  2. Derived fields are recomputed, never trusted: a budget's remaining
     amount is always amount - spent - savings allocation
  3. Milestone completion is one-way: once completed, never unset, even
     if the goal's balance later drops

USAGE:
  b := finance.Budget{Amount: finance.NewMoney(1000)}
  b.Spent = finance.NewMoney(200)
  b.Recalculate() // RemainingAmount = 800

SEE ALSO:
  - expense.go / budget.go / savings.go: the entity services
  - syncer/types.go: origin tag and queue item shape
*/
package finance

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/soffoalbert/buzo-sync/syncer"
)

// =============================================================================
// MONEY - Decimal amount, serialized as a string
// =============================================================================

type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money {
	return Money{Value: decimal.NewFromFloat(value)}
}

func NewMoneyFromInt(value int) Money {
	return Money{Value: decimal.NewFromInt(int64(value))}
}

// MustParseMoney parses a decimal string, zero on failure.
func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{Value: decimal.Zero}
	}
	return Money{Value: d}
}

func (m Money) Add(o Money) Money          { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money          { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Neg() Money                 { return Money{Value: m.Value.Neg()} }
func (m Money) Mul(s decimal.Decimal) Money { return Money{Value: m.Value.Mul(s)} }
func (m Money) Div(s decimal.Decimal) Money { return Money{Value: m.Value.Div(s)} }
func (m Money) IsZero() bool               { return m.Value.IsZero() }
func (m Money) IsNegative() bool           { return m.Value.IsNegative() }
func (m Money) IsPositive() bool           { return m.Value.IsPositive() }
func (m Money) Equal(o Money) bool         { return m.Value.Equal(o.Value) }
func (m Money) GreaterThan(o Money) bool   { return m.Value.GreaterThan(o.Value) }
func (m Money) GreaterThanOrEqual(o Money) bool { return m.Value.GreaterThanOrEqual(o.Value) }
func (m Money) LessThan(o Money) bool      { return m.Value.LessThan(o.Value) }
func (m Money) String() string             { return m.Value.String() }

// MarshalJSON serializes money as a decimal string so no precision is lost
// on the wire or in queue payloads.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.Value.String() + `"`), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		m.Value = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid money value %q: %w", s, err)
	}
	m.Value = d
	return nil
}

// =============================================================================
// ENTITY - Shared envelope
// =============================================================================

// Entity is the identity and bookkeeping every synchronized record carries.
// Origin distinguishes ids minted on this device from ids the backend has
// confirmed; UpdatedAt drives last-write-wins when two copies of the same
// id are reconciled.
type Entity struct {
	ID        string        `json:"id"`
	UserID    string        `json:"userId"`
	Origin    syncer.Origin `json:"origin"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// =============================================================================
// EXPENSE
// =============================================================================

type Expense struct {
	Entity

	Amount           Money     `json:"amount"`
	Category         string    `json:"category"`
	Date             time.Time `json:"date"`
	Description      string    `json:"description,omitempty"`
	PaymentMethod    string    `json:"paymentMethod,omitempty"`
	ReceiptImagePath string    `json:"receiptImagePath,omitempty"`

	// BudgetID links the expense to the budget its amount counts against.
	BudgetID string `json:"budgetId,omitempty"`

	// A savings-flavored expense moves money into goals: the contribution
	// is added to each linked goal's current amount.
	LinkedSavingsGoals  []string `json:"linkedSavingsGoals,omitempty"`
	SavingsContribution Money    `json:"savingsContribution"`

	// IsAutomatedSaving marks expenses synthesized by budget auto-save.
	// Their amount is already carried by the budget's savings allocation,
	// so they never feed back into the budget's spent total.
	IsAutomatedSaving bool `json:"isAutomatedSaving"`
}

// =============================================================================
// BUDGET
// =============================================================================

type Budget struct {
	Entity

	Name     string `json:"name"`
	Category string `json:"category"`

	Amount            Money `json:"amount"` // allocated
	Spent             Money `json:"spent"`
	SavingsAllocation Money `json:"savingsAllocation"`
	RemainingAmount   Money `json:"remainingAmount"` // derived, see Recalculate

	// AutoSavePercentage > 0 routes that share of the allocation into the
	// linked savings goals on every budget update.
	AutoSavePercentage decimal.Decimal `json:"autoSavePercentage"`

	LinkedExpenses     []string `json:"linkedExpenses,omitempty"`
	LinkedSavingsGoals []string `json:"linkedSavingsGoals,omitempty"`
}

// Recalculate restores the derived-field invariant:
// RemainingAmount = Amount - Spent - SavingsAllocation.
// Call after every mutation that touches Spent or SavingsAllocation.
func (b *Budget) Recalculate() {
	b.RemainingAmount = b.Amount.Sub(b.Spent).Sub(b.SavingsAllocation)
}

// SpentRatio returns spent/amount in [0..], zero for an unallocated budget.
func (b *Budget) SpentRatio() decimal.Decimal {
	if b.Amount.IsZero() {
		return decimal.Zero
	}
	return b.Spent.Value.Div(b.Amount.Value)
}

// HasExpense reports whether the expense id is linked.
func (b *Budget) HasExpense(id string) bool {
	for _, e := range b.LinkedExpenses {
		if e == id {
			return true
		}
	}
	return false
}

// LinkExpense adds the expense id, idempotently.
func (b *Budget) LinkExpense(id string) {
	if !b.HasExpense(id) {
		b.LinkedExpenses = append(b.LinkedExpenses, id)
	}
}

// UnlinkExpense removes the expense id if present.
func (b *Budget) UnlinkExpense(id string) {
	for i, e := range b.LinkedExpenses {
		if e == id {
			b.LinkedExpenses = append(b.LinkedExpenses[:i], b.LinkedExpenses[i+1:]...)
			return
		}
	}
}

// =============================================================================
// SAVINGS GOAL
// =============================================================================

type SavingsGoal struct {
	Entity

	Title         string     `json:"title"`
	TargetAmount  Money      `json:"targetAmount"`
	CurrentAmount Money      `json:"currentAmount"`
	TargetDate    *time.Time `json:"targetDate,omitempty"`

	Milestones    []Milestone          `json:"milestones,omitempty"`
	SavingHistory []SavingContribution `json:"savingHistory,omitempty"`
}

// Milestone is a sub-target within a goal. Completion is one-way.
type Milestone struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	TargetAmount  Money      `json:"targetAmount"`
	IsCompleted   bool       `json:"isCompleted"`
	CompletedDate *time.Time `json:"completedDate,omitempty"`
}

// ContributionSource tells manual deposits from auto-save ones.
type ContributionSource string

const (
	SourceManual    ContributionSource = "manual"
	SourceAutomated ContributionSource = "automated"
)

// SavingContribution is one movement into (or, for reversals, out of) a
// goal, traced back to the expense that caused it.
type SavingContribution struct {
	Date      time.Time          `json:"date"`
	Amount    Money              `json:"amount"`
	Source    ContributionSource `json:"source"`
	ExpenseID string             `json:"expenseId,omitempty"`
}

// ApplyContribution moves the contribution into the goal: current amount
// shifts, the history gains a record, and milestones re-evaluate. It
// returns the milestones completed by this contribution so callers can
// fire alerts exactly once per milestone.
func (g *SavingsGoal) ApplyContribution(c SavingContribution) []Milestone {
	g.CurrentAmount = g.CurrentAmount.Add(c.Amount)
	g.SavingHistory = append(g.SavingHistory, c)
	return g.evaluateMilestones(c.Date)
}

// evaluateMilestones flips every incomplete milestone whose target the
// current amount now covers. Already-completed milestones are never
// touched, so a later balance drop cannot revert them and alerts cannot
// re-fire.
func (g *SavingsGoal) evaluateMilestones(at time.Time) []Milestone {
	var completed []Milestone
	for i := range g.Milestones {
		m := &g.Milestones[i]
		if m.IsCompleted {
			continue
		}
		if g.CurrentAmount.GreaterThanOrEqual(m.TargetAmount) {
			m.IsCompleted = true
			when := at
			m.CompletedDate = &when
			completed = append(completed, *m)
		}
	}
	return completed
}

// Reached reports whether the goal's target is met.
func (g *SavingsGoal) Reached() bool {
	return !g.TargetAmount.IsZero() && g.CurrentAmount.GreaterThanOrEqual(g.TargetAmount)
}

// Progress returns current/target as a percentage in [0..100+].
func (g *SavingsGoal) Progress() decimal.Decimal {
	if g.TargetAmount.IsZero() {
		return decimal.Zero
	}
	return g.CurrentAmount.Value.Div(g.TargetAmount.Value).Mul(decimal.NewFromInt(100))
}
