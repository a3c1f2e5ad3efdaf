/*
notify.go - Outbound notification delivery

PURPOSE:
  Implements the finance package's alert and insight hooks. The Webhook
  dispatcher posts JSON events to a configured endpoint (a chat webhook,
  a push relay, whatever the deployment points it at). Noop satisfies
  the same interfaces for tests and for deployments that run without a
  notification channel.

DESIGN:
  Delivery is best effort by contract: callers log and discard errors,
  so this package never retries and never blocks beyond its own short
  HTTP timeout.
*/
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/soffoalbert/buzo-sync/finance"
)

// =============================================================================
// WEBHOOK DISPATCHER
// =============================================================================

// Webhook posts one JSON document per event to a single endpoint.
type Webhook struct {
	url    string
	http   *http.Client
	logger *slog.Logger
}

type WebhookOption func(*Webhook)

func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) { w.logger = l.With("component", "notify") }
}

func WithWebhookClient(c *http.Client) WebhookOption {
	return func(w *Webhook) { w.http = c }
}

func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:    url,
		http:   &http.Client{Timeout: 5 * time.Second},
		logger: slog.Default().With("component", "notify"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// event is the wire envelope. Payload shape varies per event type.
type event struct {
	Type    string    `json:"type"`
	UserID  string    `json:"userId"`
	SentAt  time.Time `json:"sentAt"`
	Payload any       `json:"payload"`
}

func (w *Webhook) post(ctx context.Context, ev event) error {
	ev.SentAt = time.Now().UTC()
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", ev.Type, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("deliver %s event: %w", ev.Type, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("deliver %s event: endpoint answered %d", ev.Type, resp.StatusCode)
	}
	w.logger.Debug("event delivered", "type", ev.Type, "user_id", ev.UserID)
	return nil
}

func (w *Webhook) SendBudgetAlert(ctx context.Context, a finance.BudgetAlert) error {
	return w.post(ctx, event{
		Type:   "budget_alert",
		UserID: a.UserID,
		Payload: map[string]any{
			"budgetId":  a.BudgetID,
			"name":      a.Name,
			"spent":     a.Spent,
			"amount":    a.Amount,
			"threshold": a.Threshold,
		},
	})
}

func (w *Webhook) SendSavingsProgressAlert(ctx context.Context, a finance.SavingsProgressAlert) error {
	return w.post(ctx, event{
		Type:   "savings_goal_reached",
		UserID: a.UserID,
		Payload: map[string]any{
			"goalId":        a.GoalID,
			"title":         a.Title,
			"currentAmount": a.CurrentAmount,
			"targetAmount":  a.TargetAmount,
		},
	})
}

func (w *Webhook) SendMilestoneAlert(ctx context.Context, a finance.MilestoneAlert) error {
	return w.post(ctx, event{
		Type:   "milestone_completed",
		UserID: a.UserID,
		Payload: map[string]any{
			"goalId":    a.GoalID,
			"goalTitle": a.GoalTitle,
			"milestone": a.Milestone,
		},
	})
}

func (w *Webhook) GenerateInsight(ctx context.Context, userID, trigger string) error {
	return w.post(ctx, event{
		Type:    "insight_requested",
		UserID:  userID,
		Payload: map[string]any{"trigger": trigger},
	})
}

// =============================================================================
// NOOP DISPATCHER
// =============================================================================

// Noop drops every event. The zero value is ready to use.
type Noop struct{}

func (Noop) SendBudgetAlert(context.Context, finance.BudgetAlert) error                 { return nil }
func (Noop) SendSavingsProgressAlert(context.Context, finance.SavingsProgressAlert) error { return nil }
func (Noop) SendMilestoneAlert(context.Context, finance.MilestoneAlert) error           { return nil }
func (Noop) GenerateInsight(context.Context, string, string) error                      { return nil }

var (
	_ finance.AlertDispatcher  = (*Webhook)(nil)
	_ finance.InsightGenerator = (*Webhook)(nil)
	_ finance.AlertDispatcher  = Noop{}
	_ finance.InsightGenerator = Noop{}
)
