/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the app shell

ROUTE GROUPS:
  /api/expenses/*        Expense tracking
  /api/budgets/*         Budget management
  /api/savings-goals/*   Savings goals and contributions
  /api/sync/*            Queue inspection and drain control
  /api/connectivity      Connectivity override for demos
  /api/scenarios/*       Demo scenarios

SECURITY NOTE:
  No authentication middleware. The server binds on-device for a single
  user session; the backend enforces auth on the remote side.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Expense routes
		r.Route("/expenses", func(r chi.Router) {
			r.Get("/", h.ListExpenses)
			r.Post("/", h.CreateExpense)
			r.Get("/{id}", h.GetExpense)
			r.Put("/{id}", h.UpdateExpense)
			r.Delete("/{id}", h.DeleteExpense)
		})

		// Budget routes
		r.Route("/budgets", func(r chi.Router) {
			r.Get("/", h.ListBudgets)
			r.Post("/", h.CreateBudget)
			r.Get("/{id}", h.GetBudget)
			r.Put("/{id}", h.UpdateBudget)
			r.Delete("/{id}", h.DeleteBudget)
		})

		// Savings goal routes
		r.Route("/savings-goals", func(r chi.Router) {
			r.Get("/", h.ListSavingsGoals)
			r.Post("/", h.CreateSavingsGoal)
			r.Get("/{id}", h.GetSavingsGoal)
			r.Put("/{id}", h.UpdateSavingsGoal)
			r.Delete("/{id}", h.DeleteSavingsGoal)
			r.Post("/{id}/contributions", h.Contribute)
		})

		// Sync routes
		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", h.SyncStatus)
			r.Post("/now", h.SyncNow)
			r.Get("/queue", h.ListQueue)
			r.Get("/queue/stats", h.QueueStats)
			r.Post("/queue/{id}/retry", h.RetryQueueItem)
		})

		// Connectivity override
		r.Get("/connectivity", h.GetConnectivity)
		r.Put("/connectivity", h.SetConnectivity)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetData)
		})
	})

	return r
}
