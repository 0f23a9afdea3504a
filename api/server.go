/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/partners, /api/materials      Reference registries
  /api/batches, /api/purchases       Batch lifecycle
  /api/transactions                  Weight history
  /api/financial-entries             Payables and receivables
  /api/orders                        Order book
  /api/reports/*                     Dashboards
  /api/export, /api/import           Workbook exchange
  /api/demo/seed                     Demo data
  /api/backups                       Scheduled workbook backups
  /api/scenarios                     Preset scenarios (reset + load)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultOrigins are the CORS origins allowed when none are configured.
var DefaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, origins ...string) *chi.Mux {
	if len(origins) == 0 {
		origins = DefaultOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/partners", func(r chi.Router) {
			r.Get("/", h.ListPartners)
			r.Post("/", h.CreatePartner)
			r.Get("/{id}", h.GetPartner)
			r.Put("/{id}", h.UpdatePartner)
			r.Delete("/{id}", h.DeletePartner)
		})

		r.Route("/materials", func(r chi.Router) {
			r.Get("/", h.ListMaterials)
			r.Post("/", h.CreateMaterial)
			r.Get("/{id}", h.GetMaterial)
			r.Put("/{id}", h.UpdateMaterial)
			r.Delete("/{id}", h.DeleteMaterial)
		})

		r.Route("/batches", func(r chi.Router) {
			r.Get("/", h.ListBatches)
			r.Get("/{id}", h.GetBatch)
			r.Delete("/{id}", h.DeleteBatch)
			r.Get("/{id}/transactions", h.GetBatchTransactions)
			r.Get("/{id}/financial-entries", h.GetBatchFinancialEntries)
			r.Post("/{id}/transition", h.TransitionBatch)
		})

		r.Post("/purchases", h.RecordPurchase)
		r.Get("/transactions", h.ListTransactions)

		r.Route("/financial-entries", func(r chi.Router) {
			r.Get("/", h.ListFinancialEntries)
			r.Put("/{id}", h.UpdateFinancialEntry)
			r.Post("/{id}/status", h.SetFinancialEntryStatus)
			r.Delete("/{id}", h.DeleteFinancialEntry)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.ListOrders)
			r.Post("/", h.CreateOrder)
			r.Get("/{id}", h.GetOrder)
			r.Put("/{id}", h.UpdateOrder)
			r.Delete("/{id}", h.DeleteOrder)
			r.Post("/{id}/cancel", h.CancelOrder)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/inventory", h.InventoryReport)
			r.Get("/financial", h.FinancialReport)
		})

		r.Get("/export", h.Export)
		r.Post("/import", h.Import)
		r.Post("/demo/seed", h.SeedDemo)

		r.Route("/backups", func(r chi.Router) {
			r.Get("/", h.ListBackups)
			r.Post("/", h.RunBackup)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
