package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Cloud accounts
		r.Get("/accounts", h.ListAccounts)
		r.Post("/accounts", h.CreateAccount)
		r.Get("/accounts/{id}", h.GetAccount)
		r.Delete("/accounts/{id}", h.DeleteAccount)
		r.Post("/accounts/{id}/test", h.TestAccount)

		// Collection
		r.Post("/accounts/{id}/collect", h.CollectAccount)
		r.Post("/collect", h.CollectAllAccounts)

		// Anomaly analysis
		r.Post("/accounts/{id}/analyze", h.AnalyzeAccount)
		r.Post("/analyze", h.AnalyzeAllAccounts)
		r.Get("/anomalies", h.ListAnomalies)
		r.Patch("/anomalies/{id}/status", h.UpdateAnomalyStatus)

		// Recommendations
		r.Post("/recommendations/generate", h.GenerateRecommendations)
		r.Get("/recommendations", h.ListRecommendations)
		r.Patch("/recommendations/{id}/status", h.UpdateRecommendationStatus)

		// Cost reads
		r.Get("/costs/daily", h.DailyCosts)
		r.Get("/costs/services", h.ServiceCosts)
		r.Get("/costs/items", h.CostItems)

		// Providers
		r.Get("/providers", h.ListProviders)
	})
}
