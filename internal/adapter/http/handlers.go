package http

import (
	"net/http"

	"github.com/spendsight/spendsight/internal/port/database"
	"github.com/spendsight/spendsight/internal/port/messagequeue"
	"github.com/spendsight/spendsight/internal/resilience"
	"github.com/spendsight/spendsight/internal/service"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// Handlers aggregates all HTTP handlers with their service dependencies.
type Handlers struct {
	Accounts        *service.AccountService
	Collector       *service.CollectionService
	Analyzer        *service.BaselineService
	Batch           *service.BatchService
	Patterns        *service.PatternService
	Reconciler      *service.ReconcilerService
	Costs           *service.CostService
	Anomalies       *service.AnomalyService
	Recommendations *service.RecommendationService

	// Health probes.
	Store   database.Store
	Queue   messagequeue.Queue
	Breaker *resilience.Breaker
}

// Health handles GET /health. Reports store reachability, queue connectivity,
// and the provider circuit breaker state.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	resp := map[string]any{
		"status":   "ok",
		"database": "ok",
		"queue":    "connected",
	}

	if err := h.Store.Ping(r.Context()); err != nil {
		resp["status"] = "degraded"
		resp["database"] = "unreachable"
		status = http.StatusServiceUnavailable
	}
	if h.Queue == nil || !h.Queue.IsConnected() {
		resp["status"] = "degraded"
		resp["queue"] = "disconnected"
	}
	if h.Breaker != nil {
		resp["provider_breaker"] = h.Breaker.Status()
	}

	writeJSON(w, status, resp)
}
