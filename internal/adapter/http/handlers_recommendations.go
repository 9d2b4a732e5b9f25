package http

import (
	"net/http"
	"strconv"

	"github.com/spendsight/spendsight/internal/adapter/otel"
	"github.com/spendsight/spendsight/internal/domain/recommendation"
	"github.com/spendsight/spendsight/internal/port/database"
)

// --- Recommendation Handlers ---

// generateRequest is the body for POST /recommendations/generate. An omitted
// account_id runs generation for every active account.
type generateRequest struct {
	AccountID string `json:"account_id"`
}

// GenerateRecommendations handles POST /api/v1/recommendations/generate
func (h *Handlers) GenerateRecommendations(w http.ResponseWriter, r *http.Request) {
	req, ok := readOptionalJSON[generateRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}

	ctx, span := otel.StartGenerateSpan(r.Context(), req.AccountID)
	defer span.End()

	if req.AccountID == "" {
		result, err := h.Batch.GenerateAll(ctx)
		if err != nil {
			writeDomainError(w, err, "generation failed")
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	candidates, err := h.Patterns.Generate(ctx, req.AccountID)
	if err != nil {
		writeDomainError(w, err, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, h.Reconciler.Reconcile(ctx, candidates))
}

// ListRecommendations handles GET /api/v1/recommendations
func (h *Handlers) ListRecommendations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := database.RecommendationFilter{
		Status: q.Get("status"),
		Type:   q.Get("type"),
	}
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			filter.Limit = parsed
		}
	}

	recs, err := h.Recommendations.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err, "listing failed")
		return
	}
	if recs == nil {
		recs = []recommendation.Recommendation{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// UpdateRecommendationStatus handles PATCH /api/v1/recommendations/{id}/status
func (h *Handlers) UpdateRecommendationStatus(w http.ResponseWriter, r *http.Request) {
	handleStatusUpdate(h.Recommendations.UpdateStatus, "recommendation not found")(w, r)
}
