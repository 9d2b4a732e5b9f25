package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/spendsight/spendsight/internal/adapter/otel"
	"github.com/spendsight/spendsight/internal/domain/costitem"
)

// --- Collection Handlers ---

// collectRequest is the body for collection endpoints. Both bounds are
// optional; an omitted bound defaults to yesterday.
type collectRequest struct {
	Start string `json:"start"` // YYYY-MM-DD
	End   string `json:"end"`   // YYYY-MM-DD
}

func (req collectRequest) dateRange(w http.ResponseWriter) (costitem.DateRange, bool) {
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	start, end := yesterday, yesterday
	var err error
	if req.Start != "" {
		if start, err = parseDay(req.Start); err != nil {
			writeError(w, http.StatusBadRequest, "start must be YYYY-MM-DD")
			return costitem.DateRange{}, false
		}
	}
	if req.End != "" {
		if end, err = parseDay(req.End); err != nil {
			writeError(w, http.StatusBadRequest, "end must be YYYY-MM-DD")
			return costitem.DateRange{}, false
		}
	}
	return costitem.NewDateRange(start, end), true
}

// CollectAccount handles POST /api/v1/accounts/{id}/collect
func (h *Handlers) CollectAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, ok := readOptionalJSON[collectRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	rng, ok := req.dateRange(w)
	if !ok {
		return
	}

	ctx, span := otel.StartCollectSpan(r.Context(), id)
	defer span.End()

	result, err := h.Collector.Collect(ctx, id, rng)
	if err != nil {
		writeDomainError(w, err, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CollectAllAccounts handles POST /api/v1/collect
func (h *Handlers) CollectAllAccounts(w http.ResponseWriter, r *http.Request) {
	req, ok := readOptionalJSON[collectRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	rng, ok := req.dateRange(w)
	if !ok {
		return
	}

	results, err := h.Batch.CollectAll(r.Context(), rng)
	if err != nil {
		writeDomainError(w, err, "collection failed")
		return
	}
	writeJSON(w, http.StatusOK, results)
}
