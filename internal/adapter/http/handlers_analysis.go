package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/spendsight/spendsight/internal/adapter/otel"
	"github.com/spendsight/spendsight/internal/domain/anomaly"
	"github.com/spendsight/spendsight/internal/port/database"
)

// --- Anomaly Analysis Handlers ---

// analyzeRequest is the body for analysis endpoints. An omitted date
// defaults to yesterday, the last complete day.
type analyzeRequest struct {
	Date string `json:"date"` // YYYY-MM-DD
}

func (req analyzeRequest) day(w http.ResponseWriter) (time.Time, bool) {
	if req.Date == "" {
		return time.Now().UTC().AddDate(0, 0, -1), true
	}
	date, err := parseDay(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return date, true
}

// AnalyzeAccount handles POST /api/v1/accounts/{id}/analyze
func (h *Handlers) AnalyzeAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, ok := readOptionalJSON[analyzeRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	date, ok := req.day(w)
	if !ok {
		return
	}

	ctx, span := otel.StartAnalyzeSpan(r.Context(), id, date)
	defer span.End()

	report, err := h.Analyzer.Analyze(ctx, id, date)
	if err != nil {
		writeDomainError(w, err, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// AnalyzeAllAccounts handles POST /api/v1/analyze
func (h *Handlers) AnalyzeAllAccounts(w http.ResponseWriter, r *http.Request) {
	req, ok := readOptionalJSON[analyzeRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	date, ok := req.day(w)
	if !ok {
		return
	}

	reports, err := h.Batch.AnalyzeAll(r.Context(), date)
	if err != nil {
		writeDomainError(w, err, "analysis failed")
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

// ListAnomalies handles GET /api/v1/anomalies
func (h *Handlers) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := database.AnomalyFilter{
		Status:   q.Get("status"),
		Severity: q.Get("severity"),
	}
	if from := q.Get("from"); from != "" {
		parsed, err := parseDay(from)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		filter.From = parsed
	}
	if to := q.Get("to"); to != "" {
		parsed, err := parseDay(to)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
		filter.To = parsed
	}
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			filter.Limit = parsed
		}
	}

	anomalies, err := h.Anomalies.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err, "listing failed")
		return
	}
	if anomalies == nil {
		anomalies = []anomaly.Anomaly{}
	}
	writeJSON(w, http.StatusOK, anomalies)
}

// UpdateAnomalyStatus handles PATCH /api/v1/anomalies/{id}/status
func (h *Handlers) UpdateAnomalyStatus(w http.ResponseWriter, r *http.Request) {
	handleStatusUpdate(h.Anomalies.UpdateStatus, "anomaly not found")(w, r)
}
