package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/spendsight/spendsight/internal/domain/costitem"
)

// --- Cost Read Handlers ---

// yesterdayUTC returns the last complete day, the natural end of every
// dashboard window.
func yesterdayUTC() time.Time {
	return time.Now().UTC().AddDate(0, 0, -1)
}

// DailyCosts handles GET /api/v1/costs/daily
func (h *Handlers) DailyCosts(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if !requireField(w, accountID, "account_id") {
		return
	}
	days := 30
	if d := r.URL.Query().Get("days"); d != "" {
		if parsed, err := strconv.Atoi(d); err == nil && parsed > 0 {
			days = parsed
		}
	}
	end := yesterdayUTC()
	rng := costitem.NewDateRange(end.AddDate(0, 0, -(days-1)), end)

	series, err := h.Costs.DailyCosts(r.Context(), accountID, rng)
	if err != nil {
		writeDomainError(w, err, "account not found")
		return
	}
	if series == nil {
		series = []costitem.DailyCost{}
	}
	writeJSON(w, http.StatusOK, series)
}

// ServiceCosts handles GET /api/v1/costs/services
func (h *Handlers) ServiceCosts(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if !requireField(w, accountID, "account_id") {
		return
	}
	date := yesterdayUTC()
	if d := r.URL.Query().Get("date"); d != "" {
		parsed, err := parseDay(d)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	totals, err := h.Costs.ServiceCosts(r.Context(), accountID, date)
	if err != nil {
		writeDomainError(w, err, "account not found")
		return
	}
	if totals == nil {
		totals = []costitem.ServiceCost{}
	}
	writeJSON(w, http.StatusOK, totals)
}

// CostItems handles GET /api/v1/costs/items
func (h *Handlers) CostItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	accountID := q.Get("account_id")
	if !requireField(w, accountID, "account_id") {
		return
	}

	end := yesterdayUTC()
	start := end.AddDate(0, 0, -29)
	var err error
	if s := q.Get("start"); s != "" {
		if start, err = parseDay(s); err != nil {
			writeError(w, http.StatusBadRequest, "start must be YYYY-MM-DD")
			return
		}
	}
	if e := q.Get("end"); e != "" {
		if end, err = parseDay(e); err != nil {
			writeError(w, http.StatusBadRequest, "end must be YYYY-MM-DD")
			return
		}
	}

	items, err := h.Costs.Items(r.Context(), accountID, costitem.NewDateRange(start, end))
	if err != nil {
		writeDomainError(w, err, "account not found")
		return
	}
	if items == nil {
		items = []costitem.CostLineItem{}
	}
	writeJSON(w, http.StatusOK, items)
}
