package http

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/spendsight/spendsight/internal/port/costprovider"
)

// --- Cloud Account Handlers ---

// ListAccounts handles GET /api/v1/accounts
func (h *Handlers) ListAccounts(w http.ResponseWriter, r *http.Request) {
	handleList(h.Accounts.List)(w, r)
}

// CreateAccount handles POST /api/v1/accounts
func (h *Handlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	handleCreate(maxRequestBodySize, h.Accounts.Create)(w, r)
}

// GetAccount handles GET /api/v1/accounts/{id}
func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Accounts.Get, "account not found")(w, r)
}

// DeleteAccount handles DELETE /api/v1/accounts/{id}
func (h *Handlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	handleDelete(h.Accounts.Delete, "account not found")(w, r)
}

// TestAccount handles POST /api/v1/accounts/{id}/test
func (h *Handlers) TestAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Accounts.Test(r.Context(), id); err != nil {
		writeDomainError(w, err, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "valid"})
}

// ListProviders handles GET /api/v1/providers
func (h *Handlers) ListProviders(w http.ResponseWriter, _ *http.Request) {
	providers := costprovider.Available()
	slices.Sort(providers)
	writeJSON(w, http.StatusOK, map[string][]string{"providers": providers})
}
