package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler factories shared by the account, anomaly, and recommendation
// routes. Each wraps a service call in decoding, error mapping, and JSON
// encoding so the per-resource files stay declarative.

// handleList serves a collection. A nil slice encodes as [] rather than
// null so clients can iterate without a guard.
func handleList[T any](listFn func(ctx context.Context) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := listFn(r.Context())
		if err != nil {
			writeDomainError(w, err, "listing failed")
			return
		}
		if items == nil {
			items = []T{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

// handleCreate decodes the request body, runs createFn, and answers 201.
func handleCreate[Req any, Res any](bodyLimit int64, createFn func(ctx context.Context, req *Req) (*Res, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := readJSON[Req](w, r, bodyLimit)
		if !ok {
			return
		}
		res, err := createFn(r.Context(), &req)
		if err != nil {
			writeDomainError(w, err, "creation failed")
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

// handleGet serves one resource addressed by the {id} route parameter.
// fallbackMsg covers errors the domain mapping does not recognize.
func handleGet[T any](getFn func(ctx context.Context, id string) (*T, error), fallbackMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := getFn(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err, fallbackMsg)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

// handleStatusUpdate applies a {"status": ...} body to the resource at
// {id}. Workflow transitions on anomalies and recommendations share it.
func handleStatusUpdate(updateFn func(ctx context.Context, id, status string) error, fallbackMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := readJSON[struct {
			Status string `json:"status"`
		}](w, r, maxRequestBodySize)
		if !ok {
			return
		}
		if !requireField(w, req.Status, "status") {
			return
		}
		if err := updateFn(r.Context(), chi.URLParam(r, "id"), req.Status); err != nil {
			writeDomainError(w, err, fallbackMsg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleDelete removes the resource at {id} and answers 204.
func handleDelete(deleteFn func(ctx context.Context, id string) error, fallbackMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deleteFn(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeDomainError(w, err, fallbackMsg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
