package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spendsight/spendsight/internal/middleware"
)

// resolveTenant runs one request through the tenant middleware and
// reports the response status plus the tenant the inner handler saw.
func resolveTenant(t *testing.T, header string) (status int, seen string, reached bool) {
	t.Helper()
	handler := middleware.TenantID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		reached = true
		seen = middleware.TenantIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/costs", http.NoBody)
	if header != "" {
		req.Header.Set("X-Tenant-ID", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code, seen, reached
}

func TestTenantResolvedFromHeader(t *testing.T) {
	const tid = "7d444840-9dc0-11d1-b245-5ffdce74fad2"
	status, seen, _ := resolveTenant(t, tid)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if seen != tid {
		t.Fatalf("handler saw tenant %q, want %q", seen, tid)
	}
}

func TestTenantHeaderCasingNormalized(t *testing.T) {
	_, seen, _ := resolveTenant(t, "7D444840-9DC0-11D1-B245-5FFDCE74FAD2")
	if seen != "7d444840-9dc0-11d1-b245-5ffdce74fad2" {
		t.Fatalf("tenant not normalized, got %q", seen)
	}
}

func TestTenantDefaultsWhenHeaderAbsent(t *testing.T) {
	status, seen, _ := resolveTenant(t, "")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if seen != middleware.DefaultTenantID {
		t.Fatalf("handler saw tenant %q, want default", seen)
	}
}

func TestTenantMalformedHeaderRejected(t *testing.T) {
	for _, bad := range []string{"acme-corp", "123", "7d444840-9dc0"} {
		status, _, reached := resolveTenant(t, bad)
		if status != http.StatusBadRequest {
			t.Errorf("header %q: status = %d, want 400", bad, status)
		}
		if reached {
			t.Errorf("header %q: handler ran despite rejection", bad)
		}
	}
}

func TestWithTenantRoundTrip(t *testing.T) {
	ctx := middleware.WithTenant(context.Background(), "11111111-1111-1111-1111-111111111111")
	if got := middleware.TenantIDFromContext(ctx); got != "11111111-1111-1111-1111-111111111111" {
		t.Fatalf("got %q", got)
	}

	if got := middleware.TenantIDFromContext(middleware.WithTenant(context.Background(), "")); got != middleware.DefaultTenantID {
		t.Fatalf("empty tenant: got %q, want default", got)
	}

	if got := middleware.TenantIDFromContext(context.Background()); got != middleware.DefaultTenantID {
		t.Fatalf("bare context: got %q, want default", got)
	}
}
