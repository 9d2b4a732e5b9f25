package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// DefaultTenantID identifies the implicit tenant of single-tenant
// deployments that never send an X-Tenant-ID header.
const DefaultTenantID = "00000000-0000-0000-0000-000000000000"

const headerTenantID = "X-Tenant-ID"

type tenantCtxKey struct{}

// TenantID resolves the caller's tenant from the X-Tenant-ID header and
// stores it on the request context. A missing header selects
// DefaultTenantID. A malformed one is rejected here with a 400 rather
// than surfacing later as a 500 when Postgres refuses the value.
func TenantID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(headerTenantID)
		if raw == "" {
			next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), DefaultTenantID)))
			return
		}
		tid, err := uuid.Parse(raw)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"X-Tenant-ID must be a UUID"}`))
			return
		}
		// Canonical lowercase form, so cache and idempotency keys built
		// from the tenant never alias on header casing.
		next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), tid.String())))
	})
}

// WithTenant stores a tenant ID in ctx directly. The scheduler loop and
// the admin CLI use it, since they run outside the HTTP stack.
func WithTenant(ctx context.Context, tid string) context.Context {
	if tid == "" {
		tid = DefaultTenantID
	}
	return context.WithValue(ctx, tenantCtxKey{}, tid)
}

// TenantIDFromContext returns the tenant stored in ctx, or
// DefaultTenantID when nothing set one.
func TenantIDFromContext(ctx context.Context) string {
	if tid, ok := ctx.Value(tenantCtxKey{}).(string); ok {
		return tid
	}
	return DefaultTenantID
}
