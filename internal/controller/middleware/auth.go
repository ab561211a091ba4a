// Package middleware contains HTTP middleware for the controller.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"contentplane/internal/auth"
	"contentplane/internal/store"
	"contentplane/pkg/api"

	"github.com/google/uuid"
)

// tenantKey is the context key for the authenticated tenant.
type tenantKey struct{}

// TenantGetter is the slice of the tenant store auth needs.
type TenantGetter interface {
	GetTenantByID(ctx context.Context, id uuid.UUID) (*store.Tenant, error)
	GetTenantByAPIKeyHash(ctx context.Context, hash string) (*store.Tenant, error)
}

// AuthMiddleware resolves the Bearer API key to a tenant and stores it on the
// request context. Every downstream operation is scoped to that tenant.
func AuthMiddleware(s TenantGetter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				unauthorized(w)
				return
			}

			parts := strings.Fields(header)
			if len(parts) != 2 || parts[0] != "Bearer" {
				unauthorized(w)
				return
			}

			hash := auth.HashKey(parts[1])
			tenant, err := s.GetTenantByAPIKeyHash(r.Context(), hash)
			if err != nil || tenant == nil {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), tenantKey{}, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFromContext extracts the authenticated tenant from the context.
func TenantFromContext(ctx context.Context) (*store.Tenant, bool) {
	t, ok := ctx.Value(tenantKey{}).(*store.Tenant)
	return t, ok
}

// WithTenant returns a context carrying the given tenant, used by tests.
func WithTenant(ctx context.Context, t *store.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey{}, t)
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(api.ErrorResponse{
		Error: "Unauthorized",
		Code:  "401",
	})
}
