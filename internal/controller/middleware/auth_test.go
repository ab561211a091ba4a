package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"contentplane/internal/auth"
	"contentplane/internal/store"
)

// mockTenantStore implements TenantGetter for testing
type mockTenantStore struct {
	tenant *store.Tenant
	err    error

	gotHash string
}

func (m *mockTenantStore) GetTenantByID(ctx context.Context, id uuid.UUID) (*store.Tenant, error) {
	return m.tenant, m.err
}

func (m *mockTenantStore) GetTenantByAPIKeyHash(ctx context.Context, hash string) (*store.Tenant, error) {
	m.gotHash = hash
	return m.tenant, m.err
}

func TestAuthMiddleware_MissingAuthHeader(t *testing.T) {
	mockStore := &mockTenantStore{}
	middleware := AuthMiddleware(mockStore)

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_InvalidAuthHeaderFormat(t *testing.T) {
	mockStore := &mockTenantStore{}
	middleware := AuthMiddleware(mockStore)

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "api-key-123"},
		{"wrong prefix", "Basic api-key-123"},
		{"too many parts", "Bearer key1 key2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", tt.header)
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Errorf("got status %d, want %d", rr.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestAuthMiddleware_StoreError(t *testing.T) {
	mockStore := &mockTenantStore{
		err: errors.New("database error"),
	}
	middleware := AuthMiddleware(mockStore)

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer cp_some-key")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_Success(t *testing.T) {
	tenant := &store.Tenant{ID: uuid.New(), Name: "acme"}
	mockStore := &mockTenantStore{tenant: tenant}
	middleware := AuthMiddleware(mockStore)

	var gotTenant *store.Tenant
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenant, _ = TenantFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer cp_valid-key")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", rr.Code, http.StatusOK)
	}
	if gotTenant == nil || gotTenant.ID != tenant.ID {
		t.Errorf("handler saw tenant %v, want %v", gotTenant, tenant)
	}
	if mockStore.gotHash != auth.HashKey("cp_valid-key") {
		t.Error("middleware must look up the hashed key, not the raw one")
	}
}

func TestAdminOnly(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name     string
		secret   string
		header   string
		wantCode int
	}{
		{"correct secret", "s3cret", "Bearer s3cret", http.StatusOK},
		{"wrong secret", "s3cret", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "s3cret", "", http.StatusUnauthorized},
		{"disabled when unconfigured", "", "Bearer anything", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := AdminOnly(tt.secret)(next)
			req := httptest.NewRequest(http.MethodPost, "/tenants", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.wantCode {
				t.Errorf("got status %d, want %d", rr.Code, tt.wantCode)
			}
		})
	}
}
