package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestWithAdmin(t *testing.T) {
	env := newTestEnv(t, "")

	viewer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		Role:             "viewer",
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign viewer token: %v", err)
	}
	expired, err := IssueAdminToken(testSecret, "ops-1", "", time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("sign expired token: %v", err)
	}
	foreign, err := IssueAdminToken("another-secret", "ops-1", "", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("sign foreign token: %v", err)
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + foreign, http.StatusUnauthorized},
		{"not admin", "Bearer " + viewer, http.StatusForbidden},
		{"admin", "Bearer " + adminToken(t), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/followups/analytics", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestWithAdminDisabledWithoutSecret(t *testing.T) {
	env := newTestEnv(t, "")
	env.router.cfg.JWTSecret = ""

	req := authorize(t, httptest.NewRequest(http.MethodGet, "/admin/followups/analytics", nil))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestBearerToken(t *testing.T) {
	t.Run("query token accepted on websocket upgrade", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/ws?token=abc", nil)
		req.Header.Set("Upgrade", "websocket")
		tok, err := bearerToken(req)
		if err != nil || tok != "abc" {
			t.Errorf("bearerToken = %q, %v", tok, err)
		}
	})

	t.Run("query token ignored on plain requests", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/insights?token=abc", nil)
		if _, err := bearerToken(req); err == nil {
			t.Error("expected an error without an Authorization header")
		}
	})
}

func TestIssueAdminTokenRequiresSecret(t *testing.T) {
	if _, err := IssueAdminToken("", "ops", "", time.Hour, time.Now()); err == nil {
		t.Error("expected an error without a secret")
	}
}
