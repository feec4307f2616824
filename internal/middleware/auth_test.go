package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ttygate/ttygate/internal/auth"
)

func newTestManager(t *testing.T) *auth.TokenManager {
	t.Helper()
	return auth.NewTokenManager("middleware-test-secret-0123456789ab", 15*time.Minute, 7*24*time.Hour)
}

func protected(t *testing.T, tokens *auth.TokenManager) http.Handler {
	t.Helper()
	return RequireAuth(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetClaims(r) == nil {
			t.Error("claims missing from authenticated request context")
		}
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	tokens := newTestManager(t)
	token, err := tokens.CreateAccessToken()
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protected(t, tokens).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestRequireAuthRejects(t *testing.T) {
	tokens := newTestManager(t)
	refresh, err := tokens.CreateRefreshToken()
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"garbage token", "Bearer not-a-jwt"},
		{"refresh token", "Bearer " + refresh},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			protected(t, tokens).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}
