package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/akl-logistics/dispatchdesk/internal/config"
)

func authRequest(t *testing.T, cfg *config.SecurityConfig, apiKey string) *httptest.ResponseRecorder {
	t.Helper()

	handler := APIKeyAuth(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/batches", nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAPIKeyAuth_Disabled(t *testing.T) {
	cfg := &config.SecurityConfig{RequireAPIKey: false}

	rec := authRequest(t, cfg, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204 passthrough", rec.Code)
	}
}

func TestAPIKeyAuth_MissingKey(t *testing.T) {
	cfg := &config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1"}}

	rec := authRequest(t, cfg, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "AUTH_MISSING_KEY") {
		t.Errorf("body = %q, want AUTH_MISSING_KEY code", rec.Body.String())
	}
}

func TestAPIKeyAuth_InvalidKey(t *testing.T) {
	cfg := &config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1", "k2"}}

	rec := authRequest(t, cfg, "wrong")
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "AUTH_INVALID_KEY") {
		t.Errorf("body = %q, want AUTH_INVALID_KEY code", rec.Body.String())
	}
}

func TestAPIKeyAuth_ValidKey(t *testing.T) {
	cfg := &config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1", "k2"}}

	// Any configured key is accepted
	for _, key := range []string{"k1", "k2"} {
		rec := authRequest(t, cfg, key)
		if rec.Code != http.StatusNoContent {
			t.Errorf("key %q: status = %d, want 204", key, rec.Code)
		}
	}
}

func TestAPIKeyAuth_NoKeysConfigured(t *testing.T) {
	// Auth required but no keys on file rejects everything rather than
	// failing open.
	cfg := &config.SecurityConfig{RequireAPIKey: true}

	rec := authRequest(t, cfg, "anything")
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestIsValidAPIKey(t *testing.T) {
	keys := []string{"alpha", "beta"}

	tests := []struct {
		key  string
		want bool
	}{
		{"alpha", true},
		{"beta", true},
		{"gamma", false},
		{"", false},
		{"alph", false},
	}

	for _, tt := range tests {
		if got := isValidAPIKey(tt.key, keys); got != tt.want {
			t.Errorf("isValidAPIKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}
