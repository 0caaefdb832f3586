package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveCORS(t *testing.T, allowed []string, method, origin string) *httptest.ResponseRecorder {
	t.Helper()

	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = allowed
	handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(method, "/api/v1/circles", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCORS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantStatus int
		wantOrigin string
	}{
		{"nothing_configured", nil, "https://app.familyshare.test", http.MethodGet, http.StatusOK, ""},
		{"exact_match", []string{"https://app.familyshare.test"}, "https://app.familyshare.test", http.MethodGet, http.StatusOK, "https://app.familyshare.test"},
		{"case_insensitive", []string{"HTTPS://APP.FAMILYSHARE.TEST"}, "https://app.familyshare.test", http.MethodGet, http.StatusOK, "https://app.familyshare.test"},
		{"no_origin_header", []string{"https://app.familyshare.test"}, "", http.MethodGet, http.StatusOK, ""},
		{"preflight_allowed", []string{"https://app.familyshare.test"}, "https://app.familyshare.test", http.MethodOptions, http.StatusNoContent, "https://app.familyshare.test"},
		{"preflight_denied", []string{"https://app.familyshare.test"}, "https://evil.test", http.MethodOptions, http.StatusForbidden, ""},
		{"wildcard_subdomain", []string{"*.familyshare.test"}, "https://web.familyshare.test", http.MethodGet, http.StatusOK, "https://web.familyshare.test"},
		{"wildcard_with_port", []string{"*.familyshare.test"}, "http://web.familyshare.test:3000", http.MethodGet, http.StatusOK, "http://web.familyshare.test:3000"},
		{"wildcard_not_bare_domain", []string{"*.familyshare.test"}, "https://familyshare.test", http.MethodGet, http.StatusOK, ""},
		{"wildcard_not_lookalike", []string{"*.familyshare.test"}, "https://evilfamilyshare.test", http.MethodGet, http.StatusOK, ""},
		{"wildcard_rejects_other_scheme", []string{"*.familyshare.test"}, "file://web.familyshare.test", http.MethodGet, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := serveCORS(t, tt.allowed, tt.method, tt.origin)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
		})
	}
}

func TestCORSPreflightHeaders(t *testing.T) {
	t.Parallel()

	rec := serveCORS(t, []string{"https://app.familyshare.test"}, http.MethodOptions, "https://app.familyshare.test")

	want := map[string]string{
		"Access-Control-Allow-Methods":  "GET, POST, PUT, DELETE, OPTIONS",
		"Access-Control-Max-Age":        "86400",
		"Access-Control-Expose-Headers": "X-Request-ID, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After",
		"Vary":                          "Origin",
	}
	for header, value := range want {
		if got := rec.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
	if rec.Header().Get("Access-Control-Allow-Headers") == "" {
		t.Error("Access-Control-Allow-Headers not set on preflight")
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Error("credentials must not be allowed by default")
	}
}
