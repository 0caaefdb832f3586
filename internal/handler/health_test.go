package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

var (
	pingOK   = pingFunc(func(context.Context) error { return nil })
	pingDown = pingFunc(func(context.Context) error { return errors.New("dial tcp 10.0.0.7:5432: connection refused") })
)

func serveProbe(t *testing.T, h *HealthHandler, path string) (*httptest.ResponseRecorder, HealthResponse) {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if path == "/healthz" {
		h.Healthz(rec, req)
	} else {
		h.Readyz(rec, req)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func TestHealthz_AlwaysOK(t *testing.T) {
	h := NewHealthHandler(nil, DependencyCheck{Name: "store", Checker: pingDown})

	rec, resp := serveProbe(t, h, "/healthz")
	if rec.Code != http.StatusOK || resp.Status != "ok" {
		t.Errorf("healthz = %d %q, want 200 ok", rec.Code, resp.Status)
	}
}

func TestReadyz(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		checks     []DependencyCheck
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name: "all_up",
			checks: []DependencyCheck{
				{Name: "store", Checker: pingOK},
				{Name: "redis", Checker: pingOK},
				{Name: "mqtt", Checker: pingOK, Optional: true},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"store": "ok", "redis": "ok", "mqtt": "ok"},
		},
		{
			name: "store_down",
			checks: []DependencyCheck{
				{Name: "store", Checker: pingDown},
				{Name: "redis", Checker: pingOK},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unavailable",
			wantChecks: map[string]string{"store": "down", "redis": "ok"},
		},
		{
			name: "optional_down",
			checks: []DependencyCheck{
				{Name: "store", Checker: pingOK},
				{Name: "mqtt", Checker: pingDown, Optional: true},
			},
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
			wantChecks: map[string]string{"store": "ok", "mqtt": "down"},
		},
		{
			name: "required_down_wins_over_optional",
			checks: []DependencyCheck{
				{Name: "mqtt", Checker: pingDown, Optional: true},
				{Name: "store", Checker: pingDown},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unavailable",
			wantChecks: map[string]string{"store": "down", "mqtt": "down"},
		},
		{
			name: "disabled_dependencies",
			checks: []DependencyCheck{
				{Name: "store", Checker: pingOK},
				{Name: "redis"},
				{Name: "mqtt", Optional: true},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"store": "ok", "redis": "disabled", "mqtt": "disabled"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := serveProbe(t, NewHealthHandler(logger, tt.checks...), "/readyz")

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if got := resp.Checks[name]; got != want {
					t.Errorf("checks[%s] = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_HidesErrorDetails(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHealthHandler(logger, DependencyCheck{Name: "store", Checker: pingDown})

	rec, _ := serveProbe(t, h, "/readyz")
	if strings.Contains(rec.Body.String(), "10.0.0.7") {
		t.Errorf("readiness body leaked dependency error: %s", rec.Body.String())
	}
}
