package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// readyTimeout bounds all dependency pings of one /readyz call.
const readyTimeout = 3 * time.Second

// HealthChecker is anything that can be pinged.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// DependencyCheck names one readiness dependency. A failing optional
// dependency degrades the report but keeps the instance in rotation.
type DependencyCheck struct {
	Name     string
	Checker  HealthChecker
	Optional bool
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	checks []DependencyCheck
	logger *slog.Logger
}

// NewHealthHandler builds probes over checks. Checks with a nil Checker are
// reported as "disabled".
func NewHealthHandler(logger *slog.Logger, checks ...DependencyCheck) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{checks: checks, logger: logger}
}

// HealthResponse is the probe body.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz reports that the process is up.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz pings every dependency. Status is "ok", "degraded" (an optional
// dependency is down) or "unavailable" with 503 (a required one is down).
// Error details go to the log, never to the response.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	code := http.StatusOK

	for _, c := range h.checks {
		if c.Checker == nil {
			resp.Checks[c.Name] = "disabled"
			continue
		}
		err := c.Checker.Ping(ctx)
		if err == nil {
			resp.Checks[c.Name] = "ok"
			continue
		}

		h.logger.Warn("readiness_check_failed",
			slog.String("dependency", c.Name),
			slog.Bool("optional", c.Optional),
			slog.String("error", err.Error()),
		)
		resp.Checks[c.Name] = "down"
		if c.Optional {
			if code == http.StatusOK {
				resp.Status = "degraded"
			}
			continue
		}
		resp.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, resp)
}
