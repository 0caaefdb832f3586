package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/familyshare/familyshare/internal/handler/dto"
	"github.com/familyshare/familyshare/internal/model"
	"github.com/familyshare/familyshare/internal/service"
)

// Pseudonymizer derives the per-alert reporter identifier stored on sightings.
type Pseudonymizer interface {
	ForReporter(alertID, userID string) (string, error)
}

// AlertHandler handles HTTP requests for the public alert board.
type AlertHandler struct {
	svc        *service.AlertService
	pseudonyms Pseudonymizer
	logger     *slog.Logger
}

// NewAlertHandler creates a new AlertHandler.
func NewAlertHandler(svc *service.AlertService, pseudonyms Pseudonymizer, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{
		svc:        svc,
		pseudonyms: pseudonyms,
		logger:     logger,
	}
}

// Post handles POST /api/v1/alerts.
func (h *AlertHandler) Post(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req dto.PostAlertRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	alert, err := h.svc.PostAlert(r.Context(), service.PostAlertInput{
		CreatorID:           actor.UserID,
		Type:                model.AlertType(req.Type),
		Title:               req.Title,
		Description:         req.Description,
		Location:            toLatLng(req.Location),
		LocationDescription: req.LocationDescription,
		LastSeenClothing:    req.LastSeenClothing,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("alert_posted",
		"alert_id", alert.ID,
		"type", alert.Type,
		"creator_id", alert.CreatorID,
	)
	writeJSON(w, http.StatusCreated, alert)
}

// List handles GET /api/v1/alerts?status=&type=&limit=.
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, model.AlertStatus(r.URL.Query().Get("status")))
}

// ModerationQueue handles GET /api/v1/moderation/alerts.
func (h *AlertHandler) ModerationQueue(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, model.AlertPendingModeration)
}

func (h *AlertHandler) list(w http.ResponseWriter, r *http.Request, status model.AlertStatus) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	limit, ok := queryLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer")
		return
	}

	alerts, err := h.svc.ListAlerts(r.Context(), service.ListAlertsInput{
		Viewer: actor,
		Status: status,
		Type:   model.AlertType(r.URL.Query().Get("type")),
		Limit:  limit,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(alerts))
}

// Get handles GET /api/v1/alerts/{id}.
func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	alert, err := h.svc.GetAlert(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// Resolve handles POST /api/v1/alerts/{id}/resolve.
func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	alert, err := h.svc.Resolve(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("alert_resolved",
		"alert_id", alert.ID,
		"actor_id", actor.UserID,
	)
	writeJSON(w, http.StatusOK, alert)
}

// Flag handles POST /api/v1/alerts/{id}/flag.
func (h *AlertHandler) Flag(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	alert, err := h.svc.FlagForModeration(r.Context(), chi.URLParam(r, "id"), actor.UserID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("alert_flagged",
		"alert_id", alert.ID,
		"actor_id", actor.UserID,
	)
	writeJSON(w, http.StatusOK, alert)
}

// Reinstate handles POST /api/v1/alerts/{id}/reinstate.
func (h *AlertHandler) Reinstate(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	alert, err := h.svc.Reinstate(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("alert_reinstated",
		"alert_id", alert.ID,
		"actor_id", actor.UserID,
	)
	writeJSON(w, http.StatusOK, alert)
}

// ReportSighting handles POST /api/v1/alerts/{id}/sightings.
// The stored reporter id is a pseudonym derived from the caller and the alert.
func (h *AlertHandler) ReportSighting(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req dto.ReportSightingRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	alertID := chi.URLParam(r, "id")

	reporter, err := h.pseudonyms.ForReporter(alertID, actor.UserID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	report, err := h.svc.ReportSighting(r.Context(), service.ReportSightingInput{
		AlertID:           alertID,
		ReporterPseudonym: reporter,
		Message:           req.Message,
		PhotoURL:          req.PhotoURL,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("sighting_reported",
		"alert_id", report.AlertID,
		"sighting_id", report.ID,
	)
	writeJSON(w, http.StatusCreated, report)
}

// ListSightings handles GET /api/v1/alerts/{id}/sightings.
func (h *AlertHandler) ListSightings(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	reports, err := h.svc.ListSightings(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(reports))
}
