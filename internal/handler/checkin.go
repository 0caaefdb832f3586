package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/familyshare/familyshare/internal/handler/dto"
	"github.com/familyshare/familyshare/internal/model"
	"github.com/familyshare/familyshare/internal/service"
)

// CheckInHandler handles HTTP requests for check-in requests.
type CheckInHandler struct {
	svc    *service.CheckInService
	logger *slog.Logger
}

// NewCheckInHandler creates a new CheckInHandler.
func NewCheckInHandler(svc *service.CheckInService, logger *slog.Logger) *CheckInHandler {
	return &CheckInHandler{
		svc:    svc,
		logger: logger,
	}
}

// Request handles POST /api/v1/check-ins.
func (h *CheckInHandler) Request(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req dto.RequestCheckInRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	checkIn, err := h.svc.Request(r.Context(), service.RequestCheckInInput{
		CircleID:    req.CircleID,
		RequesterID: actor.UserID,
		TargetID:    req.TargetID,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("check_in_requested",
		"check_in_id", checkIn.ID,
		"circle_id", checkIn.CircleID,
		"requester_id", checkIn.RequesterID,
		"target_id", checkIn.TargetID,
	)
	writeJSON(w, http.StatusCreated, checkIn)
}

// Respond handles POST /api/v1/check-ins/{id}/respond.
func (h *CheckInHandler) Respond(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req dto.RespondCheckInRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	input := service.RespondInput{
		RequestID: chi.URLParam(r, "id"),
		ActorID:   actor.UserID,
		Decision:  model.Decision(req.Decision),
		PhotoURL:  req.PhotoURL,
		Duration:  model.ShareDuration(req.Duration),
	}
	if req.Location != nil {
		loc := toLatLng(*req.Location)
		input.Location = &loc
	}

	checkIn, err := h.svc.Respond(r.Context(), input)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("check_in_responded",
		"check_in_id", checkIn.ID,
		"status", checkIn.Status,
		"duration", checkIn.Duration,
	)
	writeJSON(w, http.StatusOK, checkIn)
}

// Get handles GET /api/v1/check-ins/{id}.
func (h *CheckInHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	checkIn, err := h.svc.GetCheckIn(r.Context(), chi.URLParam(r, "id"), actor.UserID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, checkIn)
}

// List handles GET /api/v1/check-ins?direction=&status=&limit=.
func (h *CheckInHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	limit, ok := queryLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer")
		return
	}

	q := r.URL.Query()
	checkIns, err := h.svc.ListCheckIns(r.Context(), service.ListCheckInsInput{
		UserID:    actor.UserID,
		Direction: q.Get("direction"),
		Status:    model.CheckInStatus(q.Get("status")),
		Limit:     limit,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(checkIns))
}
