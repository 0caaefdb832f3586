package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/familyshare/familyshare/internal/handler/dto"
	"github.com/familyshare/familyshare/internal/metrics"
	"github.com/familyshare/familyshare/internal/service"
)

// CircleHandler handles HTTP requests for family circles.
type CircleHandler struct {
	svc     *service.CircleService
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewCircleHandler creates a new CircleHandler.
func NewCircleHandler(svc *service.CircleService, logger *slog.Logger, recorder metrics.Recorder) *CircleHandler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &CircleHandler{
		svc:     svc,
		logger:  logger,
		metrics: recorder,
	}
}

// Create handles POST /api/v1/circles.
func (h *CircleHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req dto.CreateCircleRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	circle, err := h.svc.CreateCircle(r.Context(), service.CreateCircleInput{
		CreatorID: actor.UserID,
		Name:      req.Name,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("circle_created",
		"circle_id", circle.ID,
		"creator_id", circle.CreatorID,
	)
	writeJSON(w, http.StatusCreated, circle)
}

// List handles GET /api/v1/circles.
func (h *CircleHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	circles, err := h.svc.ListCircles(r.Context(), actor.UserID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(circles))
}

// Get handles GET /api/v1/circles/{id}.
func (h *CircleHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	circle, err := h.svc.GetCircle(r.Context(), chi.URLParam(r, "id"), actor.UserID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, circle)
}

// Disband handles DELETE /api/v1/circles/{id}.
func (h *CircleHandler) Disband(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	if err := h.svc.Disband(r.Context(), id, actor.UserID); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("circle_disbanded",
		"circle_id", id,
		"actor_id", actor.UserID,
	)
	w.WriteHeader(http.StatusNoContent)
}

// AddMember handles POST /api/v1/circles/{id}/members.
func (h *CircleHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req dto.AddMemberRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	circle, err := h.svc.AddMember(r.Context(), service.MembershipInput{
		CircleID: chi.URLParam(r, "id"),
		UserID:   req.UserID,
		ActorID:  actor.UserID,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("circle_member_added",
		"circle_id", circle.ID,
		"user_id", req.UserID,
		"actor_id", actor.UserID,
	)
	writeJSON(w, http.StatusOK, circle)
}

// RemoveMember handles DELETE /api/v1/circles/{id}/members/{userID}.
func (h *CircleHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	userID := chi.URLParam(r, "userID")

	circle, err := h.svc.RemoveMember(r.Context(), service.MembershipInput{
		CircleID: chi.URLParam(r, "id"),
		UserID:   userID,
		ActorID:  actor.UserID,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("circle_member_removed",
		"circle_id", circle.ID,
		"user_id", userID,
		"actor_id", actor.UserID,
	)
	writeJSON(w, http.StatusOK, circle)
}

// SetSharing handles PUT /api/v1/circles/{id}/sharing.
// Callers can only toggle their own sharing flag.
func (h *CircleHandler) SetSharing(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req dto.SetSharingRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	circle, err := h.svc.SetSharing(r.Context(), chi.URLParam(r, "id"), actor.UserID, *req.Enabled)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("circle_sharing_set",
		"circle_id", circle.ID,
		"user_id", actor.UserID,
		"enabled", *req.Enabled,
	)
	writeJSON(w, http.StatusOK, circle)
}

// MemberLocation handles GET /api/v1/circles/{id}/members/{userID}/location.
func (h *CircleHandler) MemberLocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	view, err := h.svc.LocationOf(r.Context(), chi.URLParam(r, "id"), actor.UserID, chi.URLParam(r, "userID"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// UpdateMyLocation handles PUT /api/v1/me/location.
func (h *CircleHandler) UpdateMyLocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req dto.UpdateLocationRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	var at time.Time
	if req.At != nil {
		at = *req.At
	}

	n, err := h.svc.UpdateLocation(r.Context(), actor.UserID, toLatLng(req.LatLngRequest), at)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	h.metrics.IncLocationPush("http")

	writeJSON(w, http.StatusOK, dto.UpdateLocationResponse{CirclesUpdated: n})
}
