package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/familyshare/familyshare/internal/handler/dto"
	"github.com/familyshare/familyshare/internal/service"
)

// DeviceHandler handles HTTP requests for supervised devices.
type DeviceHandler struct {
	svc    *service.DeviceService
	logger *slog.Logger
}

// NewDeviceHandler creates a new DeviceHandler.
func NewDeviceHandler(svc *service.DeviceService, logger *slog.Logger) *DeviceHandler {
	return &DeviceHandler{
		svc:    svc,
		logger: logger,
	}
}

// Invite handles POST /api/v1/devices.
func (h *DeviceHandler) Invite(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req dto.InviteDeviceRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	device, err := h.svc.InviteDevice(r.Context(), service.InviteDeviceInput{
		ParentID:  actor.UserID,
		ChildID:   req.ChildID,
		ChildName: req.ChildName,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("device_invited",
		"device_id", device.ID,
		"parent_id", device.ParentID,
		"child_id", device.ChildID,
	)
	writeJSON(w, http.StatusCreated, device)
}

// List handles GET /api/v1/devices.
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	devices, err := h.svc.ListDevices(r.Context(), actor.UserID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewList(devices))
}

// Get handles GET /api/v1/devices/{id}.
func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	device, err := h.svc.GetDevice(r.Context(), chi.URLParam(r, "id"), actor.UserID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

// Consent handles POST /api/v1/devices/{id}/consent.
func (h *DeviceHandler) Consent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	device, err := h.svc.ConfirmConsent(r.Context(), chi.URLParam(r, "id"), actor.UserID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("device_consented",
		"device_id", device.ID,
		"child_id", device.ChildID,
	)
	writeJSON(w, http.StatusOK, device)
}

// Revoke handles POST /api/v1/devices/{id}/revoke.
func (h *DeviceHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	device, err := h.svc.Revoke(r.Context(), chi.URLParam(r, "id"), actor.UserID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("device_revoked",
		"device_id", device.ID,
		"actor_id", actor.UserID,
	)
	writeJSON(w, http.StatusOK, device)
}

// UpdateLimits handles PUT /api/v1/devices/{id}/limits.
func (h *DeviceHandler) UpdateLimits(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req dto.UpdateLimitsRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	device, err := h.svc.UpdateLimits(r.Context(), service.UpdateLimitsInput{
		DeviceID:        chi.URLParam(r, "id"),
		ActorID:         actor.UserID,
		ScreenTimeLimit: *req.ScreenTimeLimit,
		ApprovedApps:    req.ApprovedApps,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("device_limits_updated",
		"device_id", device.ID,
		"screen_time_limit", device.ScreenTimeLimit,
		"approved_apps", len(device.ApprovedApps),
	)
	writeJSON(w, http.StatusOK, device)
}

// ReportLocation handles PUT /api/v1/devices/{id}/location.
func (h *DeviceHandler) ReportLocation(w http.ResponseWriter, r *http.Request) {
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

	device, err := h.svc.ReportDeviceLocation(r.Context(), chi.URLParam(r, "id"), actor.UserID, toLatLng(req.LatLngRequest), at)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}
