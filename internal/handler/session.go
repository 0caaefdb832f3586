package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// SignOuter records a sign-out watermark for a user.
type SignOuter interface {
	SignOut(ctx context.Context, userID string, at time.Time) error
}

// SessionHandler handles caller session endpoints.
type SessionHandler struct {
	sessions SignOuter
	logger   *slog.Logger
	now      func() time.Time
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions SignOuter, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// SignOut handles POST /api/v1/me/sign-out.
// Every token the caller holds that was issued up to now stops working.
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	if err := h.sessions.SignOut(r.Context(), actor.UserID, h.now()); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("user_signed_out", "user_id", actor.UserID)
	w.WriteHeader(http.StatusNoContent)
}
