package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/familyshare/familyshare/internal/events"
	"github.com/familyshare/familyshare/internal/model"
	"github.com/familyshare/familyshare/internal/store"
)

const (
	maxAlertTitleLength       = 200
	maxAlertDescriptionLength = 5000
	maxAlertFieldLength       = 500
	maxSightingMessageLength  = 2000
)

// AlertService runs the public alert board.
type AlertService struct {
	store store.AlertStore
	base
}

// NewAlertService creates a new AlertService.
func NewAlertService(st store.AlertStore, opts ...Option) *AlertService {
	return &AlertService{store: st, base: newBase(opts)}
}

// PostAlertInput defines input for posting an alert.
type PostAlertInput struct {
	CreatorID           string
	Type                model.AlertType
	Title               string
	Description         string
	Location            model.LatLng
	LocationDescription string
	LastSeenClothing    string
}

// PostAlert publishes a new active alert.
func (s *AlertService) PostAlert(ctx context.Context, input PostAlertInput) (*model.PublicAlert, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)

	switch {
	case title == "":
		return nil, ErrInvalidAlert.withDetail("title is required")
	case description == "":
		return nil, ErrInvalidAlert.withDetail("description is required")
	case utf8.RuneCountInString(title) > maxAlertTitleLength:
		return nil, ErrInvalidAlert.withDetail(fmt.Sprintf("title exceeds %d characters", maxAlertTitleLength))
	case utf8.RuneCountInString(description) > maxAlertDescriptionLength:
		return nil, ErrInvalidAlert.withDetail(fmt.Sprintf("description exceeds %d characters", maxAlertDescriptionLength))
	case utf8.RuneCountInString(input.LocationDescription) > maxAlertFieldLength,
		utf8.RuneCountInString(input.LastSeenClothing) > maxAlertFieldLength:
		return nil, ErrInvalidAlert.withDetail(fmt.Sprintf("text fields are limited to %d characters", maxAlertFieldLength))
	case !input.Type.IsValid():
		return nil, ErrInvalidAlert.withDetail("unknown alert type")
	}
	if err := input.Location.Validate(); err != nil {
		return nil, ErrInvalidAlert.withDetail("location out of range")
	}

	creator, err := s.profile(ctx, input.CreatorID)
	if err != nil {
		return nil, err
	}

	alert := &model.PublicAlert{
		ID:                  generateID(),
		Type:                input.Type,
		Title:               title,
		Description:         description,
		Location:            input.Location,
		LocationDescription: strings.TrimSpace(input.LocationDescription),
		LastSeenClothing:    strings.TrimSpace(input.LastSeenClothing),
		CreatedAt:           s.now(),
		CreatorID:           input.CreatorID,
		CreatorName:         creator.Name,
		Status:              model.AlertActive,
	}
	if err := s.store.CreateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}

	s.metrics.IncAlertPosted()
	s.emit(ctx, events.Event{Type: events.AlertPosted, EntityID: alert.ID, ActorID: alert.CreatorID, Status: string(alert.Status)})

	return alert, nil
}

// ReportSightingInput defines a sighting report. ReporterPseudonym must already
// be masked; the service never sees the reporter's account id.
type ReportSightingInput struct {
	AlertID           string
	ReporterPseudonym string
	Message           string
	PhotoURL          string
}

// ReportSighting attaches a sighting to an alert that is not resolved.
func (s *AlertService) ReportSighting(ctx context.Context, input ReportSightingInput) (*model.SightingReport, error) {
	message := strings.TrimSpace(input.Message)
	switch {
	case input.ReporterPseudonym == "":
		return nil, ErrInvalidSighting.withDetail("reporter is required")
	case message == "":
		return nil, ErrInvalidSighting.withDetail("message is required")
	case utf8.RuneCountInString(message) > maxSightingMessageLength:
		return nil, ErrInvalidSighting.withDetail(fmt.Sprintf("message exceeds %d characters", maxSightingMessageLength))
	}

	alert, err := s.load(ctx, input.AlertID)
	if err != nil {
		return nil, err
	}
	if alert.IsResolved() {
		return nil, ErrAlertNotFound
	}

	report := &model.SightingReport{
		ID:         generateID(),
		AlertID:    alert.ID,
		ReporterID: input.ReporterPseudonym,
		Message:    message,
		PhotoURL:   input.PhotoURL,
		CreatedAt:  s.now(),
	}
	// The store re-checks the alert state in the same write.
	if err := s.store.CreateSighting(ctx, report); err != nil {
		return nil, translate(err, ErrAlertNotFound)
	}

	s.metrics.IncSightingReported()
	s.emit(ctx, events.Event{Type: events.SightingReported, EntityID: report.ID, SubjectID: alert.ID})

	return report, nil
}

// Resolve closes an alert. Only the creator or a moderator may resolve.
func (s *AlertService) Resolve(ctx context.Context, alertID string, actor Actor) (*model.PublicAlert, error) {
	alert, err := s.load(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if actor.UserID != alert.CreatorID && !actor.Moderator {
		return nil, ErrNotAlertOwner
	}
	if alert.IsResolved() {
		return nil, ErrAlertResolved
	}

	now := s.now()
	alert.ResolvedAt = &now
	return s.transition(ctx, alert, model.AlertResolved, events.AlertResolved, actor.UserID)
}

// FlagForModeration hides an active alert until a moderator reviews it.
// Flagging an alert that is already pending is a no-op.
func (s *AlertService) FlagForModeration(ctx context.Context, alertID, actorID string) (*model.PublicAlert, error) {
	alert, err := s.load(ctx, alertID)
	if err != nil {
		return nil, err
	}
	switch alert.Status {
	case model.AlertResolved:
		return nil, ErrAlertResolved
	case model.AlertPendingModeration:
		return alert, nil
	}
	return s.transition(ctx, alert, model.AlertPendingModeration, events.AlertFlagged, actorID)
}

// Reinstate returns a flagged alert to the board. Moderators only.
func (s *AlertService) Reinstate(ctx context.Context, alertID string, actor Actor) (*model.PublicAlert, error) {
	if !actor.Moderator {
		return nil, ErrNotModerator
	}
	alert, err := s.load(ctx, alertID)
	if err != nil {
		return nil, err
	}
	switch alert.Status {
	case model.AlertResolved:
		return nil, ErrAlertResolved
	case model.AlertActive:
		return alert, nil
	}
	return s.transition(ctx, alert, model.AlertActive, events.AlertReinstated, actor.UserID)
}

// ListAlertsInput defines input for listing alerts.
type ListAlertsInput struct {
	Viewer Actor
	Status model.AlertStatus // defaults to active
	Type   model.AlertType
	Limit  int
}

// ListAlerts lists alerts newest first. Alerts awaiting moderation are listed
// for moderators only.
func (s *AlertService) ListAlerts(ctx context.Context, input ListAlertsInput) ([]*model.PublicAlert, error) {
	status := input.Status
	if status == "" {
		status = model.AlertActive
	}
	if !status.IsValid() {
		return nil, ErrInvalidFilter.withDetail("unknown status")
	}
	if input.Type != "" && !input.Type.IsValid() {
		return nil, ErrInvalidFilter.withDetail("unknown alert type")
	}
	if status == model.AlertPendingModeration && !input.Viewer.Moderator {
		return nil, ErrNotModerator
	}

	alerts, err := s.store.ListAlerts(ctx, store.AlertFilter{Status: status, Type: input.Type, Limit: input.Limit})
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// GetAlert returns an alert. Alerts awaiting moderation are hidden from
// everyone except their creator and moderators.
func (s *AlertService) GetAlert(ctx context.Context, alertID string, viewer Actor) (*model.PublicAlert, error) {
	alert, err := s.load(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.Status == model.AlertPendingModeration && viewer.UserID != alert.CreatorID && !viewer.Moderator {
		return nil, ErrAlertNotFound
	}
	return alert, nil
}

// ListSightings returns the reports on an alert to its creator or a moderator.
func (s *AlertService) ListSightings(ctx context.Context, alertID string, viewer Actor) ([]*model.SightingReport, error) {
	alert, err := s.load(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if viewer.UserID != alert.CreatorID && !viewer.Moderator {
		return nil, ErrNotAlertOwner
	}

	reports, err := s.store.ListSightings(ctx, alert.ID)
	if err != nil {
		return nil, translate(err, ErrAlertNotFound)
	}
	return reports, nil
}

func (s *AlertService) transition(ctx context.Context, alert *model.PublicAlert, to model.AlertStatus, eventType, actorID string) (*model.PublicAlert, error) {
	expected := alert.Version
	alert.Status = to
	if err := s.store.UpdateAlert(ctx, alert, expected); err != nil {
		return nil, s.conflict(translate(err, ErrAlertNotFound))
	}

	s.metrics.IncAlertTransition(string(to))
	s.emit(ctx, events.Event{Type: eventType, EntityID: alert.ID, ActorID: actorID, Status: string(to)})
	return alert, nil
}

func (s *AlertService) load(ctx context.Context, alertID string) (*model.PublicAlert, error) {
	alert, err := s.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, translate(err, ErrAlertNotFound)
	}
	return alert, nil
}
