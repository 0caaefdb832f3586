// Package model defines domain entities for the application.
package model

import "time"

// AlertType classifies a public alert.
type AlertType string

const (
	AlertMissingPerson   AlertType = "missing_person"
	AlertLostPet         AlertType = "lost_pet"
	AlertCommunitySafety AlertType = "community_safety"
)

// IsValid checks if the alert type is known.
func (t AlertType) IsValid() bool {
	switch t {
	case AlertMissingPerson, AlertLostPet, AlertCommunitySafety:
		return true
	}
	return false
}

// AlertStatus is the moderation/lifecycle state of a public alert.
type AlertStatus string

const (
	AlertActive            AlertStatus = "active"
	AlertResolved          AlertStatus = "resolved"
	AlertPendingModeration AlertStatus = "pending_moderation"
)

// IsValid checks if the status is known.
func (s AlertStatus) IsValid() bool {
	switch s {
	case AlertActive, AlertResolved, AlertPendingModeration:
		return true
	}
	return false
}

// PublicAlert is a community-visible alert about a missing person, lost pet or safety issue.
type PublicAlert struct {
	ID                  string      `json:"id"`
	Type                AlertType   `json:"type"`
	Title               string      `json:"title"`
	Description         string      `json:"description"`
	Location            LatLng      `json:"location"`
	LocationDescription string      `json:"location_description"`
	LastSeenClothing    string      `json:"last_seen_clothing,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	CreatorID           string      `json:"creator_id"`
	CreatorName         string      `json:"creator_name"`
	Status              AlertStatus `json:"status"`
	ResolvedAt          *time.Time  `json:"resolved_at,omitempty"`
	Version             int64       `json:"version"`
}

// IsResolved reports whether the alert reached its terminal state.
func (a *PublicAlert) IsResolved() bool {
	return a.Status == AlertResolved
}

// SightingReport is a tip submitted against an alert. ReporterID is a
// per-alert pseudonym, never the reporter's account id.
type SightingReport struct {
	ID         string    `json:"id"`
	AlertID    string    `json:"alert_id"`
	ReporterID string    `json:"reporter_id"`
	Message    string    `json:"message"`
	PhotoURL   string    `json:"photo_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
