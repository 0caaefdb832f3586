// Package model defines domain entities for the application.
package model

import "time"

// CheckInStatus is the lifecycle state of a check-in request.
type CheckInStatus string

const (
	CheckInPending  CheckInStatus = "pending"
	CheckInApproved CheckInStatus = "approved"
	CheckInDeclined CheckInStatus = "declined"
	// CheckInCancelled is entered only when the owning circle is disbanded.
	CheckInCancelled CheckInStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed.
func (s CheckInStatus) IsTerminal() bool {
	return s != CheckInPending
}

// ShareDuration is how long an approved check-in stays visible.
type ShareDuration string

const (
	ShareOnce    ShareDuration = "once"
	ShareOneHour ShareDuration = "one_hour"
)

// IsValid checks if the duration is one of the supported values.
func (d ShareDuration) IsValid() bool {
	return d == ShareOnce || d == ShareOneHour
}

// Decision is the target's answer to a check-in request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDecline Decision = "decline"
)

// IsValid checks if the decision is approve or decline.
func (d Decision) IsValid() bool {
	return d == DecisionApprove || d == DecisionDecline
}

// CheckInRequest asks a circle member to share their location once or for an hour.
// RespondedAt, Location, PhotoURL, Duration and Grant are only set by a response.
type CheckInRequest struct {
	ID            string        `json:"id"`
	CircleID      string        `json:"circle_id"`
	RequesterID   string        `json:"requester_id"`
	RequesterName string        `json:"requester_name"`
	TargetID      string        `json:"target_id"`
	TargetName    string        `json:"target_name"`
	Status        CheckInStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	RespondedAt   *time.Time    `json:"responded_at,omitempty"`
	Location      *LatLng       `json:"location,omitempty"`
	PhotoURL      string        `json:"photo_url,omitempty"`
	Duration      ShareDuration `json:"duration,omitempty"`
	Grant         *Grant        `json:"grant,omitempty"`
	RevokedAt     *time.Time    `json:"revoked_at,omitempty"`
	Version       int64         `json:"version"`
}

// IsPending reports whether the request still awaits a response.
func (r *CheckInRequest) IsPending() bool {
	return r.Status == CheckInPending
}

// GrantActiveAt reports whether the approved location is visible to the
// requester at now. It is a pure function of the stored record.
func (r *CheckInRequest) GrantActiveAt(now time.Time) bool {
	if r.Status != CheckInApproved || r.Grant == nil || r.RevokedAt != nil {
		return false
	}
	return r.Grant.ActiveAt(now)
}

// Clone returns a deep copy of the request.
func (r *CheckInRequest) Clone() *CheckInRequest {
	out := *r
	out.Location = copyLatLng(r.Location)
	if r.Grant != nil {
		g := *r.Grant
		out.Grant = &g
	}
	return &out
}

// ViewFor returns the request as actorID may see it. Only the target sees the
// shared location and photo; the requester reads them through the grant.
func (r *CheckInRequest) ViewFor(actorID string) *CheckInRequest {
	out := r.Clone()
	if actorID != r.TargetID {
		out.Location = nil
		out.PhotoURL = ""
	}
	return out
}
