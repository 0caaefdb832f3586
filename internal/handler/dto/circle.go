package dto

import (
	"time"

	"github.com/familyshare/familyshare/internal/model"
)

// CreateCircleRequest represents the request body for creating a circle.
type CreateCircleRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// AddMemberRequest represents the request body for adding a member.
type AddMemberRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
}

// SetSharingRequest toggles live location sharing for the caller.
type SetSharingRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// UpdateLocationRequest reports the caller's current position.
// At defaults to the server time when omitted.
type UpdateLocationRequest struct {
	LatLngRequest
	At *time.Time `json:"at,omitempty"`
}

// UpdateLocationResponse reports how many circles recorded the fix.
type UpdateLocationResponse struct {
	CirclesUpdated int `json:"circles_updated"`
}

// CircleListResponse lists circles visible to the caller.
type CircleListResponse = ListResponse[*model.FamilyCircle]
