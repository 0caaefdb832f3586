package dto

// RequestCheckInRequest represents the request body for a new check-in.
type RequestCheckInRequest struct {
	CircleID string `json:"circle_id" validate:"required"`
	TargetID string `json:"target_id" validate:"required"`
}

// RespondCheckInRequest is the target's answer. Location, photo and duration
// are read only when approving.
type RespondCheckInRequest struct {
	Decision string         `json:"decision" validate:"required"`
	Location *LatLngRequest `json:"location,omitempty"`
	PhotoURL string         `json:"photo_url,omitempty" validate:"omitempty,photo_url"`
	Duration string         `json:"duration,omitempty"`
}
