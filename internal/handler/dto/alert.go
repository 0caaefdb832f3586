package dto

// PostAlertRequest represents the request body for posting an alert.
type PostAlertRequest struct {
	Type                string        `json:"type" validate:"required"`
	Title               string        `json:"title" validate:"required"`
	Description         string        `json:"description" validate:"required"`
	Location            LatLngRequest `json:"location"`
	LocationDescription string        `json:"location_description,omitempty"`
	LastSeenClothing    string        `json:"last_seen_clothing,omitempty"`
}

// ReportSightingRequest represents a tip submitted against an alert.
type ReportSightingRequest struct {
	Message  string `json:"message" validate:"required"`
	PhotoURL string `json:"photo_url,omitempty" validate:"omitempty,photo_url"`
}
