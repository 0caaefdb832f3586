// Package model defines domain entities for the application.
package model

import (
	"errors"
	"math"
	"time"
)

// ErrInvalidLocation is returned when coordinates fall outside valid degree ranges.
var ErrInvalidLocation = errors.New("invalid location")

// LatLng is a WGS84 coordinate pair in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks that latitude is within [-90, 90] and longitude within [-180, 180].
func (l LatLng) Validate() error {
	if math.IsNaN(l.Lat) || math.IsNaN(l.Lng) {
		return ErrInvalidLocation
	}
	if l.Lat < -90 || l.Lat > 90 || l.Lng < -180 || l.Lng > 180 {
		return ErrInvalidLocation
	}
	return nil
}

// copyLatLng returns a detached copy so views never alias stored records.
func copyLatLng(l *LatLng) *LatLng {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

// LocationSource says which rule made a member's location visible to a viewer.
type LocationSource string

const (
	SourceSelf    LocationSource = "self"
	SourceLive    LocationSource = "live"
	SourceCheckIn LocationSource = "check_in"
	SourceNone    LocationSource = "none"
)

// LocationView is the result of reading one member's location.
// Location is nil whenever Source is SourceNone.
type LocationView struct {
	CircleID  string         `json:"circle_id"`
	MemberID  string         `json:"member_id"`
	Source    LocationSource `json:"source"`
	Location  *LatLng        `json:"location,omitempty"`
	LastSeen  *time.Time     `json:"last_seen,omitempty"`
	PhotoURL  string         `json:"photo_url,omitempty"`
	CheckInID string         `json:"check_in_id,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	// Expired is set when the only grant the viewer held is no longer active.
	Expired bool `json:"expired,omitempty"`
}
