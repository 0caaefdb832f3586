// Package model defines domain entities for the application.
package model

import (
	"slices"
	"time"
)

// DeviceStatus is the consent state of a supervised device.
type DeviceStatus string

const (
	DevicePending DeviceStatus = "pending"
	DeviceActive  DeviceStatus = "active"
	DeviceRevoked DeviceStatus = "revoked"
)

// MaxScreenTimeLimit is one day in minutes.
const MaxScreenTimeLimit = 24 * 60

// SupervisedDevice is a child's device under a parent's supervision.
// Revoked is terminal; re-supervising requires a new record.
type SupervisedDevice struct {
	ID              string       `json:"id"`
	ParentID        string       `json:"parent_id"`
	ChildID         string       `json:"child_id"`
	ChildName       string       `json:"child_name"`
	ChildAvatarURL  string       `json:"child_avatar_url,omitempty"`
	Status          DeviceStatus `json:"status"`
	LastLocation    *LatLng      `json:"last_location,omitempty"`
	LastSeen        *time.Time   `json:"last_seen,omitempty"`
	ScreenTimeLimit int          `json:"screen_time_limit"` // minutes, 0 = no limit
	ApprovedApps    []string     `json:"approved_apps"`
	CreatedAt       time.Time    `json:"created_at"`
	ConsentedAt     *time.Time   `json:"consented_at,omitempty"`
	RevokedAt       *time.Time   `json:"revoked_at,omitempty"`
	Version         int64        `json:"version"`
}

// IsRevoked returns true if supervision has ended.
func (d *SupervisedDevice) IsRevoked() bool {
	return d.Status == DeviceRevoked
}

// Clone returns a deep copy of the device.
func (d *SupervisedDevice) Clone() *SupervisedDevice {
	out := *d
	out.LastLocation = copyLatLng(d.LastLocation)
	out.ApprovedApps = slices.Clone(d.ApprovedApps)
	if out.ApprovedApps == nil {
		out.ApprovedApps = []string{}
	}
	return &out
}

// Redacted hides location data unless the device is active.
func (d *SupervisedDevice) Redacted() *SupervisedDevice {
	out := d.Clone()
	if out.Status != DeviceActive {
		out.LastLocation = nil
		out.LastSeen = nil
	}
	return out
}
