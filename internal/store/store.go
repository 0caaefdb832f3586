// Package store defines the persistence contract of the workflow engine.
//
// Every entity carries a Version. Updates are compare-and-set on that version:
// an update whose expected version no longer matches fails with ErrConflict and
// leaves the stored record untouched.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/familyshare/familyshare/internal/model"
)

// Persistence errors shared by all implementations.
var (
	ErrNotFound  = errors.New("record not found")
	ErrConflict  = errors.New("version conflict")
	ErrDuplicate = errors.New("record already exists")
)

// CircleStore persists family circles together with their member lists.
type CircleStore interface {
	CreateCircle(ctx context.Context, c *model.FamilyCircle) error
	GetCircle(ctx context.Context, id string) (*model.FamilyCircle, error)
	ListCirclesForUser(ctx context.Context, userID string) ([]*model.FamilyCircle, error)
	// UpdateCircle replaces the circle if its stored version equals expectedVersion.
	// On success c.Version is advanced.
	UpdateCircle(ctx context.Context, c *model.FamilyCircle, expectedVersion int64) error
	// DisbandCircle deletes the circle, cancels its pending check-ins and revokes
	// its approved grants in one atomic step. It returns the number of check-ins touched.
	DisbandCircle(ctx context.Context, id string, expectedVersion int64, at time.Time) (int, error)
	// RemoveMember stores c, which no longer lists userID, under the same
	// compare-and-set as UpdateCircle. In the same atomic step it cancels the
	// circle's pending check-ins and revokes its approved grants where userID
	// is requester or target. It returns the number of check-ins touched.
	RemoveMember(ctx context.Context, c *model.FamilyCircle, expectedVersion int64, userID string, at time.Time) (int, error)
	// RecordLocation sets the last location of userID in every circle they
	// belong to, skipping entries that already hold a newer fix. It returns
	// the number of circles touched.
	RecordLocation(ctx context.Context, userID string, loc model.LatLng, at time.Time) (int, error)
}

// CheckInFilter narrows check-in listings. Empty fields match everything.
type CheckInFilter struct {
	CircleID    string
	RequesterID string
	TargetID    string
	Status      model.CheckInStatus
	Limit       int
}

// CheckInStore persists check-in requests.
type CheckInStore interface {
	CreateCheckIn(ctx context.Context, r *model.CheckInRequest) error
	GetCheckIn(ctx context.Context, id string) (*model.CheckInRequest, error)
	UpdateCheckIn(ctx context.Context, r *model.CheckInRequest, expectedVersion int64) error
	// ListCheckIns returns matching requests newest first.
	ListCheckIns(ctx context.Context, f CheckInFilter) ([]*model.CheckInRequest, error)
}

// AlertFilter narrows alert listings. Empty fields match everything.
type AlertFilter struct {
	Status    model.AlertStatus
	Type      model.AlertType
	CreatorID string
	Limit     int
}

// AlertStore persists public alerts and their sighting reports.
type AlertStore interface {
	CreateAlert(ctx context.Context, a *model.PublicAlert) error
	GetAlert(ctx context.Context, id string) (*model.PublicAlert, error)
	UpdateAlert(ctx context.Context, a *model.PublicAlert, expectedVersion int64) error
	ListAlerts(ctx context.Context, f AlertFilter) ([]*model.PublicAlert, error)
	// CreateSighting inserts the report only if its alert exists and is not
	// resolved; otherwise it returns ErrNotFound.
	CreateSighting(ctx context.Context, s *model.SightingReport) error
	ListSightings(ctx context.Context, alertID string) ([]*model.SightingReport, error)
}

// DeviceStore persists supervised devices.
type DeviceStore interface {
	CreateDevice(ctx context.Context, d *model.SupervisedDevice) error
	GetDevice(ctx context.Context, id string) (*model.SupervisedDevice, error)
	UpdateDevice(ctx context.Context, d *model.SupervisedDevice, expectedVersion int64) error
	ListDevicesByParent(ctx context.Context, parentID string) ([]*model.SupervisedDevice, error)
}

// Store is the full persistence surface used by the engine.
type Store interface {
	CircleStore
	CheckInStore
	AlertStore
	DeviceStore
	Ping(ctx context.Context) error
	Close()
}

// DefaultListLimit caps listings when the caller passes no limit.
const DefaultListLimit = 50

// NormalizeLimit applies DefaultListLimit to non-positive or oversized limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return DefaultListLimit
	}
	return limit
}
