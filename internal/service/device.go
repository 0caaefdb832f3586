package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/familyshare/familyshare/internal/events"
	"github.com/familyshare/familyshare/internal/model"
	"github.com/familyshare/familyshare/internal/store"
)

const (
	maxApprovedApps  = 200
	maxAppNameLength = 255
)

// DeviceService manages parent-supervised child devices.
type DeviceService struct {
	store store.DeviceStore
	base
}

// NewDeviceService creates a new DeviceService.
func NewDeviceService(st store.DeviceStore, opts ...Option) *DeviceService {
	return &DeviceService{store: st, base: newBase(opts)}
}

// InviteDeviceInput defines input for inviting a child device.
type InviteDeviceInput struct {
	ParentID  string
	ChildID   string
	ChildName string
}

// InviteDevice creates a pending device that waits for the child's consent.
func (s *DeviceService) InviteDevice(ctx context.Context, input InviteDeviceInput) (*model.SupervisedDevice, error) {
	if input.ChildID == "" {
		return nil, ErrInvalidDevice.withDetail("child is required")
	}
	if input.ChildID == input.ParentID {
		return nil, ErrInvalidDevice.withDetail("cannot supervise yourself")
	}

	child, err := s.profile(ctx, input.ChildID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.ChildName)
	if name == "" {
		name = child.Name
	}

	device := &model.SupervisedDevice{
		ID:             generateID(),
		ParentID:       input.ParentID,
		ChildID:        input.ChildID,
		ChildName:      name,
		ChildAvatarURL: child.AvatarURL,
		Status:         model.DevicePending,
		ApprovedApps:   []string{},
		CreatedAt:      s.now(),
	}
	if err := s.store.CreateDevice(ctx, device); err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	s.metrics.IncDeviceTransition(string(model.DevicePending))
	s.emit(ctx, events.Event{Type: events.DeviceInvited, EntityID: device.ID, ActorID: input.ParentID, SubjectID: input.ChildID, Status: string(device.Status)})

	return device.Redacted(), nil
}

// ConfirmConsent activates supervision. Only the child may consent.
func (s *DeviceService) ConfirmConsent(ctx context.Context, deviceID, childID string) (*model.SupervisedDevice, error) {
	device, err := s.load(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if childID != device.ChildID {
		return nil, ErrNotChild
	}
	switch device.Status {
	case model.DeviceRevoked:
		return nil, ErrDeviceRevoked
	case model.DeviceActive:
		return nil, ErrAlreadyConfirmed
	}

	now := s.now()
	device.Status = model.DeviceActive
	device.ConsentedAt = &now
	return s.transition(ctx, device, events.DeviceConsented, childID)
}

// Revoke ends supervision. It is terminal; supervising again needs a new invite.
func (s *DeviceService) Revoke(ctx context.Context, deviceID, actorID string) (*model.SupervisedDevice, error) {
	device, err := s.load(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if actorID != device.ParentID {
		return nil, ErrNotParent
	}
	if device.IsRevoked() {
		return nil, ErrDeviceRevoked
	}

	now := s.now()
	device.Status = model.DeviceRevoked
	device.RevokedAt = &now
	return s.transition(ctx, device, events.DeviceRevoked, actorID)
}

// UpdateLimitsInput defines new limits for a device.
type UpdateLimitsInput struct {
	DeviceID        string
	ActorID         string
	ScreenTimeLimit int // minutes per day, 0 = no limit
	ApprovedApps    []string
}

// UpdateLimits replaces the screen-time limit and approved apps. Parent only.
func (s *DeviceService) UpdateLimits(ctx context.Context, input UpdateLimitsInput) (*model.SupervisedDevice, error) {
	device, err := s.load(ctx, input.DeviceID)
	if err != nil {
		return nil, err
	}
	if input.ActorID != device.ParentID {
		return nil, ErrNotParent
	}
	if device.IsRevoked() {
		return nil, ErrDeviceRevoked
	}
	if input.ScreenTimeLimit < 0 || input.ScreenTimeLimit > model.MaxScreenTimeLimit {
		return nil, ErrInvalidLimits.withDetail(fmt.Sprintf("screen time limit must be between 0 and %d minutes", model.MaxScreenTimeLimit))
	}
	apps, err := normalizeApps(input.ApprovedApps)
	if err != nil {
		return nil, err
	}

	expected := device.Version
	device.ScreenTimeLimit = input.ScreenTimeLimit
	device.ApprovedApps = apps
	if err := s.store.UpdateDevice(ctx, device, expected); err != nil {
		return nil, s.conflict(translate(err, ErrDeviceNotFound))
	}

	s.emit(ctx, events.Event{Type: events.DeviceLimitsUpdated, EntityID: device.ID, ActorID: input.ActorID, SubjectID: device.ChildID, Status: string(device.Status)})
	return device.Redacted(), nil
}

// ReportDeviceLocation stores the child's location. Only active devices report.
func (s *DeviceService) ReportDeviceLocation(ctx context.Context, deviceID, childID string, loc model.LatLng, at time.Time) (*model.SupervisedDevice, error) {
	if err := loc.Validate(); err != nil {
		return nil, ErrInvalidLocation
	}
	at, err := s.fixTime(at)
	if err != nil {
		return nil, err
	}
	device, err := s.load(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if childID != device.ChildID {
		return nil, ErrNotChild
	}
	switch device.Status {
	case model.DeviceRevoked:
		return nil, ErrDeviceRevoked
	case model.DevicePending:
		return nil, ErrDeviceNotActive
	}

	expected := device.Version
	device.LastLocation = &loc
	device.LastSeen = &at
	if err := s.store.UpdateDevice(ctx, device, expected); err != nil {
		return nil, s.conflict(translate(err, ErrDeviceNotFound))
	}
	return device.Redacted(), nil
}

// ListDevices returns the devices parentID supervises.
func (s *DeviceService) ListDevices(ctx context.Context, parentID string) ([]*model.SupervisedDevice, error) {
	devices, err := s.store.ListDevicesByParent(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	out := make([]*model.SupervisedDevice, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.Redacted())
	}
	return out, nil
}

// GetDevice returns a device to its parent or child.
func (s *DeviceService) GetDevice(ctx context.Context, deviceID, actorID string) (*model.SupervisedDevice, error) {
	device, err := s.load(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if actorID != device.ParentID && actorID != device.ChildID {
		return nil, ErrNotParent
	}
	return device.Redacted(), nil
}

func (s *DeviceService) transition(ctx context.Context, device *model.SupervisedDevice, eventType, actorID string) (*model.SupervisedDevice, error) {
	expected := device.Version
	if err := s.store.UpdateDevice(ctx, device, expected); err != nil {
		return nil, s.conflict(translate(err, ErrDeviceNotFound))
	}

	s.metrics.IncDeviceTransition(string(device.Status))
	s.emit(ctx, events.Event{Type: eventType, EntityID: device.ID, ActorID: actorID, SubjectID: device.ChildID, Status: string(device.Status)})
	return device.Redacted(), nil
}

func (s *DeviceService) load(ctx context.Context, deviceID string) (*model.SupervisedDevice, error) {
	device, err := s.store.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, translate(err, ErrDeviceNotFound)
	}
	return device, nil
}

func normalizeApps(apps []string) ([]string, error) {
	if len(apps) > maxApprovedApps {
		return nil, ErrInvalidLimits.withDetail(fmt.Sprintf("at most %d approved apps", maxApprovedApps))
	}
	out := make([]string, 0, len(apps))
	seen := make(map[string]struct{}, len(apps))
	for _, app := range apps {
		app = strings.TrimSpace(app)
		if app == "" {
			continue
		}
		if len(app) > maxAppNameLength {
			return nil, ErrInvalidLimits.withDetail("app identifier too long")
		}
		if _, dup := seen[app]; dup {
			continue
		}
		seen[app] = struct{}{}
		out = append(out, app)
	}
	return out, nil
}
