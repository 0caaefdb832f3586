package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/familyshare/familyshare/internal/model"
)

// Memory is an in-process Store. Records are cloned on the way in and out so
// callers never share storage with the map.
type Memory struct {
	mu        sync.RWMutex
	circles   map[string]*model.FamilyCircle
	checkIns  map[string]*model.CheckInRequest
	alerts    map[string]*model.PublicAlert
	sightings map[string][]*model.SightingReport
	devices   map[string]*model.SupervisedDevice
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		circles:   make(map[string]*model.FamilyCircle),
		checkIns:  make(map[string]*model.CheckInRequest),
		alerts:    make(map[string]*model.PublicAlert),
		sightings: make(map[string][]*model.SightingReport),
		devices:   make(map[string]*model.SupervisedDevice),
	}
}

var _ Store = (*Memory)(nil)

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() {}

// ---------------------------------------------------------------------------
// circles
// ---------------------------------------------------------------------------

func (m *Memory) CreateCircle(_ context.Context, c *model.FamilyCircle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.circles[c.ID]; ok {
		return ErrDuplicate
	}
	c.Version = 1
	m.circles[c.ID] = c.Clone()
	return nil
}

func (m *Memory) GetCircle(_ context.Context, id string) (*model.FamilyCircle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.circles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (m *Memory) ListCirclesForUser(_ context.Context, userID string) ([]*model.FamilyCircle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.FamilyCircle
	for _, c := range m.circles {
		if c.HasMember(userID) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) UpdateCircle(_ context.Context, c *model.FamilyCircle, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.circles[c.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expectedVersion {
		return ErrConflict
	}
	c.Version = expectedVersion + 1
	m.circles[c.ID] = c.Clone()
	return nil
}

func (m *Memory) DisbandCircle(_ context.Context, id string, expectedVersion int64, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.circles[id]
	if !ok {
		return 0, ErrNotFound
	}
	if cur.Version != expectedVersion {
		return 0, ErrConflict
	}
	delete(m.circles, id)

	return m.invalidateCheckIns(id, "", at), nil
}

func (m *Memory) RemoveMember(_ context.Context, c *model.FamilyCircle, expectedVersion int64, userID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.circles[c.ID]
	if !ok {
		return 0, ErrNotFound
	}
	if cur.Version != expectedVersion {
		return 0, ErrConflict
	}
	c.Version = expectedVersion + 1
	m.circles[c.ID] = c.Clone()

	return m.invalidateCheckIns(c.ID, userID, at), nil
}

// invalidateCheckIns cancels pending requests and revokes live grants of the
// circle. A non-empty userID limits it to requests that user is part of.
// Callers hold m.mu.
func (m *Memory) invalidateCheckIns(circleID, userID string, at time.Time) int {
	touched := 0
	for _, r := range m.checkIns {
		if r.CircleID != circleID {
			continue
		}
		if userID != "" && r.RequesterID != userID && r.TargetID != userID {
			continue
		}
		switch {
		case r.Status == model.CheckInPending:
			r.Status = model.CheckInCancelled
			r.Version++
			touched++
		case r.Status == model.CheckInApproved && r.RevokedAt == nil:
			revokedAt := at
			r.RevokedAt = &revokedAt
			r.Version++
			touched++
		}
	}
	return touched
}

func (m *Memory) RecordLocation(_ context.Context, userID string, loc model.LatLng, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	touched := 0
	for _, c := range m.circles {
		mem := c.Member(userID)
		if mem == nil {
			continue
		}
		if mem.LastSeen != nil && mem.LastSeen.After(at) {
			continue
		}
		l := loc
		seen := at
		mem.LastLocation = &l
		mem.LastSeen = &seen
		c.UpdatedAt = at
		c.Version++
		touched++
	}
	return touched, nil
}

// ---------------------------------------------------------------------------
// check-ins
// ---------------------------------------------------------------------------

func (m *Memory) CreateCheckIn(_ context.Context, r *model.CheckInRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.checkIns[r.ID]; ok {
		return ErrDuplicate
	}
	r.Version = 1
	m.checkIns[r.ID] = r.Clone()
	return nil
}

func (m *Memory) GetCheckIn(_ context.Context, id string) (*model.CheckInRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.checkIns[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *Memory) UpdateCheckIn(_ context.Context, r *model.CheckInRequest, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.checkIns[r.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expectedVersion {
		return ErrConflict
	}
	r.Version = expectedVersion + 1
	m.checkIns[r.ID] = r.Clone()
	return nil
}

func (m *Memory) ListCheckIns(_ context.Context, f CheckInFilter) ([]*model.CheckInRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.CheckInRequest
	for _, r := range m.checkIns {
		if f.CircleID != "" && r.CircleID != f.CircleID {
			continue
		}
		if f.RequesterID != "" && r.RequesterID != f.RequesterID {
			continue
		}
		if f.TargetID != "" && r.TargetID != f.TargetID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit := NormalizeLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// alerts
// ---------------------------------------------------------------------------

func (m *Memory) CreateAlert(_ context.Context, a *model.PublicAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.alerts[a.ID]; ok {
		return ErrDuplicate
	}
	a.Version = 1
	cp := *a
	m.alerts[a.ID] = &cp
	return nil
}

func (m *Memory) GetAlert(_ context.Context, id string) (*model.PublicAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) UpdateAlert(_ context.Context, a *model.PublicAlert, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.alerts[a.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expectedVersion {
		return ErrConflict
	}
	a.Version = expectedVersion + 1
	cp := *a
	m.alerts[a.ID] = &cp
	return nil
}

func (m *Memory) ListAlerts(_ context.Context, f AlertFilter) ([]*model.PublicAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.PublicAlert
	for _, a := range m.alerts {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		if f.CreatorID != "" && a.CreatorID != f.CreatorID {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit := NormalizeLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) CreateSighting(_ context.Context, s *model.SightingReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[s.AlertID]
	if !ok || a.IsResolved() {
		return ErrNotFound
	}
	cp := *s
	m.sightings[s.AlertID] = append(m.sightings[s.AlertID], &cp)
	return nil
}

func (m *Memory) ListSightings(_ context.Context, alertID string) ([]*model.SightingReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.alerts[alertID]; !ok {
		return nil, ErrNotFound
	}
	list := m.sightings[alertID]
	out := make([]*model.SightingReport, 0, len(list))
	for _, s := range list {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// devices
// ---------------------------------------------------------------------------

func (m *Memory) CreateDevice(_ context.Context, d *model.SupervisedDevice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.devices[d.ID]; ok {
		return ErrDuplicate
	}
	d.Version = 1
	m.devices[d.ID] = d.Clone()
	return nil
}

func (m *Memory) GetDevice(_ context.Context, id string) (*model.SupervisedDevice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.devices[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d.Clone(), nil
}

func (m *Memory) UpdateDevice(_ context.Context, d *model.SupervisedDevice, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.devices[d.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expectedVersion {
		return ErrConflict
	}
	d.Version = expectedVersion + 1
	m.devices[d.ID] = d.Clone()
	return nil
}

func (m *Memory) ListDevicesByParent(_ context.Context, parentID string) ([]*model.SupervisedDevice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.SupervisedDevice
	for _, d := range m.devices {
		if d.ParentID == parentID {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
