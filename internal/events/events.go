// Package events publishes committed workflow transitions.
//
// Events identify entities and actors only. They never carry locations,
// photo URLs or the account ids behind sighting pseudonyms.
package events

import (
	"context"
	"sync"
	"time"
)

// Event types.
const (
	CircleCreated   = "circle.created"
	CircleDisbanded = "circle.disbanded"
	MemberAdded     = "circle.member_added"
	MemberRemoved   = "circle.member_removed"
	SharingChanged  = "circle.sharing_changed"

	CheckInRequested = "check_in.requested"
	CheckInApproved  = "check_in.approved"
	CheckInDeclined  = "check_in.declined"

	AlertPosted      = "alert.posted"
	AlertResolved    = "alert.resolved"
	AlertFlagged     = "alert.flagged"
	AlertReinstated  = "alert.reinstated"
	SightingReported = "alert.sighting_reported"

	DeviceInvited       = "device.invited"
	DeviceConsented     = "device.consented"
	DeviceRevoked       = "device.revoked"
	DeviceLimitsUpdated = "device.limits_updated"
)

// Event is a committed state transition.
type Event struct {
	Type       string    `json:"type"`
	EntityID   string    `json:"entity_id"`
	CircleID   string    `json:"circle_id,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	SubjectID  string    `json:"subject_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Emitter receives events after the transition is persisted.
// Emit must not block the caller on delivery.
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// Noop discards events.
type Noop struct{}

// Emit is a no-op.
func (Noop) Emit(context.Context, Event) {}

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit appends the event.
func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything emitted so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the emitted event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
