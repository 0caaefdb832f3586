package events

import (
	"fmt"
	"strings"
)

const maxIDLength = 128

var knownTypes = map[string]struct{}{
	CircleCreated: {}, CircleDisbanded: {}, MemberAdded: {}, MemberRemoved: {}, SharingChanged: {},
	CheckInRequested: {}, CheckInApproved: {}, CheckInDeclined: {},
	AlertPosted: {}, AlertResolved: {}, AlertFlagged: {}, AlertReinstated: {}, SightingReported: {},
	DeviceInvited: {}, DeviceConsented: {}, DeviceRevoked: {}, DeviceLimitsUpdated: {},
}

// Validate checks an event read back from the stream.
func Validate(e Event) error {
	if _, ok := knownTypes[e.Type]; !ok {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if strings.TrimSpace(e.EntityID) == "" {
		return fmt.Errorf("entity_id is required")
	}
	for name, id := range map[string]string{
		"entity_id":  e.EntityID,
		"circle_id":  e.CircleID,
		"actor_id":   e.ActorID,
		"subject_id": e.SubjectID,
	} {
		if len(id) > maxIDLength {
			return fmt.Errorf("%s too long", name)
		}
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at must be set")
	}
	return nil
}
