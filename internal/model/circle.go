// Package model defines domain entities for the application.
package model

import (
	"errors"
	"time"
)

// Circle invariant violations.
var (
	ErrCreatorNotMember = errors.New("circle creator is not a member")
	ErrDuplicateMember  = errors.New("circle has duplicate member entries")
)

// CircleMember is a user's entry inside a FamilyCircle.
// LastLocation is stored for the member's own history but only exposed
// to other members while IsSharingLocation is true.
type CircleMember struct {
	UserID            string     `json:"user_id"`
	Name              string     `json:"name"`
	AvatarURL         string     `json:"avatar_url,omitempty"`
	IsSharingLocation bool       `json:"is_sharing_location"`
	LastLocation      *LatLng    `json:"last_location,omitempty"`
	LastSeen          *time.Time `json:"last_seen,omitempty"`
	JoinedAt          time.Time  `json:"joined_at"`
}

// FamilyCircle is a group of users that may share locations with each other.
// The circle exclusively owns its member list.
type FamilyCircle struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	CreatorID string         `json:"creator_id"`
	Members   []CircleMember `json:"members"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Version   int64          `json:"version"`
}

// Member returns the member entry for userID, or nil.
func (c *FamilyCircle) Member(userID string) *CircleMember {
	for i := range c.Members {
		if c.Members[i].UserID == userID {
			return &c.Members[i]
		}
	}
	return nil
}

// HasMember reports whether userID is in the circle.
func (c *FamilyCircle) HasMember(userID string) bool {
	return c.Member(userID) != nil
}

// IsCreator reports whether userID created the circle.
func (c *FamilyCircle) IsCreator(userID string) bool {
	return c.CreatorID == userID
}

// MemberIDs returns the user ids of all members in join order.
func (c *FamilyCircle) MemberIDs() []string {
	ids := make([]string, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.UserID
	}
	return ids
}

// CheckInvariants verifies unique membership and creator-in-members.
func (c *FamilyCircle) CheckInvariants() error {
	seen := make(map[string]struct{}, len(c.Members))
	for _, m := range c.Members {
		if _, dup := seen[m.UserID]; dup {
			return ErrDuplicateMember
		}
		seen[m.UserID] = struct{}{}
	}
	if _, ok := seen[c.CreatorID]; !ok {
		return ErrCreatorNotMember
	}
	return nil
}

// Clone returns a deep copy of the circle.
func (c *FamilyCircle) Clone() *FamilyCircle {
	out := *c
	out.Members = make([]CircleMember, len(c.Members))
	for i, m := range c.Members {
		out.Members[i] = m.clone()
	}
	return &out
}

// ViewFor returns a copy of the circle as viewerID is allowed to see it.
// Members who are not sharing have their location and last-seen withheld,
// except for the viewer's own entry.
func (c *FamilyCircle) ViewFor(viewerID string) *FamilyCircle {
	out := c.Clone()
	for i := range out.Members {
		m := &out.Members[i]
		if m.UserID == viewerID || m.IsSharingLocation {
			continue
		}
		m.LastLocation = nil
		m.LastSeen = nil
	}
	return out
}

func (m CircleMember) clone() CircleMember {
	out := m
	out.LastLocation = copyLatLng(m.LastLocation)
	if m.LastSeen != nil {
		t := *m.LastSeen
		out.LastSeen = &t
	}
	return out
}
