// Package model defines domain entities for the application.
package model

import "time"

// GrantKind tags the visibility rule attached to an approved check-in.
type GrantKind string

const (
	GrantIndefinite GrantKind = "indefinite"
	GrantExpires    GrantKind = "expires"
	GrantSingleRead GrantKind = "single_read"
)

// OneHourGrant is the visibility window of a one_hour check-in.
const OneHourGrant = time.Hour

// Grant describes how long an approved check-in location stays visible to
// the requester. It is evaluated at read time from stored fields only.
type Grant struct {
	Kind       GrantKind  `json:"kind"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Consumed   bool       `json:"consumed,omitempty"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

// NewGrant builds the grant for a share duration approved at respondedAt.
func NewGrant(d ShareDuration, respondedAt time.Time) Grant {
	switch d {
	case ShareOneHour:
		at := respondedAt.Add(OneHourGrant)
		return Grant{Kind: GrantExpires, ExpiresAt: &at}
	case ShareOnce:
		return Grant{Kind: GrantSingleRead}
	default:
		return Grant{Kind: GrantIndefinite}
	}
}

// ActiveAt reports whether the grant still exposes a location at now.
// An Expires grant is withdrawn at exactly ExpiresAt.
func (g Grant) ActiveAt(now time.Time) bool {
	switch g.Kind {
	case GrantIndefinite:
		return true
	case GrantExpires:
		return g.ExpiresAt != nil && now.Before(*g.ExpiresAt)
	case GrantSingleRead:
		return !g.Consumed
	default:
		return false
	}
}

// Consume marks a single-read grant as used.
func (g Grant) Consume(at time.Time) Grant {
	if g.Kind != GrantSingleRead {
		return g
	}
	g.Consumed = true
	g.ConsumedAt = &at
	return g
}
