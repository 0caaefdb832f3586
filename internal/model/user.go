// Package model defines domain entities for the application.
package model

import "time"

// User is an account identity owned by the hosted account backend.
// The engine only reads it; creation and deletion happen outside.
type User struct {
	ID                  string `json:"id"`
	Email               string `json:"email"`
	Name                string `json:"name"`
	Phone               string `json:"phone"`
	AvatarURL           string `json:"avatar_url,omitempty"`
	OnboardingCompleted bool   `json:"onboarding_completed"`
}

// RoleModerator grants authority over public alert moderation.
const RoleModerator = "moderator"

// AuthContext is the verified identity attached to a request.
type AuthContext struct {
	UserID   string
	Role     string
	IssuedAt time.Time
}

// IsModerator reports whether the identity carries the moderator role.
func (a *AuthContext) IsModerator() bool {
	return a != nil && a.Role == RoleModerator
}
