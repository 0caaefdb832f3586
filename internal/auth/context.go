// Package auth verifies access tokens and carries the caller identity.
package auth

import (
	"context"

	"github.com/familyshare/familyshare/internal/model"
)

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying the verified caller.
func WithIdentity(ctx context.Context, id *model.AuthContext) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// Identity returns the caller attached by WithIdentity, or nil.
func Identity(ctx context.Context) *model.AuthContext {
	id, _ := ctx.Value(identityKey{}).(*model.AuthContext)
	return id
}

// UserID returns the caller's user id, or "" for anonymous requests.
func UserID(ctx context.Context) string {
	if id := Identity(ctx); id != nil {
		return id.UserID
	}
	return ""
}

// IsModerator reports whether the caller holds the moderator role.
func IsModerator(ctx context.Context) bool {
	return Identity(ctx).IsModerator()
}
