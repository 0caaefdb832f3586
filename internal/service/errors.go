// Package service provides business logic for the application.
package service

import (
	"errors"
	"fmt"

	"github.com/familyshare/familyshare/internal/store"
)

// Error kinds. Every error returned by a service operation unwraps to at most
// one of these, so callers can branch with errors.Is(err, ErrInvalidState).
var (
	ErrNotAuthorized    = errors.New("not authorized")
	ErrInvalidState     = errors.New("invalid state")
	ErrNotFound         = errors.New("not found")
	ErrValidationFailed = errors.New("validation failed")
	ErrConflict         = errors.New("conflict")
)

// Error is a specific workflow failure with a stable machine code.
type Error struct {
	kind error
	code string
	msg  string
}

func newError(kind error, code, msg string) *Error {
	return &Error{kind: kind, code: code, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Unwrap returns the error kind.
func (e *Error) Unwrap() error { return e.kind }

// Code returns the machine-readable error code.
func (e *Error) Code() string { return e.code }

// Is matches any *Error with the same code, so errors carrying extra
// detail still match their sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.code == e.code
}

// withDetail returns a copy of e whose message carries detail.
func (e *Error) withDetail(detail string) *Error {
	return &Error{kind: e.kind, code: e.code, msg: e.msg + ": " + detail}
}

// Circle registry errors.
var (
	ErrCircleNotFound      = newError(ErrNotFound, "CIRCLE_NOT_FOUND", "circle not found")
	ErrMemberNotFound      = newError(ErrNotFound, "MEMBER_NOT_FOUND", "user is not a member of the circle")
	ErrUserNotFound        = newError(ErrNotFound, "USER_NOT_FOUND", "user not found")
	ErrNotMember           = newError(ErrNotAuthorized, "NOT_MEMBER", "actor is not a member of the circle")
	ErrNotCircleCreator    = newError(ErrNotAuthorized, "NOT_CREATOR", "only the circle creator may do this")
	ErrRemoveNotAllowed    = newError(ErrNotAuthorized, "NOT_AUTHORIZED", "only the member or the circle creator may remove a member")
	ErrAlreadyMember       = newError(ErrInvalidState, "ALREADY_MEMBER", "user is already a member of the circle")
	ErrCannotRemoveCreator = newError(ErrInvalidState, "CANNOT_REMOVE_CREATOR", "the creator cannot leave the circle; disband it instead")
	ErrInvalidCircle       = newError(ErrValidationFailed, "INVALID_CIRCLE", "invalid circle")
	ErrInvalidLocation     = newError(ErrValidationFailed, "INVALID_LOCATION", "invalid location")
)

// Check-in protocol errors.
var (
	ErrCheckInNotFound  = newError(ErrNotFound, "CHECK_IN_NOT_FOUND", "check-in request not found")
	ErrNotInSameCircle  = newError(ErrNotAuthorized, "NOT_IN_SAME_CIRCLE", "requester and target must both be members of the circle")
	ErrNotTarget        = newError(ErrNotAuthorized, "NOT_TARGET", "only the target may respond to a check-in request")
	ErrNotParticipant   = newError(ErrNotAuthorized, "NOT_PARTICIPANT", "actor is not part of this check-in request")
	ErrAlreadyResponded = newError(ErrInvalidState, "ALREADY_RESPONDED", "check-in request was already answered")
	ErrCheckInCancelled = newError(ErrInvalidState, "CHECK_IN_CANCELLED", "check-in request was cancelled")
	ErrSelfCheckIn      = newError(ErrValidationFailed, "SELF_CHECK_IN", "cannot request a check-in from yourself")
	ErrInvalidDecision  = newError(ErrValidationFailed, "INVALID_DECISION", "decision must be approve or decline")
	ErrDurationRequired = newError(ErrValidationFailed, "DURATION_REQUIRED", "approval requires a duration of once or one_hour")
	ErrInvalidDirection = newError(ErrValidationFailed, "INVALID_DIRECTION", "direction must be incoming, outgoing or empty")
)

// Alert board errors.
var (
	ErrAlertNotFound   = newError(ErrNotFound, "ALERT_NOT_FOUND", "alert not found")
	ErrNotAlertOwner   = newError(ErrNotAuthorized, "NOT_AUTHORIZED", "only the alert creator or a moderator may do this")
	ErrNotModerator    = newError(ErrNotAuthorized, "NOT_MODERATOR", "moderator role required")
	ErrAlertResolved   = newError(ErrInvalidState, "ALERT_RESOLVED", "alert is already resolved")
	ErrInvalidAlert    = newError(ErrValidationFailed, "INVALID_ALERT", "invalid alert")
	ErrInvalidSighting = newError(ErrValidationFailed, "INVALID_SIGHTING", "invalid sighting report")
	ErrInvalidFilter   = newError(ErrValidationFailed, "INVALID_FILTER", "invalid filter")
)

// Supervised device errors.
var (
	ErrDeviceNotFound   = newError(ErrNotFound, "DEVICE_NOT_FOUND", "device not found")
	ErrNotChild         = newError(ErrNotAuthorized, "NOT_CHILD", "only the supervised child may do this")
	ErrNotParent        = newError(ErrNotAuthorized, "NOT_PARENT", "only the supervising parent may do this")
	ErrAlreadyConfirmed = newError(ErrInvalidState, "ALREADY_CONFIRMED", "device consent was already confirmed")
	ErrDeviceRevoked    = newError(ErrInvalidState, "DEVICE_REVOKED", "device supervision was revoked")
	ErrDeviceNotActive  = newError(ErrInvalidState, "DEVICE_NOT_ACTIVE", "device is awaiting consent")
	ErrInvalidDevice    = newError(ErrValidationFailed, "INVALID_DEVICE", "invalid device")
	ErrInvalidLimits    = newError(ErrValidationFailed, "INVALID_LIMITS", "invalid device limits")
)

// ErrStaleWrite is returned when a concurrent update won the compare-and-set.
// The caller should reload and retry.
var ErrStaleWrite = newError(ErrConflict, "CONFLICT", "record was modified concurrently; reload and retry")

// translate maps persistence errors onto workflow errors.
func translate(err error, notFound *Error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return notFound
	case errors.Is(err, store.ErrConflict):
		return ErrStaleWrite
	default:
		return fmt.Errorf("store: %w", err)
	}
}
