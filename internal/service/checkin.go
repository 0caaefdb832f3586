package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/familyshare/familyshare/internal/events"
	"github.com/familyshare/familyshare/internal/model"
	"github.com/familyshare/familyshare/internal/store"
)

// Listing directions for check-ins.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// CheckInService runs the request, approve or decline lifecycle of check-ins.
type CheckInService struct {
	store store.Store
	base
}

// NewCheckInService creates a new CheckInService.
func NewCheckInService(st store.Store, opts ...Option) *CheckInService {
	return &CheckInService{store: st, base: newBase(opts)}
}

// RequestCheckInInput defines input for requesting a check-in.
type RequestCheckInInput struct {
	CircleID    string
	RequesterID string
	TargetID    string
}

// Request asks TargetID to share their location with RequesterID.
// Both must be members of CircleID.
func (s *CheckInService) Request(ctx context.Context, input RequestCheckInInput) (*model.CheckInRequest, error) {
	if input.RequesterID == input.TargetID {
		return nil, ErrSelfCheckIn
	}

	circle, err := s.store.GetCircle(ctx, input.CircleID)
	if err != nil {
		return nil, translate(err, ErrCircleNotFound)
	}
	requester := circle.Member(input.RequesterID)
	target := circle.Member(input.TargetID)
	if requester == nil || target == nil {
		return nil, ErrNotInSameCircle
	}

	req := &model.CheckInRequest{
		ID:            generateID(),
		CircleID:      circle.ID,
		RequesterID:   requester.UserID,
		RequesterName: requester.Name,
		TargetID:      target.UserID,
		TargetName:    target.Name,
		Status:        model.CheckInPending,
		CreatedAt:     s.now(),
	}
	if err := s.store.CreateCheckIn(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to create check-in: %w", err)
	}

	s.metrics.IncCheckInRequested()
	s.emit(ctx, events.Event{
		Type:      events.CheckInRequested,
		EntityID:  req.ID,
		CircleID:  req.CircleID,
		ActorID:   req.RequesterID,
		SubjectID: req.TargetID,
		Status:    string(req.Status),
	})

	return req, nil
}

// RespondInput defines the target's answer to a check-in request.
// Location, PhotoURL and Duration are ignored on decline.
type RespondInput struct {
	RequestID string
	ActorID   string
	Decision  model.Decision
	Location  *model.LatLng
	PhotoURL  string
	Duration  model.ShareDuration
}

// Respond approves or declines a pending request. Exactly one response can
// ever succeed; the transition is a compare-and-set on the stored version.
func (s *CheckInService) Respond(ctx context.Context, input RespondInput) (*model.CheckInRequest, error) {
	if !input.Decision.IsValid() {
		return nil, ErrInvalidDecision
	}

	req, err := s.load(ctx, input.RequestID)
	if err != nil {
		return nil, err
	}
	if input.ActorID != req.TargetID && input.ActorID != req.RequesterID {
		return nil, ErrNotTarget
	}
	if err := stateError(req); err != nil {
		return nil, err
	}
	if input.ActorID != req.TargetID {
		return nil, ErrNotTarget
	}

	if input.Decision == model.DecisionApprove {
		if !input.Duration.IsValid() {
			return nil, ErrDurationRequired
		}
		if input.Location != nil {
			if err := input.Location.Validate(); err != nil {
				return nil, ErrInvalidLocation
			}
		}
	}

	circle, err := s.store.GetCircle(ctx, req.CircleID)
	if err != nil {
		return nil, translate(err, ErrCircleNotFound)
	}
	if !circle.HasMember(req.RequesterID) || !circle.HasMember(req.TargetID) {
		return nil, ErrNotInSameCircle
	}

	now := s.now()
	expected := req.Version
	req.RespondedAt = &now
	switch input.Decision {
	case model.DecisionApprove:
		grant := model.NewGrant(input.Duration, now)
		req.Status = model.CheckInApproved
		req.Duration = input.Duration
		req.Location = copyLoc(input.Location)
		req.PhotoURL = input.PhotoURL
		req.Grant = &grant
	case model.DecisionDecline:
		req.Status = model.CheckInDeclined
	}

	if err := s.store.UpdateCheckIn(ctx, req, expected); err != nil {
		if errors.Is(err, store.ErrConflict) {
			s.metrics.IncConflict()
			// A concurrent response won; report the state it left behind.
			if cur, lerr := s.load(ctx, req.ID); lerr == nil {
				if serr := stateError(cur); serr != nil {
					return nil, serr
				}
			}
		}
		return nil, translate(err, ErrCheckInNotFound)
	}

	s.metrics.IncCheckInResponded(string(input.Decision))
	eventType := events.CheckInApproved
	if req.Status == model.CheckInDeclined {
		eventType = events.CheckInDeclined
	}
	s.emit(ctx, events.Event{
		Type:      eventType,
		EntityID:  req.ID,
		CircleID:  req.CircleID,
		ActorID:   req.TargetID,
		SubjectID: req.RequesterID,
		Status:    string(req.Status),
	})

	return req, nil
}

// stateError returns the error for responding to req, or nil while it is pending.
func stateError(req *model.CheckInRequest) error {
	switch req.Status {
	case model.CheckInPending:
		return nil
	case model.CheckInCancelled:
		return ErrCheckInCancelled
	default:
		return ErrAlreadyResponded
	}
}

// ListCheckInsInput defines input for listing a user's check-ins.
type ListCheckInsInput struct {
	UserID    string
	Direction string // incoming, outgoing, or empty for both
	Status    model.CheckInStatus
	Limit     int
}

// ListCheckIns returns check-ins the user sent or received, newest first.
func (s *CheckInService) ListCheckIns(ctx context.Context, input ListCheckInsInput) ([]*model.CheckInRequest, error) {
	switch input.Direction {
	case "", DirectionIncoming, DirectionOutgoing:
	default:
		return nil, ErrInvalidDirection
	}

	limit := store.NormalizeLimit(input.Limit)
	var out []*model.CheckInRequest

	if input.Direction != DirectionOutgoing {
		incoming, err := s.store.ListCheckIns(ctx, store.CheckInFilter{TargetID: input.UserID, Status: input.Status, Limit: limit})
		if err != nil {
			return nil, fmt.Errorf("failed to list incoming check-ins: %w", err)
		}
		out = append(out, incoming...)
	}
	if input.Direction != DirectionIncoming {
		outgoing, err := s.store.ListCheckIns(ctx, store.CheckInFilter{RequesterID: input.UserID, Status: input.Status, Limit: limit})
		if err != nil {
			return nil, fmt.Errorf("failed to list outgoing check-ins: %w", err)
		}
		out = append(out, outgoing...)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	for i, r := range out {
		out[i] = r.ViewFor(input.UserID)
	}
	return out, nil
}

// GetCheckIn returns a check-in as actorID may see it.
func (s *CheckInService) GetCheckIn(ctx context.Context, requestID, actorID string) (*model.CheckInRequest, error) {
	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actorID != req.RequesterID && actorID != req.TargetID {
		return nil, ErrNotParticipant
	}
	return req.ViewFor(actorID), nil
}

func (s *CheckInService) load(ctx context.Context, requestID string) (*model.CheckInRequest, error) {
	req, err := s.store.GetCheckIn(ctx, requestID)
	if err != nil {
		return nil, translate(err, ErrCheckInNotFound)
	}
	return req, nil
}
