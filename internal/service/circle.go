package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/familyshare/familyshare/internal/events"
	"github.com/familyshare/familyshare/internal/model"
	"github.com/familyshare/familyshare/internal/store"
)

const (
	maxCircleNameLength = 100
	grantLookupLimit    = 20
)

// CircleService owns circle membership, per-member sharing state and the
// privacy-filtered location read path.
type CircleService struct {
	store store.Store
	base
}

// NewCircleService creates a new CircleService.
func NewCircleService(st store.Store, opts ...Option) *CircleService {
	return &CircleService{store: st, base: newBase(opts)}
}

// CreateCircleInput defines input for creating a circle.
type CreateCircleInput struct {
	CreatorID string
	Name      string
}

// CreateCircle creates a circle whose only member is the creator, not sharing.
func (s *CircleService) CreateCircle(ctx context.Context, input CreateCircleInput) (*model.FamilyCircle, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrInvalidCircle.withDetail("name is required")
	}
	if utf8.RuneCountInString(name) > maxCircleNameLength {
		return nil, ErrInvalidCircle.withDetail(fmt.Sprintf("name exceeds %d characters", maxCircleNameLength))
	}

	creator, err := s.profile(ctx, input.CreatorID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	circle := &model.FamilyCircle{
		ID:        generateID(),
		Name:      name,
		CreatorID: input.CreatorID,
		Members: []model.CircleMember{{
			UserID:    input.CreatorID,
			Name:      creator.Name,
			AvatarURL: creator.AvatarURL,
			JoinedAt:  now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := circle.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("new circle: %w", err)
	}

	if err := s.store.CreateCircle(ctx, circle); err != nil {
		return nil, fmt.Errorf("failed to create circle: %w", err)
	}

	s.metrics.IncCircleCreated()
	s.emit(ctx, events.Event{Type: events.CircleCreated, EntityID: circle.ID, CircleID: circle.ID, ActorID: input.CreatorID})

	return circle.ViewFor(input.CreatorID), nil
}

// MembershipInput identifies a member change and who asks for it.
type MembershipInput struct {
	CircleID string
	UserID   string
	ActorID  string
}

// AddMember adds UserID to the circle. The actor must already be a member.
func (s *CircleService) AddMember(ctx context.Context, input MembershipInput) (*model.FamilyCircle, error) {
	circle, err := s.load(ctx, input.CircleID)
	if err != nil {
		return nil, err
	}
	if !circle.HasMember(input.ActorID) {
		return nil, ErrNotMember
	}
	if circle.HasMember(input.UserID) {
		return nil, ErrAlreadyMember
	}

	user, err := s.profile(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	expected := circle.Version
	circle.Members = append(circle.Members, model.CircleMember{
		UserID:    input.UserID,
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
		JoinedAt:  now,
	})
	circle.UpdatedAt = now
	if err := s.save(ctx, circle, expected); err != nil {
		return nil, err
	}

	s.metrics.IncMemberAdded()
	s.emit(ctx, events.Event{Type: events.MemberAdded, EntityID: circle.ID, CircleID: circle.ID, ActorID: input.ActorID, SubjectID: input.UserID})

	return circle.ViewFor(input.ActorID), nil
}

// RemoveMember removes UserID from the circle. Members may leave on their own
// and the creator may remove anyone but themself. Pending check-ins the user
// is part of in this circle are cancelled and their approved grants revoked
// in the same atomic step, so rejoining never revives them.
func (s *CircleService) RemoveMember(ctx context.Context, input MembershipInput) (*model.FamilyCircle, error) {
	circle, err := s.load(ctx, input.CircleID)
	if err != nil {
		return nil, err
	}
	if input.ActorID != input.UserID && !circle.IsCreator(input.ActorID) {
		return nil, ErrRemoveNotAllowed
	}
	if circle.IsCreator(input.UserID) {
		return nil, ErrCannotRemoveCreator
	}
	if !circle.HasMember(input.UserID) {
		return nil, ErrMemberNotFound
	}

	expected := circle.Version
	members := make([]model.CircleMember, 0, len(circle.Members)-1)
	for _, m := range circle.Members {
		if m.UserID != input.UserID {
			members = append(members, m)
		}
	}
	circle.Members = members
	now := s.now()
	circle.UpdatedAt = now
	if err := circle.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("circle %s: %w", circle.ID, err)
	}
	if _, err := s.store.RemoveMember(ctx, circle, expected, input.UserID, now); err != nil {
		return nil, s.conflict(translate(err, ErrCircleNotFound))
	}

	s.metrics.IncMemberRemoved()
	s.emit(ctx, events.Event{Type: events.MemberRemoved, EntityID: circle.ID, CircleID: circle.ID, ActorID: input.ActorID, SubjectID: input.UserID})

	return circle.ViewFor(input.ActorID), nil
}

// SetSharing turns live location sharing on or off for userID. Disabling
// withdraws the member's location from every other member's read path at once.
func (s *CircleService) SetSharing(ctx context.Context, circleID, userID string, enabled bool) (*model.FamilyCircle, error) {
	circle, err := s.load(ctx, circleID)
	if err != nil {
		return nil, err
	}
	member := circle.Member(userID)
	if member == nil {
		return nil, ErrNotMember
	}
	if member.IsSharingLocation == enabled {
		return circle.ViewFor(userID), nil
	}

	expected := circle.Version
	member.IsSharingLocation = enabled
	circle.UpdatedAt = s.now()
	if err := s.save(ctx, circle, expected); err != nil {
		return nil, err
	}

	status := "off"
	if enabled {
		status = "on"
	}
	s.emit(ctx, events.Event{Type: events.SharingChanged, EntityID: circle.ID, CircleID: circle.ID, ActorID: userID, Status: status})

	return circle.ViewFor(userID), nil
}

// Disband deletes the circle. Pending check-ins of the circle are cancelled and
// approved grants revoked in the same atomic step. Only the creator may disband.
func (s *CircleService) Disband(ctx context.Context, circleID, actorID string) error {
	circle, err := s.load(ctx, circleID)
	if err != nil {
		return err
	}
	if !circle.IsCreator(actorID) {
		if circle.HasMember(actorID) {
			return ErrNotCircleCreator
		}
		return ErrNotMember
	}

	if _, err := s.store.DisbandCircle(ctx, circle.ID, circle.Version, s.now()); err != nil {
		return s.conflict(translate(err, ErrCircleNotFound))
	}

	s.metrics.IncCircleDisbanded()
	s.emit(ctx, events.Event{Type: events.CircleDisbanded, EntityID: circle.ID, CircleID: circle.ID, ActorID: actorID})
	return nil
}

// UpdateLocation records a location push for userID in every circle they
// belong to. Fixes older than the stored one are ignored and fixes stamped
// beyond MaxClockSkew in the future are rejected.
func (s *CircleService) UpdateLocation(ctx context.Context, userID string, loc model.LatLng, at time.Time) (int, error) {
	if err := loc.Validate(); err != nil {
		return 0, ErrInvalidLocation
	}
	at, err := s.fixTime(at)
	if err != nil {
		return 0, err
	}

	n, err := s.store.RecordLocation(ctx, userID, loc, at)
	if err != nil {
		return 0, fmt.Errorf("failed to record location: %w", err)
	}
	return n, nil
}

// ListCircles returns every circle userID belongs to, as userID may see them.
func (s *CircleService) ListCircles(ctx context.Context, userID string) ([]*model.FamilyCircle, error) {
	circles, err := s.store.ListCirclesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list circles: %w", err)
	}
	out := make([]*model.FamilyCircle, 0, len(circles))
	for _, c := range circles {
		out = append(out, c.ViewFor(userID))
	}
	return out, nil
}

// GetCircle returns the circle as viewerID may see it.
func (s *CircleService) GetCircle(ctx context.Context, circleID, viewerID string) (*model.FamilyCircle, error) {
	circle, err := s.load(ctx, circleID)
	if err != nil {
		return nil, err
	}
	if !circle.HasMember(viewerID) {
		return nil, ErrNotMember
	}
	return circle.ViewFor(viewerID), nil
}

// LocationOf resolves what viewerID may see of memberID's location.
//
// A viewer always sees themself. An unspent single-read grant the viewer holds
// on the member is served and consumed by the read, whether or not the member
// is sharing. A sharing member is otherwise visible live. A non-sharing member
// is visible through the newest active check-in grant in this circle. Everyone
// else sees nothing. Expired is set when the newest grant has lapsed or been
// spent, including on live reads.
func (s *CircleService) LocationOf(ctx context.Context, circleID, viewerID, memberID string) (*model.LocationView, error) {
	circle, err := s.load(ctx, circleID)
	if err != nil {
		return nil, err
	}
	if !circle.HasMember(viewerID) {
		return nil, ErrNotMember
	}
	member := circle.Member(memberID)
	if member == nil {
		return nil, ErrMemberNotFound
	}

	view := &model.LocationView{CircleID: circleID, MemberID: memberID, Source: model.SourceNone}

	if viewerID == memberID {
		view.Source = model.SourceSelf
		view.Location = copyLoc(member.LastLocation)
		view.LastSeen = member.LastSeen
		return view, nil
	}

	grants, err := s.store.ListCheckIns(ctx, store.CheckInFilter{
		CircleID:    circleID,
		RequesterID: viewerID,
		TargetID:    memberID,
		Status:      model.CheckInApproved,
		Limit:       grantLookupLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load grants: %w", err)
	}

	now := s.now()
	for _, req := range grants {
		if !req.GrantActiveAt(now) {
			view.Expired = true
			continue
		}
		// Live sharing covers time-bounded grants.
		if member.IsSharingLocation && req.Grant.Kind != model.GrantSingleRead {
			view.Expired = false
			break
		}

		loc := req.Location
		if loc == nil {
			loc = member.LastLocation
		}
		if loc == nil {
			continue
		}

		if req.Grant.Kind == model.GrantSingleRead {
			expected := req.Version
			consumed := req.Grant.Consume(now)
			req.Grant = &consumed
			if err := s.store.UpdateCheckIn(ctx, req, expected); err != nil {
				if errors.Is(err, store.ErrConflict) {
					// Another reader consumed it first.
					view.Expired = true
					continue
				}
				return nil, fmt.Errorf("failed to consume grant: %w", err)
			}
		}

		s.metrics.IncGrantRead("served")
		view.Source = model.SourceCheckIn
		view.Location = copyLoc(loc)
		view.PhotoURL = req.PhotoURL
		view.CheckInID = req.ID
		view.ExpiresAt = req.Grant.ExpiresAt
		view.Expired = false
		if req.Location == nil {
			view.LastSeen = member.LastSeen
		} else {
			view.LastSeen = req.RespondedAt
		}
		return view, nil
	}

	if member.IsSharingLocation {
		view.Source = model.SourceLive
		view.Location = copyLoc(member.LastLocation)
		view.LastSeen = member.LastSeen
	}
	if view.Expired {
		s.metrics.IncGrantRead("expired")
	}
	return view, nil
}

func (s *CircleService) load(ctx context.Context, circleID string) (*model.FamilyCircle, error) {
	circle, err := s.store.GetCircle(ctx, circleID)
	if err != nil {
		return nil, translate(err, ErrCircleNotFound)
	}
	return circle, nil
}

func (s *CircleService) save(ctx context.Context, circle *model.FamilyCircle, expected int64) error {
	if err := circle.CheckInvariants(); err != nil {
		return fmt.Errorf("circle %s: %w", circle.ID, err)
	}
	if err := s.store.UpdateCircle(ctx, circle, expected); err != nil {
		return s.conflict(translate(err, ErrCircleNotFound))
	}
	return nil
}

func copyLoc(l *model.LatLng) *model.LatLng {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}
