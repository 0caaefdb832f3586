package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/familyshare/familyshare/internal/events"
	"github.com/familyshare/familyshare/internal/metrics"
	"github.com/familyshare/familyshare/internal/model"
	"github.com/familyshare/familyshare/internal/store"
)

// Profiles looks up account profile rows owned by the hosted account backend.
// Unknown users are reported with an error wrapping store.ErrNotFound.
type Profiles interface {
	GetProfile(ctx context.Context, userID string) (*model.User, error)
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID    string
	Moderator bool
}

// Option configures a service.
type Option func(*base)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(b *base) {
		if r != nil {
			b.metrics = r
		}
	}
}

// WithEvents sets the emitter notified after each committed transition.
func WithEvents(e events.Emitter) Option {
	return func(b *base) {
		if e != nil {
			b.events = e
		}
	}
}

// WithProfiles sets the account profile lookup used for display names.
func WithProfiles(p Profiles) Option {
	return func(b *base) { b.profiles = p }
}

type base struct {
	now      func() time.Time
	metrics  metrics.Recorder
	events   events.Emitter
	profiles Profiles
}

func newBase(opts []Option) base {
	b := base{
		now:     func() time.Time { return time.Now().UTC() },
		metrics: metrics.NewNoop(),
		events:  events.Noop{},
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *base) emit(ctx context.Context, e events.Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = b.now()
	}
	b.events.Emit(ctx, e)
}

// conflict records a lost compare-and-set before returning err.
func (b *base) conflict(err error) error {
	if err == ErrStaleWrite {
		b.metrics.IncConflict()
	}
	return err
}

// MaxClockSkew is how far ahead of the server clock a client-stamped fix may
// be. Stored fixes are only replaced by newer ones, so an unbounded future
// stamp would pin a member's location until that time.
const MaxClockSkew = 2 * time.Minute

// fixTime defaults a zero fix time to now and rejects fixes stamped further
// than MaxClockSkew in the future.
func (b *base) fixTime(at time.Time) (time.Time, error) {
	now := b.now()
	if at.IsZero() {
		return now.UTC(), nil
	}
	if at.After(now.Add(MaxClockSkew)) {
		return time.Time{}, ErrInvalidLocation.withDetail("timestamp is in the future")
	}
	return at.UTC(), nil
}

// profile resolves a display profile. Without a profile source the id is
// used as the name.
func (b *base) profile(ctx context.Context, userID string) (*model.User, error) {
	if b.profiles == nil {
		return &model.User{ID: userID, Name: userID}, nil
	}
	u, err := b.profiles.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("profile lookup: %w", err)
	}
	return u, nil
}

// generateID creates a new ULID.
func generateID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
