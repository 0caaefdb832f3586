// Package session tracks sign-outs so access tokens issued before them stop
// working before they expire.
//
// Sign-outs are stored as per-user watermarks and broadcast over Redis
// Pub/Sub so every API instance learns about them without a lookup.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Channel carries identity events between instances and the account backend.
const Channel = "identity:events"

// Identity event types.
const (
	EventSignedOut = "signed_out"
	EventDeleted   = "deleted"
)

// IdentityEvent is published when a user's identity changes.
type IdentityEvent struct {
	Type   string    `json:"type"`
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

// WatermarkStore persists sign-out watermarks. *cache.Cache satisfies it.
type WatermarkStore interface {
	SetSignOutWatermark(ctx context.Context, userID string, at time.Time) error
	GetSignOutWatermark(ctx context.Context, userID string) (time.Time, bool, error)
}

// Tracker answers whether a token is still valid after sign-outs.
type Tracker struct {
	store  WatermarkStore
	client *redis.Client // nil disables broadcasting
	logger *slog.Logger

	mu    sync.RWMutex
	local map[string]time.Time
}

// NewTracker creates a tracker. client may be nil.
func NewTracker(store WatermarkStore, client *redis.Client, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:  store,
		client: client,
		logger: logger,
		local:  make(map[string]time.Time),
	}
}

// SignOut voids every token of userID issued at or before at.
func (t *Tracker) SignOut(ctx context.Context, userID string, at time.Time) error {
	at = at.UTC().Truncate(time.Second)
	if err := t.store.SetSignOutWatermark(ctx, userID, at); err != nil {
		return err
	}
	t.remember(userID, at)

	if t.client == nil {
		return nil
	}
	payload, err := json.Marshal(IdentityEvent{Type: EventSignedOut, UserID: userID, At: at})
	if err != nil {
		return fmt.Errorf("marshal identity event: %w", err)
	}
	if err := t.client.Publish(ctx, Channel, payload).Err(); err != nil {
		// The watermark is stored; other instances find it on lookup.
		t.logger.Warn("identity_event_publish_failed", "user_id", userID, "error", err)
	}
	return nil
}

// Revoked reports whether a token of userID issued at issuedAt was signed out.
func (t *Tracker) Revoked(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	t.mu.RLock()
	wm, ok := t.local[userID]
	t.mu.RUnlock()

	if !ok {
		var err error
		wm, ok, err = t.store.GetSignOutWatermark(ctx, userID)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		t.remember(userID, wm)
	}
	return revokedBy(wm, issuedAt), nil
}

// Listen subscribes to identity events until stop is called or ctx ends.
// handler, if non-nil, runs for every event after the tracker applied it.
func (t *Tracker) Listen(ctx context.Context, handler func(IdentityEvent)) (stop func(), err error) {
	if t.client == nil {
		return func() {}, nil
	}

	sub := t.client.Subscribe(ctx, Channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ev, err := decodeEvent(msg.Payload)
				if err != nil {
					t.logger.Warn("identity_event_invalid", "error", err)
					continue
				}
				t.Apply(ev)
				if handler != nil {
					handler(ev)
				}
			}
		}
	}()

	var once sync.Once
	stop = func() {
		once.Do(func() {
			cancel()
			_ = sub.Close()
			<-done
		})
	}
	return stop, nil
}

// Apply records an identity event locally.
func (t *Tracker) Apply(ev IdentityEvent) {
	switch ev.Type {
	case EventSignedOut, EventDeleted:
		t.remember(ev.UserID, ev.At.UTC())
		t.logger.Info("identity_signed_out", "user_id", ev.UserID, "type", ev.Type)
	}
}

func (t *Tracker) remember(userID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.local[userID]; ok && prev.After(at) {
		return
	}
	t.local[userID] = at
}

func decodeEvent(payload string) (IdentityEvent, error) {
	var ev IdentityEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ev, fmt.Errorf("decode identity event: %w", err)
	}
	if ev.UserID == "" {
		return ev, fmt.Errorf("identity event has no user id")
	}
	return ev, nil
}

// revokedBy reports whether a token issued at issuedAt predates the
// watermark. Token iat has second precision, so the watermark second counts.
func revokedBy(watermark, issuedAt time.Time) bool {
	return !issuedAt.Truncate(time.Second).After(watermark)
}

// LocalWatermarks keeps watermarks in process memory. It is used when Redis
// is not configured, so sign-outs only apply to this instance.
type LocalWatermarks struct {
	mu    sync.Mutex
	marks map[string]time.Time
}

// NewLocalWatermarks creates an empty in-process watermark store.
func NewLocalWatermarks() *LocalWatermarks {
	return &LocalWatermarks{marks: make(map[string]time.Time)}
}

// SetSignOutWatermark stores at for userID.
func (l *LocalWatermarks) SetSignOutWatermark(_ context.Context, userID string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.marks[userID] = at
	return nil
}

// GetSignOutWatermark returns the watermark for userID, if any.
func (l *LocalWatermarks) GetSignOutWatermark(_ context.Context, userID string) (time.Time, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	at, ok := l.marks[userID]
	return at, ok, nil
}
