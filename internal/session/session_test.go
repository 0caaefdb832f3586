package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type memWatermarks struct {
	marks map[string]time.Time
	gets  int
	err   error
}

func (m *memWatermarks) SetSignOutWatermark(_ context.Context, userID string, at time.Time) error {
	m.marks[userID] = at
	return nil
}

func (m *memWatermarks) GetSignOutWatermark(_ context.Context, userID string) (time.Time, bool, error) {
	m.gets++
	if m.err != nil {
		return time.Time{}, false, m.err
	}
	at, ok := m.marks[userID]
	return at, ok, nil
}

func newTestTracker() (*Tracker, *memWatermarks) {
	store := &memWatermarks{marks: map[string]time.Time{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewTracker(store, nil, logger), store
}

func TestTracker_SignOutRevokesOlderTokens(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTracker()
	ctx := context.Background()
	signOut := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	if err := tr.SignOut(ctx, "u1", signOut); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}

	tests := []struct {
		name     string
		issuedAt time.Time
		want     bool
	}{
		{"before", signOut.Add(-time.Hour), true},
		{"same_second", signOut.Add(500 * time.Millisecond), true},
		{"after", signOut.Add(time.Second), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tr.Revoked(ctx, "u1", tt.issuedAt)
			if err != nil {
				t.Fatalf("Revoked() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Revoked() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTracker_LooksUpStoreOnce(t *testing.T) {
	t.Parallel()

	tr, store := newTestTracker()
	ctx := context.Background()
	store.marks["u2"] = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		revoked, err := tr.Revoked(ctx, "u2", time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
		if err != nil || !revoked {
			t.Fatalf("Revoked() = %v, %v", revoked, err)
		}
	}
	if store.gets != 1 {
		t.Errorf("store lookups = %d, want 1", store.gets)
	}
}

func TestTracker_UnknownUserNotRevoked(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTracker()
	revoked, err := tr.Revoked(context.Background(), "u3", time.Now())
	if err != nil || revoked {
		t.Errorf("Revoked() = %v, %v, want false", revoked, err)
	}
}

func TestTracker_StoreError(t *testing.T) {
	t.Parallel()

	tr, store := newTestTracker()
	store.err = errors.New("redis down")
	if _, err := tr.Revoked(context.Background(), "u4", time.Now()); err == nil {
		t.Error("expected store error to surface")
	}
}

func TestTracker_ApplyKeepsNewestWatermark(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTracker()
	newer := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	tr.Apply(IdentityEvent{Type: EventSignedOut, UserID: "u1", At: newer})
	tr.Apply(IdentityEvent{Type: EventSignedOut, UserID: "u1", At: newer.Add(-time.Hour)})
	tr.Apply(IdentityEvent{Type: "profile_updated", UserID: "u1", At: newer.Add(time.Hour)})

	revoked, _ := tr.Revoked(context.Background(), "u1", newer.Add(-time.Minute))
	if !revoked {
		t.Error("older watermark must not replace a newer one")
	}
	revoked, _ = tr.Revoked(context.Background(), "u1", newer.Add(time.Minute))
	if revoked {
		t.Error("unrelated events must not move the watermark")
	}
}

func TestDecodeEvent(t *testing.T) {
	t.Parallel()

	if _, err := decodeEvent(`{"type":"signed_out"}`); err == nil {
		t.Error("expected error for missing user id")
	}
	if _, err := decodeEvent(`not json`); err == nil {
		t.Error("expected error for invalid json")
	}
	ev, err := decodeEvent(`{"type":"signed_out","user_id":"u1","at":"2025-06-01T09:00:00Z"}`)
	if err != nil || ev.UserID != "u1" {
		t.Errorf("decodeEvent() = %+v, %v", ev, err)
	}
}

func TestTracker_ListenWithoutRedis(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTracker()
	stop, err := tr.Listen(context.Background(), nil)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	stop()
}

func TestLocalWatermarks(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracker := NewTracker(NewLocalWatermarks(), nil, logger)

	signedOut := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	if err := tracker.SignOut(ctx, "u1", signedOut); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}

	revoked, err := tracker.Revoked(ctx, "u1", signedOut.Add(-time.Minute))
	if err != nil || !revoked {
		t.Fatalf("Revoked(before) = %v, %v; want true, nil", revoked, err)
	}
	revoked, err = tracker.Revoked(ctx, "u1", signedOut.Add(time.Second))
	if err != nil || revoked {
		t.Fatalf("Revoked(after) = %v, %v; want false, nil", revoked, err)
	}
}
