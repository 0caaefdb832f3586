package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/familyshare/familyshare/internal/model"
	"github.com/familyshare/familyshare/migrations"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetSchema reverts and reapplies every embedded migration.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if err := migrations.Down(ctx, pool); err != nil {
		return fmt.Errorf("reset down: %w", err)
	}
	if _, err := migrations.Up(ctx, pool); err != nil {
		return fmt.Errorf("reset up: %w", err)
	}
	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestCircle creates a circle whose first member is the creator.
func NewTestCircle(t testing.TB, creatorID string, memberIDs ...string) *model.FamilyCircle {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	c := &model.FamilyCircle{
		ID:        UniqueID("circle"),
		Name:      "Test Circle",
		CreatorID: creatorID,
		CreatedAt: now,
		Members:   []model.CircleMember{{UserID: creatorID, Name: creatorID, JoinedAt: now}},
	}
	for _, id := range memberIDs {
		c.Members = append(c.Members, model.CircleMember{UserID: id, Name: id, JoinedAt: now})
	}
	return c
}

// NewTestCheckIn creates a pending check-in request inside circleID.
func NewTestCheckIn(t testing.TB, circleID, requesterID, targetID string) *model.CheckInRequest {
	t.Helper()
	return &model.CheckInRequest{
		ID:            UniqueID("checkin"),
		CircleID:      circleID,
		RequesterID:   requesterID,
		RequesterName: requesterID,
		TargetID:      targetID,
		TargetName:    targetID,
		Status:        model.CheckInPending,
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
}

// NewTestAlert creates an active lost pet alert.
func NewTestAlert(t testing.TB, creatorID string) *model.PublicAlert {
	t.Helper()
	return &model.PublicAlert{
		ID:                  UniqueID("alert"),
		Type:                model.AlertLostPet,
		Title:               "Lost dog",
		Description:         "Brown terrier, answers to Rex",
		Location:            model.LatLng{Lat: 52.52, Lng: 13.405},
		LocationDescription: "Near the park",
		CreatedAt:           time.Now().UTC().Truncate(time.Microsecond),
		CreatorID:           creatorID,
		CreatorName:         creatorID,
		Status:              model.AlertActive,
	}
}

// NewTestDevice creates a pending supervised device.
func NewTestDevice(t testing.TB, parentID, childID string) *model.SupervisedDevice {
	t.Helper()
	return &model.SupervisedDevice{
		ID:           UniqueID("device"),
		ParentID:     parentID,
		ChildID:      childID,
		ChildName:    childID,
		Status:       model.DevicePending,
		ApprovedApps: []string{},
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
