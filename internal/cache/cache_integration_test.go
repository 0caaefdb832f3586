//go:build integration

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/familyshare/familyshare/internal/model"
	"github.com/familyshare/familyshare/internal/testutil"
)

func newIntegrationCache(t *testing.T) *Cache {
	t.Helper()
	ctx := context.Background()

	c, err := New(ctx, testutil.RequireEnv(t, "REDIS_URL"), Options{Namespace: "familyshare-test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	if err := testutil.FlushRedis(ctx, c.Client()); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return c
}

func TestIntegrationRateLimit_ExhaustsBurst(t *testing.T) {
	ctx := context.Background()
	c := newIntegrationCache(t)

	for i := 0; i < 3; i++ {
		res, err := c.CheckUserRateLimit(ctx, ScopeCheckIn, "u1", PerHour(30), 3)
		if err != nil {
			t.Fatalf("check %d error = %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("check %d denied within burst", i)
		}
	}

	res, err := c.CheckUserRateLimit(ctx, ScopeCheckIn, "u1", PerHour(30), 3)
	if err != nil {
		t.Fatalf("check error = %v", err)
	}
	if res.Allowed || res.RetryAfter <= 0 {
		t.Errorf("fourth check = %+v, want denied with a retry delay", res)
	}

	other, err := c.CheckUserRateLimit(ctx, ScopeSighting, "u1", PerHour(30), 3)
	if err != nil || !other.Allowed {
		t.Errorf("other scope = %+v, %v, want allowed", other, err)
	}
}

func TestIntegrationProfile_NegativeCacheCleared(t *testing.T) {
	ctx := context.Background()
	c := newIntegrationCache(t)

	if _, err := c.GetProfile(ctx, "u1"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("GetProfile() error = %v, want ErrCacheMiss", err)
	}
	if err := c.SetNegativeCache(ctx, "u1"); err != nil {
		t.Fatalf("SetNegativeCache() error = %v", err)
	}
	if neg, _ := c.IsNegativelyCached(ctx, "u1"); !neg {
		t.Fatal("expected negative entry")
	}

	if err := c.SetProfile(ctx, &model.User{ID: "u1", Name: "Ana"}); err != nil {
		t.Fatalf("SetProfile() error = %v", err)
	}
	if neg, _ := c.IsNegativelyCached(ctx, "u1"); neg {
		t.Error("SetProfile should clear the negative entry")
	}
	got, err := c.GetProfile(ctx, "u1")
	if err != nil || got.Name != "Ana" {
		t.Errorf("GetProfile() = %+v, %v", got, err)
	}
}

func TestIntegrationSignOutWatermark(t *testing.T) {
	ctx := context.Background()
	c := newIntegrationCache(t)

	if _, ok, err := c.GetSignOutWatermark(ctx, "u1"); err != nil || ok {
		t.Fatalf("GetSignOutWatermark() = %v, %v, want none", ok, err)
	}

	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	if err := c.SetSignOutWatermark(ctx, "u1", at); err != nil {
		t.Fatalf("SetSignOutWatermark() error = %v", err)
	}
	got, ok, err := c.GetSignOutWatermark(ctx, "u1")
	if err != nil || !ok || !got.Equal(at) {
		t.Errorf("GetSignOutWatermark() = %v, %v, %v, want %v", got, ok, err, at)
	}
}
