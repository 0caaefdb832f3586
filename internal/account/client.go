// Package account reads user profiles from the hosted account backend.
package account

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/familyshare/familyshare/internal/model"
	"github.com/familyshare/familyshare/internal/store"
)

// Client fetches profile rows over the account backend's REST API.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewClient creates a profile client. apiKey is sent as a bearer token.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || (r != nil && r.StatusCode() >= http.StatusInternalServerError)
		}).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &Client{http: c, logger: logger}
}

// GetProfile returns the profile of userID. Unknown users yield an error
// wrapping store.ErrNotFound.
func (c *Client) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	var user model.User
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", userID).
		SetResult(&user).
		Get("/profiles/{id}")
	if err != nil {
		c.logger.Warn("profile_lookup_failed", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, fmt.Errorf("profile %s: %w", userID, store.ErrNotFound)
	case resp.IsError():
		c.logger.Warn("profile_lookup_failed", "user_id", userID, "status", resp.StatusCode())
		return nil, fmt.Errorf("profile lookup returned status %d", resp.StatusCode())
	}

	if user.ID == "" {
		user.ID = userID
	}
	return &user, nil
}

// Directory is a fixed in-process profile table for the memory driver and tests.
type Directory struct {
	mu    sync.RWMutex
	users map[string]model.User
}

// NewDirectory creates a Directory holding users.
func NewDirectory(users ...model.User) *Directory {
	d := &Directory{users: make(map[string]model.User, len(users))}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

// Put adds or replaces a profile.
func (d *Directory) Put(u model.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

// GetProfile returns the stored profile or an error wrapping store.ErrNotFound.
func (d *Directory) GetProfile(_ context.Context, userID string) (*model.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", userID, store.ErrNotFound)
	}
	return &u, nil
}
