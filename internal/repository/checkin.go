package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/familyshare/familyshare/internal/model"
	"github.com/familyshare/familyshare/internal/store"
)

const checkInsTable = "check_in_requests"

const checkInColumns = `
	id, circle_id, requester_id, requester_name, target_id, target_name, status,
	created_at, responded_at, location_lat, location_lng, COALESCE(photo_url, ''), COALESCE(duration, ''),
	grant_kind, grant_expires_at, grant_consumed_at, revoked_at, version
`

// CreateCheckIn inserts a new check-in request at version 1.
func (r *Repository) CreateCheckIn(ctx context.Context, req *model.CheckInRequest) error {
	query := `
		INSERT INTO check_in_requests (id, circle_id, requester_id, requester_name, target_id, target_name, status, created_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)
	`
	_, err := r.pool.Exec(ctx, query,
		req.ID,
		req.CircleID,
		req.RequesterID,
		req.RequesterName,
		req.TargetID,
		req.TargetName,
		req.Status,
		req.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("failed to create check-in: %w", err)
	}

	req.Version = 1
	return nil
}

// GetCheckIn retrieves a check-in request by ID.
func (r *Repository) GetCheckIn(ctx context.Context, id string) (*model.CheckInRequest, error) {
	query := `SELECT ` + checkInColumns + ` FROM check_in_requests WHERE id = $1`

	req, err := scanCheckIn(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get check-in: %w", err)
	}
	return req, nil
}

// UpdateCheckIn writes every mutable field if the stored version matches.
func (r *Repository) UpdateCheckIn(ctx context.Context, req *model.CheckInRequest, expectedVersion int64) error {
	var lat, lng *float64
	if req.Location != nil {
		lat, lng = &req.Location.Lat, &req.Location.Lng
	}
	var grantKind *string
	var grantExpiresAt, grantConsumedAt *time.Time
	if req.Grant != nil {
		kind := string(req.Grant.Kind)
		grantKind = &kind
		grantExpiresAt = req.Grant.ExpiresAt
		grantConsumedAt = req.Grant.ConsumedAt
	}

	query := `
		UPDATE check_in_requests
		SET status = $3, responded_at = $4, location_lat = $5, location_lng = $6,
		    photo_url = NULLIF($7, ''), duration = NULLIF($8, ''),
		    grant_kind = $9, grant_expires_at = $10, grant_consumed_at = $11,
		    revoked_at = $12, version = version + 1
		WHERE id = $1 AND version = $2
	`
	result, err := r.pool.Exec(ctx, query,
		req.ID,
		expectedVersion,
		req.Status,
		req.RespondedAt,
		lat,
		lng,
		req.PhotoURL,
		string(req.Duration),
		grantKind,
		grantExpiresAt,
		grantConsumedAt,
		req.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update check-in: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.casMiss(ctx, checkInsTable, req.ID)
	}

	req.Version = expectedVersion + 1
	return nil
}

// ListCheckIns returns matching requests newest first.
func (r *Repository) ListCheckIns(ctx context.Context, f store.CheckInFilter) ([]*model.CheckInRequest, error) {
	query := `SELECT ` + checkInColumns + ` FROM check_in_requests WHERE TRUE`
	var args []any
	argIndex := 1

	if f.CircleID != "" {
		query += fmt.Sprintf(" AND circle_id = $%d", argIndex)
		args = append(args, f.CircleID)
		argIndex++
	}
	if f.RequesterID != "" {
		query += fmt.Sprintf(" AND requester_id = $%d", argIndex)
		args = append(args, f.RequesterID)
		argIndex++
	}
	if f.TargetID != "" {
		query += fmt.Sprintf(" AND target_id = $%d", argIndex)
		args = append(args, f.TargetID)
		argIndex++
	}
	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, f.Status)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argIndex)
	args = append(args, store.NormalizeLimit(f.Limit))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list check-ins: %w", err)
	}
	defer rows.Close()

	var out []*model.CheckInRequest
	for rows.Next() {
		req, err := scanCheckIn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan check-in: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating check-ins: %w", err)
	}
	return out, nil
}

func scanCheckIn(row pgx.Row) (*model.CheckInRequest, error) {
	var req model.CheckInRequest
	var lat, lng *float64
	var duration string
	var grantKind *string
	var grantExpiresAt, grantConsumedAt *time.Time

	err := row.Scan(
		&req.ID,
		&req.CircleID,
		&req.RequesterID,
		&req.RequesterName,
		&req.TargetID,
		&req.TargetName,
		&req.Status,
		&req.CreatedAt,
		&req.RespondedAt,
		&lat,
		&lng,
		&req.PhotoURL,
		&duration,
		&grantKind,
		&grantExpiresAt,
		&grantConsumedAt,
		&req.RevokedAt,
		&req.Version,
	)
	if err != nil {
		return nil, err
	}

	req.Duration = model.ShareDuration(duration)
	if lat != nil && lng != nil {
		req.Location = &model.LatLng{Lat: *lat, Lng: *lng}
	}
	if grantKind != nil {
		req.Grant = &model.Grant{
			Kind:       model.GrantKind(*grantKind),
			ExpiresAt:  grantExpiresAt,
			Consumed:   grantConsumedAt != nil,
			ConsumedAt: grantConsumedAt,
		}
	}
	return &req, nil
}
