package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/familyshare/familyshare/internal/model"
	"github.com/familyshare/familyshare/internal/store"
)

const alertsTable = "public_alerts"

const alertColumns = `
	id, type, title, description, location_lat, location_lng, location_description,
	last_seen_clothing, created_at, creator_id, creator_name, status, resolved_at, version
`

// CreateAlert inserts a new alert at version 1.
func (r *Repository) CreateAlert(ctx context.Context, a *model.PublicAlert) error {
	query := `
		INSERT INTO public_alerts (id, type, title, description, location_lat, location_lng, location_description,
		                           last_seen_clothing, created_at, creator_id, creator_name, status, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1)
	`
	_, err := r.pool.Exec(ctx, query,
		a.ID,
		a.Type,
		a.Title,
		a.Description,
		a.Location.Lat,
		a.Location.Lng,
		a.LocationDescription,
		a.LastSeenClothing,
		a.CreatedAt,
		a.CreatorID,
		a.CreatorName,
		a.Status,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("failed to create alert: %w", err)
	}

	a.Version = 1
	return nil
}

// GetAlert retrieves an alert by ID.
func (r *Repository) GetAlert(ctx context.Context, id string) (*model.PublicAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM public_alerts WHERE id = $1`

	a, err := scanAlert(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// UpdateAlert writes status and resolution time if the stored version matches.
func (r *Repository) UpdateAlert(ctx context.Context, a *model.PublicAlert, expectedVersion int64) error {
	query := `
		UPDATE public_alerts
		SET status = $3, resolved_at = $4, version = version + 1
		WHERE id = $1 AND version = $2
	`
	result, err := r.pool.Exec(ctx, query, a.ID, expectedVersion, a.Status, a.ResolvedAt)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.casMiss(ctx, alertsTable, a.ID)
	}

	a.Version = expectedVersion + 1
	return nil
}

// ListAlerts returns matching alerts newest first.
func (r *Repository) ListAlerts(ctx context.Context, f store.AlertFilter) ([]*model.PublicAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM public_alerts WHERE TRUE`
	var args []any
	argIndex := 1

	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, f.Status)
		argIndex++
	}
	if f.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", argIndex)
		args = append(args, f.Type)
		argIndex++
	}
	if f.CreatorID != "" {
		query += fmt.Sprintf(" AND creator_id = $%d", argIndex)
		args = append(args, f.CreatorID)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argIndex)
	args = append(args, store.NormalizeLimit(f.Limit))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []*model.PublicAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return out, nil
}

// CreateSighting inserts a report only while its alert exists and is not
// resolved. The alert row is share-locked so a concurrent resolve waits.
func (r *Repository) CreateSighting(ctx context.Context, s *model.SightingReport) error {
	query := `
		INSERT INTO sighting_reports (id, alert_id, reporter_id, message, photo_url, created_at)
		SELECT $1, a.id, $3, $4, $5, $6
		FROM (
			SELECT id FROM public_alerts
			WHERE id = $2 AND status <> 'resolved'
			FOR SHARE
		) a
	`
	result, err := r.pool.Exec(ctx, query, s.ID, s.AlertID, s.ReporterID, s.Message, s.PhotoURL, s.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("failed to create sighting: %w", err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListSightings returns the reports on an alert, oldest first.
func (r *Repository) ListSightings(ctx context.Context, alertID string) ([]*model.SightingReport, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM public_alerts WHERE id = $1)`, alertID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check alert: %w", err)
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, alert_id, reporter_id, message, photo_url, created_at
		FROM sighting_reports
		WHERE alert_id = $1
		ORDER BY created_at, id
	`, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sightings: %w", err)
	}
	defer rows.Close()

	out := make([]*model.SightingReport, 0)
	for rows.Next() {
		var s model.SightingReport
		if err := rows.Scan(&s.ID, &s.AlertID, &s.ReporterID, &s.Message, &s.PhotoURL, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sighting: %w", err)
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sightings: %w", err)
	}
	return out, nil
}

func scanAlert(row pgx.Row) (*model.PublicAlert, error) {
	var a model.PublicAlert
	err := row.Scan(
		&a.ID,
		&a.Type,
		&a.Title,
		&a.Description,
		&a.Location.Lat,
		&a.Location.Lng,
		&a.LocationDescription,
		&a.LastSeenClothing,
		&a.CreatedAt,
		&a.CreatorID,
		&a.CreatorName,
		&a.Status,
		&a.ResolvedAt,
		&a.Version,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
