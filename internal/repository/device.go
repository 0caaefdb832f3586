package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/familyshare/familyshare/internal/model"
	"github.com/familyshare/familyshare/internal/store"
)

const devicesTable = "supervised_devices"

const deviceColumns = `
	id, parent_id, child_id, child_name, child_avatar_url, status, last_lat, last_lng, last_seen,
	screen_time_limit, approved_apps, created_at, consented_at, revoked_at, version
`

// CreateDevice inserts a new supervised device at version 1.
func (r *Repository) CreateDevice(ctx context.Context, d *model.SupervisedDevice) error {
	apps := d.ApprovedApps
	if apps == nil {
		apps = []string{}
	}

	query := `
		INSERT INTO supervised_devices (id, parent_id, child_id, child_name, child_avatar_url, status,
		                                screen_time_limit, approved_apps, created_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)
	`
	_, err := r.pool.Exec(ctx, query,
		d.ID,
		d.ParentID,
		d.ChildID,
		d.ChildName,
		d.ChildAvatarURL,
		d.Status,
		d.ScreenTimeLimit,
		pq.Array(apps),
		d.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("failed to create device: %w", err)
	}

	d.Version = 1
	return nil
}

// GetDevice retrieves a device by ID.
func (r *Repository) GetDevice(ctx context.Context, id string) (*model.SupervisedDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM supervised_devices WHERE id = $1`

	d, err := scanDevice(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return d, nil
}

// UpdateDevice writes every mutable field if the stored version matches.
func (r *Repository) UpdateDevice(ctx context.Context, d *model.SupervisedDevice, expectedVersion int64) error {
	var lat, lng *float64
	if d.LastLocation != nil {
		lat, lng = &d.LastLocation.Lat, &d.LastLocation.Lng
	}
	apps := d.ApprovedApps
	if apps == nil {
		apps = []string{}
	}

	query := `
		UPDATE supervised_devices
		SET status = $3, last_lat = $4, last_lng = $5, last_seen = $6, screen_time_limit = $7,
		    approved_apps = $8, consented_at = $9, revoked_at = $10, version = version + 1
		WHERE id = $1 AND version = $2
	`
	result, err := r.pool.Exec(ctx, query,
		d.ID,
		expectedVersion,
		d.Status,
		lat,
		lng,
		d.LastSeen,
		d.ScreenTimeLimit,
		pq.Array(apps),
		d.ConsentedAt,
		d.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.casMiss(ctx, devicesTable, d.ID)
	}

	d.Version = expectedVersion + 1
	return nil
}

// ListDevicesByParent returns the devices a parent supervises, oldest first.
func (r *Repository) ListDevicesByParent(ctx context.Context, parentID string) ([]*model.SupervisedDevice, error) {
	query := `SELECT ` + deviceColumns + ` FROM supervised_devices WHERE parent_id = $1 ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var out []*model.SupervisedDevice
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}
	return out, nil
}

func scanDevice(row pgx.Row) (*model.SupervisedDevice, error) {
	var d model.SupervisedDevice
	var lat, lng *float64
	var apps []string

	err := row.Scan(
		&d.ID,
		&d.ParentID,
		&d.ChildID,
		&d.ChildName,
		&d.ChildAvatarURL,
		&d.Status,
		&lat,
		&lng,
		&d.LastSeen,
		&d.ScreenTimeLimit,
		pq.Array(&apps),
		&d.CreatedAt,
		&d.ConsentedAt,
		&d.RevokedAt,
		&d.Version,
	)
	if err != nil {
		return nil, err
	}

	if lat != nil && lng != nil {
		d.LastLocation = &model.LatLng{Lat: *lat, Lng: *lng}
	}
	if apps == nil {
		apps = []string{}
	}
	d.ApprovedApps = apps
	return &d, nil
}
