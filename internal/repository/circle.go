package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/familyshare/familyshare/internal/model"
	"github.com/familyshare/familyshare/internal/store"
)

const circlesTable = "family_circles"

// CreateCircle inserts a new circle at version 1.
func (r *Repository) CreateCircle(ctx context.Context, c *model.FamilyCircle) error {
	members, err := json.Marshal(c.Members)
	if err != nil {
		return fmt.Errorf("failed to encode members: %w", err)
	}

	query := `
		INSERT INTO family_circles (id, name, creator_id, members, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, 1)
	`
	if _, err := r.pool.Exec(ctx, query, c.ID, c.Name, c.CreatorID, members, c.CreatedAt, c.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("failed to create circle: %w", err)
	}

	c.Version = 1
	return nil
}

// GetCircle retrieves a circle by ID.
func (r *Repository) GetCircle(ctx context.Context, id string) (*model.FamilyCircle, error) {
	query := `
		SELECT id, name, creator_id, members, created_at, updated_at, version
		FROM family_circles
		WHERE id = $1
	`

	c, err := scanCircle(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get circle: %w", err)
	}
	return c, nil
}

// ListCirclesForUser returns every circle with userID in its member list.
func (r *Repository) ListCirclesForUser(ctx context.Context, userID string) ([]*model.FamilyCircle, error) {
	query := `
		SELECT id, name, creator_id, members, created_at, updated_at, version
		FROM family_circles
		WHERE members @> jsonb_build_array(jsonb_build_object('user_id', $1::text))
		ORDER BY created_at, id
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list circles: %w", err)
	}
	defer rows.Close()

	var circles []*model.FamilyCircle
	for rows.Next() {
		c, err := scanCircle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan circle: %w", err)
		}
		circles = append(circles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating circles: %w", err)
	}
	return circles, nil
}

// UpdateCircle replaces name and members if the stored version matches.
func (r *Repository) UpdateCircle(ctx context.Context, c *model.FamilyCircle, expectedVersion int64) error {
	members, err := json.Marshal(c.Members)
	if err != nil {
		return fmt.Errorf("failed to encode members: %w", err)
	}

	query := `
		UPDATE family_circles
		SET name = $3, members = $4, updated_at = $5, version = version + 1
		WHERE id = $1 AND version = $2
	`
	result, err := r.pool.Exec(ctx, query, c.ID, expectedVersion, c.Name, members, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update circle: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.casMiss(ctx, circlesTable, c.ID)
	}

	c.Version = expectedVersion + 1
	return nil
}

// DisbandCircle deletes the circle and invalidates its check-ins in one transaction.
func (r *Repository) DisbandCircle(ctx context.Context, id string, expectedVersion int64, at time.Time) (int, error) {
	var affected int
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `DELETE FROM family_circles WHERE id = $1 AND version = $2`, id, expectedVersion)
		if err != nil {
			return fmt.Errorf("failed to delete circle: %w", err)
		}
		if result.RowsAffected() == 0 {
			return r.casMiss(ctx, circlesTable, id)
		}

		affected, err = invalidateCheckIns(ctx, tx, id, "", at)
		return err
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// RemoveMember writes the shrunken member list and invalidates the removed
// user's check-ins in the circle in one transaction.
func (r *Repository) RemoveMember(ctx context.Context, c *model.FamilyCircle, expectedVersion int64, userID string, at time.Time) (int, error) {
	members, err := json.Marshal(c.Members)
	if err != nil {
		return 0, fmt.Errorf("failed to encode members: %w", err)
	}

	var affected int
	err = r.inTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE family_circles
			SET members = $3, updated_at = $4, version = version + 1
			WHERE id = $1 AND version = $2
		`, c.ID, expectedVersion, members, c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update circle: %w", err)
		}
		if result.RowsAffected() == 0 {
			return r.casMiss(ctx, circlesTable, c.ID)
		}

		affected, err = invalidateCheckIns(ctx, tx, c.ID, userID, at)
		return err
	})
	if err != nil {
		return 0, err
	}

	c.Version = expectedVersion + 1
	return affected, nil
}

// invalidateCheckIns cancels pending requests and revokes live grants of the
// circle. A non-empty userID limits it to requests that user is part of.
func invalidateCheckIns(ctx context.Context, tx pgx.Tx, circleID, userID string, at time.Time) (int, error) {
	cancelled, err := tx.Exec(ctx, `
		UPDATE check_in_requests
		SET status = 'cancelled', version = version + 1
		WHERE circle_id = $1 AND status = 'pending'
		  AND ($2::text = '' OR requester_id = $2 OR target_id = $2)
	`, circleID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel pending check-ins: %w", err)
	}

	revoked, err := tx.Exec(ctx, `
		UPDATE check_in_requests
		SET revoked_at = $3, version = version + 1
		WHERE circle_id = $1 AND status = 'approved' AND revoked_at IS NULL
		  AND ($2::text = '' OR requester_id = $2 OR target_id = $2)
	`, circleID, userID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke grants: %w", err)
	}

	return int(cancelled.RowsAffected() + revoked.RowsAffected()), nil
}

// RecordLocation rewrites the member entry of userID in every circle in a
// single statement. Entries holding a newer fix are left alone.
func (r *Repository) RecordLocation(ctx context.Context, userID string, loc model.LatLng, at time.Time) (int, error) {
	locJSON, err := json.Marshal(loc)
	if err != nil {
		return 0, fmt.Errorf("failed to encode location: %w", err)
	}
	seenJSON, err := json.Marshal(at)
	if err != nil {
		return 0, fmt.Errorf("failed to encode timestamp: %w", err)
	}

	query := `
		UPDATE family_circles c
		SET members = (
				SELECT jsonb_agg(
					CASE WHEN t.m->>'user_id' = $1
						THEN t.m || jsonb_build_object('last_location', $2::jsonb, 'last_seen', $3::jsonb)
						ELSE t.m
					END ORDER BY t.ord)
				FROM jsonb_array_elements(c.members) WITH ORDINALITY AS t(m, ord)
			),
			updated_at = $4,
			version = version + 1
		WHERE c.members @> jsonb_build_array(jsonb_build_object('user_id', $1::text))
		  AND NOT EXISTS (
				SELECT 1 FROM jsonb_array_elements(c.members) AS e(m)
				WHERE e.m->>'user_id' = $1
				  AND (e.m->>'last_seen')::timestamptz > $4
			)
	`
	result, err := r.pool.Exec(ctx, query, userID, locJSON, seenJSON, at)
	if err != nil {
		return 0, fmt.Errorf("failed to record location: %w", err)
	}
	return int(result.RowsAffected()), nil
}

func scanCircle(row pgx.Row) (*model.FamilyCircle, error) {
	var c model.FamilyCircle
	var members []byte
	if err := row.Scan(&c.ID, &c.Name, &c.CreatorID, &members, &c.CreatedAt, &c.UpdatedAt, &c.Version); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(members, &c.Members); err != nil {
		return nil, fmt.Errorf("failed to decode members: %w", err)
	}
	return &c, nil
}
