package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/familyshare/familyshare/internal/events"
	"github.com/familyshare/familyshare/internal/store"
)

var _ events.AuditStore = (*Repository)(nil)

// InsertAuditRecords appends events to the audit log. Records already stored
// under the same stream id are skipped, so redelivered batches are harmless.
func (r *Repository) InsertAuditRecords(ctx context.Context, records []events.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO workflow_events (stream_id, type, entity_id, circle_id, actor_id, subject_id, status, occurred_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8)
		ON CONFLICT (stream_id) DO NOTHING
	`
	for _, rec := range records {
		batch.Queue(query,
			rec.StreamID,
			rec.Type,
			rec.EntityID,
			rec.CircleID,
			rec.ActorID,
			rec.SubjectID,
			rec.Status,
			rec.OccurredAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert audit record %d: %w", i, err)
		}
	}
	return nil
}

// ListAuditRecords returns the audit trail of one entity, oldest first.
func (r *Repository) ListAuditRecords(ctx context.Context, entityID string, limit int) ([]events.AuditRecord, error) {
	query := `
		SELECT stream_id, type, entity_id, COALESCE(circle_id, ''), COALESCE(actor_id, ''),
		       COALESCE(subject_id, ''), COALESCE(status, ''), occurred_at
		FROM workflow_events
		WHERE entity_id = $1 OR circle_id = $1
		ORDER BY occurred_at, stream_id
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, entityID, store.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	var out []events.AuditRecord
	for rows.Next() {
		var rec events.AuditRecord
		if err := rows.Scan(
			&rec.StreamID,
			&rec.Type,
			&rec.EntityID,
			&rec.CircleID,
			&rec.ActorID,
			&rec.SubjectID,
			&rec.Status,
			&rec.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit records: %w", err)
	}
	return out, nil
}
