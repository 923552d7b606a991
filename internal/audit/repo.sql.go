package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSink appends audit records to PostgreSQL. Append is the only statement
// in this type; the trail is never rewritten.
type PGSink struct {
	pool *pgxpool.Pool
}

// NewPGSink constructs a PostgreSQL sink.
func NewPGSink(pool *pgxpool.Pool) *PGSink {
	return &PGSink{pool: pool}
}

// Append inserts one record.
func (s *PGSink) Append(ctx context.Context, rec Record) error {
	prevJSON, err := marshalSnapshot(rec.Previous)
	if err != nil {
		return err
	}
	newJSON, err := marshalSnapshot(rec.New)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO audit_records
(id, action, resource, resource_id, actor_id, actor_email, actor_role, ip, user_agent, session_id, description, previous_values, new_values, success, error_message, data_sensitivity, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		rec.ID, rec.Action, rec.Resource, rec.ResourceID, rec.ActorID,
		rec.ActorEmail, rec.ActorRole, rec.IP, rec.UserAgent, rec.SessionID,
		rec.Description, prevJSON, newJSON, rec.Success, rec.ErrorMsg,
		rec.Sensitivity, rec.CreatedAt,
	)
	return err
}

func marshalSnapshot(values map[string]any) ([]byte, error) {
	if values == nil {
		return nil, nil
	}
	return json.Marshal(values)
}

var _ Sink = (*PGSink)(nil)

// TimelineRepository serves the read-only auditor view of the trail.
// Select statements only.
type TimelineRepository struct {
	pool *pgxpool.Pool
}

// NewTimelineRepository constructs the read side.
func NewTimelineRepository(pool *pgxpool.Pool) *TimelineRepository {
	return &TimelineRepository{pool: pool}
}

const recordColumns = `id, action, resource, resource_id, actor_id, actor_email, actor_role, ip, user_agent, session_id, description, success, error_message, data_sensitivity, created_at`

// List returns records matching the filters, newest first.
func (r *TimelineRepository) List(ctx context.Context, filters TimelineFilters, offset, limit int) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM audit_records WHERE ($1::timestamptz IS NULL OR created_at >= $1)
AND ($2::timestamptz IS NULL OR created_at < $2)
AND ($3::text IS NULL OR actor_email = $3)
AND ($4::text IS NULL OR resource = $4)
AND ($5::text IS NULL OR action = $5)
ORDER BY created_at DESC, id DESC OFFSET $6 LIMIT $7`
	rows, err := r.pool.Query(ctx, query,
		nullableTime(filters.From), nullableTime(filters.To),
		nullableText(filters.ActorEmail), nullableText(filters.Resource),
		nullableText(filters.Action), offset, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.Action, &rec.Resource, &rec.ResourceID,
			&rec.ActorID, &rec.ActorEmail, &rec.ActorRole, &rec.IP,
			&rec.UserAgent, &rec.SessionID, &rec.Description, &rec.Success,
			&rec.ErrorMsg, &rec.Sensitivity, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullableText(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
