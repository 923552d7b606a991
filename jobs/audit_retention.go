package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/pronas-pcd/pronas-core/internal/jobs"
)

const defaultBatchSize = 5000

// Sweeper removes audit records past their retention horizon. Deletion
// authority lives here and nowhere else; the serving path only ever appends
// and reads.
type Sweeper struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	now     func() time.Time
}

// NewSweeper constructs a Sweeper.
func NewSweeper(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{pool: pool, logger: logger, metrics: metrics, now: time.Now}
}

// Sweep deletes records older than the retention horizon in batches, so a
// long-overdue sweep does not hold a table lock for minutes. Returns the
// number of records removed.
func (s *Sweeper) Sweep(ctx context.Context, payload AuditRetentionPayload) (int64, error) {
	if s.pool == nil {
		return 0, errors.New("jobs: sweeper has no database pool")
	}
	if payload.Retention <= 0 {
		return 0, errors.New("jobs: non-positive retention")
	}
	batch := payload.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	cutoff := s.now().UTC().Add(-payload.Retention)
	tracker := s.metrics.Track("audit_retention")

	var total int64
	for {
		tag, err := s.pool.Exec(ctx, `
			DELETE FROM audit_records
			WHERE id IN (
				SELECT id FROM audit_records
				WHERE created_at < $1
				ORDER BY created_at
				LIMIT $2
			)`, cutoff, batch)
		if err != nil {
			s.logger.Error("audit retention sweep failed",
				slog.Int64("deleted", total),
				slog.Any("error", err))
			return total, tracker.End(err)
		}
		total += tag.RowsAffected()
		if tag.RowsAffected() < int64(batch) {
			break
		}
	}
	s.metrics.AddPurged("audit_retention", total)
	s.logger.Info("audit retention sweep complete",
		slog.Time("cutoff", cutoff),
		slog.Int64("deleted", total))
	return total, tracker.End(nil)
}
