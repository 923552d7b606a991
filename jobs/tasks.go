package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditRetention is the task type for the audit retention sweep.
	TaskAuditRetention = "audit:retention"
)

// AuditRetentionPayload parameterises one retention sweep.
type AuditRetentionPayload struct {
	Retention time.Duration `json:"retention"`
	BatchSize int           `json:"batch_size"`
}

// NewAuditRetentionTask constructs an Asynq task for the retention sweep.
func NewAuditRetentionTask(payload AuditRetentionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRetention, data), nil
}

// RetentionHandler adapts a Sweeper into an Asynq handler.
func RetentionHandler(sweeper *Sweeper) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload AuditRetentionPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		_, err := sweeper.Sweep(ctx, payload)
		return err
	}
}
