package audit

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pronas-pcd/pronas-core/internal/shared"
)

// Sink is the append-only persistence contract. No read, update or delete
// surface is ever exposed to the recorder.
type Sink interface {
	Append(ctx context.Context, rec Record) error
}

// Event captures one security-relevant operation to be recorded.
type Event struct {
	Action      Action
	Resource    Resource
	ResourceID  *int64
	ActorID     int64
	ActorEmail  string
	ActorRole   string
	Meta        shared.RequestMeta
	Description string
	Previous    map[string]any
	New         map[string]any
	Success     bool
	ErrorMsg    string
}

// Recorder appends structured audit records synchronously on the request
// path. Appends are independent and order-insensitive; ULID ids keep them
// approximately chronological when listed.
type Recorder struct {
	sink    Sink
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// NewRecorder constructs a Recorder. A non-positive timeout defaults to 5s;
// a slow sink must not hang the request pipeline indefinitely.
func NewRecorder(sink Sink, logger *slog.Logger, timeout time.Duration) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Recorder{
		sink:    sink,
		logger:  logger,
		timeout: timeout,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Record appends the event to the trail. For mutating actions an append
// failure (including a sink timeout) returns shared.ErrAuditWriteFailed and
// must propagate to the caller: the mutation and its audit record are one
// unit of accountability. For reads the failure is logged and swallowed.
func (r *Recorder) Record(ctx context.Context, ev Event) error {
	now := r.now().UTC()
	rec := Record{
		ID:          r.newID(now),
		Action:      ev.Action,
		Resource:    ev.Resource,
		ResourceID:  ev.ResourceID,
		ActorID:     ev.ActorID,
		ActorEmail:  ev.ActorEmail,
		ActorRole:   ev.ActorRole,
		IP:          ev.Meta.IP,
		UserAgent:   ev.Meta.UserAgent,
		SessionID:   ev.Meta.SessionID,
		Description: ev.Description,
		Previous:    ev.Previous,
		New:         ev.New,
		Success:     ev.Success,
		ErrorMsg:    ev.ErrorMsg,
		Sensitivity: ClassifyResource(ev.Resource),
		CreatedAt:   now,
	}

	appendCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.sink.Append(appendCtx, rec); err != nil {
		if IsMutation(ev.Action) {
			r.logger.Error("audit append failed for mutation",
				slog.String("action", string(ev.Action)),
				slog.String("resource", string(ev.Resource)),
				slog.Any("error", err))
			return fmt.Errorf("%w: %v", shared.ErrAuditWriteFailed, err)
		}
		r.logger.Warn("audit append failed for read",
			slog.String("action", string(ev.Action)),
			slog.String("resource", string(ev.Resource)),
			slog.Any("error", err))
		return nil
	}
	return nil
}

// newID produces sortable ids; the monotonic entropy source is not safe for
// concurrent readers.
func (r *Recorder) newID(now time.Time) string {
	r.entropyMu.Lock()
	defer r.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), r.entropy).String()
}
