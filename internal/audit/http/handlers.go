package audithttp

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pronas-pcd/pronas-core/internal/audit"
	"github.com/pronas-pcd/pronas-core/internal/identity"
	"github.com/pronas-pcd/pronas-core/internal/platform/httpx"
	"github.com/pronas-pcd/pronas-core/internal/shared"
)

const (
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
)

// Handler serves the read-only auditor view of the trail.
type Handler struct {
	logger   *slog.Logger
	timeline *audit.Timeline
	recorder *audit.Recorder
	now      func() time.Time
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, timeline *audit.Timeline, recorder *audit.Recorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, timeline: timeline, recorder: recorder, now: time.Now}
}

type timelineRow struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Action      string    `json:"action"`
	Resource    string    `json:"resource"`
	ResourceID  *int64    `json:"resource_id,omitempty"`
	ActorID     int64     `json:"actor_id"`
	ActorEmail  string    `json:"actor_email"`
	ActorRole   string    `json:"actor_role"`
	IP          string    `json:"ip"`
	SessionID   string    `json:"session_id"`
	Description string    `json:"description"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	Sensitivity string    `json:"sensitivity"`
}

type timelineResponse struct {
	Rows   []timelineRow `json:"rows"`
	Paging pagingInfo    `json:"paging"`
}

type pagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filters", err.Error())
		return
	}
	result, err := h.timeline.Page(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.recordAccess(r, audit.ActionRead, "audit timeline viewed")

	rows := make([]timelineRow, 0, len(result.Rows))
	for _, rec := range result.Rows {
		rows = append(rows, toRow(rec))
	}
	httpx.JSON(w, http.StatusOK, timelineResponse{
		Rows: rows,
		Paging: pagingInfo{
			Page:     result.Paging.Page,
			PageSize: result.Paging.PageSize,
			HasNext:  result.Paging.HasNext,
			PrevPage: result.Paging.PrevPage,
			NextPage: result.Paging.NextPage,
		},
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filters", err.Error())
		return
	}
	rows, err := h.timeline.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	payload, err := audit.WriteCSV(rows)
	if err != nil {
		h.logger.Error("render audit csv", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.recordAccess(r, audit.ActionExport, fmt.Sprintf("audit trail exported (%d records)", len(rows)))

	filename := "audit-" + h.now().UTC().Format("20060102-150405") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (h *Handler) parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	q := r.URL.Query()
	now := h.now().UTC()

	to := now
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return audit.TimelineFilters{}, fmt.Errorf("invalid to date %q", raw)
		}
		to = parsed.Add(24*time.Hour - time.Nanosecond)
	}
	from := to.Add(-defaultDateRange)
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return audit.TimelineFilters{}, fmt.Errorf("invalid from date %q", raw)
		}
		from = parsed
	}
	if from.After(to) {
		return audit.TimelineFilters{}, fmt.Errorf("from date is after to date")
	}
	if to.Sub(from) > maxDateRange {
		return audit.TimelineFilters{}, fmt.Errorf("date range exceeds 90 days")
	}

	filters := audit.TimelineFilters{
		From:       from,
		To:         to,
		ActorEmail: strings.TrimSpace(q.Get("actor")),
		Resource:   strings.TrimSpace(q.Get("resource")),
		Action:     strings.TrimSpace(q.Get("action")),
	}
	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return audit.TimelineFilters{}, fmt.Errorf("invalid page %q", raw)
		}
		filters.Page = page
	}
	if raw := q.Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			return audit.TimelineFilters{}, fmt.Errorf("invalid page size %q", raw)
		}
		filters.PageSize = size
	}
	return filters, nil
}

// recordAccess leaves a trace of who looked at the trail. Reads never fail
// the request; the recorder downgrades append failures to warnings.
func (h *Handler) recordAccess(r *http.Request, action audit.Action, description string) {
	ident := identity.FromContext(r.Context())
	if ident == nil || h.recorder == nil {
		return
	}
	_ = h.recorder.Record(r.Context(), audit.Event{
		Action:      action,
		Resource:    audit.ResourceAudit,
		ActorID:     ident.ID,
		ActorEmail:  ident.Email,
		ActorRole:   string(ident.Role),
		Meta:        shared.MetaFromRequest(r),
		Description: description,
		Success:     true,
	})
}

func toRow(rec audit.Record) timelineRow {
	return timelineRow{
		ID:          rec.ID,
		CreatedAt:   rec.CreatedAt,
		Action:      string(rec.Action),
		Resource:    string(rec.Resource),
		ResourceID:  rec.ResourceID,
		ActorID:     rec.ActorID,
		ActorEmail:  rec.ActorEmail,
		ActorRole:   rec.ActorRole,
		IP:          rec.IP,
		SessionID:   rec.SessionID,
		Description: rec.Description,
		Success:     rec.Success,
		Error:       rec.ErrorMsg,
		Sensitivity: string(rec.Sensitivity),
	}
}
