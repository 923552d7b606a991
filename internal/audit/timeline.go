package audit

import (
	"context"
	"fmt"
	"time"
)

// TimelineFilters narrows the auditor view of the trail.
type TimelineFilters struct {
	From       time.Time
	To         time.Time
	ActorEmail string
	Resource   string
	Action     string
	Page       int
	PageSize   int
}

// PagingInfo carries pagination metadata.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result bundles one page of records with paging info.
type Result struct {
	Rows   []Record
	Paging PagingInfo
}

// Lister is the read contract the timeline service consumes.
type Lister interface {
	List(ctx context.Context, filters TimelineFilters, offset, limit int) ([]Record, error)
}

// Timeline serves paged, filtered, read-only views of the trail.
type Timeline struct {
	repo Lister
}

// NewTimeline constructs the timeline service.
func NewTimeline(repo Lister) *Timeline {
	return &Timeline{repo: repo}
}

// Page fetches one page of records.
func (t *Timeline) Page(ctx context.Context, filters TimelineFilters) (Result, error) {
	if t.repo == nil {
		return Result{}, fmt.Errorf("audit: timeline repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize
	// Fetch one extra row to detect a next page.
	rows, err := t.repo.List(ctx, filters, offset, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export fetches every record matching the filters, in batches.
func (t *Timeline) Export(ctx context.Context, filters TimelineFilters) ([]Record, error) {
	if t.repo == nil {
		return nil, fmt.Errorf("audit: timeline repository not configured")
	}
	const batch = 500
	var all []Record
	for offset := 0; ; offset += batch {
		rows, err := t.repo.List(ctx, filters, offset, batch)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
		if len(rows) < batch {
			return all, nil
		}
	}
}
