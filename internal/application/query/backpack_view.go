package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/practica-musical/progression-hub/internal/domain/backpack"
	"github.com/practica-musical/progression-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BACKPACK VIEW QUERY
// The student's backpack as it should be displayed: stored state with the
// rust and archive overlays applied for the current time.
// ══════════════════════════════════════════════════════════════════════════════

// BackpackViewQuery selects the student.
type BackpackViewQuery struct {
	StudentID string

	// Status keeps only items displayed with this status. Empty keeps all.
	Status backpack.Status
}

// Validate checks the query.
func (q *BackpackViewQuery) Validate() error {
	if q.StudentID == "" {
		return shared.ErrEmptyStudentID
	}
	if q.Status != "" && !q.Status.IsValid() {
		return shared.ErrInvalidStatus
	}
	return nil
}

// BackpackItemDTO is one displayed item.
type BackpackItemDTO struct {
	PracticeKey string `json:"practice_key"`

	// Status is the displayed status, StoredStatus what is persisted.
	Status       backpack.Status `json:"status"`
	StoredStatus backpack.Status `json:"stored_status"`

	MasteryScore    int        `json:"mastery_score"`
	MasteredWeeks   int        `json:"mastered_weeks"`
	LastPracticedAt *time.Time `json:"last_practiced_at,omitempty"`
}

// BackpackViewDTO lists the items ordered by practice key.
type BackpackViewDTO struct {
	StudentID string            `json:"student_id"`
	Items     []BackpackItemDTO `json:"items"`

	// Counts holds the number of items per displayed status.
	Counts map[backpack.Status]int `json:"counts"`
}

// BackpackViewHandler handles BackpackViewQuery.
type BackpackViewHandler struct {
	items backpack.Repository
	cfg   backpack.Config
	opts  Options
}

// NewBackpackViewHandler creates a new BackpackViewHandler.
func NewBackpackViewHandler(items backpack.Repository, cfg backpack.Config, opts Options) *BackpackViewHandler {
	if cfg.ArchivedAfterDays == 0 {
		cfg = backpack.DefaultConfig()
	}
	return &BackpackViewHandler{items: items, cfg: cfg, opts: opts.withDefaults()}
}

// Handle executes the query.
func (h *BackpackViewHandler) Handle(ctx context.Context, q BackpackViewQuery) (*BackpackViewDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("backpack_view: %w", err)
	}

	items, err := h.items.ListByStudent(ctx, q.StudentID)
	if err != nil {
		return nil, fmt.Errorf("backpack_view: %w", err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].PracticeKey < items[j].PracticeKey })

	now := h.opts.Now()
	dto := &BackpackViewDTO{
		StudentID: q.StudentID,
		Items:     make([]BackpackItemDTO, 0, len(items)),
		Counts:    make(map[backpack.Status]int),
	}
	for _, item := range items {
		shown := backpack.DisplayStatus(item, now, h.cfg)
		if q.Status != "" && shown != q.Status {
			continue
		}
		row := BackpackItemDTO{
			PracticeKey:   item.PracticeKey,
			Status:        shown,
			StoredStatus:  item.Status,
			MasteryScore:  item.MasteryScore,
			MasteredWeeks: len(item.MasteredWeeks),
		}
		if item.Practiced() {
			at := item.LastPracticedAt
			row.LastPracticedAt = &at
		}
		dto.Items = append(dto.Items, row)
		dto.Counts[shown]++
	}
	return dto, nil
}
