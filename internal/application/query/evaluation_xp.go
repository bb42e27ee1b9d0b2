package query

import (
	"context"
	"fmt"

	"github.com/practica-musical/progression-hub/internal/domain/shared"
	"github.com/practica-musical/progression-hub/internal/domain/xp"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATION XP QUERY
// Latest professor ratings (sonido, cognicion) on a 0-100 scale.
// ══════════════════════════════════════════════════════════════════════════════

// EvaluationXPQuery selects the student and window.
type EvaluationXPQuery struct {
	StudentID string

	// WindowDays is the lookback period. Zero means the configured default.
	WindowDays int
}

// Validate checks the query and fills defaults.
func (q *EvaluationXPQuery) Validate(defaultDays int) error {
	if q.StudentID == "" {
		return shared.ErrEmptyStudentID
	}
	q.WindowDays = resolveWindow(q.WindowDays, defaultDays)
	if q.WindowDays < 0 {
		return shared.ErrNegativeWindow
	}
	return nil
}

// EvaluationXPDTO is the qualitative view.
type EvaluationXPDTO struct {
	StudentID  string `json:"student_id"`
	WindowDays int    `json:"window_days"`
	xp.QualitativeScore
}

// EvaluationXPHandler handles EvaluationXPQuery.
type EvaluationXPHandler struct {
	records xp.QualitativeRepository
	opts    Options
}

// NewEvaluationXPHandler creates a new EvaluationXPHandler.
func NewEvaluationXPHandler(records xp.QualitativeRepository, opts Options) *EvaluationXPHandler {
	return &EvaluationXPHandler{records: records, opts: opts.withDefaults()}
}

// Handle executes the query.
func (h *EvaluationXPHandler) Handle(ctx context.Context, q EvaluationXPQuery) (*EvaluationXPDTO, error) {
	if err := q.Validate(h.opts.Windows.EvaluationDays); err != nil {
		return nil, fmt.Errorf("evaluation_xp: %w", err)
	}
	since, err := xp.Since(h.opts.Now(), q.WindowDays)
	if err != nil {
		return nil, fmt.Errorf("evaluation_xp: %w", err)
	}

	records, err := h.records.ListByStudent(ctx, q.StudentID)
	if err != nil {
		return nil, fmt.Errorf("evaluation_xp: load ratings: %w", err)
	}

	return &EvaluationXPDTO{
		StudentID:        q.StudentID,
		WindowDays:       q.WindowDays,
		QualitativeScore: xp.LatestQualitative(records, since),
	}, nil
}
