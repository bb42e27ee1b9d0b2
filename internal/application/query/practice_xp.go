package query

import (
	"context"
	"fmt"

	"github.com/practica-musical/progression-hub/internal/domain/shared"
	"github.com/practica-musical/progression-hub/internal/domain/xp"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRACTICE XP QUERY
// Recent practice XP: every completed block in the window earns its tempo
// award, split evenly across the three skills.
// ══════════════════════════════════════════════════════════════════════════════

// PracticeXPQuery selects the student and window.
type PracticeXPQuery struct {
	StudentID string

	// WindowDays is the lookback period. Zero means the configured default.
	WindowDays int
}

// Validate checks the query and fills defaults.
func (q *PracticeXPQuery) Validate(defaultDays int) error {
	if q.StudentID == "" {
		return shared.ErrEmptyStudentID
	}
	q.WindowDays = resolveWindow(q.WindowDays, defaultDays)
	if q.WindowDays < 0 {
		return shared.ErrNegativeWindow
	}
	return nil
}

// PracticeXPDTO is the windowed practice view.
type PracticeXPDTO struct {
	StudentID  string `json:"student_id"`
	WindowDays int    `json:"window_days"`

	// XP is the uncapped sum per skill.
	XP shared.SkillXP `json:"xp"`

	// Display is XP with the display cap applied.
	Display shared.SkillXP `json:"display"`
}

// PracticeXPHandler handles PracticeXPQuery.
type PracticeXPHandler struct {
	blocks xp.BlockRepository
	opts   Options
}

// NewPracticeXPHandler creates a new PracticeXPHandler.
func NewPracticeXPHandler(blocks xp.BlockRepository, opts Options) *PracticeXPHandler {
	return &PracticeXPHandler{blocks: blocks, opts: opts.withDefaults()}
}

// Handle executes the query.
func (h *PracticeXPHandler) Handle(ctx context.Context, q PracticeXPQuery) (*PracticeXPDTO, error) {
	if err := q.Validate(h.opts.Windows.PracticeDays); err != nil {
		return nil, fmt.Errorf("practice_xp: %w", err)
	}
	since, err := xp.Since(h.opts.Now(), q.WindowDays)
	if err != nil {
		return nil, fmt.Errorf("practice_xp: %w", err)
	}

	blocks, err := h.blocks.ListByStudent(ctx, q.StudentID)
	if err != nil {
		return nil, fmt.Errorf("practice_xp: load blocks: %w", err)
	}

	sum := xp.WindowedPracticeXP(blocks, since)
	return &PracticeXPDTO{
		StudentID:  q.StudentID,
		WindowDays: q.WindowDays,
		XP:         sum,
		Display:    sum.Capped(h.opts.Windows.DisplayCap),
	}, nil
}
