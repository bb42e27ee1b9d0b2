package query

import (
	"context"
	"fmt"

	"github.com/practica-musical/progression-hub/internal/domain/promotion"
	"github.com/practica-musical/progression-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PREVIEW PROMOTION QUERY
// Evaluates the professor's uncommitted edits: pending manual XP values and
// local criteria toggles. Committing the same edits with
// CommitProfessorReview makes CanPromote return this exact check.
// ══════════════════════════════════════════════════════════════════════════════

// PreviewPromotionQuery contains the pending edits.
type PreviewPromotionQuery struct {
	StudentID string

	// Level is the level under review. Zero means the student's current level.
	Level int

	Adjustments []promotion.Adjustment
	Toggles     []promotion.Toggle
}

// Validate checks the query.
func (q *PreviewPromotionQuery) Validate() error {
	if q.StudentID == "" {
		return shared.ErrEmptyStudentID
	}
	if q.Level < 0 {
		return shared.ErrInvalidLevel
	}
	return promotion.ValidateAdjustments(q.Adjustments)
}

// PreviewPromotionDTO is the projected check.
type PreviewPromotionDTO struct {
	PromotionCheckDTO

	// Stored is the check without the pending edits, for comparison.
	Stored promotion.Check `json:"stored"`
}

// PreviewPromotionHandler handles PreviewPromotionQuery.
type PreviewPromotionHandler struct {
	students promotion.StudentRepository
	checker  *promotion.Checker
	opts     Options
}

// NewPreviewPromotionHandler creates a new PreviewPromotionHandler.
func NewPreviewPromotionHandler(students promotion.StudentRepository, checker *promotion.Checker, opts Options) *PreviewPromotionHandler {
	return &PreviewPromotionHandler{students: students, checker: checker, opts: opts.withDefaults()}
}

// Handle executes the query.
func (h *PreviewPromotionHandler) Handle(ctx context.Context, q PreviewPromotionQuery) (*PreviewPromotionDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("preview_promotion: %w", err)
	}
	level, err := currentLevel(ctx, h.students, q.StudentID, q.Level)
	if err != nil {
		return nil, fmt.Errorf("preview_promotion: %w", err)
	}

	snap, err := h.checker.Load(ctx, q.StudentID, level)
	if err != nil {
		return nil, fmt.Errorf("preview_promotion: %w", err)
	}
	projected, err := snap.Preview(q.Adjustments, q.Toggles, h.opts.Now())
	if err != nil {
		return nil, fmt.Errorf("preview_promotion: %w", err)
	}

	return &PreviewPromotionDTO{
		PromotionCheckDTO: PromotionCheckDTO{StudentID: q.StudentID, Level: level, Check: projected},
		Stored:            promotion.Evaluate(snap.Input()),
	}, nil
}
