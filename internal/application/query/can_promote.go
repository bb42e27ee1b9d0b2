package query

import (
	"context"
	"fmt"

	"github.com/practica-musical/progression-hub/internal/domain/promotion"
	"github.com/practica-musical/progression-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CAN PROMOTE QUERY
// The authoritative promotion check against stored state.
// ══════════════════════════════════════════════════════════════════════════════

// CanPromoteQuery selects the student and the level to check.
type CanPromoteQuery struct {
	StudentID string

	// Level is the level whose requirements are checked. Zero means the
	// student's current level.
	Level int
}

// Validate checks the query.
func (q *CanPromoteQuery) Validate() error {
	if q.StudentID == "" {
		return shared.ErrEmptyStudentID
	}
	if q.Level < 0 {
		return shared.ErrInvalidLevel
	}
	return nil
}

// PromotionCheckDTO is a check together with the level it was computed for.
type PromotionCheckDTO struct {
	StudentID string `json:"student_id"`
	Level     int    `json:"level"`
	promotion.Check
}

// CanPromoteHandler handles CanPromoteQuery.
type CanPromoteHandler struct {
	students promotion.StudentRepository
	checker  *promotion.Checker
}

// NewCanPromoteHandler creates a new CanPromoteHandler.
func NewCanPromoteHandler(students promotion.StudentRepository, checker *promotion.Checker) *CanPromoteHandler {
	return &CanPromoteHandler{students: students, checker: checker}
}

// Handle executes the query.
func (h *CanPromoteHandler) Handle(ctx context.Context, q CanPromoteQuery) (*PromotionCheckDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("can_promote: %w", err)
	}
	level, err := currentLevel(ctx, h.students, q.StudentID, q.Level)
	if err != nil {
		return nil, fmt.Errorf("can_promote: %w", err)
	}

	check, err := h.checker.CanPromote(ctx, q.StudentID, level)
	if err != nil {
		return nil, fmt.Errorf("can_promote: %w", err)
	}
	return &PromotionCheckDTO{StudentID: q.StudentID, Level: level, Check: check}, nil
}

// currentLevel returns level, or the stored level of the student when it is zero.
func currentLevel(ctx context.Context, students promotion.StudentRepository, studentID string, level int) (int, error) {
	if level > 0 {
		return level, nil
	}
	s, err := students.Get(ctx, studentID)
	if err != nil {
		return 0, err
	}
	return s.Level, nil
}
